package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]*Schema)
	registryMu sync.RWMutex
)

func init() {
	Register(&Schema{
		Name:            DefaultSchema,
		MetaDateCell:    1,
		MetaVersionCell: 3,
		MetaDateLayout:  "2.1.2006, 15:04",
		Entry: []Field{
			FieldChannel,      // 0
			FieldTheme,        // 1
			FieldTitle,        // 2
			FieldDate,         // 3
			FieldTime,         // 4
			FieldDuration,     // 5
			FieldSize,         // 6
			FieldDescription,  // 7
			FieldURL,          // 8
			FieldWebsite,      // 9
			FieldSubtitle,     // 10
			FieldURLRTMP,      // 11
			FieldURLSmall,     // 12
			FieldURLRTMPSmall, // 13
			FieldURLHD,        // 14
			FieldURLRTMPHD,    // 15
			FieldDateUnix,     // 16
			FieldURLHistory,   // 17
			FieldGeo,          // 18
			FieldNew,          // 19
		},
		EntryDateLayout: "2.1.2006 15:04:05",
	})

	// Compact layout without the RTMP HD variant.
	Register(&Schema{
		Name:            "filmliste-compact",
		MetaDateCell:    1,
		MetaVersionCell: 3,
		MetaDateLayout:  "2.1.2006, 15:04",
		Entry: []Field{
			FieldChannel,
			FieldTheme,
			FieldTitle,
			FieldDate,
			FieldTime,
			FieldDuration,
			FieldSize,
			FieldDescription,
			FieldURL,
			FieldWebsite,
			FieldSubtitle,
			FieldURLRTMP,
			FieldURLSmall,
			FieldURLRTMPSmall,
			FieldURLHD,
			FieldDateUnix,
			FieldURLHistory,
			FieldGeo,
			FieldNew,
		},
		EntryDateLayout: "2.1.2006 15:04:05",
	})
}

// Register adds a schema to the registry.
// Panics if a schema with the same name is already registered.
func Register(s *Schema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[s.Name]; exists {
		panic(fmt.Sprintf("schema already registered: %s", s.Name))
	}
	registry[s.Name] = s
}

// Get returns a schema by name.
// Returns false if not found.
func Get(name string) (*Schema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := registry[name]
	return s, ok
}

// LookupSchema returns a schema by name, or ErrUnknownSchema.
// An empty name selects DefaultSchema.
func LookupSchema(name string) (*Schema, error) {
	if name == "" {
		name = DefaultSchema
	}
	s, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}
	return s, nil
}

// Names returns all registered schema names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
