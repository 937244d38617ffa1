// Package core provides the streaming conversion engine for the media catalog.
// This package has no storage or transport dependencies and can be driven by
// the loader service, the CLI or tests.
package core

import (
	"context"
	"math"
	"time"
)

// EventKind identifies the primitive token carried by an Event.
type EventKind int

const (
	KindNull EventKind = iota
	KindBool
	KindInt
	KindUint
	KindInt64
	KindUint64
	KindDouble
	KindRawNumber
	KindString
	KindKey
	KindStartObject
	KindEndObject
	KindStartArray
	KindEndArray
)

var eventKindNames = [...]string{
	KindNull:        "null",
	KindBool:        "bool",
	KindInt:         "int",
	KindUint:        "uint",
	KindInt64:       "int64",
	KindUint64:      "uint64",
	KindDouble:      "double",
	KindRawNumber:   "number",
	KindString:      "string",
	KindKey:         "key",
	KindStartObject: "start-object",
	KindEndObject:   "end-object",
	KindStartArray:  "start-array",
	KindEndArray:    "end-array",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// IsScalar reports whether the kind carries a cell value.
// Keys are not scalars: they name object members and never become cells.
func (k EventKind) IsScalar() bool {
	return k >= KindNull && k <= KindString
}

// Phase is the lifecycle position of an Event in the stream.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseWork
	PhaseStop
)

// Event is one primitive parse event. Text holds the string form of scalar
// values; it is empty for structural kinds.
type Event struct {
	Phase Phase
	Kind  EventKind
	Text  string
}

// EventStream is a pull-style source of events. Next returns io.EOF once the
// Stop event has been delivered.
type EventStream interface {
	Next() (Event, error)
}

// Record is one fully assembled top-level array.
type Record struct {
	Ordinal int
	Cells   []string
}

// Cell returns the cell at position i, or "" when the record is shorter.
func (r Record) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// ListMetadata is the self-describing header of the list (record ordinal 0).
type ListMetadata struct {
	Date    time.Time // zero if RawDate could not be parsed
	RawDate string
	Version string
}

// Entry is one media item of the catalog.
type Entry struct {
	ID           int64
	Channel      string
	Theme        string
	Title        string
	Duration     int // seconds
	SizeMB       int
	Description  string
	URL          string
	Website      string
	Subtitle     string
	URLRTMP      string
	URLSmall     string
	URLRTMPSmall string
	URLHD        string
	URLRTMPHD    string
	DateUnix     int64
	URLHistory   string
	Geo          string
	NewEntry     bool
	Update       int64 // unix time of a diff-mode write, 0 otherwise
}

// HasLocation reports whether at least one playable URL is present.
func (e *Entry) HasLocation() bool {
	return e.URL != "" || e.URLRTMP != "" || e.URLSmall != "" ||
		e.URLRTMPSmall != "" || e.URLHD != "" || e.URLRTMPHD != ""
}

// ChannelInfo is the running per-channel rollup.
type ChannelInfo struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
	Latest  int64  `json:"latest"`
	Oldest  int64  `json:"oldest"`
}

func newChannelInfo(channel string) *ChannelInfo {
	return &ChannelInfo{
		Channel: channel,
		Latest:  math.MinInt64,
		Oldest:  math.MaxInt64,
	}
}

// HasOldest reports whether any entry with a non-zero timestamp was counted.
func (c ChannelInfo) HasOldest() bool {
	return c.Oldest != math.MaxInt64
}

// Decision is the outcome of diff-mode matching.
type Decision struct {
	ID     int64 // matched identifier, 0 for inserts
	Update bool
}

// Stats counts what happened to the records of one pass.
type Stats struct {
	Records           int   // top-level records assembled
	Ignored           int   // reserved and metadata records
	Entries           int   // entries forwarded to the writer
	SkippedNoLocation int   // candidates without any URL
	FilteredByAge     int   // candidates older than the age cutoff
	Updated           int   // diff mode: matched existing rows
	Inserted          int   // diff mode: deferred inserts written
	Batches           int   // statements flushed to the executor
	StatementBytes    int64 // total statement bytes flushed
}

// Lookup finds an existing row matching an entry. ok is false when no row
// matches; when several match the highest identifier is returned.
type Lookup interface {
	FindMatch(ctx context.Context, channel string, dateUnix int64, theme, title string) (id int64, ok bool, err error)
}

// Executor runs statements against the store.
type Executor interface {
	Execute(ctx context.Context, statement string) error
	// NextID returns the current maximum identifier of table plus one.
	NextID(ctx context.Context, table string) (int64, error)
}

// Store is what a diff-mode pass needs from the database.
type Store interface {
	Lookup
	Executor
}

// ProgressCallback is called periodically during a pass.
type ProgressCallback func(Stats)
