package core

import (
	"time"
)

// Field names one entry attribute a cell can map to.
type Field int

const (
	FieldIgnore Field = iota
	FieldChannel
	FieldTheme
	FieldTitle
	FieldDate
	FieldTime
	FieldDuration
	FieldSize
	FieldDescription
	FieldURL
	FieldWebsite
	FieldSubtitle
	FieldURLRTMP
	FieldURLSmall
	FieldURLRTMPSmall
	FieldURLHD
	FieldURLRTMPHD
	FieldDateUnix
	FieldURLHistory
	FieldGeo
	FieldNew
)

// Schema is a positional field mapping table for one list format version.
//
// Record ordinal 0 carries the list metadata at MetaDateCell and
// MetaVersionCell. Ordinal 1 is reserved. Every later record is an entry whose
// cell i maps to Entry[i]; cells past len(Entry) are never read.
type Schema struct {
	Name            string
	MetaDateCell    int
	MetaVersionCell int
	MetaDateLayout  string
	Entry           []Field
	// EntryDateLayout parses date and time cells joined by a space. It is
	// used when the unix timestamp cell is zero or missing.
	EntryDateLayout string
}

// DefaultSchema is the name of the schema used when none is configured.
const DefaultSchema = "filmliste-v3"

// MappedKind classifies the outcome of mapping one record.
type MappedKind int

const (
	MappedIgnored MappedKind = iota
	MappedMetadata
	MappedEntry
	MappedNoLocation
)

// Mapped is the result of mapping one record. Entry is set for MappedEntry
// and MappedNoLocation, Metadata for MappedMetadata.
type Mapped struct {
	Kind     MappedKind
	Metadata ListMetadata
	Entry    Entry
}

// Mapper applies a Schema to assembled records.
type Mapper struct {
	schema *Schema
	loc    *time.Location
}

// NewMapper creates a mapper. Dates without zone information are
// interpreted in loc; nil means time.Local.
func NewMapper(schema *Schema, loc *time.Location) *Mapper {
	if loc == nil {
		loc = time.Local
	}
	return &Mapper{schema: schema, loc: loc}
}

// Schema returns the mapping table in use.
func (m *Mapper) Schema() *Schema {
	return m.schema
}

// Map interprets rec according to its ordinal.
func (m *Mapper) Map(rec Record) Mapped {
	switch rec.Ordinal {
	case 0:
		return Mapped{Kind: MappedMetadata, Metadata: m.mapMetadata(rec)}
	case 1:
		return Mapped{Kind: MappedIgnored}
	}

	out := Mapped{Kind: MappedEntry, Entry: m.mapEntry(rec)}
	if !out.Entry.HasLocation() {
		out.Kind = MappedNoLocation
	}
	return out
}

func (m *Mapper) mapMetadata(rec Record) ListMetadata {
	md := ListMetadata{
		RawDate: rec.Cell(m.schema.MetaDateCell),
		Version: rec.Cell(m.schema.MetaVersionCell),
	}
	if t, err := time.ParseInLocation(m.schema.MetaDateLayout, md.RawDate, m.loc); err == nil {
		md.Date = t
	}
	return md
}

func (m *Mapper) mapEntry(rec Record) Entry {
	var (
		e          Entry
		date, tod  string
		compact    [5]string // raw variant cells in Field order
		hasCompact bool
	)

	n := len(rec.Cells)
	if n > len(m.schema.Entry) {
		n = len(m.schema.Entry)
	}
	for i := 0; i < n; i++ {
		cell := rec.Cells[i]
		switch m.schema.Entry[i] {
		case FieldChannel:
			e.Channel = cell
		case FieldTheme:
			e.Theme = cell
		case FieldTitle:
			e.Title = cell
		case FieldDate:
			date = cell
		case FieldTime:
			tod = cell
		case FieldDuration:
			e.Duration = ParseDuration(cell)
		case FieldSize:
			e.SizeMB = int(ParseInt32(cell))
		case FieldDescription:
			e.Description = cell
		case FieldURL:
			e.URL = cell
		case FieldWebsite:
			e.Website = cell
		case FieldSubtitle:
			e.Subtitle = cell
		case FieldURLRTMP, FieldURLSmall, FieldURLRTMPSmall, FieldURLHD, FieldURLRTMPHD:
			compact[m.schema.Entry[i]-FieldURLRTMP] = cell
			hasCompact = true
		case FieldDateUnix:
			e.DateUnix = ParseInt(cell)
		case FieldURLHistory:
			e.URLHistory = cell
		case FieldGeo:
			e.Geo = cell
		}
	}

	// Missing cells are empty strings, so the new flag defaults to true.
	e.NewEntry = true
	for i := 0; i < n; i++ {
		if m.schema.Entry[i] == FieldNew {
			e.NewEntry = ParseFlag(rec.Cells[i])
		}
	}

	if hasCompact {
		e.URLRTMP = DeriveURL(e.URL, compact[0])
		e.URLSmall = DeriveURL(e.URL, compact[1])
		e.URLRTMPSmall = DeriveURL(e.URL, compact[2])
		e.URLHD = DeriveURL(e.URL, compact[3])
		e.URLRTMPHD = DeriveURL(e.URL, compact[4])
	}

	if e.DateUnix == 0 && date != "" && tod != "" && m.schema.EntryDateLayout != "" {
		e.DateUnix = parseTimestamp(m.schema.EntryDateLayout, date+" "+tod, m.loc)
	}
	return e
}
