// Package core provides the streaming conversion engine for the media catalog.
//
// The engine turns a MediathekView film list into SQL statements in a single
// pass. It knows nothing about files, mirrors or connection pools; callers
// hand it an [EventStream] and an [Executor] and own the transaction.
//
// # Pipeline
//
// One pass runs these stages in order, record by record:
//
//  1. [JSONStream] tokenizes the document into [Event] values
//  2. [Assembler] groups the events of each array into a [Record]
//  3. [Mapper] maps the first record to [ListMetadata] and the rest to
//     [Entry] values using a registered [Schema]
//  4. [Normalizer] carries forward empty channel and theme cells, expands
//     "offset|suffix" URLs, drops entries without a location or older than
//     the age limit and keeps per-channel counts
//  5. In diff mode a [Reconciler] decides per entry between update and
//     insert; new rows get identifiers once the pass is complete
//  6. [BatchBuilder] packs row tuples into multi-row statements below the
//     configured size
//
// After the last record the channel rollups and a version row are written.
// [Run] wires the stages together and returns a [Result].
//
// # Schemas
//
// The cell layout of a list is described by a [Schema]. Layouts are
// registered at init time with [Register] and selected by name:
//
//	schema, err := core.LookupSchema("filmliste-v3")
//
// # Modes
//
// A full pass writes every kept entry with sequential identifiers and
// assumes the caller emptied the tables. A diff pass needs an executor that
// also implements [Lookup]; matched entries replace their row in place and
// unmatched entries are appended after the current maximum identifier.
//
// # Error Handling
//
// Technical errors are mapped to operator messages with [MapError]. See
// error_messages.go for the list of codes.
package core
