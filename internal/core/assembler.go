package core

import (
	"fmt"
)

// Assembler turns the primitive event stream into positional records.
//
// Every array opened directly below the document root is a record. Scalars
// found at depth 1 of that array become its cells in order; anything nested
// deeper inside a record is skipped. Object keys never become cells.
type Assembler struct {
	arrayDepth  int
	objectDepth int
	inRecord    bool
	recordBase  int // objectDepth when the current record opened
	ordinal     int
	cells       []string
	started     bool
	stopped     bool
}

// NewAssembler creates an assembler with an empty cell buffer.
func NewAssembler() *Assembler {
	return &Assembler{cells: make([]string, 0, 32)}
}

// Feed consumes one event. When the event completes a record, the record is
// returned with ok set. The returned Cells slice is reused and only valid until
// the next call to Feed.
func (a *Assembler) Feed(ev Event) (rec Record, ok bool, err error) {
	switch ev.Phase {
	case PhaseStart:
		a.started = true
		return Record{}, false, nil
	case PhaseStop:
		if a.arrayDepth != 0 || a.objectDepth != 0 {
			return Record{}, false, fmt.Errorf("%w: stream stopped with %d arrays and %d objects open",
				ErrUnbalanced, a.arrayDepth, a.objectDepth)
		}
		a.stopped = true
		return Record{}, false, nil
	}

	if a.stopped {
		return Record{}, false, fmt.Errorf("%w: event %s after stop", ErrUnbalanced, ev.Kind)
	}

	switch ev.Kind {
	case KindStartArray:
		a.arrayDepth++
		if a.arrayDepth == 1 {
			a.inRecord = true
			a.recordBase = a.objectDepth
			a.cells = a.cells[:0]
		}

	case KindEndArray:
		if a.arrayDepth == 0 {
			return Record{}, false, fmt.Errorf("%w: end of array without start", ErrUnbalanced)
		}
		if a.inRecord && a.objectDepth != a.recordBase {
			return Record{}, false, fmt.Errorf("%w: array closed inside open object", ErrUnbalanced)
		}
		a.arrayDepth--
		if a.arrayDepth == 0 && a.inRecord {
			a.inRecord = false
			rec = Record{Ordinal: a.ordinal, Cells: a.cells}
			a.ordinal++
			return rec, true, nil
		}

	case KindStartObject:
		a.objectDepth++

	case KindEndObject:
		if a.objectDepth == 0 {
			return Record{}, false, fmt.Errorf("%w: end of object without start", ErrUnbalanced)
		}
		if a.inRecord && a.objectDepth == a.recordBase {
			return Record{}, false, fmt.Errorf("%w: object closed inside open record", ErrUnbalanced)
		}
		a.objectDepth--

	case KindKey:
		// member names are structure, not data

	default:
		if !ev.Kind.IsScalar() {
			return Record{}, false, fmt.Errorf("unknown event kind %d", ev.Kind)
		}
		if a.inRecord && a.arrayDepth == 1 && a.objectDepth == a.recordBase {
			a.cells = append(a.cells, ev.Text)
		}
	}
	return Record{}, false, nil
}

// Records returns the number of records assembled so far.
func (a *Assembler) Records() int {
	return a.ordinal
}
