package core

// events.go adapts encoding/json's token decoder to the pull-style EventStream.
//
// The decoder returns object keys as plain strings, so the stream keeps a small
// container stack to tell keys from string values. Numbers are decoded with
// UseNumber and keep their source text; the kind records whether the literal
// was integral, signed or floating point.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// JSONStream produces events from a JSON document read incrementally.
type JSONStream struct {
	dec     *json.Decoder
	stack   []container
	started bool
	stopped bool
}

type container struct {
	object    bool
	expectKey bool
}

// NewJSONStream creates an event stream over r. The reader is consumed lazily.
func NewJSONStream(r io.Reader) *JSONStream {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &JSONStream{dec: dec}
}

// Next returns the next event. The first call returns a Start lifecycle event;
// after the last token a Stop event is returned, then io.EOF.
// A document that ends inside a container yields ErrTruncated.
func (s *JSONStream) Next() (Event, error) {
	if !s.started {
		s.started = true
		return Event{Phase: PhaseStart}, nil
	}
	if s.stopped {
		return Event{}, io.EOF
	}

	tok, err := s.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(s.stack) > 0 {
				return Event{}, fmt.Errorf("%w: %d containers still open", ErrTruncated, len(s.stack))
			}
			s.stopped = true
			return Event{Phase: PhaseStop}, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Event{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		return Event{}, fmt.Errorf("read token: %w", err)
	}

	ev := Event{Phase: PhaseWork}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			s.valueDone()
			ev.Kind = KindStartObject
			s.stack = append(s.stack, container{object: true, expectKey: true})
		case '[':
			s.valueDone()
			ev.Kind = KindStartArray
			s.stack = append(s.stack, container{})
		case '}':
			ev.Kind = KindEndObject
			s.pop()
		case ']':
			ev.Kind = KindEndArray
			s.pop()
		}
	case string:
		if s.inKeyPosition() {
			ev.Kind = KindKey
			s.stack[len(s.stack)-1].expectKey = false
		} else {
			ev.Kind = KindString
			s.valueDone()
		}
		ev.Text = v
	case json.Number:
		ev.Kind = numberKind(string(v))
		ev.Text = string(v)
		s.valueDone()
	case bool:
		ev.Kind = KindBool
		if v {
			ev.Text = "true"
		} else {
			ev.Text = "false"
		}
		s.valueDone()
	case nil:
		ev.Kind = KindNull
		s.valueDone()
	default:
		return Event{}, fmt.Errorf("unexpected token type %T", tok)
	}
	return ev, nil
}

func (s *JSONStream) inKeyPosition() bool {
	if len(s.stack) == 0 {
		return false
	}
	top := s.stack[len(s.stack)-1]
	return top.object && top.expectKey
}

// valueDone marks the value slot of the enclosing object as consumed.
// For containers it is called when the container opens, so the object
// expects a key again once the container closes.
func (s *JSONStream) valueDone() {
	if len(s.stack) == 0 {
		return
	}
	if top := &s.stack[len(s.stack)-1]; top.object {
		top.expectKey = true
	}
}

func (s *JSONStream) pop() {
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
}

func numberKind(text string) EventKind {
	if strings.ContainsAny(text, ".eE") {
		return KindDouble
	}
	if strings.HasPrefix(text, "-") {
		return KindInt64
	}
	return KindUint64
}

// SliceStream replays a fixed list of events. It wraps the list with the
// Start and Stop lifecycle events.
type SliceStream struct {
	events []Event
	pos    int
}

// NewSliceStream creates a stream over events.
func NewSliceStream(events ...Event) *SliceStream {
	all := make([]Event, 0, len(events)+2)
	all = append(all, Event{Phase: PhaseStart})
	for _, ev := range events {
		ev.Phase = PhaseWork
		all = append(all, ev)
	}
	all = append(all, Event{Phase: PhaseStop})
	return &SliceStream{events: all}
}

// Next implements EventStream.
func (s *SliceStream) Next() (Event, error) {
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}
