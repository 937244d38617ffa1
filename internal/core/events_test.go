package core

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func collectEvents(t *testing.T, s EventStream) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, ev)
	}
}

func TestJSONStream_Kinds(t *testing.T) {
	doc := `{"Filmliste":["a",1,-2,3.5,true,null,{"k":"v"}]}`
	got := collectEvents(t, NewJSONStream(strings.NewReader(doc)))

	want := []Event{
		{Phase: PhaseStart},
		{Phase: PhaseWork, Kind: KindStartObject},
		{Phase: PhaseWork, Kind: KindKey, Text: "Filmliste"},
		{Phase: PhaseWork, Kind: KindStartArray},
		{Phase: PhaseWork, Kind: KindString, Text: "a"},
		{Phase: PhaseWork, Kind: KindUint64, Text: "1"},
		{Phase: PhaseWork, Kind: KindInt64, Text: "-2"},
		{Phase: PhaseWork, Kind: KindDouble, Text: "3.5"},
		{Phase: PhaseWork, Kind: KindBool, Text: "true"},
		{Phase: PhaseWork, Kind: KindNull},
		{Phase: PhaseWork, Kind: KindStartObject},
		{Phase: PhaseWork, Kind: KindKey, Text: "k"},
		{Phase: PhaseWork, Kind: KindString, Text: "v"},
		{Phase: PhaseWork, Kind: KindEndObject},
		{Phase: PhaseWork, Kind: KindEndArray},
		{Phase: PhaseWork, Kind: KindEndObject},
		{Phase: PhaseStop},
	}

	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestJSONStream_DuplicateKeys(t *testing.T) {
	// The list repeats the "X" key for every entry.
	doc := `{"X":["a"],"X":["b"]}`
	got := collectEvents(t, NewJSONStream(strings.NewReader(doc)))

	var keys, strs []string
	for _, ev := range got {
		switch ev.Kind {
		case KindKey:
			keys = append(keys, ev.Text)
		case KindString:
			strs = append(strs, ev.Text)
		}
	}
	if strings.Join(keys, ",") != "X,X" {
		t.Errorf("keys = %v, want [X X]", keys)
	}
	if strings.Join(strs, ",") != "a,b" {
		t.Errorf("strings = %v, want [a b]", strs)
	}
}

func TestJSONStream_Truncated(t *testing.T) {
	s := NewJSONStream(strings.NewReader(`{"X":["a","b"`))
	var err error
	for err == nil {
		_, err = s.Next()
	}
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("error = %v, want ErrTruncated", err)
	}
}

func TestJSONStream_Syntax(t *testing.T) {
	s := NewJSONStream(strings.NewReader(`["a" "b"]`))
	var err error
	for err == nil {
		_, err = s.Next()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, ErrTruncated) {
		t.Errorf("error = %v, want syntax error", err)
	}
}

func TestSliceStream(t *testing.T) {
	s := NewSliceStream(Event{Kind: KindStartArray}, Event{Kind: KindEndArray})
	got := collectEvents(t, s)
	if len(got) != 4 {
		t.Fatalf("got %d events, want 4", len(got))
	}
	if got[0].Phase != PhaseStart || got[3].Phase != PhaseStop {
		t.Errorf("lifecycle = %v..%v, want start..stop", got[0].Phase, got[3].Phase)
	}
	if got[1].Phase != PhaseWork {
		t.Errorf("phase = %v, want work", got[1].Phase)
	}
}

func TestEventKind_String(t *testing.T) {
	if KindStartArray.String() != "start-array" {
		t.Errorf("String() = %q", KindStartArray.String())
	}
	if EventKind(99).String() != "unknown" {
		t.Errorf("String() = %q, want unknown", EventKind(99).String())
	}
	if KindKey.IsScalar() {
		t.Error("KindKey.IsScalar() = true, want false")
	}
	if !KindNull.IsScalar() || !KindString.IsScalar() {
		t.Error("null and string must be scalar")
	}
}
