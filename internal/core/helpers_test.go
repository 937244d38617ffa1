package core

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// fakeStore records statements and answers lookups from a fixed table.
type fakeStore struct {
	statements []string
	matches    map[string]int64 // key: channel|date|theme|title
	maxID      map[string]int64
	failOn     int // fail the n-th Execute call (1-based), 0 never
	lookups    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches: make(map[string]int64),
		maxID:   make(map[string]int64),
	}
}

func matchKey(channel string, dateUnix int64, theme, title string) string {
	return strings.Join([]string{channel, strconv.FormatInt(dateUnix, 10), theme, title}, "|")
}

func (f *fakeStore) Execute(ctx context.Context, stmt string) error {
	if f.failOn > 0 && len(f.statements)+1 == f.failOn {
		return errors.New("connection reset by peer")
	}
	f.statements = append(f.statements, stmt)
	return nil
}

func (f *fakeStore) NextID(ctx context.Context, table string) (int64, error) {
	return f.maxID[table] + 1, nil
}

func (f *fakeStore) FindMatch(ctx context.Context, channel string, dateUnix int64, theme, title string) (int64, bool, error) {
	f.lookups++
	id, ok := f.matches[matchKey(channel, dateUnix, theme, title)]
	return id, ok, nil
}

// videoStatements returns the recorded statements that write video rows.
func (f *fakeStore) videoStatements() []string {
	var out []string
	for _, s := range f.statements {
		if strings.HasPrefix(s, `INSERT INTO "video"`) {
			out = append(out, s)
		}
	}
	return out
}

// executorOnly hides the Lookup method of a fakeStore.
type executorOnly struct{ f *fakeStore }

func (e executorOnly) Execute(ctx context.Context, stmt string) error { return e.f.Execute(ctx, stmt) }
func (e executorOnly) NextID(ctx context.Context, table string) (int64, error) {
	return e.f.NextID(ctx, table)
}
