package core

import (
	"context"
	"fmt"
)

// DefaultMaxBatchBytes keeps one statement below a 1 MiB server packet limit.
const DefaultMaxBatchBytes = 1048576 - 4096

// BatchBuilder accumulates value tuples into size-bounded statements.
//
// The first tuple of a statement is written with the statement prefix, later
// tuples with a separator. When appending a fragment would push the buffer past
// the maximum, the buffer is flushed first and the fragment opens the next
// statement. The maximum includes the terminator. A fragment larger than the
// maximum is sent on its own.
//
// Rows added with AddRow carry their identifier. A statement never holds the
// same identifier twice: a repeated identifier flushes the pending statement,
// so the later row overwrites the earlier one.
type BatchBuilder struct {
	exec       Executor
	max        int
	prefix     string
	terminator string

	buf        []byte
	writeStart bool
	ids        map[int64]struct{} // identifiers in buf
	stats      *Stats
}

// NewBatchBuilder creates a builder that writes through exec. max <= 0
// selects DefaultMaxBatchBytes. stats may be nil.
func NewBatchBuilder(exec Executor, max int, prefix, terminator string, stats *Stats) *BatchBuilder {
	if max <= 0 {
		max = DefaultMaxBatchBytes
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &BatchBuilder{
		exec:       exec,
		max:        max,
		prefix:     prefix,
		terminator: terminator,
		writeStart: true,
		ids:        make(map[int64]struct{}),
		stats:      stats,
	}
}

// NewVideoBatch creates a builder for video rows written with verb.
func NewVideoBatch(exec Executor, max int, verb Verb, stats *Stats) *BatchBuilder {
	return NewBatchBuilder(exec, max, VideoPrefix(), VideoTerminator(verb), stats)
}

// Add appends one value tuple, flushing first if it would not fit.
func (b *BatchBuilder) Add(ctx context.Context, tuple string) error {
	fragLen := len(tuple)
	if b.writeStart {
		fragLen += len(b.prefix)
	} else {
		fragLen++ // separator
	}

	if len(b.buf) > 0 && len(b.buf)+fragLen+len(b.terminator) > b.max {
		if err := b.Flush(ctx); err != nil {
			return err
		}
	}

	if b.writeStart {
		b.buf = append(b.buf, b.prefix...)
		b.writeStart = false
	} else {
		b.buf = append(b.buf, ',')
	}
	b.buf = append(b.buf, tuple...)
	return nil
}

// AddRow appends the tuple of row id, flushing first if id is already part
// of the pending statement.
func (b *BatchBuilder) AddRow(ctx context.Context, id int64, tuple string) error {
	if _, dup := b.ids[id]; dup {
		if err := b.Flush(ctx); err != nil {
			return err
		}
	}
	if err := b.Add(ctx, tuple); err != nil {
		return err
	}
	b.ids[id] = struct{}{}
	return nil
}

// Flush terminates and executes the pending statement, if any.
func (b *BatchBuilder) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	b.buf = append(b.buf, b.terminator...)

	if err := b.exec.Execute(ctx, string(b.buf)); err != nil {
		return fmt.Errorf("execute batch %d (%d bytes): %w", b.stats.Batches+1, len(b.buf), err)
	}
	b.stats.Batches++
	b.stats.StatementBytes += int64(len(b.buf))

	b.buf = b.buf[:0]
	b.writeStart = true
	clear(b.ids)
	return nil
}

// Pending returns the number of buffered bytes.
func (b *BatchBuilder) Pending() int {
	return len(b.buf)
}
