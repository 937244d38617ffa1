package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Options configures one conversion pass.
type Options struct {
	Schema        *Schema        // nil selects DefaultSchema
	DiffMode      bool           // reconcile against the loaded snapshot
	MaxAgeDays    int            // 0 disables the age filter
	MaxBatchBytes int            // 0 selects DefaultMaxBatchBytes
	Location      *time.Location // zone of list dates, nil means time.Local
	Now           func() time.Time

	// Version fields written to the version table. RunTime, ListVersion
	// and ListDate are filled from the pass.
	Version VersionInfo

	Progress      ProgressCallback
	ProgressEvery int // records between progress calls, default 10000
}

// Mode returns "diff" or "full".
func (o Options) Mode() string {
	if o.DiffMode {
		return "diff"
	}
	return "full"
}

// Result summarizes a completed pass.
type Result struct {
	Mode     string
	Metadata ListMetadata
	Stats    Stats
	Channels []ChannelInfo
	Duration time.Duration
}

// Run drives one single-pass conversion from stream into exec.
//
// In diff mode exec must also implement Lookup. Cancellation is checked after
// every completed record. All statements go through exec; transaction control
// belongs to the caller.
func Run(ctx context.Context, stream EventStream, exec Executor, opts Options) (*Result, error) {
	start := time.Now()

	schema := opts.Schema
	if schema == nil {
		var err error
		if schema, err = LookupSchema(DefaultSchema); err != nil {
			return nil, err
		}
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn().Unix()
	every := opts.ProgressEvery
	if every <= 0 {
		every = 10000
	}

	res := &Result{Mode: opts.Mode()}
	stats := &res.Stats

	asm := NewAssembler()
	mapper := NewMapper(schema, opts.Location)
	norm := NewNormalizer(opts.MaxAgeDays, now)

	var (
		rec    *Reconciler
		batch  *BatchBuilder
		nextID int64
	)
	if opts.DiffMode {
		lookup, ok := exec.(Lookup)
		if !ok {
			return nil, errors.New("diff mode requires an executor that implements Lookup")
		}
		rec = NewReconciler(lookup, now)
		batch = NewVideoBatch(exec, opts.MaxBatchBytes, VerbReplace, stats)
	} else {
		id, err := exec.NextID(ctx, VideoTable)
		if err != nil {
			return nil, fmt.Errorf("next id: %w", err)
		}
		nextID = id
		batch = NewVideoBatch(exec, opts.MaxBatchBytes, VerbInsert, stats)
	}

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", asm.Records(), err)
		}

		r, ok, err := asm.Feed(ev)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", asm.Records(), err)
		}
		if !ok {
			continue
		}
		stats.Records++

		m := mapper.Map(r)
		switch m.Kind {
		case MappedMetadata:
			res.Metadata = m.Metadata
			stats.Ignored++
		case MappedIgnored:
			stats.Ignored++
		default:
			if norm.Normalize(&m, stats) {
				if err := write(ctx, &m.Entry, rec, batch, &nextID); err != nil {
					return nil, err
				}
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("after record %d: %w", r.Ordinal, err)
		}
		if opts.Progress != nil && stats.Records%every == 0 {
			opts.Progress(*stats)
		}
	}

	if err := batch.Flush(ctx); err != nil {
		return nil, err
	}

	if rec != nil && rec.Deferred() > 0 {
		next, err := exec.NextID(ctx, VideoTable)
		if err != nil {
			return nil, fmt.Errorf("next id: %w", err)
		}
		inserts := NewVideoBatch(exec, opts.MaxBatchBytes, VerbInsert, stats)
		for _, e := range rec.AssignInsertIDs(next) {
			if err := inserts.AddRow(ctx, e.ID, VideoTuple(&e)); err != nil {
				return nil, err
			}
			stats.Inserted++
		}
		if err := inserts.Flush(ctx); err != nil {
			return nil, err
		}
	}

	res.Channels = MergeChannels(norm.Finish())
	if stmt := ChannelInfoStatement(res.Channels, opts.DiffMode); stmt != "" {
		if err := exec.Execute(ctx, stmt); err != nil {
			return nil, fmt.Errorf("write channel info: %w", err)
		}
	}

	v := opts.Version
	v.RunTime = now
	v.ListVersion = res.Metadata.Version
	if !res.Metadata.Date.IsZero() {
		v.ListDate = res.Metadata.Date.Unix()
	}
	if err := exec.Execute(ctx, VersionStatement(v)); err != nil {
		return nil, fmt.Errorf("write version: %w", err)
	}

	if opts.Progress != nil {
		opts.Progress(*stats)
	}
	res.Duration = time.Since(start)
	return res, nil
}

func write(ctx context.Context, e *Entry, rec *Reconciler, batch *BatchBuilder, nextID *int64) error {
	if rec == nil {
		e.ID = *nextID
		*nextID++
		return batch.AddRow(ctx, e.ID, VideoTuple(e))
	}

	d, err := rec.Decide(ctx, e)
	if err != nil {
		return err
	}
	if !d.Update {
		return nil
	}
	if err := batch.AddRow(ctx, d.ID, VideoTuple(e)); err != nil {
		return err
	}
	batch.stats.Updated++
	return nil
}
