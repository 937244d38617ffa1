// Package loader orchestrates a complete run: decide the mode, acquire the
// list, convert it inside one transaction and remember the outcome.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/mediathek-loader/internal/config"
	"github.com/JonMunkholm/mediathek-loader/internal/core"
	"github.com/JonMunkholm/mediathek-loader/internal/logging"
	"github.com/JonMunkholm/mediathek-loader/internal/source"
	"github.com/JonMunkholm/mediathek-loader/internal/state"
	"github.com/JonMunkholm/mediathek-loader/internal/store"
)

// ProgramName is written to the version table.
const ProgramName = "mvload"

// Catalog is what one run needs from its transaction.
type Catalog interface {
	core.Store
	Truncate(ctx context.Context) error
}

// TxFunc runs fn inside one database transaction, committing when fn
// returns nil.
type TxFunc func(ctx context.Context, fn func(Catalog) error) error

// PoolTx returns a TxFunc backed by pool.
func PoolTx(pool *pgxpool.Pool) TxFunc {
	return func(ctx context.Context, fn func(Catalog) error) error {
		return store.WithTx(ctx, pool, func(e *store.Executor) error {
			return fn(e)
		})
	}
}

// Acquirer fetches list archives. *source.Fetcher implements it.
type Acquirer interface {
	Download(ctx context.Context, name, dest string) (int64, error)
	RemoteMetadata(ctx context.Context, name string, schema *core.Schema, loc *time.Location) (core.ListMetadata, error)
	Failures() map[string]int
	SetFailures(map[string]int)
}

// Request selects what one run does.
type Request struct {
	Diff         bool   // load the diff list
	Force        bool   // skip the remote version gate
	File         string // load this file instead of downloading
	DownloadOnly bool   // stop after the download
	MaxAgeDays   *int   // overrides the configured age filter
	Scheduled    bool   // skip when the last run is younger than the cron interval
}

// Status is a snapshot for the status server.
type Status struct {
	Running  bool           `json:"running"`
	LastRun  *state.Summary `json:"last_run,omitempty"`
	Interval string         `json:"interval"`
}

// Service runs loads. Only one run is active at a time.
type Service struct {
	cfg     config.LoaderConfig
	tx      TxFunc
	acq     Acquirer
	version string
	loc     *time.Location
	now     func() time.Time

	running atomic.Bool

	mu   sync.RWMutex
	last *state.Summary
}

// New creates a service. version is the program version written to the
// version table.
func New(cfg config.LoaderConfig, tx TxFunc, acq Acquirer, version string) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	if _, err := core.LookupSchema(cfg.Schema); err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, tx: tx, acq: acq, version: version, loc: loc, now: time.Now}, nil
}

// NewFetcher builds the mirror fetcher described by cfg.
func NewFetcher(cfg config.LoaderConfig) *source.Fetcher {
	return source.NewFetcher(source.FetchConfig{
		Mirrors:    cfg.Mirrors,
		FailLimit:  cfg.MirrorFailLimit,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.HTTPTimeout,
		CheckBytes: cfg.VersionCheckBytes,
	})
}

// Status returns the current run state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Running: s.running.Load(), Interval: s.cfg.CronInterval.String()}
	if s.last != nil {
		cp := *s.last
		st.LastRun = &cp
	}
	return st
}

func (s *Service) statePath() string {
	if filepath.IsAbs(s.cfg.StateFile) {
		return s.cfg.StateFile
	}
	return filepath.Join(s.cfg.WorkDir, s.cfg.StateFile)
}

// RunOnce performs one run. It returns ErrRunInProgress when another run is
// active. The summary is returned for failed runs too.
func (s *Service) RunOnce(ctx context.Context, req Request) (*state.Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, core.ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.runLocked(ctx, req)
}

// Start begins a run in the background and returns at once. It returns
// ErrRunInProgress when another run is active.
func (s *Service) Start(ctx context.Context, req Request) error {
	if !s.running.CompareAndSwap(false, true) {
		return core.ErrRunInProgress
	}
	go func() {
		defer s.running.Store(false)
		s.runLocked(ctx, req)
	}()
	return nil
}

// runLocked performs a run. The caller holds the run guard.
func (s *Service) runLocked(ctx context.Context, req Request) (*state.Summary, error) {
	runID := logging.NewRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	st, err := state.Load(s.statePath())
	if err != nil {
		return nil, err
	}
	if st.MirrorFailures != nil {
		s.acq.SetFailures(st.MirrorFailures)
	}

	now := s.now()
	sum := &state.Summary{RunID: runID, Started: now}
	err = s.run(ctx, req, st, sum)

	sum.Finished = s.now()
	sum.DurationMS = sum.Finished.Sub(sum.Started).Milliseconds()
	logger := logging.FromContext(ctx)
	if err != nil {
		sum.Outcome = state.OutcomeFailed
		sum.Error = core.FormatUserError(err)
		sum.ErrorCode = core.ErrorCode(err)
		logger.Error("run failed", "mode", sum.Mode, "code", sum.ErrorCode, "error", err)
	} else {
		logger.Info("run finished",
			"mode", sum.Mode,
			"outcome", sum.Outcome,
			"entries", sum.Entries,
			"duration_ms", sum.DurationMS,
		)
	}

	if sum.Outcome != state.OutcomeSkipped {
		st.LastRun = now
	}
	st.MirrorFailures = s.acq.Failures()
	st.LastResult = sum
	if serr := st.Save(s.statePath()); serr != nil {
		logger.Error("save state failed", "error", serr)
		if err == nil {
			err = serr
		}
	}

	s.mu.Lock()
	s.last = sum
	s.mu.Unlock()

	return sum, err
}

func (s *Service) run(ctx context.Context, req Request, st *state.State, sum *state.Summary) error {
	logger := logging.FromContext(ctx)
	now := s.now()

	diff := req.Diff
	if diff && req.File == "" && !ResolveDiff(st.LastFullDownload, now, s.loc) {
		logger.Info("no full list from today, loading the full list instead of the diff")
		diff = false
	}
	sum.Mode = modeName(diff)

	if req.Scheduled {
		last := st.LastFullDownload
		if diff {
			last = st.LastDiffDownload
		}
		if !CronDue(last, now, s.cfg.CronInterval) {
			sum.Outcome = state.OutcomeSkipped
			logger.Info("run skipped, last download is recent enough",
				"last_download", last,
				"next_download", last.Add(s.cfg.CronInterval),
			)
			return nil
		}
	}

	schema, err := core.LookupSchema(s.cfg.Schema)
	if err != nil {
		return err
	}

	path := req.File
	if path == "" {
		var skip bool
		path, skip, err = s.acquire(ctx, diff, req.Force, st, schema)
		if err != nil {
			return err
		}
		if skip {
			sum.Outcome = state.OutcomeSkipped
			return nil
		}
	}
	if req.DownloadOnly {
		sum.Outcome = state.OutcomeDownload
		return nil
	}

	res, err := s.convert(ctx, path, diff, req, schema)
	if err != nil {
		return err
	}

	sum.Outcome = state.OutcomeLoaded
	sum.ListDate = res.Metadata.Date
	sum.Entries = res.Stats.Entries
	sum.Updated = res.Stats.Updated
	sum.Inserted = res.Stats.Inserted
	sum.Skipped = res.Stats.SkippedNoLocation
	sum.Filtered = res.Stats.FilteredByAge
	sum.Batches = res.Stats.Batches
	sum.Channels = len(res.Channels)

	if !res.Metadata.Date.IsZero() {
		st.LoadedListDate = res.Metadata.Date
	}
	st.LoadedListVersion = res.Metadata.Version
	return nil
}

// acquire downloads the list for the mode unless the remote header shows
// nothing newer than what is loaded.
func (s *Service) acquire(ctx context.Context, diff, force bool, st *state.State, schema *core.Schema) (string, bool, error) {
	logger := logging.FromContext(ctx)
	name := s.cfg.ListFile
	if diff {
		name = s.cfg.DiffFile
	}
	dest := filepath.Join(s.cfg.WorkDir, name)

	if !diff && !force && !st.LoadedListDate.IsZero() {
		remote, err := s.acq.RemoteMetadata(ctx, name, schema, s.loc)
		switch {
		case err != nil:
			logger.Warn("remote version check failed, downloading anyway", "error", err)
		case !remote.Date.After(st.LoadedListDate):
			logger.Info("remote list is not newer than the loaded one",
				"remote_date", remote.Date,
				"loaded_date", st.LoadedListDate,
			)
			return "", true, nil
		}
	}

	if _, err := s.acq.Download(ctx, name, dest); err != nil {
		return "", false, err
	}
	if diff {
		st.LastDiffDownload = s.now()
	} else {
		st.LastFullDownload = s.now()
	}
	return dest, false, nil
}

func (s *Service) convert(ctx context.Context, path string, diff bool, req Request, schema *core.Schema) (*core.Result, error) {
	logger := logging.FromContext(ctx)

	list, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	defer list.Close()

	maxAge := s.cfg.MaxAgeDays
	if req.MaxAgeDays != nil {
		maxAge = *req.MaxAgeDays
	}

	opts := core.Options{
		Schema:        schema,
		DiffMode:      diff,
		MaxAgeDays:    maxAge,
		MaxBatchBytes: s.cfg.MaxBatchBytes,
		Location:      s.loc,
		Now:           s.now,
		Version: core.VersionInfo{
			DBVersion:      store.SchemaVersion,
			ProgramName:    ProgramName,
			ProgramVersion: s.version,
		},
		Progress: func(st core.Stats) {
			logger.Info("progress",
				"records", humanize.Comma(int64(st.Records)),
				"entries", st.Entries,
				"read_pct", list.Progress(),
				"written", humanize.Bytes(uint64(st.StatementBytes)),
			)
		},
		ProgressEvery: 50000,
	}

	logger.Info("conversion started",
		"mode", opts.Mode(),
		"file", path,
		"size", humanize.Bytes(uint64(list.Size)),
		"max_age_days", maxAge,
	)

	var res *core.Result
	err = s.tx(ctx, func(c Catalog) error {
		if !diff {
			if err := c.Truncate(ctx); err != nil {
				return err
			}
		}
		r, err := core.Run(ctx, core.NewJSONStream(list), c, opts)
		if err != nil {
			return err
		}
		if !diff && r.Stats.Entries < s.cfg.MinEntries {
			return fmt.Errorf("%w: %d entries, need %d", core.ErrListTooSmall, r.Stats.Entries, s.cfg.MinEntries)
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return res, nil
}

// ResolveDiff reports whether a requested diff load can proceed. A diff only
// applies on top of a full list downloaded on the same calendar day.
func ResolveDiff(lastFull, now time.Time, loc *time.Location) bool {
	if lastFull.IsZero() {
		return false
	}
	y1, m1, d1 := lastFull.In(loc).Date()
	y2, m2, d2 := now.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// CronDue reports whether a scheduled run may start, given the last download
// of the list the run would fetch.
func CronDue(lastDownload, now time.Time, interval time.Duration) bool {
	if lastDownload.IsZero() {
		return true
	}
	// Allow a minute of ticker jitter.
	return now.Sub(lastDownload) >= interval-time.Minute
}

func modeName(diff bool) string {
	if diff {
		return "diff"
	}
	return "full"
}
