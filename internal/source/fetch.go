package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ulikunitz/xz"

	"github.com/JonMunkholm/mediathek-loader/internal/core"
	"github.com/JonMunkholm/mediathek-loader/internal/logging"
)

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Mirrors    []string
	FailLimit  int           // mirrors with this many consecutive failures are skipped
	UserAgent  string
	Timeout    time.Duration // per request, 0 means none
	CheckBytes int64         // archive prefix fetched by RemoteMetadata
	Client     *http.Client  // optional, overrides Timeout
}

// Fetcher downloads list archives from a set of mirrors. Mirrors are tried in
// random order; consecutive failures are counted per mirror and a mirror at
// the limit is skipped until every mirror is.
type Fetcher struct {
	cfg    FetchConfig
	client *http.Client
	perm   func(n int) []int

	mu       sync.Mutex
	failures map[string]int
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg FetchConfig) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.FailLimit <= 0 {
		cfg.FailLimit = 3
	}
	if cfg.CheckBytes <= 0 {
		cfg.CheckBytes = 8192
	}
	return &Fetcher{
		cfg:      cfg,
		client:   client,
		perm:     rand.Perm,
		failures: make(map[string]int),
	}
}

// Failures returns a copy of the failure counters.
func (f *Fetcher) Failures() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]int, len(f.failures))
	for k, v := range f.failures {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// SetFailures restores counters saved by an earlier process.
func (f *Fetcher) SetFailures(m map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = make(map[string]int, len(m))
	for k, v := range m {
		f.failures[k] = v
	}
}

// candidates returns the mirrors to try, in random order.
func (f *Fetcher) candidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var usable []string
	for _, m := range f.cfg.Mirrors {
		if f.failures[m] < f.cfg.FailLimit {
			usable = append(usable, m)
		}
	}
	if len(usable) == 0 {
		// All mirrors are at the limit; start over rather than stall.
		for _, m := range f.cfg.Mirrors {
			f.failures[m] = 0
		}
		usable = append(usable, f.cfg.Mirrors...)
	}

	out := make([]string, len(usable))
	for i, j := range f.perm(len(usable)) {
		out[i] = usable[j]
	}
	return out
}

func (f *Fetcher) record(mirror string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.failures, mirror)
		return
	}
	f.failures[mirror]++
}

// each calls fn with every candidate mirror until one succeeds.
func (f *Fetcher) each(ctx context.Context, name string, fn func(mirror string) error) (string, error) {
	mirrors := f.candidates()
	if len(mirrors) == 0 {
		return "", core.ErrNoMirror
	}

	logger := logging.FromContext(ctx)
	var errs []error
	for _, m := range mirrors {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := fn(m)
		f.record(m, err)
		if err == nil {
			return m, nil
		}
		logger.Warn("mirror failed", "mirror", m, "file", name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", m, err))
	}
	return "", fmt.Errorf("%w: %w", core.ErrNoMirror, errors.Join(errs...))
}

func (f *Fetcher) get(ctx context.Context, mirror, name string, limit int64) (*http.Response, error) {
	u, err := url.JoinPath(mirror, name)
	if err != nil {
		return nil, fmt.Errorf("mirror url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if limit > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", limit-1))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp, nil
}

// Download fetches name from a mirror into dest. The body is written to a
// temporary file next to dest and renamed on success, so an interrupted
// download never replaces a good list.
func (f *Fetcher) Download(ctx context.Context, name, dest string) (int64, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	var written int64

	mirror, err := f.each(ctx, name, func(mirror string) error {
		n, err := f.downloadFrom(ctx, mirror, name, dest)
		written = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", name, err)
	}

	logger.Info("list downloaded",
		"mirror", mirror,
		"file", name,
		"size", humanize.Bytes(uint64(written)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return written, nil
}

func (f *Fetcher) downloadFrom(ctx context.Context, mirror, name, dest string) (int64, error) {
	resp, err := f.get(ctx, mirror, name, 0)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create work dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, fmt.Errorf("install %s: %w", name, err)
	}
	return n, nil
}

// RemoteMetadata reads the header of the remote archive name by fetching and
// decompressing only its first CheckBytes.
func (f *Fetcher) RemoteMetadata(ctx context.Context, name string, schema *core.Schema, loc *time.Location) (core.ListMetadata, error) {
	var meta core.ListMetadata
	_, err := f.each(ctx, name, func(mirror string) error {
		resp, err := f.get(ctx, mirror, name, f.cfg.CheckBytes)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		zr, err := xz.NewReader(io.LimitReader(resp.Body, f.cfg.CheckBytes))
		if err != nil {
			return fmt.Errorf("xz: %w", err)
		}
		meta, err = ReadMetadata(core.NewBOMSkippingReader(zr), schema, loc)
		return err
	})
	if err != nil {
		return core.ListMetadata{}, fmt.Errorf("remote header of %s: %w", name, err)
	}
	return meta, nil
}
