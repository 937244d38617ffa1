// Package state persists what the loader remembers between runs.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the content of the state file.
type State struct {
	LastFullDownload  time.Time      `yaml:"last_full_download,omitempty"`
	LastDiffDownload  time.Time      `yaml:"last_diff_download,omitempty"`
	LastRun           time.Time      `yaml:"last_run,omitempty"`
	LoadedListDate    time.Time      `yaml:"loaded_list_date,omitempty"`
	LoadedListVersion string         `yaml:"loaded_list_version,omitempty"`
	MirrorFailures    map[string]int `yaml:"mirror_failures,omitempty"`
	LastResult        *Summary       `yaml:"last_result,omitempty"`
}

// Summary describes one finished run.
type Summary struct {
	RunID      string    `yaml:"run_id" json:"run_id"`
	Mode       string    `yaml:"mode" json:"mode"`
	Started    time.Time `yaml:"started" json:"started"`
	Finished   time.Time `yaml:"finished" json:"finished"`
	ListDate   time.Time `yaml:"list_date,omitempty" json:"list_date,omitempty"`
	Entries    int       `yaml:"entries" json:"entries"`
	Updated    int       `yaml:"updated" json:"updated"`
	Inserted   int       `yaml:"inserted" json:"inserted"`
	Skipped    int       `yaml:"skipped_no_location" json:"skipped_no_location"`
	Filtered   int       `yaml:"filtered_by_age" json:"filtered_by_age"`
	Batches    int       `yaml:"batches" json:"batches"`
	Channels   int       `yaml:"channels" json:"channels"`
	Outcome    string    `yaml:"outcome" json:"outcome"`
	Error      string    `yaml:"error,omitempty" json:"error,omitempty"`
	ErrorCode  string    `yaml:"error_code,omitempty" json:"error_code,omitempty"`
	DurationMS int64     `yaml:"duration_ms" json:"duration_ms"`
}

// Run outcomes.
const (
	OutcomeLoaded   = "loaded"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
	OutcomeDownload = "downloaded"
)

// Load reads the state file at path. A missing file yields an empty state.
func Load(path string) (*State, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return &s, nil
}

// Save writes s to path, replacing the previous file atomically.
func (s *State) Save(path string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install state: %w", err)
	}
	return nil
}
