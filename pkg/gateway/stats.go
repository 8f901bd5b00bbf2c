package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Stats are the gateway's lifetime counters. They survive restarts via an
// atomically written JSON file in the workspace.
type Stats struct {
	path string

	commands atomic.Int64
	batches  atomic.Int64
	errors   atomic.Int64
}

// persistedStats is the on-disk face of Stats.
type persistedStats struct {
	Commands  int64     `json:"commands_total"`
	Batches   int64     `json:"batches_total"`
	Errors    int64     `json:"errors_total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStats returns counters backed by the file at path, loading any
// previously persisted totals. A missing or unreadable file starts from
// zero.
func NewStats(path string) *Stats {
	s := &Stats{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var p persistedStats
	if err := json.Unmarshal(data, &p); err != nil {
		return s
	}
	s.commands.Store(p.Commands)
	s.batches.Store(p.Batches)
	s.errors.Store(p.Errors)
	return s
}

// CommandExecuted bumps the command counter, and the error counter when
// the outcome failed.
func (s *Stats) CommandExecuted(success bool) {
	s.commands.Add(1)
	if !success {
		s.errors.Add(1)
	}
}

// BatchSubmitted bumps the batch counter.
func (s *Stats) BatchSubmitted() {
	s.batches.Add(1)
}

// Commands reports total commands executed.
func (s *Stats) Commands() int64 { return s.commands.Load() }

// Batches reports total batches submitted.
func (s *Stats) Batches() int64 { return s.batches.Load() }

// Errors reports total failed command executions.
func (s *Stats) Errors() int64 { return s.errors.Load() }

// Flush persists the counters atomically: temp file in the same
// directory, then rename, so a crash never leaves a torn stats file.
func (s *Stats) Flush() error {
	if s.path == "" {
		return nil
	}
	p := persistedStats{
		Commands:  s.commands.Load(),
		Batches:   s.batches.Load(),
		Errors:    s.errors.Load(),
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".stats-*.json")
	if err != nil {
		return fmt.Errorf("create temp stats: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close stats: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace stats: %w", err)
	}
	return nil
}
