// Package lockstore manages the per-data-directory lock file that marks a
// directory as owned by a running instance.
//
// The lock is self-healing: liveness of the recorded pid is re-probed on
// every Inspect rather than trusted from disk, so a crashed instance's stale
// lock never blocks a new one and no external reaper is needed. Corrupt
// files are deleted and reported absent the same way.
//
// The Acquire path is deliberately check-then-write: two processes racing
// for the same directory are not excluded at the filesystem level. The tool
// is interactive and human-driven, so the window is accepted and documented
// rather than closed.
package lockstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dbnest/dbnest/internal/liveness"
)

// LockFileName is the fixed name of the lock file inside a data directory.
const LockFileName = "dbnest.lock"

// Record mirrors the on-disk lock file contents.
type Record struct {
	PID     int       `json:"pid"`
	Port    int       `json:"port"`
	Started time.Time `json:"started"`
}

// Store reads and writes per-directory lock files.
type Store struct {
	prober liveness.Prober
	log    *slog.Logger
}

// New creates a Store. A nil prober defaults to real process probing; a nil
// logger defaults to slog.Default().
func New(prober liveness.Prober, logger *slog.Logger) *Store {
	if prober == nil {
		prober = liveness.OS{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{prober: prober, log: logger}
}

// Path returns the lock file path for a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, LockFileName)
}

// Acquire writes a lock record for the given directory and returns the lock
// file path. Any existing file is overwritten; callers are expected to have
// checked for a live lock via Inspect first.
func (s *Store) Acquire(dataDir string, port, pid int) (string, error) {
	rec := Record{PID: pid, Port: port, Started: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode lock record: %w", err)
	}

	path := Path(dataDir)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write lock file %s: %w", path, err)
	}
	return path, nil
}

// Inspect reads the lock record for a directory. It returns nil when no
// live lock exists. Corrupt files and records whose pid is no longer alive
// are removed as a side effect and reported absent, so a subsequent Acquire
// can proceed.
func (s *Store) Inspect(dataDir string) (*Record, error) {
	path := Path(dataDir)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock file %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.PID <= 0 {
		s.log.Warn("removing corrupt lock file", "path", path)
		if rmErr := removeIfPresent(path); rmErr != nil {
			return nil, rmErr
		}
		return nil, nil
	}

	if !s.prober.Alive(rec.PID) {
		s.log.Debug("removing stale lock file", "path", path, "pid", rec.PID)
		if rmErr := removeIfPresent(path); rmErr != nil {
			return nil, rmErr
		}
		return nil, nil
	}

	return &rec, nil
}

// Release removes the lock file for a directory. A missing lock is not an
// error; Release is safe to call repeatedly.
func (s *Store) Release(dataDir string) error {
	return removeIfPresent(Path(dataDir))
}

func removeIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file %s: %w", path, err)
	}
	return nil
}
