// SPDX-License-Identifier: MIT

// Package gc implements the opportunistic stale-file sweep of spec.md
// §4.6: called near the end of any invocation, guarded by a non-blocking
// lock and a rate-limiting marker file, it removes per-key file sets that
// are both old and ownerless.
//
// Reference: internal/stream/logrotate.go's age-based file walk
// (ListRotatedFiles / CleanupLogs: os.ReadDir + per-entry mtime comparison
// against a threshold) is the teacher's closest analogue; this package
// generalizes that walk-and-age-check shape from rotated log files to
// per-key coordination files, adding the liveness check spec.md §4.1
// requires before anything is removed.
package gc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/corvax-io/pacer/internal/clock"
	"github.com/corvax-io/pacer/internal/filelock"
	"github.com/corvax-io/pacer/internal/store"
)

// DefaultSweepInterval is the minimum time between sweeps (spec.md §4.6,
// "default 10 min").
const DefaultSweepInterval = 10 * time.Minute

// DefaultStaleThreshold is the minimum file age before it becomes eligible
// for removal (spec.md §4.6, "default 60 min").
const DefaultStaleThreshold = 60 * time.Minute

// Sweeper runs the opportunistic sweep against a store.
type Sweeper struct {
	Store          *store.Store
	SweepInterval  time.Duration
	StaleThreshold time.Duration
}

// New returns a Sweeper using the spec's default intervals.
func New(st *store.Store) *Sweeper {
	return &Sweeper{Store: st, SweepInterval: DefaultSweepInterval, StaleThreshold: DefaultStaleThreshold}
}

type marker struct {
	LastSweepMS int64 `json:"last_sweep_ms"`
}

// Run attempts one opportunistic sweep. It is always safe to call: a busy
// dedicated lock or a too-recent marker both result in a clean no-op
// return, never an error a caller needs to act on.
func (s *Sweeper) Run(ctx context.Context) error {
	lock, err := filelock.NewStateLock(s.Store.GCLockPath())
	if err != nil {
		return fmt.Errorf("gc: open lock: %w", err)
	}
	if err := lock.AcquireWithin(ctx, 0); err != nil {
		if errors.Is(err, filelock.ErrContention) {
			return nil
		}
		return err
	}
	defer lock.Release()

	due, err := s.due()
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	if err := s.sweepKeyDir(); err != nil {
		return err
	}
	return s.writeMarker(clock.NowMS())
}

func (s *Sweeper) due() (bool, error) {
	data, err := os.ReadFile(s.Store.GCMarkerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("gc: read marker: %w", err)
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return true, nil
	}
	return clock.NowMS()-m.LastSweepMS >= s.SweepInterval.Milliseconds(), nil
}

func (s *Sweeper) writeMarker(nowMS int64) error {
	data, err := json.Marshal(marker{LastSweepMS: nowMS})
	if err != nil {
		return fmt.Errorf("gc: marshal marker: %w", err)
	}
	if err := renameio.WriteFile(s.Store.GCMarkerPath(), data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("gc: write marker: %w", err)
	}
	return nil
}

// sweepKeyDir removes per-key file triplets (.state/.cmd/.lock) whose
// state file is older than StaleThreshold and names no live runner. A
// key with a live runner is never touched, regardless of age.
func (s *Sweeper) sweepKeyDir() error {
	entries, err := os.ReadDir(s.Store.KeyDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("gc: read key dir: %w", err)
	}

	thresholdMS := s.StaleThreshold.Milliseconds()
	nowMS := clock.NowMS()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".state") {
			continue
		}
		statePath := filepath.Join(s.Store.KeyDir(), entry.Name())

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if nowMS-info.ModTime().UnixMilli() < thresholdMS {
			continue
		}

		if liveRunnerNames(statePath) {
			continue
		}

		base := strings.TrimSuffix(statePath, ".state")
		for _, ext := range []string{".state", ".cmd", ".lock"} {
			if err := os.Remove(base + ext); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("gc: remove %s: %w", base+ext, err)
			}
		}
	}
	return nil
}

func liveRunnerNames(statePath string) bool {
	data, err := os.ReadFile(statePath)
	if err != nil {
		return false
	}
	var st store.KeyState
	if err := json.Unmarshal(data, &st); err != nil {
		return false
	}
	return st.HasRunner() && clock.IsAlive(st.Stamp)
}
