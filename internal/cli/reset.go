// SPDX-License-Identifier: MIT

package cli

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/corvax-io/pacer/internal/clock"
	"github.com/corvax-io/pacer/internal/filelock"
	"github.com/corvax-io/pacer/internal/store"
)

// resetGrace is how long a reset waits for a signaled runner to exit
// before escalating, mirroring the executor's child-timeout grace.
const resetGrace = 100 * time.Millisecond

// Reset implements spec.md §4.7 Reset: terminate a live, stamp-verified
// runner for key, then delete all per-key files. last_exec_ms is
// preserved.
func Reset(ctx context.Context, st *store.Store, key store.Key) error {
	lock, err := filelock.NewStateLock(st.StateLockPath(key))
	if err != nil {
		return &IOError{Err: err}
	}
	if err := lock.Acquire(ctx); err != nil {
		return err
	}
	defer lock.Release()

	state, err := st.ReadKeyState(key)
	if err != nil {
		return &IOError{Err: err}
	}

	if state.HasRunner() && clock.IsAlive(state.Stamp) {
		if err := terminate(state.Stamp); err != nil {
			return &IOError{Err: err}
		}
	}

	if err := st.RemoveKey(key); err != nil {
		return &IOError{Err: err}
	}
	return nil
}

// ResetAll implements spec.md §4.7 Reset-all: reset both modes for id,
// then delete the per-id files.
func ResetAll(ctx context.Context, st *store.Store, id string) error {
	for _, mode := range []store.Mode{store.Debounce, store.Throttle} {
		if err := Reset(ctx, st, store.Key{Mode: mode, ID: id}); err != nil {
			return err
		}
	}
	if err := st.RemoveID(id); err != nil {
		return &IOError{Err: err}
	}
	return nil
}

// terminate sends SIGTERM to the process named by stamp, waits resetGrace,
// and escalates to SIGKILL if it is still alive. The stamp is re-verified
// before every signal so a PID recycled mid-reset is never touched.
func terminate(stamp clock.Stamp) error {
	proc, err := os.FindProcess(stamp.PID)
	if err != nil {
		return fmt.Errorf("reset: find process %d: %w", stamp.PID, err)
	}
	if !clock.IsAlive(stamp) {
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("reset: SIGTERM %d: %w", stamp.PID, err)
	}

	deadline := time.Now().Add(resetGrace)
	for time.Now().Before(deadline) {
		if !clock.IsAlive(stamp) {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !clock.IsAlive(stamp) {
		return nil
	}
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("reset: SIGKILL %d: %w", stamp.PID, err)
	}
	return nil
}
