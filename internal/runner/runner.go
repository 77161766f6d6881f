// SPDX-License-Identifier: MIT

// Package runner implements the wake/sleep/execute loop of spec.md §4.4:
// once an invocation has become the runner for a (mode, id) key, it owns
// scheduling the trailing (debounce) or windowed (throttle) execution and
// handing off to the executor.
//
// Reference: github.com/thejerf/suture/v4 is declared in the teacher's
// go.mod but never imported anywhere in the teacher tree — this package is
// the first to actually build the supervision tree it was brought in for,
// wrapping the single control-flow loop spec.md §5 requires in a
// suture.Service so a panicking runner is restarted rather than silently
// dying, the same safety net internal/util/panic.go's SafeGo gives
// goroutines elsewhere in this lineage.
package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/thejerf/suture/v4"

	"github.com/corvax-io/pacer/internal/clock"
	"github.com/corvax-io/pacer/internal/engine"
	"github.com/corvax-io/pacer/internal/executor"
	"github.com/corvax-io/pacer/internal/filelock"
	"github.com/corvax-io/pacer/internal/store"
	"github.com/corvax-io/pacer/internal/util"
)

// Result is a completed run's outcome.
type Result struct {
	ExitCode int
	Err      error
}

// Runner drives one key's scheduling loop to completion and reports the
// result on a buffered channel so the owning invocation can wait for it.
type Runner struct {
	Store     *store.Store
	Executor  *executor.Executor
	Key       store.Key
	TimeoutMS int64

	done chan Result
}

// New returns a Runner for key, ready to be run directly via (*Runner).Serve
// or added to a suture.Supervisor.
func New(st *store.Store, exec *executor.Executor, key store.Key, timeoutMS int64) *Runner {
	return &Runner{Store: st, Executor: exec, Key: key, TimeoutMS: timeoutMS, done: make(chan Result, 1)}
}

// String identifies this runner in suture's event log.
func (r *Runner) String() string { return fmt.Sprintf("runner(%s)", r.Key) }

// Serve implements suture.Service. It runs the loop to completion and
// publishes the Result; a restart after panic recovery starts a fresh pass
// that re-reads state from disk, so no in-memory progress is lost.
func (r *Runner) Serve(ctx context.Context) error {
	res := r.runLoop(ctx)
	select {
	case r.done <- res:
	default:
	}
	return res.Err
}

// Wait blocks until Serve publishes a Result or ctx is cancelled.
func (r *Runner) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-r.done:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Run drives the loop directly, without a supervisor — used by callers
// (and tests) that don't need restart-on-panic semantics.
func Run(ctx context.Context, st *store.Store, exec *executor.Executor, key store.Key, timeoutMS int64) Result {
	r := New(st, exec, key, timeoutMS)
	return r.runLoop(ctx)
}

// RunSupervised adds r to a fresh single-service suture supervisor and
// blocks for the result, giving the loop panic-recovery-with-restart
// semantics for the duration of one invocation. The supervisor itself runs
// on util.SafeGo so a panic escaping suture's own event loop — not just a
// panic in the Runner it supervises — cannot take the calling invocation
// down with it.
func RunSupervised(ctx context.Context, r *Runner) (Result, error) {
	sup := suture.New("pacer-runner", suture.Spec{})
	sup.Add(r)

	util.SafeGo(r.String(), io.Discard, func() { _ = sup.Serve(ctx) }, nil)

	return r.Wait(ctx)
}

// runLoop implements spec.md §4.4 steps 1-6. The state lock is taken and
// released around each non-blocking step and is never held across the
// timer sleep or the Executor call, matching §5's suspension-point rule.
func (r *Runner) runLoop(ctx context.Context) Result {
	lock, err := filelock.NewStateLock(r.Store.StateLockPath(r.Key))
	if err != nil {
		return Result{Err: err}
	}

	for {
		// Steps 1 & 3: compute (or recompute) the wait under the state lock.
		if err := lock.Acquire(ctx); err != nil {
			return Result{Err: err}
		}
		state, err := r.Store.ReadKeyState(r.Key)
		if err != nil {
			lock.Release()
			return Result{Err: err}
		}
		target := targetMS(state, r.Key.Mode)
		lock.Release()

		waitMS := target - clock.NowMS()
		if waitMS > 0 {
			if err := sleepCtx(ctx, waitMS); err != nil {
				return Result{Err: err}
			}
			continue
		}

		// Step 3 & 4: reacquire; if the target has advanced beyond now, a
		// concurrent attach pushed it out while we were sleeping — loop back
		// to step 1 and sleep again. Otherwise evaluate smart-skip.
		if err := lock.Acquire(ctx); err != nil {
			return Result{Err: err}
		}
		state, err = r.Store.ReadKeyState(r.Key)
		if err != nil {
			lock.Release()
			return Result{Err: err}
		}
		if targetMS(state, r.Key.Mode) > clock.NowMS() {
			lock.Release()
			continue
		}

		skip, err := engine.SmartSkip(r.Store, r.Key.ID, state.ArmedAtMS)
		if err != nil {
			lock.Release()
			return Result{Err: err}
		}
		if skip {
			err := r.Store.WriteKeyState(clearedForIdle(state))
			lock.Release()
			if err != nil {
				return Result{Err: err}
			}
			return Result{ExitCode: 0}
		}

		state.Executing = true
		state.Dirty = false
		if err := r.Store.WriteKeyState(state); err != nil {
			lock.Release()
			return Result{Err: err}
		}
		// Step 5: release the state lock before the blocking Executor call.
		lock.Release()

		execStart := clock.NowMS()
		code, err := r.Executor.Run(ctx, r.Key, r.Key.ID, r.TimeoutMS)
		if err != nil {
			return Result{Err: err}
		}

		// Step 6: reacquire, settle, decide whether to loop.
		if err := lock.Acquire(ctx); err != nil {
			return Result{Err: err}
		}
		again, err := r.settleAfterExec(execStart)
		lock.Release()
		if err != nil {
			return Result{Err: err}
		}
		if again {
			continue
		}
		return Result{ExitCode: code}
	}
}

func targetMS(state store.KeyState, mode store.Mode) int64 {
	if mode == store.Throttle {
		return state.WindowEndMS
	}
	return state.DeadlineMS
}

func clearedForIdle(state store.KeyState) store.KeyState {
	state = state.ClearRunner()
	state.Executing = false
	state.Dirty = false
	return state
}

// settleAfterExec applies spec.md §4.4 step 6 and, for throttle, the
// re-arm-or-idle decision from §4.3.2's "on runner wake" paragraph. Caller
// must hold the state lock. It reports whether the loop must continue
// (throttle re-arming for a further trailing execution owed by calls that
// arrived during the just-finished execution).
func (r *Runner) settleAfterExec(execStart int64) (bool, error) {
	if err := engine.RecordExec(r.Store, r.Key.ID, execStart); err != nil {
		return false, err
	}

	fresh, err := r.Store.ReadKeyState(r.Key)
	if err != nil {
		return false, err
	}

	if r.Key.Mode == store.Debounce || !fresh.Dirty {
		return false, r.Store.WriteKeyState(clearedForIdle(fresh))
	}

	// Throttle, dirty: a call attached while the child was running and is
	// owed a trailing execution. Re-arm with window_end_ms set to now, so
	// the owed execution runs on the next pass without waiting out a
	// further window.
	now := clock.NowMS()
	fresh.WindowEndMS = now
	fresh.ArmedAtMS = now
	fresh.Executing = false
	if err := r.Store.WriteKeyState(fresh); err != nil {
		return false, err
	}
	return true, nil
}
