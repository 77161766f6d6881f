// SPDX-License-Identifier: MIT

// Package engine implements the decision state machine of spec.md §4.3:
// given the key's persisted state and an incoming call's edge flags, decide
// whether the caller executes immediately, becomes the runner, attaches to
// an existing runner (last-call-wins), or is skipped outright.
//
// Reference: internal/stream/manager.go's explicit state enum
// (StateIdle/StateRunning/StateStopping) is the teacher's closest analogue
// to a hand-written state machine; this package generalizes that shape from
// FFmpeg process lifecycle to the debounce/throttle decision tree, since
// nothing in the corpus implements debounce/throttle coordination directly.
package engine

import (
	"errors"
	"fmt"

	"github.com/corvax-io/pacer/internal/clock"
	"github.com/corvax-io/pacer/internal/store"
)

// ErrUsage reports invalid invocation arguments (spec.md §7 UsageError,
// exit 78 at the CLI layer).
var ErrUsage = errors.New("engine: usage error")

// Request is a single invocation's inputs to the decision engine.
type Request struct {
	Key      store.Key
	DelayMS  int64
	Leading  bool
	Trailing bool
	NoWait   bool
	Argv     []string
	NowMS    int64
}

// Validate checks the two preconditions spec.md §4.3 requires, plus a
// non-empty id, before any state is touched.
func (r Request) Validate() error {
	if r.DelayMS <= 0 {
		return fmt.Errorf("%w: delay_ms must be a positive integer, got %d", ErrUsage, r.DelayMS)
	}
	if !r.Leading && !r.Trailing {
		return fmt.Errorf("%w: at least one of --leading, --trailing must be true", ErrUsage)
	}
	if r.Key.ID == "" {
		return fmt.Errorf("%w: id must not be empty", ErrUsage)
	}
	return nil
}

// Kind enumerates the terminal decisions of spec.md §4.3.
type Kind int

const (
	// KindExecuteLeadingOnly: caller runs the leading execution itself and
	// is done; no runner is created. Exit code: the child's exit code.
	KindExecuteLeadingOnly Kind = iota
	// KindExecuteLeadingThenRun: caller runs the leading execution itself,
	// then becomes the runner for the scheduled trailing execution.
	KindExecuteLeadingThenRun
	// KindBecomeRunner: caller becomes the runner without an immediate
	// leading execution. Exit code: 0 on a successful trailing execution.
	KindBecomeRunner
	// KindAttach: an existing runner owns this key; cmd blob and timing
	// were updated (last-call-wins). Exit code: 77.
	KindAttach
	// KindBusySkip: --no-wait observed a live runner; nothing was
	// mutated. Exit code: 76.
	KindBusySkip
)

// Decision is the outcome of Decide.
type Decision struct {
	Kind     Kind
	TargetMS int64 // deadline_ms or window_end_ms, meaningful for the *Run kinds
}

// Decide runs one invocation through the state machine for its key. It MUST
// be called with the key's state lock held; it performs whatever state
// mutation the transition requires before returning.
func Decide(st *store.Store, req Request) (Decision, error) {
	if err := req.Validate(); err != nil {
		return Decision{}, err
	}

	cur, err := st.ReadKeyState(req.Key)
	if err != nil {
		return Decision{}, err
	}

	liveRunner := cur.HasRunner() && clock.IsAlive(cur.Stamp)
	if !liveRunner && cur.HasRunner() {
		// Self-heal: the stamp names a dead process. Any caller may clear
		// it under the state lock (spec.md §7 Recovery policy).
		cur = cur.ClearRunner()
	}

	if liveRunner && req.NoWait {
		// BusySkip: exit 76 without touching cmd blob or timing
		// (invariant 3). This is the ONLY path that must not write the
		// cmd blob, so the write below is deliberately reached by every
		// other branch instead of being hoisted above this check.
		return Decision{Kind: KindBusySkip}, nil
	}

	// Throttle has a second way to be non-idle that carries no runner: a
	// leading=true, trailing=false window has nobody scheduled to wake and
	// clear it (executeLeadingThrottle never calls claimRunner on that
	// path), so liveRunner alone cannot tell "windowed" from "idle" here.
	// window_end_ms in the future means windowed regardless of who (if
	// anyone) owns it.
	windowed := req.Key.Mode == store.Throttle && !liveRunner && cur.WindowEndMS > req.NowMS

	if err := st.WriteCmdBlob(req.Key, req.Argv); err != nil {
		return Decision{}, fmt.Errorf("engine: persist cmd blob: %w", err)
	}

	if liveRunner || windowed {
		return attach(st, req, cur)
	}

	if req.Leading {
		return executeLeading(st, req, cur)
	}
	return becomeRunner(st, req, cur)
}

func attach(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	switch req.Key.Mode {
	case store.Debounce:
		return attachDebounce(st, req, cur)
	case store.Throttle:
		return attachThrottle(st, req, cur)
	default:
		return Decision{}, fmt.Errorf("%w: unknown mode %q", ErrUsage, req.Key.Mode)
	}
}

func executeLeading(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	switch req.Key.Mode {
	case store.Debounce:
		return executeLeadingDebounce(st, req, cur)
	case store.Throttle:
		return executeLeadingThrottle(st, req, cur)
	default:
		return Decision{}, fmt.Errorf("%w: unknown mode %q", ErrUsage, req.Key.Mode)
	}
}

func becomeRunner(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	switch req.Key.Mode {
	case store.Debounce:
		return becomeRunnerDebounce(st, req, cur)
	case store.Throttle:
		return becomeRunnerThrottle(st, req, cur)
	default:
		return Decision{}, fmt.Errorf("%w: unknown mode %q", ErrUsage, req.Key.Mode)
	}
}

// claimRunner stamps cur with the calling process's identity and persists
// it, making this invocation the key's runner.
func claimRunner(st *store.Store, cur store.KeyState) (store.KeyState, error) {
	stamp, err := clock.Self()
	if err != nil {
		return cur, fmt.Errorf("engine: stamp self: %w", err)
	}
	cur.PendingPID = stamp.PID
	cur.Stamp = stamp
	cur.Executing = false
	if err := st.WriteKeyState(cur); err != nil {
		return cur, err
	}
	return cur, nil
}
