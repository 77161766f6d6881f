// SPDX-License-Identifier: MIT

package store

import "github.com/corvax-io/pacer/internal/clock"

// KeyState is the persisted per-key record (spec.md §3 "Per-key state").
type KeyState struct {
	Mode Mode   `json:"mode"`
	ID   string `json:"id"`

	// DeadlineMS is meaningful for Debounce: earliest wall-clock ms at
	// which the trailing execution may fire.
	DeadlineMS int64 `json:"deadline_ms,omitempty"`

	// WindowEndMS is meaningful for Throttle: end of the current window.
	WindowEndMS int64 `json:"window_end_ms,omitempty"`

	// ArmedAtMS is the wall-clock time of the call that most recently set
	// the currently-effective DeadlineMS/WindowEndMS or, for Throttle, most
	// recently marked the window dirty. The runner loop uses
	// it as the smart-skip reference point (spec.md §4.4 step 4): a
	// same-id execution recorded at or after this moment means this
	// runner's firing is redundant.
	ArmedAtMS int64 `json:"armed_at_ms,omitempty"`

	// Dirty is meaningful for Throttle: a call arrived after the leading
	// execution in the current window, so a trailing execution is owed.
	Dirty bool `json:"dirty,omitempty"`

	// PendingPID is the PID of the current runner, or 0 if none.
	PendingPID int `json:"pending_pid,omitempty"`

	// Stamp identifies the runner named by PendingPID, guarding against
	// PID reuse (spec.md §4.1).
	Stamp clock.Stamp `json:"runner_stamp,omitempty"`

	// Executing is true once the runner has committed to firing and handed
	// off to the Executor, distinguishing the "armed"/"windowed" state
	// (timer pending, deadline/window still movable) from "running" (child
	// spawned, timing fields frozen) in spec.md §4.3.1/§4.3.2.
	Executing bool `json:"executing,omitempty"`
}

// HasRunner reports whether this state names a runner at all (regardless
// of liveness — callers should verify with clock.IsAlive(st.Stamp)).
func (st KeyState) HasRunner() bool {
	return st.PendingPID != 0 && !st.Stamp.IsZero()
}

// ClearRunner returns a copy of st with the runner slots cleared.
func (st KeyState) ClearRunner() KeyState {
	st.PendingPID = 0
	st.Stamp = clock.Stamp{}
	return st
}
