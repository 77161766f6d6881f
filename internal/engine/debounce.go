// SPDX-License-Identifier: MIT

package engine

import "github.com/corvax-io/pacer/internal/store"

// attachDebounce implements spec.md §4.3.1's "armed"/"running" rows: the
// cmd blob (already rewritten by the caller) wins; the deadline only moves
// forward, and only while the runner has not yet committed to firing.
func attachDebounce(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	if !cur.Executing {
		target := req.NowMS + req.DelayMS
		if target > cur.DeadlineMS {
			cur.DeadlineMS = target
			cur.ArmedAtMS = req.NowMS
		}
		if err := st.WriteKeyState(cur); err != nil {
			return Decision{}, err
		}
	}
	return Decision{Kind: KindAttach}, nil
}

// executeLeadingDebounce implements the "idle, leading=true" row: the
// deadline is armed now and last_exec_ms recording is the caller's
// responsibility once the leading child actually exits (see engine.RecordExec).
func executeLeadingDebounce(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	target := req.NowMS + req.DelayMS
	cur.DeadlineMS = target
	cur.ArmedAtMS = req.NowMS
	cur.Dirty = false
	if err := st.WriteKeyState(cur); err != nil {
		return Decision{}, err
	}
	if !req.Trailing {
		return Decision{Kind: KindExecuteLeadingOnly}, nil
	}
	if _, err := claimRunner(st, cur); err != nil {
		return Decision{}, err
	}
	return Decision{Kind: KindExecuteLeadingThenRun, TargetMS: target}, nil
}

// becomeRunnerDebounce implements the "idle, leading=false, trailing=true"
// row: no immediate execution, the caller becomes the runner scheduled for
// now+delay.
func becomeRunnerDebounce(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	target := req.NowMS + req.DelayMS
	cur.DeadlineMS = target
	cur.ArmedAtMS = req.NowMS
	cur, err := claimRunner(st, cur)
	if err != nil {
		return Decision{}, err
	}
	_ = cur
	return Decision{Kind: KindBecomeRunner, TargetMS: target}, nil
}
