// SPDX-License-Identifier: MIT

package engine

import "github.com/corvax-io/pacer/internal/store"

// attachThrottle implements spec.md §4.3.2's "windowed"/"running" rows: the
// cmd blob already won; window_end_ms is never moved by a late arrival,
// only the dirty flag records that a trailing execution is owed. The
// smart-skip reference moves to this call, so the window's own leading
// execution does not cancel the owed trailing one.
func attachThrottle(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	cur.Dirty = true
	cur.ArmedAtMS = req.NowMS
	if err := st.WriteKeyState(cur); err != nil {
		return Decision{}, err
	}
	return Decision{Kind: KindAttach}, nil
}

// executeLeadingThrottle implements the "idle, leading=true" row: the
// window opens now and last_exec_ms recording is the caller's
// responsibility once the leading child actually exits (see engine.RecordExec).
func executeLeadingThrottle(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	target := req.NowMS + req.DelayMS
	cur.WindowEndMS = target
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

// becomeRunnerThrottle implements the "idle, leading=false, trailing=true"
// row: the window opens now but nothing executes until it closes.
func becomeRunnerThrottle(st *store.Store, req Request, cur store.KeyState) (Decision, error) {
	target := req.NowMS + req.DelayMS
	cur.WindowEndMS = target
	cur.ArmedAtMS = req.NowMS
	cur.Dirty = true
	cur, err := claimRunner(st, cur)
	if err != nil {
		return Decision{}, err
	}
	_ = cur
	return Decision{Kind: KindBecomeRunner, TargetMS: target}, nil
}
