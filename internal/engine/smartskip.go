// SPDX-License-Identifier: MIT

package engine

import "github.com/corvax-io/pacer/internal/store"

// SmartSkip reports whether a scheduled execution for id may be skipped
// because some invocation — in either mode — already executed at or after
// the reference time the runner armed against (spec.md §4.4 step 4, "smart
// skip"). It does not mutate state; callers decide what to do with the
// answer.
func SmartSkip(st *store.Store, id string, armedAtMS int64) (bool, error) {
	lastExecMS, err := st.ReadLastExecMS(id)
	if err != nil {
		return false, err
	}
	return lastExecMS >= armedAtMS, nil
}

// RecordExec persists the moment a child actually started executing for id,
// across both modes, enforcing the monotonic-non-decrease guarantee at the
// store layer (store.WriteLastExecMS).
func RecordExec(st *store.Store, id string, execMS int64) error {
	return st.WriteLastExecMS(id, execMS)
}
