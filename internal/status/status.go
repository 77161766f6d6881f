// SPDX-License-Identifier: MIT

// Package status enumerates the state store for spec.md §4.7's Status
// operation: every key's mode, liveness, pid, last execution time,
// scheduled time, age, dirty flag, and pending command.
//
// Reference: internal/diagnostics.DiagnosticReport / CheckResult / Summary
// and internal/health.Response are the teacher's two closest shapes for
// "enumerate current state and report it"; this package generalizes their
// report/summary split from audio-device health checks to pacer's
// per-key coordination state.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corvax-io/pacer/internal/clock"
	"github.com/corvax-io/pacer/internal/store"
)

// KeyStatus is one key's enumerated state.
type KeyStatus struct {
	Mode        store.Mode `json:"mode"`
	ID          string     `json:"id"`
	Alive       bool       `json:"alive"`
	PID         int        `json:"pid,omitempty"`
	LastExecMS  int64      `json:"last_exec_ms,omitempty"`
	ScheduledMS int64      `json:"scheduled_ms,omitempty"`
	AgeMS       int64      `json:"age_ms"`
	Dirty       bool       `json:"dirty,omitempty"`
	Cmd         []string   `json:"cmd,omitempty"`
}

// Summary totals the report.
type Summary struct {
	TotalKeys  int `json:"total_keys"`
	LiveCount  int `json:"live_count"`
	DirtyCount int `json:"dirty_count"`
}

// Report is the full Status output.
type Report struct {
	Generated time.Time   `json:"generated"`
	Keys      []KeyStatus `json:"keys"`
	Summary   Summary     `json:"summary"`
}

// Collect enumerates every key in st, best-effort: entries with unreadable
// or corrupt state are skipped rather than failing the whole report (this
// operation is read-only and diagnostic, per spec.md §4.7).
func Collect(st *store.Store) (Report, error) {
	entries, err := os.ReadDir(st.KeyDir())
	if err != nil {
		if os.IsNotExist(err) {
			return Report{Generated: nowFunc()}, nil
		}
		return Report{}, fmt.Errorf("status: read key dir: %w", err)
	}

	now := nowFunc()
	report := Report{Generated: now}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".state") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(st.KeyDir(), entry.Name()))
		if err != nil {
			continue
		}
		var ks store.KeyState
		if err := json.Unmarshal(data, &ks); err != nil {
			continue
		}
		if ks.ID == "" || !ks.Mode.Valid() {
			continue
		}

		key := store.Key{Mode: ks.Mode, ID: ks.ID}
		cmd, _ := st.ReadCmdBlob(key)
		lastExec, _ := st.ReadLastExecMS(ks.ID)

		alive := ks.HasRunner() && clock.IsAlive(ks.Stamp)
		scheduled := ks.DeadlineMS
		if ks.Mode == store.Throttle {
			scheduled = ks.WindowEndMS
		}

		entry := KeyStatus{
			Mode:        ks.Mode,
			ID:          ks.ID,
			Alive:       alive,
			LastExecMS:  lastExec,
			ScheduledMS: scheduled,
			AgeMS:       now.UnixMilli() - lastExec,
			Dirty:       ks.Dirty,
			Cmd:         cmd,
		}
		if alive {
			entry.PID = ks.PendingPID
		}
		report.Keys = append(report.Keys, entry)

		report.Summary.TotalKeys++
		if alive {
			report.Summary.LiveCount++
		}
		if ks.Dirty {
			report.Summary.DirtyCount++
		}
	}

	return report, nil
}

// nowFunc is a var so tests can pin Report.Generated deterministically.
var nowFunc = time.Now
