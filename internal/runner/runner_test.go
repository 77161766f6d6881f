// SPDX-License-Identifier: MIT

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/corvax-io/pacer/internal/engine"
	"github.com/corvax-io/pacer/internal/executor"
	"github.com/corvax-io/pacer/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return st
}

func becomeRunner(t *testing.T, st *store.Store, key store.Key, nowMS, delayMS int64, argv []string) engine.Decision {
	t.Helper()
	d, err := engine.Decide(st, engine.Request{
		Key: key, DelayMS: delayMS, Trailing: true, Argv: argv, NowMS: nowMS,
	})
	if err != nil {
		t.Fatalf("engine.Decide: %v", err)
	}
	if d.Kind != engine.KindBecomeRunner {
		t.Fatalf("Decide Kind = %v, want KindBecomeRunner", d.Kind)
	}
	return d
}

func TestDebounceRunnerFiresOnceAfterDeadline(t *testing.T) {
	st := openStore(t)
	key := store.Key{Mode: store.Debounce, ID: "run-d1"}
	becomeRunner(t, st, key, clock0(), 80, []string{"true"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := Run(ctx, st, executor.New(st), key, 0)
	if res.Err != nil {
		t.Fatalf("runner error: %v", res.Err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}

	final, err := st.ReadKeyState(key)
	if err != nil {
		t.Fatal(err)
	}
	if final.HasRunner() {
		t.Fatal("runner slot not cleared after completion")
	}
}

func TestDebounceRunnerUsesLastCallArgv(t *testing.T) {
	st := openStore(t)
	key := store.Key{Mode: store.Debounce, ID: "run-d2"}
	becomeRunner(t, st, key, clock0(), 60, []string{"sh", "-c", "exit 0"})

	// A second call attaches and replaces the cmd blob before the runner
	// wakes (invariant 4: last-call-wins).
	d, err := engine.Decide(st, engine.Request{
		Key: key, DelayMS: 60, Trailing: true,
		Argv: []string{"sh", "-c", "exit 5"}, NowMS: clock0() + 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != engine.KindAttach {
		t.Fatalf("Kind = %v, want KindAttach", d.Kind)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := Run(ctx, st, executor.New(st), key, 0)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.ExitCode != 5 {
		t.Fatalf("exit code = %d, want 5 (the attached call's argv)", res.ExitCode)
	}
}

func TestThrottleLeadingThenTrailingThenIdle(t *testing.T) {
	st := openStore(t)
	key := store.Key{Mode: store.Throttle, ID: "run-t1"}

	d, err := engine.Decide(st, engine.Request{
		Key: key, DelayMS: 80, Leading: true, Trailing: true,
		Argv: []string{"true"}, NowMS: clock0(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != engine.KindExecuteLeadingThenRun {
		t.Fatalf("Kind = %v, want KindExecuteLeadingThenRun", d.Kind)
	}

	if _, err := engine.Decide(st, engine.Request{
		Key: key, DelayMS: 80, Trailing: true,
		Argv: []string{"sh", "-c", "exit 3"}, NowMS: clock0() + 10,
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := Run(ctx, st, executor.New(st), key, 0)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("trailing exit code = %d, want 3", res.ExitCode)
	}

	final, err := st.ReadKeyState(key)
	if err != nil {
		t.Fatal(err)
	}
	if final.HasRunner() || final.Dirty {
		t.Fatalf("state not settled to idle: %+v", final)
	}
}

func TestSmartSkipStopsDebounceRunnerWithoutExecuting(t *testing.T) {
	st := openStore(t)
	key := store.Key{Mode: store.Debounce, ID: "run-skip"}
	becomeRunner(t, st, key, clock0(), 50, []string{"sh", "-c", "echo should-not-run; exit 9"})

	if err := engine.RecordExec(st, "run-skip", clock0()+5); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := Run(ctx, st, executor.New(st), key, 0)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0 (smart-skipped)", res.ExitCode)
	}

	final, err := st.ReadKeyState(key)
	if err != nil {
		t.Fatal(err)
	}
	if final.HasRunner() {
		t.Fatal("runner slot not cleared after smart-skip")
	}
}

// clock0 anchors each test's first call to the current wall clock so
// debounce deadlines / throttle windows land a few tens of milliseconds in
// the future.
func clock0() int64 { return time.Now().UnixMilli() }
