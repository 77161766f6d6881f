// SPDX-License-Identifier: MIT

package executor

import (
	"context"
	"testing"
	"time"

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

func TestRunSuccessExitCode(t *testing.T) {
	st := openStore(t)
	key := store.Key{Mode: store.Debounce, ID: "exec-ok"}
	if err := st.WriteCmdBlob(key, []string{"true"}); err != nil {
		t.Fatal(err)
	}

	e := New(st)
	code, err := e.Run(context.Background(), key, "exec-ok", 0)
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func TestRunNonZeroExitCode(t *testing.T) {
	st := openStore(t)
	key := store.Key{Mode: store.Debounce, ID: "exec-fail"}
	if err := st.WriteCmdBlob(key, []string{"sh", "-c", "exit 7"}); err != nil {
		t.Fatal(err)
	}

	e := New(st)
	code, err := e.Run(context.Background(), key, "exec-fail", 0)
	if err != nil {
		t.Fatal(err)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func TestRunEmptyBlobIsNoop(t *testing.T) {
	st := openStore(t)
	key := store.Key{Mode: store.Debounce, ID: "exec-empty"}

	e := New(st)
	code, err := e.Run(context.Background(), key, "exec-empty", 0)
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 for an empty cmd blob", code)
	}
}

// Scenario 5: a child outliving its timeout is terminated (SIGTERM, then
// SIGKILL after the grace), and the executor reports the fixed timeout exit
// code promptly.
func TestRunTimeoutKillsChild(t *testing.T) {
	st := openStore(t)
	key := store.Key{Mode: store.Debounce, ID: "exec-timeout"}
	if err := st.WriteCmdBlob(key, []string{"sleep", "10"}); err != nil {
		t.Fatal(err)
	}

	e := New(st)
	start := time.Now()
	code, err := e.Run(context.Background(), key, "exec-timeout", 200)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatal(err)
	}
	if code != ExitTimeout {
		t.Fatalf("exit code = %d, want %d", code, ExitTimeout)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("Run took %v, want well under the 10s sleep duration", elapsed)
	}
}

// Scenario 4: single-flight. Two concurrent Run calls for the same id must
// never overlap their child processes.
func TestRunSingleFlight(t *testing.T) {
	st := openStore(t)
	e := New(st)

	keyA := store.Key{Mode: store.Debounce, ID: "exec-sf"}
	keyB := store.Key{Mode: store.Throttle, ID: "exec-sf"}
	if err := st.WriteCmdBlob(keyA, []string{"sleep", "1"}); err != nil {
		t.Fatal(err)
	}
	if err := st.WriteCmdBlob(keyB, []string{"sleep", "1"}); err != nil {
		t.Fatal(err)
	}

	done := make(chan time.Duration, 2)
	run := func(key store.Key) {
		start := time.Now()
		if _, err := e.Run(context.Background(), key, "exec-sf", 0); err != nil {
			t.Error(err)
		}
		done <- time.Since(start)
	}
	go run(keyA)
	go run(keyB)

	var total time.Duration
	for i := 0; i < 2; i++ {
		total += <-done
	}
	// Serialized: the second run waits ~1s for the lock and then sleeps
	// 1s, so the sum is ~3s; two overlapping runs would sum to ~2s.
	if total < 2500*time.Millisecond {
		t.Fatalf("total duration %v suggests the two runs overlapped", total)
	}
}
