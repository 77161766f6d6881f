// SPDX-License-Identifier: MIT

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/corvax-io/pacer/internal/store"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	var stdout, stderr bytes.Buffer
	return NewApp(st, &stdout, &stderr), &stdout, &stderr
}

func TestDispatchLeadingOnlyRunsImmediately(t *testing.T) {
	app, _, stderr := newTestApp(t)
	code := app.Run(context.Background(), []string{
		"--debounce", "--leading", "true", "--trailing", "false", "lead-key", "10", "true",
	})
	if code != ExitOK {
		t.Fatalf("code = %d, want %d, stderr=%s", code, ExitOK, stderr.String())
	}
}

func TestDispatchLeadingOnlyPropagatesChildExitCode(t *testing.T) {
	app, _, _ := newTestApp(t)
	code := app.Run(context.Background(), []string{
		"--debounce", "--leading", "true", "--trailing", "false", "fail-key", "10", "false",
	})
	if code != 1 {
		t.Fatalf("code = %d, want 1 (false's exit code)", code)
	}
}

func TestDispatchBecomeRunnerWaitsThenExecutes(t *testing.T) {
	app, _, stderr := newTestApp(t)
	start := time.Now()
	code := app.Run(context.Background(), []string{
		"--debounce", "runner-key", "50", "true",
	})
	if code != ExitOK {
		t.Fatalf("code = %d, want %d, stderr=%s", code, ExitOK, stderr.String())
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least the 50ms delay", elapsed)
	}
}

func TestDispatchAttachReturnsQueued(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	app := NewApp(st, &bytes.Buffer{}, &bytes.Buffer{})

	resultCh := make(chan int, 1)
	go func() {
		resultCh <- app.Run(context.Background(), []string{"--debounce", "attach-key", "80", "true"})
	}()
	time.Sleep(20 * time.Millisecond)

	attachApp := NewApp(st, &bytes.Buffer{}, &bytes.Buffer{})
	code := attachApp.Run(context.Background(), []string{"--debounce", "attach-key", "80", "true"})
	if code != ExitQueued {
		t.Fatalf("attach code = %d, want %d", code, ExitQueued)
	}

	if first := <-resultCh; first != ExitOK {
		t.Fatalf("runner invocation code = %d, want %d", first, ExitOK)
	}
}

func TestDispatchNoWaitBusySkip(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	runnerApp := NewApp(st, &bytes.Buffer{}, &bytes.Buffer{})
	resultCh := make(chan int, 1)
	go func() {
		resultCh <- runnerApp.Run(context.Background(), []string{"--debounce", "busy-key", "80", "true"})
	}()
	time.Sleep(20 * time.Millisecond)

	skipApp := NewApp(st, &bytes.Buffer{}, &bytes.Buffer{})
	code := skipApp.Run(context.Background(), []string{"--debounce", "--no-wait", "busy-key", "80", "true"})
	if code != ExitBusySkip {
		t.Fatalf("no-wait code = %d, want %d", code, ExitBusySkip)
	}

	<-resultCh
}

func TestDispatchUsageErrorExitCode(t *testing.T) {
	app, _, stderr := newTestApp(t)
	code := app.Run(context.Background(), []string{"--debounce", "k", "not-a-number", "true"})
	if code != ExitUsageError {
		t.Fatalf("code = %d, want %d", code, ExitUsageError)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected a usage error message on stderr")
	}
}

func TestDispatchStatusReportsKey(t *testing.T) {
	app, stdout, _ := newTestApp(t)
	if code := app.Run(context.Background(), []string{
		"--debounce", "--leading", "true", "--trailing", "false", "status-key", "10", "true",
	}); code != ExitOK {
		t.Fatalf("setup invoke failed: code=%d", code)
	}

	stdout.Reset()
	code := app.Run(context.Background(), []string{"--status"})
	if code != ExitOK {
		t.Fatalf("status code = %d, want %d", code, ExitOK)
	}
	if !strings.Contains(stdout.String(), "status-key") {
		t.Fatalf("status output missing key: %s", stdout.String())
	}
}

func TestDispatchStatusJSONReportsKey(t *testing.T) {
	app, stdout, _ := newTestApp(t)
	if code := app.Run(context.Background(), []string{
		"--debounce", "--leading", "true", "--trailing", "false", "status-json-key", "10", "true",
	}); code != ExitOK {
		t.Fatalf("setup invoke failed: code=%d", code)
	}

	stdout.Reset()
	code := app.Run(context.Background(), []string{"--status", "--json"})
	if code != ExitOK {
		t.Fatalf("status code = %d, want %d", code, ExitOK)
	}
	if !strings.Contains(stdout.String(), `"status-json-key"`) {
		t.Fatalf("status --json output missing key: %s", stdout.String())
	}
	if !strings.HasPrefix(strings.TrimSpace(stdout.String()), "{") {
		t.Fatalf("status --json output does not look like JSON: %s", stdout.String())
	}
}

func TestDispatchResetRemovesKey(t *testing.T) {
	app, _, stderr := newTestApp(t)
	if code := app.Run(context.Background(), []string{
		"--debounce", "--leading", "true", "--trailing", "false", "reset-key", "10", "true",
	}); code != ExitOK {
		t.Fatalf("setup invoke failed: code=%d stderr=%s", code, stderr.String())
	}

	code := app.Run(context.Background(), []string{"--reset", "debounce", "reset-key"})
	if code != ExitOK {
		t.Fatalf("reset code = %d, want %d, stderr=%s", code, ExitOK, stderr.String())
	}
}

func TestDispatchResetAll(t *testing.T) {
	app, _, stderr := newTestApp(t)
	if code := app.Run(context.Background(), []string{
		"--throttle", "--leading", "true", "--trailing", "false", "reset-all-key", "10", "true",
	}); code != ExitOK {
		t.Fatalf("setup invoke failed: code=%d stderr=%s", code, stderr.String())
	}

	code := app.Run(context.Background(), []string{"--reset-all", "reset-all-key"})
	if code != ExitOK {
		t.Fatalf("reset-all code = %d, want %d, stderr=%s", code, ExitOK, stderr.String())
	}
}

func TestDispatchVersionAndHelp(t *testing.T) {
	app, stdout, _ := newTestApp(t)
	Version = "test-version"

	if code := app.Run(context.Background(), []string{"--version"}); code != ExitOK {
		t.Fatalf("version code = %d, want %d", code, ExitOK)
	}
	if !strings.Contains(stdout.String(), "test-version") {
		t.Fatalf("stdout = %q, want it to contain the version", stdout.String())
	}

	stdout.Reset()
	if code := app.Run(context.Background(), []string{"--help"}); code != ExitOK {
		t.Fatalf("help code = %d, want %d", code, ExitOK)
	}
	if !strings.Contains(stdout.String(), "Usage") {
		t.Fatalf("stdout = %q, want usage text", stdout.String())
	}
}
