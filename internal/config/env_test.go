// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PACER_STATE_DIR", "PACER_DEBUG", "PACER_DEBUG_LOG"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StateDir != "" || cfg.Debug || cfg.DebugLog != "" {
		t.Fatalf("Load() = %+v, want zero value", cfg)
	}
}

func TestLoadStateDirAndDebug(t *testing.T) {
	t.Setenv("PACER_STATE_DIR", "/tmp/custom-pacer")
	t.Setenv("PACER_DEBUG", "true")
	t.Setenv("PACER_DEBUG_LOG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StateDir != "/tmp/custom-pacer" {
		t.Fatalf("StateDir = %q, want /tmp/custom-pacer", cfg.StateDir)
	}
	if !cfg.Debug {
		t.Fatal("Debug = false, want true")
	}
}

func TestLoadDebugAcceptsOneAndZero(t *testing.T) {
	t.Setenv("PACER_STATE_DIR", "")
	t.Setenv("PACER_DEBUG_LOG", "")

	t.Setenv("PACER_DEBUG", "1")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Fatal("PACER_DEBUG=1 should enable debug")
	}

	t.Setenv("PACER_DEBUG", "0")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Debug {
		t.Fatal("PACER_DEBUG=0 should disable debug")
	}
}

func TestLoadRejectsInvalidDebug(t *testing.T) {
	t.Setenv("PACER_DEBUG", "maybe")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for an unparsable PACER_DEBUG value")
	}
}

func TestOpenDebugLogDefaultsToStderr(t *testing.T) {
	f, err := OpenDebugLog(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if f != os.Stderr {
		t.Fatalf("OpenDebugLog with no path = %v, want os.Stderr", f)
	}
}

func TestOpenDebugLogOpensConfiguredPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacer-debug.log")
	f, err := OpenDebugLog(Config{DebugLog: path})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Name() != path {
		t.Fatalf("opened %q, want %q", f.Name(), path)
	}
}
