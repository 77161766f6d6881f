// SPDX-License-Identifier: MIT

// Package store implements the on-disk state store described in spec.md
// §3 and §4.2: per-key state (timing fields, runner stamp, pending pid),
// per-key command blobs, and per-id last-execution timestamps, all written
// atomically via rename-from-temp-sibling so a concurrent reader never
// observes a torn write.
//
// Reference: internal/config/config.go Save (hand-rolled createTemp + Sync +
// Chmod + rename) generalizes here to github.com/google/renameio/v2, which
// gives the same atomicity guarantee without re-deriving it by hand.
package store

import (
	"crypto/sha1" //nolint:gosec // content-addressing only, not a security boundary
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// DefaultRoot is the default state directory when no override is configured.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "pacer")
}

// Store is a handle on a state-store directory.
type Store struct {
	Root string
}

// Open validates root and returns a Store rooted there. Per spec.md §4.2,
// the directory MUST be real, not a symlink; reusing a symlinked path could
// let two unrelated invocations silently coordinate through different
// filesystems than they believe they share.
func Open(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot()
	}
	if err := os.MkdirAll(root, 0o755); err != nil { //nolint:gosec // coordination dir needs multi-user access like lock dirs elsewhere in this codebase
		return nil, fmt.Errorf("store: create root: %w", err)
	}
	info, err := os.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("store: stat root: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("store: root %s is a symbolic link, not a real directory", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store: root %s is not a directory", root)
	}
	for _, sub := range []string{"k", "i"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil { //nolint:gosec
			return nil, fmt.Errorf("store: create %s: %w", sub, err)
		}
	}
	return &Store{Root: root}, nil
}

func hashOf(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	return fmt.Sprintf("%x", sum)
}

func (s *Store) keyBase(k Key) string {
	return filepath.Join(s.Root, "k", hashOf(string(k.Mode)+"/"+k.ID))
}

func (s *Store) idBase(id string) string {
	return filepath.Join(s.Root, "i", hashOf(id))
}

// StatePath returns the per-key state record path.
func (s *Store) StatePath(k Key) string { return s.keyBase(k) + ".state" }

// CmdPath returns the per-key command blob path.
func (s *Store) CmdPath(k Key) string { return s.keyBase(k) + ".cmd" }

// StateLockPath returns the per-(mode,id) state lock file path.
func (s *Store) StateLockPath(k Key) string { return s.keyBase(k) + ".lock" }

// LastExecPath returns the per-id last-execution record path.
func (s *Store) LastExecPath(id string) string { return s.idBase(id) + ".lastexec" }

// RunLockPath returns the per-id run lock file path.
func (s *Store) RunLockPath(id string) string { return s.idBase(id) + ".runlock" }

// GCMarkerPath and GCLockPath are process-wide, not per-key or per-id.
func (s *Store) GCMarkerPath() string { return filepath.Join(s.Root, ".gc-marker") }
func (s *Store) GCLockPath() string   { return filepath.Join(s.Root, ".gc.lock") }

// KeyDir and IDDir expose the two subdirectories the GC sweep and the
// status enumerator walk.
func (s *Store) KeyDir() string { return filepath.Join(s.Root, "k") }
func (s *Store) IDDir() string  { return filepath.Join(s.Root, "i") }

// ReadKeyState reads the persisted state for k. A missing file is not an
// error: it returns the zero-value KeyState, matching "per-key state is
// created lazily on first invocation" (spec.md §3 Lifecycle).
func (s *Store) ReadKeyState(k Key) (KeyState, error) {
	data, err := os.ReadFile(s.StatePath(k))
	if err != nil {
		if os.IsNotExist(err) {
			return KeyState{Mode: k.Mode, ID: k.ID}, nil
		}
		return KeyState{}, fmt.Errorf("store: read state %s: %w", k, err)
	}
	var st KeyState
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt or half-initialized record is treated as absent rather
		// than fatal: any caller may self-heal stale state under the state
		// lock (spec.md §7 Recovery policy).
		return KeyState{Mode: k.Mode, ID: k.ID}, nil
	}
	return st, nil
}

// WriteKeyState persists st atomically. Callers MUST hold the state lock
// for st's key, or use a rename-based write outside it per spec.md §4.2;
// this function is the latter.
func (s *Store) WriteKeyState(st KeyState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("store: marshal state: %w", err)
	}
	path := s.StatePath(Key{Mode: st.Mode, ID: st.ID})
	if err := renameio.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // coordination state is not secret
		return fmt.Errorf("store: write state %s: %w", path, err)
	}
	return nil
}

// ReadCmdBlob reads and decodes the command blob for k. Absent file decodes
// to a nil argv.
func (s *Store) ReadCmdBlob(k Key) ([]string, error) {
	data, err := os.ReadFile(s.CmdPath(k))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read cmd %s: %w", k, err)
	}
	return DecodeArgv(data), nil
}

// WriteCmdBlob encodes and atomically persists argv for k ("every caller"
// writes this field per spec.md §3 — last-call-wins).
func (s *Store) WriteCmdBlob(k Key, argv []string) error {
	path := s.CmdPath(k)
	if err := renameio.WriteFile(path, EncodeArgv(argv), 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("store: write cmd %s: %w", path, err)
	}
	return nil
}

// ReadLastExecMS reads the per-id last-execution timestamp. Absent file
// reads as 0, meaning "never executed".
func (s *Store) ReadLastExecMS(id string) (int64, error) {
	data, err := os.ReadFile(s.LastExecPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: read last-exec %s: %w", id, err)
	}
	var rec lastExecRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, nil
	}
	return rec.LastExecMS, nil
}

type lastExecRecord struct {
	LastExecMS int64 `json:"last_exec_ms"`
}

// WriteLastExecMS atomically bumps the per-id last-execution timestamp.
// Per the monotonic-non-decreasing invariant (spec.md §3), callers should
// only ever pass a value >= the current one; WriteLastExecMS enforces that
// here so no caller can accidentally regress it.
func (s *Store) WriteLastExecMS(id string, execMS int64) error {
	current, err := s.ReadLastExecMS(id)
	if err != nil {
		return err
	}
	if execMS < current {
		execMS = current
	}
	data, err := json.Marshal(lastExecRecord{LastExecMS: execMS})
	if err != nil {
		return fmt.Errorf("store: marshal last-exec: %w", err)
	}
	path := s.LastExecPath(id)
	if err := renameio.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("store: write last-exec %s: %w", path, err)
	}
	return nil
}

// RemoveKey deletes every per-(mode,id) file for k. last_exec_ms is
// per-id and is never touched here (spec.md §4.7 Reset preserves it).
func (s *Store) RemoveKey(k Key) error {
	for _, p := range []string{s.StatePath(k), s.CmdPath(k), s.StateLockPath(k)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove %s: %w", p, err)
		}
	}
	return nil
}

// RemoveID deletes the per-id last_exec_ms record and run-lock file
// (spec.md §4.7 Reset-all).
func (s *Store) RemoveID(id string) error {
	for _, p := range []string{s.LastExecPath(id), s.RunLockPath(id)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove %s: %w", p, err)
		}
	}
	return nil
}
