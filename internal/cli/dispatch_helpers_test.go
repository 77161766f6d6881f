// SPDX-License-Identifier: MIT

package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"

	"github.com/corvax-io/pacer/internal/clock"
)

// sleepCommand returns an unstarted long-running child used by tests that
// need a genuinely live PID to stamp a runner with.
func sleepCommand(t *testing.T) *exec.Cmd {
	t.Helper()
	return exec.Command("sleep", "30")
}

// stampFor builds a clock.Stamp for an arbitrary live pid (not just the
// calling process, which is all clock.Self covers), by reading the same
// /proc/<pid>/stat field clock.IsAlive compares against.
func stampFor(t *testing.T, pid int) clock.Stamp {
	t.Helper()
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		t.Fatalf("read /proc/%d/stat: %v", pid, err)
	}
	s := string(data)
	close := strings.LastIndexByte(s, ')')
	if close < 0 {
		t.Fatalf("unexpected /proc/%d/stat format", pid)
	}
	fields := strings.Fields(s[close+2:])
	const starttimeIndex = 19
	if len(fields) <= starttimeIndex {
		t.Fatalf("short /proc/%d/stat", pid)
	}
	if _, err := strconv.ParseInt(fields[starttimeIndex], 10, 64); err != nil {
		t.Fatalf("invalid starttime for pid %d: %v", pid, err)
	}
	return clock.Stamp{PID: pid, StartMS: clock.NowMS(), OSStartToken: fields[starttimeIndex]}
}
