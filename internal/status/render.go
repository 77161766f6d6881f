// SPDX-License-Identifier: MIT

package status

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

func msToTime(ms int64) time.Time { return time.UnixMilli(ms) }

// RenderJSON writes rep to w as indented JSON (the `--status --json` form).
func RenderJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	aliveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	deadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	dirtyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// IsColorTerminal reports whether f is a terminal pacer should colorize
// output for.
func IsColorTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// RenderTable writes rep to w as a human-readable table. color gates
// lipgloss styling, set by the caller from IsColorTerminal(os.Stdout).
func RenderTable(w io.Writer, color bool, rep Report) {
	style := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	header := fmt.Sprintf("%-9s %-20s %-6s %-7s %-10s %-10s %s", "MODE", "ID", "ALIVE", "PID", "LAST_EXEC", "SCHEDULED", "CMD")
	fmt.Fprintln(w, style(headerStyle, header))

	for _, k := range rep.Keys {
		aliveText := "no"
		aliveRendered := style(deadStyle, aliveText)
		if k.Alive {
			aliveText = "yes"
			aliveRendered = style(aliveStyle, aliveText)
		}

		lastExec := "never"
		if k.LastExecMS > 0 {
			lastExec = humanize.Time(msToTime(k.LastExecMS))
		}
		scheduled := "-"
		if k.ScheduledMS > 0 {
			scheduled = humanize.Time(msToTime(k.ScheduledMS))
		}

		pid := "-"
		if k.PID != 0 {
			pid = fmt.Sprintf("%d", k.PID)
		}

		cmd := strings.Join(k.Cmd, " ")
		if k.Dirty {
			cmd = style(dirtyStyle, cmd+" (dirty)")
		}

		fmt.Fprintf(w, "%-9s %-20s %-6s %-7s %-10s %-10s %s\n",
			k.Mode, k.ID, aliveRendered, pid, lastExec, scheduled, cmd)
	}

	fmt.Fprintf(w, "\n%d keys, %d alive, %d dirty\n",
		rep.Summary.TotalKeys, rep.Summary.LiveCount, rep.Summary.DirtyCount)
}
