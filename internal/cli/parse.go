// SPDX-License-Identifier: MIT

package cli

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/corvax-io/pacer/internal/engine"
	"github.com/corvax-io/pacer/internal/store"
)

// Command is the parsed shape of one invocation, one of the five grammar
// forms in spec.md §6.
type Command struct {
	Kind CommandKind

	Invoke InvokeArgs
	Reset  ResetArgs
	Status StatusArgs
}

// CommandKind selects which grammar form Command carries.
type CommandKind int

const (
	CommandInvoke CommandKind = iota
	CommandStatus
	CommandReset
	CommandResetAll
	CommandVersion
	CommandHelp
)

// InvokeArgs is `<tool> [MODE] [OPTIONS] <id> <delay_ms> <command> [args…]`.
type InvokeArgs struct {
	Mode      store.Mode
	ID        string
	DelayMS   int64
	Leading   bool
	Trailing  bool
	NoWait    bool
	TimeoutMS int64
	Argv      []string
}

// ResetArgs is `<tool> --reset <mode> <id>` or `<tool> --reset-all <id>`.
type ResetArgs struct {
	Mode store.Mode // unset for reset-all
	ID   string
}

// StatusArgs is `<tool> --status [--json] [mode id]`.
type StatusArgs struct {
	Mode store.Mode // zero value: all modes
	ID   string     // empty: all ids
	JSON bool       // render via status.RenderJSON instead of RenderTable
}

// Parse parses args (excluding argv[0]) into a Command.
func Parse(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: no arguments given", engine.ErrUsage)
	}

	switch args[0] {
	case "--version":
		return Command{Kind: CommandVersion}, nil
	case "--help", "-h":
		return Command{Kind: CommandHelp}, nil
	case "--status":
		return parseStatus(args[1:])
	case "--reset":
		return parseReset(args[1:])
	case "--reset-all":
		return parseResetAll(args[1:])
	default:
		return parseInvoke(args)
	}
}

func parseStatus(rest []string) (Command, error) {
	fs := flag.NewFlagSet("pacer --status", flag.ContinueOnError)
	fs.Usage = func() {}
	jsonOut := fs.Bool("json", false, "render the report as JSON instead of a table")

	if err := fs.Parse(rest); err != nil {
		return Command{}, fmt.Errorf("%w: %v", engine.ErrUsage, err)
	}

	args := fs.Args()
	switch len(args) {
	case 0:
		return Command{Kind: CommandStatus, Status: StatusArgs{JSON: *jsonOut}}, nil
	case 2:
		mode, err := parseMode(args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandStatus, Status: StatusArgs{Mode: mode, ID: args[1], JSON: *jsonOut}}, nil
	default:
		return Command{}, fmt.Errorf("%w: --status takes zero or two arguments (mode id)", engine.ErrUsage)
	}
}

func parseReset(rest []string) (Command, error) {
	if len(rest) != 2 {
		return Command{}, fmt.Errorf("%w: --reset requires <mode> <id>", engine.ErrUsage)
	}
	mode, err := parseMode(rest[0])
	if err != nil {
		return Command{}, err
	}
	if rest[1] == "" {
		return Command{}, fmt.Errorf("%w: id must not be empty", engine.ErrUsage)
	}
	return Command{Kind: CommandReset, Reset: ResetArgs{Mode: mode, ID: rest[1]}}, nil
}

func parseResetAll(rest []string) (Command, error) {
	if len(rest) != 1 {
		return Command{}, fmt.Errorf("%w: --reset-all requires <id>", engine.ErrUsage)
	}
	if rest[0] == "" {
		return Command{}, fmt.Errorf("%w: id must not be empty", engine.ErrUsage)
	}
	return Command{Kind: CommandResetAll, Reset: ResetArgs{ID: rest[0]}}, nil
}

func parseMode(s string) (store.Mode, error) {
	switch s {
	case "debounce", "--debounce":
		return store.Debounce, nil
	case "throttle", "--throttle":
		return store.Throttle, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", engine.ErrUsage, s)
	}
}

// parseInvoke implements the two-pass style: flags are parsed first, the
// positional id/delay_ms/command is whatever flag.Parse leaves behind.
func parseInvoke(args []string) (Command, error) {
	fs := flag.NewFlagSet("pacer", flag.ContinueOnError)
	fs.Usage = func() {}

	debounce := fs.Bool("debounce", false, "debounce mode (default)")
	throttle := fs.Bool("throttle", false, "throttle mode")
	leading := fs.String("leading", "", "true|false")
	trailing := fs.String("trailing", "", "true|false")
	noWait := fs.Bool("no-wait", false, "return immediately (exit 76) if a runner is already active")
	timeoutMS := fs.Int64("timeout", 0, "kill the child after this many milliseconds")

	if err := fs.Parse(args); err != nil {
		return Command{}, fmt.Errorf("%w: %v", engine.ErrUsage, err)
	}

	if *debounce && *throttle {
		return Command{}, fmt.Errorf("%w: --debounce and --throttle are mutually exclusive", engine.ErrUsage)
	}
	mode := store.Debounce
	if *throttle {
		mode = store.Throttle
	}

	// Default: trailing-only, the classic debounce/throttle shape. Either
	// flag may override its own edge independently.
	leadingVal, trailingVal := false, true
	if *leading != "" {
		v, err := strconv.ParseBool(*leading)
		if err != nil {
			return Command{}, fmt.Errorf("%w: --leading: %v", engine.ErrUsage, err)
		}
		leadingVal = v
	}
	if *trailing != "" {
		v, err := strconv.ParseBool(*trailing)
		if err != nil {
			return Command{}, fmt.Errorf("%w: --trailing: %v", engine.ErrUsage, err)
		}
		trailingVal = v
	}

	rest := fs.Args()
	if len(rest) < 3 {
		return Command{}, fmt.Errorf("%w: expected <id> <delay_ms> <command> [args...]", engine.ErrUsage)
	}
	id := rest[0]
	delayMS, err := strconv.ParseInt(rest[1], 10, 64)
	if err != nil {
		return Command{}, fmt.Errorf("%w: delay_ms must be an integer: %v", engine.ErrUsage, err)
	}

	return Command{
		Kind: CommandInvoke,
		Invoke: InvokeArgs{
			Mode:      mode,
			ID:        id,
			DelayMS:   delayMS,
			Leading:   leadingVal,
			Trailing:  trailingVal,
			NoWait:    *noWait,
			TimeoutMS: *timeoutMS,
			Argv:      rest[2:],
		},
	}, nil
}
