// SPDX-License-Identifier: MIT

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/corvax-io/pacer/internal/clock"
	"github.com/corvax-io/pacer/internal/engine"
	"github.com/corvax-io/pacer/internal/executor"
	"github.com/corvax-io/pacer/internal/filelock"
	"github.com/corvax-io/pacer/internal/gc"
	"github.com/corvax-io/pacer/internal/runner"
	"github.com/corvax-io/pacer/internal/status"
	"github.com/corvax-io/pacer/internal/store"
	"github.com/corvax-io/pacer/internal/util"
)

// Version is overridden at link time via -ldflags "-X ...cli.Version=...".
var Version = "dev"

// App wires the engine, runner, executor, gc, and status packages together
// for a single invocation, matching the shape of the teacher's cmd/*
// main.go dispatch functions but generalized to pacer's five grammar
// forms instead of one fixed command.
type App struct {
	Store    *store.Store
	Executor *executor.Executor
	GC       *gc.Sweeper
	Stdout   io.Writer
	Stderr   io.Writer
	Debug    *os.File
}

// NewApp constructs an App bound to st.
func NewApp(st *store.Store, stdout, stderr io.Writer) *App {
	return &App{
		Store:    st,
		Executor: executor.New(st),
		GC:       gc.New(st),
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// Run parses args and dispatches, returning the process exit code. It
// never panics out to the caller: a panic anywhere in dispatch is
// recovered and reported as ExitIOError, the same safety net
// internal/util.SafeGo gives pacer's one background goroutine (the
// suture supervisor started by runner.RunSupervised).
func (a *App) Run(ctx context.Context, args []string) int {
	cmd, err := Parse(args)
	if err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitCode(err)
	}

	var code int
	if perr := util.RecoverToPanic(func() error {
		code = a.dispatch(ctx, cmd)
		return nil
	}); perr != nil {
		fmt.Fprintln(a.Stderr, perr)
		return ExitIOError
	}
	return code
}

func (a *App) dispatch(ctx context.Context, cmd Command) int {
	defer a.sweepOpportunistically(ctx)

	switch cmd.Kind {
	case CommandInvoke:
		return a.invoke(ctx, cmd.Invoke)
	case CommandStatus:
		return a.status(cmd.Status)
	case CommandReset:
		return a.reset(ctx, cmd.Reset)
	case CommandResetAll:
		return a.resetAll(ctx, cmd.Reset)
	case CommandVersion:
		fmt.Fprintln(a.Stdout, Version)
		return ExitOK
	case CommandHelp:
		fmt.Fprint(a.Stdout, usageText)
		return ExitOK
	default:
		fmt.Fprintln(a.Stderr, "pacer: internal error: unknown command kind")
		return ExitIOError
	}
}

// sweepOpportunistically runs the GC near the end of any invocation
// (spec.md §4.6). A sweep failure is logged to the debug stream (if any)
// but never changes the invocation's own exit code — GC is maintenance,
// not the operation the caller asked for.
func (a *App) sweepOpportunistically(ctx context.Context) {
	_ = util.RecoverToPanic(func() error {
		if err := a.GC.Run(ctx); err != nil && a.Debug != nil {
			fmt.Fprintf(a.Debug, "pacer: gc sweep: %v\n", err)
		}
		return nil
	})
}

func (a *App) invoke(ctx context.Context, in InvokeArgs) int {
	key := store.Key{Mode: in.Mode, ID: in.ID}

	lock, err := filelock.NewStateLock(a.Store.StateLockPath(key))
	if err != nil {
		fmt.Fprintln(a.Stderr, &IOError{Err: err})
		return ExitIOError
	}
	if err := lock.Acquire(ctx); err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitCode(err)
	}

	decision, err := engine.Decide(a.Store, engine.Request{
		Key: key, DelayMS: in.DelayMS, Leading: in.Leading, Trailing: in.Trailing,
		NoWait: in.NoWait, Argv: in.Argv, NowMS: clock.NowMS(),
	})
	lock.Release()
	if err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitCode(err)
	}

	switch decision.Kind {
	case engine.KindBusySkip:
		return ExitBusySkip
	case engine.KindAttach:
		return ExitQueued
	case engine.KindExecuteLeadingOnly:
		return a.runChildOnce(ctx, key, in)
	case engine.KindExecuteLeadingThenRun:
		// The leading execution's own exit code is discarded here: it is
		// not this invocation's exit code, and a failing leading run must
		// not cancel the separately-scheduled trailing one.
		a.runChildOnce(ctx, key, in)
		return a.runLoop(ctx, key, in)
	case engine.KindBecomeRunner:
		return a.runLoop(ctx, key, in)
	default:
		fmt.Fprintln(a.Stderr, "pacer: internal error: unknown decision kind")
		return ExitIOError
	}
}

func (a *App) runChildOnce(ctx context.Context, key store.Key, in InvokeArgs) int {
	execStart := clock.NowMS()
	code, err := a.Executor.Run(ctx, key, in.ID, in.TimeoutMS)
	if err != nil {
		fmt.Fprintln(a.Stderr, &IOError{Err: err})
		return ExitIOError
	}
	if err := engine.RecordExec(a.Store, in.ID, execStart); err != nil {
		fmt.Fprintln(a.Stderr, &IOError{Err: err})
		return ExitIOError
	}
	return code
}

// runLoop hands the key off to a supervised Runner so a panic inside the
// wake/sleep/execute loop restarts it (re-reading state from disk) instead
// of taking this invocation down.
func (a *App) runLoop(ctx context.Context, key store.Key, in InvokeArgs) int {
	r := runner.New(a.Store, a.Executor, key, in.TimeoutMS)
	res, err := runner.RunSupervised(ctx, r)
	if err != nil {
		fmt.Fprintln(a.Stderr, &IOError{Err: err})
		return ExitIOError
	}
	if res.Err != nil {
		fmt.Fprintln(a.Stderr, &IOError{Err: res.Err})
		return ExitIOError
	}
	return res.ExitCode
}

func (a *App) reset(ctx context.Context, args ResetArgs) int {
	if err := Reset(ctx, a.Store, store.Key{Mode: args.Mode, ID: args.ID}); err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitCode(err)
	}
	return ExitOK
}

func (a *App) resetAll(ctx context.Context, args ResetArgs) int {
	if err := ResetAll(ctx, a.Store, args.ID); err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitCode(err)
	}
	return ExitOK
}

func (a *App) status(args StatusArgs) int {
	rep, err := status.Collect(a.Store)
	if err != nil {
		fmt.Fprintln(a.Stderr, &IOError{Err: err})
		return ExitIOError
	}

	if args.ID != "" {
		filtered := rep
		filtered.Keys = nil
		for _, k := range rep.Keys {
			if k.ID == args.ID && (args.Mode == "" || k.Mode == args.Mode) {
				filtered.Keys = append(filtered.Keys, k)
			}
		}
		rep = filtered
	}

	if args.JSON {
		if err := status.RenderJSON(a.Stdout, rep); err != nil {
			fmt.Fprintln(a.Stderr, &IOError{Err: err})
			return ExitIOError
		}
		return ExitOK
	}

	out, ok := a.Stdout.(*os.File)
	color := ok && status.IsColorTerminal(out)
	status.RenderTable(a.Stdout, color, rep)
	return ExitOK
}

const usageText = `pacer - debounce/throttle coordinator for arbitrary commands

Usage:
  pacer [MODE] [OPTIONS] <id> <delay_ms> <command> [args...]
  pacer --status [--json] [mode id]
  pacer --reset <mode> <id>
  pacer --reset-all <id>
  pacer --version | --help

Modes:
  --debounce (default) | --throttle

Options:
  --leading true|false
  --trailing true|false
  --timeout <ms>
  --no-wait
`
