// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/corvax-io/pacer/internal/cli"
	"github.com/corvax-io/pacer/internal/config"
	"github.com/corvax-io/pacer/internal/store"
	"github.com/corvax-io/pacer/internal/util"
)

// Version, GitCommit, BuildDate are set via -ldflags at release build time.
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main's body, extracted for testability: it never calls os.Exit
// itself so tests can assert on the returned code.
func run(args []string, stdout, stderr *os.File) int {
	cli.Version = Version

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "pacer: config: %v\n", err)
		return cli.ExitUsageError
	}

	debugLog, err := config.OpenDebugLog(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "pacer: debug log: %v\n", err)
		return cli.ExitIOError
	}
	tracker := util.NewResourceTracker()
	if debugLog != os.Stderr {
		tracker.TrackFile("debug-log", debugLog)
	}
	defer func() {
		for _, err := range tracker.CleanupAll() {
			fmt.Fprintf(stderr, "pacer: cleanup: %v\n", err)
		}
	}()

	st, err := store.Open(cfg.StateDir)
	if err != nil {
		fmt.Fprintf(stderr, "pacer: %v\n", err)
		return cli.ExitIOError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := cli.NewApp(st, stdout, stderr)
	if cfg.Debug {
		app.Debug = debugLog
	}
	return app.Run(ctx, args)
}
