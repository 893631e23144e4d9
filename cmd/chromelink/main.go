// File: cmd/chromelink/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/chromelink/cmd"
	"github.com/xkilldash9x/chromelink/internal/observability"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitPanic       = 2
	exitInterrupted = 130
)

// Replaced in tests.
var (
	osExit  = os.Exit
	execute = cmd.Execute
)

func main() {
	defer handlePanic()

	// SIGINT and SIGTERM cancel the in-flight invocation.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(ctx, execute(ctx)))
}

// exitCode maps the outcome of a run to the process exit status.
func exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return exitInterrupted
	default:
		return exitFailure
	}
}

// handlePanic flushes logs and reports the stack before exiting.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()
		fmt.Fprintf(os.Stderr, "panic: %v\n\n%s\n", r, debug.Stack())
		osExit(exitPanic)
	}
}
