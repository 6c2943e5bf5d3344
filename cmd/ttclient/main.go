package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ttnews/ttclient/cmd/ttclient/commands"
)

var (
	version = "dev"
	commit  = "none"
)

// exitLoginRequired is the exit status when the session expired and the user
// has to run 'ttclient auth login'.
const exitLoginRequired = 2

func main() {
	// Ctrl+C aborts the command's API calls. An aborted call is reported as
	// canceled, never as an expired session.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx, os.Args, version, commit)
	if err == nil {
		return
	}

	slog.ErrorContext(ctx, "Command failed", "error", err)
	if errors.Is(err, commands.ErrLoginRequired) {
		os.Exit(exitLoginRequired)
	}
	os.Exit(1)
}
