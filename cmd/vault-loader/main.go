package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"

	"github.com/systmms/vault-loader/cmd/vault-loader/commands"
	dserrors "github.com/systmms/vault-loader/internal/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Wipe the token enclave on Ctrl-C before exiting.
	memguard.CatchInterrupt()

	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
	}

	memguard.Purge()
	os.Exit(dserrors.ExitCode(err))
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	root := commands.NewRootCommand(commands.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	return root.ExecuteContext(ctx)
}
