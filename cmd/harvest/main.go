package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harvestlab/harvest/internal/app"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "harvest"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Execute(ctx, Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(ctx context.Context, version, build, programName string, args []string) error {
	rootCmd := app.NewRootCommand(version, build, programName)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
