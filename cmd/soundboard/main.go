package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func run(ctx context.Context, args []string) error {
	cmd := cli.Command{
		Name:    "soundboard",
		Usage:   "Record sounds and play them back with global hotkeys",
		Version: fmt.Sprintf("%s (%s)", Version, Commit),
		Flags:   allFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			color.NoColor = color.NoColor || cmd.Bool(FlagNoColor)
			return ctx, nil
		},
		Action:   runTray,
		Commands: commands(),
	}

	if err := cmd.Run(ctx, args); err != nil {
		return fmt.Errorf("command: %w", err)
	}

	return nil
}

func main() {
	// Settings may come from a .env file next to the binary's working dir
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, color.YellowString("warning: failed to read .env: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.RedString("ERROR: %v", err))
		os.Exit(1)
	}
}
