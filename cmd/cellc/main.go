// Command cellc translates cardiac cell models into C++ classes.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/cellc/internal/cli"
)

func main() {
	// Use a minimal logger until the root command configures one.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	switch {
	case err == nil:
	case cli.Reported(err):
		os.Exit(cli.GetExitCode(err))
	default:
		os.Exit(cli.ExitCommandError)
	}
}

// run executes the command line. Commands report their own errors on
// out; only errors raised before a command runs (unknown flags or
// commands) are printed here.
func run(ctx context.Context, out, errOut io.Writer, args []string) error {
	cmd := cli.NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil && !cli.Reported(err) {
		fmt.Fprintln(errOut, "Error:", err)
	}
	return err
}
