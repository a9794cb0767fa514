// Package main provides smpctl, a command line client for devices speaking SMP over UDP.
//
// Usage:
//
//	smpctl --address 192.0.2.1:1337 <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: the request failed
//   - 2: invalid usage
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:           "smpctl",
		Usage:          "Simple Management Protocol client",
		Flags:          globalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			echoCommand(),
			paramsCommand(),
			resetCommand(),
			uploadCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler prints err and exits with the code it carries, 1 by default.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		fmt.Fprintln(os.Stderr, exitCoder.Error())
		os.Exit(exitCoder.ExitCode())
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
