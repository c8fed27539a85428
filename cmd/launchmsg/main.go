// launchmsg sends launch data messages to a service manager and serves a
// socket stub of one for local testing.
//
//	launchmsg send [--config f] [--socket p] [--native memory|liblaunch] [--input toml|json] [--format json|toml] <file|->
//	launchmsg serve [--config f] [--socket p] [--admin addr|off] [--id name]
//	launchmsg init [--output f] [--force]
//	launchmsg validate <file>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/spf13/pflag"
)

var (
	errUsage          = errors.New("usage")
	errUnknownCommand = errors.New("unknown command")
)

const usage = `usage: launchmsg <command> [flags]

commands:
  send      send a JSON or TOML literal and print the decoded reply
  serve     run the echo socket server and the admin HTTP surface
  init      write a config template
  validate  load and check a config file
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	fmt.Fprintf(os.Stderr, "launchmsg: %v\n", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var te *launch.TransportError
	switch {
	case errors.As(err, &te):
		return 3
	case errors.Is(err, errUsage), errors.Is(err, errUnknownCommand):
		return 2
	default:
		return 1
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errUsage
	}
	switch args[0] {
	case "send":
		return runSend(ctx, args[1:], stdin, stdout)
	case "serve":
		return runServe(ctx, args[1:])
	case "init":
		return runInit(args[1:], stdout)
	case "validate":
		return runValidate(args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, args[0])
	}
}
