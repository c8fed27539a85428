package main

import (
	"fmt"
	"io"

	"github.com/danmuck/launchkit/internal/config"
	"github.com/spf13/pflag"
)

func runInit(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("launchmsg init", pflag.ContinueOnError)
	output := fs.StringP("output", "o", "launchkit.toml", "output path for the config template")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.WriteTemplate(*output, *force); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote config template to %s\n", *output)
	return nil
}

func runValidate(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("launchmsg validate", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: validate takes one config path", errUsage)
	}
	cfg, err := config.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "validated %s (native=%s %s %s)\n", fs.Arg(0), cfg.Native, cfg.Session.Network, cfg.Session.Address)
	return nil
}
