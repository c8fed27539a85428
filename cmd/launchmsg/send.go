package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/launchkit/internal/config"
	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/logging"
	"github.com/danmuck/launchkit/internal/message"
	"github.com/danmuck/launchkit/internal/native/liblaunch"
	"github.com/danmuck/launchkit/internal/native/memory"
	"github.com/danmuck/launchkit/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func runSend(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("launchmsg send", pflag.ContinueOnError)
	var common commonFlags
	common.add(fs)
	nativeName := fs.String("native", "", "handle implementation: memory|liblaunch (default from config)")
	input := fs.String("input", "", "literal format: toml|json (default from file extension, toml for stdin)")
	output := fs.String("format", "json", "reply format: json|toml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: send takes one message file or -", errUsage)
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *nativeName != "" {
		cfg.Native = strings.ToLower(*nativeName)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	cfg.Log.App = "launchmsg"
	logging.Apply(cfg.Log)

	src := fs.Arg(0)
	inFmt, err := inputFormat(*input, src)
	if err != nil {
		return err
	}
	outFmt, err := message.ParseFormat(*output)
	if err != nil {
		return err
	}
	data, err := readSource(src, stdin)
	if err != nil {
		return err
	}
	lit, err := message.Parse(data, inFmt)
	if err != nil {
		return err
	}

	native, closeNative, err := openNative(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeNative()

	reply, err := launch.NewMarshaler(native).Msg(lit)
	if err != nil {
		return err
	}
	out, err := message.Render(reply, outFmt)
	if err != nil {
		return err
	}
	_, err = stdout.Write(out)
	return err
}

// inputFormat prefers the flag, then the file extension.
func inputFormat(flagValue, src string) (message.Format, error) {
	if flagValue != "" {
		return message.ParseFormat(flagValue)
	}
	if strings.EqualFold(filepath.Ext(src), ".json") {
		return message.FormatJSON, nil
	}
	return message.FormatTOML, nil
}

func readSource(src string, stdin io.Reader) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(src)
}

// openNative returns the configured native and a release func. The memory
// native carries messages over a session client.
func openNative(ctx context.Context, cfg config.Config) (launch.Native, func(), error) {
	if cfg.Native == config.NativeLiblaunch {
		n, err := liblaunch.Open()
		if err != nil {
			return nil, nil, err
		}
		return n, func() {}, nil
	}
	client, err := session.Dial(ctx, cfg.Session)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s %s: %w", cfg.Session.Network, cfg.Session.Address, err)
	}
	n := memory.New(memory.WithName("launchmsg"), memory.WithTransport(client))
	return n, func() {
		if err := client.Close(); err != nil {
			log.Debug().Err(err).Msg("launchmsg close session")
		}
	}, nil
}
