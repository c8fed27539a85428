package main

import (
	"context"

	"github.com/danmuck/launchkit/internal/admin"
	"github.com/danmuck/launchkit/internal/logging"
	"github.com/danmuck/launchkit/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// adminOff disables the admin listener.
const adminOff = "off"

func runServe(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("launchmsg serve", pflag.ContinueOnError)
	var common commonFlags
	common.add(fs)
	adminAddr := fs.String("admin", "", "admin listen address, or off (default from config)")
	id := fs.String("id", "launchmsg", "server id reported by admin routes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if fs.Changed("admin") {
		cfg.AdminListen = *adminAddr
	}
	cfg.Log.App = "launchmsg"
	logging.Apply(cfg.Log)

	srv := session.NewServer(cfg.Session, session.EchoHandler{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if cfg.AdminListen != "" && cfg.AdminListen != adminOff {
		a := admin.New(*id, cfg.AdminListen, srv, cfg.CORSOrigins)
		g.Go(func() error {
			return a.Serve(gctx)
		})
	}
	err = g.Wait()
	log.Info().Str("server", *id).Err(err).Msg("launchmsg serve stopped")
	return err
}
