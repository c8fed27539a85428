package main

import (
	"github.com/danmuck/launchkit/internal/config"
	"github.com/danmuck/launchkit/internal/logging"
	"github.com/danmuck/launchkit/internal/protocol/session"
	"github.com/spf13/pflag"
)

// commonFlags are shared by send and serve.
type commonFlags struct {
	configPath string
	socket     string
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "config file (defaults apply when empty)")
	fs.StringVar(&c.socket, "socket", "", "unix socket path; overrides the transport table")
}

// load resolves the config file, then flag overrides.
func (c *commonFlags) load() (config.Config, error) {
	cfg := config.DefaultConfig()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else {
		logging.ApplyEnvOverrides(&cfg.Log)
	}
	if c.socket != "" {
		cfg.Session.Network = session.NetworkUnix
		cfg.Session.Address = c.socket
		cfg.Session.TLS = session.TLSConfig{}
	}
	return cfg, nil
}
