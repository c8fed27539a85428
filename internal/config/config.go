package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/launchkit/internal/logging"
	"github.com/danmuck/launchkit/internal/protocol/session"
)

const (
	NativeMemory    = "memory"
	NativeLiblaunch = "liblaunch"
)

// Config is the resolved launchmsg configuration.
type Config struct {
	Native      string
	Session     session.Config
	Log         logging.Config
	AdminListen string
	CORSOrigins []string
}

func DefaultConfig() Config {
	return Config{
		Native:      NativeMemory,
		Session:     session.DefaultConfig(),
		Log:         logging.DefaultConfig(logging.ProfileRuntime),
		AdminListen: "127.0.0.1:7010",
	}
}

type fileConfig struct {
	Native    string        `toml:"native"`
	Transport transportFile `toml:"transport"`
	Log       logFile       `toml:"log"`
	Admin     adminFile     `toml:"admin"`
}

type transportFile struct {
	Network          string  `toml:"network"`
	Address          string  `toml:"address"`
	ConnectTimeout   string  `toml:"connect_timeout"`
	HandshakeTimeout string  `toml:"handshake_timeout"`
	ReadTimeout      string  `toml:"read_timeout"`
	WriteTimeout     string  `toml:"write_timeout"`
	MaxPayloadBytes  uint64  `toml:"max_payload_bytes"`
	MaxAuthBytes     uint64  `toml:"max_auth_bytes"`
	SecurityMode     string  `toml:"security_mode"`
	AuthToken        string  `toml:"auth_token"`
	TLS              tlsFile `toml:"tls"`
}

type tlsFile struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
}

type logFile struct {
	Level     string `toml:"level"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
}

type adminFile struct {
	Listen      string   `toml:"listen"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Load reads path over DefaultConfig. Only keys present in the file
// override defaults; log env overrides apply last.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load launchkit config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load launchkit config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("native") {
		cfg.Native = strings.ToLower(strings.TrimSpace(raw.Native))
	}
	if err := applyTransport(&cfg.Session, meta, raw.Transport); err != nil {
		return Config{}, err
	}
	if err := applyLog(&cfg.Log, meta, raw.Log); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("admin", "listen") {
		cfg.AdminListen = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.CORSOrigins = raw.Admin.CORSOrigins
	}
	logging.ApplyEnvOverrides(&cfg.Log)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyTransport(cfg *session.Config, meta toml.MetaData, raw transportFile) error {
	if meta.IsDefined("transport", "network") {
		cfg.Network = strings.ToLower(strings.TrimSpace(raw.Network))
	}
	if meta.IsDefined("transport", "address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("transport", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse transport.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("transport", "max_payload_bytes") {
		cfg.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("transport", "max_auth_bytes") {
		cfg.Limits.MaxAuthBytes = raw.MaxAuthBytes
	}
	if meta.IsDefined("transport", "security_mode") {
		cfg.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(raw.SecurityMode))
	}
	if meta.IsDefined("transport", "auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}
	if meta.IsDefined("transport", "tls") {
		cfg.TLS = session.TLSConfig{
			Enabled:            raw.TLS.Enabled,
			Mutual:             raw.TLS.Mutual,
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
			CertFile:           strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.TLS.KeyFile),
			CAFile:             strings.TrimSpace(raw.TLS.CAFile),
			ServerName:         strings.TrimSpace(raw.TLS.ServerName),
		}
	}
	return nil
}

func applyLog(cfg *logging.Config, meta toml.MetaData, raw logFile) error {
	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Level)
		if !ok {
			return fmt.Errorf("parse log.level: unknown level %q", raw.Level)
		}
		cfg.Level = lvl
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Timestamp = raw.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.NoColor = raw.NoColor
	}
	return nil
}

// Validate checks settings shared by every role. TLS material is checked
// by session.Dial and Server.Listen, which know which end they are.
func (c Config) Validate() error {
	switch c.Native {
	case NativeMemory, NativeLiblaunch:
	default:
		return fmt.Errorf("config: native must be %q or %q, got %q", NativeMemory, NativeLiblaunch, c.Native)
	}
	if c.Session.ConnectTimeout <= 0 || c.Session.ReadTimeout <= 0 || c.Session.WriteTimeout <= 0 {
		return fmt.Errorf("config: transport timeouts must be positive")
	}
	if c.Session.Limits.MaxPayloadBytes == 0 {
		return fmt.Errorf("config: transport.max_payload_bytes must be positive")
	}
	if uint64(len(c.Session.AuthToken)) > c.Session.Limits.MaxAuthBytes {
		return fmt.Errorf("config: transport.auth_token exceeds max_auth_bytes (%d)", c.Session.Limits.MaxAuthBytes)
	}
	switch c.Session.Network {
	case session.NetworkUnix, session.NetworkTCP:
	default:
		return fmt.Errorf("config: transport: %w: %q", session.ErrInvalidNetwork, c.Session.Network)
	}
	if c.Session.Address == "" {
		return fmt.Errorf("config: transport: %w", session.ErrMissingAddress)
	}
	return nil
}
