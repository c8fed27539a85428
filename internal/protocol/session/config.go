package session

import (
	"strings"
	"time"

	"github.com/danmuck/launchkit/internal/protocol/frame"
)

const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig applies to tcp sockets only.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	InsecureSkipVerify bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
}

// Config defines socket transport defaults. A non-empty AuthToken is sent
// in every request frame by clients and required by servers.
type Config struct {
	Network          string
	Address          string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Limits           frame.Limits
	SecurityMode     SecurityMode
	TLS              TLSConfig
	Backoff          BackoffConfig
	AuthToken        string
}

// DefaultSocketPath is the unix socket used when no address is configured.
const DefaultSocketPath = "/tmp/launchkit.sock"

func DefaultConfig() Config {
	return Config{
		Network:          NetworkUnix,
		Address:          DefaultSocketPath,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		Limits:           frame.DefaultLimits(),
		SecurityMode:     SecurityModeDevelopment,
		Backoff: BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.Network) == "" {
		c.Network = d.Network
	}
	if strings.TrimSpace(c.Address) == "" && c.Network == NetworkUnix {
		c.Address = d.Address
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits.MaxPayloadBytes = d.Limits.MaxPayloadBytes
	}
	if c.Limits.MaxAuthBytes == 0 {
		c.Limits.MaxAuthBytes = d.Limits.MaxAuthBytes
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}
