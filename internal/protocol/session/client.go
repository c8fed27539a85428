package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/launchkit/internal/native/memory"
	"github.com/danmuck/launchkit/internal/observability"
	"github.com/danmuck/launchkit/internal/protocol"
	"github.com/danmuck/launchkit/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var ErrClientClosed = errors.New("session: client closed")

// Client sends one request at a time over a single connection. It
// implements memory.Transport.
type Client struct {
	cfg  Config
	auth []byte

	mu     sync.Mutex
	conn   net.Conn
	nextID uint64
}

var _ memory.Transport = (*Client)(nil)

// Dial connects to the service manager socket described by cfg.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, cfg.Network, cfg.Address)
	if err != nil {
		return nil, err
	}
	conn := rawConn
	if cfg.TLS.Enabled {
		tlsCfg, err := cfg.clientTLSConfig()
		if err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		tlsConn := tls.Client(rawConn, tlsCfg)
		handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
		if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		conn = tlsConn
	}
	log.Debug().Str("network", cfg.Network).Str("addr", cfg.Address).Bool("tls", cfg.TLS.Enabled).Msg("session.Dial connected")
	return &Client{cfg: cfg, conn: conn, auth: []byte(cfg.AuthToken)}, nil
}

// RoundTrip writes req and waits for the matching reply. An error frame is
// returned as a *protocol.Fault. I/O failures close the connection.
func (c *Client) RoundTrip(req *protocol.Node) (*protocol.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrClientClosed
	}

	start := time.Now()
	c.nextID++
	id := c.nextID
	reply, err := c.exchange(id, req)
	observability.RecordRoundTrip(c.cfg.Network, time.Since(start), err == nil)

	var fault *protocol.Fault
	if err != nil && !errors.As(err, &fault) {
		log.Debug().Err(err).Uint64("message_id", id).Msg("session.RoundTrip closing connection")
		_ = c.conn.Close()
		c.conn = nil
	}
	return reply, err
}

func (c *Client) exchange(id uint64, req *protocol.Node) (*protocol.Node, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return nil, err
	}
	if err := protocol.WriteRequest(c.conn, id, req, c.auth, c.cfg.Limits); err != nil {
		return nil, fmt.Errorf("session: write request: %w", err)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	f, err := frame.ReadFrame(c.conn, c.cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("session: read reply: %w", err)
	}
	return protocol.DecodeReply(f, id)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
