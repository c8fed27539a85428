package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/launchkit/internal/auth"
	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/native/memory"
	"github.com/danmuck/launchkit/internal/observability"
	"github.com/danmuck/launchkit/internal/protocol"
	"github.com/danmuck/launchkit/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// FaultDomainSession marks faults raised by the server itself rather than
// its Handler.
const FaultDomainSession = "session"

// Handler answers one decoded request. req and the returned reply are
// plain values as produced by launch.Marshaler.Decode. Returning
// launch.Errno replies with an error code; returning an error replies with
// a fault whose code is the wrapped syscall.Errno, if any.
type Handler interface {
	ServeMsg(ctx context.Context, req any) (any, error)
}

type HandlerFunc func(ctx context.Context, req any) (any, error)

func (f HandlerFunc) ServeMsg(ctx context.Context, req any) (any, error) {
	return f(ctx, req)
}

// EchoHandler replies with the request.
type EchoHandler struct{}

func (EchoHandler) ServeMsg(_ context.Context, req any) (any, error) {
	return req, nil
}

type Server struct {
	cfg       Config
	handler   Handler
	validator auth.Validator

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int64
	ready   atomic.Bool
}

func NewServer(cfg Config, handler Handler) *Server {
	if handler == nil {
		handler = EchoHandler{}
	}
	return &Server{
		cfg:       cfg.WithDefaults(),
		handler:   handler,
		validator: auth.ForToken(cfg.AuthToken),
		conns:     make(map[net.Conn]struct{}),
	}
}

// Ready reports whether the accept loop is running.
func (s *Server) Ready() bool { return s.ready.Load() }

func (s *Server) ActiveConns() int64 { return s.active.Load() }

// Listen opens the configured socket. A stale unix socket file is removed
// first.
func (s *Server) Listen() (net.Listener, error) {
	if err := s.cfg.ValidateServerTransport(); err != nil {
		return nil, err
	}
	if s.cfg.Network == NetworkUnix {
		if fi, err := os.Lstat(s.cfg.Address); err == nil && fi.Mode()&os.ModeSocket != 0 {
			_ = os.Remove(s.cfg.Address)
		}
		return net.Listen(NetworkUnix, s.cfg.Address)
	}
	if !s.cfg.TLS.Enabled {
		return net.Listen(NetworkTCP, s.cfg.Address)
	}
	tlsCfg, err := s.cfg.serverTLSConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen(NetworkTCP, s.cfg.Address, tlsCfg)
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	log.Info().Str("network", s.cfg.Network).Str("addr", ln.Addr().String()).Msg("session.Server listening")
	return s.Serve(ctx, ln)
}

// Serve accepts connections until ctx is done or ln fails. Timeouts from
// Accept are retried with backoff.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		s.ready.Store(false)
		s.closeAllConns()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	defer s.closeAllConns()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	s.ready.Store(true)
	defer s.ready.Store(false)
	attempt := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				attempt++
				delay := s.cfg.Backoff.Delay(attempt, rng)
				log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("session.Server accept retry")
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return err
		}
		attempt = 0
		s.trackConn(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	remote := conn.RemoteAddr().String()
	active := s.active.Add(1)
	log.Debug().Str("remote", remote).Int64("active_clients", active).Msg("session.Server client connected")
	defer func() {
		remaining := s.active.Add(-1)
		log.Debug().Str("remote", remote).Int64("active_clients", remaining).Msg("session.Server client disconnected")
	}()

	peer, err := s.authenticateConn(conn)
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("session.Server transport auth failed")
		return
	}

	native := memory.New(memory.WithName("session"))
	m := launch.NewMarshaler(native)
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		f, err := frame.ReadFrame(conn, s.cfg.Limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug().Err(err).Str("remote", remote).Msg("session.Server read frame")
			}
			return
		}
		if err := s.serveFrame(ctx, conn, m, native, f); err != nil {
			observability.RecordFrameServed("error")
			log.Warn().Err(err).Str("remote", remote).Str("peer", peer).Msg("session.Server write reply")
			return
		}
	}
}

// serveFrame answers one request. Only write failures are returned.
func (s *Server) serveFrame(ctx context.Context, w io.Writer, m *launch.Marshaler, native *memory.Native, f frame.Frame) error {
	id := f.Header.MessageID
	if conn, ok := w.(net.Conn); ok && s.cfg.WriteTimeout > 0 {
		defer conn.SetWriteDeadline(time.Time{})
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	reply, err := s.dispatch(ctx, m, native, f)
	if err != nil {
		fault := faultFor(err)
		log.Debug().Uint64("message_id", id).Str("domain", fault.Domain).Int("code", fault.Code).Msg("session.Server fault")
		observability.RecordFrameServed("fault")
		return protocol.WriteFault(w, id, fault, s.cfg.Limits)
	}
	observability.RecordFrameServed("reply")
	return protocol.WriteReply(w, id, reply, s.cfg.Limits)
}

func (s *Server) dispatch(ctx context.Context, m *launch.Marshaler, native *memory.Native, f frame.Frame) (*protocol.Node, error) {
	if s.validator != nil {
		if err := s.validator.Validate(f.Auth); err != nil {
			return nil, sessionFault(syscall.EACCES, err)
		}
	}
	node, err := protocol.DecodeRequest(f)
	if err != nil {
		return nil, sessionFault(syscall.EINVAL, err)
	}
	h, err := native.Import(node)
	if err != nil {
		return nil, sessionFault(syscall.ENOMEM, err)
	}
	req, err := m.Decode(h)
	native.Free(h)
	if err != nil {
		return nil, sessionFault(syscall.EINVAL, err)
	}

	reply, err := s.handler.ServeMsg(ctx, req)
	if err != nil {
		return nil, err
	}
	return encodeReply(m, native, reply)
}

// encodeReply builds the reply tree through the handle layer so replies
// obey the same coercion rules as requests.
func encodeReply(m *launch.Marshaler, native *memory.Native, reply any) (*protocol.Node, error) {
	switch x := reply.(type) {
	case launch.Errno:
		return protocol.ErrnoNode(int(x)), nil
	case launch.Value:
		reply = x.Interface()
		if code, ok := reply.(launch.Errno); ok {
			return protocol.ErrnoNode(int(code)), nil
		}
	}
	v, err := m.Coerce(reply)
	if err != nil {
		return nil, sessionFault(syscall.EINVAL, fmt.Errorf("encode reply: %w", err))
	}
	defer v.Release()
	node, err := native.Export(v.Handle())
	if err != nil {
		return nil, sessionFault(syscall.EINVAL, err)
	}
	return node, nil
}

type serverFault struct {
	errno syscall.Errno
	err   error
}

func sessionFault(errno syscall.Errno, err error) error {
	return &serverFault{errno: errno, err: err}
}

func (e *serverFault) Error() string       { return e.err.Error() }
func (e *serverFault) Unwrap() []error     { return []error{e.errno, e.err} }
func (e *serverFault) FaultDomain() string { return FaultDomainSession }

type faultDomain interface {
	FaultDomain() string
}

func faultFor(err error) *protocol.Fault {
	f := &protocol.Fault{Domain: "handler", Message: err.Error()}
	var fd faultDomain
	if errors.As(err, &fd) {
		f.Domain = fd.FaultDomain()
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		f.Code = int(errno)
	}
	return f
}

func (s *Server) authenticateConn(conn net.Conn) (string, error) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return "", nil
	}
	_ = tlsConn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		return "", err
	}
	_ = tlsConn.SetDeadline(time.Time{})
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		if s.cfg.TLS.Mutual || NormalizeSecurityMode(s.cfg.SecurityMode) == SecurityModeProduction {
			return "", ErrMTLSRequired
		}
		return "", nil
	}
	return peerIdentity(state.PeerCertificates[0]), nil
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
