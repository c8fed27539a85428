package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/native/memory"
	"github.com/danmuck/launchkit/internal/protocol"
	"github.com/danmuck/launchkit/internal/protocol/frame"
	"github.com/danmuck/launchkit/internal/testutil/testlog"
	"github.com/danmuck/launchkit/internal/testutil/tlstest"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
)

func unixConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address = filepath.Join(t.TempDir(), "l.sock")
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

// startServer serves cfg until the test ends and returns the bound config.
func startServer(t *testing.T, cfg Config, h Handler) (*Server, Config) {
	t.Helper()
	srv := NewServer(cfg, h)
	ln, err := srv.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if cfg.Network == NetworkTCP {
		cfg.Address = ln.Addr().String()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	deadline := time.Now().Add(2 * time.Second)
	for !srv.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return srv, cfg
}

func dialMarshaler(t *testing.T, cfg Config) (*launch.Marshaler, *memory.Native, *Client) {
	t.Helper()
	client, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	native := memory.New(memory.WithName("session-client"), memory.WithTransport(client))
	return launch.NewMarshaler(native), native, client
}

func TestEchoRoundTripOverUnixSocket(t *testing.T) {
	testlog.Start(t)
	_, cfg := startServer(t, unixConfig(t), EchoHandler{})
	m, native, _ := dialMarshaler(t, cfg)

	for i := 0; i < 3; i++ {
		out, err := m.Msg(map[string]any{
			"SubmitJob": map[string]any{
				"Label":            fmt.Sprintf("com.example.job%d", i),
				"ProgramArguments": []string{"/bin/echo", "hi"},
				"Nice":             -5,
				"Weight":           0.25,
			},
		})
		if err != nil {
			t.Fatalf("msg %d: %v", i, err)
		}
		want := map[string]any{
			"SubmitJob": map[string]any{
				"Label":            fmt.Sprintf("com.example.job%d", i),
				"ProgramArguments": []any{"/bin/echo", "hi"},
				"Nice":             int64(-5),
				"Weight":           0.25,
			},
		}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Fatalf("reply %d (-want +got):\n%s", i, diff)
		}
	}
	if st := native.Stats(); st.Live() != 0 || st.InvalidFrees != 0 {
		t.Fatalf("client handles unbalanced: %+v", st)
	}
}

func TestHandlerErrorBecomesTransportError(t *testing.T) {
	testlog.Start(t)
	h := HandlerFunc(func(_ context.Context, req any) (any, error) {
		return nil, fmt.Errorf("job %v: %w", req, syscall.ESRCH)
	})
	_, cfg := startServer(t, unixConfig(t), h)
	m, native, _ := dialMarshaler(t, cfg)

	_, err := m.Msg("com.example.missing")
	var te *launch.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Domain != "handler" || te.Errno != syscall.ESRCH {
		t.Fatalf("transport error: domain=%q errno=%v", te.Domain, te.Errno)
	}

	// a fault leaves the connection usable
	if _, err := m.Msg("again"); !errors.Is(err, syscall.ESRCH) {
		t.Fatalf("second request: %v", err)
	}
	if st := native.Stats(); st.Live() != 0 {
		t.Fatalf("client handles leaked: %+v", st)
	}
}

func TestHandlerErrnoReply(t *testing.T) {
	testlog.Start(t)
	h := HandlerFunc(func(context.Context, any) (any, error) {
		return launch.Errno(syscall.EEXIST), nil
	})
	_, cfg := startServer(t, unixConfig(t), h)
	m, _, _ := dialMarshaler(t, cfg)

	out, err := m.Msg(map[string]any{"SubmitJob": map[string]any{"Label": "dup"}})
	if err != nil {
		t.Fatalf("msg: %v", err)
	}
	if code, ok := out.(launch.Errno); !ok || code.Syscall() != syscall.EEXIST {
		t.Fatalf("expected errno reply, got %#v", out)
	}
}

func TestUnencodableReplyIsSessionFault(t *testing.T) {
	testlog.Start(t)
	h := HandlerFunc(func(context.Context, any) (any, error) {
		return struct{}{}, nil
	})
	_, cfg := startServer(t, unixConfig(t), h)
	m, _, _ := dialMarshaler(t, cfg)

	_, err := m.Msg(1)
	var te *launch.TransportError
	if !errors.As(err, &te) || te.Domain != FaultDomainSession || te.Errno != syscall.EINVAL {
		t.Fatalf("expected session EINVAL fault, got %v", err)
	}
}

func TestAuthTokenRequired(t *testing.T) {
	testlog.Start(t)
	var calls atomic.Int32
	h := HandlerFunc(func(_ context.Context, req any) (any, error) {
		calls.Add(1)
		return req, nil
	})
	cfg := unixConfig(t)
	cfg.AuthToken = "s3cret"
	_, cfg = startServer(t, cfg, h)

	m, _, _ := dialMarshaler(t, cfg)
	if out, err := m.Msg("ping"); err != nil || out != "ping" {
		t.Fatalf("authorized request: %v %v", out, err)
	}

	wrong := cfg
	wrong.AuthToken = "guess"
	m, native, _ := dialMarshaler(t, wrong)
	_, err := m.Msg("ping")
	var te *launch.TransportError
	if !errors.As(err, &te) || te.Domain != FaultDomainSession || te.Errno != syscall.EACCES {
		t.Fatalf("expected session EACCES fault, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran for unauthorized frame: calls=%d", calls.Load())
	}
	if st := native.Stats(); st.Live() != 0 {
		t.Fatalf("client handles leaked: %+v", st)
	}
}

func TestMalformedRequestGetsFault(t *testing.T) {
	testlog.Start(t)
	_, cfg := startServer(t, unixConfig(t), EchoHandler{})
	conn, err := net.Dial(cfg.Network, cfg.Address)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	if err := frame.WriteFrame(conn, frame.Frame{
		Header:  frame.Header{MessageID: 5, MessageType: frame.MsgRequest},
		Payload: []byte{0xff, 0x00, 0x01},
	}, cfg.Limits); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	f, err := frame.ReadFrame(conn, cfg.Limits)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	_, err = protocol.DecodeReply(f, 5)
	var fault *protocol.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected fault, got %v", err)
	}
	if fault.Domain != FaultDomainSession || fault.Code != int(syscall.EINVAL) {
		t.Fatalf("fault: %+v", fault)
	}
}

func TestScalarWithEntriesGetsFault(t *testing.T) {
	testlog.Start(t)
	srv, cfg := startServer(t, unixConfig(t), EchoHandler{})
	conn, err := net.Dial(cfg.Network, cfg.Address)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	bad := &protocol.Node{
		Kind:    launch.KindInteger,
		Entries: []protocol.Entry{{Key: "x", Value: protocol.IntegerNode(2)}},
	}
	payload, err := cbor.Marshal(bad)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := frame.WriteFrame(conn, frame.Frame{
		Header:  frame.Header{MessageID: 9, MessageType: frame.MsgRequest},
		Payload: payload,
	}, cfg.Limits); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	f, err := frame.ReadFrame(conn, cfg.Limits)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	_, err = protocol.DecodeReply(f, 9)
	var fault *protocol.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected fault, got %v", err)
	}
	if fault.Domain != FaultDomainSession || fault.Code != int(syscall.EINVAL) {
		t.Fatalf("fault: %+v", fault)
	}

	// the server keeps serving the same connection
	if err := protocol.WriteRequest(conn, 10, protocol.IntegerNode(2), nil, cfg.Limits); err != nil {
		t.Fatalf("write request: %v", err)
	}
	f, err = frame.ReadFrame(conn, cfg.Limits)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	reply, err := protocol.DecodeReply(f, 10)
	if err != nil || reply.Int != 2 {
		t.Fatalf("reply after fault: %+v %v", reply, err)
	}
	if !srv.Ready() {
		t.Fatalf("server stopped after malformed frame")
	}
}

func TestClientClosesAfterServerShutdown(t *testing.T) {
	testlog.Start(t)
	cfg := unixConfig(t)
	srv := NewServer(cfg, EchoHandler{})
	ln, err := srv.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if _, err := client.RoundTrip(protocol.IntegerNode(1)); err != nil {
		t.Fatalf("round trip: %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
	if _, err := client.RoundTrip(protocol.IntegerNode(2)); err == nil {
		t.Fatalf("expected failure after shutdown")
	}
	if _, err := client.RoundTrip(protocol.IntegerNode(3)); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

type failingListener struct {
	net.Listener
	err error
}

func (l failingListener) Accept() (net.Conn, error) { return nil, l.err }

func TestServeAcceptErrorStopsWatcher(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen(NetworkUnix, filepath.Join(t.TempDir(), "f.sock"))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := NewServer(unixConfig(t), EchoHandler{})
	wantErr := errors.New("accept exploded")
	if err := srv.Serve(ctx, failingListener{Listener: ln, err: wantErr}); !errors.Is(err, wantErr) {
		t.Fatalf("expected accept error, got %v", err)
	}
	if srv.Ready() {
		t.Fatalf("server still ready after Serve returned")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := runtime.NumGoroutine(); n > before {
		t.Fatalf("goroutines after Serve: %d, before: %d", n, before)
	}
}

func TestDialFailureCarriesErrno(t *testing.T) {
	testlog.Start(t)
	cfg := unixConfig(t)
	_, err := Dial(context.Background(), cfg)
	if !errors.Is(err, syscall.ENOENT) && !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("expected ENOENT or ECONNREFUSED, got %v", err)
	}
}

func TestMutualTLSOverTCP(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, "launchkit-test-ca")
	server := ca.Server(t, "launchd", "localhost", "127.0.0.1")
	client := ca.Client(t, "launchmsg")

	cfg := DefaultConfig()
	cfg.Network = NetworkTCP
	cfg.Address = "127.0.0.1:0"
	cfg.SecurityMode = SecurityModeProduction
	cfg.TLS = TLSConfig{
		Enabled:  true,
		Mutual:   true,
		CertFile: server.CertFile,
		KeyFile:  server.KeyFile,
		CAFile:   ca.CAFile(),
	}
	_, bound := startServer(t, cfg, EchoHandler{})

	clientCfg := bound
	clientCfg.TLS.CertFile = client.CertFile
	clientCfg.TLS.KeyFile = client.KeyFile
	m, _, _ := dialMarshaler(t, clientCfg)
	out, err := m.Msg([]any{"ping", true})
	if err != nil {
		t.Fatalf("msg over mtls: %v", err)
	}
	if diff := cmp.Diff([]any{"ping", true}, out); diff != "" {
		t.Fatalf("reply (-want +got):\n%s", diff)
	}

	anonymous := bound
	anonymous.SecurityMode = SecurityModeDevelopment
	anonymous.TLS.Mutual = false
	anonymous.TLS.CertFile = ""
	anonymous.TLS.KeyFile = ""
	anon, err := Dial(context.Background(), anonymous)
	if err == nil {
		_, err = anon.RoundTrip(protocol.IntegerNode(1))
		_ = anon.Close()
	}
	if err == nil {
		t.Fatalf("expected client without certificate to be rejected")
	}
}
