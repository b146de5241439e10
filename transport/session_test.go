package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/chatbridge/internal/peer"
	"github.com/vovakirdan/chatbridge/transport"
)

const testSecret = "s3cret"

func startPeer(t *testing.T, secret string) (*peer.Peer, string) {
	t.Helper()
	p := peer.New(secret)
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	t.Cleanup(p.Close)
	return p, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newSession(t *testing.T, url, secret string) *transport.Session {
	t.Helper()
	cfg := transport.DefaultConfig()
	cfg.URL = url
	cfg.Secret = secret
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.ReconnectInterval = 20 * time.Millisecond
	cfg.MaxReconnectDelay = 100 * time.Millisecond
	s, err := transport.NewSession(cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func watch(s *transport.Session) <-chan transport.Notification {
	ch := make(chan transport.Notification, 64)
	s.OnLifecycle(func(n transport.Notification) {
		select {
		case ch <- n:
		default:
		}
	})
	return ch
}

func waitFor(t *testing.T, ch <-chan transport.Notification, kind transport.NotificationKind) transport.Notification {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case n := <-ch:
			if n.Kind == kind {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSessionEmitsNamedEvent(t *testing.T) {
	p, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, notes, transport.Opened)

	payload := map[string]string{"name": "alice"}
	if err := s.Emit("playerJoined", payload); err != nil {
		t.Fatalf("emit: %v", err)
	}
	f, err := p.Next(testCtx(t))
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if f.Event != "playerJoined" {
		t.Fatalf("expected event playerJoined, got %q", f.Event)
	}
	if string(f.Data) != `{"name":"alice"}` {
		t.Fatalf("unexpected data: %s", f.Data)
	}

	hellos := p.Hellos()
	if len(hellos) != 1 {
		t.Fatalf("expected 1 hello, got %d", len(hellos))
	}
	if hellos[0].Auth.Secret != testSecret || hellos[0].Client != s.ClientID() {
		t.Fatalf("unexpected hello: %+v", hellos[0])
	}
	if s.State() != transport.StateConnected {
		t.Fatalf("expected connected, got %s", s.State())
	}
}

func TestSessionSendUsesDefaultEvent(t *testing.T) {
	p, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, notes, transport.Opened)

	if err := s.Send(map[string]string{"rawText": "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	f, err := p.Next(testCtx(t))
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if f.Event != transport.DefaultEvent {
		t.Fatalf("expected default event, got %q", f.Event)
	}
}

func TestSessionPreservesSendOrder(t *testing.T) {
	p, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, notes, transport.Opened)

	const total = 50
	for i := 0; i < total; i++ {
		if err := s.Emit("tick", map[string]int{"seq": i}); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	ctx := testCtx(t)
	for i := 0; i < total; i++ {
		f, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		var got struct{ Seq int }
		if err := json.Unmarshal(f.Data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Seq != i {
			t.Fatalf("expected seq %d, got %d", i, got.Seq)
		}
	}
}

func TestSessionRequestReply(t *testing.T) {
	p, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	err := s.On("query", func(_ context.Context, msg *transport.Message) {
		ack, err := msg.ReplyChannel()
		if err != nil {
			t.Errorf("expected reply channel: %v", err)
			return
		}
		_ = ack.Reply("pong")
	})
	if err != nil {
		t.Fatalf("on: %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, notes, transport.Opened)

	reply, err := p.Request(testCtx(t), "query", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(reply) != `"pong"` {
		t.Fatalf("unexpected reply: %s", reply)
	}
}

func TestSessionFireAndForgetHasNoReplyChannel(t *testing.T) {
	p, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	got := make(chan error, 1)
	_ = s.On("announcement", func(_ context.Context, msg *transport.Message) {
		_, err := msg.ReplyChannel()
		got <- err
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, notes, transport.Opened)

	if err := p.Emit(testCtx(t), "announcement", map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	select {
	case err := <-got:
		if !errors.Is(err, transport.ErrNoReplyChannel) {
			t.Fatalf("expected ErrNoReplyChannel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestSessionUnknownEventRepliesWithDiagnostic(t *testing.T) {
	p, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, notes, transport.Opened)

	reply, err := p.Request(testCtx(t), "nope", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(reply) != `"unknown event nope"` {
		t.Fatalf("unexpected reply: %s", reply)
	}
}

func TestSessionReconnectsAfterDrop(t *testing.T) {
	p, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if n := waitFor(t, notes, transport.Opened); n.Connection != 1 {
		t.Fatalf("expected connection 1, got %d", n.Connection)
	}

	p.Drop()
	waitFor(t, notes, transport.Closed)
	if n := waitFor(t, notes, transport.Reconnecting); n.Attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", n.Attempt)
	}
	if n := waitFor(t, notes, transport.Opened); n.Connection != 2 {
		t.Fatalf("expected connection 2, got %d", n.Connection)
	}
	if p.Accepted() != 2 {
		t.Fatalf("expected 2 accepted connections, got %d", p.Accepted())
	}
	if err := s.Emit("after", nil); err != nil {
		t.Fatalf("emit after reconnect: %v", err)
	}
}

func TestSessionStaleReplyAfterReconnect(t *testing.T) {
	p, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	acks := make(chan *transport.Ack, 1)
	_ = s.On("command", func(_ context.Context, msg *transport.Message) {
		ack, _ := msg.ReplyChannel()
		acks <- ack
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, notes, transport.Opened)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _, _ = p.Request(ctx, "command", map[string]string{"commandText": "list"}) }()

	var ack *transport.Ack
	select {
	case ack = <-acks:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}
	p.Drop()
	waitFor(t, notes, transport.Opened)

	if err := ack.Reply("late"); !errors.Is(err, transport.ErrStaleReply) {
		t.Fatalf("expected ErrStaleReply, got %v", err)
	}
}

func TestSessionRejectedSecretRetries(t *testing.T) {
	p, url := startPeer(t, "other")
	s := newSession(t, url, testSecret)
	notes := watch(s)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	n := waitFor(t, notes, transport.Reconnecting)
	if !errors.Is(n.Err, transport.NewError(transport.ErrorUnauthorized, "")) {
		t.Fatalf("expected unauthorized, got %v", n.Err)
	}
	if p.Accepted() != 0 || p.Rejected() == 0 {
		t.Fatalf("expected only rejections, accepted=%d rejected=%d", p.Accepted(), p.Rejected())
	}
}

func TestSessionSendNotConnected(t *testing.T) {
	s := newSession(t, "ws://127.0.0.1:1/ws", testSecret)
	if err := s.Emit("playerJoined", nil); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	_, url := startPeer(t, testSecret)
	s := newSession(t, url, testSecret)
	notes := watch(s)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, notes, transport.Opened)

	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if s.State() != transport.StateClosed {
		t.Fatalf("expected closed, got %s", s.State())
	}
	if err := s.Emit("x", nil); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected ErrClosed on reconnect, got %v", err)
	}
}

func TestNewSessionValidatesConfig(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		secret string
	}{
		{"empty url", "", testSecret},
		{"no scheme", "localhost:8080", testSecret},
		{"bad scheme", "ftp://example.com", testSecret},
		{"no host", "ws://", testSecret},
		{"no secret", "ws://example.com/ws", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := transport.DefaultConfig()
			cfg.URL = tc.url
			cfg.Secret = tc.secret
			_, err := transport.NewSession(cfg)
			if !errors.Is(err, transport.NewError(transport.ErrorInvalidConfig, "")) {
				t.Fatalf("expected invalid config, got %v", err)
			}
		})
	}
}
