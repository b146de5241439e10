package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/chatbridge/display"
	"github.com/vovakirdan/chatbridge/transport"
)

type sentFrame struct {
	event string
	data  string
}

type fakeTransport struct {
	mu         sync.Mutex
	handlers   map[string]transport.Handler
	onCalls    int
	duplicates int
	sent       []sentFrame
	observers  []func(transport.Notification)
	connects   int
	closes     int
	emitErr    error
	connectErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]transport.Handler)}
}

func (f *fakeTransport) On(kind string, h transport.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCalls++
	if _, ok := f.handlers[kind]; ok {
		f.duplicates++
		return transport.ErrDuplicateHandler
	}
	f.handlers[kind] = h
	return nil
}

func (f *fakeTransport) Emit(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.sent = append(f.sent, sentFrame{event: event, data: string(data)})
	return nil
}

func (f *fakeTransport) Send(v any) error { return f.Emit(transport.DefaultEvent, v) }

func (f *fakeTransport) OnLifecycle(fn func(transport.Notification)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) fire(n transport.Notification) {
	f.mu.Lock()
	obs := slices.Clone(f.observers)
	f.mu.Unlock()
	for _, fn := range obs {
		fn(n)
	}
}

func (f *fakeTransport) open(conn uint64) {
	f.fire(transport.Notification{Kind: transport.Opened, Connection: conn})
}

func (f *fakeTransport) frames() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.sent...)
}

// replies collects everything sent on one ack.
type replies struct {
	mu   sync.Mutex
	data []string
}

func (r *replies) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.data...)
}

// deliver runs the registered handler for kind. withReply attaches an ack
// whose replies are returned.
func (f *fakeTransport) deliver(t *testing.T, kind, payload string, withReply bool) *replies {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[kind]
	f.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler registered for %q", kind)
	}
	r := &replies{}
	var ack *transport.Ack
	if withReply {
		ack = transport.NewAck(func(data json.RawMessage) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.data = append(r.data, string(data))
			return nil
		})
	}
	h(context.Background(), transport.NewMessage(kind, json.RawMessage(payload), ack))
	return r
}

type fakePlayer struct {
	name string
	id   string
}

func (p fakePlayer) DisplayName() string { return p.name }
func (p fakePlayer) ID() string          { return p.id }

type creature struct{ name string }

func (c creature) DisplayName() string { return c.name }

// fakeServer is both the host and its event source.
type fakeServer struct {
	mu         sync.Mutex
	players    []Player
	privileged map[string]bool
	tick       time.Duration
	worldTime  int64
	status     json.RawMessage
	outcomes   []string
	executed   []string
	broadcasts []display.Component

	chat        []func(ChatEvent)
	join        []func(Player)
	leave       []func(Player)
	advancement []func(AdvancementEvent)
	death       []func(DeathEvent)
}

func newFakeServer() *fakeServer {
	return &fakeServer{privileged: make(map[string]bool), tick: 50 * time.Millisecond}
}

func (s *fakeServer) Players() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Player(nil), s.players...)
}

func (s *fakeServer) IsPrivileged(p Player) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privileged[p.ID()]
}

func (s *fakeServer) setPrivileged(p Player, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.privileged[p.ID()] = v
}

func (s *fakeServer) AverageTickTime() time.Duration { return s.tick }
func (s *fakeServer) WorldTime() int64               { return s.worldTime }
func (s *fakeServer) Status() json.RawMessage        { return s.status }

func (s *fakeServer) Execute(command string, sink CommandSink) {
	s.mu.Lock()
	s.executed = append(s.executed, command)
	outcomes := append([]string(nil), s.outcomes...)
	s.mu.Unlock()
	for _, o := range outcomes {
		sink.SendOutcome(o)
	}
}

func (s *fakeServer) Broadcast(c display.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, c)
}

func (s *fakeServer) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.broadcasts))
	for _, c := range s.broadcasts {
		out = append(out, c.Plain())
	}
	return out
}

func (s *fakeServer) SubscribeChat(fn func(ChatEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, fn)
}

func (s *fakeServer) SubscribeJoin(fn func(Player)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.join = append(s.join, fn)
}

func (s *fakeServer) SubscribeLeave(fn func(Player)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leave = append(s.leave, fn)
}

func (s *fakeServer) SubscribeAdvancement(fn func(AdvancementEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advancement = append(s.advancement, fn)
}

func (s *fakeServer) SubscribeDeath(fn func(DeathEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.death = append(s.death, fn)
}

func (s *fakeServer) subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chat) + len(s.join) + len(s.leave) + len(s.advancement) + len(s.death)
}

func (s *fakeServer) playerJoins(p Player) {
	s.mu.Lock()
	fns := slices.Clone(s.join)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (s *fakeServer) playerLeaves(p Player) {
	s.mu.Lock()
	fns := slices.Clone(s.leave)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (s *fakeServer) says(ev ChatEvent) {
	s.mu.Lock()
	fns := slices.Clone(s.chat)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *fakeServer) advances(ev AdvancementEvent) {
	s.mu.Lock()
	fns := slices.Clone(s.advancement)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *fakeServer) dies(ev DeathEvent) {
	s.mu.Lock()
	fns := slices.Clone(s.death)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// newTestBridge returns a bridge whose first connection is already open.
func newTestBridge(t *testing.T) (*Bridge, *fakeTransport, *fakeServer) {
	t.Helper()
	tr := newFakeTransport()
	srv := newFakeServer()
	b, err := New(Options{Transport: tr, Server: srv})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	tr.open(1)
	return b, tr, srv
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }
