// Package bridge connects a game server to a remote party over a
// reconnecting transport. Local events are relayed outward; remote chat,
// announcements, commands and queries are applied to the host.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/vovakirdan/chatbridge/schema"
	"github.com/vovakirdan/chatbridge/transport"
)

// State is the bridge's view of the connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Bridge. Transport and Server are required; Events
// defaults to Server when it also implements EventSource.
type Options struct {
	Transport Transport
	Server    Server
	Events    EventSource
	Logger    *slog.Logger
	Metrics   *Metrics
	Validator *schema.Validator
}

// Bridge owns the registration latch and the shutdown latch for one transport.
type Bridge struct {
	transport Transport
	events    EventSource
	log       *slog.Logger
	metrics   *Metrics

	inbound  *Inbound
	outbound *Outbound

	state      atomic.Int32
	registered atomic.Bool
	opened     atomic.Bool
}

var (
	errNoTransport = errors.New("bridge: transport is required")
	errNoServer    = errors.New("bridge: server is required")
	errNoEvents    = errors.New("bridge: no event source")
)

// New builds a Bridge and subscribes to transport lifecycle notifications.
// Nothing is connected until Start.
func New(opts Options) (*Bridge, error) {
	if opts.Transport == nil {
		return nil, errNoTransport
	}
	if opts.Server == nil {
		return nil, errNoServer
	}
	events := opts.Events
	if events == nil {
		src, ok := opts.Server.(EventSource)
		if !ok {
			return nil, errNoEvents
		}
		events = src
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	validator := opts.Validator
	if validator == nil {
		v, err := schema.DefaultValidator()
		if err != nil {
			return nil, err
		}
		validator = v
	}

	b := &Bridge{
		transport: opts.Transport,
		events:    events,
		log:       log,
		metrics:   opts.Metrics,
		inbound: &Inbound{
			server:    opts.Server,
			validator: validator,
			log:       log.With("component", "inbound"),
			metrics:   opts.Metrics,
		},
		outbound: &Outbound{
			transport: opts.Transport,
			server:    opts.Server,
			log:       log.With("component", "outbound"),
			metrics:   opts.Metrics,
		},
	}
	opts.Transport.OnLifecycle(b.onLifecycle)
	return b, nil
}

// Open builds a Bridge and starts connecting.
func Open(ctx context.Context, opts Options) (*Bridge, error) {
	b, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := b.Start(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Start begins connecting in the background.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		if b.State() == StateClosed {
			return transport.ErrClosed
		}
		return errors.New("bridge: already started")
	}
	b.log.Info("connecting to remote server")
	if err := b.transport.Connect(ctx); err != nil {
		b.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
		return err
	}
	return nil
}

// State reports the current connection state.
func (b *Bridge) State() State { return State(b.state.Load()) }

// Shutdown closes the transport. Only the first call has any effect.
func (b *Bridge) Shutdown() error {
	if State(b.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	b.metrics.setConnected(false)
	b.log.Info("shutting down bridge")
	return b.transport.Close()
}

func (b *Bridge) transition(next State) {
	for {
		cur := b.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if b.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (b *Bridge) onLifecycle(n transport.Notification) {
	b.metrics.lifecycleEvent(n.Kind.String())
	switch n.Kind {
	case transport.Opened:
		b.transition(StateConnected)
		b.metrics.setConnected(true)
		if b.opened.Swap(true) {
			b.log.Info("reconnected to server", "connection", n.Connection)
		} else {
			b.log.Info("connected to server", "connection", n.Connection)
		}
		b.register()
	case transport.Closed:
		b.transition(StateReconnecting)
		b.metrics.setConnected(false)
		b.log.Warn("connection lost", "connection", n.Connection, "error", n.Err)
	case transport.Reconnecting:
		if transport.IsProtocolError(n.Err) {
			b.log.Error("server refused the bridge", "attempt", n.Attempt, "error", n.Err)
		}
		b.log.Info("reconnecting", "attempt", n.Attempt, "delay", n.Delay)
	}
}

// register installs inbound handlers and local subscriptions on the first
// Opened notification only. Reconnects reuse them.
func (b *Bridge) register() {
	if !b.registered.CompareAndSwap(false, true) {
		return
	}
	if err := b.inbound.Register(b.transport); err != nil {
		b.log.Error("registering inbound handlers failed", "error", err)
	}
	b.outbound.Subscribe(b.events)
}
