package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vovakirdan/chatbridge/transport/internal"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Session owns one auto-reconnecting connection to the remote party.
//
// Lifecycle notifications and inbound handlers run on a single callback
// goroutine in arrival order, so the Opened notification of a connection is
// fully handled before any event received on that connection.
type Session struct {
	cfg        Config
	logger     Logger
	dispatcher Dispatcher
	clientID   string
	callbacks  chan func()
	done       chan struct{}

	state       atomic.Int32
	connections atomic.Uint64

	mu        sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	link      *link
	observers []func(Notification)
}

// link is one established connection and its outbound queue.
type link struct {
	conn   *internal.Conn
	out    chan Frame
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession constructs a session with the provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	return &Session{
		cfg:       cfg,
		logger:    noopLogger{},
		clientID:  uuid.NewString(),
		callbacks: make(chan func(), 256),
		done:      make(chan struct{}),
	}, nil
}

// SetLogger overrides logger (optional).
func (s *Session) SetLogger(l Logger) {
	if l == nil {
		return
	}
	s.logger = l
}

// ClientID is the identifier sent in every hello.
func (s *Session) ClientID() string { return s.clientID }

// State returns the current connection state.
func (s *Session) State() ConnectionState { return ConnectionState(s.state.Load()) }

// OnLifecycle registers an observer for Opened, Closed and Reconnecting.
// Opened fires once per accepted handshake, so observers must tolerate repeats.
func (s *Session) OnLifecycle(fn func(Notification)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// On registers the handler for an inbound event kind.
// Each kind accepts exactly one handler; a second registration returns ErrDuplicateHandler.
func (s *Session) On(kind string, h Handler) error { return s.dispatcher.On(kind, h) }

// Kinds lists the inbound kinds with a registered handler.
func (s *Session) Kinds() []string { return s.dispatcher.Kinds() }

// Connect starts connecting in the background and returns immediately.
// Progress is reported through OnLifecycle.
func (s *Session) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return NewError(ErrorConnection, "already connected")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.setState(StateConnecting)
	s.logger.Info("connecting to server", map[string]any{"url": s.cfg.URL})

	go s.callbackLoop(runCtx)
	go s.run(runCtx)
	return nil
}

// Send publishes v under the default event name without waiting for delivery.
func (s *Session) Send(v any) error { return s.Emit(DefaultEvent, v) }

// Emit publishes v as a named event without waiting for delivery.
// It never blocks: it fails with ErrNotConnected while no connection is up
// and with ErrBufferFull when the outbound queue is saturated.
func (s *Session) Emit(event string, v any) error {
	f, err := EventFrame(event, v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	l, closed := s.link, s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if l == nil || l.ctx.Err() != nil {
		return ErrNotConnected
	}
	select {
	case l.out <- f:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close shuts down the session and closes the WebSocket. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, l, started := s.cancel, s.link, s.started
	s.mu.Unlock()

	s.state.Store(int32(StateClosed))
	s.logger.Info("closing connection", nil)
	if cancel != nil {
		cancel()
	}
	if l != nil {
		if err := l.conn.Close(websocket.StatusNormalClosure, "client close"); err != nil {
			s.logger.Debug("close handshake", map[string]any{"error": err.Error()})
		}
	}
	if started {
		<-s.done
	}
	return nil
}

func (s *Session) setState(next ConnectionState) {
	for {
		cur := s.state.Load()
		if ConnectionState(cur) == StateClosed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	bo := backoff.NewExponentialBackOff()
	if s.cfg.ReconnectInterval > 0 {
		bo.InitialInterval = s.cfg.ReconnectInterval
	}
	if s.cfg.MaxReconnectDelay > 0 {
		bo.MaxInterval = s.cfg.MaxReconnectDelay
	}
	bo.Reset()

	attempt := 0
	for {
		conn, err := s.dial(ctx)
		if err == nil {
			attempt = 0
			bo.Reset()
			n := s.connections.Add(1)
			err = s.serve(ctx, conn, n)
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("connection lost", map[string]any{"error": errString(err)})
			s.notify(ctx, Notification{Kind: Closed, Connection: n, Err: err})
		} else {
			if ctx.Err() != nil {
				return
			}
			if IsConnectionError(err) {
				s.logger.Warn("connect failed", map[string]any{"error": err.Error()})
			} else {
				s.logger.Error("handshake rejected", map[string]any{"error": err.Error()})
			}
		}

		attempt++
		if s.cfg.MaxReconnectTries > 0 && attempt > s.cfg.MaxReconnectTries {
			s.logger.Error("giving up reconnecting", map[string]any{"attempts": attempt - 1})
			s.setState(StateDisconnected)
			return
		}
		delay := bo.NextBackOff()
		s.setState(StateReconnecting)
		s.notify(ctx, Notification{Kind: Reconnecting, Attempt: attempt, Delay: delay, Err: err})

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// dial opens the websocket and completes the hello/ready handshake.
func (s *Session) dial(ctx context.Context) (*internal.Conn, error) {
	dialCtx := ctx
	if s.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, err := internal.Dial(dialCtx, s.cfg.URL, s.cfg.ReadTimeout, s.cfg.WriteTimeout)
	if err != nil {
		return nil, WrapError(ErrorConnection, "dial failed", err)
	}

	hello, err := json.Marshal(HelloPayload{
		Protocol: ProtocolVersion,
		Client:   s.clientID,
		Auth:     HelloAuth{Secret: s.cfg.Secret},
	})
	if err != nil {
		_ = conn.CloseNow()
		return nil, WrapError(ErrorSerialization, "failed to marshal hello", err)
	}
	if err := conn.Write(dialCtx, Frame{Type: frameHello, Data: hello}); err != nil {
		_ = conn.CloseNow()
		return nil, WrapError(ErrorConnection, "hello failed", err)
	}

	var reply Frame
	if err := conn.ReadWithin(dialCtx, s.cfg.HandshakeTimeout, &reply); err != nil {
		_ = conn.CloseNow()
		return nil, WrapError(ErrorTimeout, "no handshake reply", err)
	}
	switch reply.Type {
	case frameReady:
		return conn, nil
	case frameError:
		_ = conn.CloseNow()
		if reply.Error == nil {
			return nil, NewError(ErrorUnknown, "handshake rejected")
		}
		return nil, FromProtocolError(reply.Error)
	default:
		_ = conn.Close(websocket.StatusProtocolError, "unexpected frame")
		return nil, NewError(ErrorInvalidMessage, "unexpected handshake frame "+reply.Type)
	}
}

// serve pumps one connection until it fails or the session closes.
func (s *Session) serve(ctx context.Context, conn *internal.Conn, n uint64) error {
	connCtx, cancel := context.WithCancel(ctx)
	l := &link{conn: conn, out: make(chan Frame, s.cfg.SendBuffer), ctx: connCtx, cancel: cancel}

	s.mu.Lock()
	s.link = l
	s.mu.Unlock()
	s.setState(StateConnected)
	s.logger.Info("connected", map[string]any{"connection": n})
	s.notify(ctx, Notification{Kind: Opened, Connection: n})

	writeErr := make(chan error, 1)
	go func() { writeErr <- s.writeLoop(l) }()
	err := s.readLoop(ctx, l)
	cancel()
	if werr := <-writeErr; err == nil {
		err = werr
	}

	s.mu.Lock()
	if s.link == l {
		s.link = nil
	}
	s.mu.Unlock()
	if ctx.Err() == nil {
		_ = conn.CloseNow()
	}
	return err
}

func (s *Session) readLoop(ctx context.Context, l *link) error {
	for {
		var f Frame
		if err := l.conn.Read(l.ctx, &f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isExpectedDisconnect(l.ctx, err) {
				return WrapError(ErrorDisconnected, "connection closed", err)
			}
			return WrapError(ErrorConnection, "read failed", err)
		}
		switch f.Type {
		case frameEvent:
			msg := NewMessage(f.Event, f.Data, nil)
			if f.ID != 0 {
				msg.ack = s.newAck(l, f.ID)
			}
			if !s.schedule(ctx, func() { s.dispatch(ctx, msg) }) {
				return nil
			}
		case frameError:
			if f.Error != nil {
				s.logger.Warn("remote error", map[string]any{"code": f.Error.Code, "msg": f.Error.Msg})
			}
		default:
			s.logger.Debug("ignoring frame", map[string]any{"type": f.Type})
		}
	}
}

func (s *Session) writeLoop(l *link) error {
	for {
		select {
		case f := <-l.out:
			if err := l.conn.Write(l.ctx, f); err != nil {
				if l.ctx.Err() != nil {
					return nil
				}
				s.logger.Warn("write loop exit", map[string]any{"error": err.Error()})
				l.cancel()
				return WrapError(ErrorConnection, "write failed", err)
			}
		case <-l.ctx.Done():
			return nil
		}
	}
}

// newAck binds a reply to the connection the request arrived on.
func (s *Session) newAck(l *link, id uint64) *Ack {
	return NewAck(func(data json.RawMessage) error {
		if l.ctx.Err() != nil {
			return ErrStaleReply
		}
		select {
		case l.out <- AckFrame(id, data):
			return nil
		case <-l.ctx.Done():
			return ErrStaleReply
		}
	})
}

func (s *Session) dispatch(ctx context.Context, msg *Message) {
	if s.dispatcher.Dispatch(ctx, msg) {
		return
	}
	s.logger.Warn("no handler for event", map[string]any{"event": msg.Kind})
	if ack, err := msg.ReplyChannel(); err == nil {
		_ = ack.Reply("unknown event " + msg.Kind)
	}
}

func (s *Session) notify(ctx context.Context, n Notification) {
	s.schedule(ctx, func() {
		s.mu.Lock()
		observers := slices.Clone(s.observers)
		s.mu.Unlock()
		for _, fn := range observers {
			fn(n)
		}
	})
}

func (s *Session) schedule(ctx context.Context, fn func()) bool {
	select {
	case s.callbacks <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) callbackLoop(ctx context.Context) {
	for {
		select {
		case fn := <-s.callbacks:
			s.invoke(fn)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("callback panic", map[string]any{"panic": r})
		}
	}()
	fn()
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
