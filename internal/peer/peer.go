// Package peer implements the remote side of the bridge protocol: it accepts
// websocket connections, checks the hello secret, records the events it
// receives and issues acknowledged requests.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatbridge/transport"
)

var ErrNoConnection = errors.New("peer: no bridge connected")

// Peer serves one bridge connection at a time; a newer connection replaces the older one.
type Peer struct {
	secret string

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[uint64]chan json.RawMessage
	acks     map[uint64]int
	hellos   []transport.HelloPayload
	accepted int
	rejected int

	nextID    atomic.Uint64
	events    chan transport.Frame
	connected chan struct{}
}

// New returns a peer that accepts hellos carrying secret.
func New(secret string) *Peer {
	return &Peer{
		secret:    secret,
		pending:   make(map[uint64]chan json.RawMessage),
		acks:      make(map[uint64]int),
		events:    make(chan transport.Frame, 1024),
		connected: make(chan struct{}, 16),
	}
}

func (p *Peer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	ctx := context.Background()

	var hello transport.Frame
	if err := wsjson.Read(ctx, ws, &hello); err != nil || !hello.IsHello() {
		_ = ws.Close(websocket.StatusProtocolError, "expected hello")
		return
	}
	var payload transport.HelloPayload
	if err := json.Unmarshal(hello.Data, &payload); err != nil || payload.Auth.Secret != p.secret {
		p.mu.Lock()
		p.rejected++
		p.mu.Unlock()
		_ = wsjson.Write(ctx, ws, transport.ErrorFrame("unauthorized", "bad secret"))
		_ = ws.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}
	if err := wsjson.Write(ctx, ws, transport.ReadyFrame()); err != nil {
		_ = ws.CloseNow()
		return
	}

	p.mu.Lock()
	if p.conn != nil {
		_ = p.conn.CloseNow()
	}
	p.conn = ws
	p.accepted++
	p.hellos = append(p.hellos, payload)
	p.mu.Unlock()
	select {
	case p.connected <- struct{}{}:
	default:
	}

	p.readLoop(ctx, ws)

	p.mu.Lock()
	if p.conn == ws {
		p.conn = nil
	}
	p.mu.Unlock()
}

func (p *Peer) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		var f transport.Frame
		if err := wsjson.Read(ctx, ws, &f); err != nil {
			return
		}
		switch {
		case f.IsAck():
			p.mu.Lock()
			p.acks[f.ID]++
			ch := p.pending[f.ID]
			delete(p.pending, f.ID)
			p.mu.Unlock()
			if ch != nil {
				ch <- f.Data
			}
		case f.IsEvent():
			select {
			case p.events <- f:
			default:
			}
		}
	}
}

// WaitConnected blocks until the next bridge connection is accepted.
func (p *Peer) WaitConnected(ctx context.Context) error {
	select {
	case <-p.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next event frame received from the bridge.
func (p *Peer) Next(ctx context.Context) (transport.Frame, error) {
	select {
	case f := <-p.events:
		return f, nil
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

// Emit sends a fire-and-forget event to the bridge.
func (p *Peer) Emit(ctx context.Context, event string, data any) error {
	f, err := transport.EventFrame(event, data)
	if err != nil {
		return err
	}
	return p.write(ctx, f)
}

// Request sends an event carrying a reply id and waits for the bridge's reply.
func (p *Peer) Request(ctx context.Context, event string, data any) (json.RawMessage, error) {
	f, err := transport.EventFrame(event, data)
	if err != nil {
		return nil, err
	}
	f.ID = p.nextID.Add(1)
	ch := make(chan json.RawMessage, 1)
	p.mu.Lock()
	p.pending[f.ID] = ch
	p.mu.Unlock()

	if err := p.write(ctx, f); err != nil {
		p.mu.Lock()
		delete(p.pending, f.ID)
		p.mu.Unlock()
		return nil, err
	}
	select {
	case data := <-ch:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AckCount reports how many replies arrived for request id. Ids start at 1.
func (p *Peer) AckCount(id uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acks[id]
}

// Hellos returns the hello payloads of accepted connections.
func (p *Peer) Hellos() []transport.HelloPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]transport.HelloPayload(nil), p.hellos...)
}

// Accepted counts connections that passed the secret check.
func (p *Peer) Accepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// Rejected counts hellos refused for a bad secret.
func (p *Peer) Rejected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejected
}

// Drop severs the current connection without a close handshake.
func (p *Peer) Drop() {
	p.mu.Lock()
	ws := p.conn
	p.conn = nil
	p.mu.Unlock()
	if ws != nil {
		_ = ws.CloseNow()
	}
}

// Close ends the current connection normally.
func (p *Peer) Close() {
	p.mu.Lock()
	ws := p.conn
	p.conn = nil
	p.mu.Unlock()
	if ws != nil {
		_ = ws.Close(websocket.StatusGoingAway, "peer shutdown")
	}
}

func (p *Peer) write(ctx context.Context, f transport.Frame) error {
	p.mu.Lock()
	ws := p.conn
	p.mu.Unlock()
	if ws == nil {
		return ErrNoConnection
	}
	return wsjson.Write(ctx, ws, f)
}
