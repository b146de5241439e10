// Package internal holds the websocket plumbing shared by the session.
package internal

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ReadLimit bounds a single inbound frame. Query replies and chat
// components can exceed the library default.
const ReadLimit = 1 << 20

// Conn is a JSON message connection with per-operation deadlines.
type Conn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Dial opens a websocket to url and applies ReadLimit.
func Dial(ctx context.Context, url string, readTimeout, writeTimeout time.Duration) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(ReadLimit)
	return &Conn{ws: ws, readTimeout: readTimeout, writeTimeout: writeTimeout}, nil
}

// within derives a context bounded by d; d <= 0 leaves ctx unbounded.
func within(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Read decodes the next message into v. Cancelling ctx closes the connection.
func (c *Conn) Read(ctx context.Context, v any) error {
	return c.ReadWithin(ctx, c.readTimeout, v)
}

// ReadWithin is Read with an explicit bound instead of the read timeout.
func (c *Conn) ReadWithin(ctx context.Context, d time.Duration, v any) error {
	ctx, cancel := within(ctx, d)
	defer cancel()
	return wsjson.Read(ctx, c.ws, v)
}

// Write encodes v as one text message.
func (c *Conn) Write(ctx context.Context, v any) error {
	ctx, cancel := within(ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, v)
}

// Close performs the close handshake.
func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

// CloseNow drops the connection without a close handshake.
func (c *Conn) CloseNow() error {
	return c.ws.CloseNow()
}
