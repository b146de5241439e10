package transport

import (
	"encoding/json"
	"sync/atomic"
)

// Ack is the single-shot reply slot attached to an inbound request.
// Reply may be called from any goroutine; only the first call is sent.
type Ack struct {
	send    func(json.RawMessage) error
	replied atomic.Bool
}

// NewAck wraps a send function as a reply slot. Sessions build these for
// frames carrying a request id; alternate transports and tests may too.
func NewAck(send func(json.RawMessage) error) *Ack {
	return &Ack{send: send}
}

// Reply sends v as the response. A second call returns ErrAlreadyReplied
// without touching the wire.
func (a *Ack) Reply(v any) error {
	if !a.replied.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	data, err := marshalData(v)
	if err != nil {
		return err
	}
	if data == nil {
		data = json.RawMessage("null")
	}
	return a.send(data)
}

// Replied reports whether Reply has been called.
func (a *Ack) Replied() bool { return a.replied.Load() }

// Message is an inbound event handed to a Handler.
type Message struct {
	Kind string
	Data json.RawMessage
	ack  *Ack
}

// NewMessage builds a Message; ack may be nil for fire-and-forget events.
func NewMessage(kind string, data json.RawMessage, ack *Ack) *Message {
	return &Message{Kind: kind, Data: data, ack: ack}
}

// ExpectsReply reports whether the sender is waiting for a reply.
func (m *Message) ExpectsReply() bool { return m.ack != nil }

// ReplyChannel returns the message's reply slot, or ErrNoReplyChannel when
// the sender did not ask for one.
func (m *Message) ReplyChannel() (*Ack, error) {
	if m.ack == nil {
		return nil, ErrNoReplyChannel
	}
	return m.ack, nil
}
