package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vovakirdan/chatbridge/display"
	"github.com/vovakirdan/chatbridge/schema"
	"github.com/vovakirdan/chatbridge/transport"
)

// Inbound turns remote events into host effects. A payload that fails to
// decode is answered with a diagnostic when the sender expects a reply and
// only logged otherwise; no effect runs in either case.
type Inbound struct {
	server    Server
	validator *schema.Validator
	log       *slog.Logger
	metrics   *Metrics
}

// Register installs one handler per inbound kind.
func (in *Inbound) Register(t Transport) error {
	handlers := []struct {
		kind string
		fn   transport.Handler
	}{
		{schema.KindMessage, in.handleMessage},
		{schema.KindAnnouncement, in.handleAnnouncement},
		{schema.KindCommand, in.handleCommand},
		{schema.KindQuery, in.handleQuery},
	}
	for _, h := range handlers {
		if err := t.On(h.kind, h.fn); err != nil {
			return fmt.Errorf("register %s handler: %w", h.kind, err)
		}
	}
	return nil
}

func (in *Inbound) handleMessage(_ context.Context, msg *transport.Message) {
	ack := replyChannel(msg)
	chat, err := schema.Decode[schema.InboundChat](in.validator, msg.Kind, msg.Data)
	if err != nil {
		in.reject(msg.Kind, ack, err)
		return
	}
	line, err := composeChat(chat)
	if err != nil {
		in.reject(msg.Kind, ack, err)
		return
	}
	in.server.Broadcast(line)
	in.metrics.inboundEvent(msg.Kind, "ok")
	if ack != nil {
		in.reply(msg.Kind, ack, true)
	}
}

// composeChat builds "[author] " followed by every content fragment. Any
// fragment that fails to parse fails the whole line.
func composeChat(chat schema.InboundChat) (display.Component, error) {
	author, err := display.Parse(chat.Author)
	if err != nil {
		return display.Component{}, fmt.Errorf("author: %w", err)
	}
	parts := make([]display.Component, 0, len(chat.Content)+2)
	parts = append(parts, display.Bracketed(author), display.Text(" "))
	for i, raw := range chat.Content {
		c, err := display.Parse(raw)
		if err != nil {
			return display.Component{}, fmt.Errorf("content[%d]: %w", i, err)
		}
		parts = append(parts, c)
	}
	return display.Component{}.Append(parts...), nil
}

func (in *Inbound) handleAnnouncement(_ context.Context, msg *transport.Message) {
	ann, err := schema.Decode[schema.Announcement](in.validator, msg.Kind, msg.Data)
	if err != nil {
		in.reject(msg.Kind, replyChannel(msg), err)
		return
	}
	in.server.Broadcast(display.Text(ann.Message))
	in.metrics.inboundEvent(msg.Kind, "ok")
}

func (in *Inbound) handleCommand(_ context.Context, msg *transport.Message) {
	ack := replyChannel(msg)
	cmd, err := schema.Decode[schema.Command](in.validator, msg.Kind, msg.Data)
	if err != nil {
		in.reject(msg.Kind, ack, err)
		return
	}
	in.log.Info("running remote command", "command", cmd.CommandText, "reply", ack != nil)
	in.server.Execute(cmd.CommandText, newReplySink(in, msg.Kind, ack))
	in.metrics.inboundEvent(msg.Kind, "ok")
}

func (in *Inbound) handleQuery(_ context.Context, msg *transport.Message) {
	ack, err := msg.ReplyChannel()
	if err != nil {
		in.log.Error("query without reply channel dropped", "error", err)
		in.metrics.inboundEvent(msg.Kind, "rejected")
		return
	}
	if err := in.validator.Validate(msg.Kind, msg.Data); err != nil {
		in.reject(msg.Kind, ack, err)
		return
	}
	in.metrics.inboundEvent(msg.Kind, "ok")
	in.reply(msg.Kind, ack, in.snapshot())
}

func (in *Inbound) snapshot() schema.QueryResponse {
	var snap Snapshot
	if s, ok := in.server.(Snapshotter); ok {
		snap = s.Snapshot()
	} else {
		players := in.server.Players()
		snap.Users = make([]schema.User, 0, len(players))
		for _, p := range players {
			snap.Users = append(snap.Users, makeUser(in.server, p))
		}
		snap.AverageTickTime = in.server.AverageTickTime()
		snap.WorldTime = in.server.WorldTime()
		snap.Status = in.server.Status()
	}

	users := snap.Users
	if users == nil {
		users = []schema.User{}
	}
	status := snap.Status
	switch {
	case len(status) == 0:
		status = nil
	case !json.Valid(status):
		status, _ = json.Marshal(string(status))
	}
	return schema.QueryResponse{
		OnlineUsers:       users,
		EstimatedTickRate: EstimatedTickRate(snap.AverageTickTime),
		WorldTime:         snap.WorldTime,
		StatusBlob:        status,
	}
}

func (in *Inbound) reject(kind string, ack *transport.Ack, err error) {
	in.metrics.inboundEvent(kind, "decode_error")
	if ack == nil {
		in.log.Warn("dropping undecodable event", "kind", kind, "error", err)
		return
	}
	in.log.Debug("rejecting undecodable request", "kind", kind, "error", err)
	in.reply(kind, ack, err.Error())
}

// reply sends v on ack. A second reply is an internal error and never
// reaches the remote party.
func (in *Inbound) reply(kind string, ack *transport.Ack, v any) {
	err := ack.Reply(v)
	switch {
	case err == nil:
		in.metrics.reply("sent")
	case errors.Is(err, transport.ErrAlreadyReplied):
		in.metrics.reply("duplicate")
		in.log.Error("internal error: reply already sent", "kind", kind)
	default:
		in.metrics.reply("failed")
		in.log.Warn("reply failed", "kind", kind, "error", err)
	}
}

func replyChannel(msg *transport.Message) *transport.Ack {
	ack, err := msg.ReplyChannel()
	if err != nil {
		return nil
	}
	return ack
}
