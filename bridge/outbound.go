package bridge

import (
	"log/slog"

	"github.com/vovakirdan/chatbridge/schema"
)

// Outbound relays local host events to the remote party. Every send is
// fire-and-forget; failures are counted and logged, never retried.
type Outbound struct {
	transport Transport
	server    Server
	log       *slog.Logger
	metrics   *Metrics
}

// Subscribe registers one callback per local event kind on src.
func (o *Outbound) Subscribe(src EventSource) {
	src.SubscribeChat(o.OnChat)
	src.SubscribeJoin(o.OnJoin)
	src.SubscribeLeave(o.OnLeave)
	src.SubscribeAdvancement(o.OnAdvancement)
	src.SubscribeDeath(o.OnDeath)
}

func (o *Outbound) OnChat(ev ChatEvent) {
	if ev.Player == nil {
		return
	}
	msg := schema.ChatMessage{Author: makeUser(o.server, ev.Player), RawText: ev.RawText}
	o.record(schema.EventChat, o.transport.Send(msg))
}

func (o *Outbound) OnJoin(p Player) {
	if p == nil {
		return
	}
	o.emit(schema.EventPlayerJoined, schema.PlayerJoined{User: makeUser(o.server, p)})
}

func (o *Outbound) OnLeave(p Player) {
	if p == nil {
		return
	}
	o.emit(schema.EventPlayerLeft, schema.PlayerLeft{User: makeUser(o.server, p)})
}

// OnAdvancement relays only advancements the host would announce in chat.
func (o *Outbound) OnAdvancement(ev AdvancementEvent) {
	if ev.Player == nil || !ev.AnnounceToChat {
		return
	}
	o.emit(schema.EventAdvancement, schema.AdvancementGet{
		User:        makeUser(o.server, ev.Player),
		Title:       ev.Title,
		Description: ev.Description,
	})
}

// OnDeath relays player deaths and ignores every other entity.
func (o *Outbound) OnDeath(ev DeathEvent) {
	p, ok := ev.Entity.(Player)
	if !ok {
		return
	}
	o.emit(schema.EventPlayerDied, schema.PlayerDied{
		User:         makeUser(o.server, p),
		DeathMessage: ev.DeathMessage,
	})
}

func (o *Outbound) emit(event string, payload any) {
	o.record(event, o.transport.Emit(event, payload))
}

func (o *Outbound) record(event string, err error) {
	if err != nil {
		o.metrics.outboundEvent(event, "dropped")
		o.log.Debug("outbound event dropped", "event", event, "error", err)
		return
	}
	o.metrics.outboundEvent(event, "sent")
}
