package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vovakirdan/chatbridge/display"
	"github.com/vovakirdan/chatbridge/schema"
	"github.com/vovakirdan/chatbridge/transport"
)

// Entity is anything in the world that can die.
type Entity interface {
	DisplayName() string
}

// Player is a user-controlled entity. ID is stable across sessions.
type Player interface {
	Entity
	ID() string
}

// ChatEvent is a chat line typed by a player.
type ChatEvent struct {
	Player  Player
	RawText string
}

// AdvancementEvent is an advancement earned by a player.
type AdvancementEvent struct {
	Player         Player
	Title          string
	Description    string
	AnnounceToChat bool
}

// DeathEvent reports any entity's death; only player deaths are relayed.
type DeathEvent struct {
	Entity       Entity
	DeathMessage string
}

// EventSource is the host's local event stream. Each method registers one
// callback; the host may invoke callbacks from any goroutine.
type EventSource interface {
	SubscribeChat(func(ChatEvent))
	SubscribeJoin(func(Player))
	SubscribeLeave(func(Player))
	SubscribeAdvancement(func(AdvancementEvent))
	SubscribeDeath(func(DeathEvent))
}

// CommandSink receives the textual outcomes of a command run by the host.
type CommandSink interface {
	SendOutcome(text string)
	AcceptsSuccess() bool
	AcceptsFailure() bool
}

// Server is the host state and effects the bridge reads and drives.
type Server interface {
	Players() []Player
	IsPrivileged(p Player) bool
	AverageTickTime() time.Duration
	WorldTime() int64
	Status() json.RawMessage
	Execute(command string, sink CommandSink)
	Broadcast(c display.Component)
}

// Snapshot is the host state reported in a query reply.
type Snapshot struct {
	Users           []schema.User
	AverageTickTime time.Duration
	WorldTime       int64
	Status          json.RawMessage
}

// Snapshotter is implemented by hosts that can capture query state in one step.
type Snapshotter interface {
	Snapshot() Snapshot
}

// Transport is the session surface the bridge needs; *transport.Session implements it.
type Transport interface {
	On(kind string, h transport.Handler) error
	Emit(event string, v any) error
	Send(v any) error
	OnLifecycle(fn func(transport.Notification))
	Connect(ctx context.Context) error
	Close() error
}

var _ Transport = (*transport.Session)(nil)

func makeUser(s Server, p Player) schema.User {
	return schema.User{
		DisplayName:  p.DisplayName(),
		ID:           p.ID(),
		IsPrivileged: s.IsPrivileged(p),
	}
}
