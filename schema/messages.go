// Package schema defines the payloads exchanged with the remote party.
// Values are built immediately before a send or after a receive and are
// never retained.
package schema

import "encoding/json"

// Outbound event kinds.
const (
	EventChat         = "message" // the session's default send
	EventPlayerJoined = "playerJoined"
	EventPlayerLeft   = "playerLeft"
	EventAdvancement  = "advancementGet"
	EventPlayerDied   = "playerDied"
)

// Inbound event kinds.
const (
	KindMessage      = "message"
	KindAnnouncement = "announcement"
	KindCommand      = "command"
	KindQuery        = "query"
)

// MaxTickRate is the nominal server tick rate; reported rates never exceed it.
const MaxTickRate = 20.0

// User identifies a player at the moment an event is emitted.
type User struct {
	DisplayName  string `json:"displayName"`
	ID           string `json:"id"`
	IsPrivileged bool   `json:"isPrivileged"`
}

// ChatMessage is relayed for every local chat line.
type ChatMessage struct {
	Author  User   `json:"author"`
	RawText string `json:"rawText"`
}

// PlayerJoined is emitted when a player logs in.
type PlayerJoined struct {
	User User `json:"user"`
}

// PlayerLeft is emitted when a player logs out.
type PlayerLeft struct {
	User User `json:"user"`
}

// AdvancementGet is emitted for advancements announced in chat.
type AdvancementGet struct {
	User        User   `json:"user"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PlayerDied is emitted when a player (not any other entity) dies.
type PlayerDied struct {
	User         User   `json:"user"`
	DeathMessage string `json:"deathMessage"`
}

// QueryResponse is the reply to a query.
type QueryResponse struct {
	OnlineUsers       []User          `json:"onlineUsers"`
	EstimatedTickRate float64         `json:"estimatedTickRate"`
	WorldTime         int64           `json:"worldTime"`
	StatusBlob        json.RawMessage `json:"statusBlob"`
}

// InboundChat is a remote chat line. Author and each Content entry are
// serialized display components, decoded independently.
type InboundChat struct {
	Author  string   `json:"author"`
	Content []string `json:"content"`
}

// Announcement is broadcast verbatim.
type Announcement struct {
	Message string `json:"message"`
}

// Command is handed to the host command executor.
type Command struct {
	CommandText string `json:"commandText"`
}
