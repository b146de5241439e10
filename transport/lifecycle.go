package transport

import "time"

// ConnectionState is the session's position in its connect/reconnect cycle.
// Once StateClosed is reached no other state is ever stored.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

var stateNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "closed"}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// NotificationKind names a lifecycle notification.
type NotificationKind int

const (
	// Opened fires after every accepted handshake, including reconnects.
	Opened NotificationKind = iota + 1
	// Closed fires when an established connection is lost.
	Closed
	// Reconnecting fires before each retry delay.
	Reconnecting
)

var notificationNames = [...]string{Opened: "opened", Closed: "closed", Reconnecting: "reconnecting"}

func (k NotificationKind) String() string {
	if k <= 0 || int(k) >= len(notificationNames) {
		return "unknown"
	}
	return notificationNames[k]
}

// Notification is a lifecycle signal delivered on the session's callback goroutine.
type Notification struct {
	Kind NotificationKind
	// Connection counts accepted handshakes; 1 for the first Opened.
	Connection uint64
	Attempt    int
	Delay      time.Duration
	Err        error
}
