package transport

import (
	"net/url"
	"time"
)

// Config controls how the session connects.
type Config struct {
	URL    string
	Secret string // sent once in hello as the "secret" auth key

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 keeps reads open indefinitely
	WriteTimeout     time.Duration

	ReconnectInterval time.Duration
	MaxReconnectDelay time.Duration
	MaxReconnectTries int // 0 retries forever

	SendBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectInterval: time.Second,
		MaxReconnectDelay: 30 * time.Second,
		SendBuffer:        256,
	}
}

// Validate reports configuration that would only fail at first use.
func (c Config) Validate() error {
	if c.URL == "" {
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return WrapError(ErrorInvalidConfig, "malformed URL", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	case "":
		return NewError(ErrorInvalidConfig, "URL scheme is mandatory")
	default:
		return NewError(ErrorInvalidConfig, "unsupported URL scheme "+u.Scheme)
	}
	if u.Host == "" {
		return NewError(ErrorInvalidConfig, "URL has no host")
	}
	if c.Secret == "" {
		return NewError(ErrorInvalidConfig, "empty secret")
	}
	if c.ReconnectInterval < 0 || c.MaxReconnectDelay < 0 || c.MaxReconnectTries < 0 {
		return NewError(ErrorInvalidConfig, "negative reconnect setting")
	}
	return nil
}
