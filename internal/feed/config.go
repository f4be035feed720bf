package feed

import (
	"errors"
	"time"
)

// Default values for feed reconnection.
const (
	DefaultBaseDelay        = 3 * time.Second
	DefaultMaxAttempts      = 5
	DefaultHandshakeTimeout = 10 * time.Second
)

// Configuration errors.
var (
	ErrEmptyURL           = errors.New("feed URL cannot be empty")
	ErrInvalidDelay       = errors.New("base delay must be positive")
	ErrInvalidMaxAttempts = errors.New("max attempts must not be negative")
	ErrInvalidHandshake   = errors.New("handshake timeout must be positive")
)

// StreamConfig holds configuration for the reconnecting feed client.
type StreamConfig struct {
	// URL is the websocket endpoint of the feed.
	URL string

	// BaseDelay is the delay before the first reconnect; each further attempt doubles it.
	BaseDelay time.Duration

	// MaxAttempts is the number of reconnects scheduled before the stream is exhausted.
	MaxAttempts int

	// HandshakeTimeout bounds each dial. A timed-out dial is a transport error.
	HandshakeTimeout time.Duration

	// OnStateChange, if set, is called synchronously on every connection state change.
	OnStateChange func(ConnectionState)
}

// DefaultStreamConfig returns a StreamConfig with the standard backoff schedule
// (3s, 6s, 12s, 24s, 48s). The URL must be provided by the caller.
func DefaultStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:              url,
		BaseDelay:        DefaultBaseDelay,
		MaxAttempts:      DefaultMaxAttempts,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

// Validate checks that the configuration is valid.
func (c StreamConfig) Validate() error {
	if c.URL == "" {
		return ErrEmptyURL
	}
	if c.BaseDelay <= 0 {
		return ErrInvalidDelay
	}
	if c.MaxAttempts < 0 {
		return ErrInvalidMaxAttempts
	}
	if c.HandshakeTimeout <= 0 {
		return ErrInvalidHandshake
	}
	return nil
}
