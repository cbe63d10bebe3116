package transport

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrStaleConn     = errors.New("connection stale (no ping)")
	ErrAlreadyClosed = errors.New("already closed")
)

// Status is the transport-level connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	}
	return "unknown"
}

// Message wraps raw push payload bytes with a receive timestamp.
type Message struct {
	Data       []byte    // Raw message bytes from the push channel
	ReceivedAt time.Time // Local timestamp when the frame was read
}

// Transport is the long-lived push channel to the fund server.
//
// Connect and the subscribe calls never block on a round trip; connection
// outcomes surface on the Status stream and data arrives on the three push
// streams. Server-side subscription state is lost on every disconnect, so
// callers must re-issue subscriptions after each reconnect.
type Transport interface {
	// Connect establishes the push channel. Safe to call repeatedly on the
	// same instance after a drop.
	Connect(ctx context.Context) error

	// Disconnect tears down the current channel. The transport stays usable
	// for a later Connect.
	Disconnect() error

	// Status returns the connection-status stream.
	Status() <-chan Status

	// SubscribeFunds asks the server to push NAV updates for the given funds.
	SubscribeFunds(ctx context.Context, ids []string) error

	// UnsubscribeFunds stops NAV updates for the given funds.
	UnsubscribeFunds(ctx context.Context, ids []string) error

	// SubscribeMarket asks the server to push ticks for the given indices.
	SubscribeMarket(ctx context.Context, indices []string) error

	// SubscribeNotifications asks the server to push system notifications.
	SubscribeNotifications(ctx context.Context) error

	// FundUpdates returns the raw fund update stream.
	FundUpdates() <-chan Message

	// MarketData returns the raw market index stream.
	MarketData() <-chan Message

	// Notifications returns the raw system notification stream.
	Notifications() <-chan Message
}

// command is a push-channel command frame.
type command struct {
	ID     int64       `json:"id"`
	Cmd    string      `json:"cmd"`
	Params interface{} `json:"params"`
}

// subscribeParams are parameters for subscribe/unsubscribe commands.
type subscribeParams struct {
	Channels []string `json:"channels"`
	FundIDs  []string `json:"fund_ids,omitempty"`
	Indices  []string `json:"indices,omitempty"`
}

// Channel names understood by the push server.
const (
	channelFundUpdates   = "fund_updates"
	channelMarketData    = "market_data"
	channelNotifications = "notifications"
)

// WSConfig configures the WebSocket transport.
type WSConfig struct {
	URL          string        // WebSocket URL (e.g., wss://fund.example.com/ws)
	Token        string        // Bearer token (empty = no auth)
	PingTimeout  time.Duration // Max time without ping before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Per-stream channel buffer size
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}
