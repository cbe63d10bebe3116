// Package transport defines the push-channel contract consumed by the
// realtime session and its WebSocket implementation.
//
// The WebSocket transport:
//   - Maintains one connection to the fund server push endpoint
//   - Classifies inbound frames into fund, market, and notification streams
//   - Sends fire-and-forget subscribe/unsubscribe command frames
//   - Detects stale connections via ping timeout
//
// It never reconnects on its own; reconnection policy belongs to the
// connection supervisor.
package transport
