// Package subscription implements the desired-subscription registry.
//
// The registry:
//   - Tracks which funds, market indices, and notification channels the
//     caller wants live updates for
//   - Is a pure in-memory set; it never talks to the transport
//   - Survives disconnects so the whole set can be re-issued on reconnect
package subscription
