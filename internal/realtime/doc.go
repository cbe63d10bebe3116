// Package realtime implements the push session core.
//
// The session:
//   - Owns the desired-subscription registry and the notification feed
//   - Supervises the transport connection: linear retry (n * 5s, capped at
//     5 attempts) plus an independent 30s watchdog
//   - Re-issues every desired subscription after each reconnect
//   - Routes inbound pushes in arrival order to typed subscriber streams
//   - Synthesizes threshold alerts into the bounded feed
//
// All transport failures degrade to a disconnected status transition; none
// are fatal to the hosting process.
package realtime
