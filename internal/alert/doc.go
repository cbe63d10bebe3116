// Package alert implements notification synthesis and the bounded feed.
//
// The synthesizer:
//   - Maps fund and market ticks to zero or one severity-tagged notification
//   - Uses fractional change thresholds (warning and error per category)
//
// The feed:
//   - Holds at most 50 items by default, newest first
//   - Tracks per-item read state; read never transitions back to unread
package alert
