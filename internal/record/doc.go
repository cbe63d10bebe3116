// Package record persists NAV and market index ticks to PostgreSQL.
//
// The Recorder consumes the session's fund and market streams, accumulates
// rows in memory, and flushes them in batches when either the batch size is
// reached or the flush interval elapses. Inserts use ON CONFLICT DO NOTHING
// so replayed ticks are counted as conflicts rather than errors.
package record
