// Package database builds the PostgreSQL connection pool for NAV tick
// history.
package database
