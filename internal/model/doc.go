// Package model defines the domain types shared across fundwatch components:
// fund catalog entries, push event ticks, notifications, and the session
// status snapshot.
package model
