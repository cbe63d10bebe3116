package model

import "time"

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// Fund is the catalog metadata for a single fund.
type Fund struct {
	Code      string    // Fund code (e.g., "000001"), primary key
	Name      string    // Display name
	Type      string    // Fund type
	Company   string    // Managing company
	LatestNAV float64   // Most recent net asset value
	UpdatedAt time.Time // Last catalog update
}

// -----------------------------------------------------------------------------
// Push Event Types
// -----------------------------------------------------------------------------

// FundUpdate is a single NAV tick for a watched fund.
type FundUpdate struct {
	FundID            string    // Server-side fund identifier
	Code              string    // Fund code (e.g., "000001")
	NAV               float64   // Net asset value, >= 0
	DailyChange       float64   // Fractional daily change (0.05 = 5%)
	DailyChangeAmount float64   // NAV * DailyChange
	UpdateTime        time.Time // Server timestamp for the tick
}

// MarketIndexUpdate is a single tick for a watched market index.
type MarketIndexUpdate struct {
	Index         string    // Index code (e.g., "399001")
	CurrentValue  float64   // Current index value
	Change        float64   // Absolute change in points
	ChangePercent float64   // Fractional change (0.02 = 2%)
	UpdateTime    time.Time // Server timestamp for the tick
}

// -----------------------------------------------------------------------------
// Notification Types
// -----------------------------------------------------------------------------

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

// Notification is a single user-facing feed item.
//
// Read transitions false -> true only, never back.
type Notification struct {
	ID        string    // Unique per notification
	Title     string    // Short headline
	Content   string    // Body text
	Level     Level     // info, warning, or error
	Timestamp time.Time // Creation time
	Read      bool      // Read state
}

// -----------------------------------------------------------------------------
// Session Status
// -----------------------------------------------------------------------------

// Status is an immutable snapshot of the realtime session. A new value is
// produced after every state-changing event; fields are never mutated in
// place.
type Status struct {
	Connected           bool      // True while the transport is connected
	LastUpdate          time.Time // Time of the last processed inbound event
	ActiveSubscriptions []string  // Rendered subscription keys, sorted
	MessageCount        int64     // Monotonic count of processed events and subscription changes
	RetriesExhausted    bool      // True once the reconnect cap is reached; cleared by Connect
}
