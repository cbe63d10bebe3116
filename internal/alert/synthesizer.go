package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leowzhang/fundwatch/internal/model"
)

// Thresholds are the fractional change magnitudes that trigger alerts.
// A fund moving past Warning produces a warning, past Error an error.
type Thresholds struct {
	FundWarning   float64
	FundError     float64
	MarketWarning float64
	MarketError   float64
}

// DefaultThresholds returns the stock dashboard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FundWarning:   0.05,
		FundError:     0.08,
		MarketWarning: 0.02,
		MarketError:   0.03,
	}
}

// Synthesizer converts raw ticks into severity-tagged notifications. It is a
// pure function of the event: zero or one notification per tick, no state.
type Synthesizer struct {
	thresholds Thresholds
}

// NewSynthesizer creates a synthesizer. Zero-valued thresholds fall back to
// the defaults.
func NewSynthesizer(t Thresholds) *Synthesizer {
	def := DefaultThresholds()
	if t.FundWarning == 0 {
		t.FundWarning = def.FundWarning
	}
	if t.FundError == 0 {
		t.FundError = def.FundError
	}
	if t.MarketWarning == 0 {
		t.MarketWarning = def.MarketWarning
	}
	if t.MarketError == 0 {
		t.MarketError = def.MarketError
	}
	return &Synthesizer{thresholds: t}
}

// FromFundUpdate returns the notification for a fund tick, if the daily
// change magnitude crosses a threshold.
func (s *Synthesizer) FromFundUpdate(u model.FundUpdate) (model.Notification, bool) {
	level, ok := classify(u.DailyChange, s.thresholds.FundWarning, s.thresholds.FundError)
	if !ok {
		return model.Notification{}, false
	}

	return model.Notification{
		ID:        newID("fund"),
		Title:     "Fund swing alert",
		Content:   fmt.Sprintf("Fund %s moved %s today", u.Code, formatPercent(u.DailyChange)),
		Level:     level,
		Timestamp: eventTime(u.UpdateTime),
	}, true
}

// FromMarketUpdate returns the notification for a market index tick, if the
// change magnitude crosses a threshold.
func (s *Synthesizer) FromMarketUpdate(u model.MarketIndexUpdate) (model.Notification, bool) {
	level, ok := classify(u.ChangePercent, s.thresholds.MarketWarning, s.thresholds.MarketError)
	if !ok {
		return model.Notification{}, false
	}

	return model.Notification{
		ID:        newID("market"),
		Title:     "Market swing alert",
		Content:   fmt.Sprintf("Index %s moved %s", u.Index, formatPercent(u.ChangePercent)),
		Level:     level,
		Timestamp: eventTime(u.UpdateTime),
	}, true
}

// classify maps a fractional change magnitude to a severity. Values at or
// below the warning threshold produce nothing.
func classify(change, warning, errorLevel float64) (model.Level, bool) {
	magnitude := change
	if magnitude < 0 {
		magnitude = -magnitude
	}

	switch {
	case magnitude > errorLevel:
		return model.LevelError, true
	case magnitude > warning:
		return model.LevelWarning, true
	}
	return "", false
}

// formatPercent renders a fractional change as a signed percentage with two
// decimal places (0.09 -> "9.00%").
func formatPercent(change float64) string {
	return fmt.Sprintf("%.2f%%", change*100)
}

// newID builds a feed-unique notification ID.
func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
