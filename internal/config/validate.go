package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.WSURL == "" {
		return errors.New("server.ws_url is required")
	}
	if c.Server.CatalogURL == "" {
		return errors.New("server.catalog_url is required")
	}

	if c.Realtime.ReconnectBaseDelay <= 0 {
		return errors.New("realtime.reconnect_base_delay must be > 0")
	}
	if c.Realtime.MaxReconnectAttempts < 1 {
		return errors.New("realtime.max_reconnect_attempts must be >= 1")
	}
	if c.Realtime.WatchdogInterval <= 0 {
		return errors.New("realtime.watchdog_interval must be > 0")
	}
	if c.Realtime.StreamBuffer < 1 {
		return errors.New("realtime.stream_buffer must be >= 1")
	}

	if err := c.Alerts.validate(); err != nil {
		return err
	}

	if c.Recorder.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (a *AlertsConfig) validate() error {
	if a.FundWarning <= 0 || a.FundError <= 0 || a.MarketWarning <= 0 || a.MarketError <= 0 {
		return errors.New("alerts thresholds must be > 0")
	}
	if a.FundWarning >= a.FundError {
		return fmt.Errorf("alerts.fund_warning (%v) must be below alerts.fund_error (%v)", a.FundWarning, a.FundError)
	}
	if a.MarketWarning >= a.MarketError {
		return fmt.Errorf("alerts.market_warning (%v) must be below alerts.market_error (%v)", a.MarketWarning, a.MarketError)
	}
	if a.FeedCapacity < 1 {
		return errors.New("alerts.feed_capacity must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
