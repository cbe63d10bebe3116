package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultCatalogTimeout       = 30 * time.Second
	DefaultCatalogMaxRetries    = 3
	DefaultReconnectBaseDelay   = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultWatchdogInterval     = 30 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultStreamBuffer         = 64
	DefaultFundWarning          = 0.05
	DefaultFundError            = 0.08
	DefaultMarketWarning        = 0.02
	DefaultMarketError          = 0.03
	DefaultFeedCapacity         = 50
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 5000
	DefaultHealthPort           = 8080
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Timeout == 0 {
		c.Server.Timeout = DefaultCatalogTimeout
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = DefaultCatalogMaxRetries
	}

	// Realtime defaults
	if c.Realtime.ReconnectBaseDelay == 0 {
		c.Realtime.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Realtime.MaxReconnectAttempts == 0 {
		c.Realtime.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Realtime.WatchdogInterval == 0 {
		c.Realtime.WatchdogInterval = DefaultWatchdogInterval
	}
	if c.Realtime.PingTimeout == 0 {
		c.Realtime.PingTimeout = DefaultPingTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.StreamBuffer == 0 {
		c.Realtime.StreamBuffer = DefaultStreamBuffer
	}

	// Alerts defaults
	if c.Alerts.FundWarning == 0 {
		c.Alerts.FundWarning = DefaultFundWarning
	}
	if c.Alerts.FundError == 0 {
		c.Alerts.FundError = DefaultFundError
	}
	if c.Alerts.MarketWarning == 0 {
		c.Alerts.MarketWarning = DefaultMarketWarning
	}
	if c.Alerts.MarketError == 0 {
		c.Alerts.MarketError = DefaultMarketError
	}
	if c.Alerts.FeedCapacity == 0 {
		c.Alerts.FeedCapacity = DefaultFeedCapacity
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
