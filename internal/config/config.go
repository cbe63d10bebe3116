package config

import "time"

// Config is the root configuration for a monitord instance.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Watch    WatchConfig    `yaml:"watch"`
	Database DBConfig       `yaml:"database"`
	Recorder RecorderConfig `yaml:"recorder"`
	Health   HealthConfig   `yaml:"health"`
}

// ServerConfig holds the fund backend endpoints.
type ServerConfig struct {
	CatalogURL string        `yaml:"catalog_url"` // REST base URL for the fund catalog
	WSURL      string        `yaml:"ws_url"`      // WebSocket push endpoint
	Token      string        `yaml:"token"`       // Bearer token, usually ${FUNDWATCH_TOKEN}
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RealtimeConfig holds connection supervision settings.
type RealtimeConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	WatchdogInterval     time.Duration `yaml:"watchdog_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	StreamBuffer         int           `yaml:"stream_buffer"`
}

// AlertsConfig holds alert synthesis thresholds and the feed bound.
// Thresholds are fractional: 0.05 means 5%.
type AlertsConfig struct {
	FundWarning   float64 `yaml:"fund_warning"`
	FundError     float64 `yaml:"fund_error"`
	MarketWarning float64 `yaml:"market_warning"`
	MarketError   float64 `yaml:"market_error"`
	FeedCapacity  int     `yaml:"feed_capacity"`
}

// WatchConfig holds the initial desired-subscription set.
type WatchConfig struct {
	Funds         []string `yaml:"funds"`
	Indices       []string `yaml:"indices"`
	Notifications bool     `yaml:"notifications"`
}

// DBConfig holds the PostgreSQL connection for NAV tick history.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds tick recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// HealthConfig holds the health/status HTTP endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
