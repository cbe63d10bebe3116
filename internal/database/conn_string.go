package database

import (
	"fmt"
	"net/url"

	"github.com/leowzhang/fundwatch/internal/config"
)

// BuildConnString renders cfg as a postgres:// URL suitable for pgxpool.
// The password is query-escaped so punctuation in secrets survives the URL.
func BuildConnString(cfg config.DBConfig) string {
	password := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}
