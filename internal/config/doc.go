// Package config loads and validates the monitord YAML configuration,
// expanding ${VAR} environment references and applying defaults for
// everything optional.
package config
