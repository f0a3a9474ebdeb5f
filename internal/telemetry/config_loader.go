package telemetry

import (
	"github.com/arloliu/fuda"
)

// LoadConfig loads Config from a file path (YAML or JSON).
// Environment variables override file values; unset fields fall back to
// their struct-tag defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := fuda.LoadFile(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConfigFromEnv builds a Config purely from struct-tag defaults and
// environment variables, with no backing file. Used when the service is
// configured entirely through the environment.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := fuda.SetDefaults(cfg); err != nil {
		return nil, err
	}
	if err := fuda.LoadEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
