package saga

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const DefaultPollInterval = time.Second

// ManagerConfig carries the manager's scheduling tunables. Per-saga
// behavior (retries, compensation, timeout) lives in Config on the
// definition instead.
type ManagerConfig struct {
	// PollInterval is the delay between polling passes over due sagas.
	PollInterval time.Duration `env:"SAGA_POLL_INTERVAL" envDefault:"1s"`
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{PollInterval: DefaultPollInterval}
}

// ManagerConfigFromEnv reads the configuration from the environment,
// falling back to defaults.
func ManagerConfigFromEnv() (ManagerConfig, error) {
	var cfg ManagerConfig
	if err := env.Parse(&cfg); err != nil {
		return ManagerConfig{}, fmt.Errorf("failed to parse saga config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return ManagerConfig{}, fmt.Errorf("poll interval must be positive")
	}
	return cfg, nil
}
