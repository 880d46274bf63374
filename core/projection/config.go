package projection

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultPollInterval    = time.Second
	DefaultStalenessWindow = 5 * time.Minute
)

// Config carries the manager's scheduling tunables.
type Config struct {
	// PollInterval is the delay between polling passes.
	PollInterval time.Duration `env:"PROJECTION_POLL_INTERVAL" envDefault:"1s"`
	// StalenessWindow bounds how long the watermark may stall while
	// unprocessed events exist before the projection counts as
	// unhealthy.
	StalenessWindow time.Duration `env:"PROJECTION_STALENESS_WINDOW" envDefault:"5m"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    DefaultPollInterval,
		StalenessWindow: DefaultStalenessWindow,
	}
}

// ConfigFromEnv reads the configuration from the environment, falling
// back to defaults.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse projection config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("poll interval must be positive")
	}
	if cfg.StalenessWindow <= 0 {
		return Config{}, fmt.Errorf("staleness window must be positive")
	}
	return cfg, nil
}
