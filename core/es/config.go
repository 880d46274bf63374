package es

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// DefaultSnapshotFrequency is how many events accumulate between
// automatic snapshots.
const DefaultSnapshotFrequency Version = 10

// Config carries tunables for the event sourcing layer. Wiring still
// happens through functional options; Config only provides defaults and
// an environment-backed way to set them.
type Config struct {
	// SnapshotFrequency is the number of events between automatic
	// snapshots on save. Zero disables automatic snapshots.
	SnapshotFrequency int64 `env:"ES_SNAPSHOT_FREQUENCY" envDefault:"10"`
}

func DefaultConfig() Config {
	return Config{SnapshotFrequency: int64(DefaultSnapshotFrequency)}
}

// ConfigFromEnv reads the configuration from the environment, falling
// back to defaults.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse es config: %w", err)
	}
	if cfg.SnapshotFrequency < 0 {
		return Config{}, fmt.Errorf("snapshot frequency must not be negative")
	}
	return cfg, nil
}

// Options returns repository options matching the configuration.
func (c Config) Options() []RepositoryOption {
	return []RepositoryOption{WithSnapshotFrequency(Version(c.SnapshotFrequency))}
}
