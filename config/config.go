/*
config.go - Server configuration

PURPOSE:
  Loads server configuration from an optional YAML file and applies
  defaults. Command-line flags in cmd/server override file values.

FILE FORMAT (YAML):
  port: 8080
  database: leave.db
  cors_origins:
    - http://localhost:5173
  scheduler:
    enabled: true
    interval: 1h

SEE ALSO:
  - cmd/server/main.go: Flag handling and wiring
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server settings.
type Config struct {
	Port        int             `yaml:"port"`
	Database    string          `yaml:"database"`
	CORSOrigins []string        `yaml:"cors_origins"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
}

// SchedulerConfig controls the background accrual scheduler.
type SchedulerConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

// Duration accepts Go duration strings ("30m", "1h") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Port:        8080,
		Database:    "leave.db",
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: Duration(1 * time.Hour),
		},
	}
}

// Load reads a YAML config file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = Default().Scheduler.Interval
	}
	return cfg, nil
}
