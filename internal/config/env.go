package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MES"

// env holds the supported overrides. Unset variables leave the pointers nil.
type env struct {
	Database      *string        `envconfig:"DATABASE"`
	PollInterval  *time.Duration `envconfig:"POLL_INTERVAL"`
	MetricsListen *string        `envconfig:"METRICS_LISTEN"`
	DrainDelay    *time.Duration `envconfig:"DRAIN_DELAY"`
	LogFormat     *string        `envconfig:"LOG_FORMAT"`
}

// ApplyEnv overlays MES_* environment variables onto c.
func ApplyEnv(c *Config) error {
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if e.Database != nil {
		c.Database = *e.Database
	}
	if e.PollInterval != nil {
		c.PollInterval = *e.PollInterval
	}
	if e.MetricsListen != nil {
		c.Metrics.Listen = *e.MetricsListen
	}
	if e.DrainDelay != nil {
		c.Actuator.DrainDelay = *e.DrainDelay
	}
	if e.LogFormat != nil {
		c.Log.Format = *e.LogFormat
	}
	return nil
}
