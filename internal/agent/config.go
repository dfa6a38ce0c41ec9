// Package agent runs the FleetPulse edge side: the concurrent probe cycle,
// the adaptive report loop, and the configuration-sync loop against the
// central registry.
package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/roomoperable/fleetpulse/internal/config"
	"github.com/roomoperable/fleetpulse/internal/presence"
	"github.com/spf13/viper"
)

// Config holds the agent process configuration. The device topology itself
// is not here: it lives in the synced document at ConfigPath, owned by the
// sync protocol.
type Config struct {
	ServerURL      string        `mapstructure:"server_url"`
	SiteName       string        `mapstructure:"site_name"`
	SiteToken      string        `mapstructure:"site_token"`
	ConfigPath     string        `mapstructure:"config_path"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	MaxParallel    int           `mapstructure:"max_parallel"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`

	MQTT presence.Config `mapstructure:"mqtt"`
}

// LoadConfig reads the agent configuration from an optional file with
// FLEETPULSE_-prefixed environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server_url", "http://localhost:8787")
	v.SetDefault("config_path", "fleetpulse-devices.json")
	v.SetDefault("sync_interval", "5m")
	v.SetDefault("max_parallel", 8)
	v.SetDefault("request_timeout", "15s")
	v.SetDefault("shutdown_grace", "10s")

	v.SetEnvPrefix("FLEETPULSE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	} else {
		v.SetConfigName("fleetpulse-agent")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	wrapped := config.New(v)
	if err := wrapped.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.SiteToken == "" {
		return errors.New("site_token is required")
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 8
	}
	if c.SyncInterval < time.Minute {
		c.SyncInterval = time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	return nil
}
