package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the registry server configuration.
type Config struct {
	ListenAddr    string        `mapstructure:"listen_addr"`
	DBPath        string        `mapstructure:"db_path"`
	PurgeEvery    time.Duration `mapstructure:"purge_every"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// LoadConfig reads the server configuration from an optional file, with
// FLEETPULSE_-prefixed environment overrides and safe defaults. An empty
// path searches the working directory for fleetpulse-server.{yaml,json,toml}.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8787")
	v.SetDefault("db_path", "fleetpulse.db")
	v.SetDefault("purge_every", "6h")
	v.SetDefault("shutdown_grace", "10s")

	v.SetEnvPrefix("FLEETPULSE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	} else {
		v.SetConfigName("fleetpulse-server")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No config file: run on defaults and env overrides.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
