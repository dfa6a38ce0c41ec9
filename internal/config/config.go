// Package config wraps viper behind a small nil-safe accessor used by the
// agent and server configuration loaders.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is a nil-safe view over a viper instance. A Config built from a nil
// viper returns zero values from every accessor.
type Config struct {
	v *viper.Viper
}

// New wraps v. A nil v yields an empty Config.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// GetString returns the string value for key, or "".
func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// GetInt returns the int value for key, or 0.
func (c *Config) GetInt(key string) int {
	if c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

// GetBool returns the bool value for key, or false.
func (c *Config) GetBool(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

// GetDuration returns the duration value for key, or 0.
func (c *Config) GetDuration(key string) time.Duration {
	if c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

// IsSet reports whether key has a value.
func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the subtree rooted at key. Always non-nil, so callers can
// chain accessors without checking.
func (c *Config) Sub(key string) *Config {
	if c.v == nil {
		return New(nil)
	}
	return New(c.v.Sub(key))
}

// Unmarshal decodes the configuration into target via mapstructure tags.
func (c *Config) Unmarshal(target any) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}
