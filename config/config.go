// Package config loads the TOML server configuration file. When the file
// does not exist a fresh one with defaults is written so the operator has
// something to edit.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// FileName is the well-known configuration file name. When the file lives
// inside the served root it is a protected resource: only the admin user
// may touch it over the wire.
const FileName = "ftpd.toml"

// DefaultPort is the control-channel port used when the file names none.
const DefaultPort = 1234

// User is one credential pair as it appears in the file. The password may
// be empty (no password required), plaintext, or a bcrypt hash.
type User struct {
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`
}

// Config is the immutable configuration value handed to the server at
// startup and shared across all sessions.
type Config struct {
	ServerAddr     string        `mapstructure:"server_addr"`
	ServerPort     int           `mapstructure:"server_port"`
	AcceptTimeout  time.Duration `mapstructure:"accept_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	BandwidthLimit int64         `mapstructure:"bandwidth_limit"`
	Users          []User        `mapstructure:"users"`
	Admin          *User         `mapstructure:"admin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", "127.0.0.1")
	v.SetDefault("server_port", DefaultPort)
	v.SetDefault("accept_timeout", "30s")
	v.SetDefault("idle_timeout", "5m")
	v.SetDefault("bandwidth_limit", 0)
	v.SetDefault("users", []map[string]any{
		{"name": "anonymous", "password": ""},
	})
}

// Load reads the configuration at path, creating it with defaults first if
// it does not exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("config: create %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("config: invalid server_port %d (must be 0-65535)", c.ServerPort)
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("config: server_addr must not be empty")
	}
	if c.AcceptTimeout < 0 {
		return fmt.Errorf("config: accept_timeout must not be negative")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("config: idle_timeout must not be negative")
	}
	if c.BandwidthLimit < 0 {
		return fmt.Errorf("config: bandwidth_limit must not be negative")
	}
	for _, u := range c.Users {
		if u.Name == "" {
			return fmt.Errorf("config: user with empty name")
		}
	}
	if c.Admin != nil && c.Admin.Name == "" {
		return fmt.Errorf("config: admin with empty name")
	}
	return nil
}

// Addr returns the control-channel listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}
