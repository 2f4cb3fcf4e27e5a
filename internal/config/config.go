// Package config provides configuration types for policyd, the Postfix
// policy delegation daemon.
//
// Configuration is loaded from YAML plus environment variables via Viper.
// The two fields Postfix itself expects — listener host and port — are also
// bound to the spec-named POLICY_SERVER_HOST/POLICY_SERVER_PORT environment
// variables directly, unprefixed, so an operator can point policyd at a
// socket without writing a config file at all.
package config


// Config is the top-level configuration for policyd.
type Config struct {
	// Server configures the Postfix policy delegation listener and the
	// ambient admin/metrics HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Store configures the persistence backend for rules, limiters,
	// counters, and inquiry records.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Retention configures the retention sweeper.
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error". Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables development features (verbose logging, relaxed
	// validation defaults).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the two listeners policyd runs: the Postfix
// policy delegation socket and the ambient admin/metrics HTTP server.
type ServerConfig struct {
	// Host is the address the policy delegation listener binds to.
	// Defaults to "0.0.0.0" per the Postfix policy delegation convention.
	Host string `yaml:"host" mapstructure:"host"`

	// Port is the TCP port the policy delegation listener binds to.
	// Defaults to 5002.
	Port int `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`

	// HTTPAddr is the address the ambient admin/metrics HTTP server
	// (/healthz, /metrics) binds to. Defaults to "127.0.0.1:8081".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Driver selects the backend: "memory" or "sqlite".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"required,oneof=memory sqlite"`

	// DSN is the sqlite database path. Required when Driver is "sqlite".
	DSN string `yaml:"dsn" mapstructure:"dsn" validate:"omitempty"`
}

// RetentionConfig configures the retention sweeper.
type RetentionConfig struct {
	// InquiryHours is how long inquiry records are kept before deletion.
	// Defaults to 24.
	InquiryHours int `yaml:"inquiry_hours" mapstructure:"inquiry_hours" validate:"omitempty,min=1"`

	// SweepInterval (e.g. "2h", "30m") defaults to "2h". It is not passed
	// to the Sweeper: the sweeper always runs on its built-in 2-hour interval.
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"omitempty"`
}

// SetDevDefaults applies permissive defaults for development mode. Applied
// before validation so a bare `policyd serve --dev` can boot with no config
// file at all.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.LogLevel == "" {
		c.LogLevel = "debug"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5002
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8081"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}

	if c.Retention.InquiryHours == 0 {
		c.Retention.InquiryHours = 24
	}
	if c.Retention.SweepInterval == "" {
		c.Retention.SweepInterval = "2h"
	}
}
