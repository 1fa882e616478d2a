// Package config loads scanner settings from flags, environment and an
// optional YAML file
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/commjoen/domainposture/internal/dns"
	"github.com/commjoen/domainposture/internal/headers"
)

// EnvPrefix is prepended to every environment variable, e.g. DOMAINPOSTURE_TIMEOUT
const EnvPrefix = "DOMAINPOSTURE"

// Config holds the resolved settings
type Config struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Deadline     time.Duration `mapstructure:"deadline"`
	Records      []string      `mapstructure:"records"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	DNSServers   []string      `mapstructure:"dns_servers"`
	WHOIS        bool          `mapstructure:"whois"`
	Concurrent   int           `mapstructure:"concurrent"`
	LogLevel     string        `mapstructure:"log_level"`
	Server       ServerConfig  `mapstructure:"server"`
}

// ServerConfig holds the API server settings
type ServerConfig struct {
	Addr      string  `mapstructure:"addr"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// New returns a viper instance with defaults and environment binding applied
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("timeout", 5*time.Second)
	v.SetDefault("deadline", 15*time.Second)
	v.SetDefault("records", dns.DefaultRecordTypes)
	v.SetDefault("max_redirects", headers.DefaultMaxRedirects)
	v.SetDefault("dns_servers", []string{})
	v.SetDefault("whois", false)
	v.SetDefault("concurrent", 4)
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":5001")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
}

// ReadFile reads path, or $HOME/.domainposture.yaml when path is empty. A
// missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("$HOME")
		v.SetConfigName(".domainposture")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Records = normalizeList(cfg.Records, strings.ToUpper)
	cfg.DNSServers = normalizeList(cfg.DNSServers, nil)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the scanner cannot run with
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Deadline < c.Timeout {
		return fmt.Errorf("deadline (%s) must not be shorter than timeout (%s)", c.Deadline, c.Timeout)
	}
	if len(c.Records) == 0 {
		return errors.New("at least one record type is required")
	}
	if err := dns.ValidateRecordTypes(c.Records); err != nil {
		return err
	}
	if c.Concurrent <= 0 {
		return fmt.Errorf("concurrent must be positive, got %d", c.Concurrent)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server rate limit must not be negative, got %g", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return fmt.Errorf("server rate burst must be positive when rate limiting, got %d", c.Server.RateBurst)
	}
	return nil
}

// normalizeList trims entries, drops empty ones and splits comma-separated
// values that arrive as a single string from the environment
func normalizeList(in []string, transform func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if transform != nil {
				part = transform(part)
			}
			out = append(out, part)
		}
	}
	return out
}
