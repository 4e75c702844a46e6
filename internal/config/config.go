// Package config provides configuration parsing and validation for lansync.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agent configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Role      string          `yaml:"role"` // serve, pull, or both
	Listen    ListenConfig    `yaml:"listen"`
	Peer      PeerConfig      `yaml:"peer"`
	Sync      SyncConfig      `yaml:"sync"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DeviceConfig contains identity and logging settings.
type DeviceConfig struct {
	Name      string `yaml:"name"`       // shown to the peer during Hello
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
}

// ListenConfig configures the server-side TCP listener.
type ListenConfig struct {
	Address string `yaml:"address"`
}

// PeerConfig configures the client-side dial target.
type PeerConfig struct {
	Address string `yaml:"address"`
}

// SyncConfig tunes the sync root and handshake/tree timeouts.
type SyncConfig struct {
	RootDir          string        `yaml:"root_dir"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	TreeTimeout      time.Duration `yaml:"tree_timeout"`
}

// RateLimitConfig paces outbound file streaming.
type RateLimitConfig struct {
	BytesPerSecond int64 `yaml:"bytes_per_second"` // 0 disables pacing
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Role: "both",
		Listen: ListenConfig{
			Address: ":7332",
		},
		Sync: SyncConfig{
			RootDir:          "./sync",
			HandshakeTimeout: 30 * time.Second,
			TreeTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9332",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, starting from Default and
// expanding ${VAR} / $VAR references from the environment before unmarshal.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Device.LogLevel) {
		errs = append(errs, fmt.Sprintf("device.log_level: invalid value %q (must be debug, info, warn, or error)", c.Device.LogLevel))
	}
	if !isValidLogFormat(c.Device.LogFormat) {
		errs = append(errs, fmt.Sprintf("device.log_format: invalid value %q (must be text or json)", c.Device.LogFormat))
	}
	if !isValidRole(c.Role) {
		errs = append(errs, fmt.Sprintf("role: invalid value %q (must be serve, pull, or both)", c.Role))
	}

	if c.Role == "serve" || c.Role == "both" {
		if c.Listen.Address == "" {
			errs = append(errs, "listen.address is required when role is serve or both")
		}
	}
	if c.Role == "pull" {
		if c.Peer.Address == "" {
			errs = append(errs, "peer.address is required when role is pull")
		}
	}

	if c.Sync.RootDir == "" {
		errs = append(errs, "sync.root_dir is required")
	}
	if c.Sync.HandshakeTimeout <= 0 {
		errs = append(errs, "sync.handshake_timeout must be positive")
	}
	if c.Sync.TreeTimeout <= 0 {
		errs = append(errs, "sync.tree_timeout must be positive")
	}
	if c.RateLimit.BytesPerSecond < 0 {
		errs = append(errs, "rate_limit.bytes_per_second must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when metrics.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

func isValidRole(role string) bool {
	switch role {
	case "serve", "pull", "both":
		return true
	default:
		return false
	}
}

// String returns a YAML representation of the config for debugging.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
