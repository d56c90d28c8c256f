// ABOUTME: Configuration loading and parsing for toolmesh
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete toolmesh configuration
type Config struct {
	Database Database `yaml:"database"`
	Plugins  Plugins  `yaml:"plugins"`
	Servers  Servers  `yaml:"servers"`
	Policy   Policy   `yaml:"policy"`
	Logging  Logging  `yaml:"logging"`
}

// Database holds database configuration
type Database struct {
	Path string `yaml:"path"`
}

// Plugins holds internal tool plugin discovery configuration
type Plugins struct {
	// Dir is the root directory scanned for tool plugin manifests.
	Dir string `yaml:"dir"`
}

// Servers holds timing configuration for external tool server connections
type Servers struct {
	ConnectTimeout time.Duration `yaml:"-"`
	CallTimeout    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ConnectTimeoutRaw string `yaml:"connect_timeout"`
	CallTimeoutRaw    string `yaml:"call_timeout"`
}

// Policy holds network egress policy configuration
type Policy struct {
	// RestrictedEgress disallows calls to tool servers reachable only over
	// a non-loopback network path.
	RestrictedEgress bool `yaml:"restricted_egress"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file omits a value.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCallTimeout    = 60 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Plugins.Dir == "" {
		return fmt.Errorf("plugins.dir is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	cfg.Servers.ConnectTimeout = DefaultConnectTimeout
	if cfg.Servers.ConnectTimeoutRaw != "" {
		cfg.Servers.ConnectTimeout, err = time.ParseDuration(cfg.Servers.ConnectTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_timeout %q: %w", cfg.Servers.ConnectTimeoutRaw, err)
		}
	}

	cfg.Servers.CallTimeout = DefaultCallTimeout
	if cfg.Servers.CallTimeoutRaw != "" {
		cfg.Servers.CallTimeout, err = time.ParseDuration(cfg.Servers.CallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing call_timeout %q: %w", cfg.Servers.CallTimeoutRaw, err)
		}
	}

	return nil
}
