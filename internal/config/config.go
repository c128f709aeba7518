// Package config handles agent configuration: YAML file loading, .env and
// environment-variable overrides, validation and defaults.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guzun-corp/tsight-agent/internal/domain"
	"github.com/guzun-corp/tsight-agent/internal/filter"
)

// ServerConfig identifies the task-queue server and the agent's credential.
type ServerConfig struct {
	APIKey    string `yaml:"api_key"`
	ServerURL string `yaml:"server_url"`
}

// DiscoveryConfig tunes schema discovery.
type DiscoveryConfig struct {
	// Concurrency bounds the per-table discovery fan-out (default 8).
	Concurrency int `yaml:"concurrency"`
	// Schedule is a cron expression for periodic re-discovery
	// (default "@hourly"). Discovery also runs once at startup.
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig controls the /health + /metrics listener.
// An empty address disables the listener.
type TelemetryConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the root agent configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Datasources   []domain.DataSource `yaml:"datasources"`
	GlobalFilters *filter.Config      `yaml:"global_filters"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	LogLevel      string              `yaml:"log_level"`
	// PollIntervalSeconds paces queue polling (default 1).
	PollIntervalSeconds uint `yaml:"poll_interval"`
}

// PollInterval returns the queue polling pace as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultPath is the platform config location, e.g.
// ~/.config/tsight_agent/config.yaml on Linux.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "tsight_agent", "config.yaml")
}

// Load reads the configuration from path. An empty path tries the platform
// default location first, then ./config.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		candidates := []string{DefaultPath(), "config.yaml"}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("configuration file not found, expected at %s", DefaultPath())
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnv lets environment variables override file values, so credentials
// can stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TSIGHT_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("TSIGHT_SERVER_URL"); v != "" {
		c.Server.ServerURL = v
	}
	if v := os.Getenv("TSIGHT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Discovery.Concurrency == 0 {
		c.Discovery.Concurrency = 8
	}
	if c.Discovery.Schedule == "" {
		c.Discovery.Schedule = "@hourly"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 1
	}
	for i := range c.Datasources {
		if c.Datasources[i].TimeoutSeconds == 0 {
			c.Datasources[i].TimeoutSeconds = 60
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("server.api_key is required (or set TSIGHT_API_KEY)")
	}
	if c.Server.ServerURL == "" {
		return fmt.Errorf("server.server_url is required (or set TSIGHT_SERVER_URL)")
	}

	seen := make(map[string]bool, len(c.Datasources))
	for _, ds := range c.Datasources {
		if ds.Name == "" {
			return fmt.Errorf("datasource name must not be empty")
		}
		if seen[ds.Name] {
			return fmt.Errorf("duplicate datasource name %q", ds.Name)
		}
		seen[ds.Name] = true
		if len(ds.Hosts) == 0 {
			return fmt.Errorf("datasource %q: at least one host is required", ds.Name)
		}
	}
	return nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
