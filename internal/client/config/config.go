package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds runtime settings shared by the CLI and the admin console.
type Config struct {
	Environment string
	APIBaseURL  string
	Origin      string

	StatePath string
	RedisURL  string

	SessionTimeout      time.Duration
	ExpiryWarning       time.Duration
	CheckInterval       time.Duration
	ActivityDebounce    time.Duration
	SubscriptionTimeout time.Duration

	AdminHosts       []string
	EnforceAdminHost bool
	ConsoleAddr      string

	GitHubClientID string

	LogLevel  string
	LogFormat string

	// enforceSet records that some source set EnforceAdminHost explicitly.
	enforceSet bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Environment = EnvProduction
	c.StatePath = defaultStatePath()
	c.SessionTimeout = 60 * time.Minute
	c.ExpiryWarning = 5 * time.Minute
	c.CheckInterval = time.Minute
	c.ActivityDebounce = 5 * time.Second
	c.SubscriptionTimeout = 5 * time.Second
	c.AdminHosts = []string{"admin.aivedha.ai"}
	c.ConsoleAddr = "127.0.0.1:8089"
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// IsProduction reports whether the production environment is selected.
func (c *Config) IsProduction() bool {
	return c.Environment != EnvDevelopment
}

// finalize derives the values the sources left empty and checks the result.
func (c *Config) finalize() error {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment != EnvProduction && c.Environment != EnvDevelopment {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if c.APIBaseURL == "" {
		if c.IsProduction() {
			c.APIBaseURL = "https://api.aivedha.ai"
		} else {
			c.APIBaseURL = "http://localhost:3001"
		}
	}
	if c.Origin == "" {
		if c.IsProduction() {
			c.Origin = "https://aivedha.ai"
		} else {
			c.Origin = "http://localhost:3000"
		}
	}
	if !c.enforceSet {
		c.EnforceAdminHost = c.IsProduction()
	}

	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %s", c.SessionTimeout)
	}
	if c.ExpiryWarning < 0 || c.ExpiryWarning >= c.SessionTimeout {
		return fmt.Errorf("expiry warning %s must be shorter than the session timeout %s", c.ExpiryWarning, c.SessionTimeout)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", c.CheckInterval)
	}
	return nil
}

// Load constructs a Config from args (without the program name): defaults,
// then JSON, environment and flags. Later sources take precedence.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}
	if err := parseEnv(cfg); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadConfig is Load over the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "aivedha-state.db"
	}
	return dir + string(os.PathSeparator) + "aivedha" + string(os.PathSeparator) + "state.db"
}
