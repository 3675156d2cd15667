package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "AIVEDHA_"

var envKeyMap = map[string]string{
	"AIVEDHA_ENVIRONMENT":          "environment",
	"AIVEDHA_API_BASE_URL":         "api_base_url",
	"AIVEDHA_ORIGIN":               "origin",
	"AIVEDHA_STATE_PATH":           "state_path",
	"AIVEDHA_REDIS_URL":            "redis_url",
	"AIVEDHA_SESSION_TIMEOUT":      "session_timeout",
	"AIVEDHA_EXPIRY_WARNING":       "expiry_warning",
	"AIVEDHA_CHECK_INTERVAL":       "check_interval",
	"AIVEDHA_ACTIVITY_DEBOUNCE":    "activity_debounce",
	"AIVEDHA_SUBSCRIPTION_TIMEOUT": "subscription_timeout",
	"AIVEDHA_ADMIN_HOSTS":          "admin_hosts",
	"AIVEDHA_ENFORCE_ADMIN_HOST":   "enforce_admin_host",
	"AIVEDHA_CONSOLE_ADDR":         "console_addr",
	"AIVEDHA_GITHUB_CLIENT_ID":     "github_client_id",
	"AIVEDHA_LOG_LEVEL":            "log_level",
	"AIVEDHA_LOG_FORMAT":           "log_format",
}

func envKeyReplacer(s string) string {
	return envKeyMap[s]
}

// parseEnv overlays cfg with AIVEDHA_* environment variables. Unknown
// variables with the prefix are ignored.
func parseEnv(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(envPrefix, ".", envKeyReplacer), nil); err != nil {
		return err
	}

	setString(&cfg.Environment, k.String("environment"))
	setString(&cfg.APIBaseURL, k.String("api_base_url"))
	setString(&cfg.Origin, k.String("origin"))
	setString(&cfg.StatePath, k.String("state_path"))
	setString(&cfg.RedisURL, k.String("redis_url"))
	setString(&cfg.ConsoleAddr, k.String("console_addr"))
	setString(&cfg.GitHubClientID, k.String("github_client_id"))
	setString(&cfg.LogLevel, k.String("log_level"))
	setString(&cfg.LogFormat, k.String("log_format"))

	for key, dst := range map[string]*time.Duration{
		"session_timeout":      &cfg.SessionTimeout,
		"expiry_warning":       &cfg.ExpiryWarning,
		"check_interval":       &cfg.CheckInterval,
		"activity_debounce":    &cfg.ActivityDebounce,
		"subscription_timeout": &cfg.SubscriptionTimeout,
	} {
		if !k.Exists(key) {
			continue
		}
		d, err := time.ParseDuration(k.String(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if k.Exists("admin_hosts") {
		cfg.AdminHosts = splitList(k.String("admin_hosts"))
	}
	if k.Exists("enforce_admin_host") {
		cfg.EnforceAdminHost = k.Bool("enforce_admin_host")
		cfg.enforceSet = true
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
