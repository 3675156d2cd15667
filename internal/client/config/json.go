package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/flagx"
	"github.com/dmitrijs2005/aivedhaguard/internal/timex"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-valued fields mean "not set" and leave the earlier value alone.
type JSONConfig struct {
	Environment         string         `json:"environment"`
	APIBaseURL          string         `json:"api_base_url"`
	Origin              string         `json:"origin"`
	StatePath           string         `json:"state_path"`
	RedisURL            string         `json:"redis_url"`
	SessionTimeout      timex.Duration `json:"session_timeout"`
	ExpiryWarning       timex.Duration `json:"expiry_warning"`
	CheckInterval       timex.Duration `json:"check_interval"`
	ActivityDebounce    timex.Duration `json:"activity_debounce"`
	SubscriptionTimeout timex.Duration `json:"subscription_timeout"`
	AdminHosts          []string       `json:"admin_hosts"`
	EnforceAdminHost    *bool          `json:"enforce_admin_host"`
	ConsoleAddr         string         `json:"console_addr"`
	GitHubClientID      string         `json:"github_client_id"`
	LogLevel            string         `json:"log_level"`
	LogFormat           string         `json:"log_format"`
}

// parseJSON overlays cfg with the JSON file named by -c/-config in args.
// Without the flag nothing is loaded.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	setString(&cfg.Environment, jc.Environment)
	setString(&cfg.APIBaseURL, jc.APIBaseURL)
	setString(&cfg.Origin, jc.Origin)
	setString(&cfg.StatePath, jc.StatePath)
	setString(&cfg.RedisURL, jc.RedisURL)
	setString(&cfg.ConsoleAddr, jc.ConsoleAddr)
	setString(&cfg.GitHubClientID, jc.GitHubClientID)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)

	setDuration(&cfg.SessionTimeout, jc.SessionTimeout)
	setDuration(&cfg.ExpiryWarning, jc.ExpiryWarning)
	setDuration(&cfg.CheckInterval, jc.CheckInterval)
	setDuration(&cfg.ActivityDebounce, jc.ActivityDebounce)
	setDuration(&cfg.SubscriptionTimeout, jc.SubscriptionTimeout)

	if jc.AdminHosts != nil {
		cfg.AdminHosts = jc.AdminHosts
	}
	if jc.EnforceAdminHost != nil {
		cfg.EnforceAdminHost = *jc.EnforceAdminHost
		cfg.enforceSet = true
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
