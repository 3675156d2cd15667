// Package config loads runtime configuration for the AiVedha Guard client
// and admin console.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJSON) selected via flags: -c or -config.
//  3. Environment variables with the AIVEDHA_ prefix (see parseEnv).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// After all sources are applied, values left empty are derived from
// Environment: the API base URL, the public origin and whether the admin
// host check is enforced.
//
// Supported flags
//
//	-a string     API base URL
//	-e string     environment: production or development
//	-s string     path of the durable state database
//	-r string     Redis URL for the shared volatile tier and event bus
//	-l string     admin console listen address
//	-t duration   session timeout window
//	-admin-host   enforce the admin host check (bool)
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "5m" or
// integer nanoseconds:
//
//	{
//	  "environment": "production",
//	  "api_base_url": "https://api.aivedha.ai",
//	  "session_timeout": "60m",
//	  "admin_hosts": ["admin.aivedha.ai"]
//	}
package config
