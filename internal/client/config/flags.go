package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/aivedhaguard/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     API base URL
//	-e string     environment
//	-s string     state database path
//	-r string     Redis URL
//	-l string     admin console listen address
//	-t duration   session timeout
//	-admin-host   enforce the admin host check
//
// args is filtered with flagx.FilterArgs so flags owned by other components
// (such as -c) do not interfere.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-e", "-s", "-r", "-l", "-t", "-admin-host"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "API base URL")
	fs.StringVar(&cfg.Environment, "e", cfg.Environment, "environment: production or development")
	fs.StringVar(&cfg.StatePath, "s", cfg.StatePath, "path of the durable state database")
	fs.StringVar(&cfg.RedisURL, "r", cfg.RedisURL, "Redis URL for the shared volatile tier")
	fs.StringVar(&cfg.ConsoleAddr, "l", cfg.ConsoleAddr, "admin console listen address")
	fs.DurationVar(&cfg.SessionTimeout, "t", cfg.SessionTimeout, "session timeout window")
	enforce := fs.Bool("admin-host", cfg.EnforceAdminHost, "enforce the admin host check")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "admin-host" {
			cfg.EnforceAdminHost = *enforce
			cfg.enforceSet = true
		}
	})
	return nil
}
