package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the server
//	-i int      expiry check interval (in seconds)
//	-m int      renewal margin (in seconds)
//	-t int      request timeout (in seconds)
//	-f string   local state DSN (SQLite)
//	-l string   log level
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-m", "-t", "-f", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	checkInterval := fs.Int("i", int(cfg.CheckInterval.Seconds()), "expiry check interval (in seconds)")
	renewalMargin := fs.Int("m", int(cfg.RenewalMargin.Seconds()), "renewal margin (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.StateDSN, "f", cfg.StateDSN, "local state DSN")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.CheckInterval = time.Duration(*checkInterval) * time.Second
	cfg.RenewalMargin = time.Duration(*renewalMargin) * time.Second
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
