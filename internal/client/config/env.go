package config

import (
	"github.com/dmitrijs2005/fooddelivery/internal/envx"
	"github.com/dmitrijs2005/fooddelivery/internal/flagx"
)

// parseEnv overlays Config with environment variables after loading the
// dotenv file (-env, default ".env"). Panics on malformed values.
//
//	SERVER_URL, CHECK_INTERVAL, RENEWAL_MARGIN, REQUEST_TIMEOUT,
//	REFRESH_TIMEOUT, STATE_DSN, LOG_LEVEL
func parseEnv(cfg *Config) {
	if err := envx.Load(flagx.EnvFile()); err != nil {
		panic(err)
	}

	envx.String("SERVER_URL", &cfg.ServerURL)
	envx.String("STATE_DSN", &cfg.StateDSN)
	envx.String("LOG_LEVEL", &cfg.LogLevel)

	for _, err := range []error{
		envx.Duration("CHECK_INTERVAL", &cfg.CheckInterval),
		envx.Duration("RENEWAL_MARGIN", &cfg.RenewalMargin),
		envx.Duration("REQUEST_TIMEOUT", &cfg.RequestTimeout),
		envx.Duration("REFRESH_TIMEOUT", &cfg.RefreshTimeout),
	} {
		if err != nil {
			panic(err)
		}
	}
}
