package config

import (
	"github.com/dmitrijs2005/fooddelivery/internal/envx"
	"github.com/dmitrijs2005/fooddelivery/internal/flagx"
)

// parseEnv overlays Config with environment variables. A dotenv file (-env,
// default ".env") is loaded first; variables already present in the process
// environment take precedence over it. Panics on malformed values.
//
//	HTTP_ADDR, DATABASE_DSN, SECRET_KEY, ACCESS_TOKEN_TTL, REFRESH_TOKEN_TTL,
//	BCRYPT_COST, REDIS_ADDR, LOGIN_MAX_ATTEMPTS, LOGIN_COOLDOWN,
//	REVOKED_RETENTION, CLEANUP_INTERVAL, LOG_LEVEL
func parseEnv(cfg *Config) {
	if err := envx.Load(flagx.EnvFile()); err != nil {
		panic(err)
	}

	envx.String("HTTP_ADDR", &cfg.EndpointAddrHTTP)
	envx.String("DATABASE_DSN", &cfg.DatabaseDSN)
	envx.String("SECRET_KEY", &cfg.SecretKey)
	envx.String("REDIS_ADDR", &cfg.RedisAddr)
	envx.String("LOG_LEVEL", &cfg.LogLevel)

	for _, err := range []error{
		envx.Duration("ACCESS_TOKEN_TTL", &cfg.AccessTokenValidityDuration),
		envx.Duration("REFRESH_TOKEN_TTL", &cfg.RefreshTokenValidityDuration),
		envx.Duration("LOGIN_COOLDOWN", &cfg.LoginCooldown),
		envx.Duration("REVOKED_RETENTION", &cfg.RevokedRetention),
		envx.Duration("CLEANUP_INTERVAL", &cfg.CleanupInterval),
		envx.Int("BCRYPT_COST", &cfg.BcryptCost),
		envx.Int("LOGIN_MAX_ATTEMPTS", &cfg.LoginMaxAttempts),
	} {
		if err != nil {
			panic(err)
		}
	}
}
