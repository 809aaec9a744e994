package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/fooddelivery/internal/flagx"
	"github.com/dmitrijs2005/fooddelivery/internal/timex"
)

// JsonConfig is the DTO read from the JSON config file. Durations use
// timex.Duration so they can be written as "15m" or as nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP             string          `json:"endpoint_addr_http"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration  `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration  `json:"refresh_token_validity_duration"`
	BcryptCost                   int             `json:"bcrypt_cost"`
	RedisAddr                    string          `json:"redis_addr"`
	LoginMaxAttempts             int             `json:"login_max_attempts"`
	LoginCooldown                timex.Duration  `json:"login_cooldown"`
	RevokedRetention             *timex.Duration `json:"revoked_retention"`
	CleanupInterval              timex.Duration  `json:"cleanup_interval"`
	LogLevel                     string          `json:"log_level"`
}

// parseJson overlays Config with the JSON file given by -c/-config.
// Only fields present (non-zero) in the file are copied. If no file is
// given nothing happens; unreadable or invalid files panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFile()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var c JsonConfig
	if err := json.Unmarshal(data, &c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.LoginCooldown.Duration > 0 {
		config.LoginCooldown = c.LoginCooldown.Duration
	}
	if c.CleanupInterval.Duration > 0 {
		config.CleanupInterval = c.CleanupInterval.Duration
	}
	// zero is meaningful here (keep forever), hence the pointer
	if c.RevokedRetention != nil {
		config.RevokedRetention = c.RevokedRetention.Duration
	}
	if c.BcryptCost > 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.LoginMaxAttempts > 0 {
		config.LoginMaxAttempts = c.LoginMaxAttempts
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
