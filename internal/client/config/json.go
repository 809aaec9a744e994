package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/flagx"
	"github.com/dmitrijs2005/fooddelivery/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	CheckInterval  timex.Duration `json:"check_interval"`
	RenewalMargin  timex.Duration `json:"renewal_margin"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	RefreshTimeout timex.Duration `json:"refresh_timeout"`
	StateDSN       string         `json:"state_dsn"`
	LogLevel       string         `json:"log_level"`
}

// parseJson overlays Config with the file given by -c/-config. Fields
// missing from the file keep their current values. Panics on read or
// unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFile()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.StateDSN != "" {
		cfg.StateDSN = jc.StateDSN
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	setDuration(&cfg.CheckInterval, jc.CheckInterval)
	setDuration(&cfg.RenewalMargin, jc.RenewalMargin)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.RefreshTimeout, jc.RefreshTimeout)
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
