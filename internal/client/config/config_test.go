package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, 5*time.Second, c.CheckInterval)
	assert.Equal(t, time.Minute, c.RenewalMargin)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.Equal(t, 15*time.Second, c.RefreshTimeout)
	assert.Equal(t, "fooddelivery.db", c.StateDSN)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin", "-env", filepath.Join(t.TempDir(), "missing.env")}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, 5*time.Second, cfg.CheckInterval)
}

func TestLoadConfig_Precedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	cfgPath := writeTempJSON(t, dir, "cfg.json", map[string]any{
		"server_url": "http://json",
		"state_dsn":  "json.db",
	})

	t.Setenv("SERVER_URL", "http://env")
	t.Setenv("STATE_DSN", "env.db")
	t.Setenv("RENEWAL_MARGIN", "45s")

	os.Args = []string{"testbin", "-env", filepath.Join(dir, "missing.env"), "-c", cfgPath, "-a", "http://flag"}

	cfg := LoadConfig()

	assert.Equal(t, "http://flag", cfg.ServerURL, "flag wins over json and env")
	assert.Equal(t, "json.db", cfg.StateDSN, "json wins over env")
	assert.Equal(t, 45*time.Second, cfg.RenewalMargin, "env wins over defaults")
}
