package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"server": {"port": 9000},
		"auth": {"user_id_key": "` + testKey + `", "jwt_secret": "from-file"},
		"chain": {"treasury_address": "kaspa:file", "max_attempts": 20, "base_delay_ms": 10}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("TREASURY_ADDRESS", "kaspa:env")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "kaspa:env", cfg.Chain.TreasuryAddress)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)

	// retry policy is clamped into the indexer-lag range
	assert.Equal(t, 8, cfg.Chain.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Chain.BaseDelay())
	assert.Equal(t, 8*time.Second, cfg.Chain.RequestTimeout())

	assert.Equal(t, 5*time.Minute, cfg.Auth.MessageMaxAge())
	assert.Equal(t, time.Minute, cfg.Auth.ClockSkew())
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL())
}

func TestLoad_GeneratesJWTSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("TREASURY_ADDRESS", "kaspa:treasury")
	t.Setenv("USER_ID_KEY", testKey)

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.UserIDKey = testKey
	require.ErrorContains(t, cfg.Validate(), "treasury_address")

	cfg.Chain.TreasuryAddress = "kaspa:treasury"
	require.NoError(t, cfg.Validate())

	cfg.Auth.UserIDKey = "abcd"
	require.ErrorContains(t, cfg.Validate(), "user_id_key")
}

func TestDSN(t *testing.T) {
	cfg := Default().Database
	cfg.User = "u"
	cfg.Password = "p"
	dsn := cfg.DSN()
	assert.True(t, strings.Contains(dsn, "dbname=vivoor"))
	assert.True(t, strings.Contains(dsn, "sslmode=disable"))
}
