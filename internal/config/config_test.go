package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentledger/internal/logger"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Service.HTTPPort)
	assert.Equal(t, time.Minute, cfg.Service.HMACClockSkew)
	assert.Equal(t, logger.InfoLevel, cfg.Service.LogLevel)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(os.TempDir(), "intentledger.json"), cfg.Storage.Path)
	assert.Equal(t, "hmac", cfg.Auth.Mode)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Solver.PollInterval)
	assert.Equal(t, ":9091", cfg.Solver.MetricsAddr)
	assert.Equal(t, "ethereum-sepolia", cfg.Chain.Name)
	assert.Equal(t, "ETH", cfg.Chain.NativeAsset)
	assert.Empty(t, cfg.Auth.JWTAudience)
}

func TestFromEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	keyring := filepath.Join(dir, "keys.json")
	require.NoError(t, os.WriteFile(keyring, []byte(`{"alice":"s3cret","solver":"other"}`), 0o600))

	t.Setenv("API_HTTP_PORT", "8088")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("STORAGE_PATH", filepath.Join(dir, "r.db"))
	t.Setenv("AUTH_KEYRING_PATH", keyring)
	t.Setenv("SOLVER_CHAINS", "ethereum-sepolia,base-sepolia")
	t.Setenv("RETRY_INITIAL_BACKOFF", "250ms")
	t.Setenv("AUTH_JWT_AUDIENCE", "intentledger-api")
	t.Setenv("CHAIN_NAME", "base-sepolia")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Service.HTTPPort)
	assert.Equal(t, logger.DebugLevel, cfg.Service.LogLevel)
	assert.Equal(t, filepath.Join(dir, "r.db"), cfg.Storage.Path)
	assert.Equal(t, map[string]string{"alice": "s3cret", "solver": "other"}, cfg.Auth.Keyring)
	assert.Equal(t, []string{"ethereum-sepolia", "base-sepolia"}, cfg.Solver.Chains)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, "intentledger-api", cfg.Auth.JWTAudience)
	assert.Equal(t, "base-sepolia", cfg.Chain.Name)
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":   {"STORAGE_BACKEND": "etcd"},
		"postgres no dsn":   {"STORAGE_BACKEND": "postgres"},
		"jwt no secret":     {"AUTH_MODE": "jwt"},
		"bad level":         {"LOG_LEVEL": "loud"},
		"zero attempts":     {"RETRY_MAX_ATTEMPTS": "0"},
		"missing keyring":   {"AUTH_KEYRING_PATH": "/nonexistent/keys.json"},
		"bad poll interval": {"SOLVER_POLL_INTERVAL": "-1s"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadKeyringRejectsEmptySecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alice":""}`), 0o600))
	_, err := loadKeyring(path)
	assert.Error(t, err)
}
