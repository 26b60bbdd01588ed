package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "hmac", cfg.Signing.Backend)
	assert.Equal(t, "production", cfg.Signing.SigstoreEnv)
	assert.True(t, cfg.Signing.SigstoreOfflineFallback, "offline fallback defaults on")
	assert.False(t, cfg.Signing.SigstoreAllowUnsafePolicy)
	assert.Equal(t, "aurora-kg", cfg.Signing.DefaultSigner)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SIGNING_BACKEND", "sigstore")
	t.Setenv("AURORA_SNAPSHOT_SIGNING_SECRET", "test-secret")
	t.Setenv("SIGSTORE_ENV", "staging")
	t.Setenv("SIGSTORE_ALLOW_UNSAFE_POLICY", "1")
	t.Setenv("SIGSTORE_OFFLINE_FALLBACK", "0")
	t.Setenv("ADMIN_TOKEN", "opaque-admin")

	cfg, err := NewConfig(slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "sigstore", cfg.Signing.Backend)
	assert.Equal(t, "test-secret", cfg.Signing.HMACSecret)
	assert.Equal(t, "staging", cfg.Signing.SigstoreEnv)
	assert.True(t, cfg.Signing.SigstoreAllowUnsafePolicy)
	assert.False(t, cfg.Signing.SigstoreOfflineFallback)
	assert.Equal(t, "opaque-admin", cfg.Auth.AdminToken)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "kg",
		Password: "pw",
		Database: "aurora",
		SSLMode:  "require",
	}
	assert.Equal(t, "postgres://kg:pw@db.internal:5433/aurora?sslmode=require", d.DSN())
}
