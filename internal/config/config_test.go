package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "pos:pos@tcp(127.0.0.1:3306)/pos?parseTime=true")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, _, err := Load("testdata/does-not-exist.env")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 5*time.Second, cfg.LockTimeout)
	require.Equal(t, "cashier", cfg.CashSalesScope)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	require.False(t, cfg.AllowRegistration)
	require.False(t, cfg.IsProduction())
}

func TestLoadRequiresSecrets(t *testing.T) {
	// t.Setenv restores the originals once the variables are unset below.
	t.Setenv("DB_DSN", "unused")
	t.Setenv("JWT_SECRET", "unused")
	require.NoError(t, os.Unsetenv("DB_DSN"))
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, _, err := Load("testdata/does-not-exist.env")
	require.Error(t, err)
}

func TestValidateRejectsUnknownScope(t *testing.T) {
	cfg := Config{LockTimeout: time.Second, TokenTTL: time.Hour, CashSalesScope: "everyone"}
	require.Error(t, cfg.Validate())

	cfg.CashSalesScope = "register"
	require.NoError(t, cfg.Validate())

	cfg.LockTimeout = 0
	require.Error(t, cfg.Validate())
}
