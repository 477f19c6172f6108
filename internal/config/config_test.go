package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("LOANADMIN_STORE", "Memory")
	c, err := Parse()
	require.NoError(t, err)
	require.Equal(t, StoreMemory, c.Store)
	require.Equal(t, ":8080", c.Addr)
	require.Equal(t, 12*time.Hour, c.TokenTTL)
	require.Equal(t, []string{"*"}, c.CORSOrigins)
	require.True(t, c.StrictReferences)
	require.False(t, c.AuthEnabled())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("LOANADMIN_STORE", "postgres")
	t.Setenv("LOANADMIN_PG_DSN", "postgres://localhost/loanadmin")
	t.Setenv("LOANADMIN_CORS_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("LOANADMIN_TOKEN_TTL", "30m")
	t.Setenv("LOANADMIN_STRICT_REFERENCES", "false")
	t.Setenv("LOANADMIN_AUTH_SECRET", "0123456789abcdef0123")

	c, err := Parse()
	require.NoError(t, err)
	require.Equal(t, StorePostgres, c.Store)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, c.CORSOrigins)
	require.Equal(t, 30*time.Minute, c.TokenTTL)
	require.False(t, c.StrictReferences)
	require.True(t, c.AuthEnabled())
}

func TestValidate(t *testing.T) {
	base := Config{Store: StoreMemory, TokenTTL: time.Hour, RateBurst: 1, RatePerSec: 1, AuditLimit: 10}
	require.NoError(t, base.Validate())

	pg := base
	pg.Store = StorePostgres
	require.ErrorContains(t, pg.Validate(), "LOANADMIN_PG_DSN")

	weak := base
	weak.AuthSecret = "short"
	require.ErrorContains(t, weak.Validate(), "LOANADMIN_AUTH_SECRET")

	unknown := base
	unknown.Store = "mongo"
	require.ErrorContains(t, unknown.Validate(), `unknown store "mongo"`)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOANADMIN_TEST_VALUE=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("LOANADMIN_TEST_VALUE") })

	n, err := LoadEnv(path, filepath.Join(dir, ".env.local"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "from-file", os.Getenv("LOANADMIN_TEST_VALUE"))
}
