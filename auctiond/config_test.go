package auctiond

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEnvOverrides blanks every OYSTERPACK_* override so ambient shell
// variables cannot leak into config tests.
func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OYSTERPACK_HTTP_ADDR",
		"OYSTERPACK_POSTGRES_DSN",
		"OYSTERPACK_WALLET_DIR",
		"OYSTERPACK_FAUCET_AMOUNT",
		"OYSTERPACK_RATE_LIMIT_RPS",
		"OYSTERPACK_RATE_LIMIT_BURST",
		"OYSTERPACK_VSOCK_ENABLED",
		"OYSTERPACK_VSOCK_PORT",
		"OYSTERPACK_SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "OYSTERPACK_WALLET_PASSPHRASE", cfg.WalletPassphraseEnv)
	require.Empty(t, cfg.PostgresDSN)
	require.False(t, cfg.VsockEnabled)
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	clearEnvOverrides(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	clearEnvOverrides(t)

	path := filepath.Join(t.TempDir(), "auctiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
httpAddr: ":9090"
postgresDSN: "postgres://localhost/auctions?sslmode=disable"
faucetAmount: 42
vsockEnabled: true
vsockPort: 7777
shutdownTimeout: 30s
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, "postgres://localhost/auctions?sslmode=disable", cfg.PostgresDSN)
	require.Equal(t, uint64(42), cfg.FaucetAmount)
	require.True(t, cfg.VsockEnabled)
	require.Equal(t, uint32(7777), cfg.VsockPort)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)

	// Fields absent from the file keep their defaults.
	require.Equal(t, "auctiond-wallet", cfg.WalletDir)
	require.Equal(t, float64(50), cfg.RateLimitRPS)
	require.Equal(t, 100, cfg.RateLimitBurst)
}

func TestLoadConfig_ExplicitPathMustExist(t *testing.T) {
	clearEnvOverrides(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	clearEnvOverrides(t)

	path := filepath.Join(t.TempDir(), "auctiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte("httpAddr: [unterminated"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("OYSTERPACK_HTTP_ADDR", "  :7070  ")
	t.Setenv("OYSTERPACK_FAUCET_AMOUNT", "123456")
	t.Setenv("OYSTERPACK_VSOCK_ENABLED", "true")
	t.Setenv("OYSTERPACK_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("OYSTERPACK_RATE_LIMIT_RPS", "not-a-number")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.HTTPAddr)
	require.Equal(t, uint64(123456), cfg.FaucetAmount)
	require.True(t, cfg.VsockEnabled)
	require.Equal(t, 5*time.Second, cfg.ShutdownTimeout)

	// Unparseable overrides are ignored.
	require.Equal(t, float64(50), cfg.RateLimitRPS)
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("OYSTERPACK_HTTP_ADDR", ":7070")

	path := filepath.Join(t.TempDir(), "auctiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`httpAddr: ":9090"`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.HTTPAddr)
}

func TestMerge_ExplicitFalseOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VsockEnabled = true

	enabled := false
	merge(&cfg, fileConfig{VsockEnabled: &enabled})
	require.False(t, cfg.VsockEnabled)

	// An absent boolean leaves the current value alone.
	cfg.VsockEnabled = true
	merge(&cfg, fileConfig{})
	require.True(t, cfg.VsockEnabled)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }},
		{"empty wallet dir", func(c *Config) { c.WalletDir = "" }},
		{"empty passphrase env", func(c *Config) { c.WalletPassphraseEnv = "" }},
		{"zero faucet amount", func(c *Config) { c.FaucetAmount = 0 }},
		{"zero rate limit rps", func(c *Config) { c.RateLimitRPS = 0 }},
		{"zero rate limit burst", func(c *Config) { c.RateLimitBurst = 0 }},
		{"vsock enabled without port", func(c *Config) { c.VsockEnabled = true; c.VsockPort = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
