package auctiond

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon settings. Values come from defaults, overlaid by
// the first auctiond.yaml found, overlaid by OYSTERPACK_* environment
// variables.
type Config struct {
	// HTTPAddr is the HTTP listen address.
	HTTPAddr string

	// PostgresDSN selects the index store. Empty runs on the in-memory
	// store.
	PostgresDSN string

	// WalletDir is the keystore directory. WalletPassphraseEnv names the
	// environment variable holding the keystore passphrase; the passphrase
	// itself never appears in config files.
	WalletDir           string
	WalletPassphraseEnv string

	// FaucetAmount is the default grant of a fund request, in MicroAlgos.
	FaucetAmount uint64

	// Per-client request rate limit.
	RateLimitRPS   float64
	RateLimitBurst int

	// Optional vsock listener.
	VsockEnabled bool
	VsockPort    uint32

	ShutdownTimeout time.Duration
}

// DefaultConfig returns the settings a bare daemon runs with.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		WalletDir:           "auctiond-wallet",
		WalletPassphraseEnv: "OYSTERPACK_WALLET_PASSPHRASE",
		FaucetAmount:        10_000_000,
		RateLimitRPS:        50,
		RateLimitBurst:      100,
		VsockPort:           5000,
		ShutdownTimeout:     10 * time.Second,
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("httpAddr must not be empty")
	}
	if c.WalletDir == "" {
		return fmt.Errorf("walletDir must not be empty")
	}
	if c.WalletPassphraseEnv == "" {
		return fmt.Errorf("walletPassphraseEnv must not be empty")
	}
	if c.FaucetAmount == 0 {
		return fmt.Errorf("faucetAmount must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}
	if c.VsockEnabled && c.VsockPort == 0 {
		return fmt.Errorf("vsockPort must be set when vsock is enabled")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdownTimeout must be positive")
	}
	return nil
}

// fileConfig is the YAML form of Config. Booleans are pointers so an
// explicit false in the file overrides a true default.
type fileConfig struct {
	HTTPAddr            string        `yaml:"httpAddr"`
	PostgresDSN         string        `yaml:"postgresDSN"`
	WalletDir           string        `yaml:"walletDir"`
	WalletPassphraseEnv string        `yaml:"walletPassphraseEnv"`
	FaucetAmount        uint64        `yaml:"faucetAmount"`
	RateLimitRPS        float64       `yaml:"rateLimitRPS"`
	RateLimitBurst      int           `yaml:"rateLimitBurst"`
	VsockEnabled        *bool         `yaml:"vsockEnabled"`
	VsockPort           uint32        `yaml:"vsockPort"`
	ShutdownTimeout     time.Duration `yaml:"shutdownTimeout"`
}

// configCandidates lists the paths probed when no explicit path is given.
var configCandidates = []string{
	"auctiond.yaml",
	"configs/auctiond.yaml",
	"/etc/oysterpack/auctiond.yaml",
}

// LoadConfig builds the effective configuration. An explicit path must
// exist; otherwise the candidate paths are probed and all may be absent.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	candidates := configCandidates
	if configPath != "" {
		candidates = []string{configPath}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}

		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func merge(dst *Config, src fileConfig) {
	if src.HTTPAddr != "" {
		dst.HTTPAddr = src.HTTPAddr
	}
	if src.PostgresDSN != "" {
		dst.PostgresDSN = src.PostgresDSN
	}
	if src.WalletDir != "" {
		dst.WalletDir = src.WalletDir
	}
	if src.WalletPassphraseEnv != "" {
		dst.WalletPassphraseEnv = src.WalletPassphraseEnv
	}
	if src.FaucetAmount != 0 {
		dst.FaucetAmount = src.FaucetAmount
	}
	if src.RateLimitRPS != 0 {
		dst.RateLimitRPS = src.RateLimitRPS
	}
	if src.RateLimitBurst != 0 {
		dst.RateLimitBurst = src.RateLimitBurst
	}
	if src.VsockEnabled != nil {
		dst.VsockEnabled = *src.VsockEnabled
	}
	if src.VsockPort != 0 {
		dst.VsockPort = src.VsockPort
	}
	if src.ShutdownTimeout != 0 {
		dst.ShutdownTimeout = src.ShutdownTimeout
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_POSTGRES_DSN")); v != "" {
		cfg.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_WALLET_DIR")); v != "" {
		cfg.WalletDir = v
	}
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_FAUCET_AMOUNT")); v != "" {
		if amount, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.FaucetAmount = amount
		}
	}
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_RATE_LIMIT_RPS")); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = rps
		}
	}
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_RATE_LIMIT_BURST")); v != "" {
		if burst, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = burst
		}
	}
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_VSOCK_ENABLED")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.VsockEnabled = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_VSOCK_PORT")); v != "" {
		if port, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.VsockPort = uint32(port)
		}
	}
	if v := strings.TrimSpace(os.Getenv("OYSTERPACK_SHUTDOWN_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
}
