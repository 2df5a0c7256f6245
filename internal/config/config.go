package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"intentledger/internal/logger"
)

// AppConfig ties together every section read from the environment.
type AppConfig struct {
	Service ServiceConfig
	Storage StorageConfig
	Auth    AuthConfig
	Chain   ChainConfig
	Solver  SolverConfig
	Retry   RetryConfig
}

type ServiceConfig struct {
	HTTPPort        int           `env:"API_HTTP_PORT" envDefault:"3000"`
	HMACClockSkew   time.Duration `env:"HMAC_CLOCK_SKEW" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        logger.Level  `env:"LOG_LEVEL" envDefault:"info"`
	RestateAddr     string        `env:"RESTATE_LISTEN_ADDR" envDefault:":9080"`
}

type StorageConfig struct {
	Backend string `env:"STORAGE_BACKEND" envDefault:"file"`
	Path    string `env:"STORAGE_PATH"`
	DSN     string `env:"POSTGRES_DSN"`
	Name    string `env:"REGISTRY_NAME" envDefault:"default"`
}

type AuthConfig struct {
	Mode        string `env:"AUTH_MODE" envDefault:"hmac"`
	KeyringPath string `env:"AUTH_KEYRING_PATH"`
	JWTSecret   string `env:"AUTH_JWT_SECRET"`
	JWTIssuer   string `env:"AUTH_JWT_ISSUER"`
	JWTAudience string `env:"AUTH_JWT_AUDIENCE"`

	// Keyring is loaded from KeyringPath: caller identity to HMAC secret.
	Keyring map[string]string
}

type ChainConfig struct {
	RPCURL         string        `env:"CHAIN_RPC_URL"`
	PrivateKey     string        `env:"CHAIN_PRIVATE_KEY"`
	ChainID        int64         `env:"CHAIN_ID"`
	Name           string        `env:"CHAIN_NAME" envDefault:"ethereum-sepolia"`
	NativeAsset    string        `env:"CHAIN_NATIVE_ASSET" envDefault:"ETH"`
	ReceiptTimeout time.Duration `env:"CHAIN_RECEIPT_TIMEOUT" envDefault:"2m"`
}

type SolverConfig struct {
	RegistryURL  string        `env:"SOLVER_REGISTRY_URL" envDefault:"http://localhost:3000"`
	CallerID     string        `env:"SOLVER_CALLER_ID"`
	Secret       string        `env:"SOLVER_HMAC_SECRET"`
	PollInterval time.Duration `env:"SOLVER_POLL_INTERVAL" envDefault:"10s"`
	DLQPath      string        `env:"SOLVER_DLQ_PATH"`
	Chains       []string      `env:"SOLVER_CHAINS" envSeparator:","`
	MetricsAddr  string        `env:"SOLVER_METRICS_ADDR" envDefault:":9091"`
}

type RetryConfig struct {
	MaxAttempts       int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff    time.Duration `env:"RETRY_INITIAL_BACKOFF" envDefault:"500ms"`
	MaxBackoff        time.Duration `env:"RETRY_MAX_BACKOFF" envDefault:"10s"`
	BackoffMultiplier int           `env:"RETRY_BACKOFF_MULTIPLIER" envDefault:"2"`
}

// Load reads an optional .env file, then the process environment, then the
// keyring file if one is configured.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return FromEnv()
}

// FromEnv parses configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Storage.Path == "" {
		switch strings.ToLower(cfg.Storage.Backend) {
		case "file":
			cfg.Storage.Path = filepath.Join(os.TempDir(), "intentledger.json")
		case "sqlite":
			cfg.Storage.Path = filepath.Join(os.TempDir(), "intentledger.db")
		}
	}

	if cfg.Auth.KeyringPath != "" {
		keys, err := loadKeyring(cfg.Auth.KeyringPath)
		if err != nil {
			return nil, fmt.Errorf("load keyring: %w", err)
		}
		cfg.Auth.Keyring = keys
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "memory", "file", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch strings.ToLower(c.Auth.Mode) {
	case "hmac":
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("AUTH_JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.Auth.Mode)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Solver.PollInterval <= 0 {
		return errors.New("SOLVER_POLL_INTERVAL must be positive")
	}
	return nil
}

func loadKeyring(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys map[string]string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}
	for caller, secret := range keys {
		if strings.TrimSpace(caller) == "" || secret == "" {
			return nil, fmt.Errorf("keyring entry %q has an empty caller or secret", caller)
		}
	}
	return keys, nil
}
