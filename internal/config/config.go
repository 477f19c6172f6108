// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Addr     string `env:"LOANADMIN_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Store       string `env:"LOANADMIN_STORE" envDefault:"memory"`
	StoreDir    string `env:"LOANADMIN_STORE_DIR" envDefault:"./data"`
	SQLitePath  string `env:"LOANADMIN_SQLITE_PATH" envDefault:"./loanadmin.db"`
	PostgresDSN string `env:"LOANADMIN_PG_DSN"`
	RedisAddr   string `env:"LOANADMIN_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string `env:"LOANADMIN_REDIS_PREFIX" envDefault:"loanadmin"`

	AuthSecret string        `env:"LOANADMIN_AUTH_SECRET"`
	TokenTTL   time.Duration `env:"LOANADMIN_TOKEN_TTL" envDefault:"12h"`

	RateBurst   int      `env:"LOANADMIN_RATE_BURST" envDefault:"40"`
	RatePerSec  float64  `env:"LOANADMIN_RATE_PER_SEC" envDefault:"20"`
	CORSOrigins []string `env:"LOANADMIN_CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	AuditLimit       int  `env:"LOANADMIN_AUDIT_LIMIT" envDefault:"500"`
	StrictReferences bool `env:"LOANADMIN_STRICT_REFERENCES" envDefault:"true"`

	SeedFile string `env:"LOANADMIN_SEED_FILE"`
}

// LoadEnv loads the env files that exist, in order. Variables already set win.
func LoadEnv(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads .env and .env.local when present, then parses the environment.
func Load() (Config, error) {
	if _, err := LoadEnv(".env", ".env.local"); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StoreFile:
		if strings.TrimSpace(c.StoreDir) == "" {
			errs = append(errs, errors.New("LOANADMIN_STORE_DIR is required for the file store"))
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("LOANADMIN_SQLITE_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("LOANADMIN_PG_DSN is required for the postgres store"))
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("LOANADMIN_REDIS_ADDR is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < 16 {
		errs = append(errs, errors.New("LOANADMIN_AUTH_SECRET must be at least 16 bytes"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("LOANADMIN_TOKEN_TTL must be positive"))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("rate limit burst and rate must be positive"))
	}
	if c.AuditLimit <= 0 {
		errs = append(errs, errors.New("LOANADMIN_AUDIT_LIMIT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// AuthEnabled reports whether API calls require a bearer token.
func (c Config) AuthEnabled() bool { return c.AuthSecret != "" }
