// Package config loads the environment-supplied configuration and the
// optional module policy file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration. Every field has an environment
// variable and a default; nothing reaches into the environment after Load.
type Config struct {
	Environment string
	ListenAddr  string
	InstanceID  string

	Database DatabaseConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Errors   ErrorConfig

	// SupportedVersions is the closed set accepted by the version gate.
	SupportedVersions []string
	// ModulesFile optionally points at a YAML policy file.
	ModulesFile string
}

// DatabaseConfig holds the store connection parameters and pool bounds.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

// CacheConfig holds the cache endpoints and namespace.
type CacheConfig struct {
	Addrs     []string
	Password  string
	Namespace string
}

// AuthConfig holds the credential-verification secret.
type AuthConfig struct {
	JWTSecret string
}

// LoggingConfig holds the log level.
type LoggingConfig struct {
	Level string
}

// ErrorConfig holds the frequency-tracker thresholds.
type ErrorConfig struct {
	WarnThreshold     int
	CriticalThreshold int
}

// Production reports whether the process runs in production mode, which
// controls debug fields and raw store messages in responses.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		InstanceID:  getEnv("INSTANCE_ID", hostnameOr("modgate-0")),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", "postgres://localhost:5432/modgate?sslmode=disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			MigrationsDir:   getEnv("DB_MIGRATIONS_DIR", ""),
		},
		Cache: CacheConfig{
			Addrs:     splitList(getEnv("CACHE_ADDRS", "")),
			Password:  getEnv("CACHE_PASSWORD", ""),
			Namespace: getEnv("CACHE_NAMESPACE", "modgate"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Errors: ErrorConfig{
			WarnThreshold:     getEnvInt("ERROR_WARN_THRESHOLD", 10),
			CriticalThreshold: getEnvInt("ERROR_CRITICAL_THRESHOLD", 50),
		},

		SupportedVersions: splitList(getEnv("SUPPORTED_VERSIONS", "v1,v2")),
		ModulesFile:       getEnv("MODULES_FILE", ""),
	}

	if cfg.Production() && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func hostnameOr(fallback string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return fallback
}
