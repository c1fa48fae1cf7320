package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Issuer claim for tokens (default: supplygate-auth)

	// Secret signs and verifies every token. Required in prod; in dev a
	// random per-process secret is generated, which invalidates tokens on
	// restart.
	Secret []byte

	AccessTTL  time.Duration // Access token lifetime (default: 30m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 168h)

	LockoutThreshold int           // Consecutive failures before lockout (default: 3)
	LockoutDuration  time.Duration // How long a tripped lock lasts (default: 15m)

	AdminUsername string // Optional: bootstrap admin seeded on an empty users table
	AdminPassword string

	DatabaseFile         string        // Path to SQLite database file (default: ./auth.db)
	PepperFile           string        // Path to pepper file for PIN hashing (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-lock sweep interval (default: 1h)
}

// LoadConfig reads configuration from the environment. Token lifetimes and
// lockout policy live here and nowhere else; services receive these values
// and carry no defaults of their own.
func LoadConfig() (Config, error) {
	cfg := Config{
		Issuer:               getEnvOrDefault("AUTH_ISSUER", "supplygate-auth"),
		AccessTTL:            getEnvDurationOrDefault("AUTH_ACCESS_TTL", 30*time.Minute),
		RefreshTTL:           getEnvDurationOrDefault("AUTH_REFRESH_TTL", 168*time.Hour),
		LockoutThreshold:     getEnvIntOrDefault("AUTH_LOCKOUT_THRESHOLD", 3),
		LockoutDuration:      getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", 15*time.Minute),
		AdminUsername:        os.Getenv("ADMIN_USERNAME"),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:           getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if secret := os.Getenv("AUTH_SECRET"); secret != "" {
		cfg.Secret = []byte(secret)
	} else {
		if cfg.Env == "prod" {
			return Config{}, fmt.Errorf("AUTH_SECRET is required when ENV=prod")
		}
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return Config{}, fmt.Errorf("generating dev secret: %w", err)
		}
		cfg.Secret = []byte(hex.EncodeToString(buf))
	}

	if cfg.LockoutThreshold < 1 {
		return Config{}, fmt.Errorf("AUTH_LOCKOUT_THRESHOLD must be at least 1")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return Config{}, fmt.Errorf("token lifetimes must be positive")
	}

	return cfg, nil
}

// DevSecretGenerated reports whether the signing secret came from the
// environment; when false, tokens will not survive a restart.
func (c Config) DevSecretGenerated() bool {
	return os.Getenv("AUTH_SECRET") == ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are treated as minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
