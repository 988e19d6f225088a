// Package config provides environment-driven configuration loading for the
// interview platform server, following the load-with-fallback helper style
// this codebase's ancestry uses throughout its service entry points.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// GetEnv returns the environment value for key, or def if unset/blank.
func GetEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetEnvBool parses a boolean environment variable; accepts true/1/yes/y (case-insensitive).
func GetEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	default:
		return def
	}
}

// GetEnvInt parses an integer environment variable, returning def on absence or error.
func GetEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetEnvDuration parses a duration environment variable, returning def on absence or error.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// GetEnvCSV splits a comma-separated environment variable, trimming blanks.
func GetEnvCSV(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RequireEnv fails fast if key is unset; used for secrets with no safe default.
func RequireEnv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%s is required but not configured", key)
	}
	return v, nil
}

// Config is the fully resolved server configuration.
type Config struct {
	ListenAddr          string
	DatabaseURL         string
	TokenSigningSecret  string
	CookieSecure        bool
	AllowedOrigins      []string
	AIProvider          string // "none" | "anthropic"
	AIProviderAPIKey    string
	AIProviderTimeout   time.Duration
	RateLimitPerMinute  int
	RetentionSweep      time.Duration
	RetentionWindow     time.Duration
	RedisURL            string
	BusBroker           string // "memory" | "redis"
}

// Load resolves Config from the process environment. A .env file in the
// working directory is folded into the environment first, if present;
// real environment variables win over file entries.
func Load() (Config, error) {
	_ = godotenv.Load()

	secret, err := RequireEnv("TOKEN_SIGNING_SECRET")
	if err != nil {
		return Config{}, err
	}
	if len(secret) < 32 {
		return Config{}, fmt.Errorf("TOKEN_SIGNING_SECRET must be at least 32 bytes")
	}

	cfg := Config{
		ListenAddr:         GetEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:        GetEnv("DATABASE_URL", ""),
		TokenSigningSecret: secret,
		CookieSecure:       GetEnvBool("COOKIE_SECURE", true),
		AllowedOrigins:     GetEnvCSV("ALLOWED_ORIGINS"),
		AIProvider:         GetEnv("AI_PROVIDER", "none"),
		AIProviderAPIKey:   GetEnv("AI_PROVIDER_API_KEY", ""),
		AIProviderTimeout:  GetEnvDuration("AI_PROVIDER_TIMEOUT", 8*time.Second),
		RateLimitPerMinute: GetEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RetentionSweep:     GetEnvDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
		RetentionWindow:    GetEnvDuration("RETENTION_WINDOW", 90*24*time.Hour),
		RedisURL:           GetEnv("REDIS_URL", ""),
		BusBroker:          GetEnv("BUS_BROKER", "memory"),
	}
	return cfg, nil
}
