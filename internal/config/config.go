package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Rate limiting
	RateLimitPerMinute int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret-do-not-use"),
		TokenTTL:           24 * time.Hour,
		RateLimitPerMinute: 120,
	}

	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.TokenTTL = d
		}
	}

	// In production, require the real backing services and a real secret
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.JWTSecret == "dev-secret-do-not-use" {
			panic("JWT_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
