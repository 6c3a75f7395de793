// Package config provides environment helpers for affectd commands.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default server configuration.
const (
	DefaultPort     = "8000"
	DefaultProvider = "http"
)

// LoadDotEnv loads variables from the given .env files (default ".env").
// Variables already set in the environment win. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// String returns the value of key, or def if unset or blank.
func String(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Int returns key parsed as an int, or def if unset or malformed.
func Int(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Float returns key parsed as a float64, or def if unset or malformed.
func Float(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Duration returns key parsed with time.ParseDuration, or def.
func Duration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

// List splits a comma separated variable, trimming blanks.
func List(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Port returns the listen port from AFFECTD_PORT or PORT.
func Port() string {
	return String("AFFECTD_PORT", String("PORT", DefaultPort))
}

// Provider returns the generator backend from LLM_PROVIDER.
func Provider() string {
	return strings.ToLower(String("LLM_PROVIDER", DefaultProvider))
}

// AllowedOrigins returns the CORS origins from CORS_ALLOWED_ORIGINS, or "*".
func AllowedOrigins() string {
	if origins := List("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		return strings.Join(origins, ",")
	}
	return "*"
}
