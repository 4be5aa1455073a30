package config

import (
	"os"
)

type Config struct {
	Port              string
	DatabaseDSN       string
	Env               string
	SessionSecret     string
	StaffPasswordHash string // bcrypt; empty disables the login gate
	LogoPath          string
	BackgroundPath    string
}

// Load loads configuration from environment with sensible defaults.
// Precedence: explicit env var > .env file (if loaded by caller) > default.
func Load() Config {
	return Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "file:subplanet.db"),
		Env:               getEnv("APP_ENV", "development"),
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		StaffPasswordHash: getEnv("STAFF_PASSWORD_HASH", ""),
		LogoPath:          getEnv("LOGO_PATH", "assets/logo.png"),
		BackgroundPath:    getEnv("BACKGROUND_PATH", "assets/background.jpg"),
	}
}

// AuthRequired reports whether the staff login gate is active.
func (c Config) AuthRequired() bool { return c.StaffPasswordHash != "" }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
