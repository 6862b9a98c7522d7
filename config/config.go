// Package config reads the application settings from the environment. A
// .env file in the working directory (or its parent) is loaded first if present.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const googleCallbackPath = "/auth/google/secrets"

type Config struct {
	// Server
	Port     string
	LogLevel slog.Level

	// Sessions
	SessionSecret      string // signs the OAuth state
	SessionLifetime    time.Duration
	SessionIdleTimeout time.Duration
	CookieSecure       bool

	// Storage
	DatabaseURL        string // postgres://, sqlite://, datastore://, fs:// or empty
	DataDir            string // file store location when DatabaseURL is empty
	DatastoreNamespace string
	RedisURL           string // optional session backend

	// Google sign-in; disabled unless both id and secret are set
	GoogleClientID     string
	GoogleClientSecret string
	CallbackURL        string
	GoogleUserInfoURL  string
	OAuthTimeout       time.Duration

	// Passwords
	PasswordHasher    string // bcrypt or argon2id
	HashCost          int    // bcrypt cost or argon2 time; 0 means default
	MinPasswordLength int
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	loadEnvFile()

	port := getEnv("PORT", "3000")
	c := &Config{
		Port:     port,
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),

		SessionSecret:      getEnv("SESSION_SECRET", getEnv("SECRET", "")),
		SessionLifetime:    getEnvAsDuration("SESSION_LIFETIME", 24*time.Hour),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		CookieSecure:       getEnvAsBool("COOKIE_SECURE", false),

		DatabaseURL:        getEnv("DATABASE_URL", getEnv("DB_URL", "")),
		DataDir:            getEnv("DATA_DIR", "data"),
		DatastoreNamespace: getEnv("DATASTORE_NAMESPACE", ""),
		RedisURL:           getEnv("REDIS_URL", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", getEnv("CLIENT_ID", "")),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", getEnv("CLIENT_SECRET", "")),
		GoogleUserInfoURL:  getEnv("GOOGLE_USERINFO_URL", ""),
		OAuthTimeout:       getEnvAsDuration("OAUTH_TIMEOUT", 10*time.Second),

		PasswordHasher:    strings.ToLower(getEnv("PASSWORD_HASHER", "bcrypt")),
		HashCost:          getEnvAsInt("BCRYPT_COST", 0),
		MinPasswordLength: getEnvAsInt("MIN_PASSWORD_LENGTH", 5),
	}

	c.CallbackURL = getEnv("CALLBACK_URL", "")
	if c.CallbackURL == "" {
		base := strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:"+port), "/")
		c.CallbackURL = base + googleCallbackPath
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}
	_ = godotenv.Load(filepath.Join(parent, ".env"))
}

func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET (or SECRET) is required")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET must be set together")
	}
	switch c.PasswordHasher {
	case "bcrypt", "argon2id", "argon2":
	default:
		return fmt.Errorf("PASSWORD_HASHER must be bcrypt, argon2id or argon2, got %q", c.PasswordHasher)
	}
	if c.MinPasswordLength < 1 {
		return fmt.Errorf("MIN_PASSWORD_LENGTH must be positive")
	}
	if c.SessionLifetime <= 0 {
		return fmt.Errorf("SESSION_LIFETIME must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// getEnv returns the variable, or defaultValue when it is unset or empty.
func getEnv(key string, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("ignoring invalid integer", "key", key, "value", valueStr)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		slog.Warn("ignoring invalid boolean", "key", key, "value", valueStr)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		slog.Warn("ignoring invalid duration", "key", key, "value", valueStr)
		return defaultValue
	}
	return value
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		slog.Warn("ignoring invalid log level", "key", key, "value", valueStr)
		return defaultValue
	}
	return level
}
