package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string // postgres:// URL or SQLite file path
	CORSOrigins string
	TablePrefix string
	// Logging
	LogDir      string // empty disables the file sink
	LogMaxFiles int
	// Storage tuning
	UpsertMaxRetries int
	DBMaxConns       int32
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)

	return &Config{
		Port:             getEnv("PORT", "8483"),
		Environment:      env,
		DatabaseURL:      getEnv("DATABASE_URL", "bili_note.db"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "http://localhost:5173"),
		TablePrefix:      tablePrefix,
		LogDir:           getEnv("LOG_DIR", ""),
		LogMaxFiles:      getEnvInt("LOG_MAX_FILES", 10),
		UpsertMaxRetries: getEnvInt("UPSERT_MAX_RETRIES", 3),
		DBMaxConns:       int32(getEnvInt("DB_MAX_CONNS", 25)),
	}
}

// UsePostgres reports whether DatabaseURL points at a Postgres server
func (c *Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix, ok := os.LookupEnv("TABLE_PREFIX"); ok {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to defaultValue when the variable is unset or not a positive integer
func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
