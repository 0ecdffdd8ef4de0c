// Package config loads the environment-variable surface named in spec §6
// ("CLI / env"), replacing the teacher's single DATABASE_URL with the
// discrete PG*/DB_* variables the spec enumerates.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PGHost     string
	PGDatabase string
	PGUser     string
	PGPassword string
	PGPort     int

	DBMinConnections    int32
	DBMaxConnections    int32
	DBConnectionTimeout time.Duration

	DBMaxRetryAttempts int
	DBRetryDelayBase   time.Duration

	ServerPort     string
	AllowedOrigins string
	JWTSecret      string
}

// Load reads a .env file if present (teacher `cmd/server/main.go`'s
// `godotenv.Load()`, unconditionally ignored if absent) and then the
// process environment, applying the defaults spec §5 names explicitly.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PGHost:     getEnv("PGHOST", "localhost"),
		PGDatabase: getEnv("PGDATABASE", "textile_inventory"),
		PGUser:     getEnv("PGUSER", "postgres"),
		PGPassword: os.Getenv("PGPASSWORD"),

		ServerPort:     getEnv("SERVER_PORT", "8080"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	var err error
	if cfg.PGPort, err = getEnvInt("PGPORT", 5432); err != nil {
		return nil, err
	}

	minConn, err := getEnvInt("DB_MIN_CONNECTIONS", 1)
	if err != nil {
		return nil, err
	}
	cfg.DBMinConnections = int32(minConn)

	maxConn, err := getEnvInt("DB_MAX_CONNECTIONS", 10)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxConnections = int32(maxConn)

	timeoutSecs, err := getEnvInt("DB_CONNECTION_TIMEOUT", 10)
	if err != nil {
		return nil, err
	}
	cfg.DBConnectionTimeout = time.Duration(timeoutSecs) * time.Second

	if cfg.DBMaxRetryAttempts, err = getEnvInt("DB_MAX_RETRY_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	delayMillis, err := getEnvInt("DB_RETRY_DELAY_BASE", 50)
	if err != nil {
		return nil, err
	}
	cfg.DBRetryDelayBase = time.Duration(delayMillis) * time.Millisecond

	return cfg, nil
}

// ConnString builds a libpq-style DSN for pgxpool.ParseConfig.
func (c *Config) ConnString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s connect_timeout=%d",
		c.PGHost, c.PGPort, c.PGDatabase, c.PGUser, c.PGPassword, int(c.DBConnectionTimeout.Seconds()))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return v, nil
}
