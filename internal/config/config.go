package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerPort  string
	Environment string

	// Empty DBHost selects the in-memory store.
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	HeartbeatInterval time.Duration
	PinLength         int
}

func Load() *Config {
	return &Config{
		ServerPort:        getEnv("SERVER_PORT", "3000"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		DBHost:            getEnv("DB_HOST", ""),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "arena"),
		HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_INTERVAL_SEC", 30)) * time.Second,
		PinLength:         getEnvInt("PIN_LENGTH", 6),
	}
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
