package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the catalog service
type Config struct {
	ServiceName string
	DBDSN       string
	GRPCPort    string
	HTTPPort    string
	RabbitMQURL string
	LogLevel    string
	LogFormat   string
	Seed        bool
}

// Load reads configuration from the environment. Values from a .env file
// in the working directory are applied first without overriding variables
// that are already set.
func Load() *Config {
	// a missing .env file is normal outside development
	_ = godotenv.Load()

	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "catalog"),
		DBDSN:       getEnv("DB_DSN", "sqlite://locallibrary.db"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		Seed:        getEnvBool("SEED", false),
	}
}

// EventsEnabled reports whether catalog changes are published to RabbitMQ
func (c *Config) EventsEnabled() bool {
	return c.RabbitMQURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
