package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration the service depends on: the
// database connection string, the pool bound, the listen port, and optional
// plumbing knobs.
type Config struct {
	DBSource        string
	Port            string
	PoolSize        int32
	RedisURL        string
	LogLevel        string
	RateLimitPerMin int
	Env             string
}

// Load reads configuration from the environment, with .env support for local
// development. DB_SOURCE is the only required value.
func Load() (*Config, error) {
	// The .env file may not exist in production, which is fine.
	_ = godotenv.Load()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	cfg := &Config{
		DBSource:        dbSource,
		Port:            getEnv("SERVER_PORT", "8080"),
		PoolSize:        10,
		RedisURL:        os.Getenv("REDIS_URL"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RateLimitPerMin: 120,
		Env:             getEnv("ENVIRONMENT", "development"),
	}

	if v := os.Getenv("DB_POOL_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DB_POOL_SIZE: %q", v)
		}
		cfg.PoolSize = int32(n)
	}

	if v := os.Getenv("RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MIN: %q", v)
		}
		cfg.RateLimitPerMin = n
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
