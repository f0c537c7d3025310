package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string

	// Session store
	MongoURI      string // Primary store when set
	WorkspacePath string // SQLite fallback lives at {workspace}/sessions.db

	// Redis (activity metrics)
	RedisURL string

	// Compute platform (agent service lifecycle)
	PlatformURL       string // Base URL of the platform control API
	PlatformServiceID string // Identifier of the managed agent service
	PlatformAPIKey    string
	PlatformTimeout   time.Duration // Per-call bound, independent of caller deadlines

	// Idle shutdown policy
	IdleTimeout      time.Duration // Trailing window for the no-activity decision
	IdleTickInterval time.Duration // How often the idle checker runs
	IdleMinActivity  int           // Shutdown iff observed requests < this; must exceed background /status polling volume

	// Wake readiness polling
	WakeMaxWait time.Duration // Upper bound for WaitUntilRunning before ErrWakeTimeout

	// Session naming (LLM summarization)
	OpenAIAPIKey string
	NamerModel   string

	// HTTP
	AllowedOrigins string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: getEnv("ENVIRONMENT", "development"),

		MongoURI:      getEnv("MONGODB_URI", ""),
		WorkspacePath: getEnv("WORKSPACE_PATH", "/workspace"),

		RedisURL: getEnv("REDIS_URL", ""),

		PlatformURL:       getEnv("PLATFORM_URL", ""),
		PlatformServiceID: getEnv("PLATFORM_SERVICE_ID", "aipa-agent"),
		PlatformAPIKey:    getEnv("PLATFORM_API_KEY", ""),
		PlatformTimeout:   getDurationEnv("PLATFORM_TIMEOUT", 30*time.Second),

		IdleTimeout:      getDurationEnv("IDLE_TIMEOUT", 30*time.Minute),
		IdleTickInterval: getDurationEnv("IDLE_TICK_INTERVAL", 15*time.Minute),
		IdleMinActivity:  getIntEnv("IDLE_MIN_ACTIVITY", 5),

		WakeMaxWait: getDurationEnv("WAKE_MAX_WAIT", 2*time.Minute),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		NamerModel:   getEnv("NAMER_MODEL", "gpt-4o-mini"),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),
	}
}

// IsProduction reports whether the server runs with production settings
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SQLitePath returns the location of the SQLite session store fallback
func (c *Config) SQLitePath() string {
	return c.WorkspacePath + "/sessions.db"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
