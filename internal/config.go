package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Application base URL. The post-auth redirect target is this origin
	// plus the fixed /auth/callback path.
	BaseURL string

	// Identity provider (hosted auth service)
	ProviderURL     string
	ProviderAnonKey string
	ProviderTimeout time.Duration

	// Auth form instances
	FormTTL           time.Duration
	FormSweepInterval time.Duration

	// Telemetry pipeline
	TelemetryEnabled    bool
	TelemetryBufferSize int

	// Rate limiting for auth submissions
	AuthRateLimit  int
	AuthRateWindow time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Base URL defaults to localhost for development
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),

		// Form instances die after 30 minutes idle; the browser keeps its
		// form only as long as the page lives anyway.
		FormTTL:           getEnvDuration("FORM_TTL", 30*time.Minute),
		FormSweepInterval: getEnvDuration("FORM_SWEEP_INTERVAL", 5*time.Minute),

		TelemetryEnabled:    getEnvBool("TELEMETRY_ENABLED", true),
		TelemetryBufferSize: getEnvInt("TELEMETRY_BUFFER_SIZE", 256),

		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT", 20),
		AuthRateWindow: getEnvDuration("AUTH_RATE_WINDOW", time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.ProviderURL = os.Getenv("PROVIDER_URL")
	if cfg.ProviderURL == "" {
		return nil, fmt.Errorf("PROVIDER_URL is required")
	}
	cfg.ProviderAnonKey = os.Getenv("PROVIDER_ANON_KEY")
	if cfg.ProviderAnonKey == "" {
		return nil, fmt.Errorf("PROVIDER_ANON_KEY is required")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable with a fallback default.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default.
func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable with a fallback default.
func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDuration retrieves a duration environment variable with a fallback default.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
