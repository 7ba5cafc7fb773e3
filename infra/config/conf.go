package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mstgnz/paygate/infra/validate"
)

type CKey string

type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port        string `validate:"required,numeric"`
	Environment string `validate:"oneof=development test staging production"`
	APIKey      string
	JWTSecret   string
	CORSOrigins []string

	ProbeInterval       time.Duration `validate:"gt=0"`
	ProbeTimeout        time.Duration `validate:"gt=0,ltfield=ProbeInterval"`
	ProbeMaxBackoff     time.Duration `validate:"gtefield=ProbeInterval"`
	StartupProbeTimeout time.Duration `validate:"gt=0"`
	ChargeTimeout       time.Duration `validate:"gt=0"`
	MaxChargeAttempts   int           `validate:"gte=0"`
	IdempotencyTTL      time.Duration `validate:"gt=0"`
	RateLimitPerMinute  int           `validate:"gte=0"`

	SQLitePath     string
	DatabaseURL    string
	RedisURL       string
	OpenSearchURL  string
	OpenSearchUser string
	OpenSearchPass string
	EnableLogging  bool
	LoggingLevel   string `validate:"oneof=debug info warn error"`
}

var (
	instance          *Config
	appConfigInstance *AppConfig
	envOnce           sync.Once
)

func App() *Config {
	if instance == nil {
		instance = &Config{
			Validator: validate.New(),
		}
	}
	return instance
}

// LoadEnv reads .env into the process environment once. Variables already
// set in the environment win.
func LoadEnv(files ...string) {
	envOnce.Do(func() {
		_ = godotenv.Load(files...)
	})
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = LoadAppConfig()
	}
	return appConfigInstance
}

// LoadAppConfig reads the application configuration from the environment
func LoadAppConfig() *AppConfig {
	return &AppConfig{
		Port:                GetEnv("APP_PORT", "9999"),
		Environment:         GetEnv("ENVIRONMENT", "development"),
		APIKey:              GetEnv("API_KEY", ""),
		JWTSecret:           GetEnv("JWT_SECRET", ""),
		CORSOrigins:         GetListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ProbeInterval:       GetDurationEnv("PROBE_INTERVAL", 60*time.Second),
		ProbeTimeout:        GetDurationEnv("PROBE_TIMEOUT", 5*time.Second),
		ProbeMaxBackoff:     GetDurationEnv("PROBE_MAX_BACKOFF", 10*time.Minute),
		StartupProbeTimeout: GetDurationEnv("STARTUP_PROBE_TIMEOUT", 15*time.Second),
		ChargeTimeout:       GetDurationEnv("CHARGE_TIMEOUT", 30*time.Second),
		MaxChargeAttempts:   GetIntEnv("MAX_CHARGE_ATTEMPTS", 0),
		IdempotencyTTL:      GetDurationEnv("IDEMPOTENCY_TTL", 15*time.Minute),
		RateLimitPerMinute:  GetIntEnv("RATE_LIMIT_PER_MINUTE", 100),
		SQLitePath:          GetEnv("SQLITE_PATH", ""),
		DatabaseURL:         GetEnv("DATABASE_URL", ""),
		RedisURL:            GetEnv("REDIS_URL", ""),
		OpenSearchURL:       GetEnv("OPENSEARCH_URL", ""),
		OpenSearchUser:      GetEnv("OPENSEARCH_USER", ""),
		OpenSearchPass:      GetEnv("OPENSEARCH_PASSWORD", ""),
		EnableLogging:       GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", true),
		LoggingLevel:        GetEnv("LOGGING_LEVEL", "info"),
	}
}

// Validate checks the configuration for inconsistent values
func (c *AppConfig) Validate(v *validator.Validate) error {
	return v.Struct(c)
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv parses values like "30s" or "5m"; bare integers are seconds
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// GetListEnv splits a comma separated variable, dropping empty entries
func GetListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
