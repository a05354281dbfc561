package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port          string
	Environment   string
	LogLevel      string
	APIKey        string
	AdminUsername string
	AdminPassword string

	ForecastTimeout         time.Duration
	EnsembleSeasonalWeight  float64
	EnsembleDynamicWeights  bool
	EnsembleValidationSplit float64
	SeasonalPeriodWeeks     int
	SeasonalHarmonics       int
	TrendAROrder            int

	VarianceElevatedThreshold float64
	VarianceHighThreshold     float64
	ReviewConfidenceThreshold float64

	QdrantURL           string
	QdrantAPIKey        string
	NATSURL             string
	NATSProgressSubject string
	StoresFile          string

	AzureOpenAIEndpoint           string
	AzureOpenAIAPIKey             string
	AzureOpenAIAPIVersion         string
	AzureOpenAIChatDeploymentName string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		APIKey:        getEnv("API_KEY", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		ForecastTimeout:         getEnvDuration("FORECAST_TIMEOUT", 5*time.Second),
		EnsembleSeasonalWeight:  getEnvFloat("ENSEMBLE_SEASONAL_WEIGHT", 0.6),
		EnsembleDynamicWeights:  getEnvBool("ENSEMBLE_DYNAMIC_WEIGHTS", false),
		EnsembleValidationSplit: getEnvFloat("ENSEMBLE_VALIDATION_SPLIT", 0.2),
		SeasonalPeriodWeeks:     getEnvInt("SEASONAL_PERIOD_WEEKS", 52),
		SeasonalHarmonics:       getEnvInt("SEASONAL_HARMONICS", 3),
		TrendAROrder:            getEnvInt("TREND_AR_ORDER", 2),

		VarianceElevatedThreshold: getEnvFloat("VARIANCE_ELEVATED_THRESHOLD", 0.10),
		VarianceHighThreshold:     getEnvFloat("VARIANCE_HIGH_THRESHOLD", 0.20),
		ReviewConfidenceThreshold: getEnvFloat("REVIEW_CONFIDENCE_THRESHOLD", 0.70),

		QdrantURL:           getEnv("QDRANT_URL", ""),
		QdrantAPIKey:        getEnv("QDRANT_API_KEY", ""),
		NATSURL:             getEnv("NATS_URL", ""),
		NATSProgressSubject: getEnv("NATS_PROGRESS_SUBJECT", "planner.progress"),
		StoresFile:          getEnv("STORES_FILE", ""),

		AzureOpenAIEndpoint:           getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIAPIKey:             getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIAPIVersion:         getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
		AzureOpenAIChatDeploymentName: getEnv("AZURE_OPENAI_CHAT_DEPLOYMENT_NAME", "gpt-4o-mini"),
	}
}

// Validate checks value ranges that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var problems []string
	if c.ForecastTimeout <= 0 {
		problems = append(problems, "FORECAST_TIMEOUT must be positive")
	}
	if c.EnsembleSeasonalWeight < 0 || c.EnsembleSeasonalWeight > 1 {
		problems = append(problems, "ENSEMBLE_SEASONAL_WEIGHT must be within [0,1]")
	}
	if c.EnsembleValidationSplit <= 0 || c.EnsembleValidationSplit >= 1 {
		problems = append(problems, "ENSEMBLE_VALIDATION_SPLIT must be within (0,1)")
	}
	if c.SeasonalPeriodWeeks < 2 {
		problems = append(problems, "SEASONAL_PERIOD_WEEKS must be at least 2")
	}
	if c.SeasonalHarmonics < 1 || 2*c.SeasonalHarmonics > c.SeasonalPeriodWeeks {
		problems = append(problems, "SEASONAL_HARMONICS must be between 1 and half the period")
	}
	if c.TrendAROrder < 1 || c.TrendAROrder > 8 {
		problems = append(problems, "TREND_AR_ORDER must be between 1 and 8")
	}
	if c.VarianceElevatedThreshold <= 0 || c.VarianceHighThreshold <= c.VarianceElevatedThreshold {
		problems = append(problems, "variance thresholds must satisfy 0 < ELEVATED < HIGH")
	}
	if c.ReviewConfidenceThreshold < 0 || c.ReviewConfidenceThreshold > 1 {
		problems = append(problems, "REVIEW_CONFIDENCE_THRESHOLD must be within [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether the service runs outside development.
func (c *Config) IsProduction() bool {
	return c.Environment != "development" && c.Environment != "test"
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger: text in development, JSON otherwise.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}
