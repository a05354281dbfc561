package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	testCases := map[string]string{
		"PORT":                              "9090",
		"ENVIRONMENT":                       "test",
		"API_KEY":                           "k",
		"FORECAST_TIMEOUT":                  "750ms",
		"ENSEMBLE_SEASONAL_WEIGHT":          "0.7",
		"ENSEMBLE_DYNAMIC_WEIGHTS":          "true",
		"SEASONAL_HARMONICS":                "4",
		"VARIANCE_HIGH_THRESHOLD":           "0.25",
		"AZURE_OPENAI_ENDPOINT":             "https://test.openai.azure.com/",
		"AZURE_OPENAI_API_KEY":              "test-key",
		"AZURE_OPENAI_CHAT_DEPLOYMENT_NAME": "test-deployment",
	}
	for key, value := range testCases {
		t.Setenv(key, value)
	}

	cfg := LoadConfig()

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be '9090', got '%s'", cfg.Port)
	}
	if cfg.Environment != "test" {
		t.Errorf("Expected Environment to be 'test', got '%s'", cfg.Environment)
	}
	if cfg.APIKey != "k" {
		t.Errorf("Expected APIKey to be 'k', got '%s'", cfg.APIKey)
	}
	if cfg.ForecastTimeout != 750*time.Millisecond {
		t.Errorf("Expected ForecastTimeout 750ms, got %v", cfg.ForecastTimeout)
	}
	if cfg.EnsembleSeasonalWeight != 0.7 || !cfg.EnsembleDynamicWeights {
		t.Errorf("Unexpected ensemble settings: %v %v", cfg.EnsembleSeasonalWeight, cfg.EnsembleDynamicWeights)
	}
	if cfg.SeasonalHarmonics != 4 {
		t.Errorf("Expected SeasonalHarmonics 4, got %d", cfg.SeasonalHarmonics)
	}
	if cfg.VarianceHighThreshold != 0.25 {
		t.Errorf("Expected VarianceHighThreshold 0.25, got %v", cfg.VarianceHighThreshold)
	}
	if cfg.AzureOpenAIEndpoint != "https://test.openai.azure.com/" {
		t.Errorf("Expected AzureOpenAIEndpoint to be 'https://test.openai.azure.com/', got '%s'", cfg.AzureOpenAIEndpoint)
	}
	if cfg.AzureOpenAIChatDeploymentName != "test-deployment" {
		t.Errorf("Expected deployment 'test-deployment', got '%s'", cfg.AzureOpenAIChatDeploymentName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, v := range []string{
		"PORT", "ENVIRONMENT", "LOG_LEVEL", "FORECAST_TIMEOUT",
		"ENSEMBLE_SEASONAL_WEIGHT", "ENSEMBLE_DYNAMIC_WEIGHTS", "ENSEMBLE_VALIDATION_SPLIT",
		"SEASONAL_PERIOD_WEEKS", "SEASONAL_HARMONICS", "TREND_AR_ORDER",
		"VARIANCE_ELEVATED_THRESHOLD", "VARIANCE_HIGH_THRESHOLD", "REVIEW_CONFIDENCE_THRESHOLD",
		"NATS_PROGRESS_SUBJECT",
	} {
		t.Setenv(v, "")
	}

	cfg := LoadConfig()

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port to be '8080', got '%s'", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Expected default Environment to be 'development', got '%s'", cfg.Environment)
	}
	if cfg.ForecastTimeout != 5*time.Second {
		t.Errorf("Expected default ForecastTimeout 5s, got %v", cfg.ForecastTimeout)
	}
	if cfg.EnsembleSeasonalWeight != 0.6 || cfg.EnsembleDynamicWeights {
		t.Errorf("Unexpected default ensemble settings: %v %v", cfg.EnsembleSeasonalWeight, cfg.EnsembleDynamicWeights)
	}
	if cfg.VarianceElevatedThreshold != 0.10 || cfg.VarianceHighThreshold != 0.20 {
		t.Errorf("Unexpected default thresholds: %v %v", cfg.VarianceElevatedThreshold, cfg.VarianceHighThreshold)
	}
	if cfg.NATSProgressSubject != "planner.progress" {
		t.Errorf("Unexpected default subject %q", cfg.NATSProgressSubject)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadConfigIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("TREND_AR_ORDER", "two")
	t.Setenv("FORECAST_TIMEOUT", "5")

	cfg := LoadConfig()
	if cfg.TrendAROrder != 2 {
		t.Errorf("Expected fallback TrendAROrder 2, got %d", cfg.TrendAROrder)
	}
	if cfg.ForecastTimeout != 5*time.Second {
		t.Errorf("Expected fallback ForecastTimeout 5s, got %v", cfg.ForecastTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"timeout", func(c *Config) { c.ForecastTimeout = 0 }, "FORECAST_TIMEOUT"},
		{"weight", func(c *Config) { c.EnsembleSeasonalWeight = 1.2 }, "ENSEMBLE_SEASONAL_WEIGHT"},
		{"split", func(c *Config) { c.EnsembleValidationSplit = 1 }, "ENSEMBLE_VALIDATION_SPLIT"},
		{"period", func(c *Config) { c.SeasonalPeriodWeeks = 1 }, "SEASONAL_PERIOD_WEEKS"},
		{"harmonics", func(c *Config) { c.SeasonalHarmonics = 27 }, "SEASONAL_HARMONICS"},
		{"ar order", func(c *Config) { c.TrendAROrder = 0 }, "TREND_AR_ORDER"},
		{"thresholds", func(c *Config) { c.VarianceHighThreshold = 0.05 }, "variance thresholds"},
		{"review", func(c *Config) { c.ReviewConfidenceThreshold = -0.1 }, "REVIEW_CONFIDENCE_THRESHOLD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.HasPrefix(err.Error(), "invalid configuration: ") || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Unexpected error %q", err)
			}
		})
	}
}

func TestIsProductionAndLogLevel(t *testing.T) {
	cfg := validConfig()
	for env, want := range map[string]bool{"development": false, "test": false, "production": true, "staging": true} {
		cfg.Environment = env
		if got := cfg.IsProduction(); got != want {
			t.Errorf("IsProduction(%s) = %v, want %v", env, got, want)
		}
	}

	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "info": slog.LevelInfo, "verbose": slog.LevelInfo,
	} {
		cfg.LogLevel = level
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%s) = %v, want %v", level, got, want)
		}
	}
	if cfg.NewLogger() == nil {
		t.Error("Expected a logger")
	}
}

func validConfig() *Config {
	return &Config{
		Environment:               "test",
		ForecastTimeout:           time.Second,
		EnsembleSeasonalWeight:    0.6,
		EnsembleValidationSplit:   0.2,
		SeasonalPeriodWeeks:       52,
		SeasonalHarmonics:         3,
		TrendAROrder:              2,
		VarianceElevatedThreshold: 0.1,
		VarianceHighThreshold:     0.2,
		ReviewConfidenceThreshold: 0.7,
	}
}
