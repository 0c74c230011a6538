package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides are deployment settings that take precedence over the config file.
type envOverrides struct {
	APIBaseURL   string   `env:"REHEARSE_API_BASE_URL"`
	GeminiAPIKey string   `env:"REHEARSE_GEMINI_API_KEY"`
	StorageDSN   string   `env:"REHEARSE_STORAGE_DSN"`
	KafkaBrokers []string `env:"REHEARSE_KAFKA_BROKERS" envSeparator:","`
	HTTPListen   string   `env:"REHEARSE_HTTP_LISTEN"`
	LogLevel     string   `env:"REHEARSE_LOG_LEVEL"`
}

// ApplyEnv overlays REHEARSE_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if v := strings.TrimSpace(overrides.APIBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(overrides.GeminiAPIKey); v != "" {
		cfg.Analysis.GeminiAPIKey = v
	}
	if v := strings.TrimSpace(overrides.StorageDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if brokers := trimList(overrides.KafkaBrokers); len(brokers) > 0 {
		cfg.Archive.KafkaBrokers = brokers
	}
	if v := strings.TrimSpace(overrides.HTTPListen); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := strings.TrimSpace(overrides.LogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
