package config

import (
	"errors"
	"strings"
)

// Parse reads configuration content as JSONC over base and validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg, warnings, err := overlay(content, base)
	if err != nil {
		return Config{}, nil, err
	}
	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validatedWarnings...), nil
}

// overlay applies JSONC content over base without validating.
func overlay(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return base, nil, nil
	}
	if !strings.HasPrefix(trimmed, "{") {
		return Config{}, nil, errors.New("config must be a JSONC object")
	}
	return parseJSONC(content, base)
}
