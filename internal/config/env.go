// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/striploop/internal/log"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "STRIPLOOP_"

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if value, exists := os.LookupEnv(key); exists {
		if value == "" {
			logDefault(logger, key, "environment variable is empty")
			return defaultValue
		}
		logger.Debug().
			Str("key", key).
			Str("value", value).
			Str("source", "environment").
			Msg("using environment variable")
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from environment variable or returns default value.
// It validates the input and falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	v, ok := parseWith(key, strconv.Atoi)
	if !ok {
		return defaultValue
	}
	return v
}

// ParseInt64 is ParseInt for byte sizes and other wide values.
func ParseInt64(key string, defaultValue int64) int64 {
	v, ok := parseWith(key, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
	if !ok {
		return defaultValue
	}
	return v
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	v, ok := parseWith(key, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
	if !ok {
		return defaultValue
	}
	return v
}

// ParseDuration reads a duration from environment variable in Go duration format (e.g. "5s").
// It falls back to default on parse errors or empty variables and logs the choice.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := parseWith(key, time.ParseDuration)
	if !ok {
		return defaultValue
	}
	return v
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	v, ok := parseWith(key, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
	if !ok {
		return defaultValue
	}
	return v
}

// parseWith looks up key and parses it. ok is false when the variable is unset,
// empty, or malformed; malformed values are logged at warn level.
func parseWith[T any](key string, parse func(string) (T, error)) (T, bool) {
	var zero T
	raw, exists := os.LookupEnv(key)
	if !exists {
		return zero, false
	}
	logger := log.WithComponent("config")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		logDefault(logger, key, "environment variable is empty")
		return zero, false
	}
	v, err := parse(raw)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", raw).
			Err(err).
			Msg("invalid value in environment variable, using default")
		return zero, false
	}
	logger.Debug().
		Str("key", key).
		Str("value", raw).
		Str("source", "environment").
		Msg("using environment variable")
	return v, true
}

func logDefault(logger zerolog.Logger, key, why string) {
	logger.Debug().
		Str("key", key).
		Str("source", "default").
		Msgf("using default value (%s)", why)
}
