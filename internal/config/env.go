// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	klog "github.com/ManuGH/kodiguide/internal/log"
)

// EnvPrefix prefixes every environment key the loader reads.
const EnvPrefix = "KODIGUIDE_"

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.Listen = l.envString("LISTEN", cfg.Listen)
	cfg.Secret = l.envString("SECRET", cfg.Secret)
	cfg.LabelPrefix = l.envString("LABEL_PREFIX", cfg.LabelPrefix)
	cfg.AliasFile = l.envString("ALIAS_FILE", cfg.AliasFile)
	cfg.MaxUpstreamFailures = l.envInt("MAX_UPSTREAM_FAILURES", cfg.MaxUpstreamFailures)
	cfg.RefreshRateLimit = l.envInt("REFRESH_RATE_LIMIT", cfg.RefreshRateLimit)

	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Kodi.URL = l.envString("KODI_URL", cfg.Kodi.URL)
	cfg.Kodi.Username = l.envString("KODI_USERNAME", cfg.Kodi.Username)
	cfg.Kodi.Password = l.envString("KODI_PASSWORD", cfg.Kodi.Password)
	cfg.Kodi.Timeout = l.envDuration("KODI_TIMEOUT", cfg.Kodi.Timeout)
	cfg.Kodi.RateLimit = l.envFloat("KODI_RATE_LIMIT", cfg.Kodi.RateLimit)
	cfg.Kodi.RateBurst = l.envInt("KODI_RATE_BURST", cfg.Kodi.RateBurst)
	cfg.Kodi.BreakerThreshold = l.envInt("KODI_BREAKER_THRESHOLD", cfg.Kodi.BreakerThreshold)
	cfg.Kodi.BreakerReset = l.envDuration("KODI_BREAKER_RESET", cfg.Kodi.BreakerReset)

	cfg.Guide.URL = l.envString("GUIDE_URL", cfg.Guide.URL)
	cfg.Guide.RefreshInterval = l.envDuration("GUIDE_REFRESH_INTERVAL", cfg.Guide.RefreshInterval)
	cfg.Guide.FetchTimeout = l.envDuration("GUIDE_FETCH_TIMEOUT", cfg.Guide.FetchTimeout)
	cfg.Guide.Watch = l.envBool("GUIDE_WATCH", cfg.Guide.Watch)

	cfg.Channels.RefreshInterval = l.envDuration("CHANNELS_REFRESH_INTERVAL", cfg.Channels.RefreshInterval)
	cfg.Channels.FetchTimeout = l.envDuration("CHANNELS_FETCH_TIMEOUT", cfg.Channels.FetchTimeout)
	cfg.Channels.GroupConcurrency = l.envInt("CHANNELS_GROUP_CONCURRENCY", cfg.Channels.GroupConcurrency)

	cfg.Store.Backend = l.envString("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)
	cfg.Session.Backend = l.envString("SESSION_BACKEND", cfg.Session.Backend)
	cfg.Session.Path = l.envString("SESSION_PATH", cfg.Session.Path)

	cfg.Cache.RedisAddr = l.envString("CACHE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = l.envString("CACHE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = l.envInt("CACHE_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

func (l *Loader) consume(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(key, defaultVal string) string {
	return ParseString(l.consume(key), defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	return ParseBool(l.consume(key), defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	return ParseInt(l.consume(key), defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	return ParseDuration(l.consume(key), defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	return ParseFloat(l.consume(key), defaultVal)
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "secret")
}

// ParseString reads a string from the environment or returns defaultValue.
// An empty variable counts as unset.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(klog.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		ev.Bool("sensitive", true)
	} else {
		ev.Str("value", value)
	}
	ev.Msg("using environment variable")
	return value
}

// ParseInt reads an integer from the environment. Invalid values fall back
// to defaultValue with a warning.
func ParseInt(key string, defaultValue int) int {
	return parseWith(key, defaultValue, strconv.Atoi)
}

// ParseDuration reads a Go duration ("5s") from the environment.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseWith(key, defaultValue, time.ParseDuration)
}

// ParseFloat reads a float64 from the environment.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseWith(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseBool accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseWith(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, strconv.ErrSyntax
	})
}

func parseWith[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	logger := klog.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	parsed, err := parse(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Interface("default", defaultValue).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Interface("value", parsed).
		Str("source", "environment").
		Msg("using environment variable")
	return parsed
}
