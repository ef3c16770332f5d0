// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the kodiguide configuration with the precedence
// environment > YAML file > defaults and validates the result.
package config

import "time"

// Config is the complete daemon configuration.
type Config struct {
	Version string `yaml:"-"`

	DataDir string `yaml:"dataDir" validate:"required"`
	Listen  string `yaml:"listen" validate:"required,hostname_port"`
	// Secret is the first path segment of every command route.
	Secret string `yaml:"secret" validate:"required,excludesall=/?#"`
	// LabelPrefix is stripped from spoken label commands, e.g. "PUT ON CHANNEL".
	LabelPrefix string `yaml:"labelPrefix"`
	AliasFile   string `yaml:"aliasFile"`
	// MaxUpstreamFailures consecutive failed refresh cycles stop the daemon;
	// zero means never.
	MaxUpstreamFailures int `yaml:"maxUpstreamFailures" validate:"gte=0"`
	// RefreshRateLimit caps on-demand refresh requests per minute.
	RefreshRateLimit int `yaml:"refreshRateLimit" validate:"gte=0"`

	Log       LogConfig       `yaml:"log"`
	Kodi      KodiConfig      `yaml:"kodi"`
	Guide     GuideConfig     `yaml:"guide"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LogConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Service string `yaml:"service"`
}

type KodiConfig struct {
	URL              string        `yaml:"url" validate:"required,http_url"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	RateLimit        float64       `yaml:"rateLimit" validate:"gte=0"`
	RateBurst        int           `yaml:"rateBurst" validate:"gte=0"`
	BreakerThreshold int           `yaml:"breakerThreshold" validate:"gte=0"`
	BreakerReset     time.Duration `yaml:"breakerReset" validate:"gte=0"`
}

type GuideConfig struct {
	// URL is an http(s) address, a file:// URL or a local path. Empty
	// disables guide refreshes.
	URL             string        `yaml:"url"`
	RefreshInterval time.Duration `yaml:"refreshInterval" validate:"gte=0"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout" validate:"gt=0"`
	// Watch refreshes the guide when a local feed file changes.
	Watch bool `yaml:"watch"`
}

type ChannelsConfig struct {
	RefreshInterval  time.Duration `yaml:"refreshInterval" validate:"gte=0"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout" validate:"gt=0"`
	GroupConcurrency int           `yaml:"groupConcurrency" validate:"gte=1,lte=32"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite"`
	Path    string `yaml:"path"`
}

type SessionConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory badger"`
	Path    string `yaml:"path"`
}

type CacheConfig struct {
	// RedisAddr selects the redis cache; empty means in-process memory.
	RedisAddr     string `yaml:"redisAddr" validate:"omitempty,hostname_port"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB" validate:"gte=0"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"oneof=grpc http"`
	Endpoint     string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	SamplingRate float64 `yaml:"samplingRate" validate:"gte=0,lte=1"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		DataDir:          "data",
		Listen:           ":8090",
		RefreshRateLimit: 6,
		Log: LogConfig{
			Level:   "info",
			Service: "kodiguide",
		},
		Kodi: KodiConfig{
			URL:              "http://127.0.0.1:8080",
			Timeout:          5 * time.Second,
			RateLimit:        10,
			RateBurst:        5,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Guide: GuideConfig{
			RefreshInterval: 12 * time.Hour,
			FetchTimeout:    60 * time.Second,
		},
		Channels: ChannelsConfig{
			RefreshInterval:  time.Hour,
			FetchTimeout:     5 * time.Second,
			GroupConcurrency: 4,
		},
		Store:   StoreConfig{Backend: "memory", Path: "guide.db"},
		Session: SessionConfig{Backend: "memory", Path: "session"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			SamplingRate: 1,
		},
	}
}
