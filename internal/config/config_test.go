// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("KODIGUIDE_SECRET", "s3cret")
	t.Setenv("KODIGUIDE_DATA_DIR", t.TempDir())

	cfg, err := NewLoader("", "1.2.3").Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, ":8090", cfg.Listen)
	assert.Equal(t, 5*time.Second, cfg.Kodi.Timeout)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
secret: fromfile
listen: ":9000"
labelPrefix: "PUT ON CHANNEL"
kodi:
  url: http://kodi.lan:8080
  timeout: 3s
guide:
  url: http://epg.example/guide.xml.gz
  refreshInterval: 6h
store:
  backend: sqlite
`)
	t.Setenv("KODIGUIDE_LISTEN", ":9100")
	t.Setenv("KODIGUIDE_KODI_TIMEOUT", "2s")
	t.Setenv("KODIGUIDE_DATA_DIR", t.TempDir())

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "fromfile", cfg.Secret)
	assert.Equal(t, ":9100", cfg.Listen, "env beats file")
	assert.Equal(t, 2*time.Second, cfg.Kodi.Timeout, "env beats file")
	assert.Equal(t, "http://kodi.lan:8080", cfg.Kodi.URL)
	assert.Equal(t, 6*time.Hour, cfg.Guide.RefreshInterval)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 12*time.Hour, Default().Guide.RefreshInterval)
	assert.Equal(t, 60*time.Second, cfg.Guide.FetchTimeout, "defaults fill what the file omits")
	assert.Contains(t, l.ConsumedEnvKeys, "KODIGUIDE_KODI_TIMEOUT")
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "secret: x\nkodi:\n  endpoint: http://x\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), err.Error())
}

func TestLoadRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "").Load()
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "secret: a\n---\nsecret: b\n")
	_, err := NewLoader(path, "").Load()
	assert.ErrorContains(t, err, "multiple documents")
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("KODIGUIDE_SECRET", "x")
	t.Setenv("KODIGUIDE_KODI_RATE_BURST", "lots")
	t.Setenv("KODIGUIDE_GUIDE_WATCH", "maybe")
	t.Setenv("KODIGUIDE_DATA_DIR", t.TempDir())

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Kodi.RateBurst, cfg.Kodi.RateBurst)
	assert.False(t, cfg.Guide.Watch)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Secret = "s"
		return c
	}
	require.NoError(t, Validate(valid()))

	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"missing secret", func(c *Config) { c.Secret = "" }, "secret"},
		{"secret with slash", func(c *Config) { c.Secret = "a/b" }, "secret"},
		{"bad listen", func(c *Config) { c.Listen = "8080" }, "listen"},
		{"bad kodi url", func(c *Config) { c.Kodi.URL = "kodi.lan" }, "kodi.url"},
		{"zero timeout", func(c *Config) { c.Kodi.Timeout = 0 }, "kodi.timeout"},
		{"unknown store", func(c *Config) { c.Store.Backend = "bolt" }, "store.backend"},
		{"unknown session", func(c *Config) { c.Session.Backend = "redis" }, "session.backend"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "telemetry.endpoint"},
		{"sampling above one", func(c *Config) { c.Telemetry.SamplingRate = 1.5 }, "telemetry.samplingRate"},
		{"negative failures", func(c *Config) { c.MaxUpstreamFailures = -1 }, "maxUpstreamFailures"},
		{"watch without url", func(c *Config) { c.Guide.Watch = true }, "guide.watch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mut(&c)
			err := Validate(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field+":")
		})
	}
}

func TestValidateMasksSecrets(t *testing.T) {
	c := Default()
	c.Secret = "top/secret"
	err := Validate(c)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "top/secret")
}

func TestResolvePath(t *testing.T) {
	c := Config{DataDir: "/var/lib/kodiguide"}
	assert.Equal(t, "/var/lib/kodiguide/guide.db", c.ResolvePath("guide.db"))
	assert.Equal(t, "/tmp/x.db", c.ResolvePath("/tmp/x.db"))
	assert.Equal(t, "", c.ResolvePath(""))
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := NewLoader(filepath.Join("..", "..", "config.example.yaml"), "test").Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "badger", cfg.Session.Backend)
	assert.Equal(t, 12*time.Hour, cfg.Guide.RefreshInterval)
	assert.Equal(t, "PUT ON CHANNEL", cfg.LabelPrefix)
}
