// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "chromelink", cfg.Logger.ServiceName)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "~/.chromelink/sessions.db", cfg.Store.SQLite.Path)
	assert.Equal(t, "default", cfg.Session.Scope)
	assert.Equal(t, time.Duration(0), cfg.WebDriver.RequestTimeout)
	assert.Equal(t, 10000, cfg.Driver.Port)
	assert.Equal(t, 20*time.Second, cfg.Driver.StartTimeout)
	assert.True(t, cfg.Local.Headless)
	assert.Empty(t, cfg.ChromeDriver.URI)
	require.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"bad store type", func(c *Config) { c.Store.Type = "redis" }, "store.type"},
		{"empty scope", func(c *Config) { c.Session.Scope = "  " }, "session.scope must not be empty"},
		{"scope with wildcard", func(c *Config) { c.Session.Scope = "team*" }, "not allowed"},
		{"negative timeout", func(c *Config) { c.WebDriver.RequestTimeout = -time.Second }, "request_timeout"},
		{"port out of range", func(c *Config) { c.Driver.Port = 70000 }, "driver.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("store type is case insensitive", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Store.Type = "Postgres"
		assert.NoError(t, cfg.Validate())
	})
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("yaml overrides defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yaml := []byte(`
chromedriver:
  uri: http://grid:4444/wd/hub
  options: binary_location="/opt/chrome"
store:
  type: memory
webdriver:
  request_timeout: 45s
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yaml)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "http://grid:4444/wd/hub", cfg.ChromeDriver.URI)
		assert.Equal(t, `binary_location="/opt/chrome"`, cfg.ChromeDriver.Options)
		assert.Equal(t, "memory", cfg.Store.Type)
		assert.Equal(t, 45*time.Second, cfg.WebDriver.RequestTimeout)
	})

	t.Run("postgres password comes from env", func(t *testing.T) {
		t.Setenv("CHROMELINK_PG_PASSWORD", "s3cret")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "s3cret", cfg.Store.Postgres.Password)
	})

	t.Run("invalid configuration is rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("store.type", "etcd")

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestPostgresConnString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "cl", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/cl?sslmode=require", p.ConnString())

	p.URL = "postgres://override"
	assert.Equal(t, "postgres://override", p.ConnString())
}
