// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	ChromeDriver ChromeDriverConfig `mapstructure:"chromedriver" yaml:"chromedriver"`
	WebDriver    WebDriverConfig    `mapstructure:"webdriver" yaml:"webdriver"`
	Session      SessionConfig      `mapstructure:"session" yaml:"session"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Local        LocalConfig        `mapstructure:"local" yaml:"local"`
	Driver       DriverConfig       `mapstructure:"driver" yaml:"driver"`
}

// LoggerConfig controls the zap logger and its optional rotating file sink.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal color names.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ChromeDriverConfig is the per-invocation credential set: where the remote
// WebDriver endpoint lives and the raw launch option string.
type ChromeDriverConfig struct {
	URI     string `mapstructure:"uri" yaml:"uri"`
	Options string `mapstructure:"options" yaml:"options"`
}

// WebDriverConfig tunes the HTTP transport used to reach the WebDriver server.
// A zero RequestTimeout means requests carry no deadline of their own.
type WebDriverConfig struct {
	RequestTimeout time.Duration     `mapstructure:"request_timeout" yaml:"request_timeout"`
	UserAgent      string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers"`
	Debug          bool              `mapstructure:"debug" yaml:"debug"`
}

// SessionConfig scopes the stored session identifier.
type SessionConfig struct {
	Scope string `mapstructure:"scope" yaml:"scope"`
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// ConnString returns URL when set, otherwise builds one from the discrete fields.
func (p PostgresConfig) ConnString() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

type NATSConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	Bucket         string        `mapstructure:"bucket" yaml:"bucket"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// MetricsConfig controls the per-invocation metrics flush. Metrics are only
// written when TextfilePath is set.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile" yaml:"textfile"`
}

// LocalConfig configures the chromedp-driven local browser.
type LocalConfig struct {
	Headless bool          `mapstructure:"headless" yaml:"headless"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DriverConfig configures the local chromedriver service launcher.
type DriverConfig struct {
	Path         string        `mapstructure:"path" yaml:"path"`
	Port         int           `mapstructure:"port" yaml:"port"`
	AllowedIPs   string        `mapstructure:"allowed_ips" yaml:"allowed_ips"`
	Args         []string      `mapstructure:"args" yaml:"args"`
	StartTimeout time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
}

var (
	validStoreTypes = map[string]bool{"memory": true, "sqlite": true, "postgres": true, "nats": true}
	validLogFormats = map[string]bool{"console": true, "json": true}
)

// NewDefaultConfig returns a configuration populated with the defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chromelink")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Credentials --
	v.SetDefault("chromedriver.uri", "")
	v.SetDefault("chromedriver.options", "")

	// -- Transport --
	v.SetDefault("webdriver.request_timeout", "0s")
	v.SetDefault("webdriver.user_agent", "chromelink/1.0")
	v.SetDefault("webdriver.debug", false)

	v.SetDefault("session.scope", "default")

	// -- Store --
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite.path", "~/.chromelink/sessions.db")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "") // Should be set via env var
	v.SetDefault("store.postgres.dbname", "chromelink")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("store.nats.bucket", "chromelink_sessions")
	v.SetDefault("store.nats.connect_timeout", "5s")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("local.headless", true)
	v.SetDefault("local.timeout", "60s")

	v.SetDefault("driver.path", "chromedriver")
	v.SetDefault("driver.port", 10000)
	v.SetDefault("driver.allowed_ips", "")
	v.SetDefault("driver.start_timeout", "20s")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are bound explicitly so they never need to live in the config file.
	_ = v.BindEnv("store.postgres.password", "CHROMELINK_PG_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks enumerations and ranges. A missing chromedriver.uri is not a
// configuration error here; it is reported per invocation.
func (c *Config) Validate() error {
	if !validLogFormats[strings.ToLower(c.Logger.Format)] {
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.Logger.Format)
	}
	if !validStoreTypes[strings.ToLower(c.Store.Type)] {
		return fmt.Errorf("store.type must be one of memory, sqlite, postgres, nats; got %q", c.Store.Type)
	}
	if strings.TrimSpace(c.Session.Scope) == "" {
		return fmt.Errorf("session.scope must not be empty")
	}
	if strings.ContainsAny(c.Session.Scope, " \t\r\n*>") {
		return fmt.Errorf("session.scope %q contains characters not allowed in a store key", c.Session.Scope)
	}
	if c.WebDriver.RequestTimeout < 0 {
		return fmt.Errorf("webdriver.request_timeout must not be negative")
	}
	if c.Driver.Port < 0 || c.Driver.Port > 65535 {
		return fmt.Errorf("driver.port must be between 0 and 65535")
	}
	return nil
}
