package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tv-alert-mirror/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logs     LogsConfig     `mapstructure:"logs"`
	Database DatabaseConfig `mapstructure:"database"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// BrowserConfig covers the DevTools attachment.
type BrowserConfig struct {
	DevToolsURL string        `mapstructure:"devtools_url"`
	TargetHost  string        `mapstructure:"target_host"`
	PendingTTL  time.Duration `mapstructure:"pending_ttl"`
}

// PipelineConfig governs response processing.
type PipelineConfig struct {
	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
}

// LogsConfig bounds the mirrored fire-log collection.
type LogsConfig struct {
	MaxPerAlert   int           `mapstructure:"max_per_alert"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// NotifyConfig configures the websocket hub and metrics endpoint.
type NotifyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Metrics    bool   `mapstructure:"metrics"`
}

// SyncConfig drives the manual remote sync.
type SyncConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Cookie    string        `mapstructure:"cookie"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"request_timeout"`
	PageLimit int           `mapstructure:"page_limit"`
	PageDelay time.Duration `mapstructure:"page_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALERTMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "alertmirror")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("browser.devtools_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.target_host", "tradingview.com")
	v.SetDefault("browser.pending_ttl", "10s")

	v.SetDefault("pipeline.debounce_interval", "1s")

	v.SetDefault("logs.max_per_alert", 100)
	v.SetDefault("logs.retention", "168h")
	v.SetDefault("logs.sweep_interval", "1h")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.listen_addr", "127.0.0.1:8777")
	v.SetDefault("notify.metrics", true)

	v.SetDefault("sync.base_url", "https://pricealerts.tradingview.com")
	v.SetDefault("sync.user_agent", "alertmirror/1.0")
	v.SetDefault("sync.request_timeout", "15s")
	v.SetDefault("sync.page_limit", 50)
	v.SetDefault("sync.page_delay", "2s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Browser.DevToolsURL == "" {
		return fmt.Errorf("browser.devtools_url is required")
	}
	if c.Browser.TargetHost == "" {
		return fmt.Errorf("browser.target_host is required")
	}
	if c.Browser.PendingTTL <= 0 {
		return fmt.Errorf("browser.pending_ttl must be greater than zero")
	}
	if c.Pipeline.DebounceInterval <= 0 {
		return fmt.Errorf("pipeline.debounce_interval must be greater than zero")
	}
	if c.Logs.MaxPerAlert <= 0 {
		return fmt.Errorf("logs.max_per_alert must be greater than zero")
	}
	if c.Logs.Retention <= 0 {
		return fmt.Errorf("logs.retention must be greater than zero")
	}
	if c.Logs.SweepInterval <= 0 {
		return fmt.Errorf("logs.sweep_interval must be greater than zero")
	}
	if c.Sync.PageLimit <= 0 {
		return fmt.Errorf("sync.page_limit must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
