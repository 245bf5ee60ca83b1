// Package config loads application configuration from config.yaml, .env and
// STARREACH_* environment variables, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is built once at
// startup and passed explicitly to the pipeline coordinator.
type Config struct {
	GitHub   GitHubConfig   `yaml:"github" mapstructure:"github"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Render   RenderConfig   `yaml:"render" mapstructure:"render"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GitHubConfig holds GitHub API settings.
type GitHubConfig struct {
	Token             string  `yaml:"token" mapstructure:"token"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	PerPage           int     `yaml:"per_page" mapstructure:"per_page"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// StoreConfig configures the tabular store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // "xlsx" or "sqlite"
	Path   string `yaml:"path" mapstructure:"path"`
}

// RenderConfig configures document rendering.
type RenderConfig struct {
	TimeoutSecs    int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BrowserEnabled bool `yaml:"browser_enabled" mapstructure:"browser_enabled"`
}

// Timeout returns the per-document render timeout.
func (r RenderConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// PipelineConfig holds the concurrency knobs, fixed at coordinator start.
type PipelineConfig struct {
	Workers           int `yaml:"workers" mapstructure:"workers"`
	QueueCapacity     int `yaml:"queue_capacity" mapstructure:"queue_capacity"`
	MaxRetries        int `yaml:"max_retries" mapstructure:"max_retries"`
	FlushThreshold    int `yaml:"flush_threshold" mapstructure:"flush_threshold"`
	FlushIntervalSecs int `yaml:"flush_interval_secs" mapstructure:"flush_interval_secs"`
	PageRetryWaitSecs int `yaml:"page_retry_wait_secs" mapstructure:"page_retry_wait_secs"`
	Limit             int `yaml:"limit" mapstructure:"limit"` // 0 = unlimited
}

// FlushInterval returns the saver's idle flush interval.
func (p PipelineConfig) FlushInterval() time.Duration {
	return time.Duration(p.FlushIntervalSecs) * time.Second
}

// PageRetryWait returns the fixed wait before retrying a failed page fetch.
func (p PipelineConfig) PageRetryWait() time.Duration {
	return time.Duration(p.PageRetryWaitSecs) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// The GitHub token conventionally lives in .env; missing file is fine.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STARREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Accept the conventional token variable as well as STARREACH_GITHUB_TOKEN.
	_ = v.BindEnv("github.token", "STARREACH_GITHUB_TOKEN", "GITHUB_TOKEN")

	// Defaults
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.per_page", 100)
	v.SetDefault("github.requests_per_second", 2.0)
	v.SetDefault("store.driver", "xlsx")
	v.SetDefault("store.path", "stargazers.xlsx")
	v.SetDefault("render.timeout_secs", 10)
	v.SetDefault("render.browser_enabled", true)
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.queue_capacity", 100)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.flush_threshold", 20)
	v.SetDefault("pipeline.flush_interval_secs", 5)
	v.SetDefault("pipeline.page_retry_wait_secs", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
