// Package config handles configuration loading and validation for the TOS reporter.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the reporter
type Config struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Reporter ReporterConfig `mapstructure:"reporter"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Stats    StatsConfig    `mapstructure:"stats"`
	API      APIConfig      `mapstructure:"api"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	NewRelic NewRelicConfig `mapstructure:"newrelic"`
	Log      LogConfig      `mapstructure:"log"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ReporterConfig defines share accounting settings
type ReporterConfig struct {
	// Chain is the share chain id used for accumulator fields and slice keys
	Chain int `mapstructure:"chain"`
}

// QueueConfig defines work queue and consumer loop settings
type QueueConfig struct {
	Durable      bool          `mapstructure:"durable"`
	Key          string        `mapstructure:"key"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	IdleInterval time.Duration `mapstructure:"idle_interval"`
	Interval     time.Duration `mapstructure:"interval"`
}

// StatsConfig defines the per-minute share tally settings
type StatsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// APIConfig defines status API settings
type APIConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Bind               string        `mapstructure:"bind"`
	IngressEnabled     bool          `mapstructure:"ingress_enabled"`
	Pprof              bool          `mapstructure:"pprof"`
	StatusPushInterval time.Duration `mapstructure:"status_push_interval"`
}

// PolicyConfig defines per-IP limits on the HTTP ingress endpoints
type PolicyConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxScore      int32         `mapstructure:"max_score"`
	CostRequest   int32         `mapstructure:"cost_request"`
	CostMalformed int32         `mapstructure:"cost_malformed"`
	ScoreReset    time.Duration `mapstructure:"score_reset"`
	BanTimeout    time.Duration `mapstructure:"ban_timeout"`
	Whitelist     []string      `mapstructure:"whitelist"`
}

// NotifyConfig defines block solved notification settings
type NotifyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	PoolName     string `mapstructure:"pool_name"`
	PoolURL      string `mapstructure:"pool_url"`
}

// NewRelicConfig defines New Relic APM settings
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tos-reporter")
	}

	v.SetEnvPrefix("TOS_REPORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Redis defaults
	v.SetDefault("redis.url", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("reporter.chain", 1)

	// Queue defaults
	v.SetDefault("queue.durable", true)
	v.SetDefault("queue.key", "reporter:queue")
	v.SetDefault("queue.retry_delay", "1s")
	v.SetDefault("queue.idle_interval", "1s")
	v.SetDefault("queue.interval", "0s")

	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.flush_interval", "1m")

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", "127.0.0.1:8090")
	v.SetDefault("api.ingress_enabled", false)
	v.SetDefault("api.pprof", false)
	v.SetDefault("api.status_push_interval", "1s")

	// Ingress policy defaults
	v.SetDefault("policy.enabled", true)
	v.SetDefault("policy.max_score", 5000)
	v.SetDefault("policy.cost_request", 1)
	v.SetDefault("policy.cost_malformed", 100)
	v.SetDefault("policy.score_reset", "1m")
	v.SetDefault("policy.ban_timeout", "5m")
	v.SetDefault("policy.whitelist", []string{"127.0.0.1", "::1"})

	v.SetDefault("notify.pool_name", "TOS Mining Pool")

	v.SetDefault("newrelic.app_name", "tos-reporter")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}

	if c.Reporter.Chain <= 0 {
		return fmt.Errorf("reporter.chain must be a positive chain id")
	}

	if c.Queue.Durable && c.Queue.Key == "" {
		return fmt.Errorf("queue.key is required when queue.durable is set")
	}

	if c.Queue.RetryDelay <= 0 {
		return fmt.Errorf("queue.retry_delay must be positive")
	}

	if c.Queue.IdleInterval <= 0 {
		return fmt.Errorf("queue.idle_interval must be positive")
	}

	if c.Queue.Interval < 0 {
		return fmt.Errorf("queue.interval must not be negative")
	}

	if c.Stats.Enabled && c.Stats.FlushInterval < time.Second {
		return fmt.Errorf("stats.flush_interval must be at least 1s")
	}

	if c.API.Enabled && c.API.Bind == "" {
		return fmt.Errorf("api.bind is required when api is enabled")
	}

	if c.Policy.Enabled {
		if c.Policy.MaxScore <= 0 {
			return fmt.Errorf("policy.max_score must be positive")
		}
		if c.Policy.ScoreReset <= 0 || c.Policy.BanTimeout <= 0 {
			return fmt.Errorf("policy.score_reset and policy.ban_timeout must be positive")
		}
	}

	return nil
}
