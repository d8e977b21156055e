package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Voice  VoiceConfig  `yaml:"voice" mapstructure:"voice"`
	Match  MatchConfig  `yaml:"match" mapstructure:"match"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// VoiceConfig holds voice platform API credentials.
type VoiceConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MatchConfig tunes the lead/conversation matcher.
type MatchConfig struct {
	// WindowMinutes is the hard time pre-filter around the lead's creation.
	WindowMinutes int `yaml:"window_minutes" mapstructure:"window_minutes"`
	// MinScore is the auto-link acceptance threshold (0-100).
	MinScore int `yaml:"min_score" mapstructure:"min_score"`
	// PageSize bounds the candidate window fetched from the platform.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
	// DetailDelayMillis spaces out per-conversation detail fetches.
	DetailDelayMillis int `yaml:"detail_delay_millis" mapstructure:"detail_delay_millis"`
}

// BatchConfig configures batch re-linking.
type BatchConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
	LookbackHours      int `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	MaxDLQRetries      int `yaml:"max_dlq_retries" mapstructure:"max_dlq_retries"`
}

// ServerConfig configures the webhook/admin server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// RateLimit is the number of requests allowed per client IP within
	// RateWindowSecs seconds.
	RateLimit      int `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateWindowSecs int `yaml:"rate_window_secs" mapstructure:"rate_window_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	for key, val := range Defaults() {
		v.SetDefault(key, val)
	}

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

// Defaults returns every configuration knob with its default value, keyed
// by viper path. Shared by Load and the config-init command.
func Defaults() map[string]any {
	return map[string]any{
		"store.driver":               "postgres",
		"store.max_conns":            10,
		"store.min_conns":            2,
		"voice.base_url":             "https://api.voicebridge.io/v1",
		"match.window_minutes":       120,
		"match.min_score":            50,
		"match.page_size":            100,
		"match.detail_delay_millis":  250,
		"batch.max_concurrent_leads": 4,
		"batch.lookback_hours":       24,
		"batch.max_dlq_retries":      5,
		"server.port":                8080,
		"server.rate_limit":          60,
		"server.rate_window_secs":    60,
		"log.level":                  "info",
		"log.format":                 "json",
	}
}

// Validate checks that the settings a command needs are present.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "link":
		if c.Voice.Key == "" {
			return eris.New("config: voice.key is required (LEADLINK_VOICE_KEY)")
		}
		fallthrough
	case "store":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
		}
	}
	return nil
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
