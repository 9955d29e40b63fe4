package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vidpulse/vidpulse/pkg/model"
)

// Config holds all VidPulse configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// APIConfig defines upstream API settings.
type APIConfig struct {
	Key              string  `mapstructure:"key"`
	BaseURL          string  `mapstructure:"base_url"`
	QueriesPerSecond float64 `mapstructure:"queries_per_second"`
}

// QuotaConfig defines the daily unit budget.
type QuotaConfig struct {
	DailyBudget int    `mapstructure:"daily_budget"`
	Credential  string `mapstructure:"credential"`
	WarnPercent int    `mapstructure:"warn_percent"`
}

// CacheConfig defines result cache settings.
type CacheConfig struct {
	TTL        string `mapstructure:"ttl"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// StorageConfig defines the persistence backend.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis_url"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Listen       string `mapstructure:"listen"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// AlertsConfig defines alerting integrations.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ChannelsConfig points at the saved-channels file.
type ChannelsConfig struct {
	File string `mapstructure:"file"`
}

// DefaultsConfig defines default pipeline parameters.
type DefaultsConfig struct {
	Region        string `mapstructure:"region"`
	MaxResults    int    `mapstructure:"max_results"`
	LookbackHours int    `mapstructure:"lookback_hours"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".vidpulse"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.queries_per_second", 8.0)
	v.SetDefault("quota.daily_budget", 10000)
	v.SetDefault("quota.credential", "default")
	v.SetDefault("quota.warn_percent", 80)
	v.SetDefault("cache.ttl", "4h")
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".vidpulse", "vidpulse.db"))
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("channels.file", filepath.Join(home, ".vidpulse", "channels.yaml"))
	v.SetDefault("defaults.region", "US")
	v.SetDefault("defaults.max_results", 50)
	v.SetDefault("defaults.lookback_hours", 0)
	v.SetDefault("alerts.slack.channel", "#vidpulse-quota")

	// Environment variables
	v.SetEnvPrefix("VIDPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// channelsFile is the on-disk shape of the saved-channels list.
type channelsFile struct {
	Channels []model.SavedChannel `yaml:"channels"`
}

// LoadChannels reads the saved-channels file. A missing file is not an
// error; callers simply proceed without baseline seeds.
func LoadChannels(path string) ([]model.SavedChannel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read channels file: %w", err)
	}

	var f channelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}
	return f.Channels, nil
}
