package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	money "github.com/inference-gateway/chatledger/internal/money"
	viper "github.com/spf13/viper"
	gotenv "github.com/subosito/gotenv"
	yaml "gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when no --config flag is given
	DefaultConfigPath = ".chatledger/config.yaml"
	// EnvPrefix prefixes every environment override, e.g. CHATLEDGER_GATEWAY_API_KEY
	EnvPrefix = "CHATLEDGER"
)

// Config represents the service configuration
type Config struct {
	Storage  storage.StorageConfig `yaml:"storage" mapstructure:"storage"`
	Redis    storage.RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Gateway  GatewayConfig         `yaml:"gateway" mapstructure:"gateway"`
	Telegram TelegramConfig        `yaml:"telegram" mapstructure:"telegram"`
	API      APIConfig             `yaml:"api" mapstructure:"api"`
	Admin    AdminConfig           `yaml:"admin" mapstructure:"admin"`
	Billing  BillingConfig         `yaml:"billing" mapstructure:"billing"`
	History  HistoryConfig         `yaml:"history" mapstructure:"history"`
	Reward   RewardConfig          `yaml:"reward" mapstructure:"reward"`
	Logging  LoggingConfig         `yaml:"logging" mapstructure:"logging"`
}

// GatewayConfig contains the AI gateway connection settings
type GatewayConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	APIKey       string `yaml:"api_key" mapstructure:"api_key"`
	Timeout      int    `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries"`
	SystemPrompt string `yaml:"system_prompt" mapstructure:"system_prompt"`
	HistoryLimit int    `yaml:"history_limit" mapstructure:"history_limit"`
}

// TelegramConfig contains the chat transport settings
type TelegramConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	Token     string  `yaml:"token" mapstructure:"token"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// APIConfig contains the read-only HTTP API settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" mapstructure:"address"`
}

// AdminConfig lists operator identities and admin command settings
type AdminConfig struct {
	Identities      []string `yaml:"identities" mapstructure:"identities"`
	ConfirmationTTL int      `yaml:"confirmation_ttl" mapstructure:"confirmation_ttl"`
}

// BillingConfig contains pricing and pipeline settings
type BillingConfig struct {
	DefaultMultiplier        string `yaml:"default_multiplier" mapstructure:"default_multiplier"`
	EstimatePromptTokens     int64  `yaml:"estimate_prompt_tokens" mapstructure:"estimate_prompt_tokens"`
	EstimateCompletionTokens int64  `yaml:"estimate_completion_tokens" mapstructure:"estimate_completion_tokens"`
	Workers                  int    `yaml:"workers" mapstructure:"workers"`
	BufferSize               int    `yaml:"buffer_size" mapstructure:"buffer_size"`
	ReplayBatch              int    `yaml:"replay_batch" mapstructure:"replay_batch"`
}

// HistoryConfig controls listings shown to users
type HistoryConfig struct {
	PageSize         int `yaml:"page_size" mapstructure:"page_size"`
	PreviewLength    int `yaml:"preview_length" mapstructure:"preview_length"`
	TransactionLimit int `yaml:"transaction_limit" mapstructure:"transaction_limit"`
	ModelPageSize    int `yaml:"model_page_size" mapstructure:"model_page_size"`
}

// RewardConfig controls the periodic credit grant
type RewardConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Amount          string `yaml:"amount" mapstructure:"amount"`
	IntervalMinutes int    `yaml:"interval_minutes" mapstructure:"interval_minutes"`
	WeeklyAmount    string `yaml:"weekly_amount" mapstructure:"weekly_amount"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Storage: storage.StorageConfig{
			Type:   "sqlite",
			SQLite: storage.SQLiteConfig{Path: ".chatledger/ledger.db"},
			Postgres: storage.PostgresConfig{
				Host:         "localhost",
				Port:         5432,
				Database:     "chatledger",
				Username:     "chatledger",
				SSLMode:      "disable",
				MaxOpenConns: 10,
			},
		},
		Redis: storage.RedisConfig{
			Enabled:   false,
			Host:      "localhost",
			Port:      6379,
			KeyPrefix: "chatledger",
		},
		Gateway: GatewayConfig{
			URL:          "http://localhost:8080",
			Timeout:      120,
			MaxRetries:   3,
			SystemPrompt: "You are a helpful assistant.",
			HistoryLimit: 20,
		},
		Telegram: TelegramConfig{
			RateLimit: 1,
			Burst:     3,
		},
		API: APIConfig{
			Enabled: true,
			Address: ":8081",
		},
		Admin: AdminConfig{
			Identities:      []string{},
			ConfirmationTTL: 300,
		},
		Billing: BillingConfig{
			DefaultMultiplier:        "1.1",
			EstimatePromptTokens:     500,
			EstimateCompletionTokens: 1500,
			Workers:                  4,
			BufferSize:               256,
			ReplayBatch:              100,
		},
		History: HistoryConfig{
			PageSize:         5,
			PreviewLength:    50,
			TransactionLimit: 5,
			ModelPageSize:    10,
		},
		Reward: RewardConfig{
			Enabled:         false,
			Amount:          "1",
			IntervalMinutes: 24 * 60,
			WeeklyAmount:    "2",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.type: unsupported backend %q", c.Storage.Type))
	}
	if _, err := money.ParsePositive(c.Billing.DefaultMultiplier); err != nil {
		errs = append(errs, fmt.Errorf("billing.default_multiplier: %w", err))
	}
	if c.Billing.EstimatePromptTokens < 0 || c.Billing.EstimateCompletionTokens < 0 {
		errs = append(errs, errors.New("billing: estimate token counts must not be negative"))
	}
	if c.Billing.Workers < 1 {
		errs = append(errs, errors.New("billing.workers: must be at least 1"))
	}
	if c.History.PageSize < 1 {
		errs = append(errs, errors.New("history.page_size: must be at least 1"))
	}
	if c.Reward.Enabled {
		if _, err := money.ParsePositive(c.Reward.Amount); err != nil {
			errs = append(errs, fmt.Errorf("reward.amount: %w", err))
		}
		if c.Reward.IntervalMinutes < 1 {
			errs = append(errs, errors.New("reward.interval_minutes: must be at least 1"))
		}
		if c.Reward.WeeklyAmount != "" {
			if _, err := money.ParsePositive(c.Reward.WeeklyAmount); err != nil {
				errs = append(errs, fmt.Errorf("reward.weekly_amount: %w", err))
			}
		}
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token: required when telegram is enabled"))
	}

	return errors.Join(errs...)
}

// New builds a viper instance seeded with defaults, environment overrides
// and, when it exists, the config file at configPath.
func New(configPath string) (*viper.Viper, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to load .env file", "error", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(configPath); err == nil {
		logger.Debug("Loading config file", "path", configPath)
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			logger.Error("Failed to parse config file", "path", configPath, "error", err)
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		logger.Debug("Config file not found, using default configuration", "path", configPath)
	}

	return v, nil
}

// FromViper decodes and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load reads configuration from configPath, the environment and .env
func Load(configPath string) (*Config, *viper.Viper, error) {
	v, err := New(configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := FromViper(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// setDefaults registers every field of cfg as a viper default so that
// environment overrides resolve even without a config file.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	walkDefaults(v, "", tree)
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if child, ok := value.(map[string]any); ok {
			walkDefaults(v, full, child)
			continue
		}
		v.SetDefault(full, value)
	}
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	logger.Debug("Successfully saved config", "path", configPath)
	return nil
}

// LoggerOptions maps logging settings onto the logger package
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}
