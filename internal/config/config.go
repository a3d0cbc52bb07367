package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const maxAppendBatchSize = 5000

// Config holds all configuration for one sync run.
type Config struct {
	// Feishu app credentials
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`

	// Target spreadsheet and sheet
	TableToken string `mapstructure:"table_token"`
	SheetID    string `mapstructure:"sheet_id"`
	HeaderRows int    `mapstructure:"header_rows"`

	// Base URLs for API endpoints (configurable for testing)
	FeishuBaseURL string `mapstructure:"feishu_base_url"`
	SSEBaseURL    string `mapstructure:"sse_base_url"`

	AppendBatchSize int           `mapstructure:"append_batch_size"`
	SyncTimeout     time.Duration `mapstructure:"sync_timeout"`

	// Requests per second, zero or less disables limiting
	SSERateLimit    float64 `mapstructure:"rate_limit_sse"`
	FeishuRateLimit float64 `mapstructure:"rate_limit_feishu"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values.
//
// Expected environment variables:
//   - APP_ID
//   - APP_SECRET
//   - TABLE_TOKEN
//   - SHEET_ID
//   - HEADER_ROWS (optional, defaults to 1)
//   - FEISHU_BASE_URL (optional, defaults to production)
//   - SSE_BASE_URL (optional, defaults to production)
//   - APPEND_BATCH_SIZE (optional, defaults to 500)
//   - SYNC_TIMEOUT (optional, defaults to 60s)
//   - RATE_LIMIT_SSE, RATE_LIMIT_FEISHU (optional, requests per second)
//   - LOG_LEVEL (optional, debug|info|warn|error)
//   - LOG_FORMAT (optional, text|json)
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("header_rows", 1)
	v.SetDefault("feishu_base_url", "https://open.feishu.cn")
	v.SetDefault("sse_base_url", "http://query.sse.com.cn")
	v.SetDefault("append_batch_size", 500)
	v.SetDefault("sync_timeout", 60*time.Second)
	v.SetDefault("rate_limit_sse", 2)
	v.SetDefault("rate_limit_feishu", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.hkconnectrates")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	for key, env := range map[string]string{
		"app_id":            "APP_ID",
		"app_secret":        "APP_SECRET",
		"table_token":       "TABLE_TOKEN",
		"sheet_id":          "SHEET_ID",
		"header_rows":       "HEADER_ROWS",
		"feishu_base_url":   "FEISHU_BASE_URL",
		"sse_base_url":      "SSE_BASE_URL",
		"append_batch_size": "APPEND_BATCH_SIZE",
		"sync_timeout":      "SYNC_TIMEOUT",
		"rate_limit_sse":    "RATE_LIMIT_SSE",
		"rate_limit_feishu": "RATE_LIMIT_FEISHU",
		"log_level":         "LOG_LEVEL",
		"log_format":        "LOG_FORMAT",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that required fields are set and optional ones are in range.
func (c *Config) Validate() error {
	var missing []string
	if c.AppID == "" {
		missing = append(missing, "APP_ID")
	}
	if c.AppSecret == "" {
		missing = append(missing, "APP_SECRET")
	}
	if c.TableToken == "" {
		missing = append(missing, "TABLE_TOKEN")
	}
	if c.SheetID == "" {
		missing = append(missing, "SHEET_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	var invalid []string
	if c.HeaderRows < 0 {
		invalid = append(invalid, "HEADER_ROWS must not be negative")
	}
	if c.AppendBatchSize < 1 || c.AppendBatchSize > maxAppendBatchSize {
		invalid = append(invalid, fmt.Sprintf("APPEND_BATCH_SIZE must be between 1 and %d", maxAppendBatchSize))
	}
	if c.SyncTimeout <= 0 {
		invalid = append(invalid, "SYNC_TIMEOUT must be positive")
	}
	if _, err := c.Level(); err != nil {
		invalid = append(invalid, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		invalid = append(invalid, fmt.Sprintf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, "; "))
	}

	return nil
}

// Level returns LogLevel as a slog level
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	return level, err
}
