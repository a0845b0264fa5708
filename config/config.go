// Package config loads runtime configuration from defaults, an optional
// pagesense.yaml file and PAGESENSE_* environment variables, in increasing
// precedence.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// Server.
	ListenAddr string `mapstructure:"listen_addr"`

	// Engine.
	MaxIterations            int `mapstructure:"max_iterations"`
	DefaultToolTimeoutMS     int `mapstructure:"default_tool_timeout_ms"`
	ObservationTruncateChars int `mapstructure:"observation_truncate_chars"`
	ThinkHistoryWindow       int `mapstructure:"think_history_window"`
	ToolWorkerPoolSize       int `mapstructure:"tool_worker_pool_size"`

	// Memory.
	MemoryRecentMessages        int `mapstructure:"memory_recent_messages"`
	MemorySummaryRecentMessages int `mapstructure:"memory_summary_recent_messages"`
	RelevantMemoryLimit         int `mapstructure:"relevant_memory_limit"`

	// LLM.
	LLMProvider    string  `mapstructure:"llm_provider"` // openai | anthropic
	LLMModel       string  `mapstructure:"llm_model"`
	LLMTemperature float64 `mapstructure:"llm_temperature"`
	AnthropicKey   string  `mapstructure:"anthropic_api_key"`

	// Storage.
	StorePath string `mapstructure:"store_path"` // empty selects the in-memory store

	// Usage accounting.
	UsageBufferSize int `mapstructure:"usage_buffer_size"`

	// Logging.
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text | json

	// Auth tokens, token -> user id.
	Tokens map[string]string `mapstructure:"tokens"`
}

// DefaultToolTimeout returns the fallback tool deadline as a duration.
func (c *Config) DefaultToolTimeout() time.Duration {
	return time.Duration(c.DefaultToolTimeoutMS) * time.Millisecond
}

// Load resolves the configuration. path may name a config file explicitly;
// when empty, pagesense.yaml is searched for in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("max_iterations", 8)
	v.SetDefault("default_tool_timeout_ms", 30000)
	v.SetDefault("observation_truncate_chars", 500)
	v.SetDefault("think_history_window", 3)
	v.SetDefault("tool_worker_pool_size", 4)
	v.SetDefault("memory_recent_messages", 20)
	v.SetDefault("memory_summary_recent_messages", 10)
	v.SetDefault("relevant_memory_limit", 5)
	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_model", "")
	v.SetDefault("llm_temperature", 0.7)
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("store_path", "")
	v.SetDefault("usage_buffer_size", 256)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix("PAGESENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("pagesense")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
