// Package config loads runtime configuration from a YAML file with
// DEEPRESEARCH_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research runtime.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Search    SearchConfig    `mapstructure:"search"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Prompts   PromptsConfig   `mapstructure:"prompts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// ModelConfig selects and configures the language model provider.
type ModelConfig struct {
	Provider    string        `mapstructure:"provider"` // openai or anthropic
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Name        string        `mapstructure:"name"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SearchConfig selects and configures the web search provider.
type SearchConfig struct {
	Provider   string        `mapstructure:"provider"` // tavily or serper
	APIKey     string        `mapstructure:"api_key"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ExecutionConfig bounds each research run.
type ExecutionConfig struct {
	MaxSteps          int `mapstructure:"max_steps"`
	MaxSearches       int `mapstructure:"max_searches"`
	MaxClarifications int `mapstructure:"max_clarifications"`
	SchemaRetries     int `mapstructure:"schema_retries"`
	MinReportSources  int `mapstructure:"min_report_sources"`
}

// ReportsConfig controls report persistence.
type ReportsConfig struct {
	Dir string `mapstructure:"dir"`
}

// PromptsConfig points at optional prompt overrides.
type PromptsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8010")
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.name", "gpt-4o-mini")
	v.SetDefault("model.temperature", 0.4)
	v.SetDefault("model.max_tokens", 8000)
	v.SetDefault("model.timeout", 2*time.Minute)
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("execution.max_steps", 6)
	v.SetDefault("execution.max_searches", 4)
	v.SetDefault("execution.max_clarifications", 3)
	v.SetDefault("execution.schema_retries", 3)
	v.SetDefault("execution.min_report_sources", 1)
	v.SetDefault("reports.dir", "reports")
	v.SetDefault("prompts.dir", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from the given file path (optional) and the
// environment. Environment variables use the DEEPRESEARCH_ prefix with
// underscores for nesting, e.g. DEEPRESEARCH_MODEL_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported model provider %q", c.Model.Provider)
	}
	switch c.Search.Provider {
	case "tavily", "serper":
	default:
		return fmt.Errorf("unsupported search provider %q", c.Search.Provider)
	}
	return nil
}
