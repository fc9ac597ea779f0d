// Package config loads service configuration from an optional YAML file and
// PANTRYCHEF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Generation GenerationConfig `mapstructure:"generation"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateBudget RateBudgetConfig `mapstructure:"rate_budget"`
	Search     SearchConfig     `mapstructure:"search"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        int           `mapstructure:"port"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	SearchRPS   float64       `mapstructure:"search_rps"`
	SearchBurst int           `mapstructure:"search_burst"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig selects the recipe store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// GenerationConfig configures the generative backend.
type GenerationConfig struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`
	Breaker  BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker around the generative backend.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// CacheConfig configures the generated recipe cache.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// RateBudgetConfig bounds generation calls per window.
type RateBudgetConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// SearchConfig tunes the search orchestrator.
type SearchConfig struct {
	MinLocalResults int  `mapstructure:"min_local_results"`
	MinMatchScore   int  `mapstructure:"min_match_score"`
	MaxResults      int  `mapstructure:"max_results"`
	MaxIngredients  int  `mapstructure:"max_ingredients"`
	PantryBias      bool `mapstructure:"pantry_bias"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// Generation providers.
const (
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
	ProviderNone   = "none"
)

// Load loads configuration from file and environment variables.
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
	}

	v.SetEnvPrefix("PANTRYCHEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("generation.api_key", "PANTRYCHEF_GENERATION_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:8081"})
	v.SetDefault("server.search_rps", 5.0)
	v.SetDefault("server.search_burst", 10)
	v.SetDefault("server.timeout", "60s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "pantrychef.db")

	v.SetDefault("generation.provider", ProviderGemini)
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.base_url", "http://localhost:1234/v1")
	v.SetDefault("generation.timeout", "45s")
	v.SetDefault("generation.retries", 1)
	v.SetDefault("generation.breaker.consecutive_failures", 5)
	v.SetDefault("generation.breaker.open_timeout", "60s")

	v.SetDefault("cache.ttl", "300s")
	v.SetDefault("cache.max_entries", 100)

	v.SetDefault("rate_budget.limit", 100)
	v.SetDefault("rate_budget.window", "1h")

	v.SetDefault("search.min_local_results", 3)
	v.SetDefault("search.min_match_score", 50)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.max_ingredients", 10)
	v.SetDefault("search.pantry_bias", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.development", false)
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.SearchRPS <= 0 || c.Server.SearchBurst <= 0 {
		return errors.New("server.search_rps and server.search_burst must be positive")
	}
	if len(c.Server.CORSOrigins) == 0 {
		return errors.New("server.cors_origins must list at least one origin")
	}
	for _, o := range c.Server.CORSOrigins {
		if strings.TrimSpace(o) == "" {
			return errors.New("server.cors_origins must not contain empty entries")
		}
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	switch c.Generation.Provider {
	case ProviderGemini:
		if c.Generation.APIKey == "" {
			return errors.New("generation.api_key is required for the gemini provider")
		}
	case ProviderLocal:
		if c.Generation.BaseURL == "" {
			return errors.New("generation.base_url is required for the local provider")
		}
	case ProviderNone:
	default:
		return fmt.Errorf("generation.provider %q is not supported", c.Generation.Provider)
	}
	if c.Generation.Timeout <= 0 {
		return errors.New("generation.timeout must be positive")
	}
	if c.Generation.Retries < 0 || c.Generation.Retries > 1 {
		return fmt.Errorf("generation.retries must be 0 or 1, got %d", c.Generation.Retries)
	}

	if c.Cache.TTL <= 0 || c.Cache.MaxEntries <= 0 {
		return errors.New("cache.ttl and cache.max_entries must be positive")
	}
	if c.RateBudget.Limit < 0 || c.RateBudget.Window <= 0 {
		return errors.New("rate_budget.limit must not be negative and rate_budget.window must be positive")
	}

	if c.Search.MinLocalResults < 0 {
		return errors.New("search.min_local_results must not be negative")
	}
	if c.Search.MinMatchScore < 0 || c.Search.MinMatchScore > 100 {
		return fmt.Errorf("search.min_match_score must be within [0,100], got %d", c.Search.MinMatchScore)
	}
	if c.Search.MaxResults <= 0 || c.Search.MaxIngredients <= 0 {
		return errors.New("search.max_results and search.max_ingredients must be positive")
	}
	return nil
}
