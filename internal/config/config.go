// Package config loads and validates the tool configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the SNYKTAG_ prefix (e.g.
// SNYKTAG_API_VERSION overrides api.version). The API token is the exception:
// it is read from SNYK_API_TOKEN without the prefix, the variable Snyk's own
// tooling already uses, so one exported credential serves both.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/snyk-tools/snyk-tag-updater/pkg/client"
	"github.com/snyk-tools/snyk-tag-updater/pkg/snyk"
	"github.com/snyk-tools/snyk-tag-updater/pkg/tags"
)

// TokenEnvVar is the environment variable holding the Snyk API token.
const TokenEnvVar = "SNYK_API_TOKEN"

// ErrMissingToken means no API token was found in the environment or config.
var ErrMissingToken = errors.New("no API token: set " + TokenEnvVar)

// Config holds all tool configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Tag     TagConfig     `mapstructure:"tag"`
	Logging LoggingConfig `mapstructure:"logging"`
	Update  UpdateConfig  `mapstructure:"update"`
}

// APIConfig holds Snyk REST API connection settings.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Version string        `mapstructure:"version"`
	Timeout time.Duration `mapstructure:"timeout"`

	// Token is resolved from SNYK_API_TOKEN; a config file may not carry it.
	Token string `mapstructure:"-"`
}

// RetryConfig bounds the rate-limit retry loop.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	DefaultBackoff time.Duration `mapstructure:"default_backoff"`
}

// FilterConfig holds the default project filter.
type FilterConfig struct {
	TargetRuntime string `mapstructure:"target_runtime"`
	Origins       string `mapstructure:"origins"`
	Limit         int    `mapstructure:"limit"`
}

// TagConfig holds the tag applied when the operator accepts the defaults.
type TagConfig struct {
	Key   string `mapstructure:"key"`
	Value string `mapstructure:"value"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UpdateConfig holds tag-update pacing.
type UpdateConfig struct {
	// Pause is the courtesy delay between consecutive project updates.
	Pause time.Duration `mapstructure:"pause"`
}

// Load reads configuration from an optional YAML file and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("snyktag")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/snyktag")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// no file is fine, defaults and environment carry the day
	}

	v.SetEnvPrefix("SNYKTAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.API.Token = os.Getenv(TokenEnvVar)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv alone does not populate nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"api.base_url",
		"api.version",
		"api.timeout",

		"retry.max_retries",
		"retry.default_backoff",

		"filter.target_runtime",
		"filter.origins",
		"filter.limit",

		"tag.key",
		"tag.value",

		"logging.level",
		"logging.format",

		"update.pause",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env var %q: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", client.DefaultBaseURL)
	v.SetDefault("api.version", client.DefaultVersion)
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.default_backoff", "1s")

	v.SetDefault("filter.target_runtime", snyk.DefaultTargetRuntime)
	v.SetDefault("filter.origins", snyk.DefaultOrigins)
	v.SetDefault("filter.limit", snyk.DefaultLimit)

	v.SetDefault("tag.key", tags.DefaultKey)
	v.SetDefault("tag.value", tags.DefaultValue)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("update.pause", "1s")
}

// Validate validates the configuration. The token is checked here so a
// missing credential fails before any request goes out.
func (c *Config) Validate() error {
	if c.API.Token == "" {
		return ErrMissingToken
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Version == "" {
		return fmt.Errorf("api.version is required")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative: %d", c.Retry.MaxRetries)
	}
	if c.Filter.Limit < 1 {
		return fmt.Errorf("filter.limit must be positive: %d", c.Filter.Limit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be console or json)", c.Logging.Format)
	}
	return nil
}

// ClientConfig converts the loaded configuration into the API client's form.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.API.Token)
	cfg.BaseURL = c.API.BaseURL
	cfg.Version = c.API.Version
	cfg.Timeout = c.API.Timeout
	cfg.RetryPolicy.MaxRetries = c.Retry.MaxRetries
	cfg.RetryPolicy.DefaultBackoff = c.Retry.DefaultBackoff
	return cfg
}

// ProjectFilter converts the loaded filter settings into query form.
func (c *Config) ProjectFilter() *snyk.ProjectFilter {
	return &snyk.ProjectFilter{
		TargetRuntime: c.Filter.TargetRuntime,
		Origins:       c.Filter.Origins,
		Limit:         c.Filter.Limit,
	}
}
