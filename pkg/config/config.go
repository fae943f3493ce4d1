// Package config loads LeadScout's runtime configuration through viper's
// cascade (CLI flags > environment variables > config file > defaults),
// with provider credentials additionally resolvable from the OS keyring
// when absent from all of those layers.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

// ServiceName is the keyring service namespace credentials are stored under.
const ServiceName = "leadscout"

// DefaultConfigFileName is searched for (as .yaml) in the data directory,
// the current directory, and /etc/leadscout/.
const DefaultConfigFileName = "leadscout"

// Config holds every recognized option, each a direct mapstructure-tagged
// field rather than a nested namespace, matching the flat key set listed
// in the configuration reference this module implements.
type Config struct {
	// DataDir is not read from the config file; it is resolved up front by
	// GetLeadScoutDataDir and used to locate the config file itself.
	DataDir string `mapstructure:"-"`

	BatchSize          int64 `mapstructure:"batch_size"`
	MaxConcurrentLeads int   `mapstructure:"max_concurrent_leads"`

	LLMEnabled         bool           `mapstructure:"llm_enabled"`
	LLMProviders       []string       `mapstructure:"llm_providers"`
	LLMPerProviderRPM  map[string]int `mapstructure:"llm_per_provider_rpm"`
	LLMRequestTimeoutS int            `mapstructure:"llm_request_timeout_s"`

	RetryMaxAttempts int `mapstructure:"retry_max_attempts"`

	PatternDeactivationThreshold   float64 `mapstructure:"pattern_deactivation_threshold"`
	MinApplicationsForDeactivation int     `mapstructure:"min_applications_for_deactivation"`

	LockTTLSeconds       int  `mapstructure:"lock_ttl_s"`
	ForceClearStaleLocks bool `mapstructure:"force_clear_stale_locks"`

	AnthropicAPIKey        string `mapstructure:"anthropic_api_key"` // From CLI/env/keyring only
	BedrockRegion          string `mapstructure:"bedrock_region"`
	BedrockAccessKeyID     string `mapstructure:"bedrock_access_key_id"`     // From CLI/env/keyring only
	BedrockSecretAccessKey string `mapstructure:"bedrock_secret_access_key"` // From CLI/env/keyring only
	BedrockSessionToken    string `mapstructure:"bedrock_session_token"`     // From CLI/env/keyring only
}

// JobsDBPath is the Job Store's SQLite file, beneath DataDir.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.DataDir, "jobs.db")
}

// LearningDBPath is the Learning Store's SQLite file, beneath DataDir. It
// is a separate file from JobsDBPath because the two stores have
// different concurrency requirements and different lifetimes: the
// learning database persists indefinitely across logical jobs, while the
// job database is eventually archived.
func (c *Config) LearningDBPath() string {
	return filepath.Join(c.DataDir, "learning.db")
}

// LoadConfig builds a Config from defaults, an optional config file at
// cfgFile (or the standard search path when cfgFile is empty), the
// LEADSCOUT_-prefixed environment, and finally the OS keyring for any
// provider credential still unset.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(GetLeadScoutDataDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/leadscout/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.SetEnvPrefix("LEADSCOUT")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	cfg.DataDir = GetLeadScoutDataDir()

	_ = loadSecretsFromKeyring(&cfg)

	return &cfg, nil
}

// setDefaults installs the documented defaults for every recognized key
// before the config file, environment, and flags are layered on top.
func setDefaults() {
	viper.SetDefault("batch_size", 100)
	viper.SetDefault("max_concurrent_leads", 10)

	viper.SetDefault("llm_enabled", true)
	viper.SetDefault("llm_providers", []string{"anthropic", "bedrock"})
	viper.SetDefault("llm_per_provider_rpm", map[string]int{"anthropic": 50, "bedrock": 50})
	viper.SetDefault("llm_request_timeout_s", 30)

	viper.SetDefault("retry_max_attempts", 6)

	viper.SetDefault("pattern_deactivation_threshold", 0.5)
	viper.SetDefault("min_applications_for_deactivation", 20)

	viper.SetDefault("lock_ttl_s", 900)
	viper.SetDefault("force_clear_stale_locks", false)

	viper.SetDefault("bedrock_region", "us-west-2")
}

// SecretMapping describes how to load one credential from the keyring
// into a Config, and how to tell whether it is already set from a higher
// layer (CLI, env, config file) so the keyring lookup can be skipped.
type SecretMapping struct {
	KeyringKey string
	Setter     func(*Config, string)
	IsSet      func(*Config) bool
}

// GetSecretMappings lists every credential the keyring can supply.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "anthropic_api_key",
			Setter:     func(c *Config, val string) { c.AnthropicAPIKey = val },
			IsSet:      func(c *Config) bool { return c.AnthropicAPIKey != "" },
		},
		{
			KeyringKey: "bedrock_access_key_id",
			Setter:     func(c *Config, val string) { c.BedrockAccessKeyID = val },
			IsSet:      func(c *Config) bool { return c.BedrockAccessKeyID != "" },
		},
		{
			KeyringKey: "bedrock_secret_access_key",
			Setter:     func(c *Config, val string) { c.BedrockSecretAccessKey = val },
			IsSet:      func(c *Config) bool { return c.BedrockSecretAccessKey != "" },
		},
		{
			KeyringKey: "bedrock_session_token",
			Setter:     func(c *Config, val string) { c.BedrockSessionToken = val },
			IsSet:      func(c *Config) bool { return c.BedrockSessionToken != "" },
		},
	}
}

// loadSecretsFromKeyring fills in any credential GetSecretMappings reports
// unset. Failure to reach the keyring is non-fatal: the caller may still
// supply credentials via CLI flags or environment variables.
func loadSecretsFromKeyring(cfg *Config) error {
	for _, mapping := range GetSecretMappings() {
		if mapping.IsSet(cfg) {
			continue
		}
		value, err := GetSecretFromKeyring(mapping.KeyringKey)
		if err == nil && value != "" {
			mapping.Setter(cfg, value)
		}
	}
	return nil
}

// GetSecretFromKeyring retrieves a single credential from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SaveSecretToKeyring stores a credential in the system keyring, for a CLI
// command that lets an operator register it once outside of any config file.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a credential from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}
