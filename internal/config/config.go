// Package config loads application configuration from defaults, a YAML file,
// and DRAMATIS_-prefixed environment variables, with fsnotify-driven hot
// reload. Numeric thresholds used by the pipeline all live here.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg
	return cm, nil
}

// initViper sets up viper with defaults and the config file.
func (cm *Manager) initViper(cfgFile string) error {
	// Defaults are registered per leaf key so environment overrides and
	// partial config files resolve against every known key.
	defaults := DefaultConfig()
	cm.v.SetDefault("server.host", defaults.Server.Host)
	cm.v.SetDefault("server.port", defaults.Server.Port)
	cm.v.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)
	cm.v.SetDefault("storage.postgres_dsn", defaults.Storage.PostgresDSN)
	cm.v.SetDefault("storage.settings_path", defaults.Storage.SettingsPath)
	cm.v.SetDefault("redis.addr", defaults.Redis.Addr)
	cm.v.SetDefault("redis.queue", defaults.Redis.Queue)
	cm.v.SetDefault("redis.events_channel", defaults.Redis.EventsChannel)
	cm.v.SetDefault("llm.api_key", defaults.LLM.APIKey)
	cm.v.SetDefault("llm.model", defaults.LLM.Model)
	cm.v.SetDefault("llm.rate_limit", defaults.LLM.RateLimit)
	cm.v.SetDefault("llm.max_attempts", defaults.LLM.MaxAttempts)
	cm.v.SetDefault("llm.retry_delay", defaults.LLM.RetryDelay)
	cm.v.SetDefault("llm.call_timeout", defaults.LLM.CallTimeout)
	cm.v.SetDefault("analysis.similarity_threshold", defaults.Analysis.SimilarityThreshold)
	cm.v.SetDefault("analysis.quality_cutoff", defaults.Analysis.QualityCutoff)
	cm.v.SetDefault("analysis.language_confidence", defaults.Analysis.LanguageConfidence)
	cm.v.SetDefault("analysis.expected_language", defaults.Analysis.ExpectedLanguage)
	cm.v.SetDefault("analysis.sample_windows", defaults.Analysis.SampleWindows)
	cm.v.SetDefault("analysis.window_words", defaults.Analysis.WindowWords)
	cm.v.SetDefault("analysis.honorifics", defaults.Analysis.Honorifics)
	cm.v.SetDefault("chunking.size", defaults.Chunking.Size)
	cm.v.SetDefault("chunking.overlap", defaults.Chunking.Overlap)
	cm.v.SetDefault("summary.max_chars", defaults.Summary.MaxChars)
	cm.v.SetDefault("shutdown.grace_period", defaults.Shutdown.GracePeriod)
	cm.v.SetDefault("shutdown.run_retention", defaults.Shutdown.RunRetention)

	// Environment variables with DRAMATIS_ prefix, dots as underscores:
	// DRAMATIS_ANALYSIS_SIMILARITY_THRESHOLD overrides
	// analysis.similarity_threshold.
	cm.v.SetEnvPrefix("DRAMATIS")
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.dramatis")
	}

	// The config file is optional.
	if err := cm.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// APIKey returns the LLM API key with environment references resolved.
func (c *Config) APIKey() string {
	return ResolveEnvVars(c.LLM.APIKey)
}
