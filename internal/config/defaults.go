package config

import "time"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Chunking ChunkingConfig `mapstructure:"chunking"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// StorageConfig selects the relational backend. Set exactly one of
// SQLitePath or PostgresDSN.
type StorageConfig struct {
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	// SettingsPath is the YAML file backing operator settings.
	SettingsPath string `mapstructure:"settings_path"`
}

// RedisConfig holds queue and notification channel settings.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Queue         string `mapstructure:"queue"`
	EventsChannel string `mapstructure:"events_channel"`
}

// LLMConfig holds provider settings. APIKey supports ${ENV_VAR} references.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	RateLimit   int           `mapstructure:"rate_limit"`
	MaxAttempts uint          `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// AnalysisConfig holds the pipeline thresholds. These are configuration, not
// constants: the defaults come from the documentation, not from anything
// invariant.
type AnalysisConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	QualityCutoff       float64 `mapstructure:"quality_cutoff"`
	LanguageConfidence  float64 `mapstructure:"language_confidence"`
	// ExpectedLanguage is an ISO 639-1 code; empty accepts any language.
	ExpectedLanguage string `mapstructure:"expected_language"`
	SampleWindows    int    `mapstructure:"sample_windows"`
	WindowWords      int    `mapstructure:"window_words"`
	// Honorifics extends the built-in prefix list stripped during name
	// normalization.
	Honorifics []string `mapstructure:"honorifics"`
}

// ChunkingConfig holds the chunker budget.
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// SummaryConfig bounds the running summary.
type SummaryConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

// ShutdownConfig governs the graceful-then-forced shutdown discipline.
type ShutdownConfig struct {
	// GracePeriod is how long shutdown waits for live runs before
	// force-abandoning them.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// RunRetention is how long terminal runs stay visible to status
	// queries.
	RunRetention time.Duration `mapstructure:"run_retention"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Storage: StorageConfig{
			SQLitePath:   "dramatis.db",
			SettingsPath: "dramatis.settings.yaml",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			Queue:         "dramatis.tasks",
			EventsChannel: "dramatis.events",
		},
		LLM: LLMConfig{
			APIKey:      "${OPENAI_API_KEY}",
			Model:       "gpt-4o-mini",
			RateLimit:   150,
			MaxAttempts: 3,
			RetryDelay:  500 * time.Millisecond,
			CallTimeout: 120 * time.Second,
		},
		Analysis: AnalysisConfig{
			SimilarityThreshold: 0.8,
			QualityCutoff:       0.5,
			LanguageConfidence:  0.8,
			ExpectedLanguage:    "ar",
			SampleWindows:       5,
			WindowWords:         300,
		},
		Chunking: ChunkingConfig{
			Size:    8000,
			Overlap: 200,
		},
		Summary: SummaryConfig{
			MaxChars: 6000,
		},
		Shutdown: ShutdownConfig{
			GracePeriod:  30 * time.Second,
			RunRetention: time.Minute,
		},
	}
}
