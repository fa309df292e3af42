// Package config loads service settings from defaults, an optional YAML file
// and CHATBUDDY_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides: CHATBUDDY_API_PORT -> api_port
const EnvPrefix = "CHATBUDDY_"

type Config struct {
	// Service configuration
	ServiceName    string `koanf:"service_name"`
	LogLevel       string `koanf:"log_level"`
	LogDevelopment bool   `koanf:"log_development"`

	// Intents and model
	IntentsDir     string `koanf:"intents_dir"`
	WatchIntents   bool   `koanf:"watch_intents"`
	ModelType      string `koanf:"model_type"`
	ModelPath      string `koanf:"model_path"`
	OllamaURL      string `koanf:"ollama_url"`
	EmbeddingModel string `koanf:"embedding_model"`

	// Preprocessing
	PreprocessLowercase bool     `koanf:"preprocess_lowercase"`
	PreprocessStopwords bool     `koanf:"preprocess_stopwords"`
	PreprocessLemmatize bool     `koanf:"preprocess_lemmatize"`
	CustomStopwords     []string `koanf:"custom_stopwords"`

	// Conversation
	ConfidenceThreshold  float64       `koanf:"confidence_threshold"`
	ContextWindowSize    int           `koanf:"context_window_size"`
	SessionTTL           time.Duration `koanf:"session_ttl"`
	SessionSweepInterval time.Duration `koanf:"session_sweep_interval"`
	GreetingIntents      []string      `koanf:"greeting_intents"`

	// Search fallback
	GoogleFallbackEnabled bool          `koanf:"google_fallback_enabled"`
	SearchMaxRetries      int           `koanf:"search_max_retries"`
	SearchBackoff         time.Duration `koanf:"search_backoff"`
	SearchCacheTTL        time.Duration `koanf:"search_cache_ttl"`
	SearchMinInterval     time.Duration `koanf:"search_min_interval"`
	SearchMaxResults      int           `koanf:"search_max_results"`

	// Redis configuration, empty disables Redis
	RedisURL string `koanf:"redis_url"`

	// NATS configuration, empty disables NATS
	NatsURL            string        `koanf:"nats_url"`
	NatsRequestSubject string        `koanf:"nats_request_subject"`
	NatsRetrainSubject string        `koanf:"nats_retrain_subject"`
	NatsEventsSubject  string        `koanf:"nats_events_subject"`
	NatsTimeout        time.Duration `koanf:"nats_timeout"`

	// HTTP API
	APIHost          string        `koanf:"api_host"`
	APIPort          int           `koanf:"api_port"`
	RequestTimeout   time.Duration `koanf:"request_timeout"`
	APIKeyTTL        time.Duration `koanf:"api_key_ttl"`
	APIRatePerMinute int           `koanf:"api_rate_per_minute"`

	// Storage
	DBPath string `koanf:"db_path"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		ServiceName: "chatbuddy",
		LogLevel:    "info",

		IntentsDir:     "data/intents",
		ModelType:      "svm",
		ModelPath:      "data/model/svm.json",
		OllamaURL:      "http://localhost:11434",
		EmbeddingModel: "nomic-embed-text",

		PreprocessLowercase: true,
		PreprocessStopwords: true,
		PreprocessLemmatize: true,
		CustomStopwords:     []string{"a", "an", "the", "is", "are", "i", "you", "am"},

		ConfidenceThreshold:  0.5,
		ContextWindowSize:    3,
		SessionTTL:           30 * time.Minute,
		SessionSweepInterval: time.Minute,
		GreetingIntents:      []string{"greeting"},

		GoogleFallbackEnabled: true,
		SearchMaxRetries:      2,
		SearchBackoff:         time.Second,
		SearchCacheTTL:        time.Hour,
		SearchMinInterval:     time.Second,
		SearchMaxResults:      3,

		NatsRequestSubject: "chat.process",
		NatsRetrainSubject: "chat.retrain",
		NatsEventsSubject:  "chat.events",
		NatsTimeout:        30 * time.Second,

		APIHost:          "0.0.0.0",
		APIPort:          8080,
		RequestTimeout:   30 * time.Second,
		APIKeyTTL:        30 * 24 * time.Hour,
		APIRatePerMinute: 60,

		DBPath: "data/chatbuddy.db",
	}
}

// Load reads path when it exists, then applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to access config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

var validModelTypes = map[string]bool{
	"svm":  true,
	"bert": true,
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if !validModelTypes[c.ModelType] {
		return fmt.Errorf("invalid model_type %q: must be svm or bert", c.ModelType)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1")
	}
	if c.ContextWindowSize < 1 {
		return fmt.Errorf("context_window_size must be at least 1")
	}
	if c.IntentsDir == "" {
		return fmt.Errorf("intents_dir is required")
	}
	if c.SearchMaxRetries < 0 {
		return fmt.Errorf("search_max_retries must be non-negative")
	}
	if c.SearchBackoff < 0 || c.SearchMinInterval < 0 || c.SearchCacheTTL < 0 {
		return fmt.Errorf("search durations must be non-negative")
	}
	if c.SearchMaxResults < 1 {
		return fmt.Errorf("search_max_results must be at least 1")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session_ttl must be non-negative")
	}
	if c.SessionTTL > 0 && c.SessionSweepInterval <= 0 {
		return fmt.Errorf("session_sweep_interval must be positive when session_ttl is set")
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api_port %d", c.APIPort)
	}
	if c.APIRatePerMinute < 0 {
		return fmt.Errorf("api_rate_per_minute must be non-negative")
	}
	if c.ModelType == "bert" && c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required for model_type bert")
	}
	return nil
}

// APIAddr is the listen address of the HTTP API
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}
