package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.APIAddr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatbuddy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
confidence_threshold: 0.7
context_window_size: 5
search_backoff: 250ms
greeting_intents: [greeting, hello]
api_port: 9090
`), 0o644))

	t.Setenv("CHATBUDDY_API_PORT", "9191")
	t.Setenv("CHATBUDDY_GOOGLE_FALLBACK_ENABLED", "false")
	t.Setenv("CHATBUDDY_SESSION_TTL", "5m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 5, cfg.ContextWindowSize)
	assert.Equal(t, 250*time.Millisecond, cfg.SearchBackoff)
	assert.Equal(t, []string{"greeting", "hello"}, cfg.GreetingIntents)
	assert.Equal(t, 9191, cfg.APIPort)
	assert.False(t, cfg.GoogleFallbackEnabled)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	// untouched keys keep their defaults
	assert.Equal(t, "svm", cfg.ModelType)
}

func TestLoad_PreprocessingSwitches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatbuddy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
preprocess_stopwords: false
custom_stopwords: [please, kindly]
`), 0o644))

	t.Setenv("CHATBUDDY_PREPROCESS_LEMMATIZE", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.PreprocessLowercase)
	assert.False(t, cfg.PreprocessStopwords)
	assert.False(t, cfg.PreprocessLemmatize)
	assert.Equal(t, []string{"please", "kindly"}, cfg.CustomStopwords)
}

func TestLoad_CustomStopwordsFromEnv(t *testing.T) {
	t.Setenv("CHATBUDDY_CUSTOM_STOPWORDS", "um,uh")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"um", "uh"}, cfg.CustomStopwords)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_port: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"model type", func(c *Config) { c.ModelType = "lstm" }},
		{"threshold", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
		{"window", func(c *Config) { c.ContextWindowSize = 0 }},
		{"intents dir", func(c *Config) { c.IntentsDir = "" }},
		{"retries", func(c *Config) { c.SearchMaxRetries = -1 }},
		{"max results", func(c *Config) { c.SearchMaxResults = 0 }},
		{"sweep", func(c *Config) { c.SessionSweepInterval = 0 }},
		{"port", func(c *Config) { c.APIPort = 70000 }},
		{"embedding model", func(c *Config) { c.ModelType = "bert"; c.EmbeddingModel = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
