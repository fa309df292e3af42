package llm

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaConfig configures the embedding client
type OllamaConfig struct {
	ServerURL string
	Model     string
	Timeout   time.Duration
	// BatchSize caps texts per embedding request, 0 uses the library default
	BatchSize int
}

// NewOllamaEmbedder connects langchaingo's embedder to an Ollama server
func NewOllamaEmbedder(cfg OllamaConfig) (Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	opts := []ollama.Option{
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	var embedOpts []embeddings.Option
	if cfg.BatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}

	embedder, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
