// Package llm builds the language-model clients the bot talks to.
package llm

import (
	"context"
)

// Embedder turns text into dense vectors. It matches langchaingo's
// embeddings.Embedder so any of its implementations can be used.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
