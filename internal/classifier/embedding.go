package classifier

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/llm"
	"github.com/avvvet/chatbuddy/internal/models"
)

const embeddingSoftmaxScale = 10.0

// EmbeddingModel classifies by cosine similarity between the query embedding
// and the mean embedding of every intent's patterns.
type EmbeddingModel struct {
	embedder  llm.Embedder
	labels    []string
	centroids [][]float64
}

// EmbeddingTrainer trains EmbeddingModel instances with a shared embedder
type EmbeddingTrainer struct {
	Embedder llm.Embedder
}

func (t EmbeddingTrainer) Train(ctx context.Context, c *catalog.Catalog, pre Preprocessor) (PredictionModel, error) {
	if t.Embedder == nil {
		return nil, fmt.Errorf("embedding trainer has no embedder")
	}

	var (
		texts  []string
		labels []string
	)
	for _, ex := range c.TrainingSet() {
		tokens := pre.Preprocess(ex.Text)
		if len(tokens) == 0 {
			continue
		}
		texts = append(texts, strings.Join(tokens, " "))
		labels = append(labels, ex.Label)
	}
	if len(texts) == 0 {
		return nil, ErrNoTrainingData
	}

	vectors, err := t.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed training patterns: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d patterns", len(vectors), len(texts))
	}

	sums := make(map[string][]float64)
	for i, vec := range vectors {
		unit := normalize(vec)
		if unit == nil {
			continue
		}
		sum, ok := sums[labels[i]]
		if !ok {
			sum = make([]float64, len(unit))
			sums[labels[i]] = sum
		}
		if len(sum) != len(unit) {
			return nil, fmt.Errorf("embedding dimension changed from %d to %d", len(sum), len(unit))
		}
		for j, v := range unit {
			sum[j] += v
		}
	}
	if len(sums) == 0 {
		return nil, ErrNoTrainingData
	}

	m := &EmbeddingModel{embedder: t.Embedder}
	for label := range sums {
		m.labels = append(m.labels, label)
	}
	sort.Strings(m.labels)
	for _, label := range m.labels {
		m.centroids = append(m.centroids, normalize64(sums[label]))
	}
	return m, nil
}

func (m *EmbeddingModel) Name() string { return ModelEmbedding }

func (m *EmbeddingModel) Predict(ctx context.Context, tokens []string) (models.Classification, error) {
	vec, err := m.embedder.EmbedQuery(ctx, strings.Join(tokens, " "))
	if err != nil {
		return models.Classification{}, fmt.Errorf("failed to embed query: %w", err)
	}

	query := normalize(vec)
	if query == nil || len(query) != len(m.centroids[0]) {
		return models.Classification{Intent: m.labels[0], Confidence: 0}, nil
	}

	scores := make([]float64, len(m.labels))
	best := 0
	for k, centroid := range m.centroids {
		for j, v := range centroid {
			scores[k] += v * query[j]
		}
		if scores[k] > scores[best] {
			best = k
		}
	}

	return models.Classification{
		Intent:     m.labels[best],
		Confidence: softmax(scores, embeddingSoftmaxScale)[best],
	}, nil
}

func normalize(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return normalize64(out)
}

func normalize64(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
