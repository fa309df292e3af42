// Package classifier maps preprocessed tokens to an intent label and a
// confidence through a model that can be replaced while requests are served.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/models"
)

// Model type keys accepted by the registry
const (
	ModelSVM       = "svm"
	ModelEmbedding = "bert"
)

var (
	ErrModelNotReady     = errors.New("model not ready")
	ErrClassification    = errors.New("classification failed")
	ErrUnknownModelType  = errors.New("unknown model type")
	ErrNoTrainingData    = errors.New("no training data")
	ErrCoordinatorClosed = errors.New("retrain coordinator closed")
	ErrSuperseded        = errors.New("superseded by a newer retrain")
)

// PredictionModel is a trained predictor. Implementations are immutable after
// training so a swapped-out model stays valid for in-flight calls.
type PredictionModel interface {
	Name() string
	Predict(ctx context.Context, tokens []string) (models.Classification, error)
}

// Preprocessor turns raw text into tokens
type Preprocessor interface {
	Preprocess(text string) []string
}

// Trainer builds a new model from a catalog
type Trainer interface {
	Train(ctx context.Context, c *catalog.Catalog, pre Preprocessor) (PredictionModel, error)
}

// TrainerFunc adapts a function to Trainer
type TrainerFunc func(ctx context.Context, c *catalog.Catalog, pre Preprocessor) (PredictionModel, error)

func (f TrainerFunc) Train(ctx context.Context, c *catalog.Catalog, pre Preprocessor) (PredictionModel, error) {
	return f(ctx, c, pre)
}

// Registry maps model type keys to trainers
type Registry struct {
	mu       sync.RWMutex
	trainers map[string]Trainer
}

func NewRegistry() *Registry {
	return &Registry{trainers: make(map[string]Trainer)}
}

// Register adds or replaces the trainer for name
func (r *Registry) Register(name string, t Trainer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trainers[name] = t
}

// Get returns the trainer registered under name
func (r *Registry) Get(name string) (Trainer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trainers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelType, name)
	}
	return t, nil
}

// Names lists registered model types, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.trainers))
	for name := range r.trainers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
