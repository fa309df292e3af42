package classifier

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/avvvet/chatbuddy/internal/models"
	"go.uber.org/zap"
)

// Facade is the single prediction entry point. The active model is held in an
// atomic pointer, so Swap never blocks Predict and a caller keeps using the
// model it loaded even if a swap happens mid-call.
type Facade struct {
	active atomic.Pointer[active]
	logger *zap.Logger
}

type active struct {
	model PredictionModel
}

func NewFacade(logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{logger: logger}
}

// Predict returns the raw label and confidence of the active model. Empty
// tokens short-circuit to the default intent without touching the model.
func (f *Facade) Predict(ctx context.Context, tokens []string) (result models.Classification, err error) {
	if len(tokens) == 0 {
		return models.Classification{Intent: models.IntentDefault, Confidence: 1.0}, nil
	}

	current := f.active.Load()
	if current == nil {
		return models.Classification{}, ErrModelNotReady
	}

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("❌ prediction model panicked",
				zap.String("model", current.model.Name()), zap.Any("panic", r))
			result = models.Classification{}
			err = fmt.Errorf("%w: %v", ErrClassification, r)
		}
	}()

	result, err = current.model.Predict(ctx, tokens)
	if err != nil {
		return models.Classification{}, fmt.Errorf("%w: %w", ErrClassification, err)
	}

	result.Confidence = clamp(result.Confidence)
	return result, nil
}

// Swap replaces the active model
func (f *Facade) Swap(model PredictionModel) {
	f.active.Store(&active{model: model})
	f.logger.Info("🔁 active model swapped", zap.String("model", model.Name()))
}

// Active returns the current model or nil
func (f *Facade) Active() PredictionModel {
	if current := f.active.Load(); current != nil {
		return current.model
	}
	return nil
}

// Ready reports whether a model has been installed
func (f *Facade) Ready() bool {
	return f.active.Load() != nil
}

func clamp(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
