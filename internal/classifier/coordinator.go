package classifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"go.uber.org/zap"
)

// Retrain event types
const (
	EventRetrainSucceeded = "retrain_succeeded"
	EventRetrainFailed    = "retrain_failed"
)

// Event describes the outcome of one retrain
type Event struct {
	Type       string `json:"type"`
	Generation uint64 `json:"generation"`
	Model      string `json:"model"`
	Error      string `json:"error,omitempty"`
}

// Notifier receives retrain outcomes
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, event Event)

func (f NotifierFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// Coordinator trains new models off the request path and installs them in
// the facade. Each retrain gets a generation number; a retrain that finishes
// after a newer one has been installed is discarded.
type Coordinator struct {
	facade    *Facade
	trainer   Trainer
	modelType string
	catalogs  *catalog.Holder
	pre       Preprocessor
	notifier  Notifier
	afterSwap func(ctx context.Context, m PredictionModel) error
	logger    *zap.Logger

	generation atomic.Uint64

	mu      sync.Mutex
	applied uint64
	closed  bool

	// saveMu orders afterSwap calls so the last hook to run sees the
	// newest model
	saveMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithNotifier reports every retrain outcome to n
func WithNotifier(n Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

// WithAfterSwap runs fn after a model has been installed. Its error is
// logged only; the new model stays active.
func WithAfterSwap(fn func(ctx context.Context, m PredictionModel) error) CoordinatorOption {
	return func(c *Coordinator) { c.afterSwap = fn }
}

func NewCoordinator(facade *Facade, trainer Trainer, modelType string, catalogs *catalog.Holder,
	pre Preprocessor, logger *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		facade:    facade,
		trainer:   trainer,
		modelType: modelType,
		catalogs:  catalogs,
		pre:       pre,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retrain trains a model from the current catalog. When blocking it returns
// once the model is installed or training failed; otherwise training runs in
// the background and the error is only reported through the notifier.
func (c *Coordinator) Retrain(ctx context.Context, blocking bool) (uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrCoordinatorClosed
	}
	gen := c.generation.Add(1)
	if !blocking {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	if blocking {
		return gen, c.run(ctx, gen)
	}

	go func() {
		defer c.wg.Done()
		_ = c.run(c.ctx, gen)
	}()
	c.logger.Info("🏋️ background retrain started", zap.Uint64("generation", gen))
	return gen, nil
}

// Install makes an already trained model active, e.g. one loaded from disk
func (c *Coordinator) Install(model PredictionModel) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.generation.Add(1)
	c.facade.Swap(model)
	c.applied = gen
	return gen
}

// Generation returns the generation of the installed model, 0 if none
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Wait blocks until background retrains have finished
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels background retrains and waits for them
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Coordinator) run(ctx context.Context, gen uint64) error {
	log := c.logger.With(zap.Uint64("generation", gen), zap.String("model", c.modelType))

	model, err := c.trainer.Train(ctx, c.catalogs.Get(), c.pre)
	if err == nil && model == nil {
		err = errors.New("trainer returned no model")
	}
	if err != nil {
		log.Error("❌ retrain failed, keeping previous model", zap.Error(err))
		c.notify(Event{Type: EventRetrainFailed, Generation: gen, Model: c.modelType, Error: err.Error()})
		return err
	}

	c.mu.Lock()
	if gen < c.applied {
		applied := c.applied
		c.mu.Unlock()
		log.Warn("⚠️ discarding stale model", zap.Uint64("installed_generation", applied))
		c.notify(Event{Type: EventRetrainFailed, Generation: gen, Model: c.modelType, Error: ErrSuperseded.Error()})
		return ErrSuperseded
	}
	c.facade.Swap(model)
	c.applied = gen
	c.mu.Unlock()

	c.runAfterSwap(ctx, gen, model, log)

	log.Info("✅ retrain complete")
	c.notify(Event{Type: EventRetrainSucceeded, Generation: gen, Model: c.modelType})
	return nil
}

// runAfterSwap skips the hook once a newer model has been installed
func (c *Coordinator) runAfterSwap(ctx context.Context, gen uint64, model PredictionModel, log *zap.Logger) {
	if c.afterSwap == nil {
		return
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	current := c.applied == gen
	c.mu.Unlock()
	if !current {
		log.Debug("skipping post-retrain hook for replaced model")
		return
	}

	if err := c.afterSwap(ctx, model); err != nil {
		log.Warn("⚠️ post-retrain hook failed", zap.Error(err))
	}
}

func (c *Coordinator) notify(event Event) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(context.WithoutCancel(c.ctx), event)
}
