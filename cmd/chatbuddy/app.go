package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/avvvet/chatbuddy/internal/apikey"
	"github.com/avvvet/chatbuddy/internal/audit"
	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/classifier"
	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/db"
	"github.com/avvvet/chatbuddy/internal/handlers"
	"github.com/avvvet/chatbuddy/internal/llm"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/nlp"
	"github.com/avvvet/chatbuddy/internal/response"
	"github.com/avvvet/chatbuddy/internal/search"
	"github.com/avvvet/chatbuddy/internal/server"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds every wired component of one chatbuddy process
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	catalogs    *catalog.Holder
	pre         *nlp.Preprocessor
	facade      *classifier.Facade
	coordinator *classifier.Coordinator
	events      *eventFanout

	db       *db.DB
	audit    *audit.Store
	keys     *apikey.Manager
	sessions *memory.Manager
	history  memory.Store
	chat     *handlers.ChatHandler
	health   map[string]server.HealthCheck

	closers []func() error
}

// newApp wires the engine from cfg. Nothing is started; call loadModel to
// get a classifier in place.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		events: &eventFanout{logger: logger},
		health: make(map[string]server.HealthCheck),
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg, logger := a.cfg, a.logger

	logger.Info("📚 loading intents", zap.String("path", cfg.IntentsDir))
	c, err := catalog.Load(cfg.IntentsDir)
	if err != nil {
		return fmt.Errorf("failed to load intents: %w", err)
	}
	a.catalogs = catalog.NewHolder(c)
	logger.Info("✅ intents loaded", zap.Strings("tags", c.Tags()))

	a.pre = nlp.NewPreprocessor(preprocessOptions(cfg))

	registry := classifier.NewRegistry()
	registry.Register(classifier.ModelSVM, classifier.SVMTrainer{})
	if cfg.ModelType == classifier.ModelEmbedding {
		embedder, err := llm.NewOllamaEmbedder(llm.OllamaConfig{
			ServerURL: cfg.OllamaURL,
			Model:     cfg.EmbeddingModel,
			Timeout:   cfg.RequestTimeout,
		})
		if err != nil {
			return err
		}
		registry.Register(classifier.ModelEmbedding, classifier.EmbeddingTrainer{Embedder: embedder})
		logger.Info("🤖 embedding model configured",
			zap.String("ollama_url", cfg.OllamaURL),
			zap.String("model", cfg.EmbeddingModel))
	}
	trainer, err := registry.Get(cfg.ModelType)
	if err != nil {
		return err
	}

	a.facade = classifier.NewFacade(logger)
	a.coordinator = classifier.NewCoordinator(a.facade, trainer, cfg.ModelType, a.catalogs, a.pre, logger,
		classifier.WithNotifier(a.events),
		classifier.WithAfterSwap(a.saveModel))
	a.closers = append(a.closers, a.coordinator.Close)

	// Redis is shared by saved histories and the search cache
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		logger.Info("🔌 connecting to Redis...", zap.String("url", cfg.RedisURL))
		store, err := memory.NewRedisStore(cfg.RedisURL, 0)
		if err != nil {
			return err
		}
		a.history = store
		a.closers = append(a.closers, store.Close)
		redisClient = store.Client()
		a.health["redis"] = store.Ping
		logger.Info("✅ Redis connected")
	} else {
		a.history = memory.NewMemoryStore()
		logger.Info("💾 using in-memory history store")
	}

	a.db, err = db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.db.Close)
	logger.Info("🗄️ database opened", zap.String("path", a.db.Path()))
	a.health["database"] = a.db.PingContext

	a.audit = audit.NewStore(a.db)
	a.keys = apikey.NewManager(a.db,
		apikey.WithTTL(cfg.APIKeyTTL),
		apikey.WithRatePerMinute(cfg.APIRatePerMinute))

	var searcher response.Searcher
	if cfg.GoogleFallbackEnabled {
		backend, err := search.NewDuckDuckGo(cfg.SearchMaxResults, "")
		if err != nil {
			return err
		}
		var cache search.Cache = search.NewMemoryCache()
		if redisClient != nil {
			cache = search.NewRedisCache(redisClient)
		}
		searcher = search.NewClient(backend, cache, search.NewRateLimiter(cfg.SearchMinInterval), search.Config{
			MaxRetries: cfg.SearchMaxRetries,
			Backoff:    cfg.SearchBackoff,
			CacheTTL:   cfg.SearchCacheTTL,
			Timeout:    cfg.RequestTimeout,
		}, logger)
		logger.Info("🔎 search fallback enabled", zap.Int("max_retries", cfg.SearchMaxRetries))
	}

	resolver := response.NewResolver(a.catalogs, searcher, a.audit, response.Config{
		FallbackEnabled: cfg.GoogleFallbackEnabled,
		GreetingIntents: cfg.GreetingIntents,
	}, logger)

	a.sessions = memory.NewManager(cfg.ContextWindowSize, cfg.SessionTTL, logger)
	a.sessions.OnEvict(a.releaseLimiter)
	a.chat = handlers.NewChatHandler(a.sessions, a.pre, a.facade, resolver, logger,
		handlers.WithExtractor(nlp.NewRuleExtractor()),
		handlers.WithHistoryStore(a.history),
		handlers.WithThreshold(cfg.ConfidenceThreshold))

	return nil
}

func preprocessOptions(cfg *config.Config) nlp.Options {
	return nlp.Options{
		Lowercase:       cfg.PreprocessLowercase,
		RemoveStopwords: cfg.PreprocessStopwords,
		Lemmatize:       cfg.PreprocessLemmatize,
		CustomStopwords: cfg.CustomStopwords,
	}
}

// loadModel installs the persisted SVM model when there is one, otherwise
// trains. Without blocking the first requests answer MODEL_NOT_READY until
// training finishes.
func (a *app) loadModel(ctx context.Context, blocking bool) error {
	if a.cfg.ModelType == classifier.ModelSVM && a.cfg.ModelPath != "" {
		model, err := classifier.LoadSVM(a.cfg.ModelPath)
		switch {
		case err == nil:
			gen := a.coordinator.Install(model)
			a.logger.Info("✅ model loaded from disk",
				zap.String("path", a.cfg.ModelPath),
				zap.Uint64("generation", gen))
			return nil
		case errors.Is(err, os.ErrNotExist):
			a.logger.Info("🏋️ no saved model, training", zap.String("path", a.cfg.ModelPath))
		default:
			a.logger.Warn("⚠️ saved model unusable, retraining", zap.Error(err))
		}
	}

	_, err := a.coordinator.Retrain(ctx, blocking)
	return err
}

// releaseLimiter drops an evicted user's rate limiter once it has refilled
func (a *app) releaseLimiter(userID string) {
	if a.keys.Forget(userID) {
		a.logger.Debug("rate limiter released", zap.String("user_id", userID))
	}
}

// saveModel persists SVM models after every successful retrain
func (a *app) saveModel(_ context.Context, m classifier.PredictionModel) error {
	svm, ok := m.(*classifier.SVMModel)
	if !ok || a.cfg.ModelPath == "" {
		return nil
	}
	if err := svm.Save(a.cfg.ModelPath); err != nil {
		return err
	}
	a.logger.Info("💾 model saved", zap.String("path", a.cfg.ModelPath))
	return nil
}

// Close releases resources in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("⚠️ error during shutdown", zap.Error(err))
		}
	}
	a.closers = nil
}

// eventFanout logs retrain events and forwards them to subscribers added
// after the coordinator was built
type eventFanout struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs []classifier.Notifier
}

func (f *eventFanout) Add(n classifier.Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, n)
}

func (f *eventFanout) Notify(ctx context.Context, event classifier.Event) {
	f.logger.Debug("retrain event",
		zap.String("type", event.Type),
		zap.Uint64("generation", event.Generation))

	f.mu.RLock()
	subs := append([]classifier.Notifier(nil), f.subs...)
	f.mu.RUnlock()

	for _, n := range subs {
		n.Notify(ctx, event)
	}
}
