package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrSearchUnavailable = errors.New("search unavailable")
	ErrNoResults         = errors.New("no search results")
	ErrEmptyQuery        = errors.New("empty search query")
)

// Result is the outcome of a search. Err is set when no snippets could be
// obtained; callers fall back instead of failing.
type Result struct {
	Query    string
	Snippets []string
	Cached   bool
	Err      error
}

// OK reports whether the search produced snippets
func (r Result) OK() bool {
	return r.Err == nil && len(r.Snippets) > 0
}

// Config tunes the retry and cache policy
type Config struct {
	MaxRetries int
	Backoff    time.Duration
	CacheTTL   time.Duration
	// Timeout bounds one shared fetch including its retries
	Timeout time.Duration
}

// DefaultConfig retries twice with one second between attempts, caches
// results for an hour and gives up on a fetch after 30 seconds
func DefaultConfig() Config {
	return Config{MaxRetries: 2, Backoff: time.Second, CacheTTL: time.Hour, Timeout: 30 * time.Second}
}

// Client wraps a backend with caching, rate limiting and bounded retries
type Client struct {
	backend Backend
	cache   Cache
	limiter *RateLimiter
	cfg     Config
	group   singleflight.Group
	logger  *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(backend Backend, cache Cache, limiter *RateLimiter, cfg Config, logger *zap.Logger) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if limiter == nil {
		limiter = NewRateLimiter(0)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		backend: backend,
		cache:   cache,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Normalize is the cache key for query
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Search returns cached snippets or calls the backend. Cache hits skip the
// rate limiter. Concurrent misses for the same query share one call.
func (c *Client) Search(ctx context.Context, query string) Result {
	key := Normalize(query)
	if key == "" {
		return Result{Query: query, Err: ErrEmptyQuery}
	}

	snippets, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("⚠️ search cache read failed", zap.Error(err))
	}
	if ok {
		return Result{Query: query, Snippets: snippets, Cached: true}
	}

	// the shared call must outlive any single caller
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := c.fetchContext(ctx)
		defer cancel()
		return c.fetch(fetchCtx, key), nil
	})

	select {
	case <-ctx.Done():
		return Result{Query: query, Err: fmt.Errorf("%w: %w", ErrSearchUnavailable, ctx.Err())}
	case r := <-ch:
		res := r.Val.(Result)
		res.Query = query
		return res
	}
}

func (c *Client) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(detached, c.cfg.Timeout)
	}
	return context.WithCancel(detached)
}

func (c *Client) fetch(ctx context.Context, key string) Result {
	var lastErr error
	attempts := c.cfg.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.cfg.Backoff); err != nil {
				lastErr = err
				break
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		snippets, err := c.backend.Search(ctx, key)
		if err == nil && len(snippets) == 0 {
			err = ErrNoResults
		}
		if err == nil {
			if err := c.cache.Set(ctx, key, snippets, c.cfg.CacheTTL); err != nil {
				c.logger.Warn("⚠️ search cache write failed", zap.Error(err))
			}
			return Result{Snippets: snippets}
		}

		lastErr = err
		if errors.Is(err, ErrNoResults) {
			break
		}
		c.logger.Warn("⚠️ search attempt failed",
			zap.Int("attempt", attempt), zap.Int("attempts", attempts), zap.Error(err))
	}

	c.logger.Error("❌ search unavailable", zap.String("query", key), zap.Error(lastErr))
	return Result{Err: fmt.Errorf("%w: %w", ErrSearchUnavailable, lastErr)}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
