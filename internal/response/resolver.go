// Package response turns a classification into the text the user sees.
package response

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/avvvet/chatbuddy/internal/audit"
	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/prompts"
	"github.com/avvvet/chatbuddy/internal/search"
	"go.uber.org/zap"
)

// Searcher is the external search used as fallback
type Searcher interface {
	Search(ctx context.Context, query string) search.Result
}

// Request carries one resolved turn
type Request struct {
	UserID     string
	Query      string
	Intent     string
	Confidence float64
	Context    []models.Turn
	Entities   []models.Entity
	// AllowSearch is false once the user declined searching
	AllowSearch bool
}

// Config selects the fallback policy
type Config struct {
	FallbackEnabled bool
	GreetingIntents []string
}

// Resolver picks local responses and falls back to search or defaults
type Resolver struct {
	catalogs  *catalog.Holder
	searcher  Searcher
	recorder  audit.Recorder
	fallback  bool
	greetings map[string]struct{}
	logger    *zap.Logger

	pick func(n int) int
}

// NewResolver creates a resolver. searcher and recorder may be nil.
func NewResolver(catalogs *catalog.Holder, searcher Searcher, recorder audit.Recorder, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		catalogs:  catalogs,
		searcher:  searcher,
		recorder:  recorder,
		fallback:  cfg.FallbackEnabled && searcher != nil,
		greetings: make(map[string]struct{}),
		logger:    logger,
		pick:      rand.IntN,
	}
	for _, tag := range cfg.GreetingIntents {
		r.greetings[tag] = struct{}{}
	}
	return r
}

// FallbackEnabled reports whether search fallback is available
func (r *Resolver) FallbackEnabled() bool {
	return r.fallback
}

// Resolve returns the response text for req
func (r *Resolver) Resolve(ctx context.Context, req Request) string {
	switch {
	case models.IsUnknown(req.Intent):
		r.RecordUnmatched(ctx, req)
		return r.fallbackResponse(ctx, req)

	case req.Intent == models.IntentDefault:
		return r.DefaultResponse()
	}

	responses := r.catalogs.Get().Responses(req.Intent)
	if len(responses) == 0 {
		r.logger.Debug("intent has no responses", zap.String("intent", req.Intent))
		return r.fallbackResponse(ctx, req)
	}

	if name, ok := r.greetingName(req); ok {
		return prompts.BuildGreeting(name)
	}
	return responses[r.pick(len(responses))]
}

// SearchFallback answers query from search results, or with a default
// response once retries are exhausted
func (r *Resolver) SearchFallback(ctx context.Context, query string) string {
	if r.searcher == nil {
		return r.DefaultResponse()
	}

	res := r.searcher.Search(ctx, query)
	if !res.OK() {
		r.logger.Warn("⚠️ search fallback unavailable, using default response",
			zap.String("query", query), zap.Error(res.Err))
		return r.DefaultResponse()
	}
	return prompts.BuildSearchResponse(query, res.Snippets)
}

// DefaultResponse picks one of the default intent's responses
func (r *Resolver) DefaultResponse() string {
	defaults := r.catalogs.Get().Defaults()
	if len(defaults) == 0 {
		return catalog.DefaultFallbackResponse
	}
	return defaults[r.pick(len(defaults))]
}

// RecordUnmatched appends req to the unmatched query log. Failures are only
// logged.
func (r *Resolver) RecordUnmatched(ctx context.Context, req Request) {
	if r.recorder == nil {
		return
	}
	err := r.recorder.RecordUnmatched(ctx, audit.UnmatchedQuery{
		UserID:     req.UserID,
		Query:      req.Query,
		Intent:     req.Intent,
		Confidence: req.Confidence,
	})
	if err != nil {
		r.logger.Warn("⚠️ failed to record unmatched query", zap.Error(err))
	}
}

func (r *Resolver) fallbackResponse(ctx context.Context, req Request) string {
	if r.fallback && req.AllowSearch {
		return r.SearchFallback(ctx, req.Query)
	}
	return r.DefaultResponse()
}

func (r *Resolver) greetingName(req Request) (string, bool) {
	if _, ok := r.greetings[req.Intent]; !ok {
		return "", false
	}
	for _, e := range req.Entities {
		if e.Label == models.EntityPerson && strings.TrimSpace(e.Text) != "" {
			return e.Text, true
		}
	}
	return "", false
}
