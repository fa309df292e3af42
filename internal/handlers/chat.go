package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avvvet/chatbuddy/internal/classifier"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/nlp"
	"github.com/avvvet/chatbuddy/internal/prompts"
	"github.com/avvvet/chatbuddy/internal/response"
	"go.uber.org/zap"
)

// ErrNoHistoryStore is returned by history operations when no store is set
var ErrNoHistoryStore = errors.New("no history store configured")

// DefaultConfidenceThreshold is the minimum confidence to trust a label
const DefaultConfidenceThreshold = 0.5

// Classifier predicts an intent from tokens
type Classifier interface {
	Predict(ctx context.Context, tokens []string) (models.Classification, error)
}

// Preprocessor turns raw text into tokens
type Preprocessor interface {
	Preprocess(text string) []string
}

// ChatHandler is the conversation entry point. Each message runs with the
// user's session held, so one user's turns are processed in order.
type ChatHandler struct {
	sessions   *memory.Manager
	pre        Preprocessor
	classifier Classifier
	extractor  nlp.Extractor
	resolver   *response.Resolver
	store      memory.Store
	threshold  float64
	logger     *zap.Logger
}

// Option configures a ChatHandler
type Option func(*ChatHandler)

// WithExtractor enables entity extraction
func WithExtractor(e nlp.Extractor) Option {
	return func(h *ChatHandler) { h.extractor = e }
}

// WithHistoryStore enables saving and loading conversations
func WithHistoryStore(s memory.Store) Option {
	return func(h *ChatHandler) { h.store = s }
}

// WithThreshold sets the confidence threshold
func WithThreshold(t float64) Option {
	return func(h *ChatHandler) { h.threshold = t }
}

func NewChatHandler(sessions *memory.Manager, pre Preprocessor, c Classifier, resolver *response.Resolver,
	logger *zap.Logger, opts ...Option) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ChatHandler{
		sessions:   sessions,
		pre:        pre,
		classifier: c,
		resolver:   resolver,
		threshold:  DefaultConfidenceThreshold,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Process handles one message from userID. Only a missing user id is an
// error; every other failure becomes a graceful response.
func (h *ChatHandler) Process(ctx context.Context, userID, text string) (*models.ChatResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, memory.ErrInvalidUserID
	}

	s, err := h.sessions.Acquire(userID)
	if err != nil {
		return nil, err
	}
	defer s.Release()

	if s.ConfirmationPending {
		return h.handleConfirmation(ctx, s, text), nil
	}

	if strings.TrimSpace(text) == "" {
		return &models.ChatResponse{
			UserID:     userID,
			Response:   prompts.BlankInputMessage,
			Intent:     models.IntentNone,
			Confidence: 1.0,
		}, nil
	}

	s.Context.AddUserQuery(text)
	tokens := h.pre.Preprocess(text)
	entities := h.extract(text)

	result, err := h.classifier.Predict(ctx, tokens)
	if err != nil {
		h.logger.Error("❌ prediction failed", zap.String("user_id", userID), zap.Error(err))
		code := models.ErrorClassification
		if errors.Is(err, classifier.ErrModelNotReady) {
			code = models.ErrorModelNotReady
		}
		return h.createErrorResponse(userID, code), nil
	}

	intent := result.Intent
	if result.Confidence < h.threshold {
		h.logger.Info("confidence below threshold, intent is unknown",
			zap.String("user_id", userID),
			zap.String("predicted", result.Intent),
			zap.Float64("confidence", result.Confidence),
			zap.Float64("threshold", h.threshold))
		intent = models.IntentUnknown
	}

	req := response.Request{
		UserID:      userID,
		Query:       text,
		Intent:      intent,
		Confidence:  result.Confidence,
		Context:     s.Context.GetContext(),
		Entities:    entities,
		AllowSearch: s.SearchPreference == nil || *s.SearchPreference,
	}

	if models.IsUnknown(intent) {
		if h.resolver.FallbackEnabled() && s.SearchPreference == nil {
			// the prompt itself is not added to the context window
			s.ConfirmationPending = true
			s.PendingQuery = text
			h.resolver.RecordUnmatched(ctx, req)
			return &models.ChatResponse{
				UserID:     userID,
				Response:   prompts.SearchConfirmPrompt,
				Intent:     models.IntentSearchConfirm,
				Confidence: result.Confidence,
				Entities:   entities,
			}, nil
		}
		req.AllowSearch = s.SearchPreference != nil && *s.SearchPreference
	}

	reply := h.resolver.Resolve(ctx, req)
	s.Context.AddBotResponse(reply)

	h.logger.Info("message processed",
		zap.String("user_id", userID),
		zap.String("intent", intent),
		zap.Float64("confidence", result.Confidence))

	return &models.ChatResponse{
		UserID:     userID,
		Response:   reply,
		Intent:     intent,
		Confidence: result.Confidence,
		Entities:   entities,
	}, nil
}

func (h *ChatHandler) handleConfirmation(ctx context.Context, s *memory.Session, text string) *models.ChatResponse {
	switch normalizeAnswer(text) {
	case "yes", "y":
		query := s.PendingQuery
		s.SetSearchPreference(true)
		s.ConfirmationPending = false
		s.PendingQuery = ""

		reply := h.resolver.SearchFallback(ctx, query)
		if !endsWithUserTurn(s.Context.GetContext(), query) {
			s.Context.AddUserQuery(query)
		}
		s.Context.AddBotResponse(reply)

		h.logger.Info("🔎 search fallback confirmed", zap.String("user_id", s.UserID()))
		return &models.ChatResponse{
			UserID:     s.UserID(),
			Response:   reply,
			Intent:     models.IntentSearch,
			Confidence: 1.0,
		}

	case "no", "n":
		s.SetSearchPreference(false)
		s.ConfirmationPending = false
		s.PendingQuery = ""
		s.Context.AddBotResponse(prompts.SearchDeclinedMessage)

		h.logger.Info("search fallback declined", zap.String("user_id", s.UserID()))
		return &models.ChatResponse{
			UserID:     s.UserID(),
			Response:   prompts.SearchDeclinedMessage,
			Intent:     models.IntentDefault,
			Confidence: 1.0,
		}
	}

	return &models.ChatResponse{
		UserID:     s.UserID(),
		Response:   prompts.SearchConfirmPrompt,
		Intent:     models.IntentSearchConfirm,
		Confidence: 1.0,
	}
}

// GetContext returns a copy of the user's context window
func (h *ChatHandler) GetContext(userID string) ([]models.Turn, error) {
	s, err := h.sessions.Acquire(userID)
	if err != nil {
		return nil, err
	}
	defer s.Release()
	return s.Context.GetContext(), nil
}

// ClearHistory empties the user's context window and any pending question
func (h *ChatHandler) ClearHistory(userID string) error {
	s, err := h.sessions.Acquire(userID)
	if err != nil {
		return err
	}
	defer s.Release()

	s.Context.Clear()
	s.ConfirmationPending = false
	s.PendingQuery = ""
	return nil
}

// ResetSession drops the user's whole session, including the remembered
// search preference. It reports whether there was one.
func (h *ChatHandler) ResetSession(userID string) bool {
	if !h.sessions.ClearSession(userID) {
		return false
	}
	h.logger.Info("🔄 session reset", zap.String("user_id", userID))
	return true
}

// SaveHistory stores the user's context window under name
func (h *ChatHandler) SaveHistory(ctx context.Context, userID, name string) error {
	if h.store == nil {
		return ErrNoHistoryStore
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("history name is required")
	}

	turns, err := h.GetContext(userID)
	if err != nil {
		return err
	}

	err = h.store.SaveSnapshot(ctx, memory.Snapshot{
		Name:    name,
		UserID:  userID,
		Turns:   turns,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save history %q: %w", name, err)
	}
	h.logger.Info("💾 history saved", zap.String("user_id", userID), zap.String("name", name), zap.Int("turns", len(turns)))
	return nil
}

// LoadHistory replaces the user's context window with a saved one
func (h *ChatHandler) LoadHistory(ctx context.Context, userID, name string) error {
	if h.store == nil {
		return ErrNoHistoryStore
	}

	snapshot, err := h.store.LoadSnapshot(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load history %q: %w", name, err)
	}

	s, err := h.sessions.Acquire(userID)
	if err != nil {
		return err
	}
	defer s.Release()

	s.Context.Restore(snapshot.Turns)
	s.ConfirmationPending = false
	s.PendingQuery = ""
	h.logger.Info("📂 history loaded", zap.String("user_id", userID), zap.String("name", name))
	return nil
}

// ListHistories returns saved history names
func (h *ChatHandler) ListHistories(ctx context.Context) ([]string, error) {
	if h.store == nil {
		return nil, ErrNoHistoryStore
	}
	return h.store.ListSnapshots(ctx)
}

// DeleteHistory removes a saved history
func (h *ChatHandler) DeleteHistory(ctx context.Context, name string) error {
	if h.store == nil {
		return ErrNoHistoryStore
	}
	if err := h.store.DeleteSnapshot(ctx, name); err != nil {
		return fmt.Errorf("failed to delete history %q: %w", name, err)
	}
	h.logger.Info("🗑️ history deleted", zap.String("name", name))
	return nil
}

func (h *ChatHandler) extract(text string) []models.Entity {
	if h.extractor == nil {
		return nil
	}
	return h.extractor.Extract(text)
}

func (h *ChatHandler) createErrorResponse(userID, errorCode string) *models.ChatResponse {
	return &models.ChatResponse{
		UserID:     userID,
		Response:   prompts.ErrorMessage,
		Intent:     models.IntentError,
		Confidence: 0.0,
		ErrorCode:  &errorCode,
	}
}

func normalizeAnswer(text string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!?")
}

func endsWithUserTurn(turns []models.Turn, text string) bool {
	if len(turns) == 0 {
		return false
	}
	last := turns[len(turns)-1]
	return last.Role == models.RoleUser && last.Text == text
}
