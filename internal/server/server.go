// Package server exposes the conversation engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/avvvet/chatbuddy/internal/apikey"
	"github.com/avvvet/chatbuddy/internal/audit"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// APIKeyHeader carries the client's API key
const APIKeyHeader = "X-API-Key"

// ChatProcessor handles one chat message
type ChatProcessor interface {
	Process(ctx context.Context, userID, text string) (*models.ChatResponse, error)
}

// Authenticator verifies API keys and enforces per-key rate limits
type Authenticator interface {
	Verify(ctx context.Context, key string) (*apikey.Key, error)
	Allow(key *apikey.Key) bool
}

// SessionLog stores every authenticated call
type SessionLog interface {
	RecordAPISession(ctx context.Context, s audit.APISession) error
}

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Config holds server configuration
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	AllowedOrigins []string
	// HealthChecks run on every /healthz call, keyed by dependency name
	HealthChecks map[string]HealthCheck
}

type Server struct {
	cfg        Config
	handler    ChatProcessor
	auth       Authenticator
	sessionLog SessionLog
	router     chi.Router
	httpServer *http.Server
	logger     *zap.Logger
}

// New creates the HTTP server. sessionLog may be nil.
func New(cfg Config, handler ChatProcessor, auth Authenticator, sessionLog SessionLog, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		cfg:        cfg,
		handler:    handler,
		auth:       auth,
		sessionLog: sessionLog,
		logger:     logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", APIKeyHeader},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("🌐 HTTP API listening", zap.String("addr", s.cfg.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

type endpoint struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Headers []string          `json:"headers,omitempty"`
	Body    map[string]string `json:"body,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Chatbot API running",
		"endpoints": []endpoint{
			{Path: "/chat", Method: http.MethodPost, Headers: []string{APIKeyHeader}, Body: map[string]string{"message": "string"}},
			{Path: "/healthz", Method: http.MethodGet},
		},
	})
}

// handleHealth answers 503 when any configured dependency check fails
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(s.cfg.HealthChecks))
	for name, check := range s.cfg.HealthChecks {
		if err := check(ctx); err != nil {
			s.logger.Warn("⚠️ health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{"status": status}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, code, body)
}

type chatRequest struct {
	Message string `json:"message"`
	APIKey  string `json:"api_key,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		key = req.APIKey
	}
	if key == "" {
		writeError(w, http.StatusUnauthorized, "Missing API key")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Missing message")
		return
	}

	identity, err := s.auth.Verify(r.Context(), key)
	if err != nil {
		if !errors.Is(err, apikey.ErrInvalidKey) && !errors.Is(err, apikey.ErrExpiredKey) {
			s.logger.Error("❌ api key verification failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeError(w, http.StatusForbidden, "Invalid or expired API key")
		return
	}
	if !s.auth.Allow(identity) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.handler.Process(ctx, identity.UserID, req.Message)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("⏱️ chat request timed out", zap.String("user_id", identity.UserID))
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
		return
	}
	if err != nil {
		s.logger.Error("❌ chat processing failed", zap.String("user_id", identity.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	resp.UserID = identity.UserID

	s.logSession(r.Context(), identity.UserID, req.Message, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logSession(ctx context.Context, userID, message string, resp *models.ChatResponse) {
	if s.sessionLog == nil {
		return
	}

	request, _ := json.Marshal(map[string]string{"message": message})
	response, _ := json.Marshal(resp)
	err := s.sessionLog.RecordAPISession(context.WithoutCancel(ctx), audit.APISession{
		UserID:   userID,
		Request:  string(request),
		Response: string(response),
	})
	if err != nil {
		s.logger.Warn("⚠️ failed to log api session", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote", strings.TrimSpace(r.RemoteAddr)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
