// Package audit records queries the bot could not answer and the calls made
// through the HTTP API.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/chatbuddy/internal/db"
	"github.com/google/uuid"
)

// UnmatchedQuery is a query no intent matched with enough confidence
type UnmatchedQuery struct {
	ID         string
	UserID     string
	Query      string
	Intent     string
	Confidence float64
	CreatedAt  time.Time
}

// APISession is one authenticated /chat call
type APISession struct {
	ID        string
	UserID    string
	Request   string
	Response  string
	CreatedAt time.Time
}

// Recorder is the append-only sink for unmatched queries
type Recorder interface {
	RecordUnmatched(ctx context.Context, q UnmatchedQuery) error
}

// Store persists audit records in SQLite
type Store struct {
	db  *db.DB
	now func() time.Time
}

func NewStore(d *db.DB) *Store {
	return &Store{db: d, now: time.Now}
}

// RecordUnmatched appends q, filling in ID and CreatedAt when empty
func (s *Store) RecordUnmatched(ctx context.Context, q UnmatchedQuery) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unmatched_queries (id, user_id, query, intent, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, q.Query, q.Intent, q.Confidence, q.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record unmatched query: %w", err)
	}
	return nil
}

// ListUnmatched returns the newest unmatched queries first
func (s *Store) ListUnmatched(ctx context.Context, limit int) ([]UnmatchedQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, query, intent, confidence, created_at FROM unmatched_queries
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched queries: %w", err)
	}
	defer rows.Close()

	var out []UnmatchedQuery
	for rows.Next() {
		var (
			q       UnmatchedQuery
			created int64
		)
		if err := rows.Scan(&q.ID, &q.UserID, &q.Query, &q.Intent, &q.Confidence, &created); err != nil {
			return nil, fmt.Errorf("failed to scan unmatched query: %w", err)
		}
		q.CreatedAt = time.Unix(created, 0)
		out = append(out, q)
	}
	return out, rows.Err()
}

// RecordAPISession appends one API call
func (s *Store) RecordAPISession(ctx context.Context, a APISession) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_sessions (id, user_id, request, response, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Request, a.Response, a.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record api session: %w", err)
	}
	return nil
}

// ListAPISessions returns a user's calls, newest first
func (s *Store) ListAPISessions(ctx context.Context, userID string, limit int) ([]APISession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, request, response, created_at FROM api_sessions
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list api sessions: %w", err)
	}
	defer rows.Close()

	var out []APISession
	for rows.Next() {
		var (
			a       APISession
			created int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Request, &a.Response, &created); err != nil {
			return nil, fmt.Errorf("failed to scan api session: %w", err)
		}
		a.CreatedAt = time.Unix(created, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}
