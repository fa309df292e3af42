// Package apikey issues and verifies the API keys that authenticate HTTP
// clients.
package apikey

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avvvet/chatbuddy/internal/db"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
	ErrNotFound   = errors.New("api key not found")
)

// Defaults for newly generated keys
const (
	DefaultTTL           = 30 * 24 * time.Hour
	DefaultRatePerMinute = 60
)

// Key is the verified identity behind an API key
type Key struct {
	ID            string
	UserID        string
	ExpiresAt     time.Time
	RatePerMinute int
}

// Manager stores bcrypt hashes of keys. A key is "<id>.<secret>"; the id
// locates the row, the secret is checked against the hash.
type Manager struct {
	db            *db.DB
	ttl           time.Duration
	ratePerMinute int
	cost          int
	now           func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures a Manager
type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

func WithRatePerMinute(n int) Option {
	return func(m *Manager) { m.ratePerMinute = n }
}

// WithCost sets the bcrypt cost
func WithCost(cost int) Option {
	return func(m *Manager) { m.cost = cost }
}

func NewManager(d *db.DB, opts ...Option) *Manager {
	m := &Manager{
		db:            d,
		ttl:           DefaultTTL,
		ratePerMinute: DefaultRatePerMinute,
		cost:          bcrypt.DefaultCost,
		now:           time.Now,
		limiters:      make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generate issues a key for userID, replacing any previous one. The plaintext
// is returned once and never stored.
func (m *Manager) Generate(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), m.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}

	id := uuid.NewString()
	now := m.now()
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, key_hash, created_at, expires_at, rate_limit_per_minute)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			id = excluded.id,
			key_hash = excluded.key_hash,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			rate_limit_per_minute = excluded.rate_limit_per_minute`,
		id, userID, string(hash), now.Unix(), now.Add(m.ttl).Unix(), m.ratePerMinute)
	if err != nil {
		return "", fmt.Errorf("failed to store api key: %w", err)
	}

	m.dropLimiter(userID)
	return id + "." + secret, nil
}

// Verify resolves a plaintext key to its owner
func (m *Manager) Verify(ctx context.Context, apiKey string) (*Key, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(apiKey), ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrInvalidKey
	}

	var (
		key     = Key{ID: id}
		hash    string
		expires int64
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT user_id, key_hash, expires_at, rate_limit_per_minute FROM api_keys WHERE id = ?`, id).
		Scan(&key.UserID, &hash, &expires, &key.RatePerMinute)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return nil, ErrInvalidKey
	}

	key.ExpiresAt = time.Unix(expires, 0)
	if !m.now().Before(key.ExpiresAt) {
		return nil, ErrExpiredKey
	}
	return &key, nil
}

// Revoke deletes the key of userID
func (m *Manager) Revoke(ctx context.Context, userID string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	m.dropLimiter(userID)
	return nil
}

// Allow reports whether key may make another call now
func (m *Manager) Allow(key *Key) bool {
	if key.RatePerMinute <= 0 {
		return true
	}

	m.mu.Lock()
	l, ok := m.limiters[key.UserID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(key.RatePerMinute)), key.RatePerMinute)
		m.limiters[key.UserID] = l
	}
	m.mu.Unlock()

	return l.AllowN(m.now(), 1)
}

// Forget drops the rate limiter of an idle user. A limiter that has not
// refilled yet is kept so forgetting never grants extra calls.
func (m *Manager) Forget(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters[userID]
	if !ok || l.TokensAt(m.now()) < float64(l.Burst()) {
		return false
	}
	delete(m.limiters, userID)
	return true
}

func (m *Manager) dropLimiter(userID string) {
	m.mu.Lock()
	delete(m.limiters, userID)
	m.mu.Unlock()
}
