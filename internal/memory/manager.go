package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidUserID is returned when a session is requested without a user id
var ErrInvalidUserID = errors.New("user_id is required")

// Session is the conversational state of one user. Fields other than Context
// may only be touched while the session is held through Manager.Acquire.
type Session struct {
	mu     sync.Mutex
	userID string

	Context             *ContextWindow
	ConfirmationPending bool
	SearchPreference    *bool
	PendingQuery        string

	lastActive atomic.Int64
	evicted    bool
}

func newSession(userID string, windowSize int, now time.Time) *Session {
	s := &Session{
		userID:  userID,
		Context: NewContextWindow(windowSize),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// UserID returns the owner of the session
func (s *Session) UserID() string {
	return s.userID
}

// Release hands the session back after Acquire
func (s *Session) Release() {
	s.mu.Unlock()
}

// SetSearchPreference records whether the user agreed to web searches
func (s *Session) SetSearchPreference(allow bool) {
	s.SearchPreference = &allow
}

// Manager owns one Session per user id. Sessions are created on first use
// and evicted after sitting idle for longer than the configured TTL.
type Manager struct {
	sessions   sync.Map // user id -> *Session
	count      atomic.Int64
	windowSize int
	ttl        time.Duration
	now        func() time.Time
	logger     *zap.Logger

	evictMu sync.RWMutex
	onEvict func(userID string)
}

// NewManager creates a session manager. A ttl of zero disables eviction.
func NewManager(windowSize int, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		windowSize: windowSize,
		ttl:        ttl,
		now:        time.Now,
		logger:     logger,
	}
}

// OnEvict registers a callback fired after a session is evicted
func (m *Manager) OnEvict(fn func(userID string)) {
	m.evictMu.Lock()
	defer m.evictMu.Unlock()
	m.onEvict = fn
}

// GetOrCreateSession returns the session for userID, creating it if absent.
// Concurrent first calls for the same user all receive the same session.
func (m *Manager) GetOrCreateSession(userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	if existing, ok := m.sessions.Load(userID); ok {
		return existing.(*Session), nil
	}

	created := newSession(userID, m.windowSize, m.now())
	actual, loaded := m.sessions.LoadOrStore(userID, created)
	if !loaded {
		m.count.Add(1)
		m.logger.Debug("session created", zap.String("user_id", userID))
	}
	return actual.(*Session), nil
}

// Acquire returns the user's session locked for exclusive use. Messages
// from the same user are processed one at a time; callers must Release.
func (m *Manager) Acquire(userID string) (*Session, error) {
	for {
		s, err := m.GetOrCreateSession(userID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.evicted {
			// lost a race with the sweeper, the next lookup creates a fresh one
			s.mu.Unlock()
			continue
		}
		s.lastActive.Store(m.now().UnixNano())
		return s, nil
	}
}

// ClearSession drops the session for userID. It reports whether one existed.
func (m *Manager) ClearSession(userID string) bool {
	value, ok := m.sessions.Load(userID)
	if !ok {
		return false
	}
	s := value.(*Session)

	s.mu.Lock()
	defer s.mu.Unlock()
	return m.evictLocked(userID, s)
}

// Sweep evicts sessions idle for longer than the TTL. Sessions that are
// currently held by a request are skipped. Returns the number evicted.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	cutoff := m.now().Add(-m.ttl).UnixNano()
	evicted := 0

	m.sessions.Range(func(key, value any) bool {
		s := value.(*Session)
		if s.lastActive.Load() > cutoff {
			return true
		}
		if !s.mu.TryLock() {
			return true
		}
		if s.lastActive.Load() <= cutoff && m.evictLocked(key.(string), s) {
			evicted++
		}
		s.mu.Unlock()
		return true
	})

	if evicted > 0 {
		m.logger.Info("🗑️ evicted idle sessions",
			zap.Int("evicted", evicted),
			zap.Int("active", m.GetActiveSessionCount()))
	}
	return evicted
}

// Run sweeps idle sessions every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// GetActiveSessionCount returns the number of live sessions
func (m *Manager) GetActiveSessionCount() int {
	return int(m.count.Load())
}

// evictLocked must be called with s.mu held
func (m *Manager) evictLocked(userID string, s *Session) bool {
	if s.evicted {
		return false
	}
	if !m.sessions.CompareAndDelete(userID, s) {
		return false
	}
	s.evicted = true
	m.count.Add(-1)

	m.evictMu.RLock()
	fn := m.onEvict
	m.evictMu.RUnlock()
	if fn != nil {
		fn(userID)
	}

	m.logger.Debug("session evicted", zap.String("user_id", userID))
	return true
}
