package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/chatbuddy/internal/models"
)

// MemoryStore keeps snapshots in process memory. Used when no Redis URL is
// configured.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot Snapshot) error {
	if snapshot.SavedAt.IsZero() {
		snapshot.SavedAt = time.Now()
	}
	snapshot.Turns = append([]models.Turn(nil), snapshot.Turns...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Name] = snapshot
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, name string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	snapshot.Turns = append([]models.Turn(nil), snapshot.Turns...)
	return &snapshot, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.snapshots))
	for name := range s.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) DeleteSnapshot(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, name)
	return nil
}
