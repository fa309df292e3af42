package memory

import (
	"context"
	"errors"
	"time"

	"github.com/avvvet/chatbuddy/internal/models"
)

// ErrSnapshotNotFound is returned when a saved history does not exist
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is a saved copy of a context window
type Snapshot struct {
	Name    string        `json:"name"`
	UserID  string        `json:"user_id"`
	Turns   []models.Turn `json:"turns"`
	SavedAt time.Time     `json:"saved_at"`
}

// Store defines the interface for saved conversation histories
// This allows us to swap between Redis and in-memory storage
type Store interface {
	// SaveSnapshot stores a snapshot under its name, replacing any previous one
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// LoadSnapshot loads a snapshot by name
	LoadSnapshot(ctx context.Context, name string) (*Snapshot, error)

	// ListSnapshots returns the names of all saved snapshots, sorted
	ListSnapshots(ctx context.Context) ([]string, error)

	// DeleteSnapshot removes a snapshot
	DeleteSnapshot(ctx context.Context, name string) error
}
