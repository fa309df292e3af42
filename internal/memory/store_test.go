package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, ttl)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.LoadSnapshot(ctx, "missing")
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	turns := []models.Turn{
		{Role: models.RoleUser, Text: "hello"},
		{Role: models.RoleBot, Text: "Hi there!"},
	}
	require.NoError(t, store.SaveSnapshot(ctx, Snapshot{Name: "b-session", UserID: "alice", Turns: turns}))
	require.NoError(t, store.SaveSnapshot(ctx, Snapshot{Name: "a-session", UserID: "alice"}))

	got, err := store.LoadSnapshot(ctx, "b-session")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, turns, got.Turns)
	assert.False(t, got.SavedAt.IsZero())

	names, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-session", "b-session"}, names)

	require.NoError(t, store.DeleteSnapshot(ctx, "a-session"))
	names, err = store.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-session"}, names)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	storeContract(t, store)
}

func TestRedisStore_ExpiredSnapshotsDropOutOfList(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, Snapshot{Name: "short-lived"}))
	mr.FastForward(2 * time.Minute)

	names, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}
