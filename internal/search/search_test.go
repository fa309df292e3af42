package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	mu      sync.Mutex
	calls   []string
	errs    []error
	results []string
	started chan struct{}
	release chan struct{}
}

func (b *fakeBackend) Search(ctx context.Context, query string) ([]string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, query)
	n := len(b.calls)
	var err error
	if n <= len(b.errs) {
		err = b.errs[n-1]
	}
	b.mu.Unlock()

	if b.started != nil && n == 1 {
		close(b.started)
	}
	if b.release != nil {
		<-b.release
	}
	if err != nil {
		return nil, err
	}
	return b.results, nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func newTestClient(t *testing.T, b Backend) (*Client, *[]time.Duration) {
	t.Helper()
	c := NewClient(b, NewMemoryCache(), NewRateLimiter(0), DefaultConfig(), zaptest.NewLogger(t))

	var mu sync.Mutex
	slept := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*slept = append(*slept, d)
		return nil
	}
	return c, slept
}

func TestSearch_ReturnsSnippetsAndCaches(t *testing.T) {
	b := &fakeBackend{results: []string{"Paris is the capital of France."}}
	c, _ := newTestClient(t, b)

	first := c.Search(context.Background(), "  Capital of FRANCE ")
	require.True(t, first.OK())
	assert.False(t, first.Cached)
	assert.Equal(t, []string{"Paris is the capital of France."}, first.Snippets)

	second := c.Search(context.Background(), "capital of france")
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, 1, b.callCount())
	assert.Equal(t, []string{"capital of france"}, b.calls)
}

func TestSearch_RetriesThenSucceeds(t *testing.T) {
	b := &fakeBackend{
		errs:    []error{errors.New("timeout"), errors.New("503")},
		results: []string{"answer"},
	}
	c, slept := newTestClient(t, b)

	res := c.Search(context.Background(), "query")
	require.True(t, res.OK())
	assert.Equal(t, 3, b.callCount())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *slept)
}

func TestSearch_ExhaustedRetries(t *testing.T) {
	fail := errors.New("connection reset")
	b := &fakeBackend{errs: []error{fail, fail, fail, fail, fail, fail}}
	c, _ := newTestClient(t, b)

	res := c.Search(context.Background(), "query")
	assert.False(t, res.OK())
	require.ErrorIs(t, res.Err, ErrSearchUnavailable)
	require.ErrorIs(t, res.Err, fail)
	// one call plus two retries
	assert.Equal(t, 3, b.callCount())

	// failures are not cached
	c.Search(context.Background(), "query")
	assert.Equal(t, 6, b.callCount())
}

func TestSearch_NoResultsIsNotRetried(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestClient(t, b)

	res := c.Search(context.Background(), "query")
	require.ErrorIs(t, res.Err, ErrNoResults)
	assert.Equal(t, 1, b.callCount())
}

func TestSearch_EmptyQuery(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestClient(t, b)

	res := c.Search(context.Background(), "   ")
	require.ErrorIs(t, res.Err, ErrEmptyQuery)
	assert.Zero(t, b.callCount())
}

func TestSearch_ConcurrentMissesShareOneCall(t *testing.T) {
	b := &fakeBackend{
		results: []string{"answer"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, _ := newTestClient(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Search(context.Background(), "Same Question")
			assert.True(t, res.OK())
		}()
	}

	<-b.started
	time.Sleep(50 * time.Millisecond)
	close(b.release)
	wg.Wait()

	assert.Equal(t, 1, b.callCount())
}

func TestSearch_CancelledCallerDoesNotFailSharedCall(t *testing.T) {
	b := &fakeBackend{
		results: []string{"answer"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, _ := newTestClient(t, b)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan Result, 1)
	go func() { first <- c.Search(firstCtx, "same question") }()
	<-b.started

	second := make(chan Result, 1)
	go func() { second <- c.Search(context.Background(), "Same Question") }()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	res := <-first
	require.ErrorIs(t, res.Err, ErrSearchUnavailable)
	require.ErrorIs(t, res.Err, context.Canceled)

	close(b.release)
	res = <-second
	require.True(t, res.OK())
	assert.Equal(t, []string{"answer"}, res.Snippets)
	assert.Equal(t, 1, b.callCount())
}

func TestSearch_SharedCallIsBounded(t *testing.T) {
	b := &slowBackend{}
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 20 * time.Millisecond
	c := NewClient(b, NewMemoryCache(), NewRateLimiter(0), cfg, zaptest.NewLogger(t))

	res := c.Search(context.Background(), "query")
	require.ErrorIs(t, res.Err, ErrSearchUnavailable)
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

// slowBackend blocks until its context ends
type slowBackend struct{}

func (slowBackend) Search(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRateLimiter_SpacesCalls(t *testing.T) {
	l := NewRateLimiter(50 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRateLimiter_HonoursContext(t *testing.T) {
	l := NewRateLimiter(time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx))
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []string{"v"}, time.Hour))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"v"}, got)

	now = now.Add(time.Hour)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCache(client)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []string{"a", "b"}, time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.True(t, mr.Exists("search:k"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSplitResults(t *testing.T) {
	out := "Title: Go\nDescription: A language\nURL: https://go.dev\n\n\nTitle: Gopher\nDescription: A mascot\n\n"

	assert.Equal(t, []string{
		"Title: Go\nDescription: A language\nURL: https://go.dev",
		"Title: Gopher\nDescription: A mascot",
	}, splitResults(out))
}
