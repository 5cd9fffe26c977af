package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/profilesync/internal/value"
)

var serverNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type feed struct {
	mu     sync.Mutex
	events []feedEvent
	errs   []error
	signal chan struct{}
}

type feedEvent struct {
	rec    Record
	exists bool
}

func newFeed() *feed {
	return &feed{signal: make(chan struct{}, 64)}
}

func (f *feed) onChange(rec Record, exists bool) {
	f.mu.Lock()
	f.events = append(f.events, feedEvent{rec, exists})
	f.mu.Unlock()
	f.signal <- struct{}{}
}

func (f *feed) onError(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
	f.signal <- struct{}{}
}

func (f *feed) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.signal:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for feed event %d", i+1)
		}
	}
}

func (f *feed) snapshot() ([]feedEvent, []error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feedEvent(nil), f.events...), append([]error(nil), f.errs...)
}

func TestResolveServerTimes(t *testing.T) {
	at := serverNow.Add(-time.Hour)
	in := map[string]any{
		"createdAt": value.ServerNow(),
		"nested":    map[string]any{"t": value.ServerNow()},
		"list":      []any{value.ServerNow(), "x"},
		"fixed":     value.ServerTime{At: at},
		"plain":     "kept",
	}

	out := ResolveServerTimes(in, serverNow)

	assert.Equal(t, serverNow, out["createdAt"])
	assert.Equal(t, serverNow, out["nested"].(map[string]any)["t"])
	assert.Equal(t, []any{serverNow, "x"}, out["list"])
	assert.Equal(t, at, out["fixed"])
	assert.Equal(t, "kept", out["plain"])
	assert.Equal(t, value.ServerNow(), in["createdAt"], "input untouched")
	assert.Nil(t, ResolveServerTimes(nil, serverNow))
}

func TestBackendError(t *testing.T) {
	err := fmt.Errorf("sync: %w", opError(OpUpdate, "u1", ErrNotFound))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsAlreadyExists(err))
	assert.Equal(t, OpUpdate, OpOf(err))
	assert.Equal(t, `sync: remote update "u1": profile record not found`, err.Error())
	assert.Equal(t, "", OpOf(errors.New("plain")))
	assert.NoError(t, opError(OpRead, "u1", nil))
}

func exerciseBackend(t *testing.T, b Backend, id string) {
	t.Helper()
	ctx := context.Background()

	_, found, err := b.ReadOnce(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	f := newFeed()
	unsubscribe := b.Subscribe(ctx, id, f.onChange, f.onError)
	defer unsubscribe()
	f.wait(t, 1)

	err = b.Update(ctx, id, map[string]any{"photoURL": "x"})
	assert.True(t, IsNotFound(err), "update before create: %v", err)

	require.NoError(t, b.Create(ctx, id, map[string]any{
		"id":          id,
		"displayName": "Ada",
		"createdAt":   value.ServerNow(),
	}))
	f.wait(t, 1)

	err = b.Create(ctx, id, map[string]any{"id": id})
	assert.True(t, IsAlreadyExists(err), "second create: %v", err)

	require.NoError(t, b.Update(ctx, id, map[string]any{"photoURL": "https://cdn.example.com/2.png"}))
	f.wait(t, 1)

	events, errs := f.snapshot()
	require.Empty(t, errs)
	require.Len(t, events, 3)
	assert.False(t, events[0].exists)
	assert.True(t, events[1].exists)
	assert.Equal(t, "Ada", events[1].rec.Fields["displayName"])
	assert.NotContains(t, events[1].rec.Fields, "photoURL")
	assert.Equal(t, "https://cdn.example.com/2.png", events[2].rec.Fields["photoURL"])
	assert.Equal(t, "Ada", events[2].rec.Fields["displayName"], "update merges")
	assert.NotNil(t, events[2].rec.Fields["createdAt"], "server time stamped")

	rec, found, err := b.ReadOnce(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "Ada", rec.Fields["displayName"])
}

func TestMemory_Contract(t *testing.T) {
	exerciseBackend(t, NewMemory(func() time.Time { return serverNow }), "u1")
}

func TestMemory_ServerTimeUsesClock(t *testing.T) {
	m := NewMemory(func() time.Time { return serverNow })
	require.NoError(t, m.Create(context.Background(), "u1", map[string]any{"createdAt": value.ServerNow()}))

	f, ok := m.Fields("u1")
	require.True(t, ok)
	assert.Equal(t, serverNow, f["createdAt"])
}

func TestMemory_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	boom := errors.New("backend down")

	m.Fail(OpCreate, boom)
	err := m.Create(ctx, "u1", map[string]any{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OpCreate, OpOf(err))
	_, ok := m.Fields("u1")
	assert.False(t, ok)
	assert.Len(t, m.Calls(), 1, "failed calls are still recorded")

	m.Fail(OpCreate, nil)
	require.NoError(t, m.Create(ctx, "u1", map[string]any{}))

	m.Fail(OpRead, boom)
	_, _, err = m.ReadOnce(ctx, "u1")
	assert.ErrorIs(t, err, boom)

	m.Fail(OpSubscribe, boom)
	f := newFeed()
	m.Subscribe(ctx, "u1", f.onChange, f.onError)
	events, errs := f.snapshot()
	assert.Empty(t, events)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Zero(t, m.Subscribers("u1"))
}

func TestMemory_FailFeed(t *testing.T) {
	m := NewMemory(nil)
	f := newFeed()
	m.Subscribe(context.Background(), "u1", f.onChange, f.onError)
	require.Equal(t, 1, m.Subscribers("u1"))

	m.FailFeed("u1", errors.New("connection reset"))

	_, errs := f.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, OpSubscribe, OpOf(errs[0]))
	assert.Zero(t, m.Subscribers("u1"))
}

func TestMemory_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	f := newFeed()
	unsubscribe := m.Subscribe(ctx, "u1", f.onChange, f.onError)

	unsubscribe()
	unsubscribe()
	require.NoError(t, m.Create(ctx, "u1", map[string]any{}))

	events, _ := f.snapshot()
	assert.Len(t, events, 1, "only the initial state")
	assert.Zero(t, m.Subscribers("u1"))
}

func TestMemory_PauseHoldsWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	m.Pause()

	done := make(chan error, 1)
	go func() { done <- m.Create(ctx, "u1", map[string]any{"id": "u1"}) }()

	require.Eventually(t, func() bool { return len(m.Calls()) == 1 }, time.Second, time.Millisecond)
	_, ok := m.Fields("u1")
	assert.False(t, ok, "held write not applied")

	m.Resume()
	require.NoError(t, <-done)
	_, ok = m.Fields("u1")
	assert.True(t, ok)
}

func TestMemory_PausedWriteHonoursContext(t *testing.T) {
	m := NewMemory(nil)
	m.Pause()
	defer m.Resume()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Update(ctx, "u1", map[string]any{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostgres_Contract(t *testing.T) {
	dsn := os.Getenv("PROFILESYNC_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PROFILESYNC_TEST_PG_DSN not set")
	}
	ctx := context.Background()

	require.NoError(t, Migrate(dsn, discard()))
	require.NoError(t, Migrate(dsn, discard()), "migrate is idempotent")

	pool, err := NewPool(ctx, dsn, 4, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	id := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM profiles WHERE id = $1`, id)
	})

	b := NewPostgres(pool, PostgresOptions{Channel: "profile_changes_test"})
	exerciseBackend(t, b, id)

	rec, _, err := b.ReadOnce(ctx, id)
	require.NoError(t, err)
	created, ok := rec.Fields["createdAt"].(string)
	require.True(t, ok, "jsonb returns timestamps as strings")
	_, err = time.Parse(time.RFC3339Nano, created)
	assert.NoError(t, err)
}
