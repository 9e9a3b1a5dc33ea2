package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/sodatrack/internal/model"
)

func TestManager_MemoryStore(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	m := NewManager(store, time.Minute)
	m.now = store.now
	ctx := context.Background()

	_, err := m.Begin(ctx, "42", ActionUsage, UsageOptions())
	require.NoError(t, err)

	p, err := m.Resolve(ctx, "42", "4")
	require.NoError(t, err)
	assert.Equal(t, ActionUsage, p.Action)

	_, err = m.Resolve(ctx, "42", "4")
	assert.ErrorIs(t, err, ErrNoPending)

	_, err = m.Begin(ctx, "42", ActionDispenser, DispenserOptions())
	require.NoError(t, err)
	_, err = m.Resolve(ctx, "42", "turbo")
	assert.ErrorIs(t, err, ErrUnknownChoice)
	_, err = m.Resolve(ctx, "42", "manual")
	assert.ErrorIs(t, err, ErrNoPending, "unknown choice must consume the prompt")

	_, err = m.Begin(ctx, "42", ActionRecharge, []string{"s1"})
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = m.Resolve(ctx, "42", "s1")
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestManager_LatestPromptWins(t *testing.T) {
	m := NewManager(NewMemoryStore(), 0)
	ctx := context.Background()

	_, err := m.Begin(ctx, "42", ActionActivate, []string{"a", "b"})
	require.NoError(t, err)
	_, err = m.Begin(ctx, "42", ActionRecharge, []string{"c"})
	require.NoError(t, err)

	_, err = m.Resolve(ctx, "42", "a")
	assert.ErrorIs(t, err, ErrUnknownChoice)
}

func TestManager_BeginValidation(t *testing.T) {
	m := NewManager(NewMemoryStore(), 0)
	ctx := context.Background()

	_, err := m.Begin(ctx, "42", Action("delete"), []string{"x"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = m.Begin(ctx, "42", ActionActivate, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "sodatrack:prompt:")
	m := NewManager(store, time.Minute)
	ctx := context.Background()

	_, err := m.Begin(ctx, "42", ActionActivate, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("sodatrack:prompt:42"))

	p, err := m.Resolve(ctx, "42", "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, p.Options)
	assert.False(t, mr.Exists("sodatrack:prompt:42"))

	_, err = m.Begin(ctx, "42", ActionActivate, []string{"s1"})
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = m.Resolve(ctx, "42", "s1")
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestUsageOptions(t *testing.T) {
	opts := UsageOptions()
	require.Len(t, opts, 10)
	assert.Equal(t, "1", opts[0])
	assert.Equal(t, "10", opts[9])
}
