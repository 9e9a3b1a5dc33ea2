package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/sodatrack/internal/model"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, r *MemoryRepository, owner string, ids ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := r.EnsureAccount(ctx, owner, t0)
	require.NoError(t, err)
	for i, id := range ids {
		require.NoError(t, r.CreateSiphon(ctx, model.Siphon{
			ID: id, OwnerID: owner, Alias: id, Capacity: 60, Remaining: 60,
			Status: model.SiphonStatusFull, CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestMemory_CreateSiphonRequiresAccount(t *testing.T) {
	r := NewMemoryRepository()
	err := r.CreateSiphon(context.Background(), model.Siphon{ID: "s", OwnerID: "ghost"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemory_GetSiphonIsCopy(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "42", "a")
	ctx := context.Background()

	s, err := r.GetSiphon(ctx, "a")
	require.NoError(t, err)
	s.Remaining = 0
	s.AlertsSent.Add(30)

	again, err := r.GetSiphon(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 60.0, again.Remaining)
	assert.False(t, again.AlertsSent.Has(30))
}

func TestMemory_ActiveSiphonIsLatestConnected(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "42", "a", "b")
	ctx := context.Background()

	_, err := r.ToggleSiphon(ctx, "a", t0)
	require.NoError(t, err)
	_, err = r.ToggleSiphon(ctx, "b", t0.Add(time.Minute))
	require.NoError(t, err)

	active, err := r.GetActiveSiphon(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "b", active.ID)

	_, err = r.GetActiveSiphon(ctx, "7")
	assert.ErrorIs(t, err, model.ErrNoActiveSiphon)
}

func TestMemory_ConsumeRollsBackOnError(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "42", "a")
	ctx := context.Background()
	_, err := r.ActivateSiphon(ctx, "42", "a", t0)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, _, err = r.ConsumeActive(ctx, "42", t0, func(acc model.Account, s model.Siphon) (model.Siphon, model.UsageEvent, error) {
		s.Remaining = 1
		return s, model.UsageEvent{}, boom
	})
	assert.ErrorIs(t, err, boom)

	s, err := r.GetSiphon(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 60.0, s.Remaining)

	samples, err := r.ListUsage(ctx, "42", "a")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestMemory_MarkAlertSentOnce(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "42")
	ctx := context.Background()
	require.NoError(t, r.CreateSiphon(ctx, model.Siphon{
		ID: "a", OwnerID: "42", Alias: "a", Capacity: 60, Remaining: 17.4,
		Status: model.SiphonStatusInUse, CreatedAt: t0,
	}))

	ok, err := r.MarkAlertSent(ctx, "a", 30)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.MarkAlertSent(ctx, "a", 30)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.MarkAlertSent(ctx, "a", 15)
	require.NoError(t, err)
	assert.False(t, ok, "29% is above the 15% level")

	s, err := r.RechargeSiphon(ctx, "a", 60)
	require.NoError(t, err)
	assert.Empty(t, s.AlertsSent)

	ok, err = r.MarkAlertSent(ctx, "a", 30)
	require.NoError(t, err)
	assert.False(t, ok, "full siphon must not be claimed")

	s, err = r.GetSiphon(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, s.AlertsSent)
}

func TestMemory_ListAccountsSorted(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "b")
	seed(t, r, "a")

	accs, err := r.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accs, 2)
	assert.Equal(t, "a", accs[0].ID)
	assert.Equal(t, "b", accs[1].ID)
}
