package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/sodatrack/internal/model"
	"github.com/mmeshcher/sodatrack/internal/session"
)

func TestPrompts_UsageFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.activeSiphon(t, "42", 60, 60)

	p, err := f.svc.BeginPrompt(ctx, "42", "usage")
	require.NoError(t, err)
	assert.Equal(t, session.UsageOptions(), p.Options)

	res, err := f.svc.ResolvePrompt(ctx, "42", "4")
	require.NoError(t, err)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 59.0, res.Usage.Remaining)

	_, err = f.svc.ResolvePrompt(ctx, "42", "4")
	assert.ErrorIs(t, err, session.ErrNoPending)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPrompts_ActivateOffersOwnSiphons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	x, err := f.svc.ProvisionSiphon(ctx, "42", "x")
	require.NoError(t, err)
	_, err = f.svc.ProvisionSiphon(ctx, "7", "foreign")
	require.NoError(t, err)

	p, err := f.svc.BeginPrompt(ctx, "42", "activate")
	require.NoError(t, err)
	assert.Equal(t, []string{x.ID}, p.Options)

	res, err := f.svc.ResolvePrompt(ctx, "42", x.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Siphon)
	assert.True(t, res.Siphon.Active)
}

func TestPrompts_DispenserAndUnknownChoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BeginPrompt(ctx, "42", "dispenser")
	require.NoError(t, err)
	_, err = f.svc.ResolvePrompt(ctx, "42", "steam")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.BeginPrompt(ctx, "42", "dispenser")
	require.NoError(t, err)
	res, err := f.svc.ResolvePrompt(ctx, "42", "electric")
	require.NoError(t, err)
	assert.Equal(t, model.DispenserElectric, res.Dispenser)
}

func TestPrompts_BeginErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BeginPrompt(ctx, "42", "explode")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.BeginPrompt(ctx, "42", "recharge")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
