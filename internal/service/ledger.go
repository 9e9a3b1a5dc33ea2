package service

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/mmeshcher/sodatrack/internal/model"
)

// LedgerService ведёт журнал расхода газа.
type LedgerService struct {
	repo Repository
	opts Options
}

// NewLedgerService создаёт сервис журнала.
func NewLedgerService(repo Repository, opts Options) *LedgerService {
	return &LedgerService{repo: repo, opts: opts}
}

// Append сохраняет запись журнала и обновляет время последней активности владельца.
func (l *LedgerService) Append(ctx context.Context, e model.UsageEvent) (*model.UsageEvent, error) {
	switch {
	case e.SiphonID == "" || e.OwnerID == "":
		return nil, fmt.Errorf("%w: usage event requires siphon and owner", model.ErrValidation)
	case e.Shots < 0 || e.GasUsed < 0 || e.RemainingAfter < 0 || e.PercentageAfter < 0:
		return nil, fmt.Errorf("%w: usage event values must not be negative", model.ErrValidation)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.opts.Now()
	}
	return l.repo.AppendUsage(ctx, e)
}

// Query возвращает ряд остатка газа по баллону в порядке возрастания времени.
func (l *LedgerService) Query(ctx context.Context, ownerID, siphonID string) ([]model.Sample, error) {
	samples, err := l.repo.ListUsage(ctx, ownerID, siphonID)
	if err != nil {
		return nil, err
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	return samples, nil
}

// Series возвращает ряд в виде последовательности, которую можно обходить повторно.
func (l *LedgerService) Series(ctx context.Context, ownerID, siphonID string) (iter.Seq[model.Sample], error) {
	samples, err := l.Query(ctx, ownerID, siphonID)
	if err != nil {
		return nil, err
	}
	return slices.Values(samples), nil
}
