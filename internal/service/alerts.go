package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/sodatrack/internal/metrics"
	"github.com/mmeshcher/sodatrack/internal/model"
)

// AlertService отправляет уведомления о пересечении порогов остатка газа.
type AlertService struct {
	repo      Repository
	notifier  Notifier
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options
}

// NewAlertService создаёт сервис уведомлений.
func NewAlertService(repo Repository, notifier Notifier, publisher Publisher, m *metrics.Metrics, logger *zap.Logger, opts Options) *AlertService {
	return &AlertService{repo: repo, notifier: notifier, publisher: publisher, metrics: m, logger: logger, opts: opts}
}

// Evaluate проверяет пороги для баллона и возвращает уровни, уведомления по которым отправлены сейчас.
// Уровень сначала атомарно отмечается в хранилище и только затем отправляется,
// поэтому по каждому уровню в пределах одной заправки уходит не больше одного уведомления.
func (s *AlertService) Evaluate(ctx context.Context, ownerID, siphonID string) ([]model.AlertLevel, error) {
	siphon, err := s.repo.GetSiphon(ctx, siphonID)
	if err != nil {
		return nil, err
	}
	if siphon.OwnerID != ownerID {
		return nil, fmt.Errorf("siphon %s: %w", siphonID, model.ErrOwnership)
	}

	pct, ok := siphon.Percentage()
	if !ok || siphon.Status == model.SiphonStatusFull {
		return nil, nil
	}

	var (
		fired []model.AlertLevel
		errs  []error
	)
	for _, level := range s.opts.AlertLevels {
		if pct > float64(level) || siphon.AlertsSent.Has(level) {
			continue
		}

		claimed, err := s.repo.MarkAlertSent(ctx, siphonID, level)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !claimed {
			continue
		}
		fired = append(fired, level)
		s.metrics.IncAlert(int(level))

		if err := s.notifier.Notify(ctx, ownerID, alertText(siphon.Alias, level)); err != nil {
			s.metrics.IncNotifyFailure()
			errs = append(errs, fmt.Errorf("notify level %d: %w", level, err))
		}

		event := model.AlertFired{
			OwnerID:    ownerID,
			SiphonID:   siphonID,
			Alias:      siphon.Alias,
			Level:      level,
			Percentage: pct,
			At:         s.opts.Now(),
		}
		if err := s.publisher.PublishAlert(ctx, event); err != nil {
			s.logger.Warn("publish alert event error", zap.Error(err), zap.String("siphon", siphonID))
		}

		s.logger.Info("alert fired",
			zap.String("owner", ownerID), zap.String("siphon", siphonID), zap.Int("level", int(level)))
	}

	return fired, errors.Join(errs...)
}

// OnRecharge отправляет подтверждение заправки. Отметки отправленных уровней не изменяются.
func (s *AlertService) OnRecharge(ctx context.Context, ownerID, siphonID string) error {
	siphon, err := s.repo.GetSiphon(ctx, siphonID)
	if err != nil {
		return err
	}
	if err := s.notifier.Notify(ctx, ownerID, rechargeText(siphon.Alias)); err != nil {
		s.metrics.IncNotifyFailure()
		return fmt.Errorf("notify recharge: %w", err)
	}
	return nil
}
