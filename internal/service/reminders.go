package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/sodatrack/internal/forecast"
	"github.com/mmeshcher/sodatrack/internal/metrics"
	"github.com/mmeshcher/sodatrack/internal/model"
)

// ReminderService выполняет плановые рассылки: напоминания о неактивности и еженедельные отчёты.
type ReminderService struct {
	repo     Repository
	ledger   *LedgerService
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options
}

// NewReminderService создаёт сервис плановых рассылок.
func NewReminderService(repo Repository, ledger *LedgerService, notifier Notifier, m *metrics.Metrics, logger *zap.Logger, opts Options) *ReminderService {
	return &ReminderService{repo: repo, ledger: ledger, notifier: notifier, metrics: m, logger: logger, opts: opts}
}

// SweepInactivityReminders напоминает владельцам, которые не регистрировали расход дольше порога.
// Возвращает отсортированный список аккаунтов, получивших напоминание.
func (r *ReminderService) SweepInactivityReminders(ctx context.Context, now time.Time) ([]string, error) {
	return r.sweep(ctx, "reminders", func(ctx context.Context, acc model.Account) (bool, error) {
		if acc.LastActivityAt != nil && now.Sub(*acc.LastActivityAt) <= r.opts.InactivityThreshold {
			return false, nil
		}
		if err := r.notifier.Notify(ctx, acc.ID, reminderText); err != nil {
			r.metrics.IncNotifyFailure()
			return false, err
		}
		return true, nil
	})
}

// SweepWeeklyReports отправляет каждому владельцу отчёт по его баллонам с прогнозом исчерпания.
func (r *ReminderService) SweepWeeklyReports(ctx context.Context, _ time.Time) ([]string, error) {
	return r.sweep(ctx, "reports", func(ctx context.Context, acc model.Account) (bool, error) {
		text, err := r.Report(ctx, acc.ID)
		if err != nil {
			return false, err
		}
		if err := r.notifier.Notify(ctx, acc.ID, text); err != nil {
			r.metrics.IncNotifyFailure()
			return false, err
		}
		return true, nil
	})
}

// Report формирует текст отчёта по баллонам владельца.
func (r *ReminderService) Report(ctx context.Context, ownerID string) (string, error) {
	siphons, err := r.repo.ListSiphons(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if len(siphons) == 0 {
		return noSiphonText, nil
	}

	lines := make([]string, 0, len(siphons))
	for _, s := range siphons {
		series, err := r.ledger.Series(ctx, ownerID, s.ID)
		if err != nil {
			return "", err
		}
		fc, fcErr := forecast.Predict(series)
		if fcErr != nil && !errors.Is(fcErr, model.ErrInsufficientData) {
			r.logger.Warn("forecast error", zap.Error(fcErr), zap.String("siphon", s.ID))
		}
		lines = append(lines, reportLine(s, fc, fcErr))
	}
	return reportText(lines), nil
}

// sweep обходит все аккаунты с ограниченным параллелизмом. Ошибка по одному аккаунту
// не прерывает обработку остальных и возвращается в объединённой ошибке.
func (r *ReminderService) sweep(ctx context.Context, job string, fn func(context.Context, model.Account) (bool, error)) ([]string, error) {
	accounts, err := r.repo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: list accounts: %w", job, err)
	}

	var (
		mu   sync.Mutex
		done []string
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.SweepParallelism)

	for _, acc := range accounts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := fn(gctx, acc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Error("sweep account error",
					zap.String("job", job), zap.String("account", acc.ID), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: account %s: %w", job, acc.ID, err))
				return nil
			}
			if ok {
				done = append(done, acc.ID)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	slices.Sort(done)
	r.logger.Info("sweep finished", zap.String("job", job), zap.Int("accounts", len(accounts)), zap.Int("delivered", len(done)))
	return done, errors.Join(errs...)
}
