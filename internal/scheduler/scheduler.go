// Package scheduler запускает плановые рассылки по расписанию cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/sodatrack/internal/metrics"
)

const (
	// JobReminders - имя задачи напоминаний о неактивности.
	JobReminders = "reminders"
	// JobReports - имя задачи еженедельных отчётов.
	JobReports = "reports"
)

// Sweeper выполняет плановые рассылки.
type Sweeper interface {
	SweepInactivityReminders(ctx context.Context, now time.Time) ([]string, error)
	SweepWeeklyReports(ctx context.Context, now time.Time) ([]string, error)
}

// Locker не даёт нескольким репликам выполнять одну задачу одновременно.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Options задаёт расписание и ограничение времени выполнения задач.
type Options struct {
	ReminderSchedule string
	ReportSchedule   string
	Timeout          time.Duration
}

type job struct {
	name string
	run  func(ctx context.Context, now time.Time) ([]string, error)
}

// Scheduler запускает задачи рассылок по расписанию.
type Scheduler struct {
	cron    *cron.Cron
	// jobsCtx отменяется при остановке, прерывая выполняющиеся задачи.
	jobsCtx context.Context
	cancel  context.CancelFunc
	locker  Locker
	metrics *metrics.Metrics
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// New создаёт планировщик. locker и m могут быть nil.
func New(sweeper Sweeper, opts Options, locker Locker, m *metrics.Metrics, logger *zap.Logger) (*Scheduler, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	jobsCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(),
		jobsCtx: jobsCtx,
		cancel:  cancel,
		locker:  locker,
		metrics: m,
		logger:  logger,
		timeout: opts.Timeout,
		now:     time.Now,
	}

	jobs := []struct {
		spec string
		job  job
	}{
		{opts.ReminderSchedule, job{name: JobReminders, run: sweeper.SweepInactivityReminders}},
		{opts.ReportSchedule, job{name: JobReports, run: sweeper.SweepWeeklyReports}},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, func() { s.runJob(s.jobsCtx, j.job) }); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s %q: %w", j.job.name, j.spec, err)
		}
	}
	return s, nil
}

// Run запускает планировщик и блокируется до отмены ctx.
// После отмены прерывает выполняющиеся задачи и дожидается их завершения.
// Прерванная рассылка повторится при следующем запуске по расписанию.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))

	<-ctx.Done()

	s.cancel()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// runJob выполняет задачу с ограничением по времени. Ошибки только логируются.
func (s *Scheduler) runJob(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, j.name, s.timeout)
		if err != nil {
			s.logger.Error("acquire sweep lock error", zap.String("job", j.name), zap.Error(err))
			return
		}
		if !ok {
			s.logger.Info("sweep is running on another replica", zap.String("job", j.name))
			return
		}
		defer func() {
			if err := s.locker.Release(context.Background(), j.name, token); err != nil {
				s.logger.Warn("release sweep lock error", zap.String("job", j.name), zap.Error(err))
			}
		}()
	}

	start := s.now()
	accounts, err := j.run(ctx, start)
	elapsed := s.now().Sub(start)
	s.metrics.ObserveSweep(j.name, elapsed, err)

	if err != nil {
		level := zap.ErrorLevel
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			level = zap.WarnLevel
		}
		s.logger.Log(level, "sweep finished with errors",
			zap.String("job", j.name), zap.Int("delivered", len(accounts)), zap.Error(err))
		return
	}
	s.logger.Info("sweep done",
		zap.String("job", j.name), zap.Int("delivered", len(accounts)), zap.Duration("elapsed", elapsed))
}
