// Package main запускает HTTP-сервер и планировщик сервиса учёта баллонов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/sodatrack/internal/config"
	"github.com/mmeshcher/sodatrack/internal/events"
	"github.com/mmeshcher/sodatrack/internal/handler"
	"github.com/mmeshcher/sodatrack/internal/lock"
	"github.com/mmeshcher/sodatrack/internal/metrics"
	"github.com/mmeshcher/sodatrack/internal/middleware"
	"github.com/mmeshcher/sodatrack/internal/notify"
	"github.com/mmeshcher/sodatrack/internal/repository"
	"github.com/mmeshcher/sodatrack/internal/scheduler"
	"github.com/mmeshcher/sodatrack/internal/service"
	"github.com/mmeshcher/sodatrack/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = repository.NewMemoryRepository()
	}

	opts := service.DefaultOptions()
	opts.Capacity = cfg.SiphonCapacity
	opts.InactivityThreshold = cfg.InactivityThreshold
	opts.SweepParallelism = cfg.SweepParallelism
	opts.PromptTTL = cfg.PromptTTL

	var locker scheduler.Locker
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}

		opts.PromptStore = session.NewRedisStore(rdb, "sodatrack:prompt:")
		locker = lock.NewLocker(rdb, "sodatrack:lock:")
	}

	var publisher service.Publisher = events.Nop{}
	nc, err := events.Connect(cfg.NATSURL)
	if err != nil {
		sugar.Fatalw("nats initialization error", "error", err.Error())
	}
	if nc != nil {
		defer nc.Drain()
		publisher = events.NewBus(nc)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	svc := service.NewService(repo, newNotifier(cfg, logger), publisher, m, logger, opts)
	defer svc.Close()

	sched, err := scheduler.New(svc.Reminders, scheduler.Options{
		ReminderSchedule: cfg.ReminderSchedule,
		ReportSchedule:   cfg.ReportSchedule,
		Timeout:          cfg.SweepTimeout,
	}, locker, m, logger)
	if err != nil {
		sugar.Fatalw("scheduler initialization error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.APISecret)
	h := handler.NewHandler(svc, logger, authMiddleware, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Плановые рассылки напоминаний и отчётов
	g.Go(func() error {
		return sched.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting sodatrack server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// newNotifier собирает каналы доставки из конфигурации. Без внешних каналов уведомления пишутся в журнал.
func newNotifier(cfg *config.Config, logger *zap.Logger) service.Notifier {
	var senders notify.Multi
	if cfg.TelegramBotToken != "" {
		senders = append(senders, notify.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramBotToken))
	}
	if cfg.NotifyWebhookURL != "" {
		senders = append(senders, notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret))
	}
	if len(senders) == 0 {
		return notify.NewLog(logger)
	}
	return senders
}
