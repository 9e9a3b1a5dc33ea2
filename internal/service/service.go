// Package service реализует бизнес-логику учёта газа в баллонах и уведомлений.
package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/sodatrack/internal/metrics"
	"github.com/mmeshcher/sodatrack/internal/model"
	"github.com/mmeshcher/sodatrack/internal/repository"
	"github.com/mmeshcher/sodatrack/internal/session"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	EnsureAccount(ctx context.Context, id string, now time.Time) (*model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	SetDispenserKind(ctx context.Context, id string, kind model.DispenserKind, now time.Time) error
	CreateSiphon(ctx context.Context, s model.Siphon) error
	GetSiphon(ctx context.Context, id string) (*model.Siphon, error)
	ListSiphons(ctx context.Context, ownerID string) ([]model.Siphon, error)
	GetActiveSiphon(ctx context.Context, ownerID string) (*model.Siphon, error)
	ActivateSiphon(ctx context.Context, ownerID, siphonID string, now time.Time) (*model.Siphon, error)
	ToggleSiphon(ctx context.Context, siphonID string, now time.Time) (*model.Siphon, error)
	ConsumeActive(ctx context.Context, ownerID string, now time.Time, fn repository.ConsumeFunc) (*model.Siphon, *model.UsageEvent, error)
	RechargeSiphon(ctx context.Context, siphonID string, servings int) (*model.Siphon, error)
	MarkAlertSent(ctx context.Context, siphonID string, level model.AlertLevel) (bool, error)
	AppendUsage(ctx context.Context, e model.UsageEvent) (*model.UsageEvent, error)
	ListUsage(ctx context.Context, ownerID, siphonID string) ([]model.Sample, error)
}

// Notifier доставляет текстовое уведомление владельцу аккаунта.
type Notifier interface {
	Notify(ctx context.Context, accountID, text string) error
}

// Publisher публикует доменные события для внешних подписчиков.
type Publisher interface {
	PublishUsage(ctx context.Context, e model.UsageEvent) error
	PublishAlert(ctx context.Context, a model.AlertFired) error
}

// Options задаёт параметры бизнес-логики.
type Options struct {
	Capacity            float64
	Profiles            model.DispenserProfiles
	AlertLevels         []model.AlertLevel
	InactivityThreshold time.Duration
	SweepParallelism    int
	PromptStore         session.Store
	PromptTTL           time.Duration
	Now                 func() time.Time
}

// DefaultOptions возвращает эталонную конфигурацию.
func DefaultOptions() Options {
	return Options{
		Capacity:            60,
		Profiles:            model.DefaultDispenserProfiles(),
		AlertLevels:         model.DefaultAlertLevels,
		InactivityThreshold: 3 * 24 * time.Hour,
		SweepParallelism:    4,
		Now:                 time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Capacity <= 0 {
		o.Capacity = d.Capacity
	}
	if len(o.Profiles) == 0 {
		o.Profiles = d.Profiles
	}
	if len(o.AlertLevels) == 0 {
		o.AlertLevels = d.AlertLevels
	}
	o.AlertLevels = slices.Clone(o.AlertLevels)
	slices.SortFunc(o.AlertLevels, func(a, b model.AlertLevel) int { return cmp.Compare(b, a) })
	if o.InactivityThreshold <= 0 {
		o.InactivityThreshold = d.InactivityThreshold
	}
	if o.SweepParallelism <= 0 {
		o.SweepParallelism = d.SweepParallelism
	}
	if o.PromptStore == nil {
		o.PromptStore = session.NewMemoryStore()
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

type nopPublisher struct{}

func (nopPublisher) PublishUsage(context.Context, model.UsageEvent) error { return nil }
func (nopPublisher) PublishAlert(context.Context, model.AlertFired) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) error { return nil }

// Service объединяет компоненты и выполняет составные сценарии для транспортного слоя.
type Service struct {
	Siphons   *SiphonService
	Alerts    *AlertService
	Ledger    *LedgerService
	Reminders *ReminderService

	repo    Repository
	prompts *session.Manager
	logger  *zap.Logger
}

// NewService создаёт сервис с указанными зависимостями. notifier, publisher и m могут быть nil.
func NewService(repo Repository, notifier Notifier, publisher Publisher, m *metrics.Metrics, logger *zap.Logger, opts Options) *Service {
	opts = opts.withDefaults()
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ledger := NewLedgerService(repo, opts)
	return &Service{
		Siphons:   NewSiphonService(repo, publisher, m, logger, opts),
		Alerts:    NewAlertService(repo, notifier, publisher, m, logger, opts),
		Ledger:    ledger,
		Reminders: NewReminderService(repo, ledger, notifier, m, logger, opts),
		repo:      repo,
		prompts:   session.NewManager(opts.PromptStore, opts.PromptTTL),
		logger:    logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// UsageResult - результат регистрации расхода вместе с отправленными уведомлениями.
type UsageResult struct {
	Outcome  *model.UsageOutcome
	Alerts   []model.AlertLevel
	AlertErr error
}

// RegisterUsage списывает газ с активного баллона и проверяет пороги уведомлений.
// Ошибка проверки порогов не отменяет уже сохранённый расход и возвращается в AlertErr.
func (s *Service) RegisterUsage(ctx context.Context, ownerID string, shots int) (*UsageResult, error) {
	outcome, err := s.Siphons.Consume(ctx, ownerID, shots)
	if err != nil {
		return nil, err
	}

	fired, alertErr := s.Alerts.Evaluate(ctx, ownerID, outcome.SiphonID)
	if alertErr != nil {
		s.logger.Error("evaluate alerts error",
			zap.Error(alertErr), zap.String("owner", ownerID), zap.String("siphon", outcome.SiphonID))
	}

	return &UsageResult{Outcome: outcome, Alerts: fired, AlertErr: alertErr}, nil
}

// RechargeSiphon заправляет баллон владельца и отправляет подтверждение.
func (s *Service) RechargeSiphon(ctx context.Context, ownerID, siphonID string) (*model.Siphon, error) {
	if err := s.checkOwner(ctx, ownerID, siphonID); err != nil {
		return nil, err
	}

	siphon, err := s.Siphons.Recharge(ctx, siphonID)
	if err != nil {
		return nil, err
	}

	if err := s.Alerts.OnRecharge(ctx, ownerID, siphonID); err != nil {
		s.logger.Warn("recharge confirmation not delivered",
			zap.Error(err), zap.String("owner", ownerID), zap.String("siphon", siphonID))
	}
	return siphon, nil
}

// EnsureAccount создаёт аккаунт владельца при первом обращении.
func (s *Service) EnsureAccount(ctx context.Context, ownerID string) (*model.Account, error) {
	return s.Siphons.EnsureAccount(ctx, ownerID)
}

// SetDispenserKind сохраняет тип сифона владельца.
func (s *Service) SetDispenserKind(ctx context.Context, ownerID, kind string) (model.DispenserKind, error) {
	return s.Siphons.SetDispenserKind(ctx, ownerID, kind)
}

// ProvisionSiphon регистрирует новый баллон владельца.
func (s *Service) ProvisionSiphon(ctx context.Context, ownerID, alias string) (*model.Siphon, error) {
	return s.Siphons.Provision(ctx, ownerID, alias)
}

// ListSiphons возвращает баллоны владельца.
func (s *Service) ListSiphons(ctx context.Context, ownerID string) ([]model.Siphon, error) {
	return s.Siphons.List(ctx, ownerID)
}

// SiphonStatus возвращает активный баллон и описание его состояния.
func (s *Service) SiphonStatus(ctx context.Context, ownerID string) (*model.Siphon, string, error) {
	return s.Siphons.Status(ctx, ownerID)
}

// ActivateSiphon делает баллон единственным активным у владельца.
func (s *Service) ActivateSiphon(ctx context.Context, ownerID, siphonID string) (*model.Siphon, error) {
	return s.Siphons.Activate(ctx, ownerID, siphonID)
}

// ToggleSiphon переключает активность баллона владельца.
func (s *Service) ToggleSiphon(ctx context.Context, ownerID, siphonID string) (*model.Siphon, error) {
	if err := s.checkOwner(ctx, ownerID, siphonID); err != nil {
		return nil, err
	}
	return s.Siphons.ToggleActive(ctx, siphonID)
}

func (s *Service) checkOwner(ctx context.Context, ownerID, siphonID string) error {
	siphon, err := s.repo.GetSiphon(ctx, siphonID)
	if err != nil {
		return err
	}
	if siphon.OwnerID != ownerID {
		return fmt.Errorf("siphon %s: %w", siphonID, model.ErrOwnership)
	}
	return nil
}
