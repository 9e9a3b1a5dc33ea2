package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/sodatrack/internal/metrics"
	"github.com/mmeshcher/sodatrack/internal/model"
	"github.com/mmeshcher/sodatrack/internal/validation"
)

// SiphonService управляет жизненным циклом баллонов: создание, подключение, расход и заправка.
type SiphonService struct {
	repo      Repository
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options
}

// NewSiphonService создаёт сервис баллонов.
func NewSiphonService(repo Repository, publisher Publisher, m *metrics.Metrics, logger *zap.Logger, opts Options) *SiphonService {
	return &SiphonService{repo: repo, publisher: publisher, metrics: m, logger: logger, opts: opts}
}

func checkOwnerID(ownerID string) error {
	if !validation.IsValidOwnerID(ownerID) {
		return fmt.Errorf("%w: invalid owner id", model.ErrValidation)
	}
	return nil
}

// EnsureAccount создаёт аккаунт при первом обращении.
func (s *SiphonService) EnsureAccount(ctx context.Context, ownerID string) (*model.Account, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return nil, err
	}
	return s.repo.EnsureAccount(ctx, ownerID, s.opts.Now())
}

// SetDispenserKind сохраняет тип сифона владельца.
func (s *SiphonService) SetDispenserKind(ctx context.Context, ownerID, kind string) (model.DispenserKind, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return model.DispenserUnset, err
	}
	k, err := model.ParseDispenserKind(kind)
	if err != nil {
		return model.DispenserUnset, err
	}
	if err := s.repo.SetDispenserKind(ctx, ownerID, k, s.opts.Now()); err != nil {
		return model.DispenserUnset, err
	}
	return k, nil
}

// Provision регистрирует новый полный неактивный баллон.
func (s *SiphonService) Provision(ctx context.Context, ownerID, alias string) (*model.Siphon, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return nil, err
	}
	alias, ok := validation.NormalizeAlias(alias)
	if !ok {
		return nil, fmt.Errorf("%w: alias must be 1..%d characters", model.ErrValidation, validation.MaxAliasLength)
	}

	now := s.opts.Now()
	acc, err := s.repo.EnsureAccount(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}

	siphon := model.Siphon{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		Alias:             alias,
		Capacity:          s.opts.Capacity,
		Remaining:         s.opts.Capacity,
		EstimatedServings: model.EstimateServings(s.opts.Capacity, s.opts.Profiles.For(acc.DispenserKind)),
		Status:            model.SiphonStatusFull,
		AlertsSent:        model.NewAlertSet(),
		CreatedAt:         now,
	}
	if err := s.repo.CreateSiphon(ctx, siphon); err != nil {
		return nil, err
	}

	s.logger.Info("siphon provisioned", zap.String("owner", ownerID), zap.String("siphon", siphon.ID))
	return &siphon, nil
}

// Activate делает баллон единственным активным у владельца.
func (s *SiphonService) Activate(ctx context.Context, ownerID, siphonID string) (*model.Siphon, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return nil, err
	}
	return s.repo.ActivateSiphon(ctx, ownerID, siphonID, s.opts.Now())
}

// Consume списывает газ за shots нажатий с активного баллона владельца.
// Остаток не опускается ниже нуля, перерасход отмечается в результате.
func (s *SiphonService) Consume(ctx context.Context, ownerID string, shots int) (*model.UsageOutcome, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return nil, err
	}
	if !validation.IsValidShots(shots) {
		return nil, fmt.Errorf("%w: shots must be in 1..%d", model.ErrValidation, validation.MaxShots)
	}

	now := s.opts.Now()
	var (
		gasUsed   float64
		overdrawn bool
		kind      model.DispenserKind
	)

	siphon, event, err := s.repo.ConsumeActive(ctx, ownerID, now,
		func(acc model.Account, cur model.Siphon) (model.Siphon, model.UsageEvent, error) {
			kind = acc.DispenserKind
			profile := s.opts.Profiles.For(kind)

			gasUsed = float64(shots) * profile.GasPerAction
			overdrawn = gasUsed > cur.Remaining
			cur.Remaining = math.Max(0, cur.Remaining-gasUsed)
			cur.EstimatedServings = model.EstimateServings(cur.Remaining, profile)
			cur.Status = model.SiphonStatusInUse
			if cur.Remaining == 0 {
				cur.Status = model.SiphonStatusEmpty
			}

			pct, _ := cur.Percentage()
			return cur, model.UsageEvent{
				SiphonID:        cur.ID,
				OwnerID:         ownerID,
				Shots:           shots,
				GasUsed:         gasUsed,
				RemainingAfter:  cur.Remaining,
				PercentageAfter: pct,
				CreatedAt:       now,
			}, nil
		})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveUsage(string(kind), gasUsed)
	if err := s.publisher.PublishUsage(ctx, *event); err != nil {
		s.logger.Warn("publish usage event error", zap.Error(err), zap.String("siphon", siphon.ID))
	}
	if overdrawn {
		s.logger.Info("siphon overdrawn", zap.String("owner", ownerID), zap.String("siphon", siphon.ID))
	}

	pct, _ := siphon.Percentage()
	return &model.UsageOutcome{
		SiphonID:          siphon.ID,
		Alias:             siphon.Alias,
		Shots:             shots,
		GasUsed:           gasUsed,
		Remaining:         siphon.Remaining,
		Percentage:        pct,
		EstimatedServings: siphon.EstimatedServings,
		Status:            siphon.Status,
		Overdrawn:         overdrawn,
	}, nil
}

// Recharge восстанавливает полный объём баллона и сбрасывает отправленные уведомления.
func (s *SiphonService) Recharge(ctx context.Context, siphonID string) (*model.Siphon, error) {
	siphon, err := s.repo.GetSiphon(ctx, siphonID)
	if err != nil {
		return nil, err
	}

	var kind model.DispenserKind
	acc, err := s.repo.GetAccount(ctx, siphon.OwnerID)
	switch {
	case err == nil:
		kind = acc.DispenserKind
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}
	servings := model.EstimateServings(siphon.Capacity, s.opts.Profiles.For(kind))

	return s.repo.RechargeSiphon(ctx, siphonID, servings)
}

// ToggleActive переключает активность баллона, не затрагивая остальные баллоны владельца.
func (s *SiphonService) ToggleActive(ctx context.Context, siphonID string) (*model.Siphon, error) {
	return s.repo.ToggleSiphon(ctx, siphonID, s.opts.Now())
}

// List возвращает баллоны владельца.
func (s *SiphonService) List(ctx context.Context, ownerID string) ([]model.Siphon, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return nil, err
	}
	siphons, err := s.repo.ListSiphons(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if siphons == nil {
		siphons = []model.Siphon{}
	}
	return siphons, nil
}

// Status возвращает активный баллон и текстовое описание его состояния.
func (s *SiphonService) Status(ctx context.Context, ownerID string) (*model.Siphon, string, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return nil, "", err
	}
	siphon, err := s.repo.GetActiveSiphon(ctx, ownerID)
	if err != nil {
		return nil, "", err
	}
	return siphon, statusText(*siphon), nil
}
