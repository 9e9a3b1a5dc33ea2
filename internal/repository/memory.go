package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mmeshcher/sodatrack/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Все операции сериализуются одним мьютексом.
// Используется, когда адрес БД не задан, и в тестах.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	siphons  map[string]*model.Siphon
	usage    []model.UsageEvent
	nextID   int64
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]*model.Account),
		siphons:  make(map[string]*model.Siphon),
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

func copyAccount(a *model.Account) *model.Account {
	c := *a
	if a.LastActivityAt != nil {
		t := *a.LastActivityAt
		c.LastActivityAt = &t
	}
	return &c
}

func copySiphon(s *model.Siphon) *model.Siphon {
	c := *s
	if s.ConnectedAt != nil {
		t := *s.ConnectedAt
		c.ConnectedAt = &t
	}
	c.AlertsSent = s.AlertsSent.Clone()
	return &c
}

func (r *MemoryRepository) ensureAccount(id string, now time.Time) *model.Account {
	acc, ok := r.accounts[id]
	if !ok {
		acc = &model.Account{ID: id, CreatedAt: now}
		r.accounts[id] = acc
	}
	return acc
}

// EnsureAccount создаёт аккаунт при первом обращении и возвращает его.
func (r *MemoryRepository) EnsureAccount(_ context.Context, id string, now time.Time) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return copyAccount(r.ensureAccount(id, now)), nil
}

// GetAccount возвращает аккаунт по идентификатору.
func (r *MemoryRepository) GetAccount(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(acc), nil
}

// ListAccounts возвращает все аккаунты, упорядоченные по идентификатору.
func (r *MemoryRepository) ListAccounts(_ context.Context) ([]model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		res = append(res, *copyAccount(acc))
	}
	slices.SortFunc(res, func(a, b model.Account) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

// SetDispenserKind сохраняет тип сифона, создавая аккаунт при необходимости.
func (r *MemoryRepository) SetDispenserKind(_ context.Context, id string, kind model.DispenserKind, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureAccount(id, now).DispenserKind = kind
	return nil
}

// SetLastActivity выставляет время последней активности. Нужен для подготовки данных.
func (r *MemoryRepository) SetLastActivity(id string, at *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc := r.ensureAccount(id, time.Now())
	acc.LastActivityAt = at
}

// CreateSiphon сохраняет новый баллон.
func (r *MemoryRepository) CreateSiphon(_ context.Context, s model.Siphon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[s.OwnerID]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, s.OwnerID)
	}
	if s.AlertsSent == nil {
		s.AlertsSent = model.NewAlertSet()
	}
	r.siphons[s.ID] = copySiphon(&s)
	return nil
}

// GetSiphon возвращает баллон по идентификатору.
func (r *MemoryRepository) GetSiphon(_ context.Context, id string) (*model.Siphon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.siphons[id]
	if !ok {
		return nil, ErrSiphonNotFound
	}
	return copySiphon(s), nil
}

func (r *MemoryRepository) ownedBy(ownerID string) []*model.Siphon {
	var res []*model.Siphon
	for _, s := range r.siphons {
		if s.OwnerID == ownerID {
			res = append(res, s)
		}
	}
	slices.SortFunc(res, func(a, b *model.Siphon) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return res
}

// ListSiphons возвращает баллоны владельца в порядке создания.
func (r *MemoryRepository) ListSiphons(_ context.Context, ownerID string) ([]model.Siphon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Siphon
	for _, s := range r.ownedBy(ownerID) {
		res = append(res, *copySiphon(s))
	}
	return res, nil
}

func (r *MemoryRepository) activeSiphon(ownerID string) *model.Siphon {
	var best *model.Siphon
	for _, s := range r.ownedBy(ownerID) {
		if !s.Active {
			continue
		}
		if best == nil || connectedAfter(s, best) {
			best = s
		}
	}
	return best
}

func connectedAfter(a, b *model.Siphon) bool {
	switch {
	case a.ConnectedAt == nil:
		return false
	case b.ConnectedAt == nil:
		return true
	default:
		return !a.ConnectedAt.Before(*b.ConnectedAt)
	}
}

// GetActiveSiphon возвращает активный баллон владельца.
func (r *MemoryRepository) GetActiveSiphon(_ context.Context, ownerID string) (*model.Siphon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.activeSiphon(ownerID)
	if s == nil {
		return nil, ErrNoActiveSiphon
	}
	return copySiphon(s), nil
}

// ActivateSiphon делает баллон единственным активным у владельца.
func (r *MemoryRepository) ActivateSiphon(_ context.Context, ownerID, siphonID string, now time.Time) (*model.Siphon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.siphons[siphonID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSiphonNotFound, siphonID)
	}
	if target.OwnerID != ownerID {
		return nil, ErrSiphonOwnedByAnother
	}

	for _, s := range r.ownedBy(ownerID) {
		if s.ID != siphonID {
			s.Active = false
		}
	}
	target.Active = true
	t := now
	target.ConnectedAt = &t
	return copySiphon(target), nil
}

// ToggleSiphon переключает признак активности баллона.
func (r *MemoryRepository) ToggleSiphon(_ context.Context, siphonID string, now time.Time) (*model.Siphon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.siphons[siphonID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSiphonNotFound, siphonID)
	}
	s.Active = !s.Active
	if s.Active {
		t := now
		s.ConnectedAt = &t
	}
	return copySiphon(s), nil
}

// ConsumeActive списывает газ с активного баллона владельца.
func (r *MemoryRepository) ConsumeActive(_ context.Context, ownerID string, _ time.Time, fn ConsumeFunc) (*model.Siphon, *model.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[ownerID]
	if !ok {
		return nil, nil, ErrNoActiveSiphon
	}
	current := r.activeSiphon(ownerID)
	if current == nil {
		return nil, nil, ErrNoActiveSiphon
	}

	next, event, err := fn(*copyAccount(acc), *copySiphon(current))
	if err != nil {
		return nil, nil, err
	}

	current.Remaining = next.Remaining
	current.EstimatedServings = next.EstimatedServings
	current.Status = next.Status

	r.appendUsage(&event)
	return copySiphon(current), &event, nil
}

func (r *MemoryRepository) appendUsage(e *model.UsageEvent) {
	r.nextID++
	e.ID = r.nextID
	r.usage = append(r.usage, *e)

	if acc, ok := r.accounts[e.OwnerID]; ok {
		t := e.CreatedAt
		acc.LastActivityAt = &t
	}
}

// AppendUsage добавляет запись в журнал расхода.
func (r *MemoryRepository) AppendUsage(_ context.Context, e model.UsageEvent) (*model.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.siphons[e.SiphonID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSiphonNotFound, e.SiphonID)
	}
	r.appendUsage(&e)
	return &e, nil
}

// RechargeSiphon восстанавливает полный объём баллона и сбрасывает отправленные уведомления.
func (r *MemoryRepository) RechargeSiphon(_ context.Context, siphonID string, servings int) (*model.Siphon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.siphons[siphonID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSiphonNotFound, siphonID)
	}
	s.Remaining = s.Capacity
	s.Status = model.SiphonStatusFull
	s.AlertsSent = model.NewAlertSet()
	s.EstimatedServings = servings
	return copySiphon(s), nil
}

// MarkAlertSent атомарно отмечает уровень уведомления как отправленный.
// Уровень не отмечается, если баллон полон или остаток выше порога.
func (r *MemoryRepository) MarkAlertSent(_ context.Context, siphonID string, level model.AlertLevel) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.siphons[siphonID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrSiphonNotFound, siphonID)
	}
	if s.AlertsSent.Has(level) || s.Status == model.SiphonStatusFull {
		return false, nil
	}
	if pct, ok := s.Percentage(); !ok || pct > float64(level) {
		return false, nil
	}
	s.AlertsSent.Add(level)
	return true, nil
}

// ListUsage возвращает временной ряд остатка газа по баллону.
func (r *MemoryRepository) ListUsage(_ context.Context, ownerID, siphonID string) ([]model.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Sample
	for _, e := range r.usage {
		if e.OwnerID == ownerID && e.SiphonID == siphonID {
			res = append(res, model.Sample{At: e.CreatedAt, Remaining: e.RemainingAfter})
		}
	}
	slices.SortStableFunc(res, func(a, b model.Sample) int { return a.At.Compare(b.At) })
	return res, nil
}
