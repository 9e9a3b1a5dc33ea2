// Package session хранит ожидающий выбор пользователя между запросом и ответом.
package session

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/mmeshcher/sodatrack/internal/model"
)

var (
	// ErrNoPending возвращается, если у аккаунта нет ожидающего выбора или он истёк.
	ErrNoPending = fmt.Errorf("pending prompt %w", model.ErrNotFound)
	// ErrUnknownChoice возвращается, если ответ не входит в предложенные варианты.
	ErrUnknownChoice = fmt.Errorf("%w: unknown choice", model.ErrValidation)
)

// Action - действие, для которого запрошен выбор.
type Action string

const (
	ActionRecharge  Action = "recharge"
	ActionActivate  Action = "activate"
	ActionUsage     Action = "usage"
	ActionDispenser Action = "dispenser"
)

// DefaultTTL - время жизни ожидающего выбора по умолчанию.
const DefaultTTL = 5 * time.Minute

// Pending описывает ожидающий выбор.
type Pending struct {
	Action    Action    `json:"action"`
	Options   []string  `json:"options"`
	CreatedAt time.Time `json:"created_at"`
}

// Store хранит не более одного ожидающего выбора на аккаунт.
type Store interface {
	// Put сохраняет выбор, заменяя предыдущий.
	Put(ctx context.Context, accountID string, p Pending, ttl time.Duration) error
	// Take атомарно извлекает и удаляет выбор. Возвращает ErrNoPending, если его нет.
	Take(ctx context.Context, accountID string) (*Pending, error)
}

// Manager открывает и разрешает запросы выбора.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager создаёт менеджер запросов. Неположительный ttl означает DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// UsageOptions возвращает варианты количества нажатий "1".."10".
func UsageOptions() []string {
	opts := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		opts = append(opts, strconv.Itoa(i))
	}
	return opts
}

// DispenserOptions возвращает варианты типа сифона.
func DispenserOptions() []string {
	return []string{string(model.DispenserManual), string(model.DispenserElectric)}
}

// ParseAction проверяет название действия.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionRecharge, ActionActivate, ActionUsage, ActionDispenser:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown prompt action %q", model.ErrValidation, s)
	}
}

// Begin сохраняет ожидающий выбор для аккаунта.
func (m *Manager) Begin(ctx context.Context, accountID string, action Action, options []string) (*Pending, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("%w: prompt has no options", model.ErrValidation)
	}

	p := Pending{Action: action, Options: slices.Clone(options), CreatedAt: m.now()}
	if err := m.store.Put(ctx, accountID, p, m.ttl); err != nil {
		return nil, fmt.Errorf("store prompt: %w", err)
	}
	return &p, nil
}

// Resolve извлекает ожидающий выбор и проверяет ответ. После вызова выбор удалён в любом случае.
func (m *Manager) Resolve(ctx context.Context, accountID, choice string) (*Pending, error) {
	p, err := m.store.Take(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(p.Options, choice) {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnknownChoice, choice, p.Action)
	}
	return p, nil
}
