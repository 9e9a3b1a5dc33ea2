// Package events публикует доменные события в NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mmeshcher/sodatrack/internal/model"
)

const (
	// SubjectUsageRecorded - тема событий о зарегистрированном расходе.
	SubjectUsageRecorded = "siphons.usage.recorded"
	// SubjectAlertFired - тема событий об отправленных критических уведомлениях.
	SubjectAlertFired = "siphons.alert.fired"
)

type conn interface {
	Publish(subject string, data []byte) error
}

// Connect подключается к NATS. Пустой url означает, что шина не используется: возвращается nil.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url, nats.Name("sodatrack"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Bus публикует события расхода и уведомлений в NATS.
type Bus struct {
	nc conn
}

// NewBus создаёт публикатор поверх соединения NATS.
func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

// PublishUsage публикует запись журнала расхода.
func (b *Bus) PublishUsage(_ context.Context, e model.UsageEvent) error {
	return b.publish(SubjectUsageRecorded, e)
}

// PublishAlert публикует отправленное критическое уведомление.
func (b *Bus) PublishAlert(_ context.Context, a model.AlertFired) error {
	return b.publish(SubjectAlertFired, a)
}

func (b *Bus) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Nop отбрасывает события, когда шина не настроена.
type Nop struct{}

func (Nop) PublishUsage(context.Context, model.UsageEvent) error { return nil }
func (Nop) PublishAlert(context.Context, model.AlertFired) error { return nil }
