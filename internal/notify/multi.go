package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Sender - канал доставки уведомлений.
type Sender interface {
	Notify(ctx context.Context, accountID, text string) error
}

// Log пишет уведомления в журнал. Используется, когда внешние каналы не настроены.
type Log struct {
	logger *zap.Logger
}

// NewLog создаёт канал, пишущий уведомления в logger.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Notify записывает уведомление в журнал.
func (l *Log) Notify(_ context.Context, accountID, text string) error {
	l.logger.Info("notification", zap.String("account", accountID), zap.String("text", text))
	return nil
}

// Multi рассылает уведомление во все каналы. Ошибка одного канала не мешает остальным.
type Multi []Sender

// Notify отправляет уведомление во все каналы и объединяет ошибки.
func (m Multi) Notify(ctx context.Context, accountID, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, accountID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
