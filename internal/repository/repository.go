// Package repository содержит реализации хранилища аккаунтов, баллонов и журнала расхода.
package repository

import (
	"fmt"

	"github.com/mmeshcher/sodatrack/internal/model"
)

var (
	// ErrAccountNotFound возвращается, если аккаунт не найден.
	ErrAccountNotFound = fmt.Errorf("account %w", model.ErrNotFound)
	// ErrSiphonNotFound возвращается, если баллон не найден.
	ErrSiphonNotFound = fmt.Errorf("siphon %w", model.ErrNotFound)
	// ErrSiphonOwnedByAnother возвращается при обращении к чужому баллону.
	ErrSiphonOwnedByAnother = fmt.Errorf("activate: %w", model.ErrOwnership)
	// ErrNoActiveSiphon возвращается, если у владельца нет активного баллона.
	ErrNoActiveSiphon = fmt.Errorf("consume: %w", model.ErrNoActiveSiphon)
)

// ConsumeFunc вычисляет новое состояние баллона и запись журнала.
// Вызывается внутри транзакции, пока строки аккаунта и баллона заблокированы.
type ConsumeFunc func(acc model.Account, s model.Siphon) (model.Siphon, model.UsageEvent, error)

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
}
