package model

import "errors"

var (
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrNotFound возвращается, если баллон или аккаунт не найден.
	ErrNotFound = errors.New("not found")
	// ErrOwnership возвращается, если баллон принадлежит другому пользователю.
	ErrOwnership = errors.New("siphon belongs to another account")
	// ErrNoActiveSiphon возвращается, если у пользователя нет активного баллона.
	ErrNoActiveSiphon = errors.New("no active siphon")
	// ErrInsufficientData возвращается, если данных для прогноза недостаточно.
	ErrInsufficientData = errors.New("insufficient data for prediction")
	// ErrStorage оборачивает ошибки хранилища.
	ErrStorage = errors.New("storage error")
)
