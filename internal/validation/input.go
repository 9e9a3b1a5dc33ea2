// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxAliasLength - максимальная длина названия баллона в символах.
	MaxAliasLength = 64
	// MaxOwnerIDLength - максимальная длина идентификатора владельца.
	MaxOwnerIDLength = 64
	// MaxShots - максимальное число нажатий в одной регистрации.
	MaxShots = 1000
)

// NormalizeAlias обрезает пробелы вокруг названия баллона и проверяет его.
func NormalizeAlias(alias string) (string, bool) {
	alias = strings.TrimSpace(alias)
	if alias == "" || utf8.RuneCountInString(alias) > MaxAliasLength {
		return "", false
	}
	for _, r := range alias {
		if unicode.IsControl(r) {
			return "", false
		}
	}
	return alias, true
}

// IsValidOwnerID проверяет идентификатор владельца: непустой, без пробельных символов.
func IsValidOwnerID(id string) bool {
	if id == "" || len(id) > MaxOwnerIDLength {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// IsValidShots проверяет количество нажатий.
func IsValidShots(shots int) bool {
	return shots > 0 && shots <= MaxShots
}
