package model

import "fmt"

// DispenserKind - тип сифона, определяющий расход газа на одно нажатие.
type DispenserKind string

const (
	DispenserUnset    DispenserKind = ""
	DispenserManual   DispenserKind = "manual"
	DispenserElectric DispenserKind = "electric"
)

// ParseDispenserKind разбирает тип сифона, пришедший от пользователя.
func ParseDispenserKind(s string) (DispenserKind, error) {
	switch DispenserKind(s) {
	case DispenserManual, DispenserElectric:
		return DispenserKind(s), nil
	default:
		return DispenserUnset, fmt.Errorf("%w: unknown dispenser kind %q", ErrValidation, s)
	}
}

// DispenserProfile задаёт расход газа на нажатие и количество нажатий на одну бутылку.
type DispenserProfile struct {
	GasPerAction      float64
	ActionsPerServing int
}

// DispenserProfiles - таблица профилей по типу сифона.
type DispenserProfiles map[DispenserKind]DispenserProfile

// DefaultDispenserProfiles возвращает эталонную таблицу расхода.
func DefaultDispenserProfiles() DispenserProfiles {
	return DispenserProfiles{
		DispenserManual:   {GasPerAction: 0.25, ActionsPerServing: 4},
		DispenserElectric: {GasPerAction: 0.33, ActionsPerServing: 3},
	}
}

// For возвращает профиль для типа сифона. Не настроенный тип считается ручным.
func (p DispenserProfiles) For(kind DispenserKind) DispenserProfile {
	if prof, ok := p[kind]; ok {
		return prof
	}
	return p[DispenserManual]
}
