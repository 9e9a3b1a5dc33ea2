package model

import (
	"slices"
	"time"
)

// AlertLevel - порог остатка газа в процентах.
type AlertLevel int

// DefaultAlertLevels - пороги уведомлений по убыванию.
var DefaultAlertLevels = []AlertLevel{30, 15, 5}

// AlertSet хранит уровни, уведомления по которым уже отправлены в текущем цикле заправки.
type AlertSet map[AlertLevel]struct{}

// NewAlertSet создаёт множество из перечисленных уровней.
func NewAlertSet(levels ...AlertLevel) AlertSet {
	s := make(AlertSet, len(levels))
	for _, l := range levels {
		s[l] = struct{}{}
	}
	return s
}

// Has сообщает, был ли уровень уже отправлен.
func (s AlertSet) Has(level AlertLevel) bool {
	_, ok := s[level]
	return ok
}

// Add добавляет уровень во множество.
func (s AlertSet) Add(level AlertLevel) {
	s[level] = struct{}{}
}

// Levels возвращает уровни по убыванию.
func (s AlertSet) Levels() []AlertLevel {
	out := make([]AlertLevel, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// Clone возвращает независимую копию множества.
func (s AlertSet) Clone() AlertSet {
	out := make(AlertSet, len(s))
	for l := range s {
		out[l] = struct{}{}
	}
	return out
}

// AlertFired описывает отправленное критическое уведомление.
type AlertFired struct {
	OwnerID    string     `json:"owner_id"`
	SiphonID   string     `json:"siphon_id"`
	Alias      string     `json:"alias"`
	Level      AlertLevel `json:"level"`
	Percentage float64    `json:"percentage"`
	At         time.Time  `json:"at"`
}
