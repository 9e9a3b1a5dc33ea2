// Package model содержит доменные сущности сервиса учёта баллонов.
package model

import (
	"math"
	"time"
)

// Account представляет владельца баллонов (чат пользователя).
type Account struct {
	ID             string
	DispenserKind  DispenserKind
	LastActivityAt *time.Time
	CreatedAt      time.Time
}

// SiphonStatus описывает состояние заполнения баллона. Носит справочный характер.
type SiphonStatus string

const (
	SiphonStatusFull  SiphonStatus = "full"
	SiphonStatusInUse SiphonStatus = "in_use"
	SiphonStatusEmpty SiphonStatus = "empty"
)

// Siphon описывает баллон с газом и его текущий остаток.
type Siphon struct {
	ID                string
	OwnerID           string
	Alias             string
	Capacity          float64
	Remaining         float64
	EstimatedServings int
	Status            SiphonStatus
	Active            bool
	ConnectedAt       *time.Time
	AlertsSent        AlertSet
	CreatedAt         time.Time
}

// Percentage возвращает остаток газа в процентах. ok == false, если ёмкость не задана.
func (s Siphon) Percentage() (pct float64, ok bool) {
	if s.Capacity <= 0 {
		return 0, false
	}
	return s.Remaining / s.Capacity * 100, true
}

// UsageEvent - неизменяемая запись журнала расхода газа.
type UsageEvent struct {
	ID              int64     `json:"id,omitempty"`
	SiphonID        string    `json:"siphon_id"`
	OwnerID         string    `json:"owner_id"`
	Shots           int       `json:"shots"`
	GasUsed         float64   `json:"gas_used"`
	RemainingAfter  float64   `json:"remaining_after"`
	PercentageAfter float64   `json:"percentage_after"`
	CreatedAt       time.Time `json:"created_at"`
}

// Sample - точка временного ряда остатка газа.
type Sample struct {
	At        time.Time
	Remaining float64
}

// UsageOutcome содержит результат регистрации расхода.
type UsageOutcome struct {
	SiphonID          string       `json:"siphon_id"`
	Alias             string       `json:"alias"`
	Shots             int          `json:"shots"`
	GasUsed           float64      `json:"gas_used"`
	Remaining         float64      `json:"remaining"`
	Percentage        float64      `json:"percentage"`
	EstimatedServings int          `json:"estimated_servings"`
	Status            SiphonStatus `json:"status"`
	Overdrawn         bool         `json:"overdrawn"`
}

// EstimateServings считает, сколько бутылок ещё можно газировать при данном остатке.
func EstimateServings(remaining float64, p DispenserProfile) int {
	if p.GasPerAction <= 0 || p.ActionsPerServing <= 0 || remaining <= 0 {
		return 0
	}
	return int(math.Floor(remaining / p.GasPerAction / float64(p.ActionsPerServing)))
}
