// Package handler содержит HTTP-обработчики API сервиса учёта баллонов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/sodatrack/internal/middleware"
	"github.com/mmeshcher/sodatrack/internal/model"
	"github.com/mmeshcher/sodatrack/internal/service"
	"github.com/mmeshcher/sodatrack/internal/session"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	EnsureAccount(ctx context.Context, ownerID string) (*model.Account, error)
	SetDispenserKind(ctx context.Context, ownerID, kind string) (model.DispenserKind, error)
	ListSiphons(ctx context.Context, ownerID string) ([]model.Siphon, error)
	ProvisionSiphon(ctx context.Context, ownerID, alias string) (*model.Siphon, error)
	SiphonStatus(ctx context.Context, ownerID string) (*model.Siphon, string, error)
	ActivateSiphon(ctx context.Context, ownerID, siphonID string) (*model.Siphon, error)
	ToggleSiphon(ctx context.Context, ownerID, siphonID string) (*model.Siphon, error)
	RechargeSiphon(ctx context.Context, ownerID, siphonID string) (*model.Siphon, error)
	RegisterUsage(ctx context.Context, ownerID string, shots int) (*service.UsageResult, error)
	BeginPrompt(ctx context.Context, ownerID, action string) (*session.Pending, error)
	ResolvePrompt(ctx context.Context, ownerID, choice string) (*service.PromptResult, error)
}

// Handler реализует HTTP-обработчики API сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// metricsHandler может быть nil, тогда /metrics не публикуется.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, metricsHandler http.Handler) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        metricsHandler,
	}
}

// writeError переводит доменную ошибку в HTTP-статус. Неожиданные ошибки логируются.
func (h *Handler) writeError(w http.ResponseWriter, op, ownerID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrOwnership):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrNoActiveSiphon):
		status = http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	default:
		h.logger.Error(op+" error", zap.Error(err), zap.String("owner", ownerID))
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

func ownerFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := middleware.GetOwnerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return ownerID, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

type accountResponse struct {
	ID             string `json:"id"`
	DispenserKind  string `json:"dispenser_kind,omitempty"`
	LastActivityAt string `json:"last_activity_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

type siphonResponse struct {
	ID                string  `json:"id"`
	Alias             string  `json:"alias"`
	Capacity          float64 `json:"capacity"`
	Remaining         float64 `json:"remaining"`
	Percentage        float64 `json:"percentage"`
	EstimatedServings int     `json:"estimated_servings"`
	Status            string  `json:"status"`
	Active            bool    `json:"active"`
	ConnectedAt       string  `json:"connected_at,omitempty"`
	AlertsSent        []int   `json:"alerts_sent"`
}

func toSiphonResponse(s *model.Siphon) *siphonResponse {
	if s == nil {
		return nil
	}
	pct, _ := s.Percentage()
	alerts := make([]int, 0, len(s.AlertsSent))
	for _, l := range s.AlertsSent.Levels() {
		alerts = append(alerts, int(l))
	}
	return &siphonResponse{
		ID:                s.ID,
		Alias:             s.Alias,
		Capacity:          s.Capacity,
		Remaining:         s.Remaining,
		Percentage:        pct,
		EstimatedServings: s.EstimatedServings,
		Status:            string(s.Status),
		Active:            s.Active,
		ConnectedAt:       formatTime(s.ConnectedAt),
		AlertsSent:        alerts,
	}
}

// EnsureAccount создаёт аккаунт текущего владельца при первом обращении.
func (h *Handler) EnsureAccount(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	acc, err := h.service.EnsureAccount(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, "ensure account", ownerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, accountResponse{
		ID:             acc.ID,
		DispenserKind:  string(acc.DispenserKind),
		LastActivityAt: formatTime(acc.LastActivityAt),
		CreatedAt:      acc.CreatedAt.Format(time.RFC3339),
	})
}

type dispenserRequest struct {
	Kind string `json:"kind"`
}

// SetDispenser сохраняет тип сифона текущего владельца.
func (h *Handler) SetDispenser(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req dispenserRequest
	if !decode(w, r, &req) {
		return
	}

	kind, err := h.service.SetDispenserKind(r.Context(), ownerID, req.Kind)
	if err != nil {
		h.writeError(w, "set dispenser", ownerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, dispenserRequest{Kind: string(kind)})
}

// ListSiphons возвращает баллоны текущего владельца.
func (h *Handler) ListSiphons(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	siphons, err := h.service.ListSiphons(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, "list siphons", ownerID, err)
		return
	}

	if len(siphons) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]*siphonResponse, 0, len(siphons))
	for i := range siphons {
		resp = append(resp, toSiphonResponse(&siphons[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type provisionRequest struct {
	Alias string `json:"alias"`
}

// ProvisionSiphon регистрирует новый баллон.
func (h *Handler) ProvisionSiphon(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req provisionRequest
	if !decode(w, r, &req) {
		return
	}

	s, err := h.service.ProvisionSiphon(r.Context(), ownerID, req.Alias)
	if err != nil {
		h.writeError(w, "provision siphon", ownerID, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toSiphonResponse(s))
}

type statusResponse struct {
	Siphon *siphonResponse `json:"siphon"`
	Text   string          `json:"text"`
}

// ActiveSiphon возвращает состояние активного баллона.
func (h *Handler) ActiveSiphon(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	s, text, err := h.service.SiphonStatus(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, "siphon status", ownerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, statusResponse{Siphon: toSiphonResponse(s), Text: text})
}

type siphonAction func(ctx context.Context, ownerID, siphonID string) (*model.Siphon, error)

func (h *Handler) siphonAction(op string, action func(Service) siphonAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFromRequest(w, r)
		if !ok {
			return
		}

		s, err := action(h.service)(r.Context(), ownerID, chi.URLParam(r, "id"))
		if err != nil {
			h.writeError(w, op, ownerID, err)
			return
		}

		h.writeJSON(w, http.StatusOK, toSiphonResponse(s))
	}
}

// ActivateSiphon делает баллон активным.
func (h *Handler) ActivateSiphon(w http.ResponseWriter, r *http.Request) {
	h.siphonAction("activate siphon", func(s Service) siphonAction { return s.ActivateSiphon })(w, r)
}

// ToggleSiphon переключает активность баллона.
func (h *Handler) ToggleSiphon(w http.ResponseWriter, r *http.Request) {
	h.siphonAction("toggle siphon", func(s Service) siphonAction { return s.ToggleSiphon })(w, r)
}

// RechargeSiphon заправляет баллон.
func (h *Handler) RechargeSiphon(w http.ResponseWriter, r *http.Request) {
	h.siphonAction("recharge siphon", func(s Service) siphonAction { return s.RechargeSiphon })(w, r)
}

type usageRequest struct {
	Shots int `json:"shots"`
}

type usageResponse struct {
	*model.UsageOutcome
	Alerts []int `json:"alerts"`
}

func alertsList(levels []model.AlertLevel) []int {
	out := make([]int, 0, len(levels))
	for _, l := range levels {
		out = append(out, int(l))
	}
	return out
}

// RegisterUsage регистрирует расход газа с активного баллона.
func (h *Handler) RegisterUsage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req usageRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.RegisterUsage(r.Context(), ownerID, req.Shots)
	if err != nil {
		h.writeError(w, "register usage", ownerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, usageResponse{UsageOutcome: res.Outcome, Alerts: alertsList(res.Alerts)})
}

type promptRequest struct {
	Action string `json:"action"`
}

type pendingResponse struct {
	Action    string   `json:"action"`
	Options   []string `json:"options"`
	CreatedAt string   `json:"created_at"`
}

// BeginPrompt открывает запрос выбора для действия.
func (h *Handler) BeginPrompt(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req promptRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.service.BeginPrompt(r.Context(), ownerID, req.Action)
	if err != nil {
		h.writeError(w, "begin prompt", ownerID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pendingResponse{
		Action:    string(p.Action),
		Options:   p.Options,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	})
}

type resolveRequest struct {
	Choice string `json:"choice"`
}

type resolveResponse struct {
	Action    string              `json:"action"`
	Siphon    *siphonResponse     `json:"siphon,omitempty"`
	Usage     *model.UsageOutcome `json:"usage,omitempty"`
	Alerts    []int               `json:"alerts,omitempty"`
	Dispenser string              `json:"dispenser,omitempty"`
}

// ResolvePrompt выполняет действие по выбранному варианту.
func (h *Handler) ResolvePrompt(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.ResolvePrompt(r.Context(), ownerID, req.Choice)
	if err != nil {
		h.writeError(w, "resolve prompt", ownerID, err)
		return
	}

	resp := resolveResponse{
		Action:    string(res.Action),
		Siphon:    toSiphonResponse(res.Siphon),
		Usage:     res.Usage,
		Dispenser: string(res.Dispenser),
	}
	if len(res.Alerts) > 0 {
		resp.Alerts = alertsList(res.Alerts)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Health сообщает, что процесс жив.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
