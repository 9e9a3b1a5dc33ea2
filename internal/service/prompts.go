package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mmeshcher/sodatrack/internal/model"
	"github.com/mmeshcher/sodatrack/internal/session"
)

// PromptResult описывает действие, выполненное по выбранному варианту.
type PromptResult struct {
	Action    session.Action      `json:"action"`
	Siphon    *model.Siphon       `json:"siphon,omitempty"`
	Usage     *model.UsageOutcome `json:"usage,omitempty"`
	Alerts    []model.AlertLevel  `json:"alerts,omitempty"`
	Dispenser model.DispenserKind `json:"dispenser,omitempty"`
}

// BeginPrompt предлагает владельцу варианты для действия и запоминает их до ответа.
func (s *Service) BeginPrompt(ctx context.Context, ownerID, action string) (*session.Pending, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return nil, err
	}
	a, err := session.ParseAction(action)
	if err != nil {
		return nil, err
	}

	var options []string
	switch a {
	case session.ActionUsage:
		options = session.UsageOptions()
	case session.ActionDispenser:
		options = session.DispenserOptions()
	case session.ActionActivate, session.ActionRecharge:
		siphons, err := s.repo.ListSiphons(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		for _, sp := range siphons {
			options = append(options, sp.ID)
		}
		if len(options) == 0 {
			return nil, fmt.Errorf("no siphons to choose from: %w", model.ErrNotFound)
		}
	}

	return s.prompts.Begin(ctx, ownerID, a, options)
}

// ResolvePrompt выполняет действие ожидающего запроса с выбранным вариантом.
func (s *Service) ResolvePrompt(ctx context.Context, ownerID, choice string) (*PromptResult, error) {
	if err := checkOwnerID(ownerID); err != nil {
		return nil, err
	}
	p, err := s.prompts.Resolve(ctx, ownerID, choice)
	if err != nil {
		return nil, err
	}

	res := &PromptResult{Action: p.Action}
	switch p.Action {
	case session.ActionUsage:
		shots, err := strconv.Atoi(choice)
		if err != nil {
			return nil, fmt.Errorf("%w: shots %q", model.ErrValidation, choice)
		}
		usage, err := s.RegisterUsage(ctx, ownerID, shots)
		if err != nil {
			return nil, err
		}
		res.Usage, res.Alerts = usage.Outcome, usage.Alerts
	case session.ActionDispenser:
		res.Dispenser, err = s.Siphons.SetDispenserKind(ctx, ownerID, choice)
	case session.ActionActivate:
		res.Siphon, err = s.Siphons.Activate(ctx, ownerID, choice)
	case session.ActionRecharge:
		res.Siphon, err = s.RechargeSiphon(ctx, ownerID, choice)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
