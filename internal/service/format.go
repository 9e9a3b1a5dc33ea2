package service

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mmeshcher/sodatrack/internal/forecast"
	"github.com/mmeshcher/sodatrack/internal/model"
)

const (
	progressBarCells = 15
	forecastLayout   = "2006-01-02"

	reminderText = "⏰ Reminder: you have not registered any SodaStream usage in the last few days. Do you still have enough gas?"
	noSiphonText = "📋 Weekly report: you have no siphons registered yet."
)

// ProgressBar рисует полосу заполнения из cells ячеек.
func ProgressBar(pct float64, cells int) string {
	pct = math.Max(0, math.Min(100, pct))
	filled := int(math.Round(pct / 100 * float64(cells)))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", cells-filled) + "]"
}

func statusText(s model.Siphon) string {
	pct, ok := s.Percentage()
	if !ok {
		return "Could not read the siphon status."
	}
	return fmt.Sprintf("Siphon %s\nGas remaining: %.2f%%.\n\n%s\n\nAbout %d bottles left.",
		s.Alias, pct, ProgressBar(pct, progressBarCells), s.EstimatedServings)
}

func alertText(alias string, level model.AlertLevel) string {
	return fmt.Sprintf("🚨 Critical alert: siphon %s is at %d%% gas. Recharge soon so you do not run out.", alias, level)
}

func rechargeText(alias string) string {
	return fmt.Sprintf("🔄 Siphon %s has been recharged. It is ready to use again!", alias)
}

func reportLine(s model.Siphon, fc forecast.Forecast, fcErr error) string {
	pct, _ := s.Percentage()
	line := fmt.Sprintf("• %s: %.2f%% left, about %d bottles.", s.Alias, pct, s.EstimatedServings)
	switch {
	case fcErr == nil:
		return line + " Estimated to run out on " + fc.DepletesAt.Format(forecastLayout) + "."
	case errors.Is(fcErr, model.ErrInsufficientData):
		return line + fmt.Sprintf(" Not enough data to predict depletion: at least %d records are needed.", forecast.MinSamples)
	default:
		return line + " Prediction is unavailable right now."
	}
}

func reportText(lines []string) string {
	return "📊 Weekly report\n\n" + strings.Join(lines, "\n")
}
