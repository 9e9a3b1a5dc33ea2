// Package forecast прогнозирует дату исчерпания газа по журналу расхода.
package forecast

import (
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/mmeshcher/sodatrack/internal/model"
)

// MinSamples - минимальное количество точек для построения прогноза.
const MinSamples = 10

// flatSlope - наклон (единиц газа в сутки), ниже которого расход считается отсутствующим.
const flatSlope = 1e-6

// maxHorizonDays - дальше этого срока прогноз не строится.
const maxHorizonDays = 100 * 365

const day = 24 * time.Hour

// Forecast содержит результат прогноза.
type Forecast struct {
	DepletesAt  time.Time
	SlopePerDay float64
	Samples     int
}

// Predict строит линейную регрессию остатка газа по времени и возвращает дату,
// когда остаток достигнет нуля. Учитываются только точки после последней заправки.
func Predict(samples iter.Seq[model.Sample]) (Forecast, error) {
	window := sinceLastRecharge(samples)
	if len(window) < MinSamples {
		return Forecast{}, fmt.Errorf("%w: need at least %d records, have %d",
			model.ErrInsufficientData, MinSamples, len(window))
	}

	base := window[0].At
	n := float64(len(window))

	var sumX, sumY float64
	for _, s := range window {
		sumX += s.At.Sub(base).Hours() / 24
		sumY += s.Remaining
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for _, s := range window {
		dx := s.At.Sub(base).Hours()/24 - meanX
		sxx += dx * dx
		sxy += dx * (s.Remaining - meanY)
	}
	if sxx == 0 {
		return Forecast{}, fmt.Errorf("%w: all records share one timestamp", model.ErrInsufficientData)
	}

	slope := sxy / sxx
	if slope > -flatSlope {
		return Forecast{}, fmt.Errorf("%w: no net consumption in window", model.ErrInsufficientData)
	}
	intercept := meanY - slope*meanX

	days := -intercept / slope
	if math.Abs(days) > maxHorizonDays {
		return Forecast{}, fmt.Errorf("%w: depletion is %.0f days away", model.ErrInsufficientData, days)
	}
	return Forecast{
		DepletesAt:  base.Add(time.Duration(days * float64(day))),
		SlopePerDay: slope,
		Samples:     len(window),
	}, nil
}

// sinceLastRecharge отбрасывает точки до последнего роста остатка.
func sinceLastRecharge(samples iter.Seq[model.Sample]) []model.Sample {
	var window []model.Sample
	for s := range samples {
		if len(window) > 0 && s.Remaining > window[len(window)-1].Remaining {
			window = window[:0]
		}
		window = append(window, s)
	}
	return window
}
