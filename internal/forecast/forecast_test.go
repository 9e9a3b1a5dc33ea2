package forecast

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/sodatrack/internal/model"
)

var start = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func linearSeries(n int, from, perDay float64) []model.Sample {
	out := make([]model.Sample, 0, n)
	for i := range n {
		out = append(out, model.Sample{
			At:        start.Add(time.Duration(i) * day),
			Remaining: from - perDay*float64(i),
		})
	}
	return out
}

func TestPredict_Linear(t *testing.T) {
	samples := linearSeries(10, 20, 1)

	f, err := Predict(slices.Values(samples))
	require.NoError(t, err)

	assert.WithinDuration(t, start.Add(20*day), f.DepletesAt, time.Minute)
	assert.InDelta(t, -1.0, f.SlopePerDay, 1e-9)
	assert.Equal(t, 10, f.Samples)
}

func TestPredict_InsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		samples []model.Sample
	}{
		{name: "empty", samples: nil},
		{name: "nine samples", samples: linearSeries(9, 60, 2)},
		{name: "flat", samples: linearSeries(12, 60, 0)},
		{name: "rising", samples: linearSeries(12, 10, -1)},
		{
			name: "same timestamp",
			samples: func() []model.Sample {
				s := linearSeries(10, 60, 1)
				for i := range s {
					s[i].At = start
				}
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Predict(slices.Values(tt.samples))
			assert.ErrorIs(t, err, model.ErrInsufficientData)
		})
	}
}

func TestPredict_WindowStartsAfterRecharge(t *testing.T) {
	before := linearSeries(12, 30, 2)
	after := linearSeries(5, 60, 1)
	for i := range after {
		after[i].At = before[len(before)-1].At.Add(time.Duration(i+1) * day)
	}

	_, err := Predict(slices.Values(append(before, after...)))
	assert.ErrorIs(t, err, model.ErrInsufficientData)

	more := linearSeries(15, 60, 1)
	for i := range more {
		more[i].At = before[len(before)-1].At.Add(time.Duration(i+1) * day)
	}
	f, err := Predict(slices.Values(append(before, more...)))
	require.NoError(t, err)
	assert.Equal(t, 15, f.Samples)
	assert.WithinDuration(t, more[0].At.Add(60*day), f.DepletesAt, time.Minute)
}

func TestPredict_Restartable(t *testing.T) {
	seq := slices.Values(linearSeries(10, 20, 1))

	first, err := Predict(seq)
	require.NoError(t, err)
	second, err := Predict(seq)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPredict_ShallowSlopeBeyondHorizon(t *testing.T) {
	samples := linearSeries(10, 50, 2e-6)

	_, err := Predict(slices.Values(samples))
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}
