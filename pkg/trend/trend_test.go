package trend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name      string
		current   float64
		reference float64
		want      float64
	}{
		{name: "loss since launch", current: 0.25, reference: 0.30, want: -16.666666666666664},
		{name: "gain", current: 110, reference: 100, want: 10},
		{name: "unchanged", current: 5, reference: 5, want: 0},
		{name: "zero current", current: 0, reference: 2, want: -100},
		{name: "zero reference", current: 5, reference: 0, want: 0},
		{name: "negative reference", current: 5, reference: -1, want: 0},
		{name: "nan reference", current: 5, reference: math.NaN(), want: 0},
		{name: "inf reference", current: 5, reference: math.Inf(1), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentChange(tt.current, tt.reference)
			require.InDelta(t, tt.want, got, 1e-9)
			require.False(t, math.IsNaN(got) || math.IsInf(got, 0))
		})
	}
}

func TestPercentChangeMatchesFormula(t *testing.T) {
	for _, ref := range []float64{0.001, 0.3, 1, 42.5, 65000} {
		for _, cur := range []float64{0, 0.002, 0.29, 1, 43, 70000} {
			assert.InDelta(t, (cur-ref)/ref*100, PercentChange(cur, ref), 1e-9)
		}
	}
}

func TestClassifyBands(t *testing.T) {
	tests := []struct {
		p    float64
		want Indicator
	}{
		{0, Indicator{Flat, Neutral}},
		{0.009, Indicator{Flat, Neutral}},
		{-0.009, Indicator{Flat, Neutral}},
		{0.01, Indicator{Up, Small}},
		{-0.01, Indicator{Down, Small}},
		{0.99, Indicator{Up, Small}},
		{1.0, Indicator{Up, Medium}},
		{-1.0, Indicator{Down, Medium}},
		{4.999, Indicator{Up, Medium}},
		{5.0, Indicator{Up, Large}},
		{-5.0, Indicator{Down, Large}},
		{-16.67, Indicator{Down, Large}},
		{250, Indicator{Up, Large}},
		{math.NaN(), Indicator{Flat, Neutral}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.p), "p=%v", tt.p)
	}
}

func TestIndicatorRendering(t *testing.T) {
	require.Equal(t, "large-down", Classify(-16.67).Label())
	require.Equal(t, "small-up", Classify(0.5).Label())
	require.Equal(t, "neutral", Classify(0).Label())
	require.Equal(t, "🔻", Classify(-16.67).String())
	require.Equal(t, "⚪", Indicator{Up, Neutral}.String())
}
