package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{name: "basic rounding down", x: 1.2345, tick: 0.01, expected: 1.23},
		{name: "tie rounds away from zero", x: 1.235, tick: 0.01, expected: 1.24},
		{name: "already on tick", x: 1.29, tick: 0.01, expected: 1.29},
		{name: "nickel tick", x: 2.12, tick: 0.05, expected: 2.10},
		{name: "zero tick passes through", x: 1.2345, tick: 0, expected: 1.2345},
		{name: "negative tick passes through", x: 1.2345, tick: -0.01, expected: 1.2345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToTick(tt.x, tt.tick)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("RoundToTick(%v, %v) = %v, want %v", tt.x, tt.tick, got, tt.expected)
			}
		})
	}
}

func TestRoundPremium(t *testing.T) {
	// 1.29 parsed from text can land a hair off the penny in float64.
	got := RoundPremium(1.2899999999999998)
	if math.Abs(got-1.29) > 1e-9 {
		t.Errorf("RoundPremium = %v, want 1.29", got)
	}
}
