// internal/models/setpoint_test.go
package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRange_Contains(t *testing.T) {
	r := NewRange(24, 30)
	tests := []struct {
		value string
		want  bool
	}{
		{"23.9", false},
		{"24", true},
		{"27.5", true},
		{"30", true},
		{"30.1", false},
	}
	for _, tt := range tests {
		if got := r.Contains(decimal.RequireFromString(tt.value)); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestDefaultSetpoints(t *testing.T) {
	sp := DefaultSetpoints()
	if !sp.Temperature.Min.Equal(decimal.NewFromInt(24)) || !sp.Temperature.Max.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Temperature = %+v, want 24..30", sp.Temperature)
	}
	if !sp.Humidity.Min.Equal(decimal.NewFromInt(50)) || !sp.Humidity.Max.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Humidity = %+v, want 50..70", sp.Humidity)
	}
	if sp.Temperature.Inverted() || sp.Humidity.Inverted() {
		t.Error("default ranges should not be inverted")
	}
}
