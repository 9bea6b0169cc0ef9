// internal/models/reading_test.go
package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTenths_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
		wire int64
	}{
		{"positive", "23.7", 237},
		{"negative", "-4.2", -42},
		{"integral", "30", 300},
		{"zero", "0", 0},
		{"humidity", "65.3", 653},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decimal.RequireFromString(tt.text)
			got := EncodeTenths(d)
			if got != tt.wire {
				t.Fatalf("EncodeTenths(%s) = %d, want %d", tt.text, got, tt.wire)
			}
			back := DecodeTenths(got)
			if !back.Equal(d) {
				t.Errorf("DecodeTenths(%d) = %s, want %s", got, back, tt.text)
			}
		})
	}
}

func TestEncodeTenths_Rounds(t *testing.T) {
	if got := EncodeTenths(decimal.RequireFromString("23.75")); got != 238 {
		t.Errorf("EncodeTenths(23.75) = %d, want 238", got)
	}
	if got := EncodeTenths(decimal.RequireFromString("-23.75")); got != -238 {
		t.Errorf("EncodeTenths(-23.75) = %d, want -238", got)
	}
}

func TestRawReading_Decode(t *testing.T) {
	raw := RawReading{
		SensorID:     "SHT20-001",
		Location:     "Tank T-101",
		ProcessStage: "Storage",
		Timestamp:    1704110400,
		Temperature:  -15,
		Humidity:     553,
	}

	r := raw.Decode(7)

	if r.Index != 7 {
		t.Errorf("Index = %d, want 7", r.Index)
	}
	if r.SensorID != "SHT20-001" || r.Location != "Tank T-101" || r.ProcessStage != "Storage" {
		t.Errorf("metadata mismatch: %+v", r)
	}
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, want)
	}
	if !r.Temperature.Equal(decimal.RequireFromString("-1.5")) {
		t.Errorf("Temperature = %s, want -1.5", r.Temperature)
	}
	if !r.Humidity.Equal(decimal.RequireFromString("55.3")) {
		t.Errorf("Humidity = %s, want 55.3", r.Humidity)
	}
}

func TestSeries_Latest(t *testing.T) {
	var empty Series
	if _, ok := empty.Latest(); ok {
		t.Error("Latest() on empty series should report false")
	}

	s := Series{{Index: 0}, {Index: 1}, {Index: 2}}
	last, ok := s.Latest()
	if !ok {
		t.Fatal("Latest() reported false on non-empty series")
	}
	if last.Index != 2 {
		t.Errorf("Latest().Index = %d, want 2", last.Index)
	}
}

func TestSeries_Clone(t *testing.T) {
	s := Series{{Index: 0, SensorID: "a"}}
	c := s.Clone()
	c[0].SensorID = "b"
	if s[0].SensorID != "a" {
		t.Error("Clone shares backing array with original")
	}
	if Series(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestReading_JSONSerialization(t *testing.T) {
	original := RawReading{
		SensorID:    "sensor-01",
		Timestamp:   1704110400,
		Temperature: 225,
		Humidity:    450,
	}.Decode(3)

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded Reading
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if decoded.Index != original.Index {
		t.Errorf("Index mismatch: got %v, want %v", decoded.Index, original.Index)
	}
	if !decoded.Temperature.Equal(original.Temperature) {
		t.Errorf("Temperature mismatch: got %v, want %v", decoded.Temperature, original.Temperature)
	}
	if !decoded.Humidity.Equal(original.Humidity) {
		t.Errorf("Humidity mismatch: got %v, want %v", decoded.Humidity, original.Humidity)
	}
}
