package metrics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/ledger-monitor/internal/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func reading(i uint64, at time.Duration, temp, hum string) models.Reading {
	return models.Reading{
		Index:       i,
		SensorID:    "SHT20-001",
		Timestamp:   t0.Add(at),
		Temperature: dec(temp),
		Humidity:    dec(hum),
	}
}

func TestClassify(t *testing.T) {
	r := models.NewRange(24, 30)
	tests := []struct {
		v    string
		want Classification
	}{
		{"23.9", Below},
		{"24", Within},
		{"27.5", Within},
		{"30", Within},
		{"30.1", Above},
		{"-5", Below},
	}
	for _, tt := range tests {
		t.Run(tt.v, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(dec(tt.v), r))
		})
	}
}

func TestClassify_ExactlyOneClassWithinIffInRange(t *testing.T) {
	r := models.NewRange(50, 70)
	for v := int64(400); v <= 800; v += 7 {
		d := decimal.New(v, -1)
		got := Classify(d, r)
		assert.Equal(t, r.Contains(d), got == Within, "value %s", d)
	}
}

func TestClassifySeries_Counts(t *testing.T) {
	series := models.Series{
		reading(0, 0, "20", "55"),
		reading(1, time.Hour, "25", "75"),
		reading(2, 2*time.Hour, "31", "45"),
		reading(3, 3*time.Hour, "26", "60"),
	}

	classes, temp, hum := ClassifySeries(series, models.DefaultSetpoints())
	require.Len(t, classes, 4)
	assert.Equal(t, Counts{Below: 1, Within: 2, Above: 1}, temp)
	assert.Equal(t, Counts{Below: 1, Within: 2, Above: 1}, hum)
	assert.Equal(t, Above, classes[1].Humidity)
	assert.Equal(t, uint64(2), classes[2].Index)
}

func TestChange24h_ReferenceSelection(t *testing.T) {
	series := models.Series{
		reading(0, 0, "20", "50"),
		reading(1, 12*time.Hour, "22", "50"),
		reading(2, 30*time.Hour, "24", "55"),
	}

	ref, ok := ReferenceIndex(series)
	require.True(t, ok)
	assert.Equal(t, 1, ref)

	temp, hum := Change24h(series)
	require.True(t, temp.Defined)
	assert.Equal(t, "9.09", temp.Percent.StringFixed(2))
	assert.Equal(t, "10.00", hum.Percent.StringFixed(2))
}

func TestChange24h_WindowBoundaryInclusive(t *testing.T) {
	series := models.Series{
		reading(0, 0, "20", "50"),
		reading(1, 24*time.Hour, "30", "50"),
	}
	ref, _ := ReferenceIndex(series)
	assert.Equal(t, 0, ref)

	temp, _ := Change24h(series)
	assert.Equal(t, "50.00", temp.Percent.StringFixed(2))
}

func TestChange24h_OnlyLastInWindow(t *testing.T) {
	series := models.Series{
		reading(0, 0, "20", "50"),
		reading(1, 48*time.Hour, "30", "60"),
	}
	ref, _ := ReferenceIndex(series)
	assert.Equal(t, 1, ref)

	temp, _ := Change24h(series)
	assert.True(t, temp.Defined)
	assert.True(t, temp.Percent.IsZero())
}

func TestChange24h_UnorderedTimestamps(t *testing.T) {
	tests := []struct {
		name     string
		series   models.Series
		wantRef  int
		wantTemp string
		wantHum  string
	}{
		{
			name: "last earlier than the rest",
			series: models.Series{
				reading(0, 30*time.Hour, "20", "50"),
				reading(1, 30*time.Hour, "22", "52"),
				reading(2, 0, "24", "55"),
			},
			wantRef:  0,
			wantTemp: "20.00",
			wantHum:  "10.00",
		},
		{
			name: "all timestamps equal",
			series: models.Series{
				reading(0, 5*time.Hour, "25", "60"),
				reading(1, 5*time.Hour, "20", "60"),
				reading(2, 5*time.Hour, "30", "66"),
			},
			wantRef:  0,
			wantTemp: "20.00",
			wantHum:  "10.00",
		},
		{
			name: "future reading inside window",
			series: models.Series{
				reading(0, 0, "20", "50"),
				reading(1, 50*time.Hour, "25", "40"),
				reading(2, 30*time.Hour, "22", "50"),
				reading(3, 40*time.Hour, "30", "44"),
			},
			wantRef:  1,
			wantTemp: "20.00",
			wantHum:  "10.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := ReferenceIndex(tt.series)
			require.True(t, ok)
			assert.Equal(t, tt.wantRef, ref)

			temp, hum := Change24h(tt.series)
			require.True(t, temp.Defined)
			require.True(t, hum.Defined)
			assert.Equal(t, tt.wantTemp, temp.Percent.StringFixed(2))
			assert.Equal(t, tt.wantHum, hum.Percent.StringFixed(2))

			s := Compute(tt.series, models.DefaultSetpoints(), t0, t0.Add(time.Minute))
			require.NotNil(t, s.ReferenceIndex)
			assert.Equal(t, uint64(tt.wantRef), *s.ReferenceIndex)
			assert.Equal(t, tt.series[len(tt.series)-1].Index, s.Latest.Index)
		})
	}
}

func TestChange24h_ShortSeries(t *testing.T) {
	for _, series := range []models.Series{nil, {reading(0, 0, "21", "55")}} {
		temp, hum := Change24h(series)
		assert.True(t, temp.Defined)
		assert.True(t, hum.Defined)
		assert.True(t, temp.Percent.IsZero())
		assert.True(t, hum.Percent.IsZero())
	}
}

func TestChange24h_ZeroReference(t *testing.T) {
	series := models.Series{
		reading(0, 0, "0", "50"),
		reading(1, time.Hour, "2", "40"),
	}
	temp, hum := Change24h(series)
	assert.False(t, temp.Defined)
	assert.Equal(t, "n/a", temp.String())
	require.True(t, hum.Defined)
	assert.Equal(t, "-20.00%", hum.String())
}

func TestChange_JSON(t *testing.T) {
	b, err := json.Marshal(Change{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = json.Marshal(PercentChange(dec("24"), dec("22")))
	require.NoError(t, err)
	assert.Equal(t, `"9.09"`, string(b))
}

func TestElapsedSince(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want Elapsed
	}{
		{"zero", 0, Elapsed{}},
		{"sub-second", 999 * time.Millisecond, Elapsed{}},
		{"mixed", 26*time.Hour + 3*time.Minute + 4*time.Second + 500*time.Millisecond, Elapsed{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}},
		{"negative", -time.Minute, Elapsed{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ElapsedSince(t0, t0.Add(tt.d)))
		})
	}
	assert.Equal(t, "1d 02h 03m 04s", Elapsed{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}.String())
}

func TestCompute(t *testing.T) {
	series := models.Series{
		reading(0, 0, "20", "50"),
		reading(1, 12*time.Hour, "22", "65"),
		reading(2, 30*time.Hour, "24", "72"),
	}

	s := Compute(series, models.DefaultSetpoints(), t0, t0.Add(90*time.Second))

	require.NotNil(t, s.Latest)
	assert.Equal(t, uint64(2), s.Latest.Index)
	require.NotNil(t, s.ReferenceIndex)
	assert.Equal(t, uint64(1), *s.ReferenceIndex)
	assert.Equal(t, "9.09", s.TemperatureChange.Percent.StringFixed(2))
	assert.Equal(t, Counts{Below: 2, Within: 1}, s.TemperatureCounts)
	assert.Equal(t, Counts{Within: 2, Above: 1}, s.HumidityCounts)
	assert.Equal(t, Elapsed{Minutes: 1, Seconds: 30}, s.Elapsed)
}

func TestCompute_EmptySeries(t *testing.T) {
	s := Compute(nil, models.DefaultSetpoints(), t0, t0)

	assert.Nil(t, s.Latest)
	assert.Nil(t, s.ReferenceIndex)
	assert.Empty(t, s.Classes)
	assert.True(t, s.TemperatureChange.Defined)

	_, err := json.Marshal(s)
	assert.NoError(t, err)
}
