package radio

import (
	"math"
	"testing"

	"github.com/banshee-data/position.report/geom"
)

func TestNewRangingReading(t *testing.T) {
	src := testLocatedSource(t, "ap_1", geom.New2D(0, 0))

	r, err := NewRangingReading(src, 3.5)
	if err != nil {
		t.Fatalf("NewRangingReading: %v", err)
	}
	if r.Type() != ReadingRanging {
		t.Errorf("Type = %v, want %v", r.Type(), ReadingRanging)
	}
	if r.Distance() != 3.5 {
		t.Errorf("Distance = %g, want 3.5", r.Distance())
	}
	if !math.IsNaN(r.DistanceStdDev()) {
		t.Errorf("DistanceStdDev = %g, want NaN", r.DistanceStdDev())
	}
	if !math.IsNaN(r.RSSI()) {
		t.Errorf("RSSI = %g, want NaN for a ranging reading", r.RSSI())
	}
	if r.Source() != src {
		t.Error("Source does not round-trip")
	}
}

func TestNewRangingReadingValidation(t *testing.T) {
	src := testLocatedSource(t, "ap_1", geom.New2D(0, 0))

	tests := []struct {
		name     string
		distance float64
		stdDev   float64
	}{
		{"negative distance", -1, math.NaN()},
		{"NaN distance", math.NaN(), math.NaN()},
		{"infinite distance", math.Inf(1), math.NaN()},
		{"zero stddev", 1, 0},
		{"negative stddev", 1, -0.1},
		{"infinite stddev", 1, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRangingReadingWithStdDev(src, tt.distance, tt.stdDev); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := NewRangingReading(nil, 1); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestNewRSSIReading(t *testing.T) {
	src := testPowerSource(t, "ap_1", geom.New2D(0, 0), 20)

	r, err := NewRSSIReadingWithStdDev(src, -55, 1.5)
	if err != nil {
		t.Fatalf("NewRSSIReadingWithStdDev: %v", err)
	}
	if r.Type() != ReadingRSSI {
		t.Errorf("Type = %v, want %v", r.Type(), ReadingRSSI)
	}
	if r.RSSI() != -55 {
		t.Errorf("RSSI = %g, want -55", r.RSSI())
	}
	if r.RSSIStdDev() != 1.5 {
		t.Errorf("RSSIStdDev = %g, want 1.5", r.RSSIStdDev())
	}
	if !math.IsNaN(r.Distance()) {
		t.Errorf("Distance = %g, want NaN for an RSSI reading", r.Distance())
	}
}

func TestNewRSSIReadingValidation(t *testing.T) {
	src := testPowerSource(t, "ap_1", geom.New2D(0, 0), 20)

	if _, err := NewRSSIReading(src, math.NaN()); err == nil {
		t.Error("expected error for NaN rssi")
	}
	if _, err := NewRSSIReading(src, math.Inf(-1)); err == nil {
		t.Error("expected error for infinite rssi")
	}
	if _, err := NewRSSIReadingWithStdDev(src, -55, -1); err == nil {
		t.Error("expected error for negative stddev")
	}
	if _, err := NewRSSIReading(nil, -55); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestNewRangingRSSIReading(t *testing.T) {
	src := testPowerSource(t, "ap_1", geom.New2D(0, 0), 20)

	r, err := NewRangingRSSIReadingWithStdDevs(src, 4.2, -60, 0.3, 2.0)
	if err != nil {
		t.Fatalf("NewRangingRSSIReadingWithStdDevs: %v", err)
	}
	if r.Type() != ReadingRangingRSSI {
		t.Errorf("Type = %v, want %v", r.Type(), ReadingRangingRSSI)
	}
	if r.Distance() != 4.2 || r.RSSI() != -60 {
		t.Errorf("channels = (%g, %g), want (4.2, -60)", r.Distance(), r.RSSI())
	}
	if r.DistanceStdDev() != 0.3 || r.RSSIStdDev() != 2.0 {
		t.Errorf("stddevs = (%g, %g), want (0.3, 2.0)", r.DistanceStdDev(), r.RSSIStdDev())
	}
}

func TestNewRangingRSSIReadingValidation(t *testing.T) {
	src := testPowerSource(t, "ap_1", geom.New2D(0, 0), 20)

	if _, err := NewRangingRSSIReading(src, -1, -60); err == nil {
		t.Error("expected error for negative distance")
	}
	if _, err := NewRangingRSSIReading(src, 1, math.NaN()); err == nil {
		t.Error("expected error for NaN rssi")
	}
	if _, err := NewRangingRSSIReadingWithStdDevs(src, 1, -60, math.NaN(), 0); err == nil {
		t.Error("expected error for zero rssi stddev")
	}
}

func TestReadingTypeString(t *testing.T) {
	tests := []struct {
		readingType ReadingType
		expected    string
	}{
		{ReadingRanging, "ranging"},
		{ReadingRangingRSSI, "ranging+rssi"},
		{ReadingRSSI, "rssi"},
		{ReadingType(42), "unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.readingType.String(); got != tt.expected {
			t.Errorf("String(%d) = %q, want %q", int(tt.readingType), got, tt.expected)
		}
	}
}
