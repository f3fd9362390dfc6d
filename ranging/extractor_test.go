package ranging

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/position.report/geom"
	"github.com/banshee-data/position.report/propagation"
	"github.com/banshee-data/position.report/radio"
	"github.com/banshee-data/position.report/units"
)

func rangingSource(t *testing.T, id string, pos geom.Point) *radio.LocatedSource {
	t.Helper()
	src, err := radio.NewLocatedSource(radio.LocatedSourceParams{
		ID:          id,
		FrequencyHz: units.Band24GHz,
		Position:    pos,
	})
	if err != nil {
		t.Fatalf("NewLocatedSource: %v", err)
	}
	return src
}

func powerSource(t *testing.T, id string, pos geom.Point, params radio.LocatedSourceParams) *radio.LocatedSource {
	t.Helper()
	params.ID = id
	params.FrequencyHz = units.Band24GHz
	params.Position = pos
	params.HasTransmitPower = true
	if params.TransmitPowerDBm == 0 {
		params.TransmitPowerDBm = 20
	}
	src, err := radio.NewLocatedSource(params)
	if err != nil {
		t.Fatalf("NewLocatedSource: %v", err)
	}
	return src
}

func TestExtractRanging(t *testing.T) {
	e := NewDefaultExtractor()
	src := rangingSource(t, "ap_1", geom.New2D(3, 4))

	r, err := radio.NewRangingReadingWithStdDev(src, 7.5, 0.25)
	if err != nil {
		t.Fatalf("NewRangingReadingWithStdDev: %v", err)
	}
	m, err := e.Extract(r)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !m.Position.EqualWithin(geom.New2D(3, 4), 0) {
		t.Errorf("Position = %v, want (3,4)", m.Position)
	}
	if m.Distance != 7.5 {
		t.Errorf("Distance = %g, want 7.5", m.Distance)
	}
	if m.StdDev != 0.25 {
		t.Errorf("StdDev = %g, want 0.25", m.StdDev)
	}
}

func TestExtractRangingFallbackStdDev(t *testing.T) {
	e := NewDefaultExtractor()
	src := rangingSource(t, "ap_1", geom.New2D(0, 0))

	r, err := radio.NewRangingReading(src, 2)
	if err != nil {
		t.Fatalf("NewRangingReading: %v", err)
	}
	m, err := e.Extract(r)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m.StdDev != DefaultFallbackStdDev {
		t.Errorf("StdDev = %g, want fallback %g", m.StdDev, DefaultFallbackStdDev)
	}
}

func TestExtractRangingFloorsTinyDistance(t *testing.T) {
	e := NewDefaultExtractor()
	src := rangingSource(t, "ap_1", geom.New2D(0, 0))

	r, err := radio.NewRangingReading(src, 0)
	if err != nil {
		t.Fatalf("NewRangingReading: %v", err)
	}
	m, err := e.Extract(r)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m.Distance != MinDistance {
		t.Errorf("Distance = %g, want floored to %g", m.Distance, MinDistance)
	}
}

func TestExtractRSSIRoundTrip(t *testing.T) {
	e := NewDefaultExtractor()
	src := powerSource(t, "ap_1", geom.New2D(0, 0), radio.LocatedSourceParams{})

	const trueDistance = 12.0
	rssi, err := propagation.ReceivedPowerDBm(src.TransmitPower(), trueDistance, src.Frequency(), src.PathLossExponent())
	if err != nil {
		t.Fatalf("ReceivedPowerDBm: %v", err)
	}
	r, err := radio.NewRSSIReading(src, rssi)
	if err != nil {
		t.Fatalf("NewRSSIReading: %v", err)
	}
	m, err := e.Extract(r)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if math.Abs(m.Distance-trueDistance) > 1e-9*trueDistance {
		t.Errorf("Distance = %g, want %g", m.Distance, trueDistance)
	}
	// Exact inputs carry no variance, so the fallback applies.
	if m.StdDev != DefaultFallbackStdDev {
		t.Errorf("StdDev = %g, want fallback %g", m.StdDev, DefaultFallbackStdDev)
	}
}

func TestExtractRSSIPropagatesUncertainty(t *testing.T) {
	e := NewDefaultExtractor()
	src := powerSource(t, "ap_1", geom.New2D(0, 0), radio.LocatedSourceParams{
		TransmitPowerStdDev: 1.0,
	})

	r, err := radio.NewRSSIReadingWithStdDev(src, -60, 2.0)
	if err != nil {
		t.Fatalf("NewRSSIReadingWithStdDev: %v", err)
	}
	m, err := e.Extract(r)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m.StdDev <= 0 || m.StdDev == DefaultFallbackStdDev {
		t.Errorf("StdDev = %g, want propagated uncertainty", m.StdDev)
	}
}

func TestExtractRSSIMissingPower(t *testing.T) {
	e := NewDefaultExtractor()
	src := rangingSource(t, "ap_1", geom.New2D(0, 0))

	r, err := radio.NewRSSIReading(src, -60)
	if err != nil {
		t.Fatalf("NewRSSIReading: %v", err)
	}
	_, err = e.Extract(r)
	if !errors.Is(err, ErrMissingTransmitPower) {
		t.Errorf("Extract error = %v, want ErrMissingTransmitPower", err)
	}
}

func TestExtractCombinedPrefersRanging(t *testing.T) {
	e := NewDefaultExtractor()
	src := powerSource(t, "ap_1", geom.New2D(0, 0), radio.LocatedSourceParams{})

	// The RSSI channel implies a very different distance; the direct
	// distance channel must win.
	r, err := radio.NewRangingRSSIReading(src, 5, -90)
	if err != nil {
		t.Fatalf("NewRangingRSSIReading: %v", err)
	}
	m, err := e.Extract(r)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m.Distance != 5 {
		t.Errorf("Distance = %g, want ranging channel value 5", m.Distance)
	}
}

func TestExtractSourceCovarianceFoldsIn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseSourcePositionCovariance = true
	e, err := NewExtractor(cfg)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	withCov := powerSource(t, "ap_cov", geom.New2D(0, 0), radio.LocatedSourceParams{
		PositionCovariance: mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25}),
	})
	without := powerSource(t, "ap_exact", geom.New2D(0, 0), radio.LocatedSourceParams{})

	readingFor := func(src *radio.LocatedSource) *radio.Reading {
		r, err := radio.NewRSSIReadingWithStdDev(src, -60, 1.0)
		if err != nil {
			t.Fatalf("NewRSSIReadingWithStdDev: %v", err)
		}
		return r
	}

	mCov, err := e.Extract(readingFor(withCov))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	mExact, err := e.Extract(readingFor(without))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if mCov.StdDev <= mExact.StdDev {
		t.Errorf("covariance did not widen uncertainty: %g <= %g", mCov.StdDev, mExact.StdDev)
	}
}

func TestExtractAllSkipsUnusable(t *testing.T) {
	e := NewDefaultExtractor()
	ranged := rangingSource(t, "ap_ranged", geom.New2D(0, 0))
	powered := powerSource(t, "ap_power", geom.New2D(5, 0), radio.LocatedSourceParams{})

	r0, err := radio.NewRangingReading(ranged, 2)
	if err != nil {
		t.Fatalf("NewRangingReading: %v", err)
	}
	r1, err := radio.NewRSSIReading(ranged, -60) // no transmit power: unusable
	if err != nil {
		t.Fatalf("NewRSSIReading: %v", err)
	}
	r2, err := radio.NewRSSIReading(powered, -60)
	if err != nil {
		t.Fatalf("NewRSSIReading: %v", err)
	}

	measurements, used := e.ExtractAll([]*radio.Reading{r0, r1, r2})
	if len(measurements) != 2 {
		t.Fatalf("got %d measurements, want 2", len(measurements))
	}
	if used[0] != 0 || used[1] != 2 {
		t.Errorf("used indices = %v, want [0 2]", used)
	}
}

func TestNewExtractorValidation(t *testing.T) {
	for _, sd := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := NewExtractor(Config{FallbackStdDev: sd}); err == nil {
			t.Errorf("NewExtractor accepted fallback stddev %g", sd)
		}
	}
}
