package ranging

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/position.report/geom"
	"github.com/banshee-data/position.report/propagation"
	"github.com/banshee-data/position.report/radio"
)

// ErrMissingTransmitPower marks an RSSI reading whose source does not
// declare a transmit power, leaving the path-loss model underdetermined.
var ErrMissingTransmitPower = errors.New("source has no transmit power for rssi ranging")

const (
	// MinDistance is the floor for extracted ranges in meters. Zero
	// ranges make the trilateration system singular.
	MinDistance = 0.01

	// DefaultFallbackStdDev is assumed for readings that carry no
	// uncertainty of their own, in meters.
	DefaultFallbackStdDev = 0.1
)

// Measurement is one ranged observation: the source position, the
// distance to it and the distance standard deviation, all in meters.
type Measurement struct {
	Position geom.Point
	Distance float64
	StdDev   float64
}

// Config tunes the extraction.
type Config struct {
	// FallbackStdDev is used when a reading provides no usable
	// uncertainty. Must be positive.
	FallbackStdDev float64

	// UseSourcePositionCovariance folds the source position uncertainty
	// into the ranged variance as an isotropic trace/dim term. The
	// bearing to the unknown position is not available at extraction
	// time, so the bound is direction-free.
	UseSourcePositionCovariance bool
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		FallbackStdDev:              DefaultFallbackStdDev,
		UseSourcePositionCovariance: false,
	}
}

// Extractor converts readings into ranged measurements.
type Extractor struct {
	cfg Config
}

// NewExtractor validates the config and builds an extractor.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.FallbackStdDev <= 0 || math.IsNaN(cfg.FallbackStdDev) || math.IsInf(cfg.FallbackStdDev, 0) {
		return nil, fmt.Errorf("fallback standard deviation must be positive, got %g", cfg.FallbackStdDev)
	}
	return &Extractor{cfg: cfg}, nil
}

// NewDefaultExtractor builds an extractor with DefaultConfig.
func NewDefaultExtractor() *Extractor {
	e, err := NewExtractor(DefaultConfig())
	if err != nil {
		// DefaultConfig is always valid.
		panic(err)
	}
	return e
}

// Extract converts one reading into a measurement. Readings with a direct
// distance channel use it; pure RSSI readings are inverted through the
// path-loss model and require a power-aware source.
func (e *Extractor) Extract(r *radio.Reading) (Measurement, error) {
	if r == nil {
		return Measurement{}, fmt.Errorf("reading is nil")
	}
	src := r.Source()

	switch r.Type() {
	case radio.ReadingRanging, radio.ReadingRangingRSSI:
		// Both types carry a validated distance, so the direct channel
		// always wins over the RSSI channel of a combined reading.
		return e.rangedMeasurement(src, r.Distance(), r.DistanceStdDev()), nil
	case radio.ReadingRSSI:
		return e.rssiMeasurement(src, r)
	default:
		return Measurement{}, fmt.Errorf("unsupported reading type %s", r.Type())
	}
}

// ExtractAll converts a batch of readings, skipping the ones that cannot
// produce a measurement. The second result holds the input index of each
// returned measurement.
func (e *Extractor) ExtractAll(readings []*radio.Reading) ([]Measurement, []int) {
	measurements := make([]Measurement, 0, len(readings))
	used := make([]int, 0, len(readings))
	for i, r := range readings {
		m, err := e.Extract(r)
		if err != nil {
			continue
		}
		measurements = append(measurements, m)
		used = append(used, i)
	}
	return measurements, used
}

func (e *Extractor) rangedMeasurement(src *radio.LocatedSource, distance, stdDev float64) Measurement {
	if distance < MinDistance {
		distance = MinDistance
	}
	if math.IsNaN(stdDev) || stdDev <= 0 {
		stdDev = e.cfg.FallbackStdDev
	}
	return Measurement{
		Position: src.Position(),
		Distance: distance,
		StdDev:   stdDev,
	}
}

func (e *Extractor) rssiMeasurement(src *radio.LocatedSource, r *radio.Reading) (Measurement, error) {
	if !src.HasTransmitPower() {
		return Measurement{}, fmt.Errorf("source %q: %w", src.ID(), ErrMissingTransmitPower)
	}
	rssiStdDev := r.RSSIStdDev()
	if math.IsNaN(rssiStdDev) {
		rssiStdDev = 0
	}
	distance, variance, err := propagation.DistanceFromRSSI(propagation.InversionParams{
		TransmitPowerDBm:       src.TransmitPower(),
		RSSIDBm:                r.RSSI(),
		FrequencyHz:            src.Frequency(),
		PathLossExponent:       src.PathLossExponent(),
		TransmitPowerStdDev:    src.TransmitPowerStdDev(),
		RSSIStdDev:             rssiStdDev,
		PathLossExponentStdDev: src.PathLossExponentStdDev(),
	})
	if err != nil {
		return Measurement{}, fmt.Errorf("source %q: %w", src.ID(), err)
	}

	if e.cfg.UseSourcePositionCovariance {
		if cov := src.PositionCovariance(); cov != nil {
			dim := cov.SymmetricDim()
			trace := 0.0
			for i := 0; i < dim; i++ {
				trace += cov.At(i, i)
			}
			variance += trace / float64(dim)
		}
	}

	if distance < MinDistance {
		distance = MinDistance
	}
	stdDev := math.Sqrt(variance)
	if stdDev <= 0 {
		stdDev = e.cfg.FallbackStdDev
	}
	return Measurement{
		Position: src.Position(),
		Distance: distance,
		StdDev:   stdDev,
	}, nil
}
