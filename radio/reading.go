package radio

import (
	"fmt"
	"math"
)

// ReadingType discriminates the measurement channels a reading carries.
type ReadingType int

const (
	// ReadingRanging carries a direct distance measurement.
	ReadingRanging ReadingType = iota
	// ReadingRangingRSSI carries both a distance and a received power.
	ReadingRangingRSSI
	// ReadingRSSI carries a received power only.
	ReadingRSSI
)

// String renders the reading type for logs and error messages.
func (t ReadingType) String() string {
	switch t {
	case ReadingRanging:
		return "ranging"
	case ReadingRangingRSSI:
		return "ranging+rssi"
	case ReadingRSSI:
		return "rssi"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Reading is a single immutable measurement of one source. Absent values
// are NaN; the typed constructors guarantee the fields required by the
// reading type are present and valid.
type Reading struct {
	readingType ReadingType
	source      *LocatedSource

	distance       float64
	distanceStdDev float64

	rssiDBm    float64
	rssiStdDev float64
}

// NewRangingReading builds a reading from a measured distance in meters.
func NewRangingReading(source *LocatedSource, distance float64) (*Reading, error) {
	return NewRangingReadingWithStdDev(source, distance, math.NaN())
}

// NewRangingReadingWithStdDev builds a ranging reading with a known
// measurement standard deviation in meters.
func NewRangingReadingWithStdDev(source *LocatedSource, distance, stdDev float64) (*Reading, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}
	if distance < 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return nil, fmt.Errorf("reading for %q: distance must be finite and non-negative, got %g", source.ID(), distance)
	}
	if err := validateStdDev(source, stdDev); err != nil {
		return nil, err
	}
	return &Reading{
		readingType:    ReadingRanging,
		source:         source,
		distance:       distance,
		distanceStdDev: stdDev,
		rssiDBm:        math.NaN(),
		rssiStdDev:     math.NaN(),
	}, nil
}

// NewRSSIReading builds a reading from a received power in dBm.
func NewRSSIReading(source *LocatedSource, rssiDBm float64) (*Reading, error) {
	return NewRSSIReadingWithStdDev(source, rssiDBm, math.NaN())
}

// NewRSSIReadingWithStdDev builds an RSSI reading with a known received
// power standard deviation in dB.
func NewRSSIReadingWithStdDev(source *LocatedSource, rssiDBm, stdDev float64) (*Reading, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}
	if math.IsNaN(rssiDBm) || math.IsInf(rssiDBm, 0) {
		return nil, fmt.Errorf("reading for %q: rssi must be finite, got %g dBm", source.ID(), rssiDBm)
	}
	if err := validateStdDev(source, stdDev); err != nil {
		return nil, err
	}
	return &Reading{
		readingType: ReadingRSSI,
		source:      source,
		distance:    math.NaN(),
		// distanceStdDev stays NaN so the extractor falls back.
		distanceStdDev: math.NaN(),
		rssiDBm:        rssiDBm,
		rssiStdDev:     stdDev,
	}, nil
}

// NewRangingRSSIReading builds a combined reading carrying both channels.
func NewRangingRSSIReading(source *LocatedSource, distance, rssiDBm float64) (*Reading, error) {
	return NewRangingRSSIReadingWithStdDevs(source, distance, rssiDBm, math.NaN(), math.NaN())
}

// NewRangingRSSIReadingWithStdDevs builds a combined reading with known
// standard deviations for both channels.
func NewRangingRSSIReadingWithStdDevs(source *LocatedSource, distance, rssiDBm, distanceStdDev, rssiStdDev float64) (*Reading, error) {
	r, err := NewRangingReadingWithStdDev(source, distance, distanceStdDev)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(rssiDBm) || math.IsInf(rssiDBm, 0) {
		return nil, fmt.Errorf("reading for %q: rssi must be finite, got %g dBm", source.ID(), rssiDBm)
	}
	if err := validateStdDev(source, rssiStdDev); err != nil {
		return nil, err
	}
	r.readingType = ReadingRangingRSSI
	r.rssiDBm = rssiDBm
	r.rssiStdDev = rssiStdDev
	return r, nil
}

func validateSource(source *LocatedSource) error {
	if source == nil {
		return fmt.Errorf("reading requires a located source")
	}
	return nil
}

func validateStdDev(source *LocatedSource, stdDev float64) error {
	// NaN marks an absent standard deviation; when present it must be a
	// positive finite number.
	if math.IsNaN(stdDev) {
		return nil
	}
	if stdDev <= 0 || math.IsInf(stdDev, 0) {
		return fmt.Errorf("reading for %q: standard deviation must be positive, got %g", source.ID(), stdDev)
	}
	return nil
}

// Type returns the measurement channels carried by the reading.
func (r *Reading) Type() ReadingType { return r.readingType }

// Source returns the located source the reading was taken against.
func (r *Reading) Source() *LocatedSource { return r.source }

// Distance returns the measured distance in meters, or NaN when the
// reading type carries no distance channel.
func (r *Reading) Distance() float64 { return r.distance }

// DistanceStdDev returns the distance standard deviation in meters, or NaN
// when unknown.
func (r *Reading) DistanceStdDev() float64 { return r.distanceStdDev }

// RSSI returns the received power in dBm, or NaN when the reading type
// carries no RSSI channel.
func (r *Reading) RSSI() float64 { return r.rssiDBm }

// RSSIStdDev returns the received power standard deviation in dB, or NaN
// when unknown.
func (r *Reading) RSSIStdDev() float64 { return r.rssiStdDev }
