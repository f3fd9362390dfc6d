package radio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/position.report/geom"
	"github.com/banshee-data/position.report/units"
)

// DefaultPathLossExponent is the free-space path-loss exponent used when a
// source does not declare one.
const DefaultPathLossExponent = 2.0

// Source identifies a radio transmitter such as a WiFi access point.
type Source struct {
	id          string
	frequencyHz float64
}

// NewSource builds a source from its identity and carrier frequency.
func NewSource(id string, frequencyHz float64) (*Source, error) {
	if id == "" {
		return nil, fmt.Errorf("source id must not be empty")
	}
	if !units.IsValidFrequency(frequencyHz) {
		return nil, fmt.Errorf("source %q: invalid frequency %g Hz", id, frequencyHz)
	}
	return &Source{id: id, frequencyHz: frequencyHz}, nil
}

// ID returns the source identity.
func (s *Source) ID() string { return s.id }

// Frequency returns the carrier frequency in Hz.
func (s *Source) Frequency() float64 { return s.frequencyHz }

// LocatedSourceParams collects the inputs for NewLocatedSource. Position is
// required. Power fields only take effect when HasTransmitPower is set;
// zero-valued standard deviations mean the uncertainty is unknown.
type LocatedSourceParams struct {
	ID          string
	FrequencyHz float64
	Position    geom.Point

	HasTransmitPower bool
	TransmitPowerDBm float64

	// PathLossExponent defaults to DefaultPathLossExponent when zero.
	PathLossExponent float64

	TransmitPowerStdDev    float64
	PathLossExponentStdDev float64

	// PositionCovariance is a dim x dim covariance of the source position,
	// or nil when the position is taken as exact.
	PositionCovariance *mat.SymDense
}

// LocatedSource is a Source with a known position, optionally carrying the
// transmit characteristics needed for RSSI-based ranging.
type LocatedSource struct {
	Source

	position geom.Point

	hasTransmitPower bool
	transmitPowerDBm float64

	pathLossExponent float64

	transmitPowerStdDev    float64
	pathLossExponentStdDev float64

	positionCovariance *mat.SymDense
}

// NewLocatedSource validates params and builds an immutable located source.
func NewLocatedSource(p LocatedSourceParams) (*LocatedSource, error) {
	base, err := NewSource(p.ID, p.FrequencyHz)
	if err != nil {
		return nil, err
	}
	dim := p.Position.Dim()
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("source %q: position must be 2D or 3D, got %dD", p.ID, dim)
	}
	if !p.Position.IsFinite() {
		return nil, fmt.Errorf("source %q: position has non-finite coordinates", p.ID)
	}
	exponent := p.PathLossExponent
	if exponent == 0 {
		exponent = DefaultPathLossExponent
	}
	if exponent < 0 || math.IsNaN(exponent) || math.IsInf(exponent, 0) {
		return nil, fmt.Errorf("source %q: invalid path-loss exponent %g", p.ID, p.PathLossExponent)
	}
	if p.HasTransmitPower {
		if math.IsNaN(p.TransmitPowerDBm) || math.IsInf(p.TransmitPowerDBm, 0) {
			return nil, fmt.Errorf("source %q: transmit power must be finite, got %g dBm", p.ID, p.TransmitPowerDBm)
		}
	}
	if p.TransmitPowerStdDev < 0 || p.PathLossExponentStdDev < 0 {
		return nil, fmt.Errorf("source %q: standard deviations must not be negative", p.ID)
	}
	if p.PositionCovariance != nil {
		if r := p.PositionCovariance.SymmetricDim(); r != dim {
			return nil, fmt.Errorf("source %q: position covariance is %dx%d, want %dx%d", p.ID, r, r, dim, dim)
		}
	}
	s := &LocatedSource{
		Source:                 *base,
		position:               p.Position.Clone(),
		hasTransmitPower:       p.HasTransmitPower,
		transmitPowerDBm:       p.TransmitPowerDBm,
		pathLossExponent:       exponent,
		transmitPowerStdDev:    p.TransmitPowerStdDev,
		pathLossExponentStdDev: p.PathLossExponentStdDev,
	}
	if p.PositionCovariance != nil {
		cov := mat.NewSymDense(dim, nil)
		cov.CopySym(p.PositionCovariance)
		s.positionCovariance = cov
	}
	return s, nil
}

// Position returns a copy of the source position.
func (s *LocatedSource) Position() geom.Point { return s.position.Clone() }

// Dim returns the dimensionality of the source position.
func (s *LocatedSource) Dim() int { return s.position.Dim() }

// HasTransmitPower reports whether the source can serve RSSI-based ranging.
func (s *LocatedSource) HasTransmitPower() bool { return s.hasTransmitPower }

// TransmitPower returns the equivalent transmitted power in dBm. Only
// meaningful when HasTransmitPower reports true.
func (s *LocatedSource) TransmitPower() float64 { return s.transmitPowerDBm }

// PathLossExponent returns the propagation exponent for the environment of
// the source. 2.0 is free space.
func (s *LocatedSource) PathLossExponent() float64 { return s.pathLossExponent }

// TransmitPowerStdDev returns the standard deviation of the transmit power
// in dB, or zero when unknown.
func (s *LocatedSource) TransmitPowerStdDev() float64 { return s.transmitPowerStdDev }

// PathLossExponentStdDev returns the standard deviation of the path-loss
// exponent, or zero when unknown.
func (s *LocatedSource) PathLossExponentStdDev() float64 { return s.pathLossExponentStdDev }

// PositionCovariance returns a copy of the source position covariance, or
// nil when the position is exact.
func (s *LocatedSource) PositionCovariance() *mat.SymDense {
	if s.positionCovariance == nil {
		return nil
	}
	cov := mat.NewSymDense(s.positionCovariance.SymmetricDim(), nil)
	cov.CopySym(s.positionCovariance)
	return cov
}
