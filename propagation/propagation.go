// Package propagation implements the free-space path-loss model used to
// turn received signal strength into range estimates.
//
// The model in linear power is
//
//	Pr = Pt * (c / (4*pi*f))^n / d^n
//
// which in the dB domain becomes
//
//	Pr_dBm = Pt_dBm + 10*n*log10(k) - 10*n*log10(d),  k = c/(4*pi*f)
//
// All public functions work in dBm; conversions to linear power live in
// the units package.
package propagation

import (
	"fmt"
	"math"

	"github.com/banshee-data/position.report/units"
)

// k returns the wavelength factor c/(4*pi*f) for a carrier frequency.
func k(frequencyHz float64) float64 {
	return units.SpeedOfLight / (4 * math.Pi * frequencyHz)
}

// ReceivedPowerDBm predicts the received power at the given distance.
func ReceivedPowerDBm(txPowerDBm, distance, frequencyHz, exponent float64) (float64, error) {
	if !units.IsValidFrequency(frequencyHz) {
		return 0, fmt.Errorf("invalid frequency %g Hz", frequencyHz)
	}
	if exponent <= 0 || math.IsNaN(exponent) || math.IsInf(exponent, 0) {
		return 0, fmt.Errorf("invalid path-loss exponent %g", exponent)
	}
	if distance <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0, fmt.Errorf("invalid distance %g m", distance)
	}
	return txPowerDBm + 10*exponent*math.Log10(k(frequencyHz)/distance), nil
}

// InversionParams collects the inputs for DistanceFromRSSI. Standard
// deviations of zero mean the corresponding input is taken as exact.
type InversionParams struct {
	TransmitPowerDBm float64
	RSSIDBm          float64
	FrequencyHz      float64
	PathLossExponent float64

	TransmitPowerStdDev    float64
	RSSIStdDev             float64
	PathLossExponentStdDev float64
}

// DistanceFromRSSI inverts the path-loss model and propagates the input
// uncertainties to a distance variance.
//
// With b = (Pt - Pr)/(10*n) the distance is d = k * 10^b, so
//
//	dd/dPt = d*ln10/(10*n)
//	dd/dPr = -d*ln10/(10*n)
//	dd/dn  = -d*ln10*(Pt-Pr)/(10*n^2)
//
// and the variance is the squared-gradient combination of the three input
// variances.
func DistanceFromRSSI(p InversionParams) (distance, variance float64, err error) {
	if !units.IsValidFrequency(p.FrequencyHz) {
		return 0, 0, fmt.Errorf("invalid frequency %g Hz", p.FrequencyHz)
	}
	if p.PathLossExponent <= 0 || math.IsNaN(p.PathLossExponent) || math.IsInf(p.PathLossExponent, 0) {
		return 0, 0, fmt.Errorf("invalid path-loss exponent %g", p.PathLossExponent)
	}
	if math.IsNaN(p.TransmitPowerDBm) || math.IsInf(p.TransmitPowerDBm, 0) {
		return 0, 0, fmt.Errorf("invalid transmit power %g dBm", p.TransmitPowerDBm)
	}
	if math.IsNaN(p.RSSIDBm) || math.IsInf(p.RSSIDBm, 0) {
		return 0, 0, fmt.Errorf("invalid rssi %g dBm", p.RSSIDBm)
	}
	if p.TransmitPowerStdDev < 0 || p.RSSIStdDev < 0 || p.PathLossExponentStdDev < 0 {
		return 0, 0, fmt.Errorf("standard deviations must not be negative")
	}

	diff := p.TransmitPowerDBm - p.RSSIDBm
	n := p.PathLossExponent
	distance = k(p.FrequencyHz) * math.Pow(10, diff/(10*n))
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0, 0, fmt.Errorf("path-loss inversion diverged for power difference %g dB", diff)
	}

	dPower := distance * math.Ln10 / (10 * n)
	dExponent := -distance * math.Ln10 * diff / (10 * n * n)
	variance = dPower*dPower*p.TransmitPowerStdDev*p.TransmitPowerStdDev +
		dPower*dPower*p.RSSIStdDev*p.RSSIStdDev +
		dExponent*dExponent*p.PathLossExponentStdDev*p.PathLossExponentStdDev
	return distance, variance, nil
}
