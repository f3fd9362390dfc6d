// Package units provides shared constants and conversions for radio power
// and frequency units
package units

import "math"

// SpeedOfLight is the propagation speed of radio waves in vacuum, in m/s.
const SpeedOfLight = 299792458.0

// Carrier frequency constants for common WiFi bands, in Hz.
const (
	Band24GHz = 2.4e9
	Band5GHz  = 5.0e9
)

// DBmToMilliwatts converts a power level from dBm to milliwatts.
func DBmToMilliwatts(dBm float64) float64 {
	return math.Pow(10.0, dBm/10.0)
}

// MilliwattsToDBm converts a power level from milliwatts to dBm.
// Non-positive power has no dBm representation and maps to -Inf.
func MilliwattsToDBm(mW float64) float64 {
	if mW <= 0 {
		return math.Inf(-1)
	}
	return 10.0 * math.Log10(mW)
}

// IsValidFrequency checks that a carrier frequency is positive and finite.
func IsValidFrequency(hz float64) bool {
	return hz > 0 && !math.IsNaN(hz) && !math.IsInf(hz, 1)
}
