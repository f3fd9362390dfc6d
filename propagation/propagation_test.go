package propagation

import (
	"math"
	"testing"

	"github.com/banshee-data/position.report/internal/testutil"
	"github.com/banshee-data/position.report/units"
)

func TestDistanceRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		freq     float64
		exponent float64
	}{
		{"1m free space 2.4GHz", 1, units.Band24GHz, 2.0},
		{"10m free space 2.4GHz", 10, units.Band24GHz, 2.0},
		{"50m free space 5GHz", 50, units.Band5GHz, 2.0},
		{"indoor exponent", 8, units.Band24GHz, 2.7},
		{"short range", 0.5, units.Band5GHz, 2.0},
	}

	const txPower = 20.0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rssi, err := ReceivedPowerDBm(txPower, tt.distance, tt.freq, tt.exponent)
			testutil.AssertNoError(t, err)
			got, variance, err := DistanceFromRSSI(InversionParams{
				TransmitPowerDBm: txPower,
				RSSIDBm:          rssi,
				FrequencyHz:      tt.freq,
				PathLossExponent: tt.exponent,
			})
			testutil.AssertNoError(t, err)
			testutil.AssertInDelta(t, got, tt.distance, 1e-9*tt.distance)
			if variance != 0 {
				t.Errorf("variance = %g with exact inputs, want 0", variance)
			}
		})
	}
}

func TestReceivedPowerFallsWithDistance(t *testing.T) {
	prev := math.Inf(1)
	for _, d := range []float64{1, 2, 5, 10, 25, 100} {
		rssi, err := ReceivedPowerDBm(20, d, units.Band24GHz, 2.0)
		if err != nil {
			t.Fatalf("ReceivedPowerDBm(%g): %v", d, err)
		}
		if rssi >= prev {
			t.Errorf("received power did not fall at %g m: %g >= %g", d, rssi, prev)
		}
		prev = rssi
	}
}

// The analytic gradient behind the variance propagation should agree with
// a central finite difference of the inversion.
func TestVarianceMatchesFiniteDifference(t *testing.T) {
	base := InversionParams{
		TransmitPowerDBm: 17,
		RSSIDBm:          -52,
		FrequencyHz:      units.Band24GHz,
		PathLossExponent: 2.1,
	}
	d0, _, err := DistanceFromRSSI(base)
	if err != nil {
		t.Fatalf("DistanceFromRSSI: %v", err)
	}

	const h = 1e-6
	distAt := func(p InversionParams) float64 {
		d, _, err := DistanceFromRSSI(p)
		if err != nil {
			t.Fatalf("DistanceFromRSSI: %v", err)
		}
		return d
	}

	up, down := base, base
	up.TransmitPowerDBm += h
	down.TransmitPowerDBm -= h
	dPowerNumeric := (distAt(up) - distAt(down)) / (2 * h)
	dPowerAnalytic := d0 * math.Ln10 / (10 * base.PathLossExponent)
	if math.Abs(dPowerNumeric-dPowerAnalytic) > 1e-5*math.Abs(dPowerAnalytic) {
		t.Errorf("power gradient = %g, finite difference %g", dPowerAnalytic, dPowerNumeric)
	}

	up, down = base, base
	up.PathLossExponent += h
	down.PathLossExponent -= h
	dExpNumeric := (distAt(up) - distAt(down)) / (2 * h)
	diff := base.TransmitPowerDBm - base.RSSIDBm
	dExpAnalytic := -d0 * math.Ln10 * diff / (10 * base.PathLossExponent * base.PathLossExponent)
	if math.Abs(dExpNumeric-dExpAnalytic) > 1e-4*math.Abs(dExpAnalytic) {
		t.Errorf("exponent gradient = %g, finite difference %g", dExpAnalytic, dExpNumeric)
	}
}

func TestVarianceGrowsWithUncertainty(t *testing.T) {
	base := InversionParams{
		TransmitPowerDBm: 20,
		RSSIDBm:          -60,
		FrequencyHz:      units.Band24GHz,
		PathLossExponent: 2.0,
	}

	var prev float64
	for i, sd := range []float64{0, 0.5, 1, 2, 4} {
		p := base
		p.RSSIStdDev = sd
		_, variance, err := DistanceFromRSSI(p)
		if err != nil {
			t.Fatalf("DistanceFromRSSI: %v", err)
		}
		if i > 0 && variance <= prev {
			t.Errorf("variance did not grow with rssi stddev %g: %g <= %g", sd, variance, prev)
		}
		prev = variance
	}
}

func TestDistanceFromRSSIValidation(t *testing.T) {
	valid := InversionParams{
		TransmitPowerDBm: 20,
		RSSIDBm:          -60,
		FrequencyHz:      units.Band24GHz,
		PathLossExponent: 2.0,
	}

	tests := []struct {
		name   string
		mutate func(*InversionParams)
	}{
		{"zero frequency", func(p *InversionParams) { p.FrequencyHz = 0 }},
		{"zero exponent", func(p *InversionParams) { p.PathLossExponent = 0 }},
		{"negative exponent", func(p *InversionParams) { p.PathLossExponent = -2 }},
		{"NaN transmit power", func(p *InversionParams) { p.TransmitPowerDBm = math.NaN() }},
		{"infinite rssi", func(p *InversionParams) { p.RSSIDBm = math.Inf(1) }},
		{"negative stddev", func(p *InversionParams) { p.RSSIStdDev = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			_, _, err := DistanceFromRSSI(p)
			testutil.AssertError(t, err)
		})
	}

	if _, err := ReceivedPowerDBm(20, 0, units.Band24GHz, 2.0); err == nil {
		t.Error("expected error for zero distance")
	}
	if _, err := ReceivedPowerDBm(20, 5, units.Band24GHz, 0); err == nil {
		t.Error("expected error for zero exponent")
	}
}
