package radio

import "fmt"

// Fingerprint is the ordered set of readings captured at one unknown
// position. Insertion order is preserved; it is the tiebreak order for
// quality ranking downstream.
type Fingerprint struct {
	readings []*Reading
	dim      int
}

// NewFingerprint validates the readings and builds a fingerprint. All
// readings must be non-nil and taken against sources of one shared
// dimensionality.
func NewFingerprint(readings []*Reading) (*Fingerprint, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("fingerprint requires at least one reading")
	}
	dim := 0
	for i, r := range readings {
		if r == nil {
			return nil, fmt.Errorf("fingerprint reading %d is nil", i)
		}
		d := r.Source().Dim()
		if dim == 0 {
			dim = d
		} else if d != dim {
			return nil, fmt.Errorf("fingerprint reading %d is %dD, want %dD", i, d, dim)
		}
	}
	fp := &Fingerprint{
		readings: make([]*Reading, len(readings)),
		dim:      dim,
	}
	copy(fp.readings, readings)
	return fp, nil
}

// Len returns the number of readings.
func (f *Fingerprint) Len() int { return len(f.readings) }

// Dim returns the dimensionality shared by all reading sources.
func (f *Fingerprint) Dim() int { return f.dim }

// Readings returns the readings in insertion order. The slice is a copy;
// the readings themselves are immutable.
func (f *Fingerprint) Readings() []*Reading {
	out := make([]*Reading, len(f.readings))
	copy(out, f.readings)
	return out
}

// At returns the reading at index i in insertion order.
func (f *Fingerprint) At(i int) *Reading { return f.readings[i] }
