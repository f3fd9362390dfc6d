package trilateration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/position.report/geom"
)

// DOP reports the dilution of precision of a solve geometry: how strongly
// the source arrangement amplifies range noise into position noise.
type DOP struct {
	// PDOP covers all position axes.
	PDOP float64
	// HDOP covers the horizontal plane.
	HDOP float64
	// VDOP covers the vertical axis. Zero in 2D.
	VDOP float64
}

// ComputeDOP evaluates the dilution of precision of the measurement
// geometry as seen from a solved position. The geometry matrix stacks the
// unit bearings from the position to each source; DOP values are square
// roots of the diagonal blocks of (G^T G)^-1.
func ComputeDOP(positions []geom.Point, at geom.Point) (DOP, error) {
	if at == nil {
		return DOP{}, fmt.Errorf("position is nil")
	}
	dim := at.Dim()
	if dim != 2 && dim != 3 {
		return DOP{}, fmt.Errorf("position must be 2D or 3D, got %dD", dim)
	}
	if len(positions) < dim {
		return DOP{}, fmt.Errorf("%w: got %d bearings, need %d for %dD", ErrTooFewSources, len(positions), dim, dim)
	}

	G := mat.NewDense(len(positions), dim, nil)
	for i, p := range positions {
		if p.Dim() != dim {
			return DOP{}, fmt.Errorf("position %d is %dD, want %dD", i, p.Dim(), dim)
		}
		r := at.DistanceTo(p)
		if r < minRange {
			r = minRange
		}
		for j := 0; j < dim; j++ {
			G.Set(i, j, (at[j]-p[j])/r)
		}
	}

	var gtg mat.Dense
	gtg.Mul(G.T(), G)
	var q mat.Dense
	if err := q.Inverse(&gtg); err != nil {
		return DOP{}, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}

	var dop DOP
	trace := 0.0
	for j := 0; j < dim; j++ {
		trace += q.At(j, j)
	}
	dop.PDOP = sqrtNonNegative(trace)
	dop.HDOP = sqrtNonNegative(q.At(0, 0) + q.At(1, 1))
	if dim == 3 {
		dop.VDOP = sqrtNonNegative(q.At(2, 2))
	}
	return dop, nil
}

func sqrtNonNegative(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
