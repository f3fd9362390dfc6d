package trilateration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/position.report/geom"
)

var (
	// ErrTooFewSources marks a solve attempted below the minimum
	// measurement count for the dimensionality.
	ErrTooFewSources = errors.New("too few sources for trilateration")

	// ErrDegenerateGeometry marks a singular source arrangement, such as
	// collinear sources in 2D or coplanar sources in 3D.
	ErrDegenerateGeometry = errors.New("source geometry is degenerate")
)

// rankTolerance is the relative singular-value cutoff below which the
// linearized system is treated as rank deficient.
const rankTolerance = 1e-12

// MinRequiredSources returns the smallest number of ranged measurements
// that determines a position in the given dimensionality.
func MinRequiredSources(dim int) int {
	return dim + 1
}

// SolveLinear estimates a position from ranged measurements in closed
// form. Differencing the squared ranges against the last measurement as
// reference gives one linear row per remaining measurement:
//
//	2*(p_ref - p_i) . x = d_i^2 - d_ref^2 - |p_i|^2 + |p_ref|^2
//
// The inhomogeneous mode solves the rows by least squares. The
// homogeneous mode augments the rows with the right-hand side, takes the
// null direction of the augmented system from an SVD and dehomogenizes,
// which spreads the conditioning over one extra unknown.
func SolveLinear(positions []geom.Point, distances []float64, homogeneous bool) (geom.Point, error) {
	dim, err := validateMeasurements(positions, distances)
	if err != nil {
		return nil, err
	}

	rows := len(positions) - 1
	ref := positions[len(positions)-1]
	refDist := distances[len(distances)-1]
	refNormSq := ref.NormSq()

	aData := make([]float64, rows*dim)
	bData := make([]float64, rows)
	for i := 0; i < rows; i++ {
		p := positions[i]
		for j := 0; j < dim; j++ {
			aData[i*dim+j] = 2 * (ref[j] - p[j])
		}
		bData[i] = distances[i]*distances[i] - refDist*refDist - p.NormSq() + refNormSq
	}

	if homogeneous {
		return solveHomogeneous(rows, dim, aData, bData)
	}
	return solveInhomogeneous(rows, dim, aData, bData)
}

func solveInhomogeneous(rows, dim int, aData, bData []float64) (geom.Point, error) {
	A := mat.NewDense(rows, dim, aData)
	b := mat.NewVecDense(rows, bData)

	var qr mat.QR
	qr.Factorize(A)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}

	out := geom.Zero(dim)
	for j := 0; j < dim; j++ {
		out[j] = x.AtVec(j)
	}
	if !out.IsFinite() {
		return nil, fmt.Errorf("%w: non-finite solution", ErrDegenerateGeometry)
	}
	return out, nil
}

func solveHomogeneous(rows, dim int, aData, bData []float64) (geom.Point, error) {
	// Augmented system M * (x, 1)^T = 0 with M = [A | -b].
	cols := dim + 1
	mData := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		copy(mData[i*cols:], aData[i*dim:(i+1)*dim])
		mData[i*cols+dim] = -bData[i]
	}
	M := mat.NewDense(rows, cols, mData)

	var svd mat.SVD
	if ok := svd.Factorize(M, mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: svd did not converge", ErrDegenerateGeometry)
	}

	// The data directions must span the position unknowns. In the
	// minimal case all singular values are data directions; with
	// redundancy the smallest one measures residual and is allowed to
	// vanish.
	vals := svd.Values(nil)
	guard := vals[len(vals)-1]
	if rows >= cols {
		guard = vals[len(vals)-2]
	}
	if guard <= rankTolerance*vals[0] {
		return nil, fmt.Errorf("%w: rank-deficient linear system", ErrDegenerateGeometry)
	}

	var V mat.Dense
	svd.VTo(&V)

	// Null direction of the augmented system.
	v := make([]float64, cols)
	norm := 0.0
	for j := 0; j < cols; j++ {
		v[j] = V.At(j, cols-1)
		norm += v[j] * v[j]
	}
	norm = math.Sqrt(norm)

	w := v[dim]
	if math.Abs(w) <= rankTolerance*norm {
		return nil, fmt.Errorf("%w: solution at infinity", ErrDegenerateGeometry)
	}

	out := geom.Zero(dim)
	for j := 0; j < dim; j++ {
		out[j] = v[j] / w
	}
	if !out.IsFinite() {
		return nil, fmt.Errorf("%w: non-finite solution", ErrDegenerateGeometry)
	}
	return out, nil
}

func validateMeasurements(positions []geom.Point, distances []float64) (int, error) {
	if len(positions) == 0 {
		return 0, fmt.Errorf("%w: no measurements", ErrTooFewSources)
	}
	if len(positions) != len(distances) {
		return 0, fmt.Errorf("got %d positions for %d distances", len(positions), len(distances))
	}
	dim := positions[0].Dim()
	if dim != 2 && dim != 3 {
		return 0, fmt.Errorf("positions must be 2D or 3D, got %dD", dim)
	}
	if len(positions) < MinRequiredSources(dim) {
		return 0, fmt.Errorf("%w: got %d measurements, need %d for %dD", ErrTooFewSources, len(positions), MinRequiredSources(dim), dim)
	}
	for i, p := range positions {
		if p.Dim() != dim {
			return 0, fmt.Errorf("position %d is %dD, want %dD", i, p.Dim(), dim)
		}
		if !p.IsFinite() {
			return 0, fmt.Errorf("position %d has non-finite coordinates", i)
		}
	}
	for i, d := range distances {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, fmt.Errorf("distance %d must be finite and non-negative, got %g", i, d)
		}
	}
	return dim, nil
}
