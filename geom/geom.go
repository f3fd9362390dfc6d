// Package geom provides dimension-generic point arithmetic shared by the
// ranging and trilateration layers.
//
// Points are plain coordinate slices. Operations follow the gonum
// convention of panicking on dimension mismatch; mismatches are programmer
// errors, not runtime conditions. User-supplied geometry is validated at
// the radio model boundary before it reaches this package.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Point is a coordinate vector in 2 or 3 dimensions. The solver layers are
// dimension-generic and treat the length as the dimensionality.
type Point []float64

// New2D returns a two-dimensional point.
func New2D(x, y float64) Point {
	return Point{x, y}
}

// New3D returns a three-dimensional point.
func New3D(x, y, z float64) Point {
	return Point{x, y, z}
}

// Zero returns the origin of the given dimensionality.
func Zero(dim int) Point {
	return make(Point, dim)
}

// Dim returns the dimensionality of the point.
func (p Point) Dim() int {
	return len(p)
}

// Clone returns an independent copy of the point.
func (p Point) Clone() Point {
	if p == nil {
		return nil
	}
	q := make(Point, len(p))
	copy(q, p)
	return q
}

// DistanceTo returns the Euclidean distance to q.
func (p Point) DistanceTo(q Point) float64 {
	return floats.Distance(p, q, 2)
}

// SquaredDistanceTo returns the squared Euclidean distance to q.
func (p Point) SquaredDistanceTo(q Point) float64 {
	d := floats.Distance(p, q, 2)
	return d * d
}

// NormSq returns the squared Euclidean norm of the point.
func (p Point) NormSq() float64 {
	return floats.Dot(p, p)
}

// EqualWithin reports whether every coordinate of p is within tol of the
// corresponding coordinate of q.
func (p Point) EqualWithin(q Point, tol float64) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if math.Abs(p[i]-q[i]) > tol {
			return false
		}
	}
	return true
}

// IsFinite reports whether every coordinate is a finite number.
func (p Point) IsFinite() bool {
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// String renders the point for logs and error messages.
func (p Point) String() string {
	return fmt.Sprintf("%v", []float64(p))
}

// Centroid returns the arithmetic mean of the points. Returns nil for an
// empty input. All points must share one dimensionality.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return nil
	}
	c := Zero(points[0].Dim())
	for _, p := range points {
		floats.Add(c, p)
	}
	floats.Scale(1/float64(len(points)), c)
	return c
}
