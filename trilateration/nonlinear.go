package trilateration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/position.report/geom"
)

// ErrNotConverged marks an iterative refinement that exhausted its budget
// without meeting the convergence tolerances.
var ErrNotConverged = errors.New("refinement did not converge")

const (
	minDamping = 1e-12
	maxDamping = 1e12

	// minRange guards the Jacobian when the estimate sits on a source.
	minRange = 1e-9
)

// NonlinearConfig tunes the damped least-squares refinement.
type NonlinearConfig struct {
	// MaxIterations bounds the accepted plus rejected steps.
	MaxIterations int

	// StepTolerance stops the iteration when the accepted step is small
	// relative to the position magnitude.
	StepTolerance float64

	// CostTolerance stops the iteration when an accepted step no longer
	// improves the weighted cost by a meaningful fraction.
	CostTolerance float64

	// InitialDamping seeds the Levenberg-Marquardt damping factor.
	InitialDamping float64
}

// DefaultNonlinearConfig returns the refinement defaults.
func DefaultNonlinearConfig() NonlinearConfig {
	return NonlinearConfig{
		MaxIterations:  50,
		StepTolerance:  1e-10,
		CostTolerance:  1e-12,
		InitialDamping: 1e-3,
	}
}

// SolveNonlinear refines a position estimate by Levenberg-Marquardt over
// the weighted range residuals r_i = (|x - p_i| - d_i)/sigma_i. A nil
// initial position starts from the measurement centroid. On success the
// second result carries the covariance (J^T J)^-1 of the weighted system
// at the solution, or nil when the final geometry cannot be factorized.
func SolveNonlinear(positions []geom.Point, distances, stdDevs []float64, initial geom.Point, cfg NonlinearConfig) (geom.Point, *mat.SymDense, error) {
	dim, err := validateMeasurements(positions, distances)
	if err != nil {
		return nil, nil, err
	}
	if len(stdDevs) != len(positions) {
		return nil, nil, fmt.Errorf("got %d standard deviations for %d measurements", len(stdDevs), len(positions))
	}
	for i, sd := range stdDevs {
		if sd <= 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
			return nil, nil, fmt.Errorf("standard deviation %d must be positive, got %g", i, sd)
		}
	}
	if cfg.MaxIterations <= 0 {
		return nil, nil, fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if initial == nil {
		initial = geom.Centroid(positions)
	}
	if initial.Dim() != dim {
		return nil, nil, fmt.Errorf("initial position is %dD, want %dD", initial.Dim(), dim)
	}
	if !initial.IsFinite() {
		return nil, nil, fmt.Errorf("initial position has non-finite coordinates")
	}

	n := len(positions)
	x := initial.Clone()
	residuals := make([]float64, n)
	jacobian := mat.NewDense(n, dim, nil)

	// costAt leaves the shared residual and Jacobian state untouched, so
	// rejected candidate steps do not corrupt the next iteration.
	costAt := func(at geom.Point) float64 {
		cost := 0.0
		for i := 0; i < n; i++ {
			r := at.DistanceTo(positions[i])
			if r < minRange {
				r = minRange
			}
			res := (r - distances[i]) / stdDevs[i]
			cost += res * res
		}
		return cost
	}

	linearize := func(at geom.Point) {
		for i := 0; i < n; i++ {
			r := at.DistanceTo(positions[i])
			if r < minRange {
				r = minRange
			}
			residuals[i] = (r - distances[i]) / stdDevs[i]
			for j := 0; j < dim; j++ {
				jacobian.Set(i, j, (at[j]-positions[i][j])/(r*stdDevs[i]))
			}
		}
	}

	damping := cfg.InitialDamping
	cost := costAt(x)
	linearize(x)
	converged := false

	for iter := 0; iter < cfg.MaxIterations && !converged; iter++ {
		var jtj mat.Dense
		jtj.Mul(jacobian.T(), jacobian)
		r := mat.NewVecDense(n, residuals)
		var jtr mat.VecDense
		jtr.MulVec(jacobian.T(), r)
		jtr.ScaleVec(-1, &jtr)

		// Marquardt scaling keeps the damped step well conditioned for
		// mixed coordinate magnitudes.
		var damped mat.Dense
		damped.CloneFrom(&jtj)
		for j := 0; j < dim; j++ {
			damped.Set(j, j, jtj.At(j, j)+damping*math.Max(jtj.At(j, j), minDamping))
		}

		var step mat.VecDense
		if err := step.SolveVec(&damped, &jtr); err != nil {
			damping *= 10
			if damping > maxDamping {
				return x, nil, fmt.Errorf("%w: damped system stayed singular", ErrNotConverged)
			}
			continue
		}

		candidate := x.Clone()
		stepNorm := 0.0
		for j := 0; j < dim; j++ {
			candidate[j] += step.AtVec(j)
			stepNorm += step.AtVec(j) * step.AtVec(j)
		}
		stepNorm = math.Sqrt(stepNorm)

		newCost := costAt(candidate)
		if newCost <= cost {
			improvement := cost - newCost
			x = candidate
			cost = newCost
			damping = math.Max(damping/10, minDamping)
			if stepNorm <= cfg.StepTolerance*(math.Sqrt(x.NormSq())+cfg.StepTolerance) {
				converged = true
			}
			if improvement <= cfg.CostTolerance*math.Max(cost, cfg.CostTolerance) {
				converged = true
			}
			linearize(x)
		} else {
			damping *= 10
			if damping > maxDamping {
				break
			}
		}
	}

	if !converged {
		return x, nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, cfg.MaxIterations)
	}

	return x, covarianceOf(jacobian, dim), nil
}

// covarianceOf inverts J^T J for the weighted Jacobian at the solution.
// Returns nil when the factorization fails; callers treat the covariance
// as unavailable rather than failing the solve.
func covarianceOf(jacobian *mat.Dense, dim int) *mat.SymDense {
	var jtj mat.Dense
	jtj.Mul(jacobian.T(), jacobian)

	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, jtj.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil
	}
	return &inv
}
