package sac

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/position.report/geom"
)

var (
	// ErrNoConsensus marks a consensus loop that exhausted its iteration
	// budget without finding a model supported by a minimal inlier set.
	ErrNoConsensus = errors.New("no acceptable consensus was found")

	// ErrTooFewSamples marks an attempt to run the loop with fewer
	// observations than one minimal subset.
	ErrTooFewSamples = errors.New("too few samples for consensus estimation")
)

const (
	// DefaultThreshold is the inlier residual bound for the threshold
	// scored methods, in residual units.
	DefaultThreshold = 1.0

	// DefaultConfidence drives the adaptive iteration bound.
	DefaultConfidence = 0.99

	// DefaultMaxIterations caps the loop regardless of confidence.
	DefaultMaxIterations = 5000

	// medianSigmaFactor converts a median squared residual into a robust
	// standard deviation estimate.
	medianSigmaFactor = 1.4826

	// medianInlierFactor widens the robust sigma into the inlier bound.
	medianInlierFactor = 2.5

	// medianThresholdFloor keeps exact fits from rejecting their own
	// support set when the derived bound collapses to zero.
	medianThresholdFloor = 1e-6
)

// Fitter adapts a model-fitting problem to the consensus engine.
type Fitter interface {
	// NumSamples is the number of observations to draw from.
	NumSamples() int

	// MinSampleSize is the smallest subset that determines a candidate.
	MinSampleSize() int

	// Fit builds a candidate model from the observations at indices. An
	// error marks a degenerate subset; the loop moves on.
	Fit(indices []int) (geom.Point, error)

	// Residual measures the misfit of observation index against a
	// candidate, in the same units as Config.Threshold.
	Residual(model geom.Point, index int) float64
}

// Config tunes one consensus run.
type Config struct {
	Method Method

	// Threshold bounds inlier residuals for RANSAC, MSAC and PROSAC.
	// The median scored methods derive their bound from the data.
	Threshold float64

	// Confidence is the target probability that at least one sampled
	// subset was outlier free. In (0, 1).
	Confidence float64

	// MaxIterations caps the loop even when confidence is not reached.
	MaxIterations int

	// QualityScores bias the progressive methods towards trustworthy
	// observations, aligned by index, higher is better. Required for
	// PROSAC and PROMedS.
	QualityScores []float64

	// Rand drives subset selection. A nil source is seeded from the
	// clock; tests inject a fixed seed for reproducibility.
	Rand *rand.Rand

	// OnIteration, when set, observes every loop iteration.
	OnIteration func(iteration int)

	// OnProgress, when set, observes monotone progress in [0, 1].
	OnProgress func(progress float64)
}

// DefaultConfig returns the engine defaults for a method.
func DefaultConfig(method Method) Config {
	return Config{
		Method:        method,
		Threshold:     DefaultThreshold,
		Confidence:    DefaultConfidence,
		MaxIterations: DefaultMaxIterations,
	}
}

// InliersData describes the support of the winning model.
type InliersData struct {
	// Mask flags the observations that support the model.
	Mask []bool

	// Residuals holds the absolute residual of every observation
	// against the model.
	Residuals []float64

	// NumInliers counts the set flags in Mask.
	NumInliers int

	// BestScore is the internal minimized score: the outlier count for
	// RANSAC and PROSAC, the truncated quadratic cost for MSAC, and the
	// median squared residual for LMedS and PROMedS.
	BestScore float64
}

// Result is the outcome of a consensus run.
type Result struct {
	Model      geom.Point
	Inliers    InliersData
	Iterations int
}

// Solve runs the consensus loop described by cfg over the fitter's
// observations.
func Solve(cfg Config, fitter Fitter) (Result, error) {
	if fitter == nil {
		return Result{}, fmt.Errorf("fitter is nil")
	}
	n := fitter.NumSamples()
	m := fitter.MinSampleSize()
	if m < 1 {
		return Result{}, fmt.Errorf("minimal sample size must be positive, got %d", m)
	}
	if n < m {
		return Result{}, fmt.Errorf("%w: got %d samples, need %d", ErrTooFewSamples, n, m)
	}
	if !cfg.Method.Valid() {
		return Result{}, fmt.Errorf("unknown robust method %q", cfg.Method)
	}
	if !cfg.Method.medianScored() {
		if cfg.Threshold <= 0 || math.IsNaN(cfg.Threshold) || math.IsInf(cfg.Threshold, 0) {
			return Result{}, fmt.Errorf("threshold must be positive for %s, got %g", cfg.Method, cfg.Threshold)
		}
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return Result{}, fmt.Errorf("confidence must be in (0, 1), got %g", cfg.Confidence)
	}
	if cfg.MaxIterations <= 0 {
		return Result{}, fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.Method.Progressive() {
		if len(cfg.QualityScores) != n {
			return Result{}, fmt.Errorf("%s needs one quality score per sample: got %d for %d", cfg.Method, len(cfg.QualityScores), n)
		}
	} else if cfg.QualityScores != nil && len(cfg.QualityScores) != n {
		return Result{}, fmt.Errorf("got %d quality scores for %d samples", len(cfg.QualityScores), n)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var smpl sampler
	if cfg.Method.Progressive() {
		smpl = newProsacSampler(rng, cfg.QualityScores, m)
	} else {
		smpl = &uniformSampler{rng: rng, n: n, m: m}
	}

	residuals := make([]float64, n)
	mask := make([]bool, n)
	scratch := make([]float64, n)

	best := Result{Inliers: InliersData{BestScore: math.Inf(1)}}
	found := false
	limit := cfg.MaxIterations
	if cfg.Method.medianScored() {
		limit = medianBudget(cfg.Confidence, m, cfg.MaxIterations)
	}
	iterations := 0
	lastProgress := 0.0

	emitProgress := func() {
		if cfg.OnProgress == nil {
			return
		}
		p := float64(iterations) / float64(limit)
		if p > 1 {
			p = 1
		}
		if p < lastProgress {
			p = lastProgress
		}
		lastProgress = p
		cfg.OnProgress(p)
	}

	for iterations < limit {
		iterations++
		if cfg.OnIteration != nil {
			cfg.OnIteration(iterations)
		}

		model, err := fitter.Fit(smpl.next())
		if err != nil {
			// Degenerate subset; spend the iteration and move on.
			emitProgress()
			continue
		}

		score, numInliers := scoreCandidate(cfg, fitter, model, m, residuals, mask, scratch)
		if score < best.Inliers.BestScore {
			best.Model = model
			best.Inliers.BestScore = score
			best.Inliers.NumInliers = numInliers
			best.Inliers.Mask = append(best.Inliers.Mask[:0], mask...)
			best.Inliers.Residuals = append(best.Inliers.Residuals[:0], residuals...)
			found = true
			// The median methods derive their inlier bound from the
			// candidate itself; a contaminated candidate inflates the
			// bound until everything qualifies, so its inlier count
			// cannot drive the confidence update.
			if numInliers > 0 && !cfg.Method.medianScored() {
				limit = adaptiveLimit(cfg.Confidence, float64(numInliers)/float64(n), m, limit)
			}
		}
		emitProgress()
	}

	best.Iterations = iterations
	if !found || best.Inliers.NumInliers < m {
		return Result{}, fmt.Errorf("%w after %d iterations", ErrNoConsensus, iterations)
	}
	return best, nil
}

// scoreCandidate fills the residuals and inlier mask for a candidate and
// returns its minimized score with the supporting inlier count.
func scoreCandidate(cfg Config, fitter Fitter, model geom.Point, m int, residuals []float64, mask []bool, scratch []float64) (float64, int) {
	n := len(residuals)
	for i := 0; i < n; i++ {
		residuals[i] = math.Abs(fitter.Residual(model, i))
	}

	if cfg.Method.medianScored() {
		for i, r := range residuals {
			scratch[i] = r * r
		}
		sort.Float64s(scratch)
		med := stat.Quantile(0.5, stat.Empirical, scratch, nil)

		// Robust sigma from the median, with the small-redundancy
		// correction used in the LMedS literature.
		redundancy := n - m
		if redundancy < 1 {
			redundancy = 1
		}
		sigma := medianSigmaFactor * (1 + 5/float64(redundancy)) * math.Sqrt(med)
		bound := medianInlierFactor * sigma
		if bound < medianThresholdFloor {
			bound = medianThresholdFloor
		}

		numInliers := 0
		for i, r := range residuals {
			mask[i] = r <= bound
			if mask[i] {
				numInliers++
			}
		}
		return med, numInliers
	}

	t := cfg.Threshold
	numInliers := 0
	cost := 0.0
	for i, r := range residuals {
		mask[i] = r <= t
		if mask[i] {
			numInliers++
			cost += r * r
		} else {
			cost += t * t
		}
	}
	if cfg.Method == MSAC {
		return cost, numInliers
	}
	// Outlier count: fewer outliers is better.
	return float64(n - numInliers), numInliers
}

// adaptiveLimit shrinks the iteration budget once a threshold-derived
// inlier ratio is known: k = log(1-confidence) / log(1-ratio^m) subsets
// reach the target confidence of drawing one outlier-free sample.
func adaptiveLimit(confidence, inlierRatio float64, m, current int) int {
	wm := math.Pow(inlierRatio, float64(m))
	if wm <= 1e-12 {
		return current
	}
	if wm >= 1 {
		// Full support: the sample in hand was already outlier free.
		if current > 1 {
			return 1
		}
		return current
	}
	k := math.Log(1-confidence) / math.Log(1-wm)
	needed := int(math.Ceil(k))
	if needed < 1 {
		needed = 1
	}
	if needed < current {
		return needed
	}
	return current
}

// medianBudget is the fixed subset budget of the median scored methods.
// Their inlier bound derives from the candidate under test, so the loop
// cannot adapt to an observed inlier ratio; it instead draws enough
// subsets to reach the confidence target under the worst contamination
// the median tolerates, half the observations.
func medianBudget(confidence float64, m, maxIterations int) int {
	wm := math.Pow(0.5, float64(m))
	k := math.Log(1-confidence) / math.Log(1-wm)
	needed := int(math.Ceil(k))
	if needed < 1 {
		needed = 1
	}
	if needed > maxIterations {
		return maxIterations
	}
	return needed
}
