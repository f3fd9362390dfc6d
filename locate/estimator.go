package locate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/position.report/geom"
	"github.com/banshee-data/position.report/radio"
	"github.com/banshee-data/position.report/ranging"
	"github.com/banshee-data/position.report/ranking"
	"github.com/banshee-data/position.report/sac"
	"github.com/banshee-data/position.report/trilateration"
)

var (
	// ErrLocked marks an attempt to mutate or re-enter an estimator
	// while an estimation is running.
	ErrLocked = errors.New("estimator is locked by a running estimation")

	// ErrNotReady marks an estimation attempted before enough usable
	// data was provided.
	ErrNotReady = errors.New("estimator is not ready")
)

// Estimator solves for an unknown position from a fingerprint of readings
// against located sources. The solve is robust to outliers: a consensus
// loop over closed-form minimal solves picks the supported model, then an
// optional non-linear refinement polishes it over the inliers.
//
// An Estimator is not safe for concurrent use. The lock is a re-entrancy
// guard for listener callbacks, not a synchronization primitive.
type Estimator struct {
	method sac.Method
	dim    int

	sources       []*radio.LocatedSource
	fingerprint   *radio.Fingerprint
	sourceScores  []float64
	readingScores []float64

	threshold           float64
	confidence          float64
	maxIterations       int
	refine              bool
	keepCovariance      bool
	homogeneous         bool
	fallbackStdDev      float64
	useSourceCovariance bool

	listener Listener
	rng      *rand.Rand

	locked atomic.Bool

	position   geom.Point
	covariance *mat.SymDense
	inliers    sac.InliersData
	iterations int
	dop        trilateration.DOP
	positions  []geom.Point
	distances  []float64
	stdDevs    []float64
}

// New builds an estimator for the given robust method and dimensionality.
// The empty method selects sac.DefaultMethod. Thresholds, confidence and
// iteration budget start at the sac defaults; refinement, covariance
// keeping and the homogeneous linear solver start enabled.
func New(method sac.Method, dim int) (*Estimator, error) {
	if method == "" {
		method = sac.DefaultMethod
	}
	if !method.Valid() {
		return nil, fmt.Errorf("unknown robust method %q", method)
	}
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("dimensionality must be 2 or 3, got %d", dim)
	}
	return &Estimator{
		method:         method,
		dim:            dim,
		threshold:      sac.DefaultThreshold,
		confidence:     sac.DefaultConfidence,
		maxIterations:  sac.DefaultMaxIterations,
		refine:         true,
		keepCovariance: true,
		homogeneous:    true,
		fallbackStdDev: ranging.DefaultFallbackStdDev,
	}, nil
}

// New2D builds a two-dimensional estimator.
func New2D(method sac.Method) (*Estimator, error) {
	return New(method, 2)
}

// New3D builds a three-dimensional estimator.
func New3D(method sac.Method) (*Estimator, error) {
	return New(method, 3)
}

// NewWithReadings builds an estimator and loads its data in one call. The
// dimensionality is taken from the fingerprint.
func NewWithReadings(method sac.Method, sources []*radio.LocatedSource, fingerprint *radio.Fingerprint) (*Estimator, error) {
	if fingerprint == nil {
		return nil, fmt.Errorf("estimator requires a fingerprint")
	}
	e, err := New(method, fingerprint.Dim())
	if err != nil {
		return nil, err
	}
	if err := e.SetSources(sources); err != nil {
		return nil, err
	}
	if err := e.SetFingerprint(fingerprint); err != nil {
		return nil, err
	}
	return e, nil
}

// MinRequiredSources returns the smallest number of usable readings a
// solve needs in this estimator's dimensionality.
func (e *Estimator) MinRequiredSources() int {
	return trilateration.MinRequiredSources(e.dim)
}

func (e *Estimator) checkUnlocked() error {
	if e.locked.Load() {
		return ErrLocked
	}
	return nil
}

// SetSources replaces the known sources. At least MinRequiredSources
// distinct, dimension-matched sources are required.
func (e *Estimator) SetSources(sources []*radio.LocatedSource) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	min := e.MinRequiredSources()
	if len(sources) < min {
		return fmt.Errorf("got %d sources, need at least %d for %dD", len(sources), min, e.dim)
	}
	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if src == nil {
			return fmt.Errorf("source %d is nil", i)
		}
		if src.Dim() != e.dim {
			return fmt.Errorf("source %q is %dD, want %dD", src.ID(), src.Dim(), e.dim)
		}
		if seen[src.ID()] {
			return fmt.Errorf("duplicate source id %q", src.ID())
		}
		seen[src.ID()] = true
	}
	e.sources = append([]*radio.LocatedSource(nil), sources...)
	return nil
}

// SetFingerprint replaces the fingerprint to locate.
func (e *Estimator) SetFingerprint(fp *radio.Fingerprint) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if fp == nil {
		return fmt.Errorf("estimator requires a fingerprint")
	}
	if fp.Dim() != e.dim {
		return fmt.Errorf("fingerprint is %dD, want %dD", fp.Dim(), e.dim)
	}
	e.fingerprint = fp
	return nil
}

// SetSourceQualityScores sets one quality score per source, aligned with
// the sources slice, higher is better. Nil clears the scores. Required
// for the progressive methods.
func (e *Estimator) SetSourceQualityScores(scores []float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if scores == nil {
		e.sourceScores = nil
		return nil
	}
	if err := validateScores(scores); err != nil {
		return fmt.Errorf("source quality scores: %w", err)
	}
	if e.sources != nil && len(scores) != len(e.sources) {
		return fmt.Errorf("got %d source quality scores for %d sources", len(scores), len(e.sources))
	}
	e.sourceScores = append([]float64(nil), scores...)
	return nil
}

// SetReadingQualityScores sets one quality score per fingerprint reading,
// aligned with the fingerprint, higher is better. Nil clears the scores.
// Required for the progressive methods.
func (e *Estimator) SetReadingQualityScores(scores []float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if scores == nil {
		e.readingScores = nil
		return nil
	}
	if err := validateScores(scores); err != nil {
		return fmt.Errorf("reading quality scores: %w", err)
	}
	if e.fingerprint != nil && len(scores) != e.fingerprint.Len() {
		return fmt.Errorf("got %d reading quality scores for %d readings", len(scores), e.fingerprint.Len())
	}
	e.readingScores = append([]float64(nil), scores...)
	return nil
}

func validateScores(scores []float64) error {
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("score %d is not finite: %g", i, s)
		}
	}
	return nil
}

// SetThreshold sets the inlier residual bound in meters for the
// threshold-scored methods.
func (e *Estimator) SetThreshold(t float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("threshold must be positive, got %g", t)
	}
	e.threshold = t
	return nil
}

// SetConfidence sets the target probability in (0, 1) of sampling at
// least one outlier-free subset.
func (e *Estimator) SetConfidence(c float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if c <= 0 || c >= 1 || math.IsNaN(c) {
		return fmt.Errorf("confidence must be in (0, 1), got %g", c)
	}
	e.confidence = c
	return nil
}

// SetMaxIterations caps the consensus loop.
func (e *Estimator) SetMaxIterations(n int) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("max iterations must be positive, got %d", n)
	}
	e.maxIterations = n
	return nil
}

// SetRefinementEnabled controls the non-linear refinement of the
// consensus winner.
func (e *Estimator) SetRefinementEnabled(enabled bool) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.refine = enabled
	return nil
}

// SetCovarianceKept controls whether a successful refinement stores the
// solution covariance.
func (e *Estimator) SetCovarianceKept(keep bool) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.keepCovariance = keep
	return nil
}

// SetHomogeneousLinearSolver switches the closed-form solver used for
// minimal subsets between the homogeneous and inhomogeneous formulation.
func (e *Estimator) SetHomogeneousLinearSolver(enabled bool) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.homogeneous = enabled
	return nil
}

// SetFallbackDistanceStdDev sets the standard deviation in meters assumed
// for readings that carry no uncertainty of their own.
func (e *Estimator) SetFallbackDistanceStdDev(sd float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if sd <= 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		return fmt.Errorf("fallback standard deviation must be positive, got %g", sd)
	}
	e.fallbackStdDev = sd
	return nil
}

// SetUseSourcePositionCovariance folds source position uncertainty into
// the extracted range variances.
func (e *Estimator) SetUseSourcePositionCovariance(enabled bool) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.useSourceCovariance = enabled
	return nil
}

// SetListener registers the estimation observer. Nil unregisters.
func (e *Estimator) SetListener(l Listener) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.listener = l
	return nil
}

// SetRand injects the random source driving subset selection. Nil
// restores clock seeding.
func (e *Estimator) SetRand(rng *rand.Rand) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.rng = rng
	return nil
}

// Method returns the robust method the estimator solves with.
func (e *Estimator) Method() sac.Method { return e.method }

// Dim returns the dimensionality of the positions being solved.
func (e *Estimator) Dim() int { return e.dim }

// Threshold returns the inlier residual bound in meters.
func (e *Estimator) Threshold() float64 { return e.threshold }

// Confidence returns the adaptive termination confidence.
func (e *Estimator) Confidence() float64 { return e.confidence }

// MaxIterations returns the consensus iteration cap.
func (e *Estimator) MaxIterations() int { return e.maxIterations }

// IsRefinementEnabled reports whether the consensus winner is refined.
func (e *Estimator) IsRefinementEnabled() bool { return e.refine }

// IsCovarianceKept reports whether a successful refinement stores its
// covariance.
func (e *Estimator) IsCovarianceKept() bool { return e.keepCovariance }

// UsesHomogeneousLinearSolver reports which closed-form formulation
// minimal subsets are solved with.
func (e *Estimator) UsesHomogeneousLinearSolver() bool { return e.homogeneous }

// FallbackDistanceStdDev returns the assumed standard deviation for
// readings without uncertainty.
func (e *Estimator) FallbackDistanceStdDev() float64 { return e.fallbackStdDev }

// UsesSourcePositionCovariance reports whether source position
// uncertainty widens the extracted range variances.
func (e *Estimator) UsesSourcePositionCovariance() bool { return e.useSourceCovariance }

// Listener returns the registered estimation observer.
func (e *Estimator) Listener() Listener { return e.listener }

// Sources returns the known sources.
func (e *Estimator) Sources() []*radio.LocatedSource {
	return append([]*radio.LocatedSource(nil), e.sources...)
}

// Fingerprint returns the fingerprint being located.
func (e *Estimator) Fingerprint() *radio.Fingerprint { return e.fingerprint }

// SourceQualityScores returns the per-source quality scores.
func (e *Estimator) SourceQualityScores() []float64 {
	return append([]float64(nil), e.sourceScores...)
}

// ReadingQualityScores returns the per-reading quality scores.
func (e *Estimator) ReadingQualityScores() []float64 {
	return append([]float64(nil), e.readingScores...)
}

// IsLocked reports whether an estimation is running.
func (e *Estimator) IsLocked() bool { return e.locked.Load() }

// IsReady reports whether enough usable data is loaded for Estimate to
// run. Usable readings are those against a known source that either
// carry a distance or can be inverted through a power-aware source. The
// progressive methods additionally require both quality score sets.
func (e *Estimator) IsReady() bool {
	if e.sources == nil || e.fingerprint == nil {
		return false
	}
	if e.method.Progressive() {
		if len(e.sourceScores) != len(e.sources) || len(e.readingScores) != e.fingerprint.Len() {
			return false
		}
	}
	return e.usableReadings() >= e.MinRequiredSources()
}

func (e *Estimator) usableReadings() int {
	known := make(map[string]bool, len(e.sources))
	for _, src := range e.sources {
		known[src.ID()] = true
	}
	count := 0
	for _, r := range e.fingerprint.Readings() {
		if !known[r.Source().ID()] {
			continue
		}
		if usableReading(r) {
			count++
		}
	}
	return count
}

// usableReading reports whether a reading can produce a ranged
// measurement. Distance channels always can; a pure RSSI channel needs a
// declared transmit power to invert.
func usableReading(r *radio.Reading) bool {
	switch r.Type() {
	case radio.ReadingRanging, radio.ReadingRangingRSSI:
		return true
	default:
		return r.Source().HasTransmitPower()
	}
}

// Estimate solves for the fingerprint position. It locks the estimator,
// notifies the listener, ranks the readings when quality scores are set,
// extracts ranged measurements, runs the consensus loop and refines the
// winner. Results are kept on the estimator until the next successful
// call; a failed call leaves the previous results in place.
func (e *Estimator) Estimate() (geom.Point, error) {
	if !e.locked.CompareAndSwap(false, true) {
		return nil, ErrLocked
	}
	defer e.locked.Store(false)

	if !e.IsReady() {
		return nil, fmt.Errorf("%w: need %d usable readings", ErrNotReady, e.MinRequiredSources())
	}

	if e.listener != nil {
		e.listener.OnEstimateStart(e)
		defer e.listener.OnEstimateEnd(e)
	}

	readings, scores, err := e.rankedReadings()
	if err != nil {
		return nil, fmt.Errorf("ranking readings: %w", err)
	}

	extractor, err := ranging.NewExtractor(ranging.Config{
		FallbackStdDev:              e.fallbackStdDev,
		UseSourcePositionCovariance: e.useSourceCovariance,
	})
	if err != nil {
		return nil, err
	}
	measurements, used := extractor.ExtractAll(readings)
	if len(measurements) < e.MinRequiredSources() {
		return nil, fmt.Errorf("%w: only %d of %d readings produced measurements, need %d",
			ErrNotReady, len(measurements), len(readings), e.MinRequiredSources())
	}

	var measurementScores []float64
	if scores != nil {
		measurementScores = make([]float64, len(used))
		for i, idx := range used {
			measurementScores[i] = scores[idx]
		}
	}

	cfg := sac.Config{
		Method:        e.method,
		Threshold:     e.threshold,
		Confidence:    e.confidence,
		MaxIterations: e.maxIterations,
		QualityScores: measurementScores,
		Rand:          e.rng,
	}
	if e.listener != nil {
		cfg.OnIteration = func(i int) { e.listener.OnIteration(e, i) }
		cfg.OnProgress = func(p float64) { e.listener.OnProgress(e, p) }
	}

	result, err := sac.Solve(cfg, &rangeFitter{
		measurements: measurements,
		dim:          e.dim,
		homogeneous:  e.homogeneous,
	})
	if err != nil {
		return nil, err
	}

	inPositions, inDistances, inStdDevs := inlierArrays(measurements, result.Inliers.Mask)

	position := result.Model
	var covariance *mat.SymDense
	if e.refine {
		// A refinement that does not converge keeps the consensus
		// winner; covariance is then unavailable.
		refined, cov, rerr := trilateration.SolveNonlinear(
			inPositions, inDistances, inStdDevs, position, trilateration.DefaultNonlinearConfig())
		if rerr == nil {
			position = refined
			if e.keepCovariance {
				covariance = cov
			}
		}
	}

	var dop trilateration.DOP
	if d, derr := trilateration.ComputeDOP(inPositions, position); derr == nil {
		dop = d
	}

	e.position = position
	e.covariance = covariance
	e.inliers = result.Inliers
	e.iterations = result.Iterations
	e.dop = dop
	e.positions = make([]geom.Point, len(measurements))
	e.distances = make([]float64, len(measurements))
	e.stdDevs = make([]float64, len(measurements))
	for i, m := range measurements {
		e.positions[i] = m.Position
		e.distances[i] = m.Distance
		e.stdDevs[i] = m.StdDev
	}

	return position.Clone(), nil
}

// rankedReadings returns the readings to solve from, dropping those
// against unknown sources. With both quality score sets present the
// readings come ranked with one combined score each; otherwise they come
// in insertion order with nil scores.
func (e *Estimator) rankedReadings() ([]*radio.Reading, []float64, error) {
	if e.sourceScores == nil || e.readingScores == nil {
		known := make(map[string]bool, len(e.sources))
		for _, src := range e.sources {
			known[src.ID()] = true
		}
		all := e.fingerprint.Readings()
		readings := make([]*radio.Reading, 0, len(all))
		for _, r := range all {
			if known[r.Source().ID()] {
				readings = append(readings, r)
			}
		}
		return readings, nil, nil
	}

	sorter, err := ranking.NewSorter(e.sources, e.fingerprint, e.sourceScores, e.readingScores)
	if err != nil {
		return nil, nil, err
	}
	readings := make([]*radio.Reading, 0, e.fingerprint.Len())
	scores := make([]float64, 0, e.fingerprint.Len())
	for _, g := range sorter.Sort() {
		for _, sr := range g.Readings {
			readings = append(readings, sr.Reading)
			scores = append(scores, g.Score+sr.Score)
		}
	}
	return readings, scores, nil
}

func inlierArrays(measurements []ranging.Measurement, mask []bool) ([]geom.Point, []float64, []float64) {
	positions := make([]geom.Point, 0, len(measurements))
	distances := make([]float64, 0, len(measurements))
	stdDevs := make([]float64, 0, len(measurements))
	for i, m := range measurements {
		if !mask[i] {
			continue
		}
		positions = append(positions, m.Position)
		distances = append(distances, m.Distance)
		stdDevs = append(stdDevs, m.StdDev)
	}
	return positions, distances, stdDevs
}

// EstimatedPosition returns the position of the last successful Estimate,
// or nil before one.
func (e *Estimator) EstimatedPosition() geom.Point {
	return e.position.Clone()
}

// Covariance returns the solution covariance of the last successful
// Estimate. Non-nil only when refinement ran, converged and covariance
// keeping was enabled.
func (e *Estimator) Covariance() *mat.SymDense {
	if e.covariance == nil {
		return nil
	}
	out := mat.NewSymDense(e.covariance.SymmetricDim(), nil)
	out.CopySym(e.covariance)
	return out
}

// Accuracy returns the standard deviation along the worst axis of the
// solution covariance, the square root of its largest eigenvalue. NaN
// when no covariance is available.
func (e *Estimator) Accuracy() float64 {
	if e.covariance == nil {
		return math.NaN()
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(e.covariance, false); !ok {
		return math.NaN()
	}
	vals := eig.Values(nil)
	largest := vals[len(vals)-1]
	if largest < 0 {
		return math.NaN()
	}
	return math.Sqrt(largest)
}

// Inliers returns the consensus support of the last successful Estimate.
// Mask and residuals align with Positions.
func (e *Estimator) Inliers() sac.InliersData {
	out := e.inliers
	out.Mask = append([]bool(nil), e.inliers.Mask...)
	out.Residuals = append([]float64(nil), e.inliers.Residuals...)
	return out
}

// Iterations returns the consensus iterations of the last successful
// Estimate.
func (e *Estimator) Iterations() int { return e.iterations }

// DOP returns the dilution of precision of the last successful Estimate,
// computed over the inlier geometry. Zero when it could not be computed.
func (e *Estimator) DOP() trilateration.DOP { return e.dop }

// Positions returns the source positions of the measurements the last
// successful Estimate solved over, in solving order.
func (e *Estimator) Positions() []geom.Point {
	out := make([]geom.Point, len(e.positions))
	for i, p := range e.positions {
		out[i] = p.Clone()
	}
	return out
}

// Distances returns the extracted distances in meters, aligned with
// Positions.
func (e *Estimator) Distances() []float64 {
	return append([]float64(nil), e.distances...)
}

// DistanceStandardDeviations returns the extracted distance standard
// deviations in meters, aligned with Positions.
func (e *Estimator) DistanceStandardDeviations() []float64 {
	return append([]float64(nil), e.stdDevs...)
}
