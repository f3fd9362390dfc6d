package locate

// Listener observes the progress of an estimation. All callbacks run
// synchronously on the goroutine that called Estimate, while the
// estimator is locked; mutating the estimator from inside a callback
// returns ErrLocked.
type Listener interface {
	// OnEstimateStart fires once the estimator is locked and about to
	// solve.
	OnEstimateStart(e *Estimator)

	// OnEstimateEnd fires when the solve finished, successfully or not,
	// just before the estimator unlocks.
	OnEstimateEnd(e *Estimator)

	// OnIteration fires after each consensus iteration, counting from 1.
	OnIteration(e *Estimator, iteration int)

	// OnProgress fires with monotone progress in [0, 1].
	OnProgress(e *Estimator, progress float64)
}
