// Package locate owns Layer 6 (Estimation), the top of the positioning
// data model.
//
// Responsibilities: the robust position estimator that ties the layers
// together. An Estimator takes located sources and a fingerprint, ranks
// the readings, extracts ranged measurements, runs a sample-consensus
// loop over the linear solver and refines the winner with the non-linear
// solver.
// Key types: Estimator, Listener.
//
// An Estimator is single-flight: Estimate locks it for the duration of
// the solve and configuration is frozen while locked. Listener callbacks
// run synchronously on the calling goroutine while the lock is held.
//
// Dependency rule: locate may depend on every lower layer. Nothing
// depends on locate except cmd binaries.
package locate
