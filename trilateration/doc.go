// Package trilateration owns Layer 4 (Solving) of the positioning data
// model.
//
// Responsibilities: closed-form linear position solving from ranged
// measurements, iterative non-linear refinement with covariance, and
// dilution-of-precision reporting.
// Key entry points: SolveLinear, SolveNonlinear, ComputeDOP.
//
// Solvers are dimension-generic; the dimensionality is taken from the
// measurement positions and a solve needs at least dim+1 of them.
//
// Dependency rule: trilateration may depend on geom, but never on the
// radio, ranking, ranging, sac or locate layers.
package trilateration
