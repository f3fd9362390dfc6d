// Package sac owns Layer 5 (Consensus) of the positioning data model: a
// sample-consensus engine for robust model fitting under outlier
// contamination.
//
// One skeleton loop serves five methods. The method selects a sampling
// strategy (uniform minimal subsets, or progressive quality-ordered
// subsets for PROSAC and PROMedS) and a scoring strategy (inlier count
// for RANSAC and PROSAC, truncated quadratic cost for MSAC, median of
// squared residuals for LMedS and PROMedS).
// Key types: Method, Config, Fitter, Result.
//
// The engine is model-agnostic: a Fitter turns index subsets into
// candidate models and measures per-observation residuals.
//
// Dependency rule: sac may depend on geom, but never on the radio,
// ranking, ranging, trilateration or locate layers.
package sac
