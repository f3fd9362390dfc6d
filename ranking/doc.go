// Package ranking owns Layer 2 (Ranking) of the positioning data model.
//
// Responsibilities: grouping fingerprint readings by source and ordering
// both groups and readings by quality score so that downstream estimators
// consider the most trustworthy measurements first.
// Key types: Sorter, SourceGroup, ScoredReading.
//
// Ordering is deterministic: all sorts are stable and tiebreak on the
// original insertion order.
//
// Dependency rule: ranking may depend on radio, geom and units, but never
// on the ranging, trilateration, sac or locate layers.
package ranking
