// Package radio owns Layer 1 (Model) of the positioning data model.
//
// Responsibilities: radio source identity, located and power-aware source
// variants, typed readings (ranging, RSSI, combined), and fingerprints
// collected at an unknown position.
// Key types: Source, LocatedSource, Reading, Fingerprint.
//
// Values are validated at construction and immutable afterwards. Absent
// optional measurements are represented as NaN; accessors document the
// convention.
//
// Dependency rule: radio may depend on geom and units, but never on the
// ranking, ranging, trilateration, sac or locate layers.
package radio
