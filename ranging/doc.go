// Package ranging owns Layer 3 (Extraction) of the positioning data model.
//
// Responsibilities: converting typed readings into ranged measurements,
// one (position, distance, standard deviation) triple per usable reading.
// Direct distance channels pass through; RSSI channels are inverted with
// the propagation model and carry propagated uncertainty.
// Key types: Extractor, Measurement.
//
// Dependency rule: ranging may depend on radio, propagation, geom and
// units, but never on the trilateration, sac or locate layers.
package ranging
