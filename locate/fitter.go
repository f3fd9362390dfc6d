package locate

import (
	"math"

	"github.com/banshee-data/position.report/geom"
	"github.com/banshee-data/position.report/ranging"
	"github.com/banshee-data/position.report/trilateration"
)

// rangeFitter adapts ranged measurements to the consensus engine. A
// candidate is the closed-form solve of a minimal subset; the residual is
// the range misfit in meters, so the consensus threshold is a distance.
type rangeFitter struct {
	measurements []ranging.Measurement
	dim          int
	homogeneous  bool
}

func (f *rangeFitter) NumSamples() int {
	return len(f.measurements)
}

func (f *rangeFitter) MinSampleSize() int {
	return trilateration.MinRequiredSources(f.dim)
}

func (f *rangeFitter) Fit(indices []int) (geom.Point, error) {
	positions := make([]geom.Point, len(indices))
	distances := make([]float64, len(indices))
	for i, idx := range indices {
		positions[i] = f.measurements[idx].Position
		distances[i] = f.measurements[idx].Distance
	}
	return trilateration.SolveLinear(positions, distances, f.homogeneous)
}

func (f *rangeFitter) Residual(model geom.Point, index int) float64 {
	m := f.measurements[index]
	return math.Abs(model.DistanceTo(m.Position) - m.Distance)
}
