package ranking

import (
	"fmt"
	"sort"

	"github.com/banshee-data/position.report/radio"
)

// ScoredReading pairs a fingerprint reading with its quality score and its
// original index in the fingerprint.
type ScoredReading struct {
	Reading *radio.Reading
	Score   float64
	// Index is the insertion position in the fingerprint, the stable
	// tiebreak for equal scores.
	Index int
}

// SourceGroup is one distinct source with its quality score and the
// readings taken against it, in ranked order.
type SourceGroup struct {
	Source   *radio.LocatedSource
	Score    float64
	Readings []ScoredReading
}

// Sorter ranks the readings of a fingerprint by source quality, reading
// type and reading quality. Sources are matched to readings by ID.
type Sorter struct {
	sources       []*radio.LocatedSource
	fingerprint   *radio.Fingerprint
	sourceScores  []float64
	readingScores []float64

	groups []SourceGroup
	sorted bool
}

// NewSorter validates the inputs and builds a sorter. Both score slices
// must align positionally with the sources and the fingerprint readings.
func NewSorter(sources []*radio.LocatedSource, fingerprint *radio.Fingerprint, sourceScores, readingScores []float64) (*Sorter, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("sorter requires at least one source")
	}
	if fingerprint == nil {
		return nil, fmt.Errorf("sorter requires a fingerprint")
	}
	if len(sourceScores) != len(sources) {
		return nil, fmt.Errorf("got %d source quality scores for %d sources", len(sourceScores), len(sources))
	}
	if len(readingScores) != fingerprint.Len() {
		return nil, fmt.Errorf("got %d reading quality scores for %d readings", len(readingScores), fingerprint.Len())
	}
	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if src == nil {
			return nil, fmt.Errorf("source %d is nil", i)
		}
		if seen[src.ID()] {
			return nil, fmt.Errorf("duplicate source id %q", src.ID())
		}
		seen[src.ID()] = true
	}
	return &Sorter{
		sources:       sources,
		fingerprint:   fingerprint,
		sourceScores:  sourceScores,
		readingScores: readingScores,
	}, nil
}

// typeRank maps a reading type to its precedence group. Direct distance
// measurements rank ahead of combined readings, which rank ahead of pure
// RSSI readings.
func typeRank(t radio.ReadingType) int {
	switch t {
	case radio.ReadingRanging:
		return 0
	case radio.ReadingRangingRSSI:
		return 1
	default:
		return 2
	}
}

// Sort ranks the readings and returns the source groups, best first. The
// ranking is computed once and cached; every call hands out an
// independent copy of the groups, so callers may reorder or trim them
// without disturbing later calls. Readings whose source is not known to
// the sorter are dropped, as they cannot contribute to position solving.
func (s *Sorter) Sort() []SourceGroup {
	if !s.sorted {
		s.groups = s.rank()
		s.sorted = true
	}
	out := make([]SourceGroup, len(s.groups))
	for i, g := range s.groups {
		g.Readings = append([]ScoredReading(nil), g.Readings...)
		out[i] = g
	}
	return out
}

func (s *Sorter) rank() []SourceGroup {
	groupBySource := make(map[string]*SourceGroup, len(s.sources))
	order := make([]*SourceGroup, 0, len(s.sources))
	for i, src := range s.sources {
		g := &SourceGroup{Source: src, Score: s.sourceScores[i]}
		groupBySource[src.ID()] = g
		order = append(order, g)
	}

	for i, reading := range s.fingerprint.Readings() {
		g, ok := groupBySource[reading.Source().ID()]
		if !ok {
			continue
		}
		g.Readings = append(g.Readings, ScoredReading{
			Reading: reading,
			Score:   s.readingScores[i],
			Index:   i,
		})
	}

	for _, g := range order {
		readings := g.Readings
		sort.SliceStable(readings, func(a, b int) bool {
			ra, rb := typeRank(readings[a].Reading.Type()), typeRank(readings[b].Reading.Type())
			if ra != rb {
				return ra < rb
			}
			return readings[a].Score > readings[b].Score
		})
	}

	sort.SliceStable(order, func(a, b int) bool {
		return order[a].Score > order[b].Score
	})

	groups := make([]SourceGroup, len(order))
	for i, g := range order {
		groups[i] = *g
	}
	return groups
}

// Sorted returns the ranked groups, sorting first if needed.
func (s *Sorter) Sorted() []SourceGroup {
	return s.Sort()
}
