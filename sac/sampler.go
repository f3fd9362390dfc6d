package sac

import (
	"math"
	"math/rand"
	"sort"
)

// sampler produces one index subset per loop iteration.
type sampler interface {
	next() []int
}

// uniformSampler draws minimal subsets uniformly at random.
type uniformSampler struct {
	rng  *rand.Rand
	n, m int
}

func (s *uniformSampler) next() []int {
	return s.rng.Perm(s.n)[:s.m]
}

// prosacSampler draws minimal subsets from a progressively growing pool
// of the highest-quality observations, following the Chum and Matas
// growth schedule. Early iterations concentrate on the best-scored
// observations; as the budget is spent the pool widens until the sampler
// degenerates into plain uniform sampling.
type prosacSampler struct {
	rng   *rand.Rand
	order []int
	n, m  int

	t      int
	subset int
	tN     float64
	tPrime float64
}

func newProsacSampler(rng *rand.Rand, scores []float64, m int) *prosacSampler {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	// Stable sort keeps equally scored observations in input order.
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return &prosacSampler{
		rng:    rng,
		order:  order,
		n:      len(scores),
		m:      m,
		subset: m,
		tN:     1,
		tPrime: 1,
	}
}

func (s *prosacSampler) next() []int {
	s.t++
	if float64(s.t) >= s.tPrime && s.subset < s.n {
		tNext := s.tN * float64(s.subset+1) / float64(s.subset+1-s.m)
		s.tPrime += math.Ceil(tNext - s.tN)
		s.tN = tNext
		s.subset++
	}

	out := make([]int, 0, s.m)
	if float64(s.t) <= s.tPrime && s.subset > s.m {
		// The newest pool member enters every sample of the growth
		// phase.
		out = append(out, s.order[s.subset-1])
		for _, idx := range s.rng.Perm(s.subset - 1)[:s.m-1] {
			out = append(out, s.order[idx])
		}
		return out
	}
	for _, idx := range s.rng.Perm(s.subset)[:s.m] {
		out = append(out, s.order[idx])
	}
	return out
}
