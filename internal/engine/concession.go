package engine

import (
	"math/rand/v2"
	"sync"
)

// DefaultConcessionProbability is the chance that an agent accepts a
// worse-priced candidate.
const DefaultConcessionProbability = 0.3

// ConcessionPolicy decides whether a requester accepts one of the
// worse-priced candidates surfaced by a Rejected result, and which one.
type ConcessionPolicy interface {
	Choose(req Request, candidates []int) (idx int, ok bool)
}

// NeverConcede declines every concession.
type NeverConcede struct{}

// Choose implements ConcessionPolicy.
func (NeverConcede) Choose(Request, []int) (int, bool) { return 0, false }

// FirstCandidate always concedes to the first candidate.
type FirstCandidate struct{}

// Choose implements ConcessionPolicy.
func (FirstCandidate) Choose(_ Request, candidates []int) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[0], true
}

// ProbabilisticConcession concedes with probability p to a uniformly
// chosen candidate. It is safe for concurrent use.
type ProbabilisticConcession struct {
	mu  sync.Mutex
	p   float64
	rng *rand.Rand
}

// NewProbabilisticConcession creates a policy that accepts with
// probability p, drawing from a source seeded with seed.
func NewProbabilisticConcession(p float64, seed uint64) *ProbabilisticConcession {
	return &ProbabilisticConcession{
		p:   p,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Choose implements ConcessionPolicy.
func (c *ProbabilisticConcession) Choose(_ Request, candidates []int) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rng.Float64() >= c.p {
		return 0, false
	}
	return candidates[c.rng.IntN(len(candidates))], true
}
