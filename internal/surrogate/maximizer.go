package surrogate

import (
	"math/rand"
	"sort"

	"github.com/contenderhq/contender/internal/paramspace"
)

// RandomSearch maximizes an acquisition function by scoring a batch of
// random samples, optionally anchored by known-good configurations so
// the search also refines around the current frontier.
type RandomSearch struct {
	space      *paramspace.Space
	rng        *rand.Rand
	candidates int
}

// NewRandomSearch draws `candidates` samples per maximize call.
func NewRandomSearch(space *paramspace.Space, rng *rand.Rand, candidates int) *RandomSearch {
	if candidates < 1 {
		candidates = 100
	}
	return &RandomSearch{space: space, rng: rng, candidates: candidates}
}

type scored struct {
	config *paramspace.Config
	score  float64
}

// Maximize returns the n configurations with the highest acquisition
// score among random samples, the anchors, and local perturbations of
// the anchors. Results are sorted by descending score.
func (rs *RandomSearch) Maximize(acq Acquisition, n int, anchors []*paramspace.Config) ([]*paramspace.Config, error) {
	pool := rs.space.SampleN(rs.rng, rs.candidates)
	for _, a := range anchors {
		pool = append(pool, a, rs.perturb(a))
	}

	X := make([][]float64, len(pool))
	for i, c := range pool {
		X[i] = rs.space.Encode(c)
	}
	scores, err := acq.Score(X)
	if err != nil {
		return nil, err
	}

	ranked := make([]scored, len(pool))
	for i, c := range pool {
		ranked[i] = scored{config: c, score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]*paramspace.Config, 0, n)
	seen := make(map[string]bool, n)
	for _, s := range ranked {
		if len(out) == n {
			break
		}
		if seen[s.config.Key()] {
			continue
		}
		seen[s.config.Key()] = true
		out = append(out, s.config.WithOrigin("acquisition"))
	}
	return out, nil
}

// perturb jitters one anchor in the unit cube, a cheap stand-in for the
// local search leg of a local-and-random maximizer.
func (rs *RandomSearch) perturb(c *paramspace.Config) *paramspace.Config {
	u := rs.space.Encode(c)
	for i := range u {
		u[i] += rs.rng.NormFloat64() * 0.05
	}
	return rs.space.FromUnit(u)
}
