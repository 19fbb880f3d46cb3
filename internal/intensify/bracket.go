package intensify

import (
	"math/rand"
	"sort"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

// entry is one config admitted to a rung. order is the submission order
// inside the rung and breaks promotion ties deterministically.
type entry struct {
	config *paramspace.Config
	order  int
	done   bool
	cost   float64
	status runhistory.Status
}

// rung is one budget level of a bracket.
type rung struct {
	budget   float64
	capacity int
	entries  []*entry
}

func (r *rung) filled() bool { return len(r.entries) >= r.capacity }

// complete means the rung was filled to capacity and every admitted
// config has a terminal result. Crashed and timed-out configs count:
// they carry the crash cost and stay rankable, never silently dropped.
func (r *rung) complete() bool {
	if !r.filled() {
		return false
	}
	for _, e := range r.entries {
		if !e.done {
			return false
		}
	}
	return true
}

func (r *rung) pending() bool {
	for _, e := range r.entries {
		if !e.done {
			return true
		}
	}
	return false
}

func (r *rung) admit(c *paramspace.Config) *entry {
	e := &entry{config: c, order: len(r.entries)}
	r.entries = append(r.entries, e)
	return e
}

func (r *rung) find(key string) *entry {
	for _, e := range r.entries {
		if e.config.Key() == key {
			return e
		}
	}
	return nil
}

// survivors ranks the rung's entries by cost ascending, ties broken by
// earlier submission order, and returns exactly n of them.
func (r *rung) survivors(n int) []*entry {
	ranked := make([]*entry, len(r.entries))
	copy(ranked, r.entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].cost != ranked[j].cost {
			return ranked[i].cost < ranked[j].cost
		}
		return ranked[i].order < ranked[j].order
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// bracket is one full halving schedule: rungs with geometric budgets and
// shrinking capacity. Bracket state is discarded once the final rung
// completes.
type bracket struct {
	id     int
	seed   int64
	rungs  []*rung
	closed bool
}

func newBracket(id int, seed int64, budgets []float64, caps []int) *bracket {
	b := &bracket{id: id, seed: seed}
	for i, budget := range budgets {
		b.rungs = append(b.rungs, &rung{budget: budget, capacity: caps[i]})
	}
	return b
}

func (b *bracket) pending() bool {
	for _, r := range b.rungs {
		if r.pending() {
			return true
		}
	}
	return false
}

func (b *bracket) finalRung() *rung { return b.rungs[len(b.rungs)-1] }

// arena holds the open brackets of a bracket-scheduling intensifier and
// implements the shared selection and result-folding machinery. Brackets
// are indexed by id; SelectNext scans them oldest first.
type arena struct {
	instance string
	rng      *rand.Rand

	brackets []*bracket

	incumbent *paramspace.Config
	incCost   float64
	maxBudget float64
}

func (a *arena) trial(c *paramspace.Config, seed int64, budget float64) Trial {
	return Trial{Config: c, Instance: a.instance, Seed: seed, Budget: budget}
}

// selectInBracket returns the first actionable decision in the bracket:
// filling the base rung with challengers, or promoting survivors of a
// completed rung. ok is false when the bracket has nothing to do right
// now (all pending or closed).
func (a *arena) selectInBracket(b *bracket, rh *runhistory.RunHistory, challengers ChallengerSource, inFlight InFlightFunc) (Decision, bool) {
	if b.closed {
		return Decision{}, false
	}
	for ri, r := range b.rungs {
		if ri == 0 {
			if !r.filled() {
				c := challengers.Next()
				if c == nil {
					return waitDecision(), true
				}
				t := a.trial(c, b.seed, r.budget)
				if r.find(c.Key()) != nil {
					// Challenger source repeated itself; already racing here.
					return skipDecision(t), true
				}
				e := r.admit(c)
				key := t.Key(rh)
				if v, ok := rh.Get(key); ok {
					e.done = true
					e.cost = rh.ScalarCost(v)
					e.status = v.Status
					return skipDecision(t), true
				}
				return runDecision(t), true
			}
			continue
		}
		prev := b.rungs[ri-1]
		if !prev.complete() {
			// Nothing promotable yet; deeper rungs depend on this one.
			break
		}
		for _, s := range prev.survivors(r.capacity) {
			if r.find(s.config.Key()) != nil {
				continue
			}
			e := r.admit(s.config)
			t := a.trial(s.config, b.seed, r.budget)
			key := t.Key(rh)
			if v, ok := rh.Get(key); ok {
				e.done = true
				e.cost = rh.ScalarCost(v)
				e.status = v.Status
				a.maybeAdoptIncumbent(s.config, r.budget, rh)
				return skipDecision(t), true
			}
			if inFlight(key) {
				continue
			}
			return runDecision(t), true
		}
	}
	if b.finalRung().complete() {
		b.closed = true
		log.WithField("bracket", b.id).Debug("bracket complete")
	}
	return Decision{}, false
}

// processResult marks the matching entry done and, for final-rung
// results, considers the config for the global incumbent.
func (a *arena) processResult(trial Trial, value runhistory.TrialValue, rh *runhistory.RunHistory) (*paramspace.Config, float64) {
	for _, b := range a.brackets {
		if b.closed || b.seed != trial.Seed {
			continue
		}
		for _, r := range b.rungs {
			if r.budget != trial.Budget {
				continue
			}
			if e := r.find(trial.Config.Key()); e != nil && !e.done {
				e.done = true
				e.cost = rh.ScalarCost(value)
				e.status = value.Status
				a.maybeAdoptIncumbent(trial.Config, trial.Budget, rh)
				return a.incumbent, a.incCost
			}
		}
	}
	return a.incumbent, a.incCost
}

// maybeAdoptIncumbent updates the incumbent from a result at the highest
// fidelity. Final-rung survivors all carry the same evaluation depth, so
// the comparison is a straight cost comparison with ties keeping the
// earlier finisher.
func (a *arena) maybeAdoptIncumbent(c *paramspace.Config, budget float64, rh *runhistory.RunHistory) {
	if budget != a.maxBudget {
		return
	}
	cost := rh.Cost(c)
	if a.incumbent == nil || cost < a.incCost {
		a.incumbent = c
		a.incCost = cost
		log.WithField("cost", cost).Debugf("new incumbent %s", c)
	}
}
