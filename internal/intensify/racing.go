package intensify

import (
	"math/rand"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

type racePair struct {
	instance string
	seed     int64
}

// Racing races one challenger at a time against the incumbent over a
// fixed list of (instance, seed) pairs. The incumbent is deepened first;
// a challenger must match the incumbent's evaluation count before the
// comparison is made, so a lucky single run never steals the title.
type Racing struct {
	pairs []racePair

	incumbent *paramspace.Config
	incCost   float64

	seeding    *paramspace.Config // first config, becomes the initial incumbent
	challenger *paramspace.Config
	chalIdx    int
}

// NewRacing builds the race track: every instance crossed with
// seedsPerInstance seeds drawn once from rng. With no instances the
// track is seeds on the empty instance.
func NewRacing(instances []string, seedsPerInstance int, rng *rand.Rand) *Racing {
	if len(instances) == 0 {
		instances = []string{""}
	}
	if seedsPerInstance < 1 {
		seedsPerInstance = 1
	}
	var pairs []racePair
	for i := 0; i < seedsPerInstance; i++ {
		seed := rng.Int63()
		for _, inst := range instances {
			pairs = append(pairs, racePair{instance: inst, seed: seed})
		}
	}
	return &Racing{pairs: pairs}
}

func (r *Racing) trial(c *paramspace.Config, p racePair) Trial {
	return Trial{Config: c, Instance: p.instance, Seed: p.seed}
}

func (r *Racing) SelectNext(rh *runhistory.RunHistory, challengers ChallengerSource, inFlight InFlightFunc) Decision {
	// No incumbent yet: seed it with the first challenger.
	if r.incumbent == nil {
		if r.seeding == nil {
			r.seeding = challengers.Next()
			if r.seeding == nil {
				return waitDecision()
			}
		}
		t := r.trial(r.seeding, r.pairs[0])
		key := t.Key(rh)
		if rh.Has(key) {
			// Result already known, adopt without spending a slot.
			r.incumbent = r.seeding
			r.incCost = rh.Cost(r.seeding)
			r.seeding = nil
			return skipDecision(t)
		}
		if inFlight(key) {
			return waitDecision()
		}
		return runDecision(t)
	}

	// Deepen the incumbent before racing challengers against it.
	incEvals := rh.NumTrials(r.incumbent)
	if incEvals < len(r.pairs) {
		t := r.trial(r.incumbent, r.pairs[incEvals])
		key := t.Key(rh)
		if !rh.Has(key) && !inFlight(key) {
			return runDecision(t)
		}
		// The incumbent trial is pending; race the challenger meanwhile.
	}

	if r.challenger == nil {
		c := challengers.Next()
		if c == nil {
			return waitDecision()
		}
		if c.Key() == r.incumbent.Key() {
			return skipDecision(r.trial(c, r.pairs[0]))
		}
		r.challenger = c
		r.chalIdx = rh.NumTrials(c)
	}

	// The challenger only needs to match the incumbent's evaluations.
	limit := incEvals
	if limit > len(r.pairs) {
		limit = len(r.pairs)
	}
	if r.chalIdx >= limit && limit > 0 {
		r.resolveRace(rh)
		return skipDecision(r.trial(r.incumbent, r.pairs[0]))
	}

	t := r.trial(r.challenger, r.pairs[r.chalIdx])
	key := t.Key(rh)
	if rh.Has(key) {
		r.chalIdx++
		return skipDecision(t)
	}
	if inFlight(key) {
		return waitDecision()
	}
	return runDecision(t)
}

func (r *Racing) resolveRace(rh *runhistory.RunHistory) {
	if r.challenger == nil {
		return
	}
	if challengerWins(rh, r.challenger, r.incumbent) {
		log.WithField("cost", rh.Cost(r.challenger)).Debugf("challenger %s takes the incumbent", r.challenger)
		r.incumbent = r.challenger
	}
	r.incCost = rh.Cost(r.incumbent)
	r.challenger = nil
	r.chalIdx = 0
}

func (r *Racing) ProcessResult(trial Trial, value runhistory.TrialValue, rh *runhistory.RunHistory) (*paramspace.Config, float64) {
	key := trial.Config.Key()
	switch {
	case r.seeding != nil && key == r.seeding.Key():
		r.incumbent = r.seeding
		r.seeding = nil
	case r.challenger != nil && key == r.challenger.Key():
		r.chalIdx++
		limit := rh.NumTrials(r.incumbent)
		if limit > len(r.pairs) {
			limit = len(r.pairs)
		}
		if r.chalIdx >= limit {
			r.resolveRace(rh)
		}
	}
	if r.incumbent != nil {
		r.incCost = rh.Cost(r.incumbent)
	}
	return r.incumbent, r.incCost
}

func (r *Racing) Incumbent() *paramspace.Config { return r.incumbent }

func (r *Racing) MaxBudget() float64 { return 0 }

// Pairs returns the size of the race track. Exposed for scheduling
// diagnostics.
func (r *Racing) Pairs() int { return len(r.pairs) }
