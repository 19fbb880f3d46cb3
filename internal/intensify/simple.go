package intensify

import (
	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

// Simple evaluates each challenger exactly once on a fixed (instance,
// seed) coordinate and keeps the cheapest config as incumbent. It is
// the baseline intensifier for cheap, deterministic objectives.
type Simple struct {
	instance string
	seed     int64

	incumbent *paramspace.Config
	incCost   float64
}

func NewSimple(instance string, seed int64) *Simple {
	return &Simple{instance: instance, seed: seed}
}

func (s *Simple) SelectNext(rh *runhistory.RunHistory, challengers ChallengerSource, inFlight InFlightFunc) Decision {
	c := challengers.Next()
	if c == nil {
		return waitDecision()
	}
	t := Trial{Config: c, Instance: s.instance, Seed: s.seed}
	key := t.Key(rh)
	if rh.Has(key) || inFlight(key) {
		// Already evaluated or running: redundant proposal.
		return skipDecision(t)
	}
	return runDecision(t)
}

func (s *Simple) ProcessResult(trial Trial, value runhistory.TrialValue, rh *runhistory.RunHistory) (*paramspace.Config, float64) {
	if challengerWins(rh, trial.Config, s.incumbent) {
		s.incumbent = trial.Config
		s.incCost = rh.Cost(trial.Config)
		log.WithField("cost", s.incCost).Debugf("new incumbent %s", trial.Config)
	} else if s.incumbent != nil {
		s.incCost = rh.Cost(s.incumbent)
	}
	return s.incumbent, s.incCost
}

func (s *Simple) Incumbent() *paramspace.Config { return s.incumbent }

func (s *Simple) MaxBudget() float64 { return 0 }
