package intensify

import (
	"math"
	"math/rand"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

// Hyperband hedges the successive-halving aggressiveness parameter by
// cycling brackets over s = sMax, sMax-1, ..., 0: early brackets start
// many configs on tiny budgets, the last starts few directly on the full
// budget. Every bracket ends at the maximum budget, so the final-rung
// survivors of all brackets compete for the global incumbent.
type Hyperband struct {
	arena

	eta       float64
	minBudget float64
	sMax      int
	nextS     int
}

func NewHyperband(eta, minBudget, maxBudget float64, instance string, rng *rand.Rand) (*Hyperband, error) {
	budgets, err := rungBudgets(eta, minBudget, maxBudget)
	if err != nil {
		return nil, err
	}
	hb := &Hyperband{
		eta:       eta,
		minBudget: minBudget,
		sMax:      len(budgets) - 1,
	}
	hb.nextS = hb.sMax
	hb.arena = arena{instance: instance, rng: rng, maxBudget: maxBudget}
	return hb, nil
}

// bracketSchedule computes the rungs of the bracket for aggressiveness
// s: s+1 rungs ending at the maximum budget, with initial population
// n = ceil((sMax+1)/(s+1) · eta^s).
func (hb *Hyperband) bracketSchedule(s int) (budgets []float64, caps []int) {
	budgets = make([]float64, s+1)
	for j := 0; j <= s; j++ {
		budgets[j] = hb.maxBudget / math.Pow(hb.eta, float64(s-j))
	}
	n := int(math.Ceil(float64(hb.sMax+1) / float64(s+1) * math.Pow(hb.eta, float64(s))))
	caps = rungCapacities(n, hb.eta, s+1)
	return budgets, caps
}

func (hb *Hyperband) openBracket() *bracket {
	budgets, caps := hb.bracketSchedule(hb.nextS)
	b := newBracket(len(hb.brackets), hb.rng.Int63(), budgets, caps)
	hb.brackets = append(hb.brackets, b)
	log.WithField("bracket", b.id).Debugf("opened hyperband bracket s=%d rungs=%v", hb.nextS, budgets)
	hb.nextS--
	if hb.nextS < 0 {
		hb.nextS = hb.sMax
	}
	return b
}

func (hb *Hyperband) SelectNext(rh *runhistory.RunHistory, challengers ChallengerSource, inFlight InFlightFunc) Decision {
	for pass := 0; pass < 2; pass++ {
		anyPending := false
		for _, b := range hb.brackets {
			if d, ok := hb.selectInBracket(b, rh, challengers, inFlight); ok {
				return d
			}
			if !b.closed && b.pending() {
				anyPending = true
			}
		}
		if anyPending {
			return waitDecision()
		}
		hb.openBracket()
	}
	return waitDecision()
}

func (hb *Hyperband) ProcessResult(trial Trial, value runhistory.TrialValue, rh *runhistory.RunHistory) (*paramspace.Config, float64) {
	return hb.processResult(trial, value, rh)
}

func (hb *Hyperband) Incumbent() *paramspace.Config { return hb.incumbent }

func (hb *Hyperband) MaxBudget() float64 { return hb.maxBudget }

// SMax returns the most aggressive bracket index.
func (hb *Hyperband) SMax() int { return hb.sMax }
