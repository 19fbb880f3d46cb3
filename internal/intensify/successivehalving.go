package intensify

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

// SuccessiveHalving allocates geometrically growing budgets to a
// shrinking population: a bracket starts wide and cheap, and each rung
// promotes only the top 1/eta fraction to the next budget. New brackets
// open whenever the previous ones run out of work, so the search keeps
// consuming challengers.
type SuccessiveHalving struct {
	arena

	eta       float64
	minBudget float64
	budgets   []float64
	caps      []int
}

// NewSuccessiveHalving validates the schedule and precomputes the rung
// budgets and capacities. initialPopulation 0 selects the standard
// eta^s population, which halves exactly to one survivor.
func NewSuccessiveHalving(eta, minBudget, maxBudget float64, initialPopulation int, instance string, rng *rand.Rand) (*SuccessiveHalving, error) {
	budgets, err := rungBudgets(eta, minBudget, maxBudget)
	if err != nil {
		return nil, err
	}
	s := len(budgets) - 1
	if initialPopulation <= 0 {
		initialPopulation = int(math.Ceil(math.Pow(eta, float64(s))))
	}
	caps := rungCapacities(initialPopulation, eta, len(budgets))
	sh := &SuccessiveHalving{
		eta:       eta,
		minBudget: minBudget,
		budgets:   budgets,
		caps:      caps,
	}
	sh.arena = arena{instance: instance, rng: rng, maxBudget: maxBudget}
	return sh, nil
}

// rungBudgets builds the geometric sequence minBudget·eta^i, pinning the
// last rung to maxBudget exactly.
func rungBudgets(eta, minBudget, maxBudget float64) ([]float64, error) {
	if eta <= 1 {
		return nil, fmt.Errorf("eta must be above 1, got %g", eta)
	}
	if minBudget <= 0 || minBudget >= maxBudget {
		return nil, fmt.Errorf("need 0 < min budget < max budget, got [%g, %g]", minBudget, maxBudget)
	}
	s := int(math.Round(math.Log(maxBudget/minBudget) / math.Log(eta)))
	if s < 1 {
		s = 1
	}
	budgets := make([]float64, s+1)
	for i := range budgets {
		budgets[i] = minBudget * math.Pow(eta, float64(i))
	}
	budgets[s] = maxBudget
	return budgets, nil
}

// rungCapacities shrinks the population by 1/eta per rung, never below
// one survivor.
func rungCapacities(n0 int, eta float64, rungs int) []int {
	caps := make([]int, rungs)
	for i := range caps {
		c := int(math.Ceil(float64(n0) / math.Pow(eta, float64(i))))
		if c < 1 {
			c = 1
		}
		caps[i] = c
	}
	return caps
}

func (sh *SuccessiveHalving) openBracket() *bracket {
	b := newBracket(len(sh.brackets), sh.rng.Int63(), sh.budgets, sh.caps)
	sh.brackets = append(sh.brackets, b)
	log.WithField("bracket", b.id).Debugf("opened bracket with rungs %v", sh.budgets)
	return b
}

func (sh *SuccessiveHalving) SelectNext(rh *runhistory.RunHistory, challengers ChallengerSource, inFlight InFlightFunc) Decision {
	// Two passes: the second runs after opening a fresh bracket, so a
	// fully stalled arena still makes progress.
	for pass := 0; pass < 2; pass++ {
		anyPending := false
		for _, b := range sh.brackets {
			if d, ok := sh.selectInBracket(b, rh, challengers, inFlight); ok {
				return d
			}
			if !b.closed && b.pending() {
				anyPending = true
			}
		}
		if anyPending {
			return waitDecision()
		}
		sh.openBracket()
	}
	return waitDecision()
}

func (sh *SuccessiveHalving) ProcessResult(trial Trial, value runhistory.TrialValue, rh *runhistory.RunHistory) (*paramspace.Config, float64) {
	return sh.processResult(trial, value, rh)
}

func (sh *SuccessiveHalving) Incumbent() *paramspace.Config { return sh.incumbent }

func (sh *SuccessiveHalving) MaxBudget() float64 { return sh.maxBudget }

// Budgets returns the rung budgets of one bracket.
func (sh *SuccessiveHalving) Budgets() []float64 {
	out := make([]float64, len(sh.budgets))
	copy(out, sh.budgets)
	return out
}

// Capacities returns the rung capacities of one bracket.
func (sh *SuccessiveHalving) Capacities() []int {
	out := make([]int, len(sh.caps))
	copy(out, sh.caps)
	return out
}
