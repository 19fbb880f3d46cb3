// Package stopping implements the regret-based termination rule of
// Makarova et al. (2022): stop once the gap between a pessimistic bound
// on the incumbent region and an optimistic bound over the whole space
// falls below the incumbent's own statistical error.
package stopping

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
	"github.com/contenderhq/contender/internal/surrogate"
)

var log = logrus.WithField("component", "stopping")

// CrossValidationError estimates the statistical error of a k-fold
// cross-validation, corrected for train/test set size after Nadeau and
// Bengio (1999).
func CrossValidationError(std float64, folds, testPoints, trainPoints int) float64 {
	return math.Sqrt((1/float64(folds) + float64(testPoints)/float64(trainPoints)) * std * std)
}

// Criterion evaluates the stopping rule. Zero value is unusable; use
// New and adjust the exported knobs.
type Criterion struct {
	lcb *surrogate.LCB
	ucb *surrogate.UCB
	max *surrogate.RandomSearch

	// WaitIterations defers any verdict until this many trials have
	// been submitted (and, in highest-fidelity mode, evaluated at the
	// maximum budget).
	WaitIterations int

	// UpperBoundEstimationRate is the fraction of the best evaluated
	// configs the pessimistic bound is taken over.
	UpperBoundEstimationRate float64

	// StatisticalErrorThreshold, when positive, is used instead of the
	// per-trial error reported by the objective.
	StatisticalErrorThreshold float64

	// StatisticalErrorField names the AdditionalInfo key carrying the
	// incumbent's per-trial error estimate.
	StatisticalErrorField string

	// Epsilon is the tolerance band around the boundary that prevents
	// oscillating verdicts.
	Epsilon float64

	// HighestFidelityOnly restricts the evaluation to trials at
	// MaxBudget; regret is only meaningful where the model trains on
	// full-fidelity data.
	HighestFidelityOnly bool
	MaxBudget           float64

	// DoNotTrigger computes and logs the verdict but never stops the
	// run, for dry-run diagnostics.
	DoNotTrigger bool

	warnedNoError bool
}

func New(space *paramspace.Space, maximizer *surrogate.RandomSearch, initialBeta float64) *Criterion {
	return &Criterion{
		lcb:                      surrogate.NewLCB(space.Dim(), initialBeta, true),
		ucb:                      surrogate.NewUCB(space.Dim(), initialBeta, true),
		max:                      maximizer,
		WaitIterations:           20,
		UpperBoundEstimationRate: 0.5,
		StatisticalErrorField:    "statistical_error",
		Epsilon:                  1e-4,
	}
}

// Verdict reports one evaluation of the rule.
type Verdict struct {
	Stop             bool
	MinUCB           float64
	MinLCB           float64
	Regret           float64
	StatisticalError float64
}

// Check evaluates the rule. It returns Stop=false without error while
// the model is not fitted or too little data exists; there is nothing to
// surface to the user in that case.
func (c *Criterion) Check(rh *runhistory.RunHistory, model surrogate.Model, space *paramspace.Space, incumbent *paramspace.Config) (Verdict, error) {
	var v Verdict
	if rh.Submitted() < c.WaitIterations {
		return v, nil
	}
	if model == nil || !model.Fitted() {
		log.Debug("stopping criterion deferred: model not fitted")
		return v, nil
	}
	if incumbent == nil {
		return v, nil
	}

	statErr, ok := c.statisticalError(rh, incumbent)
	if !ok {
		// Check runs every loop iteration; warn once, not per call.
		if !c.warnedNoError {
			log.Warn("no statistical error available for incumbent; criterion not evaluated")
			c.warnedNoError = true
		}
		return v, nil
	}
	v.StatisticalError = statErr

	configs := c.rankedConfigs(rh)
	if len(configs) == 0 {
		return v, nil
	}
	if c.HighestFidelityOnly && len(configs) < c.WaitIterations {
		// Not enough full-fidelity evaluations yet.
		return v, nil
	}

	c.lcb.Update(model, len(configs))
	c.ucb.Update(model, len(configs))

	// Pessimistic bound: min UCB over the best-looking fraction.
	take := int(math.Round(c.UpperBoundEstimationRate * float64(len(configs))))
	if take < 1 {
		take = 1
	}
	head := configs[:take]
	X := make([][]float64, len(head))
	for i, cf := range head {
		X[i] = space.Encode(cf)
	}
	ucbScores, err := c.ucb.Score(X)
	if err != nil {
		if errors.Is(err, surrogate.ErrModelNotReady) {
			return v, nil
		}
		return v, err
	}
	minUCB := math.Inf(1)
	for _, s := range ucbScores {
		// Scores are negated bounds; undo the negation.
		if b := -s; b < minUCB {
			minUCB = b
		}
	}

	// Optimistic bound: minimize the LCB over the whole space.
	best, err := c.max.Maximize(c.lcb, 1, head)
	if err != nil {
		if errors.Is(err, surrogate.ErrModelNotReady) {
			return v, nil
		}
		return v, err
	}
	lcbX := make([][]float64, len(best))
	for i, cf := range best {
		lcbX[i] = space.Encode(cf)
	}
	lcbScores, err := c.lcb.Score(lcbX)
	if err != nil {
		return v, err
	}
	minLCB := math.Inf(1)
	for _, s := range lcbScores {
		if b := -s; b < minLCB {
			minLCB = b
		}
	}

	v.MinUCB = minUCB
	v.MinLCB = minLCB
	v.Regret = minUCB - minLCB
	v.Stop = Decide(v.Regret, statErr, c.Epsilon)

	fields := logrus.Fields{
		"min_ucb":           v.MinUCB,
		"min_lcb":           v.MinLCB,
		"regret":            v.Regret,
		"statistical_error": statErr,
	}
	if v.Stop {
		log.WithFields(fields).Infof("stopping criterion triggered after %d evaluations", rh.Len())
	} else {
		log.WithFields(fields).Debug("stopping criterion not triggered")
	}

	if c.DoNotTrigger {
		v.Stop = false
	}
	return v, nil
}

// Decide is the bare rule: stop when regret is below the statistical
// error and clear of the epsilon band around the boundary.
func Decide(regret, statisticalError, epsilon float64) bool {
	if regret >= statisticalError {
		return false
	}
	return math.Abs(statisticalError-regret) >= epsilon
}

// statisticalError resolves the incumbent's error estimate: the fixed
// threshold when configured, otherwise the per-trial value recorded in
// AdditionalInfo.
func (c *Criterion) statisticalError(rh *runhistory.RunHistory, incumbent *paramspace.Config) (float64, bool) {
	if c.StatisticalErrorThreshold > 0 {
		return c.StatisticalErrorThreshold, true
	}
	infos := rh.Trials(incumbent, true)
	if len(infos) == 0 {
		return 0, false
	}
	ti := infos[len(infos)-1]
	v, ok := rh.Get(rh.Key(incumbent, ti.Instance, ti.Seed, ti.Budget))
	if !ok {
		return 0, false
	}
	raw, ok := v.AdditionalInfo[c.StatisticalErrorField]
	if !ok {
		return 0, false
	}
	f, ok := raw.(float64)
	return f, ok
}

// rankedConfigs returns evaluated configs sorted by cost, restricted to
// the maximum budget in highest-fidelity mode.
func (c *Criterion) rankedConfigs(rh *runhistory.RunHistory) []*paramspace.Config {
	configs := rh.Configs()
	if !c.HighestFidelityOnly {
		return configs
	}
	at := make(map[string]bool)
	for _, cf := range rh.ConfigsPerBudget([]float64{c.MaxBudget}) {
		at[cf.Key()] = true
	}
	out := configs[:0:0]
	for _, cf := range configs {
		if at[cf.Key()] {
			out = append(out, cf)
		}
	}
	return out
}
