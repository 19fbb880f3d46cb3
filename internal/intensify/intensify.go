// Package intensify decides which trial to run next and how challengers
// race against the incumbent. Variants share one contract: SelectNext
// proposes work as an intent (run, wait, skip) and ProcessResult folds a
// finished trial back in, possibly moving the incumbent.
package intensify

import (
	"github.com/sirupsen/logrus"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

var log = logrus.WithField("component", "intensify")

// Intent is the outcome of one scheduling decision.
type Intent int

const (
	// IntentRun carries a concrete trial the caller must submit.
	IntentRun Intent = iota
	// IntentWait means no work is ready; the caller blocks on the pool
	// until any job completes, then retries.
	IntentWait
	// IntentSkip means the proposed trial is redundant; the caller
	// advances immediately without consuming a worker slot.
	IntentSkip
)

func (i Intent) String() string {
	switch i {
	case IntentRun:
		return "run"
	case IntentWait:
		return "wait"
	case IntentSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Trial names one evaluation: a configuration at an (instance, seed,
// budget) coordinate.
type Trial struct {
	Config   *paramspace.Config
	Instance string
	Seed     int64
	Budget   float64
}

// Key resolves the trial to its run-history key, registering the config.
func (t Trial) Key(rh *runhistory.RunHistory) runhistory.TrialKey {
	return rh.Key(t.Config, t.Instance, t.Seed, t.Budget)
}

// Decision is what SelectNext returns.
type Decision struct {
	Intent Intent
	Trial  Trial
}

func runDecision(t Trial) Decision  { return Decision{Intent: IntentRun, Trial: t} }
func skipDecision(t Trial) Decision { return Decision{Intent: IntentSkip, Trial: t} }
func waitDecision() Decision        { return Decision{Intent: IntentWait} }

// ChallengerSource feeds candidate configurations to an intensifier.
// Next returns nil when no challenger is ready yet.
type ChallengerSource interface {
	Next() *paramspace.Config
}

// InFlightFunc reports whether a trial key is currently running.
type InFlightFunc func(runhistory.TrialKey) bool

// Intensifier is the scheduling state machine shared by all variants.
type Intensifier interface {
	// SelectNext chooses the next trial, or signals wait/skip. It must
	// consult both the run history and the in-flight table so the same
	// trial key is never submitted twice concurrently.
	SelectNext(rh *runhistory.RunHistory, challengers ChallengerSource, inFlight InFlightFunc) Decision

	// ProcessResult folds one finished trial into intensifier state
	// after it has been recorded, and returns the current incumbent and
	// its aggregated cost.
	ProcessResult(trial Trial, value runhistory.TrialValue, rh *runhistory.RunHistory) (*paramspace.Config, float64)

	// Incumbent returns the best configuration found so far, or nil.
	Incumbent() *paramspace.Config

	// MaxBudget returns the highest fidelity this intensifier schedules,
	// or 0 when it is budget-free.
	MaxBudget() float64
}

// challengerWins applies the conservative incumbent-update rule: a
// challenger replaces the incumbent only once it has at least as many
// recorded evaluations and a strictly better aggregated cost. Cost ties
// go to the config with more evaluations; a full tie keeps the
// incumbent, which finished earlier.
func challengerWins(rh *runhistory.RunHistory, challenger, incumbent *paramspace.Config) bool {
	if incumbent == nil {
		return true
	}
	ce, ie := rh.NumTrials(challenger), rh.NumTrials(incumbent)
	if ce < ie {
		return false
	}
	cc, ic := rh.Cost(challenger), rh.Cost(incumbent)
	if cc < ic {
		return true
	}
	return cc == ic && ce > ie
}
