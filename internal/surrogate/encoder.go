package surrogate

import (
	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

// Imputer estimates costs for right-censored trials so the model is not
// biased by timeouts. Implemented by the impute package; declared here
// so the encoder does not depend on it.
type Imputer interface {
	Impute(censoredX [][]float64, censoredY []float64, uncensoredX [][]float64, uncensoredY []float64) ([]float64, error)
}

// Encoder turns the run history into the (X, y) training matrices the
// surrogate consumes. Successful trials train directly; timed-out trials
// are right-censored at their recorded wall time and routed through the
// imputer; crashed and memory-failed trials are excluded, since their
// crash cost says nothing about the objective surface.
type Encoder struct {
	space   *paramspace.Space
	imputer Imputer

	// HighestBudgetOnly restricts training data to trials at MaxBudget,
	// for model states anchored at full fidelity.
	HighestBudgetOnly bool
	MaxBudget         float64
}

func NewEncoder(space *paramspace.Space, imputer Imputer) *Encoder {
	return &Encoder{space: space, imputer: imputer}
}

// Transform builds the training matrices. With an imputer configured,
// censored trials contribute imputed costs; without one they are
// dropped.
func (e *Encoder) Transform(rh *runhistory.RunHistory) (X [][]float64, y []float64, err error) {
	var censX [][]float64
	var censY []float64

	rh.Each(func(key runhistory.TrialKey, v runhistory.TrialValue) {
		if e.HighestBudgetOnly && key.Budget != e.MaxBudget {
			return
		}
		c, ok := rh.ConfigForID(key.ConfigID)
		if !ok {
			return
		}
		switch v.Status {
		case runhistory.StatusSuccess:
			X = append(X, e.space.Encode(c))
			y = append(y, rh.ScalarCost(v))
		case runhistory.StatusTimeout:
			// Right-censored: the recorded wall time is the observed
			// cap, not the crash cost the trial was ranked at.
			censX = append(censX, e.space.Encode(c))
			censY = append(censY, v.Time)
		}
	})

	if len(censX) == 0 || e.imputer == nil {
		return X, y, nil
	}
	imputed, err := e.imputer.Impute(censX, censY, X, y)
	if err != nil {
		log.Warnf("imputation failed, training on uncensored data only: %v", err)
		return X, y, nil
	}
	X = append(X, censX...)
	y = append(y, imputed...)
	return X, y, nil
}
