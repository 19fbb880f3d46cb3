package surrogate

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Acquisition scores encoded configurations; higher is more promising.
// Update refreshes state that depends on the model and amount of data,
// such as the exploration weight.
type Acquisition interface {
	Update(m Model, numData int)
	Score(X [][]float64) ([]float64, error)
}

// srinivasBeta is the confidence-bound exploration schedule from
// Srinivas et al. (2010): beta grows slowly with data and dimension so
// the bounds stay valid over the whole run.
func srinivasBeta(numData, dim int, delta float64) float64 {
	if numData < 1 {
		numData = 1
	}
	n := float64(numData)
	d := float64(dim)
	return 2 * math.Log(math.Pow(n, d/2+2)*math.Pi*math.Pi/(3*delta))
}

// boundBase carries the shared state of the confidence-bound functions.
type boundBase struct {
	model     Model
	dim       int
	beta      float64
	updateB   bool
	delta     float64
	fixedBeta float64
}

func newBoundBase(dim int, initialBeta float64, updateBeta bool) boundBase {
	return boundBase{dim: dim, beta: initialBeta, fixedBeta: initialBeta, updateB: updateBeta, delta: 0.1}
}

func (b *boundBase) Update(m Model, numData int) {
	b.model = m
	if b.updateB {
		b.beta = srinivasBeta(numData, b.dim, b.delta)
	} else {
		b.beta = b.fixedBeta
	}
}

// Beta exposes the current exploration weight, mostly for logging.
func (b *boundBase) Beta() float64 { return b.beta }

// LCB scores by the negated lower confidence bound: maximizing it finds
// the point with the smallest optimistic cost estimate.
type LCB struct{ boundBase }

func NewLCB(dim int, initialBeta float64, updateBeta bool) *LCB {
	return &LCB{newBoundBase(dim, initialBeta, updateBeta)}
}

func (a *LCB) Score(X [][]float64) ([]float64, error) {
	mean, variance, err := a.model.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		out[i] = -(mean[i] - math.Sqrt(a.beta*variance[i]))
	}
	return out, nil
}

// UCB scores by the negated upper confidence bound, the pessimistic
// counterpart used by the stopping rule.
type UCB struct{ boundBase }

func NewUCB(dim int, initialBeta float64, updateBeta bool) *UCB {
	return &UCB{newBoundBase(dim, initialBeta, updateBeta)}
}

func (a *UCB) Score(X [][]float64) ([]float64, error) {
	mean, variance, err := a.model.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		out[i] = -(mean[i] + math.Sqrt(a.beta*variance[i]))
	}
	return out, nil
}

// EI scores by expected improvement over the best observed cost.
type EI struct {
	model Model
	best  float64
	xi    float64
}

func NewEI(xi float64) *EI {
	return &EI{best: math.Inf(1), xi: xi}
}

// SetBest sets the best observed cost the improvement is measured from.
func (a *EI) SetBest(best float64) { a.best = best }

func (a *EI) Update(m Model, numData int) { a.model = m }

func (a *EI) Score(X [][]float64) ([]float64, error) {
	mean, variance, err := a.model.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		sd := math.Sqrt(variance[i])
		if sd == 0 {
			continue
		}
		z := (a.best - mean[i] - a.xi) / sd
		out[i] = (a.best-mean[i]-a.xi)*stdNormal.CDF(z) + sd*stdNormal.Prob(z)
	}
	return out, nil
}

// PI scores by the probability of improving on the best observed cost.
type PI struct {
	model Model
	best  float64
	xi    float64
}

func NewPI(xi float64) *PI {
	return &PI{best: math.Inf(1), xi: xi}
}

func (a *PI) SetBest(best float64) { a.best = best }

func (a *PI) Update(m Model, numData int) { a.model = m }

func (a *PI) Score(X [][]float64) ([]float64, error) {
	mean, variance, err := a.model.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		sd := math.Sqrt(variance[i])
		if sd == 0 {
			continue
		}
		out[i] = stdNormal.CDF((a.best - mean[i] - a.xi) / sd)
	}
	return out, nil
}

// Thompson scores by a posterior draw, randomizing exploration without
// any tuning knob.
type Thompson struct {
	model Model
	rng   *rand.Rand
}

func NewThompson(rng *rand.Rand) *Thompson {
	return &Thompson{rng: rng}
}

func (a *Thompson) Update(m Model, numData int) { a.model = m }

func (a *Thompson) Score(X [][]float64) ([]float64, error) {
	mean, variance, err := a.model.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		out[i] = -(mean[i] + math.Sqrt(variance[i])*a.rng.NormFloat64())
	}
	return out, nil
}
