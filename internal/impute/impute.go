// Package impute estimates the true cost of right-censored trials:
// timeouts only tell us the cost is at least the cap, and training the
// surrogate on the cap directly would bias it optimistic. The estimate
// is the mean of a normal truncated to [cap, threshold], refined by
// retraining until it settles.
package impute

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/contenderhq/contender/internal/surrogate"
)

var log = logrus.WithField("component", "impute")

// varianceFloor keeps the truncated-normal moments away from degenerate
// zero-variance predictions.
const varianceFloor = 1e-2

// CensoredImputer iterates: train on uncensored data, predict each
// censored point, replace its cost by the truncated-normal mean,
// retrain on the union, and stop when the relative change falls below
// ChangeThreshold or MaxIter is reached.
type CensoredImputer struct {
	model surrogate.Model

	// Threshold is the penalization ceiling imputed values are capped
	// at, e.g. ten times the wall-time limit.
	Threshold float64

	ChangeThreshold float64
	MaxIter         int

	changes []float64
}

func NewCensoredImputer(model surrogate.Model, threshold float64) *CensoredImputer {
	return &CensoredImputer{
		model:           model,
		Threshold:       threshold,
		ChangeThreshold: 0.01,
		MaxIter:         2,
	}
}

// Impute returns estimated costs for the censored points, one per row
// of censoredX, each within [observed cap, threshold].
func (im *CensoredImputer) Impute(censoredX [][]float64, censoredY []float64, uncensoredX [][]float64, uncensoredY []float64) ([]float64, error) {
	im.changes = im.changes[:0]
	if len(censoredX) == 0 {
		return nil, fmt.Errorf("nothing to impute")
	}
	if len(uncensoredX) == 0 {
		// No ground truth to model from: fall back to the caps.
		out := append([]float64(nil), censoredY...)
		return capAt(out, im.Threshold), nil
	}

	if err := im.model.Train(uncensoredX, uncensoredY); err != nil {
		return nil, fmt.Errorf("training on uncensored data: %w", err)
	}
	log.Debugf("imputing %d censored values", len(censoredX))

	var imputed []float64
	prev := []float64(nil)
	change := 0.0

	for it := 1; ; it++ {
		mean, variance, err := im.model.Predict(censoredX)
		if err != nil {
			return nil, fmt.Errorf("predicting censored points: %w", err)
		}

		imputed = make([]float64, len(censoredX))
		for i := range censoredX {
			v := variance[i]
			if v < varianceFloor {
				v = varianceFloor
			}
			sd := math.Sqrt(v)
			m := truncatedNormalMean(mean[i], sd, censoredY[i], im.Threshold)
			if !isFinite(m) {
				// Prediction far below the cap collapses the truncation;
				// fall back to the larger of cap and predicted mean.
				m = math.Max(censoredY[i], mean[i])
			}
			imputed[i] = m
		}
		imputed = capAt(imputed, im.Threshold)

		if it > 1 {
			change = meanRelChange(imputed, prev)
			im.changes = append(im.changes, change)
			log.Debugf("imputation iteration %d change=%f", it, change)
			if change <= im.ChangeThreshold {
				break
			}
		}
		if it >= im.MaxIter {
			break
		}

		prev = append([]float64(nil), imputed...)
		X := append(append([][]float64(nil), uncensoredX...), censoredX...)
		y := append(append([]float64(nil), uncensoredY...), imputed...)
		if err := im.model.Train(X, y); err != nil {
			return nil, fmt.Errorf("retraining with imputed data: %w", err)
		}
	}

	// Leave the model trained on the full data set.
	X := append(append([][]float64(nil), uncensoredX...), censoredX...)
	y := append(append([]float64(nil), uncensoredY...), imputed...)
	if err := im.model.Train(X, y); err != nil {
		return nil, fmt.Errorf("final training: %w", err)
	}

	for i, v := range imputed {
		if !isFinite(v) {
			return nil, fmt.Errorf("imputed value %d is not finite", i)
		}
	}
	return imputed, nil
}

// Changes returns the change metric recorded at each refinement
// iteration of the most recent Impute call, for diagnostics.
func (im *CensoredImputer) Changes() []float64 {
	return append([]float64(nil), im.changes...)
}

// truncatedNormalMean is the mean of N(mu, sd²) truncated to [lo, hi].
func truncatedNormalMean(mu, sd, lo, hi float64) float64 {
	dist := distuv.Normal{Mu: 0, Sigma: 1}
	a := (lo - mu) / sd
	b := (hi - mu) / sd
	z := dist.CDF(b) - dist.CDF(a)
	if z <= 0 {
		return math.NaN()
	}
	return mu + sd*(dist.Prob(a)-dist.Prob(b))/z
}

func meanRelChange(cur, prev []float64) float64 {
	var sum float64
	for i := range cur {
		if prev[i] != 0 {
			sum += math.Abs(cur[i]-prev[i]) / math.Abs(prev[i])
		}
	}
	return sum / float64(len(cur))
}

func capAt(xs []float64, threshold float64) []float64 {
	for i, v := range xs {
		if v >= threshold {
			xs[i] = threshold
		}
	}
	return xs
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
