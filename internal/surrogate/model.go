// Package surrogate holds the predictive model over the encoded search
// space, the acquisition functions that score candidate configurations,
// and the optimizer that maximizes them. The model is an external
// collaborator to the scheduling engine: only train/predict/fitted are
// relied upon.
package surrogate

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "surrogate")

// ErrModelNotReady is returned when predictions are requested before the
// first training round. Callers recover locally by deferring.
var ErrModelNotReady = errors.New("model has not been trained yet")

// Model is the surrogate contract: train on encoded configurations and
// observed costs, predict mean and variance elsewhere.
type Model interface {
	Train(X [][]float64, y []float64) error
	Predict(X [][]float64) (mean, variance []float64, err error)
	Fitted() bool
}
