package surrogate

import (
	"fmt"
	"math"
	"sync"
)

// GP is a lightweight kernel-regression surrogate over the unit cube:
// an RBF-weighted mean with a similarity-based uncertainty proxy. It
// trades posterior exactness for O(n) prediction, which is what the
// acquisition optimizer hammers in its inner loop.
type GP struct {
	mu sync.RWMutex

	x     [][]float64
	y     []float64
	sigma float64 // kernel width

	fitted bool
}

// NewGP creates an untrained model. sigma controls smoothing; values
// around 0.2 work well for unit-cube inputs.
func NewGP(sigma float64) *GP {
	if sigma <= 0 {
		sigma = 0.2
	}
	return &GP{sigma: sigma}
}

// Train replaces the training set. Inputs are copied so callers can
// reuse their buffers.
func (g *GP) Train(X [][]float64, y []float64) error {
	if len(X) != len(y) {
		return fmt.Errorf("training data mismatch: %d inputs, %d targets", len(X), len(y))
	}
	if len(X) == 0 {
		return fmt.Errorf("empty training set")
	}
	cx := make([][]float64, len(X))
	for i, row := range X {
		cx[i] = append([]float64(nil), row...)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.x = cx
	g.y = append([]float64(nil), y...)
	g.fitted = true
	return nil
}

// Fitted reports whether Train has run at least once.
func (g *GP) Fitted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fitted
}

func (g *GP) kernel(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Exp(-sum / (2 * g.sigma * g.sigma))
}

// Predict returns the kernel-weighted mean and an uncertainty proxy per
// input point: variance approaches 0 near observed points and 1 far
// from all of them.
func (g *GP) Predict(X [][]float64) (mean, variance []float64, err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.fitted {
		return nil, nil, ErrModelNotReady
	}
	mean = make([]float64, len(X))
	variance = make([]float64, len(X))
	for i, q := range X {
		var wsum, ysum float64
		for j, p := range g.x {
			w := g.kernel(q, p)
			wsum += w
			ysum += w * g.y[j]
		}
		if wsum > 0 {
			mean[i] = ysum / wsum
		} else {
			mean[i] = g.meanY()
		}
		variance[i] = 1 / (1 + wsum)
	}
	return mean, variance, nil
}

func (g *GP) meanY() float64 {
	var sum float64
	for _, v := range g.y {
		sum += v
	}
	return sum / float64(len(g.y))
}

// Len returns the training-set size.
func (g *GP) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.x)
}
