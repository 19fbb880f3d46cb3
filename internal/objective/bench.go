package objective

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/contenderhq/contender/internal/paramspace"
)

// Built-in benchmark objectives so the tool is runnable end to end
// without user code. Budget acts as a fidelity knob: lower budgets add
// seed-deterministic noise, so multi-fidelity intensifiers have
// something real to trade off.

// Lookup returns a built-in objective by name.
func Lookup(name string) (Objective, bool) {
	o, ok := builtins[name]
	return o, ok
}

// Names lists the built-in objectives.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var builtins = map[string]Objective{
	"branin": {
		Name:       "branin",
		Objectives: []string{DefaultCostName},
		Caps:       Capabilities{Seed: true, Budget: true},
		Space:      braninSpace,
		Fn:         noisy(branin),
	},
	"rosenbrock": {
		Name:       "rosenbrock",
		Objectives: []string{DefaultCostName},
		Caps:       Capabilities{Seed: true, Budget: true},
		Space:      rosenbrockSpace,
		Fn:         noisy(rosenbrock),
	},
	"eggholder": {
		Name:       "eggholder",
		Objectives: []string{DefaultCostName},
		Caps:       Capabilities{Seed: true, Budget: true},
		Space:      eggholderSpace,
		Fn:         noisy(eggholder),
	},
}

// noisy wraps a deterministic function with fidelity noise: at budget b
// in (0, 1] the cost is perturbed by gaussian noise with standard
// deviation proportional to 1-b. Budget 0 means full fidelity.
func noisy(fn func(req Request) float64) Func {
	return func(ctx context.Context, req Request) (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		cost := fn(req)
		if req.Budget > 0 && req.Budget < 1 {
			rng := rand.New(rand.NewSource(req.Seed))
			cost += rng.NormFloat64() * (1 - req.Budget) * math.Abs(cost+1)
		}
		return Scalar(cost), nil
	}
}

func branin(req Request) float64 {
	x1 := req.Config.Float("x1")
	x2 := req.Config.Float("x2")
	a := 1.0
	b := 5.1 / (4 * math.Pi * math.Pi)
	c := 5 / math.Pi
	r := 6.0
	s := 10.0
	t := 1 / (8 * math.Pi)
	return a*math.Pow(x2-b*x1*x1+c*x1-r, 2) + s*(1-t)*math.Cos(x1) + s
}

func rosenbrock(req Request) float64 {
	x1 := req.Config.Float("x1")
	x2 := req.Config.Float("x2")
	return math.Pow(1-x1, 2) + 100*math.Pow(x2-x1*x1, 2)
}

func eggholder(req Request) float64 {
	x1 := req.Config.Float("x1")
	x2 := req.Config.Float("x2")
	return -(x2+47)*math.Sin(math.Sqrt(math.Abs(x2+x1/2+47))) -
		x1*math.Sin(math.Sqrt(math.Abs(x1-(x2+47))))
}

func braninSpace() (*paramspace.Space, error) {
	return plane(-5, 10, 0, 15)
}

func rosenbrockSpace() (*paramspace.Space, error) {
	return plane(-5, 10, -5, 10)
}

func eggholderSpace() (*paramspace.Space, error) {
	return plane(-512, 512, -512, 512)
}

func plane(lo1, hi1, lo2, hi2 float64) (*paramspace.Space, error) {
	s, err := paramspace.New(
		paramspace.Float("x1", paramspace.Range[float64]{Min: lo1, Max: hi1}, false),
		paramspace.Float("x2", paramspace.Range[float64]{Min: lo2, Max: hi2}, false),
	)
	if err != nil {
		return nil, fmt.Errorf("building benchmark space: %w", err)
	}
	return s, nil
}
