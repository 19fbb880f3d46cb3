// Package objective defines the black-box function contract and the
// built-in benchmark functions the CLI ships with.
package objective

import (
	"context"
	"fmt"

	"github.com/contenderhq/contender/internal/paramspace"
)

// Request carries everything one trial evaluation may depend on. Fields
// the objective did not declare support for are zero-valued.
type Request struct {
	Config   *paramspace.Config
	Seed     int64
	Instance string
	Budget   float64
}

// Result is what an objective returns: one cost per declared objective
// plus free-form run information.
type Result struct {
	Costs map[string]float64
	Info  map[string]any
}

// Scalar builds a single-objective result under the default cost name.
func Scalar(cost float64) Result {
	return Result{Costs: map[string]float64{DefaultCostName: cost}}
}

// DefaultCostName is the objective name used by scalar objectives.
const DefaultCostName = "cost"

// Func evaluates one trial. A returned error marks the trial crashed;
// resource-limit outcomes are handled by the runner wrapping the call.
type Func func(ctx context.Context, req Request) (Result, error)

// Capabilities declares which request fields the objective consumes.
// This replaces signature introspection: the caller zeroes out fields
// the objective does not support.
type Capabilities struct {
	Seed     bool
	Instance bool
	Budget   bool
}

// Objective bundles a function with its declared cost names, supported
// request fields and the search space it expects.
type Objective struct {
	Name       string
	Objectives []string // declared cost names, order defines cost vectors
	Caps       Capabilities
	Space      func() (*paramspace.Space, error)
	Fn         Func
}

// CostVector orders a result's cost map by the declared objective names.
// A missing or surplus objective is an arity error.
func (o Objective) CostVector(res Result) ([]float64, error) {
	names := o.Objectives
	if len(names) == 0 {
		names = []string{DefaultCostName}
	}
	if len(res.Costs) != len(names) {
		return nil, fmt.Errorf("objective returned %d costs, declared %d", len(res.Costs), len(names))
	}
	out := make([]float64, len(names))
	for i, name := range names {
		c, ok := res.Costs[name]
		if !ok {
			return nil, fmt.Errorf("objective %q missing from returned costs", name)
		}
		out[i] = c
	}
	return out, nil
}
