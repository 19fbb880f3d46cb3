package objective_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contenderhq/contender/internal/objective"
)

func TestCostVectorArity(t *testing.T) {
	multi := objective.Objective{Objectives: []string{"latency", "memory"}}

	got, err := multi.CostVector(objective.Result{
		Costs: map[string]float64{"memory": 2, "latency": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got, "costs follow declared order")

	_, err = multi.CostVector(objective.Result{Costs: map[string]float64{"latency": 1}})
	assert.Error(t, err, "missing objective is an arity error")

	_, err = multi.CostVector(objective.Result{
		Costs: map[string]float64{"latency": 1, "memory": 2, "extra": 3},
	})
	assert.Error(t, err, "surplus objective is an arity error")

	_, err = multi.CostVector(objective.Result{
		Costs: map[string]float64{"latency": 1, "throughput": 2},
	})
	assert.Error(t, err, "wrong name is an error even with matching arity")
}

func TestCostVectorScalarDefault(t *testing.T) {
	var scalar objective.Objective
	got, err := scalar.CostVector(objective.Scalar(4.2))
	require.NoError(t, err)
	assert.Equal(t, []float64{4.2}, got)
}

func TestAggregate(t *testing.T) {
	costs := map[string]float64{"a": 2, "b": 6}

	assert.InDelta(t, 4.0, objective.Aggregate(costs, nil), 1e-12, "no weights means equal weighting")
	assert.InDelta(t, 3.0, objective.Aggregate(costs, objective.Weights{"a": 3, "b": 1}), 1e-12)
	assert.Zero(t, objective.Aggregate(nil, nil))
}

func TestWeightsVector(t *testing.T) {
	w := objective.Weights{"a": 2}
	assert.Equal(t, []float64{2, 0}, w.Vector([]string{"a", "b"}))
	assert.Equal(t, []float64{1, 1}, objective.Weights{}.Vector([]string{"a", "b"}), "all-zero falls back to equal")
	assert.Nil(t, w.Vector(nil))
}

func TestBuiltinsEvaluate(t *testing.T) {
	for _, name := range objective.Names() {
		obj, ok := objective.Lookup(name)
		require.True(t, ok)

		space, err := obj.Space()
		require.NoError(t, err, name)

		res, err := obj.Fn(context.Background(), objective.Request{Config: space.Default()})
		require.NoError(t, err, name)

		costs, err := obj.CostVector(res)
		require.NoError(t, err, name)
		require.Len(t, costs, 1)
		assert.False(t, math.IsNaN(costs[0]), name)
	}
}

func TestNoiseIsSeedDeterministicAndFadesWithBudget(t *testing.T) {
	obj, ok := objective.Lookup("branin")
	require.True(t, ok)
	space, err := obj.Space()
	require.NoError(t, err)

	ctx := context.Background()
	req := objective.Request{Config: space.Default(), Seed: 42, Budget: 0.25}

	a, err := obj.Fn(ctx, req)
	require.NoError(t, err)
	b, err := obj.Fn(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, a.Costs, b.Costs, "same seed and budget reproduce the same noise")

	full, err := obj.Fn(ctx, objective.Request{Config: space.Default(), Seed: 42, Budget: 1})
	require.NoError(t, err)
	clean, err := obj.Fn(ctx, objective.Request{Config: space.Default(), Seed: 7, Budget: 1})
	require.NoError(t, err)
	assert.Equal(t, full.Costs, clean.Costs, "budget 1 is noise-free regardless of seed")
	assert.NotEqual(t, full.Costs, a.Costs, "low budget perturbs the cost")
}
