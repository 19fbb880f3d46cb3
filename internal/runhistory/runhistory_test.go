package runhistory_test

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

func newSpace(t *testing.T) *paramspace.Space {
	t.Helper()
	s, err := paramspace.New(
		paramspace.Float("x", paramspace.Range[float64]{Min: 0, Max: 1}, false),
		paramspace.Float("y", paramspace.Range[float64]{Min: 0, Max: 1}, false),
	)
	require.NoError(t, err)
	return s
}

func success(costs ...float64) runhistory.TrialValue {
	now := time.Now()
	return runhistory.TrialValue{
		Costs: costs, Time: 0.1, Status: runhistory.StatusSuccess,
		StartTime: now, EndTime: now,
	}
}

func TestConfigIDsAreStable(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)

	a := s.FromUnit([]float64{0.1, 0.2})
	b := s.FromUnit([]float64{0.3, 0.4})

	assert.Equal(t, 1, rh.ConfigID(a))
	assert.Equal(t, 2, rh.ConfigID(b))
	assert.Equal(t, 1, rh.ConfigID(a), "same values, same id")
	assert.Equal(t, 1, rh.ConfigID(s.FromUnit([]float64{0.1, 0.2})), "identity is by value, not pointer")

	got, ok := rh.ConfigForID(2)
	require.True(t, ok)
	assert.Equal(t, b.Key(), got.Key())
}

func TestAddDuplicateRules(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)
	c := s.Default()

	require.NoError(t, rh.Add(c, "", 1, 0, success(2.0)))
	assert.Equal(t, 1, rh.Len())

	// Identical re-add is idempotent.
	require.NoError(t, rh.Add(c, "", 1, 0, success(2.0)))
	assert.Equal(t, 1, rh.Len())
	assert.Equal(t, 1, rh.Finished())

	// A different successful result for the same key is an error.
	err := rh.Add(c, "", 1, 0, success(3.0))
	assert.ErrorIs(t, err, runhistory.ErrDuplicateTrial)

	// A retry over a failed trial replaces it.
	crashed := success(100.0)
	crashed.Status = runhistory.StatusCrashed
	require.NoError(t, rh.Add(c, "", 2, 0, crashed))
	require.NoError(t, rh.Add(c, "", 2, 0, success(1.5)))
	v, ok := rh.Get(rh.Key(c, "", 2, 0))
	require.True(t, ok)
	assert.Equal(t, runhistory.StatusSuccess, v.Status)
	assert.Equal(t, []float64{1.5}, v.Costs)
}

func TestAddRejectsNonTerminal(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)
	err := rh.Add(s.Default(), "", 1, 0, runhistory.TrialValue{Costs: []float64{1}})
	assert.Error(t, err)
}

func TestScalarCostWeights(t *testing.T) {
	rh := runhistory.New([]float64{3, 1})
	v := success(2.0, 6.0)
	// (3*2 + 1*6) / 4
	assert.InDelta(t, 3.0, rh.ScalarCost(v), 1e-12)

	single := runhistory.New(nil)
	assert.Equal(t, 2.0, single.ScalarCost(success(2.0)))
	assert.True(t, math.IsInf(single.ScalarCost(runhistory.TrialValue{}), 1))
}

func TestCostAveragesHighestBudgetOnly(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)
	c := s.Default()

	// Two fidelity levels for seed 1: only budget 4 counts.
	require.NoError(t, rh.Add(c, "", 1, 1, success(10.0)))
	require.NoError(t, rh.Add(c, "", 1, 4, success(2.0)))
	require.NoError(t, rh.Add(c, "", 2, 4, success(4.0)))

	assert.InDelta(t, 3.0, rh.Cost(c), 1e-12)
	assert.Equal(t, 3, rh.NumTrials(c))

	infos := rh.Trials(c, true)
	require.Len(t, infos, 2)
	assert.Equal(t, 4.0, infos[0].Budget)

	other := s.FromUnit([]float64{0.9, 0.9})
	assert.True(t, math.IsInf(rh.Cost(other), 1), "unevaluated config costs +Inf")
}

func TestConfigsSortedByCost(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)

	worst := s.FromUnit([]float64{0.1, 0.1})
	best := s.FromUnit([]float64{0.2, 0.2})
	mid := s.FromUnit([]float64{0.3, 0.3})

	require.NoError(t, rh.Add(worst, "", 1, 0, success(9.0)))
	require.NoError(t, rh.Add(best, "", 1, 0, success(1.0)))
	require.NoError(t, rh.Add(mid, "", 1, 0, success(5.0)))

	got := rh.Configs()
	require.Len(t, got, 3)
	assert.Equal(t, best.Key(), got[0].Key())
	assert.Equal(t, mid.Key(), got[1].Key())
	assert.Equal(t, worst.Key(), got[2].Key())
}

func TestConfigsPerBudget(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)

	a := s.FromUnit([]float64{0.1, 0.1})
	b := s.FromUnit([]float64{0.2, 0.2})
	require.NoError(t, rh.Add(a, "", 1, 1, success(1)))
	require.NoError(t, rh.Add(b, "", 1, 4, success(1)))

	got := rh.ConfigsPerBudget([]float64{4})
	require.Len(t, got, 1)
	assert.Equal(t, b.Key(), got[0].Key())
}

func TestEachVisitsInInsertionOrder(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)
	rng := rand.New(rand.NewSource(7))

	var want []runhistory.TrialKey
	for i := 0; i < 20; i++ {
		c := s.Sample(rng)
		require.NoError(t, rh.Add(c, "", int64(i), 0, success(float64(i))))
		want = append(want, rh.Key(c, "", int64(i), 0))
	}

	var got []runhistory.TrialKey
	rh.Each(func(key runhistory.TrialKey, _ runhistory.TrialValue) {
		got = append(got, key)
	})
	assert.Equal(t, want, got)
}

func TestResetClearsEverything(t *testing.T) {
	s := newSpace(t)
	rh := runhistory.New(nil)
	rh.NoteSubmitted()
	require.NoError(t, rh.Add(s.Default(), "", 1, 0, success(1)))

	rh.Reset()
	assert.Zero(t, rh.Len())
	assert.Zero(t, rh.Submitted())
	assert.Zero(t, rh.Finished())
	assert.Equal(t, 1, rh.ConfigID(s.Default()), "ids restart after reset")
}
