package surrogate_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
	"github.com/contenderhq/contender/internal/surrogate"
)

func space2D(t *testing.T) *paramspace.Space {
	t.Helper()
	s, err := paramspace.New(
		paramspace.Float("a", paramspace.Range[float64]{Min: 0, Max: 1}, false),
		paramspace.Float("b", paramspace.Range[float64]{Min: 0, Max: 1}, false),
	)
	require.NoError(t, err)
	return s
}

func TestGPPredictBeforeTraining(t *testing.T) {
	g := surrogate.NewGP(0.2)
	assert.False(t, g.Fitted())
	_, _, err := g.Predict([][]float64{{0.5, 0.5}})
	assert.ErrorIs(t, err, surrogate.ErrModelNotReady)
}

func TestGPTrainValidation(t *testing.T) {
	g := surrogate.NewGP(0.2)
	assert.Error(t, g.Train([][]float64{{0}}, []float64{1, 2}), "length mismatch")
	assert.Error(t, g.Train(nil, nil), "empty training set")
}

func TestGPInterpolatesTrainingPoints(t *testing.T) {
	g := surrogate.NewGP(0.05)
	X := [][]float64{{0.1, 0.1}, {0.9, 0.9}}
	y := []float64{1.0, 5.0}
	require.NoError(t, g.Train(X, y))
	require.True(t, g.Fitted())
	assert.Equal(t, 2, g.Len())

	mean, variance, err := g.Predict(X)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mean[0], 0.05, "prediction at a training point stays close to its target")
	assert.InDelta(t, 5.0, mean[1], 0.05)

	_, farVar, err := g.Predict([][]float64{{0.5, 0.1}})
	require.NoError(t, err)
	assert.Greater(t, farVar[0], variance[0], "uncertainty grows away from training data")
}

func TestLCBPrefersUncertaintyUCBAvoidsIt(t *testing.T) {
	g := surrogate.NewGP(0.05)
	require.NoError(t, g.Train([][]float64{{0.5, 0.5}}, []float64{2.0}))

	near := []float64{0.5, 0.5}
	far := []float64{0.0, 1.0}

	lcb := surrogate.NewLCB(2, 2, false)
	lcb.Update(g, 1)
	ls, err := lcb.Score([][]float64{near, far})
	require.NoError(t, err)
	assert.Greater(t, ls[1], ls[0], "LCB favors unexplored regions of equal predicted mean")

	ucb := surrogate.NewUCB(2, 2, false)
	ucb.Update(g, 1)
	us, err := ucb.Score([][]float64{near, far})
	require.NoError(t, err)
	assert.Greater(t, us[0], us[1], "UCB penalizes uncertainty")
}

func TestBetaScheduleGrowsWithData(t *testing.T) {
	lcb := surrogate.NewLCB(2, 1, true)
	g := surrogate.NewGP(0.2)
	require.NoError(t, g.Train([][]float64{{0.5, 0.5}}, []float64{1}))

	lcb.Update(g, 10)
	b10 := lcb.Beta()
	lcb.Update(g, 100)
	assert.Greater(t, lcb.Beta(), b10)

	fixed := surrogate.NewLCB(2, 3, false)
	fixed.Update(g, 100)
	assert.Equal(t, 3.0, fixed.Beta())
}

func TestEIAndPIFavorImprovement(t *testing.T) {
	g := surrogate.NewGP(0.05)
	// Low-cost region near the origin, high-cost region opposite.
	require.NoError(t, g.Train([][]float64{{0.1, 0.1}, {0.9, 0.9}}, []float64{1.0, 9.0}))

	lowMean := []float64{0.12, 0.12}
	highMean := []float64{0.88, 0.88}

	ei := surrogate.NewEI(0.01)
	ei.Update(g, 2)
	ei.SetBest(5.0)
	es, err := ei.Score([][]float64{lowMean, highMean})
	require.NoError(t, err)
	assert.Greater(t, es[0], es[1])

	pi := surrogate.NewPI(0.01)
	pi.Update(g, 2)
	pi.SetBest(5.0)
	ps, err := pi.Score([][]float64{lowMean, highMean})
	require.NoError(t, err)
	assert.Greater(t, ps[0], ps[1])
	for _, p := range ps {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestRandomSearchMaximize(t *testing.T) {
	s := space2D(t)
	rng := rand.New(rand.NewSource(5))
	g := surrogate.NewGP(0.1)
	// Costs rise with the first coordinate: the minimum is near a=0.
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		c := s.Sample(rng)
		X = append(X, s.Encode(c))
		y = append(y, c.Float("a"))
	}
	require.NoError(t, g.Train(X, y))

	lcb := surrogate.NewLCB(2, 0.1, false)
	lcb.Update(g, len(y))

	rs := surrogate.NewRandomSearch(s, rng, 500)
	got, err := rs.Maximize(lcb, 5, nil)
	require.NoError(t, err)
	require.Len(t, got, 5)

	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c.Key()], "proposals are deduplicated")
		seen[c.Key()] = true
		assert.Equal(t, "acquisition", c.Origin())
	}
	assert.Less(t, got[0].Float("a"), 0.5, "top proposal sits in the cheap half")
}

func TestRandomSearchPropagatesModelNotReady(t *testing.T) {
	s := space2D(t)
	rng := rand.New(rand.NewSource(5))
	lcb := surrogate.NewLCB(2, 1, false)
	lcb.Update(surrogate.NewGP(0.2), 0)

	rs := surrogate.NewRandomSearch(s, rng, 10)
	_, err := rs.Maximize(lcb, 1, nil)
	assert.ErrorIs(t, err, surrogate.ErrModelNotReady)
}

type fixedImputer struct {
	values []float64
	censY  []float64 // what the encoder handed over
}

func (f *fixedImputer) Impute(censoredX [][]float64, censoredY []float64, uncensoredX [][]float64, uncensoredY []float64) ([]float64, error) {
	f.censY = append([]float64(nil), censoredY...)
	return f.values, nil
}

func TestEncoderTransform(t *testing.T) {
	s := space2D(t)
	rh := runhistory.New(nil)

	add := func(u1, u2, cost float64, status runhistory.Status, budget float64) *paramspace.Config {
		c := s.FromUnit([]float64{u1, u2})
		v := runhistory.TrialValue{Costs: []float64{cost}, Status: status}
		if status != runhistory.StatusSuccess {
			v.Time = 9.0 // wall time observed when the trial was cut off
		}
		require.NoError(t, rh.Add(c, "", 1, budget, v))
		return c
	}

	// Failed trials are ranked at the crash cost, as the runner records them.
	ok1 := add(0.1, 0.1, 1.0, runhistory.StatusSuccess, 1)
	add(0.2, 0.2, 1e9, runhistory.StatusTimeout, 1)
	add(0.3, 0.3, 1e9, runhistory.StatusCrashed, 1)
	add(0.4, 0.4, 1e9, runhistory.StatusMemout, 1)

	imp := &fixedImputer{values: []float64{12.0}}
	enc := surrogate.NewEncoder(s, imp)
	X, y, err := enc.Transform(rh)
	require.NoError(t, err)

	// One success plus one imputed timeout; crash and memout excluded.
	require.Len(t, y, 2)
	assert.Equal(t, s.Encode(ok1), X[0])
	assert.Equal(t, 1.0, y[0])
	assert.Equal(t, 12.0, y[1], "censored cost replaced by the imputed value")
	assert.Equal(t, []float64{9.0}, imp.censY, "the imputer sees the observed cap, never the crash cost")
}

func TestEncoderHighestBudgetOnly(t *testing.T) {
	s := space2D(t)
	rh := runhistory.New(nil)

	low := s.FromUnit([]float64{0.1, 0.1})
	high := s.FromUnit([]float64{0.2, 0.2})
	require.NoError(t, rh.Add(low, "", 1, 1, runhistory.TrialValue{Costs: []float64{1}, Status: runhistory.StatusSuccess}))
	require.NoError(t, rh.Add(high, "", 1, 4, runhistory.TrialValue{Costs: []float64{2}, Status: runhistory.StatusSuccess}))

	enc := surrogate.NewEncoder(s, nil)
	enc.HighestBudgetOnly = true
	enc.MaxBudget = 4

	X, y, err := enc.Transform(rh)
	require.NoError(t, err)
	require.Len(t, y, 1)
	assert.Equal(t, s.Encode(high), X[0])
	assert.Equal(t, 2.0, y[0])
}

func TestEncoderWithoutImputerDropsCensored(t *testing.T) {
	s := space2D(t)
	rh := runhistory.New(nil)
	c := s.FromUnit([]float64{0.2, 0.2})
	require.NoError(t, rh.Add(c, "", 1, 0, runhistory.TrialValue{Costs: []float64{9}, Status: runhistory.StatusTimeout}))

	enc := surrogate.NewEncoder(s, nil)
	X, y, err := enc.Transform(rh)
	require.NoError(t, err)
	assert.Empty(t, X)
	assert.Empty(t, y)
}
