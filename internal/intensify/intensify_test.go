package intensify_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contenderhq/contender/internal/intensify"
	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

func space1D(t *testing.T) *paramspace.Space {
	t.Helper()
	s, err := paramspace.New(
		paramspace.Float("x", paramspace.Range[float64]{Min: 0, Max: 1}, false),
	)
	require.NoError(t, err)
	return s
}

func configAt(s *paramspace.Space, x float64) *paramspace.Config {
	return s.FromUnit([]float64{x})
}

// queue is a ChallengerSource backed by a fixed list.
type queue struct {
	configs []*paramspace.Config
}

func (q *queue) Next() *paramspace.Config {
	if len(q.configs) == 0 {
		return nil
	}
	c := q.configs[0]
	q.configs = q.configs[1:]
	return c
}

func noInFlight(runhistory.TrialKey) bool { return false }

func result(cost float64) runhistory.TrialValue {
	now := time.Now()
	return runhistory.TrialValue{
		Costs: []float64{cost}, Status: runhistory.StatusSuccess,
		StartTime: now, EndTime: now,
	}
}

// drive runs the intensifier serially until it waits: every Run decision
// is evaluated immediately with costFn and folded back. It returns one
// trial per executed Run decision in order.
func drive(t *testing.T, in intensify.Intensifier, rh *runhistory.RunHistory, q *queue, costFn func(*paramspace.Config) float64, maxSteps int) []intensify.Trial {
	t.Helper()
	var ran []intensify.Trial
	for step := 0; step < maxSteps; step++ {
		d := in.SelectNext(rh, q, noInFlight)
		switch d.Intent {
		case intensify.IntentWait:
			return ran
		case intensify.IntentSkip:
			continue
		case intensify.IntentRun:
			v := result(costFn(d.Trial.Config))
			require.NoError(t, rh.Add(d.Trial.Config, d.Trial.Instance, d.Trial.Seed, d.Trial.Budget, v))
			in.ProcessResult(d.Trial, v, rh)
			ran = append(ran, d.Trial)
		}
	}
	t.Fatalf("intensifier did not settle within %d steps", maxSteps)
	return nil
}

func TestSimpleKeepsCheapestConfig(t *testing.T) {
	s := space1D(t)
	rh := runhistory.New(nil)
	in := intensify.NewSimple("", 42)

	a := configAt(s, 0.5) // cost 0.5
	b := configAt(s, 0.2) // cost 0.2, better
	c := configAt(s, 0.9) // cost 0.9, worse

	q := &queue{configs: []*paramspace.Config{a, b, c}}
	ran := drive(t, in, rh, q, func(c *paramspace.Config) float64 { return c.Float("x") }, 100)

	require.Len(t, ran, 3)
	require.NotNil(t, in.Incumbent())
	assert.Equal(t, b.Key(), in.Incumbent().Key())
}

func TestSimpleSkipsEvaluatedChallengers(t *testing.T) {
	s := space1D(t)
	rh := runhistory.New(nil)
	in := intensify.NewSimple("", 42)

	a := configAt(s, 0.5)
	q := &queue{configs: []*paramspace.Config{a, a}}
	ran := drive(t, in, rh, q, func(c *paramspace.Config) float64 { return c.Float("x") }, 100)
	assert.Len(t, ran, 1, "a repeated challenger is skipped, not re-run")
}

func TestSimpleWaitsWithoutChallengers(t *testing.T) {
	rh := runhistory.New(nil)
	in := intensify.NewSimple("", 42)
	d := in.SelectNext(rh, &queue{}, noInFlight)
	assert.Equal(t, intensify.IntentWait, d.Intent)
}

func TestRacingDeepensIncumbentFirst(t *testing.T) {
	s := space1D(t)
	rh := runhistory.New(nil)
	rng := rand.New(rand.NewSource(1))
	in := intensify.NewRacing([]string{"i1", "i2"}, 2, rng)
	require.Equal(t, 4, in.Pairs())

	a := configAt(s, 0.5)
	b := configAt(s, 0.2)

	q := &queue{configs: []*paramspace.Config{a, b}}
	ran := drive(t, in, rh, q, func(c *paramspace.Config) float64 { return c.Float("x") }, 100)

	// The incumbent runs the whole track before the challenger starts.
	require.GreaterOrEqual(t, len(ran), 8)
	for i := 0; i < 4; i++ {
		assert.Equal(t, a.Key(), ran[i].Config.Key(), "trial %d should deepen the first config", i)
	}
	assert.Equal(t, 4, rh.NumTrials(a))
	assert.Equal(t, 4, rh.NumTrials(b), "challenger matches the incumbent's evaluation count")
	assert.Equal(t, b.Key(), in.Incumbent().Key(), "strictly better challenger takes over")
}

func TestRacingTieKeepsIncumbent(t *testing.T) {
	s := space1D(t)
	rh := runhistory.New(nil)
	rng := rand.New(rand.NewSource(1))
	in := intensify.NewRacing(nil, 3, rng)

	a := configAt(s, 0.5)
	b := configAt(s, 0.7)

	// Both configs cost the same everywhere.
	q := &queue{configs: []*paramspace.Config{a, b}}
	drive(t, in, rh, q, func(*paramspace.Config) float64 { return 1.0 }, 100)

	assert.Equal(t, a.Key(), in.Incumbent().Key(), "cost tie with equal evaluations keeps the incumbent")
}

func TestRacingNeverRacesIncumbentAgainstItself(t *testing.T) {
	s := space1D(t)
	rh := runhistory.New(nil)
	rng := rand.New(rand.NewSource(1))
	in := intensify.NewRacing(nil, 2, rng)

	a := configAt(s, 0.5)
	q := &queue{configs: []*paramspace.Config{a, a}}
	ran := drive(t, in, rh, q, func(c *paramspace.Config) float64 { return c.Float("x") }, 100)

	assert.Len(t, ran, 2, "only the incumbent's own track runs")
	assert.Equal(t, a.Key(), in.Incumbent().Key())
}
