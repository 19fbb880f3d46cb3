package paramspace_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contenderhq/contender/internal/paramspace"
)

func testSpace(t *testing.T) *paramspace.Space {
	t.Helper()
	s, err := paramspace.New(
		paramspace.Float("lr", paramspace.Range[float64]{Min: 1e-4, Max: 1}, true),
		paramspace.Int("depth", paramspace.Range[int]{Min: 1, Max: 10}, false),
		paramspace.Choice("kernel", "rbf", "linear", "poly"),
	)
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadSpaces(t *testing.T) {
	_, err := paramspace.New()
	assert.Error(t, err)

	_, err = paramspace.New(
		paramspace.Float("x", paramspace.Range[float64]{Min: 0, Max: 1}, false),
		paramspace.Float("x", paramspace.Range[float64]{Min: 0, Max: 1}, false),
	)
	assert.Error(t, err, "duplicate names must be rejected")

	_, err = paramspace.New(paramspace.Float("x", paramspace.Range[float64]{Min: 2, Max: 1}, false))
	assert.Error(t, err, "inverted range must be rejected")

	_, err = paramspace.New(paramspace.Float("x", paramspace.Range[float64]{Min: 0, Max: 1}, true))
	assert.Error(t, err, "log scale with zero lower bound must be rejected")

	_, err = paramspace.New(paramspace.Choice("k", "only"))
	assert.Error(t, err, "single-choice categorical must be rejected")
}

func TestDefaultConfig(t *testing.T) {
	s := testSpace(t)
	c := s.Default()

	assert.InDelta(t, math.Sqrt(1e-4*1), c.Float("lr"), 1e-12, "log-scaled default is the geometric midpoint")
	assert.Equal(t, 6, c.Int("depth"))
	assert.Equal(t, "rbf", c.Choice("kernel"))
	assert.Equal(t, "default", c.Origin())
	require.NoError(t, s.Validate(c))
}

func TestSampleStaysInBounds(t *testing.T) {
	s := testSpace(t)
	rng := rand.New(rand.NewSource(1))
	for _, c := range s.SampleN(rng, 200) {
		require.NoError(t, s.Validate(c))
	}
}

func TestFromUnitClamps(t *testing.T) {
	s := testSpace(t)
	c := s.FromUnit([]float64{-0.5, 1.5, 0.99})
	require.NoError(t, s.Validate(c))
	assert.InDelta(t, 1e-4, c.Float("lr"), 1e-12)
	assert.Equal(t, 10, c.Int("depth"))
	assert.Equal(t, "poly", c.Choice("kernel"))
}

func TestEncodeIsUnitCube(t *testing.T) {
	s := testSpace(t)
	rng := rand.New(rand.NewSource(2))
	for _, c := range s.SampleN(rng, 100) {
		x := s.Encode(c)
		require.Len(t, x, s.Dim())
		for i, v := range x {
			assert.GreaterOrEqual(t, v, 0.0, "dim %d", i)
			assert.LessOrEqual(t, v, 1.0, "dim %d", i)
		}
	}
}

func TestKeyIdentity(t *testing.T) {
	s := testSpace(t)
	a := s.FromUnit([]float64{0.3, 0.7, 0.5})
	b := s.FromUnit([]float64{0.3, 0.7, 0.5})
	c := s.FromUnit([]float64{0.31, 0.7, 0.5})

	assert.Equal(t, a.Key(), b.Key(), "equal values share a key")
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, a.Key(), a.WithOrigin("acquisition").Key(), "origin does not affect identity")
}

func TestFromValuesRoundTrip(t *testing.T) {
	s := testSpace(t)
	rng := rand.New(rand.NewSource(3))
	orig := s.Sample(rng)

	restored, err := s.FromValues(orig.Values())
	require.NoError(t, err)
	assert.Equal(t, orig.Key(), restored.Key())

	_, err = s.FromValues(map[string]paramspace.Value{"nope": {Num: 1}})
	assert.Error(t, err, "unknown names are rejected")
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	s := testSpace(t)
	bad, err := s.FromValues(map[string]paramspace.Value{"depth": {Num: 11}})
	assert.Error(t, err)
	assert.Nil(t, bad)
}
