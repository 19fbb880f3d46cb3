// Package initial generates the warm-start configurations evaluated
// before the surrogate model has anything to say.
package initial

import (
	"fmt"
	"math/rand"

	"github.com/contenderhq/contender/internal/paramspace"
)

// Design produces a fixed batch of starting configurations.
type Design interface {
	Configs() ([]*paramspace.Config, error)
}

// Kind selects a design by name as it appears in the scenario file.
type Kind string

const (
	KindDefault        Kind = "default"
	KindRandom         Kind = "random"
	KindLatinHypercube Kind = "lhs"
)

func New(kind Kind, space *paramspace.Space, n int, rng *rand.Rand) (Design, error) {
	if n < 1 {
		return nil, fmt.Errorf("initial design size must be positive, got %d", n)
	}
	switch kind {
	case KindDefault, "":
		return &Default{space: space, n: n, rng: rng}, nil
	case KindRandom:
		return &Random{space: space, n: n, rng: rng}, nil
	case KindLatinHypercube:
		return &LatinHypercube{space: space, n: n, rng: rng}, nil
	default:
		return nil, fmt.Errorf("unknown initial design %q", kind)
	}
}

// Default starts from the space's default configuration and pads with
// random samples when more than one starting point is requested.
type Default struct {
	space *paramspace.Space
	n     int
	rng   *rand.Rand
}

func (d *Default) Configs() ([]*paramspace.Config, error) {
	out := make([]*paramspace.Config, 0, d.n)
	out = append(out, d.space.Default().WithOrigin("initial_default"))
	for len(out) < d.n {
		out = append(out, d.space.Sample(d.rng).WithOrigin("initial_default"))
	}
	return out, nil
}

// Random draws n independent uniform samples.
type Random struct {
	space *paramspace.Space
	n     int
	rng   *rand.Rand
}

func (d *Random) Configs() ([]*paramspace.Config, error) {
	out := make([]*paramspace.Config, d.n)
	for i := range out {
		out[i] = d.space.Sample(d.rng).WithOrigin("initial_random")
	}
	return out, nil
}

// LatinHypercube stratifies each dimension into n bins and draws one
// point per bin, with bin order shuffled independently per dimension.
type LatinHypercube struct {
	space *paramspace.Space
	n     int
	rng   *rand.Rand
}

func (d *LatinHypercube) Configs() ([]*paramspace.Config, error) {
	dim := d.space.Dim()
	// perm[j] holds a shuffled bin assignment for dimension j.
	perms := make([][]int, dim)
	for j := range perms {
		perms[j] = d.rng.Perm(d.n)
	}
	out := make([]*paramspace.Config, d.n)
	for i := range out {
		u := make([]float64, dim)
		for j := 0; j < dim; j++ {
			u[j] = (float64(perms[j][i]) + d.rng.Float64()) / float64(d.n)
		}
		out[i] = d.space.FromUnit(u).WithOrigin("initial_lhs")
	}
	return out, nil
}
