package smbo

import (
	"math/rand"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
	"github.com/contenderhq/contender/internal/surrogate"
)

// bestSetter is implemented by improvement-based acquisitions that need
// the incumbent cost before scoring.
type bestSetter interface {
	SetBest(best float64)
}

// challengers feeds candidate configurations to the intensifier: first
// the initial design, then acquisition-optimized proposals with a
// fraction of uniform random samples interleaved.
type challengers struct {
	space *paramspace.Space
	rng   *rand.Rand

	initial []*paramspace.Config
	queue   []*paramspace.Config

	model     surrogate.Model
	acq       surrogate.Acquisition
	maximizer *surrogate.RandomSearch
	rh        *runhistory.RunHistory

	batchSize      int
	randomFraction float64
	incumbentCost  func() (float64, bool)
}

func (c *challengers) Next() *paramspace.Config {
	if len(c.initial) > 0 {
		next := c.initial[0]
		c.initial = c.initial[1:]
		return next
	}
	if c.rng.Float64() < c.randomFraction {
		return c.space.Sample(c.rng).WithOrigin("random_interleave")
	}
	if c.model == nil || !c.model.Fitted() {
		return c.space.Sample(c.rng).WithOrigin("random_fallback")
	}
	if len(c.queue) == 0 {
		c.refill()
	}
	if len(c.queue) == 0 {
		return c.space.Sample(c.rng).WithOrigin("random_fallback")
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	return next
}

// refill proposes a fresh batch from the acquisition maximizer, anchored
// on the best configurations evaluated so far.
func (c *challengers) refill() {
	c.acq.Update(c.model, c.rh.Len())
	if bs, ok := c.acq.(bestSetter); ok {
		if best, known := c.incumbentCost(); known {
			bs.SetBest(best)
		}
	}
	anchors := c.rh.Configs()
	if len(anchors) > 10 {
		anchors = anchors[:10]
	}
	proposals, err := c.maximizer.Maximize(c.acq, c.batchSize, anchors)
	if err != nil {
		log.WithError(err).Warn("acquisition maximization failed; falling back to random sampling")
		return
	}
	// Filter out configs already evaluated; the intensifiers dedupe at
	// the trial level but a spent challenger wastes a slot.
	seen := make(map[string]bool, len(anchors))
	for _, a := range c.rh.Configs() {
		seen[a.Key()] = true
	}
	for _, p := range proposals {
		if !seen[p.Key()] {
			c.queue = append(c.queue, p)
		}
	}
}
