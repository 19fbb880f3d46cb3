package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contenderhq/contender/internal/objective"
	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

// ErrNoCapacity signals that every worker slot is busy. The caller
// decides whether to wait; the pool never queues unboundedly.
var ErrNoCapacity = errors.New("no worker slot available")

// ErrDuplicateSubmit signals that the same trial key is already in
// flight, which indicates a scheduling bug upstream.
var ErrDuplicateSubmit = errors.New("trial key already in flight")

// ErrWorkersExhausted signals that no job completed within the patience
// window, or that the pool was asked to wait with nothing in flight.
var ErrWorkersExhausted = errors.New("worker pool exhausted")

// Job is one submitted trial: the key under which the result will be
// recorded plus the request the target runs.
type Job struct {
	// ID is assigned by the pool on submission.
	ID      string
	Key     runhistory.TrialKey
	Config  *paramspace.Config
	Request objective.Request
}

// Completed pairs a finished job with its result. Ownership of the
// result transfers to the caller on Poll.
type Completed struct {
	Job   Job
	Value runhistory.TrialValue
}

// Pool runs trials concurrently on up to capacity workers. The in-flight
// table is the only structure shared between the control loop and the
// workers and is guarded internally.
type Pool struct {
	target *Target

	mu       sync.Mutex
	capacity int
	inFlight map[runhistory.TrialKey]struct{}
	done     []Completed

	wake chan struct{}
}

func NewPool(target *Target, capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		target:   target,
		capacity: capacity,
		inFlight: make(map[runhistory.TrialKey]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// TrySubmit starts a job if a worker slot is free. It never blocks:
// at capacity it returns ErrNoCapacity and the caller waits explicitly.
// Each accepted job is tagged with a unique trial id that ends up in the
// result's AdditionalInfo for log correlation.
func (p *Pool) TrySubmit(ctx context.Context, job Job) error {
	p.mu.Lock()
	if _, dup := p.inFlight[job.Key]; dup {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSubmit, job.Key)
	}
	if len(p.inFlight) >= p.capacity {
		p.mu.Unlock()
		return ErrNoCapacity
	}
	p.inFlight[job.Key] = struct{}{}
	p.mu.Unlock()

	job.ID = uuid.NewString()
	go func() {
		value := p.target.Run(ctx, job.Request)
		if value.AdditionalInfo == nil {
			value.AdditionalInfo = map[string]any{}
		}
		value.AdditionalInfo["trial_id"] = job.ID
		p.mu.Lock()
		delete(p.inFlight, job.Key)
		p.done = append(p.done, Completed{Job: job, Value: value})
		p.mu.Unlock()
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}()
	return nil
}

// Poll drains finished jobs without blocking.
func (p *Pool) Poll() []Completed {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.done
	p.done = nil
	return out
}

// WaitForAny blocks until at least one job has completed or the patience
// window elapses. A wedged or vanished worker fleet surfaces as
// ErrWorkersExhausted rather than a silent infinite wait.
func (p *Pool) WaitForAny(patience time.Duration) error {
	timer := time.NewTimer(patience)
	defer timer.Stop()
	for {
		p.mu.Lock()
		ready := len(p.done) > 0
		inFlight := len(p.inFlight)
		p.mu.Unlock()
		if ready {
			return nil
		}
		if inFlight == 0 {
			return fmt.Errorf("%w: nothing in flight to wait for", ErrWorkersExhausted)
		}
		select {
		case <-p.wake:
		case <-timer.C:
			return fmt.Errorf("%w: no completion within %s", ErrWorkersExhausted, patience)
		}
	}
}

// Has reports whether the key is currently in flight. Intensifiers check
// this before issuing a run so the same trial is never submitted twice
// concurrently.
func (p *Pool) Has(key runhistory.TrialKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[key]
	return ok
}

// InFlight returns the number of running jobs.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// AvailableSlots returns the free capacity, never negative.
func (p *Pool) AvailableSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.capacity - len(p.inFlight)
	if n < 0 {
		n = 0
	}
	return n
}

// Capacity returns the current worker capacity.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Resize changes the worker capacity. Capacity may shrink below the
// in-flight count when workers vanish; running jobs finish normally and
// a warning is surfaced instead of a crash.
func (p *Pool) Resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	p.mu.Lock()
	inFlight := len(p.inFlight)
	p.capacity = capacity
	p.mu.Unlock()
	if capacity < inFlight {
		log.Warnf("pool capacity shrunk to %d with %d jobs in flight; running jobs will finish", capacity, inFlight)
	}
}
