// Package runner executes trials of the black-box objective under
// resource limits and dispatches them across a pool of workers. Every
// outcome is a status, never an error: exceptions do not cross the
// worker boundary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contenderhq/contender/internal/objective"
	"github.com/contenderhq/contender/internal/runhistory"
)

var log = logrus.WithField("component", "runner")

// Target wraps one objective with a wall-time limit, a best-effort
// memory limit and panic capture, mapping every outcome to a trial
// status. Zero limits disable the respective guard.
type Target struct {
	obj           objective.Objective
	walltime      time.Duration
	memoryLimitMB int
	crashCost     float64
}

func NewTarget(obj objective.Objective, walltime time.Duration, memoryLimitMB int, crashCost float64) *Target {
	return &Target{
		obj:           obj,
		walltime:      walltime,
		memoryLimitMB: memoryLimitMB,
		crashCost:     crashCost,
	}
}

// numObjectives returns how many costs a trial value must carry.
func (t *Target) numObjectives() int {
	if n := len(t.obj.Objectives); n > 0 {
		return n
	}
	return 1
}

func (t *Target) crashCosts() []float64 {
	costs := make([]float64, t.numObjectives())
	for i := range costs {
		costs[i] = t.crashCost
	}
	return costs
}

type callResult struct {
	res objective.Result
	err error
}

// Run executes one trial and always returns a terminal trial value.
// Timeouts map to TIMEOUT, memory pressure to MEMOUT and everything
// else unexpected to CRASHED with the failure captured in
// AdditionalInfo. Failed trials carry the crash cost so downstream
// ranking still orders them.
func (t *Target) Run(ctx context.Context, req objective.Request) runhistory.TrialValue {
	// Zero out request fields the objective did not declare support for.
	if !t.obj.Caps.Seed {
		req.Seed = 0
	}
	if !t.obj.Caps.Instance {
		req.Instance = ""
	}
	if !t.obj.Caps.Budget {
		req.Budget = 0
	}

	start := time.Now()
	var cancel context.CancelFunc
	if t.walltime > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.walltime)
	} else {
		// The memory watch still needs a cancelable context.
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("objective panicked: %v\n%s", r, debug.Stack())}
			}
		}()
		res, err := t.obj.Fn(ctx, req)
		done <- callResult{res: res, err: err}
	}()

	memout := t.watchMemory(ctx, cancel)

	var call callResult
	select {
	case call = <-done:
	case <-ctx.Done():
		// The objective may still be running; it is never preempted,
		// only its result is discarded.
		return t.failed(t.abortStatus(ctx, memout), start, map[string]any{"error": ctx.Err().Error()})
	}

	if call.err != nil {
		if ctx.Err() != nil {
			return t.failed(t.abortStatus(ctx, memout), start, map[string]any{"error": call.err.Error()})
		}
		log.WithFields(logrus.Fields{"config": req.Config, "status": runhistory.StatusCrashed}).
			Warnf("trial crashed: %v", call.err)
		return t.failed(runhistory.StatusCrashed, start, map[string]any{"error": call.err.Error()})
	}

	costs, err := t.obj.CostVector(call.res)
	if err != nil {
		// Wrong-shaped multi-objective return is a crash, not a truncation.
		log.WithField("config", req.Config).Warnf("trial returned malformed costs: %v", err)
		return t.failed(runhistory.StatusCrashed, start, map[string]any{"error": err.Error()})
	}

	// A breach detected while the objective was finishing still counts.
	select {
	case <-memout:
		return t.failed(runhistory.StatusMemout, start, map[string]any{"error": "memory limit exceeded"})
	default:
	}

	end := time.Now()
	return runhistory.TrialValue{
		Costs:          costs,
		Time:           end.Sub(start).Seconds(),
		Status:         runhistory.StatusSuccess,
		StartTime:      start,
		EndTime:        end,
		AdditionalInfo: call.res.Info,
	}
}

// abortStatus classifies a trial cut short by its context: deadline
// expiry is a timeout, a tripped memory watch a memout, and an external
// cancellation (e.g. shutdown) a crash rather than a timeout, so the
// trial is never treated as right-censored.
func (t *Target) abortStatus(ctx context.Context, memout <-chan struct{}) runhistory.Status {
	status := runhistory.StatusTimeout
	if errors.Is(ctx.Err(), context.Canceled) {
		status = runhistory.StatusCrashed
	}
	select {
	case <-memout:
		status = runhistory.StatusMemout
	default:
	}
	return status
}

func (t *Target) failed(status runhistory.Status, start time.Time, info map[string]any) runhistory.TrialValue {
	end := time.Now()
	return runhistory.TrialValue{
		Costs:          t.crashCosts(),
		Time:           end.Sub(start).Seconds(),
		Status:         status,
		StartTime:      start,
		EndTime:        end,
		AdditionalInfo: info,
	}
}

// watchMemory samples the heap while a trial runs and cancels the trial
// context when the limit is exceeded. Best effort: it observes the whole
// process, not one goroutine.
func (t *Target) watchMemory(ctx context.Context, cancel context.CancelFunc) <-chan struct{} {
	memout := make(chan struct{}, 1)
	if t.memoryLimitMB <= 0 {
		return memout
	}
	limit := uint64(t.memoryLimitMB) * 1024 * 1024
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)
				if ms.HeapAlloc > limit {
					memout <- struct{}{}
					cancel()
					return
				}
			}
		}
	}()
	return memout
}
