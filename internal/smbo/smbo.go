// Package smbo drives the sequential model-based optimization loop: it
// asks the intensifier for trials, runs them on the worker pool, folds
// results back into the run history, and retrains the surrogate.
package smbo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/contenderhq/contender/internal/impute"
	"github.com/contenderhq/contender/internal/initial"
	"github.com/contenderhq/contender/internal/intensify"
	"github.com/contenderhq/contender/internal/metrics"
	"github.com/contenderhq/contender/internal/objective"
	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
	"github.com/contenderhq/contender/internal/runner"
	"github.com/contenderhq/contender/internal/scenario"
	"github.com/contenderhq/contender/internal/stopping"
	"github.com/contenderhq/contender/internal/surrogate"
)

var log = logrus.WithField("component", "smbo")

// Result summarizes a finished run.
type Result struct {
	Incumbent     *paramspace.Config
	IncumbentCost float64
	Trials        int
	Stopped       bool
	RunDir        string
}

// Loop owns every stage of one optimization run.
type Loop struct {
	scenario    *scenario.Scenario
	space       *paramspace.Space
	rh          *runhistory.RunHistory
	pool        *runner.Pool
	intensifier intensify.Intensifier
	source      *challengers
	model       surrogate.Model
	encoder     *surrogate.Encoder
	criterion   *stopping.Criterion
	rng         *rand.Rand

	patience time.Duration
	runDir   string

	sinceTraining int
}

// New wires a loop from a validated scenario. The run directory is
// created (or reused when resuming) under the configured results dir.
func New(sc *scenario.Scenario, obj objective.Objective) (*Loop, error) {
	space, err := obj.Space()
	if err != nil {
		return nil, fmt.Errorf("building parameter space: %w", err)
	}
	rng := rand.New(rand.NewSource(sc.Seed))

	names := sc.Objectives
	if len(names) == 0 {
		names = obj.Objectives
	}
	weights := objective.Weights(sc.Weights).Vector(names)
	rh := runhistory.New(weights)
	if sc.Results.Resume {
		prev, err := runhistory.Load(filepath.Join(sc.Results.Dir, "latest"), space, weights)
		if err != nil {
			log.WithError(err).Warn("no previous run history to resume from")
		} else {
			rh = prev
			log.Infof("resumed %d trials from previous run", rh.Len())
		}
	}

	runDir, err := runhistory.CreateRunDir(sc.Results.Dir)
	if err != nil {
		return nil, err
	}

	target := runner.NewTarget(obj,
		time.Duration(sc.Limits.WalltimeSeconds*float64(time.Second)),
		sc.Limits.MemoryMB, sc.Limits.CrashCost)
	pool := runner.NewPool(target, sc.Workers)

	intens, err := buildIntensifier(sc, rng)
	if err != nil {
		return nil, err
	}

	model := surrogate.NewGP(sc.Model.Sigma)
	maximizer := surrogate.NewRandomSearch(space, rng, sc.Model.Candidates)
	acq, err := buildAcquisition(sc.Model.Acquisition, space.Dim(), rng)
	if err != nil {
		return nil, err
	}

	imputer := impute.NewCensoredImputer(surrogate.NewGP(sc.Model.Sigma),
		sc.Limits.ParFactor*sc.Limits.WalltimeSeconds)
	encoder := surrogate.NewEncoder(space, imputer)
	if mb := intens.MaxBudget(); mb > 0 {
		encoder.HighestBudgetOnly = true
		encoder.MaxBudget = mb
	}

	designSize := sc.Initial.N
	if designSize < 1 {
		designSize = sc.Initial.Multiplier * max(space.Dim(), 1)
	}
	design, err := initial.New(initial.Kind(sc.Initial.Kind), space, designSize, rng)
	if err != nil {
		return nil, err
	}
	initialConfigs, err := design.Configs()
	if err != nil {
		return nil, err
	}

	loop := &Loop{
		scenario:    sc,
		space:       space,
		rh:          rh,
		pool:        pool,
		intensifier: intens,
		model:       model,
		encoder:     encoder,
		rng:         rng,
		patience:    time.Duration(sc.Limits.PatienceSeconds * float64(time.Second)),
		runDir:      runDir,
	}
	loop.source = &challengers{
		space:          space,
		rng:            rng,
		initial:        initialConfigs,
		model:          model,
		acq:            acq,
		maximizer:      maximizer,
		rh:             rh,
		batchSize:      10,
		randomFraction: sc.Model.RandomFraction,
		incumbentCost: func() (float64, bool) {
			inc := loop.intensifier.Incumbent()
			if inc == nil {
				return 0, false
			}
			return rh.Cost(inc), true
		},
	}

	if sc.Stopping.Enabled {
		crit := stopping.New(space, maximizer, sc.Stopping.InitialBeta)
		crit.WaitIterations = sc.Stopping.WaitIterations
		crit.UpperBoundEstimationRate = sc.Stopping.UpperBoundEstimationRate
		crit.StatisticalErrorThreshold = sc.Stopping.StatisticalErrorThreshold
		crit.StatisticalErrorField = sc.Stopping.StatisticalErrorField
		crit.Epsilon = sc.Stopping.Epsilon
		crit.HighestFidelityOnly = sc.Stopping.HighestFidelityOnly
		crit.MaxBudget = intens.MaxBudget()
		crit.DoNotTrigger = sc.Stopping.DoNotTrigger
		loop.criterion = crit
	}
	return loop, nil
}

func buildIntensifier(sc *scenario.Scenario, rng *rand.Rand) (intensify.Intensifier, error) {
	instance := sc.Instances[0]
	switch sc.Intensifier.Kind {
	case "simple":
		return intensify.NewSimple(instance, sc.Seed), nil
	case "racing":
		return intensify.NewRacing(sc.Instances, sc.SeedsPerConfig, rng), nil
	case "successive_halving":
		return intensify.NewSuccessiveHalving(sc.Intensifier.Eta,
			sc.Intensifier.MinBudget, sc.Intensifier.MaxBudget,
			sc.Intensifier.InitialConfigs, instance, rng)
	case "hyperband":
		return intensify.NewHyperband(sc.Intensifier.Eta,
			sc.Intensifier.MinBudget, sc.Intensifier.MaxBudget, instance, rng)
	default:
		return nil, fmt.Errorf("unknown intensifier %q", sc.Intensifier.Kind)
	}
}

func buildAcquisition(kind string, dim int, rng *rand.Rand) (surrogate.Acquisition, error) {
	switch kind {
	case "lcb":
		return surrogate.NewLCB(dim, 2, true), nil
	case "ucb":
		return surrogate.NewUCB(dim, 2, true), nil
	case "ei":
		return surrogate.NewEI(0.01), nil
	case "pi":
		return surrogate.NewPI(0.01), nil
	case "thompson":
		return surrogate.NewThompson(rng), nil
	default:
		return nil, fmt.Errorf("unknown acquisition %q", kind)
	}
}

// RunDir returns the directory results are written into.
func (l *Loop) RunDir() string { return l.runDir }

// Run executes the loop until the trial limit is reached, the stopping
// criterion fires, or the context is cancelled. It always drains
// in-flight trials and persists the run history before returning.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	var stopped bool

	for l.rh.Submitted() < l.scenario.MaxTrials {
		if err := ctx.Err(); err != nil {
			log.Info("run cancelled")
			break
		}

		if err := l.collect(); err != nil {
			return l.finish(ctx, stopped, err)
		}

		if l.criterion != nil {
			v, err := l.criterion.Check(l.rh, l.model, l.space, l.intensifier.Incumbent())
			if err != nil {
				return l.finish(ctx, stopped, fmt.Errorf("stopping criterion: %w", err))
			}
			if v.Stop {
				stopped = true
				break
			}
		}

		d := l.intensifier.SelectNext(l.rh, l.source, l.pool.Has)
		switch d.Intent {
		case intensify.IntentSkip:
			continue

		case intensify.IntentWait:
			if err := l.await(); err != nil {
				return l.finish(ctx, stopped, err)
			}

		case intensify.IntentRun:
			if err := l.submit(ctx, d.Trial); err != nil {
				return l.finish(ctx, stopped, err)
			}
		}

		if err := l.save(); err != nil {
			log.WithError(err).Warn("persisting run history failed")
		}
	}

	return l.finish(ctx, stopped, nil)
}

// submit hands one trial to the pool, waiting for a free slot when the
// pool is at capacity. A duplicate in-flight key is a scheduling bug and
// aborts the run.
func (l *Loop) submit(ctx context.Context, t intensify.Trial) error {
	job := runner.Job{
		Key:    t.Key(l.rh),
		Config: t.Config,
		Request: objective.Request{
			Config:   t.Config,
			Seed:     t.Seed,
			Instance: t.Instance,
			Budget:   t.Budget,
		},
	}
	for {
		err := l.pool.TrySubmit(ctx, job)
		if err == nil {
			l.rh.NoteSubmitted()
			metrics.TrialsSubmitted.Inc()
			metrics.InFlight.Set(float64(l.pool.InFlight()))
			log.WithFields(logrus.Fields{
				"config":   job.Key.ConfigID,
				"instance": t.Instance,
				"seed":     t.Seed,
				"budget":   t.Budget,
			}).Debug("trial submitted")
			return nil
		}
		if errors.Is(err, runner.ErrDuplicateSubmit) {
			return fmt.Errorf("scheduling bug: %w (%s)", err, job.Key)
		}
		if !errors.Is(err, runner.ErrNoCapacity) {
			return err
		}
		if err := l.await(); err != nil {
			return err
		}
	}
}

// await blocks until at least one trial finishes and folds all finished
// trials into the run history.
func (l *Loop) await() error {
	if err := l.pool.WaitForAny(l.patience); err != nil {
		return fmt.Errorf("waiting for trials: %w", err)
	}
	return l.collect()
}

// collect drains finished trials, records them, advances the
// intensifier, and retrains the model on schedule.
func (l *Loop) collect() error {
	for _, c := range l.pool.Poll() {
		if err := l.rh.Add(c.Job.Config, c.Job.Key.Instance, c.Job.Key.Seed, c.Job.Key.Budget, c.Value); err != nil {
			return fmt.Errorf("recording trial %s: %w", c.Job.Key, err)
		}
		metrics.TrialsFinished.WithLabelValues(string(c.Value.Status)).Inc()
		metrics.InFlight.Set(float64(l.pool.InFlight()))

		trial := intensify.Trial{
			Config:   c.Job.Config,
			Instance: c.Job.Key.Instance,
			Seed:     c.Job.Key.Seed,
			Budget:   c.Job.Key.Budget,
		}
		inc, incCost := l.intensifier.ProcessResult(trial, c.Value, l.rh)
		if inc != nil {
			metrics.IncumbentCost.Set(incCost)
		}

		l.sinceTraining++
		if l.sinceTraining >= l.scenario.Model.TrainInterval {
			l.train()
		}
	}
	return nil
}

func (l *Loop) train() {
	X, y, err := l.encoder.Transform(l.rh)
	if err != nil {
		log.WithError(err).Warn("encoding run history failed; model not retrained")
		return
	}
	if len(X) == 0 {
		return
	}
	if err := l.model.Train(X, y); err != nil {
		log.WithError(err).Warn("model training failed")
		return
	}
	l.sinceTraining = 0
	metrics.ModelTrainings.Inc()
	log.WithField("points", len(X)).Debug("surrogate retrained")
}

func (l *Loop) save() error {
	return l.rh.Save(l.runDir)
}

// finish drains outstanding trials, persists state, and reports the
// incumbent.
func (l *Loop) finish(ctx context.Context, stopped bool, runErr error) (Result, error) {
	for l.pool.InFlight() > 0 {
		if err := l.pool.WaitForAny(l.patience); err != nil {
			log.WithError(err).Warn("abandoning in-flight trials")
			break
		}
		if err := l.collect(); err != nil {
			log.WithError(err).Warn("recording trailing results failed")
			break
		}
	}
	if err := l.save(); err != nil {
		log.WithError(err).Warn("persisting run history failed")
	}

	res := Result{
		Incumbent: l.intensifier.Incumbent(),
		Trials:    l.rh.Len(),
		Stopped:   stopped,
		RunDir:    l.runDir,
	}
	if res.Incumbent != nil {
		res.IncumbentCost = l.rh.Cost(res.Incumbent)
	}
	return res, runErr
}
