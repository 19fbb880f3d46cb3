// Package scenario loads and validates the YAML run description.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Scenario struct {
	Name       string             `yaml:"name"`
	Objective  string             `yaml:"objective"`
	Objectives []string           `yaml:"objectives"`
	Weights    map[string]float64 `yaml:"weights"`

	Seed           int64    `yaml:"seed"`
	Workers        int      `yaml:"workers"`
	MaxTrials      int      `yaml:"max_trials"`
	Instances      []string `yaml:"instances"`
	SeedsPerConfig int      `yaml:"seeds_per_config"`

	Limits      Limits      `yaml:"limits"`
	Intensifier Intensifier `yaml:"intensifier"`
	Initial     Initial     `yaml:"initial_design"`
	Model       Model       `yaml:"model"`
	Stopping    Stopping    `yaml:"stopping"`
	Results     Results     `yaml:"results"`
}

// Limits bounds a single trial. ParFactor scales the walltime limit
// into the penalization ceiling used when imputing censored costs.
type Limits struct {
	WalltimeSeconds float64 `yaml:"walltime_seconds"`
	MemoryMB        int     `yaml:"memory_mb"`
	CrashCost       float64 `yaml:"crash_cost"`
	ParFactor       float64 `yaml:"par_factor"`
	PatienceSeconds float64 `yaml:"patience_seconds"`
}

type Intensifier struct {
	Kind           string  `yaml:"kind"`
	Eta            float64 `yaml:"eta"`
	MinBudget      float64 `yaml:"min_budget"`
	MaxBudget      float64 `yaml:"max_budget"`
	InitialConfigs int     `yaml:"initial_configs"`
}

type Initial struct {
	Kind string `yaml:"kind"`
	// N fixes the design size; zero means multiplier × space dimension.
	N          int `yaml:"n"`
	Multiplier int `yaml:"multiplier"`
}

type Model struct {
	Sigma          float64 `yaml:"sigma"`
	Acquisition    string  `yaml:"acquisition"`
	Candidates     int     `yaml:"candidates"`
	TrainInterval  int     `yaml:"train_interval"`
	RandomFraction float64 `yaml:"random_fraction"`
}

type Stopping struct {
	Enabled                   bool    `yaml:"enabled"`
	WaitIterations            int     `yaml:"wait_iterations"`
	UpperBoundEstimationRate  float64 `yaml:"upper_bound_estimation_rate"`
	StatisticalErrorThreshold float64 `yaml:"statistical_error_threshold"`
	StatisticalErrorField     string  `yaml:"statistical_error_field"`
	Epsilon                   float64 `yaml:"epsilon"`
	HighestFidelityOnly       bool    `yaml:"highest_fidelity_only"`
	DoNotTrigger              bool    `yaml:"do_not_trigger"`
	InitialBeta               float64 `yaml:"initial_beta"`
}

type Results struct {
	Dir    string `yaml:"dir"`
	Resume bool   `yaml:"resume"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := validate(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &sc, nil
}

func validate(sc *Scenario) error {
	if sc.Objective == "" {
		return fmt.Errorf("objective is required")
	}
	if sc.Name == "" {
		sc.Name = sc.Objective
	}
	if sc.Workers < 1 {
		sc.Workers = 1
	}
	if sc.MaxTrials < 1 {
		sc.MaxTrials = 100
	}
	if len(sc.Instances) == 0 {
		sc.Instances = []string{""}
	}
	if sc.SeedsPerConfig < 1 {
		sc.SeedsPerConfig = 1
	}
	if sc.Limits.WalltimeSeconds <= 0 {
		sc.Limits.WalltimeSeconds = 60
	}
	if sc.Limits.CrashCost <= 0 {
		sc.Limits.CrashCost = 1e9
	}
	if sc.Limits.ParFactor <= 1 {
		sc.Limits.ParFactor = 10
	}
	if sc.Limits.PatienceSeconds <= 0 {
		sc.Limits.PatienceSeconds = sc.Limits.WalltimeSeconds * 2
	}

	switch sc.Intensifier.Kind {
	case "", "simple":
		sc.Intensifier.Kind = "simple"
	case "racing", "successive_halving", "hyperband":
	default:
		return fmt.Errorf("unknown intensifier %q", sc.Intensifier.Kind)
	}
	if sc.Intensifier.Kind == "successive_halving" || sc.Intensifier.Kind == "hyperband" {
		if sc.Intensifier.Eta <= 1 {
			sc.Intensifier.Eta = 3
		}
		if sc.Intensifier.MinBudget <= 0 || sc.Intensifier.MaxBudget <= 0 {
			return fmt.Errorf("%s requires positive min_budget and max_budget", sc.Intensifier.Kind)
		}
		if sc.Intensifier.MinBudget >= sc.Intensifier.MaxBudget {
			return fmt.Errorf("min_budget must be below max_budget")
		}
	}

	if sc.Initial.Kind == "" {
		sc.Initial.Kind = "default"
	}
	if sc.Initial.N < 0 {
		return fmt.Errorf("initial design size must not be negative")
	}
	if sc.Initial.Multiplier < 1 {
		sc.Initial.Multiplier = 2
	}

	if sc.Model.Sigma <= 0 {
		sc.Model.Sigma = 0.2
	}
	if sc.Model.Acquisition == "" {
		sc.Model.Acquisition = "lcb"
	}
	if sc.Model.Candidates < 1 {
		sc.Model.Candidates = 1000
	}
	if sc.Model.TrainInterval < 1 {
		sc.Model.TrainInterval = 5
	}
	if sc.Model.RandomFraction < 0 || sc.Model.RandomFraction > 1 {
		return fmt.Errorf("random_fraction must be within [0, 1]")
	}
	if sc.Model.RandomFraction == 0 {
		sc.Model.RandomFraction = 0.1
	}

	if sc.Stopping.Enabled {
		if sc.Stopping.WaitIterations < 1 {
			sc.Stopping.WaitIterations = 20
		}
		if sc.Stopping.UpperBoundEstimationRate <= 0 || sc.Stopping.UpperBoundEstimationRate > 1 {
			sc.Stopping.UpperBoundEstimationRate = 0.5
		}
		if sc.Stopping.StatisticalErrorField == "" {
			sc.Stopping.StatisticalErrorField = "statistical_error"
		}
		if sc.Stopping.Epsilon <= 0 {
			sc.Stopping.Epsilon = 1e-4
		}
		if sc.Stopping.InitialBeta <= 0 {
			sc.Stopping.InitialBeta = 2
		}
	}

	if sc.Results.Dir == "" {
		sc.Results.Dir = "results"
	}
	return nil
}
