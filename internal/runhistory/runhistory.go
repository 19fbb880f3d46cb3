// Package runhistory is the append-only store of every trial result and
// the ground truth the intensifiers, surrogate model and stopping rule
// read from. It is owned by the control loop: workers never touch it.
package runhistory

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/contenderhq/contender/internal/paramspace"
)

// Status classifies the outcome of one trial.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusTimeout Status = "TIMEOUT"
	StatusMemout  Status = "MEMOUT"
	StatusCrashed Status = "CRASHED"
)

// Terminal reports whether the status represents a finished trial.
// All four statuses are terminal; the zero value is not.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusTimeout, StatusMemout, StatusCrashed:
		return true
	}
	return false
}

// ErrDuplicateTrial is returned when a trial key already holds a
// different successful result. Retrying over a failed result is allowed.
var ErrDuplicateTrial = errors.New("trial key already holds a successful result")

// TrialKey uniquely identifies one trial.
type TrialKey struct {
	ConfigID int     `json:"config_id"`
	Instance string  `json:"instance,omitempty"`
	Seed     int64   `json:"seed"`
	Budget   float64 `json:"budget,omitempty"`
}

func (k TrialKey) String() string {
	return fmt.Sprintf("config=%d instance=%q seed=%d budget=%g", k.ConfigID, k.Instance, k.Seed, k.Budget)
}

// TrialValue is the immutable result of one trial. Costs holds one entry
// per objective.
type TrialValue struct {
	Costs          []float64      `json:"costs"`
	Time           float64        `json:"time"`
	Status         Status         `json:"status"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

// TrialInfo names the (instance, seed, budget) coordinates a config was
// evaluated at.
type TrialInfo struct {
	Instance string
	Seed     int64
	Budget   float64
}

// RunHistory maps trial keys to values and owns the config-id table.
// All mutation happens on the control goroutine; no internal locking.
type RunHistory struct {
	weights []float64 // objective aggregation weights, nil = single objective

	data      map[TrialKey]TrialValue
	order     map[TrialKey]int // insertion order, for deterministic iteration
	nextOrder int

	idByKey  map[string]int
	configs  map[int]*paramspace.Config
	nextID   int
	trialsBy map[int][]TrialKey // config id -> keys in insertion order

	submitted int
	finished  int
}

// New creates an empty run history. weights aggregates multi-objective
// costs into the scalar the intensifiers rank by; nil means the first
// objective is used as-is.
func New(weights []float64) *RunHistory {
	rh := &RunHistory{weights: weights}
	rh.reset()
	return rh
}

func (rh *RunHistory) reset() {
	rh.data = make(map[TrialKey]TrialValue)
	rh.order = make(map[TrialKey]int)
	rh.nextOrder = 0
	rh.idByKey = make(map[string]int)
	rh.configs = make(map[int]*paramspace.Config)
	rh.nextID = 1
	rh.trialsBy = make(map[int][]TrialKey)
	rh.submitted = 0
	rh.finished = 0
}

// Reset discards all trials, counters and config ids.
func (rh *RunHistory) Reset() { rh.reset() }

// ConfigID returns the id for a configuration, assigning the next id on
// first sight. Ids start at 1, grow monotonically and are never reused.
func (rh *RunHistory) ConfigID(c *paramspace.Config) int {
	if id, ok := rh.idByKey[c.Key()]; ok {
		return id
	}
	id := rh.nextID
	rh.nextID++
	rh.idByKey[c.Key()] = id
	rh.configs[id] = c
	return id
}

// ConfigForID returns the configuration registered under an id.
func (rh *RunHistory) ConfigForID(id int) (*paramspace.Config, bool) {
	c, ok := rh.configs[id]
	return c, ok
}

// Key builds the trial key for a configuration, registering it if needed.
func (rh *RunHistory) Key(c *paramspace.Config, instance string, seed int64, budget float64) TrialKey {
	return TrialKey{ConfigID: rh.ConfigID(c), Instance: instance, Seed: seed, Budget: budget}
}

// NoteSubmitted bumps the submitted counter. Called when a trial is
// handed to the worker pool, which may be long before it finishes.
func (rh *RunHistory) NoteSubmitted() { rh.submitted++ }

// Submitted returns how many trials have been handed to workers.
func (rh *RunHistory) Submitted() int { return rh.submitted }

// Finished returns how many trial results have been recorded.
func (rh *RunHistory) Finished() int { return rh.finished }

// Len returns the number of distinct recorded trials.
func (rh *RunHistory) Len() int { return len(rh.data) }

// Add records one trial result. Re-adding an identical result is
// idempotent; overwriting a failed result with a retry is allowed;
// overwriting a successful result with a different one is
// ErrDuplicateTrial.
func (rh *RunHistory) Add(c *paramspace.Config, instance string, seed int64, budget float64, v TrialValue) error {
	if !v.Status.Terminal() {
		return fmt.Errorf("trial value has non-terminal status %q", v.Status)
	}
	key := rh.Key(c, instance, seed, budget)
	if old, ok := rh.data[key]; ok {
		if old.Status == StatusSuccess {
			if sameValue(old, v) {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrDuplicateTrial, key)
		}
		// Retry over a failed trial replaces it in place.
		rh.data[key] = v
		rh.finished++
		return nil
	}
	rh.data[key] = v
	rh.order[key] = rh.nextOrder
	rh.nextOrder++
	rh.trialsBy[key.ConfigID] = append(rh.trialsBy[key.ConfigID], key)
	rh.finished++
	return nil
}

func sameValue(a, b TrialValue) bool {
	if a.Status != b.Status || len(a.Costs) != len(b.Costs) {
		return false
	}
	for i := range a.Costs {
		if a.Costs[i] != b.Costs[i] {
			return false
		}
	}
	return true
}

// Get returns the recorded value for a trial key.
func (rh *RunHistory) Get(key TrialKey) (TrialValue, bool) {
	v, ok := rh.data[key]
	return v, ok
}

// Has reports whether a terminal result exists for the key.
func (rh *RunHistory) Has(key TrialKey) bool {
	_, ok := rh.data[key]
	return ok
}

// ScalarCost collapses a trial's per-objective costs into one ranking
// value using the configured weights.
func (rh *RunHistory) ScalarCost(v TrialValue) float64 {
	if len(v.Costs) == 0 {
		return math.Inf(1)
	}
	if len(rh.weights) == 0 || len(v.Costs) == 1 {
		return v.Costs[0]
	}
	var sum, wsum float64
	for i, w := range rh.weights {
		if i >= len(v.Costs) {
			break
		}
		sum += w * v.Costs[i]
		wsum += w
	}
	if wsum == 0 {
		return v.Costs[0]
	}
	return sum / wsum
}

// Trials lists the coordinates a config has results at. With
// highestBudgetOnly, trials sharing an (instance, seed) pair collapse to
// the highest budget evaluated for that pair.
func (rh *RunHistory) Trials(c *paramspace.Config, highestBudgetOnly bool) []TrialInfo {
	id, ok := rh.idByKey[c.Key()]
	if !ok {
		return nil
	}
	keys := rh.trialsBy[id]
	if !highestBudgetOnly {
		out := make([]TrialInfo, len(keys))
		for i, k := range keys {
			out[i] = TrialInfo{Instance: k.Instance, Seed: k.Seed, Budget: k.Budget}
		}
		return out
	}
	type pair struct {
		instance string
		seed     int64
	}
	best := make(map[pair]TrialInfo)
	orderOf := make(map[pair]int)
	for i, k := range keys {
		p := pair{k.Instance, k.Seed}
		if cur, ok := best[p]; !ok || k.Budget > cur.Budget {
			best[p] = TrialInfo{Instance: k.Instance, Seed: k.Seed, Budget: k.Budget}
			if !ok {
				orderOf[p] = i
			}
		}
	}
	out := make([]TrialInfo, 0, len(best))
	for _, ti := range best {
		out = append(out, ti)
	}
	sort.Slice(out, func(i, j int) bool {
		return orderOf[pair{out[i].Instance, out[i].Seed}] < orderOf[pair{out[j].Instance, out[j].Seed}]
	})
	return out
}

// Cost is the aggregated cost of a config: the mean scalar cost over its
// highest-budget trials. Returns +Inf for configs without results.
func (rh *RunHistory) Cost(c *paramspace.Config) float64 {
	infos := rh.Trials(c, true)
	if len(infos) == 0 {
		return math.Inf(1)
	}
	id := rh.idByKey[c.Key()]
	var sum float64
	var n int
	for _, ti := range infos {
		v, ok := rh.data[TrialKey{ConfigID: id, Instance: ti.Instance, Seed: ti.Seed, Budget: ti.Budget}]
		if !ok {
			continue
		}
		sum += rh.ScalarCost(v)
		n++
	}
	if n == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}

// NumTrials returns how many results a config has.
func (rh *RunHistory) NumTrials(c *paramspace.Config) int {
	id, ok := rh.idByKey[c.Key()]
	if !ok {
		return 0
	}
	return len(rh.trialsBy[id])
}

// Configs returns every evaluated config sorted by ascending aggregated
// cost, ties broken by config id.
func (rh *RunHistory) Configs() []*paramspace.Config {
	out := make([]*paramspace.Config, 0, len(rh.trialsBy))
	ids := make(map[string]int, len(rh.trialsBy))
	for id := range rh.trialsBy {
		c := rh.configs[id]
		out = append(out, c)
		ids[c.Key()] = id
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := rh.Cost(out[i]), rh.Cost(out[j])
		if ci != cj {
			return ci < cj
		}
		return ids[out[i].Key()] < ids[out[j].Key()]
	})
	return out
}

// ConfigsPerBudget returns configs that have at least one result at any
// of the given budgets, in config-id order.
func (rh *RunHistory) ConfigsPerBudget(budgets []float64) []*paramspace.Config {
	want := make(map[float64]bool, len(budgets))
	for _, b := range budgets {
		want[b] = true
	}
	var ids []int
	for id, keys := range rh.trialsBy {
		for _, k := range keys {
			if want[k.Budget] {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Ints(ids)
	out := make([]*paramspace.Config, len(ids))
	for i, id := range ids {
		out[i] = rh.configs[id]
	}
	return out
}

// Each calls fn for every recorded trial in insertion order.
func (rh *RunHistory) Each(fn func(key TrialKey, v TrialValue)) {
	keys := make([]TrialKey, 0, len(rh.data))
	for k := range rh.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return rh.order[keys[i]] < rh.order[keys[j]] })
	for _, k := range keys {
		fn(k, rh.data[k])
	}
}
