package runhistory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/contenderhq/contender/internal/paramspace"
)

// FileName is the run history file written inside a run directory.
const FileName = "runhistory.json"

// CreateRunDir creates a timestamped run directory under baseDir/runs and
// points baseDir/latest at it.
func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

type record struct {
	ConfigID       int            `json:"config_id"`
	Instance       string         `json:"instance,omitempty"`
	Seed           int64          `json:"seed"`
	Budget         float64        `json:"budget,omitempty"`
	Costs          []float64      `json:"costs"`
	Time           float64        `json:"time"`
	Status         Status         `json:"status"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

type fileFormat struct {
	Configs   map[string]map[string]paramspace.Value `json:"configs"` // config id -> values
	Records   []record                               `json:"records"`
	Submitted int                                    `json:"submitted"`
	Finished  int                                    `json:"finished"`
}

// Save writes the full history as one flat JSON document, enough to
// rebuild all in-memory state on resume.
func (rh *RunHistory) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	ff := fileFormat{
		Configs:   make(map[string]map[string]paramspace.Value, len(rh.configs)),
		Submitted: rh.submitted,
		Finished:  rh.finished,
	}
	for id, c := range rh.configs {
		ff.Configs[fmt.Sprintf("%d", id)] = c.Values()
	}
	rh.Each(func(key TrialKey, v TrialValue) {
		ff.Records = append(ff.Records, record{
			ConfigID:       key.ConfigID,
			Instance:       key.Instance,
			Seed:           key.Seed,
			Budget:         key.Budget,
			Costs:          v.Costs,
			Time:           v.Time,
			Status:         v.Status,
			StartTime:      v.StartTime,
			EndTime:        v.EndTime,
			AdditionalInfo: v.AdditionalInfo,
		})
	})
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run history: %w", err)
	}
	tmp := filepath.Join(dir, FileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing run history: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, FileName))
}

// Load rebuilds a run history from a saved file. Configurations are
// reconstructed through the space so value identity is preserved.
func Load(dir string, space *paramspace.Space, weights []float64) (*RunHistory, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("reading run history: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parsing run history: %w", err)
	}
	rh := New(weights)
	// Re-register configs in id order so the id table matches the saved run.
	ids := make([]int, 0, len(ff.Configs))
	byID := make(map[int]*paramspace.Config, len(ff.Configs))
	for idStr, values := range ff.Configs {
		var id int
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, fmt.Errorf("bad config id %q: %w", idStr, err)
		}
		c, err := space.FromValues(values)
		if err != nil {
			return nil, fmt.Errorf("config %d: %w", id, err)
		}
		ids = append(ids, id)
		byID[id] = c
	}
	sort.Ints(ids)
	for _, id := range ids {
		got := rh.ConfigID(byID[id])
		if got != id {
			return nil, fmt.Errorf("config id mismatch on load: saved %d, assigned %d", id, got)
		}
	}
	for _, rec := range ff.Records {
		c, ok := rh.ConfigForID(rec.ConfigID)
		if !ok {
			return nil, fmt.Errorf("record references unknown config %d", rec.ConfigID)
		}
		v := TrialValue{
			Costs:          rec.Costs,
			Time:           rec.Time,
			Status:         rec.Status,
			StartTime:      rec.StartTime,
			EndTime:        rec.EndTime,
			AdditionalInfo: rec.AdditionalInfo,
		}
		if err := rh.Add(c, rec.Instance, rec.Seed, rec.Budget, v); err != nil {
			return nil, fmt.Errorf("replaying record for config %d: %w", rec.ConfigID, err)
		}
	}
	rh.submitted = ff.Submitted
	rh.finished = ff.Finished
	return rh, nil
}
