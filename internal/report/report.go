package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/contenderhq/contender/internal/paramspace"
	"github.com/contenderhq/contender/internal/runhistory"
)

// ConfigSummary aggregates all trials of one configuration.
type ConfigSummary struct {
	ConfigID  int               `json:"config_id"`
	Origin    string            `json:"origin,omitempty"`
	Trials    int               `json:"trials"`
	Successes int               `json:"successes"`
	Failures  int               `json:"failures"`
	MeanCost  float64           `json:"mean_cost"`
	MaxBudget float64           `json:"max_budget,omitempty"`
	MeanTime  float64           `json:"mean_time_seconds"`
	Values    map[string]string `json:"values"`
}

// Generate reads a saved run history and writes a per-configuration
// summary, best cost first.
func Generate(runDir, format string, w io.Writer, space *paramspace.Space, weights []float64) error {
	rh, err := runhistory.Load(runDir, space, weights)
	if err != nil {
		return err
	}
	summaries := aggregate(rh)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func aggregate(rh *runhistory.RunHistory) []ConfigSummary {
	type accum struct {
		config    *paramspace.Config
		trials    int
		successes int
		failures  int
		time      float64
		maxBudget float64
	}
	byID := map[int]*accum{}

	rh.Each(func(key runhistory.TrialKey, v runhistory.TrialValue) {
		a, ok := byID[key.ConfigID]
		if !ok {
			c, _ := rh.ConfigForID(key.ConfigID)
			a = &accum{config: c}
			byID[key.ConfigID] = a
		}
		a.trials++
		a.time += v.Time
		if v.Status == runhistory.StatusSuccess {
			a.successes++
		} else {
			a.failures++
		}
		if key.Budget > a.maxBudget {
			a.maxBudget = key.Budget
		}
	})

	var summaries []ConfigSummary
	for id, a := range byID {
		if a.config == nil {
			continue
		}
		values := make(map[string]string, len(a.config.Values()))
		for name, v := range a.config.Values() {
			if v.Str != "" {
				values[name] = v.Str
			} else {
				values[name] = fmt.Sprintf("%.6g", v.Num)
			}
		}
		summaries = append(summaries, ConfigSummary{
			ConfigID:  id,
			Origin:    a.config.Origin(),
			Trials:    a.trials,
			Successes: a.successes,
			Failures:  a.failures,
			MeanCost:  rh.Cost(a.config),
			MaxBudget: a.maxBudget,
			MeanTime:  a.time / float64(a.trials),
			Values:    values,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].MeanCost != summaries[j].MeanCost {
			return summaries[i].MeanCost < summaries[j].MeanCost
		}
		return summaries[i].ConfigID < summaries[j].ConfigID
	})
	return summaries
}

func formatValues(values map[string]string) string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + values[name]
	}
	return strings.Join(parts, " ")
}

func writeTable(summaries []ConfigSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONFIG\tTRIALS\tOK\tFAIL\tMEAN COST\tBUDGET\tMEAN TIME\tVALUES")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%.4g\t%.3g\t%.2fs\t%s\n",
			s.ConfigID, s.Trials, s.Successes, s.Failures, s.MeanCost,
			s.MaxBudget, s.MeanTime, formatValues(s.Values))
	}
	if len(summaries) > 0 {
		best := summaries[0]
		fmt.Fprintf(tw, "\nincumbent: config %d, mean cost %.4g (%s)\n",
			best.ConfigID, best.MeanCost, formatValues(best.Values))
	}
	return tw.Flush()
}

func writeMarkdown(summaries []ConfigSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Config | Trials | OK | Fail | Mean Cost | Budget | Mean Time | Values |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %d | %d | %d | %d | %.4g | %.3g | %.2fs | %s |\n",
			s.ConfigID, s.Trials, s.Successes, s.Failures, s.MeanCost,
			s.MaxBudget, s.MeanTime, formatValues(s.Values))
	}
	return nil
}

func writeJSON(summaries []ConfigSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
