package objective

// Weights maps objective names to their share of the aggregated cost.
type Weights map[string]float64

// Aggregate collapses per-objective costs into one scalar by normalized
// weighted sum. Missing or zero weights fall back to equal weighting.
func Aggregate(costs map[string]float64, weights Weights) float64 {
	if len(costs) == 0 {
		return 0
	}
	var total float64
	for name := range costs {
		total += weights[name]
	}
	if total == 0 {
		// Equal weighting when no weights configured.
		var sum float64
		for _, c := range costs {
			sum += c
		}
		return sum / float64(len(costs))
	}
	var sum float64
	for name, c := range costs {
		sum += c * weights[name]
	}
	return sum / total
}

// Vector orders weights by declared objective names, defaulting any
// missing weight to 1.
func (w Weights) Vector(names []string) []float64 {
	if len(names) == 0 {
		return nil
	}
	out := make([]float64, len(names))
	any := false
	for i, name := range names {
		out[i] = w[name]
		if out[i] != 0 {
			any = true
		}
	}
	if !any {
		for i := range out {
			out[i] = 1
		}
	}
	return out
}
