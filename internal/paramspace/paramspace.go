// Package paramspace defines the search space the optimizer explores:
// typed parameter declarations, immutable configurations, sampling and
// the unit-cube encoding consumed by the surrogate model.
package paramspace

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"golang.org/x/exp/constraints"
)

// Kind discriminates the parameter variants.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindChoice
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindChoice:
		return "choice"
	default:
		return "unknown"
	}
}

// Range is a closed numeric interval.
type Range[T constraints.Integer | constraints.Float] struct {
	Min T
	Max T
}

// Param declares one dimension of the space.
type Param struct {
	Name    string
	Kind    Kind
	Min     float64
	Max     float64
	Log     bool     // sample and encode on a log scale (numeric kinds only)
	Choices []string // KindChoice only
	Default Value
}

// Value is one assigned parameter value. Num carries numeric kinds,
// Str carries the selected choice.
type Value struct {
	Num float64 `json:"num"`
	Str string  `json:"str,omitempty"`
}

// Float declares a continuous parameter. The default is the midpoint
// (geometric midpoint when log-scaled).
func Float(name string, r Range[float64], log bool) Param {
	def := (r.Min + r.Max) / 2
	if log {
		def = math.Sqrt(r.Min * r.Max)
	}
	return Param{Name: name, Kind: KindFloat, Min: r.Min, Max: r.Max, Log: log, Default: Value{Num: def}}
}

// Int declares an integer parameter.
func Int(name string, r Range[int], log bool) Param {
	def := float64(r.Min+r.Max) / 2
	if log {
		def = math.Sqrt(float64(r.Min) * float64(r.Max))
	}
	return Param{Name: name, Kind: KindInt, Min: float64(r.Min), Max: float64(r.Max), Log: log, Default: Value{Num: math.Round(def)}}
}

// Choice declares a categorical parameter. The first choice is the default.
func Choice(name string, choices ...string) Param {
	p := Param{Name: name, Kind: KindChoice, Choices: choices}
	if len(choices) > 0 {
		p.Default = Value{Str: choices[0]}
	}
	return p
}

// Space is an ordered set of parameters. It is immutable after New.
type Space struct {
	params []Param
	index  map[string]int
}

func New(params ...Param) (*Space, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("space needs at least one parameter")
	}
	idx := make(map[string]int, len(params))
	for i, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter %d: name is required", i)
		}
		if _, dup := idx[p.Name]; dup {
			return nil, fmt.Errorf("parameter %q declared twice", p.Name)
		}
		switch p.Kind {
		case KindFloat, KindInt:
			if p.Min >= p.Max {
				return nil, fmt.Errorf("parameter %q: min %v must be below max %v", p.Name, p.Min, p.Max)
			}
			if p.Log && p.Min <= 0 {
				return nil, fmt.Errorf("parameter %q: log scale requires a positive lower bound", p.Name)
			}
		case KindChoice:
			if len(p.Choices) < 2 {
				return nil, fmt.Errorf("parameter %q: needs at least two choices", p.Name)
			}
		}
		idx[p.Name] = i
	}
	cp := make([]Param, len(params))
	copy(cp, params)
	return &Space{params: cp, index: idx}, nil
}

// Dim returns the number of parameters.
func (s *Space) Dim() int { return len(s.params) }

// Params returns the parameter declarations in order.
func (s *Space) Params() []Param {
	cp := make([]Param, len(s.params))
	copy(cp, s.params)
	return cp
}

// Default returns the configuration holding every parameter's default.
func (s *Space) Default() *Config {
	vals := make([]Value, len(s.params))
	for i, p := range s.params {
		vals[i] = p.Default
	}
	return s.newConfig(vals, "default")
}

// Sample draws one uniform random configuration.
func (s *Space) Sample(rng *rand.Rand) *Config {
	u := make([]float64, len(s.params))
	for i := range u {
		u[i] = rng.Float64()
	}
	c := s.FromUnit(u)
	c.origin = "random"
	return c
}

// SampleN draws n uniform random configurations.
func (s *Space) SampleN(rng *rand.Rand, n int) []*Config {
	out := make([]*Config, n)
	for i := range out {
		out[i] = s.Sample(rng)
	}
	return out
}

// FromUnit maps a point in the unit cube to a configuration. Values are
// clamped to [0,1] first, so acquisition optimizers can hand in slightly
// out-of-range points without failing.
func (s *Space) FromUnit(u []float64) *Config {
	vals := make([]Value, len(s.params))
	for i, p := range s.params {
		x := u[i]
		if x < 0 {
			x = 0
		} else if x > 1 {
			x = 1
		}
		switch p.Kind {
		case KindFloat:
			vals[i] = Value{Num: p.fromUnitNum(x)}
		case KindInt:
			vals[i] = Value{Num: math.Round(p.fromUnitNum(x))}
		case KindChoice:
			j := int(x * float64(len(p.Choices)))
			if j >= len(p.Choices) {
				j = len(p.Choices) - 1
			}
			vals[i] = Value{Num: float64(j), Str: p.Choices[j]}
		}
	}
	return s.newConfig(vals, "unit")
}

func (p Param) fromUnitNum(x float64) float64 {
	if p.Log {
		lo, hi := math.Log(p.Min), math.Log(p.Max)
		return math.Exp(lo + x*(hi-lo))
	}
	return p.Min + x*(p.Max-p.Min)
}

func (p Param) toUnitNum(v float64) float64 {
	if p.Log {
		lo, hi := math.Log(p.Min), math.Log(p.Max)
		return (math.Log(v) - lo) / (hi - lo)
	}
	return (v - p.Min) / (p.Max - p.Min)
}

// Encode vectorizes a configuration into the unit cube, the representation
// the surrogate model trains on. Choices map to their normalized index.
func (s *Space) Encode(c *Config) []float64 {
	out := make([]float64, len(s.params))
	for i, p := range s.params {
		v := c.vals[i]
		switch p.Kind {
		case KindFloat, KindInt:
			out[i] = p.toUnitNum(v.Num)
		case KindChoice:
			if len(p.Choices) > 1 {
				out[i] = v.Num / float64(len(p.Choices)-1)
			}
		}
	}
	return out
}

// Validate checks that a configuration lies inside the space.
func (s *Space) Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("nil configuration")
	}
	if len(c.vals) != len(s.params) {
		return fmt.Errorf("configuration has %d values, space has %d parameters", len(c.vals), len(s.params))
	}
	for i, p := range s.params {
		v := c.vals[i]
		switch p.Kind {
		case KindFloat, KindInt:
			if v.Num < p.Min || v.Num > p.Max {
				return fmt.Errorf("parameter %q: value %v outside [%v, %v]", p.Name, v.Num, p.Min, p.Max)
			}
			if p.Kind == KindInt && v.Num != math.Trunc(v.Num) {
				return fmt.Errorf("parameter %q: value %v is not an integer", p.Name, v.Num)
			}
		case KindChoice:
			found := false
			for _, ch := range p.Choices {
				if ch == v.Str {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("parameter %q: %q is not one of %v", p.Name, v.Str, p.Choices)
			}
		}
	}
	return nil
}

// FromValues builds a configuration from a name→value map, used when
// reloading persisted run history. Unknown names are an error; missing
// names fall back to the parameter default.
func (s *Space) FromValues(values map[string]Value) (*Config, error) {
	vals := make([]Value, len(s.params))
	for i, p := range s.params {
		vals[i] = p.Default
	}
	for name, v := range values {
		i, ok := s.index[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		p := s.params[i]
		if p.Kind == KindChoice && v.Str != "" {
			for j, ch := range p.Choices {
				if ch == v.Str {
					v.Num = float64(j)
					break
				}
			}
		}
		vals[i] = v
	}
	c := s.newConfig(vals, "restored")
	if err := s.Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Space) newConfig(vals []Value, origin string) *Config {
	c := &Config{space: s, vals: vals, origin: origin}
	c.key = c.buildKey()
	return c
}

// Config is an immutable point in the space. Identity is by value: two
// configs with equal parameter values share the same Key.
type Config struct {
	space  *Space
	vals   []Value
	key    string
	origin string
}

// Key is the canonical value-identity of the configuration.
func (c *Config) Key() string { return c.key }

// Origin reports where the configuration came from (default, random,
// acquisition, restored). Informational only.
func (c *Config) Origin() string { return c.origin }

// WithOrigin returns a copy tagged with the given origin.
func (c *Config) WithOrigin(origin string) *Config {
	cp := *c
	cp.origin = origin
	return &cp
}

// Space returns the space this configuration belongs to.
func (c *Config) Space() *Space { return c.space }

// Float returns the value of a numeric parameter.
func (c *Config) Float(name string) float64 {
	i, ok := c.space.index[name]
	if !ok {
		return math.NaN()
	}
	return c.vals[i].Num
}

// Int returns the value of an integer parameter.
func (c *Config) Int(name string) int {
	return int(c.Float(name))
}

// Choice returns the selected option of a categorical parameter.
func (c *Config) Choice(name string) string {
	i, ok := c.space.index[name]
	if !ok {
		return ""
	}
	return c.vals[i].Str
}

// Values returns a name→value map, used for persistence and display.
func (c *Config) Values() map[string]Value {
	out := make(map[string]Value, len(c.vals))
	for i, p := range c.space.params {
		out[p.Name] = c.vals[i]
	}
	return out
}

func (c *Config) buildKey() string {
	parts := make([]string, len(c.vals))
	for i, p := range c.space.params {
		v := c.vals[i]
		if p.Kind == KindChoice {
			parts[i] = p.Name + "=" + v.Str
		} else {
			parts[i] = fmt.Sprintf("%s=%.12g", p.Name, v.Num)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func (c *Config) String() string {
	parts := make([]string, len(c.vals))
	for i, p := range c.space.params {
		v := c.vals[i]
		if p.Kind == KindChoice {
			parts[i] = fmt.Sprintf("%s=%s", p.Name, v.Str)
		} else {
			parts[i] = fmt.Sprintf("%s=%.4g", p.Name, v.Num)
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
