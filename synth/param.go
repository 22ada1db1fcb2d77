package synth

import (
	"fmt"
	"math"
	"sync"
)

// Range maps normalized values in [0,1] to a human range.
//
// With Curve c the mapping is Min + (Max-Min)*x^c. Symmetric ranges apply the
// curve around the midpoint instead, so resolution concentrates at the center.
type Range struct {
	Min       float64
	Max       float64
	Curve     float64
	Symmetric bool
}

// Linear returns a linear range.
func Linear(min, max float64) Range {
	return Range{Min: min, Max: max, Curve: 1}
}

func (r Range) curve() float64 {
	if r.Curve <= 0 || math.IsNaN(r.Curve) {
		return 1
	}
	return r.Curve
}

// FromUnit maps a normalized value to the human range.
func (r Range) FromUnit(x float64) float64 {
	c := r.curve()
	if r.Symmetric {
		y := 2*x - 1
		y = math.Copysign(math.Pow(math.Abs(y), c), y)
		return r.Min + (r.Max-r.Min)*(y+1)/2
	}
	return r.Min + (r.Max-r.Min)*math.Pow(x, c)
}

// ToUnit maps a human value back to [0,1]. It is the inverse of FromUnit.
func (r Range) ToUnit(v float64) float64 {
	span := r.Max - r.Min
	if span == 0 {
		return 0
	}
	u := (v - r.Min) / span
	c := r.curve()
	if r.Symmetric {
		y := 2*u - 1
		y = math.Copysign(math.Pow(math.Abs(y), 1/c), y)
		return (y + 1) / 2
	}
	return math.Pow(u, 1/c)
}

// Contains reports whether v lies inside [Min, Max].
func (r Range) Contains(v float64) bool {
	lo, hi := r.Min, r.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

// ParamID identifies a parameter inside a Synth.
type ParamID struct {
	Module string
	Name   string
}

func (id ParamID) String() string {
	return id.Module + "." + id.Name
}

// Parameter is a named, range-bounded value batched across voices.
//
// The stored value is normalized. A parameter that was explicitly set is
// frozen and keeps its value across evaluations; unfrozen parameters are
// drawn fresh for every evaluation.
type Parameter struct {
	name   string
	module string
	rng    Range
	batch  int

	mu     sync.RWMutex
	value  []float64
	frozen bool
}

// NewParameter creates a parameter for cfg's batch size, initialised to the
// human default def (clamped into the range).
func NewParameter(cfg *Config, name string, r Range, def float64) *Parameter {
	lo, hi := r.Min, r.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	def = math.Max(lo, math.Min(hi, def))
	x := r.ToUnit(def)
	p := &Parameter{
		name:  name,
		rng:   r,
		batch: cfg.BatchSize(),
		value: make([]float64, cfg.BatchSize()),
	}
	for i := range p.value {
		p.value[i] = x
	}
	return p
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Range returns the human range mapping.
func (p *Parameter) Range() Range { return p.rng }

// ID returns the parameter identity. The module part is empty until the
// owning module is registered.
func (p *Parameter) ID() ParamID {
	return ParamID{Module: p.module, Name: p.name}
}

func (p *Parameter) bind(module string) {
	p.module = module
}

// Get returns the per-voice values in the human range.
func (p *Parameter) Get() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]float64, len(p.value))
	for i, x := range p.value {
		out[i] = p.rng.FromUnit(x)
	}
	return out
}

// Normalized returns a copy of the per-voice normalized values.
func (p *Parameter) Normalized() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]float64(nil), p.value...)
}

// Set overwrites the normalized values and freezes the parameter.
func (p *Parameter) Set(normalized []float64) error {
	if len(normalized) != p.batch {
		return fmt.Errorf("%w: %s: %d values, want %d", ErrShape, p.ID(), len(normalized), p.batch)
	}
	for v, x := range normalized {
		if !(x >= 0 && x <= 1) {
			return fmt.Errorf("%w: %s: voice %d normalized value %v outside [0,1]", ErrParamRange, p.ID(), v, x)
		}
	}
	p.mu.Lock()
	copy(p.value, normalized)
	p.frozen = true
	p.mu.Unlock()
	return nil
}

// SetValue maps human values through the inverse range and calls Set.
func (p *Parameter) SetValue(human []float64) error {
	if len(human) != p.batch {
		return fmt.Errorf("%w: %s: %d values, want %d", ErrShape, p.ID(), len(human), p.batch)
	}
	normalized := make([]float64, len(human))
	for v, h := range human {
		if math.IsNaN(h) || !p.rng.Contains(h) {
			return fmt.Errorf("%w: %s: voice %d value %v outside [%v,%v]", ErrParamRange, p.ID(), v, h, p.rng.Min, p.rng.Max)
		}
		normalized[v] = clampUnit(p.rng.ToUnit(h))
	}
	return p.Set(normalized)
}

// Fill sets every voice to the same human value.
func (p *Parameter) Fill(human float64) error {
	vals := make([]float64, p.batch)
	for i := range vals {
		vals[i] = human
	}
	return p.SetValue(vals)
}

// Freeze excludes the parameter from randomization.
func (p *Parameter) Freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// Unfreeze returns the parameter to randomization.
func (p *Parameter) Unfreeze() {
	p.mu.Lock()
	p.frozen = false
	p.mu.Unlock()
}

// Frozen reports whether the parameter keeps its value across evaluations.
func (p *Parameter) Frozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// snapshot returns the frozen flag and a copy of the values in one read.
func (p *Parameter) snapshot() (bool, []float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen, append([]float64(nil), p.value...)
}

func clampUnit(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
