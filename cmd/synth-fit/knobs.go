package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-synth/synth"
)

// knobDef is one optimized parameter. Candidate values are human-range.
type knobDef struct {
	Name  string
	ID    synth.ParamID
	Range synth.Range
}

type candidate struct {
	Vals []float64
}

// parseOptimizeFilter parses a comma-separated list of module names or
// module.param keys. An empty list or "all" selects every free parameter.
func parseOptimizeFilter(raw string) (map[string]bool, error) {
	filter := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if s == "all" {
			return nil, nil
		}
		if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
			return nil, fmt.Errorf("invalid optimize entry %q (expected module or module.param)", s)
		}
		filter[s] = true
	}
	if len(filter) == 0 {
		return nil, nil
	}
	return filter, nil
}

func (k knobDef) selected(filter map[string]bool) bool {
	return filter == nil || filter[k.ID.Module] || filter[k.Name]
}

// initCandidate collects the knobs of s and their starting values.
//
// Parameters frozen by the preset are never knobs. Free parameters outside
// filter are frozen at their current value so every evaluation sees the
// same sound apart from the knobs.
func initCandidate(s *synth.Synth, filter map[string]bool) ([]knobDef, candidate, error) {
	var (
		defs []knobDef
		vals []float64
	)
	for _, p := range s.Parameters() {
		if p.Frozen() {
			continue
		}
		def := knobDef{Name: p.ID().String(), ID: p.ID(), Range: p.Range()}
		if !def.selected(filter) {
			p.Freeze()
			continue
		}
		defs = append(defs, def)
		vals = append(vals, p.Get()[0])
	}
	for key := range filter {
		found := false
		for _, d := range defs {
			if d.selected(map[string]bool{key: true}) {
				found = true
				break
			}
		}
		if !found {
			return nil, candidate{}, fmt.Errorf("optimize entry %q matches no free parameter", key)
		}
	}
	if len(defs) == 0 {
		return nil, candidate{}, fmt.Errorf("no free parameters to optimize")
	}
	return defs, candidate{Vals: vals}, nil
}

// fromNormalized maps an optimizer position in the unit cube to human values
// through each knob's range curve.
func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i := range defs {
		x := 0.0
		if i < len(pos) {
			x = clamp(pos[i], 0, 1)
		}
		vals[i] = defs[i].Range.FromUnit(x)
	}
	return candidate{Vals: vals}
}

// applyCandidate sets every voice of snap to the candidate values.
func applyCandidate(snap *synth.Snapshot, defs []knobDef, cand candidate) error {
	voices := make([]float64, snap.BatchSize())
	for i, d := range defs {
		x := clamp(d.Range.ToUnit(cand.Vals[i]), 0, 1)
		if math.IsNaN(x) {
			return fmt.Errorf("%s: %w: %v", d.Name, synth.ErrParamRange, cand.Vals[i])
		}
		for v := range voices {
			voices[v] = x
		}
		if err := snap.Set(d.ID, voices); err != nil {
			return err
		}
	}
	return nil
}

func (c candidate) knobs(defs []knobDef) map[string]float64 {
	out := make(map[string]float64, len(defs))
	for i, d := range defs {
		out[d.Name] = c.Vals[i]
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
