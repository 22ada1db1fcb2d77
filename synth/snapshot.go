package synth

import (
	"fmt"
	"math/rand/v2"
)

type resolved struct {
	rng    Range
	norm   []float64
	frozen bool
}

// Snapshot holds the parameter values of one evaluation, one normalized
// value per voice for every parameter of the Synth. It is built fresh per
// call so concurrent evaluations never share mutable parameter state.
type Snapshot struct {
	batchID uint64
	batch   int
	order   []ParamID
	values  map[ParamID]*resolved
}

func newSnapshot(batchID uint64, batch int, params []*Parameter, reproducible bool) *Snapshot {
	s := &Snapshot{
		batchID: batchID,
		batch:   batch,
		order:   make([]ParamID, 0, len(params)),
		values:  make(map[ParamID]*resolved, len(params)),
	}
	for _, p := range params {
		id := p.ID()
		frozen, vals := p.snapshot()
		if !frozen {
			for v := range vals {
				if reproducible {
					vals[v] = Uniform(GlobalVoiceID(batchID, batch, v), id)
				} else {
					vals[v] = rand.Float64()
				}
			}
		}
		s.order = append(s.order, id)
		s.values[id] = &resolved{rng: p.Range(), norm: vals, frozen: frozen}
	}
	return s
}

// BatchID returns the batch the snapshot was drawn for.
func (s *Snapshot) BatchID() uint64 { return s.batchID }

// BatchSize returns the number of voices.
func (s *Snapshot) BatchSize() int { return s.batch }

// IDs returns the parameter ids in registration order.
func (s *Snapshot) IDs() []ParamID {
	return append([]ParamID(nil), s.order...)
}

// Normalized returns a copy of the normalized per-voice values of id.
func (s *Snapshot) Normalized(id ParamID) ([]float64, bool) {
	r, ok := s.values[id]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), r.norm...), true
}

// Human returns the per-voice values of id mapped into its human range.
func (s *Snapshot) Human(id ParamID) ([]float64, bool) {
	r, ok := s.values[id]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(r.norm))
	for i, x := range r.norm {
		out[i] = r.rng.FromUnit(x)
	}
	return out, true
}

// Frozen reports whether id kept a user-set value instead of a random draw.
func (s *Snapshot) Frozen(id ParamID) bool {
	r, ok := s.values[id]
	return ok && r.frozen
}

// Set replaces the normalized values of id in this snapshot only.
func (s *Snapshot) Set(id ParamID, normalized []float64) error {
	r, ok := s.values[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, id)
	}
	if len(normalized) != s.batch {
		return fmt.Errorf("%w: %s: %d values, want %d", ErrShape, id, len(normalized), s.batch)
	}
	for v, x := range normalized {
		if !(x >= 0 && x <= 1) {
			return fmt.Errorf("%w: %s: voice %d normalized value %v outside [0,1]", ErrParamRange, id, v, x)
		}
	}
	r.norm = append(r.norm[:0], normalized...)
	return nil
}

// GlobalID returns the global voice id of voice v.
func (s *Snapshot) GlobalID(v int) uint64 {
	return GlobalVoiceID(s.batchID, s.batch, v)
}

// VoiceSeed returns the canonical seed of voice v.
func (s *Snapshot) VoiceSeed(v int) uint64 {
	return VoiceSeed(s.GlobalID(v))
}

// Voice returns the human values of voice v keyed by "module.param".
func (s *Snapshot) Voice(v int) map[string]float64 {
	out := make(map[string]float64, len(s.order))
	for _, id := range s.order {
		r := s.values[id]
		out[id.String()] = r.rng.FromUnit(r.norm[v])
	}
	return out
}

// Clone returns an independent copy.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		batchID: s.batchID,
		batch:   s.batch,
		order:   append([]ParamID(nil), s.order...),
		values:  make(map[ParamID]*resolved, len(s.values)),
	}
	for id, r := range s.values {
		c.values[id] = &resolved{rng: r.rng, norm: append([]float64(nil), r.norm...), frozen: r.frozen}
	}
	return c
}
