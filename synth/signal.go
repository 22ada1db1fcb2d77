package synth

import (
	"fmt"
	"math"
)

// Rate tags how often a signal is sampled.
type Rate int

const (
	// Scalar signals hold one value per voice.
	Scalar Rate = iota
	// Control signals run at Config.ControlRate.
	Control
	// Audio signals run at Config.SampleRate.
	Audio
)

func (r Rate) String() string {
	switch r {
	case Scalar:
		return "scalar"
	case Control:
		return "control"
	case Audio:
		return "audio"
	default:
		return fmt.Sprintf("Rate(%d)", int(r))
	}
}

// Signal is a rate-tagged [batch][length] buffer stored row-major.
type Signal struct {
	rate  Rate
	batch int
	n     int
	data  []float64
}

// NewSignal allocates a zeroed signal.
func NewSignal(rate Rate, batch, length int) *Signal {
	if batch < 0 {
		batch = 0
	}
	if length < 0 {
		length = 0
	}
	return &Signal{
		rate:  rate,
		batch: batch,
		n:     length,
		data:  make([]float64, batch*length),
	}
}

// SignalFromVoices copies equally sized per-voice rows into a new signal.
func SignalFromVoices(rate Rate, voices [][]float64) (*Signal, error) {
	if len(voices) == 0 {
		return NewSignal(rate, 0, 0), nil
	}
	n := len(voices[0])
	s := NewSignal(rate, len(voices), n)
	for v, row := range voices {
		if len(row) != n {
			return nil, fmt.Errorf("%w: voice %d has %d samples, voice 0 has %d", ErrShape, v, len(row), n)
		}
		copy(s.Voice(v), row)
	}
	return s, nil
}

// ScalarSignal wraps one value per voice as a Scalar-rate signal.
func ScalarSignal(values []float64) *Signal {
	s := NewSignal(Scalar, len(values), 1)
	copy(s.data, values)
	return s
}

// Rate returns the rate tag.
func (s *Signal) Rate() Rate { return s.rate }

// Batch returns the number of voices.
func (s *Signal) Batch() int { return s.batch }

// Len returns the number of samples per voice.
func (s *Signal) Len() int { return s.n }

// Data returns the row-major backing slice.
func (s *Signal) Data() []float64 { return s.data }

// Voice returns the samples of voice v. The slice aliases the signal.
func (s *Signal) Voice(v int) []float64 {
	return s.data[v*s.n : (v+1)*s.n : (v+1)*s.n]
}

// At returns sample i of voice v.
func (s *Signal) At(v, i int) float64 {
	return s.data[v*s.n+i]
}

// Values returns the first sample of every voice, the natural reading of a Scalar signal.
func (s *Signal) Values() []float64 {
	out := make([]float64, s.batch)
	if s.n == 0 {
		return out
	}
	for v := range out {
		out[v] = s.data[v*s.n]
	}
	return out
}

// Clone returns a deep copy.
func (s *Signal) Clone() *Signal {
	c := &Signal{rate: s.rate, batch: s.batch, n: s.n, data: make([]float64, len(s.data))}
	copy(c.data, s.data)
	return c
}

// Equal reports bit-identical contents, shape and rate.
func (s *Signal) Equal(o *Signal) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.rate != o.rate || s.batch != o.batch || s.n != o.n {
		return false
	}
	for i := range s.data {
		if math.Float64bits(s.data[i]) != math.Float64bits(o.data[i]) {
			return false
		}
	}
	return true
}

// VoiceEqual reports bit-identical contents of voice v in both signals.
func (s *Signal) VoiceEqual(o *Signal, v int) bool {
	if s.n != o.n {
		return false
	}
	a, b := s.Voice(v), o.Voice(v)
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}

func (s *Signal) quantize32() {
	for i, x := range s.data {
		s.data[i] = float64(float32(x))
	}
}

// checkShape verifies rate and dimensions against cfg.
func (s *Signal) checkShape(cfg *Config, want Rate, where string) error {
	if s == nil {
		return fmt.Errorf("%w: %s: nil signal", ErrShape, where)
	}
	if s.batch != cfg.BatchSize() {
		return fmt.Errorf("%w: %s: batch %d, want %d", ErrShape, where, s.batch, cfg.BatchSize())
	}
	if s.rate != want {
		return fmt.Errorf("%w: %s: got %s signal, want %s", ErrRate, where, s.rate, want)
	}
	if n := cfg.Length(want); s.n != n {
		return fmt.Errorf("%w: %s: %s length %d, want %d", ErrShape, where, want, s.n, n)
	}
	return nil
}
