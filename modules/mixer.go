package modules

import (
	"fmt"

	"github.com/cwbudde/algo-synth/synth"
)

// Mixer sums n audio inputs, each scaled by its own level, and divides by n
// so the output stays inside [-1,1] when the inputs do.
type Mixer struct {
	synth.Base
	cfg *synth.Config
	n   int
}

// NewMixer returns a constructor for a mixer with inputs "in0".."in<n-1>"
// and levels "level0".."level<n-1>".
func NewMixer(n int) synth.Constructor {
	return func(cfg *synth.Config) (synth.Module, error) {
		if n < 1 {
			return nil, fmt.Errorf("mixer needs at least one input, got %d", n)
		}
		m := &Mixer{cfg: cfg, n: n}
		m.Out = []synth.Port{{Name: "out", Rate: synth.Audio}}
		for i := 0; i < n; i++ {
			m.In = append(m.In, synth.Port{Name: fmt.Sprintf("in%d", i), Rate: synth.Audio})
			m.Params = append(m.Params, synth.NewParameter(cfg, fmt.Sprintf("level%d", i), synth.Linear(0, 1), 1))
		}
		return m, nil
	}
}

// Forward returns sum(level_i*in_i)/n.
func (m *Mixer) Forward(p synth.Values, in []*synth.Signal) ([]*synth.Signal, error) {
	levels := make([][]float64, m.n)
	for i := range levels {
		l, err := p.Get(fmt.Sprintf("level%d", i))
		if err != nil {
			return nil, err
		}
		levels[i] = l
	}
	out := m.cfg.NewSignal(synth.Audio)
	scale := 1 / float64(m.n)
	for v := 0; v < out.Batch(); v++ {
		dst := out.Voice(v)
		for i, sig := range in {
			g := levels[i][v] * scale
			for j, x := range sig.Voice(v) {
				dst[j] += g * x
			}
		}
	}
	return []*synth.Signal{out}, nil
}
