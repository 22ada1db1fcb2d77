package modules

import (
	"github.com/cwbudde/algo-dsp/dsp/signal"

	"github.com/cwbudde/algo-synth/synth"
)

// Noise is a white-noise source. Each voice is seeded from its global
// voice id, so a voice sounds the same whichever batch layout renders it.
type Noise struct {
	synth.Base
	cfg *synth.Config
}

// NewNoise builds a noise source with output "out".
func NewNoise(cfg *synth.Config) (synth.Module, error) {
	return &Noise{
		Base: synth.Base{
			Out:    []synth.Port{{Name: "out", Rate: synth.Audio}},
			Params: []*synth.Parameter{synth.NewParameter(cfg, "level", synth.Linear(0, 1), 0.25)},
		},
		cfg: cfg,
	}, nil
}

// Forward renders seeded white noise scaled by level.
func (n *Noise) Forward(p synth.Values, _ []*synth.Signal) ([]*synth.Signal, error) {
	level, err := p.Get("level")
	if err != nil {
		return nil, err
	}
	out := n.cfg.NewSignal(synth.Audio)
	errs := make([]error, out.Batch())
	synth.ForEachVoice(out.Batch(), func(v int) {
		gen := signal.NewGeneratorWithOptions(nil, signal.WithSeed(int64(p.VoiceSeed(v)>>1)))
		buf, err := gen.WhiteNoise(level[v], out.Len())
		if err != nil {
			errs[v] = err
			return
		}
		copy(out.Voice(v), buf)
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return []*synth.Signal{out}, nil
}
