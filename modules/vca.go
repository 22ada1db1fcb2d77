package modules

import (
	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-synth/synth"
)

// VCA multiplies an audio signal by an audio-rate gain envelope.
type VCA struct {
	synth.Base
	cfg *synth.Config
}

// NewVCA builds an amplifier with inputs "env" and "in" and output "out".
func NewVCA(cfg *synth.Config) (synth.Module, error) {
	return &VCA{
		Base: synth.Base{
			In: []synth.Port{
				{Name: "env", Rate: synth.Audio},
				{Name: "in", Rate: synth.Audio},
			},
			Out: []synth.Port{{Name: "out", Rate: synth.Audio}},
		},
		cfg: cfg,
	}, nil
}

// Forward returns env*in, clipped to [-1,1].
func (a *VCA) Forward(_ synth.Values, in []*synth.Signal) ([]*synth.Signal, error) {
	env, src := in[0].Data(), in[1].Data()
	out := a.cfg.NewSignal(synth.Audio)
	dst := out.Data()
	for i := range dst {
		dst[i] = core.Clamp(env[i]*src[i], -1, 1)
	}
	return []*synth.Signal{out}, nil
}
