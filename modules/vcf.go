package modules

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/cwbudde/algo-synth/synth"
)

// VCFOrder is the Butterworth order of the VCF low-pass.
const VCFOrder = 4

// VCF is a per-voice Butterworth low-pass filter. Filter state starts at
// zero on every call.
type VCF struct {
	synth.Base
	cfg *synth.Config
}

// NewVCF builds a filter with input "in" and output "out".
func NewVCF(cfg *synth.Config) (synth.Module, error) {
	return &VCF{
		Base: synth.Base{
			In:     []synth.Port{{Name: "in", Rate: synth.Audio}},
			Out:    []synth.Port{{Name: "out", Rate: synth.Audio}},
			Params: []*synth.Parameter{synth.NewParameter(cfg, "cutoff", synth.Range{Min: 20, Max: 16000, Curve: 3}, 4000)},
		},
		cfg: cfg,
	}, nil
}

// Forward filters every voice with its own cutoff.
func (f *VCF) Forward(p synth.Values, in []*synth.Signal) ([]*synth.Signal, error) {
	cutoff, err := p.Get("cutoff")
	if err != nil {
		return nil, err
	}
	sr := float64(f.cfg.SampleRate())
	out := f.cfg.NewSignal(synth.Audio)
	synth.ForEachVoice(out.Batch(), func(v int) {
		fc := math.Min(cutoff[v], 0.45*sr)
		chain := biquad.NewChain(design.ButterworthLP(fc, VCFOrder, sr))
		src, dst := in[0].Voice(v), out.Voice(v)
		for i, x := range src {
			// Per-sample processing keeps results independent of SIMD block paths.
			dst[i] = core.FlushDenormals(core.Clamp(chain.ProcessSample(x), -1, 1))
		}
	})
	return []*synth.Signal{out}, nil
}
