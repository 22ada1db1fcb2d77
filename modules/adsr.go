package modules

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-synth/synth"
)

// ADSR is a control-rate attack/decay/sustain/release envelope.
//
// The note is held for the scalar "duration" input. Every segment is a
// power curve with exponent alpha; alpha 1 gives straight ramps. The
// release starts from whatever level the envelope had at note-off, so a
// note shorter than attack+decay releases from inside the attack or decay.
type ADSR struct {
	synth.Base
	cfg *synth.Config
}

// NewADSR builds an envelope with input "duration" and output "env".
func NewADSR(cfg *synth.Config) (synth.Module, error) {
	return &ADSR{
		Base: synth.Base{
			In:  []synth.Port{{Name: "duration", Rate: synth.Scalar}},
			Out: []synth.Port{{Name: "env", Rate: synth.Control}},
			Params: []*synth.Parameter{
				synth.NewParameter(cfg, "attack", synth.Range{Min: 0, Max: 2, Curve: 0.5}, 0.1),
				synth.NewParameter(cfg, "decay", synth.Range{Min: 0, Max: 2, Curve: 0.5}, 0.1),
				synth.NewParameter(cfg, "sustain", synth.Linear(0, 1), 0.5),
				synth.NewParameter(cfg, "release", synth.Range{Min: 0, Max: 5, Curve: 0.5}, 0.5),
				synth.NewParameter(cfg, "alpha", synth.Linear(0.1, 6), 3),
			},
		},
		cfg: cfg,
	}, nil
}

type envelope struct {
	attack, decay, sustain, release, alpha float64
}

func (e envelope) held(t float64) float64 {
	if t < e.attack {
		return math.Pow(t/e.attack, e.alpha)
	}
	t -= e.attack
	if t < e.decay {
		return 1 - (1-e.sustain)*math.Pow(t/e.decay, e.alpha)
	}
	return e.sustain
}

// at returns the envelope level t seconds after note-on for a note held dur.
func (e envelope) at(t, dur float64) float64 {
	if t < dur {
		return e.held(t)
	}
	rt := t - dur
	if rt >= e.release {
		return 0
	}
	return e.held(dur) * (1 - math.Pow(rt/e.release, e.alpha))
}

// Forward renders the envelope for every voice.
func (a *ADSR) Forward(p synth.Values, in []*synth.Signal) ([]*synth.Signal, error) {
	names := []string{"attack", "decay", "sustain", "release", "alpha"}
	vals := make([][]float64, len(names))
	for i, name := range names {
		v, err := p.Get(name)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	dur := in[0].Values()
	out := a.cfg.NewSignal(synth.Control)
	rate := float64(a.cfg.ControlRate())

	synth.ForEachVoice(out.Batch(), func(v int) {
		env := envelope{
			attack:  vals[0][v],
			decay:   vals[1][v],
			sustain: vals[2][v],
			release: vals[3][v],
			alpha:   vals[4][v],
		}
		row := out.Voice(v)
		for i := range row {
			x := env.at(float64(i)/rate, dur[v])
			row[i] = core.FlushDenormals(core.Clamp(x, 0, 1))
		}
	})
	return []*synth.Signal{out}, nil
}
