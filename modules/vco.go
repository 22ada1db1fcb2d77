package modules

import (
	"math"

	"github.com/cwbudde/algo-approx"
	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-synth/synth"
)

// VCO is a pitch-modulated oscillator morphing from a sine to a
// band-limited square/saw.
//
// The instantaneous pitch in semitones is midi_f0 + tuning + mod_depth*mod,
// where mod is the audio-rate modulation input (usually an upsampled
// envelope). Phase accumulates from initial_phase.
type VCO struct {
	synth.Base
	cfg *synth.Config
}

// NewVCO builds an oscillator with inputs "midi_f0" and "mod" and output "out".
func NewVCO(cfg *synth.Config) (synth.Module, error) {
	return &VCO{
		Base: synth.Base{
			In: []synth.Port{
				{Name: "midi_f0", Rate: synth.Scalar},
				{Name: "mod", Rate: synth.Audio},
			},
			Out: []synth.Port{{Name: "out", Rate: synth.Audio}},
			Params: []*synth.Parameter{
				synth.NewParameter(cfg, "tuning", synth.Linear(-24, 24), 0),
				synth.NewParameter(cfg, "mod_depth", synth.Range{Min: -96, Max: 96, Curve: 0.2, Symmetric: true}, 0),
				synth.NewParameter(cfg, "initial_phase", synth.Linear(-math.Pi, math.Pi), 0),
				synth.NewParameter(cfg, "shape", synth.Linear(0, 1), 0),
			},
		},
		cfg: cfg,
	}, nil
}

// MIDIToHz converts a fractional MIDI note to Hz (A4 = 69 = 440 Hz).
func MIDIToHz(note float64) float64 {
	const a4Freq = 440.0
	const a4Note = 69
	return a4Freq * float64(approx.FastExp(float32((note-a4Note)/12*math.Ln2)))
}

// partials is the number of audible harmonics the square shaper may
// approximate at hz before aliasing.
func partials(hz float64) float64 {
	if hz <= 10 {
		return 100
	}
	k := 12000 / (hz * math.Log10(hz))
	return core.Clamp(k, 1, 100)
}

func waveform(phase, shape, hz float64) float64 {
	c := math.Cos(phase)
	if shape == 0 {
		return c
	}
	sq := math.Tanh(math.Pi * partials(hz) * math.Sin(phase) / 2)
	sqsaw := sq * (1 + shape*c) / (1 + shape)
	return (1-shape)*c + shape*sqsaw
}

// Forward renders one oscillator row per voice.
func (o *VCO) Forward(p synth.Values, in []*synth.Signal) ([]*synth.Signal, error) {
	names := []string{"tuning", "mod_depth", "initial_phase", "shape"}
	vals := make([][]float64, len(names))
	for i, name := range names {
		v, err := p.Get(name)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	f0 := in[0].Values()
	mod := in[1]
	out := o.cfg.NewSignal(synth.Audio)
	sr := float64(o.cfg.SampleRate())
	nyquist := sr / 2

	synth.ForEachVoice(out.Batch(), func(v int) {
		tuning, depth, shape := vals[0][v], vals[1][v], vals[3][v]
		phase := vals[2][v]
		m := mod.Voice(v)
		row := out.Voice(v)
		for i := range row {
			hz := core.Clamp(MIDIToHz(f0[v]+tuning+depth*m[i]), 0, nyquist)
			row[i] = core.Clamp(waveform(phase, shape, hz), -1, 1)
			phase = math.Mod(phase+2*math.Pi*hz/sr, 2*math.Pi)
		}
	})
	return []*synth.Signal{out}, nil
}
