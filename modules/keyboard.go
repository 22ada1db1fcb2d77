package modules

import "github.com/cwbudde/algo-synth/synth"

// Keyboard is a monophonic note source. It plays one note per voice and
// emits its MIDI pitch and held duration as scalar signals.
type Keyboard struct {
	synth.Base
	cfg *synth.Config
}

// NewKeyboard builds a keyboard with outputs "midi_f0" and "duration".
func NewKeyboard(cfg *synth.Config) (synth.Module, error) {
	return &Keyboard{
		Base: synth.Base{
			Out: []synth.Port{
				{Name: "midi_f0", Rate: synth.Scalar},
				{Name: "duration", Rate: synth.Scalar},
			},
			Params: []*synth.Parameter{
				synth.NewParameter(cfg, "midi_f0", synth.Linear(0, 127), 48),
				synth.NewParameter(cfg, "duration", synth.Range{Min: 0.01, Max: 4, Curve: 0.5}, 1),
			},
		},
		cfg: cfg,
	}, nil
}

// Forward copies the note parameters to the outputs.
func (k *Keyboard) Forward(p synth.Values, _ []*synth.Signal) ([]*synth.Signal, error) {
	f0, err := p.Get("midi_f0")
	if err != nil {
		return nil, err
	}
	dur, err := p.Get("duration")
	if err != nil {
		return nil, err
	}
	return []*synth.Signal{synth.ScalarSignal(f0), synth.ScalarSignal(dur)}, nil
}
