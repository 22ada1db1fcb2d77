// Package voice assembles the reference modules into a playable
// subtractive voice.
package voice

import (
	"github.com/cwbudde/algo-synth/modules"
	"github.com/cwbudde/algo-synth/synth"
)

// Module names registered by New.
const (
	Keyboard = "keyboard"
	ADSR     = "adsr"
	Upsample = "upsample"
	VCO      = "vco"
	Noise    = "noise"
	Mixer    = "mixer"
	VCF      = "vcf"
	VCA      = "vca"
)

type options struct {
	noise  bool
	filter bool
	interp synth.Interpolation
}

// Option configures a voice.
type Option func(*options)

// WithNoise mixes a noise source into the oscillator.
func WithNoise() Option { return func(o *options) { o.noise = true } }

// WithFilter runs the source through a low-pass filter before the amplifier.
func WithFilter() Option { return func(o *options) { o.filter = true } }

// WithInterpolation selects how the envelope is upsampled to audio rate.
func WithInterpolation(i synth.Interpolation) Option {
	return func(o *options) { o.interp = i }
}

func applyOptions(opts []Option) options {
	o := options{interp: synth.InterpLinear}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// New builds a voice synth: keyboard, envelope, upsampler, oscillator and
// amplifier, plus noise and filter when requested.
//
// The envelope drives both the amplifier and the oscillator pitch
// modulation, so the voice sweeps in pitch along with its loudness.
func New(cfg *synth.Config, opts ...Option) (*synth.Synth, error) {
	o := applyOptions(opts)
	s, err := synth.New(cfg, patch(o))
	if err != nil {
		return nil, err
	}
	regs := []synth.Registration{
		{Name: Keyboard, New: modules.NewKeyboard},
		{Name: ADSR, New: modules.NewADSR},
		{Name: Upsample, New: synth.NewUpsampler(o.interp)},
		{Name: VCO, New: modules.NewVCO},
	}
	if o.noise {
		regs = append(regs,
			synth.Registration{Name: Noise, New: modules.NewNoise},
			synth.Registration{Name: Mixer, New: modules.NewMixer(2)},
		)
	}
	if o.filter {
		regs = append(regs, synth.Registration{Name: VCF, New: modules.NewVCF})
	}
	regs = append(regs, synth.Registration{Name: VCA, New: modules.NewVCA})
	if err := s.AddModules(regs...); err != nil {
		return nil, err
	}
	return s, nil
}

func patch(o options) synth.Patch {
	return synth.PatchFunc(func(ev *synth.Eval) (*synth.Signal, error) {
		kb, err := ev.Call(Keyboard)
		if err != nil {
			return nil, err
		}
		env, err := ev.Call1(ADSR, kb[1])
		if err != nil {
			return nil, err
		}
		envAudio, err := ev.Call1(Upsample, env)
		if err != nil {
			return nil, err
		}
		src, err := ev.Call1(VCO, kb[0], envAudio)
		if err != nil {
			return nil, err
		}
		if o.noise {
			noise, err := ev.Call1(Noise)
			if err != nil {
				return nil, err
			}
			if src, err = ev.Call1(Mixer, src, noise); err != nil {
				return nil, err
			}
		}
		if o.filter {
			if src, err = ev.Call1(VCF, src); err != nil {
				return nil, err
			}
		}
		return ev.Call1(VCA, envAudio, src)
	})
}

// Wiring returns the declarative form of the topology New installs.
func Wiring(opts ...Option) synth.Wiring {
	o := applyOptions(opts)
	w := synth.Wiring{
		Connections: []synth.Connection{
			{From: "keyboard.duration", To: "adsr.duration"},
			{From: "adsr.env", To: "upsample.in"},
			{From: "keyboard.midi_f0", To: "vco.midi_f0"},
			{From: "upsample.out", To: "vco.mod"},
			{From: "upsample.out", To: "vca.env"},
		},
		Output: "vca.out",
	}
	src := "vco.out"
	if o.noise {
		w.Connections = append(w.Connections,
			synth.Connection{From: src, To: "mixer.in0"},
			synth.Connection{From: "noise.out", To: "mixer.in1"},
		)
		src = "mixer.out"
	}
	if o.filter {
		w.Connections = append(w.Connections, synth.Connection{From: src, To: "vcf.in"})
		src = "vcf.out"
	}
	w.Connections = append(w.Connections, synth.Connection{From: src, To: "vca.in"})
	return w
}
