package synth

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/interp"
)

// Interpolation selects how control samples are filled in between audio samples.
type Interpolation int

const (
	// InterpLinear ramps linearly towards the next control sample.
	InterpLinear Interpolation = iota
	// InterpHold repeats each control sample R times.
	InterpHold
	// InterpCubic uses 4-point Hermite interpolation.
	InterpCubic
)

func (i Interpolation) String() string {
	switch i {
	case InterpLinear:
		return "linear"
	case InterpHold:
		return "hold"
	case InterpCubic:
		return "cubic"
	default:
		return fmt.Sprintf("Interpolation(%d)", int(i))
	}
}

// ParseInterpolation maps "linear", "hold" and "cubic" to an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "", "linear":
		return InterpLinear, nil
	case "hold":
		return InterpHold, nil
	case "cubic":
		return InterpCubic, nil
	default:
		return InterpLinear, fmt.Errorf("unknown interpolation %q", s)
	}
}

// Upsample converts a control-rate signal to audio rate by the config ratio R.
//
// Control sample k lands exactly on audio sample k*R for every policy. Reads
// past either end of the control signal repeat the edge sample, so the last
// control period of a linear upsample is flat. When the audio length is not
// a whole number of control periods the last period is cut short.
func Upsample(cfg *Config, in *Signal, policy Interpolation) (*Signal, error) {
	if err := in.checkShape(cfg, Control, "upsample input"); err != nil {
		return nil, err
	}
	r := cfg.Ratio()
	out := cfg.NewSignal(Audio)
	ForEachVoice(cfg.BatchSize(), func(v int) {
		upsampleVoice(out.Voice(v), in.Voice(v), r, policy)
	})
	return out, nil
}

func upsampleVoice(dst, src []float64, r int, policy Interpolation) {
	n := len(src)
	at := func(k int) float64 {
		if k < 0 {
			k = 0
		}
		if k >= n {
			k = n - 1
		}
		return src[k]
	}
	step := 1.0 / float64(r)
	for k := 0; k < n; k++ {
		x0 := src[k]
		base := dst[k*r : min((k+1)*r, len(dst))]
		base[0] = x0
		switch policy {
		case InterpHold:
			for j := 1; j < len(base); j++ {
				base[j] = x0
			}
		case InterpCubic:
			xm1, x1, x2 := at(k-1), at(k+1), at(k+2)
			for j := 1; j < len(base); j++ {
				base[j] = interp.Hermite4(float64(j)*step, xm1, x0, x1, x2)
			}
		default:
			d := at(k+1) - x0
			for j := 1; j < len(base); j++ {
				base[j] = x0 + float64(j)*step*d
			}
		}
	}
}

type upsampler struct {
	Base
	cfg    *Config
	policy Interpolation
}

// NewUpsampler returns a constructor for a rate converter module with a
// control-rate input "in" and an audio-rate output "out".
func NewUpsampler(policy Interpolation) Constructor {
	return func(cfg *Config) (Module, error) {
		return &upsampler{
			Base: Base{
				In:  []Port{{Name: "in", Rate: Control}},
				Out: []Port{{Name: "out", Rate: Audio}},
			},
			cfg:    cfg,
			policy: policy,
		}, nil
	}
}

func (u *upsampler) Forward(_ Values, in []*Signal) ([]*Signal, error) {
	out, err := Upsample(u.cfg, in[0], u.policy)
	if err != nil {
		return nil, err
	}
	return []*Signal{out}, nil
}
