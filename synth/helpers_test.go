package synth

import (
	"testing"
)

// levelSource emits a control-rate ramp from 0 to its per-voice "level".
type levelSource struct {
	Base
	cfg *Config
}

func newLevelSource(cfg *Config) (Module, error) {
	return &levelSource{
		Base: Base{
			Out:    []Port{{Name: "out", Rate: Control}},
			Params: []*Parameter{NewParameter(cfg, "level", Linear(0, 1), 0.5)},
		},
		cfg: cfg,
	}, nil
}

func (m *levelSource) Forward(p Values, _ []*Signal) ([]*Signal, error) {
	level, err := p.Get("level")
	if err != nil {
		return nil, err
	}
	out := m.cfg.NewSignal(Control)
	n := out.Len()
	for v := 0; v < out.Batch(); v++ {
		row := out.Voice(v)
		for i := range row {
			row[i] = level[v] * float64(i+1) / float64(n)
		}
	}
	return []*Signal{out}, nil
}

// gain scales an audio-rate input by its per-voice "gain".
type gain struct {
	Base
	cfg *Config
}

func newGain(cfg *Config) (Module, error) {
	return &gain{
		Base: Base{
			In:     []Port{{Name: "in", Rate: Audio}},
			Out:    []Port{{Name: "out", Rate: Audio}},
			Params: []*Parameter{NewParameter(cfg, "gain", Range{Min: 0, Max: 2, Curve: 2}, 1)},
		},
		cfg: cfg,
	}, nil
}

func (m *gain) Forward(p Values, in []*Signal) ([]*Signal, error) {
	g, err := p.Get("gain")
	if err != nil {
		return nil, err
	}
	out := m.cfg.NewSignal(Audio)
	for v := 0; v < out.Batch(); v++ {
		src, dst := in[0].Voice(v), out.Voice(v)
		for i := range dst {
			dst[i] = g[v] * src[i]
		}
	}
	return []*Signal{out}, nil
}

// badRate declares an audio output but returns a control-rate signal.
type badRate struct {
	Base
	cfg *Config
}

func newBadRate(cfg *Config) (Module, error) {
	return &badRate{Base: Base{Out: []Port{{Name: "out", Rate: Audio}}}, cfg: cfg}, nil
}

func (m *badRate) Forward(Values, []*Signal) ([]*Signal, error) {
	return []*Signal{m.cfg.NewSignal(Control)}, nil
}

func chainPatch() Patch {
	return PatchFunc(func(ev *Eval) (*Signal, error) {
		ctl, err := ev.Call1("src")
		if err != nil {
			return nil, err
		}
		audio, err := ev.Call1("up", ctl)
		if err != nil {
			return nil, err
		}
		return ev.Call1("gain", audio)
	})
}

func mustConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()
	cfg, err := NewConfig(opts...)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return cfg
}

func smallConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()
	base := []Option{
		WithBatchSize(8),
		WithSampleRate(8000),
		WithControlRate(100),
		WithBufferSeconds(0.1),
	}
	return mustConfig(t, append(base, opts...)...)
}

func newChainSynth(t *testing.T, cfg *Config) *Synth {
	t.Helper()
	s, err := New(cfg, chainPatch())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.AddModules(
		Registration{Name: "src", New: newLevelSource},
		Registration{Name: "up", New: NewUpsampler(InterpLinear)},
		Registration{Name: "gain", New: newGain},
	)
	if err != nil {
		t.Fatalf("AddModules: %v", err)
	}
	return s
}
