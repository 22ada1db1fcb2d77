package modules

import (
	"math"
	"strings"
	"testing"

	"github.com/cwbudde/algo-synth/synth"
)

func testConfig(t *testing.T, opts ...synth.Option) *synth.Config {
	t.Helper()
	base := []synth.Option{
		synth.WithBatchSize(4),
		synth.WithSampleRate(8000),
		synth.WithControlRate(100),
		synth.WithBufferSeconds(1),
	}
	cfg, err := synth.NewConfig(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return cfg
}

// run registers regs, freezes the "module.param" values in freeze and
// evaluates body as the patch for batch 0.
func run(t *testing.T, cfg *synth.Config, regs []synth.Registration, freeze map[string]float64, body synth.PatchFunc) *synth.Signal {
	t.Helper()
	s, err := synth.New(cfg, body)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.AddModules(regs...); err != nil {
		t.Fatalf("AddModules: %v", err)
	}
	for key, v := range freeze {
		i := strings.LastIndexByte(key, '.')
		p, err := s.Parameter(key[:i], key[i+1:])
		if err != nil {
			t.Fatalf("Parameter %s: %v", key, err)
		}
		if err := p.Fill(v); err != nil {
			t.Fatalf("Fill %s: %v", key, err)
		}
	}
	out, err := s.Evaluate(0)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return out
}

func constant(cfg *synth.Config, x float64) *synth.Signal {
	s := cfg.NewSignal(synth.Audio)
	d := s.Data()
	for i := range d {
		d[i] = x
	}
	return s
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(len(x)))
}
