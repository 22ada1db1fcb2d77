package synth

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestAddModulesRejectsDuplicates(t *testing.T) {
	cfg := smallConfig(t)
	s := newChainSynth(t, cfg)

	err := s.AddModules(Registration{Name: "gain", New: newGain})
	if !errors.Is(err, ErrDuplicateModule) {
		t.Fatalf("expected ErrDuplicateModule, got %v", err)
	}

	err = s.AddModules(
		Registration{Name: "g2", New: newGain},
		Registration{Name: "g2", New: newGain},
	)
	if !errors.Is(err, ErrDuplicateModule) {
		t.Fatalf("expected ErrDuplicateModule within one call, got %v", err)
	}
	if len(s.Names()) != 3 {
		t.Fatalf("failed registration must not add modules: %v", s.Names())
	}
}

func TestAddModulesIsAllOrNothing(t *testing.T) {
	cfg := smallConfig(t)
	s, _ := New(cfg, chainPatch())
	failing := func(*Config) (Module, error) { return nil, errors.New("boom") }
	err := s.AddModules(
		Registration{Name: "src", New: newLevelSource},
		Registration{Name: "bad", New: failing},
	)
	if err == nil {
		t.Fatalf("expected constructor error")
	}
	if len(s.Names()) != 0 {
		t.Fatalf("expected no registered modules, got %v", s.Names())
	}
}

func TestAddModulesRejectsSharedParameter(t *testing.T) {
	cfg := smallConfig(t)
	shared := NewParameter(cfg, "x", Linear(0, 1), 0.5)
	withShared := func(*Config) (Module, error) {
		return &levelSource{
			Base: Base{
				Out:    []Port{{Name: "out", Rate: Control}},
				Params: []*Parameter{shared},
			},
			cfg: cfg,
		}, nil
	}

	s, _ := New(cfg, chainPatch())
	err := s.AddModules(
		Registration{Name: "a", New: withShared},
		Registration{Name: "b", New: withShared},
	)
	if !errors.Is(err, ErrSharedParameter) {
		t.Fatalf("expected ErrSharedParameter within one call, got %v", err)
	}
	if len(s.Names()) != 0 || shared.ID().Module != "" {
		t.Fatalf("failed registration must not bind: names=%v id=%v", s.Names(), shared.ID())
	}

	if err := s.AddModules(Registration{Name: "a", New: withShared}); err != nil {
		t.Fatalf("AddModules: %v", err)
	}
	err = s.AddModules(Registration{Name: "b", New: withShared})
	if !errors.Is(err, ErrSharedParameter) {
		t.Fatalf("expected ErrSharedParameter against earlier module, got %v", err)
	}
	if shared.ID() != (ParamID{Module: "a", Name: "x"}) {
		t.Fatalf("owner changed: %v", shared.ID())
	}
}

func TestRegistrationOrderAndParameterBinding(t *testing.T) {
	s := newChainSynth(t, smallConfig(t))
	names := s.Names()
	want := []string{"src", "up", "gain"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order mismatch: got=%v want=%v", names, want)
		}
	}
	p, err := s.Parameter("gain", "gain")
	if err != nil {
		t.Fatalf("Parameter: %v", err)
	}
	if p.ID() != (ParamID{Module: "gain", Name: "gain"}) {
		t.Fatalf("parameter not bound: %v", p.ID())
	}
	if _, err := s.Parameter("gain", "nope"); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
	if _, err := s.Module("nope"); !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
	if len(s.Parameters()) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(s.Parameters()))
	}
}

func TestEvaluateEmptyGraph(t *testing.T) {
	s, _ := New(smallConfig(t), chainPatch())
	if _, err := s.Evaluate(0); !errors.Is(err, ErrGraphEmpty) {
		t.Fatalf("expected ErrGraphEmpty, got %v", err)
	}
}

func TestEvaluateWithoutPatch(t *testing.T) {
	s, _ := New(smallConfig(t), nil)
	_ = s.AddModules(Registration{Name: "src", New: newLevelSource})
	if _, err := s.Evaluate(0); !errors.Is(err, ErrNoPatch) {
		t.Fatalf("expected ErrNoPatch, got %v", err)
	}
}

func TestPatchReferencingUnknownModule(t *testing.T) {
	s, _ := New(smallConfig(t), PatchFunc(func(ev *Eval) (*Signal, error) {
		return ev.Call1("missing")
	}))
	_ = s.AddModules(Registration{Name: "src", New: newLevelSource})
	if _, err := s.Evaluate(0); !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
}

func TestControlIntoAudioInputIsRateError(t *testing.T) {
	s, _ := New(smallConfig(t), PatchFunc(func(ev *Eval) (*Signal, error) {
		ctl, err := ev.Call1("src")
		if err != nil {
			return nil, err
		}
		return ev.Call1("gain", ctl)
	}))
	_ = s.AddModules(
		Registration{Name: "src", New: newLevelSource},
		Registration{Name: "gain", New: newGain},
	)
	if _, err := s.Evaluate(0); !errors.Is(err, ErrRate) {
		t.Fatalf("expected ErrRate, got %v", err)
	}
}

func TestCallChecksArityAndBatch(t *testing.T) {
	cfg := smallConfig(t)
	var callErr, batchErr error
	s, _ := New(cfg, PatchFunc(func(ev *Eval) (*Signal, error) {
		_, callErr = ev.Call("gain")
		_, batchErr = ev.Call("gain", NewSignal(Audio, 2, cfg.AudioLength()))
		return nil, errors.New("stop")
	}))
	_ = s.AddModules(Registration{Name: "gain", New: newGain})
	_, _ = s.Evaluate(0)
	if !errors.Is(callErr, ErrShape) {
		t.Fatalf("expected ErrShape for arity, got %v", callErr)
	}
	if !errors.Is(batchErr, ErrShape) {
		t.Fatalf("expected ErrShape for batch, got %v", batchErr)
	}
}

func TestModuleOutputRateIsChecked(t *testing.T) {
	s, _ := New(smallConfig(t), PatchFunc(func(ev *Eval) (*Signal, error) {
		return ev.Call1("bad")
	}))
	_ = s.AddModules(Registration{Name: "bad", New: newBadRate})
	if _, err := s.Evaluate(0); !errors.Is(err, ErrRate) {
		t.Fatalf("expected ErrRate, got %v", err)
	}
}

func TestFinalOutputMustBeAudio(t *testing.T) {
	s, _ := New(smallConfig(t), PatchFunc(func(ev *Eval) (*Signal, error) {
		return ev.Call1("src")
	}))
	_ = s.AddModules(Registration{Name: "src", New: newLevelSource})
	if _, err := s.Evaluate(0); !errors.Is(err, ErrRate) {
		t.Fatalf("expected ErrRate, got %v", err)
	}
}

func TestEvaluateIsDeterministicAcrossSynths(t *testing.T) {
	for _, batchID := range []uint64{0, 1, 17, 1 << 40} {
		a, err := newChainSynth(t, smallConfig(t)).Evaluate(batchID)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		b, err := newChainSynth(t, smallConfig(t)).Evaluate(batchID)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if !a.Equal(b) {
			t.Fatalf("batch %d: outputs differ between identical synths", batchID)
		}
	}
}

func TestDifferentBatchesDiffer(t *testing.T) {
	s := newChainSynth(t, smallConfig(t))
	a, _ := s.Evaluate(0)
	b, _ := s.Evaluate(1)
	if a.Equal(b) {
		t.Fatalf("batch 0 and 1 should differ")
	}
}

func TestRandomizeRejectsOverflowingBatchID(t *testing.T) {
	cfg := smallConfig(t)
	s := newChainSynth(t, cfg)
	limit := MaxBatchID(cfg.BatchSize())
	if _, err := s.Randomize(limit); err != nil {
		t.Fatalf("Randomize(%d): %v", limit, err)
	}
	if got := GlobalVoiceID(limit, cfg.BatchSize(), cfg.BatchSize()-1); got < GlobalVoiceID(limit, cfg.BatchSize(), 0) {
		t.Fatalf("last voice of batch %d wrapped: %d", limit, got)
	}
	for _, id := range []uint64{limit + 1, math.MaxUint64} {
		if _, err := s.Evaluate(id); !errors.Is(err, ErrConfig) {
			t.Fatalf("Evaluate(%d): expected ErrConfig, got %v", id, err)
		}
	}

	big := newChainSynth(t, smallConfig(t, WithBatchSize(128)))
	if _, err := big.Evaluate(1 << 57); !errors.Is(err, ErrConfig) {
		t.Fatalf("batch 1<<57 at size 128 must be rejected, got %v", err)
	}
}

func TestBatchIndependence(t *testing.T) {
	s := newChainSynth(t, smallConfig(t))
	snap, err := s.Randomize(3)
	if err != nil {
		t.Fatalf("Randomize: %v", err)
	}
	base, err := s.EvaluateSnapshot(snap)
	if err != nil {
		t.Fatalf("EvaluateSnapshot: %v", err)
	}

	const j = 5
	mod := snap.Clone()
	id := ParamID{Module: "src", Name: "level"}
	vals, _ := mod.Normalized(id)
	vals[j] = 1 - vals[j]
	if err := mod.Set(id, vals); err != nil {
		t.Fatalf("Set: %v", err)
	}
	changed, err := s.EvaluateSnapshot(mod)
	if err != nil {
		t.Fatalf("EvaluateSnapshot: %v", err)
	}
	for v := 0; v < base.Batch(); v++ {
		same := base.VoiceEqual(changed, v)
		if v == j && same {
			t.Fatalf("voice %d should change", v)
		}
		if v != j && !same {
			t.Fatalf("voice %d changed when only voice %d was modified", v, j)
		}
	}
}

func TestFrozenParameterSurvivesRandomization(t *testing.T) {
	s := newChainSynth(t, smallConfig(t))
	p, _ := s.Parameter("gain", "gain")
	if err := p.Fill(0.5); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	for _, batchID := range []uint64{0, 9} {
		snap, _ := s.Randomize(batchID)
		vals, ok := snap.Human(p.ID())
		if !ok {
			t.Fatalf("missing parameter in snapshot")
		}
		for v, h := range vals {
			if math.Abs(h-0.5) > 1e-12 {
				t.Fatalf("voice %d: frozen value changed: %v", v, h)
			}
		}
		if !snap.Frozen(p.ID()) {
			t.Fatalf("snapshot should report frozen")
		}
	}
	snap, _ := s.Randomize(0)
	level, _ := snap.Normalized(ParamID{Module: "src", Name: "level"})
	if level[0] == level[1] && level[1] == level[2] {
		t.Fatalf("unfrozen parameter should vary across voices: %v", level)
	}
}

func TestRandomizeDoesNotMutateParameters(t *testing.T) {
	s := newChainSynth(t, smallConfig(t))
	p, _ := s.Parameter("src", "level")
	before := p.Normalized()
	if _, err := s.Evaluate(4); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	after := p.Normalized()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("evaluation mutated stored parameter values")
		}
	}
}

func TestConcurrentEvaluate(t *testing.T) {
	s := newChainSynth(t, smallConfig(t))
	want := make([]*Signal, 4)
	for i := range want {
		want[i], _ = s.Evaluate(uint64(i))
	}
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := w % len(want)
			got, err := s.Evaluate(uint64(id))
			if err != nil {
				errs <- err
				return
			}
			if !got.Equal(want[id]) {
				errs <- errors.New("concurrent render differs")
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent evaluate: %v", err)
	}
}

func TestFloat32Precision(t *testing.T) {
	s := newChainSynth(t, smallConfig(t, WithPrecision(Float32)))
	out, err := s.Evaluate(2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, x := range out.Data() {
		if float64(float32(x)) != x {
			t.Fatalf("sample %v not representable in float32", x)
		}
	}
}

func TestRenderReturnsSnapshot(t *testing.T) {
	s := newChainSynth(t, smallConfig(t))
	out, snap, err := s.Render(7)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	again, err := s.EvaluateSnapshot(snap)
	if err != nil {
		t.Fatalf("EvaluateSnapshot: %v", err)
	}
	if !out.Equal(again) {
		t.Fatalf("re-evaluating the snapshot must reproduce the render")
	}
	if snap.BatchID() != 7 || len(snap.IDs()) != 2 {
		t.Fatalf("unexpected snapshot: batch=%d ids=%v", snap.BatchID(), snap.IDs())
	}
	if len(snap.Voice(0)) != 2 {
		t.Fatalf("expected 2 values per voice, got %v", snap.Voice(0))
	}
}

func TestNonReproducibleStillRenders(t *testing.T) {
	s := newChainSynth(t, smallConfig(t, WithReproducible(false), WithBatchSize(3)))
	out, err := s.Evaluate(0)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Batch() != 3 {
		t.Fatalf("batch mismatch: %d", out.Batch())
	}
}
