package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

func fitSynth(t *testing.T, base *preset.File) *synth.Synth {
	t.Helper()
	if base == nil {
		base = &preset.File{}
	}
	s, err := buildFitSynth(base, 8000, 100, 0.5)
	if err != nil {
		t.Fatalf("build fit synth: %v", err)
	}
	return s
}

func TestParseOptimizeFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "all", want: nil},
		{in: "vco", want: []string{"vco"}},
		{in: " vco , adsr.attack ", want: []string{"vco", "adsr.attack"}},
		{in: ".attack", wantErr: true},
		{in: "adsr.", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseOptimizeFilter(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseOptimizeFilter(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseOptimizeFilter(%q) unexpected error: %v", tt.in, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("parseOptimizeFilter(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for _, k := range tt.want {
			if !got[k] {
				t.Fatalf("parseOptimizeFilter(%q) missing %q", tt.in, k)
			}
		}
	}
}

func TestInitCandidateSelectsAndFreezes(t *testing.T) {
	base := &preset.File{Frozen: map[string]float64{"vco.shape": 1}}
	s := fitSynth(t, base)
	defs, cand, err := initCandidate(s, map[string]bool{"vco": true, "adsr.sustain": true})
	if err != nil {
		t.Fatalf("initCandidate: %v", err)
	}
	want := []string{"adsr.sustain", "vco.tuning", "vco.mod_depth", "vco.initial_phase"}
	if len(defs) != len(want) {
		t.Fatalf("knobs got=%d want=%d (%v)", len(defs), len(want), defs)
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Fatalf("knob %d got=%s want=%s", i, defs[i].Name, name)
		}
	}
	if cand.Vals[0] != 0.5 {
		t.Fatalf("adsr.sustain start got=%v want=0.5", cand.Vals[0])
	}

	p, err := s.Parameter("keyboard", "midi_f0")
	if err != nil {
		t.Fatalf("parameter: %v", err)
	}
	if !p.Frozen() {
		t.Fatalf("keyboard.midi_f0 should be frozen outside the filter")
	}
	if got := p.Get()[0]; math.Abs(got-48) > 1e-9 {
		t.Fatalf("keyboard.midi_f0 got=%v want=48", got)
	}
}

func TestInitCandidateRejectsUnknownFilter(t *testing.T) {
	if _, _, err := initCandidate(fitSynth(t, nil), map[string]bool{"theremin": true}); err == nil {
		t.Fatal("expected error for filter matching nothing")
	}
}

func TestFromNormalizedFollowsRangeCurve(t *testing.T) {
	defs := []knobDef{
		{Name: "adsr.attack", Range: synth.Range{Min: 0, Max: 2, Curve: 0.5}},
		{Name: "keyboard.midi_f0", Range: synth.Linear(0, 127)},
	}
	got := fromNormalized([]float64{0.25, 1.5}, defs)
	if math.Abs(got.Vals[0]-1.0) > 1e-12 {
		t.Fatalf("attack got=%v want=1", got.Vals[0])
	}
	if got.Vals[1] != 127 {
		t.Fatalf("midi_f0 got=%v want=127 (clamped)", got.Vals[1])
	}
	if short := fromNormalized(nil, defs); short.Vals[1] != 0 {
		t.Fatalf("missing position got=%v want=0", short.Vals[1])
	}
}

func TestEvaluateCandidateScoresItsOwnRenderBest(t *testing.T) {
	s := fitSynth(t, nil)
	defs, cand, err := initCandidate(s, map[string]bool{"keyboard.midi_f0": true})
	if err != nil {
		t.Fatalf("initCandidate: %v", err)
	}
	settings, err := newEvalSettings(s, nil)
	if err != nil {
		t.Fatalf("newEvalSettings: %v", err)
	}
	own, err := evaluateCandidate(settings, defs, cand)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	settings.reference = own.mono

	same, err := evaluateCandidate(settings, defs, cand)
	if err != nil {
		t.Fatalf("evaluate same: %v", err)
	}
	other, err := evaluateCandidate(settings, defs, candidate{Vals: []float64{84}})
	if err != nil {
		t.Fatalf("evaluate other: %v", err)
	}
	if same.metrics.Score > 0.05 {
		t.Fatalf("own render score got=%v want <= 0.05", same.metrics.Score)
	}
	if other.metrics.Score <= same.metrics.Score {
		t.Fatalf("detuned score %v should exceed own score %v", other.metrics.Score, same.metrics.Score)
	}
}

func TestRunOptimizationRespectsBudget(t *testing.T) {
	s := fitSynth(t, nil)
	defs, cand, err := initCandidate(s, map[string]bool{"keyboard.midi_f0": true, "vco.tuning": true})
	if err != nil {
		t.Fatalf("initCandidate: %v", err)
	}
	settings, err := newEvalSettings(s, nil)
	if err != nil {
		t.Fatalf("newEvalSettings: %v", err)
	}
	target, err := evaluateCandidate(settings, defs, candidate{Vals: []float64{60, 0}})
	if err != nil {
		t.Fatalf("render target: %v", err)
	}
	settings.reference = target.mono

	initial, err := evaluateCandidate(settings, defs, cand)
	if err != nil {
		t.Fatalf("initial eval: %v", err)
	}

	checkpoints := 0
	cfg := &optimizationConfig{
		opt:              settings,
		final:            settings,
		defs:             defs,
		initCandidate:    cand,
		seed:             3,
		timeBudget:       60,
		maxEvals:         40,
		refineTopK:       2,
		mayflyVariant:    "ma",
		mayflyPop:        4,
		mayflyRoundEvals: 40,
		workers:          2,
		topK:             3,
		checkpoint: func(candidate, analysis.Metrics, int, []topCandidate) {
			checkpoints++
		},
	}
	res, err := runOptimization(cfg)
	if err != nil {
		t.Fatalf("runOptimization: %v", err)
	}
	if res.evals > cfg.maxEvals {
		t.Fatalf("evals got=%d want <= %d", res.evals, cfg.maxEvals)
	}
	if res.bestMetrics.Score > initial.metrics.Score+1e-9 {
		t.Fatalf("best score %v worse than start %v", res.bestMetrics.Score, initial.metrics.Score)
	}
	if len(res.top) == 0 || len(res.top) > cfg.topK {
		t.Fatalf("top candidates got=%d want 1..%d", len(res.top), cfg.topK)
	}
	if len(res.bestMono) != s.Config().AudioLength() {
		t.Fatalf("best render length got=%d want=%d", len(res.bestMono), s.Config().AudioLength())
	}
	for i, d := range defs {
		if !d.Range.Contains(res.best.Vals[i]) {
			t.Fatalf("%s=%v outside range", d.Name, res.best.Vals[i])
		}
	}
	if checkpoints == 0 && res.bestMetrics.Score < initial.metrics.Score-1e-9 {
		t.Fatal("improvement without checkpoint")
	}
}

func TestBuildFitSynthKeepsOnlyFirstVoiceOverrides(t *testing.T) {
	base := &preset.File{PerVoice: map[string]map[string]float64{
		"0": {"adsr.sustain": 0.3},
		"3": {"vco.tuning": 5},
	}}
	s := fitSynth(t, base)
	if s.Config().BatchSize() != 1 || s.Config().Reproducible() {
		t.Fatalf("fit synth config got=%s", s.Config())
	}
	sustain, err := s.Parameter("adsr", "sustain")
	if err != nil {
		t.Fatalf("parameter: %v", err)
	}
	if got := sustain.Get()[0]; !sustain.Frozen() || math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("adsr.sustain got=%v frozen=%v want 0.3 frozen", got, sustain.Frozen())
	}
	p, err := s.Parameter("keyboard", "midi_f0")
	if err != nil {
		t.Fatalf("parameter: %v", err)
	}
	if p.Frozen() {
		t.Fatal("unrelated parameter should stay free")
	}
	if len(base.PerVoice) != 2 {
		t.Fatalf("base preset mutated: %v", base.PerVoice)
	}
}

func TestLoadCandidateFromReportBestKnobs(t *testing.T) {
	tmp := t.TempDir()
	reportPath := filepath.Join(tmp, "rep.json")
	if err := os.WriteFile(reportPath, []byte(`{"best_knobs":{"keyboard.midi_f0":64,"vco.tuning":30}}`), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}

	defs := []knobDef{
		{Name: "keyboard.midi_f0", Range: synth.Linear(0, 127)},
		{Name: "vco.tuning", Range: synth.Linear(-24, 24)},
		{Name: "adsr.sustain", Range: synth.Linear(0, 1)},
	}
	fallback := candidate{Vals: []float64{48, 0, 0.5}}

	got, ok, err := loadCandidateFromReport(reportPath, defs, fallback)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if !ok {
		t.Fatal("expected resume candidate")
	}
	if got.Vals[0] != 64 {
		t.Fatalf("midi_f0 = %v, want 64", got.Vals[0])
	}
	if got.Vals[1] != 24 {
		t.Fatalf("tuning = %v, want 24 (clamped from 30)", got.Vals[1])
	}
	if got.Vals[2] != 0.5 {
		t.Fatalf("sustain = %v, want fallback 0.5", got.Vals[2])
	}
	if fallback.Vals[0] != 48 {
		t.Fatal("fallback mutated")
	}
}

func TestLoadCandidateFromReportMissingFile(t *testing.T) {
	defs := []knobDef{{Name: "x.y", Range: synth.Linear(0, 1)}}
	fallback := candidate{Vals: []float64{0.5}}

	_, ok, err := loadCandidateFromReport("/nonexistent/path.json", defs, fallback)
	if err != nil {
		t.Fatalf("unexpected error for missing file: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing file")
	}
}

func TestFitOutputsWriteLoadablePreset(t *testing.T) {
	tmp := t.TempDir()
	wiringPath := filepath.Join(tmp, "wiring", "chain.json")
	base := &preset.File{
		WiringPath: wiringPath,
		Frozen:     map[string]float64{"vco.shape": 1},
	}
	defs := []knobDef{
		{Name: "keyboard.midi_f0", ID: synth.ParamID{Module: "keyboard", Name: "midi_f0"}, Range: synth.Linear(0, 127)},
	}
	out := fitOutputs{
		base:         base,
		outputPreset: filepath.Join(tmp, "presets", "fitted.json"),
		outputWAV:    filepath.Join(tmp, "best.wav"),
		sampleRate:   8000,
		variant:      "desma",
		defs:         defs,
	}
	mono := make([]float64, 800)
	for i := range mono {
		mono[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/8000)
	}
	if err := out.write(candidate{Vals: []float64{60}}, analysis.Metrics{Score: 0.2, Similarity: 0.4}, 1.5, 12, nil, mono); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := preset.LoadJSON(out.outputPreset)
	if err != nil {
		t.Fatalf("load fitted preset: %v", err)
	}
	if got.Frozen["keyboard.midi_f0"] != 60 || got.Frozen["vco.shape"] != 1 {
		t.Fatalf("frozen got=%v", got.Frozen)
	}
	if got.WiringPath != wiringPath {
		t.Fatalf("wiring path got=%q want=%q", got.WiringPath, wiringPath)
	}
	if len(base.Frozen) != 1 {
		t.Fatalf("base preset mutated: %v", base.Frozen)
	}
	if _, err := os.Stat(out.outputWAV); err != nil {
		t.Fatalf("best wav missing: %v", err)
	}

	resumed, ok, err := loadCandidateFromReport(out.report(), defs, candidate{Vals: []float64{0}})
	if err != nil || !ok {
		t.Fatalf("resume from written report ok=%v err=%v", ok, err)
	}
	if resumed.Vals[0] != 60 {
		t.Fatalf("resumed midi_f0 got=%v want=60", resumed.Vals[0])
	}
}

func TestPresetRelPath(t *testing.T) {
	presetPath := filepath.Join("presets", "fitted.json")
	target := filepath.Join("wiring", "chain.json")
	want := filepath.ToSlash(filepath.Join("..", "wiring", "chain.json"))
	if got := presetRelPath(presetPath, target); got != want {
		t.Fatalf("presetRelPath() = %q, want %q", got, want)
	}
	if got := presetRelPath(presetPath, " "); got != "" {
		t.Fatalf("presetRelPath() = %q, want empty", got)
	}
}
