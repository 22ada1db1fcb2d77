package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/render"
	"github.com/cwbudde/algo-synth/preset"
)

type runReport struct {
	ReferencePath  string             `json:"reference_path"`
	PresetPath     string             `json:"preset_path"`
	OutputPreset   string             `json:"output_preset"`
	OutputWAV      string             `json:"output_wav,omitempty"`
	SampleRate     int                `json:"sample_rate"`
	DurationSec    float64            `json:"elapsed_seconds"`
	Evaluations    int                `json:"evaluations"`
	MayflyVariant  string             `json:"mayfly_variant"`
	BestScore      float64            `json:"best_score"`
	BestSimilarity float64            `json:"best_similarity"`
	BestMetrics    analysis.Metrics   `json:"best_metrics"`
	BestKnobs      map[string]float64 `json:"best_knobs"`
	TopCandidates  []topCandidate     `json:"top_candidates,omitempty"`
}

type fitOutputs struct {
	base          *preset.File
	outputPreset  string
	reportPath    string
	outputWAV     string
	referencePath string
	presetPath    string
	sampleRate    int
	variant       string
	defs          []knobDef
}

// fittedPreset returns a copy of base whose frozen map also holds the
// candidate values. The wiring path is rewritten relative to path.
func fittedPreset(path string, base *preset.File, defs []knobDef, best candidate) *preset.File {
	f := preset.File{}
	if base != nil {
		f = *base
	}
	f.WiringPath = presetRelPath(path, f.WiringPath)
	frozen := make(map[string]float64, len(f.Frozen)+len(defs))
	for k, v := range f.Frozen {
		frozen[k] = v
	}
	for k, v := range best.knobs(defs) {
		frozen[k] = v
	}
	f.Frozen = frozen
	return &f
}

func (o fitOutputs) report() string {
	if o.reportPath == "" {
		return o.outputPreset + ".report.json"
	}
	return o.reportPath
}

// write stores the fitted preset, the report and, when mono is non-empty
// and a WAV path is set, the best render.
func (o fitOutputs) write(best candidate, m analysis.Metrics, elapsed float64, evals int, top []topCandidate, mono []float64) error {
	if err := os.MkdirAll(filepath.Dir(o.outputPreset), 0o755); err != nil {
		return err
	}
	if err := preset.WriteJSON(o.outputPreset, fittedPreset(o.outputPreset, o.base, o.defs, best)); err != nil {
		return err
	}
	if o.outputWAV != "" && len(mono) > 0 {
		if err := os.MkdirAll(filepath.Dir(o.outputWAV), 0o755); err != nil {
			return err
		}
		if err := render.WriteMonoWAV(o.outputWAV, mono, o.sampleRate, 0); err != nil {
			return err
		}
	}

	rep := runReport{
		ReferencePath:  o.referencePath,
		PresetPath:     o.presetPath,
		OutputPreset:   o.outputPreset,
		OutputWAV:      o.outputWAV,
		SampleRate:     o.sampleRate,
		DurationSec:    elapsed,
		Evaluations:    evals,
		MayflyVariant:  o.variant,
		BestScore:      m.Score,
		BestSimilarity: m.Similarity,
		BestMetrics:    m,
		BestKnobs:      best.knobs(o.defs),
		TopCandidates:  top,
	}
	return writeJSON(o.report(), rep)
}

func presetRelPath(presetPath string, target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}

	presetDirAbs, err := filepath.Abs(filepath.Dir(presetPath))
	if err != nil {
		return target
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return target
	}
	rel, err := filepath.Rel(presetDirAbs, targetAbs)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
