package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/render"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

func main() {
	referencePath := flag.String("reference", "reference/target.wav", "Reference WAV path")
	presetPath := flag.String("preset", "", "Base preset JSON path (optional)")
	outputPreset := flag.String("output-preset", "out/fit/fitted.json", "Path to write the fitted preset JSON")
	reportPath := flag.String("report", "", "Optional report JSON path (default: <output-preset>.report.json)")
	outputWAV := flag.String("output-wav", "", "Optional path to write the best render as WAV")
	optimize := flag.String("optimize", "all", "Comma-separated modules or module.param keys to optimize")
	sampleRate := flag.Int("sample-rate", 0, "Final render/analysis sample rate (0 keeps the preset value)")
	optSampleRate := flag.Int("opt-sample-rate", 0, "Optimization-loop sample rate (0 uses the final rate)")
	controlRate := flag.Int("control-rate", 0, "Control rate override (must divide both sample rates)")
	seconds := flag.Float64("seconds", 0, "Render duration override in seconds")
	seed := flag.Int64("seed", 1, "Random seed")
	timeBudget := flag.Float64("time-budget", 60.0, "Optimization time budget in seconds")
	maxEvals := flag.Int("max-evals", 5000, "Maximum objective evaluations")
	reportEvery := flag.Int("report-every", 50, "Print progress every N evaluations")
	checkpoint := flag.Bool("checkpoint", true, "Rewrite preset and report on every improvement")
	refineTopK := flag.Int("refine-top-k", 3, "After optimization, re-evaluate best N candidates at final settings")
	topK := flag.Int("top-k", 5, "How many top candidates to keep in report")
	resume := flag.Bool("resume", true, "Resume from previous best_knobs report when available")
	resumeReport := flag.String("resume-report", "", "Optional report JSON path to resume from (default: current report path)")
	workers := flag.String("workers", "1", "Parallel optimization workers running independent Mayfly rounds (number or 'auto')")

	mayflyVariant := flag.String("mayfly-variant", "desma", "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	mayflyPop := flag.Int("mayfly-pop", 10, "Male and female population size per Mayfly run")
	mayflyRoundEvals := flag.Int("mayfly-round-evals", 240, "Target eval budget per Mayfly round")
	flag.Parse()

	filter, err := parseOptimizeFilter(*optimize)
	if err != nil {
		die("invalid --optimize: %v", err)
	}
	if *outputPreset == "" {
		die("output-preset must not be empty")
	}
	if *maxEvals < 1 {
		die("max-evals must be >= 1")
	}
	if *timeBudget <= 0 {
		die("time-budget must be > 0")
	}
	if *mayflyPop < 1 {
		die("mayfly-pop must be >= 1")
	}
	if *topK < 1 {
		*topK = 1
	}
	if *refineTopK < 1 {
		*refineTopK = 1
	}
	if *refineTopK > *topK {
		*refineTopK = *topK
	}
	parsedWorkers, err := render.ParseWorkers(*workers)
	if err != nil {
		die("invalid workers value: %v", err)
	}

	base := &preset.File{}
	if *presetPath != "" {
		base, err = preset.LoadJSON(*presetPath)
		if err != nil {
			die("failed to load preset: %v", err)
		}
	}

	finalSynth, err := buildFitSynth(base, *sampleRate, *controlRate, *seconds)
	if err != nil {
		die("failed to build synth: %v", err)
	}
	optSynth := finalSynth
	if *optSampleRate > 0 && *optSampleRate != finalSynth.Config().SampleRate() {
		optSynth, err = buildFitSynth(base, *optSampleRate, *controlRate, *seconds)
		if err != nil {
			die("failed to build optimization synth: %v", err)
		}
	}

	defs, initCand, err := initCandidate(optSynth, filter)
	if err != nil {
		die("failed to collect knobs: %v", err)
	}
	if optSynth != finalSynth {
		if _, _, err := initCandidate(finalSynth, filter); err != nil {
			die("failed to collect knobs: %v", err)
		}
	}

	optEval, err := loadEvalSettings(optSynth, *referencePath)
	if err != nil {
		die("failed to prepare optimization reference: %v", err)
	}
	finalEval := optEval
	if optSynth != finalSynth {
		finalEval, err = loadEvalSettings(finalSynth, *referencePath)
		if err != nil {
			die("failed to prepare final reference: %v", err)
		}
	}

	outputs := fitOutputs{
		base:          base,
		outputPreset:  *outputPreset,
		reportPath:    *reportPath,
		outputWAV:     *outputWAV,
		referencePath: *referencePath,
		presetPath:    *presetPath,
		sampleRate:    finalSynth.Config().SampleRate(),
		variant:       strings.ToLower(*mayflyVariant),
		defs:          defs,
	}

	if *resume {
		resumePath := *resumeReport
		if resumePath == "" {
			resumePath = outputs.report()
		}
		if resumed, ok, err := loadCandidateFromReport(resumePath, defs, initCand); err != nil {
			fmt.Fprintf(os.Stderr, "resume skipped (%s): %v\n", resumePath, err)
		} else if ok {
			initCand = resumed
			fmt.Printf("Resumed candidate from %s\n", resumePath)
		}
	}

	fmt.Printf("Fitting %d knobs against %s (%s)\n", len(defs), *referencePath, finalSynth.Config())

	cfg := &optimizationConfig{
		opt:              optEval,
		final:            finalEval,
		defs:             defs,
		initCandidate:    initCand,
		seed:             *seed,
		timeBudget:       *timeBudget,
		maxEvals:         *maxEvals,
		reportEvery:      *reportEvery,
		refineTopK:       *refineTopK,
		mayflyVariant:    *mayflyVariant,
		mayflyPop:        *mayflyPop,
		mayflyRoundEvals: *mayflyRoundEvals,
		workers:          parsedWorkers,
		topK:             *topK,
	}
	if *checkpoint {
		cfg.checkpoint = func(best candidate, m analysis.Metrics, evals int, top []topCandidate) {
			if err := outputs.write(best, m, 0, evals, top, nil); err != nil {
				fmt.Fprintf(os.Stderr, "checkpoint write failed: %v\n", err)
			}
		}
	}

	result, err := runOptimization(cfg)
	if err != nil {
		die("optimization failed: %v", err)
	}

	if err := outputs.write(result.best, result.bestMetrics, result.elapsed, result.evals, result.top, result.bestMono); err != nil {
		die("failed to write outputs: %v", err)
	}

	fmt.Printf("Done evals=%d elapsed=%.1fs best_score=%.4f best_similarity=%.2f%% variant=%s\n", result.evals, result.elapsed, result.bestMetrics.Score, result.bestMetrics.Similarity*100.0, outputs.variant)
}

// buildFitSynth builds a single-voice synth from base. Per-voice overrides
// other than voice 0 do not apply to the fitted voice and are dropped.
func buildFitSynth(base *preset.File, sampleRate, controlRate int, seconds float64) (*synth.Synth, error) {
	f := *base
	if v0, ok := base.PerVoice["0"]; ok {
		f.PerVoice = map[string]map[string]float64{"0": v0}
	} else {
		f.PerVoice = nil
	}
	opts := []synth.Option{synth.WithBatchSize(1), synth.WithReproducible(false)}
	if sampleRate > 0 {
		opts = append(opts, synth.WithSampleRate(sampleRate))
	}
	if controlRate > 0 {
		opts = append(opts, synth.WithControlRate(controlRate))
	}
	if seconds > 0 {
		opts = append(opts, synth.WithBufferSeconds(seconds))
	}
	return preset.Build(&f, opts...)
}

func loadEvalSettings(s *synth.Synth, referencePath string) (evalSettings, error) {
	cfg := s.Config()
	ref, err := render.LoadReference(referencePath, cfg.SampleRate(), cfg.AudioLength())
	if err != nil {
		return evalSettings{}, err
	}
	return newEvalSettings(s, ref)
}

func loadCandidateFromReport(path string, defs []knobDef, fallback candidate) (candidate, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, false, nil
		}
		return fallback, false, err
	}

	var rep struct {
		BestKnobs map[string]float64 `json:"best_knobs"`
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return fallback, false, err
	}
	if len(rep.BestKnobs) == 0 {
		return fallback, false, nil
	}

	out := cloneCandidate(fallback)
	applied := 0
	for i, d := range defs {
		if v, ok := rep.BestKnobs[d.Name]; ok {
			out.Vals[i] = clamp(v, d.Range.Min, d.Range.Max)
			applied++
		}
	}
	if applied == 0 {
		return fallback, false, nil
	}
	return out, true, nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
