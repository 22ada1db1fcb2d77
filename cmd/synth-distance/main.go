package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/render"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

func main() {
	referencePath := flag.String("reference", "reference/target.wav", "Reference WAV path")
	candidatePath := flag.String("candidate", "", "Candidate WAV path; if empty, render candidate from the synth")
	presetPath := flag.String("preset", "", "Preset JSON path for rendered candidate (optional)")
	batchID := flag.Uint64("batch", 0, "Batch id of the rendered candidate")
	voiceIdx := flag.Int("voice", 0, "Voice index inside the rendered batch")
	sampleRate := flag.Int("sample-rate", 0, "Analysis sample rate in Hz (0 uses the candidate rate)")
	writeCandidate := flag.String("write-candidate", "", "Optional path to write rendered candidate WAV")
	jsonOut := flag.Bool("json", false, "Print metrics as JSON")
	flag.Parse()

	var (
		cand   []float64
		candSR int
		err    error
	)
	if *candidatePath != "" {
		cand, candSR, err = render.ReadWAVMono(*candidatePath)
		if err != nil {
			die("failed to read candidate: %v", err)
		}
	} else {
		cand, candSR, err = renderCandidate(*presetPath, *batchID, *voiceIdx)
		if err != nil {
			die("failed to render candidate: %v", err)
		}
		if *writeCandidate != "" {
			if err := render.WriteMonoWAV(*writeCandidate, cand, candSR, 0); err != nil {
				die("failed to write candidate wav: %v", err)
			}
		}
	}

	sr := *sampleRate
	if sr <= 0 {
		sr = candSR
	}
	cand, err = render.ResampleIfNeeded(cand, candSR, sr)
	if err != nil {
		die("failed to resample candidate: %v", err)
	}
	ref, refSR, err := render.ReadWAVMono(*referencePath)
	if err != nil {
		die("failed to read reference: %v", err)
	}
	ref, err = render.ResampleIfNeeded(ref, refSR, sr)
	if err != nil {
		die("failed to resample reference: %v", err)
	}

	metrics := analysis.Compare(ref, cand, sr)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		out := struct {
			Metrics   analysis.Metrics `json:"metrics"`
			Reference analysis.Stats   `json:"reference_stats"`
			Candidate analysis.Stats   `json:"candidate_stats"`
		}{metrics, analysis.Measure(ref), analysis.Measure(cand)}
		if err := enc.Encode(out); err != nil {
			die("json encode failed: %v", err)
		}
		return
	}

	fmt.Printf("Reference frames: %d\n", metrics.ReferenceFrames)
	fmt.Printf("Candidate frames: %d\n", metrics.CandidateFrames)
	fmt.Printf("Aligned frames:   %d\n", metrics.AlignedFrames)
	fmt.Printf("Lag:              %d samples (%.3f ms)\n", metrics.LagSamples, 1000.0*float64(metrics.LagSamples)/float64(sr))
	fmt.Println()
	fmt.Printf("Time RMSE:        %.6f\n", metrics.TimeRMSE)
	fmt.Printf("Envelope RMSE:    %.1f dB\n", metrics.EnvelopeRMSEDB)
	fmt.Printf("Spectral RMSE:    %.1f dB\n", metrics.SpectralRMSEDB)
	fmt.Printf("Decay diff:       %.1f dB/s (ref=%.1f cand=%.1f)\n", metrics.DecayDiffDBPerS, metrics.RefDecayDBPerS, metrics.CandDecayDBPerS)
	fmt.Printf("Score:            %.4f  (0 best, 1 worst)\n", metrics.Score)
	fmt.Printf("Similarity:       %.2f%%\n", metrics.Similarity*100.0)
}

// renderCandidate renders batch batchID with the preset at presetPath (the
// engine defaults when empty) and returns one voice.
func renderCandidate(presetPath string, batchID uint64, voiceIdx int) ([]float64, int, error) {
	f := &preset.File{}
	if presetPath != "" {
		var err error
		f, err = preset.LoadJSON(presetPath)
		if err != nil {
			return nil, 0, err
		}
	}
	s, err := preset.Build(f)
	if err != nil {
		return nil, 0, err
	}
	cfg := s.Config()
	if voiceIdx < 0 || voiceIdx >= cfg.BatchSize() {
		return nil, 0, fmt.Errorf("%w: voice %d outside batch of %d", synth.ErrShape, voiceIdx, cfg.BatchSize())
	}
	out, err := s.Evaluate(batchID)
	if err != nil {
		return nil, 0, err
	}
	return append([]float64(nil), out.Voice(voiceIdx)...), cfg.SampleRate(), nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
