package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cwbudde/algo-synth/internal/render"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

func main() {
	presetPath := flag.String("preset", "", "Preset JSON file path (optional)")
	batches := flag.Int("batches", 1, "Number of batches to render")
	firstBatch := flag.Uint64("first-batch", 0, "Batch id of the first rendered batch")
	workers := flag.String("workers", "auto", "Parallel render workers (number or 'auto')")
	outputDir := flag.String("output-dir", "out/render", "Directory for per-voice WAV files")
	noWAV := flag.Bool("no-wav", false, "Skip writing WAV files, only record parameters and stats")
	peak := flag.Float64("normalize", 0, "Normalize each WAV to this peak level (0 keeps the raw level)")
	storeKind := flag.String("store", "memory", "Record store backend: memory|sqlite")
	dbPath := flag.String("db", "", "SQLite database path (defaults to <output-dir>/dataset.db)")
	manifestPath := flag.String("manifest", "", "Manifest JSON path (defaults to <output-dir>/manifest.json)")
	batchSize := flag.Int("batch-size", 0, "Override the batch size (0 keeps the preset value)")
	sampleRate := flag.Int("sample-rate", 0, "Override the audio sample rate in Hz")
	controlRate := flag.Int("control-rate", 0, "Override the control rate in Hz")
	seconds := flag.Float64("seconds", 0, "Override the buffer duration in seconds")
	flag.Parse()

	if *batches < 1 {
		die("batches must be >= 1")
	}
	if *peak < 0 || *peak > 1 {
		die("normalize must be in [0,1]")
	}
	parsedWorkers, err := render.ParseWorkers(*workers)
	if err != nil {
		die("invalid workers value: %v", err)
	}

	f := &preset.File{}
	if *presetPath != "" {
		f, err = preset.LoadJSON(*presetPath)
		if err != nil {
			die("failed to load preset %q: %v", *presetPath, err)
		}
	}
	overrides := overrideOptions(*batchSize, *sampleRate, *controlRate, *seconds)
	s, err := preset.Build(f, overrides...)
	if err != nil {
		die("failed to build synth: %v", err)
	}

	job := renderJob{
		synth:      s,
		firstBatch: *firstBatch,
		batches:    *batches,
		workers:    parsedWorkers,
		peak:       *peak,
		storeKind:  *storeKind,
		dbPath:     *dbPath,
		manifest:   *manifestPath,
	}
	if !*noWAV {
		job.outputDir = *outputDir
	}
	if job.manifest == "" {
		job.manifest = defaultPath(*outputDir, "manifest.json")
	}
	if job.storeKind == "sqlite" && job.dbPath == "" {
		job.dbPath = defaultPath(*outputDir, "dataset.db")
	}

	cfg := s.Config()
	fmt.Printf("Rendering %d batches from id %d (%s, workers=%d)...\n", *batches, *firstBatch, cfg, parsedWorkers)

	sum, err := job.run(context.Background())
	if err != nil {
		die("render failed: %v", err)
	}

	fmt.Printf("Done voices=%d elapsed=%.2fs voices/s=%.1f realtime=%.1fx silent=%d clipped=%d\n",
		sum.voices, sum.elapsed, sum.voicesPerSecond(), sum.realtimeFactor(cfg.BufferSeconds()), sum.silent, sum.clipped)
	fmt.Printf("Run %s manifest=%s\n", sum.run.ID, job.manifest)
}

func overrideOptions(batchSize, sampleRate, controlRate int, seconds float64) []synth.Option {
	var opts []synth.Option
	if batchSize > 0 {
		opts = append(opts, synth.WithBatchSize(batchSize))
	}
	if sampleRate > 0 {
		opts = append(opts, synth.WithSampleRate(sampleRate))
	}
	if controlRate > 0 {
		opts = append(opts, synth.WithControlRate(controlRate))
	}
	if seconds > 0 {
		opts = append(opts, synth.WithBufferSeconds(seconds))
	}
	return opts
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
