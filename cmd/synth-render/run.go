package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/algo-synth/dataset"
	"github.com/cwbudde/algo-synth/internal/render"
	"github.com/cwbudde/algo-synth/synth"
)

type renderJob struct {
	synth      *synth.Synth
	firstBatch uint64
	batches    int
	workers    int
	// outputDir is empty when no audio should be written.
	outputDir string
	peak      float64
	storeKind string
	dbPath    string
	manifest  string
	quiet     bool
}

type renderSummary struct {
	run     dataset.Run
	records []dataset.Record
	voices  int
	silent  int
	clipped int
	elapsed float64
}

func (s renderSummary) voicesPerSecond() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.voices) / s.elapsed
}

// realtimeFactor is rendered audio seconds per wall-clock second.
func (s renderSummary) realtimeFactor(bufferSeconds float64) float64 {
	return s.voicesPerSecond() * bufferSeconds
}

func defaultPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// run renders batches firstBatch..firstBatch+batches-1 on j.workers
// goroutines sharing one synth, stores one record per voice and writes the
// manifest. The first failing batch cancels the rest.
func (j renderJob) run(ctx context.Context) (renderSummary, error) {
	if j.synth == nil {
		return renderSummary{}, fmt.Errorf("nil synth")
	}
	if j.batches < 1 {
		return renderSummary{}, fmt.Errorf("batches must be >= 1")
	}
	workers := j.workers
	if workers < 1 {
		workers = 1
	}
	if workers > j.batches {
		workers = j.batches
	}
	cfg := j.synth.Config()

	if j.outputDir != "" {
		if err := os.MkdirAll(j.outputDir, 0o755); err != nil {
			return renderSummary{}, err
		}
	}
	if j.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(j.dbPath), 0o755); err != nil {
			return renderSummary{}, err
		}
	}

	store, err := dataset.NewStore(j.storeKind, j.dbPath)
	if err != nil {
		return renderSummary{}, err
	}
	defer func() { _ = dataset.CloseIfSupported(store) }()
	if err := store.Init(ctx); err != nil {
		return renderSummary{}, err
	}
	run := dataset.NewRun(cfg)
	if err := store.SaveRun(ctx, run); err != nil {
		return renderSummary{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ids := make(chan uint64)
	go func() {
		defer close(ids)
		for i := 0; i < j.batches; i++ {
			select {
			case ids <- j.firstBatch + uint64(i):
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	var (
		wg       sync.WaitGroup
		saveMu   sync.Mutex
		errOnce  sync.Once
		firstErr error
		done     int
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				records, err := j.renderBatch(id, run.ID)
				if err != nil {
					fail(fmt.Errorf("batch %d: %w", id, err))
					return
				}
				saveMu.Lock()
				err = store.SaveRecords(ctx, records)
				if err == nil {
					done++
					if !j.quiet {
						fmt.Printf("[%d/%d] batch %d voices=%d elapsed=%.2fs\n", done, j.batches, id, len(records), time.Since(start).Seconds())
					}
				}
				saveMu.Unlock()
				if err != nil {
					fail(fmt.Errorf("batch %d: save records: %w", id, err))
					return
				}
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return renderSummary{}, firstErr
	}
	elapsed := time.Since(start).Seconds()

	records, err := store.ListRecords(context.Background(), run.ID)
	if err != nil {
		return renderSummary{}, err
	}
	if j.manifest != "" {
		if err := os.MkdirAll(filepath.Dir(j.manifest), 0o755); err != nil {
			return renderSummary{}, err
		}
		if err := dataset.WriteManifest(j.manifest, run, records); err != nil {
			return renderSummary{}, err
		}
	}

	sum := renderSummary{run: run, records: records, voices: len(records), elapsed: elapsed}
	for _, r := range records {
		if r.Stats.Silent() {
			sum.silent++
		}
		if r.Stats.Clipped > 0 {
			sum.clipped++
		}
	}
	return sum, nil
}

func (j renderJob) renderBatch(id uint64, runID string) ([]dataset.Record, error) {
	out, snap, err := j.synth.Render(id)
	if err != nil {
		return nil, err
	}
	var paths []string
	if j.outputDir != "" {
		paths, err = render.ExportBatch(j.outputDir, id, out, j.synth.Config().SampleRate(), j.peak)
		if err != nil {
			return nil, err
		}
	}
	return dataset.BatchRecords(runID, snap, out, paths)
}
