// Package dataset records rendered batches: which voice was rendered with
// which parameters, its level statistics and where its audio was written.
package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/synth"
)

// Run describes one dataset generation run.
type Run struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Config     string    `json:"config"`
	BatchSize  int       `json:"batch_size"`
	SampleRate int       `json:"sample_rate"`
}

// Record describes one rendered voice.
type Record struct {
	RunID    string             `json:"run_id"`
	BatchID  uint64             `json:"batch_id"`
	Voice    int                `json:"voice"`
	GlobalID uint64             `json:"global_id"`
	Params   map[string]float64 `json:"params"`
	Stats    analysis.Stats     `json:"stats"`
	Path     string             `json:"path,omitempty"`
}

// Store persists runs and their voice records.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	SaveRecords(ctx context.Context, records []Record) error
	// ListRecords returns the records of a run ordered by global voice id.
	ListRecords(ctx context.Context, runID string) ([]Record, error)
}

// NewRun returns a run with a fresh id for cfg.
func NewRun(cfg *synth.Config) Run {
	return Run{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		Config:     cfg.String(),
		BatchSize:  cfg.BatchSize(),
		SampleRate: cfg.SampleRate(),
	}
}

// BatchRecords builds one record per voice of a rendered batch. paths may
// be nil when no audio was written.
func BatchRecords(runID string, snap *synth.Snapshot, out *synth.Signal, paths []string) ([]Record, error) {
	if snap.BatchSize() != out.Batch() {
		return nil, fmt.Errorf("%w: snapshot has %d voices, output %d", synth.ErrShape, snap.BatchSize(), out.Batch())
	}
	if paths != nil && len(paths) != out.Batch() {
		return nil, fmt.Errorf("%w: %d paths for %d voices", synth.ErrShape, len(paths), out.Batch())
	}
	records := make([]Record, out.Batch())
	for v := range records {
		records[v] = Record{
			RunID:    runID,
			BatchID:  snap.BatchID(),
			Voice:    v,
			GlobalID: snap.GlobalID(v),
			Params:   snap.Voice(v),
			Stats:    analysis.Measure(out.Voice(v)),
		}
		if paths != nil {
			records[v].Path = paths[v]
		}
	}
	return records, nil
}

// NewStore returns a store for kind "memory" (or "") or "sqlite".
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// CloseIfSupported closes stores that hold resources.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
