package render

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cwbudde/algo-synth/synth"
)

func TestWriteReadMonoWAV(t *testing.T) {
	const sr = 8000
	x := make([]float64, sr/4)
	for i := range x {
		x[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/sr)
	}
	path := filepath.Join(t.TempDir(), "nested", "tone.wav")
	if err := WriteMonoWAV(path, x, sr, 0); err != nil {
		t.Fatalf("WriteMonoWAV: %v", err)
	}
	got, gotSR, err := ReadWAVMono(path)
	if err != nil {
		t.Fatalf("ReadWAVMono: %v", err)
	}
	if gotSR != sr || len(got) != len(x) {
		t.Fatalf("format mismatch: sr=%d len=%d want sr=%d len=%d", gotSR, len(got), sr, len(x))
	}
	for i := range x {
		if math.Abs(got[i]-x[i]) > 1e-3 {
			t.Fatalf("sample %d got=%v want=%v", i, got[i], x[i])
		}
	}
}

func TestWriteMonoWAVNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiet.wav")
	if err := WriteMonoWAV(path, []float64{0.1, -0.2, 0.05}, 8000, 0.8); err != nil {
		t.Fatalf("WriteMonoWAV: %v", err)
	}
	got, _, err := ReadWAVMono(path)
	if err != nil {
		t.Fatalf("ReadWAVMono: %v", err)
	}
	if math.Abs(got[1]+0.8) > 1e-3 {
		t.Fatalf("peak got=%v want=-0.8", got[1])
	}
	if err := WriteMonoWAV(path, nil, 8000, 0); err == nil {
		t.Fatalf("expected error for empty signal")
	}
}

func TestLoadReferencePadsAndResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.wav")
	x := make([]float64, 4000)
	for i := range x {
		x[i] = 0.25
	}
	if err := WriteMonoWAV(path, x, 8000, 0); err != nil {
		t.Fatalf("WriteMonoWAV: %v", err)
	}
	same, err := LoadReference(path, 8000, 6000)
	if err != nil {
		t.Fatalf("LoadReference: %v", err)
	}
	if len(same) != 6000 || same[5999] != 0 || math.Abs(same[100]-0.25) > 1e-3 {
		t.Fatalf("padding mismatch: len=%d tail=%v", len(same), same[5999])
	}
	up, err := LoadReference(path, 16000, 4000)
	if err != nil {
		t.Fatalf("LoadReference resample: %v", err)
	}
	if len(up) != 4000 {
		t.Fatalf("length got=%d want=4000", len(up))
	}
}

func TestReadWAVMonoRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := ReadWAVMono(path); err == nil {
		t.Fatalf("expected error for invalid wav")
	}
}

func TestParseWorkers(t *testing.T) {
	if n, err := ParseWorkers("auto"); err != nil || n != runtime.GOMAXPROCS(0) {
		t.Fatalf("auto: n=%d err=%v", n, err)
	}
	if n, err := ParseWorkers(" 3 "); err != nil || n != 3 {
		t.Fatalf("3: n=%d err=%v", n, err)
	}
	for _, bad := range []string{"", "0", "-2", "many"} {
		if _, err := ParseWorkers(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestExportBatch(t *testing.T) {
	cfg, err := synth.NewConfig(
		synth.WithBatchSize(4),
		synth.WithSampleRate(8000),
		synth.WithControlRate(80),
		synth.WithBufferSeconds(0.1),
	)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	out := cfg.NewSignal(synth.Audio)
	for v := 0; v < out.Batch(); v++ {
		row := out.Voice(v)
		for i := range row {
			row[i] = 0.1 * float64(v+1)
		}
	}
	dir := t.TempDir()
	paths, err := ExportBatch(dir, 12, out, cfg.SampleRate(), 0)
	if err != nil {
		t.Fatalf("ExportBatch: %v", err)
	}
	if len(paths) != 4 || filepath.Base(paths[2]) != "batch00000012_voice002.wav" {
		t.Fatalf("unexpected paths: %v", paths)
	}
	got, _, err := ReadWAVMono(paths[3])
	if err != nil {
		t.Fatalf("ReadWAVMono: %v", err)
	}
	if math.Abs(got[10]-0.4) > 1e-3 {
		t.Fatalf("voice 3 level got=%v want=0.4", got[10])
	}
	if _, err := ExportBatch(dir, 0, cfg.NewSignal(synth.Control), cfg.SampleRate(), 0); !errors.Is(err, synth.ErrRate) {
		t.Fatalf("expected ErrRate, got %v", err)
	}
}
