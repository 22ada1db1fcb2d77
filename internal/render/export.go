// Package render writes synth batches to disk for the command-line tools.
package render

import (
	"fmt"
	"path/filepath"

	"github.com/cwbudde/algo-synth/synth"
)

// VoiceFile returns the file name of one voice of one batch.
func VoiceFile(batchID uint64, voice int) string {
	return fmt.Sprintf("batch%08d_voice%03d.wav", batchID, voice)
}

// ExportBatch writes every voice of out as a mono WAV under dir and returns
// the paths in voice order. peak > 0 normalizes each file to that level.
func ExportBatch(dir string, batchID uint64, out *synth.Signal, sampleRate int, peak float64) ([]string, error) {
	if out.Rate() != synth.Audio {
		return nil, fmt.Errorf("%w: export needs an audio signal, got %s", synth.ErrRate, out.Rate())
	}
	paths := make([]string, out.Batch())
	for v := range paths {
		paths[v] = filepath.Join(dir, VoiceFile(batchID, v))
		if err := WriteMonoWAV(paths[v], out.Voice(v), sampleRate, peak); err != nil {
			return nil, fmt.Errorf("voice %d: %w", v, err)
		}
	}
	return paths, nil
}
