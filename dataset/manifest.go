package dataset

import (
	"encoding/json"
	"os"
)

// Manifest is the JSON summary written next to an exported dataset.
type Manifest struct {
	Run     Run      `json:"run"`
	Records []Record `json:"records"`
}

// WriteManifest stores run and records as indented JSON.
func WriteManifest(path string, run Run, records []Record) error {
	b, err := json.MarshalIndent(Manifest{Run: run, Records: records}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
