package preset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-synth/synth"
	"github.com/cwbudde/algo-synth/voice"
)

// File is the JSON schema for synth presets.
//
// Unset pointer fields keep the engine defaults. Frozen values apply to
// every voice; per_voice entries override single voices and freeze the
// whole parameter.
type File struct {
	BatchSize     *int     `json:"batch_size"`
	SampleRate    *int     `json:"sample_rate"`
	ControlRate   *int     `json:"control_rate"`
	BufferSeconds *float64 `json:"buffer_seconds"`
	Reproducible  *bool    `json:"reproducible"`
	Precision     string   `json:"precision"`

	Noise         *bool  `json:"noise"`
	Filter        *bool  `json:"filter"`
	Interpolation string `json:"interpolation"`
	WiringPath    string `json:"wiring_path"`

	Frozen   map[string]float64            `json:"frozen"`
	PerVoice map[string]map[string]float64 `json:"per_voice"`
}

// LoadJSON reads and validates a preset file. A relative wiring_path is
// resolved against the preset's directory.
func LoadJSON(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	f.WiringPath = strings.TrimSpace(f.WiringPath)
	if f.WiringPath != "" && !filepath.IsAbs(f.WiringPath) {
		base := filepath.Dir(path)
		f.WiringPath = filepath.Clean(filepath.Join(base, f.WiringPath))
	}
	return &f, nil
}

// WriteJSON stores f as indented JSON.
func WriteJSON(path string, f *File) error {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// Validate checks field ranges that do not need a synth.
func (f *File) Validate() error {
	if f.BatchSize != nil && *f.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1")
	}
	if f.SampleRate != nil && *f.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be > 0")
	}
	if f.ControlRate != nil && *f.ControlRate <= 0 {
		return fmt.Errorf("control_rate must be > 0")
	}
	if f.BufferSeconds != nil && !(*f.BufferSeconds > 0) {
		return fmt.Errorf("buffer_seconds must be > 0")
	}
	if _, err := synth.ParsePrecision(f.Precision); err != nil {
		return err
	}
	if _, err := synth.ParseInterpolation(f.Interpolation); err != nil {
		return err
	}
	for key, v := range f.Frozen {
		if err := checkEntry("frozen", key, v); err != nil {
			return err
		}
	}
	for k, entries := range f.PerVoice {
		if _, err := voiceIndex(k); err != nil {
			return err
		}
		for key, v := range entries {
			if err := checkEntry("per_voice["+k+"]", key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkEntry(where, key string, v float64) error {
	if _, err := splitKey(key); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s[%q] must be finite", where, key)
	}
	return nil
}

func splitKey(key string) (synth.ParamID, error) {
	i := strings.LastIndexByte(key, '.')
	if i <= 0 || i == len(key)-1 {
		return synth.ParamID{}, fmt.Errorf("invalid parameter key %q (expected module.param)", key)
	}
	return synth.ParamID{Module: key[:i], Name: key[i+1:]}, nil
}

func voiceIndex(k string) (int, error) {
	v, err := strconv.Atoi(k)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid per_voice key %q (expected voice index >= 0)", k)
	}
	return v, nil
}

// ConfigOptions converts the engine fields to synth options.
func (f *File) ConfigOptions() ([]synth.Option, error) {
	var opts []synth.Option
	if f.BatchSize != nil {
		opts = append(opts, synth.WithBatchSize(*f.BatchSize))
	}
	if f.SampleRate != nil {
		opts = append(opts, synth.WithSampleRate(*f.SampleRate))
	}
	if f.ControlRate != nil {
		opts = append(opts, synth.WithControlRate(*f.ControlRate))
	}
	if f.BufferSeconds != nil {
		opts = append(opts, synth.WithBufferSeconds(*f.BufferSeconds))
	}
	if f.Reproducible != nil {
		opts = append(opts, synth.WithReproducible(*f.Reproducible))
	}
	if f.Precision != "" {
		p, err := synth.ParsePrecision(f.Precision)
		if err != nil {
			return nil, err
		}
		opts = append(opts, synth.WithPrecision(p))
	}
	return opts, nil
}

// VoiceOptions converts the topology fields to voice options.
func (f *File) VoiceOptions() ([]voice.Option, error) {
	var opts []voice.Option
	if f.Noise != nil && *f.Noise {
		opts = append(opts, voice.WithNoise())
	}
	if f.Filter != nil && *f.Filter {
		opts = append(opts, voice.WithFilter())
	}
	if f.Interpolation != "" {
		i, err := synth.ParseInterpolation(f.Interpolation)
		if err != nil {
			return nil, err
		}
		opts = append(opts, voice.WithInterpolation(i))
	}
	return opts, nil
}

// Build creates the voice synth described by f, with extra options applied
// after the preset's own, and applies the frozen values.
func Build(f *File, extra ...synth.Option) (*synth.Synth, error) {
	if f == nil {
		f = &File{}
	}
	opts, err := f.ConfigOptions()
	if err != nil {
		return nil, err
	}
	cfg, err := synth.NewConfig(append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	vopts, err := f.VoiceOptions()
	if err != nil {
		return nil, err
	}
	s, err := voice.New(cfg, vopts...)
	if err != nil {
		return nil, err
	}
	if f.WiringPath != "" {
		raw, err := os.ReadFile(f.WiringPath)
		if err != nil {
			return nil, err
		}
		w, err := synth.ParseWiring(raw)
		if err != nil {
			return nil, err
		}
		p, err := s.Compile(w)
		if err != nil {
			return nil, fmt.Errorf("wiring %s: %w", f.WiringPath, err)
		}
		s.SetPatch(p)
	}
	if err := Apply(s, f); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply freezes the parameters named by f on s. Entries are applied in key
// order, frozen values before per-voice overrides.
func Apply(s *synth.Synth, f *File) error {
	if s == nil {
		return fmt.Errorf("nil destination synth")
	}
	if f == nil {
		return nil
	}

	for _, key := range sortedKeys(f.Frozen) {
		p, err := lookup(s, key)
		if err != nil {
			return err
		}
		if err := p.Fill(f.Frozen[key]); err != nil {
			return fmt.Errorf("frozen[%q]: %w", key, err)
		}
	}

	voices := make([]string, 0, len(f.PerVoice))
	for k := range f.PerVoice {
		voices = append(voices, k)
	}
	sort.Slice(voices, func(i, j int) bool {
		a, _ := strconv.Atoi(voices[i])
		b, _ := strconv.Atoi(voices[j])
		return a < b
	})
	batch := s.Config().BatchSize()
	for _, k := range voices {
		v, err := voiceIndex(k)
		if err != nil {
			return err
		}
		if v >= batch {
			return fmt.Errorf("per_voice[%d]: voice outside batch of %d", v, batch)
		}
		entries := f.PerVoice[k]
		for _, key := range sortedKeys(entries) {
			p, err := lookup(s, key)
			if err != nil {
				return err
			}
			h, r := entries[key], p.Range()
			if !r.Contains(h) {
				return fmt.Errorf("per_voice[%d][%q]: %w: %v outside [%v,%v]", v, key, synth.ErrParamRange, h, r.Min, r.Max)
			}
			norm := p.Normalized()
			norm[v] = r.ToUnit(h)
			if err := p.Set(norm); err != nil {
				return fmt.Errorf("per_voice[%d][%q]: %w", v, key, err)
			}
		}
	}
	return nil
}

// FromVoice returns a preset freezing every parameter to the values voice v
// drew in snap.
func FromVoice(snap *synth.Snapshot, v int) *File {
	return &File{Frozen: snap.Voice(v)}
}

func lookup(s *synth.Synth, key string) (*synth.Parameter, error) {
	id, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	return s.Parameter(id.Module, id.Name)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
