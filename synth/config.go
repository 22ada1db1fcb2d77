package synth

import (
	"fmt"
	"math"
)

// ReproducibleBatchUnit is the smallest batch chunk with a guaranteed
// deterministic layout. Reproducible configs need a batch size that is a
// multiple of it; ForEachVoice schedules voices in chunks of this size.
const ReproducibleBatchUnit = 4

// Precision selects the sample format of the rendered buffer.
type Precision int

const (
	// Float64 keeps full double precision (default).
	Float64 Precision = iota
	// Float32 rounds every output sample to single precision.
	Float32
)

func (p Precision) String() string {
	switch p {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// ParsePrecision maps "float64"/"64" and "float32"/"32" to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "", "float64", "64":
		return Float64, nil
	case "float32", "32":
		return Float32, nil
	default:
		return Float64, fmt.Errorf("%w: unknown precision %q", ErrConfig, s)
	}
}

// settings is the mutable form a Config is built from.
type settings struct {
	batchSize     int
	sampleRate    int
	controlRate   int
	bufferSeconds float64
	reproducible  bool
	device        string
	precision     Precision
}

// Option mutates the settings a Config is built from.
type Option func(*settings)

func defaultSettings() settings {
	return settings{
		batchSize:     128,
		sampleRate:    44100,
		controlRate:   441,
		bufferSeconds: 4.0,
		reproducible:  true,
		device:        "cpu",
		precision:     Float64,
	}
}

// WithBatchSize sets the number of voices rendered per evaluation.
func WithBatchSize(n int) Option {
	return func(s *settings) { s.batchSize = n }
}

// WithSampleRate sets the audio rate in Hz.
func WithSampleRate(hz int) Option {
	return func(s *settings) { s.sampleRate = hz }
}

// WithControlRate sets the control rate in Hz. It must divide the sample rate.
func WithControlRate(hz int) Option {
	return func(s *settings) { s.controlRate = hz }
}

// WithBufferSeconds sets the rendered buffer duration.
func WithBufferSeconds(seconds float64) Option {
	return func(s *settings) { s.bufferSeconds = seconds }
}

// WithReproducible toggles deterministic per-voice randomization.
func WithReproducible(on bool) Option {
	return func(s *settings) { s.reproducible = on }
}

// WithDevice records an opaque placement hint for the backend.
func WithDevice(device string) Option {
	return func(s *settings) { s.device = device }
}

// WithPrecision selects the output sample precision.
func WithPrecision(p Precision) Option {
	return func(s *settings) { s.precision = p }
}

// Config is the immutable graph configuration shared by every module of a Synth.
type Config struct {
	s          settings
	ratio      int
	audioLen   int
	controlLen int
}

// NewConfig applies opts on top of the defaults and validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	if s.batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be >= 1, got %d", ErrConfig, s.batchSize)
	}
	if s.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be > 0, got %d", ErrConfig, s.sampleRate)
	}
	if s.controlRate <= 0 {
		return nil, fmt.Errorf("%w: control rate must be > 0, got %d", ErrConfig, s.controlRate)
	}
	if s.sampleRate%s.controlRate != 0 {
		return nil, fmt.Errorf("%w: sample rate %d is not a multiple of control rate %d", ErrConfig, s.sampleRate, s.controlRate)
	}
	if !(s.bufferSeconds > 0) || math.IsInf(s.bufferSeconds, 0) {
		return nil, fmt.Errorf("%w: buffer seconds must be finite and > 0, got %v", ErrConfig, s.bufferSeconds)
	}
	if s.precision != Float64 && s.precision != Float32 {
		return nil, fmt.Errorf("%w: unknown precision %v", ErrConfig, s.precision)
	}

	ratio := s.sampleRate / s.controlRate
	audioLen := int(math.Round(s.bufferSeconds * float64(s.sampleRate)))
	if audioLen < 1 {
		return nil, fmt.Errorf("%w: buffer of %vs is shorter than one sample at %d Hz", ErrConfig, s.bufferSeconds, s.sampleRate)
	}
	if s.reproducible && s.batchSize%ReproducibleBatchUnit != 0 {
		return nil, fmt.Errorf("%w: reproducible batch size must be a multiple of %d, got %d", ErrConfig, ReproducibleBatchUnit, s.batchSize)
	}

	return &Config{
		s:          s,
		ratio:      ratio,
		audioLen:   audioLen,
		controlLen: (audioLen + ratio - 1) / ratio,
	}, nil
}

// BatchSize returns the number of voices per evaluation.
func (c *Config) BatchSize() int { return c.s.batchSize }

// SampleRate returns the audio rate in Hz.
func (c *Config) SampleRate() int { return c.s.sampleRate }

// ControlRate returns the control rate in Hz.
func (c *Config) ControlRate() int { return c.s.controlRate }

// Ratio returns the number of audio samples per control sample.
func (c *Config) Ratio() int { return c.ratio }

// BufferSeconds returns the configured buffer duration.
func (c *Config) BufferSeconds() float64 { return c.s.bufferSeconds }

// AudioLength returns the number of audio-rate samples per voice.
func (c *Config) AudioLength() int { return c.audioLen }

// ControlLength returns the number of control-rate samples per voice. A
// trailing partial control period still gets its own control sample.
func (c *Config) ControlLength() int { return c.controlLen }

// Reproducible reports whether parameter randomization is deterministic.
func (c *Config) Reproducible() bool { return c.s.reproducible }

// Device returns the opaque device hint.
func (c *Config) Device() string { return c.s.device }

// Precision returns the output sample precision.
func (c *Config) Precision() Precision { return c.s.precision }

// Length returns the per-voice sample count of a signal at rate r.
func (c *Config) Length(r Rate) int {
	switch r {
	case Audio:
		return c.audioLen
	case Control:
		return c.controlLen
	default:
		return 1
	}
}

// NewSignal allocates a zeroed signal of rate r sized for this config.
func (c *Config) NewSignal(r Rate) *Signal {
	return NewSignal(r, c.s.batchSize, c.Length(r))
}

func (c *Config) String() string {
	return fmt.Sprintf("batch=%d sr=%d cr=%d (R=%d) len=%d reproducible=%t precision=%s device=%s",
		c.s.batchSize, c.s.sampleRate, c.s.controlRate, c.ratio, c.audioLen, c.s.reproducible, c.s.precision, c.s.device)
}
