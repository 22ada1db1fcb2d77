// Package analysis measures rendered audio: level statistics for dataset
// manifests and a perceptual-ish distance used to fit parameters.
package analysis

import (
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/core"
	algofft "github.com/cwbudde/algo-fft"
)

const (
	envFrame     = 256
	envHop       = 128
	spectralSize = 4096
	spectralHop  = 2048
	silenceFloor = 1e-6
	minAligned   = 256
)

// Metrics contains distance and similarity measurements between two signals.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	TimeRMSE        float64 `json:"time_rmse"`
	EnvelopeRMSEDB  float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB  float64 `json:"spectral_rmse_db"`
	RefDecayDBPerS  float64 `json:"ref_decay_db_per_s"`
	CandDecayDBPerS float64 `json:"cand_decay_db_per_s"`
	DecayDiffDBPerS float64 `json:"decay_diff_db_per_s"`

	// Score is the weighted distance in [0,1]; 0 means identical.
	Score float64 `json:"score"`
	// Similarity is exp(-4*Score).
	Similarity float64 `json:"similarity"`
}

func worst(m Metrics) Metrics {
	m.Score = 1
	m.Similarity = 0
	return m
}

// Compare aligns candidate to reference and returns objective distance
// metrics. Both inputs are trimmed of leading silence and normalized to the
// same RMS first, so the score ignores onset delay and overall gain.
func Compare(reference, candidate []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
	}
	if sampleRate <= 0 {
		return worst(m)
	}
	ref := normalizeRMS(trimLeadingSilence(reference), 0.1)
	cand := normalizeRMS(trimLeadingSilence(candidate), 0.1)
	if len(ref) < minAligned || len(cand) < minAligned {
		return worst(m)
	}

	maxLag := min(sampleRate/2, len(ref)-1, len(cand)-1)
	m.LagSamples = estimateLag(ref, cand, max(maxLag, 1))
	ref, cand = alignByLag(ref, cand, m.LagSamples)

	n := min(len(ref), len(cand), sampleRate*12)
	if n < minAligned {
		return worst(m)
	}
	ref, cand = ref[:n], cand[:n]
	m.AlignedFrames = n

	m.TimeRMSE = rmse(ref, cand)

	refEnv := rmsEnvelope(ref)
	candEnv := rmsEnvelope(cand)
	if k := min(len(refEnv), len(candEnv)); k > 0 {
		d := make([]float64, k)
		for i := range d {
			d[i] = linToDB(refEnv[i]) - linToDB(candEnv[i])
		}
		m.EnvelopeRMSEDB = rms(d)
	}

	m.SpectralRMSEDB = spectralRMSEDB(ref, cand)

	hopSec := float64(envHop) / float64(sampleRate)
	m.RefDecayDBPerS = decaySlopeDBPerS(refEnv, hopSec)
	m.CandDecayDBPerS = decaySlopeDBPerS(candEnv, hopSec)
	if isFinite(m.RefDecayDBPerS) && isFinite(m.CandDecayDBPerS) {
		m.DecayDiffDBPerS = math.Abs(m.RefDecayDBPerS - m.CandDecayDBPerS)
	}

	m.Score = core.Clamp(
		0.30*core.Clamp(m.TimeRMSE/0.25, 0, 1)+
			0.25*core.Clamp(m.EnvelopeRMSEDB/30, 0, 1)+
			0.30*core.Clamp(m.SpectralRMSEDB/30, 0, 1)+
			0.15*core.Clamp(m.DecayDiffDBPerS/40, 0, 1),
		0, 1)
	m.Similarity = math.Exp(-4 * m.Score)
	return m
}

func trimLeadingSilence(x []float64) []float64 {
	for i, v := range x {
		if math.Abs(v) > silenceFloor {
			return x[i:]
		}
	}
	return nil
}

func normalizeRMS(x []float64, target float64) []float64 {
	out := append([]float64(nil), x...)
	r := rms(x)
	if r <= 1e-12 {
		return out
	}
	g := target / r
	for i := range out {
		out[i] *= g
	}
	return out
}

// estimateLag returns the shift in [-maxLag, maxLag] maximizing the
// cross-correlation sum(ref[i+lag]*cand[i]). It correlates through an FFT
// convolution of ref with the reversed candidate.
func estimateLag(ref, cand []float64, maxLag int) int {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	a := make([]float32, len(ref))
	for i, v := range ref {
		a[i] = float32(v)
	}
	b := make([]float32, len(cand))
	for i, v := range cand {
		b[len(cand)-1-i] = float32(v)
	}
	conv := make([]float32, len(a)+len(b)-1)
	if err := algofft.ConvolveReal(conv, a, b); err != nil {
		return 0
	}
	zero := len(cand) - 1
	best, bestLag := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		k := zero + lag
		if k < 0 || k >= len(conv) {
			continue
		}
		if s := float64(conv[k]); s > best {
			best, bestLag = s, lag
		}
	}
	return bestLag
}

func alignByLag(ref, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		if lag >= len(ref) {
			return nil, nil
		}
		return ref[lag:], cand
	}
	if -lag >= len(cand) {
		return nil, nil
	}
	return ref, cand[-lag:]
}

func rmse(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func rmsEnvelope(x []float64) []float64 {
	if len(x) < envFrame {
		return nil
	}
	out := make([]float64, 1+(len(x)-envFrame)/envHop)
	for i := range out {
		out[i] = rms(x[i*envHop : i*envHop+envFrame])
	}
	return out
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// spectralRMSEDB compares Hann-windowed magnitude spectra averaged over
// frames of spectralSize. Signals shorter than one frame are zero-padded.
func spectralRMSEDB(a, b []float64) float64 {
	if min(len(a), len(b)) < 512 {
		return 0
	}
	plan, err := algofft.NewPlanReal64(spectralSize)
	if err != nil {
		return 0
	}
	window := hann(spectralSize)
	buf := make([]float64, spectralSize)
	bins := make([]complex128, spectralSize/2+1)
	average := func(x []float64) []float64 {
		avg := make([]float64, spectralSize/2)
		frames := 0
		for pos := 0; pos == 0 || pos+spectralSize <= len(x); pos += spectralHop {
			for i := range buf {
				buf[i] = 0
				if pos+i < len(x) {
					buf[i] = x[pos+i] * window[i]
				}
			}
			plan.Forward(bins, buf)
			for k := range avg {
				avg[k] += cmplx.Abs(bins[k])
			}
			frames++
		}
		for k := range avg {
			avg[k] /= float64(frames)
		}
		return avg
	}

	sa, sb := average(a), average(b)
	var sum float64
	for k := 1; k < len(sa); k++ {
		d := linToDB(sa[k]) - linToDB(sb[k])
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(sa)-1))
}

func linToDB(x float64) float64 {
	return 20 * math.Log10(math.Max(x, 1e-12))
}

// decaySlopeDBPerS fits a line to the envelope in dB from its peak down to
// 60 dB below it. It returns NaN when there is too little decay to fit.
func decaySlopeDBPerS(env []float64, hopSec float64) float64 {
	if len(env) < 8 || hopSec <= 0 {
		return math.NaN()
	}
	db := make([]float64, len(env))
	peak, peakIdx := math.Inf(-1), 0
	for i, v := range env {
		db[i] = linToDB(v)
		if db[i] > peak {
			peak, peakIdx = db[i], i
		}
	}
	start := peakIdx + 1
	if start >= len(env)-4 {
		return math.NaN()
	}
	end := len(env)
	for i := start; i < len(env); i++ {
		if db[i] < peak-60 {
			end = i
			break
		}
	}
	if end-start < 6 {
		return math.NaN()
	}

	var sx, sy, sxx, sxy float64
	n := float64(end - start)
	for i := start; i < end; i++ {
		x := float64(i-start) * hopSec
		sx += x
		sy += db[i]
		sxx += x * x
		sxy += x * db[i]
	}
	den := n*sxx - sx*sx
	if math.Abs(den) < 1e-12 {
		return math.NaN()
	}
	return (n*sxy - sx*sy) / den
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
