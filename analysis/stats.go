package analysis

import "math"

// Stats summarizes the level of one rendered voice.
type Stats struct {
	Peak      float64 `json:"peak"`
	RMS       float64 `json:"rms"`
	DC        float64 `json:"dc"`
	Clipped   int     `json:"clipped"`
	NonFinite int     `json:"non_finite"`
}

// Silent reports whether the voice never rises above the silence floor.
func (s Stats) Silent() bool { return s.Peak <= silenceFloor }

// Measure computes Stats over x. Non-finite samples are counted and left
// out of the other figures; samples at or beyond full scale count as clipped.
func Measure(x []float64) Stats {
	var s Stats
	var sum, sq float64
	n := 0
	for _, v := range x {
		if !isFinite(v) {
			s.NonFinite++
			continue
		}
		a := math.Abs(v)
		if a > s.Peak {
			s.Peak = a
		}
		if a >= 1 {
			s.Clipped++
		}
		sum += v
		sq += v * v
		n++
	}
	if n > 0 {
		s.DC = sum / float64(n)
		s.RMS = math.Sqrt(sq / float64(n))
	}
	return s
}
