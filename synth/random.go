package synth

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// GlobalVoiceID numbers voices across batches: batchID*batchSize + voice.
// Distinct batch ids up to MaxBatchID never share a global id for the same
// batch size.
func GlobalVoiceID(batchID uint64, batchSize, voice int) uint64 {
	return batchID*uint64(batchSize) + uint64(voice)
}

// MaxBatchID is the largest batch id whose voices all get a global id
// without overflowing uint64.
func MaxBatchID(batchSize int) uint64 {
	if batchSize < 1 {
		return 0
	}
	n := uint64(batchSize)
	return (math.MaxUint64 - (n - 1)) / n
}

// VoiceSeed is the canonical seed of a global voice id.
func VoiceSeed(globalID uint64) uint64 {
	return mix64(globalID + 0x9e3779b97f4a7c15)
}

// Uniform returns the deterministic normalized draw in [0,1) for one
// parameter of one voice. The result depends only on its arguments.
func Uniform(globalID uint64, id ParamID) float64 {
	r := rand.New(rand.NewPCG(VoiceSeed(globalID), hashString(id.String())))
	return r.Float64()
}

// mix64 is the splitmix64 finalizer.
func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
