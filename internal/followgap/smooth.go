package followgap

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Smooth replaces each block of window consecutive samples with the block
// mean, rounded to digits decimal places. The output has the same length as
// the input: a short final block is averaged over the samples it actually
// has, so index i of the result still maps to the bearing of ranges[i].
func Smooth(ranges []float64, window, digits int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(ranges))
	for start := 0; start < len(ranges); start += window {
		end := min(start+window, len(ranges))
		block := ranges[start:end]
		mean := roundTo(floats.Sum(block)/float64(len(block)), digits)
		for i := start; i < end; i++ {
			out[i] = mean
		}
	}
	return out
}

func roundTo(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}
