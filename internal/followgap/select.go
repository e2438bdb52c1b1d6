package followgap

import "gonum.org/v1/gonum/floats"

// SelectTarget picks the steering index for one cycle.
//
// Gaps are examined widest-open first (largest MaxRange). The first gap
// whose midpoint lies in the inclusive forward window [low, high] wins.
// If none does, the midpoint of the last gap examined is returned with
// FallbackOutOfWindow: the controller always produces a command rather than
// stopping. With no gaps at all the index of the largest processed value
// (first on ties) is returned with FallbackNoGaps.
func SelectTarget(gaps []Gap, proc []float64, low, high int) (int, Fallback) {
	if len(gaps) == 0 {
		if len(proc) == 0 {
			return 0, FallbackNoGaps
		}
		return floats.MaxIdx(proc), FallbackNoGaps
	}

	q := NewGapQueue(gaps)
	target := 0
	for {
		g, ok := q.PopGap()
		if !ok {
			return target, FallbackOutOfWindow
		}
		target = g.Mid()
		if low <= target && target <= high {
			return target, FallbackNone
		}
	}
}
