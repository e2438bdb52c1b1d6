package followgap

import (
	"container/heap"

	"gonum.org/v1/gonum/floats"
)

// FindGaps returns every maximal run of indices whose value is at or above
// safeThreshold, left to right. Runs of a single index are dropped because
// they have no usable midpoint.
func FindGaps(proc []float64, safeThreshold float64) []Gap {
	var gaps []Gap
	i := 0
	for i < len(proc) {
		if proc[i] < safeThreshold {
			i++
			continue
		}
		start := i
		for i < len(proc) && proc[i] >= safeThreshold {
			i++
		}
		end := i - 1
		if end == start {
			continue
		}
		gaps = append(gaps, Gap{
			Start:    start,
			End:      end,
			MaxRange: floats.Max(proc[start : end+1]),
		})
	}
	return gaps
}

// GapQueue orders gaps by descending MaxRange. Equal ranges pop in
// ascending Start order so selection is deterministic.
type GapQueue []Gap

// NewGapQueue builds a heap-ordered queue over a copy of gaps.
func NewGapQueue(gaps []Gap) *GapQueue {
	q := make(GapQueue, len(gaps))
	copy(q, gaps)
	heap.Init(&q)
	return &q
}

func (q GapQueue) Len() int { return len(q) }

func (q GapQueue) Less(i, j int) bool {
	// Priority key is the negated max range: smaller key pops first.
	ki, kj := -q[i].MaxRange, -q[j].MaxRange
	if ki != kj {
		return ki < kj
	}
	return q[i].Start < q[j].Start
}

func (q GapQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *GapQueue) Push(x any) { *q = append(*q, x.(Gap)) }

func (q *GapQueue) Pop() any {
	old := *q
	n := len(old)
	g := old[n-1]
	*q = old[:n-1]
	return g
}

// PopGap removes and returns the highest priority gap.
func (q *GapQueue) PopGap() (Gap, bool) {
	if q.Len() == 0 {
		return Gap{}, false
	}
	return heap.Pop(q).(Gap), true
}
