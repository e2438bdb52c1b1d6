package followgap

// ApplyBubbles zeroes every index within radius of a sample at or below
// closeThreshold, clamped to the slice bounds, and returns how many indices
// ended up inside a bubble.
//
// Triggers are judged on the values as they were before masking: indices
// ahead of the scan position are never written before they are read, so a
// zeroed neighbour cannot open a bubble of its own, while a close return
// sitting inside another bubble still extends suppression by its own radius.
// Each index is written at most once.
func ApplyBubbles(proc []float64, radius int, closeThreshold float64) int {
	if radius < 0 {
		return 0
	}
	reach := -1         // furthest index covered by a bubble seen so far
	zeroedThrough := -1 // highest index already cleared
	masked := 0

	for i := 0; i < len(proc); i++ {
		if proc[i] <= closeThreshold {
			for j := max(0, i-radius, zeroedThrough+1); j < i; j++ {
				proc[j] = 0
				masked++
			}
			reach = max(reach, i+radius)
		}
		if i <= reach {
			proc[i] = 0
			masked++
			zeroedThrough = i
		}
	}
	return masked
}
