package followgap

import (
	"fmt"
	"math"
)

// Sanitize copies the frame's ranges into a fresh buffer with every
// unusable sample replaced:
//
//   - +Inf (no return) becomes the frame's RangeMax, or maxRange when the
//     frame does not carry one.
//   - NaN, -Inf and negative distances become 0, which downstream stages
//     treat as blocked.
//
// It returns the buffer and the number of NaN/negative/-Inf samples. No-return
// samples are valid readings and are not counted. The sweep is rejected with
// ErrUnsanitizable when no sample is valid or the invalid share exceeds
// maxInvalid.
func Sanitize(f ScanFrame, maxRange, maxInvalid float64) ([]float64, int, error) {
	n := len(f.Ranges)
	if n == 0 {
		return nil, 0, ErrEmptySweep
	}
	if math.IsNaN(f.AngleMin) || math.IsInf(f.AngleMin, 0) ||
		math.IsNaN(f.AngleIncrement) || math.IsInf(f.AngleIncrement, 0) ||
		f.AngleIncrement == 0 {
		return nil, 0, fmt.Errorf("%w: angle_min=%v angle_increment=%v", ErrInvalidGeometry, f.AngleMin, f.AngleIncrement)
	}

	far := maxRange
	if f.RangeMax > 0 && !math.IsInf(f.RangeMax, 0) {
		far = f.RangeMax
	}

	out := make([]float64, n)
	invalid := 0
	for i, r := range f.Ranges {
		switch {
		case math.IsInf(r, 1):
			out[i] = far
		case math.IsNaN(r) || r < 0: // also catches -Inf
			out[i] = 0
			invalid++
		default:
			out[i] = r
		}
	}

	if invalid == n {
		return nil, invalid, fmt.Errorf("%w: all %d samples invalid", ErrUnsanitizable, n)
	}
	if frac := float64(invalid) / float64(n); frac > maxInvalid {
		return nil, invalid, fmt.Errorf("%w: %d of %d samples invalid (%.2f > %.2f)", ErrUnsanitizable, invalid, n, frac, maxInvalid)
	}
	return out, invalid, nil
}
