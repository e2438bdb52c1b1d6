package followgap

import (
	"fmt"
	"math"
)

// Params holds the tunable follow-gap parameters. A Params value is
// validated once at construction and treated as read-only afterwards, so it
// can be shared by every cycle without locking.
type Params struct {
	// Bubble masking
	BubbleRadius    int     // indices suppressed either side of a close return
	BubbleRadiusRad float64 // when > 0, radius as an angle; overrides BubbleRadius per frame
	CloseThreshold  float64 // metres; returns at or below this open a bubble

	// Smoothing
	WindowSize  int // samples per averaging block
	RoundDigits int // decimal digits kept after averaging

	// Gap detection and selection
	SafeThreshold    float64 // metres; processed range at or above this is open
	ForwardLowIndex  int     // inclusive
	ForwardHighIndex int     // inclusive

	// Command synthesis
	CruiseSpeed      float64 // m/s
	CautionSpeed     float64 // m/s
	SharpTurnAngle   float64 // radians; |steering| at or above this uses CautionSpeed
	MaxSteeringAngle float64 // radians; 0 disables clamping

	// Sanitization
	MaxRange           float64 // metres substituted for +Inf when the frame has no RangeMax
	MaxInvalidFraction float64 // (0, 1]; above this the sweep is dropped
	ExpectedSamples    int     // 0 when the sweep length is not known up front
}

// DefaultParams returns the parameters the controller was tuned with on a
// 1080-sample, 270 degree scanner.
func DefaultParams() Params {
	return Params{
		BubbleRadius:       20,
		CloseThreshold:     0.8,
		WindowSize:         10,
		RoundDigits:        5,
		SafeThreshold:      1.2,
		ForwardLowIndex:    180,
		ForwardHighIndex:   900,
		CruiseSpeed:        3.0,
		CautionSpeed:       0.5,
		SharpTurnAngle:     150 * math.Pi / 180,
		MaxRange:           30.0,
		MaxInvalidFraction: 0.5,
	}
}

// Validate checks the parameters. All failures wrap ErrInvalidParams.
func (p Params) Validate() error {
	if p.WindowSize < 1 {
		return fmt.Errorf("%w: window_size must be >= 1, got %d", ErrInvalidParams, p.WindowSize)
	}
	if p.RoundDigits < 0 || p.RoundDigits > 12 {
		return fmt.Errorf("%w: round_digits must be in [0, 12], got %d", ErrInvalidParams, p.RoundDigits)
	}
	if p.BubbleRadius < 0 {
		return fmt.Errorf("%w: bubble_radius must be non-negative, got %d", ErrInvalidParams, p.BubbleRadius)
	}
	if p.BubbleRadiusRad < 0 || math.IsNaN(p.BubbleRadiusRad) || math.IsInf(p.BubbleRadiusRad, 0) {
		return fmt.Errorf("%w: bubble_radius_rad must be a non-negative finite angle, got %v", ErrInvalidParams, p.BubbleRadiusRad)
	}
	if !(p.CloseThreshold >= 0) {
		return fmt.Errorf("%w: close_threshold must be non-negative, got %v", ErrInvalidParams, p.CloseThreshold)
	}
	if !(p.SafeThreshold > 0) {
		return fmt.Errorf("%w: safe_threshold must be positive, got %v", ErrInvalidParams, p.SafeThreshold)
	}
	if p.ForwardLowIndex < 0 {
		return fmt.Errorf("%w: forward_low_index must be non-negative, got %d", ErrInvalidParams, p.ForwardLowIndex)
	}
	if p.ForwardLowIndex > p.ForwardHighIndex {
		return fmt.Errorf("%w: forward window [%d, %d] is inverted", ErrInvalidParams, p.ForwardLowIndex, p.ForwardHighIndex)
	}
	if p.ExpectedSamples < 0 {
		return fmt.Errorf("%w: expected_samples must be non-negative, got %d", ErrInvalidParams, p.ExpectedSamples)
	}
	if p.ExpectedSamples > 0 && p.ForwardHighIndex >= p.ExpectedSamples {
		return fmt.Errorf("%w: forward_high_index %d outside a %d-sample sweep", ErrInvalidParams, p.ForwardHighIndex, p.ExpectedSamples)
	}
	if !(p.CruiseSpeed >= 0) || !(p.CautionSpeed >= 0) || math.IsInf(p.CruiseSpeed, 0) || math.IsInf(p.CautionSpeed, 0) {
		return fmt.Errorf("%w: speeds must be non-negative and finite, got cruise=%v caution=%v", ErrInvalidParams, p.CruiseSpeed, p.CautionSpeed)
	}
	if !(p.SharpTurnAngle > 0) || math.IsInf(p.SharpTurnAngle, 0) {
		return fmt.Errorf("%w: sharp_turn_angle must be positive and finite, got %v", ErrInvalidParams, p.SharpTurnAngle)
	}
	if !(p.MaxSteeringAngle >= 0) || math.IsInf(p.MaxSteeringAngle, 0) {
		return fmt.Errorf("%w: max_steering_angle must be non-negative and finite, got %v", ErrInvalidParams, p.MaxSteeringAngle)
	}
	if !(p.MaxRange > 0) || math.IsInf(p.MaxRange, 0) {
		return fmt.Errorf("%w: max_range must be positive and finite, got %v", ErrInvalidParams, p.MaxRange)
	}
	if !(p.MaxInvalidFraction > 0 && p.MaxInvalidFraction <= 1) {
		return fmt.Errorf("%w: max_invalid_fraction must be in (0, 1], got %v", ErrInvalidParams, p.MaxInvalidFraction)
	}
	return nil
}

// bubbleRadiusFor resolves the index radius for a frame. The angular form,
// when set, is converted with the frame's own resolution so the suppressed
// arc stays the same when the scanner resolution changes.
func (p Params) bubbleRadiusFor(f ScanFrame) int {
	if p.BubbleRadiusRad <= 0 {
		return p.BubbleRadius
	}
	inc := math.Abs(f.AngleIncrement)
	if inc == 0 {
		return p.BubbleRadius
	}
	// Tiny increments would overflow the int conversion.
	r := math.Ceil(p.BubbleRadiusRad / inc)
	if limit := float64(len(f.Ranges)); r > limit {
		r = limit
	}
	return int(r)
}
