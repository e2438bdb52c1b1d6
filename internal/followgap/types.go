package followgap

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// Per-cycle errors. A cycle that returns one of these emits no command.
var (
	ErrEmptySweep       = errors.New("sweep has no range samples")
	ErrInvalidGeometry  = errors.New("sweep angle geometry is not usable")
	ErrSweepLength      = errors.New("sweep length does not match expected sample count")
	ErrUnsanitizable    = errors.New("sweep has too many invalid samples")
	ErrInvalidParams    = errors.New("invalid follow-gap parameters")
	ErrTargetOutOfRange = errors.New("target index outside sweep")
)

// ScanFrame is one sweep of the range sensor. Index i of Ranges is the
// return at AngleMin + i*AngleIncrement.
type ScanFrame struct {
	Seq            uint32
	Stamp          time.Time
	AngleMin       float64 // radians
	AngleIncrement float64 // radians between consecutive samples
	RangeMax       float64 // metres; 0 when the sensor does not report one
	Ranges         []float64
}

// Angle returns the bearing of sample i.
func (f ScanFrame) Angle(i int) float64 {
	return f.AngleMin + float64(i)*f.AngleIncrement
}

// Gap is a maximal run of indices whose processed range is at or above the
// safe threshold. Start and End are inclusive.
type Gap struct {
	Start    int
	End      int
	MaxRange float64
}

// Mid returns the floor midpoint of the gap.
func (g Gap) Mid() int {
	return (g.Start + g.End) / 2
}

// Len returns the number of indices covered by the gap.
func (g Gap) Len() int {
	return g.End - g.Start + 1
}

// Command is the actuator output of one cycle.
type Command struct {
	SteeringAngle float64 `json:"steering_angle"` // radians
	Speed         float64 `json:"speed"`          // m/s
}

// Fallback records which selection path produced the target index.
type Fallback int

const (
	// FallbackNone: a gap midpoint inside the forward window was accepted.
	FallbackNone Fallback = iota
	// FallbackOutOfWindow: no midpoint fell in the forward window; the
	// midpoint of the last gap examined was used.
	FallbackOutOfWindow
	// FallbackNoGaps: nothing reached the safe threshold; the argmax of the
	// processed scan was used.
	FallbackNoGaps
)

func (f Fallback) String() string {
	switch f {
	case FallbackNone:
		return "none"
	case FallbackOutOfWindow:
		return "out_of_window"
	case FallbackNoGaps:
		return "no_gaps"
	default:
		return "unknown"
	}
}

// ParseFallback is the inverse of Fallback.String.
func ParseFallback(s string) (Fallback, error) {
	switch s {
	case "none":
		return FallbackNone, nil
	case "out_of_window":
		return FallbackOutOfWindow, nil
	case "no_gaps":
		return FallbackNoGaps, nil
	}
	return FallbackNone, fmt.Errorf("unknown fallback %q", s)
}

func (f Fallback) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Fallback) UnmarshalText(b []byte) error {
	v, err := ParseFallback(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Decision is the full record of one completed cycle. Only Command is
// consumed by the actuator; the rest feeds recorders and debug views.
type Decision struct {
	Seq            uint32    `json:"seq"`
	Stamp          time.Time `json:"stamp"`
	Command        Command   `json:"command"`
	TargetIndex    int       `json:"target_index"`
	TargetRange    float64   `json:"target_range"`
	TargetPoint    r2.Vec    `json:"target_point"` // sensor frame, metres
	Fallback       Fallback  `json:"fallback"`
	Clamped        bool      `json:"clamped"`
	Gaps           []Gap     `json:"gaps"`
	InvalidSamples int       `json:"invalid_samples"`
	MaskedSamples  int       `json:"masked_samples"`
	BubbleRadius   int       `json:"bubble_radius"`

	AngleMin       float64   `json:"angle_min"`
	AngleIncrement float64   `json:"angle_increment"`
	Raw            []float64 `json:"raw,omitempty"`      // sanitized input
	Smoothed       []float64 `json:"smoothed,omitempty"` // before masking
	Processed      []float64 `json:"processed,omitempty"`
}
