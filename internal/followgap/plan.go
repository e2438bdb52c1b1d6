package followgap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Stage identifies a step of the per-sweep pipeline. A cycle moves through
// the stages strictly in order and returns to Idle.
type Stage int

const (
	StageIdle Stage = iota
	StageSanitizing
	StageSmoothing
	StageMasking
	StageDetecting
	StageSelecting
	StageSynthesizing
)

var stageNames = [...]string{
	StageIdle:         "idle",
	StageSanitizing:   "sanitizing",
	StageSmoothing:    "smoothing",
	StageMasking:      "masking",
	StageDetecting:    "detecting",
	StageSelecting:    "selecting",
	StageSynthesizing: "synthesizing",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Stages lists the working stages in execution order.
var Stages = []Stage{StageSanitizing, StageSmoothing, StageMasking, StageDetecting, StageSelecting, StageSynthesizing}

// StageHook is called on entry to each working stage and once more with
// StageIdle when the cycle completes. Returning an error aborts the cycle;
// PlanWithHook returns that error unchanged and no Decision.
type StageHook func(Stage) error

// Plan runs one full cycle over frame. p must already have passed Validate.
func Plan(frame ScanFrame, p Params) (Decision, error) {
	return PlanWithHook(frame, p, nil)
}

// PlanWithHook is Plan with a callback at every stage transition. The
// controller uses it to enforce cycle deadlines and open trace spans.
func PlanWithHook(frame ScanFrame, p Params, hook StageHook) (Decision, error) {
	enter := func(s Stage) error {
		if hook == nil {
			return nil
		}
		return hook(s)
	}

	if err := enter(StageSanitizing); err != nil {
		return Decision{}, err
	}
	if p.ExpectedSamples > 0 && len(frame.Ranges) != p.ExpectedSamples && len(frame.Ranges) > 0 {
		return Decision{}, fmt.Errorf("%w: got %d, want %d", ErrSweepLength, len(frame.Ranges), p.ExpectedSamples)
	}
	raw, invalid, err := Sanitize(frame, p.MaxRange, p.MaxInvalidFraction)
	if err != nil {
		return Decision{}, err
	}

	if err := enter(StageSmoothing); err != nil {
		return Decision{}, err
	}
	smoothed := Smooth(raw, p.WindowSize, p.RoundDigits)

	if err := enter(StageMasking); err != nil {
		return Decision{}, err
	}
	radius := p.bubbleRadiusFor(frame)
	proc := make([]float64, len(smoothed))
	copy(proc, smoothed)
	masked := ApplyBubbles(proc, radius, p.CloseThreshold)

	if err := enter(StageDetecting); err != nil {
		return Decision{}, err
	}
	gaps := FindGaps(proc, p.SafeThreshold)

	if err := enter(StageSelecting); err != nil {
		return Decision{}, err
	}
	target, fb := SelectTarget(gaps, proc, p.ForwardLowIndex, p.ForwardHighIndex)
	if target < 0 || target >= len(proc) {
		return Decision{}, fmt.Errorf("%w: %d not in [0, %d)", ErrTargetOutOfRange, target, len(proc))
	}

	if err := enter(StageSynthesizing); err != nil {
		return Decision{}, err
	}
	cmd, clamped := Synthesize(frame, target, p)
	if math.IsNaN(cmd.SteeringAngle) || math.IsInf(cmd.SteeringAngle, 0) {
		return Decision{}, fmt.Errorf("%w: steering angle %v", ErrInvalidGeometry, cmd.SteeringAngle)
	}

	bearing := frame.Angle(target)
	d := Decision{
		Seq:            frame.Seq,
		Stamp:          frame.Stamp,
		Command:        cmd,
		TargetIndex:    target,
		TargetRange:    raw[target],
		TargetPoint:    r2.Vec{X: raw[target] * math.Cos(bearing), Y: raw[target] * math.Sin(bearing)},
		Fallback:       fb,
		Clamped:        clamped,
		Gaps:           gaps,
		InvalidSamples: invalid,
		MaskedSamples:  masked,
		BubbleRadius:   radius,
		AngleMin:       frame.AngleMin,
		AngleIncrement: frame.AngleIncrement,
		Raw:            raw,
		Smoothed:       smoothed,
		Processed:      proc,
	}

	if err := enter(StageIdle); err != nil {
		return Decision{}, err
	}
	return d, nil
}
