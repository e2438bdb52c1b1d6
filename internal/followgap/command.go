package followgap

import "math"

// Synthesize converts a target index into a command. Speed drops to
// CautionSpeed when the unclamped steering magnitude reaches SharpTurnAngle.
// With MaxSteeringAngle set, the emitted angle is clamped to that limit and
// clamped reports whether it had to be.
func Synthesize(f ScanFrame, index int, p Params) (cmd Command, clamped bool) {
	steer := f.Angle(index)
	speed := p.CruiseSpeed
	if math.Abs(steer) >= p.SharpTurnAngle {
		speed = p.CautionSpeed
	}
	if p.MaxSteeringAngle > 0 && math.Abs(steer) > p.MaxSteeringAngle {
		steer = math.Copysign(p.MaxSteeringAngle, steer)
		clamped = true
	}
	return Command{SteeringAngle: steer, Speed: speed}, clamped
}
