package followgap

import (
	"math"
	"testing"
)

func TestSynthesize_AngleIsAffineInIndex(t *testing.T) {
	f := ScanFrame{AngleMin: -math.Pi, AngleIncrement: 2 * math.Pi / 1080, Ranges: make([]float64, 1080)}
	p := DefaultParams()
	prev, _ := Synthesize(f, 0, p)
	if prev.SteeringAngle != -math.Pi {
		t.Fatalf("index 0 must map to angle_min, got %v", prev.SteeringAngle)
	}
	for i := 1; i < 1080; i++ {
		cmd, _ := Synthesize(f, i, p)
		if cmd.SteeringAngle <= prev.SteeringAngle {
			t.Fatalf("steering not strictly increasing at %d", i)
		}
		if d := cmd.SteeringAngle - prev.SteeringAngle; math.Abs(d-f.AngleIncrement) > 1e-9 {
			t.Fatalf("slope at %d = %v, want %v", i, d, f.AngleIncrement)
		}
		prev = cmd
	}
}

func TestSynthesize_SpeedThrottle(t *testing.T) {
	p := DefaultParams()
	p.SharpTurnAngle = 1.0
	tests := []struct {
		name  string
		angle float64
		want  float64
	}{
		{"straight", 0, p.CruiseSpeed},
		{"just below", 0.999, p.CruiseSpeed},
		{"at threshold", 1.0, p.CautionSpeed},
		{"negative at threshold", -1.0, p.CautionSpeed},
		{"beyond", 2.5, p.CautionSpeed},
		{"negative below", -0.5, p.CruiseSpeed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ScanFrame{AngleMin: tc.angle, AngleIncrement: 0.01, Ranges: []float64{1}}
			cmd, _ := Synthesize(f, 0, p)
			if cmd.Speed != tc.want {
				t.Errorf("angle %v: speed %v, want %v", tc.angle, cmd.Speed, tc.want)
			}
		})
	}
}

func TestSynthesize_ClampsSteering(t *testing.T) {
	p := DefaultParams()
	p.SharpTurnAngle = 0.3
	p.MaxSteeringAngle = 0.4
	f := ScanFrame{AngleMin: -1.0, AngleIncrement: 0.5, Ranges: make([]float64, 5)}

	cmd, clamped := Synthesize(f, 0, p)
	if !clamped || cmd.SteeringAngle != -0.4 {
		t.Errorf("expected clamp to -0.4, got %v clamped=%v", cmd.SteeringAngle, clamped)
	}
	// Speed policy sees the unclamped angle.
	if cmd.Speed != p.CautionSpeed {
		t.Errorf("expected caution speed, got %v", cmd.Speed)
	}

	cmd, clamped = Synthesize(f, 2, p)
	if clamped || cmd.SteeringAngle != 0 {
		t.Errorf("expected unclamped 0, got %v clamped=%v", cmd.SteeringAngle, clamped)
	}
}
