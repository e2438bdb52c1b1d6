package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		mps      float64
		unit     string
		expected float64
	}{
		{"cruise to kmph", 3.0, KMPH, 10.8},
		{"cruise to kph", 3.0, KPH, 10.8},
		{"cruise to mph", 3.0, MPH, 6.7108},
		{"caution stays in mps", 0.5, MPS, 0.5},
		{"unknown falls back to mps", 2.0, "furlongs", 2.0},
		{"stopped", 0, MPH, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertSpeed(tt.mps, tt.unit); math.Abs(got-tt.expected) > 1e-3 {
				t.Errorf("ConvertSpeed(%v, %q) = %v, want %v", tt.mps, tt.unit, got, tt.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", MPS, false},
		{"MPH", MPH, false},
		{" kmph ", KMPH, false},
		{"knots", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(3, KMPH); got != "10.80 km/h" {
		t.Errorf("FormatSpeed = %q", got)
	}
	if got := FormatSpeed(0.5, "bogus"); got != "0.50 m/s" {
		t.Errorf("FormatSpeed = %q", got)
	}
}

func TestAngles(t *testing.T) {
	if got := Radians(180); math.Abs(got-math.Pi) > 1e-12 {
		t.Errorf("Radians(180) = %v", got)
	}
	if got := Degrees(math.Pi / 2); math.Abs(got-90) > 1e-12 {
		t.Errorf("Degrees(pi/2) = %v", got)
	}
	for _, deg := range []float64{-150, 0, 12.5, 270} {
		if got := Degrees(Radians(deg)); math.Abs(got-deg) > 1e-9 {
			t.Errorf("round trip %v -> %v", deg, got)
		}
	}
}
