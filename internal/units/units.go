// Package units converts the controller's SI values for display and
// configuration: speeds from m/s, angles between degrees and radians.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Speed units accepted by --units and the status views.
const (
	MPS  = "mps"
	KMPH = "kmph"
	KPH  = "kph"
	MPH  = "mph"
)

// ValidUnits lists every accepted speed unit.
var ValidUnits = []string{MPS, KMPH, KPH, MPH}

// IsValid reports whether unit is a known speed unit.
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// Parse normalises a user-supplied unit name.
func Parse(unit string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		return MPS, nil
	}
	if !IsValid(u) {
		return "", fmt.Errorf("unknown speed unit %q: expected one of %s", unit, strings.Join(ValidUnits, ", "))
	}
	return u, nil
}

// ConvertSpeed converts m/s to unit. Unknown units are left in m/s.
func ConvertSpeed(mps float64, unit string) float64 {
	switch unit {
	case KMPH, KPH:
		return mps * 3.6
	case MPH:
		return mps * 2.2369362920544
	}
	return mps
}

// SpeedLabel is the short suffix for unit.
func SpeedLabel(unit string) string {
	switch unit {
	case KMPH, KPH:
		return "km/h"
	case MPH:
		return "mph"
	}
	return "m/s"
}

// FormatSpeed renders a speed in unit with its label.
func FormatSpeed(mps float64, unit string) string {
	return fmt.Sprintf("%.2f %s", ConvertSpeed(mps, unit), SpeedLabel(unit))
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }
