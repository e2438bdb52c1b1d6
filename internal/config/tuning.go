package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Overflow policies for the inbound sweep queue.
const (
	OverflowDropOldest = "drop-oldest"
	OverflowDropNewest = "drop-newest"
)

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be used
// for both startup configuration and inspection at runtime.
type TuningConfig struct {
	// Bubble masking
	BubbleRadius    *int     `json:"bubble_radius,omitempty"`
	BubbleRadiusDeg *float64 `json:"bubble_radius_deg,omitempty"` // optional angular radius
	CloseThreshold  *float64 `json:"close_threshold,omitempty"`

	// Smoothing
	WindowSize  *int `json:"window_size,omitempty"`
	RoundDigits *int `json:"round_digits,omitempty"`

	// Gap selection
	SafeThreshold    *float64 `json:"safe_threshold,omitempty"`
	ForwardLowIndex  *int     `json:"forward_low_index,omitempty"`
	ForwardHighIndex *int     `json:"forward_high_index,omitempty"`

	// Command synthesis
	CruiseSpeed         *float64 `json:"cruise_speed,omitempty"`
	CautionSpeed        *float64 `json:"caution_speed,omitempty"`
	SharpTurnAngleDeg   *float64 `json:"sharp_turn_angle_deg,omitempty"`
	MaxSteeringAngleDeg *float64 `json:"max_steering_angle_deg,omitempty"`

	// Sanitization
	MaxRange           *float64 `json:"max_range,omitempty"`
	MaxInvalidFraction *float64 `json:"max_invalid_fraction,omitempty"`
	ExpectedSamples    *int     `json:"expected_samples,omitempty"`

	// Driver runtime
	QueueDepth    *int    `json:"queue_depth,omitempty"`
	Overflow      *string `json:"overflow,omitempty"`       // "drop-oldest" or "drop-newest"
	CycleDeadline *string `json:"cycle_deadline,omitempty"` // duration string like "50ms"
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "60s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/scan/network/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that can be judged on their own. Cross-field
// checks (forward window ordering, window against sweep length) happen in
// followgap.Params.Validate once ToParams has filled in the defaults.
func (c *TuningConfig) Validate() error {
	if c.WindowSize != nil && *c.WindowSize < 1 {
		return fmt.Errorf("window_size must be >= 1, got %d", *c.WindowSize)
	}
	if c.BubbleRadius != nil && *c.BubbleRadius < 0 {
		return fmt.Errorf("bubble_radius must be non-negative, got %d", *c.BubbleRadius)
	}
	if c.QueueDepth != nil && *c.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be >= 1, got %d", *c.QueueDepth)
	}
	if c.Overflow != nil && *c.Overflow != OverflowDropOldest && *c.Overflow != OverflowDropNewest {
		return fmt.Errorf("overflow must be %q or %q, got %q", OverflowDropOldest, OverflowDropNewest, *c.Overflow)
	}

	// Validate durations can be parsed if set
	for name, v := range map[string]*string{
		"cycle_deadline": c.CycleDeadline,
		"stats_interval": c.StatsInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if _, err := c.ToParams(); err != nil {
		return err
	}
	return nil
}

// ToParams builds validated follow-gap parameters, falling back to the
// package defaults for unset fields.
func (c *TuningConfig) ToParams() (followgap.Params, error) {
	p := followgap.Params{
		BubbleRadius:       c.GetBubbleRadius(),
		BubbleRadiusRad:    units.Radians(c.GetBubbleRadiusDeg()),
		CloseThreshold:     c.GetCloseThreshold(),
		WindowSize:         c.GetWindowSize(),
		RoundDigits:        c.GetRoundDigits(),
		SafeThreshold:      c.GetSafeThreshold(),
		ForwardLowIndex:    c.GetForwardLowIndex(),
		ForwardHighIndex:   c.GetForwardHighIndex(),
		CruiseSpeed:        c.GetCruiseSpeed(),
		CautionSpeed:       c.GetCautionSpeed(),
		SharpTurnAngle:     units.Radians(c.GetSharpTurnAngleDeg()),
		MaxSteeringAngle:   units.Radians(c.GetMaxSteeringAngleDeg()),
		MaxRange:           c.GetMaxRange(),
		MaxInvalidFraction: c.GetMaxInvalidFraction(),
		ExpectedSamples:    c.GetExpectedSamples(),
	}
	if err := p.Validate(); err != nil {
		return followgap.Params{}, err
	}
	return p, nil
}

// DriverConfig builds the controller runtime configuration. Clock, tracer
// and run id are left for the caller to fill in.
func (c *TuningConfig) DriverConfig() (controller.Config, error) {
	p, err := c.ToParams()
	if err != nil {
		return controller.Config{}, err
	}
	overflow, err := controller.ParseOverflow(c.GetOverflow())
	if err != nil {
		return controller.Config{}, err
	}
	return controller.Config{
		Params:        p,
		QueueDepth:    c.GetQueueDepth(),
		Overflow:      overflow,
		CycleDeadline: c.GetCycleDeadline(),
		StatsInterval: c.GetStatsInterval(),
	}, nil
}

var defaults = followgap.DefaultParams()

// GetBubbleRadius returns the bubble_radius value or the default.
func (c *TuningConfig) GetBubbleRadius() int {
	if c.BubbleRadius == nil {
		return defaults.BubbleRadius
	}
	return *c.BubbleRadius
}

// GetBubbleRadiusDeg returns the bubble_radius_deg value or 0 (index radius in use).
func (c *TuningConfig) GetBubbleRadiusDeg() float64 {
	if c.BubbleRadiusDeg == nil {
		return 0
	}
	return *c.BubbleRadiusDeg
}

// GetCloseThreshold returns the close_threshold value or the default.
func (c *TuningConfig) GetCloseThreshold() float64 {
	if c.CloseThreshold == nil {
		return defaults.CloseThreshold
	}
	return *c.CloseThreshold
}

// GetWindowSize returns the window_size value or the default.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return defaults.WindowSize
	}
	return *c.WindowSize
}

// GetRoundDigits returns the round_digits value or the default.
func (c *TuningConfig) GetRoundDigits() int {
	if c.RoundDigits == nil {
		return defaults.RoundDigits
	}
	return *c.RoundDigits
}

// GetSafeThreshold returns the safe_threshold value or the default.
func (c *TuningConfig) GetSafeThreshold() float64 {
	if c.SafeThreshold == nil {
		return defaults.SafeThreshold
	}
	return *c.SafeThreshold
}

// GetForwardLowIndex returns the forward_low_index value or the default.
func (c *TuningConfig) GetForwardLowIndex() int {
	if c.ForwardLowIndex == nil {
		return defaults.ForwardLowIndex
	}
	return *c.ForwardLowIndex
}

// GetForwardHighIndex returns the forward_high_index value or the default.
func (c *TuningConfig) GetForwardHighIndex() int {
	if c.ForwardHighIndex == nil {
		return defaults.ForwardHighIndex
	}
	return *c.ForwardHighIndex
}

// GetCruiseSpeed returns the cruise_speed value or the default.
func (c *TuningConfig) GetCruiseSpeed() float64 {
	if c.CruiseSpeed == nil {
		return defaults.CruiseSpeed
	}
	return *c.CruiseSpeed
}

// GetCautionSpeed returns the caution_speed value or the default.
func (c *TuningConfig) GetCautionSpeed() float64 {
	if c.CautionSpeed == nil {
		return defaults.CautionSpeed
	}
	return *c.CautionSpeed
}

// GetSharpTurnAngleDeg returns the sharp_turn_angle_deg value or the default.
func (c *TuningConfig) GetSharpTurnAngleDeg() float64 {
	if c.SharpTurnAngleDeg == nil {
		return units.Degrees(defaults.SharpTurnAngle)
	}
	return *c.SharpTurnAngleDeg
}

// GetMaxSteeringAngleDeg returns the max_steering_angle_deg value or 0 (no clamp).
func (c *TuningConfig) GetMaxSteeringAngleDeg() float64 {
	if c.MaxSteeringAngleDeg == nil {
		return 0
	}
	return *c.MaxSteeringAngleDeg
}

// GetMaxRange returns the max_range value or the default.
func (c *TuningConfig) GetMaxRange() float64 {
	if c.MaxRange == nil {
		return defaults.MaxRange
	}
	return *c.MaxRange
}

// GetMaxInvalidFraction returns the max_invalid_fraction value or the default.
func (c *TuningConfig) GetMaxInvalidFraction() float64 {
	if c.MaxInvalidFraction == nil {
		return defaults.MaxInvalidFraction
	}
	return *c.MaxInvalidFraction
}

// GetExpectedSamples returns the expected_samples value or 0 (unknown).
func (c *TuningConfig) GetExpectedSamples() int {
	if c.ExpectedSamples == nil {
		return 0
	}
	return *c.ExpectedSamples
}

// GetQueueDepth returns the queue_depth value or the default.
func (c *TuningConfig) GetQueueDepth() int {
	if c.QueueDepth == nil {
		return 1
	}
	return *c.QueueDepth
}

// GetOverflow returns the overflow policy or the default.
func (c *TuningConfig) GetOverflow() string {
	if c.Overflow == nil || *c.Overflow == "" {
		return OverflowDropOldest
	}
	return *c.Overflow
}

// GetCycleDeadline parses and returns the CycleDeadline as a time.Duration.
func (c *TuningConfig) GetCycleDeadline() time.Duration {
	if c.CycleDeadline == nil || *c.CycleDeadline == "" {
		return 50 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.CycleDeadline)
	if err != nil {
		return 50 * time.Millisecond // default on parse error
	}
	return d
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}
