// Package session orchestrates complete flex/extend therapy sessions:
// repetition sequencing, rest intervals, homing, cancellation, and the
// aggregation of per-phase smoothness metrics.
package session

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/243135-tech/lego-robotics/pkg/motion"
)

// Config is the session-level configuration surface. It is validated
// before any hardware action is taken.
type Config struct {
	// Mode selects the drive strategy: "position", "power" or "settling".
	Mode string `json:"mode"`

	AmplitudeDeg    float64 `json:"amplitude_deg"`
	ExtendDurationS float64 `json:"extend_duration_s"`
	FlexDurationS   float64 `json:"flex_duration_s"`
	Repetitions     int     `json:"repetitions"`
	RestS           float64 `json:"rest_between_repetitions_s"`
	MidRestS        float64 `json:"rest_between_phases_s"`

	RampFraction float64 `json:"ramp_fraction"`     // power mode
	KP           float64 `json:"gain_kp"`           // position mode
	DutyPct      float64 `json:"duty_percent"`      // power mode envelope peak
	SpeedDPS     float64 `json:"speed_dps"`         // settling mode
	MaxPowerPct  float64 `json:"max_power_percent"`

	SoftVelocityDPS float64 `json:"soft_velocity_limit_dps"`
	HardVelocityDPS float64 `json:"hard_velocity_limit_dps"`

	HoldPowerPct float64 `json:"hold_power_percent"`
	HoldTimeS    float64 `json:"hold_time_s"`

	// Invert swaps the extend/flex sign convention for mirrored builds.
	Invert bool `json:"invert"`

	AngleMinDeg float64 `json:"angle_min_deg"`
	AngleMaxDeg float64 `json:"angle_max_deg"`
}

// DefaultConfig returns a conservative position-mode session.
func DefaultConfig() Config {
	return Config{
		Mode:            "position",
		AmplitudeDeg:    45,
		ExtendDurationS: 2.0,
		FlexDurationS:   2.0,
		Repetitions:     3,
		RestS:           1.0,
		MidRestS:        0.5,
		RampFraction:    0.25,
		KP:              0.7,
		DutyPct:         60,
		SpeedDPS:        180,
		MaxPowerPct:     80,
		SoftVelocityDPS: 160,
		HardVelocityDPS: 280,
		HoldPowerPct:    0,
		HoldTimeS:       0.5,
		AngleMinDeg:     -120,
		AngleMaxDeg:     120,
	}
}

// Preset returns the protocol for a patient level: "beginner",
// "intermediate" or "advanced".
func Preset(level string) (Config, error) {
	cfg := DefaultConfig()
	switch level {
	case "beginner":
		cfg.AmplitudeDeg = 30
		cfg.Repetitions = 3
		cfg.ExtendDurationS = 1.5
		cfg.FlexDurationS = 1.5
		cfg.SpeedDPS = 20
	case "intermediate":
		cfg.AmplitudeDeg = 60
		cfg.Repetitions = 5
		cfg.ExtendDurationS = 2.0
		cfg.FlexDurationS = 2.0
		cfg.SpeedDPS = 30
	case "advanced":
		cfg.AmplitudeDeg = 90
		cfg.Repetitions = 8
		cfg.ExtendDurationS = 2.2
		cfg.FlexDurationS = 2.2
		cfg.SpeedDPS = 40
	default:
		return Config{}, fmt.Errorf("unknown patient level %q", level)
	}
	return cfg, nil
}

// motionMode maps the config's mode string to the executor's mode.
func (c Config) motionMode() (motion.Mode, error) {
	switch c.Mode {
	case "position":
		return motion.ModePosition, nil
	case "power":
		return motion.ModePower, nil
	case "settling":
		return motion.ModeSettling, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", c.Mode)
	}
}

// Validate rejects out-of-range configuration before any phase starts.
func (c Config) Validate() error {
	mode, err := c.motionMode()
	if err != nil {
		return err
	}
	if c.AmplitudeDeg <= 0 {
		return fmt.Errorf("amplitude must be positive, got %.1f", c.AmplitudeDeg)
	}
	if c.AngleMinDeg >= c.AngleMaxDeg {
		return fmt.Errorf("angle range [%.1f, %.1f] is empty", c.AngleMinDeg, c.AngleMaxDeg)
	}
	if c.AmplitudeDeg > c.AngleMaxDeg-c.AngleMinDeg {
		return fmt.Errorf("amplitude %.1f exceeds the angle range", c.AmplitudeDeg)
	}
	if c.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1, got %d", c.Repetitions)
	}
	if c.RestS < 0 || c.MidRestS < 0 {
		return fmt.Errorf("rest intervals must not be negative")
	}
	if c.MaxPowerPct < 0 || c.MaxPowerPct > 100 {
		return fmt.Errorf("max power must be in [0, 100], got %.1f", c.MaxPowerPct)
	}
	if c.HoldPowerPct < 0 || c.HoldPowerPct > 100 {
		return fmt.Errorf("hold power must be in [0, 100], got %.1f", c.HoldPowerPct)
	}
	if c.HoldTimeS < 0 {
		return fmt.Errorf("hold time must not be negative, got %.2f", c.HoldTimeS)
	}

	switch mode {
	case motion.ModePosition, motion.ModePower:
		if c.ExtendDurationS <= 0 || c.FlexDurationS <= 0 {
			return fmt.Errorf("phase durations must be positive")
		}
		if c.RampFraction < 0 || c.RampFraction > 0.5 {
			return fmt.Errorf("ramp fraction must be in [0, 0.5], got %.2f", c.RampFraction)
		}
		if c.SoftVelocityDPS <= 0 || c.HardVelocityDPS <= c.SoftVelocityDPS {
			return fmt.Errorf("velocity limits must satisfy 0 < soft < hard, got %.1f/%.1f",
				c.SoftVelocityDPS, c.HardVelocityDPS)
		}
		if mode == motion.ModePosition && c.KP <= 0 {
			return fmt.Errorf("gain kp must be positive, got %.2f", c.KP)
		}
		if mode == motion.ModePower && (c.DutyPct <= 0 || c.DutyPct > 100) {
			return fmt.Errorf("duty must be in (0, 100], got %.1f", c.DutyPct)
		}
	case motion.ModeSettling:
		if c.SpeedDPS < 10 || c.SpeedDPS > 720 {
			return fmt.Errorf("speed must be in [10, 720] deg/s, got %.1f", c.SpeedDPS)
		}
	}
	return nil
}

// LoadConfig reads a session configuration from a JSON file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read session config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse session config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
