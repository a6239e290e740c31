// Package motion implements the real-time joint controller: setpoint
// profiles, the velocity guard, the sampled phase loop, and the smoothness
// analysis of recorded trajectories.
package motion

import (
	"math"
	"time"
)

// SamplePeriod is the control loop period (50 Hz).
const SamplePeriod = 20 * time.Millisecond

// settlePollPeriod is the poll interval of the settling-based strategy.
const settlePollPeriod = 50 * time.Millisecond

// Mode selects the drive strategy for one phase.
type Mode int

const (
	// ModePosition tracks a cosine position profile with closed-loop
	// proportional power control.
	ModePosition Mode = iota
	// ModePower applies an open-loop trapezoidal duty envelope.
	ModePower
	// ModeSettling issues a hardware-native relative move and waits for
	// the encoders to settle.
	ModeSettling
)

// String returns the mode name for logging.
func (m Mode) String() string {
	switch m {
	case ModePosition:
		return "position"
	case ModePower:
		return "power"
	case ModeSettling:
		return "settling"
	default:
		return "unknown"
	}
}

// MotionSpec describes one phase. It is built once by the session
// sequencer and immutable for the phase's lifetime.
type MotionSpec struct {
	Mode  Mode
	Label string // "EXTEND" or "FLEX", for logs and reports

	// Position mode.
	StartAngle  float64 // degrees
	TargetAngle float64 // degrees
	KP          float64 // proportional gain, deg error -> % power

	// Power mode.
	Duty         float64 // signed peak duty, percent
	RampFraction float64 // trapezoid ramp share of duration, [0, 0.5]

	// Settling mode.
	DeltaAngle float64 // relative move, degrees
	Speed      float64 // commanded speed, deg/s

	Duration time.Duration

	MaxPower float64 // |power| saturation, percent

	// Optional endpoint hold against gravity/straps.
	HoldPower float64 // percent, 0 disables
	HoldTime  time.Duration

	// SecondaryScale is the secondary actuator's command multiplier:
	// +1 for a same-direction pair, -1 for an antagonistic pair.
	SecondaryScale float64
}

// direction is the sign of the net commanded motion.
func (s MotionSpec) direction() float64 {
	var d float64
	switch s.Mode {
	case ModePosition:
		d = s.TargetAngle - s.StartAngle
	case ModePower:
		d = s.Duty
	case ModeSettling:
		d = s.DeltaAngle
	}
	if d < 0 {
		return -1
	}
	return 1
}

// Sample is one time-stamped encoder reading of both actuators.
type Sample struct {
	T         float64 `json:"t_s"` // seconds since phase start
	Primary   float64 `json:"primary_deg"`
	Secondary float64 `json:"secondary_deg"`
}

// Mean returns the logical joint angle, the mean of both encoders.
func (s Sample) Mean() float64 {
	return 0.5 * (s.Primary + s.Secondary)
}

// SafetyLimits bound each phase. Set once at session start, read-only
// while a phase runs.
type SafetyLimits struct {
	AngleMin     float64 // degrees
	AngleMax     float64 // degrees
	SoftVelocity float64 // deg/s, commands above this are scaled down
	HardVelocity float64 // deg/s, exceeding this aborts the phase
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nanSafe reports whether both endpoint positions of a velocity estimate
// are real numbers.
func nanSafe(a, b float64) bool {
	return !math.IsNaN(a) && !math.IsNaN(b)
}
