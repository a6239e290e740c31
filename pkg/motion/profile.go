package motion

import "math"

// Profile produces the instantaneous desired setpoint (position mode,
// degrees) or duty (power mode, percent) for a motion spec. Evaluate is a
// pure function of elapsed time.
type Profile struct {
	spec MotionSpec
}

// NewProfile builds the profile for one phase.
func NewProfile(spec MotionSpec) Profile {
	return Profile{spec: spec}
}

// Evaluate returns the desired value at elapsed seconds since phase start.
func (p Profile) Evaluate(elapsed float64) float64 {
	switch p.spec.Mode {
	case ModePosition:
		return p.cosine(elapsed)
	case ModePower:
		return p.trapezoid(elapsed)
	default:
		return 0
	}
}

// cosine eases from start to target with zero velocity at both endpoints:
// s(t) = 0.5 - 0.5*cos(pi*t/T).
func (p Profile) cosine(t float64) float64 {
	T := p.spec.Duration.Seconds()
	t = Clamp(t, 0, T)
	s := 0.5 - 0.5*math.Cos(math.Pi*t/T)
	return p.spec.StartAngle + (p.spec.TargetAngle-p.spec.StartAngle)*s
}

// trapezoid ramps duty up, cruises, and ramps back down. The ramp length
// is at most half the duration; outside [0, T] the duty is zero.
func (p Profile) trapezoid(t float64) float64 {
	T := p.spec.Duration.Seconds()
	if t < 0 || t > T {
		return 0
	}
	ramp := Clamp(p.spec.RampFraction, 0, 0.5) * T
	if ramp <= 0 {
		return p.spec.Duty
	}
	switch {
	case t < ramp:
		return p.spec.Duty * t / ramp
	case t > T-ramp:
		return p.spec.Duty * (T - t) / ramp
	default:
		return p.spec.Duty
	}
}
