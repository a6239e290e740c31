package motion

import "math"

// minSamples is the shortest trajectory the analyzer accepts; three
// differentiation levels eat three samples, and two jerk points are the
// minimum for a meaningful RMS.
const minSamples = 5

// peakVelEpsilon prevents division by zero when normalizing jerk.
const peakVelEpsilon = 1e-6

// Metrics summarizes the kinematic quality of one executed phase.
type Metrics struct {
	RMSJerk          float64 `json:"rms_jerk"`           // deg/s^3
	AccZeroCrossings int     `json:"acc_zero_crossings"` // sign flips of acceleration
	PeakVelocity     float64 `json:"peak_velocity"`      // deg/s
	MoveTime         float64 `json:"move_time_s"`
	Score            float64 `json:"score"` // (0, 100], higher is smoother
}

// Analyze derives velocity, acceleration, and jerk from a recorded
// trajectory (using the mean of the two actuators as the joint position)
// and computes a bounded smoothness score.
//
// With fewer than five samples it returns degenerate metrics: NaN RMS
// jerk and a zero score.
func Analyze(samples []Sample) Metrics {
	n := len(samples)
	if n < minSamples {
		m := Metrics{RMSJerk: math.NaN()}
		if n > 0 {
			m.MoveTime = samples[n-1].T - samples[0].T
		}
		return m
	}

	ts := make([]float64, n)
	xs := make([]float64, n)
	for i, s := range samples {
		ts[i] = s.T
		xs[i] = s.Mean()
	}

	tv, v := deriv(ts, xs)
	ta, a := deriv(tv, v)
	_, j := deriv(ta, a)

	var m Metrics
	m.MoveTime = ts[n-1] - ts[0]

	for _, vel := range v {
		if av := math.Abs(vel); av > m.PeakVelocity {
			m.PeakVelocity = av
		}
	}

	for i := 1; i < len(a); i++ {
		if (a[i-1] > 0 && a[i] < 0) || (a[i-1] < 0 && a[i] > 0) {
			m.AccZeroCrossings++
		}
	}

	if len(j) > 0 {
		var sum float64
		for _, jv := range j {
			sum += jv * jv
		}
		m.RMSJerk = math.Sqrt(sum / float64(len(j)))
	}

	// Normalize by peak velocity to reduce amplitude dependence.
	normJerk := m.RMSJerk / math.Max(m.PeakVelocity, peakVelEpsilon)
	m.Score = 100.0 / (1.0 + 15.0*normJerk)

	return m
}

// deriv returns the first-difference derivative of xs over ts, one element
// shorter, with non-positive intervals replaced by the nominal sample
// period. The returned time series aligns each derivative with the end of
// its interval so the rule applies identically at every level.
func deriv(ts, xs []float64) ([]float64, []float64) {
	n := len(xs) - 1
	if n < 1 {
		return nil, nil
	}
	tout := make([]float64, 0, n)
	out := make([]float64, 0, n)
	for i := 1; i < len(xs); i++ {
		dt := ts[i] - ts[i-1]
		if dt <= 0 {
			dt = SamplePeriod.Seconds()
		}
		out = append(out, (xs[i]-xs[i-1])/dt)
		tout = append(tout, ts[i])
	}
	return tout, out
}
