package motion

import (
	"fmt"
	"math"
)

// negligibleDuty is the command magnitude below which soft scaling is
// skipped; scaling a near-zero command only amplifies noise.
const negligibleDuty = 1e-3

// VelocityFault is the hard-limit breach returned by Guard. It is fatal
// to the phase and never retried.
type VelocityFault struct {
	Velocity float64 // estimated joint velocity, deg/s
	Limit    float64 // hard limit, deg/s
}

func (f *VelocityFault) Error() string {
	return fmt.Sprintf("joint velocity %.1f deg/s exceeds hard limit %.1f deg/s",
		f.Velocity, f.Limit)
}

// Guard estimates the joint velocity between two samples and decides what
// to do with the commanded value: pass it through, scale it down to honor
// the soft limit, or fault on a hard limit breach.
//
// It never blocks, never retries, and never increases a command or changes
// its sign. If either sample carries an unreadable (NaN) position, the
// command passes through unchanged: there is no fresh data to judge.
func Guard(prev, cur Sample, cmd float64, lim SafetyLimits) (float64, *VelocityFault) {
	if !nanSafe(prev.Mean(), cur.Mean()) {
		return cmd, nil
	}
	dt := cur.T - prev.T
	if dt <= 0 {
		dt = SamplePeriod.Seconds()
	}
	v := (cur.Mean() - prev.Mean()) / dt
	av := math.Abs(v)

	if lim.HardVelocity > 0 && av > lim.HardVelocity {
		return 0, &VelocityFault{Velocity: v, Limit: lim.HardVelocity}
	}
	if lim.SoftVelocity > 0 && av > lim.SoftVelocity && math.Abs(cmd) > negligibleDuty {
		return cmd * lim.SoftVelocity / av, nil
	}
	return cmd, nil
}
