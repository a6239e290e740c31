package motion

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/243135-tech/lego-robotics/internal/log"
	"github.com/243135-tech/lego-robotics/pkg/brick"
)

// Outcome is the terminal state of one phase.
type Outcome int

const (
	// Completed means the phase ran to the end of its profile or settled.
	Completed Outcome = iota
	// Aborted means a hard velocity fault stopped the phase.
	Aborted
	// Cancelled means the caller's cancellation token stopped the phase.
	Cancelled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the outcome by name so reports and progress
// events stay readable off-board.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON parses the outcome name.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "completed":
		*o = Completed
	case "aborted":
		*o = Aborted
	case "cancelled":
		*o = Cancelled
	default:
		return fmt.Errorf("unknown outcome %q", s)
	}
	return nil
}

// Result is the typed outcome of one phase. Callers must handle Aborted
// explicitly; the fault is carried here, not raised.
type Result struct {
	Outcome               Outcome  `json:"outcome"`
	DisplacementPrimary   float64  `json:"displacement_primary_deg"`
	DisplacementSecondary float64  `json:"displacement_secondary_deg"`
	Metrics               Metrics  `json:"metrics"`
	FinalAngle            float64  `json:"final_angle_deg"` // logical joint angle
	Fault                 error    `json:"-"`
	FaultText             string   `json:"fault,omitempty"`
}

// Executor runs one phase at a time against an actuator pair. Limits are
// read-only while a phase runs; the bus must not be shared with another
// executor.
type Executor struct {
	bus    brick.Bus
	limits SafetyLimits
}

// NewExecutor creates a phase executor for the given pair and limits.
func NewExecutor(bus brick.Bus, limits SafetyLimits) *Executor {
	return &Executor{bus: bus, limits: limits}
}

// Limits returns the executor's safety limits.
func (e *Executor) Limits() SafetyLimits {
	return e.limits
}

// RunPhase executes one phase to its terminal state. Motors are always
// stopped before it returns, on every path.
func (e *Executor) RunPhase(spec MotionSpec, cancel *Token) Result {
	if spec.SecondaryScale == 0 {
		spec.SecondaryScale = 1
	}
	if spec.Mode == ModeSettling {
		return e.runSettling(spec, cancel)
	}
	return e.runProfile(spec, cancel)
}

// readPair reads both encoders, substituting NaN for a failed read so a
// transient sensor fault degrades the tick instead of crashing the phase.
func (e *Executor) readPair(readErrs *int) (float64, float64) {
	p, errP := e.bus.Position(brick.Primary)
	if errP != nil {
		p = math.NaN()
		*readErrs++
	}
	s, errS := e.bus.Position(brick.Secondary)
	if errS != nil {
		s = math.NaN()
		*readErrs++
	}
	return p, s
}

func (e *Executor) stopPair() {
	e.bus.SetPower(brick.Primary, 0)
	e.bus.SetPower(brick.Secondary, 0)
}

// runProfile is the fixed-period closed-loop strategy (position and power
// modes): evaluate the profile, guard the command, drive both actuators,
// record the trajectory.
func (e *Executor) runProfile(spec MotionSpec, cancel *Token) Result {
	prof := NewProfile(spec)
	duration := spec.Duration.Seconds()
	rec := NewRecorder(int(duration/SamplePeriod.Seconds()) + 4)

	readErrs := 0
	startP, startS := e.readPair(&readErrs)

	log.Debug("phase start",
		"label", spec.Label, "mode", spec.Mode.String(),
		"start", spec.StartAngle, "target", spec.TargetAngle,
		"duration_s", duration)

	outcome := Completed
	var fault error
	var prev Sample
	havePrev := false

	start := time.Now()
	next := start.Add(SamplePeriod)

	for {
		if cancel.Cancelled() {
			outcome = Cancelled
			break
		}
		t := time.Since(start).Seconds()
		if t > duration {
			break
		}

		p, s := e.readPair(&readErrs)
		cur := Sample{T: t, Primary: p, Secondary: s}

		var cmd float64
		switch spec.Mode {
		case ModePosition:
			desired := prof.Evaluate(t)
			cmd = Clamp(spec.KP*(desired-cur.Mean()), -spec.MaxPower, spec.MaxPower)
		case ModePower:
			cmd = Clamp(prof.Evaluate(t), -spec.MaxPower, spec.MaxPower)
		}

		if havePrev {
			scaled, vf := Guard(prev, cur, cmd, e.limits)
			if vf != nil {
				outcome = Aborted
				fault = vf
				break
			}
			cmd = scaled
		}

		// A NaN command means this tick had no usable encoder data in
		// position mode; keep the last applied power instead.
		if !math.IsNaN(cmd) {
			e.bus.SetPower(brick.Primary, cmd)
			e.bus.SetPower(brick.Secondary, cmd*spec.SecondaryScale)
		}

		rec.Append(cur)
		if nanSafe(p, s) {
			prev = cur
			havePrev = true
		}

		time.Sleep(time.Until(next))
		next = next.Add(SamplePeriod)
	}

	e.stopPair()

	if outcome == Completed && spec.HoldTime > 0 && spec.HoldPower > 0 {
		e.hold(spec, cancel)
	}

	return e.finish(spec, outcome, fault, rec, startP, startS, readErrs)
}

// hold applies a fixed-direction low-power command at the endpoint, then
// stops again.
func (e *Executor) hold(spec MotionSpec, cancel *Token) {
	hp := spec.direction() * Clamp(spec.HoldPower, 0, 100)
	e.bus.SetPower(brick.Primary, hp)
	e.bus.SetPower(brick.Secondary, hp*spec.SecondaryScale)
	deadline := time.Now().Add(spec.HoldTime)
	for time.Now().Before(deadline) && !cancel.Cancelled() {
		time.Sleep(settlePollPeriod)
	}
	e.stopPair()
}

// runSettling is the hardware-native strategy: command a relative move at
// a bounded speed and wait until both actuators' velocities stay low for a
// continuous window, or a timeout ceiling passes. The firmware's own
// position controller enforces the speed bound, so the velocity guard is
// not applied here.
func (e *Executor) runSettling(spec MotionSpec, cancel *Token) Result {
	speed := Clamp(spec.Speed, 10, 720)
	e.bus.SetSpeedLimit(brick.Primary, speed)
	e.bus.SetSpeedLimit(brick.Secondary, speed)

	readErrs := 0
	startP, startS := e.readPair(&readErrs)

	log.Debug("phase start",
		"label", spec.Label, "mode", spec.Mode.String(),
		"delta", spec.DeltaAngle, "speed_dps", speed)

	e.bus.SetPositionRelative(brick.Primary, spec.DeltaAngle)
	e.bus.SetPositionRelative(brick.Secondary, spec.DeltaAngle*spec.SecondaryScale)

	settleThresh := math.Max(5, 0.1*speed)
	timeout := math.Max(2.0, 10.0+360.0/speed)
	const settleWindow = 0.3

	rec := NewRecorder(int(timeout/settlePollPeriod.Seconds()) + 4)
	outcome := Completed
	stable := 0.0
	lastP, lastS := startP, startS
	start := time.Now()

	for {
		if cancel.Cancelled() {
			outcome = Cancelled
			break
		}
		time.Sleep(settlePollPeriod)
		t := time.Since(start).Seconds()
		p, s := e.readPair(&readErrs)
		rec.Append(Sample{T: t, Primary: p, Secondary: s})

		dt := settlePollPeriod.Seconds()
		vP := math.Inf(1)
		vS := math.Inf(1)
		if nanSafe(p, lastP) {
			vP = math.Abs((p - lastP) / dt)
		}
		if nanSafe(s, lastS) {
			vS = math.Abs((s - lastS) / dt)
		}
		lastP, lastS = p, s

		if vP < settleThresh && vS < settleThresh {
			stable += dt
		} else {
			stable = 0
		}
		if stable > settleWindow {
			break
		}
		if t > timeout {
			log.Warn("settling timeout", "label", spec.Label, "after_s", t)
			break
		}
	}

	if outcome == Cancelled {
		// Cancellation must never leave the pair powered; a normal
		// settle keeps the firmware's position hold engaged instead,
		// released by ResetAll at session teardown.
		e.stopPair()
	}

	return e.finish(spec, outcome, nil, rec, startP, startS, readErrs)
}

// finish computes displacements, metrics, and the final logical angle.
func (e *Executor) finish(spec MotionSpec, outcome Outcome, fault error,
	rec *Recorder, startP, startS float64, readErrs int) Result {

	if outcome == Aborted {
		e.stopPair()
	}

	endReadErrs := 0
	endP, endS := e.readPair(&endReadErrs)
	readErrs += endReadErrs

	res := Result{
		Outcome:               outcome,
		DisplacementPrimary:   endP - startP,
		DisplacementSecondary: endS - startS,
		Metrics:               Analyze(rec.Samples()),
		FinalAngle:            0.5 * (endP + endS),
		Fault:                 fault,
	}
	if fault != nil {
		res.FaultText = fault.Error()
	}
	if readErrs > 0 {
		log.Warn("encoder reads failed during phase",
			"label", spec.Label, "count", readErrs)
	}

	log.Info("phase done",
		"label", spec.Label, "outcome", outcome.String(),
		"score", res.Metrics.Score,
		"peak_vel_dps", res.Metrics.PeakVelocity,
		"final_angle", res.FinalAngle)

	return res
}
