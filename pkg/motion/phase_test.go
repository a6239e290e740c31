package motion

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/243135-tech/lego-robotics/pkg/brick"
)

func testExecutor(sim *brick.Sim) *Executor {
	return NewExecutor(sim, SafetyLimits{
		AngleMin:     -120,
		AngleMax:     120,
		SoftVelocity: 300,
		HardVelocity: 600,
	})
}

func TestRunPhase_PositionCompletes(t *testing.T) {
	sim := brick.NewSim()
	exec := testExecutor(sim)

	res := exec.RunPhase(MotionSpec{
		Mode:           ModePosition,
		Label:          "FLEX",
		StartAngle:     0,
		TargetAngle:    30,
		KP:             4,
		MaxPower:       80,
		Duration:       600 * time.Millisecond,
		SecondaryScale: 1,
	}, NewToken())

	if res.Outcome != Completed {
		t.Fatalf("outcome: got %v, want completed (fault: %v)", res.Outcome, res.Fault)
	}
	if res.DisplacementPrimary <= 0 {
		t.Errorf("primary displacement: got %v, want positive", res.DisplacementPrimary)
	}
	if res.DisplacementSecondary <= 0 {
		t.Errorf("secondary displacement: got %v, want positive", res.DisplacementSecondary)
	}
	if res.Metrics.MoveTime <= 0 {
		t.Errorf("move time: got %v, want positive", res.Metrics.MoveTime)
	}
	if res.Metrics.Score <= 0 || res.Metrics.Score > 100 {
		t.Errorf("score out of (0, 100]: %v", res.Metrics.Score)
	}
	// Motors must be stopped after the phase.
	if sim.Duty(brick.Primary) != 0 || sim.Duty(brick.Secondary) != 0 {
		t.Errorf("motors left powered: %v, %v",
			sim.Duty(brick.Primary), sim.Duty(brick.Secondary))
	}
}

func TestRunPhase_HardVelocityAborts(t *testing.T) {
	sim := brick.NewSim()
	sim.DPSPerDuty = 10 // 100% duty -> 1000 deg/s, far past the hard limit
	exec := NewExecutor(sim, SafetyLimits{SoftVelocity: 60, HardVelocity: 150})

	res := exec.RunPhase(MotionSpec{
		Mode:           ModePower,
		Label:          "EXTEND",
		Duty:           100,
		MaxPower:       100,
		Duration:       2 * time.Second,
		SecondaryScale: 1,
	}, NewToken())

	if res.Outcome != Aborted {
		t.Fatalf("outcome: got %v, want aborted", res.Outcome)
	}
	var vf *VelocityFault
	if !errors.As(res.Fault, &vf) {
		t.Fatalf("fault: got %v, want *VelocityFault", res.Fault)
	}
	if sim.Duty(brick.Primary) != 0 || sim.Duty(brick.Secondary) != 0 {
		t.Error("motors left powered after abort")
	}
}

func TestRunPhase_CancelledBeforeStart(t *testing.T) {
	sim := brick.NewSim()
	exec := testExecutor(sim)

	tok := NewToken()
	tok.Cancel()

	start := time.Now()
	res := exec.RunPhase(MotionSpec{
		Mode:           ModePosition,
		StartAngle:     0,
		TargetAngle:    90,
		KP:             2,
		MaxPower:       80,
		Duration:       5 * time.Second,
		SecondaryScale: 1,
	}, tok)

	if res.Outcome != Cancelled {
		t.Fatalf("outcome: got %v, want cancelled", res.Outcome)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled phase did not return promptly")
	}
	if sim.Duty(brick.Primary) != 0 || sim.Duty(brick.Secondary) != 0 {
		t.Error("motors left powered after cancellation")
	}
	if res.Metrics.Score != 0 {
		t.Errorf("score of an empty trajectory: got %v, want 0", res.Metrics.Score)
	}
}

func TestRunPhase_PowerModeAntagonisticPair(t *testing.T) {
	sim := brick.NewSim()
	exec := testExecutor(sim)

	res := exec.RunPhase(MotionSpec{
		Mode:           ModePower,
		Label:          "FLEX",
		Duty:           40,
		RampFraction:   0.3,
		MaxPower:       100,
		Duration:       400 * time.Millisecond,
		SecondaryScale: -1,
	}, NewToken())

	if res.Outcome != Completed {
		t.Fatalf("outcome: got %v, want completed (fault: %v)", res.Outcome, res.Fault)
	}
	// Opposite drive directions must produce opposite displacements.
	if res.DisplacementPrimary <= 0 {
		t.Errorf("primary displacement: got %v, want positive", res.DisplacementPrimary)
	}
	if res.DisplacementSecondary >= 0 {
		t.Errorf("secondary displacement: got %v, want negative", res.DisplacementSecondary)
	}
}

func TestRunPhase_SettlingCompletes(t *testing.T) {
	sim := brick.NewSim()
	exec := testExecutor(sim)

	res := exec.RunPhase(MotionSpec{
		Mode:           ModeSettling,
		Label:          "FLEX",
		DeltaAngle:     30,
		Speed:          180,
		SecondaryScale: -1,
	}, NewToken())

	if res.Outcome != Completed {
		t.Fatalf("outcome: got %v, want completed", res.Outcome)
	}
	if math.Abs(res.DisplacementPrimary-30) > 2 {
		t.Errorf("primary displacement: got %v, want ~30", res.DisplacementPrimary)
	}
	if math.Abs(res.DisplacementSecondary+30) > 2 {
		t.Errorf("secondary displacement: got %v, want ~-30", res.DisplacementSecondary)
	}
}

func TestRunPhase_SensorFaultDegradesGracefully(t *testing.T) {
	sim := brick.NewSim()
	readErr := errors.New("spi: transfer failed")
	sim.ReadErr = func(m brick.Motor) error { return readErr }
	exec := testExecutor(sim)

	res := exec.RunPhase(MotionSpec{
		Mode:           ModePosition,
		StartAngle:     0,
		TargetAngle:    20,
		KP:             2,
		MaxPower:       60,
		Duration:       200 * time.Millisecond,
		SecondaryScale: 1,
	}, NewToken())

	// With no readable encoders the phase still terminates by elapsed
	// time and reports degenerate metrics instead of crashing.
	if res.Outcome != Completed {
		t.Fatalf("outcome: got %v, want completed", res.Outcome)
	}
	if res.Metrics.Score != 0 {
		t.Errorf("score: got %v, want 0 for an empty trajectory", res.Metrics.Score)
	}
	if !math.IsNaN(res.FinalAngle) {
		t.Errorf("final angle: got %v, want NaN", res.FinalAngle)
	}
}

func TestRunPhase_EndpointHold(t *testing.T) {
	sim := brick.NewSim()
	exec := testExecutor(sim)

	done := make(chan Result, 1)
	go func() {
		done <- exec.RunPhase(MotionSpec{
			Mode:           ModePosition,
			StartAngle:     0,
			TargetAngle:    10,
			KP:             3,
			MaxPower:       60,
			Duration:       200 * time.Millisecond,
			HoldPower:      15,
			HoldTime:       300 * time.Millisecond,
			SecondaryScale: 1,
		}, NewToken())
	}()

	// Sample the duty mid-hold: profile ends at 200ms, hold runs after.
	time.Sleep(350 * time.Millisecond)
	if d := sim.Duty(brick.Primary); !floatEquals(d, 15) {
		t.Errorf("hold duty: got %v, want 15", d)
	}

	res := <-done
	if res.Outcome != Completed {
		t.Fatalf("outcome: got %v, want completed", res.Outcome)
	}
	if sim.Duty(brick.Primary) != 0 {
		t.Error("motors left powered after hold")
	}
}

func TestOutcome_String(t *testing.T) {
	if Completed.String() != "completed" || Aborted.String() != "aborted" || Cancelled.String() != "cancelled" {
		t.Error("outcome names changed")
	}
}
