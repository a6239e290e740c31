package session

import (
	"math"
	"testing"
	"time"

	"github.com/243135-tech/lego-robotics/pkg/brick"
	"github.com/243135-tech/lego-robotics/pkg/motion"
)

func floatEquals(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// fastConfig is a position-mode session short enough for unit tests.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.AmplitudeDeg = 20
	cfg.ExtendDurationS = 0.3
	cfg.FlexDurationS = 0.3
	cfg.Repetitions = 3
	cfg.RestS = 0.05
	cfg.MidRestS = 0.05
	cfg.KP = 4
	cfg.SoftVelocityDPS = 500
	cfg.HardVelocityDPS = 1000
	cfg.HoldPowerPct = 0
	return cfg
}

func TestRunExecutesAllPhases(t *testing.T) {
	sim := brick.NewSim()
	sim.DPSPerDuty = 3

	seq, err := New(sim, fastConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var seen []PhaseReport
	seq.OnPhase = func(r PhaseReport) { seen = append(seen, r) }

	sum, err := seq.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Outcome != motion.Completed {
		t.Fatalf("outcome = %s, want completed", sum.Outcome)
	}
	if len(sum.Phases) != 6 {
		t.Fatalf("got %d phases, want 6", len(sum.Phases))
	}
	if len(seen) != 6 {
		t.Fatalf("progress callback fired %d times, want 6", len(seen))
	}
	if sum.ID == "" {
		t.Error("summary has no session id")
	}
	if sum.BatteryVolts <= 0 {
		t.Errorf("battery volts = %.1f, want positive", sum.BatteryVolts)
	}

	wantLabels := []string{"EXTEND", "FLEX"}
	for i, p := range sum.Phases {
		if p.Rep != i/2+1 {
			t.Errorf("phase %d: rep = %d, want %d", i, p.Rep, i/2+1)
		}
		if p.Label != wantLabels[i%2] {
			t.Errorf("phase %d: label = %s, want %s", i, p.Label, wantLabels[i%2])
		}
		if p.Result.Outcome != motion.Completed {
			t.Errorf("phase %d: outcome = %s", i, p.Result.Outcome)
		}
	}
}

func TestAverageScoreIsMeanOfPhaseScores(t *testing.T) {
	sim := brick.NewSim()
	sim.DPSPerDuty = 3

	seq, err := New(sim, fastConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sum, err := seq.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := 0.0
	for _, p := range sum.Phases {
		want += p.Result.Metrics.Score
	}
	want /= float64(len(sum.Phases))
	if !floatEquals(sum.AverageScore, want, 1e-9) {
		t.Errorf("average score = %.6f, want %.6f", sum.AverageScore, want)
	}
}

func TestCancelStopsSession(t *testing.T) {
	sim := brick.NewSim()
	sim.DPSPerDuty = 3

	cfg := fastConfig()
	cfg.ExtendDurationS = 2
	cfg.FlexDurationS = 2
	seq, err := New(sim, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan *Summary, 1)
	go func() {
		sum, _ := seq.Run()
		done <- sum
	}()
	time.Sleep(150 * time.Millisecond)
	seq.Cancel()

	select {
	case sum := <-done:
		if sum.Outcome != motion.Cancelled {
			t.Fatalf("outcome = %s, want cancelled", sum.Outcome)
		}
		if len(sum.Phases) > 1 {
			t.Errorf("got %d phases after early cancel, want at most 1", len(sum.Phases))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop after cancel")
	}

	for _, m := range brick.Motors() {
		if sim.Duty(m) != 0 {
			t.Errorf("%s still powered after cancel", m)
		}
	}
}

func TestInvertFlipsDirection(t *testing.T) {
	run := func(invert bool) float64 {
		sim := brick.NewSim()
		sim.DPSPerDuty = 3
		cfg := fastConfig()
		cfg.Repetitions = 1
		cfg.Invert = invert
		seq, err := New(sim, cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		sum, err := seq.Run()
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return sum.Phases[0].Result.DisplacementPrimary
	}

	if d := run(false); d >= 0 {
		t.Errorf("extend displacement = %.1f, want negative", d)
	}
	if d := run(true); d <= 0 {
		t.Errorf("inverted extend displacement = %.1f, want positive", d)
	}
}

func TestHomingZeroesPose(t *testing.T) {
	sim := brick.NewSim()
	sim.DPSPerDuty = 3
	sim.SetAngle(brick.Primary, 37)
	sim.SetAngle(brick.Secondary, -12)

	cfg := fastConfig()
	cfg.Repetitions = 1
	seq, err := New(sim, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sum, err := seq.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Outcome != motion.Completed {
		t.Fatalf("outcome = %s, want completed", sum.Outcome)
	}

	// The first phase starts from a zeroed encoder, so its final angle
	// must be near the extend target, not offset by the initial pose.
	got := sum.Phases[0].Result.FinalAngle
	if math.Abs(got-(-20)) > 8 {
		t.Errorf("extend final angle = %.1f, want near -20", got)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "teleport" }},
		{"zero amplitude", func(c *Config) { c.AmplitudeDeg = 0 }},
		{"empty angle range", func(c *Config) { c.AngleMinDeg, c.AngleMaxDeg = 50, -50 }},
		{"amplitude exceeds range", func(c *Config) { c.AmplitudeDeg = 500 }},
		{"zero reps", func(c *Config) { c.Repetitions = 0 }},
		{"negative rest", func(c *Config) { c.RestS = -1 }},
		{"zero duration", func(c *Config) { c.ExtendDurationS = 0 }},
		{"ramp too large", func(c *Config) { c.Mode = "power"; c.RampFraction = 0.7 }},
		{"soft above hard", func(c *Config) { c.SoftVelocityDPS = 400; c.HardVelocityDPS = 300 }},
		{"zero gain", func(c *Config) { c.KP = 0 }},
		{"power over 100", func(c *Config) { c.MaxPowerPct = 140 }},
		{"settling speed too low", func(c *Config) { c.Mode = "settling"; c.SpeedDPS = 5 }},
		{"settling speed too high", func(c *Config) { c.Mode = "settling"; c.SpeedDPS = 1000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config rejected: %v", err)
	}
}

func TestPresets(t *testing.T) {
	for _, level := range []string{"beginner", "intermediate", "advanced"} {
		cfg, err := Preset(level)
		if err != nil {
			t.Fatalf("Preset(%s): %v", level, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s does not validate: %v", level, err)
		}
	}
	if _, err := Preset("expert"); err == nil {
		t.Error("unknown preset level accepted")
	}

	b, _ := Preset("beginner")
	a, _ := Preset("advanced")
	if b.AmplitudeDeg >= a.AmplitudeDeg {
		t.Errorf("beginner amplitude %.0f not below advanced %.0f", b.AmplitudeDeg, a.AmplitudeDeg)
	}
	if b.Repetitions >= a.Repetitions {
		t.Errorf("beginner reps %d not below advanced %d", b.Repetitions, a.Repetitions)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := t.TempDir() + "/session.json"
	want := fastConfig()
	want.Invert = true
	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}
