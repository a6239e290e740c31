package session

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/243135-tech/lego-robotics/internal/log"
	"github.com/243135-tech/lego-robotics/pkg/brick"
	"github.com/243135-tech/lego-robotics/pkg/motion"
	"github.com/243135-tech/lego-robotics/pkg/telemetry"
)

const (
	lowBatteryVolts = 8.0
	restPollPeriod  = 50 * time.Millisecond
)

// PhaseReport describes one executed phase of a session.
type PhaseReport struct {
	SessionID string        `json:"session_id"`
	Rep       int           `json:"rep"`
	Label     string        `json:"label"`
	Result    motion.Result `json:"result"`
}

// Summary is the record of a whole session. Phases holds every phase
// that was started, in execution order, including a final aborted or
// cancelled one.
type Summary struct {
	ID           string         `json:"id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Config       Config         `json:"config"`
	BatteryVolts float64        `json:"battery_volts,omitempty"`
	Phases       []PhaseReport  `json:"phases"`
	AverageScore float64        `json:"average_score"`
	Outcome      motion.Outcome `json:"outcome"`
}

// Sequencer drives one session at a time: homing, the rep loop, rests
// between phases, and final actuator release.
type Sequencer struct {
	bus   brick.Bus
	cfg   Config
	token *motion.Token
	pub   telemetry.Publisher

	// OnPhase, when set, is called after every executed phase.
	OnPhase func(PhaseReport)
}

// New validates the configuration and builds a sequencer. No hardware
// is touched until Run.
func New(bus brick.Bus, cfg Config) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	return &Sequencer{
		bus:   bus,
		cfg:   cfg,
		token: motion.NewToken(),
		pub:   telemetry.Noop{},
	}, nil
}

// SetPublisher routes phase and summary events to pub. Nil restores the
// no-op publisher.
func (s *Sequencer) SetPublisher(pub telemetry.Publisher) {
	if pub == nil {
		pub = telemetry.Noop{}
	}
	s.pub = pub
}

// Cancel requests a cooperative stop. The running phase winds down and
// no further phase starts.
func (s *Sequencer) Cancel() {
	s.token.Cancel()
}

// Run executes the full session and returns its summary. The summary is
// returned even when the session ends early; err is non-nil only for
// setup failures and hard safety faults.
func (s *Sequencer) Run() (*Summary, error) {
	sum := &Summary{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Config:    s.cfg,
	}
	logger := log.With("session", sum.ID, "mode", s.cfg.Mode)
	logger.Info("session starting", "reps", s.cfg.Repetitions, "amplitude", s.cfg.AmplitudeDeg)

	// Motors always end floating, whatever path we exit on.
	defer func() {
		if err := s.bus.ResetAll(); err != nil {
			logger.Warn("reset failed", "error", err)
		}
		sum.FinishedAt = time.Now()
	}()

	if v, err := s.bus.BatteryVoltage(); err != nil {
		logger.Warn("battery read failed", "error", err)
	} else {
		sum.BatteryVolts = v
		if v < lowBatteryVolts {
			logger.Warn("battery low", "volts", v)
		}
	}

	if err := s.home(); err != nil {
		sum.Outcome = motion.Aborted
		return sum, err
	}

	exec := motion.NewExecutor(s.bus, motion.SafetyLimits{
		AngleMin:     s.cfg.AngleMinDeg,
		AngleMax:     s.cfg.AngleMaxDeg,
		SoftVelocity: s.cfg.SoftVelocityDPS,
		HardVelocity: s.cfg.HardVelocityDPS,
	})

	sign := 1.0
	if s.cfg.Invert {
		sign = -1.0
	}
	phases := [2]struct {
		label    string
		delta    float64
		duration float64
	}{
		{"EXTEND", -sign * s.cfg.AmplitudeDeg, s.cfg.ExtendDurationS},
		{"FLEX", sign * s.cfg.AmplitudeDeg, s.cfg.FlexDurationS},
	}

	var runErr error
	logical := 0.0
	outcome := motion.Completed

loop:
	for rep := 1; rep <= s.cfg.Repetitions; rep++ {
		for i, p := range phases {
			if s.token.Cancelled() {
				outcome = motion.Cancelled
				break loop
			}

			spec, err := s.phaseSpec(p.label, p.delta, p.duration, logical)
			if err != nil {
				outcome = motion.Aborted
				runErr = err
				break loop
			}
			res := exec.RunPhase(spec, s.token)

			report := PhaseReport{SessionID: sum.ID, Rep: rep, Label: p.label, Result: res}
			sum.Phases = append(sum.Phases, report)
			s.publish("session/phase", report)
			if s.OnPhase != nil {
				s.OnPhase(report)
			}

			if res.Outcome != motion.Completed {
				outcome = res.Outcome
				if res.Fault != nil {
					runErr = fmt.Errorf("rep %d %s: %w", rep, p.label, res.Fault)
				}
				break loop
			}

			// Position phases chain: the next target builds on where
			// the joint actually settled.
			if spec.Mode == motion.ModePosition {
				logical = res.FinalAngle
			}

			if i == 0 && !s.rest(s.cfg.MidRestS) {
				outcome = motion.Cancelled
				break loop
			}
		}
		if rep < s.cfg.Repetitions && !s.rest(s.cfg.RestS) {
			outcome = motion.Cancelled
			break loop
		}
	}

	sum.Outcome = outcome
	sum.AverageScore = averageScore(sum.Phases)
	s.publish("session/summary", sum)
	logger.Info("session finished",
		"outcome", outcome.String(),
		"phases", len(sum.Phases),
		"avg_score", sum.AverageScore)
	return sum, runErr
}

// home re-zeroes both encoders at the current pose and floats the pair,
// so every session starts from logical angle zero.
func (s *Sequencer) home() error {
	for _, m := range brick.Motors() {
		pos, err := s.bus.Position(m)
		if err != nil {
			return fmt.Errorf("homing: read %s position: %w", m, err)
		}
		if err := s.bus.OffsetPosition(m, pos); err != nil {
			return fmt.Errorf("homing: zero %s encoder: %w", m, err)
		}
		if err := s.bus.SetPower(m, 0); err != nil {
			return fmt.Errorf("homing: release %s: %w", m, err)
		}
	}
	return nil
}

// phaseSpec translates the session config into one executor phase.
// delta carries the signed excursion for this phase, logical the joint
// angle at the start of a position phase.
func (s *Sequencer) phaseSpec(label string, delta, duration, logical float64) (motion.MotionSpec, error) {
	mode, err := s.cfg.motionMode()
	if err != nil {
		return motion.MotionSpec{}, err
	}
	spec := motion.MotionSpec{
		Mode:           mode,
		Label:          label,
		MaxPower:       s.cfg.MaxPowerPct,
		HoldPower:      s.cfg.HoldPowerPct,
		HoldTime:       time.Duration(s.cfg.HoldTimeS * float64(time.Second)),
		SecondaryScale: 1,
	}
	switch mode {
	case motion.ModePosition:
		spec.StartAngle = logical
		spec.TargetAngle = motion.Clamp(logical+delta, s.cfg.AngleMinDeg, s.cfg.AngleMaxDeg)
		spec.KP = s.cfg.KP
		spec.Duration = time.Duration(duration * float64(time.Second))
	case motion.ModePower:
		duty := s.cfg.DutyPct
		if delta < 0 {
			duty = -duty
		}
		spec.Duty = duty
		spec.RampFraction = s.cfg.RampFraction
		spec.Duration = time.Duration(duration * float64(time.Second))
	case motion.ModeSettling:
		spec.DeltaAngle = delta
		spec.Speed = s.cfg.SpeedDPS
		spec.SecondaryScale = -1
	}
	return spec, nil
}

// rest sleeps for d seconds, waking every 50 ms to honour cancellation.
// It reports false when the session was cancelled.
func (s *Sequencer) rest(d float64) bool {
	if d <= 0 {
		return !s.token.Cancelled()
	}
	deadline := time.Now().Add(time.Duration(d * float64(time.Second)))
	for time.Now().Before(deadline) {
		if s.token.Cancelled() {
			return false
		}
		time.Sleep(restPollPeriod)
	}
	return !s.token.Cancelled()
}

func (s *Sequencer) publish(topic string, payload any) {
	if err := s.pub.Publish(topic, payload); err != nil {
		log.Warn("telemetry publish failed", "topic", topic, "error", err)
	}
}

// averageScore is the arithmetic mean of the per-phase scores. NaN
// scores from degenerate phases are excluded; no valid score yields 0.
func averageScore(phases []PhaseReport) float64 {
	sum, n := 0.0, 0
	for _, p := range phases {
		if math.IsNaN(p.Result.Metrics.Score) {
			continue
		}
		sum += p.Result.Metrics.Score
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
