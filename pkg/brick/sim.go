package brick

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Sim is an in-process actuator pair for development and tests.
//
// Open-loop power integrates into position at DPSPerDuty degrees/second per
// duty percent; hardware-native relative moves run toward their target at
// the configured speed limit, mirroring the BrickPi3 firmware's built-in
// position controller.
type Sim struct {
	mu sync.Mutex

	pos        [2]float64 // degrees
	duty       [2]float64
	target     [2]float64 // hardware-native move target
	moving     [2]bool
	speedLimit [2]float64 // dps, 0 = unlimited
	last       time.Time

	// DPSPerDuty is the no-load speed contribution per duty percent.
	// The default approximates a NXT motor under light load.
	DPSPerDuty float64

	// Battery is the reported supply voltage.
	Battery float64

	// ReadErr, when set, is consulted on every Position call and lets
	// tests inject sensor read faults.
	ReadErr func(m Motor) error

	// Noise, when set, is added to every position reading.
	Noise func() float64
}

// NewSim returns a simulator with nominal defaults.
func NewSim() *Sim {
	return &Sim{
		DPSPerDuty: 1.5,
		Battery:    9.6,
		last:       time.Now(),
	}
}

// step advances the simulated state to now. Callers hold mu.
func (s *Sim) step() {
	now := time.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt <= 0 {
		return
	}
	for i := range s.pos {
		if s.moving[i] {
			speed := s.speedLimit[i]
			if speed <= 0 {
				speed = 360
			}
			remain := s.target[i] - s.pos[i]
			step := speed * dt
			if math.Abs(remain) <= step {
				s.pos[i] = s.target[i]
				s.moving[i] = false
			} else {
				s.pos[i] += math.Copysign(step, remain)
			}
			continue
		}
		s.pos[i] += s.duty[i] * s.DPSPerDuty * dt
	}
}

func (s *Sim) Position(m Motor) (float64, error) {
	if s.ReadErr != nil {
		if err := s.ReadErr(m); err != nil {
			return math.NaN(), err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	p := s.pos[m]
	if s.Noise != nil {
		p += s.Noise()
	}
	return p, nil
}

func (s *Sim) SetPower(m Motor, duty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	s.moving[m] = false
	if duty > 100 {
		duty = 100
	} else if duty < -100 {
		duty = -100
	}
	s.duty[m] = duty
	return nil
}

func (s *Sim) SetPositionRelative(m Motor, deltaDeg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	s.duty[m] = 0
	s.target[m] = s.pos[m] + deltaDeg
	s.moving[m] = true
	return nil
}

func (s *Sim) SetSpeedLimit(m Motor, dps float64) error {
	if dps < 0 {
		return fmt.Errorf("sim: negative speed limit %.1f", dps)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speedLimit[m] = dps
	return nil
}

func (s *Sim) OffsetPosition(m Motor, deg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	s.pos[m] -= deg
	if s.moving[m] {
		s.target[m] -= deg
	}
	return nil
}

func (s *Sim) BatteryVoltage() (float64, error) {
	return s.Battery, nil
}

func (s *Sim) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	for i := range s.duty {
		s.duty[i] = 0
		s.moving[i] = false
	}
	return nil
}

func (s *Sim) Close() error {
	return s.ResetAll()
}

// Duty returns the last commanded duty, for assertions in tests.
func (s *Sim) Duty(m Motor) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty[m]
}

// SetAngle teleports an actuator, for test setup.
func (s *Sim) SetAngle(m Motor, deg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	s.pos[m] = deg
}

var _ Bus = (*Sim)(nil)
