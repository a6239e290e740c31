package brick

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// STS3215 resolution: 4096 counts per revolution.
const countsPerDegree = 4096.0 / 360.0

// dutyStepMs is the per-command move time used when emulating duty drive.
const dutyStepMs = 20

// Feetech is a Bus backed by a pair of STS-series bus servos, used on the
// bench prototype that replaces the LEGO motors.
//
// The STS register map has no open-loop duty mode, so SetPower is emulated
// by commanding a short position step sized to the requested duty each
// control tick. SetSpeedLimit scales the emulation's full-duty speed.
type Feetech struct {
	mu     sync.Mutex
	bus    *feetech.Bus
	servos [2]*feetech.Servo
	offset [2]float64 // degrees subtracted from raw reads
	// maxDPS is the speed attributed to 100% duty in the emulation.
	maxDPS [2]float64
	ctx    context.Context
}

// OpenFeetech connects to two STS servos on a serial bus. primaryID and
// secondaryID are the servo bus IDs of the joint pair.
func OpenFeetech(port string, primaryID, secondaryID int) (*Feetech, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open servo bus: %w", err)
	}
	f := &Feetech{
		bus: bus,
		servos: [2]*feetech.Servo{
			feetech.NewServo(bus, primaryID, &feetech.ModelSTS3215),
			feetech.NewServo(bus, secondaryID, &feetech.ModelSTS3215),
		},
		maxDPS: [2]float64{180, 180},
		ctx:    context.Background(),
	}
	for i, s := range f.servos {
		if err := s.Enable(f.ctx); err != nil {
			bus.Close()
			return nil, fmt.Errorf("enable %s servo: %w", Motor(i), err)
		}
	}
	return f, nil
}

func (f *Feetech) rawPosition(m Motor) (float64, error) {
	counts, err := f.servos[m].Position(f.ctx)
	if err != nil {
		return math.NaN(), fmt.Errorf("read servo %s position: %w", m, err)
	}
	return float64(counts) / countsPerDegree, nil
}

func (f *Feetech) Position(m Motor) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deg, err := f.rawPosition(m)
	if err != nil {
		return math.NaN(), err
	}
	return deg - f.offset[m], nil
}

func (f *Feetech) SetPower(m Motor, duty float64) error {
	if duty > 100 {
		duty = 100
	} else if duty < -100 {
		duty = -100
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if duty == 0 {
		// Holding at the current position is the closest analogue of
		// zero duty on a geared servo joint.
		cur, err := f.servos[m].Position(f.ctx)
		if err != nil {
			return err
		}
		return f.servos[m].SetPositionWithTime(f.ctx, cur, dutyStepMs)
	}
	stepDeg := duty / 100 * f.maxDPS[m] * float64(dutyStepMs) / 1000
	cur, err := f.servos[m].Position(f.ctx)
	if err != nil {
		return err
	}
	target := cur + int(stepDeg*countsPerDegree)
	return f.servos[m].SetPositionWithTime(f.ctx, target, dutyStepMs)
}

func (f *Feetech) SetPositionRelative(m Motor, deltaDeg float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.servos[m].Position(f.ctx)
	if err != nil {
		return err
	}
	target := cur + int(deltaDeg*countsPerDegree)
	speed := f.maxDPS[m]
	moveMs := int(math.Abs(deltaDeg) / speed * 1000)
	if moveMs < dutyStepMs {
		moveMs = dutyStepMs
	}
	return f.servos[m].SetPositionWithTime(f.ctx, target, moveMs)
}

func (f *Feetech) SetSpeedLimit(m Motor, dps float64) error {
	if dps <= 0 {
		return fmt.Errorf("invalid speed limit %.1f", dps)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxDPS[m] = dps
	return nil
}

func (f *Feetech) OffsetPosition(m Motor, deg float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset[m] += deg
	return nil
}

// BatteryVoltage is not exposed by the STS register map through this
// driver; a nominal bus voltage is reported.
func (f *Feetech) BatteryVoltage() (float64, error) {
	return 7.4, nil
}

func (f *Feetech) ResetAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.servos {
		cur, err := s.Position(f.ctx)
		if err != nil {
			return err
		}
		if err := s.SetPositionWithTime(f.ctx, cur, dutyStepMs); err != nil {
			return err
		}
		f.offset[i] = 0
	}
	return nil
}

func (f *Feetech) Close() error {
	for _, s := range f.servos {
		s.Disable(f.ctx)
	}
	return f.bus.Close()
}

var _ Bus = (*Feetech)(nil)
