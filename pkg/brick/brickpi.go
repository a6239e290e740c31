package brick

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// BrickPi3 message types (firmware 1.4.x).
const (
	msgGetManufacturer    = 1
	msgGetName            = 2
	msgGetHardwareVersion = 3
	msgGetFirmwareVersion = 4
	msgGetVoltageVCC      = 10
	msgSetMotorPower      = 21
	msgSetMotorPosition   = 22
	msgSetMotorDPS        = 25
	msgSetMotorLimits     = 28
	msgOffsetMotorEncoder = 29
	msgGetMotorBEncoder   = 31
	msgGetMotorCEncoder   = 32
)

// Motor port bitmasks.
const (
	portA = 0x01
	portB = 0x02
	portC = 0x04
	portD = 0x08
)

// motorFloat is the magic power value that puts a motor in coast mode.
const motorFloat = -128

// spiAck is the acknowledge byte the firmware places before reply payloads.
const spiAck = 0xA5

// BrickPi is a Bus backed by a Dexter Industries BrickPi3 board over SPI.
// The joint pair sits on ports B (primary) and C (secondary), matching the
// physical build.
type BrickPi struct {
	mu      sync.Mutex
	port    spi.PortCloser
	conn    spi.Conn
	address byte
}

// OpenBrickPi connects to the BrickPi3 on the default SPI port
// (/dev/spidev0.1 on a Raspberry Pi) at address 1.
func OpenBrickPi() (*BrickPi, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph host: %w", err)
	}
	port, err := spireg.Open("SPI0.1")
	if err != nil {
		return nil, fmt.Errorf("open SPI port: %w", err)
	}
	conn, err := port.Connect(500*physic.KiloHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI: %w", err)
	}
	return &BrickPi{port: port, conn: conn, address: 1}, nil
}

func (b *BrickPi) portBits(m Motor) byte {
	if m == Primary {
		return portB
	}
	return portC
}

func (b *BrickPi) encoderMsg(m Motor) byte {
	if m == Primary {
		return msgGetMotorBEncoder
	}
	return msgGetMotorCEncoder
}

// transfer runs one full-duplex SPI transaction.
func (b *BrickPi) transfer(out []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	in := make([]byte, len(out))
	if err := b.conn.Tx(out, in); err != nil {
		return nil, fmt.Errorf("spi transaction: %w", err)
	}
	return in, nil
}

// write sends a command with no reply payload.
func (b *BrickPi) write(msg byte, payload ...byte) error {
	out := append([]byte{b.address, msg}, payload...)
	_, err := b.transfer(out)
	return err
}

// read32 reads a 32-bit big-endian value.
func (b *BrickPi) read32(msg byte) (int32, error) {
	out := make([]byte, 8)
	out[0] = b.address
	out[1] = msg
	in, err := b.transfer(out)
	if err != nil {
		return 0, err
	}
	if in[3] != spiAck {
		return 0, fmt.Errorf("no SPI response for message %d", msg)
	}
	v := uint32(in[4])<<24 | uint32(in[5])<<16 | uint32(in[6])<<8 | uint32(in[7])
	return int32(v), nil
}

// read16 reads a 16-bit big-endian value.
func (b *BrickPi) read16(msg byte) (uint16, error) {
	out := make([]byte, 6)
	out[0] = b.address
	out[1] = msg
	in, err := b.transfer(out)
	if err != nil {
		return 0, err
	}
	if in[3] != spiAck {
		return 0, fmt.Errorf("no SPI response for message %d", msg)
	}
	return uint16(in[4])<<8 | uint16(in[5]), nil
}

// readString reads a fixed-length ASCII reply.
func (b *BrickPi) readString(msg byte, n int) (string, error) {
	out := make([]byte, n+4)
	out[0] = b.address
	out[1] = msg
	in, err := b.transfer(out)
	if err != nil {
		return "", err
	}
	if in[3] != spiAck {
		return "", fmt.Errorf("no SPI response for message %d", msg)
	}
	raw := in[4:]
	for i, c := range raw {
		if c == 0 {
			raw = raw[:i]
			break
		}
	}
	return string(raw), nil
}

// Position reads the motor encoder. BrickPi3 encoders report degrees.
func (b *BrickPi) Position(m Motor) (float64, error) {
	v, err := b.read32(b.encoderMsg(m))
	if err != nil {
		return 0, fmt.Errorf("read %s encoder: %w", m, err)
	}
	return float64(v), nil
}

func (b *BrickPi) SetPower(m Motor, duty float64) error {
	if duty > 100 {
		duty = 100
	} else if duty < -100 {
		duty = -100
	}
	return b.write(msgSetMotorPower, b.portBits(m), byte(int8(duty)))
}

func (b *BrickPi) SetPositionRelative(m Motor, deltaDeg float64) error {
	cur, err := b.Position(m)
	if err != nil {
		return err
	}
	target := int32(cur + deltaDeg)
	return b.write(msgSetMotorPosition, b.portBits(m),
		byte(target>>24), byte(target>>16), byte(target>>8), byte(target))
}

func (b *BrickPi) SetSpeedLimit(m Motor, dps float64) error {
	if dps < 0 {
		return fmt.Errorf("negative speed limit %.1f", dps)
	}
	d := uint16(dps)
	// Power limit 0 means "no additional duty limit".
	return b.write(msgSetMotorLimits, b.portBits(m), 0, byte(d>>8), byte(d))
}

func (b *BrickPi) OffsetPosition(m Motor, deg float64) error {
	v := int32(deg)
	return b.write(msgOffsetMotorEncoder, b.portBits(m),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// BatteryVoltage reads the 9V battery rail.
func (b *BrickPi) BatteryVoltage() (float64, error) {
	mv, err := b.read16(msgGetVoltageVCC)
	if err != nil {
		return 0, fmt.Errorf("read battery voltage: %w", err)
	}
	return float64(mv) / 1000.0, nil
}

// ResetAll floats every motor, clears limits, and zeroes the encoders of
// the joint pair. Safe to call repeatedly.
func (b *BrickPi) ResetAll() error {
	all := byte(portA | portB | portC | portD)
	fl := int8(motorFloat)
	if err := b.write(msgSetMotorPower, all, byte(fl)); err != nil {
		return err
	}
	if err := b.write(msgSetMotorLimits, all, 0, 0, 0); err != nil {
		return err
	}
	for _, m := range Motors() {
		cur, err := b.Position(m)
		if err != nil {
			return err
		}
		if err := b.OffsetPosition(m, cur); err != nil {
			return err
		}
	}
	return nil
}

func (b *BrickPi) Close() error {
	return b.port.Close()
}

func (b *BrickPi) Manufacturer() (string, error) {
	return b.readString(msgGetManufacturer, 20)
}

func (b *BrickPi) Board() (string, error) {
	return b.readString(msgGetName, 20)
}

func (b *BrickPi) FirmwareVersion() (string, error) {
	v, err := b.read32(msgGetFirmwareVersion)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d", v/1000000, v/1000%1000, v%1000), nil
}

var (
	_ Bus  = (*BrickPi)(nil)
	_ Info = (*BrickPi)(nil)
)
