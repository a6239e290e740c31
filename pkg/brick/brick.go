// Package brick provides access to the actuator pair that drives the
// exoskeleton joint.
//
// The controller only ever talks to the small Bus interface below, so the
// same control code runs against the BrickPi3 board, a Feetech servo bus,
// or the in-process simulator.
package brick

// Motor identifies one actuator of the coupled pair.
type Motor int

const (
	// Primary is the main joint actuator (port B on the BrickPi3).
	Primary Motor = iota
	// Secondary is the support actuator (port C on the BrickPi3).
	Secondary
)

// String returns the motor name for logging.
func (m Motor) String() string {
	switch m {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Motors lists both actuators of the pair.
func Motors() [2]Motor {
	return [2]Motor{Primary, Secondary}
}

// Bus is the hardware capability contract consumed by the motion
// controller. Implementations are not reentrant: only one control loop may
// issue commands to a given pair at a time.
type Bus interface {
	// Position reads the actuator's absolute position in degrees.
	Position(m Motor) (float64, error)

	// SetPower commands open-loop power as a signed duty percentage,
	// clamped to [-100, 100].
	SetPower(m Motor, duty float64) error

	// SetPositionRelative commands a hardware-native move of deltaDeg
	// degrees relative to the current position.
	SetPositionRelative(m Motor, deltaDeg float64) error

	// SetSpeedLimit bounds hardware-native moves to dps degrees/second.
	SetSpeedLimit(m Motor, dps float64) error

	// OffsetPosition shifts the actuator's zero reference by deg, so that
	// OffsetPosition(m, current) makes the current pose read as zero.
	OffsetPosition(m Motor, deg float64) error

	// BatteryVoltage reads the supply voltage in volts.
	BatteryVoltage() (float64, error)

	// ResetAll zeroes all commands and clears offsets. It is the final
	// safety action on every exit path and must be safe to call twice.
	ResetAll() error

	// Close releases the underlying transport.
	Close() error
}

// Info is implemented by backends that can report board identity,
// used by the diagnostic command.
type Info interface {
	Manufacturer() (string, error)
	Board() (string, error)
	FirmwareVersion() (string, error)
}
