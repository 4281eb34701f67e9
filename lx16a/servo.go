package lx16a

import (
	"context"
)

// Servo provides a high-level interface for controlling a single servo.
type Servo struct {
	bus *Bus
	id  int
}

// NewServo creates a new Servo instance.
func NewServo(bus *Bus, id int) *Servo {
	return &Servo{
		bus: bus,
		id:  id,
	}
}

// ID returns the servo's ID.
func (s *Servo) ID() int {
	return s.id
}

// Bus returns the bus the servo is attached to.
func (s *Servo) Bus() *Bus {
	return s.bus
}

// Position Control

// Position reads the current position (0-1000).
func (s *Servo) Position(ctx context.Context) (int, error) {
	return s.bus.ReadPosition(ctx, s.id)
}

// Angle reads the current position in degrees.
func (s *Servo) Angle(ctx context.Context) (float64, error) {
	return s.bus.ReadAngle(ctx, s.id)
}

// MoveTo commands the servo to reach an angle in degrees within timeMs.
func (s *Servo) MoveTo(ctx context.Context, degrees float64, timeMs int) error {
	return s.bus.MoveToAngle(ctx, s.id, degrees, timeMs)
}

// SetPosition commands the servo to reach a raw position within timeMs.
func (s *Servo) SetPosition(ctx context.Context, position, timeMs int) error {
	return s.bus.MoveToPosition(ctx, s.id, position, timeMs)
}

// Target returns the last commanded move.
func (s *Servo) Target(ctx context.Context) (MoveTarget, error) {
	return s.bus.ReadMoveTarget(ctx, s.id)
}

// Stop halts the servo where it is.
func (s *Servo) Stop(ctx context.Context) error {
	return s.bus.StopMove(ctx, s.id)
}

// Torque Control

// TorqueEnabled returns whether torque is enabled.
func (s *Servo) TorqueEnabled(ctx context.Context) (bool, error) {
	return s.bus.TorqueEnabled(ctx, s.id)
}

// Enable enables torque.
func (s *Servo) Enable(ctx context.Context) error {
	return s.bus.SetTorque(ctx, s.id, true)
}

// Disable disables torque, allowing the servo to be moved by hand.
func (s *Servo) Disable(ctx context.Context) error {
	return s.bus.SetTorque(ctx, s.id, false)
}

// Mode Control

// SetWheelMode switches to continuous rotation at speed (-1000..1000).
func (s *Servo) SetWheelMode(ctx context.Context, speed int16) error {
	return s.bus.SetMode(ctx, s.id, true, speed)
}

// SetServoMode switches back to position control.
func (s *Servo) SetServoMode(ctx context.Context) error {
	return s.bus.SetMode(ctx, s.id, false, 0)
}

// Mode reads the current operating mode.
func (s *Servo) Mode(ctx context.Context) (Mode, error) {
	return s.bus.ReadMode(ctx, s.id)
}

// Status

// Voltage reads the input voltage in millivolts.
func (s *Servo) Voltage(ctx context.Context) (int, error) {
	return s.bus.ReadVoltage(ctx, s.id)
}

// Temperature reads the temperature in °C.
func (s *Servo) Temperature(ctx context.Context) (int, error) {
	return s.bus.ReadTemperature(ctx, s.id)
}

// Configuration

// AngleLimits reads the travel limits in degrees.
func (s *Servo) AngleLimits(ctx context.Context) (minDeg, maxDeg float64, err error) {
	lo, hi, err := s.bus.ReadAngleLimits(ctx, s.id)
	if err != nil {
		return 0, 0, err
	}
	return PositionToAngle(lo), PositionToAngle(hi), nil
}

// SetAngleLimits restricts travel to [minDeg, maxDeg].
func (s *Servo) SetAngleLimits(ctx context.Context, minDeg, maxDeg float64) error {
	return s.bus.SetAngleLimits(ctx, s.id, minDeg, maxDeg)
}

// SetID changes the servo's ID. Subsequent calls on this handle use the new ID.
func (s *Servo) SetID(ctx context.Context, newID int) error {
	if err := s.bus.SetID(ctx, s.id, newID); err != nil {
		return err
	}
	s.id = newID
	return nil
}
