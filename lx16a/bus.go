package lx16a

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hipsterbrown/lx16a-servo/logger"
	"github.com/hipsterbrown/lx16a-servo/transports"
)

// Bus manages communication with servos on an LX-16A bus.
type Bus struct {
	transport Transport
	clock     clock.Clock
	timing    Timing
	log       logger.Logger
	metrics   *BusMetrics

	mu          sync.Mutex
	lastCmdTime time.Time
	minCmdGap   time.Duration
	failures    int
	closed      bool
}

// BusConfig holds configuration for creating a new Bus.
type BusConfig struct {
	// Transport is the underlying communication transport.
	// If nil, Port must be specified to open a serial connection.
	Transport Transport

	// Port is the serial port path (e.g., "/dev/ttyUSB0").
	// Ignored if Transport is provided.
	Port string

	// BaudRate is the communication speed. Default is 115200.
	BaudRate int

	// Timing overrides the exchange polling intervals and deadlines.
	// Zero fields take DefaultTiming values.
	Timing Timing

	// MinCommandGap is the minimum time between commands. Default is 1ms.
	// A negative value disables the gap.
	MinCommandGap time.Duration

	// Clock drives every deadline. Default is the wall clock.
	Clock clock.Clock

	// Logger receives exchange traces and recovery warnings.
	// Default is the package logger.
	Logger logger.Logger

	// Metrics collects bus counters. A new set is created when nil.
	Metrics *BusMetrics
}

// NewBus creates a new servo bus with the given configuration.
func NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = transports.DefaultBaudRate
	}
	if cfg.MinCommandGap == 0 {
		cfg.MinCommandGap = time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewBusMetrics()
	}

	transport := cfg.Transport
	if transport == nil {
		if cfg.Port == "" {
			return nil, errors.New("either Transport or Port must be specified")
		}
		var err error
		transport, err = transports.OpenSerial(transports.SerialConfig{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port: %w", err)
		}
	}

	return &Bus{
		transport: transport,
		clock:     cfg.Clock,
		timing:    cfg.Timing.withDefaults(),
		log:       cfg.Logger.With("component", "lx16a.bus"),
		metrics:   cfg.Metrics,
		minCmdGap: cfg.MinCommandGap,
	}, nil
}

// Close closes the bus and releases resources.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	return b.transport.Close()
}

// Metrics returns the bus counters.
func (b *Bus) Metrics() *BusMetrics {
	return b.metrics
}

// Exchange sends a raw command and returns the reply parameters, or nil for
// commands that have no reply. Parameter count must match the catalog.
func (b *Bus) Exchange(ctx context.Context, id int, cmd Command, params []byte) ([]byte, error) {
	return b.request(ctx, id, cmd, params)
}

// Motion

// MoveToAngle moves a servo to an angle in degrees (0-240) over timeMs.
// The angle is rounded to the nearest position and clamped to 0-1000.
func (b *Bus) MoveToAngle(ctx context.Context, id int, degrees float64, timeMs int) error {
	return b.MoveToPosition(ctx, id, AngleToPosition(degrees), timeMs)
}

// MoveToPosition moves a servo to a raw position over timeMs.
// The position is sent as given; the servo limits it to its angle range.
func (b *Bus) MoveToPosition(ctx context.Context, id, position, timeMs int) error {
	params, err := movePayload(position, timeMs)
	if err != nil {
		return &ServoError{ID: id, Op: CmdMoveTimeWrite.String(), Err: err}
	}
	_, err = b.request(ctx, id, CmdMoveTimeWrite, params)
	return err
}

// MoveToPositionDeferred stores a move that runs on the next StartMove.
func (b *Bus) MoveToPositionDeferred(ctx context.Context, id, position, timeMs int) error {
	params, err := movePayload(position, timeMs)
	if err != nil {
		return &ServoError{ID: id, Op: CmdMoveTimeWaitWrite.String(), Err: err}
	}
	_, err = b.request(ctx, id, CmdMoveTimeWaitWrite, params)
	return err
}

// ReadMoveTarget returns the last commanded position and move time.
func (b *Bus) ReadMoveTarget(ctx context.Context, id int) (MoveTarget, error) {
	p, err := b.request(ctx, id, CmdMoveTimeRead, nil)
	if err != nil {
		return MoveTarget{}, err
	}
	return decodeMoveTarget(p), nil
}

// ReadDeferredMove returns the move stored by MoveToPositionDeferred.
func (b *Bus) ReadDeferredMove(ctx context.Context, id int) (MoveTarget, error) {
	p, err := b.request(ctx, id, CmdMoveTimeWaitRead, nil)
	if err != nil {
		return MoveTarget{}, err
	}
	return decodeMoveTarget(p), nil
}

// StartMove runs stored deferred moves. Use BroadcastID to start all servos.
func (b *Bus) StartMove(ctx context.Context, id int) error {
	_, err := b.request(ctx, id, CmdMoveStart, nil)
	return err
}

// StopMove halts a servo at its current position.
func (b *Bus) StopMove(ctx context.Context, id int) error {
	_, err := b.request(ctx, id, CmdMoveStop, nil)
	return err
}

// ReadPosition reads the current position (nominally 0-1000).
func (b *Bus) ReadPosition(ctx context.Context, id int) (int, error) {
	p, err := b.request(ctx, id, CmdPosRead, nil)
	if err != nil {
		return 0, err
	}
	return int(word(p)), nil
}

// ReadAngle reads the current position in degrees.
func (b *Bus) ReadAngle(ctx context.Context, id int) (float64, error) {
	pos, err := b.ReadPosition(ctx, id)
	if err != nil {
		return 0, err
	}
	return PositionToAngle(pos), nil
}

// Torque and mode

// SetTorque energizes or releases the motor.
func (b *Bus) SetTorque(ctx context.Context, id int, enabled bool) error {
	_, err := b.request(ctx, id, CmdLoadWrite, boolParam(enabled))
	return err
}

// TorqueEnabled reports whether the motor is energized.
func (b *Bus) TorqueEnabled(ctx context.Context, id int) (bool, error) {
	p, err := b.request(ctx, id, CmdLoadRead, nil)
	if err != nil {
		return false, err
	}
	return p[0] != 0, nil
}

// SetMode selects position mode or continuous rotation. speed is signed
// (-1000..1000 on the device) and is sent in either mode.
func (b *Bus) SetMode(ctx context.Context, id int, continuous bool, speed int16) error {
	_, err := b.request(ctx, id, CmdModeWrite, modeParams(continuous, speed))
	return err
}

// ReadMode returns the operating mode and continuous-rotation speed.
func (b *Bus) ReadMode(ctx context.Context, id int) (Mode, error) {
	p, err := b.request(ctx, id, CmdModeRead, nil)
	if err != nil {
		return Mode{}, err
	}
	return decodeMode(p), nil
}

// Identity

// SetID changes a servo's ID. The new ID must be 0-253.
func (b *Bus) SetID(ctx context.Context, id, newID int) error {
	if newID < 0 || newID > MaxServoID {
		return &ServoError{ID: id, Op: CmdIDWrite.String(), Err: invalidRequest("new id %d out of range 0-%d", newID, MaxServoID)}
	}
	_, err := b.request(ctx, id, CmdIDWrite, []byte{byte(newID)})
	return err
}

// ReadID reads a servo's ID. With a single servo attached, BroadcastID
// cannot be used since broadcasts never reply; address it by its ID.
func (b *Bus) ReadID(ctx context.Context, id int) (int, error) {
	p, err := b.request(ctx, id, CmdIDRead, nil)
	if err != nil {
		return 0, err
	}
	return int(p[0]), nil
}

// Calibration

// AdjustAngleOffset sets the angle trim in position units (0.24°),
// clamped to -125..125. The trim is lost on power-off unless saved.
func (b *Bus) AdjustAngleOffset(ctx context.Context, id, offset int) error {
	offset = clamp(offset, MinAngleOffset, MaxAngleOffset)
	_, err := b.request(ctx, id, CmdAngleOffsetAdjust, []byte{byte(int8(offset))})
	return err
}

// SaveAngleOffset persists the current angle trim.
func (b *Bus) SaveAngleOffset(ctx context.Context, id int) error {
	_, err := b.request(ctx, id, CmdAngleOffsetWrite, nil)
	return err
}

// ReadAngleOffset returns the angle trim in position units.
func (b *Bus) ReadAngleOffset(ctx context.Context, id int) (int, error) {
	p, err := b.request(ctx, id, CmdAngleOffsetRead, nil)
	if err != nil {
		return 0, err
	}
	return int(int8(p[0])), nil
}

// SetAngleLimits restricts travel to [minDeg, maxDeg]. Both ends are
// converted and clamped to 0-1000 and swapped if given in reverse order.
func (b *Bus) SetAngleLimits(ctx context.Context, id int, minDeg, maxDeg float64) error {
	return b.SetPositionLimits(ctx, id, AngleToPosition(minDeg), AngleToPosition(maxDeg))
}

// SetPositionLimits is SetAngleLimits in raw position units.
func (b *Bus) SetPositionLimits(ctx context.Context, id, minPos, maxPos int) error {
	lo, hi := orderedRange(minPos, maxPos, 0, MaxPosition)
	_, err := b.request(ctx, id, CmdAngleLimitWrite, rangeParams(uint16(lo), uint16(hi)))
	return err
}

// ReadAngleLimits returns the travel limits in position units.
func (b *Bus) ReadAngleLimits(ctx context.Context, id int) (minPos, maxPos int, err error) {
	p, err := b.request(ctx, id, CmdAngleLimitRead, nil)
	if err != nil {
		return 0, 0, err
	}
	minPos, maxPos = decodeRange(p)
	return minPos, maxPos, nil
}

// SetVoltageLimits sets the input voltage window in millivolts, clamped to
// 4500-12000 and swapped if given in reverse order.
func (b *Bus) SetVoltageLimits(ctx context.Context, id, minMV, maxMV int) error {
	lo, hi := orderedRange(minMV, maxMV, MinVoltageLimit, MaxVoltageLimit)
	_, err := b.request(ctx, id, CmdVinLimitWrite, rangeParams(uint16(lo), uint16(hi)))
	return err
}

// ReadVoltageLimits returns the input voltage window in millivolts.
func (b *Bus) ReadVoltageLimits(ctx context.Context, id int) (minMV, maxMV int, err error) {
	p, err := b.request(ctx, id, CmdVinLimitRead, nil)
	if err != nil {
		return 0, 0, err
	}
	minMV, maxMV = decodeRange(p)
	return minMV, maxMV, nil
}

// SetMaxTemperature sets the over-temperature threshold, clamped to 50-100 °C.
func (b *Bus) SetMaxTemperature(ctx context.Context, id, celsius int) error {
	celsius = clamp(celsius, MinTempLimit, MaxTempLimit)
	_, err := b.request(ctx, id, CmdTempMaxLimitWrite, []byte{byte(celsius)})
	return err
}

// ReadMaxTemperature returns the over-temperature threshold in °C.
func (b *Bus) ReadMaxTemperature(ctx context.Context, id int) (int, error) {
	p, err := b.request(ctx, id, CmdTempMaxLimitRead, nil)
	if err != nil {
		return 0, err
	}
	return int(p[0]), nil
}

// Telemetry

// ReadTemperature returns the internal temperature in °C.
func (b *Bus) ReadTemperature(ctx context.Context, id int) (int, error) {
	p, err := b.request(ctx, id, CmdTempRead, nil)
	if err != nil {
		return 0, err
	}
	return int(p[0]), nil
}

// ReadVoltage returns the input voltage in millivolts.
func (b *Bus) ReadVoltage(ctx context.Context, id int) (int, error) {
	p, err := b.request(ctx, id, CmdVinRead, nil)
	if err != nil {
		return 0, err
	}
	return int(word(p)), nil
}

// LED

// SetLED switches the status LED. On the wire 0 means on.
func (b *Bus) SetLED(ctx context.Context, id int, on bool) error {
	_, err := b.request(ctx, id, CmdLEDCtrlWrite, boolParam(!on))
	return err
}

// LEDOn reports whether the status LED is lit.
func (b *Bus) LEDOn(ctx context.Context, id int) (bool, error) {
	p, err := b.request(ctx, id, CmdLEDCtrlRead, nil)
	if err != nil {
		return false, err
	}
	return p[0] == 0, nil
}

// SetLEDFaults selects which faults flash the LED (Fault* bits).
func (b *Bus) SetLEDFaults(ctx context.Context, id int, mask byte) error {
	if mask > FaultOverTemperature|FaultOverVoltage|FaultLockedRotor {
		return &ServoError{ID: id, Op: CmdLEDErrorWrite.String(), Err: invalidRequest("fault mask 0x%02X has unknown bits", mask)}
	}
	_, err := b.request(ctx, id, CmdLEDErrorWrite, []byte{mask})
	return err
}

// LEDFaults returns the fault mask that flashes the LED.
func (b *Bus) LEDFaults(ctx context.Context, id int) (byte, error) {
	p, err := b.request(ctx, id, CmdLEDErrorRead, nil)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// Internal methods

func (b *Bus) validateID(id int) error {
	if id < 0 || id > BroadcastID {
		return invalidRequest("id %d (valid range: 0-%d)", id, BroadcastID)
	}
	return nil
}

// request validates and sends one catalog command, returning the reply
// parameters trimmed to the catalog size.
func (b *Bus) request(ctx context.Context, id int, cmd Command, params []byte) ([]byte, error) {
	spec, ok := cmd.Spec()
	if !ok {
		return nil, &ServoError{ID: id, Op: cmd.String(), Err: invalidRequest("unknown command %d", byte(cmd))}
	}

	reply, err := b.send(ctx, id, cmd, spec, params)
	if err != nil {
		return nil, &ServoError{ID: id, Op: spec.Name, Err: err}
	}
	return reply, nil
}

func (b *Bus) send(ctx context.Context, id int, cmd Command, spec CommandSpec, params []byte) ([]byte, error) {
	if err := b.validateID(id); err != nil {
		return nil, err
	}
	if len(params) != spec.Params {
		return nil, invalidRequest("%s takes %d parameter bytes, got %d", spec.Name, spec.Params, len(params))
	}
	if id == BroadcastID && spec.Reply {
		return nil, invalidRequest("%s expects a reply and cannot be broadcast", spec.Name)
	}

	frame, err := Encode(byte(id), cmd, params)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	return b.exchangeLocked(id, cmd, spec, frame)
}

func (b *Bus) exchangeLocked(id int, cmd Command, spec CommandSpec, frame []byte) ([]byte, error) {
	if b.failures >= b.timing.ResyncAfter {
		if err := b.recoverLocked(); err != nil {
			return nil, err
		}
	}

	b.enforceCommandGap()

	if id != BroadcastID {
		b.metrics.incRequest(id)
	}

	s := b.newSession()
	reply, err := s.run(frame, spec.Reply)
	b.lastCmdTime = b.clock.Now()

	if err == nil && spec.Reply {
		if err = checkReply(reply, id, cmd, spec); err != nil {
			b.metrics.incError(StateMalformed)
		}
	}

	if err != nil {
		b.failures++
		if id != BroadcastID {
			b.metrics.incFailure(id)
		}
		return nil, err
	}

	b.failures = 0
	if !spec.Reply {
		return nil, nil
	}
	return reply.Params[:spec.ReplySize], nil
}

// recoverLocked drains the line after repeated failures so a late or
// partial reply cannot be mistaken for the next one.
func (b *Bus) recoverLocked() error {
	s := b.newSession()
	drained, err := s.drainUntilSilence()
	b.metrics.incQuietResets()
	b.log.Warn("quiet-period reset", "failures", b.failures, "drained", drained)
	b.failures = 0
	return err
}

func (b *Bus) newSession() *session {
	return &session{
		transport: b.transport,
		clock:     b.clock,
		timing:    b.timing,
		log:       b.log,
		metrics:   b.metrics,
	}
}

func (b *Bus) enforceCommandGap() {
	if b.minCmdGap <= 0 || b.lastCmdTime.IsZero() {
		return
	}
	if wait := b.minCmdGap - b.clock.Since(b.lastCmdTime); wait > 0 {
		b.clock.Sleep(wait)
	}
}

// checkReply verifies a decoded reply answers the request that was sent.
func checkReply(reply Frame, id int, cmd Command, spec CommandSpec) error {
	if int(reply.ID) != id {
		return fmt.Errorf("%w: reply from id %d, expected %d", ErrMalformedResponse, reply.ID, id)
	}
	if reply.Command != cmd {
		return fmt.Errorf("%w: reply command %s, expected %s", ErrMalformedResponse, reply.Command, cmd)
	}
	if len(reply.Params) < spec.ReplySize {
		return fmt.Errorf("%w: %s reply has %d parameter bytes, expected %d",
			ErrMalformedResponse, spec.Name, len(reply.Params), spec.ReplySize)
	}
	return nil
}

func movePayload(position, timeMs int) ([]byte, error) {
	if position < 0 || position > 0xFFFF {
		return nil, invalidRequest("position %d does not fit in 16 bits", position)
	}
	if timeMs < 0 || timeMs > MaxMoveTime {
		return nil, invalidRequest("move time %dms out of range 0-%d", timeMs, MaxMoveTime)
	}
	return moveParams(uint16(position), uint16(timeMs)), nil
}
