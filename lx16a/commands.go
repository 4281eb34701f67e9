package lx16a

import "fmt"

// Command is an LX-16A bus command code.
type Command byte

// Command codes of the LX-16A serial bus servo protocol.
const (
	CmdMoveTimeWrite     Command = 1
	CmdMoveTimeRead      Command = 2
	CmdMoveTimeWaitWrite Command = 7
	CmdMoveTimeWaitRead  Command = 8
	CmdMoveStart         Command = 11
	CmdMoveStop          Command = 12
	CmdIDWrite           Command = 13
	CmdIDRead            Command = 14
	CmdAngleOffsetAdjust Command = 17
	CmdAngleOffsetWrite  Command = 18
	CmdAngleOffsetRead   Command = 19
	CmdAngleLimitWrite   Command = 20
	CmdAngleLimitRead    Command = 21
	CmdVinLimitWrite     Command = 22
	CmdVinLimitRead      Command = 23
	CmdTempMaxLimitWrite Command = 24
	CmdTempMaxLimitRead  Command = 25
	CmdTempRead          Command = 26
	CmdVinRead           Command = 27
	CmdPosRead           Command = 28
	CmdModeWrite         Command = 29
	CmdModeRead          Command = 30
	CmdLoadWrite         Command = 31
	CmdLoadRead          Command = 32
	CmdLEDCtrlWrite      Command = 33
	CmdLEDCtrlRead       Command = 34
	CmdLEDErrorWrite     Command = 35
	CmdLEDErrorRead      Command = 36
)

// CommandSpec describes the fixed parameter and reply shape of a command.
type CommandSpec struct {
	Name      string
	Params    int  // parameter bytes sent with the command
	Reply     bool // whether the servo answers
	ReplySize int  // parameter bytes in the reply
}

var commandSpecs = map[Command]CommandSpec{
	CmdMoveTimeWrite:     {Name: "move_time_write", Params: 4},
	CmdMoveTimeRead:      {Name: "move_time_read", Reply: true, ReplySize: 4},
	CmdMoveTimeWaitWrite: {Name: "move_time_wait_write", Params: 4},
	CmdMoveTimeWaitRead:  {Name: "move_time_wait_read", Reply: true, ReplySize: 4},
	CmdMoveStart:         {Name: "move_start"},
	CmdMoveStop:          {Name: "move_stop"},
	CmdIDWrite:           {Name: "id_write", Params: 1},
	CmdIDRead:            {Name: "id_read", Reply: true, ReplySize: 1},
	CmdAngleOffsetAdjust: {Name: "angle_offset_adjust", Params: 1},
	CmdAngleOffsetWrite:  {Name: "angle_offset_write"},
	CmdAngleOffsetRead:   {Name: "angle_offset_read", Reply: true, ReplySize: 1},
	CmdAngleLimitWrite:   {Name: "angle_limit_write", Params: 4},
	CmdAngleLimitRead:    {Name: "angle_limit_read", Reply: true, ReplySize: 4},
	CmdVinLimitWrite:     {Name: "vin_limit_write", Params: 4},
	CmdVinLimitRead:      {Name: "vin_limit_read", Reply: true, ReplySize: 4},
	CmdTempMaxLimitWrite: {Name: "temp_max_limit_write", Params: 1},
	CmdTempMaxLimitRead:  {Name: "temp_max_limit_read", Reply: true, ReplySize: 1},
	CmdTempRead:          {Name: "temp_read", Reply: true, ReplySize: 1},
	CmdVinRead:           {Name: "vin_read", Reply: true, ReplySize: 2},
	CmdPosRead:           {Name: "pos_read", Reply: true, ReplySize: 2},
	CmdModeWrite:         {Name: "mode_write", Params: 4},
	CmdModeRead:          {Name: "mode_read", Reply: true, ReplySize: 4},
	CmdLoadWrite:         {Name: "load_or_unload_write", Params: 1},
	CmdLoadRead:          {Name: "load_or_unload_read", Reply: true, ReplySize: 1},
	CmdLEDCtrlWrite:      {Name: "led_ctrl_write", Params: 1},
	CmdLEDCtrlRead:       {Name: "led_ctrl_read", Reply: true, ReplySize: 1},
	CmdLEDErrorWrite:     {Name: "led_error_write", Params: 1},
	CmdLEDErrorRead:      {Name: "led_error_read", Reply: true, ReplySize: 1},
}

// Spec returns the catalog entry for c.
func (c Command) Spec() (CommandSpec, bool) {
	s, ok := commandSpecs[c]
	return s, ok
}

func (c Command) String() string {
	if s, ok := commandSpecs[c]; ok {
		return s.Name
	}
	return fmt.Sprintf("command(%d)", byte(c))
}

// Value ranges accepted by the servo.
const (
	MaxPosition     = 1000
	MaxMoveTime     = 30000 // ms
	MinAngleOffset  = -125
	MaxAngleOffset  = 125
	MinVoltageLimit = 4500  // mV
	MaxVoltageLimit = 12000 // mV
	MinTempLimit    = 50    // °C
	MaxTempLimit    = 100   // °C
)

// Operating modes.
const (
	ModePosition   = 0
	ModeContinuous = 1 // motor mode
)

// Fault bits for the LED error mask.
const (
	FaultOverTemperature byte = 1 << 0
	FaultOverVoltage     byte = 1 << 1
	FaultLockedRotor     byte = 1 << 2
)

// Parameter encoders. Each returns exactly CommandSpec.Params bytes.

func moveParams(position, timeMs uint16) []byte {
	p := make([]byte, 4)
	putWord(p[0:2], position)
	putWord(p[2:4], timeMs)
	return p
}

func rangeParams(lo, hi uint16) []byte {
	p := make([]byte, 4)
	putWord(p[0:2], lo)
	putWord(p[2:4], hi)
	return p
}

func modeParams(continuous bool, speed int16) []byte {
	p := make([]byte, 4)
	if continuous {
		p[0] = ModeContinuous
	}
	putWord(p[2:4], uint16(speed))
	return p
}

func boolParam(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// MoveTarget is the decoded reply of a move-time read.
type MoveTarget struct {
	Position int
	TimeMs   int
}

// Mode is the decoded reply of a mode read.
type Mode struct {
	Continuous bool
	Speed      int16
}

func decodeMoveTarget(p []byte) MoveTarget {
	return MoveTarget{Position: int(word(p[0:2])), TimeMs: int(word(p[2:4]))}
}

func decodeRange(p []byte) (lo, hi int) {
	return int(word(p[0:2])), int(word(p[2:4]))
}

func decodeMode(p []byte) Mode {
	return Mode{Continuous: p[0] == ModeContinuous, Speed: int16(word(p[2:4]))}
}
