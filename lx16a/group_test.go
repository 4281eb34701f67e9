package lx16a

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipsterbrown/lx16a-servo/transports"
)

// busWire answers position reads for several servos.
type busWire struct {
	positions map[byte]int
}

func (w *busWire) respond(frame []byte) []byte {
	req, err := Decode(frame)
	if err != nil || req.Command != CmdPosRead {
		return nil
	}
	pos, ok := w.positions[req.ID]
	if !ok {
		return nil
	}
	params := make([]byte, 2)
	putWord(params, uint16(pos))
	reply, _ := Encode(req.ID, CmdPosRead, params)
	return reply
}

func TestServoGroup_SetPositions(t *testing.T) {
	mt := &transports.MockTransport{Echo: true}
	bus, _ := newTestBus(t, mt)
	group := NewServoGroupByIDs(bus, 1, 2, 3)

	err := group.SetPositions(context.Background(), PositionMap{3: 750, 1: 250}, 500)
	require.NoError(t, err)

	require.Len(t, mt.Writes, 3)

	first, err := Decode(mt.Writes[0])
	require.NoError(t, err)
	assert.Equal(t, byte(1), first.ID)
	assert.Equal(t, CmdMoveTimeWaitWrite, first.Command)
	assert.Equal(t, moveParams(250, 500), first.Params)

	second, err := Decode(mt.Writes[1])
	require.NoError(t, err)
	assert.Equal(t, byte(3), second.ID)
	assert.Equal(t, moveParams(750, 500), second.Params)

	start, err := Decode(mt.Writes[2])
	require.NoError(t, err)
	assert.Equal(t, byte(BroadcastID), start.ID)
	assert.Equal(t, CmdMoveStart, start.Command)
}

func TestServoGroup_SetPositions_Validation(t *testing.T) {
	mt := &transports.MockTransport{Echo: true}
	bus, _ := newTestBus(t, mt)
	group := NewServoGroupByIDs(bus, 1, 2)
	ctx := context.Background()

	require.NoError(t, group.SetPositions(ctx, nil, 100))
	assert.Error(t, group.SetPositions(ctx, PositionMap{9: 100}, 100))
	assert.Empty(t, mt.Writes)
}

func TestServoGroup_SetAngles(t *testing.T) {
	mt := &transports.MockTransport{Echo: true}
	bus, _ := newTestBus(t, mt)
	group := NewServoGroupByIDs(bus, 4)

	require.NoError(t, group.SetAngles(context.Background(), AngleMap{4: 120}, 0))

	f, err := Decode(mt.Writes[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(500), word(f.Params))
}

func TestServoGroup_Positions(t *testing.T) {
	wire := &busWire{positions: map[byte]int{1: 100, 2: 900}}
	mt := &transports.MockTransport{Echo: true, Respond: wire.respond}
	bus, _ := newTestBus(t, mt)
	group := NewServoGroupByIDs(bus, 1, 2, 3)

	positions, err := group.Positions(context.Background())
	assert.ErrorIs(t, err, ErrTimeoutAwaitingHeader, "servo 3 never answers")
	assert.Equal(t, PositionMap{1: 100, 2: 900}, positions)
}

func TestServoGroup_MoveTo(t *testing.T) {
	wire := &busWire{positions: map[byte]int{1: 498, 2: 301}}
	mt := &transports.MockTransport{Echo: true, Respond: wire.respond}
	bus, _ := newTestBus(t, mt)
	group := NewServoGroupByIDs(bus, 1, 2)

	final, err := group.MoveTo(context.Background(), PositionMap{1: 500, 2: 300}, 200, 5)
	require.NoError(t, err)
	assert.Equal(t, PositionMap{1: 498, 2: 301}, final)
}

func TestServoGroup_WaitForPositionsCancelled(t *testing.T) {
	wire := &busWire{positions: map[byte]int{1: 0}}
	mt := &transports.MockTransport{Echo: true, Respond: wire.respond}
	bus, _ := newTestBus(t, mt)
	group := NewServoGroupByIDs(bus, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := group.WaitForPositions(ctx, PositionMap{1: 1000}, 5, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServoGroup_TorqueAndStop(t *testing.T) {
	mt := &transports.MockTransport{Echo: true}
	bus, _ := newTestBus(t, mt)
	group := NewServoGroup(bus, NewServo(bus, 5), NewServo(bus, 6))
	ctx := context.Background()

	require.NoError(t, group.EnableAll(ctx))
	require.NoError(t, group.DisableAll(ctx))
	require.NoError(t, group.StopAll(ctx))

	require.Len(t, mt.Writes, 6)
	want := []struct {
		id     byte
		cmd    Command
		params []byte
	}{
		{5, CmdLoadWrite, []byte{1}},
		{6, CmdLoadWrite, []byte{1}},
		{5, CmdLoadWrite, []byte{0}},
		{6, CmdLoadWrite, []byte{0}},
		{5, CmdMoveStop, nil},
		{6, CmdMoveStop, nil},
	}
	for i, w := range want {
		f, err := Decode(mt.Writes[i])
		require.NoError(t, err)
		assert.Equal(t, w.id, f.ID, "write %d", i)
		assert.Equal(t, w.cmd, f.Command, "write %d", i)
		if w.params != nil {
			assert.Equal(t, w.params, f.Params, "write %d", i)
		}
	}

	assert.Equal(t, []int{5, 6}, group.IDs())
	assert.NotNil(t, group.ServoByID(6))
	assert.Nil(t, group.ServoByID(7))
	assert.Len(t, group.Servos(), 2)
}

func TestServo_Handle(t *testing.T) {
	wire := &busWire{positions: map[byte]int{2: 250}}
	mt := &transports.MockTransport{Echo: true, Respond: wire.respond}
	bus, _ := newTestBus(t, mt)
	servo := NewServo(bus, 2)
	ctx := context.Background()

	angle, err := servo.Angle(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, angle, 1e-9)

	require.NoError(t, servo.MoveTo(ctx, 240, 1500))
	f, err := Decode(mt.LastWrite())
	require.NoError(t, err)
	assert.Equal(t, moveParams(1000, 1500), f.Params)

	require.NoError(t, servo.SetWheelMode(ctx, 400))
	f, err = Decode(mt.LastWrite())
	require.NoError(t, err)
	assert.Equal(t, modeParams(true, 400), f.Params)

	require.NoError(t, servo.SetID(ctx, 9))
	assert.Equal(t, 9, servo.ID())
	f, err = Decode(mt.LastWrite())
	require.NoError(t, err)
	assert.Equal(t, byte(2), f.ID)
	assert.Equal(t, []byte{9}, f.Params)

	assert.ErrorIs(t, servo.SetID(ctx, 300), ErrInvalidRequest)
	assert.Equal(t, 9, servo.ID())
	assert.Same(t, bus, servo.Bus())
}
