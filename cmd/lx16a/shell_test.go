package main

import (
	"context"
	"io"
	"testing"

	"github.com/abiosoft/ishell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipsterbrown/lx16a-servo/logger"
	"github.com/hipsterbrown/lx16a-servo/lx16a"
	"github.com/hipsterbrown/lx16a-servo/transports"
)

func quietLogger() logger.Logger {
	return logger.NewSlogWithOptions(logger.Options{Level: logger.ErrorLevel, Output: io.Discard})
}

func TestServoID(t *testing.T) {
	s := &Shell{Profile: lx16a.Profile{"elbow": lx16a.NewServoProfile(4)}}

	tests := []struct {
		args    []string
		want    int
		wantErr bool
	}{
		{[]string{"7"}, 7, false},
		{[]string{"elbow", "120"}, 4, false},
		{[]string{"wrist"}, 0, true},
		{nil, 0, true},
	}
	for _, tt := range tests {
		id, err := s.servoID(&ishell.Context{Args: tt.args})
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.args)
			continue
		}
		require.NoError(t, err, "%v", tt.args)
		assert.Equal(t, tt.want, id)
	}
}

func TestArgs(t *testing.T) {
	c := &ishell.Context{Args: []string{"1", "on", "12.5", "maybe"}}

	v, err := argInt(c, 0, "id")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	on, err := argOnOff(c, 1)
	require.NoError(t, err)
	assert.True(t, on)

	f, err := argFloat(c, 2, "angle")
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	_, err = argOnOff(c, 3)
	assert.ErrorContains(t, err, "maybe")
	_, err = argInt(c, 3, "time")
	assert.ErrorContains(t, err, "invalid time")
	_, err = argFloat(c, 9, "angle")
	assert.ErrorContains(t, err, "missing angle")
}

func TestShellDo(t *testing.T) {
	mt := &transports.MockTransport{Echo: true}
	bus, err := lx16a.NewBus(lx16a.BusConfig{Transport: mt, Logger: quietLogger()})
	require.NoError(t, err)
	s := &Shell{Bus: bus}

	err = s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return bus.StopMove(ctx, 3)
	})
	require.NoError(t, err)
	assert.Len(t, mt.Writes, 1)

	err = s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
		return bus.SetID(ctx, 3, 999)
	})
	assert.ErrorIs(t, err, lx16a.ErrInvalidRequest)
}

func TestFormatMetrics(t *testing.T) {
	mt := &transports.MockTransport{Echo: true}
	bus, err := lx16a.NewBus(lx16a.BusConfig{Transport: mt, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, bus.StopMove(context.Background(), 12))

	lines := formatMetrics(bus.Metrics())
	assert.Contains(t, lines[0], "frames sent:       1")
	assert.Equal(t, "servo  12: 1 requests, 0 failures", lines[len(lines)-1])
}
