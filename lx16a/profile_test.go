package lx16a

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipsterbrown/lx16a-servo/transports"
)

func TestServoProfileValidation(t *testing.T) {
	tests := []struct {
		name        string
		profile     *ServoProfile
		expectError bool
	}{
		{"valid profile", &ServoProfile{ID: 1, MinAngle: 30, MaxAngle: 210}, false},
		{"full range", NewServoProfile(253), false},
		{"invalid ID", &ServoProfile{ID: 254, MaxAngle: 240}, true},
		{"min >= max", &ServoProfile{ID: 1, MinAngle: 200, MaxAngle: 100}, true},
		{"out of bounds", &ServoProfile{ID: 1, MinAngle: -5, MaxAngle: 100}, true},
		{"offset too large", &ServoProfile{ID: 1, MaxAngle: 240, AngleOffset: 126}, true},
		{"half voltage window", &ServoProfile{ID: 1, MaxAngle: 240, MinVoltage: 6000}, true},
		{"inverted voltage window", &ServoProfile{ID: 1, MaxAngle: 240, MinVoltage: 9000, MaxVoltage: 6000}, true},
		{"temperature too low", &ServoProfile{ID: 1, MaxAngle: 240, MaxTemperature: 20}, true},
		{"temperature set", &ServoProfile{ID: 1, MaxAngle: 240, MaxTemperature: 85}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServoProfileAngles(t *testing.T) {
	p := &ServoProfile{ID: 1, MinAngle: 60, MaxAngle: 180}

	assert.Equal(t, 90.0, p.ToServoAngle(90))
	assert.Equal(t, 60.0, p.ToServoAngle(0), "clamped to min")
	assert.Equal(t, 180.0, p.ToServoAngle(240), "clamped to max")

	p.Inverted = true
	assert.Equal(t, 150.0, p.ToServoAngle(90))
	assert.Equal(t, 180.0, p.ToServoAngle(60))

	for _, deg := range []float64{60, 75.5, 120, 180} {
		assert.InDelta(t, deg, p.FromServoAngle(p.ToServoAngle(deg)), 1e-9)
	}

	assert.Contains(t, p.String(), "Inverted")
}

func TestProfileSaveLoad(t *testing.T) {
	pr := Profile{
		"shoulder": {ID: 1, MinAngle: 30, MaxAngle: 210, AngleOffset: -10},
		"elbow":    {ID: 2, MinAngle: 0, MaxAngle: 240, Inverted: true, MinVoltage: 6000, MaxVoltage: 8400},
	}

	filename := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, pr.Save(filename))

	loaded, err := LoadProfile(filename)
	require.NoError(t, err)
	assert.Equal(t, pr, loaded)
	assert.Equal(t, []string{"shoulder", "elbow"}, loaded.Names())

	name, p, ok := loaded.ByID(2)
	require.True(t, ok)
	assert.Equal(t, "elbow", name)
	assert.True(t, p.Inverted)

	_, _, ok = loaded.ByID(9)
	assert.False(t, ok)
}

func TestLoadProfileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadProfile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0644))
	_, err = LoadProfile(garbage)
	assert.ErrorContains(t, err, "parse")

	dup := filepath.Join(dir, "dup.json")
	require.NoError(t, os.WriteFile(dup, []byte(`{
		"a": {"id": 3, "min_angle": 0, "max_angle": 240},
		"b": {"id": 3, "min_angle": 0, "max_angle": 240}
	}`), 0644))
	_, err = LoadProfile(dup)
	assert.ErrorContains(t, err, "duplicate servo ID 3")

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"wrist": {"id": 4, "min_angle": 100, "max_angle": 50}}`), 0644))
	_, err = LoadProfile(invalid)
	assert.ErrorContains(t, err, "wrist")
}

func TestServoProfileApply(t *testing.T) {
	mt := &transports.MockTransport{Echo: true}
	bus, _ := newTestBus(t, mt)

	p := &ServoProfile{
		ID:             2,
		MinAngle:       30,
		MaxAngle:       210,
		AngleOffset:    -10,
		MinVoltage:     6000,
		MaxVoltage:     8400,
		MaxTemperature: 80,
	}
	require.NoError(t, p.Apply(context.Background(), bus))

	want := []struct {
		cmd    Command
		params []byte
	}{
		{CmdAngleLimitWrite, rangeParams(125, 875)},
		{CmdAngleOffsetAdjust, []byte{0xF6}},
		{CmdAngleOffsetWrite, []byte{}},
		{CmdVinLimitWrite, rangeParams(6000, 8400)},
		{CmdTempMaxLimitWrite, []byte{80}},
	}
	require.Len(t, mt.Writes, len(want))
	for i, w := range want {
		f, err := Decode(mt.Writes[i])
		require.NoError(t, err)
		assert.Equal(t, byte(2), f.ID)
		assert.Equal(t, w.cmd, f.Command, "write %d", i)
		assert.Equal(t, len(w.params), len(f.Params), "write %d", i)
		if len(w.params) > 0 {
			assert.Equal(t, w.params, f.Params, "write %d", i)
		}
	}
}

func TestProfileApply_SkipsUnsetLimits(t *testing.T) {
	mt := &transports.MockTransport{Echo: true}
	bus, _ := newTestBus(t, mt)

	pr := Profile{
		"b": NewServoProfile(5),
		"a": NewServoProfile(4),
	}
	require.NoError(t, pr.Apply(context.Background(), bus))

	// Limits, offset adjust and offset save per servo, lowest ID first.
	require.Len(t, mt.Writes, 6)
	first, err := Decode(mt.Writes[0])
	require.NoError(t, err)
	assert.Equal(t, byte(4), first.ID)
	assert.Equal(t, rangeParams(0, 1000), first.Params)

	last, err := Decode(mt.Writes[5])
	require.NoError(t, err)
	assert.Equal(t, byte(5), last.ID)
	assert.Equal(t, CmdAngleOffsetWrite, last.Command)
}
