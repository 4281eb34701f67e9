package transports

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_EchoAndReplies(t *testing.T) {
	m := &MockTransport{
		Echo:    true,
		Replies: [][]byte{{0xAA, 0xBB}, nil},
	}

	n, err := m.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 16)
	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 0xAA, 0xBB}, buf[:n])

	_, err = m.Write([]byte{4})
	require.NoError(t, err)
	n, _ = m.Read(buf)
	assert.Equal(t, []byte{4}, buf[:n], "nil reply means silence")

	assert.Equal(t, []byte{1, 2, 3, 4}, m.WriteData)
	assert.Equal(t, []byte{4}, m.LastWrite())
	assert.Equal(t, 2, m.Reads)
}

func TestMockTransport_Respond(t *testing.T) {
	m := &MockTransport{
		Replies: [][]byte{{0x01}},
		Respond: func(frame []byte) []byte { return []byte{frame[0] + 1} },
	}

	_, err := m.Write([]byte{0x10})
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11}, buf[:n])
	assert.Len(t, m.Replies, 1, "Respond takes precedence")
}

func TestMockTransport_FlushKeepsLineNoise(t *testing.T) {
	m := &MockTransport{LineNoise: []byte{0xEE}}
	m.Queue(1, 2)

	require.NoError(t, m.Flush())
	assert.Equal(t, 1, m.Flushes)
	assert.Empty(t, m.ReadData)

	buf := make([]byte, 4)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEE}, buf[:n])

	m.FlushErr = errors.New("ioctl failed")
	assert.Error(t, m.Flush())
}

func TestMockTransport_ChunksAndLimits(t *testing.T) {
	m := &MockTransport{MaxChunk: 2, WriteLimit: 3}
	m.Queue(1, 2, 3, 4, 5)

	buf := make([]byte, 8)
	n, _ := m.Read(buf)
	assert.Equal(t, 2, n)
	n, _ = m.Read(buf)
	assert.Equal(t, []byte{3, 4}, buf[:n])

	n, err := m.Write([]byte{9, 9, 9, 9})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, m.LastWrite(), 3)
}

func TestMockTransport_EmptyReadAdvancesClock(t *testing.T) {
	clk := clock.NewMock()
	m := &MockTransport{Clock: clk}
	require.NoError(t, m.SetReadTimeout(10*time.Millisecond))

	start := clk.Now()
	n, err := m.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10*time.Millisecond, clk.Since(start))
}

func TestMockTransport_Errors(t *testing.T) {
	boom := errors.New("boom")
	m := &MockTransport{ReadErr: boom, WriteErr: boom}

	_, err := m.Read(make([]byte, 1))
	assert.ErrorIs(t, err, boom)
	_, err = m.Write([]byte{1})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, m.Writes)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed)
}
