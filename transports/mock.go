package transports

import (
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MockTransport implements Transport for testing. It behaves like a
// half-duplex wire: written bytes can be echoed back into the input, and
// queued replies follow the echo.
type MockTransport struct {
	mu sync.Mutex

	// ReadData is input that has arrived and not been read yet.
	ReadData []byte
	// LineNoise is delivered ahead of ReadData. It models bytes still in
	// flight, so Flush does not remove it.
	LineNoise []byte

	// Echo appends every written frame to ReadData.
	Echo bool
	// Replies are consumed one per Write and appended after the echo.
	// A nil entry means that write gets no answer.
	Replies [][]byte
	// Respond computes the answer to a written frame. It takes precedence
	// over Replies.
	Respond func(frame []byte) []byte

	// MaxChunk limits the bytes returned by a single Read. Zero is unlimited.
	MaxChunk int
	// WriteLimit truncates every Write to at most this many bytes. Zero is unlimited.
	WriteLimit int

	// Clock, when set, is advanced by the read timeout on every empty Read
	// so that deadlines expire deterministically.
	Clock *clock.Mock

	ReadErr  error
	WriteErr error
	FlushErr error

	WriteData   []byte   // all bytes written
	Writes      [][]byte // each Write call
	Reads       int
	Flushes     int
	Closed      bool
	ReadTimeout time.Duration

	// ReadFunc allows custom read behavior for complex tests
	ReadFunc func(p []byte) (int, error)
}

func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Reads++
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}

	limit := len(p)
	if m.MaxChunk > 0 && limit > m.MaxChunk {
		limit = m.MaxChunk
	}

	var n int
	if len(m.LineNoise) > 0 {
		n = copy(p[:limit], m.LineNoise)
		m.LineNoise = m.LineNoise[n:]
	} else {
		n = copy(p[:limit], m.ReadData)
		m.ReadData = m.ReadData[n:]
	}

	if n == 0 {
		if m.Clock != nil {
			m.Clock.Add(m.ReadTimeout)
		}
		return 0, io.EOF
	}
	return n, nil
}

func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return 0, m.WriteErr
	}

	n := len(p)
	if m.WriteLimit > 0 && n > m.WriteLimit {
		n = m.WriteLimit
	}
	frame := append([]byte(nil), p[:n]...)
	m.Writes = append(m.Writes, frame)
	m.WriteData = append(m.WriteData, frame...)

	if m.Echo {
		m.ReadData = append(m.ReadData, frame...)
	}

	var reply []byte
	switch {
	case m.Respond != nil:
		reply = m.Respond(frame)
	case len(m.Replies) > 0:
		reply = m.Replies[0]
		m.Replies = m.Replies[1:]
	}
	m.ReadData = append(m.ReadData, reply...)

	return n, nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}

func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadTimeout = timeout
	return nil
}

// Flush drops input that has already arrived.
func (m *MockTransport) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Flushes++
	if m.FlushErr != nil {
		return m.FlushErr
	}
	m.ReadData = nil
	return nil
}

// Queue appends bytes to the input as if they had just arrived.
func (m *MockTransport) Queue(data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadData = append(m.ReadData, data...)
}

// LastWrite returns the most recent frame written, or nil.
func (m *MockTransport) LastWrite() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Writes) == 0 {
		return nil
	}
	return m.Writes[len(m.Writes)-1]
}
