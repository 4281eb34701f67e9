package lx16a

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// BusMetrics contains atomic counters for a Bus.
// Counters can be used as the value of a prometheus CounterFunc or GaugeFunc.
type BusMetrics struct {
	// FramesSent indicates the number of request frames written.
	FramesSent atomic.Uint64
	// FramesReceived indicates the number of reply frames validated.
	FramesReceived atomic.Uint64
	// EchoBytes counts echo bytes discarded after transmission.
	EchoBytes atomic.Uint64
	// EchoMismatches counts echo bytes that differed from what was sent.
	EchoMismatches atomic.Uint64
	// NoiseBytes counts bytes discarded while searching for a reply header.
	NoiseBytes atomic.Uint64

	HeaderTimeouts   atomic.Uint64
	BodyTimeouts     atomic.Uint64
	ChecksumErrors   atomic.Uint64
	MalformedReplies atomic.Uint64
	OversizeReplies  atomic.Uint64
	TransportErrors  atomic.Uint64

	// QuietResets counts line drains performed after repeated failures.
	QuietResets atomic.Uint64
	// Retries counts request retries issued through Retry.
	Retries atomic.Uint64

	servos *xsync.MapOf[int, *ServoStats]
}

// ServoStats holds per-servo request counters.
type ServoStats struct {
	Requests atomic.Uint64
	Failures atomic.Uint64
}

// ServoSnapshot is a point-in-time copy of a servo's counters.
type ServoSnapshot struct {
	ID       int
	Requests uint64
	Failures uint64
}

// NewBusMetrics creates an empty metrics set.
func NewBusMetrics() *BusMetrics {
	return &BusMetrics{servos: xsync.NewMapOf[int, *ServoStats]()}
}

// Servo returns the counters for id, or nil if no request was sent to it.
func (m *BusMetrics) Servo(id int) *ServoStats {
	s, _ := m.servos.Load(id)
	return s
}

// Servos returns a snapshot of all per-servo counters ordered by ID.
func (m *BusMetrics) Servos() []ServoSnapshot {
	out := make([]ServoSnapshot, 0, m.servos.Size())
	m.servos.Range(func(id int, s *ServoStats) bool {
		out = append(out, ServoSnapshot{
			ID:       id,
			Requests: s.Requests.Load(),
			Failures: s.Failures.Load(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *BusMetrics) servo(id int) *ServoStats {
	s, _ := m.servos.LoadOrCompute(id, func() *ServoStats { return &ServoStats{} })
	return s
}

func (m *BusMetrics) incRequest(id int) {
	m.servo(id).Requests.Add(1)
}

func (m *BusMetrics) incFailure(id int) {
	m.servo(id).Failures.Add(1)
}

func (m *BusMetrics) incFramesSent() {
	m.FramesSent.Add(1)
}

func (m *BusMetrics) incFramesReceived() {
	m.FramesReceived.Add(1)
}

func (m *BusMetrics) addEchoBytes(n int) {
	m.EchoBytes.Add(uint64(n))
}

func (m *BusMetrics) addEchoMismatches(n int) {
	m.EchoMismatches.Add(uint64(n))
}

func (m *BusMetrics) addNoiseBytes(n int) {
	m.NoiseBytes.Add(uint64(n))
}

func (m *BusMetrics) incQuietResets() {
	m.QuietResets.Add(1)
}

func (m *BusMetrics) incRetries() {
	m.Retries.Add(1)
}

// incError bumps the counter matching the outcome state of a failed exchange.
func (m *BusMetrics) incError(state SessionState) {
	switch state {
	case StateTimedOutHeader:
		m.HeaderTimeouts.Add(1)
	case StateTimedOutBody:
		m.BodyTimeouts.Add(1)
	case StateChecksumError:
		m.ChecksumErrors.Add(1)
	case StateMalformed:
		m.MalformedReplies.Add(1)
	case StateOversize:
		m.OversizeReplies.Add(1)
	case StateTransportFailed:
		m.TransportErrors.Add(1)
	}
}
