package lx16a

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hipsterbrown/lx16a-servo/logger"
)

// SessionState is the progress of a single request/reply exchange.
type SessionState int

const (
	StateIdle SessionState = iota
	StateSending
	StateDiscardingEcho
	StateAwaitingHeader
	StateAwaitingBody
	StateValidated
	StateChecksumError
	StateTimedOutHeader
	StateTimedOutBody
	StateOversize
	StateMalformed
	StateTransportFailed
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateSending:         "sending",
	StateDiscardingEcho:  "discarding_echo",
	StateAwaitingHeader:  "awaiting_header",
	StateAwaitingBody:    "awaiting_body",
	StateValidated:       "validated",
	StateChecksumError:   "checksum_error",
	StateTimedOutHeader:  "timed_out_header",
	StateTimedOutBody:    "timed_out_body",
	StateOversize:        "oversize",
	StateMalformed:       "malformed",
	StateTransportFailed: "transport_failed",
}

func (s SessionState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the exchange has finished in this state.
func (s SessionState) Terminal() bool {
	return s >= StateValidated
}

// Timing holds the polling intervals and deadlines of an exchange.
// Zero fields take the defaults below.
type Timing struct {
	// EchoReadTimeout bounds each read while discarding our own echo. Default 5ms.
	EchoReadTimeout time.Duration
	// HeaderPoll bounds each read while searching for a reply header. Default 10ms.
	HeaderPoll time.Duration
	// HeaderTimeout is the overall wait for a reply header. Default 100ms.
	HeaderTimeout time.Duration
	// BodyPoll bounds each read of the reply body. Default 5ms.
	BodyPoll time.Duration
	// BodyTimeout is the overall wait for the reply body. Default 200ms.
	BodyTimeout time.Duration
	// QuietPeriod is how long the line must stay silent before a recovery
	// drain ends. Default 20ms.
	QuietPeriod time.Duration
	// ResyncAfter is the number of consecutive failed exchanges that trigger
	// a recovery drain. Default 3.
	ResyncAfter int
}

// DefaultTiming returns the timing used when BusConfig.Timing is left zero.
func DefaultTiming() Timing {
	return Timing{
		EchoReadTimeout: 5 * time.Millisecond,
		HeaderPoll:      10 * time.Millisecond,
		HeaderTimeout:   100 * time.Millisecond,
		BodyPoll:        5 * time.Millisecond,
		BodyTimeout:     200 * time.Millisecond,
		QuietPeriod:     20 * time.Millisecond,
		ResyncAfter:     3,
	}
}

func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.EchoReadTimeout <= 0 {
		t.EchoReadTimeout = def.EchoReadTimeout
	}
	if t.HeaderPoll <= 0 {
		t.HeaderPoll = def.HeaderPoll
	}
	if t.HeaderTimeout <= 0 {
		t.HeaderTimeout = def.HeaderTimeout
	}
	if t.BodyPoll <= 0 {
		t.BodyPoll = def.BodyPoll
	}
	if t.BodyTimeout <= 0 {
		t.BodyTimeout = def.BodyTimeout
	}
	if t.QuietPeriod <= 0 {
		t.QuietPeriod = def.QuietPeriod
	}
	if t.ResyncAfter <= 0 {
		t.ResyncAfter = def.ResyncAfter
	}
	return t
}

// session carries one exchange over the half-duplex line. The wire echoes
// every byte we transmit, so a reply is only read after the echo has been
// consumed.
type session struct {
	transport Transport
	clock     clock.Clock
	timing    Timing
	log       logger.Logger
	metrics   *BusMetrics

	tx    [MaxFrameSize]byte
	txLen int
	rx    [MaxFrameSize]byte
	n     int

	state      SessionState
	echoed     int
	mismatched int
	skipped    int
}

// run transmits frame and, when expectReply is set, collects and decodes
// the reply. The session ends in a terminal state either way.
func (s *session) run(frame []byte, expectReply bool) (Frame, error) {
	if len(frame) > MaxFrameSize {
		return Frame{}, invalidRequest("frame of %d bytes exceeds %d", len(frame), MaxFrameSize)
	}
	s.txLen = copy(s.tx[:], frame)
	s.n = 0

	reply, err := s.exchange(expectReply)
	if err != nil {
		s.state = failureState(err)
		s.metrics.incError(s.state)
	}

	s.log.Debug("exchange",
		"tx", fmt.Sprintf("% X", s.tx[:s.txLen]),
		"rx", fmt.Sprintf("% X", s.rx[:s.n]),
		"echo", s.echoed,
		"echo_mismatch", s.mismatched,
		"noise", s.skipped,
		"state", s.state.String(),
	)

	return reply, err
}

func (s *session) exchange(expectReply bool) (Frame, error) {
	s.state = StateSending
	if err := s.transport.Flush(); err != nil {
		return Frame{}, transportFailure("flush", err)
	}

	n, err := s.transport.Write(s.tx[:s.txLen])
	if err != nil {
		return Frame{}, transportFailure("write", err)
	}
	if n != s.txLen {
		return Frame{}, transportFailure("write", fmt.Errorf("incomplete write: %d of %d bytes", n, s.txLen))
	}
	s.metrics.incFramesSent()

	if !expectReply {
		s.state = StateValidated
		return Frame{}, nil
	}

	s.state = StateDiscardingEcho
	if err := s.discardEcho(); err != nil {
		return Frame{}, err
	}

	s.state = StateAwaitingHeader
	if err := s.awaitHeader(); err != nil {
		return Frame{}, err
	}

	frameLen, err := frameSize(s.rx[3])
	if err != nil {
		return Frame{}, err
	}

	s.state = StateAwaitingBody
	if err := s.readBody(frameLen); err != nil {
		return Frame{}, err
	}

	reply, err := Decode(s.rx[:frameLen])
	if err != nil {
		return Frame{}, err
	}

	s.state = StateValidated
	s.metrics.incFramesReceived()
	return reply, nil
}

// discardEcho consumes the bytes we just transmitted. It is best effort:
// the first empty read ends it.
func (s *session) discardEcho() error {
	var echo [MaxFrameSize]byte
	got := 0
	for got < s.txLen {
		n, err := s.read(echo[got:s.txLen], s.timing.EchoReadTimeout)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		got += n
	}

	s.echoed = got
	s.metrics.addEchoBytes(got)
	for i := 0; i < got; i++ {
		if echo[i] != s.tx[i] {
			s.mismatched++
		}
	}
	if s.mismatched > 0 {
		s.metrics.addEchoMismatches(s.mismatched)
		s.log.Debug("echo mismatch", "sent", fmt.Sprintf("% X", s.tx[:got]), "echo", fmt.Sprintf("% X", echo[:got]))
	}
	return nil
}

// awaitHeader reads until rx starts with 0x55 0x55 followed by id and length.
func (s *session) awaitHeader() error {
	deadline := s.clock.Now().Add(s.timing.HeaderTimeout)
	for s.n < headerLen {
		if !s.clock.Now().Before(deadline) {
			return fmt.Errorf("%w: %d bytes buffered after %v", ErrTimeoutAwaitingHeader, s.n, s.timing.HeaderTimeout)
		}

		n, err := s.read(s.rx[s.n:headerLen], s.timing.HeaderPoll)
		if err != nil {
			return err
		}
		s.n += n
		s.resync()
	}
	return nil
}

// resync slides the window until the buffer is empty or starts with a
// header candidate: 0x55 0x55, or a lone trailing 0x55.
func (s *session) resync() {
	skip := 0
	for s.n-skip >= 2 && (s.rx[skip] != headerByte || s.rx[skip+1] != headerByte) {
		skip++
	}
	if s.n-skip == 1 && s.rx[skip] != headerByte {
		skip++
	}
	if skip == 0 {
		return
	}

	copy(s.rx[:], s.rx[skip:s.n])
	s.n -= skip
	s.skipped += skip
	s.metrics.addNoiseBytes(skip)
}

func (s *session) readBody(frameLen int) error {
	deadline := s.clock.Now().Add(s.timing.BodyTimeout)
	for s.n < frameLen {
		if !s.clock.Now().Before(deadline) {
			partial := make([]byte, s.n)
			copy(partial, s.rx[:s.n])
			return &BodyTimeoutError{Partial: partial, Want: frameLen}
		}

		n, err := s.read(s.rx[s.n:frameLen], s.timing.BodyPoll)
		if err != nil {
			return err
		}
		s.n += n
	}
	return nil
}

// drainUntilSilence discards input until the line has been quiet for
// QuietPeriod, giving up after HeaderTimeout.
func (s *session) drainUntilSilence() (int, error) {
	var scratch [MaxFrameSize]byte
	drained := 0
	start := s.clock.Now()
	deadline := start.Add(s.timing.HeaderTimeout)
	lastByte := start

	for s.clock.Now().Before(deadline) {
		n, err := s.read(scratch[:], s.timing.HeaderPoll)
		if err != nil {
			return drained, err
		}
		if n > 0 {
			drained += n
			lastByte = s.clock.Now()
			continue
		}
		if s.clock.Since(lastByte) >= s.timing.QuietPeriod {
			return drained, nil
		}
	}

	s.log.Warn("line did not go quiet", "drained", drained, "waited", s.timing.HeaderTimeout)
	return drained, nil
}

// read performs one bounded read. An empty read is a timeout and returns
// (0, nil); anything else that fails is a transport failure.
func (s *session) read(p []byte, timeout time.Duration) (int, error) {
	if err := s.transport.SetReadTimeout(timeout); err != nil {
		return 0, transportFailure("set read timeout", err)
	}

	n, err := s.transport.Read(p)
	if n > 0 {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, nil
	}
	return 0, transportFailure("read", err)
}

func failureState(err error) SessionState {
	switch {
	case errors.Is(err, ErrTransportFailure):
		return StateTransportFailed
	case errors.Is(err, ErrTimeoutAwaitingHeader):
		return StateTimedOutHeader
	case errors.Is(err, ErrTimeoutReadingBody):
		return StateTimedOutBody
	case errors.Is(err, ErrChecksumMismatch):
		return StateChecksumError
	case errors.Is(err, ErrOversizeResponse):
		return StateOversize
	default:
		return StateMalformed
	}
}
