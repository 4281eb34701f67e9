package lx16a

import (
	"errors"
	"fmt"
)

// Sentinel errors for the bus failure taxonomy.
var (
	ErrTransportFailure      = errors.New("transport failure")
	ErrTimeoutAwaitingHeader = errors.New("timeout awaiting response header")
	ErrTimeoutReadingBody    = errors.New("timeout reading response body")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrOversizeResponse      = errors.New("oversize response")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrBusClosed             = errors.New("bus is closed")
)

// CommError represents a communication-level error.
type CommError struct {
	Op  string // Operation that failed (e.g., "write", "read", "flush")
	Err error  // Underlying error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("communication error during %s: %v", e.Op, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// ServoError represents a failed command addressed to a specific servo.
type ServoError struct {
	ID  int    // Servo ID
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *ServoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("servo %d %s failed: %v", e.ID, e.Op, e.Err)
	}
	return fmt.Sprintf("servo %d %s failed", e.ID, e.Op)
}

func (e *ServoError) Unwrap() error {
	return e.Err
}

// ChecksumError carries the received and computed checksum of a rejected frame.
type ChecksumError struct {
	Got  byte
	Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%v: received 0x%02X, calculated 0x%02X", ErrChecksumMismatch, e.Got, e.Want)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

// BodyTimeoutError is returned when a reply header arrived but the rest of
// the frame did not. Partial holds the bytes collected so far.
type BodyTimeoutError struct {
	Partial []byte
	Want    int
}

func (e *BodyTimeoutError) Error() string {
	return fmt.Sprintf("%v: got %d of %d bytes (% X)", ErrTimeoutReadingBody, len(e.Partial), e.Want, e.Partial)
}

func (e *BodyTimeoutError) Unwrap() error {
	return ErrTimeoutReadingBody
}

// IsTimeout returns true if the error is a header or body timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeoutAwaitingHeader) || errors.Is(err, ErrTimeoutReadingBody)
}

// IsRetryable reports whether reissuing the same request may succeed.
// Oversize replies, invalid requests and transport failures are not retryable.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrOversizeResponse),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrTransportFailure),
		errors.Is(err, ErrBusClosed):
		return false
	}
	return IsTimeout(err) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrMalformedResponse)
}

// GetServoError extracts a ServoError from an error chain, if present.
func GetServoError(err error) (*ServoError, bool) {
	var servoErr *ServoError
	if errors.As(err, &servoErr) {
		return servoErr, true
	}
	return nil, false
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func transportFailure(op string, err error) error {
	return &CommError{Op: op, Err: fmt.Errorf("%w: %w", ErrTransportFailure, err)}
}
