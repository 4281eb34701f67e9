package lx16a

import (
	"io"
	"time"
)

// Transport is the interface for low-level communication with the servo bus.
// This abstraction allows for testing with mock implementations.
//
// A Read that returns no bytes together with a nil error, io.EOF or
// os.ErrDeadlineExceeded is treated as a read timeout.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds how long the next Read may block.
	SetReadTimeout(timeout time.Duration) error

	// Flush discards any buffered input data.
	Flush() error
}
