// Package lx16a provides a Go library for driving LewanSoul/Hiwonder LX-16A
// class serial bus servos over a half-duplex single-wire UART.
package lx16a

import (
	"encoding/binary"
	"fmt"
)

// Special ID values.
const (
	BroadcastID = 0xFE
	MaxServoID  = 0xFD
)

// Frame layout constants.
const (
	headerByte = 0x55

	// MaxFrameSize bounds every frame on the wire, request or reply.
	MaxFrameSize = 16

	// frameOverhead is header(2) + id(1) + length(1) + command(1) + checksum(1).
	frameOverhead = 6

	// MaxParams is the largest parameter count that fits in MaxFrameSize.
	MaxParams = MaxFrameSize - frameOverhead

	// headerLen is the prefix needed to know a frame's full size.
	headerLen = 4

	// minLengthField covers command + checksum with no parameters.
	minLengthField = 3
)

// Frame is a decoded LX-16A bus frame.
type Frame struct {
	ID      byte
	Command Command
	Params  []byte
}

// Len returns the frame's total size on the wire.
func (f Frame) Len() int {
	return frameOverhead + len(f.Params)
}

// Encode constructs a wire-format frame from the given components.
func Encode(id byte, cmd Command, params []byte) ([]byte, error) {
	if len(params) > MaxParams {
		return nil, invalidRequest("%d parameter bytes exceed frame limit of %d", len(params), MaxParams)
	}

	// header(2) + id(1) + length(1) + command(1) + params(n) + checksum(1)
	buf := make([]byte, 0, frameOverhead+len(params))
	buf = append(buf, headerByte, headerByte)
	buf = append(buf, id)
	buf = append(buf, byte(minLengthField+len(params)))
	buf = append(buf, byte(cmd))
	buf = append(buf, params...)
	buf = append(buf, Checksum(buf[2:]))

	return buf, nil
}

// Encode returns the wire form of f.
func (f Frame) Encode() ([]byte, error) {
	return Encode(f.ID, f.Command, f.Params)
}

// Decode parses a complete wire-format frame. The header must start at
// data[0]; bytes past the declared length are ignored.
func Decode(data []byte) (Frame, error) {
	if len(data) < headerLen {
		return Frame{}, fmt.Errorf("%w: %d bytes is shorter than a frame header", ErrMalformedResponse, len(data))
	}
	if data[0] != headerByte || data[1] != headerByte {
		return Frame{}, fmt.Errorf("%w: bad header % X", ErrMalformedResponse, data[:2])
	}

	total, err := frameSize(data[3])
	if err != nil {
		return Frame{}, err
	}
	if len(data) < total {
		return Frame{}, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedResponse, total, len(data))
	}

	want := Checksum(data[2 : total-1])
	if got := data[total-1]; got != want {
		return Frame{}, &ChecksumError{Got: got, Want: want}
	}

	f := Frame{
		ID:      data[2],
		Command: Command(data[4]),
	}
	if n := total - frameOverhead; n > 0 {
		f.Params = make([]byte, n)
		copy(f.Params, data[5:5+n])
	}

	return f, nil
}

// frameSize converts a length field into the full frame size.
func frameSize(lengthField byte) (int, error) {
	if lengthField < minLengthField {
		return 0, fmt.Errorf("%w: implausible length field %d", ErrMalformedResponse, lengthField)
	}
	total := 3 + int(lengthField)
	if total > MaxFrameSize {
		return 0, fmt.Errorf("%w: frame size %d exceeds buffer size %d", ErrOversizeResponse, total, MaxFrameSize)
	}
	return total, nil
}

// Checksum returns the complement of the truncated sum of id, length,
// command and parameter bytes.
func Checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return ^sum
}

// putWord encodes a 16-bit value little-endian into dst[0:2].
func putWord(dst []byte, v uint16) {
	binary.LittleEndian.PutUint16(dst, v)
}

// word decodes a little-endian 16-bit value.
func word(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(data)
}
