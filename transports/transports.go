// Package transports provides Transport implementations for the LX-16A bus:
// a serial port for hosted builds, a UART for TinyGo targets, and a mock
// wire for tests.
package transports

// DefaultBaudRate is the LX-16A factory line speed.
const DefaultBaudRate = 115200
