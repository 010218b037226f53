// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// Codec errors
	ErrTruncated    = errors.New("tendium: truncated input")
	ErrNoEtherType  = errors.New("tendium: payload has no ethertype")
	ErrNoProtocol   = errors.New("tendium: payload has no ip protocol number")
	ErrEchoMismatch = errors.New("tendium: icmp echo fields do not match message type")

	// Address resolution errors
	ErrResolveTimeout = errors.New("tendium: address resolution timed out")

	// Device errors
	ErrDeviceClosed      = errors.New("tendium: device closed")
	ErrFrameTooLong      = errors.New("tendium: frame longer than read buffer")
	ErrUnsupportedDevice = errors.New("tendium: unsupported device type")

	// Output errors
	ErrSinkClosed = errors.New("tendium: sink closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("tendium: invalid configuration")
)
