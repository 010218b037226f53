// Package device provides the frame-level I/O capability the link layer sits on.
package device

import (
	"fmt"
	"sync/atomic"
	"time"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
)

// Device reads and writes whole Ethernet frames.
//
// ReadPacket blocks until one frame is available and copies it into buf.
// A frame longer than buf is consumed and reported as core.ErrFrameTooLong,
// never returned cut.
// After the read deadline passes it returns os.ErrDeadlineExceeded; a zero
// deadline blocks indefinitely. SetReadDeadline may be called from another
// goroutine while a read is in progress.
type Device interface {
	Name() string
	HardwareAddr() (addr.HardwareAddr, error)
	ReadPacket(buf []byte) (int, error)
	WritePacket(frame []byte) error
	SetReadDeadline(t time.Time) error
	Stats() Stats
	Close() error
}

// Stats is a snapshot of per-device counters.
type Stats struct {
	PacketsReceived uint64
	PacketsSent     uint64
	Errors          uint64
}

// counters backs Stats for every provider.
type counters struct {
	received atomic.Uint64
	sent     atomic.Uint64
	errors   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		PacketsReceived: c.received.Load(),
		PacketsSent:     c.sent.Load(),
		Errors:          c.errors.Load(),
	}
}

// deliver copies frame into buf and counts it, or counts an error when it
// does not fit. wireLen is the frame's length on the wire, which is larger
// than len(frame) when the capture cut it.
func (c *counters) deliver(buf, frame []byte, wireLen int) (int, error) {
	if len(frame) > len(buf) || wireLen > len(frame) {
		c.errors.Add(1)
		return 0, fmt.Errorf("frame of %d bytes, buffer of %d: %w", max(len(frame), wireLen), len(buf), core.ErrFrameTooLong)
	}
	c.received.Add(1)
	return copy(buf, frame), nil
}
