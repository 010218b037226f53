// Package link turns a device into a stream of decoded Ethernet frames.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/device"
	"firestige.xyz/tendium/internal/metrics"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/ethernet"
)

const defaultBufferSize = 65536

// Interface is the link layer over one device. It is not safe for concurrent
// Recv calls; Send may run alongside Recv when the device allows it.
type Interface struct {
	dev  device.Device
	name string
	hw   addr.HardwareAddr
	buf  []byte
}

// Option configures an Interface.
type Option func(*Interface)

// WithBufferSize sets the receive buffer, i.e. the largest frame Recv returns whole.
func WithBufferSize(n int) Option {
	return func(i *Interface) {
		if n > 0 {
			i.buf = make([]byte, n)
		}
	}
}

// New takes ownership of dev and reads its hardware address once.
func New(dev device.Device, opts ...Option) (*Interface, error) {
	hw, err := dev.HardwareAddr()
	if err != nil {
		return nil, fmt.Errorf("link %s: hardware address: %w", dev.Name(), err)
	}
	i := &Interface{dev: dev, name: dev.Name(), hw: hw}
	for _, opt := range opts {
		opt(i)
	}
	if i.buf == nil {
		i.buf = make([]byte, defaultBufferSize)
	}
	return i, nil
}

// Name returns the device name.
func (i *Interface) Name() string { return i.name }

// HardwareAddr returns the address used as the source of sent frames.
func (i *Interface) HardwareAddr() addr.HardwareAddr { return i.hw }

// Stats returns the device counters.
func (i *Interface) Stats() device.Stats { return i.dev.Stats() }

// Recv reads one frame from the device and decodes it. Frames longer than the
// receive buffer are dropped and counted. Other device errors are returned
// unchanged; a frame that fails to decode is reported as an error and
// consumed. When ctx ends during the read its error is returned.
func (i *Interface) Recv(ctx context.Context) (*ethernet.Frame, error) {
	n, err := i.read(ctx)
	if err != nil {
		return nil, err
	}

	f, err := ethernet.Unmarshal(i.buf[:n])
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues(i.name).Inc()
		slog.Debug("frame decode failed", "interface", i.name, "len", n, "error", err)
		return nil, fmt.Errorf("link %s: decode frame: %w", i.name, err)
	}

	metrics.FramesReceivedTotal.WithLabelValues(i.name, f.Header.Type.String()).Inc()
	slog.Debug("frame received", "interface", i.name, "src", f.Header.Src, "dst", f.Header.Dst, "type", f.Header.Type, "len", n)
	return f, nil
}

// RecvRaw reads one frame without decoding it. The returned slice is a copy.
func (i *Interface) RecvRaw(ctx context.Context) ([]byte, error) {
	n, err := i.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, i.buf[:n])
	return out, nil
}

func (i *Interface) read(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = i.dev.SetReadDeadline(time.Now())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
			_ = i.dev.SetReadDeadline(time.Time{})
		}
	}()

	for {
		n, err := i.dev.ReadPacket(i.buf)
		if errors.Is(err, core.ErrFrameTooLong) {
			metrics.FramesDroppedTotal.WithLabelValues(i.name, metrics.LayerLink).Inc()
			slog.Debug("oversized frame dropped", "interface", i.name, "error", err)
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, os.ErrDeadlineExceeded) {
				return 0, ctxErr
			}
			return 0, err
		}
		return n, nil
	}
}

// Send frames payload for dst with our address as source. The ethertype
// follows from the payload; Raw payloads have none and are rejected.
func (i *Interface) Send(dst addr.HardwareAddr, payload ethernet.Payload) error {
	f, err := ethernet.NewFrame(dst, i.hw, payload)
	if err != nil {
		return fmt.Errorf("link %s: %w", i.name, err)
	}
	b, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("link %s: encode frame: %w", i.name, err)
	}
	if err := i.dev.WritePacket(b); err != nil {
		return err
	}

	metrics.FramesSentTotal.WithLabelValues(i.name, f.Header.Type.String()).Inc()
	slog.Debug("frame sent", "interface", i.name, "dst", dst, "type", f.Header.Type, "len", len(b))
	return nil
}

// Close closes the device.
func (i *Interface) Close() error {
	return i.dev.Close()
}
