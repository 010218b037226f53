//go:build linux

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vishvananda/netlink"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
)

// tapDevice is a layer-2 TAP interface created for the lifetime of the device
// and deleted on Close. Frames move through the single queue file.
type tapDevice struct {
	name     string
	link     netlink.Link
	queue    *os.File
	scratch  []byte
	counters counters
}

func openTAP(cfg Config) (Device, error) {
	tap := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: cfg.Name},
		Mode:      netlink.TUNTAP_MODE_TAP,
		Queues:    1,
		Flags:     netlink.TUNTAP_MULTI_QUEUE_DEFAULTS,
	}
	if err := netlink.LinkAdd(tap); err != nil {
		return nil, fmt.Errorf("LinkAdd() failed for tap %s: %w", cfg.Name, err)
	}
	if len(tap.Fds) == 0 {
		_ = netlink.LinkDel(tap)
		return nil, fmt.Errorf("tap %s: no queue file returned", cfg.Name)
	}
	for _, f := range tap.Fds[1:] {
		f.Close()
	}

	link, err := netlink.LinkByName(cfg.Name)
	if err != nil {
		tap.Fds[0].Close()
		_ = netlink.LinkDel(tap)
		return nil, fmt.Errorf("failed to get interface %s: %w", cfg.Name, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		tap.Fds[0].Close()
		_ = netlink.LinkDel(link)
		return nil, fmt.Errorf("failed to bring up %s: %w", cfg.Name, err)
	}

	slog.Debug("tap device created", "interface", cfg.Name, "index", link.Attrs().Index)
	return &tapDevice{name: cfg.Name, link: link, queue: tap.Fds[0]}, nil
}

func (d *tapDevice) Name() string { return d.name }

func (d *tapDevice) HardwareAddr() (addr.HardwareAddr, error) {
	return addr.HardwareAddrFrom(d.link.Attrs().HardwareAddr)
}

// ReadPacket reads into a scratch buffer one byte longer than buf, since the
// kernel cuts frames to the read size without saying so.
func (d *tapDevice) ReadPacket(buf []byte) (int, error) {
	if cap(d.scratch) <= len(buf) {
		d.scratch = make([]byte, len(buf)+1)
	}
	n, err := d.queue.Read(d.scratch[:len(buf)+1])
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return 0, core.ErrDeviceClosed
		}
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			d.counters.errors.Add(1)
		}
		return 0, err
	}
	return d.counters.deliver(buf, d.scratch[:n], n)
}

func (d *tapDevice) WritePacket(frame []byte) error {
	if _, err := d.queue.Write(frame); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return core.ErrDeviceClosed
		}
		d.counters.errors.Add(1)
		return err
	}
	d.counters.sent.Add(1)
	return nil
}

func (d *tapDevice) SetReadDeadline(t time.Time) error {
	return d.queue.SetReadDeadline(t)
}

func (d *tapDevice) Stats() Stats { return d.counters.snapshot() }

func (d *tapDevice) Close() error {
	err := d.queue.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return errors.Join(err, netlink.LinkDel(d.link))
}
