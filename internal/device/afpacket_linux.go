//go:build linux

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/vishvananda/netlink"
	"golang.org/x/net/bpf"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
)

func platformTypes() []Type {
	return []Type{TypeAFPacket, TypeTAP}
}

// afpacketDevice is an AF_PACKET TPACKET_V3 socket bound to one interface.
// Reads wake up every poll timeout to check the deadline. Close waits for an
// in-flight read so the ring is never unmapped under it.
type afpacketDevice struct {
	name    string
	link    netlink.Link
	tpacket *afpacket.TPacket
	promisc bool // set when Close must clear promiscuous mode
	readMu  sync.Mutex

	deadline atomic.Int64
	closed   atomic.Bool
	counters counters
}

func openAFPacket(cfg Config) (Device, error) {
	link, err := netlink.LinkByName(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get interface %s: %w", cfg.Name, err)
	}

	frameSize, blockSize, numBlocks, err := computeFrameSizeAndBlocks(cfg.SnapLen, cfg.BufferSizeMB*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("failed to compute frame size and blocks: %w", err)
	}

	tpacket, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(cfg.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create TPacket: %w", err)
	}
	d := &afpacketDevice{name: cfg.Name, link: link, tpacket: tpacket}

	if cfg.Filter != "" {
		prog, err := CompileFilter(cfg.Filter, cfg.SnapLen)
		if err != nil {
			tpacket.Close()
			return nil, err
		}
		raw, err := bpf.Assemble(prog)
		if err != nil {
			tpacket.Close()
			return nil, fmt.Errorf("failed to assemble BPF filter %q: %w", cfg.Filter, err)
		}
		if err := tpacket.SetBPF(raw); err != nil {
			tpacket.Close()
			return nil, fmt.Errorf("failed to set BPF: %w", err)
		}
		slog.Debug("BPF filter applied", "interface", cfg.Name, "filter", cfg.Filter)
	}

	if claimPromisc(cfg.Promiscuous, link.Attrs()) {
		if err := netlink.SetPromiscOn(link); err != nil {
			tpacket.Close()
			return nil, fmt.Errorf("failed to enable promiscuous mode: %w", err)
		}
		d.promisc = true
	} else if cfg.Promiscuous {
		slog.Debug("interface already promiscuous", "interface", cfg.Name)
	}

	return d, nil
}

// claimPromisc reports whether we turn promiscuous mode on, and so must turn
// it off on Close. An interface that is already promiscuous is left alone.
func claimPromisc(want bool, attrs *netlink.LinkAttrs) bool {
	return want && attrs.Promisc == 0
}

// computeFrameSizeAndBlocks sizes the ring so one frame fits snapLen and the
// whole ring fits bufferSize.
func computeFrameSizeAndBlocks(snapLen, bufferSize int) (frameSize, blockSize, numBlocks int, err error) {
	pageSize := os.Getpagesize()
	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}
	blockSize = frameSize * 128
	numBlocks = bufferSize / blockSize

	if numBlocks < 1 {
		return 0, 0, 0, fmt.Errorf("buffer size %d too small for frame size %d", bufferSize, frameSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

func (d *afpacketDevice) Name() string { return d.name }

func (d *afpacketDevice) HardwareAddr() (addr.HardwareAddr, error) {
	return addr.HardwareAddrFrom(d.link.Attrs().HardwareAddr)
}

func (d *afpacketDevice) ReadPacket(buf []byte) (int, error) {
	for {
		if d.closed.Load() {
			return 0, core.ErrDeviceClosed
		}
		if dl := d.deadline.Load(); dl != 0 && time.Now().UnixNano() >= dl {
			return 0, os.ErrDeadlineExceeded
		}

		data, ci, err := d.readOnce()
		if errors.Is(err, afpacket.ErrTimeout) {
			continue
		}
		if err != nil {
			d.counters.errors.Add(1)
			return 0, err
		}
		return d.counters.deliver(buf, data, ci.Length)
	}
}

// readOnce returns a copy of the next frame in the ring.
func (d *afpacketDevice) readOnce() ([]byte, gopacket.CaptureInfo, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()
	if d.closed.Load() {
		return nil, gopacket.CaptureInfo{}, core.ErrDeviceClosed
	}
	return d.tpacket.ReadPacketData()
}

func (d *afpacketDevice) WritePacket(frame []byte) error {
	if d.closed.Load() {
		return core.ErrDeviceClosed
	}
	if err := d.tpacket.WritePacketData(frame); err != nil {
		d.counters.errors.Add(1)
		return err
	}
	d.counters.sent.Add(1)
	return nil
}

func (d *afpacketDevice) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		d.deadline.Store(0)
		return nil
	}
	d.deadline.Store(t.UnixNano())
	return nil
}

func (d *afpacketDevice) Stats() Stats { return d.counters.snapshot() }

func (d *afpacketDevice) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	var err error
	if d.promisc {
		err = netlink.SetPromiscOff(d.link)
	}
	d.readMu.Lock()
	d.tpacket.Close()
	d.readMu.Unlock()
	slog.Debug("afpacket device closed", "interface", d.name)
	return err
}
