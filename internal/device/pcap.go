package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
)

// PcapDevice replays frames from a capture file and records sent frames to
// another. Either side may be absent: without a read file every read reports
// io.EOF, without a write file sent frames are discarded.
type PcapDevice struct {
	name string
	hw   addr.HardwareAddr

	in     *os.File
	reader *pcapgo.Reader

	mu     sync.Mutex
	out    *os.File
	writer *pcapgo.Writer

	deadline atomic.Int64
	closed   atomic.Bool
	counters counters
}

// OpenPcap opens the read and write files. snapLen is recorded in the header
// of the written file.
func OpenPcap(name string, hw addr.HardwareAddr, readFile, writeFile string, snapLen int) (*PcapDevice, error) {
	d := &PcapDevice{name: name, hw: hw}

	if readFile != "" {
		f, err := os.Open(readFile)
		if err != nil {
			return nil, fmt.Errorf("open pcap input: %w", err)
		}
		r, err := pcapgo.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read pcap header %s: %w", readFile, err)
		}
		if r.LinkType() != layers.LinkTypeEthernet {
			f.Close()
			return nil, fmt.Errorf("pcap %s has link type %s, want Ethernet: %w", readFile, r.LinkType(), core.ErrUnsupportedDevice)
		}
		d.in, d.reader = f, r
	}

	if writeFile != "" {
		f, err := os.Create(writeFile)
		if err != nil {
			d.closeFiles()
			return nil, fmt.Errorf("create pcap output: %w", err)
		}
		w := pcapgo.NewWriter(f)
		if err := w.WriteFileHeader(uint32(snapLen), layers.LinkTypeEthernet); err != nil {
			f.Close()
			d.closeFiles()
			return nil, fmt.Errorf("write pcap header %s: %w", writeFile, err)
		}
		d.out, d.writer = f, w
	}

	return d, nil
}

func (d *PcapDevice) Name() string { return d.name }

func (d *PcapDevice) HardwareAddr() (addr.HardwareAddr, error) { return d.hw, nil }

// ReadPacket returns the next recorded frame, or io.EOF once the file is exhausted.
func (d *PcapDevice) ReadPacket(buf []byte) (int, error) {
	if d.closed.Load() {
		return 0, core.ErrDeviceClosed
	}
	if dl := d.deadline.Load(); dl != 0 && time.Now().UnixNano() >= dl {
		return 0, os.ErrDeadlineExceeded
	}
	if d.reader == nil {
		return 0, io.EOF
	}

	data, ci, err := d.reader.ReadPacketData()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			d.counters.errors.Add(1)
		}
		return 0, err
	}
	return d.counters.deliver(buf, data, ci.Length)
}

// WritePacket appends frame to the output file.
func (d *PcapDevice) WritePacket(frame []byte) error {
	if d.closed.Load() {
		return core.ErrDeviceClosed
	}
	if d.writer == nil {
		d.counters.sent.Add(1)
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := d.writer.WritePacket(ci, frame); err != nil {
		d.counters.errors.Add(1)
		return err
	}
	d.counters.sent.Add(1)
	return nil
}

func (d *PcapDevice) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		d.deadline.Store(0)
		return nil
	}
	d.deadline.Store(t.UnixNano())
	return nil
}

func (d *PcapDevice) Stats() Stats { return d.counters.snapshot() }

func (d *PcapDevice) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeFiles()
}

func (d *PcapDevice) closeFiles() error {
	var errs []error
	if d.in != nil {
		errs = append(errs, d.in.Close())
		d.in = nil
	}
	if d.out != nil {
		errs = append(errs, d.out.Close())
		d.out = nil
	}
	return errors.Join(errs...)
}
