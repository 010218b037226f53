package device

import (
	"os"
	"sync"
	"time"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
)

const pipeQueueLen = 64

// Pipe is one end of an in-memory frame link. Frames written on one end are
// read, in order, from the other.
type Pipe struct {
	name string
	hw   addr.HardwareAddr

	rx chan []byte
	tx chan []byte

	done     chan struct{}
	peerDone chan struct{}
	once     sync.Once

	deadline deadline
	counters counters
}

// NewPipe returns two connected ends.
func NewPipe(aName string, aHW addr.HardwareAddr, bName string, bHW addr.HardwareAddr) (*Pipe, *Pipe) {
	ab := make(chan []byte, pipeQueueLen)
	ba := make(chan []byte, pipeQueueLen)
	a := &Pipe{name: aName, hw: aHW, rx: ba, tx: ab, done: make(chan struct{}), deadline: makeDeadline()}
	b := &Pipe{name: bName, hw: bHW, rx: ab, tx: ba, done: make(chan struct{}), deadline: makeDeadline()}
	a.peerDone = b.done
	b.peerDone = a.done
	return a, b
}

// NewLoopback returns a single end whose writes come back as its own reads.
func NewLoopback(name string, hw addr.HardwareAddr) *Pipe {
	q := make(chan []byte, pipeQueueLen)
	p := &Pipe{name: name, hw: hw, rx: q, tx: q, done: make(chan struct{}), deadline: makeDeadline()}
	p.peerDone = p.done
	return p
}

func (p *Pipe) Name() string { return p.name }

func (p *Pipe) HardwareAddr() (addr.HardwareAddr, error) { return p.hw, nil }

// ReadPacket returns the next queued frame.
func (p *Pipe) ReadPacket(buf []byte) (int, error) {
	select {
	case <-p.done:
		return 0, core.ErrDeviceClosed
	case <-p.deadline.wait():
		return 0, os.ErrDeadlineExceeded
	default:
	}

	select {
	case frame := <-p.rx:
		return p.counters.deliver(buf, frame, len(frame))
	case <-p.done:
		return 0, core.ErrDeviceClosed
	case <-p.deadline.wait():
		return 0, os.ErrDeadlineExceeded
	}
}

// WritePacket queues a copy of frame for the peer.
func (p *Pipe) WritePacket(frame []byte) error {
	b := make([]byte, len(frame))
	copy(b, frame)
	select {
	case <-p.done:
		return core.ErrDeviceClosed
	case <-p.peerDone:
		p.counters.errors.Add(1)
		return core.ErrDeviceClosed
	default:
	}

	select {
	case p.tx <- b:
		p.counters.sent.Add(1)
		return nil
	case <-p.done:
		return core.ErrDeviceClosed
	case <-p.peerDone:
		p.counters.errors.Add(1)
		return core.ErrDeviceClosed
	}
}

func (p *Pipe) SetReadDeadline(t time.Time) error {
	p.deadline.set(t)
	return nil
}

func (p *Pipe) Stats() Stats { return p.counters.snapshot() }

func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// deadline is a resettable cancellation channel closed once the deadline passes.
type deadline struct {
	mu     sync.Mutex
	timer  *time.Timer
	cancel chan struct{}
}

func makeDeadline() deadline {
	return deadline{cancel: make(chan struct{})}
}

func (d *deadline) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && !d.timer.Stop() {
		<-d.cancel // timer fired, wait for it to close cancel
	}
	d.timer = nil

	closed := isClosed(d.cancel)
	if t.IsZero() {
		if closed {
			d.cancel = make(chan struct{})
		}
		return
	}
	if dur := time.Until(t); dur > 0 {
		if closed {
			d.cancel = make(chan struct{})
		}
		cancel := d.cancel
		d.timer = time.AfterFunc(dur, func() { close(cancel) })
		return
	}
	if !closed {
		close(d.cancel)
	}
}

func (d *deadline) wait() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel
}

func isClosed(c chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
