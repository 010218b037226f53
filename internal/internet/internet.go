// Package internet is the IPv4 layer: it delivers datagrams from a link and
// addresses outgoing ones by IP, resolving hardware addresses with ARP.
package internet

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"firestige.xyz/tendium/internal/arpcache"
	"firestige.xyz/tendium/internal/metrics"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/arp"
	"firestige.xyz/tendium/internal/protocol/ethernet"
	"firestige.xyz/tendium/internal/protocol/ipv4"
)

const defaultBacklogLimit = 256

// LimitedBroadcast is sent to the link broadcast address without resolution.
var LimitedBroadcast = addr.IPv4Addr{255, 255, 255, 255}

// Link is the link layer the interface owns.
type Link interface {
	arpcache.Link
	Close() error
}

// Interface is the internet layer over one link.
//
// Frames are handled as follows: IPv4 datagrams are delivered whatever their
// destination; ARP requests for our address are answered when enabled; ARP
// replies nobody waits for are learned only when enabled; everything else is
// dropped and counted. Datagrams that arrive while Send waits for a
// resolution are queued and returned by later Recv calls.
//
// Interface is not safe for concurrent use.
type Interface struct {
	link     Link
	ip       addr.IPv4Addr
	resolver *arpcache.Resolver

	answerARP        bool
	learnUnsolicited bool
	backlogLimit     int
	backlog          []*ipv4.Datagram
	nextID           uint16

	resolverOpts []arpcache.Option
}

// Option configures an Interface.
type Option func(*Interface)

// WithAnswerARP answers ARP requests for our address.
func WithAnswerARP(on bool) Option {
	return func(i *Interface) { i.answerARP = on }
}

// WithRequestTimeout sets the per-request ARP wait.
func WithRequestTimeout(d time.Duration) Option {
	return func(i *Interface) { i.resolverOpts = append(i.resolverOpts, arpcache.WithRequestTimeout(d)) }
}

// WithMaxRetries sets how many ARP requests follow the first.
func WithMaxRetries(n int) Option {
	return func(i *Interface) { i.resolverOpts = append(i.resolverOpts, arpcache.WithMaxRetries(n)) }
}

// WithLearnUnsolicited caches ARP replies that answer no pending request.
func WithLearnUnsolicited(on bool) Option {
	return func(i *Interface) {
		i.learnUnsolicited = on
		i.resolverOpts = append(i.resolverOpts, arpcache.WithLearnUnsolicited(on))
	}
}

// WithStaticEntries preloads the neighbor table.
func WithStaticEntries(entries map[addr.IPv4Addr]addr.HardwareAddr) Option {
	return func(i *Interface) { i.resolverOpts = append(i.resolverOpts, arpcache.WithStaticEntries(entries)) }
}

// WithBacklogLimit caps datagrams queued during resolution. The oldest are
// dropped first.
func WithBacklogLimit(n int) Option {
	return func(i *Interface) {
		if n > 0 {
			i.backlogLimit = n
		}
	}
}

// New takes ownership of l and serves ip on it.
func New(l Link, ip addr.IPv4Addr, opts ...Option) (*Interface, error) {
	if ip.IsZero() {
		return nil, fmt.Errorf("internet %s: address is unset", l.Name())
	}
	i := &Interface{
		link:         l,
		ip:           ip,
		backlogLimit: defaultBacklogLimit,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.resolver = arpcache.NewResolver(l, ip, append(i.resolverOpts, arpcache.WithDeferred(i.deferFrame))...)
	i.resolverOpts = nil

	slog.Info("internet interface up", "interface", l.Name(), "ip", ip, "hardware", l.HardwareAddr(), "answer_arp", i.answerARP)
	return i, nil
}

// Name returns the link name.
func (i *Interface) Name() string { return i.link.Name() }

// IPAddr returns our address.
func (i *Interface) IPAddr() addr.IPv4Addr { return i.ip }

// HardwareAddr returns the link address.
func (i *Interface) HardwareAddr() addr.HardwareAddr { return i.link.HardwareAddr() }

// Neighbors returns a snapshot of the ARP cache.
func (i *Interface) Neighbors() []arpcache.Entry { return i.resolver.Cache().Entries() }

// Resolve returns the hardware address for ip.
func (i *Interface) Resolve(ctx context.Context, ip addr.IPv4Addr) (addr.HardwareAddr, error) {
	return i.resolver.Resolve(ctx, ip)
}

// Recv returns the next IPv4 datagram, queued ones first. Link errors,
// including decode failures, are returned as is.
func (i *Interface) Recv(ctx context.Context) (*ipv4.Datagram, error) {
	if len(i.backlog) > 0 {
		d := i.backlog[0]
		i.backlog[0] = nil
		i.backlog = i.backlog[1:]
		return d, nil
	}

	for {
		f, err := i.link.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if d, ok := ethernet.AsIPv4(f.Payload); ok {
			return d, nil
		}
		i.handleOther(f)
	}
}

// Send addresses payload to dst and hands it to the link. The header is
// version 4, IHL 5, TTL 64, no flags, a fresh identification and a zero
// checksum. Raw payloads carry no protocol number and ICMP messages whose
// echo fields disagree with their type cannot be encoded; both are rejected
// before any ARP traffic.
func (i *Interface) Send(ctx context.Context, dst addr.IPv4Addr, payload ipv4.Payload) error {
	proto, err := ipv4.ProtocolOf(payload)
	if err != nil {
		return fmt.Errorf("internet %s: %w", i.Name(), err)
	}
	if m, ok := ipv4.AsICMP(payload); ok {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("internet %s: %w", i.Name(), err)
		}
	}
	total := ipv4.HeaderLen + payload.EncodedLen()
	if total > math.MaxUint16 {
		return fmt.Errorf("internet %s: datagram of %d bytes exceeds the IPv4 limit", i.Name(), total)
	}

	hw := addr.Broadcast
	if dst != LimitedBroadcast {
		if hw, err = i.resolver.Resolve(ctx, dst); err != nil {
			return err
		}
	}

	d := &ipv4.Datagram{
		Header: ipv4.Header{
			VersionIHL: ipv4.DefaultVersionIHL,
			Length:     uint16(total),
			ID:         i.nextID,
			TTL:        ipv4.DefaultTTL,
			Protocol:   proto,
			Src:        i.ip,
			Dst:        dst,
		},
		Payload: payload,
	}
	i.nextID++
	return i.link.Send(hw, ethernet.IPv4(d))
}

// Close closes the link.
func (i *Interface) Close() error {
	return i.link.Close()
}

// deferFrame runs for frames read during a resolution.
func (i *Interface) deferFrame(f *ethernet.Frame) {
	d, ok := ethernet.AsIPv4(f.Payload)
	if !ok {
		i.handleOther(f)
		return
	}
	if len(i.backlog) >= i.backlogLimit {
		i.backlog[0] = nil
		i.backlog = i.backlog[1:]
		metrics.FramesDroppedTotal.WithLabelValues(i.Name(), metrics.LayerInternet).Inc()
	}
	i.backlog = append(i.backlog, d)
}

func (i *Interface) handleOther(f *ethernet.Frame) {
	m, ok := ethernet.AsARP(f.Payload)
	if !ok {
		metrics.FramesDroppedTotal.WithLabelValues(i.Name(), metrics.LayerInternet).Inc()
		return
	}

	switch {
	case m.Opcode == arp.OpcodeRequest && m.TargetProtocolAddr == i.ip && i.answerARP:
		i.answerRequest(m)
	case m.Opcode == arp.OpcodeReply && i.learnUnsolicited:
		i.resolver.Cache().Set(m.SenderProtocolAddr, m.SenderHardwareAddr)
	default:
		metrics.FramesDroppedTotal.WithLabelValues(i.Name(), metrics.LayerInternet).Inc()
	}
}

func (i *Interface) answerRequest(req *arp.Message) {
	reply := arp.ReplyTo(req, i.link.HardwareAddr(), i.ip)
	if err := i.link.Send(req.SenderHardwareAddr, ethernet.ARP(reply)); err != nil {
		slog.Warn("arp reply failed", "interface", i.Name(), "to", req.SenderProtocolAddr, "error", err)
		return
	}
	metrics.ARPRepliesSentTotal.WithLabelValues(i.Name()).Inc()
	slog.Debug("arp request answered", "interface", i.Name(), "from", req.SenderProtocolAddr, "hardware", req.SenderHardwareAddr)
}
