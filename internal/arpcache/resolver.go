package arpcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/metrics"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/arp"
	"firestige.xyz/tendium/internal/protocol/ethernet"
)

const (
	DefaultRequestTimeout = time.Second
	DefaultMaxRetries     = 3
)

// errAttemptExpired ends one request attempt without failing the resolution.
var errAttemptExpired = errors.New("arp attempt expired")

// Link is the part of the link layer the resolver drives.
type Link interface {
	Name() string
	HardwareAddr() addr.HardwareAddr
	Recv(ctx context.Context) (*ethernet.Frame, error)
	Send(dst addr.HardwareAddr, payload ethernet.Payload) error
}

// DeferFunc receives frames read while waiting for a reply that are not
// ARP replies. It runs on the resolving goroutine.
type DeferFunc func(f *ethernet.Frame)

// Resolver resolves IPv4 addresses on one link by broadcasting ARP requests.
// It shares the link's receive path, so calls must not overlap with other
// readers of the same link.
type Resolver struct {
	link  Link
	ip    addr.IPv4Addr
	cache *Cache

	requestTimeout   time.Duration
	maxRetries       int
	learnUnsolicited bool
	deferred         DeferFunc
	static           map[addr.IPv4Addr]addr.HardwareAddr
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRequestTimeout sets how long each request waits for its reply.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.requestTimeout = d
		}
	}
}

// WithMaxRetries sets how many requests follow the first before giving up.
func WithMaxRetries(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithLearnUnsolicited caches replies for addresses nobody asked about.
func WithLearnUnsolicited(on bool) Option {
	return func(r *Resolver) { r.learnUnsolicited = on }
}

// WithDeferred hands unrelated frames to fn instead of dropping them.
func WithDeferred(fn DeferFunc) Option {
	return func(r *Resolver) { r.deferred = fn }
}

// WithCache uses c instead of a fresh cache.
func WithCache(c *Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithStaticEntries preloads fixed mappings.
func WithStaticEntries(entries map[addr.IPv4Addr]addr.HardwareAddr) Option {
	return func(r *Resolver) { r.static = entries }
}

// NewResolver creates a resolver answering for ip on l.
func NewResolver(l Link, ip addr.IPv4Addr, opts ...Option) *Resolver {
	r := &Resolver{
		link:           l,
		ip:             ip,
		requestTimeout: DefaultRequestTimeout,
		maxRetries:     DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewCache(l.Name())
	}
	for ip, hw := range r.static {
		r.cache.Set(ip, hw)
	}
	return r
}

// Cache returns the table the resolver fills.
func (r *Resolver) Cache() *Cache { return r.cache }

// Resolve returns the hardware address for ip. Cached entries return without
// I/O. Otherwise a request is broadcast up to 1+MaxRetries times, each waiting
// RequestTimeout for a reply whose sender protocol address is ip. After the
// last attempt core.ErrResolveTimeout is returned.
func (r *Resolver) Resolve(ctx context.Context, ip addr.IPv4Addr) (addr.HardwareAddr, error) {
	name := r.link.Name()
	if hw, ok := r.cache.Get(ip); ok {
		metrics.ARPResolveTotal.WithLabelValues(name, metrics.ResultCached).Inc()
		return hw, nil
	}

	start := time.Now()
	attempts := 1 + r.maxRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		req := arp.NewRequest(r.link.HardwareAddr(), r.ip, ip)
		if err := r.link.Send(addr.Broadcast, ethernet.ARP(req)); err != nil {
			metrics.ARPResolveTotal.WithLabelValues(name, metrics.ResultError).Inc()
			return addr.HardwareAddr{}, fmt.Errorf("resolve %s: send request: %w", ip, err)
		}
		metrics.ARPRequestsSentTotal.WithLabelValues(name).Inc()
		slog.Debug("arp request sent", "interface", name, "ip", ip, "attempt", attempt)

		hw, err := r.await(ctx, ip)
		switch {
		case err == nil:
			r.cache.Set(ip, hw)
			metrics.ARPResolveTotal.WithLabelValues(name, metrics.ResultResolved).Inc()
			metrics.ARPResolveSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
			slog.Debug("arp resolved", "interface", name, "ip", ip, "hardware", hw, "attempt", attempt)
			return hw, nil
		case errors.Is(err, errAttemptExpired):
			continue
		case ctx.Err() != nil:
			metrics.ARPResolveTotal.WithLabelValues(name, metrics.ResultCanceled).Inc()
			return addr.HardwareAddr{}, err
		default:
			metrics.ARPResolveTotal.WithLabelValues(name, metrics.ResultError).Inc()
			return addr.HardwareAddr{}, fmt.Errorf("resolve %s: %w", ip, err)
		}
	}

	metrics.ARPResolveTotal.WithLabelValues(name, metrics.ResultTimeout).Inc()
	slog.Warn("arp resolution timed out", "interface", name, "ip", ip, "attempts", attempts)
	return addr.HardwareAddr{}, fmt.Errorf("resolve %s after %d attempts: %w", ip, attempts, core.ErrResolveTimeout)
}

// await reads frames until a reply for ip arrives or the attempt expires.
func (r *Resolver) await(ctx context.Context, ip addr.IPv4Addr) (addr.HardwareAddr, error) {
	actx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	for {
		f, err := r.link.Recv(actx)
		if err != nil {
			if ctx.Err() != nil {
				return addr.HardwareAddr{}, ctx.Err()
			}
			if actx.Err() != nil {
				return addr.HardwareAddr{}, errAttemptExpired
			}
			if errors.Is(err, core.ErrTruncated) {
				continue
			}
			return addr.HardwareAddr{}, err
		}

		m, ok := ethernet.AsARP(f.Payload)
		if !ok || m.Opcode != arp.OpcodeReply {
			r.handOff(f)
			continue
		}
		if m.Resolves(ip) {
			return m.SenderHardwareAddr, nil
		}
		if r.learnUnsolicited {
			r.cache.Set(m.SenderProtocolAddr, m.SenderHardwareAddr)
			slog.Debug("arp learned unsolicited reply", "interface", r.link.Name(), "ip", m.SenderProtocolAddr, "hardware", m.SenderHardwareAddr)
			continue
		}
		metrics.FramesDroppedTotal.WithLabelValues(r.link.Name(), metrics.LayerARP).Inc()
	}
}

func (r *Resolver) handOff(f *ethernet.Frame) {
	if r.deferred != nil {
		r.deferred(f)
		return
	}
	metrics.FramesDroppedTotal.WithLabelValues(r.link.Name(), metrics.LayerARP).Inc()
}
