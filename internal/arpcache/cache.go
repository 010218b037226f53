// Package arpcache holds the IPv4 to hardware address table and the resolver
// that fills it.
package arpcache

import (
	"slices"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/tendium/internal/metrics"
	"firestige.xyz/tendium/internal/protocol/addr"
)

// Entry is one neighbor mapping.
type Entry struct {
	IP           addr.IPv4Addr     `json:"ip" yaml:"ip"`
	HardwareAddr addr.HardwareAddr `json:"hardware_addr" yaml:"hardware_addr"`
}

// Cache maps IPv4 addresses to hardware addresses. Entries never expire.
// It is safe for concurrent use.
type Cache struct {
	name  string
	store *cache.Cache
}

// NewCache returns an empty cache. name labels its metrics.
func NewCache(name string) *Cache {
	return &Cache{
		name:  name,
		store: cache.New(cache.NoExpiration, 0),
	}
}

// Get returns the mapping for ip.
func (c *Cache) Get(ip addr.IPv4Addr) (addr.HardwareAddr, bool) {
	v, ok := c.store.Get(ip.String())
	if !ok {
		return addr.HardwareAddr{}, false
	}
	return v.(Entry).HardwareAddr, true
}

// Set inserts or replaces the mapping for ip.
func (c *Cache) Set(ip addr.IPv4Addr, hw addr.HardwareAddr) {
	c.store.Set(ip.String(), Entry{IP: ip, HardwareAddr: hw}, cache.NoExpiration)
	metrics.ARPCacheEntries.WithLabelValues(c.name).Set(float64(c.store.ItemCount()))
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Entries returns a snapshot ordered by address.
func (c *Cache) Entries() []Entry {
	items := c.store.Items()
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(Entry))
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return a.IP.Netip().Compare(b.IP.Netip())
	})
	return out
}
