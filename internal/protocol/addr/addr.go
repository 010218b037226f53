// Package addr defines the fixed-width link and internet addresses used by the stack.
package addr

import (
	"fmt"
	"net"
	"net/netip"
)

// HardwareAddr is a 6-byte Ethernet MAC address.
type HardwareAddr [6]byte

// IPv4Addr is a 4-byte IPv4 address. It is comparable and used as the ARP cache key.
type IPv4Addr [4]byte

// Broadcast is the all-ones hardware address.
var Broadcast = HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseHardwareAddr parses "44:c4:c3:f1:15:5b" (or any 48-bit form accepted by net.ParseMAC).
func ParseHardwareAddr(s string) (HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return HardwareAddr{}, err
	}
	return HardwareAddrFrom(mac)
}

// MustParseHardwareAddr is ParseHardwareAddr that panics on error. Intended for literals.
func MustParseHardwareAddr(s string) HardwareAddr {
	a, err := ParseHardwareAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// HardwareAddrFrom converts a net.HardwareAddr, rejecting anything that is not 6 bytes.
func HardwareAddrFrom(mac net.HardwareAddr) (HardwareAddr, error) {
	var a HardwareAddr
	if len(mac) != len(a) {
		return a, fmt.Errorf("hardware address %q is %d bytes, want %d", mac.String(), len(mac), len(a))
	}
	copy(a[:], mac)
	return a, nil
}

// IsBroadcast reports whether a is ff:ff:ff:ff:ff:ff.
func (a HardwareAddr) IsBroadcast() bool {
	return a == Broadcast
}

// IsZero reports whether a is the unset address.
func (a HardwareAddr) IsZero() bool {
	return a == HardwareAddr{}
}

func (a HardwareAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// MarshalText implements encoding.TextMarshaler.
func (a HardwareAddr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *HardwareAddr) UnmarshalText(text []byte) error {
	parsed, err := ParseHardwareAddr(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseIPv4Addr parses a dotted-quad IPv4 address.
func ParseIPv4Addr(s string) (IPv4Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return IPv4Addr{}, err
	}
	if !ip.Is4() {
		return IPv4Addr{}, fmt.Errorf("%q is not an IPv4 address", s)
	}
	return IPv4Addr(ip.As4()), nil
}

// MustParseIPv4Addr is ParseIPv4Addr that panics on error. Intended for literals.
func MustParseIPv4Addr(s string) IPv4Addr {
	a, err := ParseIPv4Addr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Netip converts a to the standard library value type.
func (a IPv4Addr) Netip() netip.Addr {
	return netip.AddrFrom4(a)
}

// IsZero reports whether a is 0.0.0.0.
func (a IPv4Addr) IsZero() bool {
	return a == IPv4Addr{}
}

func (a IPv4Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// MarshalText implements encoding.TextMarshaler.
func (a IPv4Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *IPv4Addr) UnmarshalText(text []byte) error {
	parsed, err := ParseIPv4Addr(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
