// Package iana holds the assigned-number registries shared between protocol packages.
//
// Every numeric value is representable: values without a name are carried as-is
// and re-encode unchanged, so decoding never fails on a tag.
package iana

import "fmt"

// EtherType identifies the payload of an Ethernet frame (and the protocol type of an ARP message).
// https://www.iana.org/assignments/ieee-802-numbers/ieee-802-numbers.xhtml
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

// Known reports whether the stack decodes payloads of this type.
func (t EtherType) Known() bool {
	return t == EtherTypeIPv4 || t == EtherTypeARP
}

func (t EtherType) String() string {
	switch t {
	case EtherTypeIPv4:
		return "IPv4(0x0800)"
	case EtherTypeARP:
		return "ARP(0x0806)"
	default:
		return fmt.Sprintf("UNKNOWN(0x%04x)", uint16(t))
	}
}

// IPProtocol is the IPv4 protocol number.
// https://www.iana.org/assignments/protocol-numbers/protocol-numbers.xhtml
type IPProtocol uint8

const (
	IPProtocolICMP IPProtocol = 1
	IPProtocolTCP  IPProtocol = 6
	IPProtocolUDP  IPProtocol = 17
)

func (p IPProtocol) String() string {
	switch p {
	case IPProtocolICMP:
		return "ICMP(1)"
	case IPProtocolTCP:
		return "TCP(6)"
	case IPProtocolUDP:
		return "UDP(17)"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(p))
	}
}
