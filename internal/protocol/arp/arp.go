// Package arp implements the ARP message codec (RFC 826) for IPv4 over Ethernet.
package arp

import (
	"fmt"
	"io"

	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/iana"
	"firestige.xyz/tendium/internal/protocol/wire"
)

// Len is the encoded size of an IPv4-over-Ethernet ARP message.
const Len = 28

// https://www.iana.org/assignments/arp-parameters/arp-parameters.xhtml

// HardwareType is the ARP hrd field.
type HardwareType uint16

const HardwareTypeEthernet HardwareType = 1

func (h HardwareType) String() string {
	if h == HardwareTypeEthernet {
		return "Ethernet(0x1)"
	}
	return fmt.Sprintf("Unknown(0x%x)", uint16(h))
}

// Opcode is the ARP op field.
type Opcode uint16

const (
	OpcodeRequest Opcode = 1
	OpcodeReply   Opcode = 2
)

func (o Opcode) String() string {
	switch o {
	case OpcodeRequest:
		return "Request(0x1)"
	case OpcodeReply:
		return "Reply(0x2)"
	default:
		return fmt.Sprintf("Unknown(0x%x)", uint16(o))
	}
}

// Message is one ARP packet. HardwareLen and ProtocolLen are carried as
// received; addresses are always read at 6 and 4 bytes.
type Message struct {
	HardwareType       HardwareType
	ProtocolType       iana.EtherType
	HardwareLen        uint8
	ProtocolLen        uint8
	Opcode             Opcode
	SenderHardwareAddr addr.HardwareAddr
	SenderProtocolAddr addr.IPv4Addr
	TargetHardwareAddr addr.HardwareAddr
	TargetProtocolAddr addr.IPv4Addr
}

// New builds an IPv4-over-Ethernet message with the standard type and length fields.
func New(op Opcode, senderHW addr.HardwareAddr, senderIP addr.IPv4Addr, targetHW addr.HardwareAddr, targetIP addr.IPv4Addr) *Message {
	return &Message{
		HardwareType:       HardwareTypeEthernet,
		ProtocolType:       iana.EtherTypeIPv4,
		HardwareLen:        6,
		ProtocolLen:        4,
		Opcode:             op,
		SenderHardwareAddr: senderHW,
		SenderProtocolAddr: senderIP,
		TargetHardwareAddr: targetHW,
		TargetProtocolAddr: targetIP,
	}
}

// NewRequest builds a broadcast who-has request for target.
func NewRequest(senderHW addr.HardwareAddr, senderIP addr.IPv4Addr, target addr.IPv4Addr) *Message {
	return New(OpcodeRequest, senderHW, senderIP, addr.Broadcast, target)
}

// ReplyTo builds the reply a host owning (hw, ip) sends for req.
func ReplyTo(req *Message, hw addr.HardwareAddr, ip addr.IPv4Addr) *Message {
	return New(OpcodeReply, hw, ip, req.SenderHardwareAddr, req.SenderProtocolAddr)
}

// Decode reads one message from r.
func Decode(r *wire.Reader) (*Message, error) {
	m := &Message{}
	hrd, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("arp hardware type: %w", err)
	}
	pro, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("arp protocol type: %w", err)
	}
	if m.HardwareLen, err = r.Uint8(); err != nil {
		return nil, fmt.Errorf("arp hardware length: %w", err)
	}
	if m.ProtocolLen, err = r.Uint8(); err != nil {
		return nil, fmt.Errorf("arp protocol length: %w", err)
	}
	op, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("arp opcode: %w", err)
	}
	m.HardwareType = HardwareType(hrd)
	m.ProtocolType = iana.EtherType(pro)
	m.Opcode = Opcode(op)

	if err := r.ReadFull(m.SenderHardwareAddr[:]); err != nil {
		return nil, fmt.Errorf("arp sender hardware address: %w", err)
	}
	if err := r.ReadFull(m.SenderProtocolAddr[:]); err != nil {
		return nil, fmt.Errorf("arp sender protocol address: %w", err)
	}
	if err := r.ReadFull(m.TargetHardwareAddr[:]); err != nil {
		return nil, fmt.Errorf("arp target hardware address: %w", err)
	}
	if err := r.ReadFull(m.TargetProtocolAddr[:]); err != nil {
		return nil, fmt.Errorf("arp target protocol address: %w", err)
	}
	return m, nil
}

// Unmarshal decodes a message from the start of b.
func Unmarshal(b []byte) (*Message, error) {
	return Decode(wire.NewReader(b))
}

// WriteTo implements io.WriterTo.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	var buf wire.Writer
	m.encode(&buf)
	return buf.Flush(w)
}

// EncodedLen returns the number of bytes WriteTo produces.
func (m *Message) EncodedLen() int {
	return Len
}

func (m *Message) encode(buf *wire.Writer) {
	buf.Uint16(uint16(m.HardwareType))
	buf.Uint16(uint16(m.ProtocolType))
	buf.Uint8(m.HardwareLen)
	buf.Uint8(m.ProtocolLen)
	buf.Uint16(uint16(m.Opcode))
	buf.Bytes(m.SenderHardwareAddr[:])
	buf.Bytes(m.SenderProtocolAddr[:])
	buf.Bytes(m.TargetHardwareAddr[:])
	buf.Bytes(m.TargetProtocolAddr[:])
}

// Resolves reports whether m answers a query for ip.
func (m *Message) Resolves(ip addr.IPv4Addr) bool {
	return m.Opcode == OpcodeReply && m.SenderProtocolAddr == ip
}

func (m *Message) String() string {
	return fmt.Sprintf("ARP %s %s(%s) -> %s(%s)", m.Opcode,
		m.SenderHardwareAddr, m.SenderProtocolAddr, m.TargetHardwareAddr, m.TargetProtocolAddr)
}
