package dump

import (
	"encoding/hex"
	"fmt"
	"strings"

	"firestige.xyz/tendium/internal/protocol/arp"
	"firestige.xyz/tendium/internal/protocol/ethernet"
	"firestige.xyz/tendium/internal/protocol/icmp"
	"firestige.xyz/tendium/internal/protocol/ipv4"
)

// Text renders f as indented blocks, one per protocol layer.
func Text(f *ethernet.Frame) string {
	var b strings.Builder
	writeEthernet(&b, &f.Header)
	if m, ok := ethernet.AsARP(f.Payload); ok {
		writeARP(&b, m)
	} else if d, ok := ethernet.AsIPv4(f.Payload); ok {
		writeIPv4(&b, d)
	} else if raw, ok := f.Payload.(ethernet.Raw); ok {
		writeData(&b, "Payload", raw)
	}
	return b.String()
}

// DatagramText renders d without a link header.
func DatagramText(d *ipv4.Datagram) string {
	var b strings.Builder
	writeIPv4(&b, d)
	return b.String()
}

// Hex renders b in the canonical hexdump layout.
func Hex(b []byte) string {
	return hex.Dump(b)
}

func writeEthernet(b *strings.Builder, h *ethernet.Header) {
	fmt.Fprintf(b, "EthernetHeader:\n  dst: %s\n  src: %s\n  typ: %s\n", h.Dst, h.Src, h.Type)
}

func writeARP(b *strings.Builder, m *arp.Message) {
	fmt.Fprintf(b, "Arp:\n  hrd: %s\n  pro: %s\n  hln: %d\n  pln: %d\n  op: %s\n  sha: %s\n  spa: %s\n  tha: %s\n  tpa: %s\n",
		m.HardwareType, m.ProtocolType, m.HardwareLen, m.ProtocolLen, m.Opcode,
		m.SenderHardwareAddr, m.SenderProtocolAddr, m.TargetHardwareAddr, m.TargetProtocolAddr)
}

func writeIPv4(b *strings.Builder, d *ipv4.Datagram) {
	h := &d.Header
	fmt.Fprintf(b, "IPHeader:\n  ver: %d\n  ihl: %d\n  tos: 0x%x\n  len: %d\n  id:  %d\n  flg: 0b%03b\n  off: %d\n  ttl: %d\n  pro: %s\n  chs: 0x%04x\n  src: %s\n  dst: %s\n",
		h.Version(), h.IHL(), h.TOS, h.Length, h.ID, h.Flags(), h.Offset(), h.TTL, h.Protocol, h.Checksum, h.Src, h.Dst)

	if m, ok := ipv4.AsICMP(d.Payload); ok {
		writeICMP(b, m)
	} else if raw, ok := d.Payload.(ipv4.Raw); ok {
		writeData(b, "Data", raw)
	}
}

func writeICMP(b *strings.Builder, m *icmp.Message) {
	fmt.Fprintf(b, "IcmpMessage:\n  typ: %s\n  cod: %d\n  chs: %04x\n", m.Type, m.Code, m.Checksum)
	if m.Echo == nil {
		b.WriteString("IcmpData::None\n")
		return
	}
	fmt.Fprintf(b, "IcmpData::Echo:\n  id:  %d\n  seq: %d\n", m.Echo.ID, m.Echo.Sequence)
}

func writeData(b *strings.Builder, title string, data []byte) {
	fmt.Fprintf(b, "%s: %d bytes\n", title, len(data))
	if len(data) > 0 {
		b.WriteString(hex.Dump(data))
	}
}
