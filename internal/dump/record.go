package dump

import (
	"encoding/hex"
	"time"

	"firestige.xyz/tendium/internal/protocol/ethernet"
	"firestige.xyz/tendium/internal/protocol/ipv4"
)

// Record is the structured form of one frame for the json and yaml formats.
// Enumerated fields carry their display names. Undecoded bytes are hex.
type Record struct {
	Interface string          `json:"interface" yaml:"interface"`
	Time      time.Time       `json:"time" yaml:"time"`
	Length    int             `json:"length" yaml:"length"`
	Ethernet  *EthernetRecord `json:"ethernet,omitempty" yaml:"ethernet,omitempty"`
	ARP       *ARPRecord      `json:"arp,omitempty" yaml:"arp,omitempty"`
	IPv4      *IPv4Record     `json:"ipv4,omitempty" yaml:"ipv4,omitempty"`
	ICMP      *ICMPRecord     `json:"icmp,omitempty" yaml:"icmp,omitempty"`
	Payload   string          `json:"payload,omitempty" yaml:"payload,omitempty"`
}

type EthernetRecord struct {
	Dst  string `json:"dst" yaml:"dst"`
	Src  string `json:"src" yaml:"src"`
	Type string `json:"type" yaml:"type"`
}

type ARPRecord struct {
	HardwareType       string `json:"hardware_type" yaml:"hardware_type"`
	ProtocolType       string `json:"protocol_type" yaml:"protocol_type"`
	HardwareLen        uint8  `json:"hardware_len" yaml:"hardware_len"`
	ProtocolLen        uint8  `json:"protocol_len" yaml:"protocol_len"`
	Opcode             string `json:"opcode" yaml:"opcode"`
	SenderHardwareAddr string `json:"sender_hardware_addr" yaml:"sender_hardware_addr"`
	SenderProtocolAddr string `json:"sender_protocol_addr" yaml:"sender_protocol_addr"`
	TargetHardwareAddr string `json:"target_hardware_addr" yaml:"target_hardware_addr"`
	TargetProtocolAddr string `json:"target_protocol_addr" yaml:"target_protocol_addr"`
}

type IPv4Record struct {
	Version  uint8  `json:"version" yaml:"version"`
	IHL      uint8  `json:"ihl" yaml:"ihl"`
	TOS      uint8  `json:"tos" yaml:"tos"`
	Length   uint16 `json:"length" yaml:"length"`
	ID       uint16 `json:"id" yaml:"id"`
	Flags    uint16 `json:"flags" yaml:"flags"`
	Offset   uint16 `json:"offset" yaml:"offset"`
	TTL      uint8  `json:"ttl" yaml:"ttl"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Checksum uint16 `json:"checksum" yaml:"checksum"`
	Src      string `json:"src" yaml:"src"`
	Dst      string `json:"dst" yaml:"dst"`
}

type ICMPRecord struct {
	Type     string  `json:"type" yaml:"type"`
	Code     uint8   `json:"code" yaml:"code"`
	Checksum uint16  `json:"checksum" yaml:"checksum"`
	ID       *uint16 `json:"id,omitempty" yaml:"id,omitempty"`
	Sequence *uint16 `json:"sequence,omitempty" yaml:"sequence,omitempty"`
}

// NewRecord flattens f. length is the on-wire size.
func NewRecord(iface string, at time.Time, length int, f *ethernet.Frame) Record {
	rec := Record{
		Interface: iface,
		Time:      at,
		Length:    length,
		Ethernet: &EthernetRecord{
			Dst:  f.Header.Dst.String(),
			Src:  f.Header.Src.String(),
			Type: f.Header.Type.String(),
		},
	}

	if m, ok := ethernet.AsARP(f.Payload); ok {
		rec.ARP = &ARPRecord{
			HardwareType:       m.HardwareType.String(),
			ProtocolType:       m.ProtocolType.String(),
			HardwareLen:        m.HardwareLen,
			ProtocolLen:        m.ProtocolLen,
			Opcode:             m.Opcode.String(),
			SenderHardwareAddr: m.SenderHardwareAddr.String(),
			SenderProtocolAddr: m.SenderProtocolAddr.String(),
			TargetHardwareAddr: m.TargetHardwareAddr.String(),
			TargetProtocolAddr: m.TargetProtocolAddr.String(),
		}
	} else if d, ok := ethernet.AsIPv4(f.Payload); ok {
		fillIPv4(&rec, d)
	} else if raw, ok := f.Payload.(ethernet.Raw); ok {
		rec.Payload = hex.EncodeToString(raw)
	}
	return rec
}

// NewDatagramRecord flattens a datagram delivered by the internet layer.
func NewDatagramRecord(iface string, at time.Time, d *ipv4.Datagram) Record {
	rec := Record{Interface: iface, Time: at, Length: int(d.Header.Length)}
	fillIPv4(&rec, d)
	return rec
}

// NewRawRecord carries undecoded bytes only.
func NewRawRecord(iface string, at time.Time, b []byte) Record {
	return Record{
		Interface: iface,
		Time:      at,
		Length:    len(b),
		Payload:   hex.EncodeToString(b),
	}
}

func fillIPv4(rec *Record, d *ipv4.Datagram) {
	h := &d.Header
	rec.IPv4 = &IPv4Record{
		Version:  h.Version(),
		IHL:      h.IHL(),
		TOS:      h.TOS,
		Length:   h.Length,
		ID:       h.ID,
		Flags:    h.Flags(),
		Offset:   h.Offset(),
		TTL:      h.TTL,
		Protocol: h.Protocol.String(),
		Checksum: h.Checksum,
		Src:      h.Src.String(),
		Dst:      h.Dst.String(),
	}

	if m, ok := ipv4.AsICMP(d.Payload); ok {
		rec.ICMP = &ICMPRecord{
			Type:     m.Type.String(),
			Code:     m.Code,
			Checksum: m.Checksum,
		}
		if m.Echo != nil {
			id, seq := m.Echo.ID, m.Echo.Sequence
			rec.ICMP.ID = &id
			rec.ICMP.Sequence = &seq
		}
		if len(m.Data) > 0 {
			rec.Payload = hex.EncodeToString(m.Data)
		}
		return
	}
	if raw, ok := d.Payload.(ipv4.Raw); ok {
		rec.Payload = hex.EncodeToString(raw)
	}
}
