// Package ipv4 implements the IPv4 datagram codec.
//
// Options are not interpreted: every byte after the fixed 20-byte header is
// payload. Checksums are carried verbatim and never computed.
package ipv4

import (
	"bytes"
	"fmt"
	"io"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/iana"
	"firestige.xyz/tendium/internal/protocol/icmp"
	"firestige.xyz/tendium/internal/protocol/wire"
)

const (
	// HeaderLen is the size of the fixed header.
	HeaderLen = 20
	// DefaultVersionIHL is version 4 with a 5-word header.
	DefaultVersionIHL = 0x45
	// DefaultTTL is the hop limit of locally originated datagrams.
	DefaultTTL = 64
)

// Header is the fixed IPv4 header. Packed bit-fields are stored as on the wire
// and split by the accessor methods.
type Header struct {
	VersionIHL  uint8
	TOS         uint8
	Length      uint16
	ID          uint16
	FlagsOffset uint16
	TTL         uint8
	Protocol    iana.IPProtocol
	Checksum    uint16
	Src         addr.IPv4Addr
	Dst         addr.IPv4Addr
}

// Version returns the high nibble of VersionIHL.
func (h *Header) Version() uint8 {
	return (h.VersionIHL & 0xf0) >> 4
}

// IHL returns the header length in 32-bit words.
func (h *Header) IHL() uint8 {
	return h.VersionIHL & 0x0f
}

// Flags returns the three flag bits.
func (h *Header) Flags() uint16 {
	return (h.FlagsOffset & 0xe000) >> 13
}

// Offset returns the fragment offset in 8-byte units.
func (h *Header) Offset() uint16 {
	return h.FlagsOffset & 0x1fff
}

// DecodeHeader reads the fixed header from r.
func DecodeHeader(r *wire.Reader) (Header, error) {
	var h Header
	if r.Len() < HeaderLen {
		return h, fmt.Errorf("ipv4 header: need %d bytes, have %d: %w", HeaderLen, r.Len(), core.ErrTruncated)
	}
	// length checked above, the field reads cannot fail
	h.VersionIHL, _ = r.Uint8()
	h.TOS, _ = r.Uint8()
	h.Length, _ = r.Uint16()
	h.ID, _ = r.Uint16()
	h.FlagsOffset, _ = r.Uint16()
	h.TTL, _ = r.Uint8()
	proto, _ := r.Uint8()
	h.Protocol = iana.IPProtocol(proto)
	h.Checksum, _ = r.Uint16()
	_ = r.ReadFull(h.Src[:])
	_ = r.ReadFull(h.Dst[:])
	return h, nil
}

func (h *Header) encode(buf *wire.Writer) {
	buf.Uint8(h.VersionIHL)
	buf.Uint8(h.TOS)
	buf.Uint16(h.Length)
	buf.Uint16(h.ID)
	buf.Uint16(h.FlagsOffset)
	buf.Uint8(h.TTL)
	buf.Uint8(uint8(h.Protocol))
	buf.Uint16(h.Checksum)
	buf.Bytes(h.Src[:])
	buf.Bytes(h.Dst[:])
}

// WriteTo implements io.WriterTo.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var buf wire.Writer
	h.encode(&buf)
	return buf.Flush(w)
}

// Payload is the closed set of datagram payloads: *icmp.Message or Raw.
type Payload interface {
	io.WriterTo
	EncodedLen() int
	isPayload()
}

// Raw is a payload the stack does not decode (TCP, UDP, unknown protocols).
type Raw []byte

// WriteTo implements io.WriterTo.
func (r Raw) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r)
	return int64(n), err
}

// EncodedLen returns len(r).
func (r Raw) EncodedLen() int { return len(r) }

func (Raw) isPayload() {}

type icmpPayload struct{ *icmp.Message }

func (icmpPayload) isPayload() {}

// ICMP wraps an ICMP message as a datagram payload.
func ICMP(m *icmp.Message) Payload {
	return icmpPayload{m}
}

// AsICMP returns the ICMP message carried by p, if any.
func AsICMP(p Payload) (*icmp.Message, bool) {
	if ip, ok := p.(icmpPayload); ok {
		return ip.Message, true
	}
	return nil, false
}

// ProtocolOf returns the protocol number for p. Raw has none.
func ProtocolOf(p Payload) (iana.IPProtocol, error) {
	switch p.(type) {
	case icmpPayload:
		return iana.IPProtocolICMP, nil
	default:
		return 0, core.ErrNoProtocol
	}
}

// Datagram is a header plus its decoded payload. The payload arm always
// matches Header.Protocol for decoded datagrams.
type Datagram struct {
	Header  Header
	Payload Payload
}

// Decode reads a datagram from r, consuming the rest of the buffer.
func Decode(r *wire.Reader) (*Datagram, error) {
	h, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	d := &Datagram{Header: h}
	switch h.Protocol {
	case iana.IPProtocolICMP:
		m, err := icmp.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("ipv4 payload: %w", err)
		}
		d.Payload = ICMP(m)
	default:
		d.Payload = Raw(r.Rest())
	}
	return d, nil
}

// Unmarshal decodes a datagram from b.
func Unmarshal(b []byte) (*Datagram, error) {
	return Decode(wire.NewReader(b))
}

// WriteTo implements io.WriterTo.
func (d *Datagram) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Grow(d.EncodedLen())
	if _, err := d.Header.WriteTo(&buf); err != nil {
		return 0, err
	}
	if d.Payload != nil {
		if _, err := d.Payload.WriteTo(&buf); err != nil {
			return 0, err
		}
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// EncodedLen returns the number of bytes WriteTo produces.
func (d *Datagram) EncodedLen() int {
	if d.Payload == nil {
		return HeaderLen
	}
	return HeaderLen + d.Payload.EncodedLen()
}

// Marshal returns the encoded datagram.
func (d *Datagram) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Datagram) String() string {
	return fmt.Sprintf("IPv4 %s -> %s %s ttl=%d len=%d", d.Header.Src, d.Header.Dst, d.Header.Protocol, d.Header.TTL, d.Header.Length)
}
