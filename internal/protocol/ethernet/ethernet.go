// Package ethernet implements the Ethernet II frame codec and payload dispatch.
package ethernet

import (
	"bytes"
	"fmt"
	"io"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/arp"
	"firestige.xyz/tendium/internal/protocol/iana"
	"firestige.xyz/tendium/internal/protocol/ipv4"
	"firestige.xyz/tendium/internal/protocol/wire"
)

// HeaderLen is the size of dst + src + ethertype.
const HeaderLen = 14

// Header is the Ethernet II header.
type Header struct {
	Dst  addr.HardwareAddr
	Src  addr.HardwareAddr
	Type iana.EtherType
}

// DecodeHeader reads the 14-byte header from r.
func DecodeHeader(r *wire.Reader) (Header, error) {
	var h Header
	if r.Len() < HeaderLen {
		return h, fmt.Errorf("ethernet header: need %d bytes, have %d: %w", HeaderLen, r.Len(), core.ErrTruncated)
	}
	_ = r.ReadFull(h.Dst[:])
	_ = r.ReadFull(h.Src[:])
	typ, _ := r.Uint16()
	h.Type = iana.EtherType(typ)
	return h, nil
}

// Payload is the closed set of frame payloads: ARP, IPv4 or Raw.
type Payload interface {
	io.WriterTo
	EncodedLen() int
	isPayload()
}

// Raw is an undecoded payload kept verbatim. It has no ethertype of its own,
// so it can be re-encoded inside a decoded frame but not sent on its own.
type Raw []byte

// WriteTo implements io.WriterTo.
func (r Raw) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r)
	return int64(n), err
}

// EncodedLen returns len(r).
func (r Raw) EncodedLen() int { return len(r) }

func (Raw) isPayload() {}

type arpPayload struct{ *arp.Message }

func (arpPayload) isPayload() {}

type ipv4Payload struct{ *ipv4.Datagram }

func (ipv4Payload) isPayload() {}

// ARP wraps an ARP message as a frame payload.
func ARP(m *arp.Message) Payload { return arpPayload{m} }

// IPv4 wraps a datagram as a frame payload.
func IPv4(d *ipv4.Datagram) Payload { return ipv4Payload{d} }

// AsARP returns the ARP message carried by p, if any.
func AsARP(p Payload) (*arp.Message, bool) {
	if a, ok := p.(arpPayload); ok {
		return a.Message, true
	}
	return nil, false
}

// AsIPv4 returns the datagram carried by p, if any.
func AsIPv4(p Payload) (*ipv4.Datagram, bool) {
	if d, ok := p.(ipv4Payload); ok {
		return d.Datagram, true
	}
	return nil, false
}

// TypeOf derives the ethertype for p. Raw payloads have none.
func TypeOf(p Payload) (iana.EtherType, error) {
	switch p.(type) {
	case arpPayload:
		return iana.EtherTypeARP, nil
	case ipv4Payload:
		return iana.EtherTypeIPv4, nil
	default:
		return 0, core.ErrNoEtherType
	}
}

// Frame is one decoded Ethernet frame. The payload arm always matches
// Header.Type for decoded frames.
type Frame struct {
	Header  Header
	Payload Payload
}

// Decode reads one frame from r. Known ethertypes are decoded, anything else
// is captured as Raw.
func Decode(r *wire.Reader) (*Frame, error) {
	h, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	f := &Frame{Header: h}
	switch h.Type {
	case iana.EtherTypeARP:
		m, err := arp.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("ethernet payload: %w", err)
		}
		f.Payload = ARP(m)
	case iana.EtherTypeIPv4:
		d, err := ipv4.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("ethernet payload: %w", err)
		}
		f.Payload = IPv4(d)
	default:
		f.Payload = Raw(r.Rest())
	}
	return f, nil
}

// Unmarshal decodes one frame from b.
func Unmarshal(b []byte) (*Frame, error) {
	return Decode(wire.NewReader(b))
}

// NewFrame builds a frame whose type is derived from payload.
func NewFrame(dst, src addr.HardwareAddr, payload Payload) (*Frame, error) {
	typ, err := TypeOf(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Header: Header{Dst: dst, Src: src, Type: typ}, Payload: payload}, nil
}

// WriteTo implements io.WriterTo. The header type is written as set, so a
// decoded Raw frame re-encodes unchanged.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// Marshal returns the encoded frame.
func (f *Frame) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(f.EncodedLen())
	buf.Write(f.Header.Dst[:])
	buf.Write(f.Header.Src[:])
	buf.WriteByte(byte(f.Header.Type >> 8))
	buf.WriteByte(byte(f.Header.Type))
	if f.Payload != nil {
		if _, err := f.Payload.WriteTo(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// EncodedLen returns the number of bytes Marshal produces.
func (f *Frame) EncodedLen() int {
	if f.Payload == nil {
		return HeaderLen
	}
	return HeaderLen + f.Payload.EncodedLen()
}

func (f *Frame) String() string {
	return fmt.Sprintf("Ethernet %s -> %s %s", f.Header.Src, f.Header.Dst, f.Header.Type)
}
