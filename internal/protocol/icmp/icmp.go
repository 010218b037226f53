// Package icmp implements the ICMPv4 message codec.
package icmp

import (
	"fmt"
	"io"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/wire"
)

// HeaderLen is the size of the type/code/checksum header.
const HeaderLen = 4

// Type is the ICMP type field.
// https://www.iana.org/assignments/icmp-parameters/icmp-parameters.xhtml
type Type uint8

const (
	TypeEchoReply              Type = 0
	TypeDestinationUnreachable Type = 3
	TypeEcho                   Type = 8
	TypeTimeExceeded           Type = 11
)

// HasEcho reports whether messages of this type carry an identifier and sequence number.
func (t Type) HasEcho() bool {
	return t == TypeEcho || t == TypeEchoReply
}

func (t Type) String() string {
	switch t {
	case TypeEchoReply:
		return "Echo Reply(0)"
	case TypeDestinationUnreachable:
		return "Destination Unreachable(3)"
	case TypeEcho:
		return "Echo(8)"
	case TypeTimeExceeded:
		return "Time Exceeded(11)"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Echo holds the echo request/reply fields.
type Echo struct {
	ID       uint16
	Sequence uint16
}

// Message is one ICMP message. Echo is set only for Echo and EchoReply.
// Data holds whatever follows the decoded fields, kept verbatim.
// The checksum is carried as received and never computed.
type Message struct {
	Type     Type
	Code     uint8
	Checksum uint16
	Echo     *Echo
	Data     []byte
}

// Decode reads one message from r, consuming the rest of the buffer as Data.
func Decode(r *wire.Reader) (*Message, error) {
	m := &Message{}
	typ, err := r.Uint8()
	if err != nil {
		return nil, fmt.Errorf("icmp type: %w", err)
	}
	m.Type = Type(typ)
	if m.Code, err = r.Uint8(); err != nil {
		return nil, fmt.Errorf("icmp code: %w", err)
	}
	if m.Checksum, err = r.Uint16(); err != nil {
		return nil, fmt.Errorf("icmp checksum: %w", err)
	}

	if m.Type.HasEcho() {
		echo := &Echo{}
		if echo.ID, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("icmp echo id: %w", err)
		}
		if echo.Sequence, err = r.Uint16(); err != nil {
			return nil, fmt.Errorf("icmp echo sequence: %w", err)
		}
		m.Echo = echo
	}

	if r.Len() > 0 {
		m.Data = r.Rest()
	}
	return m, nil
}

// Unmarshal decodes a message from b.
func Unmarshal(b []byte) (*Message, error) {
	return Decode(wire.NewReader(b))
}

// WriteTo implements io.WriterTo. Echo fields are written for Echo and
// EchoReply, which must carry them; other types must not.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	var buf wire.Writer
	buf.Uint8(uint8(m.Type))
	buf.Uint8(m.Code)
	buf.Uint16(m.Checksum)
	if m.Type.HasEcho() {
		buf.Uint16(m.Echo.ID)
		buf.Uint16(m.Echo.Sequence)
	}
	buf.Bytes(m.Data)
	return buf.Flush(w)
}

// EncodedLen returns the number of bytes WriteTo produces.
func (m *Message) EncodedLen() int {
	n := HeaderLen + len(m.Data)
	if m.Type.HasEcho() {
		n += 4
	}
	return n
}

// Validate reports core.ErrEchoMismatch when Echo is set for a type without
// echo fields, or missing for Echo and EchoReply.
func (m *Message) Validate() error {
	if m.Type.HasEcho() != (m.Echo != nil) {
		return fmt.Errorf("icmp %s with echo=%t: %w", m.Type, m.Echo != nil, core.ErrEchoMismatch)
	}
	return nil
}

func (m *Message) String() string {
	if m.Echo != nil {
		return fmt.Sprintf("ICMP %s code=%d id=%d seq=%d", m.Type, m.Code, m.Echo.ID, m.Echo.Sequence)
	}
	return fmt.Sprintf("ICMP %s code=%d", m.Type, m.Code)
}
