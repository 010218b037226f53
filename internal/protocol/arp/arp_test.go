package arp

import (
	"bytes"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/iana"
	"firestige.xyz/tendium/internal/protocol/wire"
)

func marshal(t *testing.T, m *Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(Len), n)
	return buf.Bytes()
}

func TestRequestScenario(t *testing.T) {
	m := &Message{
		HardwareType:       HardwareTypeEthernet,
		ProtocolType:       iana.EtherTypeIPv4,
		HardwareLen:        6,
		ProtocolLen:        4,
		Opcode:             OpcodeRequest,
		SenderHardwareAddr: addr.MustParseHardwareAddr("44:c4:c3:f1:15:5b"),
		SenderProtocolAddr: addr.MustParseIPv4Addr("10.0.0.4"),
		TargetHardwareAddr: addr.MustParseHardwareAddr("ff:ff:ff:ff:ff:ff"),
		TargetProtocolAddr: addr.MustParseIPv4Addr("10.0.0.1"),
	}

	b := marshal(t, m)
	require.Len(t, b, 28)
	assert.Equal(t, []byte{
		0x00, 0x01, 0x08, 0x00, 0x06, 0x04, 0x00, 0x01,
		0x44, 0xc4, 0xc3, 0xf1, 0x15, 0x5b, 10, 0, 0, 4,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 10, 0, 0, 1,
	}, b)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, "Request(0x1)", got.Opcode.String())
	assert.Equal(t, "Ethernet(0x1)", got.HardwareType.String())
	assert.Equal(t, "IPv4(0x0800)", got.ProtocolType.String())

	assert.Equal(t, m, NewRequest(m.SenderHardwareAddr, m.SenderProtocolAddr, m.TargetProtocolAddr))
}

func TestRoundTripBoundaries(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{name: "all zero", msg: &Message{}},
		{name: "all ones", msg: &Message{
			HardwareType:       0xffff,
			ProtocolType:       0xffff,
			HardwareLen:        0xff,
			ProtocolLen:        0xff,
			Opcode:             0xffff,
			SenderHardwareAddr: addr.Broadcast,
			SenderProtocolAddr: addr.IPv4Addr{255, 255, 255, 255},
			TargetHardwareAddr: addr.Broadcast,
			TargetProtocolAddr: addr.IPv4Addr{255, 255, 255, 255},
		}},
		{name: "unknown tags", msg: &Message{
			HardwareType: 6,
			ProtocolType: 0x86dd,
			HardwareLen:  6,
			ProtocolLen:  16,
			Opcode:       0x1234,
		}},
		{name: "reply", msg: New(OpcodeReply,
			addr.MustParseHardwareAddr("02:00:00:00:00:01"), addr.MustParseIPv4Addr("192.168.0.1"),
			addr.MustParseHardwareAddr("02:00:00:00:00:02"), addr.MustParseIPv4Addr("192.168.0.2"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unmarshal(marshal(t, tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestUnknownTagsRender(t *testing.T) {
	assert.Equal(t, "Unknown(0x1234)", Opcode(0x1234).String())
	assert.Equal(t, "Reply(0x2)", OpcodeReply.String())
	assert.Equal(t, "Unknown(0x6)", HardwareType(6).String())
}

func TestDecodeTruncated(t *testing.T) {
	full := marshal(t, NewRequest(addr.HardwareAddr{1, 2, 3, 4, 5, 6}, addr.IPv4Addr{1, 1, 1, 1}, addr.IPv4Addr{2, 2, 2, 2}))

	for _, n := range []int{0, 1, 7, 8, 14, 27} {
		r := wire.NewReader(full[:n])
		_, err := Decode(r)
		assert.ErrorIs(t, err, core.ErrTruncated, "length %d", n)
		assert.LessOrEqual(t, r.Offset(), n)
	}
}

func TestDecodeConsumesExactly(t *testing.T) {
	b := append(marshal(t, &Message{Opcode: OpcodeReply}), 0xaa, 0xbb)
	r := wire.NewReader(b)
	_, err := Decode(r)
	require.NoError(t, err)
	assert.Equal(t, Len, r.Offset())
	assert.Equal(t, 2, r.Len())
}

func TestReplyTo(t *testing.T) {
	req := NewRequest(addr.HardwareAddr{1, 1, 1, 1, 1, 1}, addr.IPv4Addr{10, 0, 0, 1}, addr.IPv4Addr{10, 0, 0, 4})
	reply := ReplyTo(req, addr.HardwareAddr{4, 4, 4, 4, 4, 4}, addr.IPv4Addr{10, 0, 0, 4})

	assert.Equal(t, OpcodeReply, reply.Opcode)
	assert.Equal(t, req.SenderHardwareAddr, reply.TargetHardwareAddr)
	assert.Equal(t, req.SenderProtocolAddr, reply.TargetProtocolAddr)
	assert.True(t, reply.Resolves(addr.IPv4Addr{10, 0, 0, 4}))
	assert.False(t, reply.Resolves(addr.IPv4Addr{10, 0, 0, 5}))
	assert.False(t, req.Resolves(addr.IPv4Addr{10, 0, 0, 1}))
}

// Our encoding must be what gopacket reads, and gopacket's encoding what we read.
func TestGopacketCompatibility(t *testing.T) {
	m := NewRequest(addr.MustParseHardwareAddr("44:c4:c3:f1:15:5b"), addr.MustParseIPv4Addr("10.0.0.4"), addr.MustParseIPv4Addr("10.0.0.1"))

	var ref layers.ARP
	require.NoError(t, ref.DecodeFromBytes(marshal(t, m), gopacket.NilDecodeFeedback))
	assert.Equal(t, uint16(layers.ARPRequest), ref.Operation)
	assert.Equal(t, uint16(layers.EthernetTypeIPv4), uint16(ref.Protocol))
	assert.Equal(t, m.SenderHardwareAddr[:], ref.SourceHwAddress)
	assert.Equal(t, m.TargetProtocolAddr[:], ref.DstProtAddress)

	out := gopacket.NewSerializeBuffer()
	reply := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      m.SenderHardwareAddr[:],
		DstProtAddress:    m.SenderProtocolAddr[:],
	}
	require.NoError(t, gopacket.SerializeLayers(out, gopacket.SerializeOptions{}, reply))

	got, err := Unmarshal(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, OpcodeReply, got.Opcode)
	assert.Equal(t, addr.MustParseHardwareAddr("aa:bb:cc:dd:ee:ff"), got.SenderHardwareAddr)
	assert.True(t, got.Resolves(addr.MustParseIPv4Addr("10.0.0.1")))
}
