package internet

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tendium/internal/arpcache"
	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/device"
	"firestige.xyz/tendium/internal/link"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/arp"
	"firestige.xyz/tendium/internal/protocol/ethernet"
	"firestige.xyz/tendium/internal/protocol/iana"
	"firestige.xyz/tendium/internal/protocol/icmp"
	"firestige.xyz/tendium/internal/protocol/ipv4"
)

var (
	localHW = addr.MustParseHardwareAddr("44:c4:c3:f1:15:5b")
	localIP = addr.MustParseIPv4Addr("10.0.0.4")
	peerHW  = addr.MustParseHardwareAddr("aa:bb:cc:dd:ee:ff")
	peerIP  = addr.MustParseIPv4Addr("10.0.0.1")
)

// peer is the far end of the pipe, speaking raw frames.
type peer struct {
	t   *testing.T
	dev *device.Pipe
}

func (p *peer) send(f *ethernet.Frame) {
	p.t.Helper()
	b, err := f.Marshal()
	require.NoError(p.t, err)
	require.NoError(p.t, p.dev.WritePacket(b))
}

func (p *peer) recv() *ethernet.Frame {
	p.t.Helper()
	require.NoError(p.t, p.dev.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 2048)
	n, err := p.dev.ReadPacket(buf)
	require.NoError(p.t, err)
	f, err := ethernet.Unmarshal(buf[:n])
	require.NoError(p.t, err)
	return f
}

// silent reports whether nothing arrives within d.
func (p *peer) silent(d time.Duration) bool {
	require.NoError(p.t, p.dev.SetReadDeadline(time.Now().Add(d)))
	_, err := p.dev.ReadPacket(make([]byte, 2048))
	return errors.Is(err, os.ErrDeadlineExceeded)
}

func setup(t *testing.T, opts ...Option) (*Interface, *peer) {
	t.Helper()
	local, remote := device.NewPipe("tap0", localHW, "peer0", peerHW)
	l, err := link.New(local)
	require.NoError(t, err)
	i, err := New(l, localIP, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		i.Close()
		remote.Close()
	})
	return i, &peer{t: t, dev: remote}
}

func datagramFrame(src, dst addr.IPv4Addr, proto iana.IPProtocol, payload ipv4.Payload) *ethernet.Frame {
	return &ethernet.Frame{
		Header: ethernet.Header{Dst: localHW, Src: peerHW, Type: iana.EtherTypeIPv4},
		Payload: ethernet.IPv4(&ipv4.Datagram{
			Header: ipv4.Header{
				VersionIHL: ipv4.DefaultVersionIHL,
				Length:     uint16(ipv4.HeaderLen + payload.EncodedLen()),
				TTL:        ipv4.DefaultTTL,
				Protocol:   proto,
				Src:        src,
				Dst:        dst,
			},
			Payload: payload,
		}),
	}
}

func arpRequestFrame(target addr.IPv4Addr) *ethernet.Frame {
	return &ethernet.Frame{
		Header:  ethernet.Header{Dst: addr.Broadcast, Src: peerHW, Type: iana.EtherTypeARP},
		Payload: ethernet.ARP(arp.NewRequest(peerHW, peerIP, target)),
	}
}

func arpReplyFrame(hw addr.HardwareAddr, ip addr.IPv4Addr) *ethernet.Frame {
	return &ethernet.Frame{
		Header:  ethernet.Header{Dst: localHW, Src: hw, Type: iana.EtherTypeARP},
		Payload: ethernet.ARP(arp.New(arp.OpcodeReply, hw, ip, localHW, localIP)),
	}
}

func TestNewRequiresAddress(t *testing.T) {
	local, _ := device.NewPipe("tap0", localHW, "peer0", peerHW)
	l, err := link.New(local)
	require.NoError(t, err)
	_, err = New(l, addr.IPv4Addr{})
	assert.Error(t, err)
}

func TestRecvSkipsARP(t *testing.T) {
	i, p := setup(t)

	p.send(arpRequestFrame(addr.MustParseIPv4Addr("10.0.0.200")))
	want := datagramFrame(peerIP, localIP, iana.IPProtocolUDP, ipv4.Raw{0, 53, 0, 53})
	p.send(want)

	got, err := i.Recv(context.Background())
	require.NoError(t, err)
	d, _ := ethernet.AsIPv4(want.Payload)
	assert.Equal(t, d, got)
}

func TestRecvDropsUnknownEtherType(t *testing.T) {
	i, p := setup(t)
	p.send(&ethernet.Frame{
		Header:  ethernet.Header{Dst: localHW, Src: peerHW, Type: 0x86dd},
		Payload: ethernet.Raw{0x60, 0, 0, 0},
	})
	echo := &icmp.Message{Type: icmp.TypeEcho, Echo: &icmp.Echo{ID: 1, Sequence: 1}}
	p.send(datagramFrame(peerIP, localIP, iana.IPProtocolICMP, ipv4.ICMP(echo)))

	got, err := i.Recv(context.Background())
	require.NoError(t, err)
	m, ok := ipv4.AsICMP(got.Payload)
	require.True(t, ok)
	assert.Equal(t, echo, m)
}

func TestRecvAnswersARP(t *testing.T) {
	i, p := setup(t, WithAnswerARP(true))

	p.send(arpRequestFrame(localIP))
	p.send(datagramFrame(peerIP, localIP, iana.IPProtocolTCP, ipv4.Raw{1}))

	_, err := i.Recv(context.Background())
	require.NoError(t, err)

	reply := p.recv()
	assert.Equal(t, peerHW, reply.Header.Dst)
	assert.Equal(t, localHW, reply.Header.Src)
	m, ok := ethernet.AsARP(reply.Payload)
	require.True(t, ok)
	assert.Equal(t, arp.OpcodeReply, m.Opcode)
	assert.Equal(t, localHW, m.SenderHardwareAddr)
	assert.Equal(t, localIP, m.SenderProtocolAddr)
	assert.Equal(t, peerHW, m.TargetHardwareAddr)
	assert.Equal(t, peerIP, m.TargetProtocolAddr)
}

func TestRecvIgnoresARPWhenDisabled(t *testing.T) {
	i, p := setup(t)
	p.send(arpRequestFrame(localIP))
	p.send(datagramFrame(peerIP, localIP, iana.IPProtocolTCP, ipv4.Raw{1}))

	_, err := i.Recv(context.Background())
	require.NoError(t, err)
	assert.True(t, p.silent(30*time.Millisecond))
}

func TestRecvContext(t *testing.T) {
	i, _ := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := i.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendResolvesThenSends(t *testing.T) {
	i, p := setup(t)

	done := make(chan error, 1)
	echo := &icmp.Message{Type: icmp.TypeEchoReply, Echo: &icmp.Echo{ID: 7, Sequence: 2}, Data: []byte("pong")}
	go func() {
		done <- i.Send(context.Background(), peerIP, ipv4.ICMP(echo))
	}()

	req := p.recv()
	assert.Equal(t, addr.Broadcast, req.Header.Dst)
	m, ok := ethernet.AsARP(req.Payload)
	require.True(t, ok)
	assert.Equal(t, arp.NewRequest(localHW, localIP, peerIP), m)

	p.send(arpReplyFrame(peerHW, peerIP))

	f := p.recv()
	require.NoError(t, <-done)
	assert.Equal(t, peerHW, f.Header.Dst)
	assert.Equal(t, iana.EtherTypeIPv4, f.Header.Type)
	d, ok := ethernet.AsIPv4(f.Payload)
	require.True(t, ok)
	assert.Equal(t, ipv4.Header{
		VersionIHL: 0x45,
		Length:     uint16(ipv4.HeaderLen + echo.EncodedLen()),
		TTL:        64,
		Protocol:   iana.IPProtocolICMP,
		Src:        localIP,
		Dst:        peerIP,
	}, d.Header)
	got, ok := ipv4.AsICMP(d.Payload)
	require.True(t, ok)
	assert.Equal(t, echo, got)

	// the neighbor is cached, the next send goes straight out
	require.NoError(t, i.Send(context.Background(), peerIP, ipv4.ICMP(echo)))
	f = p.recv()
	assert.Equal(t, iana.EtherTypeIPv4, f.Header.Type)
	d, _ = ethernet.AsIPv4(f.Payload)
	assert.Equal(t, uint16(1), d.Header.ID)
	assert.Equal(t, []arpcache.Entry{{IP: peerIP, HardwareAddr: peerHW}}, i.Neighbors())
}

func TestSendQueuesDatagramsDuringResolution(t *testing.T) {
	i, p := setup(t, WithAnswerARP(true))

	done := make(chan error, 1)
	go func() {
		done <- i.Send(context.Background(), peerIP, ipv4.ICMP(&icmp.Message{Type: icmp.TypeEcho, Echo: &icmp.Echo{}}))
	}()
	p.recv() // the request

	early := datagramFrame(peerIP, localIP, iana.IPProtocolUDP, ipv4.Raw{1, 1})
	p.send(early)
	p.send(arpRequestFrame(localIP))
	p.send(arpReplyFrame(peerHW, peerIP))

	reply := p.recv()
	m, ok := ethernet.AsARP(reply.Payload)
	require.True(t, ok)
	assert.Equal(t, arp.OpcodeReply, m.Opcode)

	p.recv() // the datagram
	require.NoError(t, <-done)

	got, err := i.Recv(context.Background())
	require.NoError(t, err)
	d, _ := ethernet.AsIPv4(early.Payload)
	assert.Equal(t, d, got)
}

func TestBacklogLimit(t *testing.T) {
	i, _ := setup(t, WithBacklogLimit(2))
	for n := byte(1); n <= 3; n++ {
		i.deferFrame(datagramFrame(peerIP, localIP, iana.IPProtocolUDP, ipv4.Raw{n}))
	}
	require.Len(t, i.backlog, 2)
	for _, want := range []byte{2, 3} {
		d, err := i.Recv(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ipv4.Raw{want}, d.Payload)
	}
}

func TestSendRawRejected(t *testing.T) {
	i, p := setup(t)
	err := i.Send(context.Background(), peerIP, ipv4.Raw{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrNoProtocol)
	assert.True(t, p.silent(20*time.Millisecond))
}

func TestSendMalformedICMPRejected(t *testing.T) {
	i, p := setup(t)
	for _, m := range []*icmp.Message{
		{Type: icmp.TypeEcho},
		{Type: icmp.TypeTimeExceeded, Echo: &icmp.Echo{ID: 1}},
	} {
		err := i.Send(context.Background(), peerIP, ipv4.ICMP(m))
		assert.ErrorIs(t, err, core.ErrEchoMismatch)
	}
	assert.True(t, p.silent(20*time.Millisecond))
}

func TestSendTimeout(t *testing.T) {
	i, _ := setup(t, WithRequestTimeout(10*time.Millisecond), WithMaxRetries(1))
	err := i.Send(context.Background(), peerIP, ipv4.ICMP(&icmp.Message{Type: icmp.TypeEcho, Echo: &icmp.Echo{}}))
	assert.ErrorIs(t, err, core.ErrResolveTimeout)
}

func TestSendBroadcastSkipsResolution(t *testing.T) {
	i, p := setup(t)
	require.NoError(t, i.Send(context.Background(), LimitedBroadcast, ipv4.ICMP(&icmp.Message{Type: icmp.TypeEcho, Echo: &icmp.Echo{}})))
	f := p.recv()
	assert.Equal(t, addr.Broadcast, f.Header.Dst)
	assert.Equal(t, iana.EtherTypeIPv4, f.Header.Type)
}

func TestStaticNeighbors(t *testing.T) {
	i, p := setup(t, WithStaticEntries(map[addr.IPv4Addr]addr.HardwareAddr{peerIP: peerHW}))
	hw, err := i.Resolve(context.Background(), peerIP)
	require.NoError(t, err)
	assert.Equal(t, peerHW, hw)
	assert.True(t, p.silent(20*time.Millisecond))
	assert.Equal(t, localIP, i.IPAddr())
	assert.Equal(t, localHW, i.HardwareAddr())
	assert.Equal(t, "tap0", i.Name())
}
