// Package dump renders received frames as text, yaml or json and hands them
// to a sink.
package dump

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/ethernet"
	"firestige.xyz/tendium/internal/protocol/ipv4"
	"firestige.xyz/tendium/internal/sink"
)

type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts text, yaml or json. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatText, nil
	case FormatText, FormatYAML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown dump format %q: %w", s, core.ErrConfigInvalid)
	}
}

// Printer renders frames of one interface into a sink.
type Printer struct {
	iface  string
	format Format
	sink   sink.Sink
	now    func() time.Time
}

func NewPrinter(iface string, format Format, s sink.Sink) *Printer {
	return &Printer{iface: iface, format: format, sink: s, now: time.Now}
}

// Banner announces the interface. Structured formats print nothing.
func (p *Printer) Banner(ctx context.Context, hw addr.HardwareAddr) error {
	if p.format != FormatText {
		return nil
	}
	return p.send(ctx, p.now(), fmt.Appendf(nil, "[%s] %s\n", p.iface, hw))
}

// Frame renders one decoded frame of length on-wire bytes.
func (p *Printer) Frame(ctx context.Context, length int, f *ethernet.Frame) error {
	at := p.now()
	if p.format == FormatText {
		var b bytes.Buffer
		p.writeBanner(&b, length)
		b.WriteString(Text(f))
		b.WriteByte('\n')
		return p.send(ctx, at, b.Bytes())
	}
	return p.sendRecord(ctx, at, NewRecord(p.iface, at, length, f))
}

// Datagram renders one IPv4 datagram. The banner carries its total length.
func (p *Printer) Datagram(ctx context.Context, d *ipv4.Datagram) error {
	at := p.now()
	if p.format == FormatText {
		var b bytes.Buffer
		p.writeBanner(&b, int(d.Header.Length))
		b.WriteString(DatagramText(d))
		b.WriteByte('\n')
		return p.send(ctx, at, b.Bytes())
	}
	return p.sendRecord(ctx, at, NewDatagramRecord(p.iface, at, d))
}

// Raw renders undecoded packet bytes.
func (p *Printer) Raw(ctx context.Context, pkt []byte) error {
	at := p.now()
	if p.format == FormatText {
		var b bytes.Buffer
		p.writeBanner(&b, len(pkt))
		b.WriteString(Hex(pkt))
		b.WriteByte('\n')
		return p.send(ctx, at, b.Bytes())
	}
	return p.sendRecord(ctx, at, NewRawRecord(p.iface, at, pkt))
}

func (p *Printer) writeBanner(b *bytes.Buffer, length int) {
	fmt.Fprintf(b, "--- [%s] %d bytes ---\n", p.iface, length)
}

func (p *Printer) sendRecord(ctx context.Context, at time.Time, rec Record) error {
	body, err := Marshal(p.format, rec)
	if err != nil {
		return err
	}
	return p.send(ctx, at, body)
}

func (p *Printer) send(ctx context.Context, at time.Time, body []byte) error {
	return p.sink.Send(ctx, sink.Record{Interface: p.iface, Time: at, Body: body})
}

// Marshal encodes rec as one json line or one yaml document.
func Marshal(format Format, rec Record) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("json marshal failed: %w", err)
		}
		return append(b, '\n'), nil
	case FormatYAML:
		b, err := yaml.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("yaml marshal failed: %w", err)
		}
		return append([]byte("---\n"), b...), nil
	default:
		return nil, fmt.Errorf("format %q has no record encoding: %w", format, core.ErrConfigInvalid)
	}
}
