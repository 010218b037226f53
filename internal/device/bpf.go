package device

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/iana"
)

// Offsets into an untagged Ethernet frame.
const (
	offEtherType = 12
	offIPv4Src   = 14 + 12
	offIPv4Dst   = 14 + 16
)

var addrFilterRegex = regexp.MustCompile(`^(host|src|dst)\s+([0-9.]+)$`)

// CompileFilter turns a tcpdump-style expression into a classic BPF program.
//
// Supported forms are "arp", "ip", "host A", "src A" and "dst A" with A an
// IPv4 address. Address filters match IPv4 source and/or destination and
// always accept ARP so resolution keeps working.
func CompileFilter(expr string, snapLen int) ([]bpf.Instruction, error) {
	expr = strings.Join(strings.Fields(strings.ToLower(expr)), " ")
	accept := uint32(snapLen)
	if accept == 0 {
		accept = 65535
	}

	switch expr {
	case "arp":
		return etherTypeFilter(iana.EtherTypeARP, accept), nil
	case "ip":
		return etherTypeFilter(iana.EtherTypeIPv4, accept), nil
	}

	m := addrFilterRegex.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("unsupported filter %q: %w", expr, core.ErrConfigInvalid)
	}
	ip, err := addr.ParseIPv4Addr(m[2])
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, core.ErrConfigInvalid)
	}
	val := binary.BigEndian.Uint32(ip[:])

	switch m[1] {
	case "src":
		return singleAddrFilter(offIPv4Src, val, accept), nil
	case "dst":
		return singleAddrFilter(offIPv4Dst, val, accept), nil
	default:
		return hostFilter(val, accept), nil
	}
}

func etherTypeFilter(typ iana.EtherType, accept uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: offEtherType, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(typ), SkipFalse: 1},
		bpf.RetConstant{Val: accept},
		bpf.RetConstant{Val: 0},
	}
}

func singleAddrFilter(off uint32, ip uint32, accept uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: offEtherType, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(iana.EtherTypeARP), SkipTrue: 3},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(iana.EtherTypeIPv4), SkipFalse: 3},
		bpf.LoadAbsolute{Off: off, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: ip, SkipFalse: 1},
		bpf.RetConstant{Val: accept},
		bpf.RetConstant{Val: 0},
	}
}

func hostFilter(ip uint32, accept uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: offEtherType, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(iana.EtherTypeARP), SkipTrue: 5},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(iana.EtherTypeIPv4), SkipFalse: 5},
		bpf.LoadAbsolute{Off: offIPv4Src, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: ip, SkipTrue: 2},
		bpf.LoadAbsolute{Off: offIPv4Dst, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: ip, SkipFalse: 1},
		bpf.RetConstant{Val: accept},
		bpf.RetConstant{Val: 0},
	}
}

// ValidateFilter reports whether expr compiles.
func ValidateFilter(expr string) error {
	if expr == "" {
		return nil
	}
	prog, err := CompileFilter(expr, 0)
	if err != nil {
		return err
	}
	_, err = bpf.Assemble(prog)
	return err
}
