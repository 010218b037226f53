package device

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/protocol/addr"
)

// Type selects a device provider.
type Type string

const (
	TypeAFPacket Type = "afpacket"
	TypeTAP      Type = "tap"
	TypePcap     Type = "pcap"
	TypePipe     Type = "pipe"
)

const (
	DefaultSnapLen      = 4096
	DefaultBufferSizeMB = 2
	DefaultPollTimeout  = 100 * time.Millisecond
)

// Config describes the device to open.
type Config struct {
	Name         string
	Type         Type
	Promiscuous  bool
	Filter       string
	SnapLen      int
	BufferSizeMB int
	PollTimeout  time.Duration

	// HardwareAddr overrides the address reported by the device.
	// Required for pcap and pipe devices, which have none of their own.
	HardwareAddr addr.HardwareAddr

	PcapReadFile  string
	PcapWriteFile string
}

func (c *Config) applyDefaults() {
	if c.Type == "" {
		c.Type = TypeAFPacket
	}
	if c.SnapLen <= 0 {
		c.SnapLen = DefaultSnapLen
	}
	if c.BufferSizeMB <= 0 {
		c.BufferSizeMB = DefaultBufferSizeMB
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
}

// Open creates a device of the configured type.
func Open(cfg Config) (Device, error) {
	cfg.applyDefaults()
	if cfg.Name == "" {
		return nil, fmt.Errorf("device name is required: %w", core.ErrConfigInvalid)
	}
	if !IsTypeSupported(cfg.Type) {
		return nil, fmt.Errorf("%s: %w", cfg.Type, core.ErrUnsupportedDevice)
	}

	var (
		dev Device
		err error
	)
	switch cfg.Type {
	case TypeAFPacket:
		dev, err = openAFPacket(cfg)
	case TypeTAP:
		dev, err = openTAP(cfg)
	case TypePcap:
		dev, err = OpenPcap(cfg.Name, cfg.HardwareAddr, cfg.PcapReadFile, cfg.PcapWriteFile, cfg.SnapLen)
	case TypePipe:
		dev = NewLoopback(cfg.Name, cfg.HardwareAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s device %s: %w", cfg.Type, cfg.Name, err)
	}

	slog.Info("device opened", "interface", cfg.Name, "type", cfg.Type)
	if !cfg.HardwareAddr.IsZero() {
		return withHardwareAddr(dev, cfg.HardwareAddr), nil
	}
	return dev, nil
}

// SupportedTypes lists the providers available on this platform.
func SupportedTypes() []Type {
	return append(platformTypes(), TypePcap, TypePipe)
}

// IsTypeSupported reports whether t can be opened on this platform.
func IsTypeSupported(t Type) bool {
	return slices.Contains(SupportedTypes(), t)
}

type overrideAddr struct {
	Device
	hw addr.HardwareAddr
}

func (d overrideAddr) HardwareAddr() (addr.HardwareAddr, error) {
	return d.hw, nil
}

func withHardwareAddr(dev Device, hw addr.HardwareAddr) Device {
	return overrideAddr{Device: dev, hw: hw}
}
