//go:build !linux

package device

import "firestige.xyz/tendium/internal/core"

func platformTypes() []Type {
	return nil
}

func openAFPacket(Config) (Device, error) {
	return nil, core.ErrUnsupportedDevice
}

func openTAP(Config) (Device, error) {
	return nil, core.ErrUnsupportedDevice
}
