package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/device"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/sink"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, device.TypeAFPacket, cfg.Interface.Type)
	assert.True(t, cfg.Interface.Promiscuous)
	assert.Equal(t, device.DefaultSnapLen, cfg.Interface.SnapLen)
	assert.Equal(t, device.DefaultBufferSizeMB, cfg.Interface.BufferSizeMB)
	assert.Equal(t, device.DefaultPollTimeout, cfg.Interface.PollTimeout)
	assert.True(t, cfg.Address.IP.IsZero())
	assert.True(t, cfg.Address.Hardware.IsZero())
	assert.Equal(t, time.Second, cfg.ARP.RequestTimeout)
	assert.Equal(t, 3, cfg.ARP.MaxRetries)
	assert.True(t, cfg.ARP.AnswerRequests)
	assert.False(t, cfg.ARP.LearnUnsolicited)
	assert.Equal(t, 256, cfg.ARP.BacklogLimit)
	assert.Nil(t, cfg.ARP.StaticEntries())
	assert.Equal(t, "text", cfg.Dump.Format)
	assert.Equal(t, []string{sink.TypeConsole}, cfg.Dump.Sinks)
	assert.Equal(t, sink.DefaultKafkaTopic, cfg.Dump.Kafka.Topic)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Log.Outputs.File.Rotation.MaxSizeMB)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
tendium:
  interface:
    name: tap0
    type: pcap
    promiscuous: false
    filter: "host 10.0.0.1"
    poll_timeout: 250ms
    pcap:
      read_file: /tmp/in.pcap
  address:
    ip: 10.0.0.4
    hardware: "44:c4:c3:f1:15:5b"
  arp:
    request_timeout: 200ms
    max_retries: 1
    answer_requests: false
    learn_unsolicited: true
    static:
      - ip: 10.0.0.1
        hardware: "aa:bb:cc:dd:ee:ff"
  dump:
    format: json
    sinks: [console, kafka]
    kafka:
      brokers: ["kafka-1:9092", "kafka-2:9092"]
      compression: lz4
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
  log:
    level: debug
    format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tap0", cfg.Interface.Name)
	assert.Equal(t, device.TypePcap, cfg.Interface.Type)
	assert.False(t, cfg.Interface.Promiscuous)
	assert.Equal(t, 250*time.Millisecond, cfg.Interface.PollTimeout)
	assert.Equal(t, addr.MustParseIPv4Addr("10.0.0.4"), cfg.Address.IP)
	assert.Equal(t, addr.MustParseHardwareAddr("44:c4:c3:f1:15:5b"), cfg.Address.Hardware)
	assert.Equal(t, 200*time.Millisecond, cfg.ARP.RequestTimeout)
	assert.Equal(t, 1, cfg.ARP.MaxRetries)
	assert.False(t, cfg.ARP.AnswerRequests)
	assert.True(t, cfg.ARP.LearnUnsolicited)
	assert.Equal(t, map[addr.IPv4Addr]addr.HardwareAddr{
		addr.MustParseIPv4Addr("10.0.0.1"): addr.MustParseHardwareAddr("aa:bb:cc:dd:ee:ff"),
	}, cfg.ARP.StaticEntries())
	assert.Equal(t, "json", cfg.Dump.Format)
	assert.Equal(t, []string{"console", "kafka"}, cfg.Dump.Sinks)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Dump.Kafka.Brokers)
	assert.Equal(t, "lz4", cfg.Dump.Kafka.Compression)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)

	dc := cfg.DeviceConfig()
	assert.Equal(t, "tap0", dc.Name)
	assert.Equal(t, "host 10.0.0.1", dc.Filter)
	assert.Equal(t, "/tmp/in.pcap", dc.PcapReadFile)
	assert.Equal(t, cfg.Address.Hardware, dc.HardwareAddr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TENDIUM_LOG_LEVEL", "warn")
	t.Setenv("TENDIUM_ADDRESS_IP", "192.168.1.20")
	t.Setenv("TENDIUM_ARP_MAX_RETRIES", "0")
	t.Setenv("TENDIUM_DUMP_SINKS", "console")

	path := writeConfig(t, `
tendium:
  log:
    level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, addr.MustParseIPv4Addr("192.168.1.20"), cfg.Address.IP)
	assert.Equal(t, 0, cfg.ARP.MaxRetries)
	assert.Equal(t, []string{"console"}, cfg.Dump.Sinks)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{
			name:    "log level",
			content: "tendium:\n  log:\n    level: trace\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "log format",
			content: "tendium:\n  log:\n    format: xml\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "interface type",
			content: "tendium:\n  interface:\n    type: dpdk\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "filter",
			content: "tendium:\n  interface:\n    filter: \"tcp port 80\"\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "request timeout",
			content: "tendium:\n  arp:\n    request_timeout: 0s\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "negative retries",
			content: "tendium:\n  arp:\n    max_retries: -1\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "incomplete static entry",
			content: "tendium:\n  arp:\n    static:\n      - ip: 10.0.0.1\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "dump format",
			content: "tendium:\n  dump:\n    format: xml\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "unknown sink",
			content: "tendium:\n  dump:\n    sinks: [loki]\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "kafka without brokers",
			content: "tendium:\n  dump:\n    sinks: [kafka]\n",
			target:  core.ErrConfigInvalid,
		},
		{
			name:    "file log without path",
			content: "tendium:\n  log:\n    outputs:\n      file:\n        enabled: true\n        path: \"\"\n",
			target:  core.ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoadMalformedAddress(t *testing.T) {
	_, err := Load(writeConfig(t, "tendium:\n  address:\n    ip: 10.0.0.300\n"))
	assert.ErrorContains(t, err, "failed to unmarshal config")
}
