// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/device"
	"firestige.xyz/tendium/internal/dump"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/sink"
)

// Config is everything under the `tendium:` root key.
type Config struct {
	Interface InterfaceConfig `mapstructure:"interface"`
	Address   AddressConfig   `mapstructure:"address"`
	ARP       ARPConfig       `mapstructure:"arp"`
	Dump      DumpConfig      `mapstructure:"dump"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ─── Interface ───

// InterfaceConfig selects and tunes the packet device.
type InterfaceConfig struct {
	Name         string        `mapstructure:"name"` // overridden by the CLI argument
	Type         device.Type   `mapstructure:"type"` // afpacket | tap | pcap | pipe
	Promiscuous  bool          `mapstructure:"promiscuous"`
	Filter       string        `mapstructure:"filter"`
	SnapLen      int           `mapstructure:"snap_len"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	Pcap         PcapConfig    `mapstructure:"pcap"`
}

// PcapConfig names the capture files of the pcap device.
type PcapConfig struct {
	ReadFile  string `mapstructure:"read_file"`
	WriteFile string `mapstructure:"write_file"`
}

// ─── Addressing ───

// AddressConfig holds the local addresses. A zero Hardware keeps the
// address reported by the device.
type AddressConfig struct {
	IP       addr.IPv4Addr     `mapstructure:"ip"`
	Hardware addr.HardwareAddr `mapstructure:"hardware"`
}

// ─── ARP ───

// ARPConfig tunes resolution and the responder.
type ARPConfig struct {
	RequestTimeout   time.Duration    `mapstructure:"request_timeout"`
	MaxRetries       int              `mapstructure:"max_retries"`
	AnswerRequests   bool             `mapstructure:"answer_requests"`
	LearnUnsolicited bool             `mapstructure:"learn_unsolicited"`
	BacklogLimit     int              `mapstructure:"backlog_limit"`
	Static           []StaticNeighbor `mapstructure:"static"`
}

// StaticNeighbor is a fixed ARP entry. A list is used instead of a map
// because viper splits map keys on dots.
type StaticNeighbor struct {
	IP       addr.IPv4Addr     `mapstructure:"ip"`
	Hardware addr.HardwareAddr `mapstructure:"hardware"`
}

// StaticEntries returns the static neighbors as a table.
func (c *ARPConfig) StaticEntries() map[addr.IPv4Addr]addr.HardwareAddr {
	if len(c.Static) == 0 {
		return nil
	}
	out := make(map[addr.IPv4Addr]addr.HardwareAddr, len(c.Static))
	for _, n := range c.Static {
		out[n.IP] = n.Hardware
	}
	return out
}

// ─── Dump ───

// DumpConfig selects the rendering and destinations of dumped frames.
type DumpConfig struct {
	Format string           `mapstructure:"format"` // text | yaml | json
	Sinks  []string         `mapstructure:"sinks"`  // console | kafka
	Kafka  sink.KafkaConfig `mapstructure:"kafka"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log destinations besides stderr.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// DeviceConfig converts the interface section for device.Open.
func (c *Config) DeviceConfig() device.Config {
	ic := c.Interface
	return device.Config{
		Name:          ic.Name,
		Type:          ic.Type,
		Promiscuous:   ic.Promiscuous,
		Filter:        ic.Filter,
		SnapLen:       ic.SnapLen,
		BufferSizeMB:  ic.BufferSizeMB,
		PollTimeout:   ic.PollTimeout,
		HardwareAddr:  c.Address.Hardware,
		PcapReadFile:  ic.Pcap.ReadFile,
		PcapWriteFile: ic.Pcap.WriteFile,
	}
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `tendium: ...`.
type configRoot struct {
	Tendium Config `mapstructure:"tendium"`
}

// Load reads path, applies TENDIUM_* environment overrides and defaults, and
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `tendium.` key prefix maps to TENDIUM_ through the replacer,
	// e.g. "tendium.log.level" → TENDIUM_LOG_LEVEL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Tendium

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides resolve.
func setDefaults(v *viper.Viper) {
	// Interface defaults
	v.SetDefault("tendium.interface.name", "")
	v.SetDefault("tendium.interface.type", string(device.TypeAFPacket))
	v.SetDefault("tendium.interface.promiscuous", true)
	v.SetDefault("tendium.interface.filter", "")
	v.SetDefault("tendium.interface.snap_len", device.DefaultSnapLen)
	v.SetDefault("tendium.interface.buffer_size_mb", device.DefaultBufferSizeMB)
	v.SetDefault("tendium.interface.poll_timeout", device.DefaultPollTimeout)
	v.SetDefault("tendium.interface.pcap.read_file", "")
	v.SetDefault("tendium.interface.pcap.write_file", "")

	// Address defaults
	v.SetDefault("tendium.address.ip", "")
	v.SetDefault("tendium.address.hardware", "")

	// ARP defaults
	v.SetDefault("tendium.arp.request_timeout", "1s")
	v.SetDefault("tendium.arp.max_retries", 3)
	v.SetDefault("tendium.arp.answer_requests", true)
	v.SetDefault("tendium.arp.learn_unsolicited", false)
	v.SetDefault("tendium.arp.backlog_limit", 256)

	// Dump defaults
	v.SetDefault("tendium.dump.format", string(dump.FormatText))
	v.SetDefault("tendium.dump.sinks", []string{sink.TypeConsole})
	v.SetDefault("tendium.dump.kafka.brokers", []string{})
	v.SetDefault("tendium.dump.kafka.topic", sink.DefaultKafkaTopic)
	v.SetDefault("tendium.dump.kafka.compression", sink.DefaultKafkaCompression)
	v.SetDefault("tendium.dump.kafka.batch_size", sink.DefaultKafkaBatchSize)
	v.SetDefault("tendium.dump.kafka.batch_timeout", sink.DefaultKafkaBatchTimeout)
	v.SetDefault("tendium.dump.kafka.max_attempts", sink.DefaultKafkaMaxAttempts)

	// Metrics defaults
	v.SetDefault("tendium.metrics.enabled", false)
	v.SetDefault("tendium.metrics.listen", ":9091")
	v.SetDefault("tendium.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("tendium.log.level", "info")
	v.SetDefault("tendium.log.format", "text")
	v.SetDefault("tendium.log.outputs.file.enabled", false)
	v.SetDefault("tendium.log.outputs.file.path", "/var/log/tendium/tendium.log")
	v.SetDefault("tendium.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("tendium.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("tendium.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("tendium.log.outputs.file.rotation.compress", true)
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToAddrHookFunc(),
	)
}

var (
	ipv4AddrType     = reflect.TypeOf(addr.IPv4Addr{})
	hardwareAddrType = reflect.TypeOf(addr.HardwareAddr{})
)

// stringToAddrHookFunc parses address strings. Blank strings decode to the
// zero address.
func stringToAddrHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}
		s := strings.TrimSpace(reflect.ValueOf(data).String())
		switch to {
		case ipv4AddrType:
			if s == "" {
				return addr.IPv4Addr{}, nil
			}
			return addr.ParseIPv4Addr(s)
		case hardwareAddrType:
			if s == "" {
				return addr.HardwareAddr{}, nil
			}
			return addr.ParseHardwareAddr(s)
		default:
			return data, nil
		}
	}
}

// ValidateAndApplyDefaults checks cross-field constraints. The interface
// name and IP are checked by the commands that need them.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Interface validation ──
	if !device.IsTypeSupported(cfg.Interface.Type) {
		return invalid("unsupported interface.type: %s (supported: %v)",
			cfg.Interface.Type, device.SupportedTypes())
	}
	if err := device.ValidateFilter(cfg.Interface.Filter); err != nil {
		return err
	}
	if cfg.Interface.SnapLen <= 0 {
		cfg.Interface.SnapLen = device.DefaultSnapLen
	}
	if cfg.Interface.BufferSizeMB <= 0 {
		cfg.Interface.BufferSizeMB = device.DefaultBufferSizeMB
	}
	if cfg.Interface.PollTimeout <= 0 {
		cfg.Interface.PollTimeout = device.DefaultPollTimeout
	}

	// ── ARP validation ──
	if cfg.ARP.RequestTimeout <= 0 {
		return invalid("arp.request_timeout must be positive, got %s", cfg.ARP.RequestTimeout)
	}
	if cfg.ARP.MaxRetries < 0 {
		return invalid("arp.max_retries must not be negative, got %d", cfg.ARP.MaxRetries)
	}
	for i, n := range cfg.ARP.Static {
		if n.IP.IsZero() || n.Hardware.IsZero() {
			return invalid("arp.static[%d] needs both ip and hardware", i)
		}
	}

	// ── Dump validation ──
	if _, err := dump.ParseFormat(cfg.Dump.Format); err != nil {
		return err
	}
	if len(cfg.Dump.Sinks) == 0 {
		cfg.Dump.Sinks = []string{sink.TypeConsole}
	}
	for _, s := range cfg.Dump.Sinks {
		switch s {
		case sink.TypeConsole:
		case sink.TypeKafka:
			if len(cfg.Dump.Kafka.Brokers) == 0 {
				return invalid("dump.kafka.brokers is required when the kafka sink is enabled")
			}
		default:
			return invalid("unknown dump sink: %s (must be console/kafka)", s)
		}
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics are enabled")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), core.ErrConfigInvalid)
}
