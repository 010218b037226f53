package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"firestige.xyz/tendium/internal/config"
	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/device"
	"firestige.xyz/tendium/internal/dump"
	"firestige.xyz/tendium/internal/internet"
	"firestige.xyz/tendium/internal/link"
	"firestige.xyz/tendium/internal/log"
	"firestige.xyz/tendium/internal/metrics"
	"firestige.xyz/tendium/internal/sink"
)

// session holds what the commands share once the link is up.
type session struct {
	cfg     *config.Config
	link    *link.Interface
	metrics *metrics.Server
}

// bootstrap loads configuration, initialises logging and metrics, and opens
// the link on ifname.
func bootstrap(ctx context.Context, ifname string) (*session, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	cfg.Interface.Name = ifname

	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	rt := &session{cfg: cfg}
	if cfg.Metrics.Enabled {
		rt.metrics = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := rt.metrics.Start(ctx); err != nil {
			return nil, err
		}
	}

	dev, err := device.Open(cfg.DeviceConfig())
	if err != nil {
		rt.close()
		return nil, err
	}
	if rt.link, err = link.New(dev); err != nil {
		dev.Close()
		rt.close()
		return nil, err
	}
	return rt, nil
}

// internet brings up the IPv4 layer over the link. The link is then owned by
// the returned interface.
func (rt *session) internet(answerARP bool) (*internet.Interface, error) {
	if rt.cfg.Address.IP.IsZero() {
		return nil, fmt.Errorf("address.ip is required (set tendium.address.ip or TENDIUM_ADDRESS_IP): %w", core.ErrConfigInvalid)
	}
	arpCfg := rt.cfg.ARP
	return internet.New(rt.link, rt.cfg.Address.IP,
		internet.WithAnswerARP(answerARP),
		internet.WithRequestTimeout(arpCfg.RequestTimeout),
		internet.WithMaxRetries(arpCfg.MaxRetries),
		internet.WithLearnUnsolicited(arpCfg.LearnUnsolicited),
		internet.WithStaticEntries(arpCfg.StaticEntries()),
		internet.WithBacklogLimit(arpCfg.BacklogLimit),
	)
}

// printer renders to the configured sinks.
func (rt *session) printer() (*dump.Printer, sink.Sink, error) {
	format, err := dump.ParseFormat(rt.cfg.Dump.Format)
	if err != nil {
		return nil, nil, err
	}
	s, err := sink.New(rt.cfg.Dump.Sinks, rt.cfg.Dump.Kafka)
	if err != nil {
		return nil, nil, err
	}
	return dump.NewPrinter(rt.link.Name(), format, s), s, nil
}

func (rt *session) close() {
	if rt.link != nil {
		stats := rt.link.Stats()
		if err := rt.link.Close(); err != nil {
			slog.Warn("close link", "interface", rt.link.Name(), "error", err)
		}
		slog.Info("link closed", "interface", rt.link.Name(),
			"packets_received", stats.PacketsReceived,
			"packets_sent", stats.PacketsSent,
			"errors", stats.Errors)
	}
	if rt.metrics != nil {
		if err := rt.metrics.Stop(context.Background()); err != nil {
			slog.Warn("stop metrics server", "error", err)
		}
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// finished reports whether err ends a receive loop normally: the context
// was canceled or a replayed capture ran out.
func finished(ctx context.Context, err error) bool {
	return (ctx.Err() != nil && errors.Is(err, ctx.Err())) || errors.Is(err, io.EOF)
}
