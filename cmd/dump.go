package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"firestige.xyz/tendium/internal/dump"
	"firestige.xyz/tendium/internal/metrics"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/ethernet"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <ifname>",
	Short: "Print every decoded frame",
	Long: `Print every frame received on the interface, decoded layer by layer.

Frames that fail to decode are printed as a hex dump. Output format and
destinations come from the dump section of the configuration.

Examples:
  tendium dump eth0
  TENDIUM_DUMP_FORMAT=json tendium dump eth0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		rt, err := bootstrap(ctx, args[0])
		if err != nil {
			return err
		}
		defer rt.close()

		p, s, err := rt.printer()
		if err != nil {
			return err
		}
		defer s.Close()

		return runDump(ctx, rt.link, p)
	},
}

// rawReceiver is the receive side of a link.
type rawReceiver interface {
	Name() string
	HardwareAddr() addr.HardwareAddr
	RecvRaw(ctx context.Context) ([]byte, error)
}

func runDump(ctx context.Context, l rawReceiver, p *dump.Printer) error {
	if err := p.Banner(ctx, l.HardwareAddr()); err != nil {
		return err
	}
	for {
		pkt, err := l.RecvRaw(ctx)
		if err != nil {
			if finished(ctx, err) {
				return nil
			}
			return err
		}

		f, err := ethernet.Unmarshal(pkt)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues(l.Name()).Inc()
			slog.Debug("frame decode failed", "interface", l.Name(), "len", len(pkt), "error", err)
			err = p.Raw(ctx, pkt)
		} else {
			metrics.FramesReceivedTotal.WithLabelValues(l.Name(), f.Header.Type.String()).Inc()
			err = p.Frame(ctx, len(pkt), f)
		}
		if err != nil {
			return err
		}
	}
}
