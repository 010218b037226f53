package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"firestige.xyz/tendium/internal/dump"
)

var rawCmd = &cobra.Command{
	Use:   "raw <ifname>",
	Short: "Hex-dump every packet",
	Long: `Print every packet received on the interface as a hex dump, without
decoding it.

Examples:
  tendium raw eth0
  tendium -c tendium.yml raw tap0`,
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

		return runRaw(ctx, rt.link, p)
	},
}

func runRaw(ctx context.Context, l rawReceiver, p *dump.Printer) error {
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
		if err := p.Raw(ctx, pkt); err != nil {
			return err
		}
	}
}
