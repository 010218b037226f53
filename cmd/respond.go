package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"firestige.xyz/tendium/internal/core"
	"firestige.xyz/tendium/internal/dump"
	"firestige.xyz/tendium/internal/protocol/addr"
	"firestige.xyz/tendium/internal/protocol/ipv4"
)

var respondCmd = &cobra.Command{
	Use:   "respond <ifname>",
	Short: "Answer ARP requests and print received IPv4 datagrams",
	Long: `Bring up the IPv4 layer on the interface with address.ip, answer ARP
requests for that address, and print every IPv4 datagram received.

Examples:
  TENDIUM_ADDRESS_IP=10.0.0.4 tendium respond tap0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		rt, err := bootstrap(ctx, args[0])
		if err != nil {
			return err
		}
		defer rt.close()

		inet, err := rt.internet(true)
		if err != nil {
			return err
		}

		p, s, err := rt.printer()
		if err != nil {
			return err
		}
		defer s.Close()

		return runRespond(ctx, inet, p)
	},
}

// datagramReceiver is the receive side of the internet layer.
type datagramReceiver interface {
	Name() string
	IPAddr() addr.IPv4Addr
	HardwareAddr() addr.HardwareAddr
	Recv(ctx context.Context) (*ipv4.Datagram, error)
}

func runRespond(ctx context.Context, inet datagramReceiver, p *dump.Printer) error {
	slog.Info("responding", "interface", inet.Name(), "ip", inet.IPAddr(), "hardware", inet.HardwareAddr())
	for {
		d, err := inet.Recv(ctx)
		if err != nil {
			if finished(ctx, err) {
				return nil
			}
			if errors.Is(err, core.ErrTruncated) {
				continue
			}
			return err
		}
		if err := p.Datagram(ctx, d); err != nil {
			return err
		}
	}
}
