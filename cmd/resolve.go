package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/tendium/internal/protocol/addr"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <ifname> <ip>",
	Short: "Resolve an IPv4 address to a hardware address",
	Long: `Broadcast ARP requests on the interface until the owner of ip answers or
the retries run out.

Examples:
  TENDIUM_ADDRESS_IP=10.0.0.4 tendium resolve tap0 10.0.0.1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := addr.ParseIPv4Addr(args[1])
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		rt, err := bootstrap(ctx, args[0])
		if err != nil {
			return err
		}
		defer rt.close()

		inet, err := rt.internet(rt.cfg.ARP.AnswerRequests)
		if err != nil {
			return err
		}
		return runResolve(ctx, inet, target, cmd.OutOrStdout())
	},
}

type resolver interface {
	Resolve(ctx context.Context, ip addr.IPv4Addr) (addr.HardwareAddr, error)
}

func runResolve(ctx context.Context, r resolver, target addr.IPv4Addr, out io.Writer) error {
	hw, err := r.Resolve(ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s is at %s\n", target, hw)
	return nil
}
