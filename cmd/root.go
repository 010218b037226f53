// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

// configFile is the global --config flag. Empty means defaults and
// TENDIUM_* environment variables only.
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tendium",
	Short: "tendium - a small layered Ethernet/ARP/IPv4 stack",
	Long: `tendium reads and writes raw Ethernet frames on a network interface and
layers ARP resolution and IPv4 addressing on top.

Commands:
  dump     print every decoded frame
  raw      hex-dump every packet
  respond  answer ARP requests and print received IPv4 datagrams
  resolve  resolve one IPv4 address to a hardware address`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(respondCmd)
	rootCmd.AddCommand(resolveCmd)
}
