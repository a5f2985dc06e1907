package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// version подставляется при сборке: -ldflags "-X main.version=v1.2.0"
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd собирает дерево команд
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "slguard",
		Short: "slguard - SL/TP protection engine for brokerage positions",
		Long: `slguard keeps stop-loss and take-profit orders in sync with open positions.
It listens to the trades and positions streams of one brokerage account and
replaces protective orders whenever a position is opened, changed or closed.

Configuration is read from environment variables and an optional .env file.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newLevelsCmd())
	root.AddCommand(newSettingsCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newHashTokenCmd())
	root.AddCommand(newEncryptTokenCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "slguard %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
