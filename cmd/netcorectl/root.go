package main

import (
	"github.com/danmuck/netcore/internal/logging"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "netcorectl",
		Short: "Run and talk to netcore servers",
		Long: `netcorectl runs a framed TCP/UDP command server and acts as a
client for it.

Logging follows NETCORE_LOG_LEVEL, NETCORE_LOG_TIMESTAMP,
NETCORE_LOG_NOCOLOR and NETCORE_LOG_BYPASS.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
		},
	}
	root.AddCommand(newServeCmd(), newCallCmd(), newKeygenCmd())
	return root
}

func execute() error {
	return newRootCmd().Execute()
}
