package main

import (
	"github.com/spf13/cobra"
)

var configFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "serclient",
		Short: "Out-of-band virtual-serial management agent",
		RunE:  runRun, // bare invocation behaves like `serclient run`
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to an .ini config file")

	runCmd := newRunCommand()
	root.Flags().AddFlagSet(runCmd.Flags())

	root.AddCommand(runCmd)
	root.AddCommand(newDebugSendCommand())
	return root
}
