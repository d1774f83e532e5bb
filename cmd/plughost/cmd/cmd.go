package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"plughost.software/plughost/cmd/plughost/cmd/doctor"
	"plughost.software/plughost/cmd/plughost/cmd/info"
	"plughost.software/plughost/cmd/plughost/cmd/install"
	hostcmd "plughost.software/plughost/cmd/plughost/cmd/internal/cmd"
	"plughost.software/plughost/cmd/plughost/cmd/list"
	"plughost.software/plughost/cmd/plughost/cmd/resolve"
	"plughost.software/plughost/cmd/plughost/cmd/setup"
	"plughost.software/plughost/cmd/plughost/cmd/version"
	"plughost.software/plughost/cmd/plughost/internal/flags/log"
	"plughost.software/plughost/loader"
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main() and only needs to happen once.
func Execute() {
	err := New().Execute()
	if err != nil {
		os.Exit(1)
	}
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plughost [sub-command]",
		Short: "Inspect and maintain a directory of plughost plugins",
		Long: `The plughost command line client works with directories of loadable plugin
  modules and their descriptors: listing what a host would discover, explaining
  dependency resolution, diagnosing skipped candidates and installing plugin
  bundles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: setup.PreRunE,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().String(hostcmd.PluginDirectoryFlag, "",
		`directory scanned for plugin modules and their descriptors`)
	cmd.PersistentFlags().StringSlice(hostcmd.SuffixFlag, []string{loader.Go().Suffix()},
		`accepted module file suffixes in priority order`)
	cmd.PersistentFlags().String(hostcmd.InterfaceFlag, "",
		`interface contract the host manages, only consulted when loading plugins`)
	log.RegisterLoggingFlags(cmd.PersistentFlags())

	cmd.AddCommand(list.New())
	cmd.AddCommand(info.New())
	cmd.AddCommand(resolve.New())
	cmd.AddCommand(doctor.New())
	cmd.AddCommand(install.New())
	cmd.AddCommand(version.New())
	return cmd
}
