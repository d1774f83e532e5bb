// Package list implements listing of every plugin a host would discover.
package list

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"plughost.software/plughost/cmd/plughost/internal/flags/enum"
	"plughost.software/plughost/cmd/plughost/internal/hostctx"
	"plughost.software/plughost/manager"
)

const FlagOutput = "output"

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "plugins"},
		Short:   "List the plugins registered from the plugin directory",
		Long: `List every plugin the host would know about: static registrations first,
then dynamic candidates in discovery order. The listing reflects the registry,
not the load state of any particular host process.`,
		Example: `plughost list --plugin-dir /usr/lib/host/plugins
plughost list --plugin-dir ./plugins -ojson`,
		Args:              cobra.NoArgs,
		RunE:              ListPlugins,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	enum.VarP(cmd.Flags(), FlagOutput, "o", []string{"table", "yaml", "json"}, "output format of the plugin listing")

	return cmd
}

func ListPlugins(cmd *cobra.Command, _ []string) error {
	pm := hostctx.FromContext(cmd.Context()).Manager()
	if pm == nil {
		return fmt.Errorf("could not retrieve plugin manager from context")
	}

	output, err := enum.Get(cmd.Flags(), FlagOutput)
	if err != nil {
		return fmt.Errorf("getting output flag failed: %w", err)
	}

	names := pm.Plugins()
	if len(names) == 0 {
		return fmt.Errorf("%w in %q", manager.ErrNoPluginsFound, pm.Directory())
	}

	rows := make([]pluginRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, rowFor(pm, name))
	}

	reader, err := encodeRows(output, rows)
	if err != nil {
		return err
	}
	_, err = io.Copy(cmd.OutOrStdout(), reader)
	return err
}
