// Package resolve implements dry-run dependency resolution for a plugin.
package resolve

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"plughost.software/plughost/cmd/plughost/internal/hostctx"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resolve {plugin}",
		Aliases: []string{"order", "deps"},
		Short:   "Print the order in which a plugin and its dependencies would load",
		Long: `Resolve the transitive dependency closure of a plugin without loading
anything. The resolved order is printed one plugin per line, dependencies
first, the requested plugin last.

Resolution failures are diagnosed instead: a dependency cycle is reported
with the full cycle path, a dependency naming no known plugin is reported
as unresolved.`,
		Example: `plughost resolve Bulldog --plugin-dir ./plugins`,
		Args:              cobra.ExactArgs(1),
		RunE:              ResolvePlugin,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	return cmd
}

func ResolvePlugin(cmd *cobra.Command, args []string) error {
	pm := hostctx.FromContext(cmd.Context()).Manager()
	if pm == nil {
		return fmt.Errorf("could not retrieve plugin manager from context")
	}

	order, err := pm.ResolveOrder(args[0])
	if err != nil {
		return fmt.Errorf("resolving %s failed: %w", args[0], err)
	}

	slog.DebugContext(cmd.Context(), "resolved load order", slog.String("plugin", args[0]), slog.Int("plugins", len(order)))
	for _, name := range order {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
			return err
		}
	}

	return nil
}
