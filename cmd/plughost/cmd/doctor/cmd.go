// Package doctor implements a health report over the plugin registry.
package doctor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"plughost.software/plughost/cmd/plughost/internal/hostctx"
	"plughost.software/plughost/manager"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"check"},
		Short:   "Diagnose problems with the plugin directory",
		Long: `Check the plugin directory for problems that plain listing hides: module
files skipped over broken or missing descriptors, plugins shadowed by a
same-named rival, and registered plugins whose dependencies cannot be
resolved.

The command fails when any problem is found so it can gate automation.`,
		Example: `plughost doctor --plugin-dir ./plugins`,
		Args:              cobra.NoArgs,
		RunE:              Diagnose,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	return cmd
}

func Diagnose(cmd *cobra.Command, _ []string) error {
	pm := hostctx.FromContext(cmd.Context()).Manager()
	if pm == nil {
		return fmt.Errorf("could not retrieve plugin manager from context")
	}

	out := cmd.OutOrStdout()
	plugins := pm.Plugins()
	fmt.Fprintf(out, "%d plugin(s) registered in %q\n", len(plugins), pm.Directory())

	problems := 0

	if skipped := pm.Skipped(); len(skipped) > 0 {
		problems += len(skipped)
		fmt.Fprintf(out, "\n%d candidate(s) were skipped during discovery:\n", len(skipped))
		if _, err := io.Copy(out, bytes.NewReader(skippedTable(skipped))); err != nil {
			return err
		}
	}

	var unresolvable []string
	for _, name := range plugins {
		if _, err := pm.ResolveOrder(name); err != nil {
			unresolvable = append(unresolvable, name)
			fmt.Fprintf(out, "\n%s cannot load: %v\n", name, err)
		}
	}
	problems += len(unresolvable)

	if problems == 0 {
		fmt.Fprintln(out, "no problems found")
		return nil
	}

	return fmt.Errorf("found %d problem(s) in %q", problems, pm.Directory())
}

func skippedTable(skipped []manager.SkippedCandidate) []byte {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"Path", "Name", "Reason"})
	for _, s := range skipped {
		path := s.Path
		if path == "" {
			path = "(static)"
		}
		name := s.Name
		if name == "" {
			name = "-"
		}
		t.AppendRow(table.Row{path, name, s.Err})
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return buf.Bytes()
}
