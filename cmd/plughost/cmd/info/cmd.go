// Package info implements detailed inspection of a single plugin.
package info

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"plughost.software/plughost/cmd/plughost/internal/flags/enum"
	"plughost.software/plughost/cmd/plughost/internal/hostctx"
	"plughost.software/plughost/manager"
)

const FlagOutput = "output"

// pluginInfo is the presentation model of one plugin including everything
// the registry knows about it.
type pluginInfo struct {
	Name         string          `json:"name"`
	Kind         string          `json:"kind"`
	State        string          `json:"state"`
	Interface    string          `json:"interface"`
	Version      uint32          `json:"version"`
	Path         string          `json:"path,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Provides     []string        `json:"provides,omitempty"`
	DefaultFor   []string        `json:"defaultFor,omitempty"`
	Dependents   []string        `json:"dependents,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "info {plugin}",
		Aliases: []string{"describe", "show"},
		Short:   "Show everything the registry knows about one plugin",
		Long: `Show the metadata, state and relations of a single plugin. The plugin may
be named by its primary name or by any alias that resolves to it.`,
		Example: `plughost info Bulldog --plugin-dir ./plugins
plughost info SmallDog --plugin-dir ./plugins -oyaml`,
		Args:              cobra.ExactArgs(1),
		RunE:              ShowPlugin,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	enum.VarP(cmd.Flags(), FlagOutput, "o", []string{"table", "yaml", "json"}, "output format of the plugin details")

	return cmd
}

func ShowPlugin(cmd *cobra.Command, args []string) error {
	pm := hostctx.FromContext(cmd.Context()).Manager()
	if pm == nil {
		return fmt.Errorf("could not retrieve plugin manager from context")
	}

	output, err := enum.Get(cmd.Flags(), FlagOutput)
	if err != nil {
		return fmt.Errorf("getting output flag failed: %w", err)
	}

	name := args[0]
	meta := pm.Metadata(name)
	if meta == nil {
		return fmt.Errorf("%w: %s", manager.ErrNotFound, name)
	}

	kind := "dynamic"
	if pm.IsStatic(meta.Name) {
		kind = "static"
	}
	details := pluginInfo{
		Name:         meta.Name,
		Kind:         kind,
		State:        pm.State(meta.Name).String(),
		Interface:    meta.Interface,
		Version:      meta.Version,
		Path:         pm.Path(meta.Name),
		Dependencies: meta.Dependencies,
		Provides:     meta.Provides,
		DefaultFor:   meta.DefaultFor,
		Dependents:   pm.Dependents(meta.Name),
		Config:       meta.Config,
	}

	var data []byte
	switch output {
	case "json":
		var buf bytes.Buffer
		encoder := json.NewEncoder(&buf)
		if err := encoder.Encode(details); err != nil {
			return fmt.Errorf("encoding plugin details failed: %w", err)
		}
		data = buf.Bytes()
	case "yaml":
		if data, err = yaml.Marshal(details); err != nil {
			return fmt.Errorf("encoding plugin details failed: %w", err)
		}
	case "table":
		data = detailsTable(details)
	default:
		return fmt.Errorf("unknown output format: %q", output)
	}

	_, err = io.Copy(cmd.OutOrStdout(), bytes.NewReader(data))
	return err
}

func detailsTable(details pluginInfo) []byte {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendRows([]table.Row{
		{"Name", details.Name},
		{"Kind", details.Kind},
		{"State", details.State},
		{"Interface", details.Interface},
		{"Version", details.Version},
	})
	if details.Path != "" {
		t.AppendRow(table.Row{"Path", details.Path})
	}
	if len(details.Dependencies) > 0 {
		t.AppendRow(table.Row{"Dependencies", strings.Join(details.Dependencies, ", ")})
	}
	if len(details.Provides) > 0 {
		t.AppendRow(table.Row{"Provides", strings.Join(details.Provides, ", ")})
	}
	if len(details.DefaultFor) > 0 {
		t.AppendRow(table.Row{"Default for", strings.Join(details.DefaultFor, ", ")})
	}
	if len(details.Dependents) > 0 {
		t.AppendRow(table.Row{"Dependents", strings.Join(details.Dependents, ", ")})
	}
	if len(details.Config) > 0 {
		t.AppendRow(table.Row{"Config", string(details.Config)})
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return buf.Bytes()
}
