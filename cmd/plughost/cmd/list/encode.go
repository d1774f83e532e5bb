package list

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"sigs.k8s.io/yaml"

	"plughost.software/plughost/manager"
)

// pluginRow is the presentation model of one registry entry.
type pluginRow struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	State        string   `json:"state"`
	Interface    string   `json:"interface"`
	Version      uint32   `json:"version"`
	Dependencies []string `json:"dependencies,omitempty"`
	Provides     []string `json:"provides,omitempty"`
	Path         string   `json:"path,omitempty"`
}

func rowFor(pm *manager.Manager, name string) pluginRow {
	meta := pm.Metadata(name)
	kind := "dynamic"
	if pm.IsStatic(name) {
		kind = "static"
	}
	return pluginRow{
		Name:         meta.Name,
		Kind:         kind,
		State:        pm.State(name).String(),
		Interface:    meta.Interface,
		Version:      meta.Version,
		Dependencies: meta.Dependencies,
		Provides:     meta.Provides,
		Path:         pm.Path(name),
	}
}

func encodeRows(output string, rows []pluginRow) (io.Reader, error) {
	var data []byte
	var err error
	switch output {
	case "json":
		data, err = encodeRowsAsNDJSON(rows)
	case "yaml":
		data, err = encodeRowsAsYAML(rows)
	case "table":
		data, err = encodeRowsAsTable(rows)
	default:
		err = fmt.Errorf("unknown output format: %q", output)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding plugin listing as %q failed: %w", output, err)
	}
	return bytes.NewReader(data), nil
}

// encodeRowsAsNDJSON writes one JSON document per plugin, newline delimited.
func encodeRowsAsNDJSON(rows []pluginRow) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := encoder.Encode(row); err != nil {
			return nil, fmt.Errorf("encoding plugin %s failed: %w", row.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeRowsAsYAML(rows []pluginRow) ([]byte, error) {
	if len(rows) == 1 {
		return yaml.Marshal(rows[0])
	}
	return yaml.Marshal(rows)
}

func encodeRowsAsTable(rows []pluginRow) ([]byte, error) {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"Name", "Kind", "State", "Version", "Provides"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.Name, row.Kind, row.State, row.Version, strings.Join(row.Provides, ", ")})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, AutoMerge: true},
	})
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return buf.Bytes(), nil
}
