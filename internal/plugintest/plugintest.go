// Package plugintest provides in-memory loaders and on-disk fixtures for
// exercising plugin discovery and lifecycle code without building real
// shared objects.
package plugintest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"plughost.software/plughost/loader"
	"plughost.software/plughost/manager/contracts"
	"plughost.software/plughost/manager/types"
)

// AnimalInterface is the interface contract the fixtures implement.
const AnimalInterface = "plughost.test.Animal/1.0"

// Meta builds a minimal valid Metadata on the Animal interface.
func Meta(name string, deps ...string) types.Metadata {
	return types.Metadata{
		Name:         name,
		Interface:    AnimalInterface,
		Version:      1,
		Dependencies: deps,
	}
}

// Table builds an entry point table on the Animal interface whose factory
// hands out payload.
func Table(payload any) *contracts.Table {
	return &contracts.Table{
		Version:   contracts.Version,
		Interface: AnimalInterface,
		New: func() (any, error) {
			return payload, nil
		},
	}
}

// Loader is an in-memory loader.Loader. Paths are mapped to Modules, every
// Open is recorded so tests can assert how often a module was (re)opened.
type Loader struct {
	Modules  map[string]*Module
	OpenErrs map[string]error
	Opens    []string

	// SuffixValue overrides the reported module suffix, default ".so".
	SuffixValue string
}

func NewLoader() *Loader {
	return &Loader{
		Modules:  map[string]*Module{},
		OpenErrs: map[string]error{},
	}
}

// Add serves table as the module at path, exposing the canonical entry
// point symbols.
func (l *Loader) Add(path string, table contracts.EntryPoints) *Module {
	m := &Module{Symbols: map[string]any{
		loader.SymbolVersion:   table.PluginVersion,
		loader.SymbolInterface: table.PluginInterface,
		loader.SymbolNew:       table.CreateInstance,
	}}
	if init, ok := table.(contracts.Initializer); ok {
		m.Symbols[loader.SymbolInit] = init.Initialize
	}
	if fini, ok := table.(contracts.Finalizer); ok {
		m.Symbols[loader.SymbolFini] = fini.Finalize
	}
	l.Modules[path] = m
	return m
}

func (l *Loader) Open(path string) (loader.Module, error) {
	l.Opens = append(l.Opens, path)
	if err := l.OpenErrs[path]; err != nil {
		return nil, err
	}
	m, ok := l.Modules[path]
	if !ok {
		return nil, fmt.Errorf("no module registered at %s", path)
	}
	return m, nil
}

func (l *Loader) Suffix() string {
	if l.SuffixValue != "" {
		return l.SuffixValue
	}
	return ".so"
}

// Module is one fake loaded module. Closed counts Close calls, CloseErr
// makes them fail.
type Module struct {
	Symbols  map[string]any
	Closed   int
	CloseErr error
}

func (m *Module) Lookup(name string) (any, error) {
	sym, ok := m.Symbols[name]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", name)
	}
	return sym, nil
}

func (m *Module) Close() error {
	m.Closed++
	return m.CloseErr
}

// Host is a ready-to-scan plugin setup, a directory of module files and
// descriptors with an in-memory loader serving the entry point tables.
type Host struct {
	Dir    string
	Loader *Loader
}

func NewHost(t *testing.T) *Host {
	t.Helper()
	return &Host{Dir: t.TempDir(), Loader: NewLoader()}
}

// AddPlugin drops a module file and descriptor for meta into the host
// directory and serves table for it. Returns the module path.
func (h *Host) AddPlugin(t *testing.T, meta types.Metadata, table contracts.EntryPoints) string {
	t.Helper()
	WriteDescriptor(t, h.Dir, meta)
	path := WriteModule(t, h.Dir, meta.Name, h.Loader.Suffix())
	h.Loader.Add(path, table)
	return path
}

// WriteDescriptor writes meta as <name>.plugin.yaml into dir.
func WriteDescriptor(t *testing.T, dir string, meta types.Metadata) string {
	t.Helper()
	raw, err := yaml.Marshal(meta)
	require.NoError(t, err)
	path := filepath.Join(dir, meta.Name+types.DescriptorSuffix)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

// WriteModule drops an empty module file for name into dir. The content
// never matters, fake loaders go by path.
func WriteModule(t *testing.T, dir, name, suffix string) string {
	t.Helper()
	path := filepath.Join(dir, name+suffix)
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o600))
	return path
}

// Recorder collects lifecycle events so tests can assert hook ordering.
type Recorder struct {
	Events []string
}

// Init returns an initialize hook recording "init:<name>".
func (r *Recorder) Init(name string) func() error {
	return func() error {
		r.Events = append(r.Events, "init:"+name)
		return nil
	}
}

// Fini returns a finalize hook recording "fini:<name>".
func (r *Recorder) Fini(name string) func() error {
	return func() error {
		r.Events = append(r.Events, "fini:"+name)
		return nil
	}
}
