//go:build linux || darwin || freebsd

package loader

import (
	"errors"
	"fmt"
	"plugin"
)

// Go returns the Loader backed by the runtime's native plugin support.
//
// The Go runtime cannot unmap a loaded module: Close on the returned modules
// only drops the handle, the binary stays resident until the process exits
// and re-opening the same path yields the resident copy again.
func Go() Loader {
	return goLoader{}
}

type goLoader struct{}

func (goLoader) Open(path string) (Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open module %s: %w", path, err)
	}
	return &goModule{path: path, plugin: p}, nil
}

func (goLoader) Suffix() string {
	return ".so"
}

type goModule struct {
	path   string
	plugin *plugin.Plugin
}

func (m *goModule) Lookup(name string) (any, error) {
	if m.plugin == nil {
		return nil, errors.New("module is closed")
	}
	sym, err := m.plugin.Lookup(name)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func (m *goModule) Close() error {
	m.plugin = nil
	return nil
}
