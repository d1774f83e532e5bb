package manager

import (
	"context"
	"fmt"
)

// Instance is a handle to one object created by a plugin's factory. It pins
// the plugin: while any Instance is alive its plugin refuses to unload.
// Close releases the pin, the zero-value payload rules are up to the plugin.
type Instance struct {
	m      *Manager
	id     EntryID
	plugin string
	value  any

	closed bool
}

// Plugin returns the primary name of the plugin this instance came from.
func (i *Instance) Plugin() string {
	return i.plugin
}

// Value returns the object the plugin factory produced.
func (i *Instance) Value() any {
	return i.value
}

// Close releases the instance's pin on its plugin. Closing twice is a
// no-op, as is closing after the manager itself went away.
func (i *Instance) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.m.releaseInstance(i.id)
	return nil
}

// Instantiate asks the named plugin's factory for a fresh object and wraps
// it in an Instance. The plugin has to be Loaded.
func (m *Manager) Instantiate(ctx context.Context, name string) (*Instance, error) {
	if m.closed {
		return nil, ErrClosed
	}

	id, ok := m.lookup(name)
	if !ok {
		return nil, &StateError{Plugin: name, State: NotFound}
	}
	e := m.entries[id]
	if e.state != Loaded {
		return nil, &StateError{Plugin: e.meta.Name, State: e.state}
	}

	value, err := e.table.CreateInstance()
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate plugin %s: %w", e.meta.Name, err)
	}

	e.instances++
	logr(ctx).DebugContext(ctx, "instantiated plugin", "plugin", e.meta.Name, "instances", e.instances)
	return &Instance{m: m, id: id, plugin: e.meta.Name, value: value}, nil
}

// LoadAndInstantiate loads the named plugin if needed and instantiates it.
func (m *Manager) LoadAndInstantiate(ctx context.Context, name string) (*Instance, error) {
	if _, err := m.Load(ctx, name); err != nil {
		return nil, err
	}
	return m.Instantiate(ctx, name)
}

// InstanceAs unwraps the instance payload as T.
func InstanceAs[T any](i *Instance) (T, error) {
	value, ok := i.value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("plugin %s produced %T, not the requested type", i.plugin, i.value)
	}
	return value, nil
}

// releaseInstance drops one pin. After Close the counters are gone along
// with everything else, so a late release is a no-op.
func (m *Manager) releaseInstance(id EntryID) {
	if m.closed {
		return
	}
	e := m.entries[id]
	if e.instances > 0 {
		e.instances--
	}
}
