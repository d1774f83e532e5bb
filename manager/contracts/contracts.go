// Package contracts defines the entry point surface a plugin exposes to the
// host. The same contract is implemented by statically registered plugins and
// by the adapter wrapping symbols resolved from a dynamically opened module,
// which keeps the manager's load path uniform across both.
package contracts

// Version is the entry point contract version this host was compiled
// against. A plugin reporting a different version never gets its factory
// called.
const Version uint32 = 1

// EntryPoints is the resolved entry point table of one plugin.
type EntryPoints interface {
	// PluginVersion returns the entry point contract version the plugin was
	// built against.
	PluginVersion() uint32

	// PluginInterface returns the interface string the plugin implements.
	// A manager only accepts plugins whose interface matches its own.
	PluginInterface() string

	// CreateInstance constructs a fresh instance payload. It is only called
	// while the plugin is loaded.
	CreateInstance() (any, error)
}

// Initializer is the optional one-time setup hook. Initialize runs after all
// dependencies of the plugin are loaded and before the plugin itself is
// visible as loaded.
type Initializer interface {
	Initialize() error
}

// Finalizer is the optional one-time teardown hook. Finalize runs while the
// dependencies of the plugin are still loaded.
type Finalizer interface {
	Finalize() error
}

// Table is the plain-struct form of EntryPoints used by static registrations
// and test fixtures. Nil hooks are treated as absent.
type Table struct {
	// Version reports the entry point contract version, usually the
	// package constant Version.
	Version uint32

	// Interface is the interface string the plugin implements.
	Interface string

	// New constructs an instance payload.
	New func() (any, error)

	// Init and Fini are the optional lifecycle hooks.
	Init func() error
	Fini func() error
}

func (t Table) PluginVersion() uint32 {
	return t.Version
}

func (t Table) PluginInterface() string {
	return t.Interface
}

func (t Table) CreateInstance() (any, error) {
	if t.New == nil {
		return nil, nil
	}
	return t.New()
}

func (t Table) Initialize() error {
	if t.Init == nil {
		return nil
	}
	return t.Init()
}

func (t Table) Finalize() error {
	if t.Fini == nil {
		return nil
	}
	return t.Fini()
}
