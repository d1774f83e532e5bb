// Package loader abstracts the platform primitive for dynamic plugins: open
// a loadable module by path, resolve a named entry point, close it. The
// manager only ever talks to the Loader and Module interfaces, so hosts can
// swap the platform implementation and tests can load plugins without
// touching the filesystem.
package loader

import (
	"errors"
	"fmt"

	"plughost.software/plughost/manager/contracts"
)

// Well-known entry point symbols resolved from every opened module. The
// first three are required, the lifecycle hooks are optional.
const (
	SymbolVersion   = "PluginVersion"    // func() uint32
	SymbolInterface = "PluginInterface"  // func() string
	SymbolNew       = "CreateInstance"   // func() (any, error)
	SymbolInit      = "InitializePlugin" // func() error
	SymbolFini      = "FinalizePlugin"   // func() error
)

// Loader opens loadable modules.
type Loader interface {
	// Open loads the module at path.
	Open(path string) (Module, error)

	// Suffix returns the file name suffix of modules this loader can open,
	// including the leading dot.
	Suffix() string
}

// Module is one opened module.
type Module interface {
	// Lookup resolves an exported symbol by name.
	Lookup(name string) (any, error)

	// Close releases the module. Whether the binary is actually unmapped is
	// up to the platform.
	Close() error
}

var (
	// ErrSymbolNotFound marks a required entry point symbol missing from a
	// module.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrSymbolType marks an entry point symbol that resolved to an
	// unexpected type.
	ErrSymbolType = errors.New("symbol has unexpected type")
)

// SymbolError reports exactly which entry point of which module could not be
// resolved, so a broken plugin build is diagnosable from the error alone.
type SymbolError struct {
	Path   string
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("module %s: symbol %s: %v", e.Path, e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() error {
	return e.Err
}

// ResolveEntryPoints resolves the well-known entry point symbols of an opened
// module into the same contract statically registered plugins implement. The
// version and interface entry points are invoked once here, the factory and
// lifecycle hooks stay callable for the lifetime of the module.
func ResolveEntryPoints(path string, mod Module) (contracts.EntryPoints, error) {
	version, err := lookupFunc[func() uint32](path, mod, SymbolVersion, true)
	if err != nil {
		return nil, err
	}
	iface, err := lookupFunc[func() string](path, mod, SymbolInterface, true)
	if err != nil {
		return nil, err
	}
	factory, err := lookupFunc[func() (any, error)](path, mod, SymbolNew, true)
	if err != nil {
		return nil, err
	}
	initHook, err := lookupFunc[func() error](path, mod, SymbolInit, false)
	if err != nil {
		return nil, err
	}
	finiHook, err := lookupFunc[func() error](path, mod, SymbolFini, false)
	if err != nil {
		return nil, err
	}

	return contracts.Table{
		Version:   version(),
		Interface: iface(),
		New:       factory,
		Init:      initHook,
		Fini:      finiHook,
	}, nil
}

// lookupFunc resolves symbol name to a function of type F. Modules may
// export the entry point as a func declaration or as a package-level func
// variable, in which case Lookup yields a pointer.
func lookupFunc[F any](path string, mod Module, name string, required bool) (F, error) {
	var zero F

	sym, err := mod.Lookup(name)
	if err != nil {
		if !required {
			return zero, nil
		}
		return zero, &SymbolError{Path: path, Symbol: name, Err: fmt.Errorf("%w: %w", ErrSymbolNotFound, err)}
	}

	fn, ok := sym.(F)
	if !ok {
		pfn, ok := sym.(*F)
		if !ok {
			return zero, &SymbolError{Path: path, Symbol: name, Err: fmt.Errorf("%w: %T", ErrSymbolType, sym)}
		}
		fn = *pfn
	}

	return fn, nil
}
