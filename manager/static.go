package manager

import (
	"fmt"
	"slices"
	"sync"

	"plughost.software/plughost/manager/contracts"
	"plughost.software/plughost/manager/types"
)

// StaticRegistration pairs the metadata of a compiled-in plugin with its
// entry point table.
type StaticRegistration struct {
	Meta  types.Metadata
	Table contracts.EntryPoints
}

var staticTable struct {
	mu   sync.Mutex
	regs []StaticRegistration
}

// RegisterStatic adds a compiled-in plugin to the process-wide registration
// list, typically from an init function of the plugin package. Managers
// constructed afterwards consume a snapshot of the list, managers that
// already exist are not affected.
//
// Two managers consuming the same registration share whatever process-global
// state lives inside the plugin code. That is a property of static linking,
// not something the registry can fence.
func RegisterStatic(reg StaticRegistration) error {
	if err := reg.Meta.Validate(); err != nil {
		return fmt.Errorf("static registration of %q: %w", reg.Meta.Name, err)
	}
	if reg.Table == nil {
		return fmt.Errorf("static registration of %q: entry point table must not be nil", reg.Meta.Name)
	}

	staticTable.mu.Lock()
	defer staticTable.mu.Unlock()
	staticTable.regs = append(staticTable.regs, reg)
	return nil
}

// MustRegisterStatic is RegisterStatic panicking on invalid registrations,
// for use from init functions.
func MustRegisterStatic(reg StaticRegistration) {
	if err := RegisterStatic(reg); err != nil {
		panic(err)
	}
}

// StaticRegistrations returns a snapshot of the process-wide registration
// list in registration order.
func StaticRegistrations() []StaticRegistration {
	staticTable.mu.Lock()
	defer staticTable.mu.Unlock()
	return slices.Clone(staticTable.regs)
}

// resetStaticRegistrations clears the process-wide list. Tests only.
func resetStaticRegistrations() {
	staticTable.mu.Lock()
	defer staticTable.mu.Unlock()
	staticTable.regs = nil
}
