package manager

import "fmt"

// LoadState describes where a plugin is in its lifecycle, or why its last
// load or unload attempt was refused. NotLoaded, Loading, Loaded and
// Unloading are the regular lifecycle states, everything else is a reported
// refusal.
type LoadState int

const (
	// NotLoaded marks a known plugin that is not resident.
	NotLoaded LoadState = iota

	// Loading is the transient state while a load is in progress. It is
	// only observable from plugin lifecycle hooks.
	Loading

	// Loaded marks a resident plugin whose factory can be used.
	Loaded

	// Unloading is the transient state while an unload is in progress.
	Unloading

	// NotFound reports a name no registry entry exists for.
	NotFound

	// WrongMetadataFile classifies discovery candidates whose descriptor
	// was missing or invalid. Such candidates never become registry
	// entries, the value appears in skip diagnostics only.
	WrongMetadataFile

	// WrongInterface reports a plugin implementing a different interface
	// than the manager expects.
	WrongInterface

	// WrongVersion reports a plugin built against a different entry point
	// contract version.
	WrongVersion

	// UnresolvedDependency reports a load refused because a direct or
	// transitive dependency is not known to the manager, or because a
	// dependency failed to load.
	UnresolvedDependency

	// CyclicDependency reports a load refused because the dependency graph
	// contains a cycle. It is returned, never stored: the involved entries
	// keep the state they had.
	CyclicDependency

	// LoadFailed reports a module that could not be opened, was missing a
	// required entry point, or whose init hook failed.
	LoadFailed

	// UnloadFailed reports a failed finalize hook or module close. The
	// module handle stays in place and the unload can be retried.
	UnloadFailed

	// Required reports an unload refused because instances are alive, a
	// resident plugin depends on the entry, or the entry is static.
	Required
)

var loadStateNames = map[LoadState]string{
	NotLoaded:            "NotLoaded",
	Loading:              "Loading",
	Loaded:               "Loaded",
	Unloading:            "Unloading",
	NotFound:             "NotFound",
	WrongMetadataFile:    "WrongMetadataFile",
	WrongInterface:       "WrongInterface",
	WrongVersion:         "WrongVersion",
	UnresolvedDependency: "UnresolvedDependency",
	CyclicDependency:     "CyclicDependency",
	LoadFailed:           "LoadFailed",
	UnloadFailed:         "UnloadFailed",
	Required:             "Required",
}

func (s LoadState) String() string {
	if name, ok := loadStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LoadState(%d)", int(s))
}

// Failed reports whether the state is a refusal rather than a lifecycle
// state.
func (s LoadState) Failed() bool {
	switch s {
	case NotLoaded, Loading, Loaded, Unloading:
		return false
	default:
		return true
	}
}

// StateError reports an operation refused because of the state a plugin is
// in, e.g. instantiating a plugin that is not loaded.
type StateError struct {
	Plugin string
	State  LoadState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("plugin %q in state %s", e.Plugin, e.State)
}
