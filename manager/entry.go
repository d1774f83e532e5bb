package manager

import (
	"plughost.software/plughost/loader"
	"plughost.software/plughost/manager/contracts"
	"plughost.software/plughost/manager/types"
)

// EntryID identifies a registry entry within its manager. Entries live in an
// arena and every cross-reference between them, dependents sets and instance
// backrefs included, is an index into it rather than a pointer.
type EntryID int

// entry is one plugin known to the manager, static or dynamic. Entries are
// created during construction and rescans and stay in the arena for the
// lifetime of the manager.
type entry struct {
	id   EntryID
	meta *types.Metadata

	state LoadState
	// err keeps the diagnostic of the last refused load or unload.
	err error

	static bool
	// path of the module file. Empty for static entries.
	path string

	// module is set while a dynamic entry is resident. table is the
	// resolved entry point surface; static entries carry theirs from
	// registration permanently.
	module loader.Module
	table  contracts.EntryPoints

	// dependents holds the entries whose metadata names this one as a
	// direct dependency and which are currently resident. Membership blocks
	// unload.
	dependents map[EntryID]struct{}

	// instances counts alive payloads handed out by Instantiate.
	instances int
}

func newEntry(id EntryID, meta *types.Metadata) *entry {
	return &entry{
		id:         id,
		meta:       meta,
		dependents: make(map[EntryID]struct{}),
	}
}

// resident reports whether a module handle or static table is live, i.e.
// whether teardown still has work to do for this entry.
func (e *entry) resident() bool {
	return e.state == Loaded || e.state == UnloadFailed
}
