package manager

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"plughost.software/plughost/loader"
	"plughost.software/plughost/manager/contracts"
)

// Load brings the named plugin and its transitive dependencies to Loaded,
// dependencies first. The name may be a primary name or an alias.
//
// Loading an already loaded plugin is a no-op. On failure nothing stays
// half-loaded: dependencies brought up by this call are torn down again in
// reverse order, and the returned state is the state of the entry the
// failure happened on. A cyclic dependency graph is reported without
// recording a state on any entry, since no participant can ever be loaded
// the registry keeps them NotLoaded. All failure states are retryable, a
// later Load starts over.
func (m *Manager) Load(ctx context.Context, name string) (LoadState, error) {
	if m.closed {
		return NotFound, ErrClosed
	}

	id, ok := m.lookup(name)
	if !ok {
		return NotFound, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e := m.entries[id]
	switch e.state {
	case Loaded:
		return Loaded, nil
	case Loading, Unloading:
		return e.state, fmt.Errorf("plugin %s is mid-transition, manager used concurrently", e.meta.Name)
	}

	order, err := m.resolveOrder(id)
	if err != nil {
		if isCycle(err) {
			return CyclicDependency, fmt.Errorf("%w: %w", ErrCyclicDependency, err)
		}
		e.state = UnresolvedDependency
		e.err = err
		return UnresolvedDependency, err
	}

	txn := &loadTxn{}
	for _, depID := range order {
		if err := m.loadOne(ctx, depID, txn); err != nil {
			m.unwind(ctx, txn)
			failed := m.entries[depID]
			if depID != id {
				err = fmt.Errorf("failed to load dependency %s of %s: %w", failed.meta.Name, e.meta.Name, err)
			}
			return failed.state, err
		}
	}

	// Only now that the whole closure is up are the dependent links made,
	// so unwind never has to unlink anything.
	for _, depID := range order {
		de := m.entries[depID]
		for _, depName := range de.meta.Dependencies {
			target, ok := m.lookup(depName)
			if !ok {
				continue
			}
			m.entries[target].dependents[depID] = struct{}{}
		}
	}

	return Loaded, nil
}

// loadTxn tracks what a single Load call brought up, in load order.
type loadTxn struct {
	completed []EntryID
}

func (t *loadTxn) loaded(id EntryID) {
	t.completed = append(t.completed, id)
}

// loadOne transitions a single entry NotLoaded -> Loading -> Loaded. On
// failure the entry holds the failure state and diagnostic, and nothing of
// the half-made transition survives.
func (m *Manager) loadOne(ctx context.Context, id EntryID, txn *loadTxn) error {
	e := m.entries[id]
	if e.state == Loaded {
		return nil
	}

	e.state = Loading
	e.err = nil

	fail := func(state LoadState, err error) error {
		e.state = state
		e.err = err
		return err
	}

	table := e.table
	var module loader.Module
	if !e.static {
		var err error
		module, err = m.loader.Open(e.path)
		if err != nil {
			return fail(LoadFailed, fmt.Errorf("%w: %w", ErrLoadFailed, err))
		}
		table, err = loader.ResolveEntryPoints(e.path, module)
		if err != nil {
			if cerr := module.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return fail(LoadFailed, fmt.Errorf("%w: %w", ErrLoadFailed, err))
		}
	}

	discard := func() {
		if module != nil {
			if cerr := module.Close(); cerr != nil {
				logr(ctx).ErrorContext(ctx, "failed to close rejected module", "plugin", e.meta.Name, "error", cerr)
			}
		}
	}

	if v := table.PluginVersion(); v != contracts.Version {
		discard()
		return fail(WrongVersion, fmt.Errorf("%w: plugin %s reports entry point version %d, host expects %d",
			ErrWrongVersion, e.meta.Name, v, contracts.Version))
	}
	if iface := table.PluginInterface(); iface != m.iface {
		discard()
		return fail(WrongInterface, fmt.Errorf("%w: plugin %s implements %s, host expects %s",
			ErrWrongInterface, e.meta.Name, iface, m.iface))
	}
	if init, ok := table.(contracts.Initializer); ok {
		if err := init.Initialize(); err != nil {
			discard()
			return fail(LoadFailed, fmt.Errorf("%w: failed to initialize plugin %s: %w", ErrLoadFailed, e.meta.Name, err))
		}
	}

	e.module = module
	e.table = table
	e.state = Loaded
	txn.loaded(id)
	logr(ctx).DebugContext(ctx, "loaded plugin", "plugin", e.meta.Name, "static", e.static)
	return nil
}

// unwind tears down everything the transaction loaded, in reverse order.
// Teardown failures are logged, the entries end up NotLoaded regardless so
// a retry starts from a clean slate.
func (m *Manager) unwind(ctx context.Context, txn *loadTxn) {
	log := logr(ctx)
	for _, id := range slices.Backward(txn.completed) {
		e := m.entries[id]
		if fini, ok := e.table.(contracts.Finalizer); ok {
			if err := fini.Finalize(); err != nil {
				log.ErrorContext(ctx, "failed to finalize plugin during rollback", "plugin", e.meta.Name, "error", err)
			}
		}
		if e.module != nil {
			if err := e.module.Close(); err != nil {
				log.ErrorContext(ctx, "failed to close module during rollback", "plugin", e.meta.Name, "error", err)
			}
			e.module = nil
		}
		if !e.static {
			e.table = nil
		}
		e.state = NotLoaded
		e.err = nil
		log.DebugContext(ctx, "rolled back plugin", "plugin", e.meta.Name)
	}
}

// Unload transitions the named plugin Loaded -> Unloading -> NotLoaded.
//
// Unloading refuses with Required while instances are alive, while loaded
// plugins depend on the entry, and always for static plugins. Unloading a
// plugin that is not loaded succeeds trivially, and resets any stored
// failure state back to NotLoaded. When a finalize hook or the module close
// fails the entry stays in UnloadFailed with the module handle intact, a
// later Unload retries the whole transition.
func (m *Manager) Unload(ctx context.Context, name string) (LoadState, error) {
	if m.closed {
		return NotFound, ErrClosed
	}

	id, ok := m.lookup(name)
	if !ok {
		return NotFound, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e := m.entries[id]

	if e.static {
		return Required, fmt.Errorf("%w: %s is static", ErrRequired, e.meta.Name)
	}

	switch e.state {
	case NotLoaded:
		return NotLoaded, nil
	case Loading, Unloading:
		return e.state, fmt.Errorf("plugin %s is mid-transition, manager used concurrently", e.meta.Name)
	case Loaded, UnloadFailed:
		// Proceed. UnloadFailed keeps the handle around exactly so the
		// transition can be retried.
	default:
		e.state = NotLoaded
		e.err = nil
		return NotLoaded, nil
	}

	if e.instances > 0 {
		return Required, fmt.Errorf("%w: %s has %d alive instance(s)", ErrRequired, e.meta.Name, e.instances)
	}
	if len(e.dependents) > 0 {
		blocker := m.entries[slices.Min(slices.Collect(maps.Keys(e.dependents)))]
		return Required, fmt.Errorf("%w: %s is required by %s", ErrRequired, e.meta.Name, blocker.meta.Name)
	}

	e.state = Unloading

	fail := func(err error) (LoadState, error) {
		e.state = UnloadFailed
		e.err = err
		return UnloadFailed, err
	}

	if fini, ok := e.table.(contracts.Finalizer); ok {
		if err := fini.Finalize(); err != nil {
			return fail(fmt.Errorf("%w: failed to finalize plugin %s: %w", ErrUnloadFailed, e.meta.Name, err))
		}
	}
	if e.module != nil {
		if err := e.module.Close(); err != nil {
			return fail(fmt.Errorf("%w: failed to close module of plugin %s: %w", ErrUnloadFailed, e.meta.Name, err))
		}
		e.module = nil
	}

	e.table = nil
	e.state = NotLoaded
	e.err = nil
	for _, depName := range e.meta.Dependencies {
		if depID, ok := m.lookup(depName); ok {
			delete(m.entries[depID].dependents, id)
		}
	}
	logr(ctx).DebugContext(ctx, "unloaded plugin", "plugin", e.meta.Name)
	return NotLoaded, nil
}

// loadStatics brings every static entry to Loaded in registration order.
// Failures stay recorded on the entries and are logged, construction goes
// on regardless.
func (m *Manager) loadStatics(ctx context.Context) {
	log := logr(ctx)
	for pair := m.byName.Oldest(); pair != nil; pair = pair.Next() {
		e := m.entries[pair.Value]
		if !e.static || e.state == Loaded {
			continue
		}
		if state, err := m.Load(ctx, e.meta.Name); err != nil {
			log.WarnContext(ctx, "failed to load static plugin", "plugin", e.meta.Name, "state", state, "error", err)
		}
	}
}
