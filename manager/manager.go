package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	slogcontext "github.com/veqryn/slog-context"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"plughost.software/plughost/dag"
	"plughost.software/plughost/loader"
	"plughost.software/plughost/manager/contracts"
	"plughost.software/plughost/manager/types"
)

var (
	// ErrNoPluginsFound is reported by hosts when a manager ends up knowing
	// no plugins at all.
	ErrNoPluginsFound = errors.New("no plugins found")

	// ErrClosed is returned for every operation on a closed manager.
	ErrClosed = errors.New("plugin manager is closed")

	// ErrNotFound marks lookups of names no registry entry exists for.
	ErrNotFound = errors.New("plugin not found")

	// ErrWrongInterface marks plugins implementing a different interface
	// than the manager expects.
	ErrWrongInterface = errors.New("wrong plugin interface")

	// ErrWrongVersion marks plugins built against a different entry point
	// contract version.
	ErrWrongVersion = errors.New("wrong plugin version")

	// ErrUnresolvedDependency marks loads refused because a dependency is
	// unknown or failed to load.
	ErrUnresolvedDependency = errors.New("unresolved plugin dependency")

	// ErrCyclicDependency marks loads refused because the dependency graph
	// contains a cycle.
	ErrCyclicDependency = errors.New("cyclic plugin dependency")

	// ErrLoadFailed marks modules that could not be opened, were missing a
	// required entry point, or whose init hook failed.
	ErrLoadFailed = errors.New("plugin load failed")

	// ErrUnloadFailed marks failed finalize hooks or module closes.
	ErrUnloadFailed = errors.New("plugin unload failed")

	// ErrRequired marks unloads refused because the plugin is in use or
	// static.
	ErrRequired = errors.New("plugin is required")
)

// Manager is the registry and lifecycle machine for every plugin of one
// interface contract.
//
// A Manager is not safe for concurrent use. Operations are synchronous,
// bounded by the size of the dependency graph, and atomic with respect to
// the manager's visible state: a failed load rolls back everything it
// brought up. Callers sharing a manager across goroutines serialize access
// themselves.
type Manager struct {
	iface    string
	dir      string
	suffixes []string
	loader   loader.Loader

	// entries is the arena. Slots are never reused or removed, byName and
	// byAlias decide what is reachable.
	entries []*entry
	byName  *orderedmap.OrderedMap[string, EntryID]
	byAlias map[string]EntryID

	// preferred holds host overrides for alias resolution.
	preferred map[string][]string

	staticSkips  []SkippedCandidate
	dynamicSkips []SkippedCandidate

	closed bool
}

// New constructs a Manager expecting plugins that implement iface. The
// static registration snapshot is merged first, then the plugin directory
// (when configured) is discovered, and finally every static entry is brought
// to Loaded. A static plugin that fails to load keeps the failure state on
// its entry and is reported without failing construction.
func New(ctx context.Context, iface string, opts ...Option) (*Manager, error) {
	if iface == "" {
		return nil, errors.New("interface must not be empty")
	}

	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Loader == nil {
		options.Loader = loader.Go()
	}
	if len(options.Suffixes) == 0 {
		options.Suffixes = []string{options.Loader.Suffix()}
	}
	statics := options.statics
	if !options.staticsSet {
		statics = StaticRegistrations()
	}

	m := &Manager{
		iface:     iface,
		dir:       options.Directory,
		suffixes:  slices.Clone(options.Suffixes),
		loader:    options.Loader,
		byName:    orderedmap.New[string, EntryID](),
		byAlias:   map[string]EntryID{},
		preferred: map[string][]string{},
	}

	m.installStatics(ctx, statics)
	if m.dir != "" {
		if err := m.scan(ctx); err != nil {
			return nil, err
		}
	} else {
		m.rebuildAliases(ctx)
	}
	m.loadStatics(ctx)

	return m, nil
}

// lookup resolves a primary name or alias to its entry. Primary names win.
func (m *Manager) lookup(name string) (EntryID, bool) {
	if id, ok := m.byName.Get(name); ok {
		return id, true
	}
	id, ok := m.byAlias[name]
	return id, ok
}

// State reports the load state of the named plugin, NotFound for names the
// manager does not know.
func (m *Manager) State(name string) LoadState {
	id, ok := m.lookup(name)
	if !ok {
		return NotFound
	}
	return m.entries[id].state
}

// Metadata returns a copy of the named plugin's metadata, nil for unknown
// names.
func (m *Manager) Metadata(name string) *types.Metadata {
	id, ok := m.lookup(name)
	if !ok {
		return nil
	}
	return m.entries[id].meta.Clone()
}

// IsStatic reports whether the named plugin is compiled into the host.
func (m *Manager) IsStatic(name string) bool {
	id, ok := m.lookup(name)
	return ok && m.entries[id].static
}

// Path returns the module file path of the named plugin, empty for static
// plugins and unknown names.
func (m *Manager) Path(name string) string {
	id, ok := m.lookup(name)
	if !ok {
		return ""
	}
	return m.entries[id].path
}

// Plugins returns the primary names of all registered plugins in discovery
// order: static registrations first, then dynamic candidates in scan order.
func (m *Manager) Plugins() []string {
	names := make([]string, 0, m.byName.Len())
	for pair := m.byName.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Aliases returns the resolved alias table, every requestable alias mapped
// to the primary name of the plugin it resolves to.
func (m *Manager) Aliases() map[string]string {
	out := make(map[string]string, len(m.byAlias))
	for alias, id := range m.byAlias {
		out[alias] = m.entries[id].meta.Name
	}
	return out
}

// Dependents returns the primary names of the resident plugins directly
// depending on name, in discovery order.
func (m *Manager) Dependents(name string) []string {
	id, ok := m.lookup(name)
	if !ok {
		return nil
	}
	ids := slices.Sorted(maps.Keys(m.entries[id].dependents))
	names := make([]string, len(ids))
	for i, did := range ids {
		names[i] = m.entries[did].meta.Name
	}
	return names
}

// InstanceCount reports how many instances of the named plugin are alive.
func (m *Manager) InstanceCount(name string) int {
	id, ok := m.lookup(name)
	if !ok {
		return 0
	}
	return m.entries[id].instances
}

// Interface returns the interface contract this manager loads plugins for.
func (m *Manager) Interface() string {
	return m.iface
}

// Directory returns the plugin directory, empty when dynamic discovery is
// disabled.
func (m *Manager) Directory() string {
	return m.dir
}

// ResolveOrder returns the names of name and everything it transitively
// depends on in the order Load would bring them up, without loading
// anything: dependencies first, declaration order breaking ties, name
// itself last.
func (m *Manager) ResolveOrder(name string) ([]string, error) {
	if m.closed {
		return nil, ErrClosed
	}
	id, ok := m.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	order, err := m.resolveOrder(id)
	if err != nil {
		if isCycle(err) {
			return nil, fmt.Errorf("%w: %w", ErrCyclicDependency, err)
		}
		return nil, err
	}

	names := make([]string, len(order))
	for i, eid := range order {
		names[i] = m.entries[eid].meta.Name
	}
	return names, nil
}

// Preferred overrides alias resolution: whenever alias is rebuilt, the first
// of the given providers that actually provides it wins, ahead of
// default-provider claims and discovery order. The preference survives
// rescans. Every named provider has to exist and provide the alias.
func (m *Manager) Preferred(ctx context.Context, alias string, providers ...string) error {
	if m.closed {
		return ErrClosed
	}

	provided := false
	for pair := m.byName.Oldest(); pair != nil; pair = pair.Next() {
		if slices.Contains(m.entries[pair.Value].meta.Provides, alias) {
			provided = true
			break
		}
	}
	if !provided {
		return fmt.Errorf("%w: no plugin provides %s", ErrNotFound, alias)
	}

	for _, name := range providers {
		id, ok := m.byName.Get(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if !slices.Contains(m.entries[id].meta.Provides, alias) {
			return fmt.Errorf("plugin %s does not provide %s", name, alias)
		}
	}

	m.preferred[alias] = slices.Clone(providers)
	m.rebuildAliases(ctx)
	return nil
}

// Close tears the manager down: every resident plugin is finalized and
// closed in reverse resolution order regardless of outstanding instance
// counts, the manager going away is the teardown trigger of last resort.
// Static plugins run their finalize hooks but keep their tables. All
// operations are refused afterwards and alive Instances turn inert.
func (m *Manager) Close(ctx context.Context) error {
	if m.closed {
		return nil
	}
	m.closed = true

	order, err := m.teardownOrder()
	if err != nil {
		return err
	}

	log := logr(ctx)
	var errs error
	for _, id := range order {
		e := m.entries[id]
		if fini, ok := e.table.(contracts.Finalizer); ok {
			if err := fini.Finalize(); err != nil {
				errs = errors.Join(errs, fmt.Errorf("failed to finalize plugin %s: %w", e.meta.Name, err))
			}
		}
		if e.module != nil {
			if err := e.module.Close(); err != nil {
				errs = errors.Join(errs, fmt.Errorf("failed to close module of plugin %s: %w", e.meta.Name, err))
			}
			e.module = nil
		}
		if !e.static {
			e.table = nil
			e.state = NotLoaded
		}
		e.instances = 0
		clear(e.dependents)
		log.DebugContext(ctx, "tore down plugin", "plugin", e.meta.Name)
	}
	return errs
}

// teardownOrder is the reverse of a load order covering every resident
// entry, so dependents come down before their dependencies.
func (m *Manager) teardownOrder() ([]EntryID, error) {
	g := dag.NewDirectedAcyclicGraph[EntryID]()
	for _, e := range m.entries {
		if e.resident() {
			if err := g.AddVertex(e.id); err != nil {
				return nil, err
			}
		}
	}
	for _, e := range m.entries {
		if !e.resident() {
			continue
		}
		for _, depName := range e.meta.Dependencies {
			depID, ok := m.lookup(depName)
			if !ok || !m.entries[depID].resident() {
				continue
			}
			if err := g.AddEdge(e.id, depID); err != nil {
				return nil, err
			}
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}

// logr returns the ambient logger with the package realm attached.
func logr(ctx context.Context) *slog.Logger {
	return slogcontext.FromCtx(ctx).With(slog.String("realm", "plughost"))
}
