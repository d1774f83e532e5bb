package manager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"plughost.software/plughost/manager/contracts"
	"plughost.software/plughost/manager/types"
)

// ErrDuplicatePlugin marks candidates and registrations that lost a name
// collision and were never installed.
var ErrDuplicatePlugin = errors.New("duplicate plugin name")

// SkippedCandidate records a plugin candidate that did not become a
// registry entry, and why.
type SkippedCandidate struct {
	// Path of the module file. Empty for static registrations.
	Path string
	// Name of the plugin, or the file base name when no descriptor could
	// be read.
	Name string
	// State classifies the reason: WrongMetadataFile for descriptor
	// trouble, NotLoaded for valid candidates shadowed by a collision.
	State LoadState
	// Err carries the diagnostic, wrapping types.ErrWrongMetadataFile or
	// ErrDuplicatePlugin.
	Err error
}

// Skipped lists everything that did not make it into the registry: static
// registrations dropped at construction plus all candidates the latest
// directory scan passed over.
func (m *Manager) Skipped() []SkippedCandidate {
	out := slices.Clone(m.staticSkips)
	return append(out, m.dynamicSkips...)
}

// install appends a fresh entry and wires its primary name. The caller has
// already ruled out collisions.
func (m *Manager) install(meta *types.Metadata, static bool, path string, table contracts.EntryPoints) *entry {
	e := newEntry(EntryID(len(m.entries)), meta)
	e.static = static
	e.path = path
	e.table = table
	m.entries = append(m.entries, e)
	m.byName.Set(meta.Name, e.id)
	return e
}

// installStatics merges the registration snapshot into the registry. The
// first registrant of a name wins, later ones are recorded and dropped.
// Registrations are re-validated since WithStaticPlugins takes them as-is.
func (m *Manager) installStatics(ctx context.Context, regs []StaticRegistration) {
	log := logr(ctx)
	for _, reg := range regs {
		meta := reg.Meta.Clone()
		if err := meta.Validate(); err != nil {
			err = fmt.Errorf("%w: %w", types.ErrWrongMetadataFile, err)
			m.staticSkips = append(m.staticSkips, SkippedCandidate{
				Name: meta.Name, State: WrongMetadataFile, Err: err,
			})
			log.WarnContext(ctx, "dropping invalid static registration", "plugin", meta.Name, "error", err)
			continue
		}
		if reg.Table == nil {
			err := fmt.Errorf("%w: static registration of %s has no entry point table", types.ErrWrongMetadataFile, meta.Name)
			m.staticSkips = append(m.staticSkips, SkippedCandidate{
				Name: meta.Name, State: WrongMetadataFile, Err: err,
			})
			log.WarnContext(ctx, "dropping static registration without entry points", "plugin", meta.Name)
			continue
		}
		if _, taken := m.byName.Get(meta.Name); taken {
			m.staticSkips = append(m.staticSkips, SkippedCandidate{
				Name:  meta.Name,
				State: NotLoaded,
				Err:   fmt.Errorf("%w: static plugin %s is already registered", ErrDuplicatePlugin, meta.Name),
			})
			log.WarnContext(ctx, "duplicate static plugin registration", "plugin", meta.Name)
			continue
		}
		m.install(meta, true, "", reg.Table)
		log.DebugContext(ctx, "registered static plugin", "plugin", meta.Name)
	}
}

// scan discovers the plugin directory and merges the result into the
// registry, replacing the dynamic skip records of any earlier scan.
func (m *Manager) scan(ctx context.Context) error {
	cands, fileSkips, err := m.discoverCandidates(ctx)
	if err != nil {
		return err
	}
	metas, parseErrs, err := parseCandidates(ctx, cands)
	if err != nil {
		return err
	}
	m.dynamicSkips = append(fileSkips, m.installDynamics(ctx, cands, metas, parseErrs)...)
	m.rebuildAliases(ctx)
	return nil
}

// candidate is one module file found in the plugin directory.
type candidate struct {
	base       string
	path       string
	descriptor string
}

// discoverCandidates enumerates module files in the plugin directory. The
// directory listing is sorted and suffix priority breaks base name ties, so
// the result is deterministic across runs and platforms. A missing
// directory means no candidates, any other I/O failure is an error.
func (m *Manager) discoverCandidates(ctx context.Context) ([]candidate, []SkippedCandidate, error) {
	dirents, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		logr(ctx).DebugContext(ctx, "plugin directory does not exist", "dir", m.dir)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read plugin directory %s: %w", m.dir, err)
	}

	type found struct {
		candidate
		priority int
	}
	var order []string
	best := map[string]found{}
	var skipped []SkippedCandidate

	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		for prio, suffix := range m.suffixes {
			base, ok := strings.CutSuffix(de.Name(), suffix)
			if !ok || base == "" {
				continue
			}
			f := found{
				candidate: candidate{
					base:       base,
					path:       filepath.Join(m.dir, de.Name()),
					descriptor: filepath.Join(m.dir, base+types.DescriptorSuffix),
				},
				priority: prio,
			}
			prev, seen := best[base]
			switch {
			case !seen:
				best[base] = f
				order = append(order, base)
			case f.priority < prev.priority:
				skipped = append(skipped, shadowedFile(prev.path, base, f.path))
				best[base] = f
			default:
				skipped = append(skipped, shadowedFile(f.path, base, prev.path))
			}
			break
		}
	}

	cands := make([]candidate, len(order))
	for i, base := range order {
		cands[i] = best[base].candidate
	}
	return cands, skipped, nil
}

func shadowedFile(path, base, winner string) SkippedCandidate {
	return SkippedCandidate{
		Path:  path,
		Name:  base,
		State: NotLoaded,
		Err:   fmt.Errorf("%w: %s is shadowed by %s", ErrDuplicatePlugin, base, winner),
	}
}

// parseCandidates reads the companion descriptors concurrently. Results
// come back indexed by candidate, the bound keeps a large plugin directory
// from fanning out uncontrolled.
func parseCandidates(ctx context.Context, cands []candidate) ([]*types.Metadata, []error, error) {
	metas := make([]*types.Metadata, len(cands))
	errs := make([]error, len(cands))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, c := range cands {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			metas[i], errs[i] = types.ParseMetadataFile(c.descriptor)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("aborted parsing plugin descriptors: %w", err)
	}
	return metas, errs, nil
}

// installDynamics merges parsed candidates into the registry in scan order.
// Candidates without a usable descriptor and candidates whose name is taken
// by an earlier entry are recorded as skipped, they never become loadable.
func (m *Manager) installDynamics(ctx context.Context, cands []candidate, metas []*types.Metadata, parseErrs []error) []SkippedCandidate {
	log := logr(ctx)
	var skipped []SkippedCandidate
	for i, c := range cands {
		if parseErrs[i] != nil {
			skipped = append(skipped, SkippedCandidate{
				Path: c.path, Name: c.base, State: WrongMetadataFile, Err: parseErrs[i],
			})
			log.DebugContext(ctx, "skipping candidate with unusable descriptor", "path", c.path, "error", parseErrs[i])
			continue
		}
		meta := metas[i]
		if prior, taken := m.byName.Get(meta.Name); taken {
			if m.entries[prior].path == c.path {
				// A rescan found the files of an entry that was kept
				// resident, that is not a collision.
				log.DebugContext(ctx, "plugin already registered", "plugin", meta.Name, "path", c.path)
				continue
			}
			winner := m.entries[prior].path
			if m.entries[prior].static {
				winner = "a static registration"
			}
			skipped = append(skipped, SkippedCandidate{
				Path:  c.path,
				Name:  meta.Name,
				State: NotLoaded,
				Err:   fmt.Errorf("%w: %s is shadowed by %s", ErrDuplicatePlugin, meta.Name, winner),
			})
			log.DebugContext(ctx, "skipping shadowed candidate", "path", c.path, "plugin", meta.Name)
			continue
		}
		m.install(meta, false, c.path, nil)
		log.DebugContext(ctx, "discovered plugin", "plugin", meta.Name, "path", c.path)
	}
	return skipped
}

// rebuildAliases recomputes the alias table from the current entries. For
// each alias a unique default-provider claim wins, otherwise the first
// provider in discovery order, and host preferences set via Preferred beat
// both. An alias colliding with a primary name never resolves.
func (m *Manager) rebuildAliases(ctx context.Context) {
	log := logr(ctx)

	providers := map[string][]EntryID{}
	var aliasOrder []string
	for pair := m.byName.Oldest(); pair != nil; pair = pair.Next() {
		e := m.entries[pair.Value]
		for _, alias := range e.meta.Provides {
			if _, seen := providers[alias]; !seen {
				aliasOrder = append(aliasOrder, alias)
			}
			providers[alias] = append(providers[alias], e.id)
		}
	}

	m.byAlias = make(map[string]EntryID, len(providers))
	for _, alias := range aliasOrder {
		if _, taken := m.byName.Get(alias); taken {
			log.WarnContext(ctx, "alias collides with a plugin name and is ignored", "alias", alias)
			continue
		}

		ids := providers[alias]
		chosen, ok := m.preferredProvider(alias, ids)
		if !ok {
			var claimants []EntryID
			for _, id := range ids {
				if m.entries[id].meta.IsDefaultFor(alias) {
					claimants = append(claimants, id)
				}
			}
			switch {
			case len(claimants) == 1:
				chosen = claimants[0]
			case len(claimants) > 1:
				chosen = claimants[0]
				log.WarnContext(ctx, "several plugins claim to be the default provider",
					"alias", alias, "chosen", m.entries[chosen].meta.Name)
			default:
				chosen = ids[0]
				if len(ids) > 1 {
					log.WarnContext(ctx, "no default provider for contested alias",
						"alias", alias, "chosen", m.entries[chosen].meta.Name)
				}
			}
		}
		m.byAlias[alias] = chosen
	}
}

// preferredProvider applies a host preference, first preferred provider
// that actually provides the alias wins.
func (m *Manager) preferredProvider(alias string, ids []EntryID) (EntryID, bool) {
	for _, name := range m.preferred[alias] {
		for _, id := range ids {
			if m.entries[id].meta.Name == name {
				return id, true
			}
		}
	}
	return 0, false
}

// Rescan refreshes the dynamic side of the registry from the plugin
// directory. Static entries and resident dynamic entries are kept exactly
// as they are, every other dynamic entry is dropped, and the directory is
// discovered from scratch. Fresh candidates colliding with a kept entry are
// shadowed as usual. Nothing is loaded or unloaded.
func (m *Manager) Rescan(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	if m.dir == "" {
		return nil
	}

	for pair := m.byName.Oldest(); pair != nil; {
		next := pair.Next()
		e := m.entries[pair.Value]
		if !e.static && !e.resident() {
			m.byName.Delete(pair.Key)
			e.state = NotLoaded
			e.err = nil
		}
		pair = next
	}

	return m.scan(ctx)
}
