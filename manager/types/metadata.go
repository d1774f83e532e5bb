// Package types holds the descriptor model shared by the plugin manager, the
// static registration table and the host tooling.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"sigs.k8s.io/yaml"
)

// DescriptorSuffix is appended to a candidate's base name to locate its
// companion descriptor file.
const DescriptorSuffix = ".plugin.yaml"

// ErrWrongMetadataFile marks descriptor files that are missing, unreadable,
// or fail schema or semantic validation. Candidates with such a descriptor
// are skipped by discovery and never become registry entries.
var ErrWrongMetadataFile = errors.New("wrong plugin metadata file")

var identifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Metadata describes a single plugin: its identity, the interface contract it
// implements, what it depends on and under which alternative names it may be
// requested. For dynamic plugins it is decoded from the companion descriptor
// file, for static plugins it is passed to registration directly.
type Metadata struct {
	// Name is the unique primary name of the plugin. For dynamic plugins it
	// must equal the base name of the module and descriptor files.
	Name string `json:"name" jsonschema:"pattern=^[A-Za-z_][A-Za-z0-9_.-]*$"`

	// Interface identifies the contract the plugin implements. A manager
	// only loads plugins whose interface string matches its own.
	Interface string `json:"interface"`

	// Version is the entry point table version the plugin was built against.
	Version uint32 `json:"version"`

	// Dependencies lists plugins that have to be loaded first, each named
	// by primary name or alias. The declaration order is preserved and
	// breaks ties between otherwise independent subtrees during resolution.
	Dependencies []string `json:"dependencies,omitempty"`

	// Provides lists aliases the plugin may be requested under.
	Provides []string `json:"provides,omitempty"`

	// DefaultFor marks the subset of Provides for which the plugin claims to
	// be the default provider when several plugins share an alias.
	DefaultFor []string `json:"defaultFor,omitempty"`

	// Config is an opaque configuration blob handed to the plugin untouched.
	Config json.RawMessage `json:"config,omitempty"`
}

// Validate checks the semantic constraints a descriptor has to satisfy beyond
// its schema: identifier shapes, duplicate-free dependency and alias lists,
// and default-provider claims covered by Provides. All violations are
// reported at once.
func (m *Metadata) Validate() error {
	var errs []error
	if !identifierRegexp.MatchString(m.Name) {
		errs = append(errs, fmt.Errorf("invalid plugin name %q", m.Name))
	}
	if m.Interface == "" {
		errs = append(errs, errors.New("interface must not be empty"))
	}

	deps := make(map[string]struct{}, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		switch {
		case !identifierRegexp.MatchString(dep):
			errs = append(errs, fmt.Errorf("invalid dependency name %q", dep))
		case dep == m.Name:
			errs = append(errs, fmt.Errorf("plugin %q depends on itself", m.Name))
		default:
			if _, dup := deps[dep]; dup {
				errs = append(errs, fmt.Errorf("duplicate dependency %q", dep))
			}
			deps[dep] = struct{}{}
		}
	}

	aliases := make(map[string]struct{}, len(m.Provides))
	for _, alias := range m.Provides {
		switch {
		case !identifierRegexp.MatchString(alias):
			errs = append(errs, fmt.Errorf("invalid alias %q", alias))
		case alias == m.Name:
			errs = append(errs, fmt.Errorf("alias %q duplicates the plugin name", alias))
		default:
			if _, dup := aliases[alias]; dup {
				errs = append(errs, fmt.Errorf("duplicate alias %q", alias))
			}
			aliases[alias] = struct{}{}
		}
	}

	claimed := make(map[string]struct{}, len(m.DefaultFor))
	for _, alias := range m.DefaultFor {
		if _, ok := aliases[alias]; !ok {
			errs = append(errs, fmt.Errorf("default provider claim for %q is not covered by provides", alias))
			continue
		}
		if _, dup := claimed[alias]; dup {
			errs = append(errs, fmt.Errorf("duplicate default provider claim for %q", alias))
		}
		claimed[alias] = struct{}{}
	}

	return errors.Join(errs...)
}

// IsDefaultFor reports whether the plugin claims default-provider status for
// the given alias.
func (m *Metadata) IsDefaultFor(alias string) bool {
	return slices.Contains(m.DefaultFor, alias)
}

// Clone returns a deep copy, so callers can hand out metadata without
// exposing registry internals to mutation.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := *m
	out.Dependencies = slices.Clone(m.Dependencies)
	out.Provides = slices.Clone(m.Provides)
	out.DefaultFor = slices.Clone(m.DefaultFor)
	out.Config = slices.Clone(m.Config)
	return &out
}

// ParseMetadata decodes a single YAML descriptor document and validates it,
// first against the generated JSON Schema and then semantically. Any failure
// wraps ErrWrongMetadataFile.
func ParseMetadata(raw []byte) (*Metadata, error) {
	jsonRaw, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return nil, wrongMetadata(fmt.Errorf("descriptor is not valid YAML: %w", err))
	}
	if err := validateSchema(jsonRaw); err != nil {
		return nil, wrongMetadata(err)
	}
	var meta Metadata
	if err := json.Unmarshal(jsonRaw, &meta); err != nil {
		return nil, wrongMetadata(fmt.Errorf("failed to decode descriptor: %w", err))
	}
	if err := meta.Validate(); err != nil {
		return nil, wrongMetadata(err)
	}
	return &meta, nil
}

// ParseMetadataFile reads and parses the descriptor at path. On top of
// ParseMetadata it requires the declared plugin name to match the descriptor
// base name, so a descriptor cannot claim another candidate's identity.
func ParseMetadataFile(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, wrongMetadata(err)
	}
	meta, err := ParseMetadata(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if base, ok := strings.CutSuffix(filepath.Base(path), DescriptorSuffix); ok && base != meta.Name {
		return nil, fmt.Errorf("%s: %w", path, wrongMetadata(fmt.Errorf("declared name %q does not match descriptor base name %q", meta.Name, base)))
	}
	return meta, nil
}

func wrongMetadata(err error) error {
	return fmt.Errorf("%w: %w", ErrWrongMetadataFile, err)
}
