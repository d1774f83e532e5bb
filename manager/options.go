package manager

import (
	"plughost.software/plughost/loader"
)

// Options configure a Manager at construction.
type Options struct {
	// Directory is scanned for dynamic plugin candidates. Empty means no
	// dynamic discovery.
	Directory string

	// Suffixes are the module file suffixes accepted during discovery, in
	// priority order. Defaults to the loader's platform suffix.
	Suffixes []string

	// Loader opens dynamic modules. Defaults to loader.Go().
	Loader loader.Loader

	statics    []StaticRegistration
	staticsSet bool
}

// Option mutates Options.
type Option func(*Options)

// WithDirectory sets the directory scanned for dynamic plugin candidates.
func WithDirectory(dir string) Option {
	return func(o *Options) {
		o.Directory = dir
	}
}

// WithSuffixes sets the accepted module file suffixes in priority order.
func WithSuffixes(suffixes ...string) Option {
	return func(o *Options) {
		o.Suffixes = suffixes
	}
}

// WithLoader sets the loader used to open dynamic modules.
func WithLoader(l loader.Loader) Option {
	return func(o *Options) {
		o.Loader = l
	}
}

// WithStaticPlugins replaces the process-wide static registration snapshot
// the manager would otherwise consume. Passing no registrations yields a
// manager without static plugins.
func WithStaticPlugins(regs ...StaticRegistration) Option {
	return func(o *Options) {
		o.statics = regs
		o.staticsSet = true
	}
}
