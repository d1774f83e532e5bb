//go:build !(linux || darwin || freebsd)

package loader

import "errors"

var errUnsupported = errors.New("dynamic plugin loading is not supported on this platform")

// Go returns a Loader that refuses every open, the runtime has no plugin
// support on this platform. Statically registered plugins keep working.
func Go() Loader {
	return unsupportedLoader{}
}

type unsupportedLoader struct{}

func (unsupportedLoader) Open(string) (Module, error) {
	return nil, errUnsupported
}

func (unsupportedLoader) Suffix() string {
	return ".so"
}
