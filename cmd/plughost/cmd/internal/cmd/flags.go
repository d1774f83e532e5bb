// Package cmd holds flag names and defaults shared across the plughost
// command tree.
package cmd

const (
	// PluginDirectoryFlag names the directory scanned for plugin candidates.
	PluginDirectoryFlag = "plugin-dir"

	// SuffixFlag lists accepted module file suffixes in priority order.
	SuffixFlag = "suffix"

	// InterfaceFlag is the interface contract the host manages. It is only
	// consulted when plugins are actually loaded, inspection commands work
	// without it.
	InterfaceFlag = "interface"
)
