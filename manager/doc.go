// Package manager provides discovery, dependency resolution and lifecycle
// management for in-process plugins sharing one interface contract.
//
// When working with plugins through this package, it is important to
// understand the following concepts:
//   - Plugin: a module file on disk (or a compiled-in static registration)
//     together with its metadata descriptor. Plugins are identified by a
//     unique primary name and may additionally be requestable under alias
//     names they provide.
//   - Manager: the registry of every known plugin for one interface. It
//     discovers candidates, resolves dependencies, drives the load and
//     unload state machine and tracks instance counts.
//   - LoadState: where a plugin currently is in its lifecycle. Besides the
//     NotLoaded/Loading/Loaded/Unloading transitions the state records why
//     the last transition failed, and failure states are always retryable.
//   - Instance: a handle to one object produced by a loaded plugin's
//     factory. Alive instances pin their plugin, which then refuses to
//     unload until every handle is closed.
//
// A plugin candidate is a module file next to a <name>.plugin.yaml
// descriptor naming the plugin, the interface it implements and the plugins
// it depends on. Loading a plugin loads its transitive dependencies first,
// in a deterministic order, and a failure anywhere rolls back everything
// the call brought up. Static plugins registered via RegisterStatic take
// part in the same registry and are loaded when the manager is constructed.
//
// The typical flow is to construct a manager for an interface, point it at
// a plugin directory and load what the host needs:
//
//	ctx := context.Background()
//	pm, err := manager.New(ctx, "example.com.Codec/1.0",
//		manager.WithDirectory("/usr/lib/host/codecs"))
//	if err != nil {
//		return err
//	}
//	defer pm.Close(ctx)
//
//	inst, err := pm.LoadAndInstantiate(ctx, "Zstd")
//	if err != nil {
//		return err
//	}
//	defer inst.Close()
//
//	codec, err := manager.InstanceAs[Codec](inst)
//
// A Manager is not safe for concurrent use. All operations are synchronous
// and return before anything else can observe a half-made transition, so a
// host sharing one manager across goroutines serializes the calls itself.
package manager
