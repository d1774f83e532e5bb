package manager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"plughost.software/plughost/internal/plugintest"
	"plughost.software/plughost/manager/contracts"
)

// newManager builds a manager over the host fixture, isolated from the
// process-global static registration table.
func newManager(t *testing.T, h *plugintest.Host, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{
		WithDirectory(h.Dir),
		WithLoader(h.Loader),
		WithStaticPlugins(),
	}, opts...)
	m, err := New(t.Context(), plugintest.AnimalInterface, opts...)
	require.NoError(t, err)
	return m
}

func TestManagerLoadUnloadCycle(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	dogPath := h.AddPlugin(t, plugintest.Meta("Dog"), plugintest.Table("woof"))
	bulldogPath := h.AddPlugin(t, plugintest.Meta("Bulldog", "Dog"), plugintest.Table("grr"))
	m := newManager(t, h)

	r.Equal([]string{"Bulldog", "Dog"}, m.Plugins())
	r.Equal(NotLoaded, m.State("Dog"))
	r.Equal(NotLoaded, m.State("Bulldog"))

	order, err := m.ResolveOrder("Bulldog")
	r.NoError(err)
	r.Equal([]string{"Dog", "Bulldog"}, order)

	state, err := m.Load(ctx, "Bulldog")
	r.NoError(err)
	r.Equal(Loaded, state)
	r.Equal(Loaded, m.State("Dog"))
	r.Equal(Loaded, m.State("Bulldog"))
	r.Equal([]string{"Bulldog"}, m.Dependents("Dog"))

	state, err = m.Unload(ctx, "Dog")
	r.ErrorIs(err, ErrRequired)
	r.ErrorContains(err, "required by Bulldog")
	r.Equal(Required, state)
	r.Equal(Loaded, m.State("Dog"))

	state, err = m.Unload(ctx, "Bulldog")
	r.NoError(err)
	r.Equal(NotLoaded, state)
	r.Equal(Loaded, m.State("Dog"), "unloading a dependent must leave the dependency alone")
	r.Empty(m.Dependents("Dog"))

	state, err = m.Unload(ctx, "Dog")
	r.NoError(err)
	r.Equal(NotLoaded, state)

	r.Equal(1, h.Loader.Modules[dogPath].Closed)
	r.Equal(1, h.Loader.Modules[bulldogPath].Closed)
}

func TestManagerLoadIsIdempotent(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	h.AddPlugin(t, plugintest.Meta("Dog"), plugintest.Table("woof"))
	m := newManager(t, h)

	for range 3 {
		state, err := m.Load(ctx, "Dog")
		r.NoError(err)
		r.Equal(Loaded, state)
	}
	r.Len(h.Loader.Opens, 1, "an already loaded plugin must not be reopened")
}

func TestManagerLoadUnknownName(t *testing.T) {
	r := require.New(t)

	m := newManager(t, plugintest.NewHost(t))

	state, err := m.Load(t.Context(), "Ghost")
	r.ErrorIs(err, ErrNotFound)
	r.Equal(NotFound, state)
	r.Equal(NotFound, m.State("Ghost"))
	r.Nil(m.Metadata("Ghost"))
}

func TestManagerLoadOrder(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	// Diamond: Dalmatian and Collie depend on Akita, Bulldog on both.
	rec := &plugintest.Recorder{}
	h := plugintest.NewHost(t)
	for _, p := range []struct {
		meta string
		deps []string
	}{
		{"Akita", nil},
		{"Collie", []string{"Akita"}},
		{"Dalmatian", []string{"Akita"}},
		{"Bulldog", []string{"Dalmatian", "Collie"}},
	} {
		table := plugintest.Table(p.meta)
		table.Init = rec.Init(p.meta)
		h.AddPlugin(t, plugintest.Meta(p.meta, p.deps...), table)
	}
	m := newManager(t, h)

	order, err := m.ResolveOrder("Bulldog")
	r.NoError(err)
	r.Equal([]string{"Akita", "Dalmatian", "Collie", "Bulldog"}, order,
		"dependencies come first, declaration order breaks ties")
	r.Equal(NotLoaded, m.State("Akita"), "resolving must not load anything")

	_, err = m.Load(ctx, "Bulldog")
	r.NoError(err)
	r.Equal([]string{"init:Akita", "init:Dalmatian", "init:Collie", "init:Bulldog"}, rec.Events)

	r.ElementsMatch([]string{"Dalmatian", "Collie"}, m.Dependents("Akita"))
}

func TestManagerLoadCycle(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	h.AddPlugin(t, plugintest.Meta("Cat", "Mouse"), plugintest.Table(nil))
	h.AddPlugin(t, plugintest.Meta("Mouse", "Cat"), plugintest.Table(nil))
	m := newManager(t, h)

	state, err := m.Load(ctx, "Cat")
	r.ErrorIs(err, ErrCyclicDependency)
	r.ErrorContains(err, "Cat -> Mouse -> Cat")
	r.Equal(CyclicDependency, state)

	// A cycle can never be loaded, so nothing records a failure state.
	r.Equal(NotLoaded, m.State("Cat"))
	r.Equal(NotLoaded, m.State("Mouse"))

	_, err = m.ResolveOrder("Mouse")
	r.ErrorIs(err, ErrCyclicDependency)
}

func TestManagerLoadUnresolvedDependency(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	h.AddPlugin(t, plugintest.Meta("Bulldog", "Dog"), plugintest.Table(nil))
	m := newManager(t, h)

	state, err := m.Load(ctx, "Bulldog")
	r.ErrorIs(err, ErrUnresolvedDependency)
	r.ErrorContains(err, "Bulldog requires Dog")
	r.Equal(UnresolvedDependency, state)
	r.Equal(UnresolvedDependency, m.State("Bulldog"))

	t.Run("unload resets the stored failure", func(t *testing.T) {
		state, err := m.Unload(ctx, "Bulldog")
		require.NoError(t, err)
		require.Equal(t, NotLoaded, state)
		require.Equal(t, NotLoaded, m.State("Bulldog"))
	})

	t.Run("load succeeds once the dependency appears", func(t *testing.T) {
		h.AddPlugin(t, plugintest.Meta("Dog"), plugintest.Table(nil))
		require.NoError(t, m.Rescan(ctx))

		state, err := m.Load(ctx, "Bulldog")
		require.NoError(t, err)
		require.Equal(t, Loaded, state)
		require.Equal(t, Loaded, m.State("Dog"))
	})
}

func TestManagerLoadRejectsMismatchedEntryPoints(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	h.AddPlugin(t, plugintest.Meta("Impostor"), &contracts.Table{
		Version:   contracts.Version,
		Interface: "plughost.test.Mineral/1.0",
	})
	h.AddPlugin(t, plugintest.Meta("Relic"), &contracts.Table{
		Version:   contracts.Version + 41,
		Interface: "plughost.test.Mineral/1.0",
	})
	m := newManager(t, h)

	t.Run("wrong interface", func(t *testing.T) {
		state, err := m.Load(ctx, "Impostor")
		require.ErrorIs(t, err, ErrWrongInterface)
		require.ErrorContains(t, err, "plughost.test.Mineral/1.0")
		require.Equal(t, WrongInterface, state)
		require.Equal(t, WrongInterface, m.State("Impostor"))
	})

	t.Run("wrong version wins over wrong interface", func(t *testing.T) {
		state, err := m.Load(ctx, "Relic")
		require.ErrorIs(t, err, ErrWrongVersion)
		require.ErrorContains(t, err, "42")
		require.Equal(t, WrongVersion, state)
	})

	// Rejected modules are closed again right away.
	for _, mod := range h.Loader.Modules {
		r.Equal(1, mod.Closed)
	}
}

func TestManagerLoadFailureRollsBack(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	rec := &plugintest.Recorder{}
	h := plugintest.NewHost(t)

	akita := plugintest.Table("akita")
	akita.Init = rec.Init("Akita")
	akita.Fini = rec.Fini("Akita")
	h.AddPlugin(t, plugintest.Meta("Akita"), akita)

	beaglePath := h.AddPlugin(t, plugintest.Meta("Beagle", "Akita"), plugintest.Table("beagle"))
	h.AddPlugin(t, plugintest.Meta("Collie", "Beagle"), plugintest.Table("collie"))

	h.Loader.OpenErrs[beaglePath] = errors.New("unresolved symbol in object file")
	m := newManager(t, h)

	state, err := m.Load(ctx, "Collie")
	r.ErrorIs(err, ErrLoadFailed)
	r.ErrorContains(err, "failed to load dependency Beagle of Collie")
	r.Equal(LoadFailed, state, "the reported state belongs to the entry that failed")

	r.Equal(NotLoaded, m.State("Akita"), "dependencies brought up by the failed call are rolled back")
	r.Equal(LoadFailed, m.State("Beagle"))
	r.Equal(NotLoaded, m.State("Collie"), "the requested plugin itself never got as far as Loading")
	r.Equal([]string{"init:Akita", "fini:Akita"}, rec.Events)

	t.Run("failure states are retryable", func(t *testing.T) {
		delete(h.Loader.OpenErrs, beaglePath)

		state, err := m.Load(ctx, "Collie")
		require.NoError(t, err)
		require.Equal(t, Loaded, state)
		require.Equal(t, Loaded, m.State("Akita"))
		require.Equal(t, Loaded, m.State("Beagle"))
	})
}

func TestManagerLoadInitializeHookFailure(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	table := plugintest.Table(nil)
	table.Init = func() error { return errors.New("license check failed") }
	path := h.AddPlugin(t, plugintest.Meta("Grumpy"), table)
	m := newManager(t, h)

	state, err := m.Load(ctx, "Grumpy")
	r.ErrorIs(err, ErrLoadFailed)
	r.ErrorContains(err, "failed to initialize plugin Grumpy")
	r.Equal(LoadFailed, state)
	r.Equal(1, h.Loader.Modules[path].Closed)
}

func TestManagerInstances(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	h.AddPlugin(t, plugintest.Meta("Dog"), plugintest.Table("woof"))
	m := newManager(t, h)

	t.Run("instantiating an unloaded plugin is refused", func(t *testing.T) {
		_, err := m.Instantiate(ctx, "Dog")
		var serr *StateError
		require.ErrorAs(t, err, &serr)
		require.Equal(t, "Dog", serr.Plugin)
		require.Equal(t, NotLoaded, serr.State)
	})

	_, err := m.Load(ctx, "Dog")
	r.NoError(err)

	first, err := m.Instantiate(ctx, "Dog")
	r.NoError(err)
	second, err := m.Instantiate(ctx, "Dog")
	r.NoError(err)
	r.Equal(2, m.InstanceCount("Dog"))
	r.Equal("Dog", first.Plugin())

	bark, err := InstanceAs[string](first)
	r.NoError(err)
	r.Equal("woof", bark)
	_, err = InstanceAs[int](first)
	r.ErrorContains(err, "produced string")

	state, err := m.Unload(ctx, "Dog")
	r.ErrorIs(err, ErrRequired)
	r.ErrorContains(err, "2 alive instance(s)")
	r.Equal(Required, state)
	r.Equal(Loaded, m.State("Dog"))

	r.NoError(first.Close())
	r.NoError(first.Close(), "closing an instance twice is a no-op")
	r.Equal(1, m.InstanceCount("Dog"))

	_, err = m.Unload(ctx, "Dog")
	r.ErrorIs(err, ErrRequired)

	r.NoError(second.Close())
	state, err = m.Unload(ctx, "Dog")
	r.NoError(err)
	r.Equal(NotLoaded, state)
}

func TestManagerInstantiateFactoryFailure(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	h.AddPlugin(t, plugintest.Meta("Flaky"), &contracts.Table{
		Version:   contracts.Version,
		Interface: plugintest.AnimalInterface,
		New:       func() (any, error) { return nil, errors.New("out of juice") },
	})
	m := newManager(t, h)

	_, err := m.Load(ctx, "Flaky")
	r.NoError(err)

	_, err = m.Instantiate(ctx, "Flaky")
	r.ErrorContains(err, "failed to instantiate plugin Flaky")
	r.Equal(0, m.InstanceCount("Flaky"), "a failed factory call must not pin the plugin")

	_, err = m.Unload(ctx, "Flaky")
	r.NoError(err)
}

func TestManagerLoadAndInstantiate(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	h.AddPlugin(t, plugintest.Meta("Dog"), plugintest.Table("woof"))
	h.AddPlugin(t, plugintest.Meta("Bulldog", "Dog"), plugintest.Table("grr"))
	m := newManager(t, h)

	inst, err := m.LoadAndInstantiate(ctx, "Bulldog")
	r.NoError(err)
	r.Equal(Loaded, m.State("Dog"))
	r.Equal("grr", inst.Value())
	r.NoError(inst.Close())

	_, err = m.LoadAndInstantiate(ctx, "Ghost")
	r.ErrorIs(err, ErrNotFound)
}

func TestManagerUnloadFailedIsRetryable(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	path := h.AddPlugin(t, plugintest.Meta("Sticky"), plugintest.Table(nil))
	m := newManager(t, h)

	_, err := m.Load(ctx, "Sticky")
	r.NoError(err)

	h.Loader.Modules[path].CloseErr = errors.New("busy")
	state, err := m.Unload(ctx, "Sticky")
	r.ErrorIs(err, ErrUnloadFailed)
	r.Equal(UnloadFailed, state)
	r.Equal(UnloadFailed, m.State("Sticky"))

	// The handle is kept around exactly so the unload can be retried.
	h.Loader.Modules[path].CloseErr = nil
	state, err = m.Unload(ctx, "Sticky")
	r.NoError(err)
	r.Equal(NotLoaded, state)
	r.Equal(NotLoaded, m.State("Sticky"))
}

func TestManagerUnloadNotLoaded(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	h.AddPlugin(t, plugintest.Meta("Dog"), plugintest.Table(nil))
	m := newManager(t, h)

	state, err := m.Unload(ctx, "Dog")
	r.NoError(err)
	r.Equal(NotLoaded, state)

	state, err = m.Unload(ctx, "Ghost")
	r.ErrorIs(err, ErrNotFound)
	r.Equal(NotFound, state)
}

func TestManagerFinalizeHookFailure(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	h := plugintest.NewHost(t)
	table := plugintest.Table(nil)
	table.Fini = func() error { return errors.New("flush failed") }
	h.AddPlugin(t, plugintest.Meta("Hoarder"), table)
	m := newManager(t, h)

	_, err := m.Load(ctx, "Hoarder")
	r.NoError(err)

	state, err := m.Unload(ctx, "Hoarder")
	r.ErrorIs(err, ErrUnloadFailed)
	r.ErrorContains(err, "failed to finalize plugin Hoarder")
	r.Equal(UnloadFailed, state)
}

func TestManagerClose(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	rec := &plugintest.Recorder{}
	h := plugintest.NewHost(t)

	dog := plugintest.Table("woof")
	dog.Fini = rec.Fini("Dog")
	dogPath := h.AddPlugin(t, plugintest.Meta("Dog"), dog)

	bulldog := plugintest.Table("grr")
	bulldog.Fini = rec.Fini("Bulldog")
	bulldogPath := h.AddPlugin(t, plugintest.Meta("Bulldog", "Dog"), bulldog)

	m := newManager(t, h)
	_, err := m.Load(ctx, "Bulldog")
	r.NoError(err)

	inst, err := m.Instantiate(ctx, "Bulldog")
	r.NoError(err)

	// Close tears everything down even though an instance is still alive.
	r.NoError(m.Close(ctx))
	r.Equal([]string{"fini:Bulldog", "fini:Dog"}, rec.Events, "teardown runs in reverse load order")
	r.Equal(1, h.Loader.Modules[dogPath].Closed)
	r.Equal(1, h.Loader.Modules[bulldogPath].Closed)

	r.NoError(m.Close(ctx), "closing twice is a no-op")
	r.NoError(inst.Close(), "instances outliving the manager turn inert")

	_, err = m.Load(ctx, "Dog")
	r.ErrorIs(err, ErrClosed)
	_, err = m.Unload(ctx, "Dog")
	r.ErrorIs(err, ErrClosed)
	_, err = m.Instantiate(ctx, "Dog")
	r.ErrorIs(err, ErrClosed)
	r.ErrorIs(m.Rescan(ctx), ErrClosed)
	_, err = m.ResolveOrder("Dog")
	r.ErrorIs(err, ErrClosed)
}

func TestManagerAccessors(t *testing.T) {
	r := require.New(t)

	h := plugintest.NewHost(t)
	meta := plugintest.Meta("Bulldog", "Dog")
	meta.Provides = []string{"SmallDog"}
	h.AddPlugin(t, meta, plugintest.Table(nil))
	h.AddPlugin(t, plugintest.Meta("Dog"), plugintest.Table(nil))
	m := newManager(t, h)

	r.Equal(plugintest.AnimalInterface, m.Interface())
	r.Equal(h.Dir, m.Directory())

	got := m.Metadata("SmallDog")
	r.NotNil(got, "aliases resolve for metadata lookups too")
	r.Equal("Bulldog", got.Name)

	// The returned metadata is a copy, mutations must not leak back.
	got.Dependencies[0] = "Wolf"
	r.Equal([]string{"Dog"}, m.Metadata("Bulldog").Dependencies)

	r.False(m.IsStatic("Bulldog"))
	r.Equal(0, m.InstanceCount("Ghost"))
}
