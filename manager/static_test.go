package manager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"plughost.software/plughost/internal/plugintest"
)

func TestRegisterStatic(t *testing.T) {
	t.Cleanup(resetStaticRegistrations)

	r := require.New(t)

	r.NoError(RegisterStatic(StaticRegistration{
		Meta:  plugintest.Meta("Builtin"),
		Table: plugintest.Table("builtin"),
	}))

	t.Run("invalid metadata is refused", func(t *testing.T) {
		err := RegisterStatic(StaticRegistration{
			Meta:  plugintest.Meta("8ball"),
			Table: plugintest.Table(nil),
		})
		require.ErrorContains(t, err, "invalid plugin name")
	})

	t.Run("a table is mandatory", func(t *testing.T) {
		err := RegisterStatic(StaticRegistration{Meta: plugintest.Meta("Empty")})
		require.ErrorContains(t, err, "entry point table")
	})

	t.Run("the snapshot is a copy", func(t *testing.T) {
		regs := StaticRegistrations()
		require.Len(t, regs, 1)
		regs[0].Meta.Name = "Mutated"
		require.Equal(t, "Builtin", StaticRegistrations()[0].Meta.Name)
	})

	t.Run("managers pick up the global table", func(t *testing.T) {
		m, err := New(t.Context(), plugintest.AnimalInterface)
		require.NoError(t, err)
		require.Equal(t, []string{"Builtin"}, m.Plugins())
		require.True(t, m.IsStatic("Builtin"))
		require.Equal(t, Loaded, m.State("Builtin"), "statics are loaded at construction")
	})

	t.Run("the snapshot is taken at construction", func(t *testing.T) {
		m, err := New(t.Context(), plugintest.AnimalInterface)
		require.NoError(t, err)

		require.NoError(t, RegisterStatic(StaticRegistration{
			Meta:  plugintest.Meta("Latecomer"),
			Table: plugintest.Table(nil),
		}))
		require.Equal(t, []string{"Builtin"}, m.Plugins(), "registrations after construction stay invisible")
	})
}

func TestMustRegisterStaticPanics(t *testing.T) {
	t.Cleanup(resetStaticRegistrations)

	require.Panics(t, func() {
		MustRegisterStatic(StaticRegistration{Meta: plugintest.Meta("Broken")})
	})
}

func TestManagerStaticLifecycle(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	rec := &plugintest.Recorder{}
	table := plugintest.Table("builtin")
	table.Init = rec.Init("Builtin")
	table.Fini = rec.Fini("Builtin")

	m, err := New(ctx, plugintest.AnimalInterface, WithStaticPlugins(StaticRegistration{
		Meta:  plugintest.Meta("Builtin"),
		Table: table,
	}))
	r.NoError(err)

	r.Equal(Loaded, m.State("Builtin"))
	r.Equal([]string{"init:Builtin"}, rec.Events)

	state, err := m.Unload(ctx, "Builtin")
	r.ErrorIs(err, ErrRequired)
	r.ErrorContains(err, "is static")
	r.Equal(Required, state)
	r.Equal(Loaded, m.State("Builtin"))

	inst, err := m.Instantiate(ctx, "Builtin")
	r.NoError(err)
	r.Equal("builtin", inst.Value())
	r.NoError(inst.Close())

	// Close finalizes statics but they keep their entry point tables.
	r.NoError(m.Close(ctx))
	r.Equal([]string{"init:Builtin", "fini:Builtin"}, rec.Events)
	r.Equal(Loaded, m.State("Builtin"))
}

func TestManagerStaticLoadFailureIsTolerated(t *testing.T) {
	r := require.New(t)
	ctx := t.Context()

	table := plugintest.Table(nil)
	table.Init = func() error { return errors.New("no hardware") }

	m, err := New(ctx, plugintest.AnimalInterface, WithStaticPlugins(StaticRegistration{
		Meta:  plugintest.Meta("Probe"),
		Table: table,
	}))
	r.NoError(err, "a static plugin failing to load must not fail construction")
	r.Equal(LoadFailed, m.State("Probe"))

	// The failure is retryable like any other.
	table.Init = nil
	state, err := m.Load(ctx, "Probe")
	r.NoError(err)
	r.Equal(Loaded, state)
}

func TestManagerStaticDuplicateRegistration(t *testing.T) {
	r := require.New(t)

	m, err := New(t.Context(), plugintest.AnimalInterface, WithStaticPlugins(
		StaticRegistration{Meta: plugintest.Meta("Twin"), Table: plugintest.Table("first")},
		StaticRegistration{Meta: plugintest.Meta("Twin"), Table: plugintest.Table("second")},
	))
	r.NoError(err)

	r.Equal([]string{"Twin"}, m.Plugins())
	skipped := m.Skipped()
	r.Len(skipped, 1)
	r.ErrorIs(skipped[0].Err, ErrDuplicatePlugin)

	inst, err := m.Instantiate(t.Context(), "Twin")
	r.NoError(err)
	r.Equal("first", inst.Value(), "the first registrant keeps the name")
	r.NoError(inst.Close())
}
