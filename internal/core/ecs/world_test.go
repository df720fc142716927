package ecs

import (
	"errors"
	"testing"

	"github.com/l1jgo/courier/internal/core/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y int }
type health struct{ HP int }
type tag struct{}

func newTestWorld(t *testing.T, opts ...Option) *World {
	t.Helper()
	w := NewWorld(opts...)
	require.NoError(t, RegisterComponent[position](w, nil))
	require.NoError(t, RegisterComponent[health](w, func(b *HandlerBuilder[health]) {
		b.Name("Health")
	}))
	require.NoError(t, RegisterComponent[tag](w, nil))
	return w
}

func TestSpawnAndQuery(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn(position{1, 2}, health{10})
	require.NoError(t, err)

	assert.Equal(t, 1, w.Len())
	n, err := w.LenOf(e)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pos, err := Get[position](w, e)
	require.NoError(t, err)
	assert.Equal(t, position{1, 2}, pos)
	assert.True(t, Has[health](w, e))
	assert.False(t, Has[tag](w, e))

	_, err = Get[tag](w, e)
	assert.True(t, errors.Is(err, ErrMissingComponent))
}

func TestSpawnRejectsBadInput(t *testing.T) {
	w := newTestWorld(t)

	_, err := w.Spawn(position{}, position{})
	assert.True(t, errors.Is(err, ErrDuplicateComponent))

	_, err = w.Spawn(struct{ Z int }{})
	assert.True(t, errors.Is(err, ErrUnregisteredComponent))

	_, err = w.Spawn(&position{})
	assert.True(t, errors.Is(err, ErrUnregisteredComponent), "pointers are a different type")

	assert.Equal(t, 0, w.Len())
}

func TestWriteRefMutatesStorage(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn(health{10})
	require.NoError(t, err)

	ref, err := Write[health](w, e)
	require.NoError(t, err)
	ref.Value().HP = 3

	_, err = Read[health](w, e)
	assert.True(t, errors.Is(err, ErrBorrowConflict))

	ref.Release()
	ref.Release()

	hp, err := Get[health](w, e)
	require.NoError(t, err)
	assert.Equal(t, 3, hp.HP)
}

func TestDespawnInvalidatesID(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn(position{}, health{1})
	require.NoError(t, err)
	require.NoError(t, w.Despawn(e))

	assert.False(t, w.Alive(e))
	assert.Equal(t, 0, w.Len())
	assert.True(t, errors.Is(w.Despawn(e), ErrStaleEntity))

	_, err = Get[position](w, e)
	assert.True(t, errors.Is(err, ErrStaleEntity))

	s, err := StoreOf[position](w)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len(), "despawn cascades to every store")

	f, err := w.Spawn(tag{})
	require.NoError(t, err)
	assert.Equal(t, e.Index(), f.Index())
	assert.False(t, Has[position](w, f), "recycled slot starts empty")
	n, err := w.LenOf(f)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertRemove(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn(position{})
	require.NoError(t, err)

	require.NoError(t, w.Insert(e, health{4}))
	assert.True(t, errors.Is(w.Insert(e, health{5}), ErrDuplicateComponent))

	hp, ok, err := Remove[health](w, e)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, hp.HP)

	_, ok, err = Remove[health](w, e)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.Despawn(e))
	_, _, err = Remove[health](w, e)
	assert.True(t, errors.Is(err, ErrStaleEntity))
	assert.True(t, errors.Is(w.Insert(e, health{1}), ErrStaleEntity))
}

func TestComponentsOfKeepsInsertionOrder(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn(health{2}, position{3, 4})
	require.NoError(t, err)
	require.NoError(t, w.Insert(e, tag{}))

	vals, err := w.ComponentsOf(e)
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, "Health", vals[0].Name)
	assert.Equal(t, health{2}, vals[0].Value)
	assert.Equal(t, "position", vals[1].Name)
	assert.Equal(t, "tag", vals[2].Name)
}

func TestRegistrationErrors(t *testing.T) {
	w := newTestWorld(t)

	err := RegisterComponent[position](w, nil)
	assert.True(t, errors.Is(err, ErrReRegistration))

	type other struct{}
	err = RegisterComponent[other](w, func(b *HandlerBuilder[other]) { b.Name("Health") })
	assert.True(t, errors.Is(err, ErrDuplicateName))

	err = ExtendComponent[other](w, func(*HandlerBuilder[other]) {})
	assert.True(t, errors.Is(err, ErrUnregisteredComponent))

	err = ExtendComponent[health](w, func(b *HandlerBuilder[health]) {
		b.OnCreate(func(*health, EntityID, *CallbackAccess) {})
	})
	assert.True(t, errors.Is(err, ErrExtensionCallback))

	assert.Panics(t, func() { MustRegisterComponent[position](w, nil) })

	typ, ok := w.ComponentTypeByName("Health")
	require.True(t, ok)
	assert.True(t, w.KnowsComponent(typ))
	assert.Equal(t, []string{"position", "Health", "tag"}, w.ComponentNames())
}

func TestLifecycleEvents(t *testing.T) {
	bus := event.NewBus()
	w := newTestWorld(t, WithEventBus(bus))

	var got []any
	event.Subscribe(bus, func(ev EntitySpawned) { got = append(got, ev) })
	event.Subscribe(bus, func(ev ComponentAttached) { got = append(got, ev) })
	event.Subscribe(bus, func(ev EntityDespawned) { got = append(got, ev) })

	e, err := w.Spawn(position{})
	require.NoError(t, err)
	require.NoError(t, w.Despawn(e))

	bus.SwapBuffers()
	bus.DispatchAll()

	assert.Equal(t, []any{
		EntitySpawned{Entity: e},
		ComponentAttached{Entity: e, Component: "position"},
		EntityDespawned{Entity: e},
	}, got)
}

func TestEach2(t *testing.T) {
	w := newTestWorld(t)
	a, _ := w.Spawn(position{1, 1}, health{1})
	_, _ = w.Spawn(position{2, 2})
	c, _ := w.Spawn(health{3}, position{3, 3})

	sp, err := StoreOf[position](w)
	require.NoError(t, err)
	sh, err := StoreOf[health](w)
	require.NoError(t, err)

	var seen []EntityID
	Each2(sp, sh, func(id EntityID, p *position, h *health) {
		seen = append(seen, id)
		assert.Equal(t, p.X, h.HP)
	})
	assert.ElementsMatch(t, []EntityID{a, c}, seen)
}
