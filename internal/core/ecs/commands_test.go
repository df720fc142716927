package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kill struct{}

func TestLazyDespawnTwiceIsNoop(t *testing.T) {
	w := NewWorld()
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleRead(b, func(_ *counter, m kill, owner EntityID, acc *Access) (kill, error) {
			acc.LazyDespawn(owner)
			acc.LazyDespawn(owner)
			return m, nil
		})
	})
	e, _ := w.Spawn(counter{})
	keep, _ := w.Spawn(counter{N: 99})

	_, err := Dispatch(w, e, kill{})
	require.NoError(t, err)
	assert.True(t, w.Alive(e), "despawn waits for finalize")

	w.Finalize()
	assert.False(t, w.Alive(e))
	assert.True(t, w.Alive(keep))
	assert.Equal(t, 1, w.Len())
}

func TestLazyOpsOnDeadTargetsAreDropped(t *testing.T) {
	w := newTestWorld(t)
	e, _ := w.Spawn(position{})
	require.NoError(t, w.Despawn(e))

	w.LazyDespawn(e)
	require.NoError(t, w.LazyInsert(e, health{1}))
	require.NoError(t, LazyRemove[position](w, e))

	assert.NotPanics(t, w.Finalize)
	assert.Equal(t, 0, w.Len())
}

func TestLazyInsertReplacesAndRemoveDetaches(t *testing.T) {
	w := newTestWorld(t)
	e, _ := w.Spawn(health{1})

	require.NoError(t, w.LazyInsert(e, health{7}))
	require.NoError(t, w.LazyInsert(e, position{2, 2}))
	w.Finalize()

	hp, err := Get[health](w, e)
	require.NoError(t, err)
	assert.Equal(t, 7, hp.HP)
	n, _ := w.LenOf(e)
	assert.Equal(t, 2, n)

	require.NoError(t, LazyRemove[health](w, e))
	require.NoError(t, LazyRemove[tag](w, e))
	w.Finalize()
	assert.False(t, Has[health](w, e))
	assert.True(t, Has[position](w, e))
}

func TestFinalizeRunsInQueueOrder(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.LazySpawn(position{})
	require.NoError(t, err)
	assert.Equal(t, Reserved, w.Liveness(e))

	require.NoError(t, w.LazyInsert(e, tag{}))
	w.LazyDespawn(e)
	require.NoError(t, w.LazyInsert(e, health{}))
	w.Finalize()

	assert.Equal(t, Dead, w.Liveness(e), "spawn, insert, despawn; the last insert is dropped")
	s, _ := StoreOf[health](w)
	assert.Equal(t, 0, s.Len())
}

func TestLazySpawnRejectsUnregistered(t *testing.T) {
	w := newTestWorld(t)
	_, err := w.LazySpawn(position{}, 3.5)
	assert.ErrorIs(t, err, ErrUnregisteredComponent)
	assert.Equal(t, 0, w.Queue().Len())
}

type population struct{ Alive, Born, Died int }

func TestLifecycleCallbacks(t *testing.T) {
	w := NewWorld()
	InsertResource(w, population{})
	var removedOwnerAlive []bool
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		b.OnCreate(func(c *counter, _ EntityID, acc *CallbackAccess) {
			c.N = 1
			_ = WriteResource(acc, func(p *population) { p.Alive++; p.Born++ })
		})
		b.OnRemove(func(c counter, owner EntityID, acc *CallbackAccess) {
			removedOwnerAlive = append(removedOwnerAlive, acc.Alive(owner))
			_ = WriteResource(acc, func(p *population) { p.Alive--; p.Died++ })
		})
		HandleRead(b, func(_ *counter, m kill, owner EntityID, acc *Access) (kill, error) {
			acc.LazyDespawn(owner)
			return m, nil
		})
	})
	MustRegisterComponent[tag](w, nil)

	a, _ := w.Spawn(counter{})
	b, _ := w.Spawn(tag{})
	require.NoError(t, w.Insert(b, counter{}))
	c, _ := w.LazySpawn(counter{})
	w.Finalize()

	got, err := Get[counter](w, a)
	require.NoError(t, err)
	assert.Equal(t, 1, got.N, "OnCreate sees the stored value")

	var pop population
	require.NoError(t, ReadResource(w, func(p *population) { pop = *p }))
	assert.Equal(t, population{Alive: 3, Born: 3}, pop)

	_, _, err = Remove[counter](w, b)
	require.NoError(t, err)
	require.NoError(t, DispatchToAll(w, kill{}))
	w.Finalize()

	require.NoError(t, ReadResource(w, func(p *population) { pop = *p }))
	assert.Equal(t, population{Alive: 0, Born: 3, Died: 3}, pop)
	assert.Equal(t, []bool{true, false, false}, removedOwnerAlive)
	assert.False(t, w.Alive(c))
	assert.True(t, w.Alive(b))
}
