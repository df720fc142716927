package ecs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rabbit struct{}

type mitosis struct{}
type three struct{}

func rabbitWorld(t *testing.T, opts ...Option) *World {
	t.Helper()
	w := NewWorld(opts...)
	require.NoError(t, RegisterComponent[rabbit](w, func(b *HandlerBuilder[rabbit]) {
		HandleRead(b, func(_ *rabbit, msg mitosis, _ EntityID, acc *Access) (mitosis, error) {
			_, err := acc.LazySpawn(rabbit{})
			return msg, err
		})
	}))
	require.NoError(t, ExtendComponent[rabbit](w, func(b *HandlerBuilder[rabbit]) {
		HandleRead(b, func(_ *rabbit, msg three, _ EntityID, acc *Access) (three, error) {
			for range 2 {
				if _, err := acc.LazySpawn(rabbit{}); err != nil {
					return msg, err
				}
			}
			return msg, nil
		})
	}))
	return w
}

func TestRabbitsMultiply(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			w := rabbitWorld(t, WithWorkers(workers))
			_, err := w.Spawn(rabbit{})
			require.NoError(t, err)

			for range 5 {
				require.NoError(t, DispatchToAll(w, mitosis{}))
				w.Finalize()
				require.NoError(t, DispatchToAll(w, three{}))
				w.Finalize()
			}
			assert.Equal(t, 7776, w.Len())
		})
	}
}

func TestLazySpawnIsDeferred(t *testing.T) {
	w := rabbitWorld(t)
	parent, err := w.Spawn(rabbit{})
	require.NoError(t, err)

	_, err = Dispatch(w, parent, mitosis{})
	require.NoError(t, err)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 1, w.Queue().Len())

	// A second broadcast before finalize still only sees the parent.
	require.NoError(t, DispatchToAll(w, mitosis{}))
	assert.Equal(t, 1, w.Len())

	w.Finalize()
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 0, w.Queue().Len())
}

type trace struct{ steps []string }

type first struct{}
type second struct{}

func TestChainOrder(t *testing.T) {
	w := NewWorld()
	step := func(name string) func(*first, trace, EntityID, *Access) (trace, error) {
		return func(_ *first, m trace, _ EntityID, _ *Access) (trace, error) {
			m.steps = append(m.steps, name)
			return m, nil
		}
	}
	MustRegisterComponent[first](w, func(b *HandlerBuilder[first]) {
		HandleRead(b, step("first.a"))
		HandleWrite(b, step("first.b"))
	})
	MustRegisterComponent[second](w, func(b *HandlerBuilder[second]) {
		HandleRead(b, func(_ *second, m trace, _ EntityID, _ *Access) (trace, error) {
			m.steps = append(m.steps, "second")
			return m, nil
		})
	})
	MustExtendComponent[first](w, func(b *HandlerBuilder[first]) {
		HandleRead(b, step("first.ext"))
	})

	e, err := w.Spawn(second{}, first{})
	require.NoError(t, err)

	out, err := Dispatch(w, e, trace{})
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first.a", "first.b", "first.ext"}, out.steps)

	bare, err := w.Spawn()
	require.NoError(t, err)
	out, err = Dispatch(w, bare, trace{steps: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.steps, "no handlers returns the input")
}

type counter struct{ N int }
type bump struct{ By int }

func TestWriteHandlerMutatesAndTransforms(t *testing.T) {
	w := NewWorld()
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleWrite(b, func(c *counter, m bump, _ EntityID, _ *Access) (bump, error) {
			c.N += m.By
			m.By *= 2
			return m, nil
		})
	})
	e, err := w.Spawn(counter{})
	require.NoError(t, err)

	out, err := Dispatch(w, e, bump{By: 3})
	require.NoError(t, err)
	assert.Equal(t, 6, out.By)

	c, err := Get[counter](w, e)
	require.NoError(t, err)
	assert.Equal(t, 3, c.N)
}

func TestDispatchToStaleEntity(t *testing.T) {
	w := NewWorld()
	MustRegisterComponent[counter](w, nil)
	e, err := w.Spawn(counter{})
	require.NoError(t, err)
	require.NoError(t, w.Despawn(e))

	_, err = Dispatch(w, e, bump{})
	assert.True(t, errors.Is(err, ErrStaleEntity))
}

var errRefused = errors.New("refused")

func TestHandlerErrorAbortsChain(t *testing.T) {
	w := NewWorld()
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleRead(b, func(c *counter, m bump, _ EntityID, _ *Access) (bump, error) {
			m.By++
			return m, nil
		})
		HandleRead(b, func(c *counter, m bump, _ EntityID, _ *Access) (bump, error) {
			if c.N < 0 {
				return m, errRefused
			}
			return m, nil
		})
		HandleRead(b, func(c *counter, m bump, _ EntityID, _ *Access) (bump, error) {
			m.By += 100
			return m, nil
		})
	})
	bad, _ := w.Spawn(counter{N: -1})
	good, _ := w.Spawn(counter{N: 1})

	out, err := Dispatch(w, bad, bump{})
	assert.True(t, errors.Is(err, errRefused))
	assert.Equal(t, 1, out.By, "message as of the failing step")

	out, err = Dispatch(w, good, bump{})
	require.NoError(t, err)
	assert.Equal(t, 101, out.By)

	err = DispatchToAll(w, bump{})
	assert.True(t, errors.Is(err, errRefused), "broadcast joins per-entity errors")
}

func TestCancelStopsFold(t *testing.T) {
	w := NewWorld()
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleRead(b, func(c *counter, m bump, _ EntityID, acc *Access) (bump, error) {
			if m.By > 10 {
				acc.Cancel()
			}
			return m, nil
		})
	})
	MustRegisterComponent[tag](w, func(b *HandlerBuilder[tag]) {
		HandleRead(b, func(_ *tag, m bump, _ EntityID, _ *Access) (bump, error) {
			m.By = 0
			return m, nil
		})
	})
	e, err := w.Spawn(counter{}, tag{})
	require.NoError(t, err)

	out, err := Dispatch(w, e, bump{By: 50})
	require.NoError(t, err)
	assert.Equal(t, 50, out.By)

	out, err = Dispatch(w, e, bump{By: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, out.By)
}

type shave struct{ Left int }

func TestQueuedSelfDispatch(t *testing.T) {
	w := NewWorld()
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleWrite(b, func(c *counter, m shave, owner EntityID, acc *Access) (shave, error) {
			c.N++
			if m.Left > 1 {
				QueueDispatch(acc, owner, shave{Left: m.Left - 1})
			}
			return m, nil
		})
	})
	e, err := w.Spawn(counter{})
	require.NoError(t, err)

	_, err = Dispatch(w, e, shave{Left: 1000})
	require.NoError(t, err)
	c, err := Get[counter](w, e)
	require.NoError(t, err)
	assert.Equal(t, 1000, c.N)
}

type ping struct{}
type pong struct{}

type peer struct {
	Next  EntityID
	Pongs int
}

func TestQueuedDispatchAcrossWorkers(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			w := NewWorld(WithWorkers(workers))
			MustRegisterComponent[peer](w, func(b *HandlerBuilder[peer]) {
				HandleWrite(b, func(p *peer, m ping, _ EntityID, acc *Access) (ping, error) {
					time.Sleep(200 * time.Microsecond)
					QueueDispatch(acc, p.Next, pong{})
					return m, nil
				})
				HandleWrite(b, func(p *peer, m pong, _ EntityID, _ *Access) (pong, error) {
					p.Pongs++
					return m, nil
				})
			})

			const n = 64
			ids := make([]EntityID, n)
			for i := range ids {
				id, err := w.Spawn(peer{})
				require.NoError(t, err)
				ids[i] = id
			}
			// each entity queues to one that lands in another worker's chunk
			for i, id := range ids {
				ref, err := Write[peer](w, id)
				require.NoError(t, err)
				ref.Value().Next = ids[(i+n/4+1)%n]
				ref.Release()
			}

			for range 20 {
				require.NoError(t, DispatchToAll(w, ping{}))
			}
			for _, id := range ids {
				p, err := Get[peer](w, id)
				require.NoError(t, err)
				assert.Equal(t, 20, p.Pongs)
			}
		})
	}
}

func TestReentrantWriteIsBorrowConflict(t *testing.T) {
	w := NewWorld()
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleWrite(b, func(c *counter, m shave, owner EntityID, acc *Access) (shave, error) {
			c.N++
			if m.Left > 0 {
				return Dispatch(acc, owner, shave{Left: m.Left - 1})
			}
			return m, nil
		})
	})
	e, err := w.Spawn(counter{})
	require.NoError(t, err)

	_, err = Dispatch(w, e, shave{Left: 1})
	assert.True(t, errors.Is(err, ErrBorrowConflict))
}

func TestNestedDispatchToOtherEntity(t *testing.T) {
	type link struct{ To EntityID }
	w := NewWorld()
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleWrite(b, func(c *counter, m bump, _ EntityID, _ *Access) (bump, error) {
			c.N += m.By
			return m, nil
		})
	})
	MustRegisterComponent[link](w, func(b *HandlerBuilder[link]) {
		HandleRead(b, func(l *link, m bump, _ EntityID, acc *Access) (bump, error) {
			return Dispatch(acc, l.To, m)
		})
	})
	sink, _ := w.Spawn(counter{})
	src, _ := w.Spawn(link{To: sink})

	_, err := Dispatch(w, src, bump{By: 7})
	require.NoError(t, err)
	c, err := Get[counter](w, sink)
	require.NoError(t, err)
	assert.Equal(t, 7, c.N)
}

func TestStructuralChangeDuringDispatchPanics(t *testing.T) {
	w := NewWorld()
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleRead(b, func(_ *counter, m bump, _ EntityID, _ *Access) (bump, error) {
			_, _ = w.Spawn(counter{})
			return m, nil
		})
	})
	e, err := w.Spawn(counter{})
	require.NoError(t, err)

	assert.Panics(t, func() { _, _ = Dispatch(w, e, bump{}) })
	assert.NotPanics(t, func() { w.Finalize() }, "dispatch depth unwinds on panic")
}
