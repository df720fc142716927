package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type total struct{ Sum int }

func TestResourceLifecycle(t *testing.T) {
	w := NewWorld()
	assert.False(t, HasResource[total](w))
	assert.ErrorIs(t, ReadResource(w, func(*total) {}), ErrResourceNotFound)

	_, replaced := InsertResource(w, total{Sum: 1})
	assert.False(t, replaced)
	old, replaced := InsertResource(w, total{Sum: 2})
	assert.True(t, replaced)
	assert.Equal(t, 1, old.Sum)

	require.NoError(t, WriteResource(w, func(r *total) { r.Sum += 3 }))
	got, ok := RemoveResource[total](w)
	assert.True(t, ok)
	assert.Equal(t, 5, got.Sum)
	assert.False(t, HasResource[total](w))
}

func TestResourceAggregatesParallelBroadcast(t *testing.T) {
	w := NewWorld(WithWorkers(8))
	InsertResource(w, total{})
	MustRegisterComponent[counter](w, func(b *HandlerBuilder[counter]) {
		HandleRead(b, func(c *counter, m bump, _ EntityID, acc *Access) (bump, error) {
			return m, WriteResource(acc, func(r *total) { r.Sum += c.N * m.By })
		})
	})
	want := 0
	for i := 1; i <= 500; i++ {
		_, err := w.Spawn(counter{N: i})
		require.NoError(t, err)
		want += i * 2
	}

	require.NoError(t, DispatchToAll(w, bump{By: 2}))
	var sum int
	require.NoError(t, ReadResource(w, func(r *total) { sum = r.Sum }))
	assert.Equal(t, want, sum)
}
