package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type hello struct{ Name string }
type bye struct{ Name string }

func TestBusDeliversNextTickInEmitOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(ev hello) { got = append(got, "hello "+ev.Name) })
	Subscribe(b, func(ev bye) { got = append(got, "bye "+ev.Name) })

	Emit(b, hello{"a"})
	Emit(b, bye{"a"})
	Emit(b, hello{"b"})
	assert.Equal(t, 3, b.Pending())

	assert.Equal(t, 0, b.DispatchAll(), "nothing visible before the swap")
	assert.Empty(t, got)

	b.SwapBuffers()
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 3, b.DispatchAll())
	assert.Equal(t, []string{"hello a", "bye a", "hello b"}, got)

	b.SwapBuffers()
	assert.Equal(t, 0, b.DispatchAll())
}

func TestHandlersMayEmit(t *testing.T) {
	b := NewBus()
	Subscribe(b, func(ev hello) { Emit(b, bye{ev.Name}) })
	var byes int
	Subscribe(b, func(bye) { byes++ })

	Emit(b, hello{"x"})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 0, byes)
	assert.Equal(t, 1, b.Pending())

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 1, byes)
}
