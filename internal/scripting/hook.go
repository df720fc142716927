package scripting

import (
	"fmt"

	"github.com/l1jgo/courier/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
)

// Codec moves a message across the Lua boundary. Decode receives the table
// the script returned and the message as it was before the call.
type Codec[M any] struct {
	Encode func(msg M) map[string]any
	Decode func(fields map[string]any, prev M) M
}

// Hook extends component C with a read handler for M that calls the global
// Lua function fn as fn(msg, ctx). ctx carries entity (string form of the
// owner), despawn() and cancel(). If fn returns a table it becomes the next
// message; any other return leaves the message unchanged.
func Hook[C, M any](e *Engine, w *ecs.World, fn string, codec Codec[M]) error {
	if !e.HasFunction(fn) {
		return fmt.Errorf("hook %s: %w", fn, ErrFunctionNotFound)
	}
	return ecs.ExtendComponent(w, func(b *ecs.HandlerBuilder[C]) {
		ecs.HandleRead(b, func(_ *C, msg M, owner ecs.EntityID, acc *ecs.Access) (M, error) {
			return callHook(e, fn, codec, msg, owner, acc)
		})
	})
}

func callHook[M any](e *Engine, name string, codec Codec[M], msg M, owner ecs.EntityID, acc *ecs.Access) (M, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	L := e.vm
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return msg, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}

	ctx := L.NewTable()
	ctx.RawSetString("entity", lua.LString(owner.String()))
	ctx.RawSetString("despawn", L.NewFunction(func(*lua.LState) int {
		acc.LazyDespawn(owner)
		return 0
	}))
	ctx.RawSetString("cancel", L.NewFunction(func(*lua.LState) int {
		acc.Cancel()
		return 0
	}))

	ret, err := e.callLocked(fn, toTable(L, codec.Encode(msg)), ctx)
	if err != nil {
		return msg, fmt.Errorf("lua %s: %w", name, err)
	}
	if t, ok := ret.(*lua.LTable); ok {
		return codec.Decode(fromTable(t), msg), nil
	}
	return msg, nil
}
