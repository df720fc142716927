package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// toTable converts a flat Go map to a Lua table. Nested maps become nested
// tables; unsupported values are dropped.
func toTable(L *lua.LState, m map[string]any) *lua.LTable {
	t := L.NewTable()
	for k, v := range m {
		if lv := toLua(L, v); lv != lua.LNil {
			t.RawSetString(k, lv)
		}
	}
	return t
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case fmt.Stringer:
		return lua.LString(val.String())
	case map[string]any:
		return toTable(L, val)
	default:
		return lua.LNil
	}
}

// fromTable converts a Lua table with string keys to a Go map. Integral
// numbers become int64, other numbers float64.
func fromTable(t *lua.LTable) map[string]any {
	out := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		if gv := fromLua(v); gv != nil {
			out[string(key)] = gv
		}
	})
	return out
}

func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		return fromTable(val)
	default:
		return nil
	}
}

// Int reads an integer field from a converted table, accepting any number.
func Int(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
