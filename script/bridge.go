package script

import lua "github.com/yuin/gopher-lua"

// toLua converts a Go value to its Lua representation. Unhandled types
// become nil; setting values are JSON-shaped so this covers them all.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(toLua(L, item))
		}
		return t
	case []string:
		t := L.NewTable()
		for _, item := range val {
			t.Append(lua.LString(item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	default:
		return lua.LNil
	}
}

// toGo converts a Lua value back to a Go value. Tables with contiguous
// integer keys become slices, anything else becomes a string-keyed map.
func toGo(lv lua.LValue) any {
	switch val := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		return tableToGo(val)
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable) any {
	n := t.Len()
	if n > 0 {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, toGo(t.RawGetInt(i)))
		}
		return out
	}
	out := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			out[string(ks)] = toGo(v)
		}
	})
	return out
}
