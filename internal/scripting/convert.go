package scripting

import (
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
)

func toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int32:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint32:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case ecs.Entity:
		return lua.LNumber(uint32(v))
	case ecs.Record:
		return mapToLua(L, v)
	case map[string]any:
		return mapToLua(L, v)
	case []any:
		t := L.NewTable()
		for _, x := range v {
			t.Append(toLua(L, x))
		}
		return t
	case []ecs.Entity:
		return entitiesToLua(L, v)
	}
	return lua.LNil
}

func mapToLua[M ~map[string]any](L *lua.LState, m M) *lua.LTable {
	t := L.NewTable()
	for k, x := range m {
		if x == nil {
			continue
		}
		t.RawSetString(k, toLua(L, x))
	}
	return t
}

func entitiesToLua(L *lua.LState, es []ecs.Entity) *lua.LTable {
	t := L.CreateTable(len(es), 0)
	for _, e := range es {
		t.Append(lua.LNumber(uint32(e)))
	}
	return t
}

// fromLua converts integral numbers to int and tables to []any when they are
// pure sequences, map[string]any otherwise.
func fromLua(v lua.LValue) any {
	switch v := v.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return f
	case *lua.LTable:
		if n := v.MaxN(); n > 0 && v.Len() == n && countKeys(v) == n {
			out := make([]any, n)
			for i := 1; i <= n; i++ {
				out[i-1] = fromLua(v.RawGetInt(i))
			}
			return out
		}
		return tableToMap(v)
	}
	return nil
}

func tableToMap(t *lua.LTable) map[string]any {
	out := make(map[string]any)
	t.ForEach(func(k, x lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			out[string(ks)] = fromLua(x)
		}
	})
	return out
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(lua.LValue, lua.LValue) { n++ })
	return n
}
