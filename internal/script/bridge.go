package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/roach88/x3drouter/internal/ir"
)

// toLua converts a field value to Lua. Vectors and MF values become
// 1-based array tables; SFNode becomes the node handle or nil.
func toLua(L *lua.LState, v ir.Value) lua.LValue {
	return plainToLua(L, ir.ToPlain(v))
}

func plainToLua(L *lua.LState, p any) lua.LValue {
	switch x := p.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		t := L.CreateTable(len(x), 0)
		for i, item := range x {
			t.RawSetInt(i+1, plainToLua(L, item))
		}
		return t
	default:
		return lua.LNil
	}
}

// fromLua converts a Lua value to the plain form accepted by ir.ValueFrom.
// Tables are read as arrays; non-array keys are ignored.
func fromLua(lv lua.LValue) any {
	return fromLuaVisited(lv, make(map[*lua.LTable]bool))
}

func fromLuaVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		n := v.MaxN()
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			out[i-1] = fromLuaVisited(v.RawGetInt(i), visited)
		}
		return out
	default:
		return nil
	}
}
