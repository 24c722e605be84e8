package script

import (
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// newState creates a Lua state with only the base, table, string and math
// libraries. io, os, debug and package are never opened.
func newState(label string) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	installSandbox(L, label)
	return L
}

// installSandbox removes the base functions that load code from files or
// strings and routes print to the structured log.
func installSandbox(L *lua.LState, label string) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		slog.Debug("script print", "node", label, "msg", strings.Join(parts, "\t"))
		return 0
	}))
}
