package script

import (
	lua "github.com/yuin/gopher-lua"
)

// dangerousGlobals can load code from disk or strings and are removed.
var dangerousGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"require",
	"module",
	"collectgarbage",
}

// safeModules are the only entries left in package.loaded.
var safeModules = map[string]bool{
	"_G":     true,
	"string": true,
	"table":  true,
	"math":   true,
}

// installSandbox strips globals that escape the interpreter.
func installSandbox(L *lua.LState) {
	for _, name := range dangerousGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return
	}
	L.SetField(pkg, "path", lua.LString(""))
	L.SetField(pkg, "cpath", lua.LString(""))
	loaded, ok := L.GetField(pkg, "loaded").(*lua.LTable)
	if !ok {
		return
	}
	var remove []string
	loaded.ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok && !safeModules[string(ks)] {
			remove = append(remove, string(ks))
		}
	})
	for _, k := range remove {
		loaded.RawSetString(k, lua.LNil)
	}
}
