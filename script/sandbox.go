package script

import lua "github.com/yuin/gopher-lua"

// applySandbox restricts the state to pure computation. Validators and
// action handlers get string/table/math, not the filesystem or process
// control.
func applySandbox(L *lua.LState) {
	// Remove entry points for loading arbitrary code.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	// Scripts never touch the host system directly; anything effectful
	// goes through a registered Go callback.
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)

	// Prevent require from reaching the disk.
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))
	}
}
