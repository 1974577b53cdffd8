package config

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxLuaVM removes every global that reaches outside the VM: command
// execution (os), filesystem access (io), code loading (require, dofile,
// loadfile, load, loadstring) and debug. string, table, math and the basic
// functions stay available.
func sandboxLuaVM(L *lua.LState) {
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)

	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)

	// debug can be used to bypass the sandbox
	L.SetGlobal("debug", lua.LNil)
}

// newSandboxedVM creates a new Lua VM with sandboxing applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize: 256,
		RegistrySize:  1024 * 8,
	})
	sandboxLuaVM(L)
	return L
}
