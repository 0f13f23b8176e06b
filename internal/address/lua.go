package address

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// filterFunc is the global a filter script must define
const filterFunc = "filter_address"

// LuaFilter runs a user script's filter_address(id, lon, lat) for every
// address. A truthy return keeps the address. The Lua state is not safe
// for concurrent use.
type LuaFilter struct {
	L  *lua.LState
	fn lua.LValue
}

// NewLuaFilter loads a filter script from a file
func NewLuaFilter(path string) (*LuaFilter, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load Lua file: %w", err)
	}
	return newLuaFilter(L)
}

// NewLuaFilterString loads a filter script from source
func NewLuaFilterString(code string) (*LuaFilter, error) {
	L := lua.NewState()
	if err := L.DoString(code); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load Lua code: %w", err)
	}
	return newLuaFilter(L)
}

func newLuaFilter(L *lua.LState) (*LuaFilter, error) {
	fn := L.GetGlobal(filterFunc)
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("Lua script must define function %s", filterFunc)
	}
	return &LuaFilter{L: L, fn: fn}, nil
}

// Accept calls filter_address for a.
func (f *LuaFilter) Accept(a *Address) (bool, error) {
	if err := f.L.CallByParam(lua.P{
		Fn:      f.fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(a.ID), lua.LNumber(a.Lon), lua.LNumber(a.Lat)); err != nil {
		return false, fmt.Errorf("lua callback error: %w", err)
	}

	ret := f.L.Get(-1)
	f.L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Close releases Lua resources
func (f *LuaFilter) Close() {
	f.L.Close()
}
