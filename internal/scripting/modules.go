package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/stash/internal/inventory"
)

// RegisterModules defines the read-only stash table in L:
//
//	stash.exists(id)             -> bool
//	stash.kind(id)               -> "grid" | "socket" | nil
//	stash.items(id)              -> sorted array of item ids | nil
//	stash.occupant(id, x, y)     -> item id, "" when empty | nil
//	stash.stack(id, item)        -> stack size | nil
//	stash.log(msg)
//
// nil is returned for unknown containers or items.
func (m *Manager) RegisterModules(L *lua.LState) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"exists":   m.luaExists,
		"kind":     m.luaKind,
		"items":    m.luaItems,
		"occupant": m.luaOccupant,
		"stack":    m.luaStack,
		"log":      m.luaLog,
	})
	L.SetGlobal("stash", mod)
}

func (m *Manager) container(L *lua.LState) (*inventory.Container, bool) {
	return m.store.Container(inventory.ContainerID(L.CheckString(1)))
}

func (m *Manager) luaExists(L *lua.LState) int {
	_, ok := m.container(L)
	L.Push(lua.LBool(ok))
	return 1
}

func (m *Manager) luaKind(L *lua.LState) int {
	c, ok := m.container(L)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(c.Kind().String()))
	return 1
}

func (m *Manager) luaItems(L *lua.LState) int {
	c, ok := m.container(L)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	t := L.NewTable()
	for _, id := range c.ItemIDs() {
		t.Append(lua.LString(id))
	}
	L.Push(t)
	return 1
}

func (m *Manager) luaOccupant(L *lua.LState) int {
	c, ok := m.container(L)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(c.OccupantAt(L.CheckInt(2), L.CheckInt(3))))
	return 1
}

func (m *Manager) luaStack(L *lua.LState) int {
	c, ok := m.container(L)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	it, ok := c.Item(inventory.ItemID(L.CheckString(2)))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(it.StackSize))
	return 1
}

func (m *Manager) luaLog(L *lua.LState) int {
	m.logger.Info(L.CheckString(1), zap.String("source", "lua"))
	return 0
}
