package scripting_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/stash/internal/inventory"
	"github.com/cory-johannsen/stash/internal/scripting"
)

func newTestManager(t testing.TB, s *inventory.Store, opts ...scripting.Option) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	opts = append([]scripting.Option{scripting.WithLogger(zap.New(core))}, opts...)
	m := scripting.NewManager(s, opts...)
	t.Cleanup(m.Close)
	return m, logs
}

func writeLua(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

// recorder keeps every on_container_changed call in the seen table.
const recorder = `
seen = {}
function on_container_changed(id, exists)
	table.insert(seen, id .. ":" .. tostring(exists))
end
function seen_count() return #seen end
function seen_at(i) return seen[i] end
`

func TestManager_LoadDirAndCallHook(t *testing.T) {
	m, _ := newTestManager(t, inventory.NewStore(nil))
	dir := writeLua(t, map[string]string{
		"a.lua":     `function add(a, b) return a + b end`,
		"b.lua":     `function twice(a) return add(a, a) end`,
		"notes.txt": `not lua`,
	})
	n, err := m.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ret, err := m.CallHook("twice", lua.LNumber(4))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(8), ret)
}

func TestManager_LoadDirErrors(t *testing.T) {
	m, _ := newTestManager(t, inventory.NewStore(nil))
	_, err := m.LoadDir(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	dir := writeLua(t, map[string]string{"a.lua": `x = 1`, "b.lua": `function broken(`})
	n, err := m.LoadDir(dir)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_MissingHookIsNoop(t *testing.T) {
	m, _ := newTestManager(t, inventory.NewStore(nil))
	ret, err := m.CallHook("nope")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_AttachCallsHookOnEveryChange(t *testing.T) {
	s := inventory.NewStore(nil)
	m, _ := newTestManager(t, s)
	_, err := m.LoadDir(writeLua(t, map[string]string{"rec.lua": recorder}))
	require.NoError(t, err)

	c, err := s.CreateGrid(2, 2, inventory.WithID("bag"))
	require.NoError(t, err)

	m.Attach()
	m.Attach()
	require.NoError(t, s.AddItem(c, &inventory.Item{ID: "gem", Width: 1, Height: 1, StackSize: inventory.NotStackable}, 0, 0))
	require.True(t, s.DeleteContainer("bag"))

	ret, err := m.CallHook("seen_count")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(2), ret, "changes before Attach are not seen; Attach is idempotent")
	first, _ := m.CallHook("seen_at", lua.LNumber(1))
	second, _ := m.CallHook("seen_at", lua.LNumber(2))
	assert.Equal(t, lua.LString("bag:true"), first)
	assert.Equal(t, lua.LString("bag:false"), second)
	assert.Zero(t, m.Failures())
}

func TestManager_StashModuleQueries(t *testing.T) {
	s := inventory.NewStore(nil)
	c, err := s.CreateGrid(3, 2, inventory.WithID("quiver"))
	require.NoError(t, err)
	require.NoError(t, s.AddItem(c, &inventory.Item{ID: "b", Width: 1, Height: 2, StackSize: inventory.NotStackable}, 2, 0))
	require.NoError(t, s.AddItem(c, &inventory.Item{ID: "a", Width: 1, Height: 1, StackSize: 7}, 0, 0))

	m, _ := newTestManager(t, s)
	_, err = m.LoadDir(writeLua(t, map[string]string{"q.lua": `
function check()
	assert(stash.exists("quiver"))
	assert(not stash.exists("ghost"))
	assert(stash.kind("quiver") == "grid")
	assert(stash.kind("ghost") == nil)
	local ids = stash.items("quiver")
	assert(#ids == 2 and ids[1] == "a" and ids[2] == "b")
	assert(stash.occupant("quiver", 2, 1) == "b")
	assert(stash.occupant("quiver", 1, 1) == "")
	assert(stash.occupant("ghost", 0, 0) == nil)
	assert(stash.stack("quiver", "a") == 7)
	assert(stash.stack("quiver", "zzz") == nil)
	return true
end`}))
	require.NoError(t, err)

	ret, err := m.CallHook("check")
	require.NoError(t, err)
	assert.Equal(t, lua.LTrue, ret)
}

func TestManager_HookFailureIsLoggedAndCounted(t *testing.T) {
	s := inventory.NewStore(nil)
	m, logs := newTestManager(t, s)
	_, err := m.LoadDir(writeLua(t, map[string]string{"bad.lua": `
function on_container_changed(id, exists)
	error("boom " .. id)
end`}))
	require.NoError(t, err)
	m.Attach()

	_, err = s.CreateSocket(inventory.WithID("hand"))
	require.NoError(t, err)
	assert.True(t, s.Has("hand"), "a failing hook never undoes the change")
	assert.Equal(t, 1, m.Failures())
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestManager_InstructionBudgetIsPerCall(t *testing.T) {
	m, _ := newTestManager(t, inventory.NewStore(nil), scripting.WithInstructionLimit(1000))
	_, err := m.LoadDir(writeLua(t, map[string]string{"loop.lua": `
function spin() while true do end end
function ok() return 1 end`}))
	require.NoError(t, err)

	_, err = m.CallHook("spin")
	assert.Error(t, err)
	for range 3 {
		ret, err := m.CallHook("ok")
		require.NoError(t, err)
		assert.Equal(t, lua.LNumber(1), ret)
	}
}

func TestManager_LogWritesInfo(t *testing.T) {
	m, logs := newTestManager(t, inventory.NewStore(nil))
	_, err := m.LoadDir(writeLua(t, map[string]string{"log.lua": `function hello() stash.log("hello from lua") end`}))
	require.NoError(t, err)
	_, err = m.CallHook("hello")
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("hello from lua").Len())
}

func TestManager_CloseDetaches(t *testing.T) {
	s := inventory.NewStore(nil)
	m := scripting.NewManager(s)
	_, err := m.LoadDir(writeLua(t, map[string]string{"rec.lua": recorder}))
	require.NoError(t, err)
	m.Attach()
	m.Close()
	assert.NotPanics(t, func() {
		_, err := s.CreateGrid(1, 1)
		require.NoError(t, err)
	})
}

func TestProperty_HookSeesEveryNotification(t *testing.T) {
	dir := writeLua(t, map[string]string{"rec.lua": recorder})
	rapid.Check(t, func(t *rapid.T) {
		s := inventory.NewStore(nil)
		m := scripting.NewManager(s)
		defer m.Close()
		_, err := m.LoadDir(dir)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		m.Attach()
		notified := 0
		s.SubscribeAll(func(*inventory.Store, inventory.ContainerID) { notified++ })

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 30).Draw(t, "ops")
		for _, op := range ops {
			ids := s.Containers()
			switch {
			case op == 0 || len(ids) == 0:
				if _, err := s.CreateGrid(2, 2); err != nil {
					t.Fatalf("create: %v", err)
				}
			case op == 1:
				c, _ := s.Container(ids[0])
				s.ClearAll(c)
			default:
				s.DeleteContainer(ids[len(ids)-1])
			}
		}
		ret, err := m.CallHook("seen_count")
		if err != nil {
			t.Fatalf("seen_count: %v", err)
		}
		if int(ret.(lua.LNumber)) != notified {
			t.Fatalf("hook saw %v changes, store sent %d", ret, notified)
		}
	})
}

func TestManager_ShippedHooks(t *testing.T) {
	s := inventory.NewStore(nil)
	m, logs := newTestManager(t, s)
	n, err := m.LoadDir(filepath.Join("..", "..", "content", "hooks"))
	require.NoError(t, err)
	require.Positive(t, n)
	m.Attach()

	c, err := s.CreateGrid(2, 2, inventory.WithID("bag"))
	require.NoError(t, err)
	require.NoError(t, s.AddItem(c, &inventory.Item{ID: "gem", Width: 1, Height: 1, StackSize: inventory.NotStackable}, 0, 0))
	s.DeleteContainer("bag")

	assert.Zero(t, m.Failures())
	assert.Equal(t, 1, logs.FilterMessage("container bag (grid) holds 1 items").Len())
	assert.Equal(t, 1, logs.FilterMessage("container bag removed").Len())
}
