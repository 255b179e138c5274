package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/stash/internal/inventory"
)

// HookContainerChanged is the Lua global called with (id, exists) after every
// container change notification.
const HookContainerChanged = "on_container_changed"

// Manager owns one sandboxed LState bound to a Store.
//
// Manager is not safe for concurrent use; like the Store, it is driven from a
// single goroutine.
type Manager struct {
	L        *lua.LState
	store    *inventory.Store
	limit    int
	logger   *zap.Logger
	sub      inventory.Subscription
	attached bool
	failures int
}

// Option configures a Manager.
type Option func(*Manager)

// WithInstructionLimit sets the opcode budget of each hook call and file load.
func WithInstructionLimit(n int) Option {
	return func(m *Manager) { m.limit = n }
}

// WithLogger sets the logger used for hook failures and stash.log output.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager whose stash.* module reads from store.
//
// Precondition: store is non-nil.
// Postcondition: no hook runs until Attach is called.
func NewManager(store *inventory.Store, opts ...Option) *Manager {
	m := &Manager{
		L:      NewSandboxedState(),
		store:  store,
		limit:  DefaultInstructionLimit,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.RegisterModules(m.L)
	return m
}

// LoadDir executes every *.lua file in dir in lexicographic order and
// returns how many were loaded.
//
// Postcondition: on error the files loaded before the failing one stay loaded.
func (m *Manager) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scripting: reading hook dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)

	for i, path := range files {
		if err := withBudget(m.L, m.limit, func() error { return m.L.DoFile(path) }); err != nil {
			return i, fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}
	return len(files), nil
}

// Attach subscribes the Manager to every change in its Store.
func (m *Manager) Attach() {
	if m.attached {
		return
	}
	m.sub = m.store.SubscribeAll(m.onChange)
	m.attached = true
}

func (m *Manager) onChange(s *inventory.Store, id inventory.ContainerID) {
	if _, err := m.CallHook(HookContainerChanged, lua.LString(id), lua.LBool(s.Has(id))); err != nil {
		m.failures++
		m.logger.Warn("hook failed",
			zap.String("hook", HookContainerChanged),
			zap.String("container", string(id)),
			zap.Error(err),
		)
	}
}

// CallHook calls the named Lua global with args. An undefined hook is a
// no-op returning LNil.
//
// Postcondition: returns the hook's first return value, or the Lua runtime
// error (including an exhausted instruction budget).
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	fn := m.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, nil
	}
	err := withBudget(m.L, m.limit, func() error {
		return m.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		return lua.LNil, fmt.Errorf("scripting: %s: %w", hook, err)
	}
	ret := m.L.Get(-1)
	m.L.Pop(1)
	return ret, nil
}

// Failures returns how many notification-driven hook calls have failed.
func (m *Manager) Failures() int { return m.failures }

// Close detaches from the Store and releases the Lua state.
func (m *Manager) Close() {
	if m.attached {
		m.store.Unsubscribe(m.sub)
		m.attached = false
	}
	m.L.Close()
}
