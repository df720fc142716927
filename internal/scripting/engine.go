package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

var ErrFunctionNotFound = errors.New("lua function not found")

// Engine wraps a single gopher-lua VM. An LState is not safe for concurrent
// use, so every call into the VM holds mu; hooks called from a parallel
// broadcast serialize here.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory: lib/ first, then hooks/, then the directory itself. Missing
// directories are skipped.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	e := NewEmptyEngine(log)
	for _, dir := range []string{
		filepath.Join(scriptsDir, "lib"),
		filepath.Join(scriptsDir, "hooks"),
		scriptsDir,
	} {
		if err := e.loadDir(dir); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// NewEmptyEngine creates an engine with no scripts loaded.
func NewEmptyEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	return &Engine{vm: vm, log: log}
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read scripts %s: %w", dir, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs src in the VM. name is only used in errors.
func (e *Engine) LoadString(name, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// HasFunction reports whether a global function called name exists.
func (e *Engine) HasFunction(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Call invokes a global function with one table argument built from args and
// returns its result converted to Go values. A non-table result is returned
// as a nil map.
func (e *Engine) Call(name string, args map[string]any) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	ret, err := e.callLocked(fn, toTable(e.vm, args))
	if err != nil {
		return nil, fmt.Errorf("lua %s: %w", name, err)
	}
	if t, ok := ret.(*lua.LTable); ok {
		return fromTable(t), nil
	}
	return nil, nil
}

func (e *Engine) callLocked(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return lua.LNil, err
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	return ret, nil
}
