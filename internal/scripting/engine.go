package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
	"github.com/pmndrs/koota-sub000/internal/schema"
)

// APIVersion is exposed to scripts as the global API_VERSION.
const APIVersion = 1

// Bindings is what scripts can reach. Prefabs is optional.
type Bindings struct {
	World    *ecs.World
	Registry *schema.Registry
	Prefabs  *schema.PrefabTable
}

// Engine wraps a single gopher-lua VM bound to one World.
// Single-goroutine access only (simulation loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
	b   Bindings
}

// NewEngine creates a Lua engine, installs the world table and loads all
// scripts from scriptsDir and its systems/ subdirectory.
func NewEngine(scriptsDir string, b Bindings, log *zap.Logger) (*Engine, error) {
	if b.World == nil || b.Registry == nil {
		return nil, fmt.Errorf("scripting: world and registry are required")
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))

	e := &Engine{vm: vm, log: log, b: b}
	e.installWorld()

	if scriptsDir == "" {
		return e, nil
	}
	for _, dir := range []string{scriptsDir, filepath.Join(scriptsDir, "systems")} {
		if err := e.loadDir(dir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
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

// DoString runs a chunk in the engine's VM.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// HasUpdate reports whether a global update function is defined.
func (e *Engine) HasUpdate() bool {
	_, ok := e.vm.GetGlobal("update").(*lua.LFunction)
	return ok
}

// Update calls the global update(dt) with dt in seconds. A missing update
// function is not an error.
func (e *Engine) Update(dt time.Duration) error {
	fn, ok := e.vm.GetGlobal("update").(*lua.LFunction)
	if !ok {
		return nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(dt.Seconds())); err != nil {
		return fmt.Errorf("lua update: %w", err)
	}
	return nil
}

// Call invokes a global Lua function with Go arguments and returns its first
// result converted back to Go.
func (e *Engine) Call(name string, args ...any) (any, error) {
	fn, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("lua function %s not found", name)
	}
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = toLua(e.vm, a)
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, largs...); err != nil {
		return nil, fmt.Errorf("lua %s: %w", name, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return fromLua(result), nil
}

func (e *Engine) Close() {
	e.vm.Close()
}
