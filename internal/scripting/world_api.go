package scripting

import (
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
)

// installWorld exposes the world to scripts as the global table "world".
// Traits and relations are referred to by their registry names; entities are
// plain numbers.
func (e *Engine) installWorld() {
	L := e.vm
	world := L.NewTable()
	L.SetFuncs(world, map[string]lua.LGFunction{
		"spawn":        e.guard(e.luaSpawn),
		"spawn_prefab": e.guard(e.luaSpawnPrefab),
		"destroy":      e.guard(e.luaDestroy),
		"alive":        e.guard(e.luaAlive),
		"add":          e.guard(e.luaAdd),
		"remove":       e.guard(e.luaRemove),
		"has":          e.guard(e.luaHas),
		"get":          e.guard(e.luaGet),
		"set":          e.guard(e.luaSet),
		"mark_changed": e.guard(e.luaMarkChanged),
		"query":        e.guard(e.luaQuery),
		"relate":       e.guard(e.luaRelate),
		"unrelate":     e.guard(e.luaUnrelate),
		"targets":      e.guard(e.luaTargets),
		"entity":       e.guard(e.luaWorldEntity),
	})

	commands := L.NewTable()
	L.SetFuncs(commands, map[string]lua.LGFunction{
		"add":     e.guard(e.luaDeferAdd),
		"remove":  e.guard(e.luaDeferRemove),
		"set":     e.guard(e.luaDeferSet),
		"destroy": e.guard(e.luaDeferDestroy),
	})
	world.RawSetString("commands", commands)
	L.SetGlobal("world", world)
}

// guard turns Go errors and strict-mode usage panics into Lua errors.
func (e *Engine) guard(fn func(*lua.LState) (int, error)) lua.LGFunction {
	return func(L *lua.LState) (n int) {
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					var usage *ecs.UsageError
					rerr, ok := r.(error)
					if !ok || !errors.As(rerr, &usage) {
						panic(r)
					}
					err = usage
				}
			}()
			n, err = fn(L)
		}()
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		return n
	}
}

func checkEntity(L *lua.LState, n int) ecs.Entity {
	return ecs.Entity(uint32(L.CheckNumber(n)))
}

func (e *Engine) trait(name string) (*ecs.Trait, error) {
	t, ok := e.b.Registry.Trait(name)
	if !ok {
		return nil, fmt.Errorf("unknown trait %q", name)
	}
	return t, nil
}

func (e *Engine) relation(name string) (*ecs.Relation, error) {
	rel, ok := e.b.Registry.Relation(name)
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", name)
	}
	return rel, nil
}

// component resolves a trait name and an optional values table at argument n.
func (e *Engine) component(L *lua.LState, name string, n int) (ecs.Component, error) {
	t, err := e.trait(name)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if tb, ok := L.Get(n).(*lua.LTable); ok {
		values = tableToMap(tb)
	}
	v, err := e.b.Registry.Value(t, values)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return t, nil
	}
	return t.With(v), nil
}

// components reads a variadic list of trait names, each optionally followed by
// a values table: spawn("Enemy", "Transform", {x = 1}).
func (e *Engine) components(L *lua.LState, from int) ([]ecs.Component, error) {
	var out []ecs.Component
	top := L.GetTop()
	for i := from; i <= top; i++ {
		name, ok := L.Get(i).(lua.LString)
		if !ok {
			return nil, fmt.Errorf("argument %d: want trait name, got %s", i, L.Get(i).Type())
		}
		c, err := e.component(L, string(name), i+1)
		if err != nil {
			return nil, err
		}
		if _, isTable := L.Get(i + 1).(*lua.LTable); isTable {
			i++
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) luaSpawn(L *lua.LState) (int, error) {
	cs, err := e.components(L, 1)
	if err != nil {
		return 0, err
	}
	ent, err := e.b.World.Spawn(cs...)
	if err != nil {
		return 0, err
	}
	L.Push(lua.LNumber(uint32(ent)))
	return 1, nil
}

func (e *Engine) luaSpawnPrefab(L *lua.LState) (int, error) {
	if e.b.Prefabs == nil {
		return 0, fmt.Errorf("no prefabs loaded")
	}
	ent, err := e.b.Prefabs.Spawn(e.b.World, L.CheckString(1))
	if err != nil {
		return 0, err
	}
	L.Push(lua.LNumber(uint32(ent)))
	return 1, nil
}

func (e *Engine) luaDestroy(L *lua.LState) (int, error) {
	e.b.World.Destroy(checkEntity(L, 1))
	return 0, nil
}

func (e *Engine) luaAlive(L *lua.LState) (int, error) {
	L.Push(lua.LBool(e.b.World.IsAlive(checkEntity(L, 1))))
	return 1, nil
}

func (e *Engine) luaAdd(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	cs, err := e.components(L, 2)
	if err != nil {
		return 0, err
	}
	return 0, e.b.World.Add(ent, cs...)
}

func (e *Engine) luaRemove(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	t, err := e.trait(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	e.b.World.Remove(ent, t)
	return 0, nil
}

func (e *Engine) luaHas(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	t, err := e.trait(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	L.Push(lua.LBool(e.b.World.Has(ent, t)))
	return 1, nil
}

func (e *Engine) luaGet(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	t, err := e.trait(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	v, ok := e.b.World.Get(ent, t)
	if !ok {
		L.Push(lua.LNil)
		return 1, nil
	}
	L.Push(toLua(L, v))
	return 1, nil
}

// patch builds a partial update value for t on ent.
func (e *Engine) patch(L *lua.LState, ent ecs.Entity, t *ecs.Trait, n int) (any, error) {
	values := tableToMap(L.CheckTable(n))
	var cur any
	if w := e.b.World; w.IsAlive(ent) && w.Has(ent, t) {
		cur, _ = w.Get(ent, t)
	}
	return e.b.Registry.Patch(t, cur, values)
}

func (e *Engine) luaSet(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	t, err := e.trait(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	v, err := e.patch(L, ent, t, 3)
	if err != nil {
		return 0, err
	}
	return 0, e.b.World.Set(ent, t, v)
}

func (e *Engine) luaMarkChanged(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	t, err := e.trait(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	e.b.World.MarkChanged(ent, t)
	return 0, nil
}

// luaQuery takes trait names; a leading "!" excludes the trait.
func (e *Engine) luaQuery(L *lua.LState) (int, error) {
	var terms []ecs.Term
	var excluded []ecs.AnyTrait
	for i := 1; i <= L.GetTop(); i++ {
		name := L.CheckString(i)
		negate := strings.HasPrefix(name, "!")
		t, err := e.trait(strings.TrimPrefix(name, "!"))
		if err != nil {
			return 0, err
		}
		if negate {
			excluded = append(excluded, t)
			continue
		}
		terms = append(terms, t)
	}
	if len(excluded) > 0 {
		terms = append(terms, ecs.Not(excluded...))
	}
	L.Push(entitiesToLua(L, e.b.World.Query(terms...).Entities()))
	return 1, nil
}

func (e *Engine) luaRelate(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	rel, err := e.relation(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	return 0, e.b.World.Add(ent, rel.Of(checkEntity(L, 3)))
}

func (e *Engine) luaUnrelate(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	rel, err := e.relation(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	target := ecs.Wildcard
	if L.GetTop() >= 3 {
		target = checkEntity(L, 3)
	}
	e.b.World.Remove(ent, rel.Of(target))
	return 0, nil
}

func (e *Engine) luaTargets(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	rel, err := e.relation(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	L.Push(entitiesToLua(L, e.b.World.Targets(ent, rel)))
	return 1, nil
}

func (e *Engine) luaWorldEntity(L *lua.LState) (int, error) {
	L.Push(lua.LNumber(uint32(e.b.World.Entity())))
	return 1, nil
}

func (e *Engine) luaDeferAdd(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	cs, err := e.components(L, 2)
	if err != nil {
		return 0, err
	}
	e.b.World.Commands().Add(ent, cs...)
	return 0, nil
}

func (e *Engine) luaDeferRemove(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	t, err := e.trait(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	e.b.World.Commands().Remove(ent, t)
	return 0, nil
}

func (e *Engine) luaDeferSet(L *lua.LState) (int, error) {
	ent := checkEntity(L, 1)
	t, err := e.trait(L.CheckString(2))
	if err != nil {
		return 0, err
	}
	v, err := e.patch(L, ent, t, 3)
	if err != nil {
		return 0, err
	}
	e.b.World.Commands().Set(ent, t, v)
	return 0, nil
}

func (e *Engine) luaDeferDestroy(L *lua.LState) (int, error) {
	e.b.World.Commands().Destroy(checkEntity(L, 1))
	return 0, nil
}
