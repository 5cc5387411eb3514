package scripting

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
	"github.com/pmndrs/koota-sub000/internal/schema"
)

const declarations = `
traits:
  - name: Mover
  - name: Frozen
  - name: Transform
    storage: columnar
    fields:
      - {name: x, type: float64}
      - {name: vx, type: float64, default: 1}
  - name: Label
    storage: object
    fields:
      - {name: text, type: string, default: none}
      - {name: tags, type: list}
relations:
  - name: Follows
    exclusive: true
`

type fixture struct {
	world  *ecs.World
	reg    *schema.Registry
	engine *Engine
}

func newFixture(t *testing.T, scriptsDir string, opts ...ecs.Option) *fixture {
	t.Helper()
	w, err := ecs.NewWorld(opts...)
	require.NoError(t, err)
	t.Cleanup(w.Close)

	reg := schema.NewRegistry()
	require.NoError(t, reg.Parse([]byte(declarations)))
	prefabs, err := schema.ParsePrefabs([]byte(`
prefabs:
  - name: walker
    traits:
      - name: Mover
      - name: Transform
        values: {vx: 2}
`), reg)
	require.NoError(t, err)

	e, err := NewEngine(scriptsDir, Bindings{World: w, Registry: reg, Prefabs: prefabs}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return &fixture{world: w, reg: reg, engine: e}
}

func (f *fixture) trait(t *testing.T, name string) *ecs.Trait {
	tr, ok := f.reg.Trait(name)
	require.True(t, ok)
	return tr
}

func TestUpdateMovesEntities(t *testing.T) {
	f := newFixture(t, "")
	require.False(t, f.engine.HasUpdate())
	require.NoError(t, f.engine.Update(time.Second))

	require.NoError(t, f.engine.DoString(`
		function update(dt)
			for _, e in ipairs(world.query("Mover", "Transform", "!Frozen")) do
				local t = world.get(e, "Transform")
				world.set(e, "Transform", {x = t.x + t.vx * dt})
			end
		end
	`))
	require.True(t, f.engine.HasUpdate())

	mover, transform, frozen := f.trait(t, "Mover"), f.trait(t, "Transform"), f.trait(t, "Frozen")
	a, err := f.world.Spawn(mover, transform)
	require.NoError(t, err)
	b, err := f.world.Spawn(mover, transform, frozen)
	require.NoError(t, err)

	require.NoError(t, f.engine.Update(500*time.Millisecond))
	require.NoError(t, f.engine.Update(500*time.Millisecond))

	got, _ := f.world.Get(a, transform)
	require.Equal(t, 1.0, got.(ecs.Record)["x"])
	got, _ = f.world.Get(b, transform)
	require.Equal(t, 0.0, got.(ecs.Record)["x"])
}

func TestWorldTableLifecycle(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.DoString(`
		function make()
			local e = world.spawn("Mover", "Label", {text = "hero"})
			world.add(e, "Transform", {x = 4})
			return e
		end
		function inspect(e)
			return {
				alive = world.alive(e),
				mover = world.has(e, "mover"),
				label = world.get(e, "Label"),
				x = world.get(e, "Transform").x,
			}
		end
	`))

	v, err := f.engine.Call("make")
	require.NoError(t, err)
	e := ecs.Entity(uint32(v.(int)))
	require.True(t, f.world.IsAlive(e))

	v, err = f.engine.Call("inspect", e)
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"alive": true,
		"mover": true,
		"label": map[string]any{"text": "hero"},
		"x":     4,
	}, v)

	// Object traits are patched field by field.
	require.NoError(t, f.engine.DoString(`world.set(`+itoa(e)+`, "Label", {tags = {"a", "b"}})`))
	label, _ := f.world.Get(e, f.trait(t, "Label"))
	require.Equal(t, ecs.Record{"text": "hero", "tags": []any{"a", "b"}}, label)

	require.NoError(t, f.engine.DoString(`world.remove(`+itoa(e)+`, "Mover") world.destroy(`+itoa(e)+`)`))
	require.False(t, f.world.IsAlive(e))
}

func TestPrefabsAndRelations(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.engine.DoString(`
		function setup()
			local leader = world.spawn_prefab("walker")
			local a = world.spawn_prefab("WALKER")
			local b = world.spawn("Mover")
			world.relate(a, "Follows", b)
			world.relate(a, "Follows", leader)
			return {leader = leader, a = a, targets = world.targets(a, "follows")}
		end
	`))
	v, err := f.engine.Call("setup")
	require.NoError(t, err)
	out := v.(map[string]any)
	require.Equal(t, []any{out["leader"]}, out["targets"])

	leader := ecs.Entity(uint32(out["leader"].(int)))
	got, _ := f.world.Get(leader, f.trait(t, "Transform"))
	require.Equal(t, 2.0, got.(ecs.Record)["vx"])

	require.NoError(t, f.engine.DoString(`world.unrelate(`+itoa(ecs.Entity(uint32(out["a"].(int))))+`, "Follows")`))
	rel, _ := f.reg.Relation("Follows")
	require.Empty(t, f.world.Targets(ecs.Entity(uint32(out["a"].(int))), rel))
}

func TestCommandsAreDeferredUntilFlush(t *testing.T) {
	f := newFixture(t, "")
	mover := f.trait(t, "Mover")
	e, err := f.world.Spawn(mover)
	require.NoError(t, err)

	require.NoError(t, f.engine.DoString(`
		world.commands.add(`+itoa(e)+`, "Transform", {x = 9})
		world.commands.remove(`+itoa(e)+`, "Mover")
	`))
	require.True(t, f.world.Has(e, mover))
	require.Equal(t, 2, f.world.Commands().Len())

	require.NoError(t, f.world.Commands().Flush(f.world))
	require.False(t, f.world.Has(e, mover))
	got, _ := f.world.Get(e, f.trait(t, "Transform"))
	require.Equal(t, 9.0, got.(ecs.Record)["x"])
}

func TestErrorsSurfaceAsLuaErrors(t *testing.T) {
	f := newFixture(t, "", ecs.WithStrict(true))
	cases := map[string]string{
		"unknown trait":    `world.spawn("Ghost")`,
		"unknown relation": `world.targets(world.spawn(), "Hates")`,
		"bad argument":     `world.spawn(3)`,
		"usage panic":      `local e = world.spawn() world.destroy(e) world.destroy(e)`,
		"no loose values":  `world.spawn("Mover", {x = 1})`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, f.engine.DoString(src))
		})
	}

	require.NoError(t, f.engine.DoString(`function update(dt) error("boom") end`))
	err := f.engine.Update(time.Millisecond)
	require.ErrorContains(t, err, "boom")
}

func TestNewEngineLoadsScriptDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "systems"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.lua"), []byte(`function double(n) return n * 2 end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "systems", "tick.lua"), []byte(`function update(dt) ticks = (ticks or 0) + double(1) end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`not lua`), 0o644))

	f := newFixture(t, dir)
	require.NoError(t, f.engine.Update(time.Millisecond))
	v, err := f.engine.Call("double", 21)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.NoError(t, f.engine.DoString(`assert(ticks == 2 and API_VERSION == 1)`))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.lua"), []byte(`function (`), 0o644))
	w, err := ecs.NewWorld()
	require.NoError(t, err)
	defer w.Close()
	_, err = NewEngine(dir, Bindings{World: w, Registry: f.reg}, zap.NewNop())
	require.Error(t, err)
}

func itoa(e ecs.Entity) string {
	return strconv.FormatUint(uint64(e), 10)
}
