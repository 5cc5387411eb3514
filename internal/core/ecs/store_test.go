package ecs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type Vec2 struct {
	X, Y float32
}

type Inventory struct {
	Items []string
	Gold  int
}

var (
	Position = MustColumnar("Position", Vec2{})
	Velocity = MustColumnar("Velocity", Vec2{X: 1, Y: 1})
	Health   = Object("Health", func() int { return 100 }, WithValidator(func(hp int) error {
		if hp < 0 || hp > 100 {
			return errors.New("health out of range")
		}
		return nil
	}))
	Bag = Object("Bag", func() *Inventory { return &Inventory{} })
)

func TestColumnarDefaultsAndInit(t *testing.T) {
	w := newTestWorld(t)
	a, err := w.Spawn(Velocity)
	require.NoError(t, err)
	b, err := w.Spawn(Velocity.With(Vec2{X: 5, Y: -2}))
	require.NoError(t, err)

	v, ok := Velocity.Get(w, a)
	require.True(t, ok)
	require.Equal(t, Vec2{1, 1}, v)

	v, ok = Velocity.Get(w, b)
	require.True(t, ok)
	require.Equal(t, Vec2{5, -2}, v)

	require.NoError(t, Velocity.Update(w, a, func(prev Vec2) Vec2 {
		prev.X *= 3
		return prev
	}))
	v, _ = Velocity.Get(w, a)
	require.Equal(t, Vec2{3, 1}, v)
}

func TestColumnarRejectsNestedFields(t *testing.T) {
	type nested struct {
		Pos  Vec2
		Name string
	}
	_, err := Columnar("Nested", nested{})
	require.ErrorIs(t, err, ErrNestedSchema)

	_, err = Columnar("Slice", struct{ Items []int }{})
	require.ErrorIs(t, err, ErrNestedSchema)

	_, err = Columnar("NotStruct", 3)
	require.ErrorIs(t, err, ErrNestedSchema)
}

func TestColumnarFactoryIsCalledPerAdd(t *testing.T) {
	calls := 0
	counter, err := ColumnarFunc("Counter", func() struct{ N int } {
		calls++
		return struct{ N int }{N: calls}
	})
	require.NoError(t, err)

	w := newTestWorld(t)
	a, err := w.Spawn(counter)
	require.NoError(t, err)
	b, err := w.Spawn(counter)
	require.NoError(t, err)

	va, _ := counter.Get(w, a)
	vb, _ := counter.Get(w, b)
	require.Equal(t, 1, va.N)
	require.Equal(t, 2, vb.N)
}

func TestObjectValidatorRejectsWrites(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn(Health)
	require.NoError(t, err)

	err = Health.Set(w, e, 150)
	require.ErrorIs(t, err, ErrValidation)
	hp, _ := Health.Get(w, e)
	require.Equal(t, 100, hp, "rejected value is not committed")

	err = w.Set(e, Health, -1)
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, w.Set(e, Health, 40))
	got, ok := w.Get(e, Health)
	require.True(t, ok)
	require.Equal(t, 40, got)
}

func TestSpawnWithRejectedValueDestroysEntity(t *testing.T) {
	w := newTestWorld(t)
	_, err := w.Spawn(Foo, Health.With(-5))
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, w.Entities())
	require.Empty(t, w.Query(Foo).Entities())
}

func TestObjectFactoryValuesAreNotShared(t *testing.T) {
	w := newTestWorld(t)
	a, err := w.Spawn(Bag)
	require.NoError(t, err)
	b, err := w.Spawn(Bag)
	require.NoError(t, err)

	bagA, _ := Bag.Get(w, a)
	bagA.Items = append(bagA.Items, "sword")
	bagB, _ := Bag.Get(w, b)
	require.Empty(t, bagB.Items)
}

func TestUntypedSetRejectsWrongType(t *testing.T) {
	w := newTestWorld(t)
	e, err := w.Spawn(Position)
	require.NoError(t, err)
	require.ErrorIs(t, w.Set(e, Position, "north"), ErrValueType)
	require.ErrorIs(t, w.Add(e, Health.Trait.With("full")), ErrValueType)
}

func TestSchemaTrait(t *testing.T) {
	stats, err := NewSchemaTrait("Stats", Schema{
		{Name: "str", Kind: KindInt, Default: 10},
		{Name: "speed", Kind: KindFloat64, Default: 1.5},
		{Name: "title", Kind: KindString, Factory: func() any { return "novice" }},
	})
	require.NoError(t, err)

	w := newTestWorld(t)
	e, err := w.Spawn(stats.With(Record{"str": 12}))
	require.NoError(t, err)

	rec, ok := stats.Get(w, e)
	require.True(t, ok)
	require.Equal(t, Record{"str": 12, "speed": 1.5, "title": "novice"}, rec)

	// Partial updates keep the other fields.
	require.NoError(t, stats.Set(w, e, Record{"speed": 3}))
	rec, _ = stats.Get(w, e)
	require.Equal(t, 3.0, rec["speed"])
	require.Equal(t, 12, rec["str"])

	require.ErrorIs(t, stats.Set(w, e, Record{"str": "strong"}), ErrValueType)
	require.ErrorIs(t, stats.Set(w, e, Record{"luck": 1}), ErrValueType)

	speeds, ok := Column[float64](w, stats, "speed")
	require.True(t, ok)
	require.Equal(t, 3.0, speeds[e.ID()])
}

func TestSchemaFactoryOfWrongKindIsRejected(t *testing.T) {
	stats, err := NewSchemaTrait("BadFactoryStats", Schema{
		{Name: "level", Kind: KindInt, Factory: func() any { return "one" }},
	})
	require.NoError(t, err)

	w := newTestWorld(t)
	_, err = w.Spawn(stats)
	require.ErrorIs(t, err, ErrValueType)
	require.Empty(t, w.Entities())

	e, err := w.Spawn()
	require.NoError(t, err)
	require.ErrorIs(t, w.Add(e, stats), ErrValueType)
	require.False(t, w.Has(e, stats))
}

func TestSchemaRejectsMalformedFields(t *testing.T) {
	cases := map[string]Schema{
		"unnamed":       {{Kind: KindInt}},
		"duplicate":     {{Name: "a", Kind: KindInt}, {Name: "a", Kind: KindBool}},
		"no kind":       {{Name: "a"}},
		"wrong default": {{Name: "a", Kind: KindInt, Default: "x"}},
	}
	for name, schema := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSchemaTrait("Bad", schema)
			require.ErrorIs(t, err, ErrNestedSchema)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("float32")
	require.True(t, ok)
	require.Equal(t, KindFloat32, k)
	require.Equal(t, "float32", k.String())

	_, ok = ParseKind("vec3")
	require.False(t, ok)
}

func TestUpdateEachWritesBack(t *testing.T) {
	w := newTestWorld(t)
	es := spawnN(t, w, 3, Position, Velocity.With(Vec2{X: 2, Y: 0}))

	err := UpdateEach2(w.Query(Position, Velocity), Position, Velocity, func(_ Entity, p *Vec2, v *Vec2) {
		p.X += v.X
		p.Y += v.Y
	})
	require.NoError(t, err)

	for _, e := range es {
		p, _ := Position.Get(w, e)
		require.Equal(t, Vec2{2, 0}, p)
	}
}

func TestUpdateEachChangeDetection(t *testing.T) {
	w := newTestWorld(t)
	changed := NewChanged()
	moving, err := w.Spawn(Position)
	require.NoError(t, err)
	still, err := w.Spawn(Position)
	require.NoError(t, err)
	w.Query(changed.Of(Position))

	move := func(e Entity, p *Vec2) {
		if e == moving {
			p.X++
		}
	}

	require.NoError(t, UpdateEach(w.Query(Position), Position, move, ChangeNever))
	require.Empty(t, w.Query(changed.Of(Position)).Entities())

	require.NoError(t, UpdateEach(w.Query(Position), Position, move))
	require.Equal(t, []Entity{moving}, w.Query(changed.Of(Position)).Entities())

	require.NoError(t, UpdateEach(w.Query(Position), Position, func(Entity, *Vec2) {}, ChangeAlways))
	require.Empty(t, w.Query(changed.Of(Position)).Entities())

	p, _ := Position.Get(w, moving)
	require.Equal(t, float32(2), p.X)
	p, _ = Position.Get(w, still)
	require.Zero(t, p.X)
}

func TestUpdateEachSkipsEntitiesDestroyedMidIteration(t *testing.T) {
	w := newTestWorld(t)
	es := spawnN(t, w, 3, Position)

	visited := 0
	err := UpdateEach(w.Query(Position), Position, func(e Entity, p *Vec2) {
		visited++
		if e == es[0] {
			w.Destroy(es[1])
		}
	})
	require.NoError(t, err)
	require.Equal(t, 2, visited)
}

func TestObjectChangeDetectionUsesStructuralEquality(t *testing.T) {
	w := newTestWorld(t)
	changed := NewChanged()
	e, err := w.Spawn(Bag.With(&Inventory{Gold: 1}))
	require.NoError(t, err)
	w.Query(changed.Of(Bag))

	require.NoError(t, UpdateEach(w.Query(Bag), Bag, func(_ Entity, inv **Inventory) {
		*inv = &Inventory{Gold: 1}
	}, ChangeAlways))
	require.Empty(t, w.Query(changed.Of(Bag)).Entities())

	require.NoError(t, UpdateEach(w.Query(Bag), Bag, func(_ Entity, inv **Inventory) {
		*inv = &Inventory{Gold: 2}
	}, ChangeAlways))
	require.Equal(t, []Entity{e}, w.Query(changed.Of(Bag)).Entities())
}

func TestWithEqualOverridesComparison(t *testing.T) {
	counter := Object("Ticks", func() int { return 0 }, WithEqual(func(a, b int) bool { return false }))
	w := newTestWorld(t)
	changed := NewChanged()
	e, err := w.Spawn(counter)
	require.NoError(t, err)
	w.Query(changed.Of(counter))

	require.NoError(t, UpdateEach(w.Query(counter), counter, func(Entity, *int) {}, ChangeAlways))
	require.Equal(t, []Entity{e}, w.Query(changed.Of(counter)).Entities())
}

func TestColumnExposesBackingArrays(t *testing.T) {
	w := newTestWorld(t)
	es := spawnN(t, w, 4, Position)

	xs, ok := Column[float32](w, Position, "X")
	require.True(t, ok)
	for _, e := range es {
		xs[e.ID()] = float32(e.ID()) * 10
	}
	for _, e := range es {
		p, _ := Position.Get(w, e)
		require.Equal(t, float32(e.ID())*10, p.X)
	}

	_, ok = Column[float64](w, Position, "X")
	require.False(t, ok, "element type must match the field")
	_, ok = Column[float32](w, Position, "Z")
	require.False(t, ok)
	_, ok = Column[int](w, Health, "hp")
	require.False(t, ok)
}
