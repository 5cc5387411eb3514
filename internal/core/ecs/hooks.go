package ecs

// hook wraps a subscriber so it can be unsubscribed by identity.
type hook struct {
	fn func(Entity)
}

// hookList is copy-on-write: callbacks may subscribe or unsubscribe while the
// list is being called without disturbing the current pass.
type hookList struct {
	hooks []*hook
}

func (l *hookList) len() int { return len(l.hooks) }

func (l *hookList) subscribe(fn func(Entity)) func() {
	h := &hook{fn: fn}
	next := make([]*hook, len(l.hooks), len(l.hooks)+1)
	copy(next, l.hooks)
	l.hooks = append(next, h)
	return func() {
		for i, existing := range l.hooks {
			if existing == h {
				next := make([]*hook, 0, len(l.hooks)-1)
				next = append(next, l.hooks[:i]...)
				l.hooks = append(next, l.hooks[i+1:]...)
				return
			}
		}
	}
}

func (l *hookList) call(e Entity) {
	for _, h := range l.hooks {
		h.fn(e)
	}
}

// OnAdd subscribes fn to additions of t. fn runs after the value is in place.
func (w *World) OnAdd(t AnyTrait, fn func(Entity)) (unsubscribe func()) {
	return w.register(t.base()).onAdd.subscribe(fn)
}

// OnRemove subscribes fn to removals of t. fn runs while the value is still
// readable.
func (w *World) OnRemove(t AnyTrait, fn func(Entity)) (unsubscribe func()) {
	return w.register(t.base()).onRemove.subscribe(fn)
}

// OnChange subscribes fn to Set, MarkChanged and change-detected bulk updates
// of t.
func (w *World) OnChange(t AnyTrait, fn func(Entity)) (unsubscribe func()) {
	return w.register(t.base()).onChange.subscribe(fn)
}
