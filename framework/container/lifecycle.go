package container

import (
	"fmt"
	"io"
	"sync"
)

// chain tracks the groups being created on one logical call path so a
// re-entrant request for one of them fails instead of waiting on itself.
// Lazy providers extend the chain of the creation that injected them.
type chain struct {
	mu     sync.Mutex
	groups map[*group]bool
	parent *chain
}

func newChain() *chain { return &chain{groups: make(map[*group]bool)} }

func (ch *chain) child() *chain {
	c := newChain()
	c.parent = ch
	return c
}

func (ch *chain) enter(g *group) bool {
	if ch.holds(g) {
		return false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.groups[g] = true
	return true
}

func (ch *chain) leave(g *group) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.groups, g)
}

// descends reports whether anc is ch or one of its ancestors.
func (ch *chain) descends(anc *chain) bool {
	for c := ch; c != nil; c = c.parent {
		if c == anc {
			return true
		}
	}
	return false
}

func (ch *chain) holds(g *group) bool {
	for c := ch; c != nil; c = c.parent {
		c.mu.Lock()
		held := c.groups[g]
		c.mu.Unlock()
		if held {
			return true
		}
	}
	return false
}

func reentrant(n *node) error {
	return &CyclicDependencyError{
		Path:   []string{n.id(), n.id()},
		Reason: "requested while its own creation is in progress",
	}
}

// ── Instances ─────────────────────────────────────────────────────────────────

// instance returns the instance of n for its scope, creating its group if
// needed. Concurrent callers for one group share a single creation.
func (c *Container) instance(n *node, ch *chain) (any, error) {
	if !n.decl.Scope.cached() {
		return c.build(n.group, ch, n)
	}

	cache := c.scopes.cache(n.decl.Scope)
	key := string(n.decl.Scope) + "/" + n.group.key
	for {
		if inst, ok := cache.ready(n.id()); ok {
			return inst, nil
		}
		if c.Phase() >= PhaseClosing {
			return nil, ErrClosedContainer
		}
		if ch.holds(n.group) {
			return nil, reentrant(n)
		}
		if path := c.scopes.await(key, ch); path != nil {
			return nil, &CyclicDependencyError{
				Path:   path,
				Reason: "concurrent creations wait on each other",
			}
		}
		_, err, _ := c.scopes.flight.Do(key, func() (any, error) {
			c.scopes.own(key, ch, n.group)
			defer c.scopes.disown(key)
			if _, ok := cache.ready(n.id()); ok {
				return nil, nil
			}
			return c.build(n.group, ch, nil)
		})
		c.scopes.settle(ch)
		if err != nil {
			return nil, err
		}
	}
}

// provider returns the Provider injected into a lazy slot.
func (c *Container) provider(target *node, ch *chain) Provider {
	return func() (any, error) {
		return c.instance(target, ch.child())
	}
}

// build creates every member of g. For a prototype it returns the new
// instance of want; cached groups are published to their scope instead.
func (c *Container) build(g *group, ch *chain, want *node) (any, error) {
	if !ch.enter(g) {
		return nil, reentrant(g.members[0])
	}
	defer ch.leave(g)

	cached := want == nil
	if cached {
		c.scopes.markCreating(g)
	}

	f := &frame{c: c, group: g, chain: ch, built: make(map[*node]any), pending: make(map[*node]bool)}
	if err := f.run(); err != nil {
		f.rollback()
		if cached {
			c.scopes.abandon(g)
		}
		return nil, err
	}

	if !cached {
		return f.built[want], nil
	}
	if !c.scopes.commit(f.order, f.built) {
		f.rollback()
		c.scopes.abandon(g)
		return nil, ErrClosedContainer
	}
	for _, n := range f.order {
		c.log.Debug("component created", "id", n.id(), "scope", n.decl.Scope.String())
	}
	return nil, nil
}

// ── Frame ─────────────────────────────────────────────────────────────────────

// frame is one group creation: construct every member, apply setters
// (deferring those that point inside the group), then initialize in
// construction order.
type frame struct {
	c     *Container
	group *group
	chain *chain

	built       map[*node]any
	pending     map[*node]bool
	order       []*node
	deferred    []deferredSetter
	initialized []*node
}

type deferredSetter struct {
	node *node
	slot int
}

func (f *frame) run() error {
	for _, m := range f.group.members {
		if err := f.construct(m); err != nil {
			return err
		}
	}
	for _, d := range f.deferred {
		if err := f.inject(d.node, d.slot); err != nil {
			return err
		}
	}
	for _, m := range f.order {
		inst, err := f.c.initialize(m, f.built[m])
		if err != nil {
			return err
		}
		f.built[m] = inst
		f.initialized = append(f.initialized, m)
	}
	return nil
}

func (f *frame) construct(n *node) error {
	if _, ok := f.built[n]; ok {
		return nil
	}
	if f.pending[n] {
		return reentrant(n)
	}
	f.pending[n] = true
	defer delete(f.pending, n)

	values := make(map[string]any)
	for i, s := range n.decl.Slots {
		if s.Injection != InjectConstructor {
			continue
		}
		v, ok, err := f.resolve(n, i)
		if err != nil {
			return err
		}
		if ok {
			values[s.Name] = v
		}
	}

	inst, err := invoke(n.decl, Args{declaration: n.id(), values: values})
	if err != nil {
		return &CreationFailureError{Declaration: n.id(), Cause: err}
	}
	f.built[n] = inst
	f.order = append(f.order, n)

	for i, s := range n.decl.Slots {
		if s.Injection != InjectSetter {
			continue
		}
		if t := n.targets[i]; t != nil && t.group == f.group && !s.Lazy {
			f.deferred = append(f.deferred, deferredSetter{node: n, slot: i})
			continue
		}
		if err := f.inject(n, i); err != nil {
			return err
		}
	}
	return nil
}

// inject applies setter slot i of n.
func (f *frame) inject(n *node, i int) error {
	v, ok, err := f.resolve(n, i)
	if err != nil || !ok {
		return err
	}
	s := n.decl.Slots[i]
	if err := guard(func() error { return s.Set(f.built[n], v) }); err != nil {
		return &CreationFailureError{Declaration: n.id(), Cause: fmt.Errorf("setter %s: %w", s.Name, err)}
	}
	return nil
}

// resolve produces the value of slot i of n. ok is false for an unbound
// optional slot without a default.
func (f *frame) resolve(n *node, i int) (v any, ok bool, err error) {
	s := n.decl.Slots[i]
	props := f.c.props

	if s.isValue() {
		v, err = props.ResolveValue(valueText(s), f.beans)
		if err != nil && s.Optional && s.Default != "" && s.Value != "" {
			v, err = props.ResolveValue(s.Default, f.beans)
		}
		if err != nil {
			if s.Optional {
				return nil, false, nil
			}
			return nil, false, &CreationFailureError{Declaration: n.id(), Cause: fmt.Errorf("slot %s: %w", s.Name, err)}
		}
		return v, true, nil
	}

	t := n.targets[i]
	switch {
	case t == nil:
		if s.Default == "" {
			return nil, false, nil
		}
		v, err = props.ResolveValue(s.Default, f.beans)
		if err != nil {
			return nil, false, &CreationFailureError{Declaration: n.id(), Cause: fmt.Errorf("slot %s: %w", s.Name, err)}
		}
		return v, true, nil
	case s.Lazy:
		return f.c.provider(t, f.chain), true, nil
	case t.group == f.group:
		if err := f.construct(t); err != nil {
			return nil, false, err
		}
		return f.built[t], true, nil
	}
	v, err = f.c.instance(t, f.chain)
	return v, err == nil, err
}

// beans resolves named components referenced from expressions.
func (f *frame) beans(name string) (any, error) {
	t, ok := f.c.graph.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if t.group == f.group {
		if err := f.construct(t); err != nil {
			return nil, err
		}
		return f.built[t], nil
	}
	return f.c.instance(t, f.chain)
}

// rollback destroys members that finished initialization, newest first.
func (f *frame) rollback() {
	for i := len(f.initialized) - 1; i >= 0; i-- {
		n := f.initialized[i]
		if !n.decl.Scope.cached() {
			continue
		}
		for _, failure := range f.c.destroy(n, f.built[n]) {
			f.c.log.Warn("rollback destroy failed", "id", failure.Declaration, "hook", failure.Hook, "error", failure.Err)
		}
	}
}

// ── Hooks ─────────────────────────────────────────────────────────────────────

// initialize runs init hooks, extenders and after-create listeners.
func (c *Container) initialize(n *node, inst any) (any, error) {
	for _, h := range n.decl.InitHooks {
		h := h
		if err := guard(func() error { return h.Run(inst) }); err != nil {
			return nil, &CreationFailureError{Declaration: n.id(), Cause: fmt.Errorf("init hook %s: %w", h.Name, err)}
		}
	}
	for _, ext := range c.extendersFor(n) {
		ext := ext
		var (
			next any
			err  error
		)
		if perr := guard(func() error { next, err = ext(inst, c); return nil }); perr != nil {
			err = perr
		}
		if err != nil {
			return nil, &CreationFailureError{Declaration: n.id(), Cause: fmt.Errorf("extender: %w", err)}
		}
		inst = next
	}
	for _, fn := range c.listeners {
		fn(n.id(), inst)
	}
	return inst, nil
}

// destroy runs every destroy hook of n, collecting failures. Components
// with no destroy hooks are closed when they implement io.Closer, unless
// they were registered as pre-built instances.
func (c *Container) destroy(n *node, inst any) []HookFailure {
	hooks := n.decl.DestroyHooks
	if len(hooks) == 0 && !n.decl.external {
		if closer, ok := inst.(io.Closer); ok {
			hooks = []Hook{{Name: "Close", Run: func(any) error { return closer.Close() }}}
		}
	}

	var failures []HookFailure
	for _, h := range hooks {
		h := h
		if err := guard(func() error { return h.Run(inst) }); err != nil {
			failures = append(failures, HookFailure{Declaration: n.id(), Hook: h.Name, Err: err})
		}
	}
	return failures
}

func invoke(d *Declaration, args Args) (inst any, err error) {
	err = guard(func() error {
		inst, err = d.Recipe(args)
		return err
	})
	return inst, err
}

// guard converts a panic in caller-supplied code into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
