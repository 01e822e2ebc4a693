package container

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/logging"
)

// ── Phase ─────────────────────────────────────────────────────────────────────

// Phase is the lifecycle phase of a container. Phases only move forward.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseFiltering
	PhaseResolving
	PhaseInstantiating
	PhaseReady
	PhaseClosing
	PhaseClosed
)

var phaseNames = [...]string{"uninitialized", "filtering", "resolving", "instantiating", "ready", "closing", "closed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int32(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// ── Container ─────────────────────────────────────────────────────────────────

// Extender decorates an instance after its init hooks have run. The
// returned value replaces the instance.
type Extender func(instance any, c *Container) (any, error)

// Container holds component declarations and, once started, their
// instances.
//
// Registration methods are for a single goroutine before Start. After
// Start returns, every method is safe for concurrent use.
type Container struct {
	mu    sync.Mutex
	phase atomic.Int32

	log      logging.Logger
	props    *config.Resolver
	profiles []string
	rules    config.Rules

	catalog   catalog
	extenders map[string][]Extender
	listeners []func(id string, instance any)

	// set during Start, read-only afterwards
	active []*Declaration
	graph  *graph
	scopes *scopeManager

	closeOnce sync.Once
	report    ShutdownReport
}

// New creates an empty container.
//
//	c := container.New(
//	    container.WithLogger(logger),
//	    container.WithProperties(config.NewEnvSource()),
//	    container.WithProfiles("dev"),
//	)
func New(opts ...Option) *Container {
	c := &Container{
		log:       logging.NoOp{},
		props:     config.NewResolver(),
		extenders: make(map[string][]Extender),
		scopes:    newScopeManager(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start builds a container from declarations, property sources and the
// active profiles, and starts it.
func Start(decls []Declaration, sources []config.Source, profiles []string, opts ...Option) (*Container, error) {
	c := New(append(opts, WithProperties(sources...), WithProfiles(profiles...))...)
	if err := c.Register(decls...); err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	return c, nil
}

// ── Registration ──────────────────────────────────────────────────────────────

// Register adds declarations to the catalog.
func (c *Container) Register(decls ...Declaration) error {
	return c.unstarted(func() error {
		for _, d := range decls {
			if _, err := c.catalog.add(d); err != nil {
				return err
			}
		}
		return nil
	})
}

// unstarted runs fn under the registration lock if Start has not begun.
// The phase is checked before locking too: Start holds c.mu while recipes
// run, and a recipe that tries to register must fail instead of blocking.
func (c *Container) unstarted(fn func() error) error {
	if c.Phase() != PhaseUninitialized {
		return ErrAlreadyStarted
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Phase() != PhaseUninitialized {
		return ErrAlreadyStarted
	}
	return fn()
}

// Singleton registers a shared component.
//
//	c.Singleton("cache", func(args container.Args) (any, error) {
//	    return cache.NewRedis(args.String("url"))
//	}, container.As(cacheCap), container.Inject(container.Value("url", "${cache.url}")))
func (c *Container) Singleton(id string, recipe Recipe, opts ...DeclOption) error {
	return c.declare(id, Singleton, recipe, opts)
}

// Bind registers a prototype: every lookup or injection builds a new instance.
func (c *Container) Bind(id string, recipe Recipe, opts ...DeclOption) error {
	return c.declare(id, Prototype, recipe, opts)
}

// Instance registers a pre-built value as a singleton. Its capabilities
// default to the dynamic type of v. The container does not close it.
//
//	c.Instance("config", cfg)
func (c *Container) Instance(id string, v any, opts ...DeclOption) error {
	d := Declaration{ID: id, Scope: Singleton, Recipe: func(Args) (any, error) { return v, nil }, external: true}
	for _, opt := range opts {
		opt(&d)
	}
	if len(d.Capabilities) == 0 && v != nil {
		d.Capabilities = []Capability{Capability(TypeKey(v))}
	}
	return c.Register(d)
}

func (c *Container) declare(id string, scope Scope, recipe Recipe, opts []DeclOption) error {
	d := Declaration{ID: id, Scope: scope, Recipe: recipe}
	for _, opt := range opts {
		opt(&d)
	}
	return c.Register(d)
}

// Alias adds an alternative name for every declaration registered as id.
func (c *Container) Alias(id, alias string) error {
	if id == alias {
		return fmt.Errorf("container: %q is aliased to itself", id)
	}
	return c.unstarted(func() error {
		decls := c.catalog.find(id)
		if len(decls) == 0 {
			return fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		for _, d := range decls {
			d.Aliases = append(d.Aliases, alias)
		}
		return nil
	})
}

// Extend decorates the component registered under name (id or alias).
//
//	c.Extend("logger", func(inst any, _ *container.Container) (any, error) {
//	    return &TimestampLogger{Inner: inst.(Logger)}, nil
//	})
func (c *Container) Extend(name string, fn Extender) error {
	return c.unstarted(func() error {
		c.extenders[name] = append(c.extenders[name], fn)
		return nil
	})
}

// AfterCreate registers a callback fired after any component is created
// and initialized, prototypes included.
func (c *Container) AfterCreate(fn func(id string, instance any)) error {
	return c.unstarted(func() error {
		c.listeners = append(c.listeners, fn)
		return nil
	})
}

func (c *Container) extendersFor(n *node) []Extender {
	var out []Extender
	out = append(out, c.extenders[n.id()]...)
	for _, a := range n.decl.Aliases {
		out = append(out, c.extenders[a]...)
	}
	return out
}

// ── Startup ───────────────────────────────────────────────────────────────────

// Start filters declarations by profile, resolves the dependency graph and
// creates every eager singleton in dependency order. On failure the
// components already created are destroyed and the container is closed.
func (c *Container) Start() error {
	if p := c.Phase(); p != PhaseUninitialized {
		if p >= PhaseClosing {
			return ErrClosedContainer
		}
		return ErrAlreadyStarted
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.advance(PhaseUninitialized, PhaseFiltering) {
		if c.Phase() >= PhaseClosing {
			return ErrClosedContainer
		}
		return ErrAlreadyStarted
	}

	active, err := activate(c.catalog.decls, c.profiles)
	if err != nil {
		return c.abort(PhaseFiltering, err)
	}
	c.active = active
	c.log.Debug("components filtered", "registered", len(c.catalog.decls), "active", len(active), "profiles", c.profiles)

	if !c.advance(PhaseFiltering, PhaseResolving) {
		return c.abort(PhaseFiltering, ErrClosedContainer)
	}
	if err := c.validateProperties(); err != nil {
		return c.abort(PhaseResolving, err)
	}
	g, err := buildGraph(active, c.props)
	if err != nil {
		return c.abort(PhaseResolving, err)
	}
	c.graph = g

	if !c.advance(PhaseResolving, PhaseInstantiating) {
		return c.abort(PhaseResolving, ErrClosedContainer)
	}
	for _, n := range g.order {
		if n.decl.Scope != Singleton || n.decl.Lazy {
			continue
		}
		if _, err := c.instance(n, newChain()); err != nil {
			return c.abort(PhaseInstantiating, err)
		}
	}

	if !c.advance(PhaseInstantiating, PhaseReady) {
		return c.abort(PhaseInstantiating, ErrClosedContainer)
	}
	c.log.Info("container ready", "components", len(active))
	return nil
}

func (c *Container) validateProperties() error {
	if len(c.rules) == 0 {
		return nil
	}
	err := c.props.Validate(c.rules)
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		keys := verr.Keys()
		return &PropertyResolutionError{Key: keys[0], Cause: verr}
	}
	return err
}

func (c *Container) abort(phase Phase, cause error) error {
	c.log.Error("container start failed", "phase", phase.String(), "error", cause)
	report := c.shutdown()
	serr := &StartupError{Phase: phase, Cause: cause}
	for _, f := range report.Failures {
		serr.Cleanup = append(serr.Cleanup, f)
	}
	return serr
}

func (c *Container) advance(from, to Phase) bool {
	if c.phase.CompareAndSwap(int32(from), int32(to)) {
		c.log.Debug("container phase", "from", from.String(), "to", to.String())
		return true
	}
	return false
}

// Phase returns the current lifecycle phase.
func (c *Container) Phase() Phase { return Phase(c.phase.Load()) }

// ── Lookup ────────────────────────────────────────────────────────────────────

func (c *Container) ready() error {
	switch p := c.Phase(); {
	case p == PhaseReady:
		return nil
	case p >= PhaseClosing:
		return ErrClosedContainer
	default:
		return ErrNotReady
	}
}

// Lookup returns the single component providing capability. Prototypes
// are built on every call; lazy singletons on the first.
func (c *Container) Lookup(capability Capability) (any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	candidates := c.graph.byCap[capability]
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, capability)
	case 1:
		return c.instance(candidates[0], newChain())
	default:
		return nil, &AmbiguousError{Capability: capability, Candidates: nodeIDs(candidates)}
	}
}

// LookupNamed returns the component registered under name (id or alias)
// that provides capability. An empty capability matches any component.
func (c *Container) LookupNamed(name string, capability Capability) (any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	n, ok := c.graph.byName[name]
	if !ok || (capability != "" && !n.decl.provides(capability)) {
		return nil, fmt.Errorf("%w: %s named %q", ErrNotFound, capability, name)
	}
	return c.instance(n, newChain())
}

// Get returns the component registered under name.
func (c *Container) Get(name string) (any, error) {
	return c.LookupNamed(name, "")
}

// LookupAll returns every component providing capability in registration
// order. No match is an empty result, not an error.
func (c *Container) LookupAll(capability Capability) ([]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	candidates := c.graph.byCap[capability]
	out := make([]any, 0, len(candidates))
	for _, n := range candidates {
		inst, err := c.instance(n, newChain())
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// Tagged returns every component carrying the qualifier label, in
// registration order.
//
//	c.Singleton("cpu", newCPUReport, container.WithQualifiers("reports"))
//	reports, _ := c.Tagged("reports")
func (c *Container) Tagged(label string) ([]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var out []any
	for _, n := range c.graph.nodes {
		if !n.decl.qualified(label) {
			continue
		}
		inst, err := c.instance(n, newChain())
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// ── Shutdown ──────────────────────────────────────────────────────────────────

// Close destroys every cached instance in reverse creation order. Hook
// failures are reported, never returned. Calling Close again returns the
// first report.
func (c *Container) Close() ShutdownReport {
	return c.shutdown()
}

func (c *Container) shutdown() ShutdownReport {
	c.closeOnce.Do(func() {
		for {
			p := c.Phase()
			if p >= PhaseClosing || c.phase.CompareAndSwap(int32(p), int32(PhaseClosing)) {
				break
			}
		}
		c.log.Debug("container phase", "to", PhaseClosing.String())
		c.report = c.destroyAll(c.scopes.drain(), true)
		c.phase.Store(int32(PhaseClosed))
		c.log.Info("container closed", "destroyed", len(c.report.Destroyed), "failures", len(c.report.Failures))
	})
	return c.report
}

// EndScope destroys the instances of a request, session or custom scope
// in reverse creation order and empties its cache. The next lookup creates
// fresh instances.
func (c *Container) EndScope(scope Scope) (ShutdownReport, error) {
	if scope == Singleton || scope == Prototype || scope == "" {
		return ShutdownReport{}, fmt.Errorf("container: scope %q cannot be ended", scope)
	}
	if err := c.ready(); err != nil {
		return ShutdownReport{}, err
	}
	return c.destroyAll(c.scopes.drainScope(scope), false), nil
}

func (c *Container) destroyAll(records []record, final bool) ShutdownReport {
	var report ShutdownReport
	for _, r := range records {
		cache := c.scopes.cache(r.node.decl.Scope)
		failures := c.destroy(r.node, r.instance)
		for _, f := range failures {
			c.log.Warn("destroy hook failed", "id", f.Declaration, "hook", f.Hook, "error", f.Err)
		}
		report.Failures = append(report.Failures, failures...)
		report.Destroyed = append(report.Destroyed, r.node.id())
		if final {
			cache.set(r.node.id(), Destroyed, nil)
		} else {
			cache.reset(r.node.id())
		}
	}
	return report
}

// ── Introspection ─────────────────────────────────────────────────────────────

// ComponentInfo describes one active component.
type ComponentInfo struct {
	ID           string       `json:"id"`
	Aliases      []string     `json:"aliases,omitempty"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	Qualifiers   []string     `json:"qualifiers,omitempty"`
	Scope        Scope        `json:"scope"`
	Lazy         bool         `json:"lazy"`
	Profile      string       `json:"profile,omitempty"`
	Group        string       `json:"group"`
	State        EntryState   `json:"state"`
	DependsOn    []string     `json:"dependsOn,omitempty"`
}

// Components lists the active components in registration order. It is
// empty before the graph has been resolved.
func (c *Container) Components() []ComponentInfo {
	if c.Phase() < PhaseInstantiating || c.graph == nil {
		return nil
	}
	out := make([]ComponentInfo, 0, len(c.graph.nodes))
	for _, n := range c.graph.nodes {
		d := n.decl
		info := ComponentInfo{
			ID:           d.ID,
			Aliases:      d.Aliases,
			Capabilities: d.Capabilities,
			Qualifiers:   d.Qualifiers,
			Scope:        d.Scope,
			Lazy:         d.Lazy,
			Profile:      d.Profile,
			Group:        n.group.key,
			State:        c.scopes.state(n),
		}
		for _, t := range n.targets {
			if t != nil {
				info.DependsOn = append(info.DependsOn, t.id())
			}
		}
		out = append(out, info)
	}
	return out
}

// Component returns the description of the component registered under name.
func (c *Container) Component(name string) (ComponentInfo, bool) {
	if c.Phase() < PhaseInstantiating || c.graph == nil {
		return ComponentInfo{}, false
	}
	n, ok := c.graph.byName[name]
	if !ok {
		return ComponentInfo{}, false
	}
	for _, info := range c.Components() {
		if info.ID == n.id() {
			return info, true
		}
	}
	return ComponentInfo{}, false
}

// Bindings returns the resolved slot bindings sorted by declaration and slot.
func (c *Container) Bindings() []Binding {
	if c.Phase() < PhaseInstantiating || c.graph == nil {
		return nil
	}
	out := append([]Binding(nil), c.graph.bindings...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Declaration != out[j].Declaration {
			return out[i].Declaration < out[j].Declaration
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// Properties returns the property resolver.
func (c *Container) Properties() *config.Resolver { return c.props }

// Profiles returns the active profiles.
func (c *Container) Profiles() []string { return append([]string(nil), c.profiles...) }

// ── Generics ──────────────────────────────────────────────────────────────────

// Resolve looks up the single component providing T's capability.
//
//	repo, err := container.Resolve[UserRepository](c)
func Resolve[T any](c *Container) (T, error) {
	var zero T
	inst, err := c.Lookup(CapabilityOf[T]())
	if err != nil {
		return zero, err
	}
	return cast[T](inst)
}

// ResolveNamed looks up the component registered under name as T.
func ResolveNamed[T any](c *Container, name string) (T, error) {
	var zero T
	inst, err := c.LookupNamed(name, CapabilityOf[T]())
	if err != nil {
		return zero, err
	}
	return cast[T](inst)
}

// MustResolve is Resolve that panics on error.
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

func cast[T any](inst any) (T, error) {
	typed, ok := inst.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("container: instance is %T, not %s", inst, typeKey(reflect.TypeOf((*T)(nil)).Elem()))
	}
	return typed, nil
}
