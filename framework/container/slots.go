package container

import (
	"fmt"
	"reflect"
)

// ── Slot builders ─────────────────────────────────────────────────────────────

// Need starts a required constructor slot on capability.
//
//	container.Need("store", container.CapabilityOf[Store]()).Qualified("primary")
func Need(name string, capability Capability) Slot {
	return Slot{Name: name, Capability: capability}
}

// NeedOf is Need with the capability derived from T.
func NeedOf[T any](name string) Slot {
	return Need(name, CapabilityOf[T]())
}

// Value declares a value slot resolved from properties or an expression.
//
//	container.Value("port", "${server.port:8080}")
func Value(name, text string) Slot {
	return Slot{Name: name, Value: text}
}

// Qualified narrows candidates to those carrying label.
func (s Slot) Qualified(label string) Slot {
	s.Qualifier = label
	return s
}

// Named narrows candidates to the declaration with this id or alias.
func (s Slot) Named(id string) Slot {
	s.NameHint = id
	return s
}

// Maybe makes the slot optional.
func (s Slot) Maybe() Slot {
	s.Optional = true
	return s
}

// OrDefault makes the slot optional with a literal or placeholder fallback.
func (s Slot) OrDefault(text string) Slot {
	s.Optional = true
	s.Default = text
	return s
}

// Lazily injects a Provider instead of the instance.
func (s Slot) Lazily() Slot {
	s.Lazy = true
	return s
}

// Setter switches the slot to setter injection through fn.
func (s Slot) Setter(fn func(instance, value any) error) Slot {
	s.Injection = InjectSetter
	s.Set = fn
	return s
}

// SetterFunc adapts a typed assignment into a Slot.Set function.
//
//	container.Need("clock", clockCap).Setter(container.SetterFunc(func(s *Service, c Clock) { s.clock = c }))
func SetterFunc[T, V any](fn func(T, V)) func(instance, value any) error {
	return func(instance, value any) error {
		target, ok := instance.(T)
		if !ok {
			return fmt.Errorf("setter: instance is %T, not %s", instance, typeKey(reflect.TypeOf((*T)(nil)).Elem()))
		}
		v, ok := value.(V)
		if !ok && value != nil {
			return fmt.Errorf("setter: value is %T, not %s", value, typeKey(reflect.TypeOf((*V)(nil)).Elem()))
		}
		fn(target, v)
		return nil
	}
}

// ── Declaration options ───────────────────────────────────────────────────────

// DeclOption configures a declaration built by Singleton, Bind or Instance.
type DeclOption func(*Declaration)

// As adds capabilities.
func As(capabilities ...Capability) DeclOption {
	return func(d *Declaration) { d.Capabilities = append(d.Capabilities, capabilities...) }
}

// WithQualifiers adds qualifier labels.
func WithQualifiers(labels ...string) DeclOption {
	return func(d *Declaration) { d.Qualifiers = append(d.Qualifiers, labels...) }
}

// WithAliases adds alternative names.
func WithAliases(names ...string) DeclOption {
	return func(d *Declaration) { d.Aliases = append(d.Aliases, names...) }
}

// LazyInit defers construction until first use.
func LazyInit() DeclOption {
	return func(d *Declaration) { d.Lazy = true }
}

// OnProfile sets the activation predicate.
func OnProfile(expr string) DeclOption {
	return func(d *Declaration) { d.Profile = expr }
}

// InScope sets the scope.
func InScope(s Scope) DeclOption {
	return func(d *Declaration) { d.Scope = s }
}

// Inject appends dependency slots.
func Inject(slots ...Slot) DeclOption {
	return func(d *Declaration) { d.Slots = append(d.Slots, slots...) }
}

// OnInit appends init hooks.
func OnInit(hooks ...Hook) DeclOption {
	return func(d *Declaration) { d.InitHooks = append(d.InitHooks, hooks...) }
}

// OnDestroy appends destroy hooks.
func OnDestroy(hooks ...Hook) DeclOption {
	return func(d *Declaration) { d.DestroyHooks = append(d.DestroyHooks, hooks...) }
}
