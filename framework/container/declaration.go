package container

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// ── Capabilities ──────────────────────────────────────────────────────────────

// Capability names a type or interface a component satisfies. Slots and
// lookups match declarations by capability.
type Capability string

// CapabilityOf returns the capability key for T.
//
//	container.CapabilityOf[UserRepository]()  // "github.com/acme/app.UserRepository"
func CapabilityOf[T any]() Capability {
	return Capability(typeKey(reflect.TypeOf((*T)(nil)).Elem()))
}

// TypeKey returns the package-qualified type name of v, useful as a stable
// capability key when working with interfaces.
//
//	key := container.TypeKey((*UserRepository)(nil))  // "main.UserRepository"
func TypeKey(v any) string {
	return typeKey(reflect.TypeOf(v))
}

func typeKey(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// ── Scopes ────────────────────────────────────────────────────────────────────

// Scope governs how many instances of a declaration exist and when they are
// created and destroyed. Any other non-empty value is a custom scope with its
// own cache.
type Scope string

const (
	Singleton Scope = "singleton"
	Prototype Scope = "prototype"
	Request   Scope = "request"
	Session   Scope = "session"
)

func (s Scope) String() string { return string(s) }

// cached reports whether instances of the scope are stored.
func (s Scope) cached() bool { return s != Prototype }

// ── Slots ─────────────────────────────────────────────────────────────────────

// Injection says when a slot is filled.
type Injection int

const (
	// InjectConstructor slots are resolved before the recipe runs and passed
	// to it through Args.
	InjectConstructor Injection = iota

	// InjectSetter slots are applied through Slot.Set after construction.
	// Setter edges may close a dependency cycle.
	InjectSetter
)

func (i Injection) String() string {
	if i == InjectSetter {
		return "setter"
	}
	return "constructor"
}

// Slot is one dependency of a declaration. A slot with an empty Capability
// is a value slot filled from Value through the property resolver.
type Slot struct {
	Name       string
	Capability Capability
	Qualifier  string
	NameHint   string

	// Optional slots that find no candidate are left unbound and receive
	// Default (resolved like a property value) or nil.
	Optional bool
	Default  string

	// Value is the placeholder or expression text of a value slot,
	// e.g. "${server.port:8080}" or "#{ioc.Prop(\"a\") + \"b\"}".
	Value string

	Injection Injection

	// Lazy slots receive a Provider instead of the instance; the target is
	// resolved when the provider is called.
	Lazy bool

	// Set applies the value of an InjectSetter slot to the instance.
	Set func(instance, value any) error
}

func (s Slot) isValue() bool { return s.Capability == "" }

// hard edges order construction and may not form cycles.
func (s Slot) hard() bool { return !s.Lazy && s.Injection == InjectConstructor }

// Provider defers resolution of a lazy slot.
type Provider func() (any, error)

// ── Recipes & hooks ───────────────────────────────────────────────────────────

// Recipe constructs an instance from its resolved constructor slots.
type Recipe func(args Args) (any, error)

// Hook is a lifecycle callback run after construction (init) or before
// destruction (destroy).
type Hook struct {
	Name string
	Run  func(instance any) error
}

// Method adapts a typed method into a Hook.
//
//	container.Method("Close", (*DB).Close)
func Method[T any](name string, fn func(T) error) Hook {
	return Hook{
		Name: name,
		Run: func(instance any) error {
			typed, ok := instance.(T)
			if !ok {
				return fmt.Errorf("hook %s: instance is %T, not %s", name, instance, typeKey(reflect.TypeOf((*T)(nil)).Elem()))
			}
			return fn(typed)
		},
	}
}

// ── Declaration ───────────────────────────────────────────────────────────────

// Declaration describes one constructible component.
type Declaration struct {
	// ID is unique among active declarations. Empty IDs are generated at
	// registration.
	ID      string
	Aliases []string

	Capabilities []Capability
	Qualifiers   []string

	// Scope defaults to Singleton.
	Scope Scope
	Lazy  bool

	// Profile is the activation predicate, e.g. "dev | test" or "!cloud".
	// Empty means always active.
	Profile string

	Slots  []Slot
	Recipe Recipe

	InitHooks    []Hook
	DestroyHooks []Hook

	// external marks pre-built instances the container does not close.
	external bool
}

func (d *Declaration) provides(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

func (d *Declaration) qualified(label string) bool {
	for _, q := range d.Qualifiers {
		if q == label {
			return true
		}
	}
	return false
}

// ── Args ──────────────────────────────────────────────────────────────────────

// Args carries the resolved constructor slots of a declaration, keyed by
// slot name. Unbound optional slots without a default are absent.
type Args struct {
	declaration string
	values      map[string]any
}

// Declaration returns the id of the component being constructed.
func (a Args) Declaration() string { return a.declaration }

// Has reports whether the slot holds a value.
func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Value returns the slot value or nil.
func (a Args) Value(name string) any { return a.values[name] }

// String returns the slot value formatted as a string.
func (a Args) String(name string) string {
	v, ok := a.values[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the slot value as an int.
func (a Args) Int(name string) (int, error) {
	switch v := a.values[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("slot %q of %s: %T is not an int", name, a.declaration, v)
	}
}

// Bool returns the slot value as a bool.
func (a Args) Bool(name string) (bool, error) {
	switch v := a.values[name].(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("slot %q of %s: %T is not a bool", name, a.declaration, v)
	}
}

// Duration returns the slot value as a time.Duration.
func (a Args) Duration(name string) (time.Duration, error) {
	switch v := a.values[name].(type) {
	case time.Duration:
		return v, nil
	case string:
		return time.ParseDuration(v)
	default:
		return 0, fmt.Errorf("slot %q of %s: %T is not a duration", name, a.declaration, v)
	}
}

// Arg returns the named slot value as T.
//
//	repo, err := container.Arg[*UserRepo](args, "repo")
func Arg[T any](a Args, name string) (T, error) {
	var zero T
	v, ok := a.values[name]
	if !ok {
		return zero, fmt.Errorf("slot %q of %s is not bound", name, a.declaration)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("slot %q of %s: %T is not %s", name, a.declaration, v, typeKey(reflect.TypeOf((*T)(nil)).Elem()))
	}
	return typed, nil
}
