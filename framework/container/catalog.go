package container

import (
	"fmt"

	"github.com/google/uuid"
)

// catalog holds declarations in registration order. Ids may repeat until
// the activation filter has run, so profile variants of one component can
// be declared side by side.
type catalog struct {
	decls []*Declaration
}

// add validates d and stores a normalized copy.
func (c *catalog) add(d Declaration) (*Declaration, error) {
	if d.ID == "" {
		prefix := "component"
		if len(d.Capabilities) > 0 {
			prefix = string(d.Capabilities[0])
		}
		d.ID = prefix + "#" + uuid.NewString()[:8]
	}
	if err := validate(&d); err != nil {
		return nil, err
	}
	if d.Scope == "" {
		d.Scope = Singleton
	}

	d.Capabilities = uniqueCaps(d.Capabilities)
	d.Qualifiers = unique(d.Qualifiers, "")
	d.Aliases = unique(d.Aliases, d.ID)
	d.Slots = append([]Slot(nil), d.Slots...)
	d.InitHooks = append([]Hook(nil), d.InitHooks...)
	d.DestroyHooks = append([]Hook(nil), d.DestroyHooks...)

	stored := &d
	c.decls = append(c.decls, stored)
	return stored, nil
}

// find returns every declaration registered under id.
func (c *catalog) find(id string) []*Declaration {
	var out []*Declaration
	for _, d := range c.decls {
		if d.ID == id {
			out = append(out, d)
		}
	}
	return out
}

func validate(d *Declaration) error {
	invalid := func(format string, args ...any) error {
		return &InvalidLifecycleHookError{Declaration: d.ID, Reason: fmt.Sprintf(format, args...)}
	}
	if d.Recipe == nil {
		return invalid("no recipe")
	}
	for i, h := range d.InitHooks {
		if h.Run == nil {
			return invalid("init hook %d (%s) has no function", i, h.Name)
		}
	}
	for i, h := range d.DestroyHooks {
		if h.Run == nil {
			return invalid("destroy hook %d (%s) has no function", i, h.Name)
		}
	}
	seen := make(map[string]bool, len(d.Slots))
	for i, s := range d.Slots {
		if s.Name == "" {
			return invalid("slot %d has no name", i)
		}
		if seen[s.Name] {
			return invalid("slot %q declared twice", s.Name)
		}
		seen[s.Name] = true
		if s.Injection == InjectSetter && s.Set == nil {
			return invalid("setter slot %q has no setter", s.Name)
		}
		if s.isValue() && s.Value == "" && s.Default == "" {
			return invalid("slot %q has neither a capability nor a value", s.Name)
		}
		if s.isValue() && s.Lazy {
			return invalid("value slot %q cannot be lazy", s.Name)
		}
	}
	return nil
}

func uniqueCaps(in []Capability) []Capability {
	seen := make(map[Capability]bool, len(in))
	out := in[:0:0]
	for _, c := range in {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func unique(in []string, skip string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if s == "" || s == skip || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
