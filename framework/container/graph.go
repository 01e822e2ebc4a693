package container

import (
	"github.com/km-arc/go-ioc/framework/config"
)

// Rule names the disambiguation step that chose a binding.
type Rule int

const (
	RuleUniqueType Rule = iota
	RuleQualifier
	RuleName
)

func (r Rule) String() string {
	switch r {
	case RuleQualifier:
		return "qualifier-match"
	case RuleName:
		return "name-match"
	default:
		return "unique-type"
	}
}

func (r Rule) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Binding is one resolved slot: Declaration.Slot is filled by Target.
type Binding struct {
	Declaration string `json:"declaration"`
	Slot        string `json:"slot"`
	Target      string `json:"target"`
	Rule        Rule   `json:"rule"`
}

// ── Graph ─────────────────────────────────────────────────────────────────────

type node struct {
	decl  *Declaration
	index int

	// targets[i] is the chosen candidate of decl.Slots[i]; nil for value
	// slots and unbound optional slots.
	targets []*node

	group *group
}

func (n *node) id() string { return n.decl.ID }

// group is a strongly connected set of nodes over non-lazy edges. Members
// are created together under one creation lock. Most groups have one member.
type group struct {
	key     string
	members []*node
}

// graph is built once in the resolving phase and read without locks after.
type graph struct {
	nodes    []*node
	byName   map[string]*node
	byCap    map[Capability][]*node
	bindings []Binding
	order    []*node
}

func buildGraph(decls []*Declaration, props *config.Resolver) (*graph, error) {
	g := &graph{
		byName: make(map[string]*node),
		byCap:  make(map[Capability][]*node),
	}
	for i, d := range decls {
		n := &node{decl: d, index: i, targets: make([]*node, len(d.Slots))}
		for _, name := range append([]string{d.ID}, d.Aliases...) {
			if _, dup := g.byName[name]; dup {
				return nil, &DuplicateComponentIDError{ID: name}
			}
			g.byName[name] = n
		}
		for _, c := range d.Capabilities {
			g.byCap[c] = append(g.byCap[c], n)
		}
		g.nodes = append(g.nodes, n)
	}

	for _, n := range g.nodes {
		for i, s := range n.decl.Slots {
			if s.isValue() {
				if err := checkValue(props, s); err != nil {
					return nil, err
				}
				continue
			}
			target, rule, err := g.choose(n.decl, s)
			if err != nil {
				return nil, err
			}
			if target == nil {
				if s.Default != "" {
					if _, err := props.ResolvePlaceholders(s.Default); err != nil {
						return nil, err
					}
				}
				continue
			}
			n.targets[i] = target
			g.bindings = append(g.bindings, Binding{
				Declaration: n.id(),
				Slot:        s.Name,
				Target:      target.id(),
				Rule:        rule,
			})
		}
	}

	if err := g.detectHardCycles(); err != nil {
		return nil, err
	}
	if err := g.groupNodes(); err != nil {
		return nil, err
	}
	g.sort()
	return g, nil
}

// valueText is the text a value slot resolves.
func valueText(s Slot) string {
	if s.Value == "" {
		return s.Default
	}
	return s.Value
}

// checkValue fails fast on placeholders no source can satisfy. Expressions
// are evaluated at creation time, when beans can be referenced.
func checkValue(props *config.Resolver, s Slot) error {
	_, err := props.ResolvePlaceholders(valueText(s))
	if err == nil || !s.Optional {
		return err
	}
	if s.Default == "" {
		return nil
	}
	_, err = props.ResolvePlaceholders(s.Default)
	return err
}

// choose picks the candidate for a capability slot. A nil node with a nil
// error means an optional slot stays unbound.
func (g *graph) choose(d *Declaration, s Slot) (*node, Rule, error) {
	candidates := g.byCap[s.Capability]
	switch len(candidates) {
	case 0:
		return g.missing(d, s)
	case 1:
		return candidates[0], RuleUniqueType, nil
	}

	remaining := candidates
	if s.Qualifier != "" {
		remaining = filterNodes(candidates, func(n *node) bool { return n.decl.qualified(s.Qualifier) })
		if len(remaining) == 1 {
			return remaining[0], RuleQualifier, nil
		}
	}
	if s.NameHint != "" {
		pool := remaining
		if len(pool) == 0 {
			pool = candidates
		}
		named := filterNodes(pool, func(n *node) bool { return n.named(s.NameHint) })
		if len(named) == 1 {
			return named[0], RuleName, nil
		}
		if len(named) > 1 {
			remaining = named
		}
	}
	if len(remaining) == 0 {
		return g.missing(d, s)
	}

	return nil, 0, &AmbiguousDependencyError{
		Declaration: d.ID,
		Slot:        s.Name,
		Capability:  s.Capability,
		Candidates:  nodeIDs(remaining),
	}
}

func (g *graph) missing(d *Declaration, s Slot) (*node, Rule, error) {
	if s.Optional {
		return nil, 0, nil
	}
	return nil, 0, &MissingDependencyError{Declaration: d.ID, Slot: s.Name, Capability: s.Capability}
}

func (n *node) named(name string) bool {
	if n.decl.ID == name {
		return true
	}
	for _, a := range n.decl.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// ── Cycles ────────────────────────────────────────────────────────────────────

const (
	white = iota
	grey
	black
)

// detectHardCycles rejects any cycle made only of constructor edges. Such a
// cycle can never be satisfied because every member needs the others before
// it exists.
func (g *graph) detectHardCycles() error {
	color := make(map[*node]int, len(g.nodes))
	var stack []*node

	var visit func(n *node) error
	visit = func(n *node) error {
		color[n] = grey
		stack = append(stack, n)
		for i, t := range n.targets {
			if t == nil || !n.decl.Slots[i].hard() {
				continue
			}
			switch color[t] {
			case grey:
				return &CyclicDependencyError{Path: cyclePath(stack, t), Reason: "constructor injection"}
			case white:
				if err := visit(t); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, n := range g.nodes {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func cyclePath(stack []*node, to *node) []string {
	start := 0
	for i, n := range stack {
		if n == to {
			start = i
			break
		}
	}
	path := nodeIDs(stack[start:])
	return append(path, to.id())
}

// groupNodes assigns every node to its strongly connected component over
// non-lazy edges (Tarjan). Setter cycles end up in one group; cycles that
// involve prototypes or mix scopes cannot be created and are rejected.
func (g *graph) groupNodes() error {
	var (
		counter int
		index   = make(map[*node]int, len(g.nodes))
		low     = make(map[*node]int, len(g.nodes))
		onStack = make(map[*node]bool, len(g.nodes))
		stack   []*node
		failure error
	)

	var strong func(v *node)
	strong = func(v *node) {
		index[v], low[v] = counter, counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for i, w := range v.targets {
			if w == nil || v.decl.Slots[i].Lazy {
				continue
			}
			if _, seen := index[w]; !seen {
				strong(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var members []*node
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			members = append(members, w)
			if w == v {
				break
			}
		}
		if err := g.addGroup(members); err != nil && failure == nil {
			failure = err
		}
	}

	for _, n := range g.nodes {
		if _, seen := index[n]; !seen {
			strong(n)
		}
	}
	return failure
}

func (g *graph) addGroup(members []*node) error {
	// registration order
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && members[j].index < members[j-1].index; j-- {
			members[j], members[j-1] = members[j-1], members[j]
		}
	}
	grp := &group{key: members[0].id(), members: members}
	for _, m := range members {
		m.group = grp
	}

	if len(members) == 1 && !selfLoop(members[0]) {
		return nil
	}
	path := append(nodeIDs(members), members[0].id())
	scope := members[0].decl.Scope
	for _, m := range members {
		if m.decl.Scope == Prototype {
			return &CyclicDependencyError{Path: path, Reason: "cycle through prototype " + m.id()}
		}
		if m.decl.Scope != scope {
			return &CyclicDependencyError{Path: path, Reason: "cycle spans scopes " + string(scope) + " and " + string(m.decl.Scope)}
		}
	}
	return nil
}

func selfLoop(n *node) bool {
	for i, t := range n.targets {
		if t == n && !n.decl.Slots[i].Lazy {
			return true
		}
	}
	return false
}

// sort computes the creation order: dependencies before dependents,
// otherwise registration order.
func (g *graph) sort() {
	visited := make(map[*node]bool, len(g.nodes))
	var visit func(n *node)
	visit = func(n *node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for i, t := range n.targets {
			if t != nil && !n.decl.Slots[i].Lazy {
				visit(t)
			}
		}
		g.order = append(g.order, n)
	}
	for _, n := range g.nodes {
		visit(n)
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func filterNodes(in []*node, keep func(*node) bool) []*node {
	var out []*node
	for _, n := range in {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func nodeIDs(nodes []*node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.id()
	}
	return ids
}
