package container

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// EntryState is the state of one cached instance.
type EntryState int

const (
	Uninitialized EntryState = iota
	Creating
	Ready
	Destroyed
)

func (s EntryState) String() string {
	switch s {
	case Creating:
		return "creating"
	case Ready:
		return "ready"
	case Destroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

func (s EntryState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type entry struct {
	state    EntryState
	instance any
}

// scopeCache maps declaration ids to instances for one scope.
type scopeCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func (c *scopeCache) ready(id string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[id]; ok && e.state == Ready {
		return e.instance, true
	}
	return nil, false
}

func (c *scopeCache) state(id string) EntryState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[id]; ok {
		return e.state
	}
	return Uninitialized
}

func (c *scopeCache) set(id string, state EntryState, instance any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = &entry{state: state, instance: instance}
}

func (c *scopeCache) reset(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// record is one successful creation, kept for the destroy pass.
type record struct {
	node     *node
	instance any
}

// scopeManager owns one cache per scope and the global creation order.
// Creation of a group is exclusive per scope and group key; unrelated
// groups are created concurrently.
type scopeManager struct {
	mu      sync.Mutex
	caches  map[Scope]*scopeCache
	created []record
	closing bool

	flight singleflight.Group

	// waits-for bookkeeping across goroutines
	wmu    sync.Mutex
	owners map[string]flightOwner
	waits  map[*chain]string
}

// flightOwner is the chain running an in-flight group creation.
type flightOwner struct {
	chain *chain
	group *group
}

func newScopeManager() *scopeManager {
	return &scopeManager{
		caches: make(map[Scope]*scopeCache),
		owners: make(map[string]flightOwner),
		waits:  make(map[*chain]string),
	}
}

func (m *scopeManager) cache(s Scope) *scopeCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[s]
	if !ok {
		c = &scopeCache{entries: make(map[string]*entry)}
		m.caches[s] = c
	}
	return c
}

func (m *scopeManager) state(n *node) EntryState {
	if !n.decl.Scope.cached() {
		return Uninitialized
	}
	return m.cache(n.decl.Scope).state(n.id())
}

func (m *scopeManager) markCreating(g *group) {
	for _, n := range g.members {
		m.cache(n.decl.Scope).set(n.id(), Creating, nil)
	}
}

func (m *scopeManager) abandon(g *group) {
	for _, n := range g.members {
		m.cache(n.decl.Scope).reset(n.id())
	}
}

// commit publishes a created group in creation order. It refuses once the
// destroy pass has begun so nothing escapes it.
func (m *scopeManager) commit(order []*node, built map[*node]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	for _, n := range order {
		c := m.caches[n.decl.Scope]
		c.set(n.id(), Ready, built[n])
		m.created = append(m.created, record{node: n, instance: built[n]})
	}
	return true
}

// drain stops further commits and returns every live record, newest first.
func (m *scopeManager) drain() []record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closing = true
	out := reversed(m.created)
	m.created = nil
	return out
}

// drainScope removes and returns the records of one scope, newest first.
func (m *scopeManager) drainScope(s Scope) []record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keep, drop []record
	for _, r := range m.created {
		if r.node.decl.Scope == s {
			drop = append(drop, r)
		} else {
			keep = append(keep, r)
		}
	}
	m.created = keep
	return reversed(drop)
}

func reversed(in []record) []record {
	out := make([]record, len(in))
	for i, r := range in {
		out[len(in)-1-i] = r
	}
	return out
}

// ── Waits-for ─────────────────────────────────────────────────────────────────

// await records that ch is about to wait for the creation under key. If
// that creation transitively waits for a group held by ch, nothing is
// recorded and the group keys of the cycle are returned.
func (m *scopeManager) await(key string, ch *chain) []string {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	if path := m.cycle(key, ch); path != nil {
		return path
	}
	m.waits[ch] = key
	return nil
}

func (m *scopeManager) cycle(key string, ch *chain) []string {
	type step struct {
		key  string
		path []string
	}
	seen := map[string]bool{key: true}
	queue := []step{{key: key}}
	for len(queue) > 0 {
		st := queue[0]
		queue = queue[1:]
		owner, ok := m.owners[st.key]
		if !ok {
			continue
		}
		path := append(append([]string(nil), st.path...), owner.group.key)
		if ch.descends(owner.chain) {
			return append(path, path[0])
		}
		for waiter, next := range m.waits {
			if waiter.descends(owner.chain) && !seen[next] {
				seen[next] = true
				queue = append(queue, step{key: next, path: path})
			}
		}
	}
	return nil
}

// own marks ch as the creator of key. The creator no longer waits.
func (m *scopeManager) own(key string, ch *chain, g *group) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	m.owners[key] = flightOwner{chain: ch, group: g}
	delete(m.waits, ch)
}

func (m *scopeManager) disown(key string) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	delete(m.owners, key)
}

func (m *scopeManager) settle(ch *chain) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	delete(m.waits, ch)
}
