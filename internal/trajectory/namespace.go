package trajectory

import (
	"sort"
	"strings"
	"sync"
)

// Namespace is a read-through projection over a flat dotted-name mapping.
// It owns no values: every lookup reads through to the trajectory, so a view
// stays current as parameters and results change. Intermediate groups
// (prefixes of longer names) materialize as child namespaces and are cached
// after first access.
type Namespace struct {
	prefix string // "" at the root, "traffic." inside a group
	get    func(full string) (any, bool)
	names  func() []string

	mu     sync.Mutex
	groups map[string]*Namespace
}

func newNamespace(prefix string, get func(string) (any, bool), names func() []string) *Namespace {
	return &Namespace{
		prefix: prefix,
		get:    get,
		names:  names,
		groups: make(map[string]*Namespace),
	}
}

// Get returns the value at a dotted name relative to this namespace, so
// traj.Parameters().Get("traffic.ncars") and
// traj.Parameters().Group("traffic").Get("ncars") read the same leaf.
func (n *Namespace) Get(name string) (any, bool) {
	return n.get(n.prefix + name)
}

// Has reports whether a leaf exists at the relative dotted name.
func (n *Namespace) Has(name string) bool {
	_, ok := n.Get(name)
	return ok
}

// Group returns the child namespace for one path segment. The group exists
// purely as a view; it is valid even if no leaf currently lives under it.
func (n *Namespace) Group(segment string) *Namespace {
	n.mu.Lock()
	defer n.mu.Unlock()
	if g, ok := n.groups[segment]; ok {
		return g
	}
	g := newNamespace(n.prefix+segment+".", n.get, n.names)
	n.groups[segment] = g
	return g
}

// HasGroup reports whether any leaf lives under the given segment.
func (n *Namespace) HasGroup(segment string) bool {
	want := n.prefix + segment + "."
	for _, full := range n.names() {
		if strings.HasPrefix(full, want) {
			return true
		}
	}
	return false
}

// Names returns the relative dotted names of all leaves under this namespace,
// in the underlying insertion order.
func (n *Namespace) Names() []string {
	var out []string
	for _, full := range n.names() {
		if n.prefix == "" {
			out = append(out, full)
			continue
		}
		if strings.HasPrefix(full, n.prefix) {
			out = append(out, full[len(n.prefix):])
		}
	}
	return out
}

// Groups returns the immediate child segment names, sorted.
func (n *Namespace) Groups() []string {
	seen := make(map[string]bool)
	for _, rel := range n.Names() {
		if i := strings.IndexByte(rel, '.'); i > 0 {
			seen[rel[:i]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for seg := range seen {
		out = append(out, seg)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of leaves under this namespace.
func (n *Namespace) Len() int {
	return len(n.Names())
}
