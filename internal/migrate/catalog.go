package migrate

import (
	"sort"

	"mergerdesk.io/internal/apperr"
)

// Catalog is the validated revision graph.
type Catalog struct {
	nodes map[string]Revision
	// children inverts the parent edges.
	children map[string][]string
	// topo is a deterministic topological order over all revisions.
	topo []string
}

// NewCatalog validates and indexes the revisions. It refuses duplicate
// identifiers, unknown parents, cycles and merge nodes that carry
// operations.
func NewCatalog(revs ...Revision) (*Catalog, error) {
	c := &Catalog{
		nodes:    make(map[string]Revision, len(revs)),
		children: map[string][]string{},
	}
	for _, r := range revs {
		if r.ID == "" {
			return nil, apperr.New(apperr.KindBadInput, "REVISION_ID_EMPTY", "revision identifier is required")
		}
		if _, dup := c.nodes[r.ID]; dup {
			return nil, apperr.Newf(apperr.KindBadInput, "REVISION_ID_DUPLICATE", "revision %s registered twice", r.ID)
		}
		if r.IsMerge() && (r.Up != nil || r.Down != nil) {
			return nil, apperr.Newf(apperr.KindBadInput, "MERGE_NODE_HAS_OPS", "merge revision %s must not carry operations", r.ID)
		}
		c.nodes[r.ID] = r
	}
	for id, r := range c.nodes {
		for _, p := range r.Parents {
			if _, ok := c.nodes[p]; !ok {
				return nil, apperr.Newf(apperr.KindBadInput, "REVISION_PARENT_UNKNOWN", "revision %s references unknown parent %s", id, p)
			}
			c.children[p] = append(c.children[p], id)
		}
	}
	if err := c.sortTopo(); err != nil {
		return nil, err
	}
	return c, nil
}

// sortTopo is Kahn's algorithm with lexicographic tie-breaking so the
// order is stable across runs.
func (c *Catalog) sortTopo() error {
	indegree := make(map[string]int, len(c.nodes))
	for id, r := range c.nodes {
		indegree[id] = len(r.Parents)
	}
	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		c.topo = append(c.topo, id)
		next := append([]string(nil), c.children[id]...)
		sort.Strings(next)
		for _, child := range next {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
		sort.Strings(ready)
	}
	if len(c.topo) != len(c.nodes) {
		return apperr.New(apperr.KindBadInput, "REVISION_CYCLE", "revision graph contains a cycle")
	}
	return nil
}

// Revision looks up a node.
func (c *Catalog) Revision(id string) (Revision, bool) {
	r, ok := c.nodes[id]
	return r, ok
}

// Heads returns the revisions with no children, sorted. A healthy catalog
// ready for deployment has exactly one.
func (c *Catalog) Heads() []string {
	var heads []string
	for id := range c.nodes {
		if len(c.children[id]) == 0 {
			heads = append(heads, id)
		}
	}
	sort.Strings(heads)
	return heads
}

// ancestry returns the revision and all its transitive ancestors.
func (c *Catalog) ancestry(id string) map[string]bool {
	seen := map[string]bool{}
	var visit func(string)
	visit = func(cur string) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		for _, p := range c.nodes[cur].Parents {
			visit(p)
		}
	}
	if _, ok := c.nodes[id]; ok {
		visit(id)
	}
	return seen
}

// applied is the revision set an installation at the given head has run.
// An empty head means a pristine database.
func (c *Catalog) applied(head string) map[string]bool {
	if head == "" {
		return map[string]bool{}
	}
	return c.ancestry(head)
}

// UpgradePlan lists the revisions to apply, in order, to move from head to
// target. Every already-applied revision must be an ancestor of the
// target; diverged installations downgrade first.
func (c *Catalog) UpgradePlan(head, target string) ([]Revision, error) {
	if _, ok := c.nodes[target]; !ok {
		return nil, apperr.Newf(apperr.KindBadInput, "REVISION_UNKNOWN", "unknown target revision %s", target)
	}
	want := c.ancestry(target)
	done := c.applied(head)
	for id := range done {
		if !want[id] {
			return nil, apperr.Newf(apperr.KindBadInput, "REVISION_DIVERGED", "applied revision %s is not an ancestor of %s", id, target)
		}
	}
	var plan []Revision
	for _, id := range c.topo {
		if want[id] && !done[id] {
			plan = append(plan, c.nodes[id])
		}
	}
	return plan, nil
}

// DowngradePlan lists the revisions to reverse, newest first, to move
// from head back to target. An empty target means a pristine database.
func (c *Catalog) DowngradePlan(head, target string) ([]Revision, error) {
	if head == "" {
		return nil, nil
	}
	if _, ok := c.nodes[head]; !ok {
		return nil, apperr.Newf(apperr.KindBadInput, "REVISION_UNKNOWN", "unknown head revision %s", head)
	}
	keep := map[string]bool{}
	if target != "" {
		if _, ok := c.nodes[target]; !ok {
			return nil, apperr.Newf(apperr.KindBadInput, "REVISION_UNKNOWN", "unknown target revision %s", target)
		}
		keep = c.ancestry(target)
		if !c.ancestry(head)[target] {
			return nil, apperr.Newf(apperr.KindBadInput, "REVISION_DIVERGED", "target %s is not an ancestor of head %s", target, head)
		}
	}
	done := c.applied(head)
	var plan []Revision
	for i := len(c.topo) - 1; i >= 0; i-- {
		id := c.topo[i]
		if done[id] && !keep[id] {
			plan = append(plan, c.nodes[id])
		}
	}
	return plan, nil
}
