package analysis

import (
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/syntax"
)

// DefID is a dense identifier for a named definition, assigned in symbol
// table insertion order.
type DefID uint32

// DepGraph is the definition dependency graph. Edges follow Ref usage.
type DepGraph struct {
	table *SymbolTable
	ids   map[string]DefID
	// edges[from] lists referenced DefIDs, deduplicated, in first-use order.
	edges [][]DefID
	// sccs in leaf-first order.
	sccs [][]DefID
	// recursive marks definitions in a cycle (SCC size > 1 or self-edge).
	recursive map[DefID]bool
}

// BuildDeps constructs the dependency graph and computes SCCs.
// Unresolvable refs are ignored here; name resolution already diagnosed
// them.
func BuildDeps(table *SymbolTable) *DepGraph {
	g := &DepGraph{
		table:     table,
		ids:       make(map[string]DefID, table.Len()),
		edges:     make([][]DefID, table.Len()),
		recursive: make(map[DefID]bool),
	}
	for i, name := range table.Names() {
		g.ids[name] = DefID(i)
	}
	for i, name := range table.Names() {
		def, _ := table.Get(name)
		collector := &refCollector{graph: g, from: DefID(i), seen: map[DefID]bool{}}
		collector.Self = collector
		syntax.WalkDef(collector, def.Def)
	}
	g.computeSCCs()
	return g
}

// ID returns the DefID for a name.
func (g *DepGraph) ID(name string) (DefID, bool) {
	id, ok := g.ids[name]
	return id, ok
}

// Name returns the name for a DefID.
func (g *DepGraph) Name(id DefID) string { return g.table.Names()[id] }

// Definition returns the definition for a DefID.
func (g *DepGraph) Definition(id DefID) *Definition {
	def, _ := g.table.Get(g.Name(id))
	return def
}

// SCCs returns the strongly connected components in leaf-first order:
// every edge points from a later component to an earlier one.
func (g *DepGraph) SCCs() [][]DefID { return g.sccs }

// IsRecursive reports whether the definition participates in a cycle.
func (g *DepGraph) IsRecursive(id DefID) bool { return g.recursive[id] }

// SameSCC reports whether two definitions share a component.
func (g *DepGraph) SameSCC(a, b DefID) bool {
	for _, scc := range g.sccs {
		inA, inB := false, false
		for _, id := range scc {
			if id == a {
				inA = true
			}
			if id == b {
				inB = true
			}
		}
		if inA || inB {
			return inA && inB
		}
	}
	return false
}

type refCollector struct {
	syntax.BaseVisitor
	graph *DepGraph
	from  DefID
	seen  map[DefID]bool
}

func (c *refCollector) VisitRef(r *syntax.Ref) {
	name := r.Name()
	if name == nil {
		return
	}
	to, ok := c.graph.ids[name.Text()]
	if !ok || c.seen[to] {
		return
	}
	c.seen[to] = true
	c.graph.edges[c.from] = append(c.graph.edges[c.from], to)
}

// computeSCCs runs Tarjan's algorithm iteratively. Components are emitted
// leaf-first, which is exactly the order type inference wants.
func (g *DepGraph) computeSCCs() {
	n := len(g.edges)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []DefID
	counter := 0

	type frame struct {
		v    DefID
		edge int
	}

	for start := 0; start < n; start++ {
		if index[start] != -1 {
			continue
		}
		var frames []frame
		frames = append(frames, frame{v: DefID(start)})
		index[start] = counter
		low[start] = counter
		counter++
		stack = append(stack, DefID(start))
		onStack[start] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.v
			if f.edge < len(g.edges[v]) {
				w := g.edges[v][f.edge]
				f.edge++
				if index[w] == -1 {
					index[w] = counter
					low[w] = counter
					counter++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, frame{v: w})
				} else if onStack[w] {
					if index[w] < low[v] {
						low[v] = index[w]
					}
				}
				continue
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].v
				if low[v] < low[parent] {
					low[parent] = low[v]
				}
			}
			if low[v] == index[v] {
				var scc []DefID
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					scc = append(scc, w)
					if w == v {
						break
					}
				}
				g.sccs = append(g.sccs, scc)
			}
		}
	}

	for _, scc := range g.sccs {
		if len(scc) > 1 {
			for _, id := range scc {
				g.recursive[id] = true
			}
			continue
		}
		id := scc[0]
		for _, to := range g.edges[id] {
			if to == id {
				g.recursive[id] = true
			}
		}
	}
}

// ValidateRecursion rejects structurally unbounded recursion: a
// definition must not reach a reference back into its own SCC without
// first descending into a named node or consuming a preceding sequence
// item. Such a reference would call back at the same position forever.
func ValidateRecursion(g *DepGraph, diags *core.Diagnostics) {
	for _, scc := range g.sccs {
		for _, id := range scc {
			if !g.recursive[id] {
				continue
			}
			def := g.Definition(id)
			checkUnguarded(g, id, def, def.Body, false, diags)
		}
	}
}

// checkUnguarded walks an expression; guarded is true once the walk has
// passed a named-node descent or a consuming predecessor.
func checkUnguarded(g *DepGraph, self DefID, def *Definition, e syntax.Expr, guarded bool, diags *core.Diagnostics) {
	switch e := e.(type) {
	case *syntax.Ref:
		name := e.Name()
		if name == nil || guarded {
			return
		}
		to, ok := g.ID(name.Text())
		if !ok {
			return
		}
		if to == self || g.SameSCC(to, self) {
			d := core.Errorf(core.StageResolve, name.Span(),
				"unbounded recursion: `%s` refers back to itself before matching any node", name.Text()).
				WithFix("move the reference behind a named node or a preceding sequence item")
			d.Source = def.Source
			diags.Push(d)
		}
	case *syntax.Tree:
		// Items sit behind the node-type match: descending guards them.
		for _, item := range e.Items() {
			checkUnguarded(g, self, def, item, true, diags)
		}
	case *syntax.Seq:
		itemGuard := guarded
		for _, item := range e.Items() {
			checkUnguarded(g, self, def, item, itemGuard, diags)
			if consumesNode(item) {
				itemGuard = true
			}
		}
	case *syntax.Alt:
		for _, b := range e.Branches() {
			if body := b.Body(); body != nil {
				checkUnguarded(g, self, def, body, guarded, diags)
			}
		}
	case *syntax.Captured:
		if inner := e.Inner(); inner != nil {
			checkUnguarded(g, self, def, inner, guarded, diags)
		}
	case *syntax.Quantified:
		if inner := e.Inner(); inner != nil {
			checkUnguarded(g, self, def, inner, guarded, diags)
		}
	case *syntax.Field:
		if value := e.Value(); value != nil {
			checkUnguarded(g, self, def, value, guarded, diags)
		}
	}
}

// consumesNode reports whether matching the expression necessarily
// advances past at least one node.
func consumesNode(e syntax.Expr) bool {
	switch e := e.(type) {
	case *syntax.Tree, *syntax.Str, *syntax.Wildcard:
		return true
	case *syntax.Field:
		if v := e.Value(); v != nil {
			return consumesNode(v)
		}
		return false
	case *syntax.Captured:
		if inner := e.Inner(); inner != nil {
			return consumesNode(inner)
		}
		return false
	case *syntax.Quantified:
		// Only `+` guarantees a match.
		if e.Kind() == syntax.QuantPlus {
			if inner := e.Inner(); inner != nil {
				return consumesNode(inner)
			}
		}
		return false
	case *syntax.Seq:
		for _, item := range e.Items() {
			if consumesNode(item) {
				return true
			}
		}
		return false
	case *syntax.Alt:
		branches := e.Branches()
		if len(branches) == 0 {
			return false
		}
		for _, b := range branches {
			body := b.Body()
			if body == nil || !consumesNode(body) {
				return false
			}
		}
		return true
	case *syntax.Ref:
		// Conservative: the referenced body may be non-consuming.
		return false
	}
	return false
}
