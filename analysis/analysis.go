package analysis

import (
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/lang"
)

// Result is the analyzed form of a workspace: everything the compiler
// needs, plus the accumulated diagnostics.
type Result struct {
	Sources    []ParsedSource
	Table      *SymbolTable
	Graph      *DepGraph
	Inference  *Inference
	Predicates map[string][]CapturePredicate
	// Linked is nil until Link binds a grammar.
	Linked *Linked
}

// Analyze runs the semantic passes in their fixed order: structural
// validation, name resolution, dependency SCCs with recursion checks,
// type inference, and predicate validation. Later passes still run after
// earlier errors; they substitute Void flows instead of cascading.
func Analyze(sources []ParsedSource, diags *core.Diagnostics) *Result {
	ValidateStructure(sources, diags)
	table := ResolveNames(sources, diags)
	graph := BuildDeps(table)
	ValidateRecursion(graph, diags)
	inference := InferTypes(graph, diags)
	predicates := ValidatePredicates(table, diags)

	return &Result{
		Sources:    sources,
		Table:      table,
		Graph:      graph,
		Inference:  inference,
		Predicates: predicates,
	}
}

// Link binds the analyzed workspace to a grammar, resolving node types
// and field names to concrete ids.
func (r *Result) Link(grammar *lang.Grammar, diags *core.Diagnostics) *Linked {
	r.Linked = LinkGrammar(r.Table, grammar, diags)
	return r.Linked
}

// EntryNames returns the definition names that become module
// entrypoints: the unnamed definition (if any) first, then named
// definitions in declaration order.
func (r *Result) EntryNames() []string {
	var out []string
	if _, ok := r.Table.Get(UnnamedDef); ok {
		out = append(out, UnnamedDef)
	}
	for _, name := range r.Table.Names() {
		if name != UnnamedDef {
			out = append(out, name)
		}
	}
	return out
}
