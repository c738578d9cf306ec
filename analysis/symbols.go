// Package analysis implements semantic analysis for parsed queries:
// symbol resolution, dependency SCCs, structural validation, type
// inference, and grammar linking. Passes accumulate diagnostics and run
// in a fixed order; later passes skip work inside spans earlier passes
// already rejected.
package analysis

import (
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/syntax"
)

// UnnamedDef is the reserved symbol-table key for the single unnamed
// definition (a bare root expression).
const UnnamedDef = "_"

// Definition is one resolved `Name = expr` (or the unnamed root
// expression).
type Definition struct {
	Name   string
	Source core.SourceID
	Def    *syntax.Def
	Body   syntax.Expr
	// TrailingPreds are root-level predicates written after this
	// definition; they constrain its captures.
	TrailingPreds []*syntax.Predicate
}

// SymbolTable maps definition names to bodies in insertion order.
type SymbolTable struct {
	names []string
	byName map[string]*Definition
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]*Definition)}
}

// Insert adds a definition; returns false if the name already exists.
func (t *SymbolTable) Insert(def *Definition) bool {
	if _, dup := t.byName[def.Name]; dup {
		return false
	}
	t.names = append(t.names, def.Name)
	t.byName[def.Name] = def
	return true
}

// Get looks a definition up by name.
func (t *SymbolTable) Get(name string) (*Definition, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// Names returns the definition names in insertion order.
func (t *SymbolTable) Names() []string { return t.names }

// Len returns the number of definitions.
func (t *SymbolTable) Len() int { return len(t.names) }

// ParsedSource pairs a source id with its parse result.
type ParsedSource struct {
	Source core.SourceID
	Root   *syntax.Root
}

// ResolveNames runs the two-pass name resolution: collect all named
// definitions (duplicates diagnosed), then validate every reference with
// fuzzy suggestions. At most one unnamed definition is allowed across the
// workspace.
func ResolveNames(sources []ParsedSource, diags *core.Diagnostics) *SymbolTable {
	table := NewSymbolTable()

	var firstUnnamed *core.Span
	for _, src := range sources {
		var last *Definition
		for _, def := range src.Root.Defs() {
			body := def.Body()
			if body == nil {
				continue
			}
			// A root-level predicate constrains the preceding definition's
			// captures; it is not a definition of its own.
			if pred, ok := body.(*syntax.Predicate); ok {
				if last == nil {
					d := core.Errorf(core.StageValidate, pred.Syntax().Span(),
						"predicate without a preceding definition")
					d.Source = src.Source
					diags.Push(d)
					continue
				}
				last.TrailingPreds = append(last.TrailingPreds, pred)
				continue
			}
			if name := def.Name(); name != nil {
				d := &Definition{Name: name.Text(), Source: src.Source, Def: def, Body: body}
				if table.Insert(d) {
					last = d
				} else {
					dd := core.Errorf(core.StageResolve, name.Span(), "duplicate definition `%s`", d.Name)
					if prev, ok := table.Get(d.Name); ok && prev.Def.Name() != nil {
						dd = dd.WithRelated(prev.Def.Name().Span(), "first defined here")
					}
					dd.Source = src.Source
					diags.Push(dd)
				}
				continue
			}
			span := def.Syntax().Span()
			if firstUnnamed != nil {
				d := core.Errorf(core.StageResolve, span, "multiple unnamed definitions; only one bare expression is allowed").
					WithRelated(*firstUnnamed, "first unnamed definition here").
					WithFix("name this definition: `Name = ...`")
				d.Source = src.Source
				diags.Push(d)
				continue
			}
			firstUnnamed = &span
			d := &Definition{Name: UnnamedDef, Source: src.Source, Def: def, Body: body}
			table.Insert(d)
			last = d
		}
	}

	for _, src := range sources {
		v := &refValidator{table: table, source: src.Source, diags: diags}
		v.Self = v
		for _, def := range src.Root.Defs() {
			v.VisitDef(def)
		}
	}
	return table
}

type refValidator struct {
	syntax.BaseVisitor
	table  *SymbolTable
	source core.SourceID
	diags  *core.Diagnostics
}

func (v *refValidator) VisitRef(r *syntax.Ref) {
	name := r.Name()
	if name == nil {
		return
	}
	if _, ok := v.table.Get(name.Text()); ok {
		return
	}
	d := core.Errorf(core.StageResolve, name.Span(), "undefined reference `%s`", name.Text())
	if s := Suggest(name.Text(), v.table.Names()); s != "" && s != UnnamedDef {
		d = d.WithFix("did you mean `" + s + "`?")
	}
	d.Source = v.source
	v.diags.Push(d)
}
