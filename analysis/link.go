package analysis

import (
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/lang"
	"github.com/oxhq/plotnik/syntax"
)

// Linked binds the analyzed query to a concrete grammar: node-type names
// become tree-sitter ids, field names become dense field ids, and the
// trivia allowlist is fixed.
type Linked struct {
	Grammar *lang.Grammar
	// Nodes maps tree and string expressions to their resolved node
	// constraint.
	Nodes map[ExprKey]bytecode.NodeTypeIR
	// FieldIDs assigns dense ids to referenced field names in first-use
	// order; instructions carry these ids.
	FieldIDs map[string]uint16
	// FieldNames lists field names by dense id.
	FieldNames []string
	// NodeNames maps referenced tree-sitter node type ids to their
	// names, for the module's node symbol table.
	NodeNames map[uint16]string
}

// ErrorSymbol is the tree-sitter symbol id of ERROR nodes.
const ErrorSymbol uint16 = 0xFFFF

// LinkGrammar resolves every node-type and field reference against the
// grammar. Unknown names produce diagnostics with fuzzy suggestions.
func LinkGrammar(table *SymbolTable, grammar *lang.Grammar, diags *core.Diagnostics) *Linked {
	l := &Linked{
		Grammar:   grammar,
		Nodes:     make(map[ExprKey]bytecode.NodeTypeIR),
		FieldIDs:  make(map[string]uint16),
		NodeNames: make(map[uint16]string),
	}
	for _, name := range table.Names() {
		def, _ := table.Get(name)
		v := &linkWalker{linked: l, def: def, diags: diags}
		v.Self = v
		syntax.WalkExpr(v, def.Body)
	}
	return l
}

// FieldID returns the dense id for a field name, interning it on first
// use.
func (l *Linked) FieldID(name string) uint16 {
	if id, ok := l.FieldIDs[name]; ok {
		return id
	}
	id := uint16(len(l.FieldNames))
	l.FieldIDs[name] = id
	l.FieldNames = append(l.FieldNames, name)
	return id
}

type linkWalker struct {
	syntax.BaseVisitor
	linked *Linked
	def    *Definition
	diags  *core.Diagnostics
}

func (v *linkWalker) errorf(span core.Span, format string, args ...any) core.Diagnostic {
	d := core.Errorf(core.StageLink, span, format, args...)
	d.Source = v.def.Source
	return d
}

func (v *linkWalker) VisitTree(t *syntax.Tree) {
	key := KeyOf(v.def.Source, t)
	g := v.linked.Grammar

	typeTok := t.TypeToken()
	switch {
	case typeTok == nil:
		// Bare group `( ... )`: any named node.
		v.linked.Nodes[key] = bytecode.AnyNamed()
	case typeTok.Kind() == syntax.KindUnder:
		v.linked.Nodes[key] = bytecode.AnyNamed()
	case typeTok.Text() == "ERROR":
		v.linked.Nodes[key] = bytecode.Named(ErrorSymbol)
		v.linked.NodeNames[ErrorSymbol] = "ERROR"
	case typeTok.Text() == "MISSING":
		v.diags.Push(v.errorf(typeTok.Span(), "MISSING node patterns are not supported"))
	default:
		name := typeTok.Text()
		// Supertype syntax narrows to the subtype: `(expr/identifier)`
		// matches identifier nodes.
		if sub := t.SupertypeToken(); sub != nil {
			if _, ok := g.LookupNode(name, true); !ok {
				v.pushUnknownNode(typeTok.Span(), name)
			}
			name = sub.Text()
			typeTok = sub
		}
		nt, ok := g.LookupNode(name, true)
		if !ok {
			v.pushUnknownNode(typeTok.Span(), name)
		} else {
			v.linked.Nodes[key] = bytecode.Named(nt.ID)
			v.linked.NodeNames[nt.ID] = nt.Name
		}
	}

	syntax.WalkTree(v.Self, t)
}

func (v *linkWalker) pushUnknownNode(span core.Span, name string) {
	d := v.errorf(span, "unknown node type `%s`", name)
	if s := Suggest(name, v.linked.Grammar.NodeTypeNames(true)); s != "" {
		d = d.WithFix("did you mean `" + s + "`?")
	}
	v.diags.Push(d)
}

func (v *linkWalker) VisitStr(s *syntax.Str) {
	key := KeyOf(v.def.Source, s)
	text := s.Value()
	nt, ok := v.linked.Grammar.LookupNode(text, false)
	if !ok {
		span := s.Syntax().Span()
		if body := s.ValueToken(); body != nil {
			span = body.Span()
		}
		d := v.errorf(span, "unknown anonymous node `%s`", text)
		if sug := Suggest(text, v.linked.Grammar.NodeTypeNames(false)); sug != "" {
			d = d.WithFix("did you mean `" + sug + "`?")
		}
		v.diags.Push(d)
		return
	}
	v.linked.Nodes[key] = bytecode.Anon(nt.ID)
	v.linked.NodeNames[nt.ID] = nt.Name
}

func (v *linkWalker) VisitField(f *syntax.Field) {
	if name := f.Name(); name != nil {
		v.checkField(name)
	}
	if value := f.Value(); value != nil {
		syntax.WalkExpr(v.Self, value)
	}
}

func (v *linkWalker) VisitNegField(f *syntax.NegField) {
	if name := f.Name(); name != nil {
		v.checkField(name)
	}
}

func (v *linkWalker) checkField(name *syntax.Token) {
	if !v.linked.Grammar.HasField(name.Text()) {
		d := v.errorf(name.Span(), "grammar `%s` declares no field `%s`",
			v.linked.Grammar.Name(), name.Text())
		if s := Suggest(name.Text(), v.linked.Grammar.FieldNames()); s != "" {
			d = d.WithFix("did you mean `" + s + "`?")
		}
		v.diags.Push(d)
		return
	}
	v.linked.FieldID(name.Text())
}
