package analysis

import (
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/syntax"
)

// Arity tracks whether an expression matches one or many node positions.
type Arity uint8

const (
	ArityOne Arity = iota
	ArityMany
)

// Combine returns Many if either side is Many.
func (a Arity) Combine(b Arity) Arity {
	if a == ArityMany || b == ArityMany {
		return ArityMany
	}
	return ArityOne
}

// FlowKind classifies how an expression's value reaches its context.
type FlowKind uint8

const (
	// FlowVoid produces no value.
	FlowVoid FlowKind = iota
	// FlowScalar produces an opaque value (enum, ref, wrapper).
	FlowScalar
	// FlowBubble produces a struct whose fields merge into the enclosing
	// scope.
	FlowBubble
)

// TermInfo is the inferred arity and flow of one expression.
type TermInfo struct {
	Arity Arity
	Flow  FlowKind
	Type  TypeID
}

// ExprKey identifies an expression stably across red-tree traversals:
// red nodes are recreated on every walk, so identity is (source, span).
type ExprKey struct {
	Source core.SourceID
	Span   core.Span
}

// KeyOf computes the stable key of an expression.
func KeyOf(src core.SourceID, e syntax.Expr) ExprKey {
	return ExprKey{Source: src, Span: e.Syntax().Span()}
}

// Inference holds per-expression results for the compiler.
type Inference struct {
	Ctx *TypeContext
	// Info maps every expression to its TermInfo.
	Info map[ExprKey]TermInfo
	// DefInfo maps definition names to their body TermInfo.
	DefInfo map[string]TermInfo
	// QIS maps quantifier expressions to their propagating capture
	// names (two or more), which force an implicit per-iteration object.
	QIS map[ExprKey][]string

	graph *DepGraph
	diags *core.Diagnostics
}

// InferTypes runs SCC-ordered type inference over every definition.
func InferTypes(graph *DepGraph, diags *core.Diagnostics) *Inference {
	inf := &Inference{
		Ctx:     NewTypeContext(),
		Info:    make(map[ExprKey]TermInfo),
		DefInfo: make(map[string]TermInfo),
		QIS:     make(map[ExprKey][]string),
		graph:   graph,
		diags:   diags,
	}
	for _, scc := range graph.SCCs() {
		for _, id := range scc {
			def := graph.Definition(id)
			w := &inferWalker{inf: inf, def: def}
			info := w.infer(def.Body, false)
			inf.DefInfo[def.Name] = info
			inf.Ctx.SetDefType(id, defType(inf.Ctx, info))
		}
	}
	return inf
}

// defType converts a body's flow to the definition's declared type.
func defType(ctx *TypeContext, info TermInfo) TypeID {
	switch info.Flow {
	case FlowVoid:
		return bytecode.TypeVoidID
	default:
		return info.Type
	}
}

type inferWalker struct {
	inf *Inference
	def *Definition
}

func (w *inferWalker) key(e syntax.Expr) ExprKey {
	return KeyOf(w.def.Source, e)
}

func (w *inferWalker) errorf(span core.Span, format string, args ...any) core.Diagnostic {
	d := core.Errorf(core.StageTypeCheck, span, format, args...)
	d.Source = w.def.Source
	return d
}

// infer computes and records the TermInfo of e. captured is true when the
// immediate parent is a capture, which legitimizes QIS quantifiers.
func (w *inferWalker) infer(e syntax.Expr, captured bool) TermInfo {
	info := w.inferInner(e, captured)
	w.inf.Info[w.key(e)] = info
	return info
}

func (w *inferWalker) inferInner(e syntax.Expr, captured bool) TermInfo {
	switch e := e.(type) {
	case *syntax.Tree:
		scope := newScope(w)
		for _, item := range e.Items() {
			scope.addItem(item)
		}
		if structID, ok := scope.build(); ok {
			return TermInfo{Arity: ArityOne, Flow: FlowBubble, Type: structID}
		}
		return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}

	case *syntax.Seq:
		scope := newScope(w)
		arity := ArityOne
		for _, item := range e.Items() {
			itemInfo := scope.addItem(item)
			arity = arity.Combine(itemInfo.Arity)
		}
		if structID, ok := scope.build(); ok {
			return TermInfo{Arity: arity, Flow: FlowBubble, Type: structID}
		}
		return TermInfo{Arity: arity, Flow: FlowVoid, Type: bytecode.TypeVoidID}

	case *syntax.Alt:
		return w.inferAlt(e)

	case *syntax.Captured:
		return w.inferCaptured(e)

	case *syntax.Quantified:
		return w.inferQuantified(e, captured)

	case *syntax.Field:
		if value := e.Value(); value != nil {
			return w.infer(value, false)
		}
		return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}

	case *syntax.Ref:
		return w.inferRef(e)

	case *syntax.Wildcard, *syntax.Str, *syntax.Anchor, *syntax.NegField, *syntax.Predicate:
		return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}
	}
	return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}
}

func (w *inferWalker) inferAlt(a *syntax.Alt) TermInfo {
	ctx := w.inf.Ctx
	branches := a.Branches()

	if a.Kind() == syntax.AltTagged {
		var variants []VariantShape
		for _, b := range branches {
			body := b.Body()
			if body == nil || b.Label() == nil {
				continue
			}
			info := w.infer(body, false)
			variants = append(variants, VariantShape{Name: b.Label().Text(), Type: defType(ctx, info)})
		}
		enumID := ctx.Intern(Shape{Kind: bytecode.KindEnum, Variants: variants})
		return TermInfo{Arity: ArityOne, Flow: FlowScalar, Type: enumID}
	}

	// Untagged (or recovered mixed): structural merge. Fields present in
	// every branch stay required; branch-exclusive fields become
	// optional; scalar branches must agree on one type.
	type branchResult struct {
		info TermInfo
		span core.Span
	}
	var results []branchResult
	arity := ArityOne
	for _, b := range branches {
		body := b.Body()
		if body == nil {
			continue
		}
		info := w.infer(body, false)
		arity = arity.Combine(info.Arity)
		results = append(results, branchResult{info: info, span: body.Syntax().Span()})
	}
	if len(results) == 0 {
		return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}
	}

	allVoid := true
	allScalar := true
	for _, r := range results {
		if r.info.Flow != FlowVoid {
			allVoid = false
		}
		if r.info.Flow != FlowScalar {
			allScalar = false
		}
	}
	if allVoid {
		return TermInfo{Arity: arity, Flow: FlowVoid, Type: bytecode.TypeVoidID}
	}
	if allScalar {
		first := results[0]
		for _, r := range results[1:] {
			if ctx.ResolveRef(r.info.Type) != ctx.ResolveRef(first.info.Type) {
				w.inf.diags.Push(w.errorf(r.span,
					"alternation branches have conflicting types %s and %s",
					ctx.Format(first.info.Type), ctx.Format(r.info.Type)).
					WithRelated(first.span, "first branch type fixed here"))
				return TermInfo{Arity: arity, Flow: FlowVoid, Type: bytecode.TypeVoidID}
			}
		}
		return TermInfo{Arity: arity, Flow: FlowScalar, Type: first.info.Type}
	}

	// Structural merge of bubbles. Count per-field presence across
	// branches to decide optionality.
	presence := map[string]int{}
	fieldType := map[string]TypeID{}
	fieldSpan := map[string]core.Span{}
	fieldOptional := map[string]bool{}
	conflict := false
	for _, r := range results {
		if r.info.Flow != FlowBubble {
			continue
		}
		for _, f := range ctx.Shape(r.info.Type).Fields {
			presence[f.Name]++
			if prev, seen := fieldType[f.Name]; seen {
				if ctx.ResolveRef(prev) != ctx.ResolveRef(f.Type) {
					w.inf.diags.Push(w.errorf(r.span,
						"field `%s` has conflicting types %s and %s across branches",
						f.Name, ctx.Format(prev), ctx.Format(f.Type)).
						WithRelated(fieldSpan[f.Name], "first typed here"))
					conflict = true
				}
				fieldOptional[f.Name] = fieldOptional[f.Name] || f.Optional
				continue
			}
			fieldType[f.Name] = f.Type
			fieldSpan[f.Name] = r.span
			fieldOptional[f.Name] = f.Optional
		}
	}
	if conflict {
		return TermInfo{Arity: arity, Flow: FlowVoid, Type: bytecode.TypeVoidID}
	}
	var fields []FieldShape
	for name, count := range presence {
		fields = append(fields, FieldShape{
			Name:     name,
			Type:     fieldType[name],
			Optional: fieldOptional[name] || count < len(results),
		})
	}
	structID := ctx.Intern(Shape{Kind: bytecode.KindStruct, Fields: fields})
	return TermInfo{Arity: arity, Flow: FlowBubble, Type: structID}
}

func (w *inferWalker) inferCaptured(c *syntax.Captured) TermInfo {
	ctx := w.inf.Ctx
	inner := c.Inner()
	nameTok := c.Name()
	if inner == nil || nameTok == nil {
		return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}
	}
	innerInfo := w.infer(inner, true)

	var valType TypeID
	if q, isQuant := inner.(*syntax.Quantified); isQuant && c.TypeAnnotation() == nil {
		valType = w.quantifierValueType(q)
	} else {
		valType = w.captureValueType(c, inner, innerInfo)
	}
	field := FieldShape{Name: nameTok.Text(), Type: valType}

	// A capture on a tree keeps the tree's own bubbled fields alongside
	// the new binding; captures on sequences and alternations absorb
	// their inner fields into the bound value instead.
	if _, isTree := inner.(*syntax.Tree); isTree && innerInfo.Flow == FlowBubble {
		scope := newScope(w)
		scope.mergeStruct(innerInfo.Type, inner.Syntax().Span())
		scope.addField(field, nameTok.Span())
		structID, _ := scope.build()
		return TermInfo{Arity: innerInfo.Arity, Flow: FlowBubble, Type: structID}
	}

	structID := ctx.Intern(Shape{Kind: bytecode.KindStruct, Fields: []FieldShape{field}})
	return TermInfo{Arity: innerInfo.Arity, Flow: FlowBubble, Type: structID}
}

// captureValueType determines the bound value's type: the annotation if
// present, otherwise derived from the inner expression.
func (w *inferWalker) captureValueType(c *syntax.Captured, inner syntax.Expr, innerInfo TermInfo) TypeID {
	ctx := w.inf.Ctx
	if annot := c.TypeAnnotation(); annot != nil {
		switch annot.Text() {
		case "string", "text":
			return bytecode.TypeStringID
		case "node":
			return bytecode.TypeNodeID
		default:
			return ctx.Custom(annot.Text())
		}
	}
	switch inner.(type) {
	case *syntax.Tree, *syntax.Wildcard, *syntax.Str, *syntax.Field:
		// A capture on a node position binds the node itself; inner
		// bubbles keep flowing separately.
		return bytecode.TypeNodeID
	}
	switch innerInfo.Flow {
	case FlowVoid:
		return bytecode.TypeNodeID
	default:
		return innerInfo.Type
	}
}

func (w *inferWalker) inferQuantified(q *syntax.Quantified, captured bool) TermInfo {
	ctx := w.inf.Ctx
	inner := q.Inner()
	if inner == nil {
		return TermInfo{Arity: ArityMany, Flow: FlowVoid, Type: bytecode.TypeVoidID}
	}
	innerInfo := w.infer(inner, false)

	wrap := func(t TypeID) TypeID {
		switch q.Kind() {
		case syntax.QuantOpt:
			return ctx.Optional(t)
		case syntax.QuantPlus:
			return ctx.Array(t, true)
		default:
			return ctx.Array(t, false)
		}
	}

	switch innerInfo.Flow {
	case FlowVoid:
		return TermInfo{Arity: ArityMany, Flow: FlowVoid, Type: bytecode.TypeVoidID}

	case FlowScalar:
		return TermInfo{Arity: ArityMany, Flow: FlowScalar, Type: wrap(innerInfo.Type)}

	default:
		fields := ctx.Shape(innerInfo.Type).Fields
		if len(fields) >= 2 {
			// Quantifier-induced scope: each iteration wraps its captures
			// in an object so they stay coupled. The resulting array is
			// opaque and must itself be captured.
			names := make([]string, len(fields))
			for i, f := range fields {
				names[i] = f.Name
			}
			w.inf.QIS[w.key(q)] = names
			if !captured {
				w.inf.diags.Push(w.errorf(q.Syntax().Span(),
					"quantified expression with %d captures must itself be captured", len(fields)).
					WithFix("bind the iterations: `(...)"+quantSuffix(q)+" @name`"))
			}
			return TermInfo{Arity: ArityMany, Flow: FlowScalar, Type: wrap(innerInfo.Type)}
		}
		// A single capture hoists: the field becomes an array (or
		// optional) in the enclosing scope.
		f := fields[0]
		hoisted := ctx.Intern(Shape{Kind: bytecode.KindStruct, Fields: []FieldShape{{
			Name: f.Name,
			Type: wrap(f.Type),
		}}})
		return TermInfo{Arity: ArityMany, Flow: FlowBubble, Type: hoisted}
	}
}

// quantifierValueType computes the value a capture on a quantifier
// binds: the per-iteration value (node, struct of captures, or scalar)
// wrapped by the quantifier kind.
func (w *inferWalker) quantifierValueType(q *syntax.Quantified) TypeID {
	ctx := w.inf.Ctx
	element := bytecode.TypeNodeID
	if inner := q.Inner(); inner != nil {
		if info, ok := w.inf.Info[w.key(inner)]; ok && info.Flow != FlowVoid {
			element = info.Type
		}
	}
	switch q.Kind() {
	case syntax.QuantOpt:
		return ctx.Optional(element)
	case syntax.QuantPlus:
		return ctx.Array(element, true)
	default:
		return ctx.Array(element, false)
	}
}

func quantSuffix(q *syntax.Quantified) string {
	switch q.Kind() {
	case syntax.QuantOpt:
		return "?"
	case syntax.QuantPlus:
		return "+"
	default:
		return "*"
	}
}

func (w *inferWalker) inferRef(r *syntax.Ref) TermInfo {
	ctx := w.inf.Ctx
	name := r.Name()
	if name == nil {
		return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}
	}
	id, ok := w.inf.graph.ID(name.Text())
	if !ok {
		// Name resolution already diagnosed this; substitute Void so the
		// error does not cascade.
		return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}
	}
	if t, done := ctx.DefType(id); done {
		if t == bytecode.TypeVoidID {
			return TermInfo{Arity: ArityOne, Flow: FlowVoid, Type: bytecode.TypeVoidID}
		}
		return TermInfo{Arity: ArityOne, Flow: FlowScalar, Type: t}
	}
	// Same-SCC reference: use a placeholder resolved after the SCC
	// completes.
	return TermInfo{Arity: ArityOne, Flow: FlowScalar, Type: ctx.RefTo(id)}
}

// scope accumulates field contributions for a tree or sequence.
type scope struct {
	w      *inferWalker
	fields []FieldShape
	origin map[string]core.Span
	index  map[string]int
}

func newScope(w *inferWalker) *scope {
	return &scope{w: w, origin: map[string]core.Span{}, index: map[string]int{}}
}

// addItem infers an item and merges its bubble contribution.
func (s *scope) addItem(item syntax.Expr) TermInfo {
	info := s.w.infer(item, false)
	if info.Flow == FlowBubble {
		s.mergeStruct(info.Type, item.Syntax().Span())
	}
	return info
}

// mergeStruct merges an interned struct's fields into the scope.
func (s *scope) mergeStruct(structID TypeID, span core.Span) {
	for _, f := range s.w.inf.Ctx.Shape(structID).Fields {
		s.addField(f, span)
	}
}

// addField inserts one field, diagnosing type conflicts. Duplicate
// fields with equal types stay required.
func (s *scope) addField(f FieldShape, span core.Span) {
	ctx := s.w.inf.Ctx
	if i, dup := s.index[f.Name]; dup {
		prev := s.fields[i]
		if ctx.ResolveRef(prev.Type) != ctx.ResolveRef(f.Type) {
			s.w.inf.diags.Push(s.w.errorf(span,
				"capture `%s` has conflicting types %s and %s",
				f.Name, ctx.Format(prev.Type), ctx.Format(f.Type)).
				WithRelated(s.origin[f.Name], "first captured here"))
			return
		}
		// Equal types: required wins over optional.
		if !f.Optional {
			s.fields[i].Optional = false
		}
		return
	}
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
	s.origin[f.Name] = span
}

// build interns the accumulated struct; ok is false for an empty scope.
func (s *scope) build() (TypeID, bool) {
	if len(s.fields) == 0 {
		return bytecode.TypeVoidID, false
	}
	return s.w.inf.Ctx.Intern(Shape{Kind: bytecode.KindStruct, Fields: s.fields}), true
}
