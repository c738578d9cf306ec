package syntax

// Visitor walks the AST depth-first. Embed BaseVisitor and override the
// hooks you need; call the Walk helpers to continue into children.
type Visitor interface {
	VisitDef(*Def)
	VisitTree(*Tree)
	VisitAlt(*Alt)
	VisitBranch(*Branch)
	VisitSeq(*Seq)
	VisitCaptured(*Captured)
	VisitQuantified(*Quantified)
	VisitField(*Field)
	VisitNegField(*NegField)
	VisitRef(*Ref)
	VisitStr(*Str)
	VisitWildcard(*Wildcard)
	VisitAnchor(*Anchor)
	VisitPredicate(*Predicate)
}

// Walk visits every definition of the root.
func Walk(v Visitor, root *Root) {
	for _, def := range root.Defs() {
		v.VisitDef(def)
	}
}

// WalkDef continues into a definition's body.
func WalkDef(v Visitor, def *Def) {
	if body := def.Body(); body != nil {
		WalkExpr(v, body)
	}
}

// WalkExpr dispatches to the matching visit hook.
func WalkExpr(v Visitor, e Expr) {
	switch e := e.(type) {
	case *Tree:
		v.VisitTree(e)
	case *Alt:
		v.VisitAlt(e)
	case *Seq:
		v.VisitSeq(e)
	case *Captured:
		v.VisitCaptured(e)
	case *Quantified:
		v.VisitQuantified(e)
	case *Field:
		v.VisitField(e)
	case *NegField:
		v.VisitNegField(e)
	case *Ref:
		v.VisitRef(e)
	case *Str:
		v.VisitStr(e)
	case *Wildcard:
		v.VisitWildcard(e)
	case *Anchor:
		v.VisitAnchor(e)
	case *Predicate:
		v.VisitPredicate(e)
	}
}

// WalkTree continues into a tree's items.
func WalkTree(v Visitor, t *Tree) {
	for _, item := range t.Items() {
		WalkExpr(v, item)
	}
}

// WalkAlt continues into an alternation's branches.
func WalkAlt(v Visitor, a *Alt) {
	for _, b := range a.Branches() {
		v.VisitBranch(b)
	}
}

// WalkBranch continues into a branch body.
func WalkBranch(v Visitor, b *Branch) {
	if body := b.Body(); body != nil {
		WalkExpr(v, body)
	}
}

// WalkSeq continues into a sequence's items.
func WalkSeq(v Visitor, s *Seq) {
	for _, item := range s.Items() {
		WalkExpr(v, item)
	}
}

// BaseVisitor implements Visitor by walking into children. Embed it and
// override the hooks of interest.
type BaseVisitor struct {
	// Self must point at the embedding visitor so Walk helpers dispatch
	// to overridden hooks.
	Self Visitor
}

func (b *BaseVisitor) self() Visitor {
	if b.Self != nil {
		return b.Self
	}
	return b
}

func (b *BaseVisitor) VisitDef(d *Def) { WalkDef(b.self(), d) }
func (b *BaseVisitor) VisitTree(t *Tree) {
	WalkTree(b.self(), t)
}
func (b *BaseVisitor) VisitAlt(a *Alt)     { WalkAlt(b.self(), a) }
func (b *BaseVisitor) VisitBranch(br *Branch) { WalkBranch(b.self(), br) }
func (b *BaseVisitor) VisitSeq(s *Seq)     { WalkSeq(b.self(), s) }
func (b *BaseVisitor) VisitCaptured(c *Captured) {
	if inner := c.Inner(); inner != nil {
		WalkExpr(b.self(), inner)
	}
}
func (b *BaseVisitor) VisitQuantified(q *Quantified) {
	if inner := q.Inner(); inner != nil {
		WalkExpr(b.self(), inner)
	}
}
func (b *BaseVisitor) VisitField(f *Field) {
	if value := f.Value(); value != nil {
		WalkExpr(b.self(), value)
	}
}
func (b *BaseVisitor) VisitNegField(*NegField)   {}
func (b *BaseVisitor) VisitRef(*Ref)             {}
func (b *BaseVisitor) VisitStr(*Str)             {}
func (b *BaseVisitor) VisitWildcard(*Wildcard)   {}
func (b *BaseVisitor) VisitAnchor(*Anchor)       {}
func (b *BaseVisitor) VisitPredicate(*Predicate) {}
