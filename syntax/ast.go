package syntax

// Typed accessors over the CST. Each type is a thin wrapper around a Node
// of the matching kind; accessors return nil when the underlying child is
// missing, which happens on recovered parses.

// Root is the top-level node holding definitions.
type Root struct{ node *Node }

// AsRoot casts a node to Root.
func AsRoot(n *Node) *Root {
	if n == nil || n.Kind() != KindRoot {
		return nil
	}
	return &Root{node: n}
}

// Syntax returns the underlying CST node.
func (r *Root) Syntax() *Node { return r.node }

// Defs returns the definitions in source order.
func (r *Root) Defs() []*Def {
	var out []*Def
	for _, c := range r.node.ChildNodes() {
		if d := AsDef(c); d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Def is `Name = expr` or a bare expression.
type Def struct{ node *Node }

// AsDef casts a node to Def.
func AsDef(n *Node) *Def {
	if n == nil || n.Kind() != KindDef {
		return nil
	}
	return &Def{node: n}
}

// Syntax returns the underlying CST node.
func (d *Def) Syntax() *Node { return d.node }

// Name returns the definition name token, or nil for an unnamed def.
func (d *Def) Name() *Token { return d.node.FirstTokenOfKind(KindUpper) }

// Body returns the definition body expression.
func (d *Def) Body() Expr {
	for _, c := range d.node.ChildNodes() {
		if e := AsExpr(c); e != nil {
			return e
		}
	}
	return nil
}

// Expr is any expression node.
type Expr interface {
	Syntax() *Node
	exprNode()
}

// AsExpr casts a node to the matching Expr variant.
func AsExpr(n *Node) Expr {
	if n == nil {
		return nil
	}
	switch n.Kind() {
	case KindTreeExpr:
		return &Tree{node: n}
	case KindAltExpr:
		return &Alt{node: n}
	case KindSeqExpr:
		return &Seq{node: n}
	case KindCaptured:
		return &Captured{node: n}
	case KindQuantified:
		return &Quantified{node: n}
	case KindFieldExpr:
		return &Field{node: n}
	case KindNegField:
		return &NegField{node: n}
	case KindRefExpr:
		return &Ref{node: n}
	case KindStrExpr:
		return &Str{node: n}
	case KindWildcard:
		return &Wildcard{node: n}
	case KindAnchor:
		return &Anchor{node: n}
	case KindPredicate:
		return &Predicate{node: n}
	}
	return nil
}

// childExprs returns the expression children of a node.
func childExprs(n *Node) []Expr {
	var out []Expr
	for _, c := range n.ChildNodes() {
		if e := AsExpr(c); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func firstChildExpr(n *Node) Expr {
	for _, c := range n.ChildNodes() {
		if e := AsExpr(c); e != nil {
			return e
		}
	}
	return nil
}

// Tree is a named-node pattern `(type item*)`.
type Tree struct{ node *Node }

func (t *Tree) Syntax() *Node { return t.node }
func (t *Tree) exprNode()     {}

// TypeToken returns the node-type token: a lower identifier, `_`,
// `ERROR`, or `MISSING`. Nil for a bare `(...)` group. The type token is
// the first non-trivia element after the opening paren.
func (t *Tree) TypeToken() *Token {
	seenOpen := false
	for _, c := range t.node.Children() {
		if c.Node != nil {
			return nil
		}
		tok := c.Token
		if tok.Kind().IsTrivia() {
			continue
		}
		if !seenOpen {
			if tok.Kind() == KindLParen {
				seenOpen = true
			}
			continue
		}
		switch tok.Kind() {
		case KindIdent, KindUpper, KindUnder:
			return tok
		}
		return nil
	}
	return nil
}

// SupertypeToken returns the narrowing token after `/`, if present.
func (t *Tree) SupertypeToken() *Token {
	seenSlash := false
	for _, c := range t.node.Children() {
		if c.Token == nil {
			if c.Node != nil {
				return nil
			}
			continue
		}
		if c.Token.Kind() == KindSlash {
			seenSlash = true
			continue
		}
		if seenSlash && c.Token.Kind() == KindIdent {
			return c.Token
		}
	}
	return nil
}

// Items returns the child items (fields, anchors, expressions).
func (t *Tree) Items() []Expr { return childExprs(t.node) }

// Alt is an alternation `[branch*]`.
type Alt struct{ node *Node }

func (a *Alt) Syntax() *Node { return a.node }
func (a *Alt) exprNode()     {}

// Branches returns the alternation branches in order.
func (a *Alt) Branches() []*Branch {
	var out []*Branch
	for _, c := range a.node.ChildNodes() {
		if c.Kind() == KindBranch {
			out = append(out, &Branch{node: c})
		}
	}
	return out
}

// AltKind classifies an alternation's branch labeling.
type AltKind uint8

const (
	AltUntagged AltKind = iota
	AltTagged
	AltMixed
	// AltEmpty has no branches at all; reported by the empty-construct check.
	AltEmpty
)

// Kind classifies the alternation by its branch labels.
func (a *Alt) Kind() AltKind {
	branches := a.Branches()
	if len(branches) == 0 {
		return AltEmpty
	}
	tagged, untagged := 0, 0
	for _, b := range branches {
		if b.Label() != nil {
			tagged++
		} else {
			untagged++
		}
	}
	switch {
	case tagged > 0 && untagged > 0:
		return AltMixed
	case tagged > 0:
		return AltTagged
	default:
		return AltUntagged
	}
}

// Branch is one alternation arm, optionally labeled.
type Branch struct{ node *Node }

// Syntax returns the underlying CST node.
func (b *Branch) Syntax() *Node { return b.node }

// Label returns the branch label token, or nil for an unlabeled branch.
func (b *Branch) Label() *Token {
	for _, c := range b.node.Children() {
		if c.Node != nil {
			return nil
		}
		if c.Token != nil && c.Token.Kind() == KindUpper {
			return c.Token
		}
	}
	return nil
}

// Body returns the branch body expression.
func (b *Branch) Body() Expr { return firstChildExpr(b.node) }

// Seq is a sequence group `{item*}`.
type Seq struct{ node *Node }

func (s *Seq) Syntax() *Node { return s.node }
func (s *Seq) exprNode()     {}

// Items returns the sequence items in order.
func (s *Seq) Items() []Expr { return childExprs(s.node) }

// Captured is `expr @name` with an optional `:: type` annotation.
type Captured struct{ node *Node }

func (c *Captured) Syntax() *Node { return c.node }
func (c *Captured) exprNode()     {}

// Inner returns the captured expression.
func (c *Captured) Inner() Expr { return firstChildExpr(c.node) }

// Name returns the capture name token following `@`.
func (c *Captured) Name() *Token {
	seenAt := false
	for _, e := range c.node.Children() {
		if e.Token == nil {
			continue
		}
		if e.Token.Kind() == KindAt {
			seenAt = true
			continue
		}
		if seenAt && (e.Token.Kind() == KindIdent || e.Token.Kind() == KindUpper) {
			return e.Token
		}
	}
	return nil
}

// TypeAnnotation returns the token after `::`, or nil.
func (c *Captured) TypeAnnotation() *Token {
	annot := c.node.FirstChildOfKind(KindTypeAnnot)
	if annot == nil {
		return nil
	}
	for _, e := range annot.Children() {
		if e.Token != nil && (e.Token.Kind() == KindIdent || e.Token.Kind() == KindUpper) {
			return e.Token
		}
	}
	return nil
}

// QuantKind is the quantifier operator.
type QuantKind uint8

const (
	QuantOpt  QuantKind = iota // ?
	QuantStar                  // *
	QuantPlus                  // +
)

// Quantified is `expr *`, `expr +`, or `expr ?`, each optionally lazy.
type Quantified struct{ node *Node }

func (q *Quantified) Syntax() *Node { return q.node }
func (q *Quantified) exprNode()     {}

// Inner returns the quantified expression.
func (q *Quantified) Inner() Expr { return firstChildExpr(q.node) }

// Kind returns the quantifier operator.
func (q *Quantified) Kind() QuantKind {
	if q.node.FirstTokenOfKind(KindStar) != nil {
		return QuantStar
	}
	if q.node.FirstTokenOfKind(KindPlus) != nil {
		return QuantPlus
	}
	return QuantOpt
}

// Lazy reports whether the quantifier carries the lazy `?` suffix.
func (q *Quantified) Lazy() bool {
	qmarks := 0
	for _, c := range q.node.Children() {
		if c.Token != nil && c.Token.Kind() == KindQuestion {
			qmarks++
		}
	}
	if q.Kind() == QuantOpt {
		return qmarks >= 2
	}
	return qmarks >= 1
}

// Field is `name: expr`.
type Field struct{ node *Node }

func (f *Field) Syntax() *Node { return f.node }
func (f *Field) exprNode()     {}

// Name returns the field name token.
func (f *Field) Name() *Token { return f.node.FirstTokenOfKind(KindIdent) }

// Value returns the field value expression.
func (f *Field) Value() Expr { return firstChildExpr(f.node) }

// NegField is `!name`: the parent must not populate the field.
type NegField struct{ node *Node }

func (f *NegField) Syntax() *Node { return f.node }
func (f *NegField) exprNode()     {}

// Name returns the negated field name token.
func (f *NegField) Name() *Token { return f.node.FirstTokenOfKind(KindIdent) }

// Ref is a reference to a named definition: `(Name)` or bare `Name`.
type Ref struct{ node *Node }

func (r *Ref) Syntax() *Node { return r.node }
func (r *Ref) exprNode()     {}

// Name returns the referenced definition name token.
func (r *Ref) Name() *Token { return r.node.FirstTokenOfKind(KindUpper) }

// Str is an anonymous-node pattern `"text"`.
type Str struct{ node *Node }

func (s *Str) Syntax() *Node { return s.node }
func (s *Str) exprNode()     {}

// Value returns the literal body with escape sequences resolved.
func (s *Str) Value() string {
	body := s.node.FirstTokenOfKind(KindStrVal)
	if body == nil {
		return ""
	}
	return unescape(body.Text())
}

// ValueToken returns the literal body token, or nil for an empty literal.
func (s *Str) ValueToken() *Token { return s.node.FirstTokenOfKind(KindStrVal) }

// Wildcard is `_` (any node) .
type Wildcard struct{ node *Node }

func (w *Wildcard) Syntax() *Node { return w.node }
func (w *Wildcard) exprNode()     {}

// Anchor is `.`, constraining child positions.
type Anchor struct{ node *Node }

func (a *Anchor) Syntax() *Node { return a.node }
func (a *Anchor) exprNode()     {}

// Predicate is `(#op @cap "arg")`.
type Predicate struct{ node *Node }

func (p *Predicate) Syntax() *Node { return p.node }
func (p *Predicate) exprNode()     {}

// OpToken returns the operator token (`#=~` etc).
func (p *Predicate) OpToken() *Token { return p.node.FirstTokenOfKind(KindPredOp) }

// CaptureName returns the referenced capture name token.
func (p *Predicate) CaptureName() *Token {
	seenAt := false
	for _, e := range p.node.Children() {
		if e.Token == nil {
			continue
		}
		if e.Token.Kind() == KindAt {
			seenAt = true
			continue
		}
		if seenAt && (e.Token.Kind() == KindIdent || e.Token.Kind() == KindUpper) {
			return e.Token
		}
	}
	return nil
}

// Arg returns the string argument, or nil if missing.
func (p *Predicate) Arg() *Str {
	child := p.node.FirstChildOfKind(KindStrExpr)
	if child == nil {
		return nil
	}
	return &Str{node: child}
}

// unescape resolves backslash escapes in a string literal body.
func unescape(s string) string {
	if !containsByte(s, '\\') {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}
