package syntax

import (
	"strings"

	"github.com/oxhq/plotnik/core"
)

// Node is a red-tree cursor over a green node: it carries the parent
// pointer and absolute offset the green tree omits. Nodes are cheap values
// created on demand while walking.
type Node struct {
	green  *greenNode
	parent *Node
	offset uint32
}

// Token is a red-tree cursor over a green token.
type Token struct {
	green  *greenToken
	parent *Node
	offset uint32
}

// Elem is a child element: exactly one of Node or Token is non-nil.
type Elem struct {
	Node  *Node
	Token *Token
}

// Kind returns the element's kind.
func (e Elem) Kind() Kind {
	if e.Token != nil {
		return e.Token.Kind()
	}
	return e.Node.Kind()
}

// Span returns the element's byte range.
func (e Elem) Span() core.Span {
	if e.Token != nil {
		return e.Token.Span()
	}
	return e.Node.Span()
}

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.green.kind }

// Span returns the byte range the node covers, trivia included.
func (n *Node) Span() core.Span {
	return core.NewSpan(n.offset, n.offset+n.green.textLen)
}

// Parent returns the parent node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Text reconstructs the exact source text of the subtree.
func (n *Node) Text() string {
	var b strings.Builder
	b.Grow(int(n.green.textLen))
	n.green.writeText(&b)
	return b.String()
}

// Children returns all child elements, trivia included.
func (n *Node) Children() []Elem {
	out := make([]Elem, 0, len(n.green.children))
	off := n.offset
	for _, c := range n.green.children {
		if c.token != nil {
			out = append(out, Elem{Token: &Token{green: c.token, parent: n, offset: off}})
		} else {
			out = append(out, Elem{Node: &Node{green: c.node, parent: n, offset: off}})
		}
		off += c.textLen()
	}
	return out
}

// ChildNodes returns child nodes only, skipping tokens.
func (n *Node) ChildNodes() []*Node {
	var out []*Node
	for _, c := range n.Children() {
		if c.Node != nil {
			out = append(out, c.Node)
		}
	}
	return out
}

// FirstChildOfKind returns the first child node with the given kind.
func (n *Node) FirstChildOfKind(kind Kind) *Node {
	for _, c := range n.Children() {
		if c.Node != nil && c.Node.Kind() == kind {
			return c.Node
		}
	}
	return nil
}

// FirstTokenOfKind returns the first non-trivia child token with the
// given kind.
func (n *Node) FirstTokenOfKind(kind Kind) *Token {
	for _, c := range n.Children() {
		if c.Token != nil && c.Token.Kind() == kind {
			return c.Token
		}
	}
	return nil
}

// Tokens returns the child tokens, optionally including trivia.
func (n *Node) Tokens(withTrivia bool) []*Token {
	var out []*Token
	for _, c := range n.Children() {
		if c.Token == nil {
			continue
		}
		if !withTrivia && c.Token.Kind().IsTrivia() {
			continue
		}
		out = append(out, c.Token)
	}
	return out
}

// Kind returns the token kind.
func (t *Token) Kind() Kind { return t.green.kind }

// Span returns the token byte range.
func (t *Token) Span() core.Span {
	return core.NewSpan(t.offset, t.offset+uint32(len(t.green.text)))
}

// Text returns the token's exact source text.
func (t *Token) Text() string { return t.green.text }

// Parent returns the token's parent node.
func (t *Token) Parent() *Node { return t.parent }

// dump writes an indented tree listing, used by tests and the CLI.
func dump(n *Node, b *strings.Builder, depth int, withTrivia bool) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent)
	b.WriteString(n.Kind().String())
	b.WriteString("@")
	b.WriteString(n.Span().String())
	b.WriteByte('\n')
	for _, c := range n.Children() {
		if c.Token != nil {
			if !withTrivia && c.Token.Kind().IsTrivia() {
				continue
			}
			b.WriteString(indent)
			b.WriteString("  ")
			b.WriteString(c.Token.Kind().String())
			b.WriteString("@")
			b.WriteString(c.Token.Span().String())
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(c.Token.Text(), "\n", "\\n"))
			b.WriteByte('\n')
		} else {
			dump(c.Node, b, depth+1, withTrivia)
		}
	}
}

// Dump returns an indented listing of the subtree. Trivia tokens are
// included only when withTrivia is set.
func Dump(n *Node, withTrivia bool) string {
	var b strings.Builder
	dump(n, &b, 0, withTrivia)
	return b.String()
}
