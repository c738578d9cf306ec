package syntax

import "strings"

// greenToken is an immutable leaf: kind plus its exact source text.
type greenToken struct {
	kind Kind
	text string
}

// greenNode is an immutable interior node owning its children. Nodes store
// cumulative text length so red cursors can compute absolute offsets.
type greenNode struct {
	kind     Kind
	children []greenElem
	textLen  uint32
}

// greenElem is either a node or a token (exactly one is non-nil).
type greenElem struct {
	node  *greenNode
	token *greenToken
}

func (e greenElem) textLen() uint32 {
	if e.token != nil {
		return uint32(len(e.token.text))
	}
	return e.node.textLen
}

func newGreenNode(kind Kind, children []greenElem) *greenNode {
	var total uint32
	for _, c := range children {
		total += c.textLen()
	}
	return &greenNode{kind: kind, children: children, textLen: total}
}

// writeText reconstructs the exact source text of the subtree.
func (n *greenNode) writeText(b *strings.Builder) {
	for _, c := range n.children {
		if c.token != nil {
			b.WriteString(c.token.text)
		} else {
			c.node.writeText(b)
		}
	}
}

// Builder assembles a green tree bottom-up with support for retroactive
// wrapping: a checkpoint taken before parsing an atom lets a suffix
// (quantifier, capture) wrap the already-built children without
// re-parsing.
type Builder struct {
	// Open node stack: parallel kind/mark slices. mark is the index into
	// elems where the node's children begin.
	kinds []Kind
	marks []int
	// Flat stack of completed elements not yet claimed by a finished node.
	elems []greenElem
}

// Checkpoint marks the current position for later StartNodeAt wrapping.
type Checkpoint int

// StartNode opens a node of the given kind.
func (b *Builder) StartNode(kind Kind) {
	b.kinds = append(b.kinds, kind)
	b.marks = append(b.marks, len(b.elems))
}

// Checkpoint returns a marker before the next child element.
func (b *Builder) Checkpoint() Checkpoint {
	return Checkpoint(len(b.elems))
}

// StartNodeAt opens a node that retroactively claims every element built
// since the checkpoint as its leading children.
func (b *Builder) StartNodeAt(cp Checkpoint, kind Kind) {
	if int(cp) > len(b.elems) {
		panic("syntax: checkpoint beyond builder position")
	}
	b.kinds = append(b.kinds, kind)
	b.marks = append(b.marks, int(cp))
}

// FinishNode closes the most recently started node.
func (b *Builder) FinishNode() {
	top := len(b.kinds) - 1
	kind := b.kinds[top]
	mark := b.marks[top]
	b.kinds = b.kinds[:top]
	b.marks = b.marks[:top]

	children := append([]greenElem{}, b.elems[mark:]...)
	b.elems = append(b.elems[:mark], greenElem{node: newGreenNode(kind, children)})
}

// Token appends a leaf token to the current node.
func (b *Builder) Token(kind Kind, text string) {
	b.elems = append(b.elems, greenElem{token: &greenToken{kind: kind, text: text}})
}

// Finish returns the completed root. All started nodes must be finished
// and exactly one root element must remain.
func (b *Builder) Finish() *greenNode {
	if len(b.kinds) != 0 {
		panic("syntax: unfinished nodes in builder")
	}
	if len(b.elems) != 1 || b.elems[0].node == nil {
		panic("syntax: builder must finish with a single root node")
	}
	return b.elems[0].node
}
