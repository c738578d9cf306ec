// Package vm executes bytecode modules against syntax trees: cursor
// navigation, instruction dispatch, checkpoint-based backtracking,
// cactus-stack call frames, and the effect stream the materializer
// replays into typed values.
package vm

import (
	"context"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Node is the tree shape the VM walks: typed, field-tagged, and
// child-indexable. The tree-sitter adapter implements it; tests use
// in-memory trees.
type Node interface {
	// TypeID is the grammar's node type id.
	TypeID() uint16
	// Kind is the node type name.
	Kind() string
	// Named distinguishes named nodes from anonymous tokens.
	Named() bool
	ChildCount() int
	Child(i int) Node
	// Field returns the field name this node occupies in its parent, or
	// "".
	Field() string
	StartByte() int
	EndByte() int
	// Text returns the node's source text.
	Text() string
}

// sitterNode adapts a tree-sitter node. Children and their field names
// are resolved lazily with a tree cursor and cached, because the
// underlying API exposes field names only during cursor traversal.
type sitterNode struct {
	node   *sitter.Node
	source []byte
	field  string

	once     sync.Once
	children []*sitterNode
}

// FromSitter wraps a parsed tree-sitter tree for execution.
func FromSitter(tree *sitter.Tree, source []byte) Node {
	return &sitterNode{node: tree.RootNode(), source: source}
}

func (n *sitterNode) resolveChildren() {
	n.once.Do(func() {
		cursor := sitter.NewTreeCursor(n.node)
		defer cursor.Close()
		if !cursor.GoToFirstChild() {
			return
		}
		for {
			n.children = append(n.children, &sitterNode{
				node:   cursor.CurrentNode(),
				source: n.source,
				field:  cursor.CurrentFieldName(),
			})
			if !cursor.GoToNextSibling() {
				break
			}
		}
	})
}

func (n *sitterNode) TypeID() uint16 { return uint16(n.node.Symbol()) }
func (n *sitterNode) Kind() string   { return n.node.Type() }
func (n *sitterNode) Named() bool    { return n.node.IsNamed() }

func (n *sitterNode) ChildCount() int {
	n.resolveChildren()
	return len(n.children)
}

func (n *sitterNode) Child(i int) Node {
	n.resolveChildren()
	return n.children[i]
}

func (n *sitterNode) Field() string  { return n.field }
func (n *sitterNode) StartByte() int { return int(n.node.StartByte()) }
func (n *sitterNode) EndByte() int   { return int(n.node.EndByte()) }

func (n *sitterNode) Text() string {
	return n.node.Content(n.source)
}

// Parse is a convenience that parses source with a tree-sitter language
// and wraps the root.
func Parse(lang *sitter.Language, source []byte) (Node, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.TODO(), nil, source)
	if err != nil {
		return nil, err
	}
	return FromSitter(tree, source), nil
}
