package bytecode

import "fmt"

// NodeKind is the 2-bit node constraint family in a Match header.
type NodeKind uint8

const (
	// NodeAny performs no type check (`_` pattern).
	NodeAny NodeKind = 0b00
	// NodeNamed constrains to named nodes (`(_)` or `(type)`).
	NodeNamed NodeKind = 0b01
	// NodeAnon constrains to anonymous nodes (`"text"`).
	NodeAnon NodeKind = 0b10
)

// NodeTypeIR is the node constraint of a Match instruction. Type of 0
// means "any node of the kind"; a non-zero value is a tree-sitter node
// type id to compare against.
//
//	| kind  | type=0              | type>0           |
//	| Any   | no check            | (invalid)        |
//	| Named | must be named       | type id must match |
//	| Anon  | must be anonymous   | type id must match |
type NodeTypeIR struct {
	Kind NodeKind
	Type uint16
}

// AnyNode matches any node.
func AnyNode() NodeTypeIR { return NodeTypeIR{Kind: NodeAny} }

// AnyNamed matches any named node.
func AnyNamed() NodeTypeIR { return NodeTypeIR{Kind: NodeNamed} }

// AnyAnon matches any anonymous node.
func AnyAnon() NodeTypeIR { return NodeTypeIR{Kind: NodeAnon} }

// Named matches a specific named node type.
func Named(id uint16) NodeTypeIR { return NodeTypeIR{Kind: NodeNamed, Type: id} }

// Anon matches a specific anonymous node type.
func Anon(id uint16) NodeTypeIR { return NodeTypeIR{Kind: NodeAnon, Type: id} }

// IsAny reports the unconstrained wildcard.
func (n NodeTypeIR) IsAny() bool { return n.Kind == NodeAny }

// HasTypeID reports a specific type-id constraint.
func (n NodeTypeIR) HasTypeID() bool { return n.Kind != NodeAny && n.Type != 0 }

// DecodeNodeType validates and assembles a node constraint from its
// header bits and type value.
func DecodeNodeType(kind uint8, typ uint16) (NodeTypeIR, error) {
	switch NodeKind(kind) {
	case NodeAny:
		if typ != 0 {
			return NodeTypeIR{}, fmt.Errorf("node kind Any with non-zero type %d", typ)
		}
		return AnyNode(), nil
	case NodeNamed:
		return NodeTypeIR{Kind: NodeNamed, Type: typ}, nil
	case NodeAnon:
		return NodeTypeIR{Kind: NodeAnon, Type: typ}, nil
	}
	return NodeTypeIR{}, fmt.Errorf("invalid node kind bits: %02b", kind)
}

func (n NodeTypeIR) String() string {
	switch n.Kind {
	case NodeAny:
		return "_"
	case NodeNamed:
		if n.Type == 0 {
			return "(_)"
		}
		return fmt.Sprintf("(#%d)", n.Type)
	default:
		if n.Type == 0 {
			return "\"_\""
		}
		return fmt.Sprintf("\"#%d\"", n.Type)
	}
}
