// Package compile lowers analyzed queries to the instruction IR:
// Thompson-style NFA construction with symbolic labels and deferred
// member references, followed by the optimization passes (epsilon
// elimination, up-collapse, dead-code elimination, size lowering).
// Labels become concrete step ids during emit layout.
package compile

import (
	"fmt"

	"github.com/oxhq/plotnik/analysis"
	"github.com/oxhq/plotnik/bytecode"
)

// Label is a symbolic instruction id, dense per compilation.
type Label uint32

// MemberRefKind selects how an effect's member index resolves.
type MemberRefKind uint8

const (
	// RefAbsolute is an already-resolved index into the member pool.
	RefAbsolute MemberRefKind = iota
	// RefByName resolves (parent struct type, field name) after the type
	// table pools all members.
	RefByName
	// RefByIndex resolves (parent enum type, variant position) relative
	// to the parent's member base.
	RefByIndex
)

// MemberRef is a deferred member reference. Composite member indices are
// absolute into the pooled member array, which exists only after the
// type table is finalized.
type MemberRef struct {
	Kind   MemberRefKind
	Abs    uint16
	Parent analysis.TypeID
	Name   string
	Rel    uint16
}

// AbsoluteRef creates a resolved member reference.
func AbsoluteRef(idx uint16) MemberRef { return MemberRef{Kind: RefAbsolute, Abs: idx} }

// NameRef defers to (parent, field name).
func NameRef(parent analysis.TypeID, name string) MemberRef {
	return MemberRef{Kind: RefByName, Parent: parent, Name: name}
}

// IndexRef defers to (parent, relative variant index).
func IndexRef(parent analysis.TypeID, rel uint16) MemberRef {
	return MemberRef{Kind: RefByIndex, Parent: parent, Rel: rel}
}

func (r MemberRef) String() string {
	switch r.Kind {
	case RefAbsolute:
		return fmt.Sprintf("@%d", r.Abs)
	case RefByName:
		return fmt.Sprintf("@%d.%s", r.Parent, r.Name)
	default:
		return fmt.Sprintf("@%d+%d", r.Parent, r.Rel)
	}
}

// EffectIR is an effect with a possibly-deferred member operand.
type EffectIR struct {
	Op     bytecode.EffectOpcode
	Member MemberRef
}

// Eff creates a memberless effect.
func Eff(op bytecode.EffectOpcode) EffectIR { return EffectIR{Op: op} }

func (e EffectIR) String() string {
	if e.Op.HasPayload() {
		return fmt.Sprintf("%s%s", e.Op, e.Member)
	}
	return e.Op.String()
}

// PredIR is a predicate before table interning: the operator plus its
// raw argument text.
type PredIR struct {
	Op  bytecode.PredicateOp
	Arg string
}

// InstrIR is one IR instruction.
type InstrIR interface {
	IRLabel() Label
	// Successors lists outgoing labels (Call includes target and return).
	Successors() []Label
}

// MatchIR is the match/epsilon instruction form.
type MatchIR struct {
	Label Label
	Nav   bytecode.Nav
	Type  bytecode.NodeTypeIR
	// Field, when set, is the dense field id the node must occupy.
	Field    uint16
	HasField bool
	// NegFields lists dense field ids no child may occupy.
	NegFields []uint16
	Pre       []EffectIR
	Post      []EffectIR
	Preds     []PredIR
	Succs     []Label
}

func (m *MatchIR) IRLabel() Label { return m.Label }

func (m *MatchIR) Successors() []Label { return m.Succs }

// IsPureEpsilon reports an effectless, checkless epsilon: candidate for
// elimination.
func (m *MatchIR) IsPureEpsilon() bool {
	return m.Nav.IsEpsilon() && m.Type.IsAny() && !m.HasField &&
		len(m.NegFields) == 0 && len(m.Pre) == 0 && len(m.Post) == 0 && len(m.Preds) == 0
}

// IsEffectless reports no effects or constraints beyond navigation.
func (m *MatchIR) IsEffectless() bool {
	return m.Type.IsAny() && !m.HasField && len(m.NegFields) == 0 &&
		len(m.Pre) == 0 && len(m.Post) == 0 && len(m.Preds) == 0
}

// CallIR invokes a definition.
type CallIR struct {
	Label    Label
	Nav      bytecode.Nav
	Target   Label
	ReturnTo Label
}

func (c *CallIR) IRLabel() Label { return c.Label }

func (c *CallIR) Successors() []Label { return []Label{c.Target, c.ReturnTo} }

// ReturnIR ends a definition body.
type ReturnIR struct {
	Label Label
}

func (r *ReturnIR) IRLabel() Label { return r.Label }

func (r *ReturnIR) Successors() []Label { return nil }

// Result is the compiled IR before emission.
type Result struct {
	Instrs []InstrIR
	// DefEntries maps definition names to their entry labels.
	DefEntries map[string]Label
	// EntryOrder lists entrypoint definitions, default first.
	EntryOrder []string
	// Analysis carries the inference results emit needs for the type
	// table.
	Analysis *analysis.Result

	// splitNext allocates labels for instructions added by the
	// size-lowering pass.
	splitNext Label
}

// instrByLabel builds a label index; nil entries mark removed labels.
func (r *Result) instrByLabel() map[Label]InstrIR {
	out := make(map[Label]InstrIR, len(r.Instrs))
	for _, in := range r.Instrs {
		out[in.IRLabel()] = in
	}
	return out
}

// EntryLabels returns all roots for reachability: every entrypoint
// definition's entry.
func (r *Result) EntryLabels() []Label {
	var out []Label
	seen := map[Label]bool{}
	for _, name := range r.EntryOrder {
		if l, ok := r.DefEntries[name]; ok && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
