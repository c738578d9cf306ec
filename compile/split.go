package compile

import (
	"fmt"

	"github.com/oxhq/plotnik/bytecode"
)

// maxSuccessors is the 4-bit successor-count cap of the Match header.
const maxSuccessors = 15

// LowerSizes rewrites oversized Match instructions until every one fits
// a concrete Match variant: extra predicates become a chain of StayExact
// checks, overflowing effects siphon into leading/trailing epsilons, and
// wide fan-outs cascade through epsilon layers.
func LowerSizes(r *Result) error {
	for pass := 0; pass < 16; pass++ {
		changed := false
		var added []InstrIR
		for _, in := range r.Instrs {
			m, ok := in.(*MatchIR)
			if !ok {
				continue
			}
			if extra := c_splitPredicates(r, m, &added); extra {
				changed = true
			}
			if extra := c_cascadeSuccessors(r, m, &added); extra {
				changed = true
			}
			if extra := c_siphonEffects(r, m, &added); extra {
				changed = true
			}
		}
		r.Instrs = append(r.Instrs, added...)
		if !changed {
			break
		}
	}

	for _, in := range r.Instrs {
		m, ok := in.(*MatchIR)
		if !ok {
			continue
		}
		if slots := matchSlots(m); slots > bytecode.MaxMatchPayloadSlots {
			return fmt.Errorf("instruction %d still overflows Match64 after size lowering: %d slots", m.Label, slots)
		}
		if len(m.Succs) > maxSuccessors {
			return fmt.Errorf("instruction %d still has %d successors after size lowering", m.Label, len(m.Succs))
		}
		if len(m.Preds) > 1 {
			return fmt.Errorf("instruction %d still has %d predicates after size lowering", m.Label, len(m.Preds))
		}
	}
	return nil
}

// matchSlots mirrors the encoder's slot accounting.
func matchSlots(m *MatchIR) int {
	n := len(m.Pre) + len(m.Post) + len(m.NegFields) + len(m.Succs)
	if m.HasField {
		n++
	}
	if len(m.Preds) > 0 {
		n += 2
	}
	return n
}

// c_splitPredicates keeps the first predicate on the match and chains
// the rest through StayExact re-checks of the same node.
func c_splitPredicates(r *Result, m *MatchIR, added *[]InstrIR) bool {
	if len(m.Preds) <= 1 {
		return false
	}
	rest := m.Preds[1:]
	m.Preds = m.Preds[:1]

	succs := m.Succs
	prev := m
	for _, p := range rest {
		check := &MatchIR{
			Label: r.nextLabel(),
			Nav:   bytecode.StayExact(),
			Type:  bytecode.AnyNode(),
			Preds: []PredIR{p},
		}
		*added = append(*added, check)
		prev.Succs = []Label{check.Label}
		prev = check
	}
	prev.Succs = succs
	return true
}

// c_cascadeSuccessors fans successor lists beyond the header's 4-bit
// count through epsilon layers, preserving try order.
func c_cascadeSuccessors(r *Result, m *MatchIR, added *[]InstrIR) bool {
	budget := maxSuccessors
	if slots := matchSlots(m) - len(m.Succs); bytecode.MaxMatchPayloadSlots-slots < budget {
		budget = bytecode.MaxMatchPayloadSlots - slots
	}
	if budget < 2 {
		budget = 2
	}
	if len(m.Succs) <= budget {
		return false
	}

	var layer []Label
	for start := 0; start < len(m.Succs); start += budget {
		end := start + budget
		if end > len(m.Succs) {
			end = len(m.Succs)
		}
		eps := &MatchIR{
			Label: r.nextLabel(),
			Nav:   bytecode.Epsilon(),
			Type:  bytecode.AnyNode(),
			Succs: append([]Label{}, m.Succs[start:end]...),
		}
		*added = append(*added, eps)
		layer = append(layer, eps.Label)
	}
	m.Succs = layer
	return true
}

// c_siphonEffects relieves slot pressure by moving post-effects to a
// trailing epsilon and, if needed, pre-effects to a leading epsilon that
// takes over the match's label.
func c_siphonEffects(r *Result, m *MatchIR, added *[]InstrIR) bool {
	if matchSlots(m) <= bytecode.MaxMatchPayloadSlots {
		return false
	}

	// Trailing epsilon for post-effects.
	if len(m.Post) > 0 {
		tail := &MatchIR{
			Label: r.nextLabel(),
			Nav:   bytecode.Epsilon(),
			Type:  bytecode.AnyNode(),
			Post:  m.Post,
			Succs: m.Succs,
		}
		*added = append(*added, tail)
		m.Post = nil
		m.Succs = []Label{tail.Label}
		if matchSlots(m) <= bytecode.MaxMatchPayloadSlots {
			return true
		}
	}

	// Leading epsilon for pre-effects: it adopts the original label so
	// predecessors keep working; the match moves to a fresh label.
	if len(m.Pre) > 0 {
		newLabel := r.nextLabel()
		lead := &MatchIR{
			Label: m.Label,
			Nav:   bytecode.Epsilon(),
			Type:  bytecode.AnyNode(),
			Pre:   m.Pre,
			Succs: []Label{newLabel},
		}
		m.Label = newLabel
		m.Pre = nil
		*added = append(*added, lead)
		return true
	}
	return len(m.Post) > 0
}

// nextLabel hands out labels above every existing one.
func (r *Result) nextLabel() Label {
	var max Label
	for _, in := range r.Instrs {
		if in.IRLabel() >= max {
			max = in.IRLabel() + 1
		}
	}
	if r.splitNext <= max {
		r.splitNext = max
	}
	l := r.splitNext
	r.splitNext++
	return l
}
