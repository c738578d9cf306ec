package compile

import (
	"github.com/oxhq/plotnik/bytecode"
)

const maxUpLevel = 63

// CollapseUp merges chains of effectless Up instructions of the same
// mode: Up(1) → Up(2) becomes Up(3). Constraints: single successor,
// single predecessor, no effects, level capped at 63 (the 6-bit Nav
// payload).
func CollapseUp(r *Result) {
	byLabel := r.instrByLabel()
	predCount := countPredecessors(r)

	removed := map[Label]bool{}
	for _, in := range r.Instrs {
		m, ok := in.(*MatchIR)
		if !ok {
			continue
		}
		level, isUp := upLevel(m.Nav)
		if !isUp || len(m.Succs) != 1 {
			continue
		}

		currentNav := m.Nav
		currentLevel := level
		succs := m.Succs
		for currentLevel < maxUpLevel {
			if len(succs) != 1 {
				break
			}
			next := succs[0]
			if removed[next] || predCount[next] != 1 {
				break
			}
			succ, ok := byLabel[next].(*MatchIR)
			if !ok {
				break
			}
			succLevel, succUp := upLevel(succ.Nav)
			if !succUp || succ.Nav.Mode != currentNav.Mode || !succ.IsEffectless() {
				break
			}
			merged := currentLevel + succLevel
			if merged > maxUpLevel {
				break
			}
			currentLevel = merged
			currentNav = bytecode.Nav{Mode: currentNav.Mode, Level: merged}
			succs = succ.Succs
			removed[next] = true
		}

		if currentLevel != level {
			m.Nav = currentNav
			m.Succs = succs
		}
	}
	retain(r, removed)
}

func upLevel(n bytecode.Nav) (uint8, bool) {
	if n.IsUp() {
		return n.Level, true
	}
	return 0, false
}

// EliminateEpsilon removes pure epsilon instructions with a single
// successor by rewriting their predecessors to point past them. Epsilons
// with effects, checks, or fan-out stay.
func EliminateEpsilon(r *Result) {
	byLabel := r.instrByLabel()

	// resolve chases a chain of removable epsilons to its real target.
	var resolve func(l Label, seen map[Label]bool) Label
	resolve = func(l Label, seen map[Label]bool) Label {
		m, ok := byLabel[l].(*MatchIR)
		if !ok || !m.IsPureEpsilon() || len(m.Succs) != 1 {
			return l
		}
		if seen[l] {
			return l
		}
		seen[l] = true
		return resolve(m.Succs[0], seen)
	}

	entryTargets := map[Label]bool{}
	for name, l := range r.DefEntries {
		resolved := resolve(l, map[Label]bool{})
		r.DefEntries[name] = resolved
		entryTargets[resolved] = true
	}

	for _, in := range r.Instrs {
		switch in := in.(type) {
		case *MatchIR:
			for i, s := range in.Succs {
				in.Succs[i] = resolve(s, map[Label]bool{})
			}
		case *CallIR:
			in.Target = resolve(in.Target, map[Label]bool{})
			in.ReturnTo = resolve(in.ReturnTo, map[Label]bool{})
		}
	}

	// Bypassed epsilons are now unreachable; the DCE pass drops them.
}

// RemoveUnreachable drops instructions not reachable from any
// entrypoint via BFS.
func RemoveUnreachable(r *Result) {
	byLabel := r.instrByLabel()
	reachable := map[Label]bool{}
	queue := append([]Label{}, r.EntryLabels()...)
	for len(queue) > 0 {
		l := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if reachable[l] {
			continue
		}
		reachable[l] = true
		if in, ok := byLabel[l]; ok {
			queue = append(queue, in.Successors()...)
		}
	}

	kept := r.Instrs[:0]
	for _, in := range r.Instrs {
		if reachable[in.IRLabel()] {
			kept = append(kept, in)
		}
	}
	r.Instrs = kept
}

func countPredecessors(r *Result) map[Label]int {
	out := map[Label]int{}
	for _, in := range r.Instrs {
		for _, s := range in.Successors() {
			out[s]++
		}
	}
	for _, l := range r.EntryLabels() {
		out[l]++
	}
	return out
}

func retain(r *Result, removed map[Label]bool) {
	if len(removed) == 0 {
		return
	}
	kept := r.Instrs[:0]
	for _, in := range r.Instrs {
		if !removed[in.IRLabel()] {
			kept = append(kept, in)
		}
	}
	r.Instrs = kept
}
