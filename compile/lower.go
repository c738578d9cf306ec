package compile

import (
	"fmt"

	"github.com/oxhq/plotnik/analysis"
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/syntax"
)

// Compile lowers an analyzed, linked workspace to the instruction IR and
// runs the optimization passes. The workspace must be free of error
// diagnostics.
func Compile(res *analysis.Result) (*Result, error) {
	if res.Linked == nil {
		return nil, fmt.Errorf("compile requires a linked analysis result")
	}
	c := &compiler{
		res:        res,
		byLabel:    make(map[Label]InstrIR),
		defEntries: make(map[string]Label),
	}

	names := res.EntryNames()
	// Reserve entry labels first so references can target definitions
	// that lower later.
	for _, name := range names {
		c.defEntries[name] = c.reserveLabel()
	}
	for _, name := range names {
		c.lowerDef(name)
	}

	out := &Result{
		Instrs:     c.instrs,
		DefEntries: c.defEntries,
		EntryOrder: names,
		Analysis:   res,
	}
	CollapseUp(out)
	EliminateEpsilon(out)
	RemoveUnreachable(out)
	if err := LowerSizes(out); err != nil {
		return nil, err
	}
	return out, nil
}

type compiler struct {
	res     *analysis.Result
	instrs  []InstrIR
	byLabel map[Label]InstrIR
	next    Label

	defEntries map[string]Label

	// Per-definition lowering state.
	src    core.SourceID
	scopes []analysis.TypeID
	// hoist suppresses the Set of a capture whose value the enclosing
	// quantifier collects.
	hoist map[string]bool
	// preds maps capture names to their predicates for the current
	// definition.
	preds map[string][]analysis.CapturePredicate
}

// exit is one way out of a fragment. nav is the navigation the next
// sibling pattern must use from this exit: Next() after a match at this
// level, or the fragment's own incoming nav when a skippable construct
// consumed nothing (the cursor never advanced).
type exit struct {
	label Label
	nav   bytecode.Nav
}

// fragment is a lowered sub-graph with one entry and one or more exits.
// Exit labels are always epsilons with no successors yet.
type fragment struct {
	entry Label
	exits []exit
	// trailingAnchor propagates a sequence-final anchor to the
	// enclosing tree's ascent.
	trailingAnchor bool
}

// single builds a one-exit fragment that advanced past a node.
func single(entry, exitLabel Label) fragment {
	return fragment{entry: entry, exits: []exit{{label: exitLabel, nav: bytecode.Next()}}}
}

func (c *compiler) reserveLabel() Label {
	l := c.next
	c.next++
	return l
}

func (c *compiler) add(in InstrIR) {
	c.instrs = append(c.instrs, in)
	c.byLabel[in.IRLabel()] = in
}

// eps appends a fresh epsilon instruction.
func (c *compiler) eps() *MatchIR {
	m := &MatchIR{Label: c.reserveLabel(), Nav: bytecode.Epsilon(), Type: bytecode.AnyNode()}
	c.add(m)
	return m
}

// epsAt appends an epsilon at a pre-reserved label.
func (c *compiler) epsAt(label Label) *MatchIR {
	m := &MatchIR{Label: label, Nav: bytecode.Epsilon(), Type: bytecode.AnyNode()}
	c.add(m)
	return m
}

// connect points from's instruction at to.
func (c *compiler) connect(from, to Label) {
	switch in := c.byLabel[from].(type) {
	case *MatchIR:
		in.Succs = append(in.Succs, to)
	default:
		panic("compile: connect from a call or return instruction")
	}
}

// joinExits funnels every exit of a fragment into one epsilon. Used by
// consumers that do not care which path was taken (captures, branch
// ends, definition bodies).
func (c *compiler) joinExits(frag fragment) Label {
	if len(frag.exits) == 1 {
		return frag.exits[0].label
	}
	join := c.eps()
	for _, e := range frag.exits {
		c.connect(e.label, join.Label)
	}
	return join.Label
}

func (c *compiler) info(e syntax.Expr) analysis.TermInfo {
	return c.res.Inference.Info[analysis.KeyOf(c.src, e)]
}

func (c *compiler) nodeType(e syntax.Expr) bytecode.NodeTypeIR {
	if nt, ok := c.res.Linked.Nodes[analysis.KeyOf(c.src, e)]; ok {
		return nt
	}
	return bytecode.AnyNamed()
}

func (c *compiler) scope() analysis.TypeID {
	if len(c.scopes) == 0 {
		return bytecode.TypeVoidID
	}
	return c.scopes[len(c.scopes)-1]
}

// lowerDef lowers one definition body, bracketed by its scope effects,
// and terminated by Return.
func (c *compiler) lowerDef(name string) {
	def, _ := c.res.Table.Get(name)
	info := c.res.Inference.DefInfo[name]
	c.src = def.Source
	c.scopes = c.scopes[:0]
	c.hoist = map[string]bool{}
	c.preds = map[string][]analysis.CapturePredicate{}
	for _, p := range c.res.Predicates[name] {
		c.preds[p.Capture] = append(c.preds[p.Capture], p)
	}

	entry := c.epsAt(c.defEntries[name])
	bubble := info.Flow == analysis.FlowBubble
	if bubble {
		entry.Pre = append(entry.Pre, Eff(bytecode.EffObj))
		c.scopes = append(c.scopes, info.Type)
	}

	frag := c.lowerExpr(def.Body, bytecode.StayExact(), info.Flow == analysis.FlowScalar)
	c.connect(entry.Label, frag.entry)

	end := c.eps()
	if bubble {
		end.Post = append(end.Post, Eff(bytecode.EffEndObj))
		c.scopes = c.scopes[:len(c.scopes)-1]
	}
	c.connect(c.joinExits(frag), end.Label)

	ret := &ReturnIR{Label: c.reserveLabel()}
	c.add(ret)
	c.connect(end.Label, ret.Label)
}

// lowerExpr lowers any expression arriving via nav. consumed is true
// when the expression's value feeds a capture or enum variant;
// unconsumed scalar values are cleared so they cannot leak into later
// effects.
func (c *compiler) lowerExpr(e syntax.Expr, nav bytecode.Nav, consumed bool) fragment {
	switch e := e.(type) {
	case *syntax.Tree:
		return c.lowerTree(e, nav)
	case *syntax.Str:
		return c.lowerLeafMatch(e, nav)
	case *syntax.Wildcard:
		m := &MatchIR{Label: c.reserveLabel(), Nav: nav, Type: bytecode.AnyNode()}
		c.add(m)
		ex := c.eps()
		c.connect(m.Label, ex.Label)
		return single(m.Label, ex.Label)
	case *syntax.Seq:
		return c.lowerSeq(e, nav)
	case *syntax.Alt:
		return c.lowerAlt(e, nav, consumed)
	case *syntax.Captured:
		return c.lowerCaptured(e, nav)
	case *syntax.Quantified:
		return c.lowerQuantified(e, nav, nil)
	case *syntax.Field:
		return c.lowerField(e, nav, consumed)
	case *syntax.Ref:
		return c.lowerRef(e, nav, consumed)
	}
	// Anchors, negated fields, and predicates are handled by their
	// enclosing constructs; standalone occurrences lower to epsilon.
	ep := c.eps()
	return fragment{entry: ep.Label, exits: []exit{{label: ep.Label, nav: nav}}}
}

// lowerLeafMatch lowers an anonymous-node leaf.
func (c *compiler) lowerLeafMatch(e syntax.Expr, nav bytecode.Nav) fragment {
	m := &MatchIR{Label: c.reserveLabel(), Nav: nav, Type: c.nodeType(e)}
	c.add(m)
	ex := c.eps()
	c.connect(m.Label, ex.Label)
	return single(m.Label, ex.Label)
}

// itemPlan is the pre-scanned shape of a tree or sequence item list.
type itemPlan struct {
	regular []syntax.Expr
	// exactBefore marks regular items preceded by an interior anchor.
	exactBefore map[int]bool
	firstAnchor bool
	trailing    bool
	negFields   []uint16
}

func (c *compiler) planItems(items []syntax.Expr) itemPlan {
	plan := itemPlan{exactBefore: map[int]bool{}}
	for i, item := range items {
		switch it := item.(type) {
		case *syntax.NegField:
			if name := it.Name(); name != nil {
				if id, ok := c.res.Linked.FieldIDs[name.Text()]; ok {
					plan.negFields = append(plan.negFields, id)
				}
			}
		case *syntax.Anchor:
			switch {
			case len(plan.regular) == 0:
				plan.firstAnchor = true
			case i == len(items)-1:
				plan.trailing = true
			default:
				plan.exactBefore[len(plan.regular)] = true
			}
		case *syntax.Predicate:
			// Predicates attach to capture matches, not positions.
		default:
			plan.regular = append(plan.regular, item)
		}
	}
	return plan
}

// chainItems lowers the regular items of a tree or sequence. Because a
// skippable item (an optional or star quantifier) may consume nothing,
// the chain tracks exits per pending navigation and lowers an item once
// per distinct arrival nav; the copies' exits regroup for the next item.
func (c *compiler) chainItems(plan itemPlan, firstNav bytecode.Nav) (Label, []exit, bool) {
	entry := c.eps()
	sources := []exit{{label: entry.Label, nav: firstNav}}
	trailing := plan.trailing

	for i, item := range plan.regular {
		// Group sources by the nav the item must arrive with.
		groups := map[byte][]Label{}
		var order []byte
		for _, s := range sources {
			nav := s.nav
			if plan.exactBefore[i] {
				nav = nav.ToExact()
			}
			key := nav.Encode()
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], s.label)
		}

		var next []exit
		for _, key := range order {
			nav, _ := bytecode.DecodeNav(key)
			frag := c.lowerExpr(item, nav, false)
			for _, from := range groups[key] {
				c.connect(from, frag.entry)
			}
			if frag.trailingAnchor && i == len(plan.regular)-1 {
				trailing = true
			}
			next = append(next, frag.exits...)
		}
		sources = next
	}
	return entry.Label, sources, trailing
}

// lowerTree lowers `(type item*)`: match the node, descend through the
// items, ascend back. Exits that never descended (every item skipped)
// bypass the ascent.
func (c *compiler) lowerTree(t *syntax.Tree, nav bytecode.Nav) fragment {
	m := &MatchIR{Label: c.reserveLabel(), Nav: nav, Type: c.nodeType(t)}
	c.add(m)

	plan := c.planItems(t.Items())
	m.NegFields = plan.negFields

	ex := c.eps()
	if len(plan.regular) == 0 {
		c.connect(m.Label, ex.Label)
		return single(m.Label, ex.Label)
	}

	downNav := bytecode.Down()
	if plan.firstAnchor {
		downNav = bytecode.DownExact()
	}
	chainEntry, ends, trailing := c.chainItems(plan, downNav)
	c.connect(m.Label, chainEntry)

	upNav := bytecode.Up(1)
	if trailing {
		upNav = bytecode.UpExact(1)
	}
	var up *MatchIR
	for _, e := range ends {
		if e.nav.Encode() == downNav.Encode() {
			// Nothing descended on this path; the cursor still sits on
			// the tree node.
			c.connect(e.label, ex.Label)
			continue
		}
		if up == nil {
			up = &MatchIR{Label: c.reserveLabel(), Nav: upNav, Type: bytecode.AnyNode()}
			c.add(up)
			c.connect(up.Label, ex.Label)
		}
		c.connect(e.label, up.Label)
	}
	return single(m.Label, ex.Label)
}

// lowerSeq lowers `{item*}`. The sequence's own exits keep their
// pending navs so an enclosing chain knows whether anything matched.
func (c *compiler) lowerSeq(s *syntax.Seq, nav bytecode.Nav) fragment {
	plan := c.planItems(s.Items())
	if len(plan.regular) == 0 {
		ep := c.eps()
		return fragment{entry: ep.Label, exits: []exit{{label: ep.Label, nav: nav}}, trailingAnchor: plan.trailing}
	}
	firstNav := nav
	if plan.firstAnchor {
		firstNav = nav.ToExact()
	}
	entry, ends, trailing := c.chainItems(plan, firstNav)

	// Normalize: exits still carrying the sequence's own incoming nav
	// propagate it upward; matched exits advance.
	out := make([]exit, 0, len(ends))
	for _, e := range ends {
		out = append(out, e)
	}
	return fragment{entry: entry, exits: out, trailingAnchor: trailing}
}

// lowerAlt lowers `[branch*]`. A position-holder performs the incoming
// navigation (and owns the retry search); branches then match at the
// exact position. Tagged alternations bracket each branch in its enum
// variant effects.
func (c *compiler) lowerAlt(a *syntax.Alt, nav bytecode.Nav, consumed bool) fragment {
	pos := &MatchIR{Label: c.reserveLabel(), Nav: nav, Type: bytecode.AnyNode()}
	c.add(pos)
	dispatch := c.eps()
	c.connect(pos.Label, dispatch.Label)
	join := c.eps()

	tagged := a.Kind() == syntax.AltTagged
	var enumType analysis.TypeID
	variantRel := map[string]uint16{}
	if tagged {
		enumType = c.info(a).Type
		for i, v := range c.res.Inference.Ctx.Shape(enumType).Variants {
			variantRel[v.Name] = uint16(i)
		}
	}

	for _, b := range a.Branches() {
		body := b.Body()
		if body == nil {
			continue
		}
		if !tagged {
			frag := c.lowerExpr(body, bytecode.StayExact(), false)
			dispatch.Succs = append(dispatch.Succs, frag.entry)
			c.connect(c.joinExits(frag), join.Label)
			continue
		}

		label := b.Label().Text()
		brEntry := c.eps()
		brEntry.Pre = append(brEntry.Pre, EffectIR{Op: bytecode.EffEnum, Member: IndexRef(enumType, variantRel[label])})

		bodyInfo := c.info(body)
		var bodyEntry, bodyExit Label
		switch bodyInfo.Flow {
		case analysis.FlowBubble:
			// The variant's value is a struct: bracket the branch in its
			// own object scope.
			obj := c.eps()
			obj.Pre = append(obj.Pre, Eff(bytecode.EffObj))
			c.scopes = append(c.scopes, bodyInfo.Type)
			inner := c.lowerExpr(body, bytecode.StayExact(), false)
			c.scopes = c.scopes[:len(c.scopes)-1]
			end := c.eps()
			end.Post = append(end.Post, Eff(bytecode.EffEndObj))
			c.connect(obj.Label, inner.entry)
			c.connect(c.joinExits(inner), end.Label)
			bodyEntry, bodyExit = obj.Label, end.Label
		default:
			inner := c.lowerExpr(body, bytecode.StayExact(), bodyInfo.Flow == analysis.FlowScalar)
			bodyEntry, bodyExit = inner.entry, c.joinExits(inner)
		}

		brExit := c.eps()
		brExit.Post = append(brExit.Post, Eff(bytecode.EffEndEnum))
		c.connect(brEntry.Label, bodyEntry)
		c.connect(bodyExit, brExit.Label)
		dispatch.Succs = append(dispatch.Succs, brEntry.Label)
		c.connect(brExit.Label, join.Label)
	}

	if tagged && !consumed {
		join.Post = append(join.Post, Eff(bytecode.EffClear))
	}
	return single(pos.Label, join.Label)
}

// lowerField lowers `name: expr`: a field-checking position holder, then
// the value at the exact position.
func (c *compiler) lowerField(f *syntax.Field, nav bytecode.Nav, consumed bool) fragment {
	pos := &MatchIR{Label: c.reserveLabel(), Nav: nav, Type: bytecode.AnyNode()}
	if name := f.Name(); name != nil {
		if id, ok := c.res.Linked.FieldIDs[name.Text()]; ok {
			pos.Field = id
			pos.HasField = true
		}
	}
	c.add(pos)

	value := f.Value()
	if value == nil {
		ex := c.eps()
		c.connect(pos.Label, ex.Label)
		return single(pos.Label, ex.Label)
	}
	frag := c.lowerExpr(value, bytecode.StayExact(), consumed)
	c.connect(pos.Label, frag.entry)
	return single(pos.Label, c.joinExits(frag))
}

// lowerRef lowers a reference as a Call. Unconsumed non-void values are
// cleared so they cannot leak into a later array push.
func (c *compiler) lowerRef(r *syntax.Ref, nav bytecode.Nav, consumed bool) fragment {
	name := r.Name()
	join := c.eps()
	if name == nil {
		return fragment{entry: join.Label, exits: []exit{{label: join.Label, nav: nav}}}
	}
	target, ok := c.defEntries[name.Text()]
	if !ok {
		return fragment{entry: join.Label, exits: []exit{{label: join.Label, nav: nav}}}
	}

	call := &CallIR{Label: c.reserveLabel(), Nav: nav, Target: target, ReturnTo: join.Label}
	c.add(call)

	if !consumed {
		if id, hasID := c.res.Graph.ID(name.Text()); hasID {
			if t, done := c.res.Inference.Ctx.DefType(id); done && t != bytecode.TypeVoidID {
				join.Post = append(join.Post, Eff(bytecode.EffClear))
			}
		}
	}
	return single(call.Label, join.Label)
}
