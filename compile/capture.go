package compile

import (
	"github.com/oxhq/plotnik/analysis"
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/syntax"
)

// lowerCaptured lowers `expr @name (:: type)?`. The inner expression is
// lowered in value-producing mode, then a Set effect on every exit path
// moves the value into the enclosing scope. Captures the enclosing
// quantifier hoists skip their Set; the quantifier collects the bare
// values instead.
func (c *compiler) lowerCaptured(cap *syntax.Captured, nav bytecode.Nav) fragment {
	inner := cap.Inner()
	nameTok := cap.Name()
	if inner == nil || nameTok == nil {
		ep := c.eps()
		return fragment{entry: ep.Label, exits: []exit{{label: ep.Label, nav: nav}}}
	}
	name := nameTok.Text()
	hoisted := c.hoist[name]

	valueEff := bytecode.EffNode
	if annot := cap.TypeAnnotation(); annot != nil {
		if t := annot.Text(); t == "string" || t == "text" {
			valueEff = bytecode.EffText
		}
	}

	var frag fragment
	switch inner := inner.(type) {
	case *syntax.Tree, *syntax.Wildcard, *syntax.Str, *syntax.Field:
		frag = c.lowerExpr(inner, nav, false)
		c.attachValue(frag.entry, valueEff)
		c.attachPredicates(frag.entry, name)

	case *syntax.Quantified:
		frag = c.lowerQuantified(inner, nav, &quantBinding{})

	case *syntax.Seq:
		frag = c.lowerScopedObject(inner, nav)

	case *syntax.Alt:
		if inner.Kind() == syntax.AltTagged {
			frag = c.lowerAlt(inner, nav, true)
		} else {
			frag = c.lowerScopedObject(inner, nav)
		}

	case *syntax.Ref:
		frag = c.lowerRef(inner, nav, true)

	default:
		frag = c.lowerExpr(inner, nav, true)
	}

	if hoisted {
		return frag
	}
	return fragment{
		entry:          frag.entry,
		exits:          c.appendEffect(frag.exits, EffectIR{Op: bytecode.EffSet, Member: NameRef(c.scope(), name)}),
		trailingAnchor: frag.trailingAnchor,
	}
}

// appendEffect tacks an effect epsilon onto every exit, preserving each
// exit's pending navigation.
func (c *compiler) appendEffect(exits []exit, eff EffectIR) []exit {
	out := make([]exit, 0, len(exits))
	for _, e := range exits {
		ep := c.eps()
		ep.Post = append(ep.Post, eff)
		c.connect(e.label, ep.Label)
		out = append(out, exit{label: ep.Label, nav: e.nav})
	}
	return out
}

// lowerScopedObject lowers a captured sequence or untagged alternation:
// the inner captures populate a fresh object that becomes the bound
// value.
func (c *compiler) lowerScopedObject(inner syntax.Expr, nav bytecode.Nav) fragment {
	info := c.info(inner)
	obj := c.eps()
	obj.Pre = append(obj.Pre, Eff(bytecode.EffObj))
	c.scopes = append(c.scopes, info.Type)
	frag := c.lowerExpr(inner, nav, false)
	c.scopes = c.scopes[:len(c.scopes)-1]
	c.connect(obj.Label, frag.entry)
	return fragment{
		entry:          obj.Label,
		exits:          c.appendEffect(frag.exits, Eff(bytecode.EffEndObj)),
		trailingAnchor: frag.trailingAnchor,
	}
}

// attachValue appends a Node/Text effect to the fragment's entry match,
// which is the instruction that positioned on the captured node.
func (c *compiler) attachValue(entry Label, op bytecode.EffectOpcode) {
	if m, ok := c.byLabel[entry].(*MatchIR); ok {
		m.Post = append(m.Post, Eff(op))
	}
}

// attachPredicates pins the capture's predicates to its match
// instruction. Extra predicates beyond the instruction's single slot
// expand into a chain during size lowering.
func (c *compiler) attachPredicates(entry Label, capture string) {
	preds := c.preds[capture]
	if len(preds) == 0 {
		return
	}
	m, ok := c.byLabel[entry].(*MatchIR)
	if !ok {
		return
	}
	for _, p := range preds {
		m.Preds = append(m.Preds, PredIR{Op: p.Op, Arg: p.Arg})
	}
}

// quantBinding marks a quantifier whose value the enclosing capture
// consumes.
type quantBinding struct{}

// lowerQuantified lowers `inner *|+|?` with the unified two-edge
// template: a match edge into the iteration fragment and a skip edge
// leaving the loop, ordered by laziness. The zero-iteration skip leaves
// the cursor untouched, so its exit keeps the incoming nav; the
// after-iterations skip advanced, so its exit continues with sibling
// navigation. Iterations are lowered twice: the first arrives via the
// incoming nav, the rest via Next.
func (c *compiler) lowerQuantified(q *syntax.Quantified, nav bytecode.Nav, bound *quantBinding) fragment {
	inner := q.Inner()
	if inner == nil {
		ep := c.eps()
		return fragment{entry: ep.Label, exits: []exit{{label: ep.Label, nav: nav}}}
	}
	innerInfo := c.info(inner)

	mode, hoistField := c.quantMode(innerInfo, bound)
	collects := mode != elemNone
	lazy := q.Lazy()

	branch := func(e *MatchIR, match, skipTo Label) {
		if lazy {
			e.Succs = append(e.Succs, skipTo, match)
		} else {
			e.Succs = append(e.Succs, match, skipTo)
		}
	}

	if q.Kind() == syntax.QuantOpt {
		return c.lowerOptional(inner, nav, mode, hoistField, collects, innerInfo, branch)
	}

	entry := c.eps()
	if collects {
		entry.Pre = append(entry.Pre, Eff(bytecode.EffArr))
	}

	first := c.lowerIteration(inner, nav, mode, hoistField, innerInfo)
	push := c.eps()
	if collects {
		push.Post = append(push.Post, Eff(bytecode.EffPush))
	}
	loop := c.eps()
	rest := c.lowerIteration(inner, bytecode.Next(), mode, hoistField, innerInfo)

	c.connect(c.joinExits(first), push.Label)
	c.connect(c.joinExits(rest), push.Label)
	c.connect(push.Label, loop.Label)

	// Skip after one or more iterations: the cursor advanced.
	doneSkip := c.eps()
	if collects {
		doneSkip.Post = append(doneSkip.Post, Eff(bytecode.EffEndArr))
	}
	doneFinal := c.quantSetAfter(doneSkip.Label, mode, hoistField)
	branch(loop, rest.entry, doneSkip.Label)

	exits := []exit{{label: doneFinal, nav: bytecode.Next()}}

	if q.Kind() == syntax.QuantPlus {
		c.connect(entry.Label, first.entry)
		return fragment{entry: entry.Label, exits: exits}
	}

	// Star: a zero-iteration skip leaves the cursor where it was.
	zeroSkip := c.eps()
	if collects {
		zeroSkip.Post = append(zeroSkip.Post, Eff(bytecode.EffEndArr))
	}
	zeroFinal := c.quantSetAfter(zeroSkip.Label, mode, hoistField)
	branch(entry, first.entry, zeroSkip.Label)
	exits = append(exits, exit{label: zeroFinal, nav: nav})
	return fragment{entry: entry.Label, exits: exits}
}

type elemMode uint8

const (
	// elemNone collects no value.
	elemNone elemMode = iota
	// elemNode collects the matched node per iteration.
	elemNode
	// elemStruct wraps each iteration's captures in an object.
	elemStruct
	// elemScalar lets the inner expression produce the iteration value.
	elemScalar
	// elemHoist lifts a single capture into the enclosing scope as an
	// array or optional.
	elemHoist
)

func (c *compiler) quantMode(innerInfo analysis.TermInfo, bound *quantBinding) (elemMode, string) {
	if bound != nil {
		switch innerInfo.Flow {
		case analysis.FlowVoid:
			return elemNode, ""
		case analysis.FlowBubble:
			return elemStruct, ""
		default:
			return elemScalar, ""
		}
	}
	if innerInfo.Flow == analysis.FlowBubble {
		fields := c.res.Inference.Ctx.Shape(innerInfo.Type).Fields
		if len(fields) == 1 {
			return elemHoist, fields[0].Name
		}
		// Two or more propagating captures without a binding is a
		// type-check error; lower as a plain loop to keep going.
	}
	return elemNone, ""
}

// lowerIteration builds one iteration fragment with the element-mode
// value effects.
func (c *compiler) lowerIteration(inner syntax.Expr, nav bytecode.Nav, mode elemMode, hoistField string, innerInfo analysis.TermInfo) fragment {
	switch mode {
	case elemStruct:
		obj := c.eps()
		obj.Pre = append(obj.Pre, Eff(bytecode.EffObj))
		c.scopes = append(c.scopes, innerInfo.Type)
		frag := c.lowerExpr(inner, nav, false)
		c.scopes = c.scopes[:len(c.scopes)-1]
		end := c.eps()
		end.Post = append(end.Post, Eff(bytecode.EffEndObj))
		c.connect(obj.Label, frag.entry)
		c.connect(c.joinExits(frag), end.Label)
		return single(obj.Label, end.Label)
	case elemNode:
		// The iteration value is the node the iteration ends on, which
		// for a single node pattern is the matched node itself.
		frag := c.lowerExpr(inner, nav, false)
		frag.exits = c.appendEffect(frag.exits, Eff(bytecode.EffNode))
		return frag
	case elemScalar:
		return c.lowerExpr(inner, nav, true)
	case elemHoist:
		prev := c.hoist[hoistField]
		c.hoist[hoistField] = true
		frag := c.lowerExpr(inner, nav, false)
		c.hoist[hoistField] = prev
		return frag
	default:
		return c.lowerExpr(inner, nav, false)
	}
}

// quantSetAfter appends the hoisted Set after a skip path when needed.
func (c *compiler) quantSetAfter(from Label, mode elemMode, hoistField string) Label {
	if mode != elemHoist {
		return from
	}
	set := c.eps()
	set.Post = append(set.Post, EffectIR{Op: bytecode.EffSet, Member: NameRef(c.scope(), hoistField)})
	c.connect(from, set.Label)
	return set.Label
}

// lowerOptional lowers `inner?`: a match edge and a skip edge that
// leaves an explicit Null for collected values. The skip exit keeps the
// incoming nav because nothing moved.
func (c *compiler) lowerOptional(inner syntax.Expr, nav bytecode.Nav, mode elemMode, hoistField string, collects bool, innerInfo analysis.TermInfo, branch func(*MatchIR, Label, Label)) fragment {
	entry := c.eps()

	frag := c.lowerIteration(inner, nav, mode, hoistField, innerInfo)
	matchFinal := c.quantSetAfter(c.joinExits(frag), mode, hoistField)

	skip := c.eps()
	if collects {
		skip.Post = append(skip.Post, Eff(bytecode.EffNull))
	}
	skipFinal := c.quantSetAfter(skip.Label, mode, hoistField)

	branch(entry, frag.entry, skip.Label)
	return fragment{entry: entry.Label, exits: []exit{
		{label: matchFinal, nav: bytecode.Next()},
		{label: skipFinal, nav: nav},
	}}
}
