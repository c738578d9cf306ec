package analysis

import (
	"strings"

	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/syntax"
)

// CapturePredicate is one validated predicate bound to a capture name.
type CapturePredicate struct {
	Capture string
	Op      bytecode.PredicateOp
	Arg     string
	Source  core.SourceID
	Span    core.Span
}

// ValidatePredicates checks every predicate expression: the operator is
// known, the capture it names exists in the same definition, and regex
// arguments stay within the supported subset. Returns predicates grouped
// by definition name.
func ValidatePredicates(table *SymbolTable, diags *core.Diagnostics) map[string][]CapturePredicate {
	out := make(map[string][]CapturePredicate)
	for _, name := range table.Names() {
		def, _ := table.Get(name)
		captures := collectCaptureNames(def.Body)

		v := &predValidator{captures: captures, source: def.Source, diags: diags}
		v.Self = v
		syntax.WalkExpr(v, def.Body)
		for _, p := range def.TrailingPreds {
			v.VisitPredicate(p)
		}
		if len(v.preds) > 0 {
			out[name] = v.preds
		}
	}
	return out
}

func collectCaptureNames(body syntax.Expr) map[string]bool {
	c := &captureNameCollector{names: map[string]bool{}}
	c.Self = c
	syntax.WalkExpr(c, body)
	return c.names
}

type captureNameCollector struct {
	syntax.BaseVisitor
	names map[string]bool
}

func (c *captureNameCollector) VisitCaptured(cap *syntax.Captured) {
	if name := cap.Name(); name != nil {
		c.names[name.Text()] = true
	}
	c.BaseVisitor.VisitCaptured(cap)
}

type predValidator struct {
	syntax.BaseVisitor
	captures map[string]bool
	source   core.SourceID
	diags    *core.Diagnostics
	preds    []CapturePredicate
}

func (v *predValidator) VisitPredicate(p *syntax.Predicate) {
	opTok := p.OpToken()
	if opTok == nil {
		return
	}
	opText := strings.TrimPrefix(opTok.Text(), "#")
	op, ok := bytecode.ParsePredicateOp(opText)
	if !ok {
		d := core.Errorf(core.StageValidate, opTok.Span(), "unknown predicate operator `%s`", opTok.Text()).
			WithFix("supported: #== #!= #^= #$= #*= #=~ #!~")
		d.Source = v.source
		v.diags.Push(d)
		return
	}

	capTok := p.CaptureName()
	if capTok == nil {
		d := core.Errorf(core.StageValidate, p.Syntax().Span(), "predicate is missing its `@capture` operand")
		d.Source = v.source
		v.diags.Push(d)
		return
	}
	if !v.captures[capTok.Text()] {
		d := core.Errorf(core.StageValidate, capTok.Span(), "predicate refers to unknown capture `@%s`", capTok.Text())
		d.Source = v.source
		v.diags.Push(d)
		return
	}

	arg := p.Arg()
	if arg == nil {
		d := core.Errorf(core.StageValidate, p.Syntax().Span(), "predicate is missing its string argument")
		d.Source = v.source
		v.diags.Push(d)
		return
	}
	argText := arg.Value()

	if op.IsRegex() {
		if err := bytecode.ValidateRegex(argText); err != nil {
			span := arg.Syntax().Span()
			if body := arg.ValueToken(); body != nil {
				span = body.Span()
			}
			d := core.Errorf(core.StageValidate, span, "invalid regex: %v", err)
			d.Source = v.source
			v.diags.Push(d)
			return
		}
	}

	v.preds = append(v.preds, CapturePredicate{
		Capture: capTok.Text(),
		Op:      op,
		Arg:     argText,
		Source:  v.source,
		Span:    p.Syntax().Span(),
	})
}
