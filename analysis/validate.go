package analysis

import (
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/syntax"
)

// ValidateStructure runs the pre-resolution structural checks over every
// definition: alternation kind consistency, empty constructs, and anchor
// placement.
func ValidateStructure(sources []ParsedSource, diags *core.Diagnostics) {
	for _, src := range sources {
		root := src.Root
		for _, def := range root.Defs() {
			if body := def.Body(); body != nil {
				validateExpr(body, exprCtx{}, src.Source, diags)
			}
		}
	}
}

// exprCtx tracks the syntactic context relevant to anchor placement.
type exprCtx struct {
	// inNamedNode is true inside the items of a `(type ...)` tree.
	inNamedNode bool
}

func validateExpr(e syntax.Expr, ctx exprCtx, src core.SourceID, diags *core.Diagnostics) {
	switch e := e.(type) {
	case *syntax.Tree:
		checkEmptyTree(e, src, diags)
		validateItems(e.Items(), exprCtx{inNamedNode: e.TypeToken() != nil}, src, diags)
	case *syntax.Seq:
		if len(e.Items()) == 0 {
			d := core.Errorf(core.StageValidate, e.Syntax().Span(), "empty sequence `{}`").
				WithFix("add at least one item, or remove the braces")
			d.Source = src
			diags.Push(d)
		}
		validateItems(e.Items(), ctx, src, diags)
	case *syntax.Alt:
		validateAlt(e, ctx, src, diags)
	case *syntax.Captured:
		if inner := e.Inner(); inner != nil {
			validateExpr(inner, ctx, src, diags)
		}
	case *syntax.Quantified:
		if inner := e.Inner(); inner != nil {
			validateExpr(inner, ctx, src, diags)
		}
	case *syntax.Field:
		if value := e.Value(); value != nil {
			validateExpr(value, ctx, src, diags)
		}
	case *syntax.Anchor:
		// An anchor appearing as a whole definition body (not as an item)
		// has nothing to anchor to.
		d := core.Errorf(core.StageValidate, e.Syntax().Span(), "anchor without surrounding items")
		d.Source = src
		diags.Push(d)
	}
}

// validateItems validates a tree or sequence item list, checking boundary
// anchors against the named-node context.
func validateItems(items []syntax.Expr, ctx exprCtx, src core.SourceID, diags *core.Diagnostics) {
	for i, item := range items {
		if a, ok := item.(*syntax.Anchor); ok {
			boundary := i == 0 || i == len(items)-1
			if boundary && !ctx.inNamedNode {
				d := core.Errorf(core.StageValidate, a.Syntax().Span(),
					"boundary anchor requires an enclosing named node").
					WithFix("wrap the sequence in a node pattern: `(type { ... })`")
				d.Source = src
				diags.Push(d)
			}
			continue
		}
		validateExpr(item, ctx, src, diags)
	}
}

func validateAlt(a *syntax.Alt, ctx exprCtx, src core.SourceID, diags *core.Diagnostics) {
	switch a.Kind() {
	case syntax.AltEmpty:
		d := core.Errorf(core.StageValidate, a.Syntax().Span(), "empty alternation `[]`").
			WithFix("add at least one branch, or remove the brackets")
		d.Source = src
		diags.Push(d)
		return
	case syntax.AltMixed:
		var tagged, untagged *syntax.Branch
		for _, b := range a.Branches() {
			if b.Label() != nil {
				if tagged == nil {
					tagged = b
				}
			} else if untagged == nil {
				untagged = b
			}
		}
		d := core.Errorf(core.StageValidate, untagged.Syntax().Span(),
			"mixed tagged and untagged branches in alternation").
			WithRelated(tagged.Label().Span(), "tagged branch here").
			WithFix("label every branch, or none")
		d.Source = src
		diags.Push(d)
	}

	for _, b := range a.Branches() {
		body := b.Body()
		if body == nil {
			continue
		}
		// Anchors directly inside an alternation branch are rejected:
		// there is no sibling sequence to anchor against.
		if anchor, ok := body.(*syntax.Anchor); ok {
			d := core.Errorf(core.StageValidate, anchor.Syntax().Span(),
				"anchor directly inside an alternation").
				WithFix("wrap the branch in a sequence: `{ . ... }`")
			d.Source = src
			diags.Push(d)
			continue
		}
		validateExpr(body, ctx, src, diags)
	}
}

// checkEmptyTree rejects `()` with no node type and no items.
func checkEmptyTree(t *syntax.Tree, src core.SourceID, diags *core.Diagnostics) {
	if t.TypeToken() == nil && len(t.Items()) == 0 {
		d := core.Errorf(core.StageValidate, t.Syntax().Span(), "empty node pattern `()`").
			WithFix("use `(_)` for any named node or `_` for any node")
		d.Source = src
		diags.Push(d)
	}
}
