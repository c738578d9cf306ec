package syntax

import "github.com/oxhq/plotnik/core"

// Grammar productions. Each production documents its recovery set: token
// kinds it refuses to consume on error, leaving them for the caller.

var exprStart = setOf(
	KindLParen, KindLBracket, KindLBrace, KindUnder,
	KindDQuote, KindSQuote, KindDot, KindBang, KindIdent, KindUpper,
)

func (p *parser) parseRoot() {
	p.builder.StartNode(KindRoot)
	for !p.atEnd() && p.fatal == nil {
		if !p.burn() {
			break
		}
		p.parseDef()
	}
	p.flushTrivia()
	p.builder.FinishNode()
}

// def = UpperIdent '=' expr | expr
func (p *parser) parseDef() {
	switch {
	case p.at(KindUpper) && p.nth(1) == KindEq:
		p.builder.StartNode(KindDef)
		p.bump() // name
		p.bump() // =
		if p.cur() != KindInvalid && exprStart.has(p.cur()) {
			p.parseExpr(setOf(KindUpper))
		} else {
			p.errRecover("expected expression after `=`", setOf(KindUpper))
		}
		p.builder.FinishNode()
	case exprStart.has(p.cur()):
		p.builder.StartNode(KindDef)
		p.parseExpr(setOf(KindUpper))
		p.builder.FinishNode()
	default:
		p.errRecover("expected definition or expression", tokenSet(0))
	}
}

// expr = atom suffix*
// suffix = ('*'|'+'|'?') '?'? | '@' Ident ('::' Ident)?
//
// Suffixes wrap the atom retroactively via the builder checkpoint, so
// `(a)+ @xs` parses the tree once and layers Quantified then Captured
// around it.
func (p *parser) parseExpr(recovery tokenSet) {
	if !p.enter() {
		return
	}
	defer p.leave()

	cp := p.checkpoint()
	p.parseAtom(recovery)

	for p.fatal == nil {
		switch p.cur() {
		case KindStar, KindPlus, KindQuestion:
			p.builder.StartNodeAt(cp, KindQuantified)
			p.bump()
			// A trailing `?` marks the quantifier lazy.
			if p.at(KindQuestion) {
				p.bump()
			}
			p.builder.FinishNode()
		case KindAt:
			p.builder.StartNodeAt(cp, KindCaptured)
			p.bump() // @
			if p.at(KindIdent) || p.at(KindUpper) {
				p.bump()
			} else {
				p.errorf(p.curSpan(), "expected capture name after `@`")
			}
			if p.at(KindColonCol) {
				p.builder.StartNode(KindTypeAnnot)
				p.bump() // ::
				if p.at(KindIdent) || p.at(KindUpper) {
					p.bump()
				} else {
					p.errorf(p.curSpan(), "expected type name after `::`")
				}
				p.builder.FinishNode()
			}
			p.builder.FinishNode()
		default:
			return
		}
	}
}

func (p *parser) parseAtom(recovery tokenSet) {
	switch p.cur() {
	case KindLParen:
		p.parseParenAtom(recovery)
	case KindLBracket:
		p.parseAlt(recovery)
	case KindLBrace:
		p.parseSeq(recovery)
	case KindUnder:
		p.builder.StartNode(KindWildcard)
		p.bump()
		p.builder.FinishNode()
	case KindDQuote, KindSQuote:
		p.parseStr()
	case KindDot:
		p.builder.StartNode(KindAnchor)
		p.bump()
		p.builder.FinishNode()
	case KindBang:
		p.builder.StartNode(KindNegField)
		p.bump()
		if p.at(KindIdent) {
			p.bump()
		} else {
			p.errorf(p.curSpan(), "expected field name after `!`")
		}
		p.builder.FinishNode()
	case KindIdent:
		// A lower identifier is only valid as `field: expr`.
		if p.nth(1) == KindColon {
			p.builder.StartNode(KindFieldExpr)
			p.bump() // field name
			p.bump() // :
			if exprStart.has(p.cur()) {
				p.parseExpr(recovery)
			} else {
				p.errRecover("expected expression after field `:`", recovery)
			}
			p.builder.FinishNode()
		} else {
			p.errorf(p.curSpan(), "bare identifier `%s`; node types are written `(%s)`", p.curText(), p.curText())
			p.builder.StartNode(KindError)
			p.bump()
			p.builder.FinishNode()
		}
	case KindUpper:
		p.builder.StartNode(KindRefExpr)
		p.bump()
		p.builder.FinishNode()
	default:
		p.errRecover("expected expression", recovery)
	}
}

// parseParenAtom handles the constructs introduced by `(`:
// predicates `(#op @cap "arg")`, references `(Name)`, and named nodes
// `(type item*)` including `(ERROR)`, `(MISSING)`, `(_)`, and
// `(supertype/type)`.
func (p *parser) parseParenAtom(recovery tokenSet) {
	openSpan := p.curSpan()

	if p.nth(1) == KindPredOp {
		p.parsePredicate(openSpan)
		return
	}
	if p.cur() == KindLParen && p.nth(1) == KindUpper && p.nth(2) == KindRParen {
		text := p.nthText(1)
		if text != "ERROR" && text != "MISSING" {
			p.builder.StartNode(KindRefExpr)
			p.bump() // (
			p.bump() // Name
			p.bump() // )
			p.builder.FinishNode()
			return
		}
	}

	p.builder.StartNode(KindTreeExpr)
	p.bump() // (

	// Optional node type: lower ident, `_`, ERROR, MISSING, with an
	// optional `/subtype` narrowing.
	switch p.cur() {
	case KindIdent, KindUpper:
		p.bump()
		if p.at(KindSlash) {
			p.bump()
			if p.at(KindIdent) {
				p.bump()
			} else {
				p.errorf(p.curSpan(), "expected node type after `/`")
			}
		}
	case KindUnder:
		p.bump()
	}

	p.parseItems(KindRParen, recovery)
	p.expectClose(KindRParen, ")", openSpan, "(")
	p.builder.FinishNode()
}

func (p *parser) parsePredicate(openSpan core.Span) {
	p.builder.StartNode(KindPredicate)
	p.bump() // (
	p.bump() // #op
	if p.at(KindAt) {
		p.bump()
		if p.at(KindIdent) || p.at(KindUpper) {
			p.bump()
		} else {
			p.errorf(p.curSpan(), "expected capture name after `@`")
		}
	} else {
		p.errorf(p.curSpan(), "expected `@capture` in predicate")
	}
	if p.at(KindDQuote) || p.at(KindSQuote) {
		p.parseStr()
	} else if !p.at(KindRParen) {
		p.errRecover("expected string argument in predicate", setOf(KindRParen))
	}
	p.expectClose(KindRParen, ")", openSpan, "(")
	p.builder.FinishNode()
}

// alt = '[' branch* ']' ; branch = (UpperIdent ':')? expr
func (p *parser) parseAlt(recovery tokenSet) {
	openSpan := p.curSpan()
	p.builder.StartNode(KindAltExpr)
	p.bump() // [

	for p.fatal == nil && !p.at(KindRBracket) && !p.atEnd() {
		if !p.burn() {
			break
		}
		if p.at(KindUpper) && p.nth(1) == KindColon {
			p.builder.StartNode(KindBranch)
			p.bump() // label
			p.bump() // :
			if exprStart.has(p.cur()) {
				p.parseExpr(recovery.union(setOf(KindRBracket, KindUpper)))
			} else {
				p.errRecover("expected expression after branch label", recovery.union(setOf(KindRBracket)))
			}
			p.builder.FinishNode()
		} else if exprStart.has(p.cur()) {
			p.builder.StartNode(KindBranch)
			p.parseExpr(recovery.union(setOf(KindRBracket, KindUpper)))
			p.builder.FinishNode()
		} else {
			p.errRecover("expected alternation branch", recovery.union(setOf(KindRBracket)))
			if recovery.has(p.cur()) {
				break
			}
		}
	}

	p.expectClose(KindRBracket, "]", openSpan, "[")
	p.builder.FinishNode()
}

// seq = '{' item* '}'
func (p *parser) parseSeq(recovery tokenSet) {
	openSpan := p.curSpan()
	p.builder.StartNode(KindSeqExpr)
	p.bump() // {
	p.parseItems(KindRBrace, recovery)
	p.expectClose(KindRBrace, "}", openSpan, "{")
	p.builder.FinishNode()
}

// parseItems parses the interior of a tree or sequence until the closing
// delimiter.
func (p *parser) parseItems(close Kind, recovery tokenSet) {
	inner := recovery.union(setOf(close))
	for p.fatal == nil && !p.at(close) && !p.atEnd() {
		if !p.burn() {
			break
		}
		if exprStart.has(p.cur()) {
			p.parseExpr(inner)
		} else {
			p.errRecover("expected item", inner)
			if p.cur() != KindInvalid && inner.has(p.cur()) && p.cur() != close {
				// Caller's recovery token: stop without consuming.
				break
			}
		}
	}
}

// str = quote StrVal? quote
func (p *parser) parseStr() {
	openKind := p.cur()
	openSpan := p.curSpan()
	closeText := "\""
	if openKind == KindSQuote {
		closeText = "'"
	}
	p.builder.StartNode(KindStrExpr)
	p.bump() // open quote
	if p.at(KindStrVal) {
		p.bump()
	}
	p.expectClose(openKind, closeText, openSpan, closeText)
	p.builder.FinishNode()
}

// nthText returns the text of the n-th upcoming non-trivia token.
func (p *parser) nthText(n int) string {
	i := p.pos
	for {
		i = p.skipTriviaFrom(i)
		if i >= len(p.tokens) {
			return ""
		}
		if n == 0 {
			return TokenText(p.src, p.tokens[i])
		}
		n--
		i++
	}
}
