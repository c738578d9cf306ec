package syntax

import "github.com/oxhq/plotnik/core"

// LexToken is a span-based token. Text is sliced from the source only when
// needed, so lexing allocates just the token slice.
type LexToken struct {
	Kind Kind
	Span core.Span
}

// TokenText returns the source text covered by the token.
func TokenText(source string, tok LexToken) string {
	return source[tok.Span.Start:tok.Span.End]
}

// Lex tokenizes source. Lexing is infallible: every byte lands in some
// token. Runs of unrecognized bytes coalesce into single Garbage tokens,
// and complete string literals split into open quote, optional body, and
// close quote.
func Lex(source string) []LexToken {
	var tokens []LexToken
	lx := lexer{src: source}

	garbageStart := -1
	flushGarbage := func(end int) {
		if garbageStart >= 0 {
			tokens = append(tokens, LexToken{Kind: KindGarbage, Span: core.NewSpan(uint32(garbageStart), uint32(end))})
			garbageStart = -1
		}
	}

	for lx.pos < len(lx.src) {
		start := lx.pos
		kind := lx.next()
		if kind == KindGarbage {
			if garbageStart < 0 {
				garbageStart = start
			}
			continue
		}
		flushGarbage(start)
		if kind == KindStrVal {
			// lx.next returned a complete string literal; split it.
			tokens = appendStringLiteral(tokens, lx.src, start, lx.pos)
			continue
		}
		tokens = append(tokens, LexToken{Kind: kind, Span: core.NewSpan(uint32(start), uint32(lx.pos))})
	}
	flushGarbage(lx.pos)
	return tokens
}

// appendStringLiteral splits a lexed literal into quote + body + quote so
// the parser can address the body and the closing quote independently.
func appendStringLiteral(tokens []LexToken, src string, start, end int) []LexToken {
	quote := KindDQuote
	if src[start] == '\'' {
		quote = KindSQuote
	}
	tokens = append(tokens, LexToken{Kind: quote, Span: core.NewSpan(uint32(start), uint32(start+1))})
	closed := end-start >= 2 && src[end-1] == src[start]
	bodyEnd := end
	if closed {
		bodyEnd = end - 1
	}
	if bodyEnd > start+1 {
		tokens = append(tokens, LexToken{Kind: KindStrVal, Span: core.NewSpan(uint32(start+1), uint32(bodyEnd))})
	}
	if closed {
		tokens = append(tokens, LexToken{Kind: quote, Span: core.NewSpan(uint32(end-1), uint32(end))})
	}
	return tokens
}

type lexer struct {
	src string
	pos int
}

func (lx *lexer) peek() byte {
	if lx.pos < len(lx.src) {
		return lx.src[lx.pos]
	}
	return 0
}

func (lx *lexer) peekAt(n int) byte {
	if lx.pos+n < len(lx.src) {
		return lx.src[lx.pos+n]
	}
	return 0
}

// next consumes one token and returns its kind. A return of KindStrVal
// means a complete string literal was consumed (split by the caller).
func (lx *lexer) next() Kind {
	c := lx.src[lx.pos]
	switch {
	case c == ' ' || c == '\t' || c == '\r':
		for lx.pos < len(lx.src) {
			c = lx.src[lx.pos]
			if c != ' ' && c != '\t' && c != '\r' {
				break
			}
			lx.pos++
		}
		return KindWhitespace
	case c == '\n':
		lx.pos++
		return KindNewline
	case c == '/' && lx.peekAt(1) == '/':
		lx.lineComment()
		return KindLineComment
	case c == ';':
		lx.lineComment()
		return KindLineComment
	case c == '/' && lx.peekAt(1) == '*':
		lx.pos += 2
		for lx.pos < len(lx.src) {
			if lx.src[lx.pos] == '*' && lx.peekAt(1) == '/' {
				lx.pos += 2
				return KindBlockComment
			}
			lx.pos++
		}
		return KindBlockComment // unterminated: runs to end of input
	case c == '"' || c == '\'':
		lx.stringLiteral(c)
		return KindStrVal
	case c == '#':
		return lx.predOp()
	case isIdentStart(c):
		upper := c >= 'A' && c <= 'Z'
		for lx.pos < len(lx.src) && isIdentContinue(lx.src[lx.pos]) {
			lx.pos++
		}
		if upper {
			return KindUpper
		}
		return KindIdent
	case c == '_':
		if isIdentContinue(lx.peekAt(1)) {
			for lx.pos < len(lx.src) && isIdentContinue(lx.src[lx.pos]) {
				lx.pos++
			}
			return KindIdent
		}
		lx.pos++
		return KindUnder
	}

	single := map[byte]Kind{
		'(': KindLParen, ')': KindRParen,
		'[': KindLBracket, ']': KindRBracket,
		'{': KindLBrace, '}': KindRBrace,
		'=': KindEq, '@': KindAt, '!': KindBang,
		'.': KindDot, '*': KindStar, '+': KindPlus,
		'?': KindQuestion, '/': KindSlash,
	}
	if c == ':' {
		if lx.peekAt(1) == ':' {
			lx.pos += 2
			return KindColonCol
		}
		lx.pos++
		return KindColon
	}
	if k, ok := single[c]; ok {
		lx.pos++
		return k
	}
	lx.pos++
	return KindGarbage
}

func (lx *lexer) lineComment() {
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
		lx.pos++
	}
}

// stringLiteral consumes a quoted literal with backslash escapes. An
// unterminated literal runs to end of line or input.
func (lx *lexer) stringLiteral(quote byte) {
	lx.pos++ // open quote
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '\\' && lx.pos+1 < len(lx.src) {
			lx.pos += 2
			continue
		}
		if c == quote {
			lx.pos++
			return
		}
		if c == '\n' {
			return
		}
		lx.pos++
	}
}

// predOp consumes `#` plus an operator or word: #== #!= #^= #$= #*= #=~ #!~
// or `#eq?`-style names. Unknown trailing bytes stay in the token; the
// parser validates the operator.
func (lx *lexer) predOp() Kind {
	lx.pos++ // #
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '=' || c == '!' || c == '^' || c == '$' || c == '*' || c == '~' || c == '?' || isIdentContinue(c) {
			lx.pos++
			continue
		}
		break
	}
	return KindPredOp
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentContinue(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '_'
}
