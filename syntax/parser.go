package syntax

import (
	"errors"

	"github.com/oxhq/plotnik/core"
)

// Fatal parser errors. Unlike diagnostics these abort the pipeline.
var (
	// ErrFuelExhausted means the iteration budget ran out; the input is
	// pathological rather than merely malformed.
	ErrFuelExhausted = errors.New("parser fuel exhausted")
	// ErrRecursionLimit means the input nests deeper than the configured cap.
	ErrRecursionLimit = errors.New("parser recursion limit exceeded")
)

// Limits bound parser work. Zero values select the defaults.
type Limits struct {
	// MaxDepth caps expression nesting (default 4096).
	MaxDepth int
	// Fuel caps total parser iterations (default 1,000,000).
	Fuel int
}

const (
	defaultMaxDepth = 4096
	defaultFuel     = 1_000_000
)

// Parse is the result of parsing one query source: a lossless tree plus
// accumulated diagnostics. The tree is always complete; errors are both
// recorded as diagnostics and represented as Error nodes.
type Parse struct {
	root  *greenNode
	diags core.Diagnostics
}

// Root returns a red cursor over the tree root.
func (p *Parse) Root() *Node {
	return &Node{green: p.root}
}

// Diagnostics returns the diagnostics collected while parsing.
func (p *Parse) Diagnostics() *core.Diagnostics { return &p.diags }

// Ok reports whether parsing produced no error diagnostics.
func (p *Parse) Ok() bool { return !p.diags.HasErrors() }

// ParseQuery parses source with default limits.
func ParseQuery(source string) (*Parse, error) {
	return ParseQueryLimits(source, Limits{})
}

// ParseQueryLimits parses source with explicit limits. The only error
// returns are fatal fuel or recursion failures; syntax problems surface
// as diagnostics on the returned Parse.
func ParseQueryLimits(source string, limits Limits) (*Parse, error) {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = defaultMaxDepth
	}
	if limits.Fuel <= 0 {
		limits.Fuel = defaultFuel
	}
	p := &parser{
		src:      source,
		tokens:   Lex(source),
		maxDepth: limits.MaxDepth,
		fuel:     limits.Fuel,
	}
	p.parseRoot()
	if p.fatal != nil {
		return nil, p.fatal
	}
	return &Parse{root: p.builder.Finish(), diags: p.diags}, nil
}

// tokenSet is a bitmask over token kinds, used for recovery sets.
type tokenSet uint64

func setOf(kinds ...Kind) tokenSet {
	var s tokenSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

func (s tokenSet) has(k Kind) bool { return s&(1<<k) != 0 }

func (s tokenSet) union(other tokenSet) tokenSet { return s | other }

type parser struct {
	src     string
	tokens  []LexToken
	pos     int
	builder Builder
	diags   core.Diagnostics

	depth    int
	maxDepth int
	fuel     int
	fatal    error
}

// burn consumes one unit of fuel; when it runs out every subsequent parse
// step becomes a no-op and the fatal error is reported to the caller.
func (p *parser) burn() bool {
	if p.fatal != nil {
		return false
	}
	if p.fuel <= 0 {
		p.fatal = ErrFuelExhausted
		return false
	}
	p.fuel--
	return true
}

func (p *parser) enter() bool {
	if p.fatal != nil {
		return false
	}
	if p.depth >= p.maxDepth {
		p.fatal = ErrRecursionLimit
		return false
	}
	p.depth++
	return true
}

func (p *parser) leave() { p.depth-- }

// skipTriviaFrom returns the index of the next non-trivia token at or
// after i.
func (p *parser) skipTriviaFrom(i int) int {
	for i < len(p.tokens) && p.tokens[i].Kind.IsTrivia() {
		i++
	}
	return i
}

// cur returns the kind of the next non-trivia token, or KindInvalid at
// end of input.
func (p *parser) cur() Kind {
	i := p.skipTriviaFrom(p.pos)
	if i >= len(p.tokens) {
		return KindInvalid
	}
	return p.tokens[i].Kind
}

// nth returns the kind of the n-th upcoming non-trivia token.
func (p *parser) nth(n int) Kind {
	i := p.pos
	for {
		i = p.skipTriviaFrom(i)
		if i >= len(p.tokens) {
			return KindInvalid
		}
		if n == 0 {
			return p.tokens[i].Kind
		}
		n--
		i++
	}
}

func (p *parser) at(k Kind) bool { return p.cur() == k }

func (p *parser) atEnd() bool { return p.cur() == KindInvalid }

// curSpan returns the span of the next non-trivia token, or an empty span
// at end of input.
func (p *parser) curSpan() core.Span {
	i := p.skipTriviaFrom(p.pos)
	if i >= len(p.tokens) {
		n := uint32(len(p.src))
		return core.NewSpan(n, n)
	}
	return p.tokens[i].Span
}

// curText returns the text of the next non-trivia token.
func (p *parser) curText() string {
	i := p.skipTriviaFrom(p.pos)
	if i >= len(p.tokens) {
		return ""
	}
	return TokenText(p.src, p.tokens[i])
}

// flushTrivia moves buffered trivia into the builder. Trivia attaches to
// whichever node performs the next bump, making it leading trivia of the
// following construct.
func (p *parser) flushTrivia() {
	for p.pos < len(p.tokens) && p.tokens[p.pos].Kind.IsTrivia() {
		t := p.tokens[p.pos]
		p.builder.Token(t.Kind, TokenText(p.src, t))
		p.pos++
	}
}

// bump consumes the next non-trivia token into the current node.
func (p *parser) bump() {
	if !p.burn() {
		return
	}
	p.flushTrivia()
	if p.pos >= len(p.tokens) {
		return
	}
	t := p.tokens[p.pos]
	p.builder.Token(t.Kind, TokenText(p.src, t))
	p.pos++
}

// eat consumes the next token if it has the expected kind.
func (p *parser) eat(k Kind) bool {
	if p.at(k) {
		p.bump()
		return true
	}
	return false
}

func (p *parser) checkpoint() Checkpoint {
	p.flushTrivia()
	return p.builder.Checkpoint()
}

func (p *parser) errorf(span core.Span, format string, args ...any) {
	p.diags.Push(core.Errorf(core.StageParse, span, format, args...))
}

// errRecover reports an unexpected token. Tokens in the recovery set are
// left for the caller; anything else is wrapped in an Error node and
// consumed so parsing can continue.
func (p *parser) errRecover(msg string, recovery tokenSet) {
	k := p.cur()
	if k == KindInvalid {
		p.errorf(p.curSpan(), "%s, found end of input", msg)
		return
	}
	if recovery.has(k) {
		p.errorf(p.curSpan(), "%s, found %s", msg, describeToken(k, p.curText()))
		return
	}
	p.errorf(p.curSpan(), "%s, found %s", msg, describeToken(k, p.curText()))
	p.builder.StartNode(KindError)
	p.bump()
	p.builder.FinishNode()
}

// expectClose consumes the closing delimiter of a pair or reports an
// unclosed-delimiter diagnostic pointing back at the opener.
func (p *parser) expectClose(close Kind, closeText string, openSpan core.Span, openText string) {
	if p.eat(close) {
		return
	}
	d := core.Errorf(core.StageParse, p.curSpan(), "unclosed delimiter: expected `%s`", closeText).
		WithRelated(openSpan, "`"+openText+"` started here")
	p.diags.Push(d)
}

func describeToken(k Kind, text string) string {
	if text != "" && k != KindGarbage {
		return "`" + text + "`"
	}
	return k.String()
}
