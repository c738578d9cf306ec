package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/plotnik/analysis"
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/lang"
	"github.com/oxhq/plotnik/syntax"
)

func testGrammar() *lang.Grammar {
	return lang.Static(lang.Config{
		Name:   "testjs",
		Fields: []string{"function", "left", "name"},
		Trivia: []string{"comment"},
	}, []lang.NodeType{
		{ID: 1, Name: "program", Named: true},
		{ID: 2, Name: "expression_statement", Named: true},
		{ID: 3, Name: "identifier", Named: true},
		{ID: 4, Name: "call_expression", Named: true},
		{ID: 5, Name: "assignment", Named: true},
		{ID: 6, Name: "number", Named: true},
		{ID: 7, Name: "comment", Named: true},
		{ID: 8, Name: "pair", Named: true},
		{ID: 9, Name: ";", Named: false},
	})
}

// compileSrc runs the full front half of the pipeline on one source.
func compileSrc(t *testing.T, src string) *Result {
	t.Helper()
	p, err := syntax.ParseQuery(src)
	require.NoError(t, err)
	var diags core.Diagnostics
	diags.Extend(p.Diagnostics())
	res := analysis.Analyze([]analysis.ParsedSource{{Source: 0, Root: syntax.AsRoot(p.Root())}}, &diags)
	res.Link(testGrammar(), &diags)
	require.False(t, diags.HasErrors(), "diagnostics: %v", diags.All())

	out, err := Compile(res)
	require.NoError(t, err)
	return out
}

func matches(r *Result) []*MatchIR {
	var out []*MatchIR
	for _, in := range r.Instrs {
		if m, ok := in.(*MatchIR); ok {
			out = append(out, m)
		}
	}
	return out
}

func calls(r *Result) []*CallIR {
	var out []*CallIR
	for _, in := range r.Instrs {
		if c, ok := in.(*CallIR); ok {
			out = append(out, c)
		}
	}
	return out
}

func returns(r *Result) []*ReturnIR {
	var out []*ReturnIR
	for _, in := range r.Instrs {
		if ret, ok := in.(*ReturnIR); ok {
			out = append(out, ret)
		}
	}
	return out
}

func TestCompileSimpleCapture(t *testing.T) {
	r := compileSrc(t, "(identifier) @name")

	// The identifier match and a return remain, along with the epsilons
	// that carry the scope and Set effects.
	require.NotEmpty(t, returns(r))

	var idMatch *MatchIR
	for _, m := range matches(r) {
		if m.Type == bytecode.Named(3) {
			idMatch = m
		}
	}
	require.NotNil(t, idMatch, "identifier match present")
	assert.Equal(t, bytecode.StayExact(), idMatch.Nav, "definition bodies match at the call position")

	// The capture records the node and sets it into the def scope.
	var sawNode, sawSet, sawObj bool
	for _, m := range matches(r) {
		for _, e := range append(append([]EffectIR{}, m.Pre...), m.Post...) {
			switch e.Op {
			case bytecode.EffNode:
				sawNode = true
			case bytecode.EffSet:
				sawSet = true
				assert.Equal(t, RefByName, e.Member.Kind)
				assert.Equal(t, "name", e.Member.Name)
			case bytecode.EffObj:
				sawObj = true
			}
		}
	}
	assert.True(t, sawNode, "Node effect emitted")
	assert.True(t, sawSet, "Set effect emitted")
	assert.True(t, sawObj, "definition scope opens an object")
}

func TestCompileTreeDescends(t *testing.T) {
	r := compileSrc(t, "(program (expression_statement))")

	var navs []bytecode.NavMode
	for _, m := range matches(r) {
		navs = append(navs, m.Nav.Mode)
	}
	assert.Contains(t, navs, bytecode.NavDown, "first child reached via Down")
	assert.Contains(t, navs, bytecode.NavUp, "tree ascends after its items")
}

func TestCompileRefBecomesCall(t *testing.T) {
	r := compileSrc(t, "Stmt = (expression_statement)\n(program (Stmt))")

	cs := calls(r)
	require.Len(t, cs, 1)
	entry, ok := r.DefEntries["Stmt"]
	require.True(t, ok)
	assert.Equal(t, entry, cs[0].Target)

	// Both definitions end with Return.
	assert.Len(t, returns(r), 2)
}

func TestCompileQuantifierLoop(t *testing.T) {
	r := compileSrc(t, "(program { (expression_statement (identifier) @id)+ })")

	// The loop closes: some instruction's successors point backwards to
	// an earlier-labeled instruction.
	byLabel := map[Label]int{}
	for i, in := range r.Instrs {
		byLabel[in.IRLabel()] = i
	}
	backEdge := false
	for i, in := range r.Instrs {
		for _, s := range in.Successors() {
			if j, ok := byLabel[s]; ok && j < i {
				backEdge = true
			}
		}
	}
	assert.True(t, backEdge, "quantifier produces a loop")

	var sawArr, sawPush, sawEndArr, sawSet bool
	for _, m := range matches(r) {
		for _, e := range append(append([]EffectIR{}, m.Pre...), m.Post...) {
			switch e.Op {
			case bytecode.EffArr:
				sawArr = true
			case bytecode.EffPush:
				sawPush = true
			case bytecode.EffEndArr:
				sawEndArr = true
			case bytecode.EffSet:
				sawSet = true
			}
		}
	}
	assert.True(t, sawArr && sawPush && sawEndArr && sawSet, "array effects emitted: arr=%v push=%v end=%v set=%v", sawArr, sawPush, sawEndArr, sawSet)
}

func TestCompileOptionalNull(t *testing.T) {
	r := compileSrc(t, "(program (number)? @maybe (identifier))")

	var sawNull bool
	for _, m := range matches(r) {
		for _, e := range m.Post {
			if e.Op == bytecode.EffNull {
				sawNull = true
			}
		}
	}
	assert.True(t, sawNull, "absent optional emits an explicit Null")
}

func TestCompileTaggedAltEnums(t *testing.T) {
	src := "Stmt = [ Assign: (assignment left: (identifier) @t) Call: (call_expression function: (identifier) @f) ]\n(program (expression_statement (Stmt) @s))"
	r := compileSrc(t, src)

	var enumRels []uint16
	var sawEndEnum bool
	for _, m := range matches(r) {
		for _, e := range append(append([]EffectIR{}, m.Pre...), m.Post...) {
			switch e.Op {
			case bytecode.EffEnum:
				assert.Equal(t, RefByIndex, e.Member.Kind)
				enumRels = append(enumRels, e.Member.Rel)
			case bytecode.EffEndEnum:
				sawEndEnum = true
			}
		}
	}
	assert.ElementsMatch(t, []uint16{0, 1}, enumRels, "one variant effect per branch")
	assert.True(t, sawEndEnum)

	// Branch dispatch: some instruction has two successors.
	fanOut := false
	for _, m := range matches(r) {
		if len(m.Succs) == 2 {
			fanOut = true
		}
	}
	assert.True(t, fanOut, "alternation dispatch fans out")
}

func TestCompileFieldConstraint(t *testing.T) {
	r := compileSrc(t, "(call_expression function: (identifier) @f)")

	var fieldMatch *MatchIR
	for _, m := range matches(r) {
		if m.HasField {
			fieldMatch = m
		}
	}
	require.NotNil(t, fieldMatch, "field position holder present")
	fid := r.Analysis.Linked.FieldIDs["function"]
	assert.Equal(t, fid, fieldMatch.Field)
}

func TestCompileNegatedField(t *testing.T) {
	r := compileSrc(t, "(call_expression !function)")

	var negged *MatchIR
	for _, m := range matches(r) {
		if len(m.NegFields) > 0 {
			negged = m
		}
	}
	require.NotNil(t, negged)
	assert.Equal(t, bytecode.Named(4), negged.Type, "neg fields sit on the call_expression match")
}

func TestCompilePredicateAttachment(t *testing.T) {
	r := compileSrc(t, `(identifier) @name (#=~ @name "^test_")`)

	var pred *MatchIR
	for _, m := range matches(r) {
		if len(m.Preds) > 0 {
			pred = m
		}
	}
	require.NotNil(t, pred, "predicate attached to the capture's match")
	assert.Equal(t, bytecode.PredRegexMatch, pred.Preds[0].Op)
	assert.Equal(t, "^test_", pred.Preds[0].Arg)
	assert.Equal(t, bytecode.Named(3), pred.Type)
}

func TestCompileAnchors(t *testing.T) {
	r := compileSrc(t, "(program { . (expression_statement) (identifier) . })")

	var sawDownExact, sawUpExact bool
	for _, m := range matches(r) {
		if m.Nav == bytecode.DownExact() {
			sawDownExact = true
		}
		if m.Nav == bytecode.UpExact(1) {
			sawUpExact = true
		}
	}
	assert.True(t, sawDownExact, "leading anchor forces DownExact")
	assert.True(t, sawUpExact, "trailing anchor forces UpExact")
}

func TestCollapseUpMergesChains(t *testing.T) {
	r := &Result{
		DefEntries: map[string]Label{"_": 0},
		EntryOrder: []string{"_"},
	}
	r.Instrs = []InstrIR{
		&MatchIR{Label: 0, Nav: bytecode.Up(1), Type: bytecode.AnyNode(), Succs: []Label{1}},
		&MatchIR{Label: 1, Nav: bytecode.Up(2), Type: bytecode.AnyNode(), Succs: []Label{2}},
		&MatchIR{Label: 2, Nav: bytecode.Up(1), Type: bytecode.AnyNode(), Succs: []Label{3}},
		&ReturnIR{Label: 3},
	}
	CollapseUp(r)

	require.Len(t, r.Instrs, 2)
	m := r.Instrs[0].(*MatchIR)
	assert.Equal(t, bytecode.Up(4), m.Nav)
	assert.Equal(t, []Label{3}, m.Succs)
}

func TestCollapseUpRespectsModeAndEffects(t *testing.T) {
	r := &Result{
		DefEntries: map[string]Label{"_": 0},
		EntryOrder: []string{"_"},
	}
	r.Instrs = []InstrIR{
		&MatchIR{Label: 0, Nav: bytecode.Up(1), Type: bytecode.AnyNode(), Succs: []Label{1}},
		&MatchIR{Label: 1, Nav: bytecode.UpExact(1), Type: bytecode.AnyNode(), Succs: []Label{2}},
		&ReturnIR{Label: 2},
	}
	CollapseUp(r)
	assert.Len(t, r.Instrs, 3, "different Up modes never merge")

	r2 := &Result{
		DefEntries: map[string]Label{"_": 0},
		EntryOrder: []string{"_"},
	}
	r2.Instrs = []InstrIR{
		&MatchIR{Label: 0, Nav: bytecode.Up(1), Type: bytecode.AnyNode(), Succs: []Label{1}},
		&MatchIR{Label: 1, Nav: bytecode.Up(1), Type: bytecode.AnyNode(), Post: []EffectIR{Eff(bytecode.EffClear)}, Succs: []Label{2}},
		&ReturnIR{Label: 2},
	}
	CollapseUp(r2)
	assert.Len(t, r2.Instrs, 3, "effectful Ups never merge")
}

func TestCollapseUpCap(t *testing.T) {
	r := &Result{
		DefEntries: map[string]Label{"_": 0},
		EntryOrder: []string{"_"},
	}
	r.Instrs = []InstrIR{
		&MatchIR{Label: 0, Nav: bytecode.Up(40), Type: bytecode.AnyNode(), Succs: []Label{1}},
		&MatchIR{Label: 1, Nav: bytecode.Up(40), Type: bytecode.AnyNode(), Succs: []Label{2}},
		&ReturnIR{Label: 2},
	}
	CollapseUp(r)
	m := r.Instrs[0].(*MatchIR)
	assert.LessOrEqual(t, m.Nav.Level, uint8(63), "level capped at the 6-bit payload")
}

func TestSizeLoweringSplitsWideMatches(t *testing.T) {
	m := &MatchIR{Label: 0, Nav: bytecode.Down(), Type: bytecode.Named(1), Succs: []Label{1}}
	for i := 0; i < 20; i++ {
		m.Pre = append(m.Pre, Eff(bytecode.EffObj))
		m.Post = append(m.Post, Eff(bytecode.EffClear))
	}
	r := &Result{
		DefEntries: map[string]Label{"_": 0},
		EntryOrder: []string{"_"},
		Instrs:     []InstrIR{m, &ReturnIR{Label: 1}},
	}
	require.NoError(t, LowerSizes(r))

	for _, in := range r.Instrs {
		if mm, ok := in.(*MatchIR); ok {
			assert.LessOrEqual(t, matchSlots(mm), bytecode.MaxMatchPayloadSlots)
		}
	}
	assert.Greater(t, len(r.Instrs), 2, "overflow siphons into extra instructions")
}

func TestSizeLoweringCascadesSuccessors(t *testing.T) {
	var succs []Label
	for i := 1; i <= 40; i++ {
		succs = append(succs, Label(i))
	}
	instrs := []InstrIR{
		&MatchIR{Label: 0, Nav: bytecode.Epsilon(), Type: bytecode.AnyNode(), Succs: succs},
	}
	for i := 1; i <= 40; i++ {
		instrs = append(instrs, &ReturnIR{Label: Label(i)})
	}
	r := &Result{
		DefEntries: map[string]Label{"_": 0},
		EntryOrder: []string{"_"},
		Instrs:     instrs,
	}
	require.NoError(t, LowerSizes(r))

	// Order of final targets must be preserved depth-first.
	byLabel := r.instrByLabel()
	var flatten func(l Label) []Label
	flatten = func(l Label) []Label {
		m, ok := byLabel[l].(*MatchIR)
		if !ok {
			return []Label{l}
		}
		var out []Label
		for _, s := range m.Succs {
			out = append(out, flatten(s)...)
		}
		return out
	}
	assert.Equal(t, succs, flatten(0))
}

func TestEpsilonEliminationPreservesEntries(t *testing.T) {
	r := compileSrc(t, "(identifier) @name")
	byLabel := r.instrByLabel()
	for name, entry := range r.DefEntries {
		_, ok := byLabel[entry]
		assert.True(t, ok, "entry %s resolves to a live instruction", name)
	}

	// No pure single-successor epsilons survive optimization.
	for _, in := range r.Instrs {
		if m, ok := in.(*MatchIR); ok {
			assert.False(t, m.IsPureEpsilon() && len(m.Succs) == 1,
				"pure epsilon %d survived optimization", m.Label)
		}
	}
}
