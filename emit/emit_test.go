package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/plotnik/analysis"
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/compile"
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
	})
}

func emitSrc(t *testing.T, src string) []byte {
	t.Helper()
	p, err := syntax.ParseQuery(src)
	require.NoError(t, err)
	var diags core.Diagnostics
	diags.Extend(p.Diagnostics())
	res := analysis.Analyze([]analysis.ParsedSource{{Source: 0, Root: syntax.AsRoot(p.Root())}}, &diags)
	res.Link(testGrammar(), &diags)
	require.False(t, diags.HasErrors(), "diagnostics: %v", diags.All())
	compiled, err := compile.Compile(res)
	require.NoError(t, err)
	data, err := EmitModule(compiled)
	require.NoError(t, err)
	return data
}

func TestStringTable(t *testing.T) {
	st := NewStringTable()
	a := st.Intern("alpha")
	b := st.Intern("beta")
	assert.Equal(t, a, st.Intern("alpha"), "interning is idempotent")
	assert.NotEqual(t, a, b)
	assert.NotZero(t, a, "index 0 stays reserved")

	egg := st.Intern(easterEgg)
	assert.NotZero(t, egg, "even the easter egg text gets a fresh id when interned")

	blob, table := st.Emit()
	assert.Equal(t, (st.Len()+1)*4, len(table), "offset table carries a sentinel")
	assert.Contains(t, string(blob), "Beauty will save the world")
	assert.Contains(t, string(blob), "alpha")
}

func TestRegexTable(t *testing.T) {
	st := NewStringTable()
	rt := NewRegexTable(st)
	a, err := rt.Intern("^test_")
	require.NoError(t, err)
	b, err := rt.Intern("foo+")
	require.NoError(t, err)
	again, err := rt.Intern("^test_")
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)

	_, err = rt.Intern("(?P<bad>x)")
	assert.Error(t, err)

	blob, table := rt.Emit()
	assert.NotEmpty(t, blob)
	assert.Equal(t, (rt.Len()+1)*bytecode.RegexEntrySize, len(table))
}

func TestEmitAlignment(t *testing.T) {
	sources := []string{
		"(identifier) @name",
		"(program { (expression_statement (identifier) @id)+ })",
		"Stmt = [ Assign: (assignment left: (identifier) @t) Call: (call_expression function: (identifier) @f) ]\n(program (expression_statement (Stmt) @s))",
	}
	for _, src := range sources {
		data := emitSrc(t, src)
		assert.Zero(t, len(data)%bytecode.SectionAlign, "module size is 64-aligned: %s", src)

		m, err := bytecode.Load(data)
		require.NoError(t, err, src)
		assert.True(t, m.Linked())
	}
}

func TestEmitRoundTrip(t *testing.T) {
	data := emitSrc(t, `(call_expression function: (identifier) @fn (#=~ @fn "^get"))`)

	m, err := bytecode.Load(data)
	require.NoError(t, err)
	require.NoError(t, m.Verify(), "every reference resolves")

	// The predicate regex deserializes and matches.
	require.Equal(t, 1, m.RegexCount())
	dfa, err := m.Regex(0)
	require.NoError(t, err)
	assert.True(t, dfa.Match([]byte("getValue")))
	assert.False(t, dfa.Match([]byte("setValue")))

	pattern, err := m.RegexPattern(0)
	require.NoError(t, err)
	assert.Equal(t, "^get", pattern)
}

func TestEmitEntrypoints(t *testing.T) {
	data := emitSrc(t, "Stmt = (expression_statement)\n(program (Stmt))")
	m, err := bytecode.Load(data)
	require.NoError(t, err)

	require.Equal(t, 2, m.EntrypointCount())
	def, err := m.EntrypointAt(0)
	require.NoError(t, err)
	assert.Equal(t, analysis.UnnamedDef, m.MustString(def.Name), "default entrypoint is index 0")

	named, ok := m.EntrypointByName("Stmt")
	require.True(t, ok)
	assert.NotEqual(t, def.Target, named.Target)
}

func TestEmitTypeTable(t *testing.T) {
	data := emitSrc(t, "(identifier) @name")
	m, err := bytecode.Load(data)
	require.NoError(t, err)

	// Reserved primitives at 0, 1, 2.
	void, err := m.Type(bytecode.TypeVoidID)
	require.NoError(t, err)
	assert.Equal(t, bytecode.KindVoid, void.Kind)
	node, _ := m.Type(bytecode.TypeNodeID)
	assert.Equal(t, bytecode.KindNode, node.Kind)
	str, _ := m.Type(bytecode.TypeStringID)
	assert.Equal(t, bytecode.KindString, str.Kind)

	// The entrypoint's result struct has one member `name: Node`.
	ep, err := m.EntrypointAt(0)
	require.NoError(t, err)
	def, err := m.Type(ep.ResultType)
	require.NoError(t, err)
	assert.Equal(t, bytecode.KindStruct, def.Kind)
	members, err := m.Members(def)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "name", m.MustString(members[0].Name))
	assert.Equal(t, bytecode.TypeNodeID, members[0].Type)
}

func TestEmitDeterminism(t *testing.T) {
	src := "Stmt = [ A: (assignment) B: (call_expression) ]\n(program (expression_statement (Stmt) @s))"
	first := emitSrc(t, src)
	second := emitSrc(t, src)
	assert.Equal(t, first, second, "emission is byte-identical for a fixed source")
}

func TestEmitFieldSymbols(t *testing.T) {
	data := emitSrc(t, "(call_expression function: (identifier) @f)")
	m, err := bytecode.Load(data)
	require.NoError(t, err)

	require.Equal(t, 1, m.FieldCount())
	name, err := m.FieldName(0)
	require.NoError(t, err)
	assert.Equal(t, "function", name)
}

func TestEmitTrivia(t *testing.T) {
	data := emitSrc(t, "(identifier) @name")
	m, err := bytecode.Load(data)
	require.NoError(t, err)
	assert.True(t, m.IsTrivia(7), "comment node type is trivia")
	assert.False(t, m.IsTrivia(3))
}

func TestEmitLargeInstructionAlignment(t *testing.T) {
	// Many negated fields force a wide Match; it must not straddle a
	// cache line.
	data := emitSrc(t, "(call_expression !function !left !name (identifier) @a (number) @b (assignment) @c)")
	m, err := bytecode.Load(data)
	require.NoError(t, err)
	require.NoError(t, m.Verify())

	for step := 0; step < m.StepCount(); {
		instr, err := m.InstrAt(bytecode.StepID(step))
		require.NoError(t, err)
		if instr.Op.Size() >= 48 {
			byteOff := step * bytecode.StepSize
			line := byteOff % bytecode.SectionAlign
			assert.LessOrEqual(t, line+instr.Op.Size(), bytecode.SectionAlign,
				"step %d (%s) straddles a cache line", step, instr.Op)
		}
		step += instr.Steps()
	}
}
