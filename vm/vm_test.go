package vm_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/plotnik/analysis"
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/compile"
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/emit"
	"github.com/oxhq/plotnik/lang"
	"github.com/oxhq/plotnik/syntax"
	"github.com/oxhq/plotnik/vm"
)

// Node type ids shared by the test grammar and the test trees.
const (
	tProgram uint16 = 1 + iota
	tExprStmt
	tIdentifier
	tCall
	tAssign
	tNumber
	tComment
	tSemi
)

func testGrammar() *lang.Grammar {
	return lang.Static(lang.Config{
		Name:   "testjs",
		Fields: []string{"function", "left"},
		Trivia: []string{"comment"},
	}, []lang.NodeType{
		{ID: tProgram, Name: "program", Named: true},
		{ID: tExprStmt, Name: "expression_statement", Named: true},
		{ID: tIdentifier, Name: "identifier", Named: true},
		{ID: tCall, Name: "call_expression", Named: true},
		{ID: tAssign, Name: "assignment", Named: true},
		{ID: tNumber, Name: "number", Named: true},
		{ID: tComment, Name: "comment", Named: true},
		{ID: tSemi, Name: ";", Named: false},
	})
}

// testNode is an in-memory tree for exercising the VM without a parser.
type testNode struct {
	id       uint16
	kind     string
	named    bool
	field    string
	text     string
	start    int
	end      int
	children []*testNode
}

func (n *testNode) TypeID() uint16  { return n.id }
func (n *testNode) Kind() string    { return n.kind }
func (n *testNode) Named() bool     { return n.named }
func (n *testNode) ChildCount() int { return len(n.children) }
func (n *testNode) Child(i int) vm.Node {
	return n.children[i]
}
func (n *testNode) Field() string  { return n.field }
func (n *testNode) StartByte() int { return n.start }
func (n *testNode) EndByte() int   { return n.end }
func (n *testNode) Text() string   { return n.text }

var kindNames = map[uint16]string{
	tProgram: "program", tExprStmt: "expression_statement",
	tIdentifier: "identifier", tCall: "call_expression",
	tAssign: "assignment", tNumber: "number", tComment: "comment",
	tSemi: ";",
}

func tn(id uint16, text string, children ...*testNode) *testNode {
	return &testNode{
		id:       id,
		kind:     kindNames[id],
		named:    id != tSemi,
		text:     text,
		end:      len(text),
		children: children,
	}
}

func withField(field string, n *testNode) *testNode {
	n.field = field
	return n
}

// buildModule compiles a query against the test grammar.
func buildModule(t *testing.T, src string) *bytecode.Module {
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
	data, err := emit.EmitModule(compiled)
	require.NoError(t, err)
	mod, err := bytecode.Load(data)
	require.NoError(t, err)
	return mod
}

// exec runs the default entrypoint and materializes, verifying the
// declared type.
func exec(t *testing.T, src string, root vm.Node) (vm.Value, error) {
	t.Helper()
	mod := buildModule(t, src)
	machine := vm.New(mod, root, vm.Limits{})
	effects, err := machine.Run("")
	if err != nil {
		return nil, err
	}
	value, err := vm.Materialize(mod, effects)
	require.NoError(t, err)

	ep, err := mod.EntrypointAt(0)
	require.NoError(t, err)
	require.NoError(t, vm.VerifyValue(mod, value, ep.ResultType),
		"materialized value violates its declared type")
	return value, nil
}

func TestExecSimpleCaptureAtRoot(t *testing.T) {
	// Query expects the root itself to be an identifier.
	value, err := exec(t, "(identifier) @name", tn(tIdentifier, "x"))
	require.NoError(t, err)

	obj, ok := value.(vm.ObjectValue)
	require.True(t, ok, "got %s", vm.FormatValue(value))
	node, ok := obj.Fields["name"].(vm.NodeValue)
	require.True(t, ok)
	assert.Equal(t, "identifier", node.Node.Kind())
	assert.Equal(t, "x", node.Node.Text())
}

func TestExecRootMismatchIsNoMatch(t *testing.T) {
	// E1: root is program, query wants identifier at the root.
	tree := tn(tProgram, "x", tn(tExprStmt, "x", tn(tIdentifier, "x")))
	_, err := exec(t, "(identifier) @name", tree)
	assert.ErrorIs(t, err, vm.ErrNoMatch)
}

func TestExecNestedCapture(t *testing.T) {
	tree := tn(tProgram, "x", tn(tExprStmt, "x", tn(tIdentifier, "x")))
	value, err := exec(t, "(program (expression_statement (identifier) @name))", tree)
	require.NoError(t, err)
	assert.Equal(t, `{name: Node(identifier "x")}`, vm.FormatValue(value))
}

func TestExecSequencePlus(t *testing.T) {
	// E2: two statements collect into an array.
	tree := tn(tProgram, "x; y",
		tn(tExprStmt, "x", tn(tIdentifier, "x")),
		tn(tExprStmt, "y", tn(tIdentifier, "y")),
	)
	value, err := exec(t, "(program { (expression_statement (identifier) @id)+ })", tree)
	require.NoError(t, err)
	assert.Equal(t, `{id: [Node(identifier "x"), Node(identifier "y")]}`, vm.FormatValue(value))
}

func TestExecTaggedAlternation(t *testing.T) {
	// E3: the call branch matches and tags the result.
	src := `Stmt = [ Assign: (assignment left: (identifier) @t) Call: (call_expression function: (identifier) @f) ]
(program (expression_statement (Stmt) @s))`
	tree := tn(tProgram, "foo()",
		tn(tExprStmt, "foo()",
			tn(tCall, "foo()",
				withField("function", tn(tIdentifier, "foo")),
			),
		),
	)
	value, err := exec(t, src, tree)
	require.NoError(t, err)
	assert.Equal(t, `{s: Call({f: Node(identifier "foo")})}`, vm.FormatValue(value))
}

func TestExecOptionalAbsent(t *testing.T) {
	// E4: the optional number is absent, so the field is explicit null.
	tree := tn(tProgram, "x", tn(tExprStmt, "x", tn(tIdentifier, "x")))
	value, err := exec(t, "(program (expression_statement { (number)? @maybe (identifier) }))", tree)
	require.NoError(t, err)
	assert.Equal(t, "{maybe: null}", vm.FormatValue(value))

	data, err := json.Marshal(value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"maybe": null}`, string(data))
}

func TestExecOptionalPresent(t *testing.T) {
	tree := tn(tProgram, "1 x", tn(tExprStmt, "1 x",
		tn(tNumber, "1"),
		tn(tIdentifier, "x"),
	))
	value, err := exec(t, "(program (expression_statement { (number)? @maybe (identifier) }))", tree)
	require.NoError(t, err)
	assert.Equal(t, `{maybe: Node(number "1")}`, vm.FormatValue(value))
}

func TestExecRegexPredicate(t *testing.T) {
	// E5: only the test_-prefixed identifier satisfies the predicate.
	makeTree := func(name string) *testNode {
		return tn(tProgram, name, tn(tExprStmt, name, tn(tIdentifier, name)))
	}
	src := `(program (expression_statement (identifier) @name (#=~ @name "^test_")))`

	value, err := exec(t, src, makeTree("test_foo"))
	require.NoError(t, err)
	assert.Equal(t, `{name: Node(identifier "test_foo")}`, vm.FormatValue(value))

	_, err = exec(t, src, makeTree("bar"))
	assert.ErrorIs(t, err, vm.ErrNoMatch)
}

func TestExecStringPredicates(t *testing.T) {
	makeTree := func(name string) *testNode {
		return tn(tProgram, name, tn(tExprStmt, name, tn(tIdentifier, name)))
	}
	tests := []struct {
		src   string
		name  string
		match bool
	}{
		{`(program (expression_statement (identifier) @n (#== @n "exact")))`, "exact", true},
		{`(program (expression_statement (identifier) @n (#== @n "exact")))`, "other", false},
		{`(program (expression_statement (identifier) @n (#!= @n "bad")))`, "good", true},
		{`(program (expression_statement (identifier) @n (#^= @n "get")))`, "getValue", true},
		{`(program (expression_statement (identifier) @n (#$= @n "Value")))`, "getValue", true},
		{`(program (expression_statement (identifier) @n (#*= @n "tVa")))`, "getValue", true},
		{`(program (expression_statement (identifier) @n (#*= @n "zzz")))`, "getValue", false},
	}
	for _, tt := range tests {
		_, err := exec(t, tt.src, makeTree(tt.name))
		if tt.match {
			assert.NoError(t, err, "%s on %q", tt.src, tt.name)
		} else {
			assert.ErrorIs(t, err, vm.ErrNoMatch, "%s on %q", tt.src, tt.name)
		}
	}
}

func TestExecAlternationBacktracks(t *testing.T) {
	// First branch matches the statement but fails on its child; the VM
	// must back out and try the second branch.
	src := `(program [ (expression_statement (number) @n) (expression_statement (identifier) @i) ])`
	tree := tn(tProgram, "x", tn(tExprStmt, "x", tn(tIdentifier, "x")))
	value, err := exec(t, src, tree)
	require.NoError(t, err)
	assert.Equal(t, `{i: Node(identifier "x")}`, vm.FormatValue(value))
}

func TestExecSearchRetriesSiblings(t *testing.T) {
	// Down search must try each child until one satisfies the whole
	// pattern, not just the node type.
	src := `(program (expression_statement (identifier) @name))`
	tree := tn(tProgram, "1; x",
		tn(tExprStmt, "1", tn(tNumber, "1")),
		tn(tExprStmt, "x", tn(tIdentifier, "x")),
	)
	value, err := exec(t, src, tree)
	require.NoError(t, err)
	assert.Equal(t, `{name: Node(identifier "x")}`, vm.FormatValue(value))
}

func TestExecRecursiveDefinition(t *testing.T) {
	src := `Chain = (call_expression function: [ (identifier) @leaf (Chain) @inner ])
(program (expression_statement (Chain) @c))`
	// call(call(foo))
	tree := tn(tProgram, "foo()()",
		tn(tExprStmt, "foo()()",
			tn(tCall, "foo()()",
				withField("function", tn(tCall, "foo()",
					withField("function", tn(tIdentifier, "foo")),
				)),
			),
		),
	)
	value, err := exec(t, src, tree)
	require.NoError(t, err)
	// The inner Chain bubbles its leaf capture into its own scope.
	assert.Contains(t, vm.FormatValue(value), "foo")
}

func TestExecFuelExhaustion(t *testing.T) {
	mod := buildModule(t, "(program (expression_statement (identifier) @x))")
	tree := tn(tProgram, "x", tn(tExprStmt, "x", tn(tIdentifier, "x")))
	machine := vm.New(mod, tree, vm.Limits{Fuel: 3})
	_, err := machine.Run("")
	var fuelErr *vm.FuelError
	require.ErrorAs(t, err, &fuelErr)
	assert.Equal(t, 3, fuelErr.Steps)
}

func TestExecInvalidEntrypoint(t *testing.T) {
	mod := buildModule(t, "(identifier) @x")
	machine := vm.New(mod, tn(tIdentifier, "x"), vm.Limits{})
	_, err := machine.Run("Nope")
	var epErr *vm.EntrypointError
	require.ErrorAs(t, err, &epErr)
	assert.Equal(t, "Nope", epErr.Name)
}

func TestExecNamedEntrypoint(t *testing.T) {
	src := "Id = (identifier) @name\n(program (Id))"
	mod := buildModule(t, src)
	machine := vm.New(mod, tn(tIdentifier, "z"), vm.Limits{})
	effects, err := machine.Run("Id")
	require.NoError(t, err)
	value, err := vm.Materialize(mod, effects)
	require.NoError(t, err)
	assert.Equal(t, `{name: Node(identifier "z")}`, vm.FormatValue(value))
}

func TestExecNegatedField(t *testing.T) {
	src := `(program (expression_statement (call_expression !function)))`
	withFn := tn(tProgram, "f()", tn(tExprStmt, "f()",
		tn(tCall, "f()", withField("function", tn(tIdentifier, "f"))),
	))
	_, err := exec(t, src, withFn)
	assert.ErrorIs(t, err, vm.ErrNoMatch, "call with a function field must not match")

	bare := tn(tProgram, "()", tn(tExprStmt, "()", tn(tCall, "()")))
	_, err = exec(t, src, bare)
	assert.NoError(t, err)
}

func TestExecAnchors(t *testing.T) {
	src := `(program { . (expression_statement (identifier) @first) })`
	ok := tn(tProgram, "x; 1",
		tn(tExprStmt, "x", tn(tIdentifier, "x")),
		tn(tExprStmt, "1", tn(tNumber, "1")),
	)
	value, err := exec(t, src, ok)
	require.NoError(t, err)
	assert.Equal(t, `{first: Node(identifier "x")}`, vm.FormatValue(value))

	// First child is a number statement: the anchored pattern must not
	// skip it.
	bad := tn(tProgram, "1; x",
		tn(tExprStmt, "1", tn(tNumber, "1")),
		tn(tExprStmt, "x", tn(tIdentifier, "x")),
	)
	_, err = exec(t, src, bad)
	assert.ErrorIs(t, err, vm.ErrNoMatch)
}

func TestExecGreedyStar(t *testing.T) {
	// Greedy star consumes both identifiers before the number.
	tree := tn(tExprStmt, "x y z",
		tn(tIdentifier, "x"),
		tn(tIdentifier, "y"),
		tn(tNumber, "3"),
	)
	greedy, err := exec(t, "(expression_statement { (identifier)* @ids (number) })", tree)
	require.NoError(t, err)
	assert.Equal(t, `{ids: [Node(identifier "x"), Node(identifier "y")]}`, vm.FormatValue(greedy))
}

func TestExecDeterminism(t *testing.T) {
	tree := tn(tProgram, "x; y",
		tn(tExprStmt, "x", tn(tIdentifier, "x")),
		tn(tExprStmt, "y", tn(tIdentifier, "y")),
	)
	src := "(program { (expression_statement (identifier) @id)+ })"
	var results []string
	for i := 0; i < 3; i++ {
		value, err := exec(t, src, tree)
		require.NoError(t, err)
		results = append(results, vm.FormatValue(value))
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[1], results[2])
}

func TestTracerReceivesEvents(t *testing.T) {
	mod := buildModule(t, "(program (expression_statement (identifier) @x))")
	tree := tn(tProgram, "x", tn(tExprStmt, "x", tn(tIdentifier, "x")))
	machine := vm.New(mod, tree, vm.Limits{})

	var sb strings.Builder
	tracer := &vm.PrintTracer{W: &sb, Verbosity: vm.VerbosityVerbose}
	machine.SetTracer(tracer)

	_, err := machine.Run("")
	require.NoError(t, err)
	assert.Greater(t, tracer.Steps(), 0)
	assert.Contains(t, sb.String(), "identifier")
	assert.Contains(t, sb.String(), "effect")
}
