package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/plotnik/bytecode"
)

// defTypeOf analyzes src and formats the type of the given definition.
func defTypeOf(t *testing.T, src, def string) string {
	t.Helper()
	res, diags := analyzeSrc(t, src)
	require.False(t, diags.HasErrors(), "diagnostics: %v", diags.All())
	info, ok := res.Inference.DefInfo[def]
	require.True(t, ok, "definition %q", def)
	return res.Inference.Ctx.Format(defType(res.Inference.Ctx, info))
}

func TestInferSimpleCapture(t *testing.T) {
	assert.Equal(t, "{name: Node}", defTypeOf(t, "(identifier) @name", UnnamedDef))
}

func TestInferNestedBubble(t *testing.T) {
	// Captures bubble out of nested node patterns into the definition
	// scope.
	got := defTypeOf(t, "(program (expression_statement (identifier) @name))", UnnamedDef)
	assert.Equal(t, "{name: Node}", got)
}

func TestInferStringAnnotation(t *testing.T) {
	assert.Equal(t, "{name: String}", defTypeOf(t, "(identifier) @name :: string", UnnamedDef))
}

func TestInferCustomAnnotation(t *testing.T) {
	assert.Equal(t, "{name: Ident}", defTypeOf(t, "(identifier) @name :: Ident", UnnamedDef))
}

func TestInferCaptureOnTreeKeepsInnerFields(t *testing.T) {
	got := defTypeOf(t, "(call (identifier) @fn) @call", UnnamedDef)
	assert.Equal(t, "{call: Node, fn: Node}", got)
}

func TestInferQuantifiers(t *testing.T) {
	tests := map[string]string{
		"(program { (expression_statement (identifier) @id)+ })": "{id: Node[+]}",
		"(program { (expression_statement (identifier) @id)* })": "{id: Node[]}",
		"(program (number)? @maybe (identifier))":                "{maybe: Node?}",
	}
	for src, want := range tests {
		assert.Equal(t, want, defTypeOf(t, src, UnnamedDef), src)
	}
}

func TestInferCapturedQuantifier(t *testing.T) {
	got := defTypeOf(t, "(program (identifier)+ @ids)", UnnamedDef)
	assert.Equal(t, "{ids: Node[+]}", got)
}

func TestInferTaggedAlt(t *testing.T) {
	src := "Stmt = [ Assign: (assignment left: (identifier) @t) Call: (call_expression function: (identifier) @f) ]\n(program (Stmt) @s)"
	got := defTypeOf(t, src, "Stmt")
	assert.Equal(t, "[Assign({t: Node}) | Call({f: Node})]", got)

	root := defTypeOf(t, src, UnnamedDef)
	assert.Equal(t, "{s: [Assign({t: Node}) | Call({f: Node})]}", root)
}

func TestInferUntaggedAltMerge(t *testing.T) {
	// `a` in both branches stays required; `b` becomes optional.
	src := "[ {(x) @a (y) @b} {(z) @a} ]"
	assert.Equal(t, "{a: Node, b?: Node}", defTypeOf(t, src, UnnamedDef))
}

func TestInferUntaggedAltConflict(t *testing.T) {
	_, diags := analyzeSrc(t, "[ {(x) @a} {(z) @a :: string} ]")
	assert.True(t, hasDiag(diags, "conflicting types"))
}

func TestInferSeqDuplicateFieldConflict(t *testing.T) {
	_, diags := analyzeSrc(t, "{ (x) @a (y) @a :: string }")
	assert.True(t, hasDiag(diags, "conflicting types"))
}

func TestInferSeqDuplicateFieldSameType(t *testing.T) {
	// Equal types merge silently and stay required.
	assert.Equal(t, "{a: Node}", defTypeOf(t, "{ (x) @a (y) @a }", UnnamedDef))
}

func TestInferQISRequiresCapture(t *testing.T) {
	_, diags := analyzeSrc(t, "(pair (x) @k (y) @v)*")
	assert.True(t, hasDiag(diags, "must itself be captured"))

	res, diags := analyzeSrc(t, "(pair (x) @k (y) @v)* @pairs")
	require.False(t, diags.HasErrors(), "diagnostics: %v", diags.All())
	assert.Len(t, res.Inference.QIS, 1)
	got := res.Inference.Ctx.Format(defType(res.Inference.Ctx, res.Inference.DefInfo[UnnamedDef]))
	assert.Equal(t, "{pairs: {k: Node, v: Node}[]}", got)
}

func TestInferRecursiveRef(t *testing.T) {
	src := "Expr = (call (Expr) @inner)\n(program (Expr) @e)"
	res, diags := analyzeSrc(t, src)
	require.False(t, diags.HasErrors(), "diagnostics: %v", diags.All())

	ctx := res.Inference.Ctx
	id, _ := res.Graph.ID("Expr")
	exprType, ok := ctx.DefType(id)
	require.True(t, ok)

	// The recursive field holds a forward reference that resolves back
	// to the definition's own type.
	shape := ctx.Shape(exprType)
	require.Equal(t, bytecode.KindStruct, shape.Kind)
	require.Len(t, shape.Fields, 1)
	assert.Equal(t, "inner", shape.Fields[0].Name)
	assert.Equal(t, exprType, ctx.ResolveRef(shape.Fields[0].Type))
}

func TestInferVoidDef(t *testing.T) {
	assert.Equal(t, "Void", defTypeOf(t, "(program (identifier))", UnnamedDef))
}

func TestInferArity(t *testing.T) {
	res, diags := analyzeSrc(t, "{ (a) (b)+ }")
	require.False(t, diags.HasErrors(), "diagnostics: %v", diags.All())
	info := res.Inference.DefInfo[UnnamedDef]
	assert.Equal(t, ArityMany, info.Arity)

	res, _ = analyzeSrc(t, "(a)")
	assert.Equal(t, ArityOne, res.Inference.DefInfo[UnnamedDef].Arity)
}

func TestTypeContextInterning(t *testing.T) {
	ctx := NewTypeContext()
	assert.Equal(t, bytecode.TypeVoidID, ctx.Intern(Shape{Kind: bytecode.KindVoid}))
	assert.Equal(t, bytecode.TypeNodeID, ctx.Intern(Shape{Kind: bytecode.KindNode}))
	assert.Equal(t, bytecode.TypeStringID, ctx.Intern(Shape{Kind: bytecode.KindString}))

	a := ctx.Intern(Shape{Kind: bytecode.KindStruct, Fields: []FieldShape{
		{Name: "b", Type: bytecode.TypeNodeID},
		{Name: "a", Type: bytecode.TypeStringID},
	}})
	b := ctx.Intern(Shape{Kind: bytecode.KindStruct, Fields: []FieldShape{
		{Name: "a", Type: bytecode.TypeStringID},
		{Name: "b", Type: bytecode.TypeNodeID},
	}})
	assert.Equal(t, a, b, "field order does not affect identity")

	opt := ctx.Optional(bytecode.TypeNodeID)
	assert.Equal(t, opt, ctx.Optional(opt), "optionals collapse")

	arr := ctx.Array(bytecode.TypeNodeID, false)
	arr1 := ctx.Array(bytecode.TypeNodeID, true)
	assert.NotEqual(t, arr, arr1, "non-empty arrays are distinct types")
}

func TestTypeContextFormat(t *testing.T) {
	ctx := NewTypeContext()
	structID := ctx.Intern(Shape{Kind: bytecode.KindStruct, Fields: []FieldShape{
		{Name: "x", Type: bytecode.TypeNodeID},
		{Name: "y", Type: ctx.Optional(bytecode.TypeStringID), Optional: true},
	}})
	assert.Equal(t, "{x: Node, y?: String?}", ctx.Format(structID))

	enumID := ctx.Intern(Shape{Kind: bytecode.KindEnum, Variants: []VariantShape{
		{Name: "A", Type: bytecode.TypeVoidID},
	}})
	assert.Equal(t, "[A(Void)]", ctx.Format(enumID))
}
