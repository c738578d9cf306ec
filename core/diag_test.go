package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanBasics(t *testing.T) {
	s := NewSpan(3, 8)
	assert.Equal(t, uint32(5), s.Len())
	assert.False(t, s.Empty())
	assert.True(t, s.Contains(3))
	assert.True(t, s.Contains(7))
	assert.False(t, s.Contains(8))
	assert.Equal(t, "3..8", s.String())

	cover := s.Cover(NewSpan(1, 4))
	assert.Equal(t, NewSpan(1, 8), cover)
}

func TestSpanInvalid(t *testing.T) {
	assert.Panics(t, func() { NewSpan(5, 2) })
}

func TestSourceMap(t *testing.T) {
	m := NewSourceMap()
	a := m.AddInline("(identifier)")
	b := m.AddFile("q.ptk", "(call)")
	c := m.AddStdin("(program)")

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, "(identifier)", m.Content(a))
	assert.Equal(t, "q.ptk", m.Get(b).Name())
	assert.Equal(t, "<stdin>", m.Get(c).Name())
	assert.Equal(t, "<query>", m.Get(a).Name())
}

func TestDiagnosticsCollection(t *testing.T) {
	var ds Diagnostics
	assert.True(t, ds.Empty())
	assert.False(t, ds.HasErrors())

	ds.Push(Warnf(StageParse, NewSpan(4, 5), "odd token"))
	assert.False(t, ds.HasErrors())
	assert.True(t, ds.HasWarnings())

	ds.Push(Errorf(StageResolve, NewSpan(0, 3), "undefined reference `%s`", "Foo"))
	require.True(t, ds.HasErrors())
	assert.Equal(t, 1, ds.ErrorCount())
	assert.Equal(t, 2, ds.Len())

	sorted := ds.Sorted()
	assert.Equal(t, "undefined reference `Foo`", sorted[0].Message)
	assert.Equal(t, StageResolve, sorted[0].Stage)
}

func TestDiagnosticRelatedAndFix(t *testing.T) {
	d := Errorf(StageParse, NewSpan(10, 11), "unclosed delimiter").
		WithRelated(NewSpan(2, 3), "`(` started here").
		WithFix("add a closing `)`")

	require.Len(t, d.Related, 1)
	assert.Equal(t, "`(` started here", d.Related[0].Message)
	assert.Equal(t, "add a closing `)`", d.Fix)
}

func TestRenderSnippet(t *testing.T) {
	m := NewSourceMap()
	id := m.AddInline("(call (identifier)\n")

	var ds Diagnostics
	d := Errorf(StageParse, NewSpan(19, 19), "unclosed delimiter: expected `)`").
		WithRelated(NewSpan(0, 1), "`(` started here")
	d.Source = id
	ds.Push(d)

	out := Render(m, &ds, RenderOptions{Color: ColorNever})
	assert.Contains(t, out, "error: unclosed delimiter")
	assert.Contains(t, out, "<query>:2:1")
	assert.Contains(t, out, "note: `(` started here")
	assert.Contains(t, out, "(call (identifier)")
	// Marker line under the opening paren.
	assert.True(t, strings.Contains(out, "| -"), "related marker rendered: %q", out)
}

func TestLineCol(t *testing.T) {
	content := "ab\ncde\nf"
	tests := []struct {
		offset    uint32
		line, col int
	}{
		{0, 1, 1},
		{2, 1, 3},
		{3, 2, 1},
		{6, 2, 4},
		{7, 3, 1},
		{99, 3, 2},
	}
	for _, tt := range tests {
		line, col := lineCol(content, tt.offset)
		assert.Equal(t, tt.line, line, "offset %d", tt.offset)
		assert.Equal(t, tt.col, col, "offset %d", tt.offset)
	}
}
