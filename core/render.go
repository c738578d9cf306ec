package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ColorMode controls ANSI color usage when rendering diagnostics.
type ColorMode uint8

const (
	// ColorAuto enables color when stderr is a terminal.
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// RenderOptions configure diagnostic rendering.
type RenderOptions struct {
	Color ColorMode
	// ContextLines is not read by the renderer: a snippet shows only the
	// source line containing the span start.
	ContextLines int
}

func (o RenderOptions) useColor() bool {
	switch o.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	}
}

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiDim    = "\x1b[2m"
)

// Render formats all diagnostics with annotated source snippets.
func Render(sources *SourceMap, ds *Diagnostics, opts RenderOptions) string {
	var b strings.Builder
	for i, d := range ds.Sorted() {
		if i > 0 {
			b.WriteByte('\n')
		}
		renderOne(&b, sources, d, opts)
	}
	return b.String()
}

func renderOne(b *strings.Builder, sources *SourceMap, d Diagnostic, opts RenderOptions) {
	color := opts.useColor()
	src := sources.Get(d.Source)

	sevColor := ansiRed
	if d.Severity == SeverityWarning {
		sevColor = ansiYellow
	} else if d.Severity == SeverityInfo {
		sevColor = ansiBlue
	}

	line, col := lineCol(src.Content, d.Span.Start)
	if color {
		fmt.Fprintf(b, "%s%s%s%s: %s%s\n", ansiBold, sevColor, d.Severity, ansiReset+ansiBold, d.Message, ansiReset)
	} else {
		fmt.Fprintf(b, "%s: %s\n", d.Severity, d.Message)
	}
	fmt.Fprintf(b, "  --> %s:%d:%d\n", src.Name(), line, col)
	renderSnippet(b, src.Content, d.Span, sevColor, "^", color)

	for _, rel := range d.Related {
		rl, rc := lineCol(src.Content, rel.Span.Start)
		fmt.Fprintf(b, "  note: %s\n", rel.Message)
		fmt.Fprintf(b, "  --> %s:%d:%d\n", src.Name(), rl, rc)
		renderSnippet(b, src.Content, rel.Span, ansiBlue, "-", color)
	}

	if d.Fix != "" {
		if color {
			fmt.Fprintf(b, "  %shelp:%s %s\n", ansiBold, ansiReset, d.Fix)
		} else {
			fmt.Fprintf(b, "  help: %s\n", d.Fix)
		}
	}
}

// renderSnippet prints the source line containing the span start with a
// marker line underneath. Spans past end-of-input point just after the
// last character.
func renderSnippet(b *strings.Builder, content string, span Span, markColor, markChar string, color bool) {
	start := int(span.Start)
	if start > len(content) {
		start = len(content)
	}
	lineStart := strings.LastIndexByte(content[:start], '\n') + 1
	lineEnd := strings.IndexByte(content[lineStart:], '\n')
	if lineEnd < 0 {
		lineEnd = len(content)
	} else {
		lineEnd += lineStart
	}
	lineNum, _ := lineCol(content, span.Start)
	lineText := content[lineStart:lineEnd]

	gutter := fmt.Sprintf("%4d", lineNum)
	if color {
		fmt.Fprintf(b, "%s%s |%s %s\n", ansiDim, gutter, ansiReset, lineText)
	} else {
		fmt.Fprintf(b, "%s | %s\n", gutter, lineText)
	}

	markLen := int(span.Len())
	if end := int(span.End); end > lineEnd {
		markLen = lineEnd - start
	}
	if markLen < 1 {
		markLen = 1
	}
	pad := strings.Repeat(" ", start-lineStart)
	marks := strings.Repeat(markChar, markLen)
	if color {
		fmt.Fprintf(b, "%s     |%s %s%s%s%s\n", ansiDim, ansiReset, pad, markColor, marks, ansiReset)
	} else {
		fmt.Fprintf(b, "     | %s%s\n", pad, marks)
	}
}

// lineCol converts a byte offset to 1-based line and column numbers.
func lineCol(content string, offset uint32) (int, int) {
	off := int(offset)
	if off > len(content) {
		off = len(content)
	}
	line := 1
	col := 1
	for _, c := range []byte(content[:off]) {
		if c == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
