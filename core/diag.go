package core

import (
	"fmt"
	"sort"
)

// Severity of a diagnostic message.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Stage identifies the pipeline stage that produced a diagnostic.
type Stage uint8

const (
	StageLex Stage = iota
	StageParse
	StageValidate
	StageResolve
	StageTypeCheck
	StageLink
)

func (s Stage) String() string {
	switch s {
	case StageLex:
		return "lex"
	case StageParse:
		return "parse"
	case StageValidate:
		return "validate"
	case StageResolve:
		return "resolve"
	case StageTypeCheck:
		return "typecheck"
	case StageLink:
		return "link"
	default:
		return "unknown"
	}
}

// Related is a secondary span attached to a diagnostic, e.g. the opening
// delimiter of an unclosed pair.
type Related struct {
	Span    Span
	Message string
}

// Diagnostic is one spanned, staged, severity-tagged message.
type Diagnostic struct {
	Severity Severity
	Stage    Stage
	Source   SourceID
	Span     Span
	Message  string
	Related  []Related
	// Fix is an optional human-readable suggestion.
	Fix string
}

// WithRelated returns a copy with an extra related span.
func (d Diagnostic) WithRelated(span Span, msg string) Diagnostic {
	d.Related = append(append([]Related{}, d.Related...), Related{Span: span, Message: msg})
	return d
}

// WithFix returns a copy carrying a fix suggestion.
func (d Diagnostic) WithFix(fix string) Diagnostic {
	d.Fix = fix
	return d
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%s] %s: %s", d.Severity, d.Stage, d.Span, d.Message)
}

// Errorf creates an error diagnostic.
func Errorf(stage Stage, span Span, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Stage:    stage,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Warnf creates a warning diagnostic.
func Warnf(stage Stage, span Span, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SeverityWarning,
		Stage:    stage,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Diagnostics accumulates messages across pipeline stages.
type Diagnostics struct {
	list []Diagnostic
}

// Push appends a diagnostic.
func (ds *Diagnostics) Push(d Diagnostic) {
	ds.list = append(ds.list, d)
}

// Extend appends all diagnostics from other.
func (ds *Diagnostics) Extend(other *Diagnostics) {
	ds.list = append(ds.list, other.list...)
}

// All returns the accumulated diagnostics in emission order.
func (ds *Diagnostics) All() []Diagnostic { return ds.list }

// Len returns the number of diagnostics.
func (ds *Diagnostics) Len() int { return len(ds.list) }

// Empty reports whether no diagnostics were emitted.
func (ds *Diagnostics) Empty() bool { return len(ds.list) == 0 }

// HasErrors reports whether any diagnostic has error severity.
func (ds *Diagnostics) HasErrors() bool {
	for _, d := range ds.list {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any diagnostic has warning severity.
func (ds *Diagnostics) HasWarnings() bool {
	for _, d := range ds.list {
		if d.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-severity diagnostics.
func (ds *Diagnostics) ErrorCount() int {
	n := 0
	for _, d := range ds.list {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Sorted returns diagnostics ordered by source then span start. Emission
// order is preserved for equal positions.
func (ds *Diagnostics) Sorted() []Diagnostic {
	out := append([]Diagnostic{}, ds.list...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Span.Start < out[j].Span.Start
	})
	return out
}
