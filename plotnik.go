// Package plotnik compiles tree-sitter query patterns into compact
// bytecode modules and executes them against parsed syntax trees,
// producing typed structured values.
//
// The pipeline: parse → analyze → link → compile → emit → load →
// execute → materialize. Each stage accumulates diagnostics; the
// pipeline stops at the first stage that produced an error.
package plotnik

import (
	"errors"
	"fmt"

	"github.com/oxhq/plotnik/analysis"
	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/compile"
	"github.com/oxhq/plotnik/core"
	"github.com/oxhq/plotnik/emit"
	"github.com/oxhq/plotnik/lang"
	"github.com/oxhq/plotnik/syntax"
	"github.com/oxhq/plotnik/vm"
)

// CompileError carries the diagnostics of a failed compilation.
type CompileError struct {
	Sources *core.SourceMap
	Diags   *core.Diagnostics
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("query compilation failed with %d errors", e.Diags.ErrorCount())
}

// Render formats the diagnostics with annotated source snippets.
func (e *CompileError) Render(opts core.RenderOptions) string {
	return core.Render(e.Sources, e.Diags, opts)
}

// Options tune compilation.
type Options struct {
	// Parser bounds the query parser.
	Parser syntax.Limits
	// Strict promotes warnings to failures.
	Strict bool
	// Verify enables the type-directed check of every materialized
	// value against its declared type. Intended for debug builds and
	// tests.
	Verify bool
}

// Query is a compiled, linked, loaded query ready for execution.
type Query struct {
	grammar *lang.Grammar
	mod     *bytecode.Module
	bytes   []byte
	sources *core.SourceMap
	diags   *core.Diagnostics
	verify  bool
}

// SourceInput names one query source for compilation.
type SourceInput struct {
	// Path is empty for inline or stdin sources.
	Path    string
	Stdin   bool
	Content string
}

// CompileQuery compiles a single inline query against a grammar.
func CompileQuery(source string, grammar *lang.Grammar, opts Options) (*Query, error) {
	return CompileSources([]SourceInput{{Content: source}}, grammar, opts)
}

// CompileSources compiles a multi-source workspace against a grammar.
func CompileSources(inputs []SourceInput, grammar *lang.Grammar, opts Options) (*Query, error) {
	sourceMap := core.NewSourceMap()
	var diags core.Diagnostics
	var parsed []analysis.ParsedSource

	for _, in := range inputs {
		var id core.SourceID
		switch {
		case in.Path != "":
			id = sourceMap.AddFile(in.Path, in.Content)
		case in.Stdin:
			id = sourceMap.AddStdin(in.Content)
		default:
			id = sourceMap.AddInline(in.Content)
		}
		p, err := syntax.ParseQueryLimits(in.Content, opts.Parser)
		if err != nil {
			return nil, err
		}
		for _, d := range p.Diagnostics().All() {
			d.Source = id
			diags.Push(d)
		}
		parsed = append(parsed, analysis.ParsedSource{Source: id, Root: syntax.AsRoot(p.Root())})
	}

	fail := func() error {
		return &CompileError{Sources: sourceMap, Diags: &diags}
	}
	if diags.HasErrors() || (opts.Strict && diags.HasWarnings()) {
		return nil, fail()
	}

	res := analysis.Analyze(parsed, &diags)
	if diags.HasErrors() || (opts.Strict && diags.HasWarnings()) {
		return nil, fail()
	}

	res.Link(grammar, &diags)
	if diags.HasErrors() || (opts.Strict && diags.HasWarnings()) {
		return nil, fail()
	}

	compiled, err := compile.Compile(res)
	if err != nil {
		return nil, err
	}
	data, err := emit.EmitModule(compiled)
	if err != nil {
		return nil, err
	}
	mod, err := bytecode.Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading emitted module: %w", err)
	}

	return &Query{
		grammar: grammar,
		mod:     mod,
		bytes:   data,
		sources: sourceMap,
		diags:   &diags,
		verify:  opts.Verify,
	}, nil
}

// Bytes returns the emitted module bytes.
func (q *Query) Bytes() []byte { return q.bytes }

// Module returns the loaded module.
func (q *Query) Module() *bytecode.Module { return q.mod }

// Diagnostics returns warnings accumulated during compilation.
func (q *Query) Diagnostics() *core.Diagnostics { return q.diags }

// Grammar returns the grammar the query was linked against.
func (q *Query) Grammar() *lang.Grammar { return q.grammar }

// Exec runs an entrypoint ("" = default) against a tree and
// materializes the result value.
func (q *Query) Exec(root vm.Node, entrypoint string, limits vm.Limits) (vm.Value, error) {
	return q.exec(root, entrypoint, limits, nil)
}

// ExecTraced runs like Exec with a tracer attached.
func (q *Query) ExecTraced(root vm.Node, entrypoint string, limits vm.Limits, tracer vm.Tracer) (vm.Value, error) {
	return q.exec(root, entrypoint, limits, tracer)
}

func (q *Query) exec(root vm.Node, entrypoint string, limits vm.Limits, tracer vm.Tracer) (vm.Value, error) {
	machine := vm.New(q.mod, root, limits)
	if tracer != nil {
		machine.SetTracer(tracer)
	}
	effects, err := machine.Run(entrypoint)
	if err != nil {
		return nil, err
	}
	value, err := vm.Materialize(q.mod, effects)
	if err != nil {
		return nil, err
	}
	if q.verify {
		if err := q.verifyValue(value, entrypoint); err != nil {
			return nil, fmt.Errorf("type verification failed: %w", err)
		}
	}
	return value, nil
}

func (q *Query) verifyValue(value vm.Value, entrypoint string) error {
	var ep bytecode.Entrypoint
	if entrypoint == "" {
		var err error
		if ep, err = q.mod.EntrypointAt(0); err != nil {
			return err
		}
	} else {
		var ok bool
		if ep, ok = q.mod.EntrypointByName(entrypoint); !ok {
			return fmt.Errorf("unknown entrypoint %q", entrypoint)
		}
	}
	return vm.VerifyValue(q.mod, value, ep.ResultType)
}

// ExecSource parses program source with the query's grammar and runs the
// named entrypoint ("" = default). This is the one-call path the CLI uses.
func (q *Query) ExecSource(source []byte, entrypoint string, limits vm.Limits) (vm.Value, error) {
	root, err := vm.Parse(q.grammar.Language(), source)
	if err != nil {
		return nil, fmt.Errorf("parsing source: %w", err)
	}
	return q.Exec(root, entrypoint, limits)
}

// IsNoMatch reports whether an execution error is a plain query miss.
func IsNoMatch(err error) bool {
	return errors.Is(err, vm.ErrNoMatch)
}
