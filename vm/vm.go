package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oxhq/plotnik/bytecode"
)

// Runtime errors.
var (
	// ErrNoMatch is returned when the query fails to match the tree.
	ErrNoMatch = errors.New("no match found")
)

// FuelError reports instruction-budget exhaustion.
type FuelError struct {
	Steps int
}

func (e *FuelError) Error() string {
	return fmt.Sprintf("execution fuel exhausted after %d steps", e.Steps)
}

// RecursionError reports a call-depth overflow.
type RecursionError struct {
	Depth int
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("recursion limit exceeded (depth %d)", e.Depth)
}

// EntrypointError reports an unknown entrypoint name.
type EntrypointError struct {
	Name string
}

func (e *EntrypointError) Error() string {
	return fmt.Sprintf("invalid entrypoint: %s", e.Name)
}

// Limits bound one execution. Zero values pick the defaults.
type Limits struct {
	// Fuel is the instruction budget (default 1,000,000).
	Fuel int
	// MaxRecursion caps call depth (default 1024).
	MaxRecursion int
}

const (
	defaultFuel      = 1_000_000
	defaultRecursion = 1024
)

// VM executes one module against one tree. A VM is single-use per
// execution but may run repeatedly; it shares nothing with other VMs.
type VM struct {
	mod    *bytecode.Module
	root   Node
	limits Limits
	tracer Tracer
	// dfas caches deserialized regex automata by regex index.
	dfas map[uint16]*bytecode.DFA
}

// New creates a VM for a loaded module and a tree root.
func New(mod *bytecode.Module, root Node, limits Limits) *VM {
	if limits.Fuel <= 0 {
		limits.Fuel = defaultFuel
	}
	if limits.MaxRecursion <= 0 {
		limits.MaxRecursion = defaultRecursion
	}
	return &VM{
		mod:    mod,
		root:   root,
		limits: limits,
		tracer: NopTracer{},
		dfas:   map[uint16]*bytecode.DFA{},
	}
}

// SetTracer installs an execution tracer.
func (vm *VM) SetTracer(t Tracer) {
	if t == nil {
		t = NopTracer{}
	}
	vm.tracer = t
}

// Run executes the named entrypoint ("" selects index 0) and returns
// the finalized effect stream.
func (vm *VM) Run(entrypoint string) ([]Effect, error) {
	ep, err := vm.findEntrypoint(entrypoint)
	if err != nil {
		return nil, err
	}
	ex := &execution{
		vm:          vm,
		cursor:      NewCursor(vm.root),
		checkpoints: newCheckpointStack(),
		frames:      newFrameArena(),
		fuel:        vm.limits.Fuel,
		ip:          ep.Target,
	}
	return ex.run()
}

func (vm *VM) findEntrypoint(name string) (bytecode.Entrypoint, error) {
	if name == "" {
		if vm.mod.EntrypointCount() == 0 {
			return bytecode.Entrypoint{}, &EntrypointError{Name: "<default>"}
		}
		return vm.mod.EntrypointAt(0)
	}
	ep, ok := vm.mod.EntrypointByName(name)
	if !ok {
		return bytecode.Entrypoint{}, &EntrypointError{Name: name}
	}
	return ep, nil
}

func (vm *VM) dfa(idx uint16) (*bytecode.DFA, error) {
	if d, ok := vm.dfas[idx]; ok {
		return d, nil
	}
	d, err := vm.mod.Regex(int(idx))
	if err != nil {
		return nil, err
	}
	vm.dfas[idx] = d
	return d, nil
}

// execution is the per-run mutable state.
type execution struct {
	vm          *VM
	cursor      *Cursor
	checkpoints *checkpointStack
	frames      *frameArena
	log         effectLog
	ip          bytecode.StepID
	fuel        int
	suppress    int
	// resumeSearch carries the skip policy of a restored search checkpoint
	// into the next dispatch.
	resumeSearch bool
}

func (ex *execution) run() ([]Effect, error) {
	for {
		if ex.ip.IsAccept() {
			return ex.log.All(), nil
		}
		if ex.fuel <= 0 {
			return nil, &FuelError{Steps: ex.vm.limits.Fuel}
		}
		ex.fuel--

		instr, err := ex.vm.mod.InstrAt(ex.ip)
		if err != nil {
			return nil, err
		}
		ex.vm.tracer.Step(ex.ip, instr, ex.cursor.Current())
		resume := ex.resumeSearch
		ex.resumeSearch = false

		var stepErr error
		switch {
		case instr.Op == bytecode.OpReturn:
			if ex.frames.empty() {
				return ex.log.All(), nil
			}
			f := ex.frames.pop()
			ex.ip = f.returnAddr
			ex.frames.prune(ex.checkpoints.maxFrameRef)

		case instr.Op == bytecode.OpCall:
			stepErr = ex.execCall(instr.Call, resume)

		default:
			stepErr = ex.execMatch(instr.Match, resume)
		}

		if stepErr != nil {
			var rs *recursionSignal
			if errors.As(stepErr, &rs) {
				return nil, &RecursionError{Depth: rs.depth}
			}
			if err := ex.backtrack(); err != nil {
				return nil, err
			}
		}
	}
}

var errFail = errors.New("step failed")

// execCall applies the call's navigation, pushes a frame, and jumps to
// the callee.
func (ex *execution) execCall(call *bytecode.Call, resume bool) error {
	if !resume {
		ok, searches := ex.applyNav(call.Nav, func(Node) bool { return true })
		if !ok {
			return errFail
		}
		if searches {
			ex.pushSearchCheckpoint()
		}
	} else if !ex.cursor.GotoNextSibling() {
		return errFail
	} else {
		// The retried position may itself admit further retries.
		ex.pushSearchCheckpoint()
	}

	if ex.frames.depth() >= ex.vm.limits.MaxRecursion {
		return &recursionSignal{depth: ex.frames.depth()}
	}
	ex.frames.push(call.ReturnTo, ex.cursor.Depth())
	ex.ip = call.Target
	return nil
}

// recursionSignal aborts the run from inside a step.
type recursionSignal struct{ depth int }

func (r *recursionSignal) Error() string { return "recursion limit" }

// execMatch runs one Match instruction: pre-effects, navigation with
// its search loop, node validation, post-effects, and successor
// scheduling.
func (ex *execution) execMatch(m *bytecode.Match, resume bool) error {
	if !resume {
		for _, e := range m.Pre {
			ex.emit(e)
		}
	}

	if !m.Nav.IsEpsilon() {
		check := func(n Node) bool { return ex.checkNode(m, n) }
		if !resume {
			ok, searches := ex.applyNav(m.Nav, check)
			if !ok {
				return errFail
			}
			if searches {
				ex.pushSearchCheckpoint()
			}
		} else {
			// Restored search: move past the previous match and continue
			// the sibling scan.
			if !ex.searchFrom(check, true) {
				return errFail
			}
			ex.pushSearchCheckpoint()
		}
	}

	for _, e := range m.Post {
		ex.emit(e)
	}

	switch len(m.Succs) {
	case 0:
		return errFail
	case 1:
		ex.ip = m.Succs[0]
	default:
		// Save alternatives newest-last so the second successor is the
		// next one tried.
		for i := len(m.Succs) - 1; i >= 1; i-- {
			ex.pushCheckpoint(m.Succs[i], skipNone)
		}
		ex.ip = m.Succs[0]
	}
	return nil
}

// emit records an effect, attaching the current node to Node/Text
// captures and tracking suppression depth.
func (ex *execution) emit(e bytecode.EffectOp) {
	eff := Effect{Op: e.Opcode, Payload: e.Payload}
	if e.Opcode == bytecode.EffNode || e.Opcode == bytecode.EffText {
		eff.Node = ex.cursor.Current()
	}
	switch e.Opcode {
	case bytecode.EffSuppressBegin:
		ex.suppress++
	case bytecode.EffSuppressEnd:
		if ex.suppress > 0 {
			ex.suppress--
		}
	}
	ex.vm.tracer.Effect(eff)
	ex.log.push(eff)
}

// applyNav moves the cursor and, for checking navs, runs the search
// loop. It reports success and whether a retry checkpoint is warranted.
func (ex *execution) applyNav(nav bytecode.Nav, check func(Node) bool) (bool, bool) {
	switch nav.Mode {
	case bytecode.NavStay, bytecode.NavStayExact:
		return check(ex.cursor.Current()), false

	case bytecode.NavDown, bytecode.NavDownSkip, bytecode.NavDownExact:
		if !ex.cursor.GotoFirstChild() {
			return false, false
		}
	case bytecode.NavNext, bytecode.NavNextSkip, bytecode.NavNextExact:
		if !ex.cursor.GotoNextSibling() {
			return false, false
		}

	case bytecode.NavUp, bytecode.NavUpSkipTrivia, bytecode.NavUpExact:
		if nav.Mode == bytecode.NavUpExact && !ex.cursor.IsLastChild() {
			return false, false
		}
		if nav.Mode == bytecode.NavUpSkipTrivia && !ex.cursor.LastNonTrivia(ex.isTrivia) {
			return false, false
		}
		if !ex.cursor.GotoParent(int(nav.Level)) {
			return false, false
		}
		return check(ex.cursor.Current()), false

	default:
		return true, false
	}

	if nav.IsExact() {
		return check(ex.cursor.Current()), false
	}
	if !ex.searchLoop(check, nav.SkipsTriviaOnly()) {
		return false, false
	}
	// Only skip-any searches may legally retry past their match.
	return true, !nav.SkipsTriviaOnly()
}

// searchLoop advances among siblings until check passes. Trivia-only
// search fails as soon as it would skip a real node.
func (ex *execution) searchLoop(check func(Node) bool, triviaOnly bool) bool {
	for {
		cur := ex.cursor.Current()
		if check(cur) {
			return true
		}
		if triviaOnly && !ex.isTrivia(cur) {
			return false
		}
		if !ex.cursor.GotoNextSibling() {
			return false
		}
	}
}

// searchFrom resumes a search past the previously matched node.
func (ex *execution) searchFrom(check func(Node) bool, _ bool) bool {
	if !ex.cursor.GotoNextSibling() {
		return false
	}
	return ex.searchLoop(check, false)
}

func (ex *execution) isTrivia(n Node) bool {
	return ex.vm.mod.IsTrivia(n.TypeID())
}

// checkNode validates the current node against the match's constraints.
func (ex *execution) checkNode(m *bytecode.Match, n Node) bool {
	switch m.Type.Kind {
	case bytecode.NodeNamed:
		if !n.Named() {
			return false
		}
		if m.Type.Type != 0 && n.TypeID() != m.Type.Type {
			return false
		}
	case bytecode.NodeAnon:
		if n.Named() {
			return false
		}
		if m.Type.Type != 0 && n.TypeID() != m.Type.Type {
			return false
		}
	}

	if m.HasField {
		name, err := ex.vm.mod.FieldName(m.Field)
		if err != nil || n.Field() != name {
			return false
		}
	}

	for _, neg := range m.NegFields {
		name, err := ex.vm.mod.FieldName(neg)
		if err != nil {
			return false
		}
		for i := 0; i < n.ChildCount(); i++ {
			if n.Child(i).Field() == name {
				return false
			}
		}
	}

	if m.Predicate != nil && !ex.checkPredicate(m.Predicate, n) {
		return false
	}
	return true
}

func (ex *execution) checkPredicate(p *bytecode.Predicate, n Node) bool {
	text := n.Text()
	switch p.Op {
	case bytecode.PredRegexMatch, bytecode.PredRegexNoMatch:
		dfa, err := ex.vm.dfa(p.Arg)
		if err != nil {
			return false
		}
		matched := dfa.Match([]byte(text))
		if p.Op == bytecode.PredRegexNoMatch {
			return !matched
		}
		return matched
	}

	arg, err := ex.vm.mod.String(bytecode.StringID(p.Arg))
	if err != nil {
		return false
	}
	switch p.Op {
	case bytecode.PredEq:
		return text == arg
	case bytecode.PredNe:
		return text != arg
	case bytecode.PredStartsWith:
		return strings.HasPrefix(text, arg)
	case bytecode.PredEndsWith:
		return strings.HasSuffix(text, arg)
	case bytecode.PredContains:
		return strings.Contains(text, arg)
	}
	return false
}

func (ex *execution) pushCheckpoint(resume bytecode.StepID, skip skipPolicy) {
	ex.checkpoints.push(checkpoint{
		path:           ex.cursor.Snapshot(),
		effectMark:     ex.log.mark(),
		frameIndex:     ex.frames.current,
		recursionDepth: ex.frames.depth(),
		resumeIP:       resume,
		skip:           skip,
		suppressDepth:  ex.suppress,
	})
}

// pushSearchCheckpoint records a retry point at the current instruction
// so backtracking can continue the positional search.
func (ex *execution) pushSearchCheckpoint() {
	ex.pushCheckpoint(ex.ip, skipAny)
}

// backtrack restores the newest checkpoint. With an empty stack the
// query definitively fails.
func (ex *execution) backtrack() error {
	cp, ok := ex.checkpoints.pop()
	if !ok {
		return ErrNoMatch
	}
	ex.vm.tracer.Backtrack(cp.resumeIP)
	ex.cursor.Restore(cp.path)
	ex.log.truncate(cp.effectMark)
	ex.frames.restore(cp.frameIndex)
	ex.suppress = cp.suppressDepth
	ex.ip = cp.resumeIP
	ex.resumeSearch = cp.skip == skipAny
	return nil
}
