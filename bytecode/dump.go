package bytecode

import (
	"fmt"
	"strings"
)

// Dump renders a human-readable module listing: header summary, tables,
// and the instruction stream. Used by the CLI and by failing tests.
func Dump(m *Module) string {
	var b strings.Builder
	h := m.Header()
	fmt.Fprintf(&b, "module %s v%d  size=%d  checksum=%08x  linked=%v\n",
		string(h.Magic[:]), h.Version, h.TotalSize, h.Checksum, h.Linked())
	fmt.Fprintf(&b, "  strings=%d regexes=%d node_types=%d fields=%d trivia=%d\n",
		h.StrTableCount, h.RegexTableCount, h.NodeTypesCount, h.NodeFieldsCount, h.TriviaCount)
	fmt.Fprintf(&b, "  types=%d members=%d type_names=%d entrypoints=%d steps=%d\n",
		h.TypeDefsCount, h.TypeMembersCount, h.TypeNamesCount, h.EntrypointsCount, h.TransitionsCount)

	if n := m.EntrypointCount(); n > 0 {
		b.WriteString("entrypoints:\n")
		for i := 0; i < n; i++ {
			ep, err := m.EntrypointAt(i)
			if err != nil {
				fmt.Fprintf(&b, "  !%v\n", err)
				continue
			}
			fmt.Fprintf(&b, "  %s -> step %d : %s\n",
				m.MustString(ep.Name), ep.Target, m.typeString(ep.ResultType))
		}
	}

	if n := m.TypeCount(); n > 0 {
		b.WriteString("types:\n")
		for id := 0; id < n; id++ {
			def, err := m.Type(TypeID(id))
			if err != nil {
				fmt.Fprintf(&b, "  !%v\n", err)
				continue
			}
			fmt.Fprintf(&b, "  #%-3d %s", id, def.Kind)
			if def.Name != 0 {
				fmt.Fprintf(&b, " %s", m.MustString(def.Name))
			}
			switch {
			case def.Kind.IsWrapper():
				fmt.Fprintf(&b, " of #%d", def.Inner())
			case def.Kind.IsComposite():
				members, _ := m.Members(def)
				parts := make([]string, 0, len(members))
				for _, mem := range members {
					parts = append(parts, fmt.Sprintf("%s:#%d", m.MustString(mem.Name), mem.Type))
				}
				fmt.Fprintf(&b, " {%s}", strings.Join(parts, ", "))
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("transitions:\n")
	for step := 0; step < m.StepCount(); {
		instr, err := m.InstrAt(StepID(step))
		if err != nil {
			fmt.Fprintf(&b, "  %4d  !%v\n", step, err)
			break
		}
		fmt.Fprintf(&b, "  %4d  %s\n", step, FormatInstr(instr))
		step += instr.Steps()
	}
	return b.String()
}

func (m *Module) typeString(id TypeID) string {
	def, err := m.Type(id)
	if err != nil {
		return fmt.Sprintf("#%d", id)
	}
	if def.Name != 0 {
		return m.MustString(def.Name)
	}
	return fmt.Sprintf("#%d(%s)", id, def.Kind)
}

// FormatInstr renders one decoded instruction.
func FormatInstr(instr Instr) string {
	switch instr.Op {
	case OpReturn:
		return "return"
	case OpCall:
		c := instr.Call
		return fmt.Sprintf("call %s -> %d, return %d", c.Nav, c.Target, c.ReturnTo)
	}
	mt := instr.Match
	var parts []string
	parts = append(parts, fmt.Sprintf("%-8s %s %s", instr.Op, mt.Nav, mt.Type))
	if mt.HasField {
		parts = append(parts, fmt.Sprintf("field=%d", mt.Field))
	}
	if mt.Predicate != nil {
		parts = append(parts, fmt.Sprintf("pred(%s)", mt.Predicate))
	}
	if len(mt.Pre) > 0 {
		parts = append(parts, "pre="+formatEffects(mt.Pre))
	}
	if len(mt.Post) > 0 {
		parts = append(parts, "post="+formatEffects(mt.Post))
	}
	if len(mt.NegFields) > 0 {
		parts = append(parts, fmt.Sprintf("neg=%v", mt.NegFields))
	}
	if len(mt.Succs) > 0 {
		succ := make([]string, len(mt.Succs))
		for i, s := range mt.Succs {
			if s.IsAccept() {
				succ[i] = "accept"
			} else {
				succ[i] = fmt.Sprintf("%d", s)
			}
		}
		parts = append(parts, "-> "+strings.Join(succ, ","))
	}
	return strings.Join(parts, "  ")
}

func formatEffects(effects []EffectOp) string {
	parts := make([]string, len(effects))
	for i, e := range effects {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
