package emit

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/compile"
)

// EmitModule assembles the binary module from compiled IR: tables,
// cache-aligned instruction layout, deferred reference resolution, and
// the checksummed header.
func EmitModule(r *compile.Result) ([]byte, error) {
	if r.Analysis == nil || r.Analysis.Linked == nil {
		return nil, fmt.Errorf("emit requires a linked compile result")
	}
	linked := r.Analysis.Linked
	ctx := r.Analysis.Inference.Ctx

	strings := NewStringTable()
	regexes := NewRegexTable(strings)

	types, err := BuildTypeTable(ctx, strings, r.Analysis.Graph)
	if err != nil {
		return nil, err
	}

	layout, err := BuildLayout(r)
	if err != nil {
		return nil, err
	}

	transitions, err := encodeInstructions(r, layout, types, strings, regexes)
	if err != nil {
		return nil, err
	}

	// Node-type symbols, ordered by id.
	var nodeIDs []int
	for id := range linked.NodeNames {
		nodeIDs = append(nodeIDs, int(id))
	}
	sort.Ints(nodeIDs)
	var nodeSyms []byte
	for _, id := range nodeIDs {
		nodeSyms = binary.LittleEndian.AppendUint16(nodeSyms, uint16(id))
		nodeSyms = binary.LittleEndian.AppendUint16(nodeSyms, uint16(strings.Intern(linked.NodeNames[uint16(id)])))
	}

	// Field symbols: instruction field ids are indices into this table.
	var fieldSyms []byte
	for i, name := range linked.FieldNames {
		fieldSyms = binary.LittleEndian.AppendUint16(fieldSyms, uint16(i))
		fieldSyms = binary.LittleEndian.AppendUint16(fieldSyms, uint16(strings.Intern(name)))
	}

	// Trivia allowlist from the grammar.
	var trivia []byte
	for _, id := range linked.Grammar.TriviaTypes() {
		trivia = binary.LittleEndian.AppendUint16(trivia, id)
	}

	// Entrypoints: default (unnamed) first.
	var entrypoints []byte
	for _, name := range r.EntryOrder {
		entry, ok := r.DefEntries[name]
		if !ok {
			continue
		}
		step, err := layout.StepOf(entry)
		if err != nil {
			return nil, fmt.Errorf("entrypoint %s: %w", name, err)
		}
		defID, _ := r.Analysis.Graph.ID(name)
		resultType, _ := ctx.DefType(defID)
		entrypoints = binary.LittleEndian.AppendUint16(entrypoints, uint16(strings.Intern(name)))
		entrypoints = binary.LittleEndian.AppendUint16(entrypoints, uint16(step))
		entrypoints = binary.LittleEndian.AppendUint16(entrypoints, uint16(resultType))
		entrypoints = binary.LittleEndian.AppendUint16(entrypoints, 0)
	}

	// The regex index interns each pattern's text, so it is emitted
	// before the string table is validated and frozen.
	regexBlob, regexTable := regexes.Emit()

	if err := strings.Validate(); err != nil {
		return nil, err
	}
	if err := regexes.Validate(); err != nil {
		return nil, err
	}

	strBlob, strTable := strings.Emit()
	typeDefs, typeMembers, typeNames := types.Emit()

	header := bytecode.NewHeader()
	header.StrBlobSize = uint32(len(strBlob))
	header.RegexBlobSize = uint32(len(regexBlob))
	header.StrTableCount = uint16(strings.Len())
	header.RegexTableCount = uint16(regexes.Len())
	header.NodeTypesCount = uint16(len(nodeIDs))
	header.NodeFieldsCount = uint16(len(linked.FieldNames))
	header.TriviaCount = uint16(len(trivia) / bytecode.TriviaSize)
	header.TypeDefsCount = uint16(types.Count())
	header.TypeMembersCount = uint16(types.MemberCount())
	header.TypeNamesCount = uint16(types.NameCount())
	header.EntrypointsCount = uint16(len(entrypoints) / bytecode.EntrypointSize)
	header.TransitionsCount = uint16(layout.TotalSteps)
	header.SetLinked(true)

	offsets := header.Offsets()
	header.TotalSize = uint32(offsets.End)

	buf := make([]byte, offsets.End)
	copy(buf[offsets.StrBlob:], strBlob)
	copy(buf[offsets.RegexBlob:], regexBlob)
	copy(buf[offsets.StrTable:], strTable)
	copy(buf[offsets.RegexTable:], regexTable)
	copy(buf[offsets.NodeTypes:], nodeSyms)
	copy(buf[offsets.NodeFields:], fieldSyms)
	copy(buf[offsets.Trivia:], trivia)
	copy(buf[offsets.TypeDefs:], typeDefs)
	copy(buf[offsets.TypeMembers:], typeMembers)
	copy(buf[offsets.TypeNames:], typeNames)
	copy(buf[offsets.Entrypoints:], entrypoints)
	copy(buf[offsets.Transitions:], transitions)

	header.Checksum = bytecode.ComputeChecksum(buf)
	h := header.Encode()
	copy(buf[:bytecode.HeaderSize], h[:])
	return buf, nil
}

// encodeInstructions renders the placed instructions, resolving labels
// to StepIDs and deferred member references to absolute pool indices.
// Cache-line padding gaps are filled with epsilon no-ops nothing jumps
// to.
func encodeInstructions(r *compile.Result, layout *Layout, types *TypeTable, strings *StringTable, regexes *RegexTable) ([]byte, error) {
	out := make([]byte, 0, layout.TotalSteps*bytecode.StepSize)

	pad := func(steps int) {
		filler := bytecode.Match{Nav: bytecode.Epsilon(), Type: bytecode.AnyNode()}
		for i := 0; i < steps; i++ {
			b, _ := filler.Encode()
			out = append(out, b...)
		}
	}

	resolveStep := func(l compile.Label) (bytecode.StepID, error) {
		return layout.StepOf(l)
	}

	resolveEffects := func(effects []compile.EffectIR) ([]bytecode.EffectOp, error) {
		var ops []bytecode.EffectOp
		for _, e := range effects {
			var payload uint16
			if e.Op.HasPayload() {
				var idx uint16
				var err error
				switch e.Member.Kind {
				case compile.RefAbsolute:
					idx = e.Member.Abs
				case compile.RefByName:
					idx, err = types.MemberIndex(e.Member.Parent, e.Member.Name)
				case compile.RefByIndex:
					idx, err = types.MemberIndexAt(e.Member.Parent, e.Member.Rel)
				}
				if err != nil {
					return nil, err
				}
				if idx > bytecode.MaxEffectPayload {
					return nil, fmt.Errorf("member index %d exceeds the 10-bit effect payload", idx)
				}
				payload = idx
			}
			ops = append(ops, bytecode.Effect(e.Op, payload))
		}
		return ops, nil
	}

	for i, in := range layout.Order {
		if p := layout.pads[i]; p > 0 {
			pad(p)
		}
		switch in := in.(type) {
		case *compile.ReturnIR:
			out = append(out, bytecode.EncodeReturn()...)

		case *compile.CallIR:
			target, err := resolveStep(in.Target)
			if err != nil {
				return nil, err
			}
			ret, err := resolveStep(in.ReturnTo)
			if err != nil {
				return nil, err
			}
			call := bytecode.Call{Nav: in.Nav, Target: target, ReturnTo: ret}
			out = append(out, call.Encode()...)

		case *compile.MatchIR:
			m := bytecode.Match{
				Nav:       in.Nav,
				Type:      in.Type,
				Field:     in.Field,
				HasField:  in.HasField,
				NegFields: in.NegFields,
			}
			var err error
			if m.Pre, err = resolveEffects(in.Pre); err != nil {
				return nil, err
			}
			if m.Post, err = resolveEffects(in.Post); err != nil {
				return nil, err
			}
			if len(in.Preds) > 0 {
				p := in.Preds[0]
				var arg uint16
				if p.Op.IsRegex() {
					arg, err = regexes.Intern(p.Arg)
					if err != nil {
						return nil, err
					}
				} else {
					arg = uint16(strings.Intern(p.Arg))
				}
				m.Predicate = &bytecode.Predicate{Op: p.Op, Arg: arg}
			}
			for _, s := range in.Succs {
				step, err := resolveStep(s)
				if err != nil {
					return nil, err
				}
				m.Succs = append(m.Succs, step)
			}
			encoded, err := m.Encode()
			if err != nil {
				return nil, err
			}
			out = append(out, encoded...)
		}
	}
	return out, nil
}
