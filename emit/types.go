package emit

import (
	"encoding/binary"
	"fmt"

	"github.com/oxhq/plotnik/analysis"
	"github.com/oxhq/plotnik/bytecode"
)

// TypeTable flattens the analysis TypeContext into the binary type
// sections: TypeDef entries, the pooled member array, and the TypeName
// side-index. Analysis TypeIDs map 1:1 onto emitted ids, so the reserved
// primitives stay at 0, 1, 2.
type TypeTable struct {
	ctx     *analysis.TypeContext
	strings *StringTable

	defs    []byte
	members []byte
	// memberBase maps each composite type to its first pooled member.
	memberBase  map[analysis.TypeID]uint16
	memberCount int
	names       []byte
	nameCount   int
}

// BuildTypeTable emits every interned shape in id order. Forward
// references become aliases of their definition's resolved type; named
// definitions land in the TypeName index.
func BuildTypeTable(ctx *analysis.TypeContext, strings *StringTable, graph *analysis.DepGraph) (*TypeTable, error) {
	t := &TypeTable{
		ctx:        ctx,
		strings:    strings,
		memberBase: map[analysis.TypeID]uint16{},
	}

	// Freeze the table: optional struct fields emit as Optional-wrapped
	// member types, so intern those wrappers before assigning entries.
	// The loop bound re-reads Len() because interning may append.
	for id := 0; id < ctx.Len(); id++ {
		shape := ctx.Shape(analysis.TypeID(id))
		if shape.Kind == bytecode.KindStruct && !shape.IsRef {
			for _, f := range shape.Fields {
				if f.Optional {
					ctx.Optional(f.Type)
				}
			}
		}
	}

	for id := 0; id < ctx.Len(); id++ {
		tid := analysis.TypeID(id)
		shape := ctx.Shape(tid)

		var kind bytecode.TypeKind
		var nameID bytecode.StringID
		var ptr, length uint16

		switch {
		case shape.IsRef:
			kind = bytecode.KindAlias
			nameID = strings.Intern(graph.Name(shape.Ref))
			resolved := ctx.ResolveRef(tid)
			if resolved == tid {
				return nil, fmt.Errorf("unresolved forward reference to definition %d", shape.Ref)
			}
			ptr = uint16(resolved)

		case shape.Kind == bytecode.KindStruct:
			kind = shape.Kind
			base := t.memberCount
			for _, f := range shape.Fields {
				fieldType := f.Type
				if f.Optional {
					fieldType = ctx.Optional(fieldType)
				}
				t.appendMember(strings.Intern(f.Name), fieldType)
			}
			ptr = uint16(base)
			length = uint16(len(shape.Fields))
			t.memberBase[tid] = uint16(base)

		case shape.Kind == bytecode.KindEnum:
			kind = shape.Kind
			base := t.memberCount
			for _, v := range shape.Variants {
				t.appendMember(strings.Intern(v.Name), v.Type)
			}
			ptr = uint16(base)
			length = uint16(len(shape.Variants))
			t.memberBase[tid] = uint16(base)

		case shape.Kind.IsWrapper():
			kind = shape.Kind
			ptr = uint16(shape.Inner)
			if shape.Kind == bytecode.KindAlias {
				nameID = strings.Intern(shape.Name)
				t.appendName(nameID, tid)
			}

		default:
			kind = shape.Kind
		}

		entry := make([]byte, bytecode.TypeDefSize)
		entry[0] = byte(kind)
		binary.LittleEndian.PutUint16(entry[2:4], uint16(nameID))
		binary.LittleEndian.PutUint16(entry[4:6], ptr)
		binary.LittleEndian.PutUint16(entry[6:8], length)
		t.defs = append(t.defs, entry...)
	}

	// Named definitions index: name → final type id.
	for _, scc := range graph.SCCs() {
		for _, defID := range scc {
			name := graph.Name(defID)
			if name == analysis.UnnamedDef {
				continue
			}
			if tid, ok := ctx.DefType(defID); ok {
				t.appendName(strings.Intern(name), tid)
			}
		}
	}

	if t.Count() > bytecode.MaxTableEntries {
		return nil, &CountOverflowError{Table: "type", Count: t.Count()}
	}
	if t.memberCount > bytecode.MaxTableEntries {
		return nil, &CountOverflowError{Table: "type member", Count: t.memberCount}
	}
	return t, nil
}

func (t *TypeTable) appendMember(name bytecode.StringID, typ analysis.TypeID) {
	entry := make([]byte, bytecode.TypeMemberSize)
	binary.LittleEndian.PutUint16(entry[0:2], uint16(name))
	binary.LittleEndian.PutUint16(entry[2:4], uint16(typ))
	t.members = append(t.members, entry...)
	t.memberCount++
}

func (t *TypeTable) appendName(name bytecode.StringID, typ analysis.TypeID) {
	entry := make([]byte, bytecode.TypeNameSize)
	binary.LittleEndian.PutUint16(entry[0:2], uint16(name))
	binary.LittleEndian.PutUint16(entry[2:4], uint16(typ))
	t.names = append(t.names, entry...)
	t.nameCount++
}

// Count returns the number of TypeDef entries.
func (t *TypeTable) Count() int { return len(t.defs) / bytecode.TypeDefSize }

// MemberCount returns the pooled member count.
func (t *TypeTable) MemberCount() int { return t.memberCount }

// NameCount returns the TypeName entry count.
func (t *TypeTable) NameCount() int { return t.nameCount }

// MemberIndex resolves (parent composite, member name) to the absolute
// pooled index.
func (t *TypeTable) MemberIndex(parent analysis.TypeID, name string) (uint16, error) {
	base, ok := t.memberBase[parent]
	if !ok {
		return 0, fmt.Errorf("type %d has no member pool", parent)
	}
	shape := t.ctx.Shape(parent)
	switch shape.Kind {
	case bytecode.KindStruct:
		for i, f := range shape.Fields {
			if f.Name == name {
				return base + uint16(i), nil
			}
		}
	case bytecode.KindEnum:
		for i, v := range shape.Variants {
			if v.Name == name {
				return base + uint16(i), nil
			}
		}
	}
	return 0, fmt.Errorf("type %d has no member %q", parent, name)
}

// MemberIndexAt resolves (parent composite, relative index) to the
// absolute pooled index.
func (t *TypeTable) MemberIndexAt(parent analysis.TypeID, rel uint16) (uint16, error) {
	base, ok := t.memberBase[parent]
	if !ok {
		return 0, fmt.Errorf("type %d has no member pool", parent)
	}
	shape := t.ctx.Shape(parent)
	var n uint16
	switch shape.Kind {
	case bytecode.KindStruct:
		n = uint16(len(shape.Fields))
	case bytecode.KindEnum:
		n = uint16(len(shape.Variants))
	}
	if rel >= n {
		return 0, fmt.Errorf("type %d member index %d out of range (%d members)", parent, rel, n)
	}
	return base + rel, nil
}

// Emit returns (typeDefs, typeMembers, typeNames) section bytes.
func (t *TypeTable) Emit() ([]byte, []byte, []byte) {
	return t.defs, t.members, t.names
}
