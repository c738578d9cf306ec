package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
)

// Load errors.
var (
	ErrBadMagic     = errors.New("invalid module magic")
	ErrBadVersion   = errors.New("unsupported module version")
	ErrTooSmall     = errors.New("module file too small")
	ErrSizeMismatch = errors.New("module size mismatch")
	ErrChecksum     = errors.New("module checksum mismatch")
)

// TypeDef is one entry of the type definition table.
// For wrappers (Optional, arrays, Alias) Ptr holds the inner TypeID and
// Len is zero; for composites (Struct, Enum) Ptr/Len slice the member
// pool.
type TypeDef struct {
	Kind TypeKind
	Name StringID
	Ptr  uint16
	Len  uint16
}

// Inner returns the wrapped type id of a wrapper def.
func (t TypeDef) Inner() TypeID { return TypeID(t.Ptr) }

// TypeMember is one entry of the pooled member table.
type TypeMember struct {
	Name StringID
	Type TypeID
}

// Symbol maps a grammar id (node type or field) to its name.
type Symbol struct {
	ID   uint16
	Name StringID
}

// Entrypoint is a named starting transition.
type Entrypoint struct {
	Name       StringID
	Target     StepID
	ResultType TypeID
}

// Module is a loaded bytecode module: an aligned byte buffer plus typed
// zero-copy views over its sections. Decoding is O(1) per lookup except
// regex deserialization.
type Module struct {
	buf     *AlignedBuffer
	header  Header
	offsets SectionOffsets
	// trivia caches the trivia node-type set for the VM's hot path.
	trivia map[uint16]bool
}

// ComputeChecksum hashes everything after the header.
func ComputeChecksum(data []byte) uint32 {
	if len(data) <= HeaderSize {
		return 0
	}
	return crc32.ChecksumIEEE(data[HeaderSize:])
}

// Load copies data into aligned storage and validates the header.
func Load(data []byte) (*Module, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(data))
	}
	header, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if !header.ValidMagic() {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, header.Magic[:])
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got %d, support %d", ErrBadVersion, header.Version, Version)
	}
	if int(header.TotalSize) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, file has %d", ErrSizeMismatch, header.TotalSize, len(data))
	}
	if len(data)%SectionAlign != 0 {
		return nil, fmt.Errorf("%w: size %d not 64-byte aligned", ErrSizeMismatch, len(data))
	}
	if got := ComputeChecksum(data); got != header.Checksum {
		return nil, fmt.Errorf("%w: header %#x, computed %#x", ErrChecksum, header.Checksum, got)
	}
	offsets := header.Offsets()
	if offsets.End != len(data) {
		return nil, fmt.Errorf("%w: sections end at %d, file has %d", ErrSizeMismatch, offsets.End, len(data))
	}

	m := &Module{
		buf:     NewAlignedBuffer(data),
		header:  header,
		offsets: offsets,
		trivia:  make(map[uint16]bool, header.TriviaCount),
	}
	for i := 0; i < int(header.TriviaCount); i++ {
		off := offsets.Trivia + i*TriviaSize
		m.trivia[binary.LittleEndian.Uint16(m.buf.Bytes()[off:off+2])] = true
	}
	return m, nil
}

// LoadFile reads and loads a module from disk.
func LoadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module: %w", err)
	}
	return Load(data)
}

// Header returns the decoded header.
func (m *Module) Header() Header { return m.header }

// Bytes returns the module's raw bytes.
func (m *Module) Bytes() []byte { return m.buf.Bytes() }

// Linked reports whether grammar ids are bound.
func (m *Module) Linked() bool { return m.header.Linked() }

func (m *Module) u16(off int) uint16 {
	return binary.LittleEndian.Uint16(m.buf.Bytes()[off : off+2])
}

func (m *Module) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(m.buf.Bytes()[off : off+4])
}

// StringCount returns the number of string-table entries (including the
// reserved index 0).
func (m *Module) StringCount() int { return int(m.header.StrTableCount) }

// String resolves a string id against the blob.
func (m *Module) String(id StringID) (string, error) {
	if int(id) >= m.StringCount() {
		return "", fmt.Errorf("string id %d out of range (%d strings)", id, m.StringCount())
	}
	start := m.u32(m.offsets.StrTable + int(id)*StrOffsetSize)
	end := m.u32(m.offsets.StrTable + (int(id)+1)*StrOffsetSize)
	if start > end || int(end) > int(m.header.StrBlobSize) {
		return "", fmt.Errorf("string id %d has corrupt offsets %d..%d", id, start, end)
	}
	blob := m.buf.Bytes()[m.offsets.StrBlob : m.offsets.StrBlob+int(m.header.StrBlobSize)]
	return string(blob[start:end]), nil
}

// MustString resolves a string id, returning a placeholder on corruption.
// Used by dump paths that should not fail.
func (m *Module) MustString(id StringID) string {
	s, err := m.String(id)
	if err != nil {
		return fmt.Sprintf("<str#%d>", id)
	}
	return s
}

// RegexCount returns the number of regex-table entries.
func (m *Module) RegexCount() int { return int(m.header.RegexTableCount) }

// RegexPattern returns the source pattern of regex idx.
func (m *Module) RegexPattern(idx int) (string, error) {
	if idx >= m.RegexCount() {
		return "", fmt.Errorf("regex %d out of range (%d regexes)", idx, m.RegexCount())
	}
	return m.String(StringID(m.u16(m.offsets.RegexTable + idx*RegexEntrySize)))
}

// Regex deserializes the DFA for regex idx.
func (m *Module) Regex(idx int) (*DFA, error) {
	if idx >= m.RegexCount() {
		return nil, fmt.Errorf("regex %d out of range (%d regexes)", idx, m.RegexCount())
	}
	off := m.u32(m.offsets.RegexTable + idx*RegexEntrySize + 4)
	if int(off) > int(m.header.RegexBlobSize) {
		return nil, fmt.Errorf("regex %d offset %d beyond blob size %d", idx, off, m.header.RegexBlobSize)
	}
	blob := m.buf.Bytes()[m.offsets.RegexBlob : m.offsets.RegexBlob+int(m.header.RegexBlobSize)]
	dfa, _, err := DeserializeDFA(blob[off:])
	return dfa, err
}

// NodeTypeCount returns the number of node-type symbols.
func (m *Module) NodeTypeCount() int { return int(m.header.NodeTypesCount) }

// NodeSymbol returns node-type symbol i.
func (m *Module) NodeSymbol(i int) (Symbol, error) {
	if i >= m.NodeTypeCount() {
		return Symbol{}, fmt.Errorf("node symbol %d out of range", i)
	}
	off := m.offsets.NodeTypes + i*SymbolSize
	return Symbol{ID: m.u16(off), Name: StringID(m.u16(off + 2))}, nil
}

// FieldCount returns the number of field symbols.
func (m *Module) FieldCount() int { return int(m.header.NodeFieldsCount) }

// FieldSymbol returns field symbol i. Field ids in instructions are
// indices into this table.
func (m *Module) FieldSymbol(i int) (Symbol, error) {
	if i >= m.FieldCount() {
		return Symbol{}, fmt.Errorf("field symbol %d out of range", i)
	}
	off := m.offsets.NodeFields + i*SymbolSize
	return Symbol{ID: m.u16(off), Name: StringID(m.u16(off + 2))}, nil
}

// FieldName resolves a field id to its name.
func (m *Module) FieldName(fieldID uint16) (string, error) {
	sym, err := m.FieldSymbol(int(fieldID))
	if err != nil {
		return "", err
	}
	return m.String(sym.Name)
}

// IsTrivia reports whether a node type id is on the trivia allowlist.
func (m *Module) IsTrivia(nodeType uint16) bool { return m.trivia[nodeType] }

// TriviaTypes returns the trivia node type ids.
func (m *Module) TriviaTypes() []uint16 {
	out := make([]uint16, 0, int(m.header.TriviaCount))
	for i := 0; i < int(m.header.TriviaCount); i++ {
		out = append(out, m.u16(m.offsets.Trivia+i*TriviaSize))
	}
	return out
}

// TypeCount returns the number of type definitions.
func (m *Module) TypeCount() int { return int(m.header.TypeDefsCount) }

// Type returns type definition id.
func (m *Module) Type(id TypeID) (TypeDef, error) {
	if int(id) >= m.TypeCount() {
		return TypeDef{}, fmt.Errorf("type id %d out of range (%d types)", id, m.TypeCount())
	}
	off := m.offsets.TypeDefs + int(id)*TypeDefSize
	kind, err := DecodeTypeKind(m.buf.Bytes()[off])
	if err != nil {
		return TypeDef{}, fmt.Errorf("type id %d: %w", id, err)
	}
	return TypeDef{
		Kind: kind,
		Name: StringID(m.u16(off + 2)),
		Ptr:  m.u16(off + 4),
		Len:  m.u16(off + 6),
	}, nil
}

// MemberCount returns the size of the pooled member table.
func (m *Module) MemberCount() int { return int(m.header.TypeMembersCount) }

// Member returns pooled member i. Set/Enum effect payloads are absolute
// indices into this pool.
func (m *Module) Member(i int) (TypeMember, error) {
	if i >= m.MemberCount() {
		return TypeMember{}, fmt.Errorf("type member %d out of range (%d members)", i, m.MemberCount())
	}
	off := m.offsets.TypeMembers + i*TypeMemberSize
	return TypeMember{Name: StringID(m.u16(off)), Type: TypeID(m.u16(off + 2))}, nil
}

// Members returns the member slice of a composite type def.
func (m *Module) Members(def TypeDef) ([]TypeMember, error) {
	if !def.Kind.IsComposite() {
		return nil, nil
	}
	out := make([]TypeMember, 0, def.Len)
	for i := int(def.Ptr); i < int(def.Ptr)+int(def.Len); i++ {
		mem, err := m.Member(i)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, nil
}

// TypeNameCount returns the number of type-name index entries.
func (m *Module) TypeNameCount() int { return int(m.header.TypeNamesCount) }

// TypeName returns type-name entry i as (name, type id).
func (m *Module) TypeName(i int) (StringID, TypeID, error) {
	if i >= m.TypeNameCount() {
		return 0, 0, fmt.Errorf("type name %d out of range", i)
	}
	off := m.offsets.TypeNames + i*TypeNameSize
	return StringID(m.u16(off)), TypeID(m.u16(off + 2)), nil
}

// EntrypointCount returns the number of entrypoints.
func (m *Module) EntrypointCount() int { return int(m.header.EntrypointsCount) }

// EntrypointAt returns entrypoint i.
func (m *Module) EntrypointAt(i int) (Entrypoint, error) {
	if i >= m.EntrypointCount() {
		return Entrypoint{}, fmt.Errorf("entrypoint %d out of range (%d entrypoints)", i, m.EntrypointCount())
	}
	off := m.offsets.Entrypoints + i*EntrypointSize
	return Entrypoint{
		Name:       StringID(m.u16(off)),
		Target:     StepID(m.u16(off + 2)),
		ResultType: TypeID(m.u16(off + 4)),
	}, nil
}

// EntrypointByName finds an entrypoint by its name.
func (m *Module) EntrypointByName(name string) (Entrypoint, bool) {
	for i := 0; i < m.EntrypointCount(); i++ {
		ep, err := m.EntrypointAt(i)
		if err != nil {
			return Entrypoint{}, false
		}
		if m.MustString(ep.Name) == name {
			return ep, true
		}
	}
	return Entrypoint{}, false
}

// StepCount returns the number of 8-byte steps in the transitions
// section.
func (m *Module) StepCount() int { return int(m.header.TransitionsCount) }

// InstrAt decodes the instruction starting at step id.
func (m *Module) InstrAt(id StepID) (Instr, error) {
	if id.IsAccept() {
		return Instr{}, fmt.Errorf("cannot decode the accept sentinel")
	}
	off := id.ByteOffset()
	if off >= m.StepCount()*StepSize {
		return Instr{}, fmt.Errorf("step %d out of range (%d steps)", id, m.StepCount())
	}
	section := m.buf.Bytes()[m.offsets.Transitions : m.offsets.Transitions+m.StepCount()*StepSize]
	return DecodeInstr(section[off:])
}

// Verify walks every instruction and table reference, checking the
// round-trip invariants: step targets decode, string/type/member ids
// resolve.
func (m *Module) Verify() error {
	for step := 0; step < m.StepCount(); {
		instr, err := m.InstrAt(StepID(step))
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if err := m.verifyInstr(instr); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		step += instr.Steps()
	}
	for i := 0; i < m.EntrypointCount(); i++ {
		ep, err := m.EntrypointAt(i)
		if err != nil {
			return err
		}
		if _, err := m.String(ep.Name); err != nil {
			return fmt.Errorf("entrypoint %d: %w", i, err)
		}
		if !ep.Target.IsAccept() {
			if _, err := m.InstrAt(ep.Target); err != nil {
				return fmt.Errorf("entrypoint %d target: %w", i, err)
			}
		}
		if _, err := m.Type(ep.ResultType); err != nil {
			return fmt.Errorf("entrypoint %d result type: %w", i, err)
		}
	}
	for id := 0; id < m.TypeCount(); id++ {
		def, err := m.Type(TypeID(id))
		if err != nil {
			return err
		}
		if def.Kind.IsComposite() {
			if int(def.Ptr)+int(def.Len) > m.MemberCount() {
				return fmt.Errorf("type %d members %d..%d beyond pool of %d", id, def.Ptr, int(def.Ptr)+int(def.Len), m.MemberCount())
			}
		} else if def.Kind.IsWrapper() {
			if int(def.Inner()) >= m.TypeCount() {
				return fmt.Errorf("type %d inner type %d out of range", id, def.Inner())
			}
		}
	}
	return nil
}

func (m *Module) verifyInstr(instr Instr) error {
	checkStep := func(s StepID) error {
		if s.IsAccept() {
			return nil
		}
		if _, err := m.InstrAt(s); err != nil {
			return err
		}
		return nil
	}
	switch {
	case instr.Op == OpCall:
		if err := checkStep(instr.Call.Target); err != nil {
			return fmt.Errorf("call target: %w", err)
		}
		return checkStep(instr.Call.ReturnTo)
	case instr.Op.IsMatch():
		for _, s := range instr.Match.Succs {
			if err := checkStep(s); err != nil {
				return fmt.Errorf("successor: %w", err)
			}
		}
		if p := instr.Match.Predicate; p != nil {
			if p.IsRegexOperand() {
				if int(p.Arg) >= m.RegexCount() {
					return fmt.Errorf("predicate regex %d out of range", p.Arg)
				}
			} else if int(p.Arg) >= m.StringCount() {
				return fmt.Errorf("predicate string %d out of range", p.Arg)
			}
		}
	}
	return nil
}
