package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Opcode is the first byte of every instruction.
type Opcode uint8

const (
	OpMatch8  Opcode = 0x01
	OpMatch16 Opcode = 0x02
	OpMatch24 Opcode = 0x03
	OpMatch32 Opcode = 0x04
	OpMatch48 Opcode = 0x05
	OpMatch64 Opcode = 0x06
	OpCall    Opcode = 0x07
	OpReturn  Opcode = 0x08
)

// IsMatch reports a Match variant.
func (op Opcode) IsMatch() bool { return op >= OpMatch8 && op <= OpMatch64 }

// Size returns the instruction's total byte size.
func (op Opcode) Size() int {
	switch op {
	case OpMatch8, OpCall, OpReturn:
		return 8
	case OpMatch16:
		return 16
	case OpMatch24:
		return 24
	case OpMatch32:
		return 32
	case OpMatch48:
		return 48
	case OpMatch64:
		return 64
	}
	return 0
}

// PayloadSlots returns the u16 slot capacity of a Match variant.
func (op Opcode) PayloadSlots() int {
	if !op.IsMatch() {
		return 0
	}
	return (op.Size() - StepSize) / 2
}

func (op Opcode) String() string {
	switch op {
	case OpMatch8, OpMatch16, OpMatch24, OpMatch32, OpMatch48, OpMatch64:
		return fmt.Sprintf("match%d", op.Size())
	case OpCall:
		return "call"
	case OpReturn:
		return "return"
	}
	return fmt.Sprintf("op(%#02x)", uint8(op))
}

// SelectMatchOpcode picks the smallest Match variant fitting the slot
// count, or false when even Match64 cannot hold it.
func SelectMatchOpcode(slots int) (Opcode, bool) {
	switch {
	case slots <= 0:
		return OpMatch8, true
	case slots <= 4:
		return OpMatch16, true
	case slots <= 8:
		return OpMatch24, true
	case slots <= 12:
		return OpMatch32, true
	case slots <= 20:
		return OpMatch48, true
	case slots <= MaxMatchPayloadSlots:
		return OpMatch64, true
	}
	return 0, false
}

// Match is a decoded Match instruction.
//
// Base step layout:
//
//	byte 0   opcode
//	byte 1   nav
//	byte 2   node-kind bits 0-1 | has-field bit 2 | has-predicate bit 3 | successor count bits 4-7
//	byte 3   pre-effect count
//	bytes 4-5  node type (LE)
//	byte 6   post-effect count
//	byte 7   neg-field count
//
// Payload slots (u16 LE each) follow in order: field id, predicate op,
// predicate arg, pre-effects, post-effects, neg-fields, successors.
type Match struct {
	Nav       Nav
	Type      NodeTypeIR
	Field     uint16
	HasField  bool
	Predicate *Predicate
	Pre       []EffectOp
	Post      []EffectOp
	NegFields []uint16
	Succs     []StepID
}

// SlotCount returns the number of payload slots the match occupies.
func (m *Match) SlotCount() int {
	n := len(m.Pre) + len(m.Post) + len(m.NegFields) + len(m.Succs)
	if m.HasField {
		n++
	}
	if m.Predicate != nil {
		n += 2
	}
	return n
}

// Opcode selects the smallest fitting Match variant.
func (m *Match) Opcode() (Opcode, bool) {
	return SelectMatchOpcode(m.SlotCount())
}

// Encode appends the instruction's bytes (opcode-sized, zero-padded).
func (m *Match) Encode() ([]byte, error) {
	op, ok := m.Opcode()
	if !ok {
		return nil, fmt.Errorf("match overflows Match64: %d slots", m.SlotCount())
	}
	if len(m.Succs) > 15 {
		return nil, fmt.Errorf("match successor count %d exceeds 4-bit field", len(m.Succs))
	}
	if len(m.Pre) > 255 || len(m.Post) > 255 || len(m.NegFields) > 255 {
		return nil, fmt.Errorf("match effect/neg-field count exceeds byte range")
	}

	out := make([]byte, op.Size())
	out[0] = byte(op)
	out[1] = m.Nav.Encode()
	flags := uint8(m.Type.Kind) & 0b11
	if m.HasField {
		flags |= 1 << 2
	}
	if m.Predicate != nil {
		flags |= 1 << 3
	}
	flags |= uint8(len(m.Succs)) << 4
	out[2] = flags
	out[3] = byte(len(m.Pre))
	binary.LittleEndian.PutUint16(out[4:6], m.Type.Type)
	out[6] = byte(len(m.Post))
	out[7] = byte(len(m.NegFields))

	slot := StepSize
	put := func(v uint16) {
		binary.LittleEndian.PutUint16(out[slot:slot+2], v)
		slot += 2
	}
	if m.HasField {
		put(m.Field)
	}
	if m.Predicate != nil {
		put(uint16(m.Predicate.Op))
		put(m.Predicate.Arg)
	}
	for _, e := range m.Pre {
		put(e.Encode())
	}
	for _, e := range m.Post {
		put(e.Encode())
	}
	for _, f := range m.NegFields {
		put(f)
	}
	for _, s := range m.Succs {
		put(uint16(s))
	}
	return out, nil
}

// Call is a decoded Call instruction: navigate, push a frame, jump to
// the callee entry.
//
//	byte 0    opcode (0x07)
//	byte 1    nav
//	bytes 2-3 target StepId
//	bytes 4-5 return-to StepId
//	bytes 6-7 node type (0 = none)
type Call struct {
	Nav      Nav
	Target   StepID
	ReturnTo StepID
	NodeType uint16
}

// Encode returns the 8-byte Call step.
func (c *Call) Encode() []byte {
	out := make([]byte, StepSize)
	out[0] = byte(OpCall)
	out[1] = c.Nav.Encode()
	binary.LittleEndian.PutUint16(out[2:4], uint16(c.Target))
	binary.LittleEndian.PutUint16(out[4:6], uint16(c.ReturnTo))
	binary.LittleEndian.PutUint16(out[6:8], c.NodeType)
	return out
}

// EncodeReturn returns the 8-byte Return step.
func EncodeReturn() []byte {
	out := make([]byte, StepSize)
	out[0] = byte(OpReturn)
	return out
}

// Instr is one decoded instruction. Exactly one of Match/Call is non-nil
// for their opcodes; Return carries neither.
type Instr struct {
	Op    Opcode
	Match *Match
	Call  *Call
}

// DecodeInstr decodes the instruction starting at data[0]. data must
// extend at least to the instruction's full size.
func DecodeInstr(data []byte) (Instr, error) {
	if len(data) < StepSize {
		return Instr{}, fmt.Errorf("instruction truncated: %d bytes", len(data))
	}
	op := Opcode(data[0])
	size := op.Size()
	if size == 0 {
		return Instr{}, fmt.Errorf("invalid opcode: %#02x", data[0])
	}
	if len(data) < size {
		return Instr{}, fmt.Errorf("%s truncated: %d of %d bytes", op, len(data), size)
	}

	switch op {
	case OpReturn:
		return Instr{Op: op}, nil
	case OpCall:
		nav, err := DecodeNav(data[1])
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: op, Call: &Call{
			Nav:      nav,
			Target:   StepID(binary.LittleEndian.Uint16(data[2:4])),
			ReturnTo: StepID(binary.LittleEndian.Uint16(data[4:6])),
			NodeType: binary.LittleEndian.Uint16(data[6:8]),
		}}, nil
	}

	nav, err := DecodeNav(data[1])
	if err != nil {
		return Instr{}, err
	}
	flags := data[2]
	nodeType, err := DecodeNodeType(flags&0b11, binary.LittleEndian.Uint16(data[4:6]))
	if err != nil {
		return Instr{}, err
	}
	m := &Match{Nav: nav, Type: nodeType}
	hasField := flags&(1<<2) != 0
	hasPred := flags&(1<<3) != 0
	succCount := int(flags >> 4)
	preCount := int(data[3])
	postCount := int(data[6])
	negCount := int(data[7])

	slots := preCount + postCount + negCount + succCount
	if hasField {
		slots++
	}
	if hasPred {
		slots += 2
	}
	if slots > op.PayloadSlots() {
		return Instr{}, fmt.Errorf("%s slot partition %d exceeds capacity %d", op, slots, op.PayloadSlots())
	}

	slot := StepSize
	take := func() uint16 {
		v := binary.LittleEndian.Uint16(data[slot : slot+2])
		slot += 2
		return v
	}
	if hasField {
		m.Field = take()
		m.HasField = true
	}
	if hasPred {
		rawOp := take()
		arg := take()
		predOp, err := DecodePredicateOp(rawOp)
		if err != nil {
			return Instr{}, err
		}
		m.Predicate = &Predicate{Op: predOp, Arg: arg}
	}
	for i := 0; i < preCount; i++ {
		e, err := DecodeEffect(take())
		if err != nil {
			return Instr{}, err
		}
		m.Pre = append(m.Pre, e)
	}
	for i := 0; i < postCount; i++ {
		e, err := DecodeEffect(take())
		if err != nil {
			return Instr{}, err
		}
		m.Post = append(m.Post, e)
	}
	for i := 0; i < negCount; i++ {
		m.NegFields = append(m.NegFields, take())
	}
	for i := 0; i < succCount; i++ {
		m.Succs = append(m.Succs, StepID(take()))
	}
	return Instr{Op: op, Match: m}, nil
}

// Steps returns the number of 8-byte steps the instruction occupies.
func (i Instr) Steps() int { return i.Op.Size() / StepSize }
