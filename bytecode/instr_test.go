package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectMatchOpcode(t *testing.T) {
	tests := []struct {
		slots int
		op    Opcode
	}{
		{0, OpMatch8}, {1, OpMatch16}, {4, OpMatch16}, {5, OpMatch24},
		{8, OpMatch24}, {9, OpMatch32}, {12, OpMatch32}, {13, OpMatch48},
		{20, OpMatch48}, {21, OpMatch64}, {28, OpMatch64},
	}
	for _, tt := range tests {
		op, ok := SelectMatchOpcode(tt.slots)
		require.True(t, ok, "slots=%d", tt.slots)
		assert.Equal(t, tt.op, op, "slots=%d", tt.slots)
	}
	_, ok := SelectMatchOpcode(29)
	assert.False(t, ok)
}

func TestMatchEncodeDecodeRoundTrip(t *testing.T) {
	tests := []*Match{
		{Nav: Epsilon(), Type: AnyNode(), Succs: []StepID{5}},
		{Nav: Down(), Type: Named(12), Succs: []StepID{1, 2, 3}},
		{
			Nav:      NextExact(),
			Type:     Anon(40),
			Field:    3,
			HasField: true,
			Pre:      []EffectOp{Effect(EffObj, 0)},
			Post:     []EffectOp{Effect(EffNode, 0), Effect(EffSet, 7)},
			Succs:    []StepID{StepAccept},
		},
		{
			Nav:       Up(2),
			Type:      AnyNamed(),
			Predicate: &Predicate{Op: PredRegexMatch, Arg: 1},
			NegFields: []uint16{4, 9},
			Succs:     []StepID{10},
		},
	}
	for i, m := range tests {
		encoded, err := m.Encode()
		require.NoError(t, err, "case %d", i)
		op, _ := m.Opcode()
		assert.Len(t, encoded, op.Size(), "case %d", i)

		instr, err := DecodeInstr(encoded)
		require.NoError(t, err, "case %d", i)
		require.True(t, instr.Op.IsMatch())
		assert.Equal(t, m, instr.Match, "case %d", i)
	}
}

func TestMatchOverflow(t *testing.T) {
	m := &Match{Nav: Epsilon(), Type: AnyNode()}
	for i := 0; i < 29; i++ {
		m.Pre = append(m.Pre, Effect(EffClear, 0))
	}
	_, err := m.Encode()
	assert.Error(t, err)
}

func TestCallRoundTrip(t *testing.T) {
	c := &Call{Nav: Down(), Target: 42, ReturnTo: 7, NodeType: 3}
	instr, err := DecodeInstr(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, OpCall, instr.Op)
	assert.Equal(t, c, instr.Call)
}

func TestReturnRoundTrip(t *testing.T) {
	instr, err := DecodeInstr(EncodeReturn())
	require.NoError(t, err)
	assert.Equal(t, OpReturn, instr.Op)
	assert.Equal(t, 1, instr.Steps())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeInstr([]byte{0x00, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, err, "opcode zero")
	_, err = DecodeInstr([]byte{0xFF, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, err, "opcode out of range")
	_, err = DecodeInstr([]byte{byte(OpMatch16), 0, 0})
	assert.Error(t, err, "truncated")

	// Slot partition exceeding the opcode's capacity.
	bad := make([]byte, 16)
	bad[0] = byte(OpMatch16)
	bad[3] = 10 // pre-effect count 10 > 4 slots
	_, err = DecodeInstr(bad)
	assert.Error(t, err)
}

func TestInstrSteps(t *testing.T) {
	m := &Match{Nav: Down(), Type: Named(1), Succs: []StepID{1, 2, 3, 4, 5}}
	encoded, err := m.Encode()
	require.NoError(t, err)
	instr, err := DecodeInstr(encoded)
	require.NoError(t, err)
	assert.Equal(t, OpMatch24, instr.Op)
	assert.Equal(t, 3, instr.Steps())
}
