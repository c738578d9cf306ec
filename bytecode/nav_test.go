package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavRoundTrip(t *testing.T) {
	navs := []Nav{
		Epsilon(), Stay(), StayExact(), Next(), NextSkip(), NextExact(),
		Down(), DownSkip(), DownExact(),
		Up(1), Up(63), UpSkipTrivia(5), UpExact(42),
	}
	for _, n := range navs {
		decoded, err := DecodeNav(n.Encode())
		require.NoError(t, err, n.String())
		assert.Equal(t, n, decoded, n.String())
	}
}

func TestNavEncodeRejectsBadLevels(t *testing.T) {
	assert.Panics(t, func() { Up(0).Encode() })
	assert.Panics(t, func() { Up(64).Encode() })
	assert.Panics(t, func() { UpExact(0).Encode() })
}

func TestNavDecodeRejectsBadBytes(t *testing.T) {
	_, err := DecodeNav(0b00_001001) // standard payload 9
	assert.Error(t, err)
	_, err = DecodeNav(0b01_000000) // up level 0
	assert.Error(t, err)
	_, err = DecodeNav(0b11_000000) // up-exact level 0
	assert.Error(t, err)
}

func TestNavToExact(t *testing.T) {
	assert.Equal(t, StayExact(), Stay().ToExact())
	assert.Equal(t, NextExact(), Next().ToExact())
	assert.Equal(t, NextExact(), NextSkip().ToExact())
	assert.Equal(t, DownExact(), Down().ToExact())
	assert.Equal(t, DownExact(), DownSkip().ToExact())
	assert.Equal(t, UpExact(3), Up(3).ToExact())
	assert.Equal(t, UpExact(3), UpSkipTrivia(3).ToExact())
	assert.Equal(t, Epsilon(), Epsilon().ToExact())
	assert.Equal(t, DownExact(), DownExact().ToExact())
}

func TestNavPredicates(t *testing.T) {
	assert.True(t, Down().Searches())
	assert.True(t, NextSkip().Searches())
	assert.False(t, DownExact().Searches())
	assert.False(t, Epsilon().Searches())
	assert.True(t, DownSkip().SkipsTriviaOnly())
	assert.False(t, Down().SkipsTriviaOnly())
	assert.True(t, Up(2).IsUp())
	assert.True(t, UpExact(2).IsExact())
}

func TestEffectOpRoundTrip(t *testing.T) {
	ops := []EffectOp{
		Effect(EffNode, 0), Effect(EffSet, 1023), Effect(EffEnum, 7),
		Effect(EffArr, 0), Effect(EffSuppressEnd, 0),
	}
	for _, e := range ops {
		decoded, err := DecodeEffect(e.Encode())
		require.NoError(t, err)
		assert.Equal(t, e, decoded)
	}
}

func TestEffectPayloadLimit(t *testing.T) {
	assert.Panics(t, func() { Effect(EffSet, 1024) })
	_, err := DecodeEffect(uint16(15) << 10) // opcode 15 does not exist
	assert.Error(t, err)
}

func TestPredicateOpParse(t *testing.T) {
	for _, tt := range []struct {
		text string
		op   PredicateOp
	}{
		{"==", PredEq}, {"!=", PredNe}, {"^=", PredStartsWith},
		{"$=", PredEndsWith}, {"*=", PredContains},
		{"=~", PredRegexMatch}, {"!~", PredRegexNoMatch},
	} {
		op, ok := ParsePredicateOp(tt.text)
		require.True(t, ok, tt.text)
		assert.Equal(t, tt.op, op)
		assert.Equal(t, tt.text, op.String())
	}
	_, ok := ParsePredicateOp("~=")
	assert.False(t, ok)
	assert.True(t, PredRegexMatch.IsRegex())
	assert.False(t, PredContains.IsRegex())
}

func TestNodeTypeIRDecode(t *testing.T) {
	nt, err := DecodeNodeType(0b01, 17)
	require.NoError(t, err)
	assert.Equal(t, Named(17), nt)

	nt, err = DecodeNodeType(0b10, 0)
	require.NoError(t, err)
	assert.Equal(t, AnyAnon(), nt)

	_, err = DecodeNodeType(0b00, 5)
	assert.Error(t, err, "Any with a type id is invalid")
	_, err = DecodeNodeType(0b11, 0)
	assert.Error(t, err, "reserved kind bits")
}
