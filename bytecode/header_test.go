package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader()
	h.Checksum = 0x12345678
	h.TotalSize = 1024
	h.StrBlobSize = 100
	h.RegexBlobSize = 256
	h.StrTableCount = 10
	h.RegexTableCount = 3
	h.NodeTypesCount = 20
	h.NodeFieldsCount = 5
	h.TriviaCount = 2
	h.TypeDefsCount = 8
	h.TypeMembersCount = 12
	h.TypeNamesCount = 4
	h.EntrypointsCount = 1
	h.TransitionsCount = 15
	h.SetLinked(true)

	encoded := h.Encode()
	assert.Len(t, encoded[:], HeaderSize)

	decoded, err := DecodeHeader(encoded[:])
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
	assert.True(t, decoded.Linked())
}

func TestHeaderDefaults(t *testing.T) {
	h := NewHeader()
	assert.True(t, h.ValidMagic())
	assert.Equal(t, Version, h.Version)
	assert.False(t, h.Linked())

	h.SetLinked(true)
	assert.Equal(t, FlagLinked, h.Flags)
	h.SetLinked(false)
	assert.Zero(t, h.Flags)
}

func TestHeaderDecodeTooSmall(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 10))
	assert.Error(t, err)
}

func TestSectionOffsetsAligned(t *testing.T) {
	h := NewHeader()
	h.StrBlobSize = 100
	h.RegexBlobSize = 128
	h.StrTableCount = 5
	h.RegexTableCount = 2
	h.NodeTypesCount = 10
	h.NodeFieldsCount = 5
	h.TriviaCount = 3
	h.TypeDefsCount = 8
	h.TypeMembersCount = 12
	h.TypeNamesCount = 4
	h.EntrypointsCount = 2
	h.TransitionsCount = 20

	o := h.Offsets()
	for name, off := range map[string]int{
		"str_blob": o.StrBlob, "regex_blob": o.RegexBlob,
		"str_table": o.StrTable, "regex_table": o.RegexTable,
		"node_types": o.NodeTypes, "node_fields": o.NodeFields,
		"trivia": o.Trivia, "type_defs": o.TypeDefs,
		"type_members": o.TypeMembers, "type_names": o.TypeNames,
		"entrypoints": o.Entrypoints, "transitions": o.Transitions,
		"end": o.End,
	} {
		assert.Zero(t, off%SectionAlign, "%s offset %d must be 64-aligned", name, off)
	}

	// Sections are laid out in order without overlap.
	assert.Equal(t, HeaderSize, o.StrBlob)
	assert.GreaterOrEqual(t, o.RegexBlob, o.StrBlob+100)
	assert.GreaterOrEqual(t, o.Transitions, o.Entrypoints+2*EntrypointSize)
	assert.GreaterOrEqual(t, o.End, o.Transitions+20*StepSize)
}

func TestSectionOffsetsEmpty(t *testing.T) {
	h := NewHeader()
	o := h.Offsets()
	// With zero counts only the sentinel entries of the string and regex
	// tables consume space.
	assert.Equal(t, 64, o.StrBlob)
	assert.Equal(t, 64, o.StrTable)
	assert.Equal(t, 128, o.RegexTable)
	assert.Equal(t, 192, o.NodeTypes)
	assert.Equal(t, 192, o.Transitions)
	assert.Equal(t, 192, o.End)
}

func TestAlignedBuffer(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	buf := NewAlignedBuffer(data)
	assert.True(t, buf.Aligned())
	assert.Equal(t, data, buf.Bytes())
	assert.Equal(t, 5, buf.Len())

	empty := NewAlignedBuffer(nil)
	assert.True(t, empty.Aligned())
	assert.Zero(t, empty.Len())

	big := make([]byte, 1000)
	for i := range big {
		big[i] = byte(i)
	}
	aligned := NewAlignedBuffer(big)
	assert.True(t, aligned.Aligned())
	assert.Equal(t, big, aligned.Bytes())
}

func TestAlignTo(t *testing.T) {
	assert.Equal(t, 0, AlignTo(0, 64))
	assert.Equal(t, 64, AlignTo(1, 64))
	assert.Equal(t, 64, AlignTo(64, 64))
	assert.Equal(t, 128, AlignTo(65, 64))
}
