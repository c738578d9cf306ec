package bytecode

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of the module header.
const HeaderSize = 64

// Header flags.
const (
	// FlagLinked marks a module whose node-type and field ids are bound
	// to a concrete grammar.
	FlagLinked uint16 = 1 << 0
)

// Header is the 64-byte module header: magic, version, checksum, sizes,
// and per-section entry counts. Section offsets are derived, not stored:
// sections are laid out in a fixed order with 64-byte alignment.
type Header struct {
	Magic         [4]byte
	Version       uint32
	Checksum      uint32
	TotalSize     uint32
	StrBlobSize   uint32
	RegexBlobSize uint32

	StrTableCount    uint16
	RegexTableCount  uint16
	NodeTypesCount   uint16
	NodeFieldsCount  uint16
	TriviaCount      uint16
	TypeDefsCount    uint16
	TypeMembersCount uint16
	TypeNamesCount   uint16
	EntrypointsCount uint16
	TransitionsCount uint16

	Flags uint16
}

// NewHeader creates a header with magic and version set.
func NewHeader() Header {
	return Header{Magic: Magic, Version: Version}
}

// ValidMagic reports whether the magic bytes are correct.
func (h *Header) ValidMagic() bool { return h.Magic == Magic }

// Linked reports whether grammar-bound ids are resolved.
func (h *Header) Linked() bool { return h.Flags&FlagLinked != 0 }

// SetLinked sets or clears the linked flag.
func (h *Header) SetLinked(linked bool) {
	if linked {
		h.Flags |= FlagLinked
	} else {
		h.Flags &^= FlagLinked
	}
}

// Encode writes the header to its 64-byte form, little-endian.
func (h *Header) Encode() [HeaderSize]byte {
	var out [HeaderSize]byte
	copy(out[0:4], h.Magic[:])
	le := binary.LittleEndian
	le.PutUint32(out[4:8], h.Version)
	le.PutUint32(out[8:12], h.Checksum)
	le.PutUint32(out[12:16], h.TotalSize)
	le.PutUint32(out[16:20], h.StrBlobSize)
	le.PutUint32(out[20:24], h.RegexBlobSize)
	counts := []uint16{
		h.StrTableCount, h.RegexTableCount, h.NodeTypesCount, h.NodeFieldsCount,
		h.TriviaCount, h.TypeDefsCount, h.TypeMembersCount, h.TypeNamesCount,
		h.EntrypointsCount, h.TransitionsCount,
	}
	off := 24
	for _, c := range counts {
		le.PutUint16(out[off:off+2], c)
		off += 2
	}
	le.PutUint16(out[off:off+2], h.Flags)
	// 18 reserved bytes remain zero.
	return out
}

// DecodeHeader parses a 64-byte header.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("module too small: %d bytes, need at least %d", len(data), HeaderSize)
	}
	var h Header
	copy(h.Magic[:], data[0:4])
	le := binary.LittleEndian
	h.Version = le.Uint32(data[4:8])
	h.Checksum = le.Uint32(data[8:12])
	h.TotalSize = le.Uint32(data[12:16])
	h.StrBlobSize = le.Uint32(data[16:20])
	h.RegexBlobSize = le.Uint32(data[20:24])
	counts := []*uint16{
		&h.StrTableCount, &h.RegexTableCount, &h.NodeTypesCount, &h.NodeFieldsCount,
		&h.TriviaCount, &h.TypeDefsCount, &h.TypeMembersCount, &h.TypeNamesCount,
		&h.EntrypointsCount, &h.TransitionsCount,
	}
	off := 24
	for _, c := range counts {
		*c = le.Uint16(data[off : off+2])
		off += 2
	}
	h.Flags = le.Uint16(data[off : off+2])
	return h, nil
}

// SectionOffsets holds the derived byte offset of each section.
type SectionOffsets struct {
	StrBlob     int
	RegexBlob   int
	StrTable    int
	RegexTable  int
	NodeTypes   int
	NodeFields  int
	Trivia      int
	TypeDefs    int
	TypeMembers int
	TypeNames   int
	Entrypoints int
	Transitions int
	End         int
}

// Per-entry sizes of the fixed-width sections.
const (
	StrOffsetSize  = 4 // u32 blob offset
	RegexEntrySize = 8 // {string_id u16, pad u16, offset u32}
	SymbolSize     = 4 // {id u16, name StringId u16}
	TriviaSize     = 2 // {node_type u16}
	TypeDefSize    = 8 // {kind u8, pad u8, name u16, ptr u16, len u16}
	TypeMemberSize = 4 // {name u16, type u16}
	TypeNameSize   = 4 // {name u16, type u16}
	EntrypointSize = 8 // {name u16, target u16, result_type u16, pad u16}
)

// Offsets derives the section layout from the header's sizes and counts.
// The string offset table and regex index carry one extra sentinel entry.
func (h *Header) Offsets() SectionOffsets {
	var o SectionOffsets
	off := HeaderSize

	place := func(size int) int {
		start := AlignTo(off, SectionAlign)
		if size == 0 {
			// Empty sections collapse: the offset stays aligned but no
			// space is consumed.
			off = start
			return start
		}
		off = start + size
		return start
	}

	o.StrBlob = place(int(h.StrBlobSize))
	o.RegexBlob = place(int(h.RegexBlobSize))
	o.StrTable = place((int(h.StrTableCount) + 1) * StrOffsetSize)
	o.RegexTable = place((int(h.RegexTableCount) + 1) * RegexEntrySize)
	o.NodeTypes = place(int(h.NodeTypesCount) * SymbolSize)
	o.NodeFields = place(int(h.NodeFieldsCount) * SymbolSize)
	o.Trivia = place(int(h.TriviaCount) * TriviaSize)
	o.TypeDefs = place(int(h.TypeDefsCount) * TypeDefSize)
	o.TypeMembers = place(int(h.TypeMembersCount) * TypeMemberSize)
	o.TypeNames = place(int(h.TypeNamesCount) * TypeNameSize)
	o.Entrypoints = place(int(h.EntrypointsCount) * EntrypointSize)
	o.Transitions = place(int(h.TransitionsCount) * StepSize)
	o.End = AlignTo(off, SectionAlign)
	return o
}
