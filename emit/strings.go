// Package emit converts compiled IR into the binary module format:
// string/regex/type table construction, cache-aligned instruction
// layout, deferred reference resolution, and header assembly.
package emit

import (
	"encoding/binary"
	"fmt"

	"github.com/oxhq/plotnik/bytecode"
)

// Emit errors are produced when a table outgrows its 16-bit count field.
type CountOverflowError struct {
	Table string
	Count int
}

func (e *CountOverflowError) Error() string {
	return fmt.Sprintf("%s table overflows 16-bit count: %d entries (max %d)", e.Table, e.Count, bytecode.MaxTableEntries)
}

// easterEgg occupies the reserved StringID(0); instructions never
// reference it.
const easterEgg = "Beauty will save the world"

// StringTable interns strings and emits the blob plus the
// sentinel-terminated offset table.
type StringTable struct {
	strings []string
	ids     map[string]bytecode.StringID
}

// NewStringTable creates a table with index 0 reserved.
func NewStringTable() *StringTable {
	t := &StringTable{ids: map[string]bytecode.StringID{}}
	t.strings = append(t.strings, easterEgg)
	return t
}

// Intern returns the id for s, adding it on first use. The reserved
// index 0 is never handed out, even for the easter egg's own text.
func (t *StringTable) Intern(s string) bytecode.StringID {
	if id, ok := t.ids[s]; ok {
		return id
	}
	id := bytecode.StringID(len(t.strings))
	t.strings = append(t.strings, s)
	t.ids[s] = id
	return id
}

// Len returns the entry count, reserved index included.
func (t *StringTable) Len() int { return len(t.strings) }

// Validate checks the 16-bit count limit.
func (t *StringTable) Validate() error {
	if len(t.strings) > bytecode.MaxTableEntries {
		return &CountOverflowError{Table: "string", Count: len(t.strings)}
	}
	return nil
}

// Emit returns (blob, offsetTable). The offset table holds one u32 per
// string plus a sentinel end offset.
func (t *StringTable) Emit() ([]byte, []byte) {
	var blob []byte
	table := make([]byte, 0, (len(t.strings)+1)*bytecode.StrOffsetSize)
	for _, s := range t.strings {
		table = binary.LittleEndian.AppendUint32(table, uint32(len(blob)))
		blob = append(blob, s...)
	}
	table = binary.LittleEndian.AppendUint32(table, uint32(len(blob)))
	return blob, table
}

// RegexTable builds one serialized DFA per distinct pattern.
type RegexTable struct {
	strings  *StringTable
	patterns []string
	ids      map[string]uint16
	blob     []byte
	offsets  []uint32
}

// NewRegexTable creates an empty regex table.
func NewRegexTable(strings *StringTable) *RegexTable {
	return &RegexTable{strings: strings, ids: map[string]uint16{}}
}

// Intern compiles a pattern to its DFA and returns the regex index.
func (t *RegexTable) Intern(pattern string) (uint16, error) {
	if id, ok := t.ids[pattern]; ok {
		return id, nil
	}
	dfa, err := bytecode.BuildDFA(pattern)
	if err != nil {
		return 0, fmt.Errorf("compiling regex %q: %w", pattern, err)
	}
	id := uint16(len(t.patterns))
	t.patterns = append(t.patterns, pattern)
	t.ids[pattern] = id
	t.offsets = append(t.offsets, uint32(len(t.blob)))
	t.blob = append(t.blob, dfa.Serialize()...)
	// Keep every DFA 8-aligned within the blob.
	for len(t.blob)%8 != 0 {
		t.blob = append(t.blob, 0)
	}
	return id, nil
}

// Len returns the number of regex entries.
func (t *RegexTable) Len() int { return len(t.patterns) }

// Validate checks the 16-bit count limit.
func (t *RegexTable) Validate() error {
	if len(t.patterns) > bytecode.MaxTableEntries {
		return &CountOverflowError{Table: "regex", Count: len(t.patterns)}
	}
	return nil
}

// Emit returns (blob, indexTable). Each index entry is
// {string_id u16, pad u16, offset u32}; a zeroed sentinel terminates the
// table.
func (t *RegexTable) Emit() ([]byte, []byte) {
	table := make([]byte, 0, (len(t.patterns)+1)*bytecode.RegexEntrySize)
	for i, p := range t.patterns {
		table = binary.LittleEndian.AppendUint16(table, uint16(t.strings.Intern(p)))
		table = binary.LittleEndian.AppendUint16(table, 0)
		table = binary.LittleEndian.AppendUint32(table, t.offsets[i])
	}
	table = append(table, make([]byte, bytecode.RegexEntrySize)...)
	return t.blob, table
}
