// Package bytecode defines the Plotnik binary module format: constants,
// instruction encoding, cache-aligned storage, and zero-copy section
// views. It is shared by the compiler (emit) and the runtime (vm).
package bytecode

// Magic identifies a Plotnik bytecode file.
var Magic = [4]byte{'P', 'T', 'K', 'Q'}

// Version is the current bytecode format version.
const Version uint32 = 1

// SectionAlign is the alignment of every section, in bytes.
const SectionAlign = 64

// StepSize is the instruction step granularity: all instructions are a
// multiple of 8 bytes and StepIDs index 8-byte steps.
const StepSize = 8

// MaxTableEntries bounds every 16-bit-counted table. One slot is kept
// for the sentinel entry.
const MaxTableEntries = 65534

// MaxMatchPayloadSlots is the u16 slot capacity of Match64, the largest
// Match variant. Larger instructions are split during size lowering.
const MaxMatchPayloadSlots = 28

// MaxEffectPayload is the 10-bit cap on effect payloads (member and
// variant indices).
const MaxEffectPayload = 0x3FF

// StepID indexes the transitions section in 8-byte steps.
type StepID uint16

// StepAccept is the sentinel target meaning "query accepted".
const StepAccept StepID = 0xFFFF

// IsAccept reports whether the step is the accept sentinel.
func (s StepID) IsAccept() bool { return s == StepAccept }

// ByteOffset returns the step's byte offset within the transitions
// section.
func (s StepID) ByteOffset() int { return int(s) * StepSize }

// StringID indexes the string table. Index 0 is reserved.
type StringID uint16

// TypeID indexes the type definition table.
type TypeID uint16

// Reserved primitive type ids. Every module's type table starts with
// these three entries.
const (
	TypeVoidID   TypeID = 0
	TypeNodeID   TypeID = 1
	TypeStringID TypeID = 2
)
