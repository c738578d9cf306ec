package emit

import (
	"fmt"

	"github.com/oxhq/plotnik/bytecode"
	"github.com/oxhq/plotnik/compile"
)

// Layout linearizes IR instructions in breadth-first order from the
// entry points and assigns concrete StepIDs, inserting epsilon padding
// so no instruction of 48 bytes or larger straddles a cache line.
type Layout struct {
	// Order lists instructions in placement order.
	Order []compile.InstrIR
	// Steps maps each placed instruction's label to its StepID.
	Steps map[compile.Label]bytecode.StepID
	// sizes caches each instruction's encoded size in steps.
	sizes map[compile.Label]int
	// pads maps a placement index to the number of padding steps
	// inserted before it.
	pads map[int]int
	// TotalSteps is the full transitions-section length in steps.
	TotalSteps int
}

// instrSizeSteps computes the encoded size of an IR instruction in
// 8-byte steps.
func instrSizeSteps(in compile.InstrIR) (int, error) {
	m, ok := in.(*compile.MatchIR)
	if !ok {
		return 1, nil // Call and Return are single steps
	}
	slots := len(m.Pre) + len(m.Post) + len(m.NegFields) + len(m.Succs)
	if m.HasField {
		slots++
	}
	if len(m.Preds) > 0 {
		slots += 2
	}
	op, fits := bytecode.SelectMatchOpcode(slots)
	if !fits {
		return 0, fmt.Errorf("instruction %d overflows Match64 (%d slots)", m.Label, slots)
	}
	return op.Size() / bytecode.StepSize, nil
}

// BuildLayout places instructions breadth-first from the entrypoints.
func BuildLayout(r *compile.Result) (*Layout, error) {
	byLabel := map[compile.Label]compile.InstrIR{}
	for _, in := range r.Instrs {
		byLabel[in.IRLabel()] = in
	}

	l := &Layout{
		Steps: map[compile.Label]bytecode.StepID{},
		sizes: map[compile.Label]int{},
		pads:  map[int]int{},
	}

	// Breadth-first over the successor graph, entrypoints first.
	visited := map[compile.Label]bool{}
	queue := append([]compile.Label{}, r.EntryLabels()...)
	for _, label := range queue {
		visited[label] = true
	}
	for head := 0; head < len(queue); head++ {
		in, ok := byLabel[queue[head]]
		if !ok {
			return nil, fmt.Errorf("dangling label %d in layout", queue[head])
		}
		l.Order = append(l.Order, in)
		for _, s := range in.Successors() {
			if !visited[s] {
				visited[s] = true
				queue = append(queue, s)
			}
		}
	}

	// Assign step offsets with cache-line padding for large
	// instructions.
	const stepsPerLine = bytecode.SectionAlign / bytecode.StepSize
	offset := 0
	for i, in := range l.Order {
		size, err := instrSizeSteps(in)
		if err != nil {
			return nil, err
		}
		if size >= 48/bytecode.StepSize {
			line := offset % stepsPerLine
			if line != 0 && line+size > stepsPerLine {
				pad := stepsPerLine - line
				l.pads[i] = pad
				offset += pad
			}
		}
		label := in.IRLabel()
		l.Steps[label] = bytecode.StepID(offset)
		l.sizes[label] = size
		offset += size
	}
	if offset > int(bytecode.StepAccept) {
		return nil, &CountOverflowError{Table: "transitions", Count: offset}
	}
	l.TotalSteps = offset
	return l, nil
}

// StepOf resolves a label, which must have been placed.
func (l *Layout) StepOf(label compile.Label) (bytecode.StepID, error) {
	s, ok := l.Steps[label]
	if !ok {
		return 0, fmt.Errorf("label %d was never placed", label)
	}
	return s, nil
}
