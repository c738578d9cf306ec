package vm

import (
	"fmt"

	"github.com/oxhq/plotnik/bytecode"
)

// Materializer replays an effect stream against the module's type table
// to construct a typed Value. It is pure: all state lives on a scope
// stack plus the current value.
type Materializer struct {
	mod *bytecode.Module

	current Value
	hasCur  bool
	stack   []container
}

type containerKind uint8

const (
	contArray containerKind = iota
	contObject
	contVariant
)

type container struct {
	kind   containerKind
	items  []Value
	fields map[string]Value
	tag    string
}

// Materialize replays the effects and returns the final value. Effects
// between matched SuppressBegin/SuppressEnd brackets are skipped.
func Materialize(mod *bytecode.Module, effects []Effect) (Value, error) {
	m := &Materializer{mod: mod}
	depth := 0
	for _, e := range effects {
		switch e.Op {
		case bytecode.EffSuppressBegin:
			depth++
			continue
		case bytecode.EffSuppressEnd:
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 {
			continue
		}
		if err := m.apply(e); err != nil {
			return nil, err
		}
	}
	if !m.hasCur {
		return Null{}, nil
	}
	return m.current, nil
}

func (m *Materializer) set(v Value) {
	m.current = v
	m.hasCur = true
}

func (m *Materializer) take() Value {
	if !m.hasCur {
		return Null{}
	}
	v := m.current
	m.current = nil
	m.hasCur = false
	return v
}

func (m *Materializer) top() *container {
	if len(m.stack) == 0 {
		return nil
	}
	return &m.stack[len(m.stack)-1]
}

func (m *Materializer) memberName(idx uint16) (string, error) {
	mem, err := m.mod.Member(int(idx))
	if err != nil {
		return "", err
	}
	return m.mod.String(mem.Name)
}

func (m *Materializer) apply(e Effect) error {
	switch e.Op {
	case bytecode.EffNode:
		if e.Node == nil {
			return fmt.Errorf("node effect without a node")
		}
		m.set(NodeValue{Node: e.Node})

	case bytecode.EffText:
		if e.Node == nil {
			return fmt.Errorf("text effect without a node")
		}
		m.set(StringValue{Text: e.Node.Text()})

	case bytecode.EffArr:
		m.stack = append(m.stack, container{kind: contArray, items: []Value{}})

	case bytecode.EffPush:
		top := m.top()
		if top == nil || top.kind != contArray {
			return fmt.Errorf("push without an open array")
		}
		top.items = append(top.items, m.take())

	case bytecode.EffEndArr:
		top := m.top()
		if top == nil || top.kind != contArray {
			return fmt.Errorf("end-array without an open array")
		}
		m.stack = m.stack[:len(m.stack)-1]
		m.set(ArrayValue{Items: top.items})

	case bytecode.EffObj:
		m.stack = append(m.stack, container{kind: contObject, fields: map[string]Value{}})

	case bytecode.EffSet:
		top := m.top()
		if top == nil || top.kind != contObject {
			return fmt.Errorf("set without an open object")
		}
		name, err := m.memberName(e.Payload)
		if err != nil {
			return fmt.Errorf("set: %w", err)
		}
		top.fields[name] = m.take()

	case bytecode.EffEndObj:
		top := m.top()
		if top == nil || top.kind != contObject {
			return fmt.Errorf("end-object without an open object")
		}
		m.stack = m.stack[:len(m.stack)-1]
		m.set(ObjectValue{Fields: top.fields})

	case bytecode.EffEnum:
		name, err := m.memberName(e.Payload)
		if err != nil {
			return fmt.Errorf("enum: %w", err)
		}
		m.stack = append(m.stack, container{kind: contVariant, tag: name})

	case bytecode.EffEndEnum:
		top := m.top()
		if top == nil || top.kind != contVariant {
			return fmt.Errorf("end-enum without an open variant")
		}
		value := m.take()
		m.stack = m.stack[:len(m.stack)-1]
		m.set(VariantValue{Tag: top.tag, Value: value})

	case bytecode.EffClear:
		m.current = nil
		m.hasCur = false

	case bytecode.EffNull:
		m.set(Null{})

	default:
		return fmt.Errorf("unknown effect opcode: %d", e.Op)
	}
	return nil
}
