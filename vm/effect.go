package vm

import (
	"fmt"

	"github.com/oxhq/plotnik/bytecode"
)

// Effect is one recorded runtime effect. Unlike the encoded form it
// carries the captured node for Node/Text operations.
type Effect struct {
	Op      bytecode.EffectOpcode
	Payload uint16
	Node    Node
}

func (e Effect) String() string {
	switch {
	case e.Node != nil:
		return fmt.Sprintf("%s(%s)", e.Op, e.Node.Kind())
	case e.Op.HasPayload():
		return fmt.Sprintf("%s(%d)", e.Op, e.Payload)
	default:
		return e.Op.String()
	}
}

// effectLog is the linear effect stream. Backtracking truncates it to a
// watermark; no reordering ever happens.
type effectLog struct {
	effects []Effect
}

func (l *effectLog) push(e Effect) { l.effects = append(l.effects, e) }

func (l *effectLog) mark() int { return len(l.effects) }

func (l *effectLog) truncate(mark int) { l.effects = l.effects[:mark] }

// All returns the recorded effects in execution order.
func (l *effectLog) All() []Effect { return l.effects }
