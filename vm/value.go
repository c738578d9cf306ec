package vm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Value is a materialized query result.
type Value interface {
	isValue()
	// MarshalJSON implementations give every value a stable JSON form.
	json.Marshaler
}

// Null is the absent-optional value; it serializes to JSON null.
type Null struct{}

func (Null) isValue() {}

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// NodeValue is a captured syntax node.
type NodeValue struct {
	Node Node
}

func (NodeValue) isValue() {}

func (v NodeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Text  string `json:"text"`
		Range [2]int `json:"range"`
	}{
		Kind:  v.Node.Kind(),
		Text:  v.Node.Text(),
		Range: [2]int{v.Node.StartByte(), v.Node.EndByte()},
	})
}

// StringValue is extracted node text.
type StringValue struct {
	Text string
}

func (StringValue) isValue() {}

func (v StringValue) MarshalJSON() ([]byte, error) { return json.Marshal(v.Text) }

// ArrayValue is an ordered list from a quantifier.
type ArrayValue struct {
	Items []Value
}

func (ArrayValue) isValue() {}

func (v ArrayValue) MarshalJSON() ([]byte, error) {
	if v.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Items)
}

// ObjectValue maps field names to values.
type ObjectValue struct {
	Fields map[string]Value
}

func (ObjectValue) isValue() {}

func (v ObjectValue) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(v.Fields[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// VariantValue is a tagged union value from a labeled alternation.
type VariantValue struct {
	Tag   string
	Value Value
}

func (VariantValue) isValue() {}

func (v VariantValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tag   string `json:"tag"`
		Value Value  `json:"value"`
	}{Tag: v.Tag, Value: v.Value})
}

// FormatValue renders a value compactly for the CLI and tests.
func FormatValue(v Value) string {
	switch v := v.(type) {
	case Null:
		return "null"
	case NodeValue:
		return fmt.Sprintf("Node(%s %q)", v.Node.Kind(), v.Node.Text())
	case StringValue:
		return fmt.Sprintf("%q", v.Text)
	case ArrayValue:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ObjectValue:
		keys := make([]string, 0, len(v.Fields))
		for k := range v.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + FormatValue(v.Fields[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case VariantValue:
		return v.Tag + "(" + FormatValue(v.Value) + ")"
	}
	return "<?>"
}
