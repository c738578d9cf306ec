package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oxhq/plotnik/bytecode"
)

// TypeID aliases the bytecode type id; analysis assigns them densely with
// the primitive indices reserved.
type TypeID = bytecode.TypeID

// FieldShape is one struct field: name, type, and whether the field may
// be absent.
type FieldShape struct {
	Name     string
	Type     TypeID
	Optional bool
}

// VariantShape is one enum variant.
type VariantShape struct {
	Name string
	Type TypeID
}

// Shape is the structural form of a type. Shapes are interned by
// structural equality, so equal shapes share a TypeID.
type Shape struct {
	Kind bytecode.TypeKind
	// Name is set for Alias shapes (custom `:: Type` annotations).
	Name string
	// Inner is the wrapped type for Optional/Array/Alias kinds.
	Inner TypeID
	// Fields, sorted by name, for Struct.
	Fields []FieldShape
	// Variants, sorted by name, for Enum.
	Variants []VariantShape
	// IsRef marks a forward reference to a definition still being
	// inferred (recursive SCCs); Ref holds the definition.
	IsRef bool
	Ref   DefID
}

// canonical produces the interning key.
func (s Shape) canonical() string {
	if s.IsRef {
		return fmt.Sprintf("ref:%d", s.Ref)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d:", s.Kind)
	switch s.Kind {
	case bytecode.KindOptional, bytecode.KindArrayZeroOrMore, bytecode.KindArrayOneOrMore:
		fmt.Fprintf(&b, "%d", s.Inner)
	case bytecode.KindAlias:
		fmt.Fprintf(&b, "%s>%d", s.Name, s.Inner)
	case bytecode.KindStruct:
		for _, f := range s.Fields {
			opt := ""
			if f.Optional {
				opt = "?"
			}
			fmt.Fprintf(&b, "%s%s=%d;", f.Name, opt, f.Type)
		}
	case bytecode.KindEnum:
		for _, v := range s.Variants {
			fmt.Fprintf(&b, "%s=%d;", v.Name, v.Type)
		}
	}
	return b.String()
}

// TypeContext interns type shapes. Ids 0, 1, 2 are Void, Node, String.
type TypeContext struct {
	shapes   []Shape
	index    map[string]TypeID
	defTypes map[DefID]TypeID
}

// NewTypeContext creates a context with the primitives pre-interned.
func NewTypeContext() *TypeContext {
	ctx := &TypeContext{
		index:    make(map[string]TypeID),
		defTypes: make(map[DefID]TypeID),
	}
	for _, kind := range []bytecode.TypeKind{bytecode.KindVoid, bytecode.KindNode, bytecode.KindString} {
		ctx.Intern(Shape{Kind: kind})
	}
	return ctx
}

// Intern returns the id for a shape, adding it if new. Struct fields and
// enum variants are sorted by name first so equal shapes always collide.
func (ctx *TypeContext) Intern(s Shape) TypeID {
	if s.Kind == bytecode.KindStruct {
		sort.SliceStable(s.Fields, func(i, j int) bool { return s.Fields[i].Name < s.Fields[j].Name })
	}
	if s.Kind == bytecode.KindEnum {
		sort.SliceStable(s.Variants, func(i, j int) bool { return s.Variants[i].Name < s.Variants[j].Name })
	}
	key := s.canonical()
	if id, ok := ctx.index[key]; ok {
		return id
	}
	id := TypeID(len(ctx.shapes))
	ctx.shapes = append(ctx.shapes, s)
	ctx.index[key] = id
	return id
}

// RefTo interns a forward reference to a definition.
func (ctx *TypeContext) RefTo(def DefID) TypeID {
	return ctx.Intern(Shape{IsRef: true, Ref: def})
}

// Optional interns `inner?`, collapsing nested optionals.
func (ctx *TypeContext) Optional(inner TypeID) TypeID {
	if ctx.Shape(inner).Kind == bytecode.KindOptional {
		return inner
	}
	return ctx.Intern(Shape{Kind: bytecode.KindOptional, Inner: inner})
}

// Array interns `inner*` or `inner+`.
func (ctx *TypeContext) Array(inner TypeID, nonEmpty bool) TypeID {
	kind := bytecode.KindArrayZeroOrMore
	if nonEmpty {
		kind = bytecode.KindArrayOneOrMore
	}
	return ctx.Intern(Shape{Kind: kind, Inner: inner})
}

// Custom interns a named alias for a user `:: Type` annotation. Custom
// types are opaque node references with a name.
func (ctx *TypeContext) Custom(name string) TypeID {
	return ctx.Intern(Shape{Kind: bytecode.KindAlias, Name: name, Inner: bytecode.TypeNodeID})
}

// Shape returns the shape for an id.
func (ctx *TypeContext) Shape(id TypeID) Shape {
	return ctx.shapes[int(id)]
}

// Len returns the number of interned shapes.
func (ctx *TypeContext) Len() int { return len(ctx.shapes) }

// SetDefType records the final type of a definition.
func (ctx *TypeContext) SetDefType(def DefID, id TypeID) { ctx.defTypes[def] = id }

// DefType returns the final type of a definition.
func (ctx *TypeContext) DefType(def DefID) (TypeID, bool) {
	id, ok := ctx.defTypes[def]
	return id, ok
}

// ResolveRef chases forward references (and aliases of them) to the
// definition's final type. Non-ref ids return unchanged.
func (ctx *TypeContext) ResolveRef(id TypeID) TypeID {
	seen := 0
	for {
		s := ctx.Shape(id)
		if !s.IsRef {
			return id
		}
		resolved, ok := ctx.defTypes[s.Ref]
		if !ok || resolved == id {
			return id
		}
		id = resolved
		seen++
		if seen > len(ctx.shapes) {
			return id
		}
	}
}

// Format renders a type for diagnostics and the CLI `types` command.
func (ctx *TypeContext) Format(id TypeID) string {
	s := ctx.Shape(id)
	if s.IsRef {
		return fmt.Sprintf("<def %d>", s.Ref)
	}
	switch s.Kind {
	case bytecode.KindVoid:
		return "Void"
	case bytecode.KindNode:
		return "Node"
	case bytecode.KindString:
		return "String"
	case bytecode.KindOptional:
		return ctx.Format(s.Inner) + "?"
	case bytecode.KindArrayZeroOrMore:
		return ctx.Format(s.Inner) + "[]"
	case bytecode.KindArrayOneOrMore:
		return ctx.Format(s.Inner) + "[+]"
	case bytecode.KindAlias:
		return s.Name
	case bytecode.KindStruct:
		parts := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			opt := ""
			if f.Optional {
				opt = "?"
			}
			parts = append(parts, fmt.Sprintf("%s%s: %s", f.Name, opt, ctx.Format(f.Type)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case bytecode.KindEnum:
		parts := make([]string, 0, len(s.Variants))
		for _, v := range s.Variants {
			parts = append(parts, fmt.Sprintf("%s(%s)", v.Name, ctx.Format(v.Type)))
		}
		return "[" + strings.Join(parts, " | ") + "]"
	}
	return fmt.Sprintf("type#%d", id)
}
