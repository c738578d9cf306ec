package vm

import (
	"fmt"

	"github.com/oxhq/plotnik/bytecode"
)

// VerifyValue walks a materialized value and a declared type in
// parallel. A mismatch is a compiler or VM bug, not a user error; the
// facade runs this in debug mode only.
func VerifyValue(mod *bytecode.Module, v Value, t bytecode.TypeID) error {
	def, err := mod.Type(t)
	if err != nil {
		return err
	}

	switch def.Kind {
	case bytecode.KindVoid:
		// Void queries produce no value; anything present is tolerated
		// because unconsumed scalars may linger as the final current.
		return nil

	case bytecode.KindNode:
		if _, ok := v.(NodeValue); !ok {
			return typeMismatch(v, "Node")
		}
		return nil

	case bytecode.KindString:
		if _, ok := v.(StringValue); !ok {
			return typeMismatch(v, "String")
		}
		return nil

	case bytecode.KindAlias:
		return VerifyValue(mod, v, def.Inner())

	case bytecode.KindOptional:
		if _, ok := v.(Null); ok {
			return nil
		}
		return VerifyValue(mod, v, def.Inner())

	case bytecode.KindArrayZeroOrMore, bytecode.KindArrayOneOrMore:
		arr, ok := v.(ArrayValue)
		if !ok {
			return typeMismatch(v, "Array")
		}
		if def.Kind == bytecode.KindArrayOneOrMore && len(arr.Items) == 0 {
			return fmt.Errorf("non-empty array type holds zero elements")
		}
		for i, item := range arr.Items {
			if err := VerifyValue(mod, item, def.Inner()); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil

	case bytecode.KindStruct:
		obj, ok := v.(ObjectValue)
		if !ok {
			return typeMismatch(v, "Object")
		}
		members, err := mod.Members(def)
		if err != nil {
			return err
		}
		known := map[string]bool{}
		for _, mem := range members {
			name, err := mod.String(mem.Name)
			if err != nil {
				return err
			}
			known[name] = true
			fieldVal, present := obj.Fields[name]
			if !present {
				// Absent fields are legal only for optional members.
				memDef, err := mod.Type(mem.Type)
				if err != nil {
					return err
				}
				if memDef.Kind != bytecode.KindOptional {
					return fmt.Errorf("missing required field %q", name)
				}
				continue
			}
			if err := VerifyValue(mod, fieldVal, mem.Type); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		}
		for name := range obj.Fields {
			if !known[name] {
				return fmt.Errorf("unexpected field %q", name)
			}
		}
		return nil

	case bytecode.KindEnum:
		variant, ok := v.(VariantValue)
		if !ok {
			return typeMismatch(v, "Variant")
		}
		members, err := mod.Members(def)
		if err != nil {
			return err
		}
		for _, mem := range members {
			name, err := mod.String(mem.Name)
			if err != nil {
				return err
			}
			if name == variant.Tag {
				if err := VerifyValue(mod, variant.Value, mem.Type); err != nil {
					return fmt.Errorf("variant %q: %w", name, err)
				}
				return nil
			}
		}
		return fmt.Errorf("unknown variant tag %q", variant.Tag)
	}
	return fmt.Errorf("unhandled type kind %v", def.Kind)
}

func typeMismatch(v Value, want string) error {
	return fmt.Errorf("value %s does not satisfy declared type %s", FormatValue(v), want)
}
