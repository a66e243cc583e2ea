package value

import "fmt"

// ToAny renders v as a tree of nil/bool/float64/string/[]any/map[string]any
// — the generic shape pkg/canon canonicalises and encoding/json marshals.
// Ints are widened to float64 (ECMAScript has one numeric type; so does
// SPIRAL's canonical digest). Closures, futures, ref-cells, and opaque
// host values have no host-independent JSON rendering and return an
// error instead of silently dropping information.
func ToAny(v Value) (any, error) {
	switch v.Kind() {
	case KindVoid:
		return nil, nil
	case KindBool:
		b, _ := v.AsBool()
		return b, nil
	case KindInt:
		i, _ := v.AsInt()
		return float64(i), nil
	case KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case KindString:
		s, _ := v.AsString()
		return s, nil
	case KindList:
		lst, _ := v.AsList()
		out := make([]any, len(lst))
		for i, e := range lst {
			a, err := ToAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = a
		}
		return out, nil
	case KindSet:
		set, _ := v.AsSet()
		out := make([]any, len(set))
		for i, e := range set {
			a, err := ToAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = a
		}
		return out, nil
	case KindMap:
		m, _ := v.AsMap()
		out := make(map[string]any, len(m))
		for k, e := range m {
			a, err := ToAny(e)
			if err != nil {
				return nil, err
			}
			out[k] = a
		}
		return out, nil
	case KindOption:
		contained, isSome, _ := v.AsOption()
		if !isSome {
			return nil, nil
		}
		return ToAny(contained)
	case KindError:
		ev, _ := v.AsError()
		return map[string]any{"error": map[string]any{"kind": ev.Kind, "message": ev.Message}}, nil
	default:
		return nil, fmt.Errorf("value: %s is not JSON-representable", v.Kind())
	}
}

// FromAny constructs a literal Value of the declared type t from a tree
// decoded by encoding/json (nil/bool/float64/string/[]any/map[string]any),
// the inverse of ToAny for the subset of kinds a `lit` node can name.
// Container element/value types come from t; a JSON number is narrowed
// to int64 only when t.Kind is KindInt.
func FromAny(t Type, a any) (Value, error) {
	switch t.Kind {
	case KindVoid:
		return Void(), nil
	case KindBool:
		b, ok := a.(bool)
		if !ok {
			return Value{}, fmt.Errorf("value: expected bool literal, got %T", a)
		}
		return Bool(b), nil
	case KindInt:
		f, ok := a.(float64)
		if !ok {
			return Value{}, fmt.Errorf("value: expected int literal, got %T", a)
		}
		return Int(int64(f)), nil
	case KindFloat:
		f, ok := a.(float64)
		if !ok {
			return Value{}, fmt.Errorf("value: expected float literal, got %T", a)
		}
		return Float(f), nil
	case KindString:
		s, ok := a.(string)
		if !ok {
			return Value{}, fmt.Errorf("value: expected string literal, got %T", a)
		}
		return String(s), nil
	case KindList:
		lst, ok := a.([]any)
		if !ok {
			return Value{}, fmt.Errorf("value: expected list literal, got %T", a)
		}
		elemType := TVoid()
		if t.Elem != nil {
			elemType = *t.Elem
		}
		out := make([]Value, len(lst))
		for i, e := range lst {
			v, err := FromAny(elemType, e)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return List(out), nil
	case KindSet:
		lst, ok := a.([]any)
		if !ok {
			return Value{}, fmt.Errorf("value: expected set literal, got %T", a)
		}
		elemType := TVoid()
		if t.Elem != nil {
			elemType = *t.Elem
		}
		out := make([]Value, len(lst))
		for i, e := range lst {
			v, err := FromAny(elemType, e)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return Set(out), nil
	case KindMap:
		m, ok := a.(map[string]any)
		if !ok {
			return Value{}, fmt.Errorf("value: expected map literal, got %T", a)
		}
		valType := TVoid()
		if t.MapValue != nil {
			valType = *t.MapValue
		}
		out := make(map[string]Value, len(m))
		for k, e := range m {
			v, err := FromAny(valType, e)
			if err != nil {
				return Value{}, err
			}
			out[k] = v
		}
		return Map(out), nil
	case KindOption:
		elemType := TVoid()
		if t.Elem != nil {
			elemType = *t.Elem
		}
		if a == nil {
			return None(), nil
		}
		v, err := FromAny(elemType, a)
		if err != nil {
			return Value{}, err
		}
		return Some(v), nil
	default:
		return Value{}, fmt.Errorf("value: %s is not a literal-constructible type", t.Kind)
	}
}
