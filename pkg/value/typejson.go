package value

import (
	"encoding/json"
	"fmt"
)

// typeWire is the on-the-wire shape of a Type: {"kind": "...", ...}
// with the fields relevant to that kind present. Matches Kind.String()
// for every kind except closure (wire name "fn", matching how a
// lambda's Type reads in a document).
type typeWire struct {
	Kind      string      `json:"kind"`
	Elem      *typeWire   `json:"elem,omitempty"`
	Value     *typeWire   `json:"value,omitempty"`
	Params    []typeWire  `json:"params,omitempty"`
	Result    *typeWire   `json:"result,omitempty"`
	OpaqueTag string      `json:"tag,omitempty"`
}

func kindToWire(k Kind) string {
	if k == KindClosure {
		return "fn"
	}
	return k.String()
}

func wireToKind(s string) (Kind, error) {
	switch s {
	case "void":
		return KindVoid, nil
	case "bool":
		return KindBool, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "list":
		return KindList, nil
	case "set":
		return KindSet, nil
	case "map":
		return KindMap, nil
	case "option":
		return KindOption, nil
	case "fn":
		return KindClosure, nil
	case "ref":
		return KindRefCell, nil
	case "future":
		return KindFuture, nil
	case "opaque":
		return KindOpaque, nil
	default:
		return 0, fmt.Errorf("value: unknown type kind %q", s)
	}
}

func toTypeWire(t Type) typeWire {
	w := typeWire{Kind: kindToWire(t.Kind)}
	if t.Elem != nil {
		e := toTypeWire(*t.Elem)
		w.Elem = &e
	}
	if t.MapValue != nil {
		v := toTypeWire(*t.MapValue)
		w.Value = &v
	}
	for _, p := range t.Params {
		w.Params = append(w.Params, toTypeWire(p))
	}
	if t.Result != nil {
		r := toTypeWire(*t.Result)
		w.Result = &r
	}
	w.OpaqueTag = t.OpaqueTag
	return w
}

func fromTypeWire(w typeWire) (Type, error) {
	k, err := wireToKind(w.Kind)
	if err != nil {
		return Type{}, err
	}
	t := Type{Kind: k, OpaqueTag: w.OpaqueTag}
	if w.Elem != nil {
		e, err := fromTypeWire(*w.Elem)
		if err != nil {
			return Type{}, err
		}
		t.Elem = &e
	}
	if w.Value != nil {
		v, err := fromTypeWire(*w.Value)
		if err != nil {
			return Type{}, err
		}
		t.MapValue = &v
	}
	for _, p := range w.Params {
		pt, err := fromTypeWire(p)
		if err != nil {
			return Type{}, err
		}
		t.Params = append(t.Params, pt)
	}
	if w.Result != nil {
		r, err := fromTypeWire(*w.Result)
		if err != nil {
			return Type{}, err
		}
		t.Result = &r
	}
	return t, nil
}

// MarshalJSON renders t as {"kind": "...", ...}.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(toTypeWire(t))
}

// UnmarshalJSON parses a Type from its wire shape.
func (t *Type) UnmarshalJSON(data []byte) error {
	var w typeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := fromTypeWire(w)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
