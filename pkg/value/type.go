package value

// Type mirrors a Value's structural shape: a kind plus, for container
// kinds, the element/parameter types. Literals carry their declared Type
// so `lit` can validate container shape before constructing a Value.
type Type struct {
	Kind Kind

	// Elem is the element type for list/set/option/ref.
	Elem *Type

	// MapValue is the value type for map (keys are always string).
	MapValue *Type

	// Params/Result describe a fn (closure) type.
	Params []Type
	Result *Type

	// OpaqueTag names the opaque payload's tag, when Kind == KindOpaque.
	OpaqueTag string
}

func TVoid() Type   { return Type{Kind: KindVoid} }
func TBool() Type   { return Type{Kind: KindBool} }
func TInt() Type    { return Type{Kind: KindInt} }
func TFloat() Type  { return Type{Kind: KindFloat} }
func TString() Type { return Type{Kind: KindString} }

func TList(elem Type) Type   { return Type{Kind: KindList, Elem: &elem} }
func TSet(elem Type) Type    { return Type{Kind: KindSet, Elem: &elem} }
func TOption(elem Type) Type { return Type{Kind: KindOption, Elem: &elem} }
func TRef(elem Type) Type    { return Type{Kind: KindRefCell, Elem: &elem} }
func TMap(val Type) Type     { return Type{Kind: KindMap, MapValue: &val} }
func TFn(params []Type, result Type) Type {
	return Type{Kind: KindClosure, Params: params, Result: &result}
}
func TOpaque(tag string) Type { return Type{Kind: KindOpaque, OpaqueTag: tag} }

// Matches reports whether v's runtime kind is structurally compatible
// with t. This is a shallow shape check (used by `lit` container
// validation), not full type inference — SPIRAL has none, per the
// specification's non-goals.
func (t Type) Matches(v Value) bool {
	if t.Kind != v.Kind() {
		return false
	}
	switch t.Kind {
	case KindList:
		lst, _ := v.AsList()
		for _, e := range lst {
			if t.Elem != nil && !t.Elem.Matches(e) {
				return false
			}
		}
	case KindSet:
		set, _ := v.AsSet()
		for _, e := range set {
			if t.Elem != nil && !t.Elem.Matches(e) {
				return false
			}
		}
	case KindMap:
		m, _ := v.AsMap()
		for _, e := range m {
			if t.MapValue != nil && !t.MapValue.Matches(e) {
				return false
			}
		}
	case KindOption:
		contained, isSome, _ := v.AsOption()
		if isSome && t.Elem != nil && !t.Elem.Matches(contained) {
			return false
		}
	}
	return true
}
