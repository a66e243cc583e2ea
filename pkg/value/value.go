// Package value implements SPIRAL's runtime Value and Type model: a
// tagged union of void, bool, int, float, string, list, set, map, option,
// closure, ref-cell, future, opaque, and error payloads.
package value

import (
	"fmt"
	"math"
	"sort"
)

// Kind discriminates the Value union.
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindSet
	KindMap
	KindOption
	KindClosure
	KindRefCell
	KindFuture
	KindOpaque
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindOption:
		return "option"
	case KindClosure:
		return "closure"
	case KindRefCell:
		return "ref"
	case KindFuture:
		return "future"
	case KindOpaque:
		return "opaque"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// FutureStatus is the lifecycle state of a future's backing task.
type FutureStatus int

const (
	FuturePending FutureStatus = iota
	FutureResolved
	FutureRejected
)

// Closure is the runtime form of a lambda: a parameter list, a body
// node-id reference, and a captured environment. Env is an interface{}
// deliberately — pkg/env.Env is the concrete type, but pkg/value must not
// import pkg/env (env imports value for bindings), so closures carry an
// opaque capture that callers type-assert.
type Closure struct {
	Params []string
	Body   string // node-id of the body expression
	Env    any    // concrete type: *env.Env
	// SelfName names the closure inside its own body. The evaluator
	// never sets it: `fix` binds the self-reference in an environment
	// frame it adds over the closure's captured one instead.
	SelfName string
}

// ErrorValue is the payload of a Value of kind error.
type ErrorValue struct {
	Kind    string
	Message string
	Meta    map[string]any
}

// Value is SPIRAL's runtime value: a closed tagged union, structurally
// comparable and freely shareable.
type Value struct {
	kind Kind

	b   bool
	i   int64
	f   float64
	s   string
	lst []Value
	// set is represented as an ordered-by-hash slice of member values so
	// iteration is deterministic across runs for a given set (member
	// order is irrelevant to set identity, but a stable sort over
	// canonical hashes gives every run the same iteration order).
	set []Value
	m   map[string]Value

	opt    *Value // nil means "none"; non-nil wraps the contained Value
	clo    *Closure
	cellID string // ref-cell identity (store key)
	fut    *FutureRef
	opTag  string
	opData any
	errVal *ErrorValue
}

// FutureRef is the payload of a Value of kind future: a task id plus a
// snapshot of its status at the time this Value was produced. The live
// status is tracked by the scheduler; this is a lightweight handle.
type FutureRef struct {
	TaskID string
	Status FutureStatus
}

// ---- Constructors ----

func Void() Value                 { return Value{kind: KindVoid} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Opaque(tag string, data any) Value {
	return Value{kind: KindOpaque, opTag: tag, opData: data}
}

// Float canonicalises -0 to 0, per the spec's hashing rule; this is
// applied at construction so equality/hashing never special-case it.
func Float(f float64) Value {
	if f == 0 {
		f = 0
	}
	return Value{kind: KindFloat, f: f}
}

func List(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, lst: cp}
}

// Set builds a set Value from members, deduplicating by canonical hash
// and sorting by hash so that iteration order is deterministic for a
// given content set (order is not significant to equality).
func Set(members []Value) Value {
	seen := make(map[uint64]bool, len(members))
	uniq := make([]Value, 0, len(members))
	for _, m := range members {
		h := Hash(m)
		if seen[h] {
			continue
		}
		seen[h] = true
		uniq = append(uniq, m)
	}
	sort.Slice(uniq, func(i, j int) bool { return Hash(uniq[i]) < Hash(uniq[j]) })
	return Value{kind: KindSet, set: uniq}
}

func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

func Some(v Value) Value { return Value{kind: KindOption, opt: &v} }
func None() Value        { return Value{kind: KindOption, opt: nil} }

func ClosureVal(c *Closure) Value { return Value{kind: KindClosure, clo: c} }

func RefCell(cellID string) Value { return Value{kind: KindRefCell, cellID: cellID} }

func Future(taskID string, status FutureStatus) Value {
	return Value{kind: KindFuture, fut: &FutureRef{TaskID: taskID, Status: status}}
}

func Error(kind, message string, meta map[string]any) Value {
	return Value{kind: KindError, errVal: &ErrorValue{Kind: kind, Message: message, Meta: meta}}
}

// ---- Accessors ----

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsError() bool { return v.kind == KindError }
func (v Value) IsVoid() bool  { return v.kind == KindVoid }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsList() ([]Value, bool)    { return v.lst, v.kind == KindList }
func (v Value) AsSet() ([]Value, bool)     { return v.set, v.kind == KindSet }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }
func (v Value) AsClosure() (*Closure, bool) { return v.clo, v.kind == KindClosure }
func (v Value) AsRefCellID() (string, bool) { return v.cellID, v.kind == KindRefCell }
func (v Value) AsFuture() (*FutureRef, bool) { return v.fut, v.kind == KindFuture }
func (v Value) AsOpaque() (string, any, bool) { return v.opTag, v.opData, v.kind == KindOpaque }
func (v Value) AsError() (*ErrorValue, bool) { return v.errVal, v.kind == KindError }

// AsOption reports whether v is an option, and if so whether it is Some
// (with its contained value) or None.
func (v Value) AsOption() (contained Value, isSome bool, isOption bool) {
	if v.kind != KindOption {
		return Value{}, false, false
	}
	if v.opt == nil {
		return Value{}, false, true
	}
	return *v.opt, true, true
}

// Truthy implements the `if`/`while`/`branch` "must be bool" contract's
// extraction step; callers should still reject non-bool conditions with
// TypeError before calling this — Truthy exists only to read the payload.
func (v Value) Truthy() bool { return v.kind == KindBool && v.b }

func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%v", v.f)
	case KindString:
		return v.s
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.lst))
	case KindSet:
		return fmt.Sprintf("set(%d)", len(v.set))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.m))
	case KindOption:
		if v.opt == nil {
			return "none"
		}
		return "some(" + v.opt.String() + ")"
	case KindClosure:
		return "closure"
	case KindRefCell:
		return "ref(" + v.cellID + ")"
	case KindFuture:
		return "future(" + v.fut.TaskID + ")"
	case KindOpaque:
		return "opaque(" + v.opTag + ")"
	case KindError:
		return "error(" + v.errVal.Kind + ": " + v.errVal.Message + ")"
	default:
		return "?"
	}
}

// Equal performs structural equality, recursing into containers.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindVoid:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.lst) != len(b.lst) {
			return false
		}
		for i := range a.lst {
			if !Equal(a.lst[i], b.lst[i]) {
				return false
			}
		}
		return true
	case KindSet:
		if len(a.set) != len(b.set) {
			return false
		}
		for i := range a.set {
			if !Equal(a.set[i], b.set[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindOption:
		if (a.opt == nil) != (b.opt == nil) {
			return false
		}
		if a.opt == nil {
			return true
		}
		return Equal(*a.opt, *b.opt)
	case KindRefCell:
		return a.cellID == b.cellID
	case KindFuture:
		return a.fut.TaskID == b.fut.TaskID
	case KindError:
		return a.errVal.Kind == b.errVal.Kind && a.errVal.Message == b.errVal.Message
	case KindClosure, KindOpaque:
		return false // identity-only kinds: never structurally equal across instances
	default:
		return false
	}
}

// Hash computes a structural FNV-1a hash used for set membership and
// map/set deduplication. -0 is canonicalised to 0 before hashing (applied
// already at Float construction, but re-applied defensively here).
func Hash(v Value) uint64 {
	h := fnvOffset
	h = hashKind(h, v.kind)
	switch v.kind {
	case KindVoid:
	case KindBool:
		if v.b {
			h = hashByte(h, 1)
		} else {
			h = hashByte(h, 0)
		}
	case KindInt:
		h = hashUint64(h, uint64(v.i))
	case KindFloat:
		f := v.f
		if f == 0 {
			f = 0
		}
		h = hashUint64(h, math.Float64bits(f))
	case KindString:
		h = hashString(h, v.s)
	case KindList:
		for _, e := range v.lst {
			h = hashUint64(h, Hash(e))
		}
	case KindSet:
		var sum uint64
		for _, e := range v.set {
			sum += Hash(e)
		}
		h = hashUint64(h, sum)
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h = hashString(h, k)
			h = hashUint64(h, Hash(v.m[k]))
		}
	case KindOption:
		if v.opt != nil {
			h = hashUint64(h, Hash(*v.opt))
		}
	case KindRefCell:
		h = hashString(h, v.cellID)
	case KindFuture:
		h = hashString(h, v.fut.TaskID)
	case KindError:
		h = hashString(h, v.errVal.Kind)
		h = hashString(h, v.errVal.Message)
	case KindClosure:
		h = hashString(h, fmt.Sprintf("%p", v.clo))
	case KindOpaque:
		h = hashString(h, v.opTag)
		h = hashString(h, fmt.Sprintf("%p", v.opData))
	}
	return h
}

const (
	fnvOffset = uint64(14695981039346656037)
	fnvPrime  = uint64(1099511628211)
)

func hashByte(h uint64, b byte) uint64 {
	h ^= uint64(b)
	h *= fnvPrime
	return h
}

func hashKind(h uint64, k Kind) uint64 { return hashByte(h, byte(k)) }

func hashUint64(h uint64, u uint64) uint64 {
	for i := 0; i < 8; i++ {
		h = hashByte(h, byte(u>>(8*i)))
	}
	return h
}

func hashString(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h = hashByte(h, s[i])
	}
	return h
}
