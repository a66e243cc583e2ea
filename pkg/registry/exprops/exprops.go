// Package exprops is an example, host-facing pure-operator set for
// SPIRAL's operator registry. It is never required by the core evaluator
// (which only ever consumes the registry.Registry interface) — SPIRAL's
// non-goals explicitly carve the "built-in standard library of
// operators" out as an external collaborator's concern. This package
// exists as the worked example a CLI or test suite can register,
// grounded on the teacher's ConditionCache + ExprConditionEvaluator:
// an LRU of compiled expr-lang programs, generalized from boolean-only
// condition strings to arbitrary Value-returning operator bodies.
package exprops

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/value"
)

// programCache is an LRU of compiled expr-lang programs keyed by source
// text, identical in shape to the teacher's ConditionCache.
type programCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

func newProgramCache(capacity int) *programCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &programCache{capacity: capacity, items: make(map[string]*list.Element), order: list.New()}
}

func (c *programCache) compile(src string) (*vm.Program, error) {
	c.mu.Lock()
	if el, ok := c.items[src]; ok {
		c.order.MoveToFront(el)
		p := el.Value.(*cacheEntry).program
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	program, err := expr.Compile(src, expr.Env(map[string]any{"args": []any{}}))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	el := c.order.PushFront(&cacheEntry{key: src, program: program})
	c.items[src] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
	c.mu.Unlock()
	return program, nil
}

// ScriptedOperator compiles src as an expr-lang program evaluated
// against {"args": [...]} each call, converting the result back to a
// Value. It is the building block RegisterDefaults and any host-defined
// "expr:*" operator use.
func ScriptedOperator(src string) registry.OperatorFunc {
	cache := newProgramCache(64)
	return func(args []value.Value) value.Value {
		program, err := cache.compile(src)
		if err != nil {
			return value.Error("DomainError", fmt.Sprintf("expr compile failed: %v", err), nil)
		}
		anyArgs := make([]any, len(args))
		for i, a := range args {
			anyArgs[i] = toAny(a)
		}
		out, err := expr.Run(program, map[string]any{"args": anyArgs})
		if err != nil {
			return value.Error("DomainError", fmt.Sprintf("expr run failed: %v", err), nil)
		}
		return fromAny(out)
	}
}

func toAny(v value.Value) any {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt:
		i, _ := v.AsInt()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindList:
		lst, _ := v.AsList()
		out := make([]any, len(lst))
		for i, e := range lst {
			out[i] = toAny(e)
		}
		return out
	default:
		return nil
	}
}

func fromAny(a any) value.Value {
	switch t := a.(type) {
	case bool:
		return value.Bool(t)
	case int:
		return value.Int(int64(t))
	case int64:
		return value.Int(t)
	case float64:
		return value.Float(t)
	case string:
		return value.String(t)
	case []any:
		out := make([]value.Value, len(t))
		for i, e := range t {
			out[i] = fromAny(e)
		}
		return value.List(out)
	default:
		return value.Void()
	}
}

// RegisterDefaults registers a small arithmetic/string/list example
// operator set under the "core", "string", and "list" namespaces, each
// implemented via ScriptedOperator. Intended for CLIs and tests that
// want a working registry without hand-writing every primitive.
func RegisterDefaults(r *registry.Registry) {
	r.RegisterOperator("core", "add", 2, ScriptedOperator("args[0] + args[1]"))
	r.RegisterOperator("core", "sub", 2, ScriptedOperator("args[0] - args[1]"))
	r.RegisterOperator("core", "mul", 2, ScriptedOperator("args[0] * args[1]"))
	r.RegisterOperator("core", "div", 2, divOperator())
	r.RegisterOperator("core", "eq", 2, ScriptedOperator("args[0] == args[1]"))
	r.RegisterOperator("core", "lt", 2, ScriptedOperator("args[0] < args[1]"))
	r.RegisterOperator("core", "gt", 2, ScriptedOperator("args[0] > args[1]"))
	r.RegisterOperator("string", "concat", 2, ScriptedOperator("string(args[0]) + string(args[1])"))
	r.RegisterOperator("list", "len", 1, lenOperator())
}

// divOperator wraps ScriptedOperator with an explicit DivideByZero check
// ahead of the expr-lang division, since expr-lang's own divide-by-zero
// behaviour for floats (+Inf) doesn't match the specification's
// dedicated error kind.
func divOperator() registry.OperatorFunc {
	inner := ScriptedOperator("args[0] / args[1]")
	return func(args []value.Value) value.Value {
		if len(args) == 2 {
			if i, ok := args[1].AsInt(); ok && i == 0 {
				return value.Error("DivideByZero", "division by zero", nil)
			}
			if f, ok := args[1].AsFloat(); ok && f == 0 {
				return value.Error("DivideByZero", "division by zero", nil)
			}
		}
		return inner(args)
	}
}

func lenOperator() registry.OperatorFunc {
	return func(args []value.Value) value.Value {
		if len(args) != 1 {
			return value.Error("ArityError", "list:len expects 1 argument", nil)
		}
		if lst, ok := args[0].AsList(); ok {
			return value.Int(int64(len(lst)))
		}
		if set, ok := args[0].AsSet(); ok {
			return value.Int(int64(len(set)))
		}
		return value.Error("TypeError", "list:len expects a list or set", nil)
	}
}
