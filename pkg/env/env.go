// Package env implements SPIRAL's value environment (an immutable chain
// with structural extension) and the mutable ref-cell store, mirroring
// the locking discipline of the teacher's ExecutionState maps.
package env

import (
	"sync"

	"github.com/hybscloud/spiral/pkg/value"
)

// Env is a persistent, chained variable environment. Extend never
// mutates the receiver: `let`/`lambda`/`for`-loop scoping build a new
// Env node on top of the parent chain, so a closure that captured a
// parent Env continues to see it unchanged. EIR `assign`, however,
// monotonically extends the *current* frame in place (see Assign) so
// that sibling expressions sharing a frame observe later assignments —
// this is the "assign extends env monotonically" contract from the
// specification's design notes, modeled as a mutable tip frame with
// immutable ancestors.
type Env struct {
	mu     sync.RWMutex
	parent *Env
	vars   map[string]value.Value
}

// New returns an empty root environment.
func New() *Env {
	return &Env{vars: make(map[string]value.Value)}
}

// Extend returns a new Env with name bound to v, chained in front of e.
// e itself is not modified, so any closure holding e is unaffected.
func (e *Env) Extend(name string, v value.Value) *Env {
	child := &Env{parent: e, vars: map[string]value.Value{name: v}}
	return child
}

// ExtendMany binds multiple names at once in a single new frame —
// used for callExpr/airRef/fix parameter binding so arity-many bindings
// don't allocate arity-many chain links.
func (e *Env) ExtendMany(names []string, vals []value.Value) *Env {
	vars := make(map[string]value.Value, len(names))
	for i, n := range names {
		vars[n] = vals[i]
	}
	return &Env{parent: e, vars: vars}
}

// Lookup searches the chain from tip to root. Each frame's mutex is held
// only for the duration of its own map read, so a concurrent Assign on an
// ancestor frame (e.g. a `par` branch mutating a shared outer binding)
// never blocks a lookup rooted at a sibling branch's frame.
func (e *Env) Lookup(name string) (value.Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.vars[name]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return value.Value{}, false
}

// Assign mutates the nearest frame that already binds name (so an
// existing `let` binding becomes visible to anyone still holding this Env
// node), or, if name is unbound anywhere in the chain, creates it in the
// tip frame. This is EIR `assign`'s monotonic-extension contract: later
// assigns shadow earlier ones for everyone sharing this exact Env node,
// but a closure that captured an *ancestor* frame before the assign was
// made still only sees what was visible to it at capture time through
// the chain lookup in Lookup — it is the tip frame identity, not a deep
// copy, that callers must share to observe a later assign.
func (e *Env) Assign(name string, v value.Value) {
	for cur := e; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		_, ok := cur.vars[name]
		if ok {
			cur.vars[name] = v
		}
		cur.mu.Unlock()
		if ok {
			return
		}
	}
	e.mu.Lock()
	e.vars[name] = v
	e.mu.Unlock()
}

// FromVars wraps an existing flat variable map as a single-frame, no-
// parent Env, used by pkg/cfgrun to let the CFG interpreter's vars map
// (which has no lexical nesting of its own) participate directly in
// expression evaluation: mutations through the returned Env's Assign
// write straight back into vars.
func FromVars(vars map[string]value.Value) *Env {
	return &Env{vars: vars}
}

// Child returns a fresh empty frame chained in front of e, used when a
// scope needs to shadow without binding anything yet (e.g. entering a
// `for` loop body before `var` is known).
func (e *Env) Child() *Env {
	return &Env{parent: e, vars: make(map[string]value.Value)}
}
