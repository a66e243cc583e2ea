// Package registry implements the operator and effect registries: two
// name-addressable tables generalizing the teacher's pkg/executor.Manager
// from a single-string node-type key to a (namespace, name) pair, so
// SPIRAL's `call`/`op`/`effect` expressions can address a much larger,
// host-extensible vocabulary without a single flat namespace collision.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/hybscloud/spiral/pkg/value"
)

// Key addresses a registry entry.
type Key struct {
	Ns, Name string
}

func (k Key) String() string { return k.Ns + ":" + k.Name }

// OperatorFunc is a deterministic, pure function from already-evaluated
// arguments to a Value. Domain violations are signalled by returning a
// Value of kind error, never by panicking or returning a Go error.
type OperatorFunc func(args []value.Value) value.Value

// Runtime is the slice of scheduler capability an effect needs to spawn
// asynchronous work. pkg/eval's runtime adapter (Evaluator.Runtime)
// implements this on top of the evaluator's scheduler; registry itself
// never imports the scheduler package, keeping the dependency direction
// effect-author -> registry -> (nothing), and scheduler -> registry.
type Runtime interface {
	// SpawnEffect runs thunk as a new task and returns a future Value
	// referencing it immediately (non-blocking) — used by effects that
	// are inherently asynchronous (timers, I/O).
	SpawnEffect(thunk func(ctx context.Context) (value.Value, error)) value.Value

	// ApplyClosure invokes a Value-level closure with already-evaluated
	// arguments, for effects (like an async ref-cell's update) that
	// take a function argument and must call back into evaluation.
	ApplyClosure(ctx context.Context, clo *value.Closure, args []value.Value) (value.Value, error)
}

// EffectFunc is a possibly-impure operation. Host code supplies concrete
// effects (file system, HTTP, timers) via this signature; the core
// treats them opaquely. A synchronous effect returns its result value
// directly; an asynchronous one returns a future obtained from
// rt.SpawnEffect and resolves it on its own task.
type EffectFunc func(ctx context.Context, rt Runtime, args []value.Value) (value.Value, error)

// Record is a registered operator or effect along with its declared
// arity and purity, checked by the evaluator/CFG interpreter before
// dispatch.
type Record struct {
	Key      Key
	Arity    int // -1 means variadic; arity is checked only when >= 0
	Pure     bool
	Op       OperatorFunc // set when Pure
	Effect   EffectFunc   // set when !Pure
}

// Registry holds both operators and effects; later registrations for the
// same key override earlier ones, per the specification's stated
// (if separately-unspecified) merge semantics.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]Record
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[Key]Record)}
}

// RegisterOperator adds (or overrides) a pure operator.
func (r *Registry) RegisterOperator(ns, name string, arity int, fn OperatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key{ns, name}
	r.entries[k] = Record{Key: k, Arity: arity, Pure: true, Op: fn}
}

// RegisterEffect adds (or overrides) an impure effect.
func (r *Registry) RegisterEffect(ns, name string, arity int, fn EffectFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key{ns, name}
	r.entries[k] = Record{Key: k, Arity: arity, Pure: false, Effect: fn}
}

// LookupOperator returns the operator registered at ns:name, or ok=false
// (the caller surfaces UnknownOperator).
func (r *Registry) LookupOperator(ns, name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.entries[Key{ns, name}]
	if !ok || !rec.Pure {
		return Record{}, false
	}
	return rec, true
}

// LookupEffect returns the effect registered at ns:name, or ok=false.
func (r *Registry) LookupEffect(ns, name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.entries[Key{ns, name}]
	if !ok || rec.Pure {
		return Record{}, false
	}
	return rec, true
}

// CheckArity returns an error if got does not match the record's
// declared arity (variadic records with Arity < 0 always pass).
func (rec Record) CheckArity(got int) error {
	if rec.Arity < 0 {
		return nil
	}
	if rec.Arity != got {
		return fmt.Errorf("arity mismatch for %s: want %d, got %d", rec.Key, rec.Arity, got)
	}
	return nil
}

// Merge copies every entry of other into r, overriding any existing
// keys — last-wins, matching this module's resolution of the
// specification's open question about merge identity for registry
// overrides.
func (r *Registry) Merge(other *Registry) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range other.entries {
		r.entries[k] = v
	}
}

// List returns every registered key, operators and effects together —
// used by hosts introspecting a configured registry (mirrors the
// teacher's Manager.List()).
func (r *Registry) List() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}
