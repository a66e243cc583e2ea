// Package eval implements SPIRAL's big-step expression evaluator: the
// judgement env ⊢ e ⇓ v for AIR, CIR, and EIR, spanning literals through
// mutation, loops, and structured exception handling. It mirrors the
// shape of the teacher's pkg/engine.NodeExecutor.Execute (resolve
// dependencies, dispatch on node kind, record the result) but as a
// direct recursive tree-walk over ir.Expression rather than a single
// per-node dispatch — SPIRAL's expressions nest arbitrarily, where the
// teacher's workflow nodes did not. Concurrent-overlay expressions
// (par/spawn/await/channels/select/race) are dispatched to a Scheduler
// collaborator defined in async.go; this file never touches goroutines
// directly.
package eval

import (
	"context"
	"fmt"

	"github.com/hybscloud/spiral/pkg/efflog"
	"github.com/hybscloud/spiral/pkg/env"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/spiralerr"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/value"
)

// Resolver resolves a top-level document node by id to its memoized
// value, in document order, evaluating it on demand if it has not yet
// been reached. The orchestrator owns the memo cache and implements
// this; `ref` is the only expression that ever calls through it — every
// other node-id field on an Expression names a bound node, evaluated
// directly (and repeatably) via evalBoundNode instead.
type Resolver interface {
	ResolveNode(ctx context.Context, nodeID string) (value.Value, error)
}

// Evaluator holds every piece of shared, per-run state the judgement
// needs: the document (for bound-node lookup), the operator/effect
// registry, the ref-cell store, the shared step budget, the effect log,
// the top-level node resolver, and the concurrent-overlay scheduler.
type Evaluator struct {
	Doc       *ir.Document
	Registry  *registry.Registry
	Cells     *env.CellStore
	Steps     *stepbudget.Budget
	Effects   *efflog.Log
	Resolver  Resolver
	Scheduler Scheduler

	// TaskID identifies the task this Evaluator instance is evaluating
	// on behalf of, for effect-log attribution. The orchestrator's root
	// evaluation uses a fixed "main" id. Spawned tasks and par/race
	// branches evaluate on the Evaluator that started them, so the
	// effects they record carry that Evaluator's TaskID, not an id of
	// their own.
	TaskID string

	nodeIndex map[string]*ir.Node
}

// New returns an Evaluator indexing doc's nodes once up front. resolver
// and sched may be nil: a nil resolver makes `ref` fall back to direct
// bound evaluation against the root node table (useful for evaluating a
// single expression in isolation, e.g. in tests); a nil scheduler makes
// every concurrent-overlay expression fail with DomainError.
func New(doc *ir.Document, reg *registry.Registry, cells *env.CellStore, steps *stepbudget.Budget, effects *efflog.Log, resolver Resolver, sched Scheduler, taskID string) *Evaluator {
	idx := make(map[string]*ir.Node, len(doc.Nodes))
	for _, n := range doc.Nodes {
		idx[n.ID] = n
	}
	return &Evaluator{
		Doc: doc, Registry: reg, Cells: cells, Steps: steps, Effects: effects,
		Resolver: resolver, Scheduler: sched, TaskID: taskID, nodeIndex: idx,
	}
}

// WithTask returns a shallow copy of e bound to a different task id,
// sharing every other piece of run state. The scheduler does not call
// it: spawned tasks run on the spawning Evaluator (see TaskID).
func (e *Evaluator) WithTask(taskID string) *Evaluator {
	cp := *e
	cp.TaskID = taskID
	return &cp
}

func errValue(kind spiralerr.Kind, msg string) value.Value {
	return value.Error(string(kind), msg, nil)
}

// EvalNode evaluates the expression node named by id directly against
// en, exactly as any bound-node reference field would. It is exported
// for pkg/cfgrun, whose LIR instructions reference expression nodes by
// id the same way AIR/CIR/EIR bound-node fields do.
func (e *Evaluator) EvalNode(ctx context.Context, nodeID string, en *env.Env) (value.Value, error) {
	return e.evalBoundNode(ctx, nodeID, en)
}

// ApplyClosure invokes clo with already-evaluated args, exported for
// pkg/cfgrun's InstrCall (whose Fn/Args are plain CFG variables, never
// node-ids, so evalCallExpr's own node-id resolution doesn't apply).
func (e *Evaluator) ApplyClosure(ctx context.Context, clo *value.Closure, args []value.Value) (value.Value, error) {
	if len(args) != len(clo.Params) {
		return errValue(spiralerr.KindArityError, fmt.Sprintf("call: want %d args, got %d", len(clo.Params), len(args))), nil
	}
	captured, _ := clo.Env.(*env.Env)
	callEnv := captured.ExtendMany(clo.Params, args)
	return e.evalBoundNode(ctx, clo.Body, callEnv)
}

// Runtime adapts e's Scheduler to registry.Runtime, bound to ctx, for
// callers outside this package that need to invoke a registered effect
// directly (pkg/cfgrun's InstrEffect).
func (e *Evaluator) Runtime(ctx context.Context) registry.Runtime {
	return e.runtimeFor(ctx)
}

// Eval is the judgement's entry point: evaluate expr under en.
//
// The returned error is reserved for conditions that abort the whole
// evaluation rather than being catchable by `try` — step-budget
// exhaustion and context cancellation. Every other failure (TypeError,
// ArityError, DomainError, DivideByZero, UnknownOperator,
// UnknownDefinition, UnboundIdentifier, ChannelClosed) is returned as an
// ordinary Value of kind error (err == nil, v.IsError()), so `try` can
// pattern-match on it the same way it would any other value.
func (e *Evaluator) Eval(ctx context.Context, expr ir.Expression, en *env.Env) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Value{}, err
	}

	switch n := expr.(type) {

	// ---- AIR ----
	case ir.Lit:
		if !n.Type.Matches(n.Value) {
			return errValue(spiralerr.KindTypeError, "lit: value does not match declared type"), nil
		}
		return n.Value, nil

	case ir.Var:
		v, ok := en.Lookup(n.Name)
		if !ok {
			return errValue(spiralerr.KindUnboundIdentifier, "unbound identifier: "+n.Name), nil
		}
		return v, nil

	case ir.Ref:
		if e.Resolver != nil {
			return e.Resolver.ResolveNode(ctx, n.ID)
		}
		return e.evalBoundNode(ctx, n.ID, en)

	case ir.Call:
		return e.evalCall(ctx, n, en)

	case ir.If:
		return e.evalIf(ctx, n, en)

	case ir.Let:
		return e.evalLet(ctx, n, en)

	case ir.AirRef:
		return e.evalAirRef(ctx, n, en)

	case ir.Predicate:
		return e.evalPredicate(ctx, n, en)

	// ---- CIR ----
	case ir.Lambda:
		return value.ClosureVal(&value.Closure{Params: n.Params, Body: n.Body, Env: en}), nil

	case ir.CallExpr:
		return e.evalCallExpr(ctx, n, en)

	case ir.Fix:
		return e.evalFix(ctx, n, en)

	// ---- EIR ----
	case ir.Seq:
		first, err := e.evalBoundNode(ctx, n.First, en)
		if err != nil {
			return value.Value{}, err
		}
		if first.IsError() {
			return first, nil
		}
		return e.evalBoundNode(ctx, n.Then, en)

	case ir.Assign:
		v, err := e.evalBoundNode(ctx, n.Value, en)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsError() {
			return v, nil
		}
		en.Assign(n.Target, v)
		return v, nil

	case ir.While:
		return e.evalWhile(ctx, n, en)

	case ir.For:
		return e.evalFor(ctx, n, en)

	case ir.Iter:
		return e.evalIter(ctx, n, en)

	case ir.Effect:
		return e.evalEffect(ctx, n, en)

	case ir.RefCellExpr:
		if _, ok := en.Lookup(n.Target); !ok {
			return errValue(spiralerr.KindUnboundIdentifier, "refCell: unbound identifier: "+n.Target), nil
		}
		return e.Cells.Bind(n.Target, value.Void()), nil

	case ir.Deref:
		v, ok := e.Cells.Get(n.Target)
		if !ok {
			return errValue(spiralerr.KindDomainError, "deref of unbound ref-cell: "+n.Target), nil
		}
		return v, nil

	case ir.Try:
		return e.evalTry(ctx, n, en)

	// ---- Concurrent overlay ----
	case ir.Par, ir.Spawn, ir.Await, ir.ChannelExpr, ir.Send, ir.Recv, ir.TrySend, ir.TryRecv, ir.Select, ir.Race:
		return e.evalAsync(ctx, expr, en)

	default:
		return value.Value{}, fmt.Errorf("eval: unhandled expression type %T", expr)
	}
}

// evalBoundNode dereferences a node-id field that names a bound node —
// a sub-expression evaluated directly against the caller-supplied
// environment rather than through the orchestrator's memoized Resolver.
// Every argument list, branch, loop body, and lambda/let/try body in the
// IR is a bound node; `ref` is the sole exception.
func (e *Evaluator) evalBoundNode(ctx context.Context, nodeID string, en *env.Env) (value.Value, error) {
	if err := e.Steps.Increment(); err != nil {
		return value.Value{}, err
	}
	node, ok := e.nodeIndex[nodeID]
	if !ok {
		return value.Value{}, fmt.Errorf("eval: unknown node id %q", nodeID)
	}
	if node.IsBlock {
		return value.Value{}, fmt.Errorf("eval: node %q is a CFG region, not an expression", nodeID)
	}
	return e.Eval(ctx, node.Expr, en)
}

func (e *Evaluator) evalCall(ctx context.Context, n ir.Call, en *env.Env) (value.Value, error) {
	rec, ok := e.Registry.LookupOperator(n.Ns, n.Name)
	if !ok {
		return errValue(spiralerr.KindUnknownOperator, "unknown operator: "+n.Ns+":"+n.Name), nil
	}
	args, v, err := e.evalArgs(ctx, n.Args, en)
	if err != nil || v.IsError() {
		return v, err
	}
	if err := rec.CheckArity(len(args)); err != nil {
		return errValue(spiralerr.KindArityError, err.Error()), nil
	}
	return rec.Op(args), nil
}

// evalArgs evaluates each bound-node id in order, short-circuiting on
// the first Value-level error it encounters (the returned Value is
// non-zero only in that short-circuit case).
func (e *Evaluator) evalArgs(ctx context.Context, ids []string, en *env.Env) ([]value.Value, value.Value, error) {
	out := make([]value.Value, 0, len(ids))
	for _, id := range ids {
		v, err := e.evalBoundNode(ctx, id, en)
		if err != nil {
			return nil, value.Value{}, err
		}
		if v.IsError() {
			return nil, v, nil
		}
		out = append(out, v)
	}
	return out, value.Value{}, nil
}

func (e *Evaluator) evalIf(ctx context.Context, n ir.If, en *env.Env) (value.Value, error) {
	cond, err := e.evalBoundNode(ctx, n.Cond, en)
	if err != nil {
		return value.Value{}, err
	}
	if cond.IsError() {
		return cond, nil
	}
	b, ok := cond.AsBool()
	if !ok {
		return errValue(spiralerr.KindTypeError, "if: condition must be bool"), nil
	}
	if b {
		return e.evalBoundNode(ctx, n.Then, en)
	}
	return e.evalBoundNode(ctx, n.Else, en)
}

func (e *Evaluator) evalLet(ctx context.Context, n ir.Let, en *env.Env) (value.Value, error) {
	v, err := e.evalBoundNode(ctx, n.Value, en)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsError() {
		return v, nil
	}
	return e.evalBoundNode(ctx, n.Body, en.Extend(n.Name, v))
}

func (e *Evaluator) evalAirRef(ctx context.Context, n ir.AirRef, en *env.Env) (value.Value, error) {
	key := n.Name
	if n.Ns != "" {
		key = n.Ns + ":" + n.Name
	}
	def, ok := e.Doc.AIRDefs[key]
	if !ok {
		def, ok = e.Doc.AIRDefs[n.Name]
	}
	if !ok {
		return errValue(spiralerr.KindUnknownDefinition, "unknown AIR definition: "+key), nil
	}
	args, v, err := e.evalArgs(ctx, n.Args, en)
	if err != nil || v.IsError() {
		return v, err
	}
	if len(args) != len(def.Params) {
		return errValue(spiralerr.KindArityError, fmt.Sprintf("airRef %s: want %d args, got %d", key, len(def.Params), len(args))), nil
	}
	// Capture-avoiding: the call-site environment is discarded entirely;
	// the definition body only ever sees its own parameters.
	fresh := env.New().ExtendMany(def.Params, args)
	return e.evalBoundNode(ctx, def.Body, fresh)
}

func (e *Evaluator) evalPredicate(ctx context.Context, n ir.Predicate, en *env.Env) (value.Value, error) {
	if n.Value != "" {
		_, err := e.evalBoundNode(ctx, n.Value, en)
		if err != nil {
			return value.Value{}, err
		}
	}
	if e.Effects != nil {
		e.Effects.Append(e.TaskID, "predicate:"+n.Name, nil, value.Bool(true))
	}
	return value.Bool(true), nil
}

func (e *Evaluator) evalCallExpr(ctx context.Context, n ir.CallExpr, en *env.Env) (value.Value, error) {
	fnVal, err := e.evalBoundNode(ctx, n.Fn, en)
	if err != nil {
		return value.Value{}, err
	}
	if fnVal.IsError() {
		return fnVal, nil
	}
	clo, ok := fnVal.AsClosure()
	if !ok {
		return errValue(spiralerr.KindTypeError, "callExpr: fn must evaluate to a closure"), nil
	}
	args, v, err := e.evalArgs(ctx, n.Args, en)
	if err != nil || v.IsError() {
		return v, err
	}
	return e.ApplyClosure(ctx, clo, args)
}

// evalFix ties fn — a single-parameter closure whose parameter stands
// for the function's own recursive self-reference — to itself. The
// trick is an env mutation rather than an extra indirection layer: fn's
// body is evaluated once in a frame that binds its parameter to a
// placeholder, and the frame is mutated in place to point at the real
// result as soon as it is known, so any closure that body produced and
// that captured this exact frame observes the self-reference from then
// on. This exercises Env.Assign's monotonic tip-frame contract directly.
func (e *Evaluator) evalFix(ctx context.Context, n ir.Fix, en *env.Env) (value.Value, error) {
	fnVal, err := e.evalBoundNode(ctx, n.Fn, en)
	if err != nil {
		return value.Value{}, err
	}
	if fnVal.IsError() {
		return fnVal, nil
	}
	clo, ok := fnVal.AsClosure()
	if !ok {
		return errValue(spiralerr.KindTypeError, "fix: operand must be a closure"), nil
	}
	if len(clo.Params) != 1 {
		return errValue(spiralerr.KindArityError, "fix: closure must take exactly one parameter"), nil
	}
	captured, _ := clo.Env.(*env.Env)
	selfName := clo.Params[0]
	tip := captured.Extend(selfName, value.Void())
	result, err := e.evalBoundNode(ctx, clo.Body, tip)
	if err != nil {
		return value.Value{}, err
	}
	if result.IsError() {
		return result, nil
	}
	tip.Assign(selfName, result)
	return result, nil
}

func (e *Evaluator) evalWhile(ctx context.Context, n ir.While, en *env.Env) (value.Value, error) {
	last := value.Void()
	for {
		cond, err := e.evalBoundNode(ctx, n.Cond, en)
		if err != nil {
			return value.Value{}, err
		}
		if cond.IsError() {
			return cond, nil
		}
		b, ok := cond.AsBool()
		if !ok {
			return errValue(spiralerr.KindTypeError, "while: condition must be bool"), nil
		}
		if !b {
			return last, nil
		}
		v, err := e.evalBoundNode(ctx, n.Body, en)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsError() {
			return v, nil
		}
		last = v
	}
}

func (e *Evaluator) evalFor(ctx context.Context, n ir.For, en *env.Env) (value.Value, error) {
	init, err := e.evalBoundNode(ctx, n.Init, en)
	if err != nil {
		return value.Value{}, err
	}
	if init.IsError() {
		return init, nil
	}
	loopEnv := en.Extend(n.Var, init)
	last := value.Void()
	for {
		cond, err := e.evalBoundNode(ctx, n.Cond, loopEnv)
		if err != nil {
			return value.Value{}, err
		}
		if cond.IsError() {
			return cond, nil
		}
		b, ok := cond.AsBool()
		if !ok {
			return errValue(spiralerr.KindTypeError, "for: condition must be bool"), nil
		}
		if !b {
			return last, nil
		}
		v, err := e.evalBoundNode(ctx, n.Body, loopEnv)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsError() {
			return v, nil
		}
		last = v
		updated, err := e.evalBoundNode(ctx, n.Update, loopEnv)
		if err != nil {
			return value.Value{}, err
		}
		if updated.IsError() {
			return updated, nil
		}
		loopEnv.Assign(n.Var, updated)
	}
}

func (e *Evaluator) evalIter(ctx context.Context, n ir.Iter, en *env.Env) (value.Value, error) {
	iterable, err := e.evalBoundNode(ctx, n.Iter, en)
	if err != nil {
		return value.Value{}, err
	}
	if iterable.IsError() {
		return iterable, nil
	}
	var items []value.Value
	if lst, ok := iterable.AsList(); ok {
		items = lst
	} else if set, ok := iterable.AsSet(); ok {
		items = set
	} else {
		return errValue(spiralerr.KindTypeError, "iter: expects a list or set"), nil
	}
	last := value.Void()
	for _, item := range items {
		bodyEnv := en.Extend(n.Var, item)
		v, err := e.evalBoundNode(ctx, n.Body, bodyEnv)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsError() {
			return v, nil
		}
		last = v
	}
	return last, nil
}

func (e *Evaluator) evalEffect(ctx context.Context, n ir.Effect, en *env.Env) (value.Value, error) {
	ns, name := splitOp(n.Op)
	rec, ok := e.Registry.LookupEffect(ns, name)
	if !ok {
		return errValue(spiralerr.KindUnknownOperator, "unknown effect: "+n.Op), nil
	}
	args, v, err := e.evalArgs(ctx, n.Args, en)
	if err != nil || v.IsError() {
		return v, err
	}
	if err := rec.CheckArity(len(args)); err != nil {
		return errValue(spiralerr.KindArityError, err.Error()), nil
	}
	rt := e.runtimeFor(ctx)
	result, goErr := rec.Effect(ctx, rt, args)
	if goErr != nil {
		return value.Value{}, goErr
	}
	if e.Effects != nil {
		e.Effects.Append(e.TaskID, n.Op, args, result)
	}
	return result, nil
}

func splitOp(op string) (ns, name string) {
	for i := 0; i < len(op); i++ {
		if op[i] == ':' {
			return op[:i], op[i+1:]
		}
	}
	return "", op
}

func (e *Evaluator) evalTry(ctx context.Context, n ir.Try, en *env.Env) (value.Value, error) {
	result, err := e.evalBoundNode(ctx, n.TryBody, en)
	if err != nil {
		return value.Value{}, err
	}
	if result.IsError() && n.CatchBody != "" {
		catchEnv := en
		if n.CatchParam != "" {
			catchEnv = en.Extend(n.CatchParam, result)
		}
		result, err = e.evalBoundNode(ctx, n.CatchBody, catchEnv)
		if err != nil {
			return value.Value{}, err
		}
	}
	if n.Fallback != "" {
		return e.evalBoundNode(ctx, n.Fallback, en)
	}
	return result, nil
}
