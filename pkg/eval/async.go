package eval

import (
	"context"

	"github.com/hybscloud/spiral/pkg/env"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/spiralerr"
	"github.com/hybscloud/spiral/pkg/value"
)

// Scheduler is the concurrent-overlay collaborator the evaluator calls
// through for spawn/await/par/race/select and channel operations.
// pkg/scheduler.Pool implements it; eval never imports that package
// directly (neither package imports the other),
// matching the same consumer-defined-interface shape as Resolver.
type Scheduler interface {
	// Spawn starts run as a new task and returns immediately with a
	// future Value referencing it.
	Spawn(ctx context.Context, run func(ctx context.Context) (value.Value, error)) value.Value

	// Await blocks the calling task until future resolves (or the
	// caller's own step budget / context ends first).
	Await(ctx context.Context, future value.Value) (value.Value, error)

	// Par runs every branch concurrently and returns a list Value
	// holding each branch's result in order, once all have finished.
	// A branch's Go error (step budget, cancellation) aborts the whole
	// call; a branch's Value-level error simply occupies its slot in
	// the result list, per the specification's par-failure contract.
	Par(ctx context.Context, branches []func(ctx context.Context) (value.Value, error)) (value.Value, error)

	// Race runs every branch concurrently and returns the value of
	// whichever finishes first, best-effort cancelling the rest.
	Race(ctx context.Context, branches []func(ctx context.Context) (value.Value, error)) (value.Value, error)

	// Select returns the value of whichever future resolves first,
	// favouring the lowest index on a tie.
	Select(ctx context.Context, futures []value.Value) (value.Value, error)

	NewChannel(bufSize int) value.Value
	Send(ctx context.Context, ch value.Value, v value.Value) (value.Value, error)
	Recv(ctx context.Context, ch value.Value) (value.Value, error)

	// TrySend attempts a non-blocking send: it never waits for buffer
	// room or a receiver, returning a bool Value (true on success)
	// rather than blocking the caller.
	TrySend(ch value.Value, v value.Value) (value.Value, error)

	// TryRecv attempts a non-blocking receive: it never waits for a
	// value, returning Void (spec: "false-or-null") when none is ready.
	TryRecv(ch value.Value) (value.Value, error)
}

// evalAsync dispatches every concurrent-overlay expression. Every case
// returns DomainError (not a hard abort) when no Scheduler is attached,
// so evaluating a scheduler-free document that never actually exercises
// concurrency still works end to end.
func (e *Evaluator) evalAsync(ctx context.Context, expr ir.Expression, en *env.Env) (value.Value, error) {
	if e.Scheduler == nil {
		return errValue(spiralerr.KindDomainError, "no scheduler attached: concurrent overlay unavailable"), nil
	}

	switch n := expr.(type) {
	case ir.Par:
		branches, err := e.boundThunks(n.Branches, en)
		if err != nil {
			return value.Value{}, err
		}
		return e.Scheduler.Par(ctx, branches)

	case ir.Spawn:
		thunk, err := e.boundThunk(n.Task, en)
		if err != nil {
			return value.Value{}, err
		}
		return e.Scheduler.Spawn(ctx, thunk), nil

	case ir.Await:
		fut, err := e.evalBoundNode(ctx, n.Future, en)
		if err != nil {
			return value.Value{}, err
		}
		if fut.IsError() {
			return fut, nil
		}
		if _, ok := fut.AsFuture(); !ok {
			return errValue(spiralerr.KindTypeError, "await: operand must be a future"), nil
		}
		return e.Scheduler.Await(ctx, fut)

	case ir.ChannelExpr:
		buf := n.BufSize
		if buf < 0 {
			buf = 0
		}
		return e.Scheduler.NewChannel(buf), nil

	case ir.Send:
		ch, err := e.evalBoundNode(ctx, n.Channel, en)
		if err != nil {
			return value.Value{}, err
		}
		if ch.IsError() {
			return ch, nil
		}
		v, err := e.evalBoundNode(ctx, n.Value, en)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsError() {
			return v, nil
		}
		return e.Scheduler.Send(ctx, ch, v)

	case ir.Recv:
		ch, err := e.evalBoundNode(ctx, n.Channel, en)
		if err != nil {
			return value.Value{}, err
		}
		if ch.IsError() {
			return ch, nil
		}
		return e.Scheduler.Recv(ctx, ch)

	case ir.TrySend:
		ch, err := e.evalBoundNode(ctx, n.Channel, en)
		if err != nil {
			return value.Value{}, err
		}
		if ch.IsError() {
			return ch, nil
		}
		v, err := e.evalBoundNode(ctx, n.Value, en)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsError() {
			return v, nil
		}
		return e.Scheduler.TrySend(ch, v)

	case ir.TryRecv:
		ch, err := e.evalBoundNode(ctx, n.Channel, en)
		if err != nil {
			return value.Value{}, err
		}
		if ch.IsError() {
			return ch, nil
		}
		return e.Scheduler.TryRecv(ch)

	case ir.Select:
		futs := make([]value.Value, 0, len(n.Futures))
		for _, id := range n.Futures {
			v, err := e.evalBoundNode(ctx, id, en)
			if err != nil {
				return value.Value{}, err
			}
			if v.IsError() {
				return v, nil
			}
			futs = append(futs, v)
		}
		return e.Scheduler.Select(ctx, futs)

	case ir.Race:
		branches, err := e.boundThunks(n.Tasks, en)
		if err != nil {
			return value.Value{}, err
		}
		return e.Scheduler.Race(ctx, branches)

	default:
		return value.Value{}, spiralerr.New(spiralerr.KindDomainError, "unreachable async expression variant")
	}
}

// boundThunk wraps a bound-node id as a closure the scheduler can run on
// whatever goroutine it chooses, preserving the node-id's evaluation
// environment by reference (concurrent branches that only read shared
// bindings are safe; branches that assign race exactly as they would in
// any other shared-mutable-state concurrent program).
func (e *Evaluator) boundThunk(nodeID string, en *env.Env) (func(ctx context.Context) (value.Value, error), error) {
	node, ok := e.nodeIndex[nodeID]
	if !ok {
		return nil, spiralerr.New(spiralerr.KindDomainError, "unknown node id: "+nodeID)
	}
	if node.IsBlock {
		return nil, spiralerr.New(spiralerr.KindDomainError, "node is a CFG region, not a task body: "+nodeID)
	}
	return func(ctx context.Context) (value.Value, error) {
		if err := e.Steps.Increment(); err != nil {
			return value.Value{}, err
		}
		return e.Eval(ctx, node.Expr, en)
	}, nil
}

func (e *Evaluator) boundThunks(ids []string, en *env.Env) ([]func(ctx context.Context) (value.Value, error), error) {
	out := make([]func(ctx context.Context) (value.Value, error), 0, len(ids))
	for _, id := range ids {
		t, err := e.boundThunk(id, en)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// runtimeFor adapts the Evaluator's Scheduler to the registry.Runtime
// capability interface effects consume, binding the call's context so
// SpawnEffect (which has no ctx parameter of its own) still respects
// the caller's cancellation.
func (e *Evaluator) runtimeFor(ctx context.Context) runtimeAdapter {
	return runtimeAdapter{ctx: ctx, sched: e.Scheduler, eval: e}
}

type runtimeAdapter struct {
	ctx   context.Context
	sched Scheduler
	eval  *Evaluator
}

func (r runtimeAdapter) SpawnEffect(thunk func(ctx context.Context) (value.Value, error)) value.Value {
	if r.sched == nil {
		return errValue(spiralerr.KindDomainError, "no scheduler attached: cannot spawn effect")
	}
	return r.sched.Spawn(r.ctx, thunk)
}

func (r runtimeAdapter) ApplyClosure(ctx context.Context, clo *value.Closure, args []value.Value) (value.Value, error) {
	return r.eval.ApplyClosure(ctx, clo, args)
}
