// Package cfgrun implements the LIR block-stepping machine: a run of a
// Region steps from its entry block through instructions and a single
// terminator per block, mutating a flat variable table and the shared
// ref-cell store/effect log/step budget, until a terminator ends the
// run. Grounded on the teacher's pkg/engine.DAGExecutor.executeWave /
// executeNode loop (resolve a node's inputs from already-computed
// state, dispatch by node kind, write the result back), generalized
// from "one DAG node per step" to "one CFG instruction per step" with
// an explicit terminator dispatch for control flow and the concurrent
// overlay's fork/join/suspend.
package cfgrun

import (
	"context"
	"fmt"

	"github.com/hybscloud/spiral/pkg/efflog"
	"github.com/hybscloud/spiral/pkg/env"
	"github.com/hybscloud/spiral/pkg/eval"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/scheduler"
	"github.com/hybscloud/spiral/pkg/spiralerr"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/value"
)

// Runner executes one Region. Evaluator resolves every expression
// node-id an instruction references (InstrAssign.Value,
// InstrAssignRef.Value, InstrSpawn.Task); Registry/Scheduler back
// InstrOp/InstrEffect/InstrChannelOp/InstrAwait directly, since those
// operate on already-evaluated CFG variables rather than node-ids.
type Runner struct {
	Doc       *ir.Document
	Registry  *registry.Registry
	Cells     *env.CellStore
	Steps     *stepbudget.Budget
	Effects   *efflog.Log
	Evaluator *eval.Evaluator
	Scheduler *scheduler.Pool
	TaskID    string
}

func errValue(kind spiralerr.Kind, msg string) value.Value {
	return value.Error(string(kind), msg, nil)
}

// Run executes region starting at its entry block with the given
// initial variable bindings (typically the block-node's captured
// parameters) and returns the value produced by whichever terminator
// ends the run.
func (r *Runner) Run(ctx context.Context, region *ir.Region, initial map[string]value.Value) (value.Value, error) {
	vars := make(map[string]value.Value, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return r.runFrom(ctx, region, region.EntryID, vars)
}

func (r *Runner) runFrom(ctx context.Context, region *ir.Region, startBlockID string, vars map[string]value.Value) (value.Value, error) {
	blockID := startBlockID
	pred := ""
	for {
		if err := ctx.Err(); err != nil {
			return value.Value{}, err
		}
		block := region.BlockByID(blockID)
		if block == nil {
			return value.Value{}, fmt.Errorf("cfgrun: unknown block %q", blockID)
		}
		for _, instr := range block.Instructions {
			if err := r.Steps.Increment(); err != nil {
				return value.Value{}, err
			}
			errVal, err := r.execInstr(ctx, instr, vars, pred)
			if err != nil {
				return value.Value{}, err
			}
			if errVal.IsError() {
				return errVal, nil
			}
		}
		next, result, done, err := r.execTerm(ctx, region, block.Terminator, vars, blockID)
		if err != nil {
			return value.Value{}, err
		}
		if done {
			return result, nil
		}
		pred = blockID
		blockID = next
	}
}

// execInstr runs one instruction. Its Value return is the value the
// instruction produced (the zero Value for instructions that produce
// none); when that value is an error it must terminate the block
// immediately (spec: "any error value produced by an instruction
// terminates the block with that error") — callers must check
// IsError() on it before continuing to the next instruction. Its error
// return is reserved for hard aborts (host exceptions, cancellation)
// that unwind past the block entirely rather than resolving to a value.
func (r *Runner) execInstr(ctx context.Context, instr ir.Instruction, vars map[string]value.Value, pred string) (value.Value, error) {
	switch in := instr.(type) {
	case ir.InstrAssign:
		v, err := r.Evaluator.EvalNode(ctx, in.Value, env.FromVars(vars))
		if err != nil {
			return value.Value{}, err
		}
		vars[in.Target] = v
		return v, nil

	case ir.InstrCall:
		fnVal, ok := vars[in.Fn]
		if !ok {
			v := errValue(spiralerr.KindUnboundIdentifier, "unbound variable: "+in.Fn)
			vars[in.Target] = v
			return v, nil
		}
		clo, ok := fnVal.AsClosure()
		if !ok {
			v := errValue(spiralerr.KindTypeError, "call: fn must be a closure")
			vars[in.Target] = v
			return v, nil
		}
		args := make([]value.Value, len(in.Args))
		for i, name := range in.Args {
			args[i] = vars[name]
		}
		v, err := r.Evaluator.ApplyClosure(ctx, clo, args)
		if err != nil {
			return value.Value{}, err
		}
		vars[in.Target] = v
		return v, nil

	case ir.InstrOp:
		rec, ok := r.Registry.LookupOperator(in.Ns, in.Name)
		if !ok {
			v := errValue(spiralerr.KindUnknownOperator, "unknown operator: "+in.Ns+":"+in.Name)
			vars[in.Target] = v
			return v, nil
		}
		args := make([]value.Value, len(in.Args))
		for i, name := range in.Args {
			args[i] = vars[name]
		}
		if err := rec.CheckArity(len(args)); err != nil {
			v := errValue(spiralerr.KindArityError, err.Error())
			vars[in.Target] = v
			return v, nil
		}
		v := rec.Op(args)
		vars[in.Target] = v
		return v, nil

	case ir.InstrPhi:
		srcVar, ok := in.Sources[pred]
		if !ok {
			v := errValue(spiralerr.KindDomainError, "phi: no source for predecessor "+pred)
			vars[in.Target] = v
			return v, nil
		}
		v := vars[srcVar]
		vars[in.Target] = v
		return v, nil

	case ir.InstrEffect:
		ns, name := splitOp(in.Op)
		rec, ok := r.Registry.LookupEffect(ns, name)
		if !ok {
			v := errValue(spiralerr.KindUnknownOperator, "unknown effect: "+in.Op)
			vars[in.Target] = v
			return v, nil
		}
		args := make([]value.Value, len(in.Args))
		for i, name := range in.Args {
			args[i] = vars[name]
		}
		if err := rec.CheckArity(len(args)); err != nil {
			v := errValue(spiralerr.KindArityError, err.Error())
			vars[in.Target] = v
			return v, nil
		}
		result, err := rec.Effect(ctx, r.Evaluator.Runtime(ctx), args)
		if err != nil {
			return value.Value{}, err
		}
		if r.Effects != nil {
			r.Effects.Append(r.TaskID, in.Op, args, result)
		}
		vars[in.Target] = result
		return result, nil

	case ir.InstrAssignRef:
		v, err := r.Evaluator.EvalNode(ctx, in.Value, env.FromVars(vars))
		if err != nil {
			return value.Value{}, err
		}
		r.Cells.Set(in.Target, v)
		return value.Value{}, nil

	case ir.InstrSpawn:
		node := ir.NodeByID(r.Doc.Nodes, in.Task)
		if node == nil {
			return value.Value{}, fmt.Errorf("cfgrun: unknown task node %q", in.Task)
		}
		snapshot := make(map[string]value.Value, len(vars))
		for k, v := range vars {
			snapshot[k] = v
		}
		evaluator := r.Evaluator
		vars[in.Target] = r.Scheduler.Spawn(ctx, func(ctx context.Context) (value.Value, error) {
			return evaluator.Eval(ctx, node.Expr, env.FromVars(snapshot))
		})
		return value.Value{}, nil

	case ir.InstrChannelOp:
		return r.execChannelOp(ctx, in, vars)

	case ir.InstrAwait:
		future, ok := vars[in.Future]
		if !ok {
			v := errValue(spiralerr.KindUnboundIdentifier, "unbound variable: "+in.Future)
			vars[in.Target] = v
			return v, nil
		}
		v, err := r.Scheduler.Await(ctx, future)
		if err != nil {
			return value.Value{}, err
		}
		vars[in.Target] = v
		return v, nil

	default:
		return value.Value{}, fmt.Errorf("cfgrun: unhandled instruction type %T", instr)
	}
}

func (r *Runner) execChannelOp(ctx context.Context, in ir.InstrChannelOp, vars map[string]value.Value) (value.Value, error) {
	switch in.Op {
	case ir.ChanCreate:
		vars[in.Target] = r.Scheduler.NewChannel(in.BufSize)
	case ir.ChanSend:
		v, err := r.Scheduler.Send(ctx, vars[in.Channel], vars[in.Value])
		if err != nil {
			return value.Value{}, err
		}
		if v.IsError() {
			return v, nil
		}
	case ir.ChanRecv:
		v, err := r.Scheduler.Recv(ctx, vars[in.Channel])
		if err != nil {
			return value.Value{}, err
		}
		vars[in.Target] = v
		return v, nil
	case ir.ChanTrySend:
		v, err := r.Scheduler.TrySend(vars[in.Channel], vars[in.Value])
		if err != nil {
			return value.Value{}, err
		}
		if in.Target != "" {
			vars[in.Target] = v
		}
		if v.IsError() {
			return v, nil
		}
	case ir.ChanTryRecv:
		v, err := r.Scheduler.TryRecv(vars[in.Channel])
		if err != nil {
			return value.Value{}, err
		}
		vars[in.Target] = v
		if v.IsError() {
			return v, nil
		}
	case ir.ChanClose:
		v := scheduler.CloseChannel(vars[in.Channel])
		if v.IsError() {
			return v, nil
		}
	default:
		return value.Value{}, fmt.Errorf("cfgrun: unhandled channel op %v", in.Op)
	}
	return value.Value{}, nil
}

func splitOp(op string) (ns, name string) {
	for i := 0; i < len(op); i++ {
		if op[i] == ':' {
			return op[:i], op[i+1:]
		}
	}
	return "", op
}
