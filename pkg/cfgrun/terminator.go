package cfgrun

import (
	"context"
	"fmt"
	"sync"

	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/spiralerr"
	"github.com/hybscloud/spiral/pkg/value"
)

// execTerm dispatches block's terminator. It returns either a next
// block id to continue at (done == false) or a final result
// (done == true) ending the whole Run.
func (r *Runner) execTerm(ctx context.Context, region *ir.Region, term ir.Terminator, vars map[string]value.Value, blockID string) (next string, result value.Value, done bool, err error) {
	switch t := term.(type) {
	case ir.TermJump:
		return t.To, value.Value{}, false, nil

	case ir.TermBranch:
		cond, ok := vars[t.Cond]
		if !ok {
			return "", errValue(spiralerr.KindUnboundIdentifier, "branch: unbound variable: "+t.Cond), true, nil
		}
		b, ok := cond.AsBool()
		if !ok {
			return "", errValue(spiralerr.KindTypeError, "branch: condition must be bool"), true, nil
		}
		if b {
			return t.Then, value.Value{}, false, nil
		}
		return t.Else, value.Value{}, false, nil

	case ir.TermReturn:
		if t.Value == "" {
			return "", value.Void(), true, nil
		}
		return "", vars[t.Value], true, nil

	case ir.TermExit:
		if t.Code == "" {
			return "", value.Void(), true, nil
		}
		return "", vars[t.Code], true, nil

	case ir.TermFork:
		return r.execFork(ctx, region, t, vars)

	case ir.TermJoin:
		for i, taskVar := range t.Tasks {
			fut, ok := vars[taskVar]
			if !ok {
				return "", errValue(spiralerr.KindUnboundIdentifier, "join: unbound task variable: "+taskVar), true, nil
			}
			v, awaitErr := r.Scheduler.Await(ctx, fut)
			if awaitErr != nil {
				return "", value.Value{}, true, awaitErr
			}
			if t.Results != nil && i < len(t.Results) {
				vars[t.Results[i]] = v
			}
		}
		return t.To, value.Value{}, false, nil

	case ir.TermSuspend:
		fut, ok := vars[t.Future]
		if !ok {
			return "", errValue(spiralerr.KindUnboundIdentifier, "suspend: unbound future variable: "+t.Future), true, nil
		}
		if _, awaitErr := r.Scheduler.Await(ctx, fut); awaitErr != nil {
			return "", value.Value{}, true, awaitErr
		}
		return t.ResumeBlock, value.Value{}, false, nil

	default:
		return "", value.Value{}, true, fmt.Errorf("cfgrun: unhandled terminator type %T", term)
	}
}

// execFork runs every branch's block as an independent sub-run of the
// same region, each against its own snapshot of vars so concurrent
// branches never race on the shared map, then blocks until every branch
// reaches its own terminal instruction before continuing at
// Continuation — a synchronous parallel barrier, distinct from
// InstrSpawn + TermJoin's asynchronous spawn-now/await-later pattern.
func (r *Runner) execFork(ctx context.Context, region *ir.Region, t ir.TermFork, vars map[string]value.Value) (next string, result value.Value, done bool, err error) {
	var wg sync.WaitGroup
	errs := make([]error, len(t.Branches))
	for i, branch := range t.Branches {
		i, branch := i, branch
		snapshot := make(map[string]value.Value, len(vars))
		for k, v := range vars {
			snapshot[k] = v
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, runErr := r.runFrom(ctx, region, branch.BlockID, snapshot)
			errs[i] = runErr
		}()
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return "", value.Value{}, true, e
		}
	}
	return t.Continuation, value.Value{}, false, nil
}
