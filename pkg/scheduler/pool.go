// Package scheduler implements SPIRAL's cooperative task pool: the
// collaborator eval.Scheduler and registry.Runtime both describe.
// Despite running each task on a real goroutine, the pool preserves
// single-threaded-semantics determinism at the points the specification
// actually requires it (the effect log's total order, the shared step
// budget) while letting Go's scheduler interleave everything else
// freely — grounded on the teacher's worker-pool fan-out in
// pkg/engine.DAGExecutor.executeWave (semaphore-bounded goroutines
// joined by a WaitGroup), generalized from "one wave of a DAG" to
// "arbitrarily many concurrently spawned tasks with futures".
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hybscloud/spiral/pkg/logging"
	"github.com/hybscloud/spiral/pkg/spiralerr"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/tracing"
	"github.com/hybscloud/spiral/pkg/value"
)

type task struct {
	id     string
	done   chan struct{}
	result value.Value
	err    error
}

// Pool is a single document evaluation's task scheduler: every task
// spawned by `spawn`, `par`, or `race` during that run shares this one
// Pool, its step Budget, and (via the caller) its effect log.
type Pool struct {
	mu     sync.Mutex
	tasks  map[string]*task
	sem    *semaphore.Weighted
	steps  *stepbudget.Budget
	logger *logging.Logger
	tracer trace.Tracer
}

// New returns a Pool bounding concurrent task execution to maxInFlight
// goroutines (0 or negative means unbounded) and charging every task
// step against budget.
func New(budget *stepbudget.Budget, maxInFlight int) *Pool {
	if maxInFlight <= 0 {
		maxInFlight = 1 << 20
	}
	return &Pool{
		tasks:  make(map[string]*task),
		sem:    semaphore.NewWeighted(int64(maxInFlight)),
		steps:  budget,
		logger: logging.Default(),
	}
}

// WithLogger returns p with its logger replaced, for a host that wants
// task lifecycle events attributed to a particular run.
func (p *Pool) WithLogger(l *logging.Logger) *Pool {
	p.logger = l
	return p
}

// WithTracer returns p with its tracer set, so every task spawned
// afterward gets a span covering its lifecycle. A nil tracer (the
// default) means spans are skipped via tracing.StartSpan's own no-op
// fallback.
func (p *Pool) WithTracer(t trace.Tracer) *Pool {
	p.tracer = t
	return p
}

func (p *Pool) newTask() *task {
	t := &task{id: uuid.NewString(), done: make(chan struct{})}
	p.mu.Lock()
	p.tasks[t.id] = t
	p.mu.Unlock()
	return t
}

func (p *Pool) getTask(id string) *task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks[id]
}

// Spawn starts run on a new goroutine, gated by the pool's concurrency
// semaphore, and returns a pending future immediately.
func (p *Pool) Spawn(ctx context.Context, run func(ctx context.Context) (value.Value, error)) value.Value {
	t := p.newTask()
	p.logger.Debug("task spawned", "task_id", t.id)
	go func() {
		defer close(t.done)
		spanCtx, span := tracing.StartSpan(ctx, p.tracer, "scheduler.task")
		defer span.End()
		if err := p.sem.Acquire(spanCtx, 1); err != nil {
			t.err = err
			tracing.RecordError(spanCtx, err)
			return
		}
		defer p.sem.Release(1)
		t.result, t.err = run(spanCtx)
		if t.err != nil {
			p.logger.Debug("task failed", "task_id", t.id, "error", t.err)
			tracing.RecordError(spanCtx, t.err)
		} else {
			p.logger.Debug("task resolved", "task_id", t.id)
		}
	}()
	return value.Future(t.id, value.FuturePending)
}

// Await blocks until future's backing task completes, or ctx ends
// first.
func (p *Pool) Await(ctx context.Context, future value.Value) (value.Value, error) {
	ref, ok := future.AsFuture()
	if !ok {
		return value.Value{}, fmt.Errorf("scheduler: await operand is not a future")
	}
	t := p.getTask(ref.TaskID)
	if t == nil {
		return value.Value{}, fmt.Errorf("scheduler: unknown task %s", ref.TaskID)
	}
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}
}

// Par runs every branch concurrently, waits for all of them, and
// returns a list Value of their results in the original order. A
// branch's Go error (step-budget exhaustion, cancellation) cancels the
// remaining branches' shared context and aborts the whole call, via the
// same errgroup.Group join the teacher's executeWave hand-rolls with a
// WaitGroup and a first-error mutex; a branch's ordinary Value-level
// error simply occupies its slot in the result list.
func (p *Pool) Par(ctx context.Context, branches []func(ctx context.Context) (value.Value, error)) (value.Value, error) {
	if len(branches) == 0 {
		return value.List(nil), nil
	}
	results := make([]value.Value, len(branches))
	g, gctx := errgroup.WithContext(ctx)

	for i, branch := range branches {
		i, branch := i, branch
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return value.Value{}, err
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			v, err := branch(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return value.Value{}, err
	}
	return value.List(results), nil
}

// Race runs every branch concurrently and returns the first one to
// finish, cooperatively cancelling the rest via a shared context —
// "best-effort" because a branch already past its last cancellation
// check still runs to completion, it just never gets observed.
func (p *Pool) Race(ctx context.Context, branches []func(ctx context.Context) (value.Value, error)) (value.Value, error) {
	if len(branches) == 0 {
		return value.Value{}, spiralerr.New(spiralerr.KindDomainError, "race: requires at least one branch")
	}
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		v   value.Value
		err error
	}
	ch := make(chan outcome, len(branches))
	for _, branch := range branches {
		branch := branch
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return value.Value{}, err
		}
		go func() {
			defer p.sem.Release(1)
			v, err := branch(cctx)
			select {
			case ch <- outcome{v, err}:
			case <-cctx.Done():
			}
		}()
	}
	select {
	case out := <-ch:
		cancel()
		if out.err != nil {
			return value.Value{}, out.err
		}
		return out.v, nil
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}
}

// Select returns the value of whichever already-spawned future
// resolves first, preferring the lowest index among futures that are
// ready at the moment Select is called.
func (p *Pool) Select(ctx context.Context, futures []value.Value) (value.Value, error) {
	if len(futures) == 0 {
		return value.Value{}, spiralerr.New(spiralerr.KindDomainError, "select: requires at least one future")
	}
	tasks := make([]*task, len(futures))
	for i, f := range futures {
		ref, ok := f.AsFuture()
		if !ok {
			return value.Value{}, fmt.Errorf("scheduler: select operand %d is not a future", i)
		}
		t := p.getTask(ref.TaskID)
		if t == nil {
			return value.Value{}, fmt.Errorf("scheduler: unknown task %s", ref.TaskID)
		}
		tasks[i] = t
	}

	// Deterministic tie-break: a task already done at call time wins by
	// lowest index, before any concurrent fan-in race begins.
	for _, t := range tasks {
		select {
		case <-t.done:
			return t.result, t.err
		default:
		}
	}

	type outcome struct {
		idx int
		v   value.Value
		err error
	}
	ch := make(chan outcome, len(tasks))
	for i, t := range tasks {
		i, t := i, t
		go func() {
			select {
			case <-t.done:
				select {
				case ch <- outcome{i, t.result, t.err}:
				default:
				}
			case <-ctx.Done():
			}
		}()
	}
	select {
	case out := <-ch:
		if out.err != nil {
			return value.Value{}, out.err
		}
		return out.v, nil
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}
}
