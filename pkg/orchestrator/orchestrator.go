// Package orchestrator ties eval, cfgrun, and scheduler together around
// one Document: it is SPIRAL's entry point, the collaborator that
// implements eval.Resolver's memoized top-level node resolution and
// decides, via a single pass over the document, which nodes are
// "bound" (only ever reached as the body of a let/if/lambda/loop/try/
// spawn/etc., evaluated directly and possibly more than once) versus
// top-level (evaluated once, in document order, and memoized for every
// `ref` that names them afterwards). Grounded on the teacher's
// pkg/engine.DAGExecutor.Execute: BuildDAG + TopologicalSort +
// executeWave, generalized from "topological waves of independent DAG
// nodes" to "document order with on-demand lazy resolution for bound
// nodes", since SPIRAL's node graph is not acyclic by construction the
// way the teacher's workflow DAG is — cyclic `ref` chains are instead
// rejected at resolution time as CyclicReference.
package orchestrator

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hybscloud/spiral/pkg/cfgrun"
	"github.com/hybscloud/spiral/pkg/efflog"
	"github.com/hybscloud/spiral/pkg/env"
	"github.com/hybscloud/spiral/pkg/eval"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/logging"
	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/scheduler"
	"github.com/hybscloud/spiral/pkg/spiralerr"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/tracing"
	"github.com/hybscloud/spiral/pkg/value"
)

// Orchestrator runs a single Document end to end.
type Orchestrator struct {
	Doc       *ir.Document
	Registry  *registry.Registry
	Cells     *env.CellStore
	Steps     *stepbudget.Budget
	Effects   *efflog.Log
	Scheduler *scheduler.Pool
	Logger    *logging.Logger
	Tracer    trace.Tracer

	evaluator *eval.Evaluator
	cfgRunner *cfgrun.Runner
	bound     map[string]bool

	mu        sync.Mutex
	nodeValues map[string]value.Value
	resolved   map[string]bool
	resolving  map[string]bool
}

// New wires an Evaluator and a cfgrun.Runner to o (as eval.Resolver),
// shares the registry/cells/steps/effects/scheduler across both, and
// precomputes the document's bound-node set.
func New(doc *ir.Document, reg *registry.Registry, cells *env.CellStore, steps *stepbudget.Budget, effects *efflog.Log, sched *scheduler.Pool) *Orchestrator {
	o := &Orchestrator{
		Doc: doc, Registry: reg, Cells: cells, Steps: steps, Effects: effects, Scheduler: sched,
		Logger:     logging.Default(),
		nodeValues: make(map[string]value.Value),
		resolved:   make(map[string]bool),
		resolving:  make(map[string]bool),
	}
	o.bound = collectBoundIDs(doc)

	var schedIface eval.Scheduler
	if sched != nil {
		schedIface = sched
	}
	o.evaluator = eval.New(doc, reg, cells, steps, effects, o, schedIface, "main")
	o.cfgRunner = &cfgrun.Runner{
		Doc: doc, Registry: reg, Cells: cells, Steps: steps, Effects: effects,
		Evaluator: o.evaluator, Scheduler: sched, TaskID: "main",
	}
	return o
}

// WithTracer returns o with its tracer set, covering node evaluation
// with spans, and propagates the same tracer to o's Scheduler so
// spawned task lifecycles are covered too.
func (o *Orchestrator) WithTracer(t trace.Tracer) *Orchestrator {
	o.Tracer = t
	if o.Scheduler != nil {
		o.Scheduler.WithTracer(t)
	}
	return o
}

// Execute validates the document, evaluates every non-bound node in
// document order (memoizing each as it goes), and returns the value of
// the node named by Result — resolving it on demand first if its
// position in Nodes happens to come after some other node that
// transitively `ref`s it forward.
func (o *Orchestrator) Execute(ctx context.Context) (value.Value, error) {
	if err := o.Doc.Validate(); err != nil {
		return value.Value{}, err
	}
	for _, n := range o.Doc.Nodes {
		if o.bound[n.ID] {
			continue
		}
		if _, err := o.ResolveNode(ctx, n.ID); err != nil {
			return value.Value{}, err
		}
	}
	return o.ResolveNode(ctx, o.Doc.Result)
}

// ResolveNode implements eval.Resolver: resolve node id to its memoized
// value, evaluating it the first time it is reached and reusing that
// result for every subsequent call (including recursive re-entry from
// within the node's own evaluation through a `ref` cycle, which is
// rejected as CyclicReference rather than deadlocking or diverging).
func (o *Orchestrator) ResolveNode(ctx context.Context, id string) (value.Value, error) {
	o.mu.Lock()
	if v, ok := o.nodeValues[id]; ok {
		o.mu.Unlock()
		return v, nil
	}
	if o.resolving[id] {
		o.mu.Unlock()
		return value.Error(string(spiralerr.KindCyclicReference), "cyclic reference through node: "+id, nil), nil
	}
	o.resolving[id] = true
	o.mu.Unlock()

	o.Logger.WithNode(id).Debug("node evaluation started")
	v, err := o.evalNode(ctx, id)

	o.mu.Lock()
	delete(o.resolving, id)
	if err == nil {
		o.nodeValues[id] = v
		o.resolved[id] = true
	}
	o.mu.Unlock()

	if err != nil {
		o.Logger.WithNode(id).Warn("node evaluation failed", "error", err)
	} else if v.IsError() {
		o.Logger.WithNode(id).Debug("node evaluation completed with value error")
	} else {
		o.Logger.WithNode(id).Debug("node evaluation completed")
	}
	return v, err
}

func (o *Orchestrator) evalNode(ctx context.Context, id string) (value.Value, error) {
	ctx, span := tracing.StartSpan(ctx, o.Tracer, "orchestrator.node",
		trace.WithAttributes(attribute.String("spiral.node_id", id)))
	defer span.End()

	node := ir.NodeByID(o.Doc.Nodes, id)
	if node == nil {
		return value.Error(string(spiralerr.KindInvalidResultReference), "reference to non-existent node: "+id, nil), nil
	}
	if err := o.Steps.Increment(); err != nil {
		tracing.RecordError(ctx, err)
		return value.Value{}, err
	}
	var v value.Value
	var err error
	if node.IsBlock {
		v, err = o.cfgRunner.Run(ctx, node.Block, nil)
	} else {
		v, err = o.evaluator.Eval(ctx, node.Expr, env.New())
	}
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return v, err
}

// collectBoundIDs walks every expression node's reference fields
// (everything except `ref`, which is the one field meaning "look this
// up through the memoized top-level resolver") and every CFG
// instruction's expression-node-id fields, returning the set of node
// ids that must never be resolved through the top-level memo path.
func collectBoundIDs(doc *ir.Document) map[string]bool {
	bound := make(map[string]bool)
	mark := func(ids ...string) {
		for _, id := range ids {
			if id != "" {
				bound[id] = true
			}
		}
	}

	for _, def := range doc.AIRDefs {
		mark(def.Body)
	}

	for _, n := range doc.Nodes {
		if n.IsBlock {
			if n.Block == nil {
				continue
			}
			for _, b := range n.Block.Blocks {
				for _, instr := range b.Instructions {
					switch in := instr.(type) {
					case ir.InstrAssign:
						mark(in.Value)
					case ir.InstrAssignRef:
						mark(in.Value)
					case ir.InstrSpawn:
						mark(in.Task)
					}
				}
			}
			continue
		}
		switch e := n.Expr.(type) {
		case ir.Call:
			mark(e.Args...)
		case ir.If:
			mark(e.Cond, e.Then, e.Else)
		case ir.Let:
			mark(e.Value, e.Body)
		case ir.AirRef:
			mark(e.Args...)
		case ir.Predicate:
			mark(e.Value)
		case ir.Lambda:
			mark(e.Body)
		case ir.CallExpr:
			mark(e.Fn)
			mark(e.Args...)
		case ir.Fix:
			mark(e.Fn)
		case ir.Seq:
			mark(e.First, e.Then)
		case ir.Assign:
			mark(e.Value)
		case ir.While:
			mark(e.Cond, e.Body)
		case ir.For:
			mark(e.Init, e.Cond, e.Update, e.Body)
		case ir.Iter:
			mark(e.Iter, e.Body)
		case ir.Effect:
			mark(e.Args...)
		case ir.Try:
			mark(e.TryBody, e.CatchBody, e.Fallback)
		case ir.Par:
			mark(e.Branches...)
		case ir.Spawn:
			mark(e.Task)
		case ir.Await:
			mark(e.Future)
		case ir.Send:
			mark(e.Channel, e.Value)
		case ir.Recv:
			mark(e.Channel)
		case ir.TrySend:
			mark(e.Channel, e.Value)
		case ir.TryRecv:
			mark(e.Channel)
		case ir.Select:
			mark(e.Futures...)
		case ir.Race:
			mark(e.Tasks...)
		}
	}
	return bound
}
