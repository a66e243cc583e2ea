package eval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybscloud/spiral/pkg/efflog"
	"github.com/hybscloud/spiral/pkg/env"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/orchestrator"
	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/registry/exprops"
	"github.com/hybscloud/spiral/pkg/scheduler"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/value"
)

func litNode(id string, v value.Value, t value.Type) *ir.Node {
	return &ir.Node{ID: id, Expr: ir.Lit{Type: t, Value: v}}
}

func exprNode(id string, e ir.Expression) *ir.Node {
	return &ir.Node{ID: id, Expr: e}
}

func newRuntime(t *testing.T, doc *ir.Document, maxSteps int64) (*orchestrator.Orchestrator, context.Context) {
	reg := registry.New()
	exprops.RegisterDefaults(reg)
	scheduler.RegisterConcurrencyEffects(reg)
	cells := env.NewCellStore()
	budget := stepbudget.New(maxSteps)
	effects := efflog.New()
	pool := scheduler.New(budget, 8)
	o := orchestrator.New(doc, reg, cells, budget, effects, pool)
	return o, context.Background()
}

func TestArithmeticOverAIR(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			litNode("a", value.Int(2), value.TInt()),
			litNode("b", value.Int(3), value.TInt()),
			exprNode("sum", ir.Call{Ns: "core", Name: "add", Args: []string{"a", "b"}}),
		},
		Result: "sum",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(5), i)
}

func TestConditionalOverCIR(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			litNode("cond", value.Bool(true), value.TBool()),
			litNode("then", value.Int(1), value.TInt()),
			litNode("else", value.Int(2), value.TInt()),
			exprNode("choice", ir.If{Cond: "cond", Then: "then", Else: "else"}),
		},
		Result: "choice",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(1), i)
}

func TestClosureCallExpr(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			litNode("one", value.Int(1), value.TInt()),
			exprNode("paramRef", ir.Var{Name: "x"}),
			exprNode("body", ir.Call{Ns: "core", Name: "add", Args: []string{"paramRef", "one"}}),
			exprNode("fn", ir.Lambda{Params: []string{"x"}, Body: "body"}),
			litNode("arg", value.Int(41), value.TInt()),
			exprNode("call", ir.CallExpr{Fn: "fn", Args: []string{"arg"}}),
		},
		Result: "call",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(42), i)
}

// TestWhileLoopSum sums 0..4 via an EIR while loop, using ordinary
// `assign`-mutated environment variables (acc, i) rather than ref-cells
// — `assign` targets a variable name directly, matching the monotonic
// tip-frame contract pkg/env.Env.Assign implements.
func TestWhileLoopSum(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			litNode("zero", value.Int(0), value.TInt()),
			exprNode("acc", ir.Let{Name: "acc", Value: "zero", Body: "idxLet"}),
			litNode("zeroIdx", value.Int(0), value.TInt()),
			exprNode("idxLet", ir.Let{Name: "i", Value: "zeroIdx", Body: "loopThenAcc"}),

			exprNode("iVar", ir.Var{Name: "i"}),
			litNode("bound", value.Int(5), value.TInt()),
			exprNode("cond2", ir.Call{Ns: "core", Name: "lt", Args: []string{"iVar", "bound"}}),

			exprNode("accVar", ir.Var{Name: "acc"}),
			exprNode("addStep", ir.Call{Ns: "core", Name: "add", Args: []string{"accVar", "iVar"}}),
			exprNode("assignAcc", ir.Assign{Target: "acc", Value: "addStep"}),

			litNode("one2", value.Int(1), value.TInt()),
			exprNode("nextI", ir.Call{Ns: "core", Name: "add", Args: []string{"iVar", "one2"}}),
			exprNode("assignI", ir.Assign{Target: "i", Value: "nextI"}),

			exprNode("body2", ir.Seq{First: "assignAcc", Then: "assignI"}),
			exprNode("loop", ir.While{Cond: "cond2", Body: "body2"}),
			exprNode("finalAcc", ir.Var{Name: "acc"}),
			exprNode("loopThenAcc", ir.Seq{First: "loop", Then: "finalAcc"}),
		},
		Result: "acc",
	}
	o, ctx := newRuntime(t, doc, 10000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok, "expected int, got %s", v.String())
	assert.Equal(t, int64(0+1+2+3+4), i)
}

func TestTryCatchDivideByZero(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			litNode("ten", value.Int(10), value.TInt()),
			litNode("zero", value.Int(0), value.TInt()),
			exprNode("divExpr", ir.Call{Ns: "core", Name: "div", Args: []string{"ten", "zero"}}),
			litNode("fallback", value.Int(-1), value.TInt()),
			exprNode("guarded", ir.Try{TryBody: "divExpr", CatchParam: "e", CatchBody: "fallback"}),
		},
		Result: "guarded",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(-1), i)
}

func TestTryFallbackRunsAfterCatch(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			litNode("ten", value.Int(10), value.TInt()),
			litNode("zero", value.Int(0), value.TInt()),
			exprNode("divExpr", ir.Call{Ns: "core", Name: "div", Args: []string{"ten", "zero"}}),
			litNode("caught", value.Int(-1), value.TInt()),
			litNode("fallback", value.Int(99), value.TInt()),
			exprNode("guarded", ir.Try{TryBody: "divExpr", CatchParam: "e", CatchBody: "caught", Fallback: "fallback"}),
		},
		Result: "guarded",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(99), i, "fallback must run and override catchBody's result")
}

func TestTryFallbackRunsAfterSuccess(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			litNode("ok", value.Int(7), value.TInt()),
			litNode("fallback", value.Int(42), value.TInt()),
			exprNode("guarded", ir.Try{TryBody: "ok", Fallback: "fallback"}),
		},
		Result: "guarded",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(42), i, "fallback must run and override a successful tryBody's result")
}

func TestUnboundIdentifierIsValueError(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			exprNode("missing", ir.Var{Name: "nope"}),
		},
		Result: "missing",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	require.True(t, v.IsError())
	ev, _ := v.AsError()
	assert.Equal(t, "UnboundIdentifier", ev.Kind)
}

func TestZeroMaxStepsAborts(t *testing.T) {
	doc := &ir.Document{
		Nodes:  []*ir.Node{litNode("x", value.Int(1), value.TInt())},
		Result: "x",
	}
	o, ctx := newRuntime(t, doc, 0)
	_, err := o.Execute(ctx)
	require.Error(t, err)
}

func TestParCollectsAllBranchResults(t *testing.T) {
	doc := &ir.Document{
		Nodes: []*ir.Node{
			litNode("b1", value.Int(1), value.TInt()),
			litNode("b2", value.Int(2), value.TInt()),
			litNode("b3", value.Int(3), value.TInt()),
			exprNode("p", ir.Par{Branches: []string{"b1", "b2", "b3"}}),
		},
		Result: "p",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	lst, ok := v.AsList()
	require.True(t, ok)
	require.Len(t, lst, 3)
	for i, want := range []int64{1, 2, 3} {
		got, _ := lst[i].AsInt()
		assert.Equal(t, want, got)
	}
}

func TestChannelRendezvousSendRecv(t *testing.T) {
	// "ch" is bound into the environment by a Let so the ChannelExpr
	// constructs exactly once; both sendTask and recvd then dereference
	// the same channel value through the idempotent Var lookup "chVar"
	// rather than each re-evaluating a shared ChannelExpr node (which
	// would hand them two distinct, unconnected channels).
	doc := &ir.Document{
		Nodes: []*ir.Node{
			exprNode("chCreate", ir.ChannelExpr{BufSize: 0}),
			exprNode("chVar", ir.Var{Name: "ch"}),
			litNode("payload", value.String("ping"), value.TString()),
			exprNode("sendTask", ir.Send{Channel: "chVar", Value: "payload"}),
			exprNode("spawnSend", ir.Spawn{Task: "sendTask"}),
			exprNode("recvd", ir.Recv{Channel: "chVar"}),
			exprNode("afterLet", ir.Seq{First: "spawnSend", Then: "recvd"}),
			exprNode("letCh", ir.Let{Name: "ch", Value: "chCreate", Body: "afterLet"}),
		},
		Result: "letCh",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "ping", s)
}

func TestRecvOnClosedChannelReportsChannelClosed(t *testing.T) {
	// Same Let+Var indirection as the rendezvous test above: "ch" must
	// construct once so closeEff and recvd act on the same channel.
	doc := &ir.Document{
		Nodes: []*ir.Node{
			exprNode("chCreate", ir.ChannelExpr{BufSize: 1}),
			exprNode("chVar", ir.Var{Name: "ch"}),
			exprNode("closeEff", ir.Effect{Op: "chan:close", Args: []string{"chVar"}}),
			exprNode("recvd", ir.Recv{Channel: "chVar"}),
			exprNode("closeAndRecv", ir.Seq{First: "closeEff", Then: "recvd"}),
			exprNode("letCh", ir.Let{Name: "ch", Value: "chCreate", Body: "closeAndRecv"}),
		},
		Result: "letCh",
	}
	o, ctx := newRuntime(t, doc, 1000)
	v, err := o.Execute(ctx)
	require.NoError(t, err)
	require.True(t, v.IsError())
	ev, _ := v.AsError()
	assert.Equal(t, "ChannelClosed", ev.Kind)
}
