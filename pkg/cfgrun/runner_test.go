package cfgrun_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybscloud/spiral/pkg/cfgrun"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/registry/exprops"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/value"
)

func newTestRunner(t *testing.T) *cfgrun.Runner {
	reg := registry.New()
	exprops.RegisterDefaults(reg)
	return &cfgrun.Runner{
		Registry: reg,
		Steps:    stepbudget.New(1000),
		TaskID:   "test",
	}
}

// TestUnknownOperatorHaltsBlock verifies that an instruction producing
// an error value stops the block immediately rather than letting later
// instructions run with stale/zero vars.
func TestUnknownOperatorHaltsBlock(t *testing.T) {
	r := newTestRunner(t)
	region := &ir.Region{
		EntryID: "b0",
		Blocks: []*ir.Block{
			{
				ID: "b0",
				Instructions: []ir.Instruction{
					ir.InstrOp{Ns: "bogus", Name: "nope", Target: "x"},
					ir.InstrPhi{Target: "y", Sources: map[string]string{"": "x"}},
				},
				Terminator: ir.TermReturn{Value: "y"},
			},
		},
	}
	v, err := r.Run(context.Background(), region, nil)
	require.NoError(t, err)
	require.True(t, v.IsError(), "block should halt with the operator's error value, not reach the terminator")
	ev, ok := v.AsError()
	require.True(t, ok)
	assert.Equal(t, "UnknownOperator", ev.Kind)
}

// TestArityErrorHaltsBlock exercises the same short-circuit for an
// operator invoked with the wrong number of arguments.
func TestArityErrorHaltsBlock(t *testing.T) {
	r := newTestRunner(t)
	region := &ir.Region{
		EntryID: "b0",
		Blocks: []*ir.Block{
			{
				ID: "b0",
				Instructions: []ir.Instruction{
					ir.InstrOp{Ns: "core", Name: "add", Target: "x", Args: []string{}},
				},
				Terminator: ir.TermReturn{Value: "x"},
			},
		},
	}
	v, err := r.Run(context.Background(), region, nil)
	require.NoError(t, err)
	require.True(t, v.IsError())
	ev, _ := v.AsError()
	assert.Equal(t, "ArityError", ev.Kind)
}

// TestBlockRunsToCompletionWhenNoInstructionErrors is the control case:
// every instruction succeeds, so the terminator's own value wins.
func TestBlockRunsToCompletionWhenNoInstructionErrors(t *testing.T) {
	r := newTestRunner(t)
	doc := &ir.Document{
		Nodes: []*ir.Node{
			{ID: "lit2", Expr: ir.Lit{Type: value.TInt(), Value: value.Int(2)}},
			{ID: "lit3", Expr: ir.Lit{Type: value.TInt(), Value: value.Int(3)}},
		},
	}
	r.Doc = doc
	r.Evaluator = nil // the block below holds only an InstrOp, which needs no evaluator
	region := &ir.Region{
		EntryID: "b0",
		Blocks: []*ir.Block{
			{
				ID: "b0",
				Instructions: []ir.Instruction{
					ir.InstrOp{Ns: "core", Name: "add", Target: "sum", Args: []string{"a", "b"}},
				},
				Terminator: ir.TermReturn{Value: "sum"},
			},
		},
	}
	v, err := r.Run(context.Background(), region, map[string]value.Value{"a": value.Int(2), "b": value.Int(3)})
	require.NoError(t, err)
	require.False(t, v.IsError())
	i, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(5), i)
}
