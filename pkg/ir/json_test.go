package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybscloud/spiral/pkg/ir"
)

func TestDecodeDocumentAIR(t *testing.T) {
	doc, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [
			{"id": "a", "kind": "lit", "type": {"kind": "int"}, "literal": 2},
			{"id": "b", "kind": "lit", "type": {"kind": "int"}, "literal": 3},
			{"id": "sum", "kind": "call", "ns": "core", "name": "add", "args": ["a", "b"]}
		],
		"result": "sum"
	}`))
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	assert.Len(t, doc.Nodes, 3)
	sum := ir.NodeByID(doc.Nodes, "sum")
	require.NotNil(t, sum)
	call, ok := sum.Expr.(ir.Call)
	require.True(t, ok)
	assert.Equal(t, "core", call.Ns)
	assert.Equal(t, "add", call.Name)
	assert.Equal(t, []string{"a", "b"}, call.Args)
}

func TestDecodeDocumentSeqUsesFirstKeyNotValue(t *testing.T) {
	doc, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [
			{"id": "a", "kind": "lit", "type": {"kind": "int"}, "literal": 1},
			{"id": "b", "kind": "lit", "type": {"kind": "int"}, "literal": 2},
			{"id": "joined", "kind": "seq", "first": "a", "then": "b"}
		],
		"result": "joined"
	}`))
	require.NoError(t, err)

	joined := ir.NodeByID(doc.Nodes, "joined")
	require.NotNil(t, joined)
	seq, ok := joined.Expr.(ir.Seq)
	require.True(t, ok)
	assert.Equal(t, "a", seq.First)
	assert.Equal(t, "b", seq.Then)
}

func TestDecodeDocumentChannelBufSizeDefaultsToAbsent(t *testing.T) {
	doc, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [
			{"id": "ch", "kind": "channel"}
		],
		"result": "ch"
	}`))
	require.NoError(t, err)
	ch, ok := ir.NodeByID(doc.Nodes, "ch").Expr.(ir.ChannelExpr)
	require.True(t, ok)
	assert.Equal(t, -1, ch.BufSize)
}

func TestDecodeDocumentChannelRespectsBufSize(t *testing.T) {
	doc, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [
			{"id": "ch", "kind": "channel", "bufSize": 4}
		],
		"result": "ch"
	}`))
	require.NoError(t, err)
	ch, ok := ir.NodeByID(doc.Nodes, "ch").Expr.(ir.ChannelExpr)
	require.True(t, ok)
	assert.Equal(t, 4, ch.BufSize)
}

func TestDecodeDocumentBlockRegion(t *testing.T) {
	doc, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [
			{
				"id": "cfg",
				"kind": "block",
				"entryId": "entry",
				"blocks": [
					{
						"id": "entry",
						"instructions": [
							{"kind": "op", "ns": "core", "name": "add", "target": "t0", "args": ["a", "b"]}
						],
						"terminator": {"kind": "return", "value": "t0"}
					}
				]
			}
		],
		"result": "cfg"
	}`))
	require.NoError(t, err)

	node := ir.NodeByID(doc.Nodes, "cfg")
	require.NotNil(t, node)
	require.True(t, node.IsBlock)
	require.NotNil(t, node.Block)
	assert.Equal(t, "entry", node.Block.EntryID)

	entry := node.Block.BlockByID("entry")
	require.NotNil(t, entry)
	require.Len(t, entry.Instructions, 1)
	op, ok := entry.Instructions[0].(ir.InstrOp)
	require.True(t, ok)
	assert.Equal(t, "add", op.Name)

	ret, ok := entry.Terminator.(ir.TermReturn)
	require.True(t, ok)
	assert.Equal(t, "t0", ret.Value)
}

func TestDecodeDocumentForkJoin(t *testing.T) {
	doc, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [
			{
				"id": "cfg",
				"kind": "block",
				"entryId": "entry",
				"blocks": [
					{
						"id": "entry",
						"terminator": {
							"kind": "fork",
							"continuation": "after",
							"branches": [
								{"taskId": "t1", "blockId": "branchA"},
								{"taskId": "t2", "blockId": "branchB"}
							]
						}
					},
					{"id": "branchA", "terminator": {"kind": "exit"}},
					{"id": "branchB", "terminator": {"kind": "exit"}},
					{
						"id": "after",
						"terminator": {"kind": "join", "tasks": ["t1", "t2"], "results": ["r1", "r2"], "to": "done"}
					},
					{"id": "done", "terminator": {"kind": "return", "value": "r1"}}
				]
			}
		],
		"result": "cfg"
	}`))
	require.NoError(t, err)

	entry := doc.Nodes[0].Block.BlockByID("entry")
	fork, ok := entry.Terminator.(ir.TermFork)
	require.True(t, ok)
	require.Len(t, fork.Branches, 2)
	assert.Equal(t, "branchA", fork.Branches[0].BlockID)
	assert.Equal(t, "after", fork.Continuation)

	after := doc.Nodes[0].Block.BlockByID("after")
	join, ok := after.Terminator.(ir.TermJoin)
	require.True(t, ok)
	assert.Equal(t, []string{"t1", "t2"}, join.Tasks)
	assert.Equal(t, "done", join.To)
}

func TestDecodeDocumentUnknownNodeKindErrors(t *testing.T) {
	_, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [{"id": "x", "kind": "bogus"}],
		"result": "x"
	}`))
	assert.Error(t, err)
}

func TestDecodeDocumentRejectsMissingResult(t *testing.T) {
	doc, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [{"id": "x", "kind": "lit", "type": {"kind": "int"}, "literal": 1}],
		"result": "missing"
	}`))
	require.NoError(t, err)
	assert.Error(t, doc.Validate())
}
