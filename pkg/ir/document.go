// Package ir defines SPIRAL's document-level data model: the Document,
// its Nodes (expression nodes and CFG block-nodes), the Expression sum
// type spanning AIR/CIR/EIR and the concurrent overlay, and the CFG's
// Block/Instruction/Terminator types. This mirrors the teacher's
// pkg/models.Workflow/Node/Edge in shape — an exported struct per
// concept with a Validate() method — generalized from a workflow DAG of
// executor-typed nodes to SPIRAL's DAG of expression/CFG nodes.
package ir

import "github.com/hybscloud/spiral/pkg/value"

// Document is the top-level input to evaluation. Only the fields below
// are recognised; any other top-level field present in a host's parsed
// representation must be stripped before hashing/canonicalisation (see
// pkg/canon), per the specification's invariant that unknown fields
// never affect the content digest.
type Document struct {
	Version      string
	Capabilities []string
	FunctionSigs map[string]FunctionSig
	AIRDefs      map[string]AIRDef
	Nodes        []*Node
	Result       string
}

// FunctionSig describes an AIR-level function's parameter and result
// types, consulted by airRef for capture-avoiding argument binding.
type FunctionSig struct {
	Params []value.Type
	Result value.Type
}

// AIRDef is a top-level AIR function definition: a parameter list and a
// body node-id, evaluated in a fresh isolated environment on each
// airRef call.
type AIRDef struct {
	Params []string
	Body   string // node-id
}

// Node is one element of the document's node sequence. Exactly one of
// Expr or Block is set, discriminated by IsBlock.
type Node struct {
	ID      string
	IsBlock bool
	Expr    Expression // set when !IsBlock
	Block   *Region    // set when IsBlock
}

// Region is a block-node's owned CFG: an ordered list of blocks plus the
// entry block's id.
type Region struct {
	Blocks  []*Block
	EntryID string
}

// BlockByID returns the block with the given id, or nil.
func (r *Region) BlockByID(id string) *Block {
	for _, b := range r.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Validate checks document-level structural invariants: unique node ids,
// and that Result names an existing node. Reference resolution (every
// `ref`/`var`-adjacent id pointing at a real node) is checked lazily by
// the evaluator/orchestrator, since some references are only meaningful
// once bound-node status is known.
func (d *Document) Validate() error {
	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: "node.id", Message: "node ID is required"}
		}
		if seen[n.ID] {
			return &ValidationError{Field: "nodes", Message: "duplicate node id: " + n.ID}
		}
		seen[n.ID] = true
	}
	if d.Result == "" {
		return &ValidationError{Field: "result", Message: "result is required"}
	}
	if !seen[d.Result] {
		return &ValidationError{Field: "result", Message: "result references non-existent node: " + d.Result}
	}
	return nil
}

// ValidationError mirrors the teacher's pkg/models.ValidationError shape.
type ValidationError struct {
	Field   string
	Message string
}

func (v *ValidationError) Error() string { return v.Field + ": " + v.Message }

// NodeByID returns the node with the given id from a node slice, or nil.
func NodeByID(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
