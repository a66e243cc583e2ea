package ir

import "github.com/hybscloud/spiral/pkg/value"

// Expression is SPIRAL's expression sum type. Each layer (AIR, CIR, EIR,
// and the concurrent overlay) contributes variants; dispatch is by a
// type switch over the concrete struct, the idiomatic Go rendering of
// the specification's "discriminated switch that exhaustively covers
// variants" design note.
type Expression interface {
	exprNode()
}

// ---- AIR ----

type Lit struct {
	Type  value.Type
	Value value.Value
}

type Var struct{ Name string }

// Ref refers to another node's value by id, resolved through the
// orchestrator's node-value cache (evaluating the referenced node on
// demand if it is a bound node).
type Ref struct{ ID string }

type Call struct {
	Ns   string
	Name string
	Args []string // node-id references
}

type If struct {
	Cond, Then, Else string // node-id references
}

type Let struct {
	Name  string
	Value string // node-id reference
	Body  string // node-id reference; Body is a bound node
}

// AirRef invokes a top-level AIR function definition in a fresh,
// capture-avoiding environment.
type AirRef struct {
	Ns   string
	Name string
	Args []string
}

// Predicate constructs a tagged boolean marker value. Per the
// specification's open question, the marker always evaluates to
// bool(true); Name is preserved so a host collaborator can still
// distinguish which predicate produced a given true.
type Predicate struct {
	Name  string
	Value string // node-id reference, evaluated but only used for marker metadata
}

func (Lit) exprNode()       {}
func (Var) exprNode()       {}
func (Ref) exprNode()       {}
func (Call) exprNode()      {}
func (If) exprNode()        {}
func (Let) exprNode()       {}
func (AirRef) exprNode()    {}
func (Predicate) exprNode() {}

// ---- CIR ----

type Lambda struct {
	Params []string
	Body   string // node-id reference; Body is a bound node
	Type   value.Type
}

type CallExpr struct {
	Fn   string // node-id reference, must evaluate to a closure
	Args []string
}

// Fix ties a closure to itself: fn must be a single-parameter closure
// whose body may reference its own parameter recursively.
type Fix struct {
	Fn   string // node-id reference
	Type value.Type
}

func (Lambda) exprNode()   {}
func (CallExpr) exprNode() {}
func (Fix) exprNode()      {}

// ---- EIR ----

type Seq struct{ First, Then string }

type Assign struct {
	Target string // variable name, not a node-id
	Value  string // node-id reference
}

type While struct{ Cond, Body string }

type For struct {
	Var                     string
	Init, Cond, Update, Body string
}

type Iter struct {
	Var  string
	Iter string // node-id reference; must evaluate to list or set
	Body string
}

type Effect struct {
	Op   string
	Args []string
}

// RefCellExpr creates (or binds a handle to) a mutable cell under the
// name Target, which must already be bound in the environment.
type RefCellExpr struct{ Target string }

type Deref struct{ Target string }

type Try struct {
	TryBody    string
	CatchParam string
	CatchBody  string
	Fallback   string // node-id reference; empty if absent
}

func (Seq) exprNode()         {}
func (Assign) exprNode()      {}
func (While) exprNode()       {}
func (For) exprNode()         {}
func (Iter) exprNode()        {}
func (Effect) exprNode()      {}
func (RefCellExpr) exprNode() {}
func (Deref) exprNode()       {}
func (Try) exprNode()         {}

// ---- Concurrent overlay (EIR-async) ----

type Par struct{ Branches []string }

type Spawn struct{ Task string }

type Await struct{ Future string }

// ChannelExpr allocates a channel with an optional buffer size; BufSize
// < 0 means "absent" (defaults to 0, a rendezvous channel).
type ChannelExpr struct{ BufSize int }

type Send struct{ Channel, Value string }

type Recv struct{ Channel string }

// TrySend never blocks: it resolves to Bool(true) on immediate delivery,
// Bool(false) if no room/receiver was available, or ChannelClosed.
type TrySend struct{ Channel, Value string }

// TryRecv never blocks: it resolves to the received value, Void if none
// was ready, or ChannelClosed once the buffer is drained.
type TryRecv struct{ Channel string }

type Select struct{ Futures []string }

type Race struct{ Tasks []string }

func (Par) exprNode()         {}
func (Spawn) exprNode()       {}
func (Await) exprNode()       {}
func (ChannelExpr) exprNode() {}
func (Send) exprNode()        {}
func (Recv) exprNode()        {}
func (TrySend) exprNode()     {}
func (TryRecv) exprNode()     {}
func (Select) exprNode()      {}
func (Race) exprNode()        {}
