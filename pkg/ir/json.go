package ir

import (
	"encoding/json"
	"fmt"

	"github.com/hybscloud/spiral/pkg/value"
)

// DecodeDocument parses a Document from its JSON wire format: a node's
// "kind" field discriminates which Expression variant (or, for kind
// "block", which CFG Region) its remaining fields populate. This is the
// only way a Document reaches spiralctl or spiral-server — both load
// raw bytes and call this, never construct a Document by hand.
func DecodeDocument(data []byte) (*Document, error) {
	var raw documentWire
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ir: decode document: %w", err)
	}

	doc := &Document{
		Version:      raw.Version,
		Capabilities: raw.Capabilities,
		Result:       raw.Result,
	}
	if len(raw.FunctionSigs) > 0 {
		doc.FunctionSigs = make(map[string]FunctionSig, len(raw.FunctionSigs))
		for name, sig := range raw.FunctionSigs {
			doc.FunctionSigs[name] = FunctionSig{Params: sig.Params, Result: sig.Result}
		}
	}
	if len(raw.AIRDefs) > 0 {
		doc.AIRDefs = make(map[string]AIRDef, len(raw.AIRDefs))
		for name, def := range raw.AIRDefs {
			doc.AIRDefs[name] = AIRDef{Params: def.Params, Body: def.Body}
		}
	}

	for _, rn := range raw.Nodes {
		n, err := rn.toNode()
		if err != nil {
			return nil, fmt.Errorf("ir: node %q: %w", rn.ID, err)
		}
		doc.Nodes = append(doc.Nodes, n)
	}
	return doc, nil
}

type documentWire struct {
	Version      string                    `json:"version"`
	Capabilities []string                  `json:"capabilities,omitempty"`
	FunctionSigs map[string]functionSigWire `json:"functionSigs,omitempty"`
	AIRDefs      map[string]airDefWire      `json:"airDefs,omitempty"`
	Nodes        []nodeWire                `json:"nodes"`
	Result       string                    `json:"result"`
}

type functionSigWire struct {
	Params []value.Type `json:"params,omitempty"`
	Result value.Type   `json:"result"`
}

type airDefWire struct {
	Params []string `json:"params,omitempty"`
	Body   string   `json:"body"`
}

// nodeWire carries every field any Expression variant or CFG Region
// might use; toNode reads only the subset relevant to Kind. The node's
// own "id" and "kind" never participate in a variant's own fields, so
// there is no collision between e.g. Ref's target id and the node's id.
type nodeWire struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	Type    *value.Type     `json:"type,omitempty"`
	Literal json.RawMessage `json:"literal,omitempty"`

	Name string `json:"name,omitempty"`
	Ref  string `json:"ref,omitempty"`

	Ns   string   `json:"ns,omitempty"`
	Args []string `json:"args,omitempty"`

	Cond  string `json:"cond,omitempty"`
	Then  string `json:"then,omitempty"`
	Else  string `json:"else,omitempty"`
	First string `json:"first,omitempty"`

	Value string `json:"value,omitempty"`
	Body  string `json:"body,omitempty"`

	Params []string `json:"params,omitempty"`
	Fn     string    `json:"fn,omitempty"`

	Target string `json:"target,omitempty"`
	Var    string `json:"var,omitempty"`
	Init   string `json:"init,omitempty"`
	Update string `json:"update,omitempty"`

	Op string `json:"op,omitempty"`

	TryBody    string `json:"tryBody,omitempty"`
	CatchParam string `json:"catchParam,omitempty"`
	CatchBody  string `json:"catchBody,omitempty"`
	Fallback   string `json:"fallback,omitempty"`

	Branches []string `json:"branches,omitempty"`
	Task     string   `json:"task,omitempty"`
	Future   string   `json:"future,omitempty"`

	BufSize *int     `json:"bufSize,omitempty"`
	Channel string   `json:"channel,omitempty"`
	Futures []string `json:"futures,omitempty"`
	Tasks   []string `json:"tasks,omitempty"`

	Blocks  []blockWire `json:"blocks,omitempty"`
	EntryID string      `json:"entryId,omitempty"`
}

func (rn nodeWire) toNode() (*Node, error) {
	if rn.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if rn.Kind == "block" {
		region, err := rn.toRegion()
		if err != nil {
			return nil, err
		}
		return &Node{ID: rn.ID, IsBlock: true, Block: region}, nil
	}
	expr, err := rn.toExpr()
	if err != nil {
		return nil, err
	}
	return &Node{ID: rn.ID, Expr: expr}, nil
}

func (rn nodeWire) toRegion() (*Region, error) {
	region := &Region{EntryID: rn.EntryID}
	for _, bw := range rn.Blocks {
		b, err := bw.toBlock()
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", bw.ID, err)
		}
		region.Blocks = append(region.Blocks, b)
	}
	return region, nil
}

func (rn nodeWire) toExpr() (Expression, error) {
	switch rn.Kind {
	case "lit":
		t := value.TVoid()
		if rn.Type != nil {
			t = *rn.Type
		}
		var raw any
		if len(rn.Literal) > 0 {
			if err := json.Unmarshal(rn.Literal, &raw); err != nil {
				return nil, fmt.Errorf("literal: %w", err)
			}
		}
		v, err := value.FromAny(t, raw)
		if err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		return Lit{Type: t, Value: v}, nil
	case "var":
		return Var{Name: rn.Name}, nil
	case "ref":
		return Ref{ID: rn.Ref}, nil
	case "call":
		return Call{Ns: rn.Ns, Name: rn.Name, Args: rn.Args}, nil
	case "if":
		return If{Cond: rn.Cond, Then: rn.Then, Else: rn.Else}, nil
	case "let":
		return Let{Name: rn.Name, Value: rn.Value, Body: rn.Body}, nil
	case "airRef":
		return AirRef{Ns: rn.Ns, Name: rn.Name, Args: rn.Args}, nil
	case "predicate":
		return Predicate{Name: rn.Name, Value: rn.Value}, nil
	case "lambda":
		t := value.TVoid()
		if rn.Type != nil {
			t = *rn.Type
		}
		return Lambda{Params: rn.Params, Body: rn.Body, Type: t}, nil
	case "callExpr":
		return CallExpr{Fn: rn.Fn, Args: rn.Args}, nil
	case "fix":
		t := value.TVoid()
		if rn.Type != nil {
			t = *rn.Type
		}
		return Fix{Fn: rn.Fn, Type: t}, nil
	case "seq":
		return Seq{First: rn.First, Then: rn.Then}, nil
	case "assign":
		return Assign{Target: rn.Target, Value: rn.Value}, nil
	case "while":
		return While{Cond: rn.Cond, Body: rn.Body}, nil
	case "for":
		return For{Var: rn.Var, Init: rn.Init, Cond: rn.Cond, Update: rn.Update, Body: rn.Body}, nil
	case "iter":
		return Iter{Var: rn.Var, Iter: rn.Value, Body: rn.Body}, nil
	case "effect":
		return Effect{Op: rn.Op, Args: rn.Args}, nil
	case "refCell":
		return RefCellExpr{Target: rn.Target}, nil
	case "deref":
		return Deref{Target: rn.Target}, nil
	case "try":
		return Try{TryBody: rn.TryBody, CatchParam: rn.CatchParam, CatchBody: rn.CatchBody, Fallback: rn.Fallback}, nil
	case "par":
		return Par{Branches: rn.Branches}, nil
	case "spawn":
		return Spawn{Task: rn.Task}, nil
	case "await":
		return Await{Future: rn.Future}, nil
	case "channel":
		bufSize := -1
		if rn.BufSize != nil {
			bufSize = *rn.BufSize
		}
		return ChannelExpr{BufSize: bufSize}, nil
	case "send":
		return Send{Channel: rn.Channel, Value: rn.Value}, nil
	case "recv":
		return Recv{Channel: rn.Channel}, nil
	case "trySend":
		return TrySend{Channel: rn.Channel, Value: rn.Value}, nil
	case "tryRecv":
		return TryRecv{Channel: rn.Channel}, nil
	case "select":
		return Select{Futures: rn.Futures}, nil
	case "race":
		return Race{Tasks: rn.Tasks}, nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", rn.Kind)
	}
}

type blockWire struct {
	ID           string         `json:"id"`
	Instructions []instrWire    `json:"instructions,omitempty"`
	Terminator   terminatorWire `json:"terminator"`
}

func (bw blockWire) toBlock() (*Block, error) {
	b := &Block{ID: bw.ID}
	for _, iw := range bw.Instructions {
		instr, err := iw.toInstr()
		if err != nil {
			return nil, err
		}
		b.Instructions = append(b.Instructions, instr)
	}
	term, err := bw.Terminator.toTerminator()
	if err != nil {
		return nil, err
	}
	b.Terminator = term
	return b, nil
}

type instrWire struct {
	Kind string `json:"kind"`

	Target string            `json:"target,omitempty"`
	Value  string            `json:"value,omitempty"`
	Fn     string            `json:"fn,omitempty"`
	Args   []string          `json:"args,omitempty"`
	Ns     string            `json:"ns,omitempty"`
	Name   string            `json:"name,omitempty"`
	Sources map[string]string `json:"sources,omitempty"`
	Op     string            `json:"op,omitempty"`
	Task   string            `json:"task,omitempty"`

	Channel string `json:"channel,omitempty"`
	BufSize int    `json:"bufSize,omitempty"`
	Future  string `json:"future,omitempty"`
}

func (iw instrWire) toInstr() (Instruction, error) {
	switch iw.Kind {
	case "assign":
		return InstrAssign{Target: iw.Target, Value: iw.Value}, nil
	case "call":
		return InstrCall{Target: iw.Target, Fn: iw.Fn, Args: iw.Args}, nil
	case "op":
		return InstrOp{Ns: iw.Ns, Name: iw.Name, Target: iw.Target, Args: iw.Args}, nil
	case "phi":
		return InstrPhi{Target: iw.Target, Sources: iw.Sources}, nil
	case "effect":
		return InstrEffect{Op: iw.Op, Args: iw.Args, Target: iw.Target}, nil
	case "assignRef":
		return InstrAssignRef{Target: iw.Target, Value: iw.Value}, nil
	case "spawn":
		return InstrSpawn{Target: iw.Target, Task: iw.Task}, nil
	case "channelOp":
		op, err := wireToChannelOpKind(iw.Op)
		if err != nil {
			return nil, err
		}
		return InstrChannelOp{Op: op, Target: iw.Target, Channel: iw.Channel, Value: iw.Value, BufSize: iw.BufSize}, nil
	case "await":
		return InstrAwait{Target: iw.Target, Future: iw.Future}, nil
	default:
		return nil, fmt.Errorf("unknown instruction kind %q", iw.Kind)
	}
}

func wireToChannelOpKind(s string) (ChannelOpKind, error) {
	switch s {
	case "create":
		return ChanCreate, nil
	case "send":
		return ChanSend, nil
	case "recv":
		return ChanRecv, nil
	case "close":
		return ChanClose, nil
	case "trySend":
		return ChanTrySend, nil
	case "tryRecv":
		return ChanTryRecv, nil
	default:
		return 0, fmt.Errorf("unknown channel op %q", s)
	}
}

type terminatorWire struct {
	Kind string `json:"kind"`

	To   string `json:"to,omitempty"`
	Cond string `json:"cond,omitempty"`
	Then string `json:"then,omitempty"`
	Else string `json:"else,omitempty"`

	Value string `json:"value,omitempty"`
	Code  string `json:"code,omitempty"`

	Branches     []forkBranchWire `json:"branches,omitempty"`
	Continuation string           `json:"continuation,omitempty"`

	Tasks   []string `json:"tasks,omitempty"`
	Results []string `json:"results,omitempty"`

	Future      string `json:"future,omitempty"`
	ResumeBlock string `json:"resumeBlock,omitempty"`
}

type forkBranchWire struct {
	TaskID  string `json:"taskId"`
	BlockID string `json:"blockId"`
}

func (tw terminatorWire) toTerminator() (Terminator, error) {
	switch tw.Kind {
	case "jump":
		return TermJump{To: tw.To}, nil
	case "branch":
		return TermBranch{Cond: tw.Cond, Then: tw.Then, Else: tw.Else}, nil
	case "return":
		return TermReturn{Value: tw.Value}, nil
	case "exit":
		return TermExit{Code: tw.Code}, nil
	case "fork":
		branches := make([]ForkBranch, len(tw.Branches))
		for i, b := range tw.Branches {
			branches[i] = ForkBranch{TaskID: b.TaskID, BlockID: b.BlockID}
		}
		return TermFork{Branches: branches, Continuation: tw.Continuation}, nil
	case "join":
		return TermJoin{Tasks: tw.Tasks, Results: tw.Results, To: tw.To}, nil
	case "suspend":
		return TermSuspend{Future: tw.Future, ResumeBlock: tw.ResumeBlock}, nil
	default:
		return nil, fmt.Errorf("unknown terminator kind %q", tw.Kind)
	}
}
