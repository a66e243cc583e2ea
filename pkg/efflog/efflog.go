// Package efflog implements the concurrent effect log: a monotonically
// numbered, timestamped record of (taskId, seqNum, effect) entries that
// is the authoritative observed ordering across tasks (specification
// §4.6/§5). Grounded on the teacher's ExecutionEvent/ExecutionNotifier
// event-record shape, restructured around an explicit seqNum rather than
// the teacher's notifier-push model, since the log must support ordered
// replay/query, not just fan-out notification.
package efflog

import (
	"sort"
	"sync"
	"time"

	"github.com/hybscloud/spiral/pkg/value"
)

// Entry is one recorded effect invocation.
type Entry struct {
	SeqNum    uint64
	Timestamp time.Time
	TaskID    string
	Op        string
	Args      []value.Value
	Result    value.Value
}

// Log is a thread-safe, append-only (except for Discard/Clear) effect
// log shared by every task of one document evaluation.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	nextSeq uint64
	now     func() time.Time
}

// New returns an empty log. now defaults to time.Now; tests may override
// it for deterministic timestamps.
func New() *Log {
	return &Log{now: time.Now}
}

// NewWithClock is New with an injectable clock, used by tests needing
// deterministic timestamps.
func NewWithClock(now func() time.Time) *Log {
	return &Log{now: now}
}

// Append records one effect invocation and returns its assigned seqNum.
func (l *Log) Append(taskID, op string, args []value.Value, result value.Value) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	seq := l.nextSeq
	l.nextSeq++
	l.entries = append(l.entries, Entry{
		SeqNum: seq, Timestamp: l.now(), TaskID: taskID, Op: op, Args: args, Result: result,
	})
	return seq
}

// Ordered returns every entry sorted by seqNum (append order already
// guarantees this, but the method exists so callers needn't assume it).
func (l *Log) Ordered() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNum < out[j].SeqNum })
	return out
}

// ByTask returns entries for a single task, in seqNum order.
func (l *Log) ByTask(taskID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// DiscardTask removes every entry recorded for taskID — used when a
// task is cancelled (race/best-effort cancellation) so its observed
// effects vanish from the authoritative order.
func (l *Log) DiscardTask(taskID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.TaskID != taskID {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

// Clear empties the log (seqNum counter keeps advancing, so a cleared
// log never reissues a seqNum).
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Stats summarises the log: count of entries per task and per op.
type Stats struct {
	ByTask map[string]int
	ByOp   map[string]int
	Total  int
}

func (l *Log) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Stats{ByTask: map[string]int{}, ByOp: map[string]int{}, Total: len(l.entries)}
	for _, e := range l.entries {
		s.ByTask[e.TaskID]++
		s.ByOp[e.Op]++
	}
	return s
}
