// Package stepbudget implements the shared step counter used by the
// expression evaluator, the CFG interpreter, and the task scheduler to
// enforce the specification's maxSteps termination bound (§4.2, §4.5,
// §8 invariant 2). A single Budget is shared by every task of one
// document evaluation so a pathological task cannot starve the others.
package stepbudget

import (
	"sync/atomic"

	"github.com/hybscloud/spiral/pkg/spiralerr"
)

// Budget is a thread-safe step counter with an upper bound.
type Budget struct {
	max   int64
	count atomic.Int64
}

// New returns a Budget with the given maximum. A max of 0 permits zero
// steps — the first Increment call fails immediately, satisfying the
// maxSteps=0 boundary case.
func New(max int64) *Budget {
	return &Budget{max: max}
}

// Increment charges one step; it returns NonTermination once the
// configured maximum has been exceeded.
func (b *Budget) Increment() error {
	n := b.count.Add(1)
	if n > b.max {
		return spiralerr.New(spiralerr.KindNonTermination, "step budget exceeded")
	}
	return nil
}

// Count returns the number of steps charged so far.
func (b *Budget) Count() int64 { return b.count.Load() }

// Max returns the configured maximum.
func (b *Budget) Max() int64 { return b.max }
