package scheduler

import (
	"context"
	"sync"

	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/spiralerr"
	"github.com/hybscloud/spiral/pkg/value"
)

// AsyncMutex is a context-aware, FIFO mutual-exclusion lock: waiters
// are granted the lock in the order they called Lock, unlike a raw
// sync.Mutex (which Go deliberately leaves unspecified, occasionally
// favouring a recent arrival under contention). The lock is a locked
// flag plus a FIFO queue of per-waiter channels: Unlock hands the lock
// to the oldest waiter by closing its channel (the flag stays set), or
// clears the flag if nobody is waiting.
type AsyncMutex struct {
	mu     sync.Mutex
	queue  []chan struct{}
	locked bool
}

// NewAsyncMutex returns an unlocked mutex.
func NewAsyncMutex() *AsyncMutex { return &AsyncMutex{} }

// Lock acquires the mutex, blocking in FIFO order until it is free or
// ctx ends.
func (m *AsyncMutex) Lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	wait := make(chan struct{})
	m.queue = append(m.queue, wait)
	m.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range m.queue {
			if w == wait {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		return ctx.Err()
	}
}

// Unlock releases the mutex, handing it directly to the longest-waiting
// blocked Lock call if there is one.
func (m *AsyncMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		m.locked = false
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	close(next)
}

// AsyncRefCell is a mutable cell guarded by an AsyncMutex, for state
// shared across concurrently spawned tasks via an effect rather than
// the document-scoped CellStore (which has no notion of contended
// access ordering).
type AsyncRefCell struct {
	mu  AsyncMutex
	val value.Value
}

// NewAsyncRefCell returns a cell initialised to v.
func NewAsyncRefCell(v value.Value) *AsyncRefCell {
	return &AsyncRefCell{val: v}
}

func (c *AsyncRefCell) Get(ctx context.Context) (value.Value, error) {
	if err := c.mu.Lock(ctx); err != nil {
		return value.Value{}, err
	}
	defer c.mu.Unlock()
	return c.val, nil
}

func (c *AsyncRefCell) Set(ctx context.Context, v value.Value) error {
	if err := c.mu.Lock(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.val = v
	return nil
}

// Update applies f to the cell's current value and stores the result,
// as a single critical section: the read, the call to f, and the write
// all happen while the mutex is held, so no other Get/Set/Update can
// interleave between reading the old value and writing the new one.
func (c *AsyncRefCell) Update(ctx context.Context, f func(value.Value) value.Value) (value.Value, error) {
	if err := c.mu.Lock(ctx); err != nil {
		return value.Value{}, err
	}
	defer c.mu.Unlock()
	c.val = f(c.val)
	return c.val, nil
}

// UnsafeGet and UnsafeSet bypass the mutex entirely. They exist for
// callers that already hold external synchronization (or accept torn
// reads) and must not be reached through the ordinary "sync:ref*"
// effects, which is why they are registered under their own explicitly
// named "sync:refUnsafeGet"/"sync:refUnsafeSet" effects rather than
// folded into refGet/refSet.
func (c *AsyncRefCell) UnsafeGet() value.Value { return c.val }

func (c *AsyncRefCell) UnsafeSet(v value.Value) { c.val = v }

const (
	mutexOpaqueTag  = "asyncMutex"
	refCellOpaqueTag = "asyncRefCell"
)

// RegisterConcurrencyEffects wires AsyncMutex, AsyncRefCell, and channel
// close behind the "sync" and "chan" effect namespaces so a document can
// reach them through an ordinary `effect` expression, the same way any
// other host capability is exposed — the concurrent overlay's IR has no
// dedicated mutex/ref-cell expression of its own, by design: effects are
// already the generic extension point, and introducing a second one
// would just be two ways to spell the same capability.
func RegisterConcurrencyEffects(reg *registry.Registry) {
	reg.RegisterEffect("sync", "mutexNew", 0, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		return value.Opaque(mutexOpaqueTag, NewAsyncMutex()), nil
	})
	reg.RegisterEffect("sync", "lock", 1, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		m, ok := mutexFromValue(args[0])
		if !ok {
			return errValue(spiralerr.KindTypeError, "sync:lock expects a mutex"), nil
		}
		if err := m.Lock(ctx); err != nil {
			return value.Value{}, err
		}
		return value.Void(), nil
	})
	reg.RegisterEffect("sync", "unlock", 1, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		m, ok := mutexFromValue(args[0])
		if !ok {
			return errValue(spiralerr.KindTypeError, "sync:unlock expects a mutex"), nil
		}
		m.Unlock()
		return value.Void(), nil
	})
	reg.RegisterEffect("sync", "refNew", 1, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		return value.Opaque(refCellOpaqueTag, NewAsyncRefCell(args[0])), nil
	})
	reg.RegisterEffect("sync", "refGet", 1, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		c, ok := refCellFromValue(args[0])
		if !ok {
			return errValue(spiralerr.KindTypeError, "sync:refGet expects an async ref cell"), nil
		}
		return c.Get(ctx)
	})
	reg.RegisterEffect("sync", "refSet", 2, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		c, ok := refCellFromValue(args[0])
		if !ok {
			return errValue(spiralerr.KindTypeError, "sync:refSet expects an async ref cell"), nil
		}
		if err := c.Set(ctx, args[1]); err != nil {
			return value.Value{}, err
		}
		return args[1], nil
	})
	reg.RegisterEffect("sync", "refUpdate", 2, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		c, ok := refCellFromValue(args[0])
		if !ok {
			return errValue(spiralerr.KindTypeError, "sync:refUpdate expects an async ref cell"), nil
		}
		clo, ok := args[1].AsClosure()
		if !ok {
			return errValue(spiralerr.KindTypeError, "sync:refUpdate expects a closure"), nil
		}
		return c.Update(ctx, func(cur value.Value) value.Value {
			v, err := rt.ApplyClosure(ctx, clo, []value.Value{cur})
			if err != nil {
				return cur
			}
			return v
		})
	})
	reg.RegisterEffect("sync", "refUnsafeGet", 1, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		c, ok := refCellFromValue(args[0])
		if !ok {
			return errValue(spiralerr.KindTypeError, "sync:refUnsafeGet expects an async ref cell"), nil
		}
		return c.UnsafeGet(), nil
	})
	reg.RegisterEffect("sync", "refUnsafeSet", 2, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		c, ok := refCellFromValue(args[0])
		if !ok {
			return errValue(spiralerr.KindTypeError, "sync:refUnsafeSet expects an async ref cell"), nil
		}
		c.UnsafeSet(args[1])
		return args[1], nil
	})
	reg.RegisterEffect("chan", "close", 1, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		return CloseChannel(args[0]), nil
	})
	reg.RegisterEffect("chan", "trySend", 2, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		return TrySendChannel(args[0], args[1])
	})
	reg.RegisterEffect("chan", "tryRecv", 1, func(ctx context.Context, rt registry.Runtime, args []value.Value) (value.Value, error) {
		return TryRecvChannel(args[0])
	})
}

func mutexFromValue(v value.Value) (*AsyncMutex, bool) {
	tag, data, ok := v.AsOpaque()
	if !ok || tag != mutexOpaqueTag {
		return nil, false
	}
	m, ok := data.(*AsyncMutex)
	return m, ok
}

func refCellFromValue(v value.Value) (*AsyncRefCell, bool) {
	tag, data, ok := v.AsOpaque()
	if !ok || tag != refCellOpaqueTag {
		return nil, false
	}
	c, ok := data.(*AsyncRefCell)
	return c, ok
}
