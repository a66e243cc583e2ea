package scheduler

import (
	"context"
	"sync"

	"github.com/hybscloud/spiral/pkg/spiralerr"
	"github.com/hybscloud/spiral/pkg/value"
)

// channel is SPIRAL's channel primitive, wrapped as an opaque Value
// under the "channel" tag. bufSize 0 is rendezvous: Go's native
// unbuffered channel already blocks a sender until a receiver is
// present and vice versa, so the buffered/rendezvous distinction needs
// no special-casing here beyond the capacity passed to make().
//
// buf is never closed directly — closing a channel a concurrent sender
// might still be writing to panics. Instead closeCh is a separate
// broadcast signal closed exactly once by Close, and every send/recv
// selects across buf, closeCh, and ctx.Done().
type channel struct {
	mu      sync.Mutex
	buf     chan value.Value
	closed  bool
	closeCh chan struct{}
}

const channelOpaqueTag = "channel"

func newChannel(bufSize int) *channel {
	return &channel{buf: make(chan value.Value, bufSize), closeCh: make(chan struct{})}
}

// NewChannel implements eval.Scheduler.
func (p *Pool) NewChannel(bufSize int) value.Value {
	return value.Opaque(channelOpaqueTag, newChannel(bufSize))
}

func chanFromValue(v value.Value) (*channel, bool) {
	tag, data, ok := v.AsOpaque()
	if !ok || tag != channelOpaqueTag {
		return nil, false
	}
	ch, ok := data.(*channel)
	return ch, ok
}

func errValue(kind spiralerr.Kind, msg string) value.Value {
	return value.Error(string(kind), msg, nil)
}

// Send implements eval.Scheduler. It blocks until a receiver is ready
// (bufSize 0), until the buffer has room (bufSize > 0), until the
// channel is closed (ChannelClosed), or until ctx ends (hard abort).
func (p *Pool) Send(ctx context.Context, chv value.Value, v value.Value) (value.Value, error) {
	ch, ok := chanFromValue(chv)
	if !ok {
		return errValue(spiralerr.KindTypeError, "send: operand is not a channel"), nil
	}
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed {
		return errValue(spiralerr.KindChannelClosed, "send on closed channel"), nil
	}
	select {
	case ch.buf <- v:
		return value.Void(), nil
	case <-ch.closeCh:
		return errValue(spiralerr.KindChannelClosed, "send on closed channel"), nil
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}
}

// Recv implements eval.Scheduler. A close does not discard values
// already buffered: recv keeps draining them before reporting
// ChannelClosed, matching Go's own closed-buffered-channel semantics.
func (p *Pool) Recv(ctx context.Context, chv value.Value) (value.Value, error) {
	ch, ok := chanFromValue(chv)
	if !ok {
		return errValue(spiralerr.KindTypeError, "recv: operand is not a channel"), nil
	}
	select {
	case v := <-ch.buf:
		return v, nil
	case <-ch.closeCh:
		select {
		case v := <-ch.buf:
			return v, nil
		default:
			return errValue(spiralerr.KindChannelClosed, "recv on closed channel"), nil
		}
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}
}

// TrySend implements eval.Scheduler by delegating to TrySendChannel.
func (p *Pool) TrySend(chv value.Value, v value.Value) (value.Value, error) {
	return TrySendChannel(chv, v)
}

// TryRecv implements eval.Scheduler by delegating to TryRecvChannel.
func (p *Pool) TryRecv(chv value.Value) (value.Value, error) {
	return TryRecvChannel(chv)
}

// TrySendChannel never waits for buffer room or a receiver: it either
// delivers immediately or reports failure, matching the spec's
// "trySend never increases waiting-senders". Exposed as a free function
// (like CloseChannel) so it can also back the "chan:trySend" effect.
func TrySendChannel(chv value.Value, v value.Value) (value.Value, error) {
	ch, ok := chanFromValue(chv)
	if !ok {
		return errValue(spiralerr.KindTypeError, "trySend: operand is not a channel"), nil
	}
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed {
		return errValue(spiralerr.KindChannelClosed, "trySend on closed channel"), nil
	}
	select {
	case ch.buf <- v:
		return value.Bool(true), nil
	default:
		return value.Bool(false), nil
	}
}

// TryRecvChannel never waits for a buffered value: a buffered value is
// always returned ahead of a close signal — same drain-before-closed
// ordering as Recv — and Void (not an error) reports "nothing ready".
// Exposed as a free function so it can also back "chan:tryRecv".
func TryRecvChannel(chv value.Value) (value.Value, error) {
	ch, ok := chanFromValue(chv)
	if !ok {
		return errValue(spiralerr.KindTypeError, "tryRecv: operand is not a channel"), nil
	}
	select {
	case v := <-ch.buf:
		return v, nil
	default:
	}
	select {
	case <-ch.closeCh:
		return errValue(spiralerr.KindChannelClosed, "tryRecv on closed channel"), nil
	default:
		return value.Void(), nil
	}
}

// CloseChannel closes chv, waking every blocked sender/receiver. It is
// exposed for the LIR channelOp(close) instruction and as a registered
// effect; unlike Send/Recv it never blocks.
func CloseChannel(chv value.Value) value.Value {
	ch, ok := chanFromValue(chv)
	if !ok {
		return errValue(spiralerr.KindTypeError, "close: operand is not a channel")
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.closed {
		ch.closed = true
		close(ch.closeCh)
	}
	return value.Void()
}
