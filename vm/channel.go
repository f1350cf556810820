package vm

import (
	"context"
	"errors"
	"sync"

	"github.com/chazu/avm2/vm/heap"
)

// ---------------------------------------------------------------------------
// ChannelCore
// ---------------------------------------------------------------------------

// ChannelCore is the shared state of a MessageChannel: a FIFO of encoded
// messages between one sending and one receiving worker.
type ChannelCore struct {
	sender, receiver *WorkerHandle

	mu     sync.Mutex
	queue  [][]byte
	closed bool
	signal chan struct{}
}

// NewChannelCore returns an open channel from sender to receiver.
func NewChannelCore(sender, receiver *WorkerHandle) *ChannelCore {
	return &ChannelCore{sender: sender, receiver: receiver, signal: make(chan struct{}, 1)}
}

var errChannelClosed = errors.New("vm: message channel closed")

func (c *ChannelCore) wake() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// Send enqueues msg.
func (c *ChannelCore) Send(msg []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errChannelClosed
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()
	c.wake()
	return nil
}

// TryReceive dequeues the oldest message without waiting.
func (c *ChannelCore) TryReceive() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	msg := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return msg, true
}

// Receive waits for a message. It returns errChannelClosed once the channel
// is closed and drained, or ctx's error.
func (c *ChannelCore) Receive(ctx context.Context) ([]byte, error) {
	for {
		if msg, ok := c.TryReceive(); ok {
			return msg, nil
		}
		if c.Closed() {
			return nil, errChannelClosed
		}
		select {
		case <-c.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops further sends. Queued messages stay receivable.
func (c *ChannelCore) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wake()
}

// Closed reports whether Close has been called.
func (c *ChannelCore) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pending returns the number of queued messages.
func (c *ChannelCore) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// State is "open", "closing" while a closed channel still holds messages,
// then "closed".
func (c *ChannelCore) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.closed:
		return "open"
	case len(c.queue) > 0:
		return "closing"
	}
	return "closed"
}

// ---------------------------------------------------------------------------
// MessageChannel
// ---------------------------------------------------------------------------

var messageChannelQName = systemName("MessageChannel")

// MessageChannelObject is a heap's view of a channel core.
type MessageChannelObject struct {
	ScriptObject
	core heap.Static[*ChannelCore]
}

func (m *MessageChannelObject) Trace(t *heap.Tracer) { m.traceBase(t) }

// Core returns the shared channel.
func (m *MessageChannelObject) Core() *ChannelCore { return m.core.Get() }

func (a *Activation) wrapChannel(c *ChannelCore) (*MessageChannelObject, error) {
	if weak, ok := a.vm.channelWrappers[c]; ok {
		if obj, ok := a.vm.heap.Upgrade(weak); ok {
			return obj.(*MessageChannelObject), nil
		}
	}
	cls, err := a.builtin(messageChannelQName)
	if err != nil {
		return nil, err
	}
	m := &MessageChannelObject{core: heap.NewStatic(c)}
	a.initObject(m, cls)
	a.vm.channelWrappers[c] = heap.NewWeak(m)
	return m, nil
}

func (a *Activation) channelSend(c *ChannelCore, args []Value) error {
	if a.vm.worker != c.sender {
		return a.SecurityError(3203, "Only the sending worker may send on this MessageChannel.")
	}
	limit, err := a.argInt(args, 1, -1)
	if err != nil {
		return err
	}
	if limit != -1 {
		return unsupported("flash.system.MessageChannel", "send", "queueLimit %d", limit)
	}
	msg, err := a.encodeValue(arg(args, 0), channelPolicy)
	if err != nil {
		return err
	}
	if err := c.Send(msg); err != nil {
		return a.IllegalOperationError(0, "The MessageChannel is closed.")
	}
	return nil
}

// channelReceive pops one message. A blocking receive on the primordial
// worker gives up after the receive timeout. Other workers wait until a
// message arrives, the channel closes or the program shuts down.
func (a *Activation) channelReceive(c *ChannelCore, block bool) (Value, error) {
	if a.vm.worker != c.receiver {
		return Undefined, a.SecurityError(3203, "Only the receiving worker may receive on this MessageChannel.")
	}
	if !block {
		msg, ok := c.TryReceive()
		if !ok {
			return Null, nil
		}
		return a.decodeValue(msg)
	}

	ctx := a.vm.registry.Context()
	if a.vm.worker.IsPrimordial() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.vm.opts.ReceiveTimeout)
		defer cancel()
	}
	msg, err := c.Receive(ctx)
	switch {
	case errors.Is(err, errChannelClosed):
		return Null, nil
	case errors.Is(err, context.DeadlineExceeded):
		return Undefined, a.ScriptTimeoutError(1502, "A script has executed for longer than the default timeout period of %s.", a.vm.opts.ReceiveTimeout)
	case err != nil:
		return Undefined, ErrWorkerStopped
	}
	return a.decodeValue(msg)
}

type channelMethod func(a *Activation, c *ChannelCore, args []Value) (Value, error)

func messageChannelClass() *Class {
	const className = "flash.system.MessageChannel"
	c := NewClass(messageChannelQName, "Object", ClassSealed|ClassFinal).
		Allocates(func(a *Activation, _ *ClassObject) (Object, error) {
			return nil, a.ArgumentError(2012, "MessageChannel class cannot be instantiated.")
		})
	wrap := func(fn channelMethod) NativeMethod {
		return func(a *Activation, this Value, args []Value) (Value, error) {
			m, err := thisAs[*MessageChannelObject](a, this, className)
			if err != nil {
				return Undefined, err
			}
			return fn(a, m.Core(), args)
		}
	}

	c.Method("send", wrap(func(a *Activation, ch *ChannelCore, args []Value) (Value, error) {
		return Undefined, a.channelSend(ch, args)
	}))
	c.Method("receive", wrap(func(a *Activation, ch *ChannelCore, args []Value) (Value, error) {
		return a.channelReceive(ch, argBool(args, 0, false))
	}))
	c.Method("close", wrap(func(_ *Activation, ch *ChannelCore, _ []Value) (Value, error) {
		ch.Close()
		return Undefined, nil
	}))
	c.Getter("messageAvailable", wrap(func(_ *Activation, ch *ChannelCore, _ []Value) (Value, error) {
		return Bool(ch.Pending() > 0), nil
	}))
	c.Getter("state", wrap(func(_ *Activation, ch *ChannelCore, _ []Value) (Value, error) {
		return String(ch.State()), nil
	}))
	c.Method("toString", wrap(func(_ *Activation, ch *ChannelCore, _ []Value) (Value, error) {
		return String("[object MessageChannel]"), nil
	}))
	return c
}

func messageChannelStateClass() *Class {
	return NewClass(systemName("MessageChannelState"), "Object", ClassSealed|ClassFinal).
		StaticConst("OPEN", "String", String("open")).
		StaticConst("CLOSING", "String", String("closing")).
		StaticConst("CLOSED", "String", String("closed"))
}
