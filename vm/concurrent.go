package vm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chazu/avm2/vm/heap"
)

// ---------------------------------------------------------------------------
// Native cores
// ---------------------------------------------------------------------------

// MutexCore is a reentrant lock owned by at most one worker at a time.
type MutexCore struct {
	mu       sync.Mutex
	owner    *WorkerHandle
	count    int
	released chan struct{} // closed and replaced on every full unlock
}

// NewMutexCore returns an unlocked mutex.
func NewMutexCore() *MutexCore {
	return &MutexCore{released: make(chan struct{})}
}

// TryLock acquires the mutex for h without waiting.
func (m *MutexCore) TryLock(h *WorkerHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != nil && m.owner != h {
		return false
	}
	m.owner = h
	m.count++
	return true
}

// Lock waits until h owns the mutex or ctx is done.
func (m *MutexCore) Lock(ctx context.Context, h *WorkerHandle) error {
	for {
		m.mu.Lock()
		if m.owner == nil || m.owner == h {
			m.owner = h
			m.count++
			m.mu.Unlock()
			return nil
		}
		wait := m.released
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Unlock releases one level of h's ownership. It reports false when h does
// not own the mutex.
func (m *MutexCore) Unlock(h *WorkerHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != h {
		return false
	}
	m.count--
	if m.count == 0 {
		m.releaseLocked()
	}
	return true
}

// Owner returns the owning worker, or nil.
func (m *MutexCore) Owner() *WorkerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

func (m *MutexCore) releaseLocked() {
	m.owner = nil
	m.count = 0
	close(m.released)
	m.released = make(chan struct{})
}

// releaseAll drops every level held by h and returns how many there were.
func (m *MutexCore) releaseAll(h *WorkerHandle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != h {
		return 0
	}
	n := m.count
	m.releaseLocked()
	return n
}

// ConditionCore is a condition variable bound to one mutex.
type ConditionCore struct {
	mutex *MutexCore

	mu      sync.Mutex
	waiters []chan struct{}
}

// NewConditionCore returns a condition over m.
func NewConditionCore(m *MutexCore) *ConditionCore {
	return &ConditionCore{mutex: m}
}

// Mutex returns the bound mutex.
func (c *ConditionCore) Mutex() *MutexCore { return c.mutex }

// Wait releases the mutex held by h, waits for a notification, the timeout
// (negative waits forever) or ctx, then reacquires the mutex at the same
// depth. It reports whether a notification arrived.
func (c *ConditionCore) Wait(ctx context.Context, h *WorkerHandle, timeout time.Duration) (bool, error) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	depth := c.mutex.releaseAll(h)

	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	notified := false
	var werr error
	select {
	case <-ch:
		notified = true
	case <-expired:
	case <-ctx.Done():
		werr = ctx.Err()
	}
	if !notified {
		c.drop(ch)
	}
	if werr != nil {
		return false, werr
	}
	if err := c.mutex.Lock(ctx, h); err != nil {
		return notified, err
	}
	c.mutex.mu.Lock()
	c.mutex.count = depth
	c.mutex.mu.Unlock()
	return notified, werr
}

func (c *ConditionCore) drop(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Notify wakes the longest waiting worker, if any.
func (c *ConditionCore) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) > 0 {
		close(c.waiters[0])
		c.waiters = c.waiters[1:]
	}
}

// NotifyAll wakes every waiting worker.
func (c *ConditionCore) NotifyAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.waiters {
		close(w)
	}
	c.waiters = nil
}

// ---------------------------------------------------------------------------
// Script classes
// ---------------------------------------------------------------------------

func concurrentName(local string) QName { return PackageName("flash.concurrent", local) }

var (
	mutexQName     = concurrentName("Mutex")
	conditionQName = concurrentName("Condition")
)

// MutexObject is a heap's view of a MutexCore.
type MutexObject struct {
	ScriptObject
	core heap.Static[*MutexCore]
}

func (m *MutexObject) Trace(t *heap.Tracer) { m.traceBase(t) }

// ConditionObject is a heap's view of a ConditionCore.
type ConditionObject struct {
	ScriptObject
	core heap.Static[*ConditionCore]
}

func (c *ConditionObject) Trace(t *heap.Tracer) { c.traceBase(t) }

func (a *Activation) wrapMutex(core *MutexCore) (*MutexObject, error) {
	if weak, ok := a.vm.coreWrappers[core]; ok {
		if obj, ok := a.vm.heap.Upgrade(weak); ok {
			return obj.(*MutexObject), nil
		}
	}
	cls, err := a.builtin(mutexQName)
	if err != nil {
		return nil, err
	}
	m := &MutexObject{core: heap.NewStatic(core)}
	a.initObject(m, cls)
	a.vm.coreWrappers[core] = heap.NewWeak(m)
	return m, nil
}

func (a *Activation) wrapCondition(core *ConditionCore) (*ConditionObject, error) {
	if weak, ok := a.vm.coreWrappers[core]; ok {
		if obj, ok := a.vm.heap.Upgrade(weak); ok {
			return obj.(*ConditionObject), nil
		}
	}
	cls, err := a.builtin(conditionQName)
	if err != nil {
		return nil, err
	}
	c := &ConditionObject{core: heap.NewStatic(core)}
	a.initObject(c, cls)
	a.vm.coreWrappers[core] = heap.NewWeak(c)
	return c, nil
}

// blockingContext bounds a blocking wait. The primordial worker gives up
// after the receive timeout; other workers wait until shutdown.
func (a *Activation) blockingContext() (context.Context, context.CancelFunc) {
	ctx := a.vm.registry.Context()
	if a.vm.worker.IsPrimordial() {
		return context.WithTimeout(ctx, a.vm.opts.ReceiveTimeout)
	}
	return context.WithCancel(ctx)
}

func (a *Activation) waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return a.ScriptTimeoutError(1502, "A script has executed for longer than the default timeout period of %s.", a.vm.opts.ReceiveTimeout)
	}
	return ErrWorkerStopped
}

func mutexClass() *Class {
	const className = "flash.concurrent.Mutex"
	c := NewClass(mutexQName, "Object", ClassSealed|ClassFinal).
		Allocates(func(*Activation, *ClassObject) (Object, error) {
			return &MutexObject{core: heap.NewStatic(NewMutexCore())}, nil
		}).
		Constructor(func(a *Activation, this Value, _ []Value) (Value, error) {
			m, err := thisAs[*MutexObject](a, this, className)
			if err != nil {
				return Undefined, err
			}
			a.vm.coreWrappers[m.core.Get()] = heap.NewWeak(m)
			return Undefined, nil
		})
	wrap := func(fn func(a *Activation, m *MutexCore) (Value, error)) NativeMethod {
		return func(a *Activation, this Value, _ []Value) (Value, error) {
			m, err := thisAs[*MutexObject](a, this, className)
			if err != nil {
				return Undefined, err
			}
			return fn(a, m.core.Get())
		}
	}
	c.StaticConst("isSupported", "Boolean", True)
	c.Method("lock", wrap(func(a *Activation, m *MutexCore) (Value, error) {
		ctx, cancel := a.blockingContext()
		defer cancel()
		if err := m.Lock(ctx, a.vm.worker); err != nil {
			return Undefined, a.waitError(err)
		}
		return Undefined, nil
	}))
	c.Method("tryLock", wrap(func(a *Activation, m *MutexCore) (Value, error) {
		return Bool(m.TryLock(a.vm.worker)), nil
	}))
	c.Method("unlock", wrap(func(a *Activation, m *MutexCore) (Value, error) {
		if !m.Unlock(a.vm.worker) {
			return Undefined, a.IllegalOperationError(3735, "The current worker does not own the mutex.")
		}
		return Undefined, nil
	}))
	return c
}

func conditionClass() *Class {
	const className = "flash.concurrent.Condition"
	c := NewClass(conditionQName, "Object", ClassSealed|ClassFinal).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &ConditionObject{}, nil }).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			cond, err := thisAs[*ConditionObject](a, this, className)
			if err != nil {
				return Undefined, err
			}
			m, ok := arg(args, 0).AsObject().(*MutexObject)
			if !ok {
				return Undefined, a.ArgumentError(2007, "Parameter mutex must be non-null.")
			}
			cond.core = heap.NewStatic(NewConditionCore(m.core.Get()))
			a.vm.coreWrappers[cond.core.Get()] = heap.NewWeak(cond)
			return Undefined, nil
		})
	type condMethod func(a *Activation, cond *ConditionObject, args []Value) (Value, error)
	wrap := func(owned bool, fn condMethod) NativeMethod {
		return func(a *Activation, this Value, args []Value) (Value, error) {
			cond, err := thisAs[*ConditionObject](a, this, className)
			if err != nil {
				return Undefined, err
			}
			if owned && cond.core.Get().Mutex().Owner() != a.vm.worker {
				return Undefined, a.IllegalOperationError(3736, "The current worker does not own the condition's mutex.")
			}
			return fn(a, cond, args)
		}
	}
	c.StaticConst("isSupported", "Boolean", True)
	c.Getter("mutex", wrap(false, func(a *Activation, cond *ConditionObject, _ []Value) (Value, error) {
		m, err := a.wrapMutex(cond.core.Get().Mutex())
		if err != nil {
			return Undefined, err
		}
		return FromObject(m), nil
	}))
	c.Method("wait", wrap(true, func(a *Activation, cond *ConditionObject, args []Value) (Value, error) {
		ms, err := a.argNumber(args, 0, -1)
		if err != nil {
			return Undefined, err
		}
		timeout := time.Duration(-1)
		if ms >= 0 {
			timeout = time.Duration(ms * float64(time.Millisecond))
		}
		ctx, cancel := a.blockingContext()
		defer cancel()
		notified, err := cond.core.Get().Wait(ctx, a.vm.worker, timeout)
		if err != nil {
			return Undefined, a.waitError(err)
		}
		return Bool(notified), nil
	}))
	c.Method("notify", wrap(true, func(_ *Activation, cond *ConditionObject, _ []Value) (Value, error) {
		cond.core.Get().Notify()
		return Undefined, nil
	}))
	c.Method("notifyAll", wrap(true, func(_ *Activation, cond *ConditionObject, _ []Value) (Value, error) {
		cond.core.Get().NotifyAll()
		return Undefined, nil
	}))
	return c
}

func concurrentClasses() []*Class {
	return []*Class{mutexClass(), conditionClass()}
}
