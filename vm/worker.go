package vm

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/avm2/vm/abc"
	"github.com/chazu/avm2/vm/heap"
)

// WorkerState is the lifecycle stage of a worker.
type WorkerState int32

const (
	WorkerNew WorkerState = iota
	WorkerRunning
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerTerminated:
		return "terminated"
	}
	return "new"
}

var (
	// ErrTooManyWorkers is returned by Register when the registry is full.
	ErrTooManyWorkers = errors.New("vm: worker limit reached")
	// ErrWorkerStopped unwinds a worker whose registry is shutting down.
	ErrWorkerStopped = errors.New("vm: worker stopped")
)

// ---------------------------------------------------------------------------
// WorkerHandle
// ---------------------------------------------------------------------------

// sharedValue is one shared property: either an encoded value or a native
// core that every heap wraps separately.
type sharedValue struct {
	data []byte
	core any
}

// WorkerHandle is the heap-independent identity of a worker. Each VM that
// can see a worker holds its own wrapper around the same handle.
type WorkerHandle struct {
	id         uuid.UUID
	primordial bool
	image      []byte

	state   atomic.Int32
	running atomic.Bool
	done    chan struct{}

	mu    sync.Mutex
	props map[string]sharedValue
}

func newWorkerHandle(image []byte, primordial bool) *WorkerHandle {
	return &WorkerHandle{
		id:         uuid.New(),
		primordial: primordial,
		image:      image,
		done:       make(chan struct{}),
		props:      make(map[string]sharedValue),
	}
}

func newPrimordialHandle() *WorkerHandle {
	h := newWorkerHandle(nil, true)
	h.state.Store(int32(WorkerRunning))
	h.running.Store(true)
	return h
}

// ID returns the worker's unique id.
func (h *WorkerHandle) ID() uuid.UUID { return h.id }

// IsPrimordial reports whether this is the host's first worker.
func (h *WorkerHandle) IsPrimordial() bool { return h.primordial }

// State returns the current lifecycle stage.
func (h *WorkerHandle) State() WorkerState { return WorkerState(h.state.Load()) }

// Running reports whether the worker has been started and not asked to
// stop.
func (h *WorkerHandle) Running() bool { return h.running.Load() }

// Done is closed when a started worker's goroutine exits.
func (h *WorkerHandle) Done() <-chan struct{} { return h.done }

// Terminate asks the worker to stop at its next frame and reports whether
// it was running.
func (h *WorkerHandle) Terminate() bool {
	was := h.running.Swap(false)
	if h.state.CompareAndSwap(int32(WorkerNew), int32(WorkerTerminated)) {
		close(h.done)
	}
	return was
}

func (h *WorkerHandle) setShared(key string, v sharedValue) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.props[key] = v
}

func (h *WorkerHandle) shared(key string) (sharedValue, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.props[key]
	return v, ok
}

// ---------------------------------------------------------------------------
// WorkerRegistry
// ---------------------------------------------------------------------------

// WorkerRegistry tracks every worker of one program. It is shared by all of
// their VMs.
type WorkerRegistry struct {
	mu      sync.Mutex
	max     int
	workers map[uuid.UUID]*WorkerHandle

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorkerRegistry returns a registry admitting at most max workers.
func NewWorkerRegistry(max int) *WorkerRegistry {
	if max <= 0 {
		max = DefaultMaxWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerRegistry{max: max, workers: make(map[uuid.UUID]*WorkerHandle), ctx: ctx, cancel: cancel}
}

// Register adds h.
func (r *WorkerRegistry) Register(h *WorkerHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return ErrWorkerStopped
	}
	if len(r.workers) >= r.max {
		return ErrTooManyWorkers
	}
	r.workers[h.id] = h
	return nil
}

// Lookup returns the worker with the given id.
func (r *WorkerRegistry) Lookup(id uuid.UUID) (*WorkerHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.workers[id]
	return h, ok
}

// Running returns the workers whose running flag is set.
func (r *WorkerRegistry) Running() []*WorkerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*WorkerHandle
	for _, h := range r.workers {
		if h.Running() {
			out = append(out, h)
		}
	}
	return out
}

// Context is cancelled when the registry shuts down.
func (r *WorkerRegistry) Context() context.Context { return r.ctx }

// Shutdown clears every running flag, wakes blocked receivers and waits for
// started workers to exit, giving up when ctx is done.
func (r *WorkerRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	var wait []*WorkerHandle
	for _, h := range r.workers {
		h.running.Store(false)
		if !h.primordial && h.State() != WorkerNew {
			wait = append(wait, h)
		}
	}
	r.mu.Unlock()
	r.cancel()

	for _, h := range wait {
		select {
		case <-h.done:
		case <-ctx.Done():
			return fmt.Errorf("vm: shutdown: worker %s did not stop: %w", h.id, ctx.Err())
		}
	}
	log.Infof("worker registry stopped (%d workers joined)", len(wait))
	return nil
}

// ---------------------------------------------------------------------------
// Running a background worker
// ---------------------------------------------------------------------------

// start launches h on its own OS thread with a fresh VM built from parent's
// options. It reports false when h has already left the new state.
func (r *WorkerRegistry) start(h *WorkerHandle, parent Options) bool {
	if h.primordial || !h.state.CompareAndSwap(int32(WorkerNew), int32(WorkerRunning)) {
		return false
	}
	h.running.Store(true)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer func() {
			h.running.Store(false)
			h.state.Store(int32(WorkerTerminated))
			close(h.done)
		}()
		if err := r.run(h, parent); err != nil && !errors.Is(err, ErrWorkerStopped) {
			log.Errorf("worker %s: %s", h.id, err)
		}
	}()
	return true
}

func (r *WorkerRegistry) run(h *WorkerHandle, parent Options) error {
	opts := parent
	opts.Worker = h
	opts.Registry = r
	vm, err := New(opts)
	if err != nil {
		return err
	}
	if err := vm.LoadImageBytes(h.image); err != nil {
		return err
	}
	if err := vm.RunScripts(); err != nil {
		return err
	}
	ticker := time.NewTicker(time.Second / time.Duration(vm.opts.FrameRate))
	defer ticker.Stop()
	for h.Running() {
		select {
		case <-r.ctx.Done():
			return ErrWorkerStopped
		case <-ticker.C:
			if err := vm.Tick(vm.now()); err != nil {
				return err
			}
		}
	}
	log.Debugf("worker %s terminated", h.id)
	return nil
}

// ---------------------------------------------------------------------------
// Script classes
// ---------------------------------------------------------------------------

func systemName(local string) QName { return PackageName("flash.system", local) }

var (
	workerQName       = systemName("Worker")
	workerDomainQName = systemName("WorkerDomain")
)

// WorkerObject is a heap's view of a worker handle.
type WorkerObject struct {
	ScriptObject
	h heap.Static[*WorkerHandle]
}

func (w *WorkerObject) Trace(t *heap.Tracer) { w.traceBase(t) }

// Handle returns the worker this object stands for.
func (w *WorkerObject) Handle() *WorkerHandle { return w.h.Get() }

// wrapWorker returns this heap's wrapper for h, creating it on first use.
func (a *Activation) wrapWorker(h *WorkerHandle) (*WorkerObject, error) {
	if weak, ok := a.vm.workerWrappers[h]; ok {
		if obj, ok := a.vm.heap.Upgrade(weak); ok {
			return obj.(*WorkerObject), nil
		}
	}
	cls, err := a.builtin(workerQName)
	if err != nil {
		return nil, err
	}
	w := &WorkerObject{h: heap.NewStatic(h)}
	a.initObject(w, cls)
	a.vm.workerWrappers[h] = heap.NewWeak(w)
	return w, nil
}

// wrapCore materialises a shared native core in this heap.
func (a *Activation) wrapCore(core any) (Value, error) {
	var (
		obj Object
		err error
	)
	switch c := core.(type) {
	case *WorkerHandle:
		obj, err = a.wrapWorker(c)
	case *ChannelCore:
		obj, err = a.wrapChannel(c)
	case *MutexCore:
		obj, err = a.wrapMutex(c)
	case *ConditionCore:
		obj, err = a.wrapCondition(c)
	default:
		return Undefined, fmt.Errorf("vm: unknown shared core %T", core)
	}
	if err != nil {
		return Undefined, err
	}
	return FromObject(obj), nil
}

// coreOf returns the native core behind v, if v wraps one.
func coreOf(v Value) (any, bool) {
	switch o := v.AsObject().(type) {
	case *WorkerObject:
		return o.h.Get(), true
	case *MessageChannelObject:
		return o.core.Get(), true
	case *MutexObject:
		return o.core.Get(), true
	case *ConditionObject:
		return o.core.Get(), true
	}
	return nil, false
}

type workerMethod func(a *Activation, w *WorkerObject, args []Value) (Value, error)

func workerClass() *Class {
	const className = "flash.system.Worker"
	c := NewClass(workerQName, "Object", ClassSealed|ClassFinal).
		Allocates(func(a *Activation, _ *ClassObject) (Object, error) {
			return nil, a.ArgumentError(2012, "Worker class cannot be instantiated.")
		})
	add := func(name string, getter bool, fn workerMethod) {
		native := func(a *Activation, this Value, args []Value) (Value, error) {
			w, err := thisAs[*WorkerObject](a, this, className)
			if err != nil {
				return Undefined, err
			}
			return fn(a, w, args)
		}
		if getter {
			c.Getter(name, native)
		} else {
			c.Method(name, native)
		}
	}

	c.StaticConst("isSupported", "Boolean", True)
	c.StaticGetter("current", func(a *Activation, _ Value, _ []Value) (Value, error) {
		w, err := a.wrapWorker(a.vm.worker)
		if err != nil {
			return Undefined, err
		}
		return FromObject(w), nil
	})

	add("isPrimordial", true, func(_ *Activation, w *WorkerObject, _ []Value) (Value, error) {
		return Bool(w.Handle().IsPrimordial()), nil
	})
	add("state", true, func(_ *Activation, w *WorkerObject, _ []Value) (Value, error) {
		return String(w.Handle().State().String()), nil
	})
	add("start", false, func(a *Activation, w *WorkerObject, _ []Value) (Value, error) {
		h := w.Handle()
		if !a.vm.registry.start(h, a.vm.opts) {
			return Undefined, a.IllegalOperationError(0, "Worker %s has already been started.", h.id)
		}
		log.Infof("worker %s started by %s", h.id, a.vm.worker.id)
		return Undefined, nil
	})
	add("terminate", false, func(_ *Activation, w *WorkerObject, _ []Value) (Value, error) {
		return Bool(w.Handle().Terminate()), nil
	})
	add("setSharedProperty", false, func(a *Activation, w *WorkerObject, args []Value) (Value, error) {
		key, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		v := arg(args, 1)
		if core, ok := coreOf(v); ok {
			w.Handle().setShared(key, sharedValue{core: core})
			return Undefined, nil
		}
		data, err := a.encodeValue(v, persistPolicy)
		if err != nil {
			return Undefined, err
		}
		w.Handle().setShared(key, sharedValue{data: data})
		return Undefined, nil
	})
	add("getSharedProperty", false, func(a *Activation, w *WorkerObject, args []Value) (Value, error) {
		key, err := a.argString(args, 0, "undefined")
		if err != nil {
			return Undefined, err
		}
		sv, ok := w.Handle().shared(key)
		switch {
		case !ok:
			return Undefined, nil
		case sv.core != nil:
			return a.wrapCore(sv.core)
		}
		return a.decodeValue(sv.data)
	})
	add("createMessageChannel", false, func(a *Activation, w *WorkerObject, args []Value) (Value, error) {
		recv, ok := arg(args, 0).AsObject().(*WorkerObject)
		if !ok {
			return Undefined, a.TypeError(2007, "Parameter receiver must be non-null.")
		}
		ch, err := a.wrapChannel(NewChannelCore(w.Handle(), recv.Handle()))
		if err != nil {
			return Undefined, err
		}
		return FromObject(ch), nil
	})
	return c
}

func workerDomainClass() *Class {
	c := NewClass(workerDomainQName, "Object", ClassSealed|ClassFinal)
	c.StaticConst("isSupported", "Boolean", True)
	c.StaticGetter("current", func(a *Activation, _ Value, _ []Value) (Value, error) {
		if a.vm.workerDomain == nil {
			cls, err := a.builtin(workerDomainQName)
			if err != nil {
				return Undefined, err
			}
			o := &ScriptObject{}
			a.initObject(o, cls)
			a.vm.workerDomain = o
		}
		return FromObject(a.vm.workerDomain), nil
	})
	c.Method("createWorker", func(a *Activation, _ Value, args []Value) (Value, error) {
		b, ok := arg(args, 0).AsObject().(*ByteArrayObject)
		if !ok {
			return Undefined, a.TypeError(2007, "Parameter swf must be non-null.")
		}
		if _, err := abc.Decode(b.data); err != nil {
			return Undefined, a.ArgumentError(2004, "One of the parameters is invalid: %s", err)
		}
		h := newWorkerHandle(append([]byte(nil), b.data...), false)
		if err := a.vm.registry.Register(h); err != nil {
			return Undefined, a.PlainError(0, "Cannot create worker: %s", err)
		}
		w, err := a.wrapWorker(h)
		if err != nil {
			return Undefined, err
		}
		return FromObject(w), nil
	})
	c.Method("listWorkers", func(a *Activation, _ Value, _ []Value) (Value, error) {
		var items []Value
		for _, h := range a.vm.registry.Running() {
			w, err := a.wrapWorker(h)
			if err != nil {
				return Undefined, err
			}
			items = append(items, FromObject(w))
		}
		return FromObject(a.NewArray(items)), nil
	})
	return c
}

func workerStateClass() *Class {
	return NewClass(systemName("WorkerState"), "Object", ClassSealed|ClassFinal).
		StaticConst("NEW", "String", String(WorkerNew.String())).
		StaticConst("RUNNING", "String", String(WorkerRunning.String())).
		StaticConst("TERMINATED", "String", String(WorkerTerminated.String()))
}

func workerClasses() []*Class {
	return []*Class{
		workerClass(), workerDomainClass(), workerStateClass(),
		messageChannelClass(), messageChannelStateClass(),
	}
}
