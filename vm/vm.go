package vm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/text/collate"

	"github.com/chazu/avm2/vm/abc"
	"github.com/chazu/avm2/vm/bitmap"
	"github.com/chazu/avm2/vm/heap"
	"github.com/chazu/avm2/vm/store"
)

var log = commonlog.GetLogger("avm2.vm")

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures a VM. The zero value is usable: every limit has a
// default and a primordial worker with its own registry is created.
type Options struct {
	// Worker is the handle this VM runs as. Nil creates a primordial
	// worker.
	Worker *WorkerHandle
	// Registry is shared by every worker of one program. Nil creates one.
	Registry *WorkerRegistry

	// Store persists SharedObjects. Nil keeps them in memory only.
	Store *store.Store
	// Backend receives bitmap and texture uploads. Nil uses a
	// MemoryBackend.
	Backend bitmap.Backend
	// Clock supplies the current time for getTimer and timers.
	Clock func() time.Time
	// Trace receives trace() output in addition to the log.
	Trace io.Writer
	// OnConstruct is called after a display-node instance is constructed.
	OnConstruct func(obj Object)

	MaxCallDepth   int
	ReceiveTimeout time.Duration
	FrameRate      int
	MaxWorkers     int
	GCStepBudget   int
	GCThreshold    int
}

const (
	DefaultMaxCallDepth   = 256
	DefaultReceiveTimeout = 15 * time.Second
	DefaultFrameRate      = 30
	DefaultMaxWorkers     = 16
	DefaultGCStepBudget   = 512
	DefaultGCThreshold    = 4096
)

func (o Options) withDefaults() Options {
	if o.MaxCallDepth <= 0 {
		o.MaxCallDepth = DefaultMaxCallDepth
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = DefaultReceiveTimeout
	}
	if o.FrameRate <= 0 {
		o.FrameRate = DefaultFrameRate
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.GCStepBudget <= 0 {
		o.GCStepBudget = DefaultGCStepBudget
	}
	if o.GCThreshold <= 0 {
		o.GCThreshold = DefaultGCThreshold
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Backend == nil {
		o.Backend = bitmap.NewMemoryBackend()
	}
	return o
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// wellKnown holds the builtin classes the runtime consults directly.
type wellKnown struct {
	object, class, function *ClassObject
	array                   *ClassObject
	str, int_, uint_        *ClassObject
	number, boolean         *ClassObject
	namespace               *ClassObject
	xml, xmlList            *ClassObject
	byteArray               *ClassObject
}

// VM is one AVM2 instance: a heap, the system domain holding the builtins,
// an application domain for loaded programs, and the worker it runs as.
// A VM is used by exactly one goroutine.
type VM struct {
	opts     Options
	heap     *heap.Heap
	system   *Domain
	app      *Domain
	classes  wellKnown
	worker   *WorkerHandle
	registry *WorkerRegistry
	start    time.Time

	images  []*image
	timers  timerQueue
	shared  map[string]*SharedObjectObject
	aliases map[string]*ClassObject

	workerDomain *ScriptObject

	collator *collate.Collator

	// Per-heap wrappers of shared native cores, so one core maps to one
	// wrapper for as long as the wrapper is alive.
	workerWrappers  map[*WorkerHandle]heap.Weak
	channelWrappers map[*ChannelCore]heap.Weak
	coreWrappers    map[any]heap.Weak
}

// New builds a VM: heap, system domain with the builtin library, the
// application domain, and the worker identity.
func New(opts Options) (*VM, error) {
	opts = opts.withDefaults()
	vm := &VM{
		opts:            opts,
		heap:            heap.New(),
		registry:        opts.Registry,
		shared:          make(map[string]*SharedObjectObject),
		aliases:         make(map[string]*ClassObject),
		workerWrappers:  make(map[*WorkerHandle]heap.Weak),
		channelWrappers: make(map[*ChannelCore]heap.Weak),
		coreWrappers:    make(map[any]heap.Weak),
	}
	vm.start = opts.Clock()
	if vm.registry == nil {
		vm.registry = NewWorkerRegistry(opts.MaxWorkers)
	}
	vm.worker = opts.Worker
	if vm.worker == nil {
		vm.worker = newPrimordialHandle()
		if err := vm.registry.Register(vm.worker); err != nil {
			return nil, fmt.Errorf("vm: new: %w", err)
		}
	}

	vm.system = newDomain(vm, nil)
	for _, def := range builtinClasses() {
		if err := vm.system.Define(def); err != nil {
			return nil, fmt.Errorf("vm: new: %w", err)
		}
	}
	vm.heap.AddRootSource(vm.traceRoots)

	err := vm.heap.Mutate(func(mc *heap.Mutation) error {
		a := &Activation{vm: vm, mc: mc, domain: vm.system}
		if err := vm.bootstrap(a); err != nil {
			return err
		}
		vm.app = newDomain(vm, vm.system)
		vm.app.setupGlobal(a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vm: bootstrap: %w", err)
	}
	log.Debugf("vm %s ready (primordial=%t)", vm.worker.ID(), vm.worker.IsPrimordial())
	return vm, nil
}

// bootstrap materialises Object, Class and Function in the order their
// mutual references allow, then fixes up the first three and resolves the
// rest of the well-known classes.
func (vm *VM) bootstrap(a *Activation) error {
	d := vm.system
	var err error
	if vm.classes.object, err = d.MustClass(a, PublicName("Object")); err != nil {
		return err
	}
	if vm.classes.class, err = d.MustClass(a, PublicName("Class")); err != nil {
		return err
	}
	if vm.classes.function, err = d.MustClass(a, PublicName("Function")); err != nil {
		return err
	}
	d.setupGlobal(a)
	for _, c := range []*ClassObject{vm.classes.object, vm.classes.class, vm.classes.function} {
		if err := c.finishBootstrap(a); err != nil {
			return err
		}
	}

	for _, w := range []struct {
		dst  **ClassObject
		name QName
	}{
		{&vm.classes.array, PublicName("Array")},
		{&vm.classes.str, PublicName("String")},
		{&vm.classes.int_, PublicName("int")},
		{&vm.classes.uint_, PublicName("uint")},
		{&vm.classes.number, PublicName("Number")},
		{&vm.classes.boolean, PublicName("Boolean")},
		{&vm.classes.namespace, PublicName("Namespace")},
		{&vm.classes.xml, PublicName("XML")},
		{&vm.classes.xmlList, PublicName("XMLList")},
		{&vm.classes.byteArray, PackageName("flash.utils", "ByteArray")},
	} {
		if *w.dst, err = d.MustClass(a, w.name); err != nil {
			return err
		}
	}
	installGlobalFunctions(a, d)
	return nil
}

func (vm *VM) traceRoots(t *heap.Tracer) {
	vm.system.trace(t)
	if vm.app != nil {
		vm.app.trace(t)
	}
	vm.timers.trace(t)
	for _, so := range vm.shared {
		t.Mark(so)
	}
	for _, c := range vm.aliases {
		t.Mark(c)
	}
	if vm.workerDomain != nil {
		t.Mark(vm.workerDomain)
	}
}

// enter runs fn as one top-level execution inside a mutation scope.
func (vm *VM) enter(fn func(a *Activation) error) error {
	return vm.heap.Mutate(func(mc *heap.Mutation) error {
		return fn(&Activation{vm: vm, mc: mc, domain: vm.app, this: FromObject(vm.app.global)})
	})
}

// Heap returns the VM's heap.
func (vm *VM) Heap() *heap.Heap { return vm.heap }

// Worker returns the worker this VM runs as.
func (vm *VM) Worker() *WorkerHandle { return vm.worker }

// Registry returns the worker registry shared with sibling workers.
func (vm *VM) Registry() *WorkerRegistry { return vm.registry }

// SystemDomain returns the domain holding the builtins.
func (vm *VM) SystemDomain() *Domain { return vm.system }

// AppDomain returns the domain loaded programs live in.
func (vm *VM) AppDomain() *Domain { return vm.app }

// Options returns the effective options.
func (vm *VM) Options() Options { return vm.opts }

func (vm *VM) now() time.Time { return vm.opts.Clock() }

// Pin keeps the object held by v alive across collections until Unpin.
// Values returned to the host must be pinned if they are kept past the next
// Tick or Collect.
func (vm *VM) Pin(v Value) {
	if o := v.AsObject(); o != nil {
		vm.heap.Pin(o)
	}
}

// Unpin releases a Pin.
func (vm *VM) Unpin(v Value) {
	if o := v.AsObject(); o != nil {
		vm.heap.Unpin(o)
	}
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// LoadImage registers the classes and script globals of f in the
// application domain. Script initialisers run on RunScripts.
func (vm *VM) LoadImage(f *abc.File) error {
	return vm.enter(func(a *Activation) error {
		img, err := vm.loadImage(f, vm.app)
		if err != nil {
			return err
		}
		a.installGlobals(img)
		vm.images = append(vm.images, img)
		return nil
	})
}

// LoadImageBytes decodes an encoded image and loads it.
func (vm *VM) LoadImageBytes(data []byte) error {
	f, err := abc.Decode(data)
	if err != nil {
		return fmt.Errorf("vm: load image: %w", err)
	}
	return vm.LoadImage(f)
}

// RunScripts runs the initialiser of every loaded script that has not run
// yet, in load order.
func (vm *VM) RunScripts() error {
	return vm.enter(func(a *Activation) error {
		for _, img := range vm.images {
			for _, sc := range img.scripts {
				if sc.ran || sc.init == nil {
					continue
				}
				sc.ran = true
				g := img.domain.global
				if _, err := a.CallMethod(sc.init, FromObject(g), nil, img.domain.scope, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Call invokes fn with receiver this as a top-level execution.
func (vm *VM) Call(fn Value, this Value, args ...Value) (Value, error) {
	var out Value
	err := vm.enter(func(a *Activation) error {
		v, err := a.Call(fn, this, args)
		out = v
		return err
	})
	return out, err
}

// Construct instantiates the class named className ("pkg::Name",
// "pkg.Name" or "Name").
func (vm *VM) Construct(className string, args ...Value) (Value, error) {
	var out Value
	err := vm.enter(func(a *Activation) error {
		cls, err := vm.app.MustClass(a, ParseQName(className))
		if err != nil {
			return err
		}
		out, err = a.Construct(cls, args)
		return err
	})
	return out, err
}

// Invoke calls the public method name on recv as a top-level execution.
func (vm *VM) Invoke(recv Value, name string, args ...Value) (Value, error) {
	var out Value
	err := vm.enter(func(a *Activation) error {
		v, err := a.Invoke(recv, name, args...)
		out = v
		return err
	})
	return out, err
}

// GetProperty reads the public property name of recv.
func (vm *VM) GetProperty(recv Value, name string) (Value, error) {
	var out Value
	err := vm.enter(func(a *Activation) error {
		v, err := a.Get(recv, name)
		out = v
		return err
	})
	return out, err
}

// GetDefinition resolves a qualified name to a class or a global
// variable, the way getDefinitionByName does.
func (vm *VM) GetDefinition(qualifiedName string) (Value, error) {
	var out Value
	err := vm.enter(func(a *Activation) error {
		v, err := a.definitionByName(qualifiedName)
		out = v
		return err
	})
	return out, err
}

// Global reads a global variable or class of the application domain.
func (vm *VM) Global(name string) (Value, error) {
	return vm.GetDefinition(name)
}

// Tick is the frame entry point: due timers run first, then the collector
// advances one step once enough allocation has happened since the last
// cycle, or continues a cycle already in progress.
func (vm *VM) Tick(now time.Time) error {
	if err := vm.enter(func(a *Activation) error { return vm.timers.run(a, now) }); err != nil {
		return err
	}
	if vm.heap.Collecting() || vm.heap.Debt() >= vm.opts.GCThreshold {
		done, err := vm.heap.Step(vm.opts.GCStepBudget)
		if err != nil {
			return fmt.Errorf("vm: tick: %w", err)
		}
		if done {
			vm.pruneWrappers()
			s := vm.heap.Stats()
			log.Debugf("gc cycle %d: live=%d freed=%d", s.Cycles, s.Live, s.Freed)
		}
	}
	return nil
}

// Collect runs a full collection cycle.
func (vm *VM) Collect() error {
	if err := vm.heap.Collect(); err != nil {
		return fmt.Errorf("vm: collect: %w", err)
	}
	vm.pruneWrappers()
	return nil
}

// pruneWrappers drops wrapper entries whose wrapper was reclaimed, so the
// maps stop holding on to cores no script can reach from this heap.
func (vm *VM) pruneWrappers() {
	n := pruneDead(vm.heap, vm.workerWrappers) +
		pruneDead(vm.heap, vm.channelWrappers) +
		pruneDead(vm.heap, vm.coreWrappers)
	if n > 0 {
		log.Debugf("pruned %d dead wrappers", n)
	}
}

func pruneDead[K comparable](h *heap.Heap, m map[K]heap.Weak) int {
	n := 0
	for k, w := range m {
		if _, ok := h.Upgrade(w); !ok {
			delete(m, k)
			n++
		}
	}
	return n
}

// Shutdown flushes shared objects and, for the primordial worker, stops
// every other worker and waits for them within ctx's deadline.
func (vm *VM) Shutdown(ctx context.Context) error {
	err := vm.enter(func(a *Activation) error {
		for _, so := range vm.shared {
			if _, err := so.flush(a); err != nil {
				log.Errorf("flush shared object %s: %s", so.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if vm.worker.IsPrimordial() {
		return vm.registry.Shutdown(ctx)
	}
	return nil
}
