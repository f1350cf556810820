package vm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chazu/avm2/vm/abc"
)

// workerPair builds a primordial VM and a background VM sharing one
// registry. The background VM is not started; tests drive it directly.
func workerPair(t *testing.T, opts Options) (main, bg *VM) {
	t.Helper()
	reg := NewWorkerRegistry(4)
	opts.Registry = reg
	main = newTestVM(t, opts)
	h := newWorkerHandle(nil, false)
	if err := reg.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	opts.Worker = h
	bg = newTestVM(t, opts)
	return main, bg
}

// wrapperOf returns main's wrapper for the worker bg runs as.
// joinWorker builds another non-primordial VM in main's registry.
func joinWorker(t *testing.T, main *VM) *VM {
	t.Helper()
	h := newWorkerHandle(nil, false)
	if err := main.Registry().Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	opts := main.Options()
	opts.Worker = h
	opts.Registry = main.Registry()
	return newTestVM(t, opts)
}

func wrapperOf(t *testing.T, main, bg *VM) Value {
	t.Helper()
	var out Value
	run(t, main, func(a *Activation) error {
		w, err := a.wrapWorker(bg.Worker())
		out = FromObject(w)
		return err
	})
	main.Pin(out)
	return out
}

func currentWorker(t *testing.T, vm *VM) Value {
	t.Helper()
	v, err := vm.GetProperty(mustDefinition(t, vm, "flash.system.Worker"), "current")
	if err != nil {
		t.Fatalf("Worker.current: %v", err)
	}
	vm.Pin(v)
	return v
}

func TestWorkerRegistry(t *testing.T) {
	reg := NewWorkerRegistry(2)
	a, b, c := newWorkerHandle(nil, false), newWorkerHandle(nil, false), newWorkerHandle(nil, false)
	for _, h := range []*WorkerHandle{a, b} {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := reg.Register(c); !errors.Is(err, ErrTooManyWorkers) {
		t.Errorf("Register over limit = %v, want ErrTooManyWorkers", err)
	}
	if got, ok := reg.Lookup(b.ID()); !ok || got != b {
		t.Errorf("Lookup(b) = %v, %v", got, ok)
	}
	if _, ok := reg.Lookup(c.ID()); ok {
		t.Error("Lookup found an unregistered worker")
	}
	if n := len(reg.Running()); n != 0 {
		t.Errorf("Running() = %d workers before start, want 0", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := reg.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if reg.Context().Err() == nil {
		t.Error("registry context still live after Shutdown")
	}
	if err := reg.Register(c); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Register after Shutdown = %v, want ErrWorkerStopped", err)
	}
}

func TestWorkerTerminateBeforeStart(t *testing.T) {
	h := newWorkerHandle(nil, false)
	if h.Terminate() {
		t.Error("Terminate() = true for a worker that never ran")
	}
	if h.State() != WorkerTerminated {
		t.Errorf("State() = %s, want terminated", h.State())
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done not closed after Terminate")
	}
	if NewWorkerRegistry(1).start(h, Options{}) {
		t.Error("start succeeded on a terminated worker")
	}
}

func TestChannelCore(t *testing.T) {
	c := NewChannelCore(nil, nil)
	for _, m := range []string{"a", "b"} {
		if err := c.Send([]byte(m)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if c.State() != "open" || c.Pending() != 2 {
		t.Errorf("state = %s, pending = %d", c.State(), c.Pending())
	}
	msg, err := c.Receive(context.Background())
	if err != nil || string(msg) != "a" {
		t.Errorf("Receive = %q, %v; want a", msg, err)
	}

	c.Close()
	if err := c.Send([]byte("late")); err == nil {
		t.Error("Send on a closed channel succeeded")
	}
	if c.State() != "closing" {
		t.Errorf("state with queued messages = %s, want closing", c.State())
	}
	if msg, ok := c.TryReceive(); !ok || string(msg) != "b" {
		t.Errorf("TryReceive = %q, %v; want b", msg, ok)
	}
	if c.State() != "closed" {
		t.Errorf("drained state = %s, want closed", c.State())
	}
	if _, err := c.Receive(context.Background()); !errors.Is(err, errChannelClosed) {
		t.Errorf("Receive on drained channel = %v, want errChannelClosed", err)
	}
}

func TestChannelCoreReceiveWaits(t *testing.T) {
	c := NewChannelCore(nil, nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Send([]byte("hi"))
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := c.Receive(ctx)
	if err != nil || string(msg) != "hi" {
		t.Errorf("Receive = %q, %v; want hi", msg, err)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel2()
	if _, err := c.Receive(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive on empty channel = %v, want DeadlineExceeded", err)
	}
}

func TestMessageChannelBetweenWorkers(t *testing.T) {
	main, bg := workerPair(t, Options{})
	target := wrapperOf(t, main, bg)
	self := currentWorker(t, main)

	ch, err := main.Invoke(self, "createMessageChannel", target)
	if err != nil {
		t.Fatalf("createMessageChannel: %v", err)
	}
	main.Pin(ch)
	run(t, main, func(a *Activation) error {
		msg := a.NewObject()
		if err := a.Set(FromObject(msg), "n", Int(7)); err != nil {
			return err
		}
		if _, err := a.Invoke(ch, "send", FromObject(msg)); err != nil {
			return err
		}
		_, err := a.Invoke(target, "setSharedProperty", String("inbox"), ch)
		return err
	})

	_, err = main.Invoke(ch, "receive")
	scriptError(t, err, "SecurityError", 3203)

	bgSelf := currentWorker(t, bg)
	inbox, err := bg.Invoke(bgSelf, "getSharedProperty", String("inbox"))
	if err != nil {
		t.Fatalf("getSharedProperty: %v", err)
	}
	bg.Pin(inbox)
	again, _ := bg.Invoke(bgSelf, "getSharedProperty", String("inbox"))
	if again.AsObject() != inbox.AsObject() {
		t.Error("the same channel was wrapped twice in one heap")
	}
	if inbox.AsObject().(*MessageChannelObject).Core() != ch.AsObject().(*MessageChannelObject).Core() {
		t.Error("the background wrapper does not share the sender's channel")
	}

	avail, _ := bg.GetProperty(inbox, "messageAvailable")
	if !avail.AsBool() {
		t.Error("messageAvailable = false with a queued message")
	}
	got, err := bg.Invoke(inbox, "receive")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	n, _ := bg.GetProperty(got, "n")
	if n.AsInt() != 7 {
		t.Errorf("received n = %v, want 7", n)
	}
	_, err = bg.Invoke(inbox, "send", Int(1))
	scriptError(t, err, "SecurityError", 3203)

	if _, err := main.Invoke(ch, "close"); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = main.Invoke(ch, "send", Int(2))
	scriptError(t, err, "IllegalOperationError", 0)
	if v, err := bg.Invoke(inbox, "receive", True); err != nil || !v.IsNullish() {
		t.Errorf("blocking receive on closed channel = %v, %v; want null", v, err)
	}
	state, _ := bg.GetProperty(inbox, "state")
	if state.AsString() != "closed" {
		t.Errorf("state = %v, want closed", state)
	}
}

// inboundChannel returns a channel whose receiver is vm's worker and whose
// sender is a worker that never runs.
func inboundChannel(t *testing.T, vm *VM) Value {
	t.Helper()
	core := NewChannelCore(newWorkerHandle(nil, false), vm.Worker())
	var ch Value
	run(t, vm, func(a *Activation) error {
		m, err := a.wrapChannel(core)
		ch = FromObject(m)
		return err
	})
	vm.Pin(ch)
	return ch
}

func TestPrimordialReceiveTimesOut(t *testing.T) {
	const timeout = 20 * time.Millisecond
	vm := newTestVM(t, Options{ReceiveTimeout: timeout})
	ch := inboundChannel(t, vm)

	v, err := vm.Invoke(ch, "receive")
	if err != nil || !v.IsNullish() {
		t.Errorf("non-blocking receive = %v, %v; want null", v, err)
	}
	start := time.Now()
	_, err = vm.Invoke(ch, "receive", True)
	elapsed := time.Since(start)
	scriptError(t, err, "ScriptTimeoutError", 1502)
	if elapsed < timeout {
		t.Errorf("receive gave up after %s, before the %s timeout", elapsed, timeout)
	}
}

func TestPrimordialReceiveDefaultTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full default receive timeout")
	}
	vm := newTestVM(t, Options{})
	ch := inboundChannel(t, vm)
	start := time.Now()
	_, err := vm.Invoke(ch, "receive", True)
	elapsed := time.Since(start)
	scriptError(t, err, "ScriptTimeoutError", 1502)
	if elapsed < DefaultReceiveTimeout {
		t.Errorf("receive gave up after %s, want at least %s", elapsed, DefaultReceiveTimeout)
	}
}

func TestChannelSendUnsupportedValues(t *testing.T) {
	main, bg := workerPair(t, Options{})
	target := wrapperOf(t, main, bg)
	ch, err := main.Invoke(currentWorker(t, main), "createMessageChannel", target)
	if err != nil {
		t.Fatalf("createMessageChannel: %v", err)
	}
	main.Pin(ch)
	tests := []struct {
		name string
		msg  func(a *Activation) Value
	}{
		{"worker", func(*Activation) Value { return target }},
		{"channel", func(*Activation) Value { return ch }},
		{"bytes", func(a *Activation) Value { return FromObject(a.NewByteArray([]byte{1})) }},
	}
	for _, tt := range tests {
		err := main.enter(func(a *Activation) error {
			_, err := a.Invoke(ch, "send", tt.msg(a))
			return err
		})
		var u *UnsupportedError
		if !errors.As(err, &u) {
			t.Errorf("send(%s) err = %v, want UnsupportedError", tt.name, err)
		}
	}
	_, err = main.Invoke(ch, "send", Int(1), Int(4))
	var u *UnsupportedError
	if !errors.As(err, &u) {
		t.Errorf("send with queueLimit err = %v, want UnsupportedError", err)
	}
}

func TestSharedPropertyCopiesValues(t *testing.T) {
	main, bg := workerPair(t, Options{})
	target := wrapperOf(t, main, bg)
	var original Value
	run(t, main, func(a *Activation) error {
		original = FromObject(a.NewArray([]Value{Int(1), Int(2)}))
		_, err := a.Invoke(target, "setSharedProperty", String("list"), original)
		return err
	})
	got, err := bg.Invoke(currentWorker(t, bg), "getSharedProperty", String("list"))
	if err != nil {
		t.Fatalf("getSharedProperty: %v", err)
	}
	arr, ok := got.AsObject().(*ArrayObject)
	if !ok || len(arr.dense) != 2 || arr.dense[1].AsInt() != 2 {
		t.Errorf("shared list = %v, want [1, 2]", got)
	}
	missing, _ := bg.Invoke(currentWorker(t, bg), "getSharedProperty", String("nope"))
	if !missing.IsUndefined() {
		t.Errorf("missing shared property = %v, want undefined", missing)
	}
}

func TestWorkerScriptSurface(t *testing.T) {
	vm := newTestVM(t, Options{})
	_, err := vm.Construct("flash.system.Worker")
	scriptError(t, err, "ArgumentError", 2012)
	_, err = vm.Construct("flash.system.MessageChannel")
	scriptError(t, err, "ArgumentError", 2012)

	self := currentWorker(t, vm)
	if v, _ := vm.GetProperty(self, "isPrimordial"); !v.AsBool() {
		t.Error("Worker.current.isPrimordial = false on the primordial VM")
	}
	if v, _ := vm.GetProperty(self, "state"); v.AsString() != "running" {
		t.Errorf("state = %v, want running", v)
	}
	_, err = vm.Invoke(self, "start")
	scriptError(t, err, "IllegalOperationError", 0)

	domain, err := vm.GetProperty(mustDefinition(t, vm, "flash.system.WorkerDomain"), "current")
	if err != nil {
		t.Fatalf("WorkerDomain.current: %v", err)
	}
	err = vm.enter(func(a *Activation) error {
		_, err := a.Invoke(domain, "createWorker", FromObject(a.NewByteArray([]byte("not an image"))))
		return err
	})
	scriptError(t, err, "ArgumentError", 2004)

	list, err := vm.Invoke(domain, "listWorkers")
	if err != nil {
		t.Fatalf("listWorkers: %v", err)
	}
	if arr := list.AsObject().(*ArrayObject); len(arr.dense) != 1 || arr.dense[0].AsObject() != self.AsObject() {
		t.Errorf("listWorkers = %v, want [current]", list)
	}
}

func TestMessageChannelRejectsThirdWorker(t *testing.T) {
	main, bg := workerPair(t, Options{})
	third := joinWorker(t, main)
	target := wrapperOf(t, main, bg)
	other := wrapperOf(t, main, third)

	ch, err := main.Invoke(currentWorker(t, main), "createMessageChannel", target)
	if err != nil {
		t.Fatalf("createMessageChannel: %v", err)
	}
	main.Pin(ch)
	if _, err := main.Invoke(ch, "send", Int(1)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := main.Invoke(other, "setSharedProperty", String("ch"), ch); err != nil {
		t.Fatalf("setSharedProperty: %v", err)
	}

	seen, err := third.Invoke(currentWorker(t, third), "getSharedProperty", String("ch"))
	if err != nil {
		t.Fatalf("getSharedProperty: %v", err)
	}
	third.Pin(seen)
	_, err = third.Invoke(seen, "send", Int(2))
	scriptError(t, err, "SecurityError", 3203)
	_, err = third.Invoke(seen, "receive")
	scriptError(t, err, "SecurityError", 3203)
	if n := ch.AsObject().(*MessageChannelObject).Core().Pending(); n != 1 {
		t.Errorf("pending = %d after rejected calls, want 1", n)
	}
}

func TestMessageRoundTripCopiesObject(t *testing.T) {
	main, bg := workerPair(t, Options{})
	core := NewChannelCore(main.Worker(), bg.Worker())
	var out, in, sent Value
	run(t, main, func(a *Activation) error {
		m, err := a.wrapChannel(core)
		out = FromObject(m)
		return err
	})
	main.Pin(out)
	run(t, bg, func(a *Activation) error {
		m, err := a.wrapChannel(core)
		in = FromObject(m)
		return err
	})
	bg.Pin(in)

	run(t, main, func(a *Activation) error {
		sent = FromObject(a.NewObjectFrom("x", Int(1), "y", String("a")))
		_, err := a.Invoke(out, "send", sent)
		return err
	})
	got, err := bg.Invoke(in, "receive")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	obj, ok := got.AsObject().(*ScriptObject)
	if !ok {
		t.Fatalf("received %v, want a plain Object", got)
	}
	if obj == sent.AsObject() {
		t.Error("the receiver got the sender's object instead of a copy")
	}
	keys := obj.Dynamic().Keys()
	if len(keys) != 2 || keys[0].Local != "x" || keys[1].Local != "y" {
		t.Fatalf("keys = %v, want [x y]", keys)
	}
	if x, _ := obj.Dynamic().Get(PublicName("x")); !StrictEquals(x, Int(1)) {
		t.Errorf("x = %v, want 1", x)
	}
	if y, _ := obj.Dynamic().Get(PublicName("y")); y.AsString() != "a" {
		t.Errorf("y = %v, want a", y)
	}
}

// readyImage is a worker program that announces itself through the shared
// property "ready".
func readyImage(t *testing.T) []byte {
	t.Helper()
	b := abc.NewBuilder()
	code := abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpPushScope).
		Op(abc.OpGetLex, b.PublicName("flash.system", "Worker")).
		Op(abc.OpGetProperty, b.PublicName("", "current")).
		Op(abc.OpPushString, b.String("ready")).
		Op(abc.OpPushTrue).
		Op(abc.OpCallPropVoid, b.PublicName("", "setSharedProperty"), 2).
		Op(abc.OpReturnVoid).
		MustCode()
	init := b.Method(abc.Method{Name: b.String("init"), Body: &abc.Body{MaxStack: 4, LocalCount: 1, MaxScopeDepth: 1, Code: code}})
	b.Script(abc.Script{Init: init})
	data, err := abc.Encode(b.File())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestBackgroundWorkerLifecycle(t *testing.T) {
	vm := newTestVM(t, Options{FrameRate: 100})
	domain, err := vm.GetProperty(mustDefinition(t, vm, "flash.system.WorkerDomain"), "current")
	if err != nil {
		t.Fatalf("WorkerDomain.current: %v", err)
	}
	var w Value
	err = vm.enter(func(a *Activation) error {
		v, err := a.Invoke(domain, "createWorker", FromObject(a.NewByteArray(readyImage(t))))
		w = v
		return err
	})
	if err != nil {
		t.Fatalf("createWorker: %v", err)
	}
	vm.Pin(w)
	if state, _ := vm.GetProperty(w, "state"); state.AsString() != "new" {
		t.Errorf("state before start = %v, want new", state)
	}
	if _, err := vm.Invoke(w, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		ready, err := vm.Invoke(w, "getSharedProperty", String("ready"))
		if err != nil {
			t.Fatalf("getSharedProperty: %v", err)
		}
		if ready.AsBool() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background worker never ran its script")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if state, _ := vm.GetProperty(w, "state"); state.AsString() != "running" {
		t.Errorf("state = %v, want running", state)
	}
	if n := len(vm.Registry().Running()); n != 2 {
		t.Errorf("running workers = %d, want 2", n)
	}

	if was, err := vm.Invoke(w, "terminate"); err != nil || !was.AsBool() {
		t.Fatalf("terminate = %v, %v; want true", was, err)
	}
	select {
	case <-w.AsObject().(*WorkerObject).Handle().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("background worker was not joined after terminate")
	}
	if state, _ := vm.GetProperty(w, "state"); state.AsString() != "terminated" {
		t.Errorf("state after terminate = %v, want terminated", state)
	}
	_, err = vm.Invoke(w, "start")
	scriptError(t, err, "IllegalOperationError", 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := vm.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
