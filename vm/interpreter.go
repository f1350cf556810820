package vm

import (
	"math"

	"github.com/chazu/avm2/vm/abc"
)

// interpret runs a verified body to completion. Script errors raised by an
// instruction are matched against the exception table by the faulting
// instruction index; a matching handler resumes with the thrown value as
// the only operand and an empty scope stack. Verification and unsupported
// errors are never matched.
func (a *Activation) interpret(prog *abc.Program) (Value, error) {
	pc := 0
	for {
		ret, err := a.execute(prog, pc)
		if err == nil {
			return ret, nil
		}
		se, ok := err.(*Error)
		if !ok {
			return Undefined, err
		}
		h, herr := a.findHandler(prog, a.pc, se.Value)
		if herr != nil {
			return Undefined, herr
		}
		if h < 0 {
			return Undefined, err
		}
		a.stack = a.stack[:0]
		a.scopes = a.scopes[:0]
		a.push(se.Value)
		pc = prog.Handlers[h].Target
	}
}

func (a *Activation) findHandler(prog *abc.Program, fault int, thrown Value) (int, error) {
	for i, h := range prog.Handlers {
		if fault < h.From || fault >= h.To {
			continue
		}
		if h.Type == 0 {
			return i, nil
		}
		cls, err := a.method.catchTypes[i].Resolve(a, a.domain)
		if err != nil {
			return -1, err
		}
		if a.IsType(thrown, cls) {
			return i, nil
		}
	}
	return -1, nil
}

// popName pops the run-time local name of a late multiname.
func (a *Activation) popName(mn *Multiname) (string, error) {
	if !mn.Late {
		return mn.Local, nil
	}
	return a.ToString(a.pop())
}

// findProperty searches the local scope stack, then the captured chain,
// then the global object.
func (a *Activation) findProperty(mn *Multiname, local string, strict bool) (Object, error) {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		e := a.scopes[i]
		if a.hasProperty(FromObject(e.object), mn, local, e.with) {
			return e.object, nil
		}
	}
	for s := a.outer; s != nil; s = s.parent {
		if a.hasProperty(FromObject(s.object), mn, local, s.with) {
			return s.object, nil
		}
	}
	g := a.domain.global
	if g.hasHook(a, mn, local) {
		return g, nil
	}
	if strict {
		return nil, a.ReferenceError(1065, "Variable %s is not defined.", local)
	}
	return g, nil
}

func (a *Activation) globalScope() Object {
	if s := a.outer.Outermost(); s != nil {
		return s.object
	}
	if len(a.scopes) > 0 {
		return a.scopes[0].object
	}
	return a.domain.global
}

func (a *Activation) resolveType(mn *Multiname) (*ClassObject, error) {
	cls, err := a.domain.FindClass(a, mn)
	if err != nil {
		return nil, err
	}
	if cls == nil {
		if mn.Local == "*" {
			return nil, nil
		}
		return nil, &VerificationError{Class: a.methodName(), Offset: -1, Reason: "Class " + mn.String() + " could not be found."}
	}
	return cls, nil
}

// execute runs instructions from pc until the method returns or an
// instruction fails. a.pc always holds the index of the instruction being
// executed so handlers can be matched against it.
func (a *Activation) execute(prog *abc.Program, pc int) (Value, error) {
	code := prog.Code
	img := a.method.img
	f := img.file

	for pc < len(code) {
		ins := &code[pc]
		a.pc = pc
		pc++

		switch ins.Op {
		case abc.OpNop, abc.OpLabel:

		case abc.OpThrow:
			return Undefined, a.Throw(a.pop())

		// Stack

		case abc.OpPushNull:
			a.push(Null)
		case abc.OpPushUndefined:
			a.push(Undefined)
		case abc.OpPushTrue:
			a.push(True)
		case abc.OpPushFalse:
			a.push(False)
		case abc.OpPushNaN:
			a.push(nanValue)
		case abc.OpPushByte:
			a.push(Int(int32(int8(ins.A))))
		case abc.OpPushShort:
			a.push(Int(int32(int16(ins.A))))
		case abc.OpPushString:
			a.push(String(f.Strings[ins.A]))
		case abc.OpPushInt:
			a.push(Int(f.Ints[ins.A]))
		case abc.OpPushUint:
			a.push(Uint(f.Uints[ins.A]))
		case abc.OpPushDouble:
			a.push(Number(f.Doubles[ins.A]))
		case abc.OpPop:
			a.pop()
		case abc.OpDup:
			a.push(a.peek())
		case abc.OpSwap:
			y, x := a.pop(), a.pop()
			a.push(y)
			a.push(x)

		// Locals

		case abc.OpGetLocal:
			a.push(a.locals[ins.A])
		case abc.OpSetLocal:
			a.locals[ins.A] = a.pop()
		case abc.OpGetLocal0, abc.OpGetLocal1, abc.OpGetLocal2, abc.OpGetLocal3:
			a.push(a.locals[ins.Op-abc.OpGetLocal0])
		case abc.OpSetLocal0, abc.OpSetLocal1, abc.OpSetLocal2, abc.OpSetLocal3:
			a.locals[ins.Op-abc.OpSetLocal0] = a.pop()
		case abc.OpKill:
			a.locals[ins.A] = Undefined

		// Scope

		case abc.OpPushScope:
			v := a.pop()
			if v.kind != KindObject {
				return Undefined, a.nullReceiver(v)
			}
			a.scopes = append(a.scopes, scopeEntry{object: v.obj})
		case abc.OpPopScope:
			if n := len(a.scopes); n > 0 {
				a.scopes = a.scopes[:n-1]
			}
		case abc.OpGetScopeObject:
			if ins.A >= len(a.scopes) {
				return Undefined, &VerificationError{Class: a.methodName(), Offset: ins.Offset, Reason: "scope index out of range"}
			}
			a.push(FromObject(a.scopes[ins.A].object))
		case abc.OpGetGlobalScope:
			a.push(FromObject(a.globalScope()))
		case abc.OpNewActivation:
			a.push(FromObject(a.NewObject()))

		// Control

		case abc.OpJump:
			pc = ins.A
		case abc.OpIfTrue:
			if ToBoolean(a.pop()) {
				pc = ins.A
			}
		case abc.OpIfFalse:
			if !ToBoolean(a.pop()) {
				pc = ins.A
			}
		case abc.OpIfEq, abc.OpIfNe:
			y, x := a.pop(), a.pop()
			eq, err := a.Equals(x, y)
			if err != nil {
				return Undefined, err
			}
			if eq == (ins.Op == abc.OpIfEq) {
				pc = ins.A
			}
		case abc.OpIfStrictEq:
			y, x := a.pop(), a.pop()
			if StrictEquals(x, y) {
				pc = ins.A
			}
		case abc.OpIfStrictNe:
			y, x := a.pop(), a.pop()
			if !StrictEquals(x, y) {
				pc = ins.A
			}
		case abc.OpIfLt, abc.OpIfLe, abc.OpIfGt, abc.OpIfGe, abc.OpIfNlt, abc.OpIfNle, abc.OpIfNgt, abc.OpIfNge:
			y, x := a.pop(), a.pop()
			jump, err := a.branchCompare(ins.Op, x, y)
			if err != nil {
				return Undefined, err
			}
			if jump {
				pc = ins.A
			}
		case abc.OpLookupSwitch:
			i, err := a.ToInt32(a.pop())
			if err != nil {
				return Undefined, err
			}
			if i >= 0 && int(i) < len(ins.Targets)-1 {
				pc = ins.Targets[i+1]
			} else {
				pc = ins.Targets[0]
			}

		case abc.OpReturnVoid:
			return Undefined, nil
		case abc.OpReturnValue:
			return a.pop(), nil

		// Enumeration

		case abc.OpHasNext2:
			obj := a.locals[ins.A]
			cursor, err := a.ToInt32(a.locals[ins.B])
			if err != nil {
				return Undefined, err
			}
			next := 0
			if obj.IsObject() {
				next = a.enumNext(obj.obj, int(cursor))
			}
			if next == 0 {
				a.locals[ins.A] = Null
				a.locals[ins.B] = Int(0)
				a.push(False)
			} else {
				a.locals[ins.B] = Int(int32(next))
				a.push(True)
			}
		case abc.OpNextName, abc.OpNextValue:
			cursor, err := a.ToInt32(a.pop())
			if err != nil {
				return Undefined, err
			}
			obj := a.pop()
			switch {
			case !obj.IsObject():
				a.push(Undefined)
			case ins.Op == abc.OpNextName:
				a.push(a.enumName(obj.obj, int(cursor)))
			default:
				a.push(a.enumValue(obj.obj, int(cursor)))
			}

		// Properties

		case abc.OpFindPropStrict, abc.OpFindProperty:
			mn := img.names[ins.A]
			local, err := a.popName(mn)
			if err != nil {
				return Undefined, err
			}
			obj, err := a.findProperty(mn, local, ins.Op == abc.OpFindPropStrict)
			if err != nil {
				return Undefined, err
			}
			a.push(FromObject(obj))
		case abc.OpGetLex:
			mn := img.names[ins.A]
			obj, err := a.findProperty(mn, mn.Local, true)
			if err != nil {
				return Undefined, err
			}
			v, err := a.getProperty(FromObject(obj), mn, mn.Local)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpGetProperty:
			mn := img.names[ins.A]
			local, err := a.popName(mn)
			if err != nil {
				return Undefined, err
			}
			v, err := a.getProperty(a.pop(), mn, local)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpSetProperty, abc.OpInitProperty:
			mn := img.names[ins.A]
			v := a.pop()
			local, err := a.popName(mn)
			if err != nil {
				return Undefined, err
			}
			if err := a.setProperty(a.pop(), mn, local, v, ins.Op == abc.OpInitProperty); err != nil {
				return Undefined, err
			}
		case abc.OpDeleteProperty:
			mn := img.names[ins.A]
			local, err := a.popName(mn)
			if err != nil {
				return Undefined, err
			}
			ok, err := a.deleteProperty(a.pop(), mn, local)
			if err != nil {
				return Undefined, err
			}
			a.push(Bool(ok))
		case abc.OpGetSlot:
			recv := a.pop()
			if recv.kind != KindObject {
				return Undefined, a.nullReceiver(recv)
			}
			b := recv.obj.Base()
			if ins.A < 1 || ins.A > len(b.slots) {
				return Undefined, &VerificationError{Class: a.methodName(), Offset: ins.Offset, Reason: "slot index out of range"}
			}
			a.push(b.slots[ins.A-1])
		case abc.OpSetSlot:
			v := a.pop()
			recv := a.pop()
			if recv.kind != KindObject {
				return Undefined, a.nullReceiver(recv)
			}
			if err := a.writeSlot(recv.obj, ins.A-1, v); err != nil {
				return Undefined, err
			}
		case abc.OpGetSuper:
			mn := img.names[ins.A]
			local, err := a.popName(mn)
			if err != nil {
				return Undefined, err
			}
			v, err := a.getSuper(a.pop(), mn, local)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpSetSuper:
			mn := img.names[ins.A]
			v := a.pop()
			local, err := a.popName(mn)
			if err != nil {
				return Undefined, err
			}
			if err := a.setSuper(a.pop(), mn, local, v); err != nil {
				return Undefined, err
			}
		case abc.OpIn:
			obj := a.pop()
			name, err := a.ToString(a.pop())
			if err != nil {
				return Undefined, err
			}
			if obj.IsNullish() {
				return Undefined, a.nullReceiver(obj)
			}
			a.push(Bool(a.hasProperty(obj, NewMultiname(name), name, true)))

		// Calls

		case abc.OpCall:
			args := a.popN(ins.A)
			this := a.pop()
			fn := a.pop()
			if !isCallable(fn) {
				return Undefined, a.TypeError(1006, "value is not a function.")
			}
			v, err := a.Call(fn, this, args)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpConstruct:
			args := a.popN(ins.A)
			v, err := a.ConstructValue(a.pop(), args)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpCallMethod:
			args := a.popN(ins.B)
			v, err := a.callMethodDisp(a.pop(), ins.A, args)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpCallProperty, abc.OpCallPropVoid, abc.OpCallSuper, abc.OpCallSuperVoid:
			mn := img.names[ins.A]
			args := a.popN(ins.B)
			local, err := a.popName(mn)
			if err != nil {
				return Undefined, err
			}
			recv := a.pop()
			var v Value
			if ins.Op == abc.OpCallSuper || ins.Op == abc.OpCallSuperVoid {
				v, err = a.callSuper(recv, mn, local, args)
			} else {
				v, err = a.callProperty(recv, mn, local, args)
			}
			if err != nil {
				return Undefined, err
			}
			if ins.Op == abc.OpCallProperty || ins.Op == abc.OpCallSuper {
				a.push(v)
			}
		case abc.OpConstructSuper:
			args := a.popN(ins.A)
			recv := a.pop()
			if a.class == nil || a.class.super == nil {
				return Undefined, &VerificationError{Class: a.methodName(), Offset: ins.Offset, Reason: "constructsuper outside a subclass initialiser"}
			}
			if err := a.runInit(a.class.super, recv, args); err != nil {
				return Undefined, err
			}
		case abc.OpConstructProp:
			mn := img.names[ins.A]
			args := a.popN(ins.B)
			local, err := a.popName(mn)
			if err != nil {
				return Undefined, err
			}
			ctor, err := a.getProperty(a.pop(), mn, local)
			if err != nil {
				return Undefined, err
			}
			v, err := a.ConstructValue(ctor, args)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpNewFunction:
			a.push(FromObject(a.NewFunction(img.methods[ins.A], a.scopeChain())))
		case abc.OpNewObject:
			pairs := a.popN(2 * ins.A)
			o := a.NewObject()
			for i := 0; i+1 < len(pairs); i += 2 {
				name, err := a.ToString(pairs[i])
				if err != nil {
					return Undefined, err
				}
				o.dyn.Set(PublicName(name), pairs[i+1])
			}
			a.push(FromObject(o))
		case abc.OpNewArray:
			a.push(FromObject(a.NewArray(a.popN(ins.A))))

		// Conversion and type tests

		case abc.OpConvertS:
			s, err := a.ToString(a.pop())
			if err != nil {
				return Undefined, err
			}
			a.push(String(s))
		case abc.OpCoerceS:
			v := a.pop()
			if v.IsNullish() {
				a.push(Null)
				continue
			}
			s, err := a.ToString(v)
			if err != nil {
				return Undefined, err
			}
			a.push(String(s))
		case abc.OpConvertI:
			i, err := a.ToInt32(a.pop())
			if err != nil {
				return Undefined, err
			}
			a.push(Int(i))
		case abc.OpConvertU:
			u, err := a.ToUint32(a.pop())
			if err != nil {
				return Undefined, err
			}
			a.push(Uint(u))
		case abc.OpConvertD:
			n, err := a.ToNumber(a.pop())
			if err != nil {
				return Undefined, err
			}
			a.push(Number(n))
		case abc.OpConvertB:
			a.push(Bool(ToBoolean(a.pop())))
		case abc.OpCoerceA:
		case abc.OpCoerce:
			cls, err := a.resolveType(img.names[ins.A])
			if err != nil {
				return Undefined, err
			}
			v, err := a.coerceTo(a.pop(), cls)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpIsType:
			cls, err := a.resolveType(img.names[ins.A])
			if err != nil {
				return Undefined, err
			}
			a.push(Bool(a.IsType(a.pop(), cls)))
		case abc.OpIsTypeLate, abc.OpAsTypeLate:
			t := a.pop()
			v := a.pop()
			cls, err := a.typeOperand(t)
			if err != nil {
				return Undefined, err
			}
			is := a.IsType(v, cls)
			switch {
			case ins.Op == abc.OpIsTypeLate:
				a.push(Bool(is))
			case is:
				a.push(v)
			default:
				a.push(Null)
			}
		case abc.OpInstanceOf:
			t := a.pop()
			ok, err := a.InstanceOf(a.pop(), t)
			if err != nil {
				return Undefined, err
			}
			a.push(Bool(ok))
		case abc.OpTypeOf:
			a.push(String(TypeOf(a.pop())))

		// Arithmetic

		case abc.OpAdd:
			y, x := a.pop(), a.pop()
			v, err := a.Add(x, y)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpSubtract, abc.OpMultiply, abc.OpDivide, abc.OpModulo:
			y, x := a.pop(), a.pop()
			v, err := a.arith(x, y, floatOps[ins.Op])
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpAddI, abc.OpSubtractI, abc.OpMultiplyI, abc.OpBitAnd, abc.OpBitOr, abc.OpBitXor:
			y, x := a.pop(), a.pop()
			v, err := a.intArith(x, y, intOps[ins.Op])
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpLShift, abc.OpRShift, abc.OpURShift:
			y, x := a.pop(), a.pop()
			fn := shlI
			if ins.Op == abc.OpRShift {
				fn = sarI
			}
			v, err := a.shift(x, y, ins.Op == abc.OpURShift, fn)
			if err != nil {
				return Undefined, err
			}
			a.push(v)
		case abc.OpNegate, abc.OpIncrement, abc.OpDecrement:
			n, err := a.ToNumber(a.pop())
			if err != nil {
				return Undefined, err
			}
			switch ins.Op {
			case abc.OpNegate:
				n = -n
			case abc.OpIncrement:
				n++
			default:
				n--
			}
			a.push(Number(n))
		case abc.OpNegateI, abc.OpIncrementI, abc.OpDecrementI, abc.OpBitNot:
			i, err := a.ToInt32(a.pop())
			if err != nil {
				return Undefined, err
			}
			switch ins.Op {
			case abc.OpNegateI:
				i = -i
			case abc.OpIncrementI:
				i++
			case abc.OpDecrementI:
				i--
			default:
				i = ^i
			}
			a.push(Int(i))
		case abc.OpNot:
			a.push(Bool(!ToBoolean(a.pop())))

		// Comparison

		case abc.OpEquals:
			y, x := a.pop(), a.pop()
			eq, err := a.Equals(x, y)
			if err != nil {
				return Undefined, err
			}
			a.push(Bool(eq))
		case abc.OpStrictEquals:
			y, x := a.pop(), a.pop()
			a.push(Bool(StrictEquals(x, y)))
		case abc.OpLessThan, abc.OpLessEquals, abc.OpGreaterThan, abc.OpGreaterEquals:
			y, x := a.pop(), a.pop()
			r, err := a.Compare(compareOps[ins.Op], x, y)
			if err != nil {
				return Undefined, err
			}
			a.push(Bool(r))

		default:
			return Undefined, &VerificationError{Class: a.methodName(), Offset: ins.Offset, Reason: "unsupported opcode " + ins.Op.String()}
		}
	}
	return Undefined, nil
}

var nanValue = Number(math.NaN())

var floatOps = map[abc.Op]func(float64, float64) float64{
	abc.OpSubtract: subF,
	abc.OpMultiply: mulF,
	abc.OpDivide:   divF,
	abc.OpModulo:   modF,
}

var intOps = map[abc.Op]func(int32, int32) int32{
	abc.OpAddI:      addI,
	abc.OpSubtractI: subI,
	abc.OpMultiplyI: mulI,
	abc.OpBitAnd:    andI,
	abc.OpBitOr:     orI,
	abc.OpBitXor:    xorI,
}

var compareOps = map[abc.Op]string{
	abc.OpLessThan:      "<",
	abc.OpLessEquals:    "<=",
	abc.OpGreaterThan:   ">",
	abc.OpGreaterEquals: ">=",
}

// branchCompare decides a relational branch. The negated forms jump when
// the comparison is false or undefined.
func (a *Activation) branchCompare(op abc.Op, x, y Value) (bool, error) {
	var (
		r   cmpResult
		err error
	)
	switch op {
	case abc.OpIfLt, abc.OpIfNlt, abc.OpIfGe, abc.OpIfNge:
		r, err = a.lessThan(x, y)
	default:
		r, err = a.lessThan(y, x)
	}
	if err != nil {
		return false, err
	}
	switch op {
	case abc.OpIfLt, abc.OpIfGt:
		return r == cmpTrue, nil
	case abc.OpIfNlt, abc.OpIfNgt:
		return r != cmpTrue, nil
	case abc.OpIfLe, abc.OpIfGe:
		return r == cmpFalse, nil
	}
	// ifnle, ifnge
	return r != cmpFalse, nil
}
