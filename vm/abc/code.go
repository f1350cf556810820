package abc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Instruction is one decoded instruction. Branch targets are instruction
// indexes, not byte offsets.
type Instruction struct {
	Op      Op
	Offset  int   // byte offset of the opcode
	A, B    int   // operands in declaration order
	Targets []int // lookupswitch: default target followed by the cases
}

// Handler is an exception-table entry translated to instruction indexes.
// From is inclusive and To exclusive.
type Handler struct {
	From, To, Target int
	Type             int
	VarName          int
}

// Program is a verified, decoded method body.
type Program struct {
	Code     []Instruction
	Handlers []Handler
}

// CodeError reports malformed bytecode.
type CodeError struct {
	Offset int
	Reason string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Reason)
}

func codeErr(off int, format string, args ...any) error {
	return &CodeError{Offset: off, Reason: fmt.Sprintf(format, args...)}
}

// ReadU30 decodes a variable-length unsigned operand at pc and returns the
// value and the offset following it.
func ReadU30(code []byte, pc int) (uint32, int, error) {
	if pc >= len(code) {
		return 0, pc, codeErr(pc, "truncated operand")
	}
	end := pc + 5
	if end > len(code) {
		end = len(code)
	}
	v, n := binary.Uvarint(code[pc:end])
	if n <= 0 || v > math.MaxUint32 {
		return 0, pc, codeErr(pc, "malformed u30 operand")
	}
	return uint32(v), pc + n, nil
}

// ReadS24 decodes a 24-bit signed little-endian operand.
func ReadS24(code []byte, pc int) (int, int, error) {
	if pc+3 > len(code) {
		return 0, pc, codeErr(pc, "truncated branch offset")
	}
	v := int32(uint32(code[pc])|uint32(code[pc+1])<<8|uint32(code[pc+2])<<16) << 8 >> 8
	return int(v), pc + 3, nil
}

// AppendU30 encodes v as a variable-length operand.
func AppendU30(dst []byte, v uint32) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}

// AppendS24 encodes v as a 24-bit branch offset.
func AppendS24(dst []byte, v int) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16))
}

// DecodeBody decodes and verifies a method body against the file's pools:
// every opcode must be known, every operand in bounds, every pool index
// valid, every local register inside LocalCount, every branch must land on
// an instruction boundary inside the body, and every exception region must
// be well formed.
func (f *File) DecodeBody(b *Body) (*Program, error) {
	code := b.Code
	var (
		insts   []Instruction
		index   = make(map[int]int, len(code))
		rawJump = make(map[int][]int) // instruction index -> byte targets
	)
	pc := 0
	for pc < len(code) {
		start := pc
		op := Op(code[pc])
		pc++
		if !op.Known() {
			return nil, codeErr(start, "unknown opcode 0x%02x", byte(op))
		}
		ins := Instruction{Op: op, Offset: start}
		idx := len(insts)
		index[start] = idx

		if op == OpLookupSwitch {
			def, next, err := ReadS24(code, pc)
			if err != nil {
				return nil, err
			}
			count, next, err := ReadU30(code, next)
			if err != nil {
				return nil, err
			}
			if int(count) > len(code) {
				return nil, codeErr(start, "lookupswitch case count %d exceeds body", count)
			}
			targets := []int{start + def}
			for i := 0; i <= int(count); i++ {
				var off int
				off, next, err = ReadS24(code, next)
				if err != nil {
					return nil, err
				}
				targets = append(targets, start+off)
			}
			rawJump[idx] = targets
			pc = next
			insts = append(insts, ins)
			continue
		}

		for i, kind := range op.Operands() {
			var v int
			switch kind {
			case OperandU8, OperandS8:
				if pc >= len(code) {
					return nil, codeErr(start, "truncated operand")
				}
				if kind == OperandS8 {
					v = int(int8(code[pc]))
				} else {
					v = int(code[pc])
				}
				pc++
			case OperandS24:
				off, next, err := ReadS24(code, pc)
				if err != nil {
					return nil, err
				}
				pc = next
				rawJump[idx] = []int{pc + off}
			default:
				u, next, err := ReadU30(code, pc)
				if err != nil {
					return nil, err
				}
				pc = next
				v = int(u)
				if err := f.checkPool(kind, v, start); err != nil {
					return nil, err
				}
			}
			if i == 0 {
				ins.A = v
			} else {
				ins.B = v
			}
		}
		if err := checkRegisters(&ins, b.LocalCount); err != nil {
			return nil, err
		}
		insts = append(insts, ins)
	}

	for idx, targets := range rawJump {
		resolved := make([]int, len(targets))
		for i, t := range targets {
			ti, ok := index[t]
			if !ok {
				if t < 0 || t >= len(code) {
					return nil, codeErr(insts[idx].Offset, "branch target %d out of bounds", t)
				}
				return nil, codeErr(insts[idx].Offset, "branch target %d splits an instruction", t)
			}
			resolved[i] = ti
		}
		if insts[idx].Op == OpLookupSwitch {
			insts[idx].Targets = resolved
		} else {
			insts[idx].A = resolved[0]
		}
	}

	handlers := make([]Handler, 0, len(b.Exceptions))
	for _, ex := range b.Exceptions {
		from, ok := index[ex.From]
		if !ok {
			return nil, codeErr(ex.From, "exception range start is not an instruction")
		}
		to, ok := index[ex.To]
		if !ok {
			if ex.To != len(code) {
				return nil, codeErr(ex.To, "exception range end is not an instruction")
			}
			to = len(insts)
		}
		if from >= to {
			return nil, codeErr(ex.From, "empty exception range")
		}
		target, ok := index[ex.Target]
		if !ok {
			return nil, codeErr(ex.Target, "exception target is not an instruction")
		}
		if ex.Type != 0 {
			if err := f.checkPool(OperandName, ex.Type, ex.Target); err != nil {
				return nil, err
			}
		}
		handlers = append(handlers, Handler{From: from, To: to, Target: target, Type: ex.Type, VarName: ex.VarName})
	}
	return &Program{Code: insts, Handlers: handlers}, nil
}

func (f *File) checkPool(kind Operand, v, off int) error {
	var size int
	var what string
	switch kind {
	case OperandInt:
		size, what = len(f.Ints), "int"
	case OperandUint:
		size, what = len(f.Uints), "uint"
	case OperandDouble:
		size, what = len(f.Doubles), "double"
	case OperandString:
		size, what = len(f.Strings), "string"
	case OperandName:
		size, what = len(f.Multinames), "multiname"
	case OperandMethod:
		size, what = len(f.Methods), "method"
	default:
		return nil
	}
	if v <= 0 || v >= size {
		return codeErr(off, "%s index %d out of range", what, v)
	}
	return nil
}

func checkRegisters(ins *Instruction, locals int) error {
	var regs []int
	switch ins.Op {
	case OpGetLocal, OpSetLocal, OpKill:
		regs = []int{ins.A}
	case OpHasNext2:
		regs = []int{ins.A, ins.B}
	case OpGetLocal0, OpGetLocal1, OpGetLocal2, OpGetLocal3:
		regs = []int{int(ins.Op - OpGetLocal0)}
	case OpSetLocal0, OpSetLocal1, OpSetLocal2, OpSetLocal3:
		regs = []int{int(ins.Op - OpSetLocal0)}
	}
	for _, r := range regs {
		if r >= locals {
			return codeErr(ins.Offset, "local register %d out of range (%d locals)", r, locals)
		}
	}
	return nil
}
