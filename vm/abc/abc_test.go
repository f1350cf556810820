package abc

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func sampleFile(t *testing.T) *File {
	t.Helper()
	b := NewBuilder()
	pub := b.PackageNS("")
	name := b.QName(pub, "answer")
	code := NewAsm().
		Op(OpGetLocal0).
		Op(OpPushScope).
		Op(OpPushByte, 40).
		Op(OpPushByte, 2).
		Op(OpAdd).
		Op(OpReturnValue).
		MustCode()
	m := b.Method(Method{Name: b.String("answer"), Body: &Body{MaxStack: 2, LocalCount: 1, Code: code}})
	b.Script(Script{Init: m, Traits: []Trait{{Name: name, Kind: TraitMethod, Method: m}}})
	return b.File()
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := sampleFile(t)
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Methods) != len(f.Methods) {
		t.Fatalf("Methods = %d, want %d", len(got.Methods), len(f.Methods))
	}
	if !bytes.Equal(got.Methods[1].Body.Code, f.Methods[1].Body.Code) {
		t.Errorf("code changed in round trip")
	}
	again, _ := Encode(got)
	if !bytes.Equal(again, data) {
		t.Errorf("encoding is not deterministic")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	f := NewFile()
	f.Magic = "SWF!"
	data, _ := Encode(f)
	if _, err := Decode(data); !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

func TestValidateRejectsDanglingTrait(t *testing.T) {
	f := sampleFile(t)
	f.Scripts[0].Traits[0].Method = 99
	if err := f.Validate(); err == nil {
		t.Error("expected error for trait pointing at missing method")
	}
}

// ---------------------------------------------------------------------------
// Decoding and verification
// ---------------------------------------------------------------------------

func TestDecodeBodyResolvesBranches(t *testing.T) {
	f := NewFile()
	code := NewAsm().
		Op(OpPushTrue).
		Jump(OpIfFalse, "else").
		Op(OpPushByte, 1).
		Op(OpReturnValue).
		Label("else").
		Op(OpPushByte, 2).
		Op(OpReturnValue).
		MustCode()
	prog, err := f.DecodeBody(&Body{Code: code, LocalCount: 1})
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(prog.Code) != 6 {
		t.Fatalf("instructions = %d, want 6", len(prog.Code))
	}
	if got := prog.Code[1].A; got != 4 {
		t.Errorf("iffalse target = %d, want instruction 4", got)
	}
}

func TestDecodeBodyRejectsOutOfBoundsJump(t *testing.T) {
	f := NewFile()
	code := NewAsm().Raw(byte(OpJump)).Raw(AppendS24(nil, 100)...).Op(OpReturnVoid).MustCode()
	_, err := f.DecodeBody(&Body{Code: code, LocalCount: 1})
	var ce *CodeError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CodeError", err)
	}
	if !strings.Contains(ce.Reason, "out of bounds") {
		t.Errorf("Reason = %q", ce.Reason)
	}
}

func TestDecodeBodyRejectsMidInstructionJump(t *testing.T) {
	f := NewFile()
	// Jump lands on the operand byte of pushbyte.
	code := NewAsm().Raw(byte(OpJump)).Raw(AppendS24(nil, 1)...).Op(OpPushByte, 7).Op(OpReturnVoid).MustCode()
	if _, err := f.DecodeBody(&Body{Code: code, LocalCount: 1}); err == nil {
		t.Error("expected error for branch into an operand")
	}
}

func TestDecodeBodyChecksPoolsAndRegisters(t *testing.T) {
	f := NewFile()
	tests := []struct {
		name string
		code []byte
	}{
		{"unknown opcode", []byte{0xff}},
		{"string index", NewAsm().Op(OpPushString, 5).MustCode()},
		{"register", NewAsm().Op(OpGetLocal, 3).MustCode()},
		{"truncated", []byte{byte(OpPushByte)}},
	}
	for _, tt := range tests {
		if _, err := f.DecodeBody(&Body{Code: tt.code, LocalCount: 1}); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestDecodeBodyExceptionTable(t *testing.T) {
	f := NewFile()
	a := NewAsm()
	a.Label("try").Op(OpPushNull).Op(OpThrow).Label("end")
	a.Label("catch").Op(OpReturnValue)
	code := a.MustCode()
	body := &Body{Code: code, LocalCount: 1, Exceptions: []Exception{{From: 0, To: 2, Target: 2}}}
	prog, err := f.DecodeBody(body)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	h := prog.Handlers[0]
	if h.From != 0 || h.To != 2 || h.Target != 2 {
		t.Errorf("handler = %+v, want {0 2 2}", h)
	}

	body.Exceptions[0].To = 0
	if _, err := f.DecodeBody(body); err == nil {
		t.Error("expected error for empty range")
	}
}

func TestLookupSwitch(t *testing.T) {
	f := NewFile()
	code := NewAsm().
		Op(OpPushByte, 1).
		Switch("def", "zero", "one").
		Label("zero").Op(OpReturnVoid).
		Label("one").Op(OpReturnVoid).
		Label("def").Op(OpReturnVoid).
		MustCode()
	prog, err := f.DecodeBody(&Body{Code: code, LocalCount: 1})
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	want := []int{4, 2, 3}
	got := prog.Code[1].Targets
	if len(got) != len(want) {
		t.Fatalf("Targets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Targets[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestU30RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 16383, 1 << 29, 0xffffffff} {
		buf := AppendU30(nil, v)
		got, next, err := ReadU30(buf, 0)
		if err != nil || got != v || next != len(buf) {
			t.Errorf("ReadU30(%d) = %d, %d, %v", v, got, next, err)
		}
	}
}

func TestS24SignExtension(t *testing.T) {
	for _, v := range []int{0, 5, -1, -300, 1<<23 - 1, -(1 << 23)} {
		got, _, err := ReadS24(AppendS24(nil, v), 0)
		if err != nil || got != v {
			t.Errorf("ReadS24(%d) = %d, %v", v, got, err)
		}
	}
}

func TestAsmUndefinedLabel(t *testing.T) {
	if _, err := NewAsm().Jump(OpJump, "nowhere").Code(); err == nil {
		t.Error("expected undefined label error")
	}
}

func TestDisassemble(t *testing.T) {
	f := sampleFile(t)
	var buf bytes.Buffer
	if err := f.Disassemble(&buf, 1, strings.ToUpper); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"PUSHBYTE", "40", "RETURNVALUE"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}
