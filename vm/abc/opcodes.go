package abc

// Op is a single bytecode instruction byte. Values follow the AVM2 opcode
// numbering.
type Op byte

const (
	OpNop            Op = 0x02
	OpThrow          Op = 0x03
	OpGetSuper       Op = 0x04
	OpSetSuper       Op = 0x05
	OpKill           Op = 0x08
	OpLabel          Op = 0x09
	OpIfNlt          Op = 0x0c
	OpIfNle          Op = 0x0d
	OpIfNgt          Op = 0x0e
	OpIfNge          Op = 0x0f
	OpJump           Op = 0x10
	OpIfTrue         Op = 0x11
	OpIfFalse        Op = 0x12
	OpIfEq           Op = 0x13
	OpIfNe           Op = 0x14
	OpIfLt           Op = 0x15
	OpIfLe           Op = 0x16
	OpIfGt           Op = 0x17
	OpIfGe           Op = 0x18
	OpIfStrictEq     Op = 0x19
	OpIfStrictNe     Op = 0x1a
	OpLookupSwitch   Op = 0x1b
	OpPopScope       Op = 0x1d
	OpNextName       Op = 0x1e
	OpNextValue      Op = 0x23
	OpPushNull       Op = 0x20
	OpPushUndefined  Op = 0x21
	OpPushByte       Op = 0x24
	OpPushShort      Op = 0x25
	OpPushTrue       Op = 0x26
	OpPushFalse      Op = 0x27
	OpPushNaN        Op = 0x28
	OpPop            Op = 0x29
	OpDup            Op = 0x2a
	OpSwap           Op = 0x2b
	OpPushString     Op = 0x2c
	OpPushInt        Op = 0x2d
	OpPushUint       Op = 0x2e
	OpPushDouble     Op = 0x2f
	OpPushScope      Op = 0x30
	OpHasNext2       Op = 0x32
	OpNewFunction    Op = 0x40
	OpCall           Op = 0x41
	OpConstruct      Op = 0x42
	OpCallMethod     Op = 0x43
	OpCallSuper      Op = 0x45
	OpCallProperty   Op = 0x46
	OpReturnVoid     Op = 0x47
	OpReturnValue    Op = 0x48
	OpConstructSuper Op = 0x49
	OpConstructProp  Op = 0x4a
	OpCallSuperVoid  Op = 0x4e
	OpCallPropVoid   Op = 0x4f
	OpNewObject      Op = 0x55
	OpNewArray       Op = 0x56
	OpNewActivation  Op = 0x57
	OpFindPropStrict Op = 0x5d
	OpFindProperty   Op = 0x5e
	OpGetLex         Op = 0x60
	OpSetProperty    Op = 0x61
	OpGetLocal       Op = 0x62
	OpSetLocal       Op = 0x63
	OpGetGlobalScope Op = 0x64
	OpGetScopeObject Op = 0x65
	OpGetProperty    Op = 0x66
	OpInitProperty   Op = 0x68
	OpDeleteProperty Op = 0x6a
	OpGetSlot        Op = 0x6c
	OpSetSlot        Op = 0x6d
	OpConvertS       Op = 0x70
	OpConvertI       Op = 0x73
	OpConvertU       Op = 0x74
	OpConvertD       Op = 0x75
	OpConvertB       Op = 0x76
	OpCoerce         Op = 0x80
	OpCoerceA        Op = 0x82
	OpCoerceS        Op = 0x85
	OpAsTypeLate     Op = 0x87
	OpNegate         Op = 0x90
	OpIncrement      Op = 0x91
	OpDecrement      Op = 0x93
	OpTypeOf         Op = 0x95
	OpNot            Op = 0x96
	OpBitNot         Op = 0x97
	OpAdd            Op = 0xa0
	OpSubtract       Op = 0xa1
	OpMultiply       Op = 0xa2
	OpDivide         Op = 0xa3
	OpModulo         Op = 0xa4
	OpLShift         Op = 0xa5
	OpRShift         Op = 0xa6
	OpURShift        Op = 0xa7
	OpBitAnd         Op = 0xa8
	OpBitOr          Op = 0xa9
	OpBitXor         Op = 0xaa
	OpEquals         Op = 0xab
	OpStrictEquals   Op = 0xac
	OpLessThan       Op = 0xad
	OpLessEquals     Op = 0xae
	OpGreaterThan    Op = 0xaf
	OpGreaterEquals  Op = 0xb0
	OpInstanceOf     Op = 0xb1
	OpIsType         Op = 0xb2
	OpIsTypeLate     Op = 0xb3
	OpIn             Op = 0xb4
	OpIncrementI     Op = 0xc0
	OpDecrementI     Op = 0xc1
	OpNegateI        Op = 0xc4
	OpAddI           Op = 0xc5
	OpSubtractI      Op = 0xc6
	OpMultiplyI      Op = 0xc7
	OpGetLocal0      Op = 0xd0
	OpGetLocal1      Op = 0xd1
	OpGetLocal2      Op = 0xd2
	OpGetLocal3      Op = 0xd3
	OpSetLocal0      Op = 0xd4
	OpSetLocal1      Op = 0xd5
	OpSetLocal2      Op = 0xd6
	OpSetLocal3      Op = 0xd7
)

// Operand describes how one operand is encoded and what it indexes.
type Operand uint8

const (
	OperandU8     Operand = iota + 1 // single byte
	OperandS8                        // single signed byte
	OperandU30                       // plain LEB128 count or register
	OperandS24                       // branch offset
	OperandInt                       // int pool index
	OperandUint                      // uint pool index
	OperandDouble                    // double pool index
	OperandString                    // string pool index
	OperandName                      // multiname pool index
	OperandMethod                    // method pool index
)

type opInfo struct {
	name     string
	operands []Operand
}

var opTable = map[Op]opInfo{
	OpNop:            {"nop", nil},
	OpThrow:          {"throw", nil},
	OpGetSuper:       {"getsuper", []Operand{OperandName}},
	OpSetSuper:       {"setsuper", []Operand{OperandName}},
	OpKill:           {"kill", []Operand{OperandU30}},
	OpLabel:          {"label", nil},
	OpIfNlt:          {"ifnlt", []Operand{OperandS24}},
	OpIfNle:          {"ifnle", []Operand{OperandS24}},
	OpIfNgt:          {"ifngt", []Operand{OperandS24}},
	OpIfNge:          {"ifnge", []Operand{OperandS24}},
	OpJump:           {"jump", []Operand{OperandS24}},
	OpIfTrue:         {"iftrue", []Operand{OperandS24}},
	OpIfFalse:        {"iffalse", []Operand{OperandS24}},
	OpIfEq:           {"ifeq", []Operand{OperandS24}},
	OpIfNe:           {"ifne", []Operand{OperandS24}},
	OpIfLt:           {"iflt", []Operand{OperandS24}},
	OpIfLe:           {"ifle", []Operand{OperandS24}},
	OpIfGt:           {"ifgt", []Operand{OperandS24}},
	OpIfGe:           {"ifge", []Operand{OperandS24}},
	OpIfStrictEq:     {"ifstricteq", []Operand{OperandS24}},
	OpIfStrictNe:     {"ifstrictne", []Operand{OperandS24}},
	OpLookupSwitch:   {"lookupswitch", nil}, // variable length, decoded specially
	OpPopScope:       {"popscope", nil},
	OpNextName:       {"nextname", nil},
	OpNextValue:      {"nextvalue", nil},
	OpPushNull:       {"pushnull", nil},
	OpPushUndefined:  {"pushundefined", nil},
	OpPushByte:       {"pushbyte", []Operand{OperandS8}},
	OpPushShort:      {"pushshort", []Operand{OperandU30}},
	OpPushTrue:       {"pushtrue", nil},
	OpPushFalse:      {"pushfalse", nil},
	OpPushNaN:        {"pushnan", nil},
	OpPop:            {"pop", nil},
	OpDup:            {"dup", nil},
	OpSwap:           {"swap", nil},
	OpPushString:     {"pushstring", []Operand{OperandString}},
	OpPushInt:        {"pushint", []Operand{OperandInt}},
	OpPushUint:       {"pushuint", []Operand{OperandUint}},
	OpPushDouble:     {"pushdouble", []Operand{OperandDouble}},
	OpPushScope:      {"pushscope", nil},
	OpHasNext2:       {"hasnext2", []Operand{OperandU30, OperandU30}},
	OpNewFunction:    {"newfunction", []Operand{OperandMethod}},
	OpCall:           {"call", []Operand{OperandU30}},
	OpConstruct:      {"construct", []Operand{OperandU30}},
	OpCallMethod:     {"callmethod", []Operand{OperandU30, OperandU30}},
	OpCallSuper:      {"callsuper", []Operand{OperandName, OperandU30}},
	OpCallProperty:   {"callproperty", []Operand{OperandName, OperandU30}},
	OpReturnVoid:     {"returnvoid", nil},
	OpReturnValue:    {"returnvalue", nil},
	OpConstructSuper: {"constructsuper", []Operand{OperandU30}},
	OpConstructProp:  {"constructprop", []Operand{OperandName, OperandU30}},
	OpCallSuperVoid:  {"callsupervoid", []Operand{OperandName, OperandU30}},
	OpCallPropVoid:   {"callpropvoid", []Operand{OperandName, OperandU30}},
	OpNewObject:      {"newobject", []Operand{OperandU30}},
	OpNewArray:       {"newarray", []Operand{OperandU30}},
	OpNewActivation:  {"newactivation", nil},
	OpFindPropStrict: {"findpropstrict", []Operand{OperandName}},
	OpFindProperty:   {"findproperty", []Operand{OperandName}},
	OpGetLex:         {"getlex", []Operand{OperandName}},
	OpSetProperty:    {"setproperty", []Operand{OperandName}},
	OpGetLocal:       {"getlocal", []Operand{OperandU30}},
	OpSetLocal:       {"setlocal", []Operand{OperandU30}},
	OpGetGlobalScope: {"getglobalscope", nil},
	OpGetScopeObject: {"getscopeobject", []Operand{OperandU8}},
	OpGetProperty:    {"getproperty", []Operand{OperandName}},
	OpInitProperty:   {"initproperty", []Operand{OperandName}},
	OpDeleteProperty: {"deleteproperty", []Operand{OperandName}},
	OpGetSlot:        {"getslot", []Operand{OperandU30}},
	OpSetSlot:        {"setslot", []Operand{OperandU30}},
	OpConvertS:       {"convert_s", nil},
	OpConvertI:       {"convert_i", nil},
	OpConvertU:       {"convert_u", nil},
	OpConvertD:       {"convert_d", nil},
	OpConvertB:       {"convert_b", nil},
	OpCoerce:         {"coerce", []Operand{OperandName}},
	OpCoerceA:        {"coerce_a", nil},
	OpCoerceS:        {"coerce_s", nil},
	OpAsTypeLate:     {"astypelate", nil},
	OpNegate:         {"negate", nil},
	OpIncrement:      {"increment", nil},
	OpDecrement:      {"decrement", nil},
	OpTypeOf:         {"typeof", nil},
	OpNot:            {"not", nil},
	OpBitNot:         {"bitnot", nil},
	OpAdd:            {"add", nil},
	OpSubtract:       {"subtract", nil},
	OpMultiply:       {"multiply", nil},
	OpDivide:         {"divide", nil},
	OpModulo:         {"modulo", nil},
	OpLShift:         {"lshift", nil},
	OpRShift:         {"rshift", nil},
	OpURShift:        {"urshift", nil},
	OpBitAnd:         {"bitand", nil},
	OpBitOr:          {"bitor", nil},
	OpBitXor:         {"bitxor", nil},
	OpEquals:         {"equals", nil},
	OpStrictEquals:   {"strictequals", nil},
	OpLessThan:       {"lessthan", nil},
	OpLessEquals:     {"lessequals", nil},
	OpGreaterThan:    {"greaterthan", nil},
	OpGreaterEquals:  {"greaterequals", nil},
	OpInstanceOf:     {"instanceof", nil},
	OpIsType:         {"istype", []Operand{OperandName}},
	OpIsTypeLate:     {"istypelate", nil},
	OpIn:             {"in", nil},
	OpIncrementI:     {"increment_i", nil},
	OpDecrementI:     {"decrement_i", nil},
	OpNegateI:        {"negate_i", nil},
	OpAddI:           {"add_i", nil},
	OpSubtractI:      {"subtract_i", nil},
	OpMultiplyI:      {"multiply_i", nil},
	OpGetLocal0:      {"getlocal_0", nil},
	OpGetLocal1:      {"getlocal_1", nil},
	OpGetLocal2:      {"getlocal_2", nil},
	OpGetLocal3:      {"getlocal_3", nil},
	OpSetLocal0:      {"setlocal_0", nil},
	OpSetLocal1:      {"setlocal_1", nil},
	OpSetLocal2:      {"setlocal_2", nil},
	OpSetLocal3:      {"setlocal_3", nil},
}

// String returns the mnemonic, or a hex form for unknown bytes.
func (op Op) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return "op_" + hexByte(byte(op))
}

// Known reports whether op is part of the supported instruction set.
func (op Op) Known() bool {
	_, ok := opTable[op]
	return ok
}

// Operands returns the operand layout of op.
func (op Op) Operands() []Operand {
	return opTable[op].operands
}

// IsBranch reports whether op carries a single s24 branch offset.
func (op Op) IsBranch() bool {
	ops := opTable[op].operands
	return len(ops) == 1 && ops[0] == OperandS24
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}
