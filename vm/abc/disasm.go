package abc

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NamespaceString renders a namespace for diagnostics.
func (f *File) NamespaceString(i int) string {
	if i <= 0 || i >= len(f.Namespaces) {
		return "*"
	}
	ns := f.Namespaces[i]
	uri := f.Strings[ns.Name]
	switch ns.Kind {
	case NSPrivate:
		return "private:" + uri
	case NSProtected, NSStaticProtected:
		return "protected:" + uri
	case NSPackageInternal:
		return "internal:" + uri
	case NSNamespace, NSExplicit:
		return "ns:" + uri
	}
	return uri
}

// MultinameString renders a multiname as ns::local.
func (f *File) MultinameString(i int) string {
	if i <= 0 || i >= len(f.Multinames) {
		return "*"
	}
	mn := f.Multinames[i]
	local := f.Strings[mn.Name]
	switch mn.Kind {
	case QName:
		if ns := f.NamespaceString(mn.NS); ns != "" {
			return ns + "::" + local
		}
		return local
	case MultiLate:
		local = "[late]"
	}
	set := f.NSSets[mn.NSSet]
	parts := make([]string, len(set))
	for j, ns := range set {
		parts[j] = f.NamespaceString(ns)
		if parts[j] == "" {
			parts[j] = "public"
		}
	}
	return "{" + strings.Join(parts, ",") + "}::" + local
}

// Disassemble writes a listing of method m. highlight, if non-nil, decorates
// mnemonics.
func (f *File) Disassemble(w io.Writer, m int, highlight func(string) string) error {
	if m <= 0 || m >= len(f.Methods) {
		return fmt.Errorf("abc: no method %d", m)
	}
	meth := f.Methods[m]
	fmt.Fprintf(w, "method %d %s(%d params)\n", m, f.Strings[meth.Name], len(meth.Params))
	if meth.Body == nil {
		fmt.Fprintln(w, "  <no body>")
		return nil
	}
	prog, err := f.DecodeBody(meth.Body)
	if err != nil {
		return fmt.Errorf("abc: method %d: %w", m, err)
	}
	if highlight == nil {
		highlight = func(s string) string { return s }
	}
	for _, ins := range prog.Code {
		fmt.Fprintf(w, "  %4d  %-16s %s\n", ins.Offset, highlight(ins.Op.String()), f.operandText(prog, ins))
	}
	for _, h := range prog.Handlers {
		fmt.Fprintf(w, "  try [%d, %d) -> %d catch %s\n",
			prog.Code[h.From].Offset, endOffset(prog, meth.Body, h.To), prog.Code[h.Target].Offset, f.MultinameString(h.Type))
	}
	return nil
}

func endOffset(p *Program, b *Body, idx int) int {
	if idx >= len(p.Code) {
		return len(b.Code)
	}
	return p.Code[idx].Offset
}

func (f *File) operandText(p *Program, ins Instruction) string {
	if ins.Op == OpLookupSwitch {
		parts := make([]string, len(ins.Targets))
		for i, t := range ins.Targets {
			parts[i] = strconv.Itoa(p.Code[t].Offset)
		}
		return strings.Join(parts, " ")
	}
	var parts []string
	for i, kind := range ins.Op.Operands() {
		v := ins.A
		if i == 1 {
			v = ins.B
		}
		switch kind {
		case OperandS24:
			parts = append(parts, "-> "+strconv.Itoa(p.Code[v].Offset))
		case OperandInt:
			parts = append(parts, strconv.Itoa(int(f.Ints[v])))
		case OperandUint:
			parts = append(parts, strconv.FormatUint(uint64(f.Uints[v]), 10))
		case OperandDouble:
			parts = append(parts, strconv.FormatFloat(f.Doubles[v], 'g', -1, 64))
		case OperandString:
			parts = append(parts, strconv.Quote(f.Strings[v]))
		case OperandName:
			parts = append(parts, f.MultinameString(v))
		case OperandMethod:
			parts = append(parts, "method "+strconv.Itoa(v))
		default:
			parts = append(parts, strconv.Itoa(v))
		}
	}
	return strings.Join(parts, " ")
}
