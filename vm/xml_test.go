package vm

import (
	"testing"
)

func TestXMLParseAndRender(t *testing.T) {
	vm := newTestVM(t, Options{})
	x := mustConstruct(t, vm, "XML", String(`<root a="1"><item>one</item><item>two</item></root>`))

	if got := invokeString(t, vm, x, "toXMLString"); got != "<root a=\"1\">\n  <item>one</item>\n  <item>two</item>\n</root>" {
		t.Errorf("toXMLString =\n%s", got)
	}
	if got := invokeString(t, vm, x, "localName"); got != "root" {
		t.Errorf("localName = %q, want root", got)
	}
	if got := invokeString(t, vm, x, "nodeKind"); got != "element" {
		t.Errorf("nodeKind = %q, want element", got)
	}

	items, err := vm.GetProperty(x, "item")
	if err != nil {
		t.Fatalf("x.item: %v", err)
	}
	n, err := vm.Invoke(items, "length")
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n.Float() != 2 {
		t.Errorf("x.item.length() = %v, want 2", n)
	}
	second, err := vm.GetProperty(items, "1")
	if err != nil {
		t.Fatalf("items[1]: %v", err)
	}
	if got := invokeString(t, vm, second, "toString"); got != "two" {
		t.Errorf("items[1] = %q, want two", got)
	}
	attr, err := vm.GetProperty(x, "@a")
	if err != nil {
		t.Fatalf("x.@a: %v", err)
	}
	if got := invokeString(t, vm, attr, "toString"); got != "1" {
		t.Errorf("x.@a = %q, want 1", got)
	}
}

func TestXMLMalformed(t *testing.T) {
	vm := newTestVM(t, Options{})
	for _, src := range []string{"<a>", "<a></b>", "<a/><b/>x"} {
		_, err := vm.Construct("XML", String(src))
		scriptError(t, err, "TypeError", 1088)
	}
}

func TestXMLAppendChildReparents(t *testing.T) {
	vm := newTestVM(t, Options{})
	src := mustConstruct(t, vm, "XML", String("<a><moved/><stay/></a>"))
	dst := mustConstruct(t, vm, "XML", String("<b/>"))

	child, err := vm.Invoke(src, "child", String("moved"))
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	node, err := vm.GetProperty(child, "0")
	if err != nil {
		t.Fatalf("child[0]: %v", err)
	}
	if _, err := vm.Invoke(dst, "appendChild", node); err != nil {
		t.Fatalf("appendChild: %v", err)
	}

	if got := invokeString(t, vm, src, "toXMLString"); got != "<a>\n  <stay/>\n</a>" {
		t.Errorf("old parent =\n%s", got)
	}
	if got := invokeString(t, vm, dst, "toXMLString"); got != "<b>\n  <moved/>\n</b>" {
		t.Errorf("new parent =\n%s", got)
	}
	parent, err := vm.Invoke(node, "parent")
	if err != nil {
		t.Fatalf("parent: %v", err)
	}
	if parent.AsObject() != dst.AsObject() {
		t.Error("moved node's parent is not the new parent")
	}
}

func TestXMLAppendChildString(t *testing.T) {
	vm := newTestVM(t, Options{})
	x := mustConstruct(t, vm, "XML", String("<list/>"))
	if _, err := vm.Invoke(x, "appendChild", String("<entry id=\"7\"/>")); err != nil {
		t.Fatalf("appendChild(markup): %v", err)
	}
	if _, err := vm.Invoke(x, "appendChild", String("plain & simple")); err != nil {
		t.Fatalf("appendChild(text): %v", err)
	}
	want := "<list>\n  <entry id=\"7\"/>\n  plain &amp; simple\n</list>"
	if got := invokeString(t, vm, x, "toXMLString"); got != want {
		t.Errorf("toXMLString =\n%s\nwant\n%s", got, want)
	}
}

func TestXMLCopyIsDeep(t *testing.T) {
	vm := newTestVM(t, Options{})
	x := mustConstruct(t, vm, "XML", String("<a><b>1</b></a>"))
	c, err := vm.Invoke(x, "copy")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	vm.Pin(c)
	if _, err := vm.Invoke(c, "appendChild", String("<z/>")); err != nil {
		t.Fatalf("appendChild: %v", err)
	}
	if got := invokeString(t, vm, x, "toXMLString"); got != "<a>\n  <b>1</b>\n</a>" {
		t.Errorf("original changed after editing the copy:\n%s", got)
	}
	p, err := vm.Invoke(c, "parent")
	if err != nil {
		t.Fatalf("parent: %v", err)
	}
	if !p.IsNullish() {
		t.Errorf("copy parent = %v, want undefined", p)
	}
}
