package vm

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/chazu/avm2/vm/heap"
)

// XMLKind is the node kind of an XML value.
type XMLKind uint8

const (
	XMLElement XMLKind = iota
	XMLText
	XMLComment
	XMLProcessingInstruction
	XMLAttribute
)

var xmlKindNames = [...]string{"element", "text", "comment", "processing-instruction", "attribute"}

func (k XMLKind) String() string { return xmlKindNames[k] }

// XMLObject is one node of an XML tree. Every node is its own heap object
// so that node identity survives reparenting.
type XMLObject struct {
	ScriptObject
	kind     XMLKind
	uri      string
	local    string
	value    string // text, comment, instruction body or attribute value
	attrs    []*XMLObject
	children []*XMLObject
	parent   *XMLObject
}

func (x *XMLObject) Trace(t *heap.Tracer) {
	x.traceBase(t)
	for _, c := range x.attrs {
		t.Mark(c)
	}
	for _, c := range x.children {
		t.Mark(c)
	}
	if x.parent != nil {
		t.Mark(x.parent)
	}
}

// Kind returns the node kind.
func (x *XMLObject) Kind() XMLKind { return x.kind }

// Parent returns the parent node, or nil.
func (x *XMLObject) Parent() *XMLObject { return x.parent }

// Children returns the child nodes.
func (x *XMLObject) Children() []*XMLObject { return x.children }

// XMLListObject is an ordered list of XML nodes.
type XMLListObject struct {
	ScriptObject
	items []*XMLObject
}

func (l *XMLListObject) Trace(t *heap.Tracer) {
	l.traceBase(t)
	for _, c := range l.items {
		t.Mark(c)
	}
}

// Len returns the number of items.
func (l *XMLListObject) Len() int { return len(l.items) }

// ---------------------------------------------------------------------------
// Construction and parsing
// ---------------------------------------------------------------------------

func (a *Activation) newXMLNode(kind XMLKind) *XMLObject {
	x := &XMLObject{kind: kind}
	a.initObject(x, a.vm.classes.xml)
	return x
}

// NewXMLElement returns a detached element node.
func (a *Activation) NewXMLElement(local string) *XMLObject {
	x := a.newXMLNode(XMLElement)
	x.local = local
	return x
}

func (a *Activation) newXMLText(s string) *XMLObject {
	x := a.newXMLNode(XMLText)
	x.value = s
	return x
}

func (a *Activation) newXMLList(items []*XMLObject) *XMLListObject {
	l := &XMLListObject{items: items}
	a.initObject(l, a.vm.classes.xmlList)
	return l
}

// SetAttribute sets or replaces an attribute of an element.
func (a *Activation) SetAttribute(x *XMLObject, name, value string) {
	a.write(x)
	for _, at := range x.attrs {
		if at.uri == "" && at.local == name {
			a.write(at)
			at.value = value
			return
		}
	}
	at := a.newXMLNode(XMLAttribute)
	at.local, at.value, at.parent = name, value, x
	x.attrs = append(x.attrs, at)
}

// AppendChild reparents child under x.
func (a *Activation) AppendChild(x, child *XMLObject) {
	if child.parent != nil {
		a.detach(child)
	}
	a.write(x)
	a.write(child)
	child.parent = x
	x.children = append(x.children, child)
}

func (a *Activation) detach(x *XMLObject) {
	p := x.parent
	if p == nil {
		return
	}
	a.write(p)
	a.write(x)
	for i, c := range p.children {
		if c == x {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	x.parent = nil
}

var errMalformedXML = errors.New("malformed markup")

// parseXML parses markup into detached top-level nodes. Whitespace-only
// text is dropped.
func (a *Activation) parseXML(src string) ([]*XMLObject, error) {
	dec := xml.NewDecoder(strings.NewReader(src))
	dec.Strict = true
	var (
		top   []*XMLObject
		stack []*XMLObject
	)
	emit := func(n *XMLObject) {
		if len(stack) == 0 {
			top = append(top, n)
			return
		}
		a.AppendChild(stack[len(stack)-1], n)
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errMalformedXML
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := a.NewXMLElement(t.Name.Local)
			el.uri = t.Name.Space
			for _, at := range t.Attr {
				if at.Name.Space == "xmlns" || at.Name.Local == "xmlns" {
					continue
				}
				n := a.newXMLNode(XMLAttribute)
				n.uri, n.local, n.value, n.parent = at.Name.Space, at.Name.Local, at.Value, el
				el.attrs = append(el.attrs, n)
			}
			emit(el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			s := string(t)
			if strings.TrimSpace(s) == "" {
				continue
			}
			emit(a.newXMLText(strings.TrimSpace(s)))
		case xml.Comment:
			n := a.newXMLNode(XMLComment)
			n.value = string(t)
			emit(n)
		case xml.ProcInst:
			if t.Target == "xml" {
				continue
			}
			n := a.newXMLNode(XMLProcessingInstruction)
			n.local, n.value = t.Target, string(t.Inst)
			emit(n)
		}
	}
	if len(stack) != 0 {
		return nil, errMalformedXML
	}
	return top, nil
}

// ToXML converts v to a single XML node, parsing strings.
func (a *Activation) ToXML(v Value) (*XMLObject, error) {
	switch o := v.AsObject().(type) {
	case *XMLObject:
		return o, nil
	case *XMLListObject:
		if len(o.items) == 1 {
			return o.items[0], nil
		}
		return nil, a.TypeError(1088, "The markup in the document following the root element must be well-formed.")
	}
	if v.IsNullish() {
		return nil, a.TypeError(1088, "The markup in the document following the root element must be well-formed.")
	}
	s, err := a.ToString(v)
	if err != nil {
		return nil, err
	}
	nodes, err := a.parseXML(s)
	if err != nil || len(nodes) > 1 {
		return nil, a.TypeError(1088, "The markup in the document following the root element must be well-formed.")
	}
	if len(nodes) == 0 {
		return a.newXMLText(""), nil
	}
	return nodes[0], nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// matches reports whether n is an element named local ("*" matches all).
func (x *XMLObject) matches(local string) bool {
	return x.kind == XMLElement && (local == "*" || x.local == local)
}

func (x *XMLObject) childrenNamed(local string) []*XMLObject {
	var out []*XMLObject
	for _, c := range x.children {
		if c.matches(local) {
			out = append(out, c)
		}
	}
	return out
}

func (x *XMLObject) attributesNamed(local string) []*XMLObject {
	if local == "*" {
		return append([]*XMLObject(nil), x.attrs...)
	}
	var out []*XMLObject
	for _, at := range x.attrs {
		if at.local == local {
			out = append(out, at)
		}
	}
	return out
}

func (x *XMLObject) hasSimpleContent() bool {
	switch x.kind {
	case XMLComment, XMLProcessingInstruction:
		return false
	case XMLElement:
		for _, c := range x.children {
			if c.kind == XMLElement {
				return false
			}
		}
	}
	return true
}

func (x *XMLObject) qualifiedName() string {
	if x.uri == "" {
		return x.local
	}
	return x.uri + "::" + x.local
}

// text concatenates the text children of a simple element.
func (x *XMLObject) text() string {
	switch x.kind {
	case XMLText, XMLAttribute:
		return x.value
	case XMLElement:
		var b strings.Builder
		for _, c := range x.children {
			if c.kind == XMLText {
				b.WriteString(c.value)
			}
		}
		return b.String()
	}
	return ""
}

// String renders the node the way toString does.
func (x *XMLObject) String() string {
	if x.hasSimpleContent() {
		return x.text()
	}
	return x.XMLString()
}

func (x *XMLObject) primitive() Value { return String(x.String()) }

// XMLString renders the node as pretty-printed markup.
func (x *XMLObject) XMLString() string {
	var b strings.Builder
	x.write(&b, 0, "")
	return b.String()
}

func (x *XMLObject) write(b *strings.Builder, indent int, inheritedURI string) {
	pad := strings.Repeat("  ", indent)
	b.WriteString(pad)
	switch x.kind {
	case XMLText:
		b.WriteString(escapeText(x.value))
		return
	case XMLAttribute:
		b.WriteString(escapeAttr(x.value))
		return
	case XMLComment:
		b.WriteString("<!--" + x.value + "-->")
		return
	case XMLProcessingInstruction:
		b.WriteString("<?" + x.local + " " + x.value + "?>")
		return
	}
	b.WriteString("<" + x.local)
	if x.uri != inheritedURI {
		b.WriteString(` xmlns="` + escapeAttr(x.uri) + `"`)
	}
	for _, at := range x.attrs {
		b.WriteString(" " + at.local + `="` + escapeAttr(at.value) + `"`)
	}
	switch {
	case len(x.children) == 0:
		b.WriteString("/>")
	case len(x.children) == 1 && x.children[0].kind == XMLText:
		b.WriteString(">" + escapeText(x.children[0].value) + "</" + x.local + ">")
	default:
		b.WriteString(">")
		for _, c := range x.children {
			b.WriteByte('\n')
			c.write(b, indent+1, x.uri)
		}
		b.WriteString("\n" + pad + "</" + x.local + ">")
	}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;")
)

func escapeText(s string) string { return textEscaper.Replace(s) }
func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// deepCopy returns a detached copy of x.
func (a *Activation) deepCopy(x *XMLObject) *XMLObject {
	c := a.newXMLNode(x.kind)
	c.uri, c.local, c.value = x.uri, x.local, x.value
	for _, at := range x.attrs {
		ac := a.deepCopy(at)
		ac.parent = c
		c.attrs = append(c.attrs, ac)
	}
	for _, ch := range x.children {
		cc := a.deepCopy(ch)
		cc.parent = c
		c.children = append(c.children, cc)
	}
	return c
}

func (x *XMLObject) equalTo(y *XMLObject) bool {
	if x.kind != y.kind || x.uri != y.uri || x.local != y.local || x.value != y.value ||
		len(x.attrs) != len(y.attrs) || len(x.children) != len(y.children) {
		return false
	}
	for _, at := range x.attrs {
		found := false
		for _, bt := range y.attrs {
			if at.uri == bt.uri && at.local == bt.local && at.value == bt.value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i := range x.children {
		if !x.children[i].equalTo(y.children[i]) {
			return false
		}
	}
	return true
}

// xmlEquals compares by content. Simple content also equals its string.
func (x *XMLObject) xmlEquals(a *Activation, other Value) (bool, error) {
	switch o := other.AsObject().(type) {
	case *XMLObject:
		if x.hasSimpleContent() && o.hasSimpleContent() && x.kind != XMLElement {
			return x.text() == o.text(), nil
		}
		return x.equalTo(o), nil
	case *XMLListObject:
		return o.xmlEquals(a, FromObject(x))
	}
	if x.hasSimpleContent() {
		s, err := a.ToString(other)
		return x.text() == s, err
	}
	return false, nil
}

func (l *XMLListObject) xmlEquals(a *Activation, other Value) (bool, error) {
	switch o := other.AsObject().(type) {
	case *XMLListObject:
		if len(l.items) != len(o.items) {
			return false, nil
		}
		for i := range l.items {
			if !l.items[i].equalTo(o.items[i]) {
				return false, nil
			}
		}
		return true, nil
	}
	if len(l.items) == 1 {
		return l.items[0].xmlEquals(a, other)
	}
	return other.IsUndefined() && len(l.items) == 0, nil
}

func (l *XMLListObject) String() string {
	simple := true
	for _, it := range l.items {
		if !it.hasSimpleContent() {
			simple = false
			break
		}
	}
	if simple {
		var b strings.Builder
		for _, it := range l.items {
			if it.kind != XMLComment && it.kind != XMLProcessingInstruction {
				b.WriteString(it.text())
			}
		}
		return b.String()
	}
	return l.XMLString()
}

func (l *XMLListObject) primitive() Value { return String(l.String()) }

// XMLString joins the items' markup with newlines.
func (l *XMLListObject) XMLString() string {
	parts := make([]string, len(l.items))
	for i, it := range l.items {
		parts[i] = it.XMLString()
	}
	return strings.Join(parts, "\n")
}

// concatXMLLists implements + on two lists.
func (a *Activation) concatXMLLists(xl *XMLListObject, y Value) *XMLListObject {
	items := append([]*XMLObject(nil), xl.items...)
	if yl, ok := y.AsObject().(*XMLListObject); ok {
		items = append(items, yl.items...)
	}
	return a.newXMLList(items)
}

// ---------------------------------------------------------------------------
// Property hooks: child access by name
// ---------------------------------------------------------------------------

func (x *XMLObject) getHook(a *Activation, mn *Multiname, local string) (Value, bool, error) {
	if i, ok := arrayIndex(local); ok {
		if i == 0 {
			return FromObject(x), true, nil
		}
		return Undefined, true, nil
	}
	if strings.HasPrefix(local, "@") {
		return FromObject(a.newXMLList(x.attributesNamed(local[1:]))), true, nil
	}
	return FromObject(a.newXMLList(x.childrenNamed(local))), true, nil
}

func (x *XMLObject) setHook(a *Activation, mn *Multiname, local string, v Value) (bool, error) {
	if x.kind != XMLElement {
		return true, nil
	}
	if strings.HasPrefix(local, "@") {
		s, err := a.ToString(v)
		if err != nil {
			return true, err
		}
		a.SetAttribute(x, local[1:], s)
		return true, nil
	}
	var node *XMLObject
	if n, ok := v.AsObject().(*XMLObject); ok && n.kind == XMLElement {
		node = n
		if node == x {
			node = a.deepCopy(n)
		}
	} else {
		s, err := a.ToString(v)
		if err != nil {
			return true, err
		}
		node = a.NewXMLElement(local)
		a.AppendChild(node, a.newXMLText(s))
	}
	existing := x.childrenNamed(local)
	if len(existing) == 0 {
		a.AppendChild(x, node)
		return true, nil
	}
	if node.parent != nil {
		a.detach(node)
	}
	a.write(x)
	a.write(node)
	for i, c := range x.children {
		if c == existing[0] {
			x.children[i] = node
			node.parent = x
			a.write(c)
			c.parent = nil
			break
		}
	}
	for _, extra := range existing[1:] {
		a.detach(extra)
	}
	return true, nil
}

func (x *XMLObject) hasHook(a *Activation, mn *Multiname, local string) bool {
	if strings.HasPrefix(local, "@") {
		return len(x.attributesNamed(local[1:])) > 0
	}
	if i, ok := arrayIndex(local); ok {
		return i == 0
	}
	return len(x.childrenNamed(local)) > 0
}

func (x *XMLObject) deleteHook(a *Activation, mn *Multiname, local string) (bool, bool) {
	if strings.HasPrefix(local, "@") {
		a.write(x)
		kept := x.attrs[:0]
		for _, at := range x.attrs {
			if local[1:] != "*" && at.local != local[1:] {
				kept = append(kept, at)
			}
		}
		x.attrs = kept
		return true, true
	}
	for _, c := range x.childrenNamed(local) {
		a.detach(c)
	}
	return true, true
}

func (l *XMLListObject) getHook(a *Activation, mn *Multiname, local string) (Value, bool, error) {
	if i, ok := arrayIndex(local); ok {
		if i < len(l.items) {
			return FromObject(l.items[i]), true, nil
		}
		return Undefined, true, nil
	}
	var out []*XMLObject
	for _, it := range l.items {
		if strings.HasPrefix(local, "@") {
			out = append(out, it.attributesNamed(local[1:])...)
		} else {
			out = append(out, it.childrenNamed(local)...)
		}
	}
	return FromObject(a.newXMLList(out)), true, nil
}

func (l *XMLListObject) setHook(a *Activation, mn *Multiname, local string, v Value) (bool, error) {
	if i, ok := arrayIndex(local); ok {
		n, err := a.ToXML(v)
		if err != nil {
			return true, err
		}
		a.write(l)
		if i < len(l.items) {
			l.items[i] = n
		} else {
			l.items = append(l.items, n)
		}
		return true, nil
	}
	if len(l.items) == 1 {
		return l.items[0].setHook(a, mn, local, v)
	}
	return true, a.TypeError(1089, "Assignment to lists with more than one item is not supported.")
}

func (l *XMLListObject) hasHook(a *Activation, mn *Multiname, local string) bool {
	if i, ok := arrayIndex(local); ok {
		return i < len(l.items)
	}
	for _, it := range l.items {
		if it.hasHook(a, mn, local) {
			return true
		}
	}
	return false
}

func (l *XMLListObject) deleteHook(a *Activation, mn *Multiname, local string) (bool, bool) {
	if i, ok := arrayIndex(local); ok {
		if i >= len(l.items) {
			return true, false
		}
		a.write(l)
		a.detach(l.items[i])
		l.items = append(l.items[:i:i], l.items[i+1:]...)
		return true, true
	}
	for _, it := range l.items {
		it.deleteHook(a, mn, local)
	}
	return true, true
}

func (l *XMLListObject) enumNext(cursor int) int {
	if cursor < len(l.items) {
		return cursor + 1
	}
	return 0
}

func (l *XMLListObject) enumName(cursor int) Value { return String(NumberToString(float64(cursor - 1))) }

func (l *XMLListObject) enumValue(cursor int) Value {
	if cursor >= 1 && cursor <= len(l.items) {
		return FromObject(l.items[cursor-1])
	}
	return Undefined
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// listOf returns the nodes an XML or XMLList receiver stands for.
func (a *Activation) listOf(this Value) ([]*XMLObject, error) {
	switch o := this.AsObject().(type) {
	case *XMLObject:
		return []*XMLObject{o}, nil
	case *XMLListObject:
		return o.items, nil
	}
	return nil, a.TypeError(1034, "Type Coercion failed: cannot convert %s to XML.", a.describeValue(this))
}

func (a *Activation) nameArg(args []Value) (string, error) {
	v := arg(args, 0)
	if v.IsUndefined() {
		return "*", nil
	}
	return a.ToString(v)
}

// gather applies fn to each node of the receiver and returns the union.
func gather(fn func(a *Activation, x *XMLObject, args []Value) ([]*XMLObject, error)) NativeMethod {
	return func(a *Activation, this Value, args []Value) (Value, error) {
		nodes, err := a.listOf(this)
		if err != nil {
			return Undefined, err
		}
		var out []*XMLObject
		for _, x := range nodes {
			r, err := fn(a, x, args)
			if err != nil {
				return Undefined, err
			}
			out = append(out, r...)
		}
		return FromObject(a.newXMLList(out)), nil
	}
}

var (
	xmlChildren = gather(func(_ *Activation, x *XMLObject, _ []Value) ([]*XMLObject, error) {
		return append([]*XMLObject(nil), x.children...), nil
	})
	xmlChild = gather(func(a *Activation, x *XMLObject, args []Value) ([]*XMLObject, error) {
		v := arg(args, 0)
		if v.IsNumeric() {
			i := int(v.Float())
			if i >= 0 && i < len(x.children) {
				return []*XMLObject{x.children[i]}, nil
			}
			return nil, nil
		}
		name, err := a.nameArg(args)
		if err != nil {
			return nil, err
		}
		return x.childrenNamed(name), nil
	})
	xmlElements = gather(func(a *Activation, x *XMLObject, args []Value) ([]*XMLObject, error) {
		name, err := a.nameArg(args)
		if err != nil {
			return nil, err
		}
		return x.childrenNamed(name), nil
	})
	xmlAttributes = gather(func(_ *Activation, x *XMLObject, _ []Value) ([]*XMLObject, error) {
		return x.attributesNamed("*"), nil
	})
	xmlAttribute = gather(func(a *Activation, x *XMLObject, args []Value) ([]*XMLObject, error) {
		name, err := a.nameArg(args)
		if err != nil {
			return nil, err
		}
		return x.attributesNamed(strings.TrimPrefix(name, "@")), nil
	})
	xmlText = gather(func(_ *Activation, x *XMLObject, _ []Value) ([]*XMLObject, error) {
		var out []*XMLObject
		for _, c := range x.children {
			if c.kind == XMLText {
				out = append(out, c)
			}
		}
		return out, nil
	})
)

func xmlToString(a *Activation, this Value, _ []Value) (Value, error) {
	switch o := this.AsObject().(type) {
	case *XMLObject:
		return String(o.String()), nil
	case *XMLListObject:
		return String(o.String()), nil
	}
	return objectToString(a, this, nil)
}

func xmlToXMLString(a *Activation, this Value, _ []Value) (Value, error) {
	switch o := this.AsObject().(type) {
	case *XMLObject:
		return String(o.XMLString()), nil
	case *XMLListObject:
		return String(o.XMLString()), nil
	}
	return objectToString(a, this, nil)
}

func xmlValueOf(_ *Activation, this Value, _ []Value) (Value, error) { return this, nil }

// xmlClasses defines XML and XMLList.
func xmlClasses() []*Class {
	node := func(a *Activation, this Value) (*XMLObject, error) {
		return thisAs[*XMLObject](a, this, "XML")
	}
	xmlClass := NewClass(PublicName("XML"), "Object", ClassSealed|ClassFinal).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &XMLObject{}, nil }).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			v := arg(args, 0)
			if v.IsNullish() {
				x.kind = XMLText
				return Undefined, nil
			}
			src, err := a.ToXML(v)
			if err != nil {
				return Undefined, err
			}
			if v.IsObject() {
				src = a.deepCopy(src)
			}
			a.write(x)
			x.kind, x.uri, x.local, x.value = src.kind, src.uri, src.local, src.value
			x.attrs, x.children = src.attrs, src.children
			for _, c := range x.attrs {
				c.parent = x
			}
			for _, c := range x.children {
				c.parent = x
			}
			return Undefined, nil
		}).
		CallHandler(func(a *Activation, _ Value, args []Value) (Value, error) {
			x, err := a.ToXML(arg(args, 0))
			return FromObject(x), err
		}).
		Method("name", func(a *Activation, this Value, _ []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			if x.kind == XMLText || x.kind == XMLComment {
				return Null, nil
			}
			return String(x.qualifiedName()), nil
		}).
		Method("localName", func(a *Activation, this Value, _ []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			if x.kind == XMLText || x.kind == XMLComment {
				return Null, nil
			}
			return String(x.local), nil
		}).
		Method("nodeKind", func(a *Activation, this Value, _ []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			return String(x.kind.String()), nil
		}).
		Method("children", xmlChildren).
		Method("child", xmlChild).
		Method("elements", xmlElements).
		Method("attributes", xmlAttributes).
		Method("attribute", xmlAttribute).
		Method("text", xmlText).
		Method("appendChild", func(a *Activation, this Value, args []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			if x.kind != XMLElement {
				return this, nil
			}
			v := arg(args, 0)
			if l, ok := v.AsObject().(*XMLListObject); ok {
				for _, it := range append([]*XMLObject(nil), l.items...) {
					a.AppendChild(x, it)
				}
				return this, nil
			}
			child, err := a.ToXML(v)
			var thrown *Error
			if errors.As(err, &thrown) && v.IsString() {
				child, err = a.newXMLText(v.AsString()), nil
			}
			if err != nil {
				return Undefined, err
			}
			if child.kind == XMLAttribute {
				child = a.newXMLText(child.value)
			}
			a.AppendChild(x, child)
			return this, nil
		}).
		Method("parent", func(a *Activation, this Value, _ []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			if x.parent == nil {
				return Undefined, nil
			}
			return FromObject(x.parent), nil
		}).
		Method("length", func(*Activation, Value, []Value) (Value, error) { return Int(1), nil }).
		Method("hasSimpleContent", func(a *Activation, this Value, _ []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			return Bool(x.hasSimpleContent()), nil
		}).
		Method("hasComplexContent", func(a *Activation, this Value, _ []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			return Bool(x.kind == XMLElement && !x.hasSimpleContent()), nil
		}).
		Method("copy", func(a *Activation, this Value, _ []Value) (Value, error) {
			x, err := node(a, this)
			if err != nil {
				return Undefined, err
			}
			return FromObject(a.deepCopy(x)), nil
		}).
		Method("toString", xmlToString).
		Method("toXMLString", xmlToXMLString).
		Method("valueOf", xmlValueOf)

	list := func(a *Activation, this Value) (*XMLListObject, error) {
		return thisAs[*XMLListObject](a, this, "XMLList")
	}
	xmlListClass := NewClass(PublicName("XMLList"), "Object", ClassSealed|ClassFinal).
		Allocates(func(*Activation, *ClassObject) (Object, error) { return &XMLListObject{}, nil }).
		Constructor(func(a *Activation, this Value, args []Value) (Value, error) {
			l, err := list(a, this)
			if err != nil {
				return Undefined, err
			}
			v := arg(args, 0)
			var items []*XMLObject
			switch o := v.AsObject().(type) {
			case *XMLListObject:
				items = append(items, o.items...)
			case *XMLObject:
				items = append(items, o)
			default:
				if !v.IsNullish() {
					s, err := a.ToString(v)
					if err != nil {
						return Undefined, err
					}
					if items, err = a.parseXML(s); err != nil {
						return Undefined, a.TypeError(1088, "The markup in the document following the root element must be well-formed.")
					}
				}
			}
			a.write(l)
			l.items = items
			return Undefined, nil
		}).
		Method("length", func(a *Activation, this Value, _ []Value) (Value, error) {
			l, err := list(a, this)
			if err != nil {
				return Undefined, err
			}
			return Int(int32(len(l.items))), nil
		}).
		Method("children", xmlChildren).
		Method("child", xmlChild).
		Method("elements", xmlElements).
		Method("attributes", xmlAttributes).
		Method("attribute", xmlAttribute).
		Method("text", xmlText).
		Method("copy", func(a *Activation, this Value, _ []Value) (Value, error) {
			l, err := list(a, this)
			if err != nil {
				return Undefined, err
			}
			items := make([]*XMLObject, len(l.items))
			for i, it := range l.items {
				items[i] = a.deepCopy(it)
			}
			return FromObject(a.newXMLList(items)), nil
		}).
		Method("toString", xmlToString).
		Method("toXMLString", xmlToXMLString).
		Method("valueOf", xmlValueOf)

	return []*Class{xmlClass, xmlListClass}
}
