package vm

import (
	"strings"
	"sync/atomic"
)

// NamespaceKind mirrors the namespace kinds of the bytecode format.
type NamespaceKind uint8

const (
	NSPackage NamespaceKind = iota + 1
	NSPackageInternal
	NSProtected
	NSPrivate
	NSExplicit
	NSStaticProtected
	NSNamespace
)

// Namespace qualifies a name. Private namespaces carry a unique id so two
// classes' privates never collide even when their URIs do.
type Namespace struct {
	Kind NamespaceKind
	URI  string
	id   uint32
}

var privateIDs atomic.Uint32

// Package returns the public namespace of package uri.
func Package(uri string) Namespace { return Namespace{Kind: NSPackage, URI: uri} }

// PublicNamespace is the namespace of public members and dynamic properties.
var PublicNamespace = Package("")

// AS3Namespace is the namespace builtin methods are also published under.
var AS3Namespace = Namespace{Kind: NSNamespace, URI: "http://adobe.com/AS3/2006/builtin"}

// NewPrivateNamespace returns a fresh private namespace.
func NewPrivateNamespace(uri string) Namespace {
	return Namespace{Kind: NSPrivate, URI: uri, id: privateIDs.Add(1)}
}

// IsPublic reports whether ns is the top-level public namespace.
func (ns Namespace) IsPublic() bool { return ns.Kind == NSPackage && ns.URI == "" }

func (ns Namespace) String() string {
	switch ns.Kind {
	case NSPrivate:
		return "private:" + ns.URI
	case NSProtected, NSStaticProtected:
		return "protected:" + ns.URI
	case NSPackageInternal:
		return "internal:" + ns.URI
	}
	return ns.URI
}

// QName is a fully qualified name.
type QName struct {
	NS    Namespace
	Local string
}

// PublicName returns local in the public namespace.
func PublicName(local string) QName { return QName{NS: PublicNamespace, Local: local} }

// PackageName returns local in package pkg.
func PackageName(pkg, local string) QName { return QName{NS: Package(pkg), Local: local} }

// String renders the name the way getQualifiedClassName does.
func (q QName) String() string {
	if q.NS.URI == "" {
		return q.Local
	}
	return q.NS.URI + "::" + q.Local
}

// ParseQName accepts "pkg::Local", "pkg.Local" or a bare "Local".
func ParseQName(s string) QName {
	if i := strings.LastIndex(s, "::"); i >= 0 {
		return PackageName(s[:i], s[i+2:])
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		return PackageName(s[:i], s[i+1:])
	}
	return PublicName(s)
}

// Multiname is a name searched across a set of namespaces. A late
// multiname takes its local name from the operand stack.
type Multiname struct {
	NS    []Namespace
	Local string
	Late  bool
}

// NewMultiname returns a multiname over the given namespaces, defaulting to
// the public namespace.
func NewMultiname(local string, ns ...Namespace) *Multiname {
	if len(ns) == 0 {
		ns = []Namespace{PublicNamespace}
	}
	return &Multiname{NS: ns, Local: local}
}

// NameOf returns a multiname that matches exactly q.
func NameOf(q QName) *Multiname { return &Multiname{NS: []Namespace{q.NS}, Local: q.Local} }

// TypeName parses a type reference such as "Number" or "flash.geom::Point".
func TypeName(s string) *Multiname {
	if s == "" || s == "*" {
		return nil
	}
	return NameOf(ParseQName(s))
}

// HasPublic reports whether the public namespace is in the set.
func (m *Multiname) HasPublic() bool {
	for _, ns := range m.NS {
		if ns.IsPublic() {
			return true
		}
	}
	return false
}

// QNames returns the candidate qualified names for local.
func (m *Multiname) QNames(local string) []QName {
	out := make([]QName, len(m.NS))
	for i, ns := range m.NS {
		out[i] = QName{NS: ns, Local: local}
	}
	return out
}

func (m *Multiname) String() string {
	local := m.Local
	if m.Late {
		local = "[late]"
	}
	if len(m.NS) == 1 {
		return QName{NS: m.NS[0], Local: local}.String()
	}
	return local
}
