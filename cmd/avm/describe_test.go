package main

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/chazu/avm2/vm/abc"
)

func sampleImage() *abc.File {
	b := abc.NewBuilder()
	code := abc.NewAsm().Op(abc.OpReturnVoid).MustCode()
	empty := func(name string) int {
		return b.Method(abc.Method{Name: b.String(name), Body: &abc.Body{MaxStack: 1, LocalCount: 1, Code: code}})
	}
	shape := b.PublicName("demo", "Shape")
	b.Class(abc.Class{
		Name:       shape,
		Super:      b.PublicName("", "Object"),
		Flags:      abc.ClassSealed,
		Init:       empty("Shape"),
		StaticInit: empty("Shape$cinit"),
		Traits: []abc.Trait{
			{Name: b.PublicName("", "sides"), Kind: abc.TraitSlot, Type: b.PublicName("", "int")},
			{Name: b.PublicName("", "area"), Kind: abc.TraitMethod, Method: empty("area")},
		},
	})
	b.Script(abc.Script{Init: empty("init"), Traits: []abc.Trait{{Name: shape, Kind: abc.TraitClass, Class: 1}}})
	return b.File()
}

func TestSummarize(t *testing.T) {
	s := summarize(sampleImage())
	if len(s.Classes) != 1 {
		t.Fatalf("classes = %d, want 1", len(s.Classes))
	}
	c := s.Classes[0]
	if c.Name != "demo::Shape" {
		t.Errorf("class name = %q, want demo::Shape", c.Name)
	}
	if len(c.Flags) != 1 || c.Flags[0] != "sealed" {
		t.Errorf("flags = %v, want [sealed]", c.Flags)
	}
	if len(c.Instance) != 2 || c.Instance[0].Type != "int" || c.Instance[1].Kind != "method" {
		t.Errorf("instance traits = %+v", c.Instance)
	}
	if len(s.Scripts) != 1 || s.Scripts[0].Traits[0].Kind != "class" {
		t.Errorf("scripts = %+v", s.Scripts)
	}

	out, err := yaml.Marshal(s)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	if !strings.Contains(string(out), "name: demo::Shape") {
		t.Errorf("yaml output missing class name:\n%s", out)
	}
}
