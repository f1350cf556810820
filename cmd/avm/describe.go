package main

import (
	"flag"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chazu/avm2/vm/abc"
)

type imageSummary struct {
	Magic   string          `yaml:"magic"`
	Version int             `yaml:"version"`
	Methods int             `yaml:"methods"`
	Classes []classSummary  `yaml:"classes,omitempty"`
	Scripts []scriptSummary `yaml:"scripts,omitempty"`
	Assets  []assetSummary  `yaml:"assets,omitempty"`
}

type classSummary struct {
	Name       string         `yaml:"name"`
	Super      string         `yaml:"super,omitempty"`
	Interfaces []string       `yaml:"interfaces,omitempty"`
	Flags      []string       `yaml:"flags,omitempty"`
	Asset      string         `yaml:"asset,omitempty"`
	Instance   []traitSummary `yaml:"instance,omitempty"`
	Static     []traitSummary `yaml:"static,omitempty"`
}

type traitSummary struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Type string `yaml:"type,omitempty"`
}

type scriptSummary struct {
	Init   int            `yaml:"init"`
	Traits []traitSummary `yaml:"traits,omitempty"`
}

type assetSummary struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Bytes  int    `yaml:"bytes"`
	Width  int    `yaml:"width,omitempty"`
	Height int    `yaml:"height,omitempty"`
}

// describeCommand processes `avm describe`, writing a YAML summary of the
// image to stdout.
func describeCommand(args []string) error {
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	fs.Parse(args)

	path, err := imageArg(fs)
	if err != nil {
		return err
	}
	f, err := readImage(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(summarize(f))
}

func summarize(f *abc.File) imageSummary {
	s := imageSummary{Magic: f.Magic, Version: f.Version, Methods: len(f.Methods) - 1}
	for i := 1; i < len(f.Classes); i++ {
		c := f.Classes[i]
		cs := classSummary{
			Name:     f.MultinameString(c.Name),
			Instance: traits(f, c.Traits),
			Static:   traits(f, c.StaticTraits),
		}
		if c.Super > 0 {
			cs.Super = f.MultinameString(c.Super)
		}
		for _, iface := range c.Interfaces {
			cs.Interfaces = append(cs.Interfaces, f.MultinameString(iface))
		}
		for _, fl := range []struct {
			bit  abc.ClassFlags
			name string
		}{
			{abc.ClassSealed, "sealed"},
			{abc.ClassFinal, "final"},
			{abc.ClassInterface, "interface"},
			{abc.ClassProtectedNS, "protected-ns"},
		} {
			if c.Flags&fl.bit != 0 {
				cs.Flags = append(cs.Flags, fl.name)
			}
		}
		if c.Asset > 0 {
			cs.Asset = f.Strings[c.Asset]
		}
		s.Classes = append(s.Classes, cs)
	}
	for _, sc := range f.Scripts {
		s.Scripts = append(s.Scripts, scriptSummary{Init: sc.Init, Traits: traits(f, sc.Traits)})
	}
	for _, a := range f.Assets {
		kind := "binary"
		if a.Kind == abc.AssetBitmap {
			kind = "bitmap"
		}
		s.Assets = append(s.Assets, assetSummary{Name: a.Name, Kind: kind, Bytes: len(a.Data), Width: a.Width, Height: a.Height})
	}
	return s
}

var traitKinds = map[abc.TraitKind]string{
	abc.TraitSlot:     "slot",
	abc.TraitMethod:   "method",
	abc.TraitGetter:   "getter",
	abc.TraitSetter:   "setter",
	abc.TraitClass:    "class",
	abc.TraitFunction: "function",
	abc.TraitConst:    "const",
}

func traits(f *abc.File, ts []abc.Trait) []traitSummary {
	var out []traitSummary
	for _, t := range ts {
		ts := traitSummary{Name: f.MultinameString(t.Name), Kind: traitKinds[t.Kind]}
		if (t.Kind == abc.TraitSlot || t.Kind == abc.TraitConst) && t.Type > 0 {
			ts.Type = f.MultinameString(t.Type)
		}
		out = append(out, ts)
	}
	return out
}
