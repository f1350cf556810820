package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schema is the closed shape of avm.toml. Every table and key is optional;
// anything not listed is rejected.
const schema = `
#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Manifest: {
	project?: {
		name?:  string
		entry?: string & =~"\\.abc$"
	}
	player?: {
		"frame-rate"?:     int & >=1 & <=240
		"max-call-depth"?: int & >=16 & <=65536
	}
	workers?: {
		"receive-timeout"?: #Duration
		"max-workers"?:     int & >=1 & <=1024
	}
	gc?: {
		"step-budget"?: int & >=1
		threshold?:     int & >=1
	}
	storage?: {
		"shared-objects"?: string
	}
	log?: {
		verbosity?: int & >=0 & <=4
		file?:      string
	}
}
`

var manifestDef cue.Value

func init() {
	ctx := cuecontext.New()
	v := ctx.CompileString(schema)
	if err := v.Err(); err != nil {
		panic(fmt.Sprintf("manifest: bad schema: %v", err))
	}
	manifestDef = v.LookupPath(cue.ParsePath("#Manifest"))
}

// Validate checks a decoded avm.toml document against the schema.
func Validate(doc map[string]any) error {
	v := manifestDef.Context().Encode(doc)
	if err := v.Err(); err != nil {
		return err
	}
	if err := manifestDef.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
