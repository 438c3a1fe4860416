package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains a decoded Config. Field names follow the json
// tags on Config.
const schemaSource = `
#Config: {
	engine: {
		codeCacheSize:        int & >1048576 & <=2147483647
		maxBlockInstructions: int & >=1 & <=4096
		disassembler:         bool
	}
	image: {
		file:     string
		base:     int & >=0 & <=4294967295
		entry:    int & >=0 & <=4294967295
		readOnly: bool
		size:     int & >=0 & <=2147483647
	}
	trace: {
		db: string
	}
	log: {
		verbosity: int & >=-4 & <=2
		file:      string
	}
}
`

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schema     cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling config schema: %w", err)
			return
		}
		schema = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schema, schemaErr
}

// Validate checks c against the configuration schema.
func (c *Config) Validate() error {
	ctx, s, err := loadSchema()
	if err != nil {
		return err
	}
	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := s.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
